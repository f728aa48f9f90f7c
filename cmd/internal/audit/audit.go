// Package audit records login lifecycle events.
//
// The log is append-only and write-mostly. It is never read to decide
// whether a browser is logged in; the cookie jar stays the only session store.
package audit

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Actions.
const (
	ActionLoginStarted    = "auth.login.started"
	ActionCallbackSuccess = "auth.callback.success"
	ActionCallbackFailed  = "auth.callback.failed"
	ActionLogout          = "auth.logout"
	ActionSessionExpired  = "auth.session.expired"
)

// ErrInvalidEvent is returned for events without an action.
var ErrInvalidEvent = errors.New("audit: invalid event")

// Event is one audit record.
type Event struct {
	ID        string
	Action    string
	ChannelID string
	IP        net.IP
	UserAgent string
	Meta      map[string]any
	CreatedAt time.Time
}

// Recorder persists events. Implementations must be safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// FailureCounter counts recent events of one action from one IP.
type FailureCounter interface {
	CountSince(ctx context.Context, action string, ip net.IP, since time.Time) (int, error)
}

// normalize fills ID and CreatedAt and validates the action.
func normalize(ev Event, now time.Time) (Event, error) {
	ev.Action = strings.TrimSpace(ev.Action)
	if ev.Action == "" {
		return Event{}, ErrInvalidEvent
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = now.UTC()
	}
	if ev.ID == "" {
		id, err := ulid.New(ulid.Timestamp(ev.CreatedAt), rand.Reader)
		if err != nil {
			return Event{}, err
		}
		ev.ID = id.String()
	}
	ev.UserAgent = strings.TrimSpace(ev.UserAgent)
	return ev, nil
}

// LogRecorder writes events to a structured logger. Used when no database is configured.
type LogRecorder struct {
	log *slog.Logger
}

// NewLogRecorder returns a LogRecorder; nil uses slog.Default().
func NewLogRecorder(log *slog.Logger) *LogRecorder {
	if log == nil {
		log = slog.Default()
	}
	return &LogRecorder{log: log}
}

func (r *LogRecorder) Record(ctx context.Context, ev Event) error {
	ev, err := normalize(ev, time.Now())
	if err != nil {
		return err
	}
	attrs := []any{
		"audit_id", ev.ID,
		"action", ev.Action,
	}
	if ev.ChannelID != "" {
		attrs = append(attrs, "channel_id", ev.ChannelID)
	}
	if ev.IP != nil {
		attrs = append(attrs, "ip", ev.IP.String())
	}
	if ev.UserAgent != "" {
		attrs = append(attrs, "user_agent", ev.UserAgent)
	}
	if len(ev.Meta) > 0 {
		attrs = append(attrs, "meta", ev.Meta)
	}
	r.log.InfoContext(ctx, "audit.event", attrs...)
	return nil
}

// Multi fans out to several recorders and joins their errors.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, ev Event) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
