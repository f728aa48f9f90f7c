package authapi

import (
	"context"
	"net/http"
	"time"

	"github.com/popop098/chzzk-login-example/cmd/internal/audit"
)

const auditTimeout = 2 * time.Second

// record writes one audit event. Failures are logged and never reach the client.
func (h *Handler) record(r *http.Request, action, channelID string, meta map[string]any) {
	if h == nil || h.audit == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), auditTimeout)
	defer cancel()

	err := h.audit.Record(ctx, audit.Event{
		Action:    action,
		ChannelID: channelID,
		IP:        clientIP(r, h.cfg.TrustProxy),
		UserAgent: r.UserAgent(),
		Meta:      meta,
	})
	if err != nil {
		h.log.Error("auth.audit.insert.fail", "err", err, "action", action)
	}
}
