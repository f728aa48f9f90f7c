package audit

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultSchema is the Postgres schema holding the audit table.
const DefaultSchema = "chzzk_login"

//go:embed schema.sql
var schemaSQL string

// PostgresRecorder stores events in <schema>.audit_log.
type PostgresRecorder struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresRecorder.
type PostgresOption func(*PostgresRecorder) error

// WithSchema overrides DefaultSchema.
func WithSchema(schema string) PostgresOption {
	return func(r *PostgresRecorder) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("audit: empty schema")
		}
		r.schema = schema
		return nil
	}
}

// NewPostgresRecorder constructs a PostgresRecorder.
func NewPostgresRecorder(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresRecorder, error) {
	r := &PostgresRecorder{pool: pool, schema: DefaultSchema}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.pool == nil {
		return nil, fmt.Errorf("audit: nil db pool")
	}
	return r, nil
}

// EnsureSchema creates the schema and table if missing. Idempotent.
func (r *PostgresRecorder) EnsureSchema(ctx context.Context) error {
	stmt := strings.ReplaceAll(schemaSQL, "{{schema}}", pgx.Identifier{r.schema}.Sanitize())
	if _, err := r.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("audit: ensure schema: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) table() string {
	return pgx.Identifier{r.schema, "audit_log"}.Sanitize()
}

func (r *PostgresRecorder) Record(ctx context.Context, ev Event) error {
	if r == nil || r.pool == nil {
		return nil
	}
	ev, err := normalize(ev, time.Now())
	if err != nil {
		return err
	}

	var ipVal any
	if ev.IP != nil {
		ipVal = ev.IP.String()
	}

	var metaVal *string
	if len(ev.Meta) > 0 {
		if b, err := json.Marshal(ev.Meta); err == nil {
			s := string(b)
			metaVal = &s
		}
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO `+r.table()+` (
			id, action, channel_id, created_at, ip, user_agent, meta
		) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
	`, ev.ID, ev.Action, trimOrNil(ev.ChannelID), ev.CreatedAt, ipVal, trimOrNil(ev.UserAgent), metaVal)
	if err != nil {
		return fmt.Errorf("audit: insert %s: %w", ev.Action, err)
	}
	return nil
}

// CountSince counts events of action from ip created at or after since.
func (r *PostgresRecorder) CountSince(ctx context.Context, action string, ip net.IP, since time.Time) (int, error) {
	if r == nil || r.pool == nil || ip == nil {
		return 0, nil
	}
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM `+r.table()+`
		WHERE action = $1
		  AND ip = $2
		  AND created_at >= $3
	`, action, ip.String(), since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("audit: count %s: %w", action, err)
	}
	return n, nil
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
