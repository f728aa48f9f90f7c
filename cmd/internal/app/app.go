// Package app wires the login server runtime: config, logging, storage, and HTTP routes.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/popop098/chzzk-login-example/cmd/internal/audit"
	authapi "github.com/popop098/chzzk-login-example/cmd/internal/auth/api"
	"github.com/popop098/chzzk-login-example/cmd/internal/auth/session"
	"github.com/popop098/chzzk-login-example/cmd/internal/chzzk"
	"github.com/popop098/chzzk-login-example/cmd/internal/telemetry"
	"github.com/popop098/chzzk-login-example/cmd/internal/web"
)

// App is the server runtime. It owns the HTTP handler tree and the optional DB pool.
type App struct {
	cfg Config
	log Logger

	dbPool  *pgxpool.Pool
	metrics *telemetry.Metrics

	handler http.Handler
}

// Option overrides App dependencies (tests).
type Option func(*appDeps)

type appDeps struct {
	httpClient *http.Client
}

// WithHTTPClient sets the client used for Chzzk Open API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(d *appDeps) { d.httpClient = hc }
}

// New constructs a fully wired App. cfg must already have passed ValidateSecurityConfig.
func New(ctx context.Context, cfg Config, log Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	deps := appDeps{}
	for _, opt := range opts {
		if opt != nil {
			opt(&deps)
		}
	}

	a := &App{cfg: cfg, log: log}
	if cfg.MetricsEnabled {
		a.metrics = telemetry.NewMetrics()
	}

	recorder, counter, err := a.openAudit(ctx)
	if err != nil {
		return nil, err
	}

	clientOpts := []chzzk.Option{chzzk.WithMetrics(a.metrics)}
	if deps.httpClient != nil {
		clientOpts = append(clientOpts, chzzk.WithHTTPClient(deps.httpClient))
	}
	client := chzzk.NewClient(cfg.ChzzkConfig(), clientOpts...)

	sessions, err := session.NewService(cfg.SessionConfig(), client)
	if err != nil {
		a.Close()
		return nil, err
	}

	authOpts := []authapi.HandlerOption{
		authapi.WithAuditRecorder(recorder),
		authapi.WithMetrics(a.metrics),
	}
	if counter != nil {
		authOpts = append(authOpts, authapi.WithFailureCounter(counter))
	}
	auth, err := authapi.NewHandler(log, sessions, cfg.CookieCodec(), cfg.AuthAPIConfig(), authOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}

	home, err := web.NewHandler(log, sessions, web.Paths{Login: authapi.LoginPath, Logout: authapi.LogoutPath},
		web.WithAuditRecorder(recorder),
		web.WithMetrics(a.metrics),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	mux := http.NewServeMux()
	registerHTTP(mux, log, cfg, a.dbPool, a.metrics, auth, home)
	a.handler = WithRequestLogging(WithSecurityHeaders(mux), log)

	return a, nil
}

// openAudit picks the Postgres audit log when a database is configured.
func (a *App) openAudit(ctx context.Context) (audit.Recorder, audit.FailureCounter, error) {
	logRec := audit.NewLogRecorder(a.log)
	if strings.TrimSpace(a.cfg.DatabaseURL) == "" {
		a.log.Info("db.disabled.log_audit")
		return logRec, nil, nil
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return nil, nil, err
	}
	pg, err := audit.NewPostgresRecorder(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	a.dbPool = pool
	a.log.Info("db.enabled.postgres_audit")
	return pg, pg, nil
}

// Handler returns the root handler with middleware applied.
func (a *App) Handler() http.Handler { return a.handler }

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"url", runtimeBaseURL(a.cfg.HTTPAddr),
		"env", a.cfg.Env,
		"db_enabled", a.dbPool != nil,
		"metrics_enabled", a.metrics != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

// Close releases the DB pool. Safe to call more than once.
func (a *App) Close() {
	if a == nil || a.dbPool == nil {
		return
	}
	a.dbPool.Close()
	a.dbPool = nil
}

// runtimeBaseURL turns a listen address into a URL a developer can open.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "http://" + strings.TrimSpace(addr)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
