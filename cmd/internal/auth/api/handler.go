// Package authapi serves the /api/auth routes of the Chzzk login flow.
package authapi

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/popop098/chzzk-login-example/cmd/internal/audit"
	"github.com/popop098/chzzk-login-example/cmd/internal/auth/session"
	"github.com/popop098/chzzk-login-example/cmd/internal/auth/tokenstore"
	"github.com/popop098/chzzk-login-example/cmd/internal/chzzk"
	"github.com/popop098/chzzk-login-example/cmd/internal/telemetry"
)

// Route paths.
const (
	LoginPath    = "/api/auth/login"
	CallbackPath = "/api/auth/callback"
	LogoutPath   = "/api/auth/logout"
)

// Handler wires the auth routes to the session lifecycle and cookie codec.
type Handler struct {
	log *slog.Logger
	cfg Config

	sessions *session.Service
	cookies  tokenstore.Codec

	audit    audit.Recorder
	failures audit.FailureCounter
	metrics  *telemetry.Metrics

	now func() time.Time
}

// HandlerOption configures optional dependencies.
type HandlerOption func(*Handler)

// WithAuditRecorder records lifecycle events. Defaults to a LogRecorder.
func WithAuditRecorder(r audit.Recorder) HandlerOption {
	return func(h *Handler) {
		if r != nil {
			h.audit = r
		}
	}
}

// WithFailureCounter enables the callback failure throttle.
func WithFailureCounter(c audit.FailureCounter) HandlerOption {
	return func(h *Handler) { h.failures = c }
}

// WithMetrics counts lifecycle events.
func WithMetrics(m *telemetry.Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, sessions *session.Service, cookies tokenstore.Codec, cfg Config, opts ...HandlerOption) (*Handler, error) {
	if sessions == nil {
		return nil, errors.New("authapi: nil session service")
	}
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{
		log:      log,
		cfg:      cfg.normalized(),
		sessions: sessions,
		cookies:  cookies,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	if h.audit == nil {
		h.audit = audit.NewLogRecorder(log)
	}
	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc(LoginPath, h.handleLogin)
	mux.HandleFunc(CallbackPath, h.handleCallback)
	mux.HandleFunc(LogoutPath, h.handleLogout)
}

// handleLogin returns the authorization URL as text and sets the state cookie.
// With ?redirect=1 it redirects instead.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !allowRead(r) {
		writeMethodNotAllowed(w)
		return
	}

	now := h.now().UTC()
	auth, err := h.sessions.StartLogin(now)
	if err != nil {
		h.log.Error("auth.login.start.fail", "err", err)
		h.metrics.CountAuth("login", "error")
		writeText(w, http.StatusInternalServerError, "login is not available")
		return
	}

	h.cookies.WriteState(w, auth.StateToken, auth.ExpiresAt.Sub(now))
	h.metrics.CountAuth("login", "ok")
	h.record(r, audit.ActionLoginStarted, "", nil)

	if wantsRedirect(r) {
		w.Header().Set("Cache-Control", "no-store")
		http.Redirect(w, r, auth.URL, http.StatusFound)
		return
	}
	writeText(w, http.StatusOK, auth.URL)
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	if !allowRead(r) {
		writeMethodNotAllowed(w)
		return
	}

	ctx := r.Context()
	now := h.now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)

	if blocked, retryAfter, err := h.checkCallbackThrottle(ctx, ip, now); err != nil {
		h.log.Warn("auth.callback.throttle.fail", "err", err)
	} else if blocked {
		h.metrics.CountAuth("callback", "rate_limited")
		writeRateLimited(w, retryAfter)
		return
	}

	q := r.URL.Query()
	sealed, _ := tokenstore.ReadState(r)
	req := session.AuthorizationRequest{
		Code:       q.Get("code"),
		State:      q.Get("state"),
		StateToken: sealed,
	}

	pair, err := h.sessions.HandleCallback(ctx, now, req)
	if err != nil {
		h.callbackFailed(w, r, err)
		return
	}

	h.cookies.WritePair(w, pair.StorePair(), pair.Binding)
	h.cookies.ClearState(w)

	h.log.Info("auth.callback.ok", "expires_in", pair.ExpiresIn)
	h.metrics.CountAuth("callback", "ok")
	h.record(r, audit.ActionCallbackSuccess, "", map[string]any{"expires_in": pair.ExpiresIn})

	http.Redirect(w, r, h.cfg.LandingPath, http.StatusFound)
}

func (h *Handler) callbackFailed(w http.ResponseWriter, r *http.Request, err error) {
	providerErr := strings.TrimSpace(r.URL.Query().Get("error"))

	switch {
	case errors.Is(err, session.ErrMissingCode):
		h.log.Warn("auth.callback.missing_code", "provider_error", providerErr)
		h.metrics.CountAuth("callback", "missing_code")
		h.record(r, audit.ActionCallbackFailed, "", map[string]any{"reason": "missing_code", "provider_error": providerErr})
		writeText(w, http.StatusBadRequest, "authorization code is missing")
	case errors.Is(err, session.ErrInvalidState):
		h.log.Warn("auth.callback.invalid_state")
		h.metrics.CountAuth("callback", "invalid_state")
		h.record(r, audit.ActionCallbackFailed, "", map[string]any{"reason": "invalid_state"})
		writeText(w, http.StatusBadRequest, "login state is invalid or expired")
	default:
		attrs := []any{"err", err}
		var apiErr *chzzk.APIError
		if errors.As(err, &apiErr) {
			attrs = append(attrs, "remote_status", apiErr.Status, "remote_code", apiErr.Code, "remote_body", apiErr.Body)
		}
		h.log.Error("auth.callback.exchange.fail", attrs...)
		h.metrics.CountAuth("callback", "exchange_failed")
		h.record(r, audit.ActionCallbackFailed, "", map[string]any{"reason": "exchange_failed"})
		writeText(w, http.StatusInternalServerError, "authentication failed")
	}
}

// handleLogout expires the credential cookies. Always succeeds.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !allowRead(r) {
		writeMethodNotAllowed(w)
		return
	}

	had := tokenstore.ReadCredentials(r).AccessToken != ""
	h.cookies.ClearPair(w)

	h.metrics.CountAuth("logout", "ok")
	h.record(r, audit.ActionLogout, "", map[string]any{"had_session": had})

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, h.cfg.LandingPath, http.StatusFound)
}

func wantsRedirect(r *http.Request) bool {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("redirect"))) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
