// Package web renders the landing page from the resolved login session.
package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/popop098/chzzk-login-example/cmd/internal/audit"
	"github.com/popop098/chzzk-login-example/cmd/internal/auth/session"
	"github.com/popop098/chzzk-login-example/cmd/internal/auth/tokenstore"
	"github.com/popop098/chzzk-login-example/cmd/internal/telemetry"
)

//go:embed templates/*.html
var templateFS embed.FS

// ImageHost is the only host channel images are rendered from.
const ImageHost = "nng-phinf.pstatic.net"

const auditTimeout = 2 * time.Second

// SessionReader resolves a Session from request credentials.
type SessionReader interface {
	ReadSession(ctx context.Context, creds tokenstore.Credentials) session.Resolution
}

// ViewModel is the data home.html renders.
type ViewModel struct {
	LoggedIn        bool
	ChannelID       string
	ChannelName     string
	ChannelImageURL string
	FollowerCount   int
	VerifiedMark    bool

	LoginPath  string
	LogoutPath string
}

// Paths are the auth routes the page links to.
type Paths struct {
	Login  string
	Logout string
}

// Handler serves GET /.
type Handler struct {
	log      *slog.Logger
	sessions SessionReader
	paths    Paths
	tmpl     *template.Template
	audit    audit.Recorder
	metrics  *telemetry.Metrics
}

// Option configures optional dependencies.
type Option func(*Handler)

// WithAuditRecorder records degraded (expired) sessions.
func WithAuditRecorder(r audit.Recorder) Option {
	return func(h *Handler) { h.audit = r }
}

// WithMetrics counts session resolutions.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// NewHandler parses the embedded templates.
func NewHandler(log *slog.Logger, sessions SessionReader, paths Paths, opts ...Option) (*Handler, error) {
	if sessions == nil {
		return nil, errors.New("web: nil session reader")
	}
	if log == nil {
		log = slog.Default()
	}
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	h := &Handler{log: log, sessions: sessions, paths: paths, tmpl: tmpl}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Register wires the landing page onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/", h.handleHome)
}

func (h *Handler) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	res := h.sessions.ReadSession(r.Context(), tokenstore.ReadCredentials(r))
	h.metrics.CountAuth("read_session", res.State.String())
	if res.Err != nil {
		h.onExpired(r, res.Err)
	}

	vm := h.viewModel(res)

	var buf bytes.Buffer
	if err := h.tmpl.ExecuteTemplate(&buf, "home.html", vm); err != nil {
		h.log.Error("web.home.render.fail", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) onExpired(r *http.Request, err error) {
	stage := ""
	var rerr *session.ResolutionError
	if errors.As(err, &rerr) {
		stage = rerr.Stage
	}
	h.log.Warn("web.session.resolve.fail", "stage", stage, "err", err)

	if h.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), auditTimeout)
	defer cancel()
	if aerr := h.audit.Record(ctx, audit.Event{
		Action:    audit.ActionSessionExpired,
		UserAgent: r.UserAgent(),
		Meta:      map[string]any{"stage": stage},
	}); aerr != nil {
		h.log.Error("web.audit.insert.fail", "err", aerr)
	}
}

func (h *Handler) viewModel(res session.Resolution) ViewModel {
	vm := ViewModel{
		LoginPath:  h.paths.Login,
		LogoutPath: h.paths.Logout,
	}
	if !res.LoggedIn() {
		return vm
	}
	s := res.Session
	vm.LoggedIn = true
	vm.ChannelID = s.ChannelID
	vm.ChannelName = s.ChannelName
	vm.ChannelImageURL = allowedImage(s.ChannelImageURL)
	vm.FollowerCount = s.FollowerCount
	vm.VerifiedMark = s.VerifiedMark
	return vm
}

// allowedImage returns raw only for https URLs on ImageHost.
func allowedImage(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || !strings.EqualFold(u.Hostname(), ImageHost) {
		return ""
	}
	return u.String()
}
