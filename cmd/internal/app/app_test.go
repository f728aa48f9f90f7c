package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRuntimeBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "explicit localhost", in: "127.0.0.1:3000", want: "http://127.0.0.1:3000"},
		{name: "bind all v4", in: "0.0.0.0:3000", want: "http://127.0.0.1:3000"},
		{name: "bind all v6", in: "[::]:9090", want: "http://127.0.0.1:9090"},
		{name: "port only", in: ":3000", want: "http://127.0.0.1:3000"},
		{name: "ipv6 host", in: "[2001:db8::1]:9090", want: "http://[2001:db8::1]:9090"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := runtimeBaseURL(tc.in)
			if got != tc.want {
				t.Fatalf("runtimeBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
			}
		})
	}
}

func testConfig() Config {
	return Config{
		Env:              EnvDevelopment,
		HTTPAddr:         "127.0.0.1:0",
		ClientID:         "client-abc",
		ClientSecret:     "secret-xyz",
		RedirectURI:      "http://localhost:3000/api/auth/callback",
		AuthorizeURL:     "https://chzzk.naver.com/account-interlock",
		APIBaseURL:       "http://127.0.0.1:1",
		SessionSecret:    strings.Repeat("s", 32),
		CookieSameSite:   "lax",
		RefreshCookieTTL: 720 * time.Hour,
		StateTTL:         10 * time.Minute,
		MetricsEnabled:   true,
	}
}

func newTestApp(t *testing.T, cfg Config) *App {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func TestApp_Routes(t *testing.T) {
	a := newTestApp(t, testConfig())

	cases := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{path: "/healthz", wantStatus: http.StatusOK, wantBody: "ok"},
		{path: "/readyz", wantStatus: http.StatusOK, wantBody: "ready"},
		{path: "/metrics", wantStatus: http.StatusOK, wantBody: "go_goroutines"},
		{path: "/", wantStatus: http.StatusOK, wantBody: "로그인이 필요합니다."},
		{path: "/api/auth/login", wantStatus: http.StatusOK, wantBody: "https://chzzk.naver.com/account-interlock?"},
		{path: "/missing", wantStatus: http.StatusNotFound},
	}

	for _, tc := range cases {
		rr := httptest.NewRecorder()
		a.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if rr.Code != tc.wantStatus {
			t.Fatalf("%s: status=%d want %d", tc.path, rr.Code, tc.wantStatus)
		}
		if tc.wantBody != "" && !strings.Contains(rr.Body.String(), tc.wantBody) {
			t.Fatalf("%s: body missing %q", tc.path, tc.wantBody)
		}
		if rr.Header().Get("X-Frame-Options") != "DENY" {
			t.Fatalf("%s: missing security headers", tc.path)
		}
	}
}

func TestApp_MetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.MetricsEnabled = false
	a := newTestApp(t, cfg)

	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	// Falls through to the landing page handler, which only serves "/".
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with metrics disabled, got %d", rr.Code)
	}
}

func TestApp_ReadinessRequiresDB(t *testing.T) {
	cfg := testConfig()
	cfg.ReadinessRequireDB = true
	a := newTestApp(t, cfg)

	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestApp_NewFailsWithoutClientID(t *testing.T) {
	cfg := testConfig()
	cfg.ClientID = ""
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := New(context.Background(), cfg, log); err == nil {
		t.Fatalf("expected configuration error")
	}
}
