// Package main provides a CI-friendly HTTP smoke test for the Chzzk login server.
//
// It validates, without a real Chzzk account:
//   - /healthz and /readyz
//   - logged-out landing page
//   - /api/auth/login returns an authorization URL and a state cookie
//   - callback rejects a missing code and a forged state without setting cookies
//   - logout expires every credential cookie and redirects to /
//   - auth routes reject non-GET methods
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const maxReadBytes = 1 << 20

var credentialCookies = []string{"accessToken", "refreshToken", "tokenBinding"}

func main() {
	var (
		baseURL      = flag.String("url", "http://127.0.0.1:3000", "Server base URL")
		timeout      = flag.Duration("timeout", 5*time.Second, "Per-step timeout")
		requireReady = flag.Bool("require-ready", true, "Fail when /readyz is not 200")
		verbose      = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	base, err := validateBaseURL(*baseURL)
	if err != nil {
		fatalf("invalid -url: %v", err)
	}

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	root := context.Background()

	res, body := mustDo(root, client, http.MethodGet, base+"/healthz", nil, *timeout)
	expectStatus("healthz", res, http.StatusOK)

	res, _ = mustDo(root, client, http.MethodGet, base+"/readyz", nil, *timeout)
	if res.StatusCode != http.StatusOK {
		if *requireReady {
			fatalf("readyz: status=%d", res.StatusCode)
		}
		fmt.Printf("WARN: readyz status=%d\n", res.StatusCode)
	}

	res, body = mustDo(root, client, http.MethodGet, base+"/", nil, *timeout)
	expectStatus("home", res, http.StatusOK)
	if !strings.Contains(body, "/api/auth/login") {
		fatalf("home: logged-out view does not link the login route")
	}

	res, body = mustDo(root, client, http.MethodGet, base+"/api/auth/login", nil, *timeout)
	expectStatus("login", res, http.StatusOK)
	authURL, err := url.Parse(strings.TrimSpace(body))
	if err != nil || authURL.Scheme == "" {
		fatalf("login: body is not a URL: %q", body)
	}
	state := authURL.Query().Get("state")
	if state == "" || authURL.Query().Get("clientId") == "" {
		fatalf("login: authorization URL missing clientId/state: %s", authURL)
	}
	stateCookie := findCookie(res, "oauthState")
	if stateCookie == nil || !stateCookie.HttpOnly {
		fatalf("login: missing HttpOnly oauthState cookie")
	}
	if *verbose {
		fmt.Printf("authorize: %s\n", authURL)
	}

	res, _ = mustDo(root, client, http.MethodGet, base+"/api/auth/callback?state="+url.QueryEscape(state), []*http.Cookie{stateCookie}, *timeout)
	expectStatus("callback missing code", res, http.StatusBadRequest)
	expectNoCookies("callback missing code", res)

	res, _ = mustDo(root, client, http.MethodGet, base+"/api/auth/callback?code=smoke&state=forged", []*http.Cookie{stateCookie}, *timeout)
	expectStatus("callback forged state", res, http.StatusBadRequest)
	expectNoCookies("callback forged state", res)

	res, _ = mustDo(root, client, http.MethodGet, base+"/api/auth/logout", nil, *timeout)
	expectStatus("logout", res, http.StatusFound)
	if loc := res.Header.Get("Location"); loc != "/" {
		fatalf("logout: location=%q want /", loc)
	}
	for _, name := range credentialCookies {
		c := findCookie(res, name)
		if c == nil || c.MaxAge >= 0 || c.Value != "" {
			fatalf("logout: %s not expired", name)
		}
	}

	for _, path := range []string{"/api/auth/login", "/api/auth/callback", "/api/auth/logout"} {
		res, _ = mustDo(root, client, http.MethodPost, base+path, nil, *timeout)
		expectStatus("POST "+path, res, http.StatusMethodNotAllowed)
	}

	fmt.Printf("OK: base=%s state=%s\n", base, state)
}

func validateBaseURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", errors.New("missing host")
	}
	return strings.TrimRight(u.String(), "/"), nil
}

func mustDo(parent context.Context, client *http.Client, method, target string, cookies []*http.Cookie, stepTimeout time.Duration) (*http.Response, string) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		fatalf("%s %s: %v", method, target, err)
	}
	for _, c := range cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	res, err := client.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, target, err)
	}
	defer func() { _ = res.Body.Close() }()

	b, err := io.ReadAll(io.LimitReader(res.Body, maxReadBytes))
	if err != nil {
		fatalf("%s %s: read body: %v", method, target, err)
	}
	return res, string(b)
}

func expectStatus(step string, res *http.Response, want int) {
	if res.StatusCode != want {
		fatalf("%s: status=%d want %d", step, res.StatusCode, want)
	}
}

func expectNoCookies(step string, res *http.Response) {
	if n := len(res.Header.Values("Set-Cookie")); n != 0 {
		fatalf("%s: expected no cookies, got %d", step, n)
	}
}

func findCookie(res *http.Response, name string) *http.Cookie {
	for _, c := range res.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
