package tokenstore

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSerialize_AccessTokenScenario(t *testing.T) {
	t.Parallel()

	c := Codec{Secure: false}
	got := c.Serialize(AccessTokenCookie, "A1", 86400)

	for _, want := range []string{"accessToken=A1", "Max-Age=86400", "HttpOnly", "Path=/"} {
		if !strings.Contains(got, want) {
			t.Fatalf("Set-Cookie %q missing %q", got, want)
		}
	}
	if strings.Contains(got, "Secure") {
		t.Fatalf("development codec must not set Secure: %q", got)
	}

	secure := Codec{Secure: true}.Serialize(AccessTokenCookie, "A1", 86400)
	if !strings.Contains(secure, "Secure") {
		t.Fatalf("production codec must set Secure: %q", secure)
	}
}

func TestEncode_NonPositiveMaxAgeExpires(t *testing.T) {
	t.Parallel()

	c := Codec{Secure: true}
	for _, age := range []int{0, -1, -3600} {
		got := c.Serialize(RefreshTokenCookie, "R1", age)
		if !strings.Contains(got, "Max-Age=0") {
			t.Fatalf("maxAge=%d: expected Max-Age=0 in %q", age, got)
		}
		if !strings.Contains(got, "refreshToken=;") {
			t.Fatalf("maxAge=%d: expected empty value in %q", age, got)
		}
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	t.Parallel()

	values := []string{
		"A1",
		"eyJhbGciOi.JIUzI1NiJ9.sig-_",
		"with space; and=semicolon",
		`quote"back\slash`,
		"한글 토큰",
		"%41%zz",
		"plus+slash/comma,",
		string([]byte{0x00, 0xff, 0x7f}),
	}

	c := Codec{Secure: true}
	for _, v := range values {
		rr := httptest.NewRecorder()
		http.SetCookie(rr, c.Encode(AccessTokenCookie, v, 60))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		for _, ck := range rr.Result().Cookies() {
			req.AddCookie(ck)
		}

		got, ok := Decode(req.Cookies(), AccessTokenCookie)
		if !ok {
			t.Fatalf("value %q: cookie not found after round trip", v)
		}
		if got != v {
			t.Fatalf("round trip mismatch: got %q want %q", got, v)
		}
	}
}

func TestDecode_MissingAndEmpty(t *testing.T) {
	t.Parallel()

	cookies := []*http.Cookie{{Name: AccessTokenCookie, Value: ""}}
	if _, ok := Decode(cookies, AccessTokenCookie); ok {
		t.Fatalf("empty cookie must be treated as absent")
	}
	if _, ok := Decode(nil, RefreshTokenCookie); ok {
		t.Fatalf("missing cookie must be absent")
	}
}

func TestDecode_InvalidEscapeReturnsRaw(t *testing.T) {
	t.Parallel()

	cookies := []*http.Cookie{{Name: AccessTokenCookie, Value: "bad%zzvalue"}}
	got, ok := Decode(cookies, AccessTokenCookie)
	if !ok || got != "bad%zzvalue" {
		t.Fatalf("expected raw value, got %q ok=%v", got, ok)
	}
}

func TestWritePairAndClearPair(t *testing.T) {
	t.Parallel()

	c := Codec{Secure: true, SameSite: http.SameSiteLaxMode, RefreshMaxAge: 30 * 24 * time.Hour}

	rr := httptest.NewRecorder()
	c.WritePair(rr, Pair{AccessToken: "A1", RefreshToken: "R1", ExpiresIn: 86400}, "mac")

	got := map[string]*http.Cookie{}
	for _, ck := range rr.Result().Cookies() {
		got[ck.Name] = ck
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 cookies, got %d", len(got))
	}
	if got[AccessTokenCookie].MaxAge != 86400 {
		t.Fatalf("access max-age=%d", got[AccessTokenCookie].MaxAge)
	}
	if got[RefreshTokenCookie].MaxAge != 30*24*60*60 {
		t.Fatalf("refresh max-age=%d", got[RefreshTokenCookie].MaxAge)
	}
	for name, ck := range got {
		if !ck.HttpOnly {
			t.Fatalf("%s must be HttpOnly", name)
		}
		if ck.Path != "/" {
			t.Fatalf("%s path=%q", name, ck.Path)
		}
	}

	cleared := httptest.NewRecorder()
	c.ClearPair(cleared)
	headers := cleared.Result().Header.Values("Set-Cookie")
	if len(headers) != 3 {
		t.Fatalf("expected 3 expiring cookies, got %d", len(headers))
	}
	for _, h := range headers {
		if !strings.Contains(h, "Max-Age=0") {
			t.Fatalf("expected expired cookie, got %q", h)
		}
	}
}

func TestStateCookieScopedToAuthRoutes(t *testing.T) {
	t.Parallel()

	c := Codec{Secure: true}
	rr := httptest.NewRecorder()
	c.WriteState(rr, "v4.local.sealed", 10*time.Minute)

	cookies := rr.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	ck := cookies[0]
	if ck.Name != StateCookie || ck.Path != StatePath || ck.MaxAge != 600 {
		t.Fatalf("unexpected state cookie: %+v", ck)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/callback", nil)
	req.AddCookie(ck)
	v, ok := ReadState(req)
	if !ok || v != "v4.local.sealed" {
		t.Fatalf("ReadState=%q ok=%v", v, ok)
	}
}

func TestReadCredentials(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "A1"})
	req.AddCookie(&http.Cookie{Name: RefreshTokenCookie, Value: "R1"})
	req.AddCookie(&http.Cookie{Name: BindingCookie, Value: "m"})

	got := ReadCredentials(req)
	if got != (Credentials{AccessToken: "A1", RefreshToken: "R1", Binding: "m"}) {
		t.Fatalf("unexpected credentials: %+v", got)
	}
}
