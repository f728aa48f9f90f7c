// Package tokenstore is the cookie codec for Chzzk credentials.
//
// It only knows encoding rules. Token values are opaque and never validated here.
package tokenstore

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Cookie names.
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
	BindingCookie      = "tokenBinding"
	StateCookie        = "oauthState"
)

// StatePath scopes the login state cookie to the auth routes.
const StatePath = "/api/auth"

// Codec encodes and decodes credential cookies with fixed flags.
type Codec struct {
	// Secure is false only in local development.
	Secure   bool
	SameSite http.SameSite
	// RefreshMaxAge is the lifetime of refresh and binding cookies.
	RefreshMaxAge time.Duration
}

// Pair is the credential pair to persist.
type Pair struct {
	AccessToken  string
	RefreshToken string
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int
}

// Credentials is what a request carries back.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	Binding      string
}

// Encode builds an HTTP-only, root-scoped cookie.
// maxAgeSeconds <= 0 yields a cookie the browser discards immediately.
func (c Codec) Encode(name, value string, maxAgeSeconds int) *http.Cookie {
	return c.encode(name, value, "/", maxAgeSeconds)
}

// Serialize renders the Set-Cookie header value for Encode.
func (c Codec) Serialize(name, value string, maxAgeSeconds int) string {
	return c.Encode(name, value, maxAgeSeconds).String()
}

func (c Codec) encode(name, value, path string, maxAgeSeconds int) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    url.PathEscape(value),
		Path:     path,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	}
	if maxAgeSeconds <= 0 {
		// net/http renders MaxAge<0 as "Max-Age=0".
		ck.Value = ""
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0).UTC()
		return ck
	}
	ck.MaxAge = maxAgeSeconds
	return ck
}

// Decode looks up name among cookies. Empty values count as absent.
// Values that are not valid percent-encoding are returned unchanged.
func Decode(cookies []*http.Cookie, name string) (string, bool) {
	for _, ck := range cookies {
		if ck == nil || ck.Name != name {
			continue
		}
		raw := strings.TrimSpace(ck.Value)
		if raw == "" {
			return "", false
		}
		v, err := url.PathUnescape(raw)
		if err != nil {
			return raw, true
		}
		return v, true
	}
	return "", false
}

// WritePair sets access, refresh and binding cookies.
func (c Codec) WritePair(w http.ResponseWriter, p Pair, binding string) {
	if w == nil {
		return
	}
	refreshAge := int(c.RefreshMaxAge / time.Second)
	http.SetCookie(w, c.Encode(AccessTokenCookie, p.AccessToken, p.ExpiresIn))
	http.SetCookie(w, c.Encode(RefreshTokenCookie, p.RefreshToken, refreshAge))
	if binding != "" {
		http.SetCookie(w, c.Encode(BindingCookie, binding, refreshAge))
	}
}

// ClearPair expires every credential cookie. Safe to call when none exist.
func (c Codec) ClearPair(w http.ResponseWriter) {
	if w == nil {
		return
	}
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie, BindingCookie} {
		http.SetCookie(w, c.Encode(name, "", 0))
	}
}

// ReadCredentials extracts the credential cookies from r.
func ReadCredentials(r *http.Request) Credentials {
	if r == nil {
		return Credentials{}
	}
	cookies := r.Cookies()
	access, _ := Decode(cookies, AccessTokenCookie)
	refresh, _ := Decode(cookies, RefreshTokenCookie)
	binding, _ := Decode(cookies, BindingCookie)
	return Credentials{AccessToken: access, RefreshToken: refresh, Binding: binding}
}

// WriteState sets the sealed login state cookie.
func (c Codec) WriteState(w http.ResponseWriter, sealed string, ttl time.Duration) {
	if w == nil {
		return
	}
	http.SetCookie(w, c.encode(StateCookie, sealed, StatePath, int(ttl/time.Second)))
}

// ClearState expires the login state cookie.
func (c Codec) ClearState(w http.ResponseWriter) {
	if w == nil {
		return
	}
	http.SetCookie(w, c.encode(StateCookie, "", StatePath, 0))
}

// ReadState returns the sealed login state token, if present.
func ReadState(r *http.Request) (string, bool) {
	if r == nil {
		return "", false
	}
	return Decode(r.Cookies(), StateCookie)
}
