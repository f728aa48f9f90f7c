package authapi

import (
	"net/http"
	"strings"
	"time"
)

// Config controls auth route behavior.
type Config struct {
	// LandingPath is where callback and logout redirect to.
	LandingPath string

	// StateTTL is the lifetime of the oauthState cookie.
	StateTTL time.Duration

	// TrustProxy reads the client IP from X-Forwarded-For / X-Real-IP.
	TrustProxy bool

	// CallbackIPMax failed callbacks per CallbackIPWindow from one IP are
	// answered with 429. Zero disables the throttle. Needs a FailureCounter.
	CallbackIPMax    int
	CallbackIPWindow time.Duration
}

// DefaultConfig returns the route defaults.
func DefaultConfig() Config {
	return Config{
		LandingPath:      "/",
		StateTTL:         10 * time.Minute,
		CallbackIPMax:    20,
		CallbackIPWindow: 5 * time.Minute,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if strings.TrimSpace(c.LandingPath) == "" {
		c.LandingPath = def.LandingPath
	}
	if c.StateTTL <= 0 {
		c.StateTTL = def.StateTTL
	}
	if c.CallbackIPMax < 0 {
		c.CallbackIPMax = 0
	}
	if c.CallbackIPWindow <= 0 {
		c.CallbackIPWindow = def.CallbackIPWindow
	}
	return c
}

// ParseSameSite maps a config string to http.SameSite. Unknown values fall back to Lax.
func ParseSameSite(raw string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}
