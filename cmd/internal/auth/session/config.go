package session

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/popop098/chzzk-login-example/cmd/security/token"
)

// DefaultAuthorizeURL is the Chzzk account interlock page.
const DefaultAuthorizeURL = "https://chzzk.naver.com/account-interlock"

// Config holds what the lifecycle needs beyond the remote client.
type Config struct {
	// ClientID is sent as clientId on the authorization URL.
	ClientID string

	// RedirectURI is where Chzzk sends the browser back (our callback).
	RedirectURI string

	// AuthorizeURL is the provider authorization endpoint.
	AuthorizeURL string

	// StateTTL bounds how long a login attempt may take.
	StateTTL time.Duration

	// Secret is the process master secret. Subkeys for the state token and the
	// token binding are derived from it.
	Secret string
}

// DefaultConfig returns defaults for everything except credentials.
func DefaultConfig() Config {
	return Config{
		AuthorizeURL: DefaultAuthorizeURL,
		StateTTL:     10 * time.Minute,
	}
}

// Validate reports ErrConfiguration (wrapped with the offending field).
func (c Config) Validate() error {
	if strings.TrimSpace(c.ClientID) == "" {
		return fmt.Errorf("%w: client id is required", ErrConfiguration)
	}
	if strings.TrimSpace(c.RedirectURI) == "" {
		return fmt.Errorf("%w: redirect uri is required", ErrConfiguration)
	}
	u, err := url.Parse(strings.TrimSpace(c.AuthorizeURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: authorize url %q is not absolute", ErrConfiguration, c.AuthorizeURL)
	}
	if c.StateTTL <= 0 {
		return fmt.Errorf("%w: state ttl must be positive", ErrConfiguration)
	}
	if err := token.CheckSecret(c.Secret, 0); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return nil
}
