package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/popop098/chzzk-login-example/cmd/internal/auth/session"
	"github.com/popop098/chzzk-login-example/cmd/security/token"
)

// ErrSecurityPolicy is returned when production settings are too weak to start.
var ErrSecurityPolicy = errors.New("security policy violation")

// ValidateSecurityConfig enforces the startup policy and may fill in an
// ephemeral development secret.
//
// Missing client credentials are a configuration error in every environment.
// Outside development the session secret must be at least token.MinSecretBytes.
func ValidateSecurityConfig(cfg *Config, log *slog.Logger) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil config", session.ErrConfiguration)
	}
	if log == nil {
		log = slog.Default()
	}

	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return fmt.Errorf("%w: CHZZK_CLIENT_ID and CHZZK_CLIENT_SECRET are required", session.ErrConfiguration)
	}
	u, err := url.Parse(strings.TrimSpace(cfg.RedirectURI))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: CHZZK_REDIRECT_URI must be an absolute URL", session.ErrConfiguration)
	}
	if !cfg.IsDevelopment() && u.Scheme != "https" {
		log.Warn("security.redirect_uri.insecure", "redirect_uri", cfg.RedirectURI)
	}

	err = token.CheckSecret(cfg.SessionSecret, token.MinSecretBytes)
	switch {
	case err == nil:
	case cfg.IsDevelopment() && errors.Is(err, token.ErrSecretMissing):
		secret, rerr := token.RandomSecret(token.MinSecretBytes)
		if rerr != nil {
			return fmt.Errorf("generate development secret: %w", rerr)
		}
		cfg.SessionSecret = secret
		log.Warn("security.session_secret.ephemeral", "note", "login state and bindings reset on restart")
	case cfg.IsDevelopment():
		log.Warn("security.session_secret.short", "min_bytes", token.MinSecretBytes)
	default:
		return fmt.Errorf("%w: CHZZK_SESSION_SECRET: %v", ErrSecurityPolicy, err)
	}

	return nil
}
