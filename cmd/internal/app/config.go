package app

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	authapi "github.com/popop098/chzzk-login-example/cmd/internal/auth/api"
	"github.com/popop098/chzzk-login-example/cmd/internal/auth/session"
	"github.com/popop098/chzzk-login-example/cmd/internal/auth/tokenstore"
	"github.com/popop098/chzzk-login-example/cmd/internal/chzzk"
	"github.com/popop098/chzzk-login-example/cmd/internal/telemetry"
)

// EnvDevelopment turns off the Secure cookie flag and relaxes the secret policy.
const EnvDevelopment = "development"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	Env       string `env:"CHZZK_ENV"        envDefault:"production"`
	HTTPAddr  string `env:"CHZZK_HTTP_ADDR"  envDefault:"0.0.0.0:3000"`
	LogLevel  string `env:"CHZZK_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"CHZZK_LOG_FORMAT" envDefault:"json"`

	ReadHeaderTimeout time.Duration `env:"CHZZK_HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"CHZZK_HTTP_READ_TIMEOUT"        envDefault:"15s"`
	WriteTimeout      time.Duration `env:"CHZZK_HTTP_WRITE_TIMEOUT"       envDefault:"30s"`
	IdleTimeout       time.Duration `env:"CHZZK_HTTP_IDLE_TIMEOUT"        envDefault:"60s"`
	MaxHeaderBytes    int           `env:"CHZZK_HTTP_MAX_HEADER_BYTES"    envDefault:"1048576"`

	DatabaseURL string `env:"CHZZK_DATABASE_URL"`
	DBMaxConns  int32  `env:"CHZZK_DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"CHZZK_DB_MIN_CONNS" envDefault:"0"`

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool `env:"CHZZK_READINESS_REQUIRE_DB" envDefault:"false"`

	ClientID      string        `env:"CHZZK_CLIENT_ID"`
	ClientSecret  string        `env:"CHZZK_CLIENT_SECRET"`
	RedirectURI   string        `env:"CHZZK_REDIRECT_URI"   envDefault:"http://localhost:3000/api/auth/callback"`
	AuthorizeURL  string        `env:"CHZZK_AUTHORIZE_URL"  envDefault:"https://chzzk.naver.com/account-interlock"`
	APIBaseURL    string        `env:"CHZZK_API_BASE_URL"   envDefault:"https://openapi.chzzk.naver.com"`
	RemoteTimeout time.Duration `env:"CHZZK_REMOTE_TIMEOUT" envDefault:"5s"`

	SessionSecret    string        `env:"CHZZK_SESSION_SECRET"`
	CookieSameSite   string        `env:"CHZZK_COOKIE_SAMESITE"    envDefault:"lax"`
	RefreshCookieTTL time.Duration `env:"CHZZK_REFRESH_COOKIE_TTL" envDefault:"720h"`
	StateTTL         time.Duration `env:"CHZZK_STATE_TTL"          envDefault:"10m"`
	TrustProxy       bool          `env:"CHZZK_TRUST_PROXY"        envDefault:"false"`

	CallbackIPMax    int           `env:"CHZZK_CALLBACK_IP_MAX"    envDefault:"20"`
	CallbackIPWindow time.Duration `env:"CHZZK_CALLBACK_IP_WINDOW" envDefault:"5m"`

	MetricsEnabled bool   `env:"CHZZK_METRICS_ENABLED" envDefault:"true"`
	OTelEnabled    bool   `env:"CHZZK_OTEL_ENABLED"    envDefault:"false"`
	OTelEndpoint   string `env:"CHZZK_OTEL_ENDPOINT"`
}

// LoadConfig reads an optional .env file, then parses the environment.
// Variables already set in the environment win over .env.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	return cfg, nil
}

// IsDevelopment reports CHZZK_ENV=development.
func (c Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// SessionConfig derives the session lifecycle settings.
func (c Config) SessionConfig() session.Config {
	sc := session.DefaultConfig()
	sc.ClientID = strings.TrimSpace(c.ClientID)
	sc.RedirectURI = strings.TrimSpace(c.RedirectURI)
	if v := strings.TrimSpace(c.AuthorizeURL); v != "" {
		sc.AuthorizeURL = v
	}
	if c.StateTTL > 0 {
		sc.StateTTL = c.StateTTL
	}
	sc.Secret = c.SessionSecret
	return sc
}

// CookieCodec derives the credential cookie flags.
func (c Config) CookieCodec() tokenstore.Codec {
	sameSite := authapi.ParseSameSite(c.CookieSameSite)
	secure := !c.IsDevelopment()
	// Browsers reject SameSite=None without Secure.
	if sameSite == http.SameSiteNoneMode {
		secure = true
	}
	return tokenstore.Codec{
		Secure:        secure,
		SameSite:      sameSite,
		RefreshMaxAge: c.RefreshCookieTTL,
	}
}

// ChzzkConfig derives the Open API client settings.
func (c Config) ChzzkConfig() chzzk.Config {
	return chzzk.Config{
		BaseURL:      c.APIBaseURL,
		ClientID:     strings.TrimSpace(c.ClientID),
		ClientSecret: strings.TrimSpace(c.ClientSecret),
		Timeout:      c.RemoteTimeout,
	}
}

// AuthAPIConfig derives the auth route settings.
func (c Config) AuthAPIConfig() authapi.Config {
	ac := authapi.DefaultConfig()
	ac.StateTTL = c.StateTTL
	ac.TrustProxy = c.TrustProxy
	ac.CallbackIPMax = c.CallbackIPMax
	ac.CallbackIPWindow = c.CallbackIPWindow
	return ac
}

// TracingConfig derives the OpenTelemetry settings.
func (c Config) TracingConfig() telemetry.TracingConfig {
	return telemetry.TracingConfig{
		ServiceName: "chzzk-login",
		Endpoint:    c.OTelEndpoint,
		Enabled:     c.OTelEnabled,
	}
}
