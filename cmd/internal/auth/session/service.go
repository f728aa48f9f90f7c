package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/popop098/chzzk-login-example/cmd/internal/auth/tokenstore"
	"github.com/popop098/chzzk-login-example/cmd/internal/chzzk"
	"github.com/popop098/chzzk-login-example/cmd/security/token"
)

// IdentityClient is the subset of the Chzzk Open API the lifecycle uses.
type IdentityClient interface {
	ExchangeCode(ctx context.Context, code, state string) (chzzk.Token, error)
	FetchProfile(ctx context.Context, accessToken string) (chzzk.Profile, error)
	FetchChannel(ctx context.Context, channelID string) (chzzk.Channel, error)
}

// State is the lifecycle state of one browser.
type State int

const (
	StateAnonymous State = iota
	StateAuthorizing
	StateAuthenticated
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthorizing:
		return "authorizing"
	case StateAuthenticated:
		return "authenticated"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Session is the per-request view of the logged-in user.
type Session struct {
	ChannelID       string
	ChannelName     string
	ChannelImageURL string
	FollowerCount   int
	VerifiedMark    bool
}

// Authorization is the outcome of StartLogin.
type Authorization struct {
	URL string
	// State is the nonce placed on the authorization URL.
	State string
	// StateToken is the sealed nonce the caller stores client-side.
	StateToken string
	ExpiresAt  time.Time
}

// AuthorizationRequest is what the callback received.
type AuthorizationRequest struct {
	Code       string
	State      string
	StateToken string
}

// TokenPair is a successful exchange plus its binding MAC.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
	Binding      string
}

// StorePair converts the pair for the cookie codec.
func (p TokenPair) StorePair() tokenstore.Pair {
	return tokenstore.Pair{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresIn:    p.ExpiresIn,
	}
}

// Resolution is the result of ReadSession. Err is set only for StateExpired.
type Resolution struct {
	State   State
	Session *Session
	Err     error
}

// LoggedIn reports whether a Session is available for rendering.
func (r Resolution) LoggedIn() bool {
	return r.State == StateAuthenticated && r.Session != nil
}

var errBindingMismatch = errors.New("token binding mismatch")

// Service drives the lifecycle. It holds only read-only configuration and
// derived keys and is safe for concurrent use.
type Service struct {
	cfg        Config
	client     IdentityClient
	state      *stateSealer
	bindingKey []byte
}

// NewService validates cfg and derives the subkeys.
func NewService(cfg Config, client IdentityClient) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: identity client is required", ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sealer, err := newStateSealer(cfg.Secret, cfg.StateTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: state key: %v", ErrConfiguration, err)
	}
	bindingKey, err := token.DeriveKey(cfg.Secret, token.PurposeBinding)
	if err != nil {
		return nil, fmt.Errorf("%w: binding key: %v", ErrConfiguration, err)
	}

	return &Service{
		cfg:        cfg,
		client:     client,
		state:      sealer,
		bindingKey: bindingKey,
	}, nil
}

// StartLogin builds the authorization URL and a fresh sealed state.
// Nothing is persisted server-side.
func (s *Service) StartLogin(now time.Time) (Authorization, error) {
	if strings.TrimSpace(s.cfg.ClientID) == "" {
		return Authorization{}, fmt.Errorf("%w: client id is required", ErrConfiguration)
	}

	nonce, err := newNonce(now)
	if err != nil {
		return Authorization{}, fmt.Errorf("session: state nonce: %w", err)
	}
	sealed, exp := s.state.Seal(nonce, now)

	u, err := url.Parse(s.cfg.AuthorizeURL)
	if err != nil {
		return Authorization{}, fmt.Errorf("%w: authorize url: %v", ErrConfiguration, err)
	}
	q := u.Query()
	q.Set("clientId", s.cfg.ClientID)
	q.Set("redirectUri", s.cfg.RedirectURI)
	q.Set("state", nonce)
	u.RawQuery = q.Encode()

	return Authorization{
		URL:        u.String(),
		State:      nonce,
		StateToken: sealed,
		ExpiresAt:  exp,
	}, nil
}

// HandleCallback verifies the state and exchanges the code.
//
// Errors are ErrMissingCode, ErrInvalidState, or ErrAuthenticationFailed
// wrapping the remote cause. The remote client is not called unless the
// code and state are acceptable.
func (s *Service) HandleCallback(ctx context.Context, now time.Time, req AuthorizationRequest) (TokenPair, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return TokenPair{}, ErrMissingCode
	}
	if err := s.verifyState(req.State, req.StateToken, now); err != nil {
		return TokenPair{}, err
	}

	tok, err := s.client.ExchangeCode(ctx, code, req.State)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}

	binding, err := s.Binding(tok.AccessToken, tok.RefreshToken)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: binding: %w", ErrAuthenticationFailed, err)
	}

	return TokenPair{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    int(tok.ExpiresIn),
		Binding:      binding,
	}, nil
}

func (s *Service) verifyState(state, sealed string, now time.Time) error {
	if state == "" || sealed == "" {
		return ErrInvalidState
	}
	nonce, err := s.state.Open(sealed, now)
	if err != nil {
		return ErrInvalidState
	}
	if !token.Equal(nonce, state) {
		return ErrInvalidState
	}
	return nil
}

// ReadSession re-derives the Session from stored credentials.
//
// No access token means Anonymous with no remote calls. A missing or
// mismatched binding means Expired with no remote calls. Otherwise profile
// then channel are fetched in order; any failure yields Expired with a
// *ResolutionError. Cookies are never touched here.
func (s *Service) ReadSession(ctx context.Context, creds tokenstore.Credentials) Resolution {
	if creds.AccessToken == "" {
		return Resolution{State: StateAnonymous}
	}

	want, err := s.Binding(creds.AccessToken, creds.RefreshToken)
	if err != nil {
		return expired(StageBinding, err)
	}
	if !token.Equal(want, creds.Binding) {
		return expired(StageBinding, errBindingMismatch)
	}

	profile, err := s.client.FetchProfile(ctx, creds.AccessToken)
	if err != nil {
		return expired(StageProfile, err)
	}

	channel, err := s.client.FetchChannel(ctx, profile.ChannelID)
	if err != nil {
		return expired(StageChannel, err)
	}

	sess := &Session{
		ChannelID:       profile.ChannelID,
		ChannelName:     profile.ChannelName,
		ChannelImageURL: channel.ChannelImageURL,
		FollowerCount:   max(channel.FollowerCount, 0),
		VerifiedMark:    channel.VerifiedMark,
	}
	if sess.ChannelName == "" {
		sess.ChannelName = channel.ChannelName
	}
	return Resolution{State: StateAuthenticated, Session: sess}
}

// Binding returns the MAC tying an access token to its refresh token.
func (s *Service) Binding(accessToken, refreshToken string) (string, error) {
	return token.BindHex(s.bindingKey, accessToken, refreshToken)
}

func expired(stage string, err error) Resolution {
	return Resolution{
		State: StateExpired,
		Err:   &ResolutionError{Stage: stage, Err: err},
	}
}
