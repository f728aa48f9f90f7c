package session

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/popop098/chzzk-login-example/cmd/internal/auth/tokenstore"
	"github.com/popop098/chzzk-login-example/cmd/internal/chzzk"
)

type stubClient struct {
	mu    sync.Mutex
	calls []string

	token    chzzk.Token
	tokenErr error

	profile    chzzk.Profile
	profileErr error

	channel    chzzk.Channel
	channelErr error

	gotCode, gotState, gotAccess, gotChannelID string
}

func (c *stubClient) record(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, op)
}

func (c *stubClient) ExchangeCode(_ context.Context, code, state string) (chzzk.Token, error) {
	c.record(chzzk.OpExchangeCode)
	c.gotCode, c.gotState = code, state
	return c.token, c.tokenErr
}

func (c *stubClient) FetchProfile(_ context.Context, accessToken string) (chzzk.Profile, error) {
	c.record(chzzk.OpFetchProfile)
	c.gotAccess = accessToken
	return c.profile, c.profileErr
}

func (c *stubClient) FetchChannel(_ context.Context, channelID string) (chzzk.Channel, error) {
	c.record(chzzk.OpFetchChannel)
	c.gotChannelID = channelID
	return c.channel, c.channelErr
}

func newTestService(t *testing.T, client IdentityClient) *Service {
	t.Helper()
	svc, err := NewService(validConfig(), client)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestNewService_Config(t *testing.T) {
	if _, err := NewService(validConfig(), nil); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for nil client, got %v", err)
	}
	cfg := validConfig()
	cfg.ClientID = ""
	if _, err := NewService(cfg, &stubClient{}); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for missing client id, got %v", err)
	}
}

func TestStartLogin_BuildsAuthorizationURL(t *testing.T) {
	client := &stubClient{}
	svc := newTestService(t, client)

	now := time.Now().UTC()
	auth, err := svc.StartLogin(now)
	if err != nil {
		t.Fatalf("StartLogin: %v", err)
	}

	u, err := url.Parse(auth.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if got := u.Scheme + "://" + u.Host + u.Path; got != DefaultAuthorizeURL {
		t.Fatalf("endpoint mismatch: %q", got)
	}
	q := u.Query()
	if q.Get("clientId") != "client-abc" {
		t.Fatalf("clientId mismatch: %q", q.Get("clientId"))
	}
	if q.Get("redirectUri") != "http://localhost:3000/api/auth/callback" {
		t.Fatalf("redirectUri mismatch: %q", q.Get("redirectUri"))
	}
	if q.Get("state") == "" || q.Get("state") != auth.State {
		t.Fatalf("state mismatch: %q vs %q", q.Get("state"), auth.State)
	}
	if auth.StateToken == "" {
		t.Fatalf("expected sealed state token")
	}
	if !auth.ExpiresAt.After(now) {
		t.Fatalf("expected expiry after now")
	}
	if len(client.calls) != 0 {
		t.Fatalf("StartLogin must not call the remote: %v", client.calls)
	}

	again, err := svc.StartLogin(now)
	if err != nil {
		t.Fatalf("StartLogin again: %v", err)
	}
	if again.State == auth.State {
		t.Fatalf("expected a fresh nonce per login")
	}
}

func TestHandleCallback_Success(t *testing.T) {
	client := &stubClient{token: chzzk.Token{AccessToken: "A1", RefreshToken: "R1", ExpiresIn: 86400}}
	svc := newTestService(t, client)

	now := time.Now().UTC()
	auth, _ := svc.StartLogin(now)

	pair, err := svc.HandleCallback(context.Background(), now.Add(time.Second), AuthorizationRequest{
		Code:       "C1",
		State:      auth.State,
		StateToken: auth.StateToken,
	})
	if err != nil {
		t.Fatalf("HandleCallback: %v", err)
	}
	if client.gotCode != "C1" || client.gotState != auth.State {
		t.Fatalf("exchange args mismatch: code=%q state=%q", client.gotCode, client.gotState)
	}

	wantBinding, _ := svc.Binding("A1", "R1")
	want := TokenPair{AccessToken: "A1", RefreshToken: "R1", ExpiresIn: 86400, Binding: wantBinding}
	if diff := cmp.Diff(want, pair); diff != "" {
		t.Fatalf("pair mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(tokenstore.Pair{AccessToken: "A1", RefreshToken: "R1", ExpiresIn: 86400}, pair.StorePair()); diff != "" {
		t.Fatalf("store pair mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleCallback_Failures(t *testing.T) {
	now := time.Now().UTC()
	remoteErr := &chzzk.APIError{Op: chzzk.OpExchangeCode, Status: 401, Message: "invalid code"}

	cases := []struct {
		name       string
		client     *stubClient
		req        func(Authorization) AuthorizationRequest
		at         time.Time
		want       error
		wantRemote bool
	}{
		{
			name:   "missing code",
			client: &stubClient{},
			req: func(a Authorization) AuthorizationRequest {
				return AuthorizationRequest{State: a.State, StateToken: a.StateToken}
			},
			want: ErrMissingCode,
		},
		{
			name:   "missing state cookie",
			client: &stubClient{},
			req: func(a Authorization) AuthorizationRequest {
				return AuthorizationRequest{Code: "C1", State: a.State}
			},
			want: ErrInvalidState,
		},
		{
			name:   "state mismatch",
			client: &stubClient{},
			req: func(a Authorization) AuthorizationRequest {
				return AuthorizationRequest{Code: "C1", State: "forged", StateToken: a.StateToken}
			},
			want: ErrInvalidState,
		},
		{
			name:   "state expired",
			client: &stubClient{},
			req: func(a Authorization) AuthorizationRequest {
				return AuthorizationRequest{Code: "C1", State: a.State, StateToken: a.StateToken}
			},
			at:   now.Add(11 * time.Minute),
			want: ErrInvalidState,
		},
		{
			name:   "remote rejects code",
			client: &stubClient{tokenErr: remoteErr},
			req: func(a Authorization) AuthorizationRequest {
				return AuthorizationRequest{Code: "bad", State: a.State, StateToken: a.StateToken}
			},
			want:       ErrAuthenticationFailed,
			wantRemote: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestService(t, tc.client)
			auth, err := svc.StartLogin(now)
			if err != nil {
				t.Fatalf("StartLogin: %v", err)
			}
			at := tc.at
			if at.IsZero() {
				at = now
			}

			_, err = svc.HandleCallback(context.Background(), at, tc.req(auth))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if remote := len(tc.client.calls) > 0; remote != tc.wantRemote {
				t.Fatalf("remote called=%v, want %v (%v)", remote, tc.wantRemote, tc.client.calls)
			}
		})
	}
}

func TestHandleCallback_WrapsRemoteCause(t *testing.T) {
	cause := &chzzk.APIError{Op: chzzk.OpExchangeCode, Status: 401}
	svc := newTestService(t, &stubClient{tokenErr: cause})
	now := time.Now().UTC()
	auth, _ := svc.StartLogin(now)

	_, err := svc.HandleCallback(context.Background(), now, AuthorizationRequest{Code: "bad", State: auth.State, StateToken: auth.StateToken})

	var apiErr *chzzk.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 401 {
		t.Fatalf("expected wrapped APIError, got %v", err)
	}
}

func TestReadSession_NoAccessTokenIsAnonymous(t *testing.T) {
	client := &stubClient{}
	svc := newTestService(t, client)

	res := svc.ReadSession(context.Background(), tokenstore.Credentials{})
	if res.State != StateAnonymous || res.Session != nil || res.Err != nil {
		t.Fatalf("unexpected resolution: %+v", res)
	}
	if len(client.calls) != 0 {
		t.Fatalf("expected zero remote calls, got %v", client.calls)
	}
}

func TestReadSession_Authenticated(t *testing.T) {
	client := &stubClient{
		profile: chzzk.Profile{ChannelID: "ch1", ChannelName: "Alice"},
		channel: chzzk.Channel{ChannelID: "ch1", ChannelImageURL: "https://nng-phinf.pstatic.net/a.png", FollowerCount: 1200, VerifiedMark: true},
	}
	svc := newTestService(t, client)
	binding, _ := svc.Binding("A1", "R1")

	res := svc.ReadSession(context.Background(), tokenstore.Credentials{AccessToken: "A1", RefreshToken: "R1", Binding: binding})
	if res.State != StateAuthenticated || !res.LoggedIn() {
		t.Fatalf("expected authenticated, got %+v", res)
	}

	want := &Session{
		ChannelID:       "ch1",
		ChannelName:     "Alice",
		ChannelImageURL: "https://nng-phinf.pstatic.net/a.png",
		FollowerCount:   1200,
		VerifiedMark:    true,
	}
	if diff := cmp.Diff(want, res.Session); diff != "" {
		t.Fatalf("session mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{chzzk.OpFetchProfile, chzzk.OpFetchChannel}, client.calls); diff != "" {
		t.Fatalf("call order mismatch (-want +got):\n%s", diff)
	}
	if client.gotAccess != "A1" || client.gotChannelID != "ch1" {
		t.Fatalf("call args mismatch: access=%q channel=%q", client.gotAccess, client.gotChannelID)
	}
}

func TestReadSession_ChannelIDComesFromProfile(t *testing.T) {
	client := &stubClient{
		profile: chzzk.Profile{ChannelID: "ch1", ChannelName: ""},
		channel: chzzk.Channel{ChannelID: "other", ChannelName: "FromChannel", FollowerCount: -3},
	}
	svc := newTestService(t, client)
	binding, _ := svc.Binding("A1", "R1")

	res := svc.ReadSession(context.Background(), tokenstore.Credentials{AccessToken: "A1", RefreshToken: "R1", Binding: binding})
	if !res.LoggedIn() {
		t.Fatalf("expected logged in, got %+v", res)
	}
	if res.Session.ChannelID != "ch1" {
		t.Fatalf("channel id must come from profile, got %q", res.Session.ChannelID)
	}
	if res.Session.ChannelName != "FromChannel" {
		t.Fatalf("expected channel name fallback, got %q", res.Session.ChannelName)
	}
	if res.Session.FollowerCount != 0 {
		t.Fatalf("follower count must be clamped, got %d", res.Session.FollowerCount)
	}
}

func TestReadSession_Failures(t *testing.T) {
	remote := &chzzk.APIError{Op: chzzk.OpFetchProfile, Status: 401}

	cases := []struct {
		name      string
		client    *stubClient
		binding   func(*Service) string
		wantStage string
		wantCalls []string
	}{
		{
			name:      "binding missing",
			client:    &stubClient{},
			binding:   func(*Service) string { return "" },
			wantStage: StageBinding,
		},
		{
			name:   "binding for a different pair",
			client: &stubClient{},
			binding: func(s *Service) string {
				b, _ := s.Binding("A1", "R2")
				return b
			},
			wantStage: StageBinding,
		},
		{
			name:      "profile rejected",
			client:    &stubClient{profileErr: remote},
			wantStage: StageProfile,
			wantCalls: []string{chzzk.OpFetchProfile},
		},
		{
			name:      "channel not found",
			client:    &stubClient{profile: chzzk.Profile{ChannelID: "ch1"}, channelErr: chzzk.ErrChannelNotFound},
			wantStage: StageChannel,
			wantCalls: []string{chzzk.OpFetchProfile, chzzk.OpFetchChannel},
		},
		{
			name:      "channel timeout",
			client:    &stubClient{profile: chzzk.Profile{ChannelID: "ch1"}, channelErr: context.DeadlineExceeded},
			wantStage: StageChannel,
			wantCalls: []string{chzzk.OpFetchProfile, chzzk.OpFetchChannel},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestService(t, tc.client)
			binding, _ := svc.Binding("A1", "R1")
			if tc.binding != nil {
				binding = tc.binding(svc)
			}

			res := svc.ReadSession(context.Background(), tokenstore.Credentials{AccessToken: "A1", RefreshToken: "R1", Binding: binding})
			if res.State != StateExpired || res.Session != nil || res.LoggedIn() {
				t.Fatalf("expected expired without session, got %+v", res)
			}
			if !errors.Is(res.Err, ErrSessionResolution) {
				t.Fatalf("expected ErrSessionResolution, got %v", res.Err)
			}
			var rerr *ResolutionError
			if !errors.As(res.Err, &rerr) || rerr.Stage != tc.wantStage {
				t.Fatalf("expected stage %q, got %v", tc.wantStage, res.Err)
			}
			if diff := cmp.Diff(tc.wantCalls, tc.client.calls); diff != "" {
				t.Fatalf("calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolutionError_UnwrapsCause(t *testing.T) {
	err := error(&ResolutionError{Stage: StageProfile, Err: context.DeadlineExceeded})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected cause in chain")
	}
	if !errors.Is(err, ErrSessionResolution) {
		t.Fatalf("expected class sentinel in chain")
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		StateAnonymous:     "anonymous",
		StateAuthorizing:   "authorizing",
		StateAuthenticated: "authenticated",
		StateExpired:       "expired",
		State(99):          "unknown",
	} {
		if got := s.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
