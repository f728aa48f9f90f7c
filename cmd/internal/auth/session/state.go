package session

import (
	"crypto/rand"
	"time"

	paseto "aidanwoods.dev/go-paseto"
	"github.com/oklog/ulid/v2"

	"github.com/popop098/chzzk-login-example/cmd/security/token"
)

const (
	stateIssuer   = "chzzk-login"
	stateAudience = "oauth-state"
	nonceClaim    = "nonce"
)

// stateSealer issues and opens PASETO v4.local login state tokens.
type stateSealer struct {
	key paseto.V4SymmetricKey
	ttl time.Duration
}

func newStateSealer(secret string, ttl time.Duration) (*stateSealer, error) {
	raw, err := token.DeriveKey(secret, token.PurposeState)
	if err != nil {
		return nil, err
	}
	key, err := paseto.V4SymmetricKeyFromBytes(raw)
	if err != nil {
		return nil, err
	}
	return &stateSealer{key: key, ttl: ttl}, nil
}

// newNonce returns a fresh ULID string.
func newNonce(now time.Time) (string, error) {
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Seal returns the encrypted token and its expiry.
func (s *stateSealer) Seal(nonce string, now time.Time) (string, time.Time) {
	exp := now.Add(s.ttl)

	tok := paseto.NewToken()
	tok.SetIssuer(stateIssuer)
	tok.SetAudience(stateAudience)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)
	tok.SetString(nonceClaim, nonce)

	return tok.V4Encrypt(s.key, nil), exp
}

// Open decrypts sealed and returns the nonce if it is valid at now.
func (s *stateSealer) Open(sealed string, now time.Time) (string, error) {
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.IssuedBy(stateIssuer))
	p.AddRule(paseto.ForAudience(stateAudience))
	p.AddRule(paseto.ValidAt(now))

	parsed, err := p.ParseV4Local(s.key, sealed, nil)
	if err != nil {
		return "", ErrInvalidState
	}
	nonce, err := parsed.GetString(nonceClaim)
	if err != nil || nonce == "" {
		return "", ErrInvalidState
	}
	return nonce, nil
}
