package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"io"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/hkdf"
)

const (
	// MinSecretBytes is the minimum accepted length of the master secret.
	MinSecretBytes = 32

	// KeyBytes is the size of every derived subkey.
	KeyBytes = 32

	// PurposeState scopes the key that seals login state tokens.
	PurposeState = "oauth-state"
	// PurposeBinding scopes the key that binds access/refresh pairs.
	PurposeBinding = "token-binding"
)

// hkdfSalt is fixed so that derived keys stay stable across restarts.
var hkdfSalt = []byte("chzzk-login/v1")

// CheckSecret validates the master secret size in bytes (not runes).
func CheckSecret(secret string, minBytes int) error {
	raw := strings.TrimSpace(secret)
	if raw == "" {
		return ErrSecretMissing
	}
	if minBytes > 0 && len(raw) < minBytes {
		return ErrSecretTooShort
	}
	return nil
}

// RandomSecret returns a hex-encoded random secret of n bytes.
// Used for ephemeral development secrets.
func RandomSecret(n int) (string, error) {
	if n <= 0 {
		n = MinSecretBytes
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// DeriveKey derives a KeyBytes-long subkey for purpose from secret.
func DeriveKey(secret, purpose string) ([]byte, error) {
	raw := strings.TrimSpace(secret)
	if raw == "" {
		return nil, ErrSecretMissing
	}
	r := hkdf.New(sha256.New, []byte(raw), hkdfSalt, []byte(purpose))
	key := make([]byte, KeyBytes)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// BindHex returns hex(BLAKE2b-256(key, len||part...)).
// Parts are length-prefixed so ("ab","c") and ("a","bc") never collide.
func BindHex(key []byte, parts ...string) (string, error) {
	if len(key) != KeyBytes {
		return "", ErrKeySize
	}
	h, err := blake2b.New256(key)
	if err != nil {
		return "", err
	}
	var n [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(n[:], uint64(len(p)))
		_, _ = h.Write(n[:])
		_, _ = h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Equal compares two MAC strings in constant time. Empty inputs never match.
func Equal(a, b string) bool {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
