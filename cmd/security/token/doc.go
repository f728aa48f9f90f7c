// Package token provides the keyed primitives behind cookie credentials.
//
// It is the single source of truth for:
// - deriving purpose-scoped subkeys from the process session secret (HKDF-SHA256)
// - binding an access/refresh token pair with a keyed BLAKE2b-256 MAC
// - constant-time comparison of those MACs
//
// Environment:
// - CHZZK_SESSION_SECRET: master secret; parsed by the app config, never read here.
// Policy:
//   - Outside development the secret MUST be at least MinSecretBytes long.
//   - Subkeys are never reused across purposes.
package token
