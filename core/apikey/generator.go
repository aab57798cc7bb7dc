package apikey

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GeneratedKey is the output of key generation. FullKey is the only copy
// of the plaintext that will ever exist.
type GeneratedKey struct {
	KeyID   string
	FullKey string
	KeyHash string
}

// Generate creates a fresh key: `mlx_{env}_{hex64}` where the first
// eight hex characters double as the public key ID.
func Generate(env Environment) (*GeneratedKey, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("apikey: generate: %w", err)
	}
	secret := hex.EncodeToString(b)

	full := fmt.Sprintf("mlx_%s_%s", env, secret)
	return &GeneratedKey{
		KeyID:   secret[:KeyIDLen],
		FullKey: full,
		KeyHash: HashKey(full),
	}, nil
}

// KeyIDFromPlaintext extracts the public key ID from a well-formed key
// without hashing it. Returns an empty string for malformed input.
func KeyIDFromPlaintext(raw string) string {
	if !WellFormed(raw) {
		return ""
	}
	secret := raw[len(raw)-64:]
	return secret[:KeyIDLen]
}
