// Package password provides slow, salted password hashing built on argon2id.
//
// Hashes are encoded in the PHC string format so the parameters travel with
// the hash and can be tuned over time without invalidating stored credentials.
// Passwords are never recoverable from the stored value; verification is the
// only supported operation.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrInvalidHash is returned when a stored hash cannot be parsed.
	ErrInvalidHash = errors.New("invalid password hash format")
	// ErrUnsupportedVariant is returned for hashes not produced by argon2id.
	ErrUnsupportedVariant = errors.New("unsupported password hash variant")
	// ErrIncompatibleVersion is returned when the hash was produced by an
	// incompatible argon2 version.
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
)

// Params controls the argon2id cost. The defaults target high tens of
// milliseconds on commodity hardware: slow enough to make offline brute force
// impractical, fast enough to keep login latency acceptable.
type Params struct {
	Time        uint32
	MemoryKiB   uint32
	Parallelism uint8
	SaltLen     uint32
	KeyLen      uint32
}

// DefaultParams returns the recommended cost parameters.
func DefaultParams() Params {
	return Params{
		Time:        1,
		MemoryKiB:   64 * 1024,
		Parallelism: 4,
		SaltLen:     16,
		KeyLen:      32,
	}
}

// Hash derives an argon2id hash of the password with a fresh random salt and
// returns it in PHC string format:
//
//	$argon2id$v=19$m=65536,t=1,p=4$<salt-b64>$<hash-b64>
func Hash(password string) (string, error) {
	return HashWithParams(password, DefaultParams())
}

// HashWithParams is Hash with explicit cost parameters, used by tests to keep
// hashing fast and by operators who need to retune cost.
func HashWithParams(password string, p Params) (string, error) {
	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey(normalize(password), salt, p.Time, p.MemoryKiB, p.Parallelism, p.KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.MemoryKiB, p.Time, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether the password matches the encoded hash.
// The comparison is constant-time. A malformed hash is an error, not a
// mismatch, so callers can distinguish data corruption from a wrong password.
func Verify(password, encoded string) (bool, error) {
	p, salt, key, err := decode(encoded)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey(normalize(password), salt, p.Time, p.MemoryKiB, p.Parallelism, p.KeyLen)

	return subtle.ConstantTimeCompare(candidate, key) == 1, nil
}

// normalize applies NFKC so visually identical passwords typed on different
// platforms or keyboards produce the same bytes.
func normalize(password string) []byte {
	return []byte(norm.NFKC.String(password))
}

func decode(encoded string) (Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return Params{}, nil, nil, ErrInvalidHash
	}
	if parts[1] != "argon2id" {
		return Params{}, nil, nil, ErrUnsupportedVariant
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}
	if version != argon2.Version {
		return Params{}, nil, nil, ErrIncompatibleVersion
	}

	var p Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.MemoryKiB, &p.Time, &p.Parallelism); err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}

	p.SaltLen = uint32(len(salt))
	p.KeyLen = uint32(len(key))

	return p, salt, key, nil
}
