// Package secrets provides AES-256-GCM encryption for values that must be
// recoverable, such as TOTP seeds. The random nonce is prepended to the
// ciphertext so every encrypted value is self-contained.
//
// The encryption key is an operator-provided secret, never derived from user
// data. ValidateKey exists so callers can fail closed at startup instead of
// discovering a bad key on the first request.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// KeySize is the required key length for AES-256.
const KeySize = 32

var (
	// ErrInvalidKey is returned when the key is not exactly KeySize bytes.
	ErrInvalidKey = errors.New("encryption key must be exactly 32 bytes")
	// ErrEncryptionFailed is returned when encryption fails.
	ErrEncryptionFailed = errors.New("encryption failed")
	// ErrDecryptionFailed is returned when the ciphertext cannot be decrypted,
	// including when it has been tampered with.
	ErrDecryptionFailed = errors.New("decryption failed")
	// ErrInvalidCiphertext is returned for malformed ciphertext input.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
)

// ValidateKey checks that the key is usable for AES-256-GCM.
func ValidateKey(key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("%w: got %d", ErrInvalidKey, len(key))
	}
	return nil
}

// GenerateKey returns a new random 32-byte key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// EncryptBytes encrypts plaintext and returns nonce||ciphertext.
func EncryptBytes(key, plaintext []byte) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Join(ErrEncryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Join(ErrEncryptionFailed, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Join(ErrEncryptionFailed, err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// DecryptBytes decrypts nonce||ciphertext produced by EncryptBytes.
func DecryptBytes(key, data []byte) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Join(ErrDecryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Join(ErrDecryptionFailed, err)
	}

	if len(data) < gcm.NonceSize() {
		return nil, ErrInvalidCiphertext
	}

	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// EncryptString encrypts a string and returns base64url(nonce||ciphertext).
func EncryptString(key []byte, plaintext string) (string, error) {
	data, err := EncryptBytes(key, []byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecryptString reverses EncryptString.
func DecryptString(key []byte, encoded string) (string, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	plaintext, err := DecryptBytes(key, data)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
