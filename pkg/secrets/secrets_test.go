package secrets_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/melodix/pkg/secrets"
)

func TestEncryptDecryptString(t *testing.T) {
	t.Parallel()

	key, err := secrets.GenerateKey()
	require.NoError(t, err)

	ciphertext, err := secrets.EncryptString(key, "JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	assert.NotContains(t, ciphertext, "JBSWY3DPEHPK3PXP")

	plaintext, err := secrets.DecryptString(key, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", plaintext)
}

func TestEncryptProducesUniqueCiphertexts(t *testing.T) {
	t.Parallel()

	key, err := secrets.GenerateKey()
	require.NoError(t, err)

	c1, err := secrets.EncryptString(key, "same value")
	require.NoError(t, err)
	c2, err := secrets.EncryptString(key, "same value")
	require.NoError(t, err)

	assert.NotEqual(t, c1, c2, "random nonce must produce distinct ciphertexts")
}

func TestValidateKeyFailsClosed(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, secrets.ValidateKey(nil), secrets.ErrInvalidKey)
	assert.ErrorIs(t, secrets.ValidateKey(make([]byte, 16)), secrets.ErrInvalidKey)
	assert.ErrorIs(t, secrets.ValidateKey(make([]byte, 33)), secrets.ErrInvalidKey)
	assert.NoError(t, secrets.ValidateKey(make([]byte, 32)))

	_, err := secrets.EncryptString(make([]byte, 16), "x")
	assert.ErrorIs(t, err, secrets.ErrInvalidKey)
}

func TestDecryptDetectsTampering(t *testing.T) {
	t.Parallel()

	key, err := secrets.GenerateKey()
	require.NoError(t, err)

	ciphertext, err := secrets.EncryptString(key, "secret seed")
	require.NoError(t, err)

	// Flip a character in the encoded ciphertext.
	mutated := []byte(ciphertext)
	if mutated[len(mutated)-1] == 'A' {
		mutated[len(mutated)-1] = 'B'
	} else {
		mutated[len(mutated)-1] = 'A'
	}

	_, err = secrets.DecryptString(key, string(mutated))
	assert.Error(t, err)
}

func TestDecryptWrongKey(t *testing.T) {
	t.Parallel()

	key1, err := secrets.GenerateKey()
	require.NoError(t, err)
	key2, err := secrets.GenerateKey()
	require.NoError(t, err)

	ciphertext, err := secrets.EncryptString(key1, "secret")
	require.NoError(t, err)

	_, err = secrets.DecryptString(key2, ciphertext)
	assert.ErrorIs(t, err, secrets.ErrDecryptionFailed)
}

func TestDecryptMalformedInput(t *testing.T) {
	t.Parallel()

	key, err := secrets.GenerateKey()
	require.NoError(t, err)

	_, err = secrets.DecryptString(key, "%%%not-base64%%%")
	assert.ErrorIs(t, err, secrets.ErrInvalidCiphertext)

	_, err = secrets.DecryptString(key, "c2hvcnQ")
	assert.Error(t, err)
}
