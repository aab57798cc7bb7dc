// Package totp implements RFC 6238 time-based one-time passwords with
// encrypted seed storage and provisioning helpers for authenticator apps.
//
// Seeds are encrypted with AES-256-GCM before they touch the database because,
// unlike passwords, they must be recoverable for verification. The encryption
// key is a separate operator secret, never the password KDF.
package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/dmitrymomot/melodix/pkg/secrets"
)

const (
	secretBytes = 20
	digits      = 6
	period      = 30
	// driftWindow accepts the previous, current, and next time step to absorb
	// clock skew between the server and the authenticator device.
	driftWindow = 1
)

var (
	// ErrInvalidSecret is returned when the secret is not valid base32.
	ErrInvalidSecret = errors.New("invalid totp secret")
	// ErrInvalidCode is returned for codes that are not six digits.
	ErrInvalidCode = errors.New("invalid totp code format")
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateSecret returns a new random base32-encoded TOTP seed.
func GenerateSecret() (string, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return b32.EncodeToString(raw), nil
}

// Validate reports whether the code matches the secret at the given time,
// accepting one step of backward or forward drift. Comparison is
// constant-time per candidate window.
func Validate(secret, code string, now time.Time) (bool, error) {
	code = strings.TrimSpace(strings.ReplaceAll(code, " ", ""))
	if !wellFormed(code) {
		return false, ErrInvalidCode
	}

	for i := -driftWindow; i <= driftWindow; i++ {
		at := now.Add(time.Duration(i*period) * time.Second)
		expected, err := CodeAt(secret, at)
		if err != nil {
			return false, err
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return true, nil
		}
	}
	return false, nil
}

// CodeAt computes the TOTP code for the secret at the given time.
// Exported so tests and enrollment flows can generate expected codes.
func CodeAt(secret string, at time.Time) (string, error) {
	key, err := b32.DecodeString(strings.ToUpper(secret))
	if err != nil {
		return "", ErrInvalidSecret
	}

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(at.Unix()/period))

	mac := hmac.New(sha1.New, key)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	// Dynamic truncation per RFC 4226 §5.3.
	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	return fmt.Sprintf("%06d", bin%1000000), nil
}

func wellFormed(code string) bool {
	if len(code) != digits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// EncryptSecret encrypts a seed for database storage.
func EncryptSecret(secret string, key []byte) (string, error) {
	return secrets.EncryptString(key, secret)
}

// DecryptSecret recovers a seed encrypted with EncryptSecret.
func DecryptSecret(encrypted string, key []byte) (string, error) {
	return secrets.DecryptString(key, encrypted)
}

// ProvisioningURI returns the otpauth:// URI that authenticator apps import.
func ProvisioningURI(secret, accountName, issuer string) string {
	label := url.PathEscape(issuer + ":" + accountName)
	values := url.Values{}
	values.Set("secret", secret)
	values.Set("issuer", issuer)
	values.Set("algorithm", "SHA1")
	values.Set("digits", strconv.Itoa(digits))
	values.Set("period", strconv.Itoa(period))
	return "otpauth://totp/" + label + "?" + values.Encode()
}

// QRCodePNG renders the provisioning URI as a PNG for enrollment pages.
func QRCodePNG(secret, accountName, issuer string, size int) ([]byte, error) {
	return qrcode.Encode(ProvisioningURI(secret, accountName, issuer), qrcode.Medium, size)
}

// GenerateBackupCodes returns n single-use recovery codes in XXXX-XXXX form.
// The alphabet omits ambiguous characters (0/O, 1/I/L) because the codes are
// meant to be read off paper.
func GenerateBackupCodes(n int) ([]string, error) {
	const alphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

	codes := make([]string, 0, n)
	buf := make([]byte, 8)
	for c := 0; c < n; c++ {
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		chars := make([]byte, 9)
		for i, b := range buf {
			pos := i
			if i >= 4 {
				pos++ // leave room for the dash
			}
			chars[pos] = alphabet[int(b)%len(alphabet)]
		}
		chars[4] = '-'
		codes = append(codes, string(chars))
	}
	return codes, nil
}
