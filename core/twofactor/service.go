package twofactor

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/melodix/core/user"
	"github.com/dmitrymomot/melodix/pkg/totp"
)

// Config controls second-factor material generation.
type Config struct {
	// Issuer is the label shown in authenticator apps.
	Issuer string `env:"TOTP_ISSUER" envDefault:"Melodix"`

	// TempCodeTTL bounds how long a minted temporary code stays usable.
	TempCodeTTL time.Duration `env:"TWOFACTOR_TEMP_CODE_TTL" envDefault:"10m"`

	// BackupCodeCount is the size of a freshly generated backup code set.
	BackupCodeCount int `env:"TWOFACTOR_BACKUP_CODE_COUNT" envDefault:"10"`
}

// TempCodeSender delivers a freshly minted temporary code out of band.
type TempCodeSender interface {
	SendTempCode(ctx context.Context, email, code string, expiresAt time.Time) error
}

// Enrollment is the material returned when TOTP is set up: the caller
// shows the QR once and the backup codes once, neither is retrievable
// afterwards.
type Enrollment struct {
	Secret          string
	ProvisioningURI string
	QRCodePNG       []byte
	BackupCodes     []string
}

// Service implements second-factor lifecycle operations on top of the
// profile store: TOTP enrollment, backup code regeneration, and temp code
// minting.
type Service struct {
	profiles Store
	users    user.Store
	sender   TempCodeSender
	encKey   []byte
	cfg      Config
	now      func() time.Time
}

// NewService creates the service. Sender may be nil when temp-code
// delivery is not configured; minting then fails with an explicit error.
func NewService(profiles Store, users user.Store, sender TempCodeSender, encKey []byte, cfg Config) *Service {
	if cfg.Issuer == "" {
		cfg.Issuer = "Melodix"
	}
	if cfg.TempCodeTTL <= 0 {
		cfg.TempCodeTTL = 10 * time.Minute
	}
	if cfg.BackupCodeCount <= 0 {
		cfg.BackupCodeCount = 10
	}
	return &Service{
		profiles: profiles,
		users:    users,
		sender:   sender,
		encKey:   encKey,
		cfg:      cfg,
		now:      time.Now,
	}
}

// EnrollTOTP generates a fresh TOTP seed for the user, stores it encrypted
// in the credential record, installs a new backup code set, and returns
// the one-time enrollment material.
func (s *Service) EnrollTOTP(ctx context.Context, userID uuid.UUID) (*Enrollment, error) {
	u, err := s.users.ByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	cred, err := s.users.Credential(ctx, userID)
	if err != nil {
		return nil, err
	}

	secret, err := totp.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("twofactor: generate seed: %w", err)
	}
	encrypted, err := totp.EncryptSecret(secret, s.encKey)
	if err != nil {
		return nil, fmt.Errorf("twofactor: encrypt seed: %w", err)
	}

	cred.TOTPSecretEncrypted = encrypted
	if err := s.users.UpdateCredential(ctx, cred); err != nil {
		return nil, err
	}

	codes, err := s.regenerateBackupCodes(ctx, userID)
	if err != nil {
		return nil, err
	}

	uri := totp.ProvisioningURI(secret, u.Username, s.cfg.Issuer)
	png, err := totp.QRCodePNG(secret, u.Username, s.cfg.Issuer, 256)
	if err != nil {
		return nil, fmt.Errorf("twofactor: render qr: %w", err)
	}

	return &Enrollment{
		Secret:          secret,
		ProvisioningURI: uri,
		QRCodePNG:       png,
		BackupCodes:     codes,
	}, nil
}

// RegenerateBackupCodes replaces the user's backup codes with a fresh set
// and returns the plaintext codes for one-time display.
func (s *Service) RegenerateBackupCodes(ctx context.Context, userID uuid.UUID) ([]string, error) {
	if _, err := s.users.ByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.regenerateBackupCodes(ctx, userID)
}

func (s *Service) regenerateBackupCodes(ctx context.Context, userID uuid.UUID) ([]string, error) {
	codes, err := totp.GenerateBackupCodes(s.cfg.BackupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("twofactor: generate backup codes: %w", err)
	}
	if err := s.profiles.ReplaceBackupCodes(ctx, userID, codes); err != nil {
		return nil, err
	}
	return codes, nil
}

// MintTempCode creates a single-use temporary code for the user and emails
// it to the account address. The caller must have proven device possession
// before invoking this.
func (s *Service) MintTempCode(ctx context.Context, userID uuid.UUID) error {
	if s.sender == nil {
		return fmt.Errorf("twofactor: temp code delivery not configured")
	}

	u, err := s.users.ByID(ctx, userID)
	if err != nil {
		return err
	}

	code, err := generateTempCode()
	if err != nil {
		return fmt.Errorf("twofactor: generate temp code: %w", err)
	}

	expiresAt := s.now().UTC().Add(s.cfg.TempCodeTTL)
	if err := s.profiles.AddTempCode(ctx, userID, TempCode{Code: code, ExpiresAt: expiresAt}); err != nil {
		return err
	}
	return s.sender.SendTempCode(ctx, u.Email, code, expiresAt)
}

// Temp codes are typed from an email on a second screen; 8 digits keeps
// entry friction low while the 10-minute TTL bounds the guessing budget.
func generateTempCode() (string, error) {
	const digits = 8

	max := big.NewInt(10)
	out := make([]byte, digits)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = byte('0' + n.Int64())
	}
	return string(out), nil
}
