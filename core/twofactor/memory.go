package twofactor

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and single-node deployments.
// All code-consumption paths run under the store mutex, which gives the
// same at-most-once guarantee a document store's conditional update does.
type MemoryStore struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*Profile
}

// NewMemoryStore creates an empty in-memory profile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[uuid.UUID]*Profile)}
}

func (s *MemoryStore) Profile(_ context.Context, userID uuid.UUID) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return copyProfile(p), nil
}

func (s *MemoryStore) Ensure(_ context.Context, userID uuid.UUID) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		p = &Profile{UserID: userID, UpdatedAt: time.Now().UTC()}
		s.profiles[userID] = p
	}
	return copyProfile(p), nil
}

func (s *MemoryStore) ReplaceBackupCodes(_ context.Context, userID uuid.UUID, codes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.ensureLocked(userID)
	p.BackupCodes = make([]BackupCode, len(codes))
	for i, code := range codes {
		p.BackupCodes[i] = BackupCode{Code: code}
	}
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ConsumeBackupCode(_ context.Context, userID uuid.UUID, code string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return ErrInvalidCode
	}
	for i := range p.BackupCodes {
		bc := &p.BackupCodes[i]
		if !bc.Used && codesEqual(bc.Code, code) {
			used := at
			bc.Used = true
			bc.UsedAt = &used
			p.UpdatedAt = at
			return nil
		}
	}
	return ErrInvalidCode
}

func (s *MemoryStore) AddTempCode(_ context.Context, userID uuid.UUID, code TempCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.ensureLocked(userID)
	p.TempCodes = append(p.TempCodes, code)
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ConsumeTempCode(_ context.Context, userID uuid.UUID, code string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return ErrInvalidCode
	}
	for i := range p.TempCodes {
		tc := &p.TempCodes[i]
		if !tc.Used && at.Before(tc.ExpiresAt) && codesEqual(tc.Code, code) {
			tc.Used = true
			p.UpdatedAt = at
			return nil
		}
	}
	return ErrInvalidCode
}

func (s *MemoryStore) TrustedDevice(_ context.Context, userID uuid.UUID, fingerprint string) (*TrustedDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	for _, d := range p.TrustedDevices {
		if d.Fingerprint == fingerprint {
			cp := d
			return &cp, nil
		}
	}
	return nil, ErrDeviceNotFound
}

func (s *MemoryStore) TrustedDeviceByToken(_ context.Context, userID uuid.UUID, token string) (*TrustedDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	for _, d := range p.TrustedDevices {
		if codesEqual(d.DeviceToken, token) {
			cp := d
			return &cp, nil
		}
	}
	return nil, ErrDeviceNotFound
}

func (s *MemoryStore) AddTrustedDevice(_ context.Context, userID uuid.UUID, device TrustedDevice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.ensureLocked(userID)
	for i, d := range p.TrustedDevices {
		if d.Fingerprint == device.Fingerprint {
			p.TrustedDevices[i] = device
			p.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	p.TrustedDevices = append(p.TrustedDevices, device)
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) TouchTrustedDevice(_ context.Context, userID uuid.UUID, fingerprint string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return ErrDeviceNotFound
	}
	for i := range p.TrustedDevices {
		if p.TrustedDevices[i].Fingerprint == fingerprint {
			p.TrustedDevices[i].LastUsedAt = at
			return nil
		}
	}
	return ErrDeviceNotFound
}

func (s *MemoryStore) RemoveTrustedDevice(_ context.Context, userID uuid.UUID, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return ErrDeviceNotFound
	}
	for i, d := range p.TrustedDevices {
		if d.Fingerprint == fingerprint {
			p.TrustedDevices = append(p.TrustedDevices[:i], p.TrustedDevices[i+1:]...)
			p.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return ErrDeviceNotFound
}

func (s *MemoryStore) ensureLocked(userID uuid.UUID) *Profile {
	p, ok := s.profiles[userID]
	if !ok {
		p = &Profile{UserID: userID}
		s.profiles[userID] = p
	}
	return p
}

func copyProfile(p *Profile) *Profile {
	cp := *p
	cp.BackupCodes = append([]BackupCode(nil), p.BackupCodes...)
	cp.TempCodes = append([]TempCode(nil), p.TempCodes...)
	cp.TrustedDevices = append([]TrustedDevice(nil), p.TrustedDevices...)
	return &cp
}

func codesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
