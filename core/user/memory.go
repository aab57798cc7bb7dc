package user

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and single-node deployments.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*User
	creds map[uuid.UUID]*Credential
}

// NewMemoryStore creates an empty in-memory user store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[uuid.UUID]*User),
		creds: make(map[uuid.UUID]*Credential),
	}
}

func (s *MemoryStore) Create(_ context.Context, u *User, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Username, u.Username) || strings.EqualFold(existing.Email, u.Email) {
			return ErrAlreadyExists
		}
	}

	uc := *u
	cc := *cred
	s.users[u.ID] = &uc
	s.creds[u.ID] = &cc
	return nil
}

func (s *MemoryStore) ByID(_ context.Context, id uuid.UUID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) ByUsername(_ context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Credential(_ context.Context, userID uuid.UUID) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.creds[userID]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) UpdateCredential(_ context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.creds[cred.UserID]; !ok {
		return ErrCredentialNotFound
	}
	cc := *cred
	cc.UpdatedAt = time.Now().UTC()
	s.creds[cred.UserID] = &cc
	return nil
}
