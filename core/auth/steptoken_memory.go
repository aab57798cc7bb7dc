package auth

import (
	"context"
	"sync"
	"time"
)

// MemoryStepTokenStore is the default process-local step token table.
type MemoryStepTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*StepToken
	now    func() time.Time
}

// NewMemoryStepTokenStore creates an empty in-memory step token store.
func NewMemoryStepTokenStore() *MemoryStepTokenStore {
	return &MemoryStepTokenStore{
		tokens: make(map[string]*StepToken),
		now:    time.Now,
	}
}

func (s *MemoryStepTokenStore) Save(_ context.Context, token *StepToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *token
	s.tokens[token.Token] = &cp
	return nil
}

func (s *MemoryStepTokenStore) Find(_ context.Context, token string) (*StepToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok {
		return nil, ErrStepTokenNotFound
	}
	if t.Expired(s.now()) {
		delete(s.tokens, token)
		return nil, ErrStepTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStepTokenStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, token)
	return nil
}

func (s *MemoryStepTokenStore) Sweep(_ context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, t := range s.tokens {
		if t.Expired(now) {
			delete(s.tokens, key)
		}
	}
	return nil
}
