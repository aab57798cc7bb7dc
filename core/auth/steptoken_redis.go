package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStepTokenStore shares in-flight login state across instances, so a
// load balancer may route step 1 and step 2 to different processes.
// Expiry rides on Redis key TTLs; Sweep is a no-op.
type RedisStepTokenStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStepTokenStore creates a store over the given client.
func NewRedisStepTokenStore(client redis.UniversalClient) *RedisStepTokenStore {
	return &RedisStepTokenStore{client: client, prefix: "steptoken:"}
}

func (s *RedisStepTokenStore) Save(ctx context.Context, token *StepToken) error {
	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	payload, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("auth: marshal step token: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+token.Token, payload, ttl).Err(); err != nil {
		return fmt.Errorf("auth: save step token: %w", err)
	}
	return nil
}

func (s *RedisStepTokenStore) Find(ctx context.Context, token string) (*StepToken, error) {
	payload, err := s.client.Get(ctx, s.prefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStepTokenNotFound
		}
		return nil, fmt.Errorf("auth: find step token: %w", err)
	}

	var t StepToken
	if err := json.Unmarshal(payload, &t); err != nil {
		return nil, fmt.Errorf("auth: decode step token: %w", err)
	}
	return &t, nil
}

func (s *RedisStepTokenStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.prefix+token).Err(); err != nil {
		return fmt.Errorf("auth: delete step token: %w", err)
	}
	return nil
}

func (s *RedisStepTokenStore) Sweep(context.Context, time.Time) error {
	return nil
}
