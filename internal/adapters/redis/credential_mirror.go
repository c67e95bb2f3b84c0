// Package redis provides Redis-based adapters for the companion client.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/companion-client/internal/ports"
)

// DefaultCredentialKey is the key used when none is configured.
const DefaultCredentialKey = "companion:credential"

// CredentialMirror stores the sealed bearer credential under a single key.
// A positive TTL bounds how long a stale credential survives if it is never cleared.
type CredentialMirror struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

var _ ports.CredentialMirror = (*CredentialMirror)(nil)

// NewCredentialMirror creates a Redis-backed mirror. An empty key falls back to DefaultCredentialKey;
// ttl <= 0 keeps the value until it is removed.
func NewCredentialMirror(client redis.UniversalClient, key string, ttl time.Duration) *CredentialMirror {
	if key == "" {
		key = DefaultCredentialKey
	}
	if ttl < 0 {
		ttl = 0
	}
	return &CredentialMirror{client: client, key: key, ttl: ttl}
}

func (m *CredentialMirror) Save(ctx context.Context, sealed string) error {
	if sealed == "" {
		return errors.New("sealed credential cannot be empty")
	}
	if err := m.client.Set(ctx, m.key, sealed, m.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (m *CredentialMirror) Load(ctx context.Context) (string, error) {
	v, err := m.client.Get(ctx, m.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("redis get: %w", err)
	}
	return v, nil
}

func (m *CredentialMirror) Remove(ctx context.Context) error {
	if err := m.client.Del(ctx, m.key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
