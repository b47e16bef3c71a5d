package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned when a refresh token is unknown or has expired.
var ErrSessionNotFound = errors.New("session not found")

// sessionClient is the subset of the go-redis API the session repository needs.
type sessionClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// SessionRepository stores refresh sessions as expiring Redis keys.
// Every call is a single Redis command; expiry is left to Redis.
type SessionRepository struct {
	client sessionClient
	prefix string
}

// NewSessionRepository constructs a session repository. prefix namespaces keys.
func NewSessionRepository(client sessionClient, prefix string) *SessionRepository {
	return &SessionRepository{client: client, prefix: prefix}
}

// Put stores token -> username for ttl.
func (r *SessionRepository) Put(ctx context.Context, token, username string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("put session: ttl must be positive, got %s", ttl)
	}
	if err := r.client.Set(ctx, r.key(token), username, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

// Get returns the username owning token, or ErrSessionNotFound.
func (r *SessionRepository) Get(ctx context.Context, token string) (string, error) {
	username, err := r.client.Get(ctx, r.key(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("redis get session: %w", err)
	}
	return username, nil
}

// Ping verifies the Redis connection for readiness checks.
func (r *SessionRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *SessionRepository) key(token string) string {
	return r.prefix + token
}
