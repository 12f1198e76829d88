package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrTokenNotFound is returned when a magic-link token is unknown, expired,
// or already consumed.
var ErrTokenNotFound = errors.New("token not found")

// TokenStore holds pending magic-link tokens, keyed by digest. Tokens are
// single-use: a successful Consume removes the entry.
type TokenStore interface {
	Save(ctx context.Context, digest, email string, ttl time.Duration) error
	Consume(ctx context.Context, digest string) (string, error)
}

const magicLinkPrefix = "magiclink:"

// RedisTokenStore keeps magic-link tokens in Redis with a TTL.
type RedisTokenStore struct {
	client *redis.Client
}

func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

func (s *RedisTokenStore) Save(ctx context.Context, digest, email string, ttl time.Duration) error {
	if err := s.client.SetEx(ctx, magicLinkPrefix+digest, email, ttl).Err(); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Consume(ctx context.Context, digest string) (string, error) {
	email, err := s.client.GetDel(ctx, magicLinkPrefix+digest).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrTokenNotFound
	}
	if err != nil {
		return "", fmt.Errorf("consume token: %w", err)
	}
	return email, nil
}

// MemoryTokenStore is an in-process TokenStore for tests and local runs.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]memoryToken
}

type memoryToken struct {
	email     string
	expiresAt time.Time
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]memoryToken)}
}

func (s *MemoryTokenStore) Save(_ context.Context, digest, email string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[digest] = memoryToken{email: email, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryTokenStore) Consume(_ context.Context, digest string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[digest]
	if !ok {
		return "", ErrTokenNotFound
	}
	delete(s.tokens, digest)
	if time.Now().After(tok.expiresAt) {
		return "", ErrTokenNotFound
	}
	return tok.email, nil
}
