// Package idempotency remembers which order an Idempotency-Key produced so a
// retried checkout returns the first order instead of placing a second one.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	Header        = "Idempotency-Key"
	pendingMarker = "pending"
	maxKeyLength  = 128
)

var (
	// ErrInFlight means another request with the same key has not finished.
	ErrInFlight   = errors.New("request with this idempotency key is in progress")
	ErrKeyTooLong = fmt.Errorf("idempotency key longer than %d characters", maxKeyLength)
)

// Key extracts the trimmed idempotency key from a request.
func Key(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(Header))
}

type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// Connect parses a redis:// URL and verifies the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func redisKey(userID, key string) string {
	return "idempotency:order:" + userID + ":" + key
}

// Claim reserves key for userID. It returns the order number of a finished
// earlier request, "" when the caller now owns the key, or ErrInFlight.
func (s *Store) Claim(ctx context.Context, userID, key string) (string, error) {
	if len(key) > maxKeyLength {
		return "", ErrKeyTooLong
	}
	k := redisKey(userID, key)

	claimed, err := s.client.SetNX(ctx, k, pendingMarker, s.ttl).Result()
	if err != nil {
		return "", err
	}
	if claimed {
		return "", nil
	}

	value, err := s.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; try once more
		claimed, err = s.client.SetNX(ctx, k, pendingMarker, s.ttl).Result()
		if err != nil {
			return "", err
		}
		if claimed {
			return "", nil
		}
		return "", ErrInFlight
	}
	if err != nil {
		return "", err
	}
	if value == pendingMarker {
		return "", ErrInFlight
	}
	return value, nil
}

// Complete records the order number produced for a claimed key.
func (s *Store) Complete(ctx context.Context, userID, key, orderNumber string) error {
	return s.client.Set(ctx, redisKey(userID, key), orderNumber, s.ttl).Err()
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Release frees a claimed key after a failed checkout so the client may retry.
// Completed keys are left untouched.
func (s *Store) Release(ctx context.Context, userID, key string) error {
	return releaseScript.Run(ctx, s.client, []string{redisKey(userID, key)}, pendingMarker).Err()
}
