// Package cache memoizes resolved user display names in Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "cloudhooks:username:"

// NewRedisClient parses url, connects, and verifies the server responds.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck // connection never became usable.
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return client, nil
}

// Names is a Redis-backed domain.NameCache. Cache failures are logged and
// treated as misses; they never fail the caller.
type Names struct {
	client *redis.Client
	ttl    time.Duration
	log    *logrus.Logger
}

// NewNames creates a name cache with the given entry lifetime.
func NewNames(client *redis.Client, ttl time.Duration, log *logrus.Logger) *Names {
	return &Names{client: client, ttl: ttl, log: log}
}

// Get returns the cached name for userID.
func (n *Names) Get(ctx context.Context, userID string) (string, bool) {
	name, err := n.client.Get(ctx, keyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		n.log.WithError(err).WithField("user_id", userID).Warn("name cache read failed")
		return "", false
	}

	return name, true
}

// Set stores name for userID.
func (n *Names) Set(ctx context.Context, userID, name string) {
	if err := n.client.Set(ctx, keyPrefix+userID, name, n.ttl).Err(); err != nil {
		n.log.WithError(err).WithField("user_id", userID).Warn("name cache write failed")
	}
}

// Ping reports whether Redis is reachable.
func (n *Names) Ping(ctx context.Context) error {
	return n.client.Ping(ctx).Err()
}

// Nop is a cache that never hits.
type Nop struct{}

// Get always misses.
func (Nop) Get(context.Context, string) (string, bool) { return "", false }

// Set discards the value.
func (Nop) Set(context.Context, string, string) {}
