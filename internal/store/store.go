// Package store is the self-hosted document store backed by PostgreSQL.
//
// Every record lives in the documents table as a JSONB payload keyed by
// (class_name, object_id). The store implements the same contract as the
// hosted REST backend so hook services never know which one they run on.
// Access control lists are not enforced; session tokens are only checked for
// validity.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/assetline/cloudhooks/internal/dbpool"
	"github.com/assetline/cloudhooks/internal/models"
)

const defaultQueryTimeout = 30 * time.Second

// hashedPasswordKey holds the bcrypt hash inside _User payloads. It is never returned.
const hashedPasswordKey = "_hashed_password"

// ErrInvalidSession is returned when a call carries an unknown or expired session token.
var ErrInvalidSession = errors.New("invalid session token")

// Base contains shared dependencies for the store.
type Base struct {
	Pool *dbpool.Pool
	Log  *logrus.Logger
}

// Options configures session minting.
type Options struct {
	SessionSecret []byte
	SessionTTL    time.Duration
}

// Store implements domain.Backend on PostgreSQL.
type Store struct {
	Base
	sessionSecret []byte
	sessionTTL    time.Duration
	now           func() time.Time
}

// New creates a Store.
func New(pool *dbpool.Pool, log *logrus.Logger, opts Options) *Store {
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = 720 * time.Hour
	}

	return &Store{
		Base:          Base{Pool: pool, Log: log},
		sessionSecret: opts.SessionSecret,
		sessionTTL:    ttl,
		now:           time.Now,
	}
}

// withTimeout creates a context with the default query timeout.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultQueryTimeout)
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return s.Pool.Ping(ctx)
}

// authorize validates the session token of non-master calls.
func (s *Store) authorize(auth models.Auth) error {
	if auth.Master || auth.SessionToken == "" {
		return nil
	}

	if _, err := s.verifySessionToken(auth.SessionToken); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	return nil
}
