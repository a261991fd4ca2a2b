package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	lockoutMaxAttempts = 5
	lockoutWindow      = 15 * time.Minute
	lockoutDuration    = 5 * time.Minute
	lockoutCleanup     = time.Minute
	lockoutMaxRecords  = 10000
)

type failureRecord struct {
	attempts  int
	firstFail time.Time
	lockedAt  time.Time
}

// Lockout blocks clients after repeated webhook key failures within a window.
type Lockout struct {
	mu      sync.Mutex
	records map[string]*failureRecord
	log     *logrus.Logger
	now     func() time.Time
}

// NewLockout creates a Lockout whose cleanup goroutine stops with ctx.
func NewLockout(ctx context.Context, log *logrus.Logger) *Lockout {
	l := &Lockout{
		records: make(map[string]*failureRecord),
		log:     log,
		now:     time.Now,
	}
	go l.cleanupLoop(ctx)
	return l
}

// IsBlocked reports whether client is currently locked out.
func (l *Lockout) IsBlocked(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[client]
	return ok && !rec.lockedAt.IsZero() && l.now().Sub(rec.lockedAt) < lockoutDuration
}

// RecordFailure counts a failed attempt by client.
func (l *Lockout) RecordFailure(client string) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[client]
	if !ok || now.Sub(rec.firstFail) > lockoutWindow {
		l.records[client] = &failureRecord{attempts: 1, firstFail: now}
		return
	}

	rec.attempts++
	if rec.attempts >= lockoutMaxAttempts && rec.lockedAt.IsZero() {
		rec.lockedAt = now
		l.log.WithField("client_ip", client).Warn("client locked out due to repeated webhook key failures")
	}
}

// Reset forgets the failures of client.
func (l *Lockout) Reset(client string) {
	l.mu.Lock()
	delete(l.records, client)
	l.mu.Unlock()
}

func (l *Lockout) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(lockoutCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *Lockout) sweep() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, rec := range l.records {
		expired := !rec.lockedAt.IsZero() && now.Sub(rec.lockedAt) >= lockoutDuration
		stale := rec.lockedAt.IsZero() && now.Sub(rec.firstFail) >= lockoutWindow
		if expired || stale {
			delete(l.records, k)
		}
	}

	// Past the cap, drop arbitrary unlocked records first.
	for k, rec := range l.records {
		if len(l.records) <= lockoutMaxRecords {
			break
		}
		if rec.lockedAt.IsZero() {
			delete(l.records, k)
		}
	}
}
