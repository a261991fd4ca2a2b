// Package domain defines the interfaces hook services depend on. Backends
// (hosted REST store, Postgres) and outbound adapters (mail, files, cache)
// implement them; services should depend on these rather than concrete types.
package domain

import (
	"context"

	"github.com/assetline/cloudhooks/internal/models"
)

// DocumentStore reads and writes schemaless records.
// Missing records are reported as models.ErrNotFound.
type DocumentStore interface {
	Get(ctx context.Context, auth models.Auth, class, objectID string, include ...string) (models.Document, error)
	Find(ctx context.Context, auth models.Auth, q *models.Query) ([]models.Document, error)
	First(ctx context.Context, auth models.Auth, q *models.Query) (models.Document, error)
	Create(ctx context.Context, auth models.Auth, class string, fields models.Document) (models.Document, error)
	// Save applies a partial update of fields to an existing record.
	Save(ctx context.Context, auth models.Auth, class, objectID string, fields models.Document) error
	// Append atomically adds values to the end of an array field.
	Append(ctx context.Context, auth models.Auth, class, objectID, field string, values ...any) error
}

// SessionStore mints and looks up user sessions.
type SessionStore interface {
	// LatestSessionToken returns the newest live session token for the user,
	// or models.ErrSessionMissing.
	LatestSessionToken(ctx context.Context, userID string) (string, error)
	// LogIn verifies credentials and returns the user with a fresh session token.
	LogIn(ctx context.Context, username, password string) (models.User, error)
}

// Backend is a complete document store implementation.
type Backend interface {
	DocumentStore
	SessionStore
	Pinger
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Message is an outbound plain-text email.
type Message struct {
	From    string
	To      string
	ReplyTo string
	Subject string
	Text    string
}

// Mailer delivers email. Implementations do not retry.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// FileFetcher resolves stored file URLs and downloads their contents.
type FileFetcher interface {
	Rewrite(rawURL string) string
	Allowed(rawURL string) bool
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// NameCache memoizes resolved user display names.
type NameCache interface {
	Get(ctx context.Context, userID string) (string, bool)
	Set(ctx context.Context, userID, name string)
}
