package parse

import (
	"context"
	"fmt"
	"time"

	"github.com/assetline/cloudhooks/internal/models"
)

type sessionRecord struct {
	SessionToken string      `json:"sessionToken"`
	ExpiresAt    models.Date `json:"expiresAt"`
}

// LatestSessionToken returns the newest unexpired session of the user.
func (c *Client) LatestSessionToken(ctx context.Context, userID string) (string, error) {
	q := models.NewQuery(models.ClassSession).
		EqualTo(models.FieldUser, models.NewPointer(models.ClassUser, userID)).
		OrderBy("-createdAt").
		WithLimit(10)

	docs, err := c.Find(ctx, models.MasterKey(), q)
	if err != nil {
		return "", err
	}

	now := time.Now()
	for _, doc := range docs {
		var s sessionRecord
		if err := doc.Decode(&s); err != nil {
			continue
		}
		if s.SessionToken == "" {
			continue
		}
		if !s.ExpiresAt.IsZero() && s.ExpiresAt.Before(now) {
			continue
		}
		return s.SessionToken, nil
	}

	return "", fmt.Errorf("user %s: %w", userID, models.ErrSessionMissing)
}

// LogIn authenticates with username and password, minting a new session.
func (c *Client) LogIn(ctx context.Context, username, password string) (models.User, error) {
	body := map[string]string{
		models.FieldUsername: username,
		models.FieldPassword: password,
	}

	var doc models.Document
	if err := c.post(ctx, models.Auth{}, "/login", body, &doc); err != nil {
		if IsUnauthorized(err) || IsNotFound(err) {
			return models.User{}, fmt.Errorf("login %s: %w", username, models.ErrInvalidCredentials)
		}
		return models.User{}, fmt.Errorf("login %s: %w", username, err)
	}

	user, err := models.UserFromDocument(doc)
	if err != nil {
		return models.User{}, fmt.Errorf("decode login response: %w", err)
	}

	return user, nil
}
