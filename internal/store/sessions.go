package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/assetline/cloudhooks/internal/models"
)

// sessionTokenPrefix marks revocable session tokens, matching the hosted store.
const sessionTokenPrefix = "r:"

// LatestSessionToken returns the newest session token for the user that still verifies.
func (s *Store) LatestSessionToken(ctx context.Context, userID string) (string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	q := models.NewQuery(models.ClassSession).
		EqualTo(models.FieldUser, models.NewPointer(models.ClassUser, userID)).
		OrderBy("-" + models.KeyCreatedAt).
		WithLimit(10)

	docs, err := s.findRaw(ctx, q)
	if err != nil {
		return "", err
	}

	for _, doc := range docs {
		token := doc.String(models.FieldSessionToken)
		if token == "" {
			continue
		}
		if _, err := s.verifySessionToken(token); err != nil {
			continue
		}
		return token, nil
	}

	return "", fmt.Errorf("user %s: %w", userID, models.ErrSessionMissing)
}

// LogIn checks the password against the stored bcrypt hash and records a new session.
func (s *Store) LogIn(ctx context.Context, username, password string) (models.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	doc, err := s.userByUsername(ctx, username)
	if err != nil {
		return models.User{}, err
	}

	hash, _ := doc[hashedPasswordKey].(string)
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return models.User{}, fmt.Errorf("login %s: %w", username, models.ErrInvalidCredentials)
	}
	delete(doc, hashedPasswordKey)

	user, err := models.UserFromDocument(doc)
	if err != nil {
		return models.User{}, fmt.Errorf("decode user: %w", err)
	}

	token, expiresAt, err := s.mintSessionToken(user.ObjectID)
	if err != nil {
		return models.User{}, err
	}

	session := models.Document{
		models.FieldUser:         models.NewPointer(models.ClassUser, user.ObjectID),
		models.FieldSessionToken: token,
		models.FieldExpiresAt:    expiresAt,
		"createdWith":            map[string]string{"action": "login", "authProvider": "password"},
	}

	payload, err := s.preparePayload(models.ClassSession, session)
	if err != nil {
		return models.User{}, err
	}

	if _, err := s.Pool.Exec(ctx,
		`INSERT INTO documents (class_name, object_id, data) VALUES ($1, $2, $3::jsonb)`,
		models.ClassSession, newObjectID(), payload,
	); err != nil {
		return models.User{}, fmt.Errorf("recording session: %w", err)
	}

	user.SessionToken = token

	return user, nil
}

func (s *Store) userByUsername(ctx context.Context, username string) (models.Document, error) {
	docs, err := s.findRaw(ctx, models.NewQuery(models.ClassUser).EqualTo(models.FieldUsername, username).WithLimit(1))
	if err != nil {
		return nil, err
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("login %s: %w", username, models.ErrInvalidCredentials)
	}

	return docs[0], nil
}

// mintSessionToken signs an HS256 token for the user.
func (s *Store) mintSessionToken(userID string) (string, models.Date, error) {
	if len(s.sessionSecret) == 0 {
		return "", models.Date{}, errors.New("session secret not configured")
	}

	now := s.now()
	expiresAt := now.Add(s.sessionTTL)

	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.sessionSecret)
	if err != nil {
		return "", models.Date{}, fmt.Errorf("signing session token: %w", err)
	}

	return sessionTokenPrefix + signed, models.NewDate(expiresAt), nil
}

// verifySessionToken checks signature and expiry, returning the user id.
func (s *Store) verifySessionToken(token string) (string, error) {
	raw, ok := strings.CutPrefix(token, sessionTokenPrefix)
	if !ok {
		return "", errors.New("malformed session token")
	}

	claims := &jwt.RegisteredClaims{}

	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.sessionSecret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}

	return claims.Subject, nil
}
