package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/assetline/cloudhooks/internal/domain"
	"github.com/assetline/cloudhooks/internal/hooks"
	"github.com/assetline/cloudhooks/internal/models"
)

// maxReviewPages bounds averageStars to MaxQueryLimit * maxReviewPages reviews.
const maxReviewPages = 10

// MailSettings holds the addresses outbound mail uses.
type MailSettings struct {
	From       string
	FeedbackTo string
}

// FunctionDeps are the collaborators of the callable functions.
type FunctionDeps struct {
	Store    domain.DocumentStore
	Sessions domain.SessionStore
	Files    domain.FileFetcher
	Mailer   domain.Mailer
	Queue    MailQueue
	Mail     MailSettings
	Log      *logrus.Logger
}

// Functions implements the callable (define) hooks.
type Functions struct {
	store    domain.DocumentStore
	sessions domain.SessionStore
	files    domain.FileFetcher
	mailer   domain.Mailer
	queue    MailQueue
	mail     MailSettings
	log      *logrus.Logger
}

// NewFunctions creates Functions.
func NewFunctions(deps FunctionDeps) *Functions {
	return &Functions{
		store:    deps.Store,
		sessions: deps.Sessions,
		files:    deps.Files,
		mailer:   deps.Mailer,
		queue:    deps.Queue,
		mail:     deps.Mail,
		log:      deps.Log,
	}
}

// Hello is a liveness function.
func (f *Functions) Hello(context.Context, *hooks.Request) (any, error) {
	return "Hello world!", nil
}

type averageStarsParams struct {
	Movie any `json:"movie"`
}

// AverageStars returns the mean star rating of the reviews of a movie, or
// null when it has none.
func (f *Functions) AverageStars(ctx context.Context, req *hooks.Request) (any, error) {
	var p averageStarsParams
	if err := req.DecodeParams(&p); err != nil {
		return nil, hooks.FailWith("invalid params", err)
	}

	if p.Movie == nil {
		return nil, hooks.Fail("movie is required")
	}

	var (
		sum   float64
		count int
	)

	for page := range maxReviewPages {
		q := models.NewQuery(models.ClassReview).
			EqualTo(models.FieldMovie, p.Movie).
			OrderBy(models.KeyObjectID).
			WithLimit(models.MaxQueryLimit)
		q.Skip = page * models.MaxQueryLimit

		reviews, err := f.store.Find(ctx, req.Auth(), q)
		if err != nil {
			return nil, hooks.FailWith("movie lookup failed", err)
		}

		for _, r := range reviews {
			if stars, ok := r.Float(models.FieldStars); ok {
				sum += stars
				count++
			}
		}

		if len(reviews) < models.MaxQueryLimit {
			break
		}
	}

	if count == 0 {
		return nil, nil
	}

	return sum / float64(count), nil
}

type userParams struct {
	UserID string `json:"userId"`
}

func detail(msg string) map[string]string {
	return map[string]string{"detail": msg}
}

// SessionForUser returns a live session token for a user, minting one when
// the user has none. Master only.
func (f *Functions) SessionForUser(ctx context.Context, req *hooks.Request) (any, error) {
	user, err := f.targetUser(ctx, req)
	if err != nil {
		return nil, err
	}

	token, err := f.sessions.LatestSessionToken(ctx, user.ObjectID)
	if errors.Is(err, models.ErrSessionMissing) {
		token, err = f.rotateSession(ctx, user)
	}
	if err != nil {
		return nil, hooks.FailWith(detail("Session lookup failed:"+err.Error()), err)
	}

	return map[string]string{"session": token}, nil
}

// RotateSessionForUser resets the user's password to a random value and logs
// in with it, returning the new session token. Master only.
func (f *Functions) RotateSessionForUser(ctx context.Context, req *hooks.Request) (any, error) {
	user, err := f.targetUser(ctx, req)
	if err != nil {
		return nil, err
	}

	token, err := f.rotateSession(ctx, user)
	if err != nil {
		return nil, hooks.FailWith(detail("Session rotation failed:"+err.Error()), err)
	}

	return map[string]string{"session": token}, nil
}

func (f *Functions) targetUser(ctx context.Context, req *hooks.Request) (models.User, error) {
	if !req.Master {
		return models.User{}, hooks.Fail(detail(MsgMasterRequired))
	}

	var p userParams
	if err := req.DecodeParams(&p); err != nil || p.UserID == "" {
		return models.User{}, hooks.FailWith(detail("User not found:userId is required"), err)
	}

	doc, err := f.store.Get(ctx, models.MasterKey(), models.ClassUser, p.UserID)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, models.ErrNotFound) {
			msg = "Object not found."
		}
		return models.User{}, hooks.FailWith(detail("User not found:"+msg), err)
	}

	user, err := models.UserFromDocument(doc)
	if err != nil {
		return models.User{}, hooks.FailWith(detail("User not found:"+err.Error()), err)
	}

	return user, nil
}

func (f *Functions) rotateSession(ctx context.Context, user models.User) (string, error) {
	if user.Username == "" {
		return "", fmt.Errorf("user %s has no username", user.ObjectID)
	}

	password, err := randomPassword()
	if err != nil {
		return "", err
	}

	if err := f.store.Save(ctx, models.MasterKey(), models.ClassUser, user.ObjectID, models.Document{
		models.FieldPassword: password,
	}); err != nil {
		return "", fmt.Errorf("setting password: %w", err)
	}

	logged, err := f.sessions.LogIn(ctx, user.Username, password)
	if err != nil {
		return "", fmt.Errorf("logging in: %w", err)
	}

	f.log.WithField("user_id", user.ObjectID).Info("session rotated")

	return logged.SessionToken, nil
}
