package store_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetline/cloudhooks/internal/db"
	"github.com/assetline/cloudhooks/internal/dbpool"
	"github.com/assetline/cloudhooks/internal/models"
	"github.com/assetline/cloudhooks/internal/store"
)

var (
	sharedStore *store.Store
	setupOnce   sync.Once
	setupErr    error
)

func getTestStore(t *testing.T) *store.Store {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	setupOnce.Do(func() {
		ctx := context.Background()
		log := logrus.New()
		log.SetLevel(logrus.ErrorLevel)

		pool, err := dbpool.NewPool(ctx, dbpool.Options{URL: dbURL, MaxConns: 5})
		if err != nil {
			setupErr = err
			return
		}

		if err := db.Migrate(ctx, pool, log); err != nil {
			setupErr = err
			return
		}

		sharedStore = store.New(pool, log, store.Options{
			SessionSecret: []byte("0123456789abcdef0123456789abcdef"),
			SessionTTL:    time.Hour,
		})
	})
	require.NoError(t, setupErr)

	return sharedStore
}

// uniqueClass isolates each test's documents.
func uniqueClass(prefix string) string {
	return prefix + "_" + uuid.NewString()[:8]
}

func TestCreateGetSave(t *testing.T) {
	s := getTestStore(t)
	ctx := context.Background()
	class := uniqueClass("Asset")

	created, err := s.Create(ctx, models.MasterKey(), class, models.Document{"status": "READY"})
	require.NoError(t, err)
	id := created.ObjectID()
	require.NotEmpty(t, id)

	require.NoError(t, s.Save(ctx, models.MasterKey(), class, id, models.Document{"status": "IN_USE"}))

	got, err := s.Get(ctx, models.MasterKey(), class, id)
	require.NoError(t, err)
	assert.Equal(t, "IN_USE", got.String("status"))
	assert.NotEmpty(t, got.String(models.KeyUpdatedAt))

	_, err = s.Get(ctx, models.MasterKey(), class, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	err = s.Save(ctx, models.MasterKey(), class, "missing", models.Document{"status": "x"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestFindWithInclude(t *testing.T) {
	s := getTestStore(t)
	ctx := context.Background()
	owners := uniqueClass("Owner")
	items := uniqueClass("Item")

	owner, err := s.Create(ctx, models.MasterKey(), owners, models.Document{"name": "Jane"})
	require.NoError(t, err)

	ptr := models.NewPointer(owners, owner.ObjectID())
	_, err = s.Create(ctx, models.MasterKey(), items, models.Document{"owner": ptr, "kind": "laptop"})
	require.NoError(t, err)
	_, err = s.Create(ctx, models.MasterKey(), items, models.Document{"owner": ptr, "kind": "phone"})
	require.NoError(t, err)

	q := models.NewQuery(items).EqualTo("owner", ptr).EqualTo("kind", "phone").Includes("owner")
	docs, err := s.Find(ctx, models.MasterKey(), q)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	included, ok := docs[0].Object("owner")
	require.True(t, ok)
	assert.Equal(t, "Jane", included.String("name"))
	assert.Equal(t, "Object", included.String(models.KeyType))
}

func TestAppend_ConcurrentWritersKeepAllEntries(t *testing.T) {
	s := getTestStore(t)
	ctx := context.Background()
	class := uniqueClass("Asset")

	created, err := s.Create(ctx, models.MasterKey(), class, models.Document{"status": "READY"})
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry := models.NewHistoryEntry(models.ActionAssignedToChange, string(rune('A'+i)), models.HistoryUser{}, time.Now())
			assert.NoError(t, s.Append(ctx, models.MasterKey(), class, created.ObjectID(), models.FieldHistory, entry))
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, models.MasterKey(), class, created.ObjectID())
	require.NoError(t, err)

	h, err := got.History()
	require.NoError(t, err)
	assert.Equal(t, writers, h.Len())
}

func TestAppend_NullAndNonArrayFields(t *testing.T) {
	s := getTestStore(t)
	ctx := context.Background()
	class := uniqueClass("Asset")
	entry := models.NewHistoryEntry(models.ActionStatusChange, "DONE", models.HistoryUser{}, time.Now())

	nullHistory, err := s.Create(ctx, models.MasterKey(), class, models.Document{models.FieldHistory: nil})
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, models.MasterKey(), class, nullHistory.ObjectID(), models.FieldHistory, entry))

	got, err := s.Get(ctx, models.MasterKey(), class, nullHistory.ObjectID())
	require.NoError(t, err)
	h, err := got.History()
	require.NoError(t, err)
	require.Equal(t, 1, h.Len())
	assert.Equal(t, "DONE", h.Entries()[0].Status)

	scalar, err := s.Create(ctx, models.MasterKey(), class, models.Document{models.FieldHistory: "legacy"})
	require.NoError(t, err)
	err = s.Append(ctx, models.MasterKey(), class, scalar.ObjectID(), models.FieldHistory, entry)
	assert.ErrorIs(t, err, models.ErrNotArray)

	got, err = s.Get(ctx, models.MasterKey(), class, scalar.ObjectID())
	require.NoError(t, err)
	assert.Equal(t, "legacy", got[models.FieldHistory])

	err = s.Append(ctx, models.MasterKey(), class, "missing", models.FieldHistory, entry)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestLogInAndSessions(t *testing.T) {
	s := getTestStore(t)
	ctx := context.Background()
	username := "user_" + uuid.NewString()[:8]

	u, err := s.Create(ctx, models.MasterKey(), models.ClassUser, models.Document{
		models.FieldUsername: username,
		models.FieldPassword: "first-password",
	})
	require.NoError(t, err)

	fetched, err := s.Get(ctx, models.MasterKey(), models.ClassUser, u.ObjectID())
	require.NoError(t, err)
	assert.NotContains(t, fetched, "_hashed_password")
	assert.NotContains(t, fetched, models.FieldPassword)

	_, err = s.LatestSessionToken(ctx, u.ObjectID())
	assert.ErrorIs(t, err, models.ErrSessionMissing)

	_, err = s.LogIn(ctx, username, "wrong")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	logged, err := s.LogIn(ctx, username, "first-password")
	require.NoError(t, err)
	require.NotEmpty(t, logged.SessionToken)

	latest, err := s.LatestSessionToken(ctx, u.ObjectID())
	require.NoError(t, err)
	assert.Equal(t, logged.SessionToken, latest)

	require.NoError(t, s.Save(ctx, models.MasterKey(), models.ClassUser, u.ObjectID(), models.Document{models.FieldPassword: "rotated"}))
	_, err = s.LogIn(ctx, username, "first-password")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	_, err = s.Get(ctx, models.Session(logged.SessionToken), models.ClassUser, u.ObjectID())
	assert.NoError(t, err)
	_, err = s.Get(ctx, models.Session("r:bogus"), models.ClassUser, u.ObjectID())
	assert.ErrorIs(t, err, store.ErrInvalidSession)
}
