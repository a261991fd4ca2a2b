package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetline/cloudhooks/internal/hooks"
	"github.com/assetline/cloudhooks/internal/models"
)

var alice = &models.User{ObjectID: "u1", Username: "alice", Name: "Alice", SessionToken: "r:alice"}

func newAssetHistory(store *memStore) *AssetHistoryService {
	svc := NewAssetHistoryService(store, testLogger())
	svc.now = fixedClock
	return svc
}

func historyOf(t *testing.T, doc models.Document) []models.HistoryEntry {
	t.Helper()
	h, err := doc.History()
	require.NoError(t, err)
	return h.Entries()
}

func TestAssetBeforeSave_CreateStartsHistory(t *testing.T) {
	store := newMemStore()
	svc := newAssetHistory(store)

	obj, err := svc.BeforeSave(context.Background(), &hooks.Request{
		User:   alice,
		Object: models.Document{models.FieldName: "Pump 7", models.FieldStatus: "NEW"},
	})
	require.NoError(t, err)

	entries := historyOf(t, obj)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionAssetCreated, entries[0].Action)
	assert.Equal(t, models.StatusReady, entries[0].Status)
	assert.Equal(t, models.HistoryUser{Name: "Alice", ObjectID: "u1"}, entries[0].User)
	assert.True(t, entries[0].ActionDate.Equal(testNow))
	assert.Empty(t, store.savesSnapshot(), "trigger must not write")
}

func TestAssetBeforeSave_CreateDiscardsClientHistory(t *testing.T) {
	svc := newAssetHistory(newMemStore())

	forged := models.NewHistory(models.NewHistoryEntry("Forged", "X", models.HistoryUser{}, testNow))
	obj, err := svc.BeforeSave(context.Background(), &hooks.Request{
		User:   alice,
		Object: models.Document{models.FieldHistory: forged},
	})
	require.NoError(t, err)

	entries := historyOf(t, obj)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionAssetCreated, entries[0].Action)
}

func TestAssetBeforeSave_StatusChangeAppends(t *testing.T) {
	store := newMemStore()
	existing := models.NewHistory(models.NewHistoryEntry(models.ActionAssetCreated, models.StatusReady, alice.Actor(), testNow))
	store.put(models.ClassAsset, models.Document{
		models.KeyObjectID:  "a1",
		models.FieldStatus:  "READY",
		models.FieldHistory: existing,
	})
	svc := newAssetHistory(store)

	bob := &models.User{ObjectID: "u2", Username: "bob"}
	obj, err := svc.BeforeSave(context.Background(), &hooks.Request{
		User: bob,
		Object: models.Document{
			models.KeyObjectID:  "a1",
			models.FieldStatus:  "IN_REPAIR",
			models.FieldHistory: existing,
		},
	})
	require.NoError(t, err)

	entries := historyOf(t, obj)
	require.Len(t, entries, 2)
	assert.Equal(t, models.ActionAssetCreated, entries[0].Action)
	assert.Equal(t, models.ActionStatusChange, entries[1].Action)
	assert.Equal(t, "IN_REPAIR", entries[1].Status)
	assert.Equal(t, models.HistoryUser{Name: "bob", ObjectID: "u2"}, entries[1].User)
	assert.Equal(t, 1, existing.Len(), "caller's history must not be mutated")
}

func TestAssetBeforeSave_UnchangedStatusLeavesHistory(t *testing.T) {
	store := newMemStore()
	store.put(models.ClassAsset, models.Document{models.KeyObjectID: "a1", models.FieldStatus: "READY"})
	svc := newAssetHistory(store)

	tests := []struct {
		name string
		obj  models.Document
	}{
		{"same status", models.Document{models.KeyObjectID: "a1", models.FieldStatus: "READY", models.FieldName: "renamed"}},
		{"status not carried", models.Document{models.KeyObjectID: "a1", models.FieldName: "renamed"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := svc.BeforeSave(context.Background(), &hooks.Request{User: alice, Object: tt.obj})
			require.NoError(t, err)
			assert.NotContains(t, obj, models.FieldHistory)
			assert.Equal(t, "renamed", obj.String(models.FieldName))
		})
	}
}

func TestAssetBeforeSave_OrphanedRecordsCreation(t *testing.T) {
	store := newMemStore()
	store.getErr[docKey(models.ClassAsset, "a9")] = errors.New("connection refused")
	svc := newAssetHistory(store)

	obj, err := svc.BeforeSave(context.Background(), &hooks.Request{
		User:   alice,
		Object: models.Document{models.KeyObjectID: "a9", models.FieldStatus: "BROKEN"},
	})
	require.NoError(t, err)

	entries := historyOf(t, obj)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionAssetCreated, entries[0].Action)
	assert.Equal(t, models.StatusReady, entries[0].Status)
}

// legacyHistory is a stored history whose first element predates the typed
// entry shape: its actionDate is epoch millis.
func legacyHistory() []any {
	return []any{
		map[string]any{
			"action":     "Asset created",
			"actionDate": float64(1420070400000),
			"status":     "READY",
			"user":       map[string]any{"name": "Bob", "objectId": "u2"},
		},
		map[string]any{
			"action":     "Status change",
			"actionDate": map[string]any{"__type": "Date", "iso": "2015-01-02T00:00:00.000Z"},
			"status":     "BROKEN",
			"user":       map[string]any{"name": "Bob", "objectId": "u2"},
		},
	}
}

// storedElements returns the history field as the platform would persist it.
func storedElements(t *testing.T, doc models.Document) []any {
	t.Helper()
	b, err := json.Marshal(doc[models.FieldHistory])
	require.NoError(t, err)
	var out []any
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func TestAssetBeforeSave_KeepsLegacyEntries(t *testing.T) {
	store := newMemStore()
	store.put(models.ClassAsset, models.Document{models.KeyObjectID: "a1", models.FieldStatus: "BROKEN"})
	svc := newAssetHistory(store)

	obj, err := svc.BeforeSave(context.Background(), &hooks.Request{
		User: alice,
		Object: models.Document{
			models.KeyObjectID:  "a1",
			models.FieldStatus:  "READY",
			models.FieldHistory: legacyHistory(),
		},
	})
	require.NoError(t, err)

	stored := storedElements(t, obj)
	require.Len(t, stored, 3)
	assert.Equal(t, legacyHistory(), stored[:2], "earlier entries are written back unchanged")

	entries := historyOf(t, obj)
	require.Len(t, entries, 2, "the epoch-millis entry is kept but not typed")
	assert.Equal(t, "BROKEN", entries[0].Status)
	assert.Equal(t, models.ActionStatusChange, entries[1].Action)
	assert.Equal(t, "READY", entries[1].Status)
}

func TestAssetBeforeSave_NonListHistoryLeftAlone(t *testing.T) {
	store := newMemStore()
	store.put(models.ClassAsset, models.Document{models.KeyObjectID: "a1", models.FieldStatus: "READY"})
	svc := newAssetHistory(store)

	obj, err := svc.BeforeSave(context.Background(), &hooks.Request{
		User: alice,
		Object: models.Document{
			models.KeyObjectID:  "a1",
			models.FieldStatus:  "DONE",
			models.FieldHistory: "not a list",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "not a list", obj[models.FieldHistory])
}

func TestAssetBeforeSave_MasterWithoutUser(t *testing.T) {
	svc := newAssetHistory(newMemStore())

	obj, err := svc.BeforeSave(context.Background(), &hooks.Request{Master: true, Object: models.Document{}})
	require.NoError(t, err)

	entries := historyOf(t, obj)
	require.Len(t, entries, 1)
	assert.Equal(t, models.HistoryUser{}, entries[0].User)
}

func TestAssetBeforeSave_RejectsAnonymous(t *testing.T) {
	store := newMemStore()
	svc := newAssetHistory(store)

	_, err := svc.BeforeSave(context.Background(), &hooks.Request{Object: models.Document{}})

	var he *hooks.Error
	require.ErrorAs(t, err, &he)
	assert.Equal(t, MsgLoginRequired, he.Payload)
	assert.Empty(t, store.auths, "no store access before the identity check")
}
