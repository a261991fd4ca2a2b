package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetline/cloudhooks/internal/models"
)

var at = time.Date(2024, 3, 9, 14, 5, 6, 789_000_000, time.UTC)

func TestHistory_AppendIsCopyOnWrite(t *testing.T) {
	base := models.NewHistory(models.NewHistoryEntry(models.ActionAssetCreated, models.StatusReady, models.HistoryUser{}, at))

	a := base
	a.Append(models.NewHistoryEntry(models.ActionStatusChange, "A", models.HistoryUser{}, at))

	b := base
	b.Append(models.NewHistoryEntry(models.ActionStatusChange, "B", models.HistoryUser{}, at))

	assert.Equal(t, 1, base.Len())
	require.Equal(t, 2, a.Len())
	require.Equal(t, 2, b.Len())
	assert.Equal(t, "A", a.Entries()[1].Status)
	assert.Equal(t, "B", b.Entries()[1].Status)
}

func TestHistory_EntriesReturnsCopy(t *testing.T) {
	h := models.NewHistory(models.NewHistoryEntry(models.ActionAssetCreated, models.StatusReady, models.HistoryUser{}, at))

	entries := h.Entries()
	entries[0].Status = "TAMPERED"

	assert.Equal(t, models.StatusReady, h.Entries()[0].Status)
}

func TestHistory_JSON(t *testing.T) {
	var empty models.History
	b, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(b))

	h := models.NewHistory(models.NewHistoryEntry(
		models.ActionStatusChange, "DONE",
		models.HistoryUser{Name: "alice", ObjectID: "u1"}, at,
	))

	b, err = json.Marshal(h)
	require.NoError(t, err)
	assert.JSONEq(t, `[{
		"action": "Status change",
		"actionDate": {"__type": "Date", "iso": "2024-03-09T14:05:06.789Z"},
		"status": "DONE",
		"user": {"name": "alice", "objectId": "u1"}
	}]`, string(b))

	var decoded models.History
	require.NoError(t, json.Unmarshal(b, &decoded))
	require.Equal(t, 1, decoded.Len())
	assert.True(t, at.Equal(decoded.Entries()[0].ActionDate.Time))
}

func TestHistory_KeepsUndecodableElements(t *testing.T) {
	stored := `[{"action":"Asset created","actionDate":1420070400000,"status":"READY"},null,7,` +
		`{"action":"Status change","actionDate":{"__type":"Date","iso":"2024-03-09T14:05:06.789Z"},"status":"DONE","user":{"name":"","objectId":""}}]`

	var h models.History
	require.NoError(t, json.Unmarshal([]byte(stored), &h))
	assert.Equal(t, 4, h.Len())

	entries := h.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "DONE", entries[0].Status)

	h.Append(models.NewHistoryEntry(models.ActionStatusChange, "LOST", models.HistoryUser{}, at))
	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, "LOST", last.Status)

	b, err := json.Marshal(h)
	require.NoError(t, err)

	var elems []json.RawMessage
	require.NoError(t, json.Unmarshal(b, &elems))
	require.Len(t, elems, 5)
	assert.JSONEq(t, `{"action":"Asset created","actionDate":1420070400000,"status":"READY"}`, string(elems[0]))
	assert.Equal(t, "null", string(elems[1]))
	assert.Equal(t, "7", string(elems[2]))
	assert.Contains(t, string(elems[4]), `"status":"LOST"`)
}

func TestHistory_NotAList(t *testing.T) {
	var h models.History
	assert.Error(t, json.Unmarshal([]byte(`{"action":"x"}`), &h))
	require.NoError(t, json.Unmarshal([]byte(`null`), &h))
	assert.Equal(t, 0, h.Len())
}

func TestDate_AcceptsBareString(t *testing.T) {
	var d models.Date
	require.NoError(t, json.Unmarshal([]byte(`"2024-03-09T14:05:06Z"`), &d))
	assert.Equal(t, 2024, d.Year())
}

func TestDocument_History(t *testing.T) {
	tests := []struct {
		name    string
		doc     models.Document
		wantLen int
		wantErr bool
	}{
		{name: "absent", doc: models.Document{}, wantLen: 0},
		{name: "null", doc: models.Document{"history": nil}, wantLen: 0},
		{name: "decoded json", doc: models.Document{"history": []any{
			map[string]any{"action": "Asset created", "status": "READY", "user": map[string]any{"name": "", "objectId": ""}},
		}}, wantLen: 1},
		{name: "typed", doc: models.Document{"history": models.NewHistory(models.HistoryEntry{Action: "x"})}, wantLen: 1},
		{name: "legacy element", doc: models.Document{"history": []any{
			map[string]any{"action": "Asset created", "actionDate": float64(1420070400000)},
			map[string]any{"action": "Status change", "status": "DONE"},
		}}, wantLen: 2},
		{name: "malformed", doc: models.Document{"history": "oops"}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, err := tc.doc.History()
			if tc.wantErr {
				assert.ErrorIs(t, err, models.ErrInvalidHistory)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantLen, h.Len())
		})
	}
}

func TestParsePointer(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		want   models.Pointer
		wantOK bool
	}{
		{name: "bare id", value: "a1", want: models.Pointer{ObjectID: "a1"}, wantOK: true},
		{name: "pointer object", value: map[string]any{"__type": "Pointer", "className": "Asset", "objectId": "a1"},
			want: models.Pointer{ClassName: "Asset", ObjectID: "a1"}, wantOK: true},
		{name: "included object", value: map[string]any{"__type": "Object", "className": "_User", "objectId": "u1", "name": "x"},
			want: models.Pointer{ClassName: "_User", ObjectID: "u1"}, wantOK: true},
		{name: "empty string", value: "  "},
		{name: "nil", value: nil},
		{name: "number", value: 12.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := models.ParsePointer(tc.value)
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestPointer_JSON(t *testing.T) {
	b, err := json.Marshal(models.NewPointer("_User", "u1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"__type":"Pointer","className":"_User","objectId":"u1"}`, string(b))

	var p models.Pointer
	require.NoError(t, json.Unmarshal([]byte(`"u2"`), &p))
	assert.Equal(t, "u2", p.ObjectID)

	assert.ErrorIs(t, json.Unmarshal([]byte(`{}`), &p), models.ErrInvalidPointer)
}

func TestUser_Names(t *testing.T) {
	u, err := models.UserFromDocument(models.Document{
		"objectId": "u1",
		"username": "jdoe",
		"profile":  map[string]any{"__type": "Object", "className": "UserProfile", "objectId": "p1", "firstName": "Jane", "lastName": "Doe"},
	})
	require.NoError(t, err)

	assert.Equal(t, "jdoe", u.DisplayName())
	full, ok := u.FullName()
	assert.True(t, ok)
	assert.Equal(t, "Jane Doe", full)
	assert.Equal(t, models.HistoryUser{Name: "jdoe", ObjectID: "u1"}, u.Actor())

	var nobody *models.User
	assert.Equal(t, models.HistoryUser{}, nobody.Actor())

	unloaded := models.User{ObjectID: "u2", Profile: &models.UserProfile{ObjectID: "p2"}}
	_, ok = unloaded.FullName()
	assert.False(t, ok)
}

func TestQuery_Builder(t *testing.T) {
	q := models.NewQuery(models.ClassReview).EqualTo("movie", "Alien").Includes("author").WithLimit(5000)

	assert.Equal(t, "Alien", q.Where["movie"])
	assert.Equal(t, []string{"author"}, q.Include)
	assert.Equal(t, models.MaxQueryLimit, q.EffectiveLimit())
	assert.Equal(t, models.DefaultQueryLimit, models.NewQuery("x").EffectiveLimit())
}
