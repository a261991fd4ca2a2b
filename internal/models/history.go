package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// History actions.
const (
	ActionAssetCreated     = "Asset created"
	ActionStatusChange     = "Status change"
	ActionAssignedToChange = "Assigned To change"
)

// StatusReady is the status recorded for newly created assets.
const StatusReady = "READY"

// AssigneeNameUnavailable is recorded when the new assignee cannot be resolved.
const AssigneeNameUnavailable = "New Assigned To Name Unavailable"

// HistoryUser identifies the actor behind a history entry.
type HistoryUser struct {
	Name     string `json:"name"`
	ObjectID string `json:"objectId"`
}

// HistoryEntry is a single immutable element of a record's history log.
type HistoryEntry struct {
	Action     string      `json:"action"`
	ActionDate Date        `json:"actionDate"`
	Status     string      `json:"status"`
	User       HistoryUser `json:"user"`
}

// NewHistoryEntry stamps an entry with the given server time.
func NewHistoryEntry(action, status string, actor HistoryUser, at time.Time) HistoryEntry {
	return HistoryEntry{
		Action:     action,
		ActionDate: NewDate(at),
		Status:     status,
		User:       actor,
	}
}

// History is an append-only, chronologically ordered log of entries.
// Existing entries cannot be edited or removed through this type. Elements
// decoded from storage keep their original JSON, so entries written in an
// older or foreign shape survive a rewrite of the log unchanged.
type History struct {
	items []historyItem
}

type historyItem struct {
	entry HistoryEntry
	typed bool
	raw   json.RawMessage
}

// NewHistory returns a history holding a copy of entries.
func NewHistory(entries ...HistoryEntry) History {
	items := make([]historyItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, historyItem{entry: e, typed: true})
	}
	return History{items: items}
}

// Append adds e at the end of the log.
func (h *History) Append(e HistoryEntry) {
	// Full slice expression so copies of h never share a backing array.
	h.items = append(h.items[:len(h.items):len(h.items)], historyItem{entry: e, typed: true})
}

// Len returns the number of elements, including ones that are not entries.
func (h History) Len() int { return len(h.items) }

// Entries returns a copy of the entries in insertion order. Stored elements
// that do not decode as an entry are left out.
func (h History) Entries() []HistoryEntry {
	var out []HistoryEntry
	for _, it := range h.items {
		if it.typed {
			out = append(out, it.entry)
		}
	}
	return out
}

// Last returns the most recent element that decodes as an entry.
func (h History) Last() (HistoryEntry, bool) {
	for i := len(h.items) - 1; i >= 0; i-- {
		if h.items[i].typed {
			return h.items[i].entry, true
		}
	}

	return HistoryEntry{}, false
}

// MarshalJSON encodes the log as a JSON array; an empty log is [].
// Elements read from storage are written back as they were read.
func (h History) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(h.items))
	for _, it := range h.items {
		if it.raw != nil {
			out = append(out, it.raw)
			continue
		}

		b, err := json.Marshal(it.entry)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}

	return json.Marshal(out)
}

// UnmarshalJSON decodes a JSON array; null is an empty log. Each element is
// decoded on its own and kept even when it is not a valid entry.
func (h *History) UnmarshalJSON(b []byte) error {
	var elems []json.RawMessage
	if err := json.Unmarshal(b, &elems); err != nil {
		return err
	}

	items := make([]historyItem, 0, len(elems))
	for _, raw := range elems {
		it := historyItem{raw: append(json.RawMessage(nil), raw...)}
		if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
			it.typed = json.Unmarshal(raw, &it.entry) == nil
		}
		items = append(items, it)
	}

	h.items = items

	return nil
}
