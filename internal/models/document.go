package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Document is a schemaless record as exchanged with the document store.
type Document map[string]any

// Reserved document keys.
const (
	KeyObjectID  = "objectId"
	KeyCreatedAt = "createdAt"
	KeyUpdatedAt = "updatedAt"
	KeyClassName = "className"
	KeyType      = "__type"
	KeyACL       = "ACL"
)

// ObjectID returns the record identity, empty for records that were never persisted.
func (d Document) ObjectID() string {
	return d.String(KeyObjectID)
}

// String returns the string value at key, empty when absent or not a string.
func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Float returns the numeric value at key.
func (d Document) Float(key string) (float64, bool) {
	switch v := d[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Pointer returns the reference stored at key. Bare objectId strings, pointer
// objects and included objects are all accepted.
func (d Document) Pointer(key string) (Pointer, bool) {
	return ParsePointer(d[key])
}

// Object returns the nested object stored at key.
func (d Document) Object(key string) (Document, bool) {
	switch v := d[key].(type) {
	case Document:
		return v, true
	case map[string]any:
		return Document(v), true
	default:
		return nil, false
	}
}

// History decodes the history log stored on the document. A missing or null
// value is an empty history.
func (d Document) History() (History, error) {
	var h History

	raw, ok := d[FieldHistory]
	if !ok || raw == nil {
		return h, nil
	}

	if typed, ok := raw.(History); ok {
		return typed, nil
	}

	if err := decodeValue(raw, &h); err != nil {
		return History{}, fmt.Errorf("%w: %v", ErrInvalidHistory, err)
	}

	return h, nil
}

// SetHistory replaces the history value carried by the document.
func (d Document) SetHistory(h History) {
	d[FieldHistory] = h
}

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}

	return out
}

// Decode converts the document into a typed value via its JSON form.
func (d Document) Decode(out any) error {
	return decodeValue(map[string]any(d), out)
}

// Pointer references a record of another class.
type Pointer struct {
	ClassName string
	ObjectID  string
}

// NewPointer returns a pointer to className/objectID.
func NewPointer(className, objectID string) Pointer {
	return Pointer{ClassName: className, ObjectID: objectID}
}

// MarshalJSON encodes the pointer in the store's wire format.
func (p Pointer) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		KeyType:      "Pointer",
		KeyClassName: p.ClassName,
		KeyObjectID:  p.ObjectID,
	})
}

// UnmarshalJSON accepts a pointer object, an included object or a bare objectId string.
func (p *Pointer) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	parsed, ok := ParsePointer(v)
	if !ok {
		return ErrInvalidPointer
	}

	*p = parsed

	return nil
}

// ParsePointer extracts a reference from a decoded JSON value.
func ParsePointer(v any) (Pointer, bool) {
	switch t := v.(type) {
	case Pointer:
		return t, t.ObjectID != ""
	case *Pointer:
		if t == nil {
			return Pointer{}, false
		}
		return *t, t.ObjectID != ""
	case string:
		s := strings.TrimSpace(t)
		return Pointer{ObjectID: s}, s != ""
	case Document:
		return ParsePointer(map[string]any(t))
	case map[string]any:
		id, _ := t[KeyObjectID].(string)
		if id == "" {
			return Pointer{}, false
		}
		class, _ := t[KeyClassName].(string)
		return Pointer{ClassName: class, ObjectID: id}, true
	default:
		return Pointer{}, false
	}
}

// isoLayout is the store's Date wire format: UTC with millisecond precision.
const isoLayout = "2006-01-02T15:04:05.000Z"

// Date is a timestamp encoded as {"__type":"Date","iso":...}.
type Date struct {
	time.Time
}

// NewDate truncates t to millisecond precision in UTC.
func NewDate(t time.Time) Date {
	return Date{Time: t.UTC().Truncate(time.Millisecond)}
}

// FormatISO renders t in the store's timestamp format.
func FormatISO(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		KeyType: "Date",
		"iso":   FormatISO(d.Time),
	})
}

// UnmarshalJSON accepts the Date object form or a bare RFC 3339 string.
func (d *Date) UnmarshalJSON(b []byte) error {
	var iso string

	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &iso); err != nil {
			return err
		}
	} else {
		var obj struct {
			ISO string `json:"iso"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		iso = obj.ISO
	}

	if iso == "" {
		d.Time = time.Time{}
		return nil
	}

	t, err := time.Parse(time.RFC3339Nano, iso)
	if err != nil {
		return fmt.Errorf("parsing date %q: %w", iso, err)
	}

	d.Time = t.UTC()

	return nil
}

// File is a stored file reference.
type File struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// File returns the file reference stored at key.
func (d Document) File(key string) (File, bool) {
	var f File
	raw, ok := d[key]
	if !ok || raw == nil {
		return f, false
	}

	if err := decodeValue(raw, &f); err != nil || f.URL == "" {
		return File{}, false
	}

	return f, true
}

func decodeValue(v, out any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return json.Unmarshal(b, out)
}
