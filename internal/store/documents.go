package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/assetline/cloudhooks/internal/models"
)

// maxIncludeDepth bounds dotted include paths such as "assignedTo.profile".
const maxIncludeDepth = 3

// Get fetches one record by id, resolving the include keys.
func (s *Store) Get(ctx context.Context, auth models.Auth, class, objectID string, include ...string) (models.Document, error) {
	if err := s.authorize(auth); err != nil {
		return nil, err
	}

	if objectID == "" {
		return nil, models.ErrMissingObjectID
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	doc, err := s.getRaw(ctx, class, objectID)
	if err != nil {
		return nil, err
	}

	delete(doc, hashedPasswordKey)

	if err := s.resolveIncludes(ctx, doc, include); err != nil {
		return nil, err
	}

	return doc, nil
}

// Find runs an equality query.
func (s *Store) Find(ctx context.Context, auth models.Auth, q *models.Query) ([]models.Document, error) {
	if err := s.authorize(auth); err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	docs, err := s.findRaw(ctx, q)
	if err != nil {
		return nil, err
	}

	for _, doc := range docs {
		delete(doc, hashedPasswordKey)

		if err := s.resolveIncludes(ctx, doc, q.Include); err != nil {
			return nil, err
		}
	}

	return docs, nil
}

// First returns the first match of q or models.ErrNotFound.
func (s *Store) First(ctx context.Context, auth models.Auth, q *models.Query) (models.Document, error) {
	limited := *q
	limited.Limit = 1

	docs, err := s.Find(ctx, auth, &limited)
	if err != nil {
		return nil, err
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("first %s: %w", q.Class, models.ErrNotFound)
	}

	return docs[0], nil
}

// Create inserts a record and returns it with its assigned id.
func (s *Store) Create(ctx context.Context, auth models.Auth, class string, fields models.Document) (models.Document, error) {
	if err := s.authorize(auth); err != nil {
		return nil, err
	}

	if class == "" {
		return nil, models.ErrMissingClass
	}

	payload, err := s.preparePayload(class, fields)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	objectID := fields.ObjectID()
	if objectID == "" {
		objectID = newObjectID()
	}

	var createdAt time.Time

	err = s.Pool.QueryRow(ctx,
		`INSERT INTO documents (class_name, object_id, data) VALUES ($1, $2, $3::jsonb) RETURNING created_at`,
		class, objectID, payload,
	).Scan(&createdAt)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", class, err)
	}

	doc := fields.Clone()
	delete(doc, models.FieldPassword)
	doc[models.KeyObjectID] = objectID
	doc[models.KeyCreatedAt] = models.FormatISO(createdAt)
	doc[models.KeyUpdatedAt] = models.FormatISO(createdAt)

	return doc, nil
}

// Save merges fields into an existing record.
func (s *Store) Save(ctx context.Context, auth models.Auth, class, objectID string, fields models.Document) error {
	if err := s.authorize(auth); err != nil {
		return err
	}

	if objectID == "" {
		return models.ErrMissingObjectID
	}

	payload, err := s.preparePayload(class, fields)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := s.Pool.Exec(ctx,
		`UPDATE documents SET data = data || $3::jsonb, updated_at = now()
		 WHERE class_name = $1 AND object_id = $2`,
		class, objectID, payload,
	)
	if err != nil {
		return fmt.Errorf("save %s/%s: %w", class, objectID, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("save %s/%s: %w", class, objectID, models.ErrNotFound)
	}

	return nil
}

// Append concatenates values onto an array field in a single statement, so
// concurrent appends never overwrite each other.
func (s *Store) Append(ctx context.Context, auth models.Auth, class, objectID, field string, values ...any) error {
	if err := s.authorize(auth); err != nil {
		return err
	}

	if objectID == "" {
		return models.ErrMissingObjectID
	}

	if values == nil {
		values = []any{}
	}

	payload, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshal append values: %w", err)
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := s.Pool.Exec(ctx, appendSQL, class, objectID, field, payload)
	if err != nil {
		return fmt.Errorf("append %s/%s.%s: %w", class, objectID, field, err)
	}

	if tag.RowsAffected() == 0 {
		// Either the row is missing or the field holds a non-array value.
		if _, err := s.getRaw(ctx, class, objectID); err != nil {
			return fmt.Errorf("append %s/%s.%s: %w", class, objectID, field, err)
		}
		return fmt.Errorf("append %s/%s.%s: %w", class, objectID, field, models.ErrNotArray)
	}

	return nil
}

// appendSQL adds $4 to the array at key $3. A missing or JSON null key
// starts a new array; any other non-array value leaves the row untouched.
const appendSQL = `UPDATE documents
	 SET data = jsonb_set(data, ARRAY[$3::text],
	     CASE WHEN jsonb_typeof(data->$3::text) = 'array' THEN data->$3::text ELSE '[]'::jsonb END || $4::jsonb,
	     true),
	     updated_at = now()
	 WHERE class_name = $1 AND object_id = $2
	   AND COALESCE(jsonb_typeof(data->$3::text), 'null') IN ('array', 'null')`

func (s *Store) getRaw(ctx context.Context, class, objectID string) (models.Document, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT object_id, data, created_at, updated_at FROM documents
		 WHERE class_name = $1 AND object_id = $2`,
		class, objectID,
	)

	doc, err := scanDocument(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get %s/%s: %w", class, objectID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", class, objectID, err)
	}

	return doc, nil
}

func (s *Store) findRaw(ctx context.Context, q *models.Query) ([]models.Document, error) {
	query, args, err := buildFind(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", q.Class, err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.Class, err)
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", q.Class, err)
	}

	return docs, nil
}

// buildFind translates a query into SQL. objectId predicates use the key
// column; every other predicate becomes a JSONB containment test.
func buildFind(q *models.Query) (string, []any, error) {
	if q.Class == "" {
		return "", nil, models.ErrMissingClass
	}

	var b strings.Builder
	b.WriteString(`SELECT object_id, data, created_at, updated_at FROM documents WHERE class_name = $1`)
	args := []any{q.Class}

	contains := map[string]any{}
	for k, v := range q.Where {
		if k == models.KeyObjectID {
			p, ok := models.ParsePointer(v)
			if !ok {
				return "", nil, fmt.Errorf("objectId predicate: %w", models.ErrInvalidPointer)
			}
			args = append(args, p.ObjectID)
			b.WriteString(` AND object_id = $` + strconv.Itoa(len(args)))
			continue
		}
		contains[k] = v
	}

	if len(contains) > 0 {
		payload, err := json.Marshal(contains)
		if err != nil {
			return "", nil, fmt.Errorf("marshal where: %w", err)
		}
		args = append(args, string(payload))
		b.WriteString(` AND data @> $` + strconv.Itoa(len(args)) + `::jsonb`)
	}

	order, desc := strings.CutPrefix(q.Order, "-")
	direction := " ASC"
	if desc {
		direction = " DESC"
	}

	switch order {
	case "":
		b.WriteString(` ORDER BY created_at ASC, object_id ASC`)
	case models.KeyCreatedAt:
		b.WriteString(` ORDER BY created_at` + direction)
	case models.KeyUpdatedAt:
		b.WriteString(` ORDER BY updated_at` + direction)
	case models.KeyObjectID:
		b.WriteString(` ORDER BY object_id` + direction)
	default:
		args = append(args, order)
		b.WriteString(` ORDER BY data->$` + strconv.Itoa(len(args)) + `::text` + direction)
	}

	args = append(args, q.EffectiveLimit())
	b.WriteString(` LIMIT $` + strconv.Itoa(len(args)))

	if q.Skip > 0 {
		args = append(args, q.Skip)
		b.WriteString(` OFFSET $` + strconv.Itoa(len(args)))
	}

	return b.String(), args, nil
}

// preparePayload strips reserved keys and hashes _User passwords.
func (s *Store) preparePayload(class string, fields models.Document) (string, error) {
	data := fields.Clone()
	for _, k := range []string{models.KeyObjectID, models.KeyCreatedAt, models.KeyUpdatedAt, hashedPasswordKey} {
		delete(data, k)
	}

	if class == models.ClassUser {
		if pw, ok := data[models.FieldPassword].(string); ok {
			if pw == "" {
				return "", fmt.Errorf("password must not be empty")
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
			if err != nil {
				return "", fmt.Errorf("hashing password: %w", err)
			}
			data[hashedPasswordKey] = string(hash)
		}
	}
	delete(data, models.FieldPassword)

	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", class, err)
	}

	return string(payload), nil
}

// scanDocument scans object_id, data, created_at, updated_at into a document.
func scanDocument(scan func(dest ...any) error) (models.Document, error) {
	var (
		objectID  string
		raw       []byte
		createdAt time.Time
		updatedAt time.Time
	)

	if err := scan(&objectID, &raw, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	doc := models.Document{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding data: %w", err)
	}

	doc[models.KeyObjectID] = objectID
	doc[models.KeyCreatedAt] = models.FormatISO(createdAt)
	doc[models.KeyUpdatedAt] = models.FormatISO(updatedAt)

	return doc, nil
}

// resolveIncludes replaces pointer fields named by include paths with the
// referenced objects.
func (s *Store) resolveIncludes(ctx context.Context, doc models.Document, include []string) error {
	for _, path := range include {
		parts := strings.Split(path, ".")
		if len(parts) > maxIncludeDepth {
			return fmt.Errorf("include %q exceeds depth %d", path, maxIncludeDepth)
		}

		if err := s.includePath(ctx, doc, parts); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) includePath(ctx context.Context, doc models.Document, parts []string) error {
	key := parts[0]

	if nested, ok := doc.Object(key); ok && nested.String(models.KeyType) == "Object" {
		if len(parts) == 1 {
			return nil
		}
		return s.includePath(ctx, nested, parts[1:])
	}

	ptr, ok := doc.Pointer(key)
	if !ok || ptr.ClassName == "" {
		return nil
	}

	target, err := s.getRaw(ctx, ptr.ClassName, ptr.ObjectID)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	delete(target, hashedPasswordKey)
	target[models.KeyType] = "Object"
	target[models.KeyClassName] = ptr.ClassName
	doc[key] = map[string]any(target)

	if len(parts) > 1 {
		return s.includePath(ctx, target, parts[1:])
	}

	return nil
}

// newObjectID returns a random 10-character identifier.
func newObjectID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}
