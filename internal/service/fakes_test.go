package service

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/assetline/cloudhooks/internal/domain"
	"github.com/assetline/cloudhooks/internal/mail"
	"github.com/assetline/cloudhooks/internal/models"
)

var testNow = time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func fixedClock() time.Time { return testNow }

type saveCall struct {
	auth   models.Auth
	class  string
	id     string
	fields models.Document
}

type appendCall struct {
	auth   models.Auth
	class  string
	id     string
	field  string
	values []any
}

// memStore is an in-memory domain.Backend.
type memStore struct {
	mu      sync.Mutex
	docs    map[string]models.Document
	getErr  map[string]error
	saveErr error

	saves   []saveCall
	appends []appendCall
	firsts  []*models.Query
	auths   []models.Auth

	// afterFirst runs after First has read its result, outside the lock.
	afterFirst func(q *models.Query)
	// firstErr, when set, can fail a First call based on its context.
	firstErr func(ctx context.Context, q *models.Query) error

	sessionTokens map[string]string
	passwords     map[string]string
	logInErr      error
}

func newMemStore() *memStore {
	return &memStore{
		docs:          make(map[string]models.Document),
		getErr:        make(map[string]error),
		sessionTokens: make(map[string]string),
		passwords:     make(map[string]string),
	}
}

func docKey(class, id string) string { return class + "/" + id }

func (m *memStore) put(class string, doc models.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[docKey(class, doc.ObjectID())] = doc.Clone()
}

func (m *memStore) doc(class, id string) models.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[docKey(class, id)].Clone()
}

func (m *memStore) savesSnapshot() []saveCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.saves)
}

func (m *memStore) appendsSnapshot() []appendCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.appends)
}

func (m *memStore) Get(_ context.Context, auth models.Auth, class, id string, _ ...string) (models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.auths = append(m.auths, auth)
	if err := m.getErr[docKey(class, id)]; err != nil {
		return nil, err
	}

	doc, ok := m.docs[docKey(class, id)]
	if !ok {
		return nil, models.ErrNotFound
	}
	return doc.Clone(), nil
}

func (m *memStore) Find(_ context.Context, auth models.Auth, q *models.Query) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.auths = append(m.auths, auth)
	return m.findLocked(q), nil
}

func (m *memStore) findLocked(q *models.Query) []models.Document {
	var out []models.Document
	for key, doc := range m.docs {
		if !strings.HasPrefix(key, q.Class+"/") {
			continue
		}
		if !matches(doc, q.Where) {
			continue
		}

		d := doc.Clone()
		for _, inc := range q.Include {
			if ref, ok := d.Pointer(inc); ok {
				if target, found := m.docs[docKey(ref.ClassName, ref.ObjectID)]; found {
					d[inc] = target.Clone()
				}
			}
		}
		out = append(out, d)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ObjectID() < out[j].ObjectID() })

	if q.Skip >= len(out) {
		return nil
	}
	out = out[q.Skip:]
	if limit := q.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out
}

func matches(doc models.Document, where map[string]any) bool {
	for k, want := range where {
		got := doc[k]
		if wp, ok := want.(models.Pointer); ok {
			gp, ok := models.ParsePointer(got)
			if !ok || gp.ObjectID != wp.ObjectID {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

func (m *memStore) First(ctx context.Context, auth models.Auth, q *models.Query) (models.Document, error) {
	m.mu.Lock()
	m.auths = append(m.auths, auth)
	m.firsts = append(m.firsts, q)
	found := m.findLocked(q)
	hook, check := m.afterFirst, m.firstErr
	m.mu.Unlock()

	if check != nil {
		if err := check(ctx, q); err != nil {
			return nil, err
		}
	}

	if hook != nil {
		hook(q)
	}

	if len(found) == 0 {
		return nil, models.ErrNotFound
	}
	return found[0], nil
}

func (m *memStore) Create(_ context.Context, auth models.Auth, class string, fields models.Document) (models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.auths = append(m.auths, auth)
	doc := fields.Clone()
	if doc.ObjectID() == "" {
		doc[models.KeyObjectID] = class + "-new"
	}
	m.docs[docKey(class, doc.ObjectID())] = doc
	return doc.Clone(), nil
}

func (m *memStore) Save(_ context.Context, auth models.Auth, class, id string, fields models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.auths = append(m.auths, auth)
	m.saves = append(m.saves, saveCall{auth: auth, class: class, id: id, fields: fields.Clone()})
	if m.saveErr != nil {
		return m.saveErr
	}

	doc, ok := m.docs[docKey(class, id)]
	if !ok {
		return models.ErrNotFound
	}
	for k, v := range fields {
		if k == models.FieldPassword {
			m.passwords[id] = v.(string)
			continue
		}
		doc[k] = v
	}
	return nil
}

func (m *memStore) Append(_ context.Context, auth models.Auth, class, id, field string, values ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.auths = append(m.auths, auth)
	m.appends = append(m.appends, appendCall{auth: auth, class: class, id: id, field: field, values: values})
	if m.saveErr != nil {
		return m.saveErr
	}

	doc, ok := m.docs[docKey(class, id)]
	if !ok {
		return models.ErrNotFound
	}

	history, err := doc.History()
	if err != nil {
		return err
	}
	for _, v := range values {
		entry, ok := v.(models.HistoryEntry)
		if !ok {
			return errors.New("memStore: append supports history entries only")
		}
		history.Append(entry)
	}
	doc.SetHistory(history)
	return nil
}

func (m *memStore) LatestSessionToken(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.sessionTokens[userID]
	if !ok {
		return "", models.ErrSessionMissing
	}
	return token, nil
}

func (m *memStore) LogIn(_ context.Context, username, password string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.logInErr != nil {
		return models.User{}, m.logInErr
	}

	for _, doc := range m.docs {
		if doc.String(models.FieldUsername) != username {
			continue
		}
		id := doc.ObjectID()
		if m.passwords[id] != password {
			return models.User{}, models.ErrInvalidCredentials
		}
		token := "r:" + id + "-" + password[:4]
		m.sessionTokens[id] = token
		return models.User{ObjectID: id, Username: username, SessionToken: token}, nil
	}
	return models.User{}, models.ErrInvalidCredentials
}

func (m *memStore) Ping(context.Context) error { return nil }

var _ domain.Backend = (*memStore)(nil)

// memNames is an in-memory domain.NameCache.
type memNames struct {
	mu    sync.Mutex
	names map[string]string
	sets  int
}

func newMemNames() *memNames { return &memNames{names: make(map[string]string)} }

func (n *memNames) Get(_ context.Context, id string) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	name, ok := n.names[id]
	return name, ok
}

func (n *memNames) Set(_ context.Context, id, name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.names[id] = name
	n.sets++
}

type fakeMailer struct {
	sent []domain.Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg domain.Message) error {
	f.sent = append(f.sent, msg)
	return f.err
}

type fakeQueue struct {
	jobs []*mail.Job
	full bool
}

func (q *fakeQueue) Enqueue(job *mail.Job) bool {
	if q.full {
		return false
	}
	q.jobs = append(q.jobs, job)
	return true
}

type fakeFiles struct {
	bodies  map[string][]byte
	allowed map[string]bool
	err     error
	fetched []string
}

func (f *fakeFiles) Rewrite(raw string) string { return raw }

func (f *fakeFiles) Allowed(raw string) bool { return f.allowed[raw] }

func (f *fakeFiles) Fetch(_ context.Context, raw string) ([]byte, error) {
	f.fetched = append(f.fetched, raw)
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.bodies[raw]
	if !ok {
		return nil, errors.New("unexpected url " + raw)
	}
	return body, nil
}
