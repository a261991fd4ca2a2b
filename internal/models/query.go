package models

// DefaultQueryLimit matches the hosted store's implicit page size.
const DefaultQueryLimit = 100

// MaxQueryLimit is the largest page the hosted store returns.
const MaxQueryLimit = 1000

// Query selects documents of one class by equality predicates.
type Query struct {
	Class   string
	Where   map[string]any
	Include []string
	Order   string
	Limit   int
	Skip    int
}

// NewQuery starts a query over class.
func NewQuery(class string) *Query {
	return &Query{Class: class, Where: map[string]any{}}
}

// EqualTo adds key == value. Pointer values match by reference.
func (q *Query) EqualTo(key string, value any) *Query {
	q.Where[key] = value
	return q
}

// Includes resolves the named pointer fields into full objects.
func (q *Query) Includes(keys ...string) *Query {
	q.Include = append(q.Include, keys...)
	return q
}

// OrderBy sorts by a field, "-field" for descending.
func (q *Query) OrderBy(order string) *Query {
	q.Order = order
	return q
}

// WithLimit caps the number of results, clamped to MaxQueryLimit.
func (q *Query) WithLimit(n int) *Query {
	q.Limit = min(n, MaxQueryLimit)
	return q
}

// EffectiveLimit returns the page size the store should apply.
func (q *Query) EffectiveLimit() int {
	if q.Limit <= 0 {
		return DefaultQueryLimit
	}

	return q.Limit
}
