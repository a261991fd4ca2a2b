package parse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/assetline/cloudhooks/internal/models"
)

type findResponse struct {
	Results []models.Document `json:"results"`
}

type createResponse struct {
	ObjectID  string `json:"objectId"`
	CreatedAt string `json:"createdAt"`
}

// Get fetches one record by id, resolving the include keys.
func (c *Client) Get(ctx context.Context, auth models.Auth, class, objectID string, include ...string) (models.Document, error) {
	if objectID == "" {
		return nil, models.ErrMissingObjectID
	}

	params := url.Values{}
	if len(include) > 0 {
		params.Set("include", strings.Join(include, ","))
	}

	var doc models.Document
	if err := c.get(ctx, auth, objectPath(class, objectID), params, &doc); err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", class, objectID, err)
	}

	return doc, nil
}

// Find runs an equality query.
func (c *Client) Find(ctx context.Context, auth models.Auth, q *models.Query) ([]models.Document, error) {
	params, err := queryParams(q)
	if err != nil {
		return nil, err
	}

	var resp findResponse
	if err := c.get(ctx, auth, classPath(q.Class), params, &resp); err != nil {
		return nil, fmt.Errorf("find %s: %w", q.Class, err)
	}

	return resp.Results, nil
}

// First returns the first match of q or models.ErrNotFound.
func (c *Client) First(ctx context.Context, auth models.Auth, q *models.Query) (models.Document, error) {
	limited := *q
	limited.Limit = 1

	results, err := c.Find(ctx, auth, &limited)
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("first %s: %w", q.Class, models.ErrNotFound)
	}

	return results[0], nil
}

// Create inserts a record and returns it with its assigned id.
func (c *Client) Create(ctx context.Context, auth models.Auth, class string, fields models.Document) (models.Document, error) {
	var resp createResponse
	if err := c.post(ctx, auth, classPath(class), fields, &resp); err != nil {
		return nil, fmt.Errorf("create %s: %w", class, err)
	}

	doc := fields.Clone()
	doc[models.KeyObjectID] = resp.ObjectID
	doc[models.KeyCreatedAt] = resp.CreatedAt

	return doc, nil
}

// Save applies a partial update.
func (c *Client) Save(ctx context.Context, auth models.Auth, class, objectID string, fields models.Document) error {
	if objectID == "" {
		return models.ErrMissingObjectID
	}

	if err := c.put(ctx, auth, objectPath(class, objectID), fields, nil); err != nil {
		return fmt.Errorf("save %s/%s: %w", class, objectID, err)
	}

	return nil
}

// Append adds values to an array field with the server-side Add operation.
func (c *Client) Append(ctx context.Context, auth models.Auth, class, objectID, field string, values ...any) error {
	if objectID == "" {
		return models.ErrMissingObjectID
	}

	body := map[string]any{
		field: map[string]any{"__op": "Add", "objects": values},
	}

	if err := c.put(ctx, auth, objectPath(class, objectID), body, nil); err != nil {
		return fmt.Errorf("append %s/%s.%s: %w", class, objectID, field, err)
	}

	return nil
}

func queryParams(q *models.Query) (url.Values, error) {
	if q.Class == "" {
		return nil, models.ErrMissingClass
	}

	params := url.Values{}

	if len(q.Where) > 0 {
		where, err := json.Marshal(q.Where)
		if err != nil {
			return nil, fmt.Errorf("marshal where: %w", err)
		}
		params.Set("where", string(where))
	}

	if len(q.Include) > 0 {
		params.Set("include", strings.Join(q.Include, ","))
	}

	if q.Order != "" {
		params.Set("order", q.Order)
	}

	params.Set("limit", strconv.Itoa(q.EffectiveLimit()))

	if q.Skip > 0 {
		params.Set("skip", strconv.Itoa(q.Skip))
	}

	return params, nil
}
