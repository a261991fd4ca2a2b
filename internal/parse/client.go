// Package parse is a client for a Parse-compatible hosted document store REST API.
package parse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/assetline/cloudhooks/internal/models"
)

// Client talks to a Parse-compatible REST API. It implements domain.Backend.
type Client struct {
	baseURL    string
	appID      string
	restKey    string
	masterKey  string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithRESTKey sets the REST API key sent with every request.
func WithRESTKey(key string) Option {
	return func(c *Client) { c.restKey = key }
}

// WithMasterKey sets the master key used for master-privileged calls.
func WithMasterKey(key string) Option {
	return func(c *Client) { c.masterKey = key }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New creates a client for the given server URL (e.g. "https://parse.example.com/parse").
func New(baseURL, appID string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		appID:      appID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Ping checks the server's health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.get(ctx, models.Auth{}, "/health", nil, nil)
}

// do executes an HTTP request and decodes the JSON response.
func (c *Client) do(ctx context.Context, auth models.Auth, method, path string, body, result any) error {
	u := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuthHeaders(req, auth)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseAPIError(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) setAuthHeaders(req *http.Request, auth models.Auth) {
	req.Header.Set("X-Parse-Application-Id", c.appID)
	if c.restKey != "" {
		req.Header.Set("X-Parse-REST-API-Key", c.restKey)
	}
	if auth.Master {
		req.Header.Set("X-Parse-Master-Key", c.masterKey)
	}
	if auth.SessionToken != "" {
		req.Header.Set("X-Parse-Session-Token", auth.SessionToken)
	}
}

func (c *Client) get(ctx context.Context, auth models.Auth, path string, params url.Values, result any) error {
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	return c.do(ctx, auth, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, auth models.Auth, path string, body, result any) error {
	return c.do(ctx, auth, http.MethodPost, path, body, result)
}

func (c *Client) put(ctx context.Context, auth models.Auth, path string, body, result any) error {
	return c.do(ctx, auth, http.MethodPut, path, body, result)
}

// classPath maps system classes to their dedicated endpoints.
func classPath(class string) string {
	switch class {
	case models.ClassUser:
		return "/users"
	case models.ClassSession:
		return "/sessions"
	case "_Role":
		return "/roles"
	case "_Installation":
		return "/installations"
	default:
		return "/classes/" + url.PathEscape(class)
	}
}

func objectPath(class, objectID string) string {
	return classPath(class) + "/" + url.PathEscape(objectID)
}
