package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dafibh/jokebox/jokebox-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrUnsupportedBulkUpdate is returned for bulk updates the API does not expose
var ErrUnsupportedBulkUpdate = errors.New("only restoring the whole trash is supported")

const defaultTimeout = 10 * time.Second

// APIError is a non-2xx response from the jokebox API
type APIError struct {
	StatusCode int
	Type       string `json:"type"`
	Title      string `json:"title"`
	Detail     string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("jokebox api: %d %s: %s", e.StatusCode, e.Title, e.Detail)
	}
	return fmt.Sprintf("jokebox api: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Client talks to the jokebox API over HTTP and to its change feed over a
// websocket. It implements the record store used by the reconcile package.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	clientID   uuid.UUID
	token      string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClientID sets the X-Client-ID sent with every request
func WithClientID(id uuid.UUID) Option {
	return func(c *Client) { c.clientID = id }
}

// WithToken sets a bearer token for mutation routes
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithWebSocketURL sets the change feed endpoint
func WithWebSocketURL(wsURL string) Option {
	return func(c *Client) { c.wsURL = wsURL }
}

// New creates a Client for the API at baseURL (e.g. http://localhost:8080)
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		clientID:   uuid.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClientID returns the id this client identifies itself with
func (c *Client) ClientID() uuid.UUID {
	return c.clientID
}

type listResponse struct {
	Items []*domain.Joke `json:"items"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Size  int            `json:"size"`
}

// List reads rows [offset, offset+limit) of the active list or the trash.
// offset must be a multiple of limit.
func (c *Client) List(ctx context.Context, filter domain.JokeFilter, offset, limit int) ([]*domain.Joke, int64, error) {
	if limit <= 0 || offset < 0 || offset%limit != 0 {
		return nil, 0, fmt.Errorf("list jokes: offset %d is not a page boundary for size %d", offset, limit)
	}

	query := url.Values{}
	query.Set("deleted", strconv.FormatBool(filter.Deleted))
	query.Set("page", strconv.Itoa(offset/limit))
	query.Set("size", strconv.Itoa(limit))

	var resp listResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/jokes?"+query.Encode(), nil, &resp); err != nil {
		return nil, 0, fmt.Errorf("list jokes: %w", err)
	}
	return resp.Items, resp.Total, nil
}

// GetByID reads one joke
func (c *Client) GetByID(ctx context.Context, id int64) (*domain.Joke, error) {
	var joke domain.Joke
	if err := c.do(ctx, http.MethodGet, jokePath(id), nil, &joke); err != nil {
		return nil, fmt.Errorf("get joke %d: %w", id, err)
	}
	return &joke, nil
}

// Update applies a partial update and returns the post-write row
func (c *Client) Update(ctx context.Context, id int64, patch domain.JokePatch) (*domain.Joke, error) {
	var joke domain.Joke
	if err := c.do(ctx, http.MethodPatch, jokePath(id), patch, &joke); err != nil {
		return nil, fmt.Errorf("update joke %d: %w", id, err)
	}
	return &joke, nil
}

// UpdateWhere maps the one bulk update the API offers, restoring every
// trashed joke, and reports how many rows changed.
func (c *Client) UpdateWhere(ctx context.Context, filter domain.JokeFilter, patch domain.JokePatch) (int64, error) {
	if !filter.Deleted || patch.Rating != nil || patch.IsDeleted == nil || *patch.IsDeleted {
		return 0, ErrUnsupportedBulkUpdate
	}

	var resp struct {
		Restored int64 `json:"restored"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/jokes/restore-all", nil, &resp); err != nil {
		return 0, fmt.Errorf("restore all jokes: %w", err)
	}
	return resp.Restored, nil
}

// ListVersions returns the version history of a joke, newest first
func (c *Client) ListVersions(ctx context.Context, jokeID int64) ([]*domain.JokeVersion, error) {
	var versions []*domain.JokeVersion
	if err := c.do(ctx, http.MethodGet, jokePath(jokeID)+"/versions", nil, &versions); err != nil {
		return nil, fmt.Errorf("list versions of joke %d: %w", jokeID, err)
	}
	return versions, nil
}

// Stats is the collection summary served by the API
type Stats struct {
	ActiveCount   int64           `json:"activeCount"`
	DeletedCount  int64           `json:"deletedCount"`
	AverageRating decimal.Decimal `json:"averageRating"`
}

// Stats reads the collection summary
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.do(ctx, http.MethodGet, "/api/v1/jokes/stats", nil, &stats); err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	return &stats, nil
}

func jokePath(id int64) string {
	return "/api/v1/jokes/" + strconv.FormatInt(id, 10)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.clientID != uuid.Nil {
		req.Header.Set("X-Client-ID", c.clientID.String())
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusNotFound {
			return domain.ErrJokeNotFound
		}
		apiErr := &APIError{StatusCode: resp.StatusCode}
		// Non-JSON bodies (proxies, 502 pages) keep only the status
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
