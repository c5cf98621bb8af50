package cosmic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ai-pro-cosmic-go/internal/config"
	"github.com/ai-pro-cosmic-go/internal/models"
	"github.com/sirupsen/logrus"
)

// Client talks to the Cosmic REST API for one bucket.
type Client struct {
	baseURL    string
	bucketSlug string
	readKey    string
	writeKey   string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a bucket client. Configuration is checked when a call
// needs it, not here.
func NewClient(cfg *config.CosmicConfig, logger *logrus.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.cosmicjs.com/v3"
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		bucketSlug: cfg.BucketSlug,
		readKey:    cfg.ReadKey,
		writeKey:   cfg.WriteKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type objectsResponse struct {
	Objects []models.Object `json:"objects"`
	Total   int             `json:"total"`
}

type objectResponse struct {
	Object models.Object `json:"object"`
}

// Find runs q and returns every matching object in store order.
func (c *Client) Find(ctx context.Context, q Query) ([]models.Object, error) {
	return c.find(ctx, q, 0)
}

// FindOne returns the first object matching q.
func (c *Client) FindOne(ctx context.Context, q Query) (*models.Object, error) {
	objects, err := c.find(ctx, q, 1)
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 {
		return nil, notFound("no object found for query")
	}
	return &objects[0], nil
}

func (c *Client) find(ctx context.Context, q Query, limit int) ([]models.Object, error) {
	if c.bucketSlug == "" || c.readKey == "" {
		return nil, fmt.Errorf("%w: bucket slug and read key are required", ErrMissingConfig)
	}

	params, err := c.readParams(q, limit)
	if err != nil {
		return nil, err
	}

	var resp objectsResponse
	if err := c.do(ctx, http.MethodGet, c.objectsPath()+"?"+params.Encode(), nil, false, &resp); err != nil {
		return nil, err
	}

	// Projections may leave out type; the query already fixes it.
	for i := range resp.Objects {
		if resp.Objects[i].Type == "" {
			resp.Objects[i].Type = q.Type
		}
	}
	return resp.Objects, nil
}

func (c *Client) readParams(q Query, limit int) (url.Values, error) {
	filter := make(map[string]any, len(q.Filters)+3)
	for k, v := range q.Filters {
		filter[k] = v
	}
	if q.Type != "" {
		filter["type"] = string(q.Type)
	}
	if q.ID != "" {
		filter["id"] = q.ID
	}
	if q.Slug != "" {
		filter["slug"] = q.Slug
	}

	encoded, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	params := url.Values{}
	params.Set("query", string(encoded))
	params.Set("read_key", c.readKey)
	if len(q.Props) > 0 {
		params.Set("props", strings.Join(q.Props, ","))
	}
	if q.Depth > 0 {
		params.Set("depth", strconv.Itoa(q.Depth))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	return params, nil
}

// InsertOne creates an object; the store assigns id, slug and timestamps.
func (c *Client) InsertOne(ctx context.Context, in Insert) (*models.Object, error) {
	if c.bucketSlug == "" || c.writeKey == "" {
		return nil, fmt.Errorf("%w: bucket slug and write key are required", ErrMissingConfig)
	}

	var resp objectResponse
	if err := c.do(ctx, http.MethodPost, c.objectsPath(), in, true, &resp); err != nil {
		return nil, err
	}
	if resp.Object.Type == "" {
		resp.Object.Type = in.Type
	}
	return &resp.Object, nil
}

// UpdateOne patches the object with the given id.
func (c *Client) UpdateOne(ctx context.Context, id string, patch Update) (*models.Object, error) {
	if c.bucketSlug == "" || c.writeKey == "" {
		return nil, fmt.Errorf("%w: bucket slug and write key are required", ErrMissingConfig)
	}

	var resp objectResponse
	path := c.objectsPath() + "/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodPatch, path, patch, true, &resp); err != nil {
		return nil, err
	}
	return &resp.Object, nil
}

func (c *Client) objectsPath() string {
	return "/buckets/" + url.PathEscape(c.bucketSlug) + "/objects"
}

func (c *Client) do(ctx context.Context, method, path string, body any, write bool, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if write {
		req.Header.Set("Authorization", "Bearer "+c.writeKey)
	}

	c.logger.WithFields(logrus.Fields{
		"method": method,
		"bucket": c.bucketSlug,
	}).Debug("Sending cosmic request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeStatusError(resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func decodeStatusError(status int, body []byte) error {
	var payload struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &payload)

	msg := payload.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &StatusError{Status: status, Message: msg}
}
