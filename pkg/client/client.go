// Package client pulls configs from a fastconfig server.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rendis/fastconfig/pkg/schema"
)

// DefaultTimeout bounds a single pull when no http.Client is supplied.
const DefaultTimeout = 10 * time.Second

// Error is a non-2xx answer from the server.
type Error struct {
	Status    int
	ErrorCode string
	Message   string
}

func (e *Error) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("fastconfig: %d %s: %s", e.Status, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("fastconfig: %d: %s", e.Status, e.Message)
}

// Client pulls one or more (service, env) configs with a pull token and
// keeps the last response per target for conditional requests. It is safe
// for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client

	mu    sync.Mutex
	cache map[string]*schema.PullResponse
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a Client for the server at baseURL.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("pull token is required")
	}
	c := &Client{
		baseURL: u.String(),
		token:   token,
		http:    &http.Client{Timeout: DefaultTimeout},
		cache:   make(map[string]*schema.PullResponse),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Pull fetches the current config. When the server answers 304 the cached
// response is returned and changed is false.
func (c *Client) Pull(ctx context.Context, serviceCode, env string) (resp *schema.PullResponse, changed bool, err error) {
	key := serviceCode + "/" + env
	endpoint := c.baseURL + "/api/v1/pull/" + url.PathEscape(serviceCode) + "/" + url.PathEscape(env)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", schema.MediaTypeJSON)

	c.mu.Lock()
	cached := c.cache[key]
	c.mu.Unlock()
	if cached != nil {
		req.Header.Set("If-None-Match", cached.ETag)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("pull %s: %w", key, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotModified && cached != nil {
		return cached, false, nil
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return nil, false, fmt.Errorf("read pull response: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, false, decodeError(res.StatusCode, body)
	}

	var payload struct {
		Data *schema.PullResponse `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Data == nil {
		return nil, false, fmt.Errorf("decode pull response: malformed envelope")
	}

	c.mu.Lock()
	c.cache[key] = payload.Data
	c.mu.Unlock()
	return payload.Data, true, nil
}

// Values returns the pulled content as strings, the shape configs are
// stored in.
func Values(resp *schema.PullResponse) map[string]string {
	out := make(map[string]string, len(resp.Content))
	for k, v := range resp.Content {
		switch t := v.(type) {
		case string:
			out[k] = t
		case nil:
			out[k] = ""
		default:
			raw, _ := json.Marshal(t)
			out[k] = string(raw)
		}
	}
	return out
}

func decodeError(status int, body []byte) error {
	var env schema.Envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Message == "" {
		return &Error{Status: status, Message: http.StatusText(status)}
	}
	e := &Error{Status: status, Message: env.Message}
	if data, ok := env.Data.(map[string]any); ok {
		e.ErrorCode, _ = data["error_code"].(string)
	}
	return e
}
