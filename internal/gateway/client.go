// Package gateway provides the HTTP client for the remote venue and ordering
// service. It performs one authenticated call per invocation and classifies
// failures into the sync error taxonomy; retrying is left to the caller.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	apperrors "github.com/Dompi123/FOMO2025PART4/internal/errors"
	"github.com/Dompi123/FOMO2025PART4/internal/logging"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 10 * time.Second

// Config holds remote service connection configuration.
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HealthPath string // defaults to /api/health
}

// Response is a decoded success response.
type Response struct {
	Status  int
	Data    json.RawMessage
	Version int64
}

// envelope is the {data, version} body the service wraps records in.
type envelope struct {
	Data    json.RawMessage `json:"data"`
	Version *int64          `json:"version,omitempty"`
}

// errorBody is the service's error shape.
type errorBody struct {
	Message string              `json:"message"`
	Code    string              `json:"code,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
	Version *int64              `json:"version,omitempty"`
	Data    json.RawMessage     `json:"data,omitempty"`
}

// Client performs authenticated requests against the service.
type Client struct {
	config     Config
	httpClient *http.Client

	mu    sync.RWMutex
	token string
	now   func() time.Time
}

// NewClient creates a new Client.
func NewClient(config Config) *Client {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.HealthPath == "" {
		config.HealthPath = "/api/health"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Client{
		config: config,
		token:  config.Token,
		now:    time.Now,
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// SetToken replaces the bearer token, e.g. after re-authentication.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Request performs one call. A positive version is sent as If-Match.
func (c *Client) Request(ctx context.Context, method, path string, body interface{}, version int64) (*Response, error) {
	token := c.currentToken()
	if err := checkTokenExpiry(token, c.now()); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	// Create request
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to encode request body", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if version > 0 {
		req.Header.Set("If-Match", strconv.Quote(strconv.FormatInt(version, 10)))
	}

	// Execute request
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.Debug("Request failed", map[string]interface{}{
			"method": method,
			"path":   path,
			"error":  err.Error(),
		})
		return nil, apperrors.NewNetwork(fmt.Sprintf("%s %s failed", method, path), 0, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewNetwork("failed to read response body", resp.StatusCode, err)
	}

	logging.Debug("Request completed", map[string]interface{}{
		"method":      method,
		"path":        path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classify(resp.StatusCode, raw)
	}

	out := &Response{Status: resp.StatusCode, Version: parseETag(resp.Header.Get("ETag"))}
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Data == nil {
		// Bare body, not wrapped in an envelope
		out.Data = raw
		return out, nil
	}
	out.Data = env.Data
	if env.Version != nil {
		out.Version = *env.Version
	}
	return out, nil
}

// classify maps a non-2xx status to the error taxonomy.
func classify(status int, raw []byte) error {
	var body errorBody
	_ = json.Unmarshal(raw, &body)

	message := body.Message
	if message == "" {
		message = http.StatusText(status)
		if message == "" {
			message = fmt.Sprintf("HTTP %d", status)
		}
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperrors.NewAuthentication(message, status)
	case status == http.StatusConflict:
		var version int64
		if body.Version != nil {
			version = *body.Version
		}
		return apperrors.NewConflict(message, version, body.Data)
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return apperrors.NewNetwork(message, status, nil)
	default:
		return apperrors.NewValidation(message, status, body.Errors)
	}
}

// parseETag reads a numeric version from an ETag such as "7" or W/"7".
func parseETag(etag string) int64 {
	etag = strings.TrimPrefix(strings.TrimSpace(etag), "W/")
	etag = strings.Trim(etag, `"`)
	v, err := strconv.ParseInt(etag, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
