package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ClientConfig configures the shared HTTP core used by all adapters.
type ClientConfig struct {
	// Name is the provider identifier, used in errors and logs.
	Name string

	// BaseURL is the API endpoint base URL, without a trailing slash.
	BaseURL string

	// APIKey is the bearer credential. It is held in memory only and
	// must never appear in logs or errors.
	APIKey string

	// Headers are extra headers sent with every request.
	Headers map[string]string

	// Timeout bounds each outbound HTTP request.
	Timeout time.Duration

	// MaxIdleConns is the connection pool size.
	MaxIdleConns int

	// MaxIdleConnsPerHost is the per-host connection pool size.
	MaxIdleConnsPerHost int
}

// HTTPCore is the base HTTP client embedded by every provider adapter.
// It owns the pooled transport, applies authentication and default
// headers, and maps HTTP status codes onto the package error taxonomy.
type HTTPCore struct {
	config ClientConfig
	client *http.Client
}

// NewHTTPCore creates the base client with a pooled transport.
func NewHTTPCore(config ClientConfig) *HTTPCore {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 10
	}
	if config.MaxIdleConnsPerHost == 0 {
		config.MaxIdleConnsPerHost = 5
	}

	transport := &http.Transport{
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &HTTPCore{
		config: config,
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
	}
}

// Name returns the provider identifier.
func (c *HTTPCore) Name() string { return c.config.Name }

// Close releases pooled connections.
func (c *HTTPCore) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// Do performs one HTTP request and returns the response body on 2xx.
// Non-2xx statuses map onto the package error taxonomy; no retry
// happens here. The retry policy for 503 lives in Backoff and is
// applied by adapters that need it.
func (c *HTTPCore) Do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	url := c.config.BaseURL + "/" + strings.TrimPrefix(path, "/")

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range c.config.Headers {
		req.Header.Set(key, value)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	slog.Debug("sending provider request",
		"provider", c.config.Name,
		"method", method,
		"path", path,
	)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &TransientError{
				Provider: c.config.Name,
				Message:  "request cancelled or timed out",
				Cause:    ctx.Err(),
			}
		}
		return nil, &TransientError{
			Provider: c.config.Name,
			Message:  "connection failed",
			Cause:    err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{
			Provider: c.config.Name,
			Message:  "failed to read response body",
			Cause:    err,
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil
	}

	return nil, c.statusError(resp.StatusCode, respBody)
}

// statusError maps a non-2xx status and body onto a typed error.
func (c *HTTPCore) statusError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthError{Provider: c.config.Name, StatusCode: status, Message: msg}

	case status == http.StatusPaymentRequired || status == http.StatusTooManyRequests:
		return &QuotaError{Provider: c.config.Name, StatusCode: status, Message: msg}

	case status == http.StatusServiceUnavailable:
		return &LoadingError{Provider: c.config.Name, Message: msg}

	case status >= 500:
		return &TransientError{Provider: c.config.Name, StatusCode: status, Message: msg}

	default:
		return &ProviderError{Provider: c.config.Name, StatusCode: status, Message: msg}
	}
}

// PostJSON marshals reqBody, performs a POST, and decodes the response
// into out. Decode failures surface as ParseError.
func (c *HTTPCore) PostJSON(ctx context.Context, path string, reqBody, out any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	respBody, err := c.Do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &ParseError{
				Provider:    c.config.Name,
				RawResponse: string(respBody),
				Cause:       err,
			}
		}
	}
	return nil
}

// GetJSON performs a GET and decodes the response into out.
func (c *HTTPCore) GetJSON(ctx context.Context, path string, out any) error {
	respBody, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &ParseError{
				Provider:    c.config.Name,
				RawResponse: string(respBody),
				Cause:       err,
			}
		}
	}
	return nil
}

// DecodeModelList parses a provider model listing. Providers disagree
// on the envelope key ("models" vs "data") and on entry shapes, so the
// decode is tolerant: entries missing a name fall back to the ID.
func DecodeModelList(provider string, body []byte) ([]Model, error) {
	var envelope struct {
		Models []modelEntry `json:"models"`
		Data   []modelEntry `json:"data"`
	}

	if err := json.Unmarshal(body, &envelope); err != nil {
		// Some providers return a bare list.
		var bare []modelEntry
		if berr := json.Unmarshal(body, &bare); berr != nil {
			return nil, &ParseError{
				Provider:    provider,
				RawResponse: string(body),
				Cause:       err,
			}
		}
		return normalizeModels(bare), nil
	}

	entries := envelope.Models
	if len(entries) == 0 {
		entries = envelope.Data
	}
	return normalizeModels(entries), nil
}

// modelEntry is the tolerant raw shape of one listed model.
type modelEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func normalizeModels(entries []modelEntry) []Model {
	models := make([]Model, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" && e.Name == "" {
			continue
		}
		m := Model{ID: e.ID, Name: e.Name}
		if m.ID == "" {
			m.ID = m.Name
		}
		if m.Name == "" {
			m.Name = m.ID
		}
		models = append(models, m)
	}
	return models
}
