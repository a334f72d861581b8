// Package taskapi is the HTTP client for the task CRUD service. All task
// state lives there; this layer only translates calls and errors. Every
// request is authenticated with the credential from the request identity,
// so the service enforces user isolation, not us.
package taskapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/steward/internal/auth"
	"github.com/haasonsaas/steward/pkg/models"
)

// DefaultTimeout bounds each call to the task service.
const DefaultTimeout = 5 * time.Second

// Client talks to the task service.
type Client struct {
	baseURL string
	http    *http.Client
}

// Config holds client settings.
type Config struct {
	// BaseURL is the task service root, e.g. "http://tasks:8000".
	BaseURL string

	// Timeout bounds each request. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// NewClient builds a task service client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("task service base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// Ping checks the task service health endpoint. Used by readiness probes;
// no credential is needed.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("building health request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return models.NewDomainError(models.KindServiceUnavailable, "").
			WithCause(fmt.Errorf("health returned %d", resp.StatusCode))
	}
	return nil
}

// do issues one authenticated request and decodes the response into out
// (skipped when out is nil). The credential comes from the context
// identity; a missing identity fails closed before any bytes leave.
func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body any, out any) error {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity.Token == "" {
		return models.NewDomainError(models.KindAuthInvalid, "").
			WithCause(errors.New("no identity in request context"))
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+identity.Token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if len(query) > 0 {
		q := req.URL.Query()
		for key, value := range query {
			q.Set(key, value)
		}
		req.URL.RawQuery = q.Encode()
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return classifyStatus(resp)
	}

	if out == nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// classifyTransportError maps network failures to the error taxonomy.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewDomainError(models.KindTimeout, "").WithCause(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.NewDomainError(models.KindTimeout, "").WithCause(err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return models.NewDomainError(models.KindServiceUnavailable, "").WithCause(err)
}

// classifyStatus maps an error response to the error taxonomy. The body is
// read for the service's detail message where the caller can act on it.
func classifyStatus(resp *http.Response) error {
	detail := readDetail(resp.Body)

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		// Pass the service's explanation through so the model can
		// correct its next call.
		return models.NewDomainError(models.KindValidationFailed, detail).
			WithCause(fmt.Errorf("task service returned %d", resp.StatusCode))
	case resp.StatusCode == http.StatusUnauthorized:
		return models.NewDomainError(models.KindAuthExpired, "").
			WithCause(fmt.Errorf("task service returned 401"))
	case resp.StatusCode == http.StatusForbidden:
		return models.NewDomainError(models.KindAuthInvalid, "").
			WithCause(fmt.Errorf("task service returned 403"))
	case resp.StatusCode == http.StatusNotFound:
		return models.NewDomainError(models.KindNotFound, detail).
			WithCause(fmt.Errorf("task service returned 404"))
	case resp.StatusCode == http.StatusTooManyRequests:
		de := models.NewDomainError(models.KindRateLimited, "").
			WithCause(fmt.Errorf("task service returned 429"))
		if retryAfter := parseRetryAfter(resp.Header.Get("Retry-After")); retryAfter > 0 {
			de = de.WithRetryAfter(retryAfter)
		}
		return de
	case resp.StatusCode >= 500:
		return models.NewDomainError(models.KindServiceUnavailable, "").
			WithCause(fmt.Errorf("task service returned %d", resp.StatusCode))
	default:
		return models.NewDomainError(models.KindInternalError, "").
			WithCause(fmt.Errorf("task service returned %d", resp.StatusCode))
	}
}

// readDetail extracts the "detail" field of an error body, if any.
func readDetail(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return ""
	}
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.Detail)
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
