// Package client provides resilient HTTP clients for the external
// collaborator systems the control plane depends on but does not own:
// the agronomy/ROS demand service, the GIS service, the flow-monitoring
// SCADA bridge, and the weather service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/munbon/irrigation-control/pkg/apperror"
)

// Config configures a collaborator HTTP client.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// DefaultConfig returns a Config with conservative defaults, matching the
// 30s default deadline used across the control plane's outbound calls.
func DefaultConfig() Config {
	return Config{
		Timeout:      30 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 200 * time.Millisecond,
	}
}

// Client is a circuit-breaker-protected JSON/HTTP client shared by every
// collaborator-specific client in this package.
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	baseURL    string
	maxRetries int
	backoff    time.Duration
}

// New creates a Client for the named collaborator. name is used as the
// circuit breaker identity in logs and metrics.
func New(name string, cfg Config) *Client {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    gobreaker.NewCircuitBreaker(settings),
		baseURL:    cfg.BaseURL,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
	}
}

// Do issues a JSON request against this collaborator's base URL and
// decodes the response into out (which may be nil for fire-and-forget
// calls). It is exported so ambient-stack consumers outside this
// package, such as the audit sink, can reuse the same retry and
// circuit-breaker behavior without duplicating it.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	return c.doJSON(ctx, method, path, body, out)
}

// doJSON issues a request with the given method/path/body and decodes the
// JSON response into out. It retries transient failures with exponential
// backoff (the wait doubles after each attempt) and trips the circuit
// breaker after repeated consecutive failures so a degraded collaborator
// cannot stall every caller.
func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return apperror.Wrap(err, apperror.CodeInvalidArgument, "failed to encode request body")
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return apperror.Wrap(ctx.Err(), apperror.CodeCollaboratorTimeout, "request cancelled during retry backoff")
			case <-time.After(c.backoff << (attempt - 1)):
			}
		}

		result, err := c.breaker.Execute(func() (any, error) {
			return c.doOnce(ctx, method, path, payload)
		})
		if err == nil {
			if out != nil && result != nil {
				if raw, ok := result.([]byte); ok && len(raw) > 0 {
					if jsonErr := json.Unmarshal(raw, out); jsonErr != nil {
						return apperror.Wrap(jsonErr, apperror.CodeCollaboratorUnavailable, "failed to decode response body")
					}
				}
			}
			return nil
		}

		lastErr = err
		if !isRetryable(err) {
			break
		}
	}

	if lastErr == nil {
		return nil
	}

	if ctx.Err() != nil {
		return apperror.Wrap(lastErr, apperror.CodeCollaboratorTimeout, "collaborator request timed out")
	}
	return apperror.Wrap(lastErr, apperror.CodeCollaboratorUnavailable, "collaborator request failed")
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("collaborator returned status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return raw, gobreaker.ErrTooManyRequests // non-retryable, surfaced as-is below
	}

	return raw, nil
}

func isRetryable(err error) bool {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return false
	}
	return true
}
