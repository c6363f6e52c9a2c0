// Package audit provides components for capturing, storing, and querying audit logs.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/munbon/irrigation-control/pkg/client"
	"github.com/munbon/irrigation-control/pkg/logger"
)

// HTTPClient implements the Logger interface by shipping audit events to
// an external audit sink over HTTP. It buffers events and sends them in
// batches so that a burst of schedule/gate activity does not block
// request-handling goroutines on network I/O.
type HTTPClient struct {
	http   *client.Client
	config *HTTPClientConfig
	buffer chan *Entry
	done   chan struct{}
	wg     sync.WaitGroup
}

// HTTPClientConfig holds configuration parameters for the HTTPClient.
type HTTPClientConfig struct {
	BaseURL      string        // Base URL of the audit sink service.
	Timeout      time.Duration // Timeout for HTTP calls.
	BufferSize   int           // Size of the internal buffer for audit entries.
	BatchSize    int           // Maximum number of entries to send in a single batch.
	FlushPeriod  time.Duration // Period after which buffered entries are flushed.
	MaxRetries   int           // Maximum number of retries for a batch post.
	RetryBackoff time.Duration // Time to wait between retries.
}

// DefaultHTTPClientConfig returns an HTTPClientConfig struct with default values.
func DefaultHTTPClientConfig() *HTTPClientConfig {
	return &HTTPClientConfig{
		BaseURL:      "http://localhost:8090",
		Timeout:      5 * time.Second,
		BufferSize:   10000,
		BatchSize:    100,
		FlushPeriod:  5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 100 * time.Millisecond,
	}
}

// NewHTTPClient creates and initializes a new HTTPClient, starting a
// background goroutine that buffers and flushes audit events.
func NewHTTPClient(cfg *HTTPClientConfig) *HTTPClient {
	if cfg == nil {
		cfg = DefaultHTTPClientConfig()
	}

	c := &HTTPClient{
		http: client.New("audit", client.Config{
			BaseURL:      cfg.BaseURL,
			Timeout:      cfg.Timeout,
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
		}),
		config: cfg,
		buffer: make(chan *Entry, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	c.wg.Add(1)
	go c.processLoop()

	return c
}

// Log sends an audit entry to the client's buffer. If the buffer is full,
// it attempts to send the entry synchronously instead of dropping it.
func (c *HTTPClient) Log(ctx context.Context, entry *Entry) error {
	select {
	case c.buffer <- entry:
		return nil
	default:
		return c.sendBatch(ctx, []*Entry{entry})
	}
}

// Query is not supported by the HTTPClient; the external audit sink owns
// its own query surface.
func (c *HTTPClient) Query(ctx context.Context, filter *QueryFilter) ([]*Entry, error) {
	return nil, nil
}

// Close shuts down the HTTPClient, flushing any remaining buffered events.
func (c *HTTPClient) Close() error {
	close(c.done)
	c.wg.Wait()
	return nil
}

func (c *HTTPClient) processLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.FlushPeriod)
	defer ticker.Stop()

	batch := make([]*Entry, 0, c.config.BatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := c.sendBatch(context.Background(), batch); err != nil {
			logger.Log.Warn("failed to send audit batch", "error", err, "count", len(batch))
		}
		batch = make([]*Entry, 0, c.config.BatchSize)
	}

	for {
		select {
		case <-c.done:
			for {
				select {
				case entry := <-c.buffer:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}

		case entry := <-c.buffer:
			batch = append(batch, entry)
			if len(batch) >= c.config.BatchSize {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}

// sendBatch posts a batch of audit entries to the audit sink.
func (c *HTTPClient) sendBatch(ctx context.Context, entries []*Entry) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	return c.http.Do(ctx, "POST", "/entries", entries, nil)
}
