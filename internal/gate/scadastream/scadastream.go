// Package scadastream consumes the SCADA push-stream of gate-state changes
// over WebSocket and feeds it into internal/gate.Registry, the live half of
// C9's automated-gate state. No collaborator in the surrounding pack speaks
// WebSocket, so this follows pkg/client's resilience idiom (structured
// config, apperror-wrapped errors) adapted to a long-lived connection
// rather than pkg/client's request/response shape.
package scadastream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/munbon/irrigation-control/internal/gate"
	"github.com/munbon/irrigation-control/internal/store/timeseries"
	"github.com/munbon/irrigation-control/pkg/apperror"
	"github.com/munbon/irrigation-control/pkg/logger"
)

// Config configures the stream consumer.
type Config struct {
	URL               string
	ReconnectBackoff  time.Duration
	MaxBackoff        time.Duration
	ReadTimeout       time.Duration
	HandshakeTimeout  time.Duration
}

// DefaultConfig returns conservative reconnect/backoff defaults.
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		ReconnectBackoff: time.Second,
		MaxBackoff:       30 * time.Second,
		ReadTimeout:      90 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

// telemetryMessage is the wire shape pushed by SCADA for one gate-state
// change, matching pkg/client.GateTelemetry's field set.
type telemetryMessage struct {
	GateID      string    `json:"gate_id"`
	OpeningM    float64   `json:"opening_m"`
	FlowM3S     float64   `json:"flow_m3s"`
	ObservedAt  time.Time `json:"observed_at"`
	Reachable   bool      `json:"reachable"`
}

// Consumer holds a reconnecting WebSocket connection to the SCADA stream,
// applies every telemetry message it receives to a gate registry, and
// optionally archives it as a time-series sample.
type Consumer struct {
	cfg      Config
	registry *gate.Registry
	sink     timeseries.Sink
	dialer   *websocket.Dialer
}

// NewConsumer builds a Consumer that applies stream updates to registry.
// sink may be nil, in which case readings are not archived.
func NewConsumer(cfg Config, registry *gate.Registry, sink timeseries.Sink) *Consumer {
	return &Consumer{
		cfg:      cfg,
		registry: registry,
		sink:     sink,
		dialer:   &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
	}
}

// Name identifies this worker in server logs and the health surface.
func (c *Consumer) Name() string { return "scada-stream-consumer" }

// Run connects to the SCADA stream and applies messages until ctx is
// cancelled, reconnecting with exponential backoff on any read or dial
// failure. It only returns once ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := c.cfg.ReconnectBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	maxBackoff := c.cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			logger.Warn("scada stream disconnected, reconnecting", "error", err, "backoff", backoff.String())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// runOnce dials the stream and consumes messages until the connection
// drops or ctx is cancelled, returning the dial or read error that ended
// it. Run keeps doubling its backoff across reconnects; a successful
// connect does not reset it.
func (c *Consumer) runOnce(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeSCADAUnreachable, "failed to connect to scada stream")
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	readTimeout := c.cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 90 * time.Second
	}

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return apperror.Wrap(err, apperror.CodeSCADAUnreachable, "scada stream read failed")
		}

		var msg telemetryMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Warn("dropping malformed scada stream message", "error", err)
			continue
		}

		if err := c.registry.ApplyTelemetry(msg.GateID, msg.OpeningM, msg.FlowM3S, msg.ObservedAt, msg.Reachable); err != nil {
			logger.Warn("failed to apply scada telemetry", "gate_id", msg.GateID, "error", err)
		}

		if c.sink != nil && msg.Reachable {
			sample := timeseries.GateSample{
				GateID: msg.GateID, RecordedAt: msg.ObservedAt,
				OpeningM: msg.OpeningM, FlowM3S: msg.FlowM3S,
			}
			if err := c.sink.WriteGateSample(ctx, sample); err != nil {
				logger.Warn("failed to archive gate sample", "gate_id", msg.GateID, "error", err)
			}
		}
	}
}
