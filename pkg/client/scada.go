package client

import (
	"context"
	"time"

	"github.com/munbon/irrigation-control/pkg/ratelimit"
)

// scadaSetpointRateKey is the single bucket every outbound setpoint command
// shares: SCADA throttles by command volume against the bridge as a whole,
// not per gate.
const scadaSetpointRateKey = "scada-setpoint"

// SCADAClient bridges to the field telemetry system that reports actual
// gate openings and accepts automated setpoint commands. Gates outside
// the automated prefix set are never written to through this client.
type SCADAClient struct {
	*Client
	limiter ratelimit.Limiter
}

// NewSCADAClient creates a SCADAClient.
func NewSCADAClient(cfg Config) *SCADAClient {
	return &SCADAClient{Client: New("scada", cfg)}
}

// SetRateLimiter throttles outbound setpoint commands through limiter. A
// nil limiter (the default) disables throttling.
func (c *SCADAClient) SetRateLimiter(limiter ratelimit.Limiter) {
	c.limiter = limiter
}

// GateTelemetry is the live reading for one automated gate.
type GateTelemetry struct {
	GateID        string    `json:"gate_id"`
	OpeningM      float64   `json:"opening_m"`
	UpstreamM     float64   `json:"upstream_level_m"`
	DownstreamM   float64   `json:"downstream_level_m"`
	ObservedAt    time.Time `json:"observed_at"`
	Reachable     bool      `json:"reachable"`
}

// GetGateTelemetry fetches the latest reading for a gate.
func (c *SCADAClient) GetGateTelemetry(ctx context.Context, gateID string) (*GateTelemetry, error) {
	var out GateTelemetry
	if err := c.doJSON(ctx, "GET", "/gates/"+gateID+"/telemetry", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetpointCommand is an automated opening command sent to SCADA.
type SetpointCommand struct {
	GateID     string  `json:"gate_id"`
	OpeningM   float64 `json:"opening_m"`
	IssuedBy   string  `json:"issued_by"`
}

// SendSetpoint pushes a new automated opening to SCADA. Callers are
// responsible for confirming the gate ID matches an automated prefix
// before calling this method. When a rate limiter is configured, it waits
// for a slot on scadaSetpointRateKey before issuing the command, throttling
// the whole fleet's setpoint command volume rather than each gate's.
func (c *SCADAClient) SendSetpoint(ctx context.Context, cmd SetpointCommand) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, scadaSetpointRateKey); err != nil {
			return err
		}
	}
	return c.doJSON(ctx, "POST", "/gates/"+cmd.GateID+"/setpoint", cmd, nil)
}
