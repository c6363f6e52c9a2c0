package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/munbon/irrigation-control/internal/store/timeseries"
	"github.com/munbon/irrigation-control/pkg/database"
	"github.com/munbon/irrigation-control/pkg/telemetry"
)

// TimeSeriesSink is the default implementation of timeseries.Sink: it
// writes the same high-frequency samples a dedicated time-series database
// would own into plain Postgres tables, keeping the core runnable without
// one, per spec.md §6.4's note that this module does not own that layer.
type TimeSeriesSink struct {
	db database.DB
}

// NewTimeSeriesSink builds a sink over db. It satisfies timeseries.Sink.
func NewTimeSeriesSink(db database.DB) *TimeSeriesSink {
	return &TimeSeriesSink{db: db}
}

var _ timeseries.Sink = (*TimeSeriesSink)(nil)

// WriteGateSample appends a 1-minute-cadence gate reading.
func (s *TimeSeriesSink) WriteGateSample(ctx context.Context, sample timeseries.GateSample) error {
	ctx, span := telemetry.StartSpan(ctx, "TimeSeriesSink.WriteGateSample")
	defer span.End()

	_, err := s.db.Exec(ctx, `
		INSERT INTO gate_samples (gate_id, recorded_at, opening_m, flow_m3s, upstream_m, downstream_m)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (gate_id, recorded_at) DO NOTHING
	`, sample.GateID, sample.RecordedAt, sample.OpeningM, sample.FlowM3S, sample.UpstreamM, sample.DownstreamM)
	if err != nil {
		return fmt.Errorf("insert gate_samples: %w", err)
	}
	return nil
}

// WriteZoneVolume appends an hourly zone-volume aggregate.
func (s *TimeSeriesSink) WriteZoneVolume(ctx context.Context, sample timeseries.ZoneVolumeSample) error {
	ctx, span := telemetry.StartSpan(ctx, "TimeSeriesSink.WriteZoneVolume")
	defer span.End()

	_, err := s.db.Exec(ctx, `
		INSERT INTO zone_volume_samples (zone_id, hour_start, volume_m3)
		VALUES ($1, $2, $3)
		ON CONFLICT (zone_id, hour_start) DO UPDATE SET volume_m3 = EXCLUDED.volume_m3
	`, sample.ZoneID, sample.HourStart, sample.VolumeM3)
	if err != nil {
		return fmt.Errorf("upsert zone_volume_samples: %w", err)
	}
	return nil
}

// GateSamplesSince returns gateID's samples at or after since, oldest first.
func (s *TimeSeriesSink) GateSamplesSince(ctx context.Context, gateID string, since time.Time) ([]timeseries.GateSample, error) {
	ctx, span := telemetry.StartSpan(ctx, "TimeSeriesSink.GateSamplesSince")
	defer span.End()

	rows, err := s.db.Query(ctx, `
		SELECT gate_id, recorded_at, opening_m, flow_m3s, upstream_m, downstream_m
		FROM gate_samples WHERE gate_id = $1 AND recorded_at >= $2 ORDER BY recorded_at
	`, gateID, since)
	if err != nil {
		return nil, fmt.Errorf("select gate_samples: %w", err)
	}
	defer rows.Close()

	var out []timeseries.GateSample
	for rows.Next() {
		var sample timeseries.GateSample
		if err := rows.Scan(&sample.GateID, &sample.RecordedAt, &sample.OpeningM, &sample.FlowM3S, &sample.UpstreamM, &sample.DownstreamM); err != nil {
			return nil, fmt.Errorf("scan gate_samples: %w", err)
		}
		out = append(out, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("gate_samples iteration: %w", err)
	}
	return out, nil
}

// ZoneVolumesSince returns zoneID's hourly volumes at or after since,
// oldest first.
func (s *TimeSeriesSink) ZoneVolumesSince(ctx context.Context, zoneID string, since time.Time) ([]timeseries.ZoneVolumeSample, error) {
	ctx, span := telemetry.StartSpan(ctx, "TimeSeriesSink.ZoneVolumesSince")
	defer span.End()

	rows, err := s.db.Query(ctx, `
		SELECT zone_id, hour_start, volume_m3
		FROM zone_volume_samples WHERE zone_id = $1 AND hour_start >= $2 ORDER BY hour_start
	`, zoneID, since)
	if err != nil {
		return nil, fmt.Errorf("select zone_volume_samples: %w", err)
	}
	defer rows.Close()

	var out []timeseries.ZoneVolumeSample
	for rows.Next() {
		var sample timeseries.ZoneVolumeSample
		if err := rows.Scan(&sample.ZoneID, &sample.HourStart, &sample.VolumeM3); err != nil {
			return nil, fmt.Errorf("scan zone_volume_samples: %w", err)
		}
		out = append(out, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("zone_volume_samples iteration: %w", err)
	}
	return out, nil
}
