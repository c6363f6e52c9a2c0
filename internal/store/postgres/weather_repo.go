package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/munbon/irrigation-control/internal/weather"
	"github.com/munbon/irrigation-control/pkg/database"
	"github.com/munbon/irrigation-control/pkg/telemetry"
)

// WeatherAdjustmentRepository persists weekly_weather_adjustments (daily,
// per-zone) and weekly_adjustment_summaries (the rolled-up feed-forward
// record C6 hands to the next week's C7 run).
type WeatherAdjustmentRepository struct {
	db database.DB
}

// NewWeatherAdjustmentRepository builds a repository over db.
func NewWeatherAdjustmentRepository(db database.DB) *WeatherAdjustmentRepository {
	return &WeatherAdjustmentRepository{db: db}
}

// SaveDaily upserts a single day's adjustment for a zone.
func (r *WeatherAdjustmentRepository) SaveDaily(ctx context.Context, day time.Time, adj weather.DailyAdjustment) error {
	ctx, span := telemetry.StartSpan(ctx, "WeatherAdjustmentRepository.SaveDaily")
	defer span.End()

	demandMultiplier := 1 - adj.DemandReductionPercent/100
	etMultiplier := 1 + adj.ETAdjustmentPercent/100
	applicationTimeDelta := adj.ApplicationTimeIncreasePercent

	_, err := r.db.Exec(ctx, `
		INSERT INTO weekly_weather_adjustments (
			zone_id, day, demand_multiplier, et_multiplier, application_time_delta, cancelled, applied_rules
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (zone_id, day) DO UPDATE SET
			demand_multiplier = EXCLUDED.demand_multiplier,
			et_multiplier = EXCLUDED.et_multiplier,
			application_time_delta = EXCLUDED.application_time_delta,
			cancelled = EXCLUDED.cancelled,
			applied_rules = EXCLUDED.applied_rules
	`, adj.Zone, day, demandMultiplier, etMultiplier, applicationTimeDelta, adj.OperationsCancelled, adj.AppliedRules)
	if err != nil {
		return fmt.Errorf("upsert weekly_weather_adjustments: %w", err)
	}
	return nil
}

// SaveWeeklySummary persists the accumulated week, the feed-forward input
// to the next week's C7 run.
func (r *WeatherAdjustmentRepository) SaveWeeklySummary(ctx context.Context, isoYear, isoWeek int, s weather.WeeklySummary) error {
	ctx, span := telemetry.StartSpan(ctx, "WeatherAdjustmentRepository.SaveWeeklySummary")
	defer span.End()

	blackout := make([]string, 0, len(s.BlackoutDates))
	for _, d := range s.BlackoutDates {
		blackout = append(blackout, d.Format("2006-01-02"))
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO weekly_adjustment_summaries (
			zone_id, iso_year, iso_week, demand_multiplier, et_multiplier, application_time_delta, blackout_dates
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (zone_id, iso_year, iso_week) DO UPDATE SET
			demand_multiplier = EXCLUDED.demand_multiplier,
			et_multiplier = EXCLUDED.et_multiplier,
			application_time_delta = EXCLUDED.application_time_delta,
			blackout_dates = EXCLUDED.blackout_dates
	`, s.Zone, isoYear, isoWeek, s.DemandModifier, s.ETModifier, s.ApplicationTimeModifier, blackout)
	if err != nil {
		return fmt.Errorf("upsert weekly_adjustment_summaries: %w", err)
	}
	return nil
}

// GetWeeklySummary loads the prior week's accumulated adjustment for zoneID,
// the feed-forward input the optimizer multiplies into next week's demand.
func (r *WeatherAdjustmentRepository) GetWeeklySummary(ctx context.Context, zoneID string, isoYear, isoWeek int) (*weather.WeeklySummary, error) {
	ctx, span := telemetry.StartSpan(ctx, "WeatherAdjustmentRepository.GetWeeklySummary")
	defer span.End()

	s := weather.WeeklySummary{Zone: zoneID}
	var blackout []string
	err := r.db.QueryRow(ctx, `
		SELECT demand_multiplier, et_multiplier, application_time_delta, blackout_dates
		FROM weekly_adjustment_summaries WHERE zone_id = $1 AND iso_year = $2 AND iso_week = $3
	`, zoneID, isoYear, isoWeek).Scan(&s.DemandModifier, &s.ETModifier, &s.ApplicationTimeModifier, &blackout)
	if err != nil {
		return nil, fmt.Errorf("select weekly_adjustment_summaries: %w", err)
	}

	for _, raw := range blackout {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			continue
		}
		s.BlackoutDates = append(s.BlackoutDates, d)
	}
	return &s, nil
}
