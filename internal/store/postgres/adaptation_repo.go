package postgres

import (
	"context"
	"fmt"

	"github.com/munbon/irrigation-control/internal/adapter"
	"github.com/munbon/irrigation-control/pkg/database"
	"github.com/munbon/irrigation-control/pkg/telemetry"
)

// AdaptationRepository persists schedule_adaptations, the audit trail of
// every event the real-time adapter handled: which strategy it chose, the
// shortage it was responding to, and which zones it affected.
type AdaptationRepository struct {
	db database.DB
}

// NewAdaptationRepository builds a repository over db.
func NewAdaptationRepository(db database.DB) *AdaptationRepository {
	return &AdaptationRepository{db: db}
}

// Record appends a single adaptation event.
func (r *AdaptationRepository) Record(ctx context.Context, scheduleID, eventKind string, strategy adapter.Strategy, shortageM3 float64, affectedZones []string) error {
	ctx, span := telemetry.StartSpan(ctx, "AdaptationRepository.Record")
	defer span.End()

	_, err := r.db.Exec(ctx, `
		INSERT INTO schedule_adaptations (schedule_id, event_kind, strategy, shortage_m3, affected_zones)
		VALUES ($1, $2, $3, $4, $5)
	`, scheduleID, eventKind, string(strategy), shortageM3, affectedZones)
	if err != nil {
		return fmt.Errorf("insert schedule_adaptations: %w", err)
	}
	return nil
}

// AdaptationRecord is a single audit row as read back.
type AdaptationRecord struct {
	EventKind     string
	Strategy      string
	ShortageM3    float64
	AffectedZones []string
}

// History returns the most recent adaptation events for a schedule, newest
// first, capped at limit — the durable backing for the
// adaptation_history:{schedule} capped list spec.md's key-value layout
// names.
func (r *AdaptationRepository) History(ctx context.Context, scheduleID string, limit int) ([]AdaptationRecord, error) {
	ctx, span := telemetry.StartSpan(ctx, "AdaptationRepository.History")
	defer span.End()

	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, `
		SELECT event_kind, strategy, shortage_m3, affected_zones
		FROM schedule_adaptations WHERE schedule_id = $1 ORDER BY occurred_at DESC LIMIT $2
	`, scheduleID, limit)
	if err != nil {
		return nil, fmt.Errorf("select schedule_adaptations: %w", err)
	}
	defer rows.Close()

	var out []AdaptationRecord
	for rows.Next() {
		var rec AdaptationRecord
		if err := rows.Scan(&rec.EventKind, &rec.Strategy, &rec.ShortageM3, &rec.AffectedZones); err != nil {
			return nil, fmt.Errorf("scan schedule_adaptations: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schedule_adaptations iteration: %w", err)
	}
	return out, nil
}
