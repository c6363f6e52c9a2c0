package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/munbon/irrigation-control/internal/team"
	"github.com/munbon/irrigation-control/pkg/apperror"
	"github.com/munbon/irrigation-control/pkg/database"
	"github.com/munbon/irrigation-control/pkg/telemetry"
)

// TeamRepository persists field_teams and team_availability.
type TeamRepository struct {
	db database.DB
}

// NewTeamRepository builds a repository over db.
func NewTeamRepository(db database.DB) *TeamRepository {
	return &TeamRepository{db: db}
}

// ErrTeamNotFound is returned when GetByCode finds no row.
var ErrTeamNotFound = apperror.New(apperror.CodeTeamNotFound, "team not found")

// List returns every field team, used by C8/C7 to source the roster for a
// planning run.
func (r *TeamRepository) List(ctx context.Context) ([]team.Team, error) {
	ctx, span := telemetry.StartSpan(ctx, "TeamRepository.List")
	defer span.End()

	rows, err := r.db.Query(ctx, `
		SELECT code, base_lat_deg, base_lon_deg, operating_hours_start, operating_hours_end,
			max_operations_per_day, vehicle_speed_kmh, capabilities, assigned_zones, status
		FROM field_teams
	`)
	if err != nil {
		return nil, fmt.Errorf("select field_teams: %w", err)
	}
	defer rows.Close()

	var teams []team.Team
	for rows.Next() {
		var t team.Team
		var startNS, endNS int64
		if err := rows.Scan(
			&t.Code, &t.BaseLatDeg, &t.BaseLonDeg, &startNS, &endNS,
			&t.MaxOperationsPerDay, &t.VehicleSpeedKMH, &t.Capabilities, &t.AssignedZones, &t.Status,
		); err != nil {
			return nil, fmt.Errorf("scan field_teams: %w", err)
		}
		t.OperatingHours = team.TimeWindow{Start: time.Duration(startNS), End: time.Duration(endNS)}
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("field_teams iteration: %w", err)
	}
	return teams, nil
}

// GetByCode loads a single team.
func (r *TeamRepository) GetByCode(ctx context.Context, code string) (*team.Team, error) {
	ctx, span := telemetry.StartSpan(ctx, "TeamRepository.GetByCode")
	defer span.End()

	var t team.Team
	var startNS, endNS int64
	err := r.db.QueryRow(ctx, `
		SELECT code, base_lat_deg, base_lon_deg, operating_hours_start, operating_hours_end,
			max_operations_per_day, vehicle_speed_kmh, capabilities, assigned_zones, status
		FROM field_teams WHERE code = $1
	`, code).Scan(
		&t.Code, &t.BaseLatDeg, &t.BaseLonDeg, &startNS, &endNS,
		&t.MaxOperationsPerDay, &t.VehicleSpeedKMH, &t.Capabilities, &t.AssignedZones, &t.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("select field_teams: %w", err)
	}
	t.OperatingHours = team.TimeWindow{Start: time.Duration(startNS), End: time.Duration(endNS)}
	return &t, nil
}

// RecordUnavailability inserts a team_availability row, the durable record
// behind a TeamUnavailableEvent.
func (r *TeamRepository) RecordUnavailability(ctx context.Context, u team.Unavailability) error {
	ctx, span := telemetry.StartSpan(ctx, "TeamRepository.RecordUnavailability")
	defer span.End()

	_, err := r.db.Exec(ctx, `
		INSERT INTO team_availability (team_code, unavailable_from, unavailable_until, reason)
		VALUES ($1, $2, $3, $4)
	`, u.TeamCode, u.From, u.Until, u.Reason)
	if err != nil {
		return fmt.Errorf("insert team_availability: %w", err)
	}
	return nil
}

// SetStatus updates a team's live availability flag.
func (r *TeamRepository) SetStatus(ctx context.Context, code string, status team.Status) error {
	ctx, span := telemetry.StartSpan(ctx, "TeamRepository.SetStatus")
	defer span.End()

	tag, err := r.db.Exec(ctx, `UPDATE field_teams SET status = $1 WHERE code = $2`, status, code)
	if err != nil {
		return fmt.Errorf("update field_teams: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTeamNotFound
	}
	return nil
}
