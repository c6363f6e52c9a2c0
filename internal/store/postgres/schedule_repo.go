// Package postgres persists the core entities (schedules, operations,
// teams, weather adjustments, gate-operation audit log) to PostgreSQL via
// pkg/database, grounded on the teacher's repository-per-entity layout.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	sched "github.com/munbon/irrigation-control/internal/schedule"
	"github.com/munbon/irrigation-control/pkg/apperror"
	"github.com/munbon/irrigation-control/pkg/database"
	"github.com/munbon/irrigation-control/pkg/telemetry"
)

// ScheduleRepository persists weekly_schedules and scheduled_operations.
type ScheduleRepository struct {
	db database.DB
}

// NewScheduleRepository builds a repository over db.
func NewScheduleRepository(db database.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Create inserts a new weekly schedule and its operations inside a single
// transaction.
func (r *ScheduleRepository) Create(ctx context.Context, s *sched.Schedule) error {
	ctx, span := telemetry.StartSpan(ctx, "ScheduleRepository.Create")
	defer span.End()

	return database.WithTransaction(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO weekly_schedules (
				id, iso_year, iso_week, status, version,
				total_demand_m3, allocated_m3, efficiency_pct, travel_km, labor_hours
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			s.ID, s.Week.ISOYear, s.Week.ISOWeek, s.Status, s.Version,
			s.Metrics.TotalDemandM3, s.Metrics.AllocatedM3, s.Metrics.EfficiencyPct, s.Metrics.TravelKM, s.Metrics.LaborHours,
		)
		if err != nil {
			return fmt.Errorf("insert weekly_schedules: %w", err)
		}

		for _, op := range s.Operations {
			if err := insertOperation(ctx, tx, s.ID, op); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertOperation(ctx context.Context, tx pgx.Tx, scheduleID string, op *sched.Operation) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO scheduled_operations (
			id, schedule_id, gate_id, operation_date, planned_start, planned_end,
			sequence, target_opening_percent, expected_flow_before_m3s, expected_flow_after_m3s,
			team_id, status, actual_start, actual_end, actual_opening_percent,
			override_reason, override_operator
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`,
		op.ID, scheduleID, op.GateID, op.OperationDate, op.PlannedStart, op.PlannedEnd,
		op.Sequence, op.TargetOpeningPercent, op.ExpectedFlowBeforeM3S, op.ExpectedFlowAfterM3S,
		op.TeamID, op.Status, op.ActualStart, op.ActualEnd, op.ActualOpeningPercent,
		op.OverrideReason, op.OverrideOperator,
	)
	if err != nil {
		return fmt.Errorf("insert scheduled_operations: %w", err)
	}
	return nil
}

// ErrScheduleNotFound is returned when GetByID/GetActiveForWeek finds no row.
var ErrScheduleNotFound = apperror.New(apperror.CodeScheduleNotFound, "schedule not found")

// GetByID loads a schedule and its operations.
func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*sched.Schedule, error) {
	ctx, span := telemetry.StartSpan(ctx, "ScheduleRepository.GetByID")
	defer span.End()

	s := &sched.Schedule{ID: id}
	err := r.db.QueryRow(ctx, `
		SELECT iso_year, iso_week, status, version,
			total_demand_m3, allocated_m3, efficiency_pct, travel_km, labor_hours
		FROM weekly_schedules WHERE id = $1
	`, id).Scan(
		&s.Week.ISOYear, &s.Week.ISOWeek, &s.Status, &s.Version,
		&s.Metrics.TotalDemandM3, &s.Metrics.AllocatedM3, &s.Metrics.EfficiencyPct, &s.Metrics.TravelKM, &s.Metrics.LaborHours,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("select weekly_schedules: %w", err)
	}

	ops, err := r.listOperations(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Operations = ops
	return s, nil
}

// GetActiveForWeek loads the schedule whose status is active for the given
// ISO week, enforcing the at-most-one-active-schedule-per-week invariant by
// construction (the caller never sees more than one row).
func (r *ScheduleRepository) GetActiveForWeek(ctx context.Context, week sched.Week) (*sched.Schedule, error) {
	ctx, span := telemetry.StartSpan(ctx, "ScheduleRepository.GetActiveForWeek")
	defer span.End()

	var id string
	err := r.db.QueryRow(ctx, `
		SELECT id FROM weekly_schedules WHERE iso_year = $1 AND iso_week = $2 AND status = 'active'
	`, week.ISOYear, week.ISOWeek).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("select active weekly_schedules: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *ScheduleRepository) listOperations(ctx context.Context, scheduleID string) ([]*sched.Operation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, gate_id, operation_date, planned_start, planned_end, sequence,
			target_opening_percent, expected_flow_before_m3s, expected_flow_after_m3s,
			team_id, status, actual_start, actual_end, actual_opening_percent,
			override_reason, override_operator
		FROM scheduled_operations WHERE schedule_id = $1 ORDER BY sequence
	`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("select scheduled_operations: %w", err)
	}
	defer rows.Close()

	var ops []*sched.Operation
	for rows.Next() {
		op := &sched.Operation{ScheduleID: scheduleID}
		if err := rows.Scan(
			&op.ID, &op.GateID, &op.OperationDate, &op.PlannedStart, &op.PlannedEnd, &op.Sequence,
			&op.TargetOpeningPercent, &op.ExpectedFlowBeforeM3S, &op.ExpectedFlowAfterM3S,
			&op.TeamID, &op.Status, &op.ActualStart, &op.ActualEnd, &op.ActualOpeningPercent,
			&op.OverrideReason, &op.OverrideOperator,
		); err != nil {
			return nil, fmt.Errorf("scan scheduled_operations: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scheduled_operations iteration: %w", err)
	}
	return ops, nil
}

// UpdateStatusAndVersion persists a schedule's lifecycle transition (e.g.
// Approve/Activate) along with its version bump. The caller has already
// validated the transition via the Schedule methods.
func (r *ScheduleRepository) UpdateStatusAndVersion(ctx context.Context, s *sched.Schedule) error {
	ctx, span := telemetry.StartSpan(ctx, "ScheduleRepository.UpdateStatusAndVersion")
	defer span.End()

	tag, err := r.db.Exec(ctx, `
		UPDATE weekly_schedules SET status = $1, version = $2, updated_at = now() WHERE id = $3
	`, s.Status, s.Version, s.ID)
	if err != nil {
		return fmt.Errorf("update weekly_schedules: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

// ReplaceOperations atomically swaps a schedule's operation set, used by
// internal/adapter.ApplyReoptimize to persist a re-solved horizon while
// leaving completed/in-progress rows from before the cut fixed in place by
// virtue of simply re-inserting them unchanged.
func (r *ScheduleRepository) ReplaceOperations(ctx context.Context, s *sched.Schedule) error {
	ctx, span := telemetry.StartSpan(ctx, "ScheduleRepository.ReplaceOperations")
	defer span.End()

	return database.WithTransaction(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM scheduled_operations WHERE schedule_id = $1`, s.ID); err != nil {
			return fmt.Errorf("delete scheduled_operations: %w", err)
		}
		for _, op := range s.Operations {
			if err := insertOperation(ctx, tx, s.ID, op); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `UPDATE weekly_schedules SET version = $1, updated_at = now() WHERE id = $2`, s.Version, s.ID); err != nil {
			return fmt.Errorf("update weekly_schedules version: %w", err)
		}
		return nil
	})
}
