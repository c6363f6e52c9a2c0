package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/munbon/irrigation-control/internal/gate"
	"github.com/munbon/irrigation-control/pkg/database"
	"github.com/munbon/irrigation-control/pkg/telemetry"
)

// FieldInstructionRepository persists field_instructions, the daily manual
// operation instructions generated by gate.Registry.GenerateManualInstructions
// and handed to field teams, with offline-download tracking.
type FieldInstructionRepository struct {
	db database.DB
}

// NewFieldInstructionRepository builds a repository over db.
func NewFieldInstructionRepository(db database.DB) *FieldInstructionRepository {
	return &FieldInstructionRepository{db: db}
}

// Save persists a single instruction for teamCode against operationID,
// scheduled for instructionDate at the given sequence position.
func (r *FieldInstructionRepository) Save(ctx context.Context, id, operationID, teamCode string, instructionDate time.Time, sequence int, instr gate.Instruction) error {
	ctx, span := telemetry.StartSpan(ctx, "FieldInstructionRepository.Save")
	defer span.End()

	summary := fmt.Sprintf("%s: move to %.1f%% opening (%s)", instr.GateID, instr.TargetOpeningPercent, instr.Reason)
	notes := strings.Join(instr.CoordinationNotes, "; ")

	_, err := r.db.Exec(ctx, `
		INSERT INTO field_instructions (id, operation_id, team_code, gate_id, instruction_date, sequence, summary, coordination_notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, id, operationID, teamCode, instr.GateID, instructionDate, sequence, summary, notes)
	if err != nil {
		return fmt.Errorf("insert field_instructions: %w", err)
	}
	return nil
}

// FieldInstructionRecord is a single instruction as read back for a team's
// daily worklist, including whether it has already been downloaded for
// offline use.
type FieldInstructionRecord struct {
	ID                string
	OperationID       string
	GateID            string
	InstructionDate   time.Time
	Sequence          int
	Summary           string
	CoordinationNotes string
	DownloadedAt      *time.Time
}

// ForTeamOnDate returns teamCode's instructions for a given day, in
// execution order.
func (r *FieldInstructionRepository) ForTeamOnDate(ctx context.Context, teamCode string, day time.Time) ([]FieldInstructionRecord, error) {
	ctx, span := telemetry.StartSpan(ctx, "FieldInstructionRepository.ForTeamOnDate")
	defer span.End()

	rows, err := r.db.Query(ctx, `
		SELECT id, operation_id, gate_id, instruction_date, sequence, summary, coordination_notes, downloaded_at
		FROM field_instructions
		WHERE team_code = $1 AND instruction_date::date = $2::date
		ORDER BY sequence
	`, teamCode, day)
	if err != nil {
		return nil, fmt.Errorf("select field_instructions: %w", err)
	}
	defer rows.Close()

	var out []FieldInstructionRecord
	for rows.Next() {
		var rec FieldInstructionRecord
		if err := rows.Scan(
			&rec.ID, &rec.OperationID, &rec.GateID, &rec.InstructionDate, &rec.Sequence,
			&rec.Summary, &rec.CoordinationNotes, &rec.DownloadedAt,
		); err != nil {
			return nil, fmt.Errorf("scan field_instructions: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("field_instructions iteration: %w", err)
	}
	return out, nil
}

// MarkDownloaded records that a team pulled an instruction for offline use.
func (r *FieldInstructionRepository) MarkDownloaded(ctx context.Context, id string, at time.Time) error {
	ctx, span := telemetry.StartSpan(ctx, "FieldInstructionRepository.MarkDownloaded")
	defer span.End()

	_, err := r.db.Exec(ctx, `UPDATE field_instructions SET downloaded_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("update field_instructions: %w", err)
	}
	return nil
}
