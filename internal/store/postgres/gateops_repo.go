package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/munbon/irrigation-control/internal/gate"
	"github.com/munbon/irrigation-control/pkg/database"
	"github.com/munbon/irrigation-control/pkg/telemetry"
)

// GateOperationRepository appends to the gate_operations audit table: every
// mode transition and manual write, independent of the scheduled-operation
// ledger, for after-the-fact SCADA/manual reconciliation.
type GateOperationRepository struct {
	db database.DB
}

// NewGateOperationRepository builds a repository over db.
func NewGateOperationRepository(db database.DB) *GateOperationRepository {
	return &GateOperationRepository{db: db}
}

// Record appends a gate-state snapshot to the audit log.
func (r *GateOperationRepository) Record(ctx context.Context, s gate.State, operator, notes string) error {
	ctx, span := telemetry.StartSpan(ctx, "GateOperationRepository.Record")
	defer span.End()

	_, err := r.db.Exec(ctx, `
		INSERT INTO gate_operations (gate_id, mode, control_status, opening_m, flow_m3s, operator, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.GateID, s.Mode, s.ControlStatus, s.CurrentOpeningM, s.LastFlowM3S, operator, notes)
	if err != nil {
		return fmt.Errorf("insert gate_operations: %w", err)
	}
	return nil
}

// GateOperationRecord is a single audit row as read back.
type GateOperationRecord struct {
	GateID        string
	Mode          gate.Mode
	ControlStatus gate.ControlStatus
	OpeningM      float64
	FlowM3S       float64
	Operator      string
	Notes         string
	RecordedAt    time.Time
}

// History returns the most recent audit rows for gateID, newest first,
// capped at limit.
func (r *GateOperationRepository) History(ctx context.Context, gateID string, limit int) ([]GateOperationRecord, error) {
	ctx, span := telemetry.StartSpan(ctx, "GateOperationRepository.History")
	defer span.End()

	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, `
		SELECT gate_id, mode, control_status, opening_m, flow_m3s, operator, notes, recorded_at
		FROM gate_operations WHERE gate_id = $1 ORDER BY recorded_at DESC LIMIT $2
	`, gateID, limit)
	if err != nil {
		return nil, fmt.Errorf("select gate_operations: %w", err)
	}
	defer rows.Close()

	var out []GateOperationRecord
	for rows.Next() {
		var rec GateOperationRecord
		if err := rows.Scan(
			&rec.GateID, &rec.Mode, &rec.ControlStatus, &rec.OpeningM, &rec.FlowM3S,
			&rec.Operator, &rec.Notes, &rec.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan gate_operations: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("gate_operations iteration: %w", err)
	}
	return out, nil
}
