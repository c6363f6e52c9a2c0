// Package schedule holds the weekly schedule and scheduled-operation
// entities and their state-machine transitions (spec.md §3.2/§3.3). Other
// components (optimizer, adapter, temporal scheduler) operate on these
// types; persistence is delegated to internal/store.
package schedule

import (
	"fmt"
	"time"

	"github.com/munbon/irrigation-control/pkg/apperror"
)

// Status is a weekly schedule's lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusApproved  Status = "approved"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// OperationStatus is a scheduled operation's lifecycle state.
type OperationStatus string

const (
	OpScheduled  OperationStatus = "scheduled"
	OpInProgress OperationStatus = "in_progress"
	OpCompleted  OperationStatus = "completed"
	OpFailed     OperationStatus = "failed"
	OpCancelled  OperationStatus = "cancelled"
	OpRescheduled OperationStatus = "rescheduled"
	OpOverridden OperationStatus = "overridden"
)

var operationTransitions = map[OperationStatus][]OperationStatus{
	OpScheduled:  {OpInProgress, OpCancelled},
	OpInProgress: {OpCompleted, OpFailed},
	OpFailed:     {OpRescheduled},
	OpCancelled:  {OpRescheduled},
}

// CanTransitionOperation reports whether an operation may move from from to
// to per spec.md §3.3's state machine. completed and overridden are
// terminal.
func CanTransitionOperation(from, to OperationStatus) bool {
	for _, allowed := range operationTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Week identifies an ISO (year, week) planning period.
type Week struct {
	ISOYear int
	ISOWeek int
}

func (w Week) String() string {
	return fmt.Sprintf("%04d-W%02d", w.ISOYear, w.ISOWeek)
}

// Metrics summarizes a schedule's planning outcome.
type Metrics struct {
	TotalDemandM3  float64
	AllocatedM3    float64
	EfficiencyPct  float64
	TravelKM       float64
	LaborHours     float64
}

// Operation is a single gate operation within a schedule.
type Operation struct {
	ID                    string
	ScheduleID            string
	GateID                string
	OperationDate         time.Time
	PlannedStart          time.Time
	PlannedEnd            time.Time
	Sequence              int
	TargetOpeningPercent  float64
	ExpectedFlowBeforeM3S float64
	ExpectedFlowAfterM3S  float64
	TeamID                string
	Status                OperationStatus
	ActualStart           *time.Time
	ActualEnd             *time.Time
	ActualOpeningPercent  *float64
	OverrideReason        string
	OverrideOperator      string
}

// Transition moves op to newStatus, validating against the state machine.
func (op *Operation) Transition(newStatus OperationStatus) error {
	if op.Status == newStatus {
		return nil
	}
	if !CanTransitionOperation(op.Status, newStatus) {
		return apperror.New(apperror.CodeInvalidTransition,
			fmt.Sprintf("operation %s cannot transition from %s to %s", op.ID, op.Status, newStatus))
	}
	op.Status = newStatus
	return nil
}

// Schedule is a weekly plan: a versioned collection of operations plus
// summary metrics.
type Schedule struct {
	ID         string
	Week       Week
	Status     Status
	Version    int
	Metrics    Metrics
	Operations []*Operation
}

// Approve moves a draft schedule to approved.
func (s *Schedule) Approve() error {
	if s.Status != StatusDraft {
		return apperror.New(apperror.CodeScheduleNotApproved,
			fmt.Sprintf("schedule %s is %s, not draft; cannot approve", s.ID, s.Status))
	}
	s.Status = StatusApproved
	return nil
}

// Activate moves an approved schedule to active. Callers are responsible
// for first completing any other schedule active for the same week (spec.md
// §3.3's uniqueness invariant), since that requires cross-schedule
// coordination this type does not own.
func (s *Schedule) Activate() error {
	if s.Status != StatusApproved {
		return apperror.New(apperror.CodeScheduleNotApproved,
			fmt.Sprintf("schedule %s is %s, not approved; cannot activate", s.ID, s.Status))
	}
	s.Status = StatusActive
	return nil
}

// IncrementVersion bumps the optimistic-concurrency version, as required
// before any mutation to an active schedule (spec.md §5).
func (s *Schedule) IncrementVersion() {
	s.Version++
}
