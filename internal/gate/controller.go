// Package gate implements the dual-mode gate controller (C9): a per-gate
// state machine unifying automated (SCADA) and manual control, mode
// transitions, manual-update ingestion, and sync-status reporting across
// the gate population.
package gate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/munbon/irrigation-control/internal/hydraulics/gateflow"
	"github.com/munbon/irrigation-control/internal/network"
	"github.com/munbon/irrigation-control/pkg/apperror"
	"github.com/munbon/irrigation-control/pkg/logger"
	"github.com/munbon/irrigation-control/pkg/metrics"
)

// Mode is a gate's control ownership.
type Mode string

const (
	ModeAutomated   Mode = "AUTOMATED"
	ModeManual      Mode = "MANUAL"
	ModeHybrid      Mode = "HYBRID"
	ModeMaintenance Mode = "MAINTENANCE"
	ModeFailed      Mode = "FAILED"
)

// ControlStatus is a gate's live control-loop state.
type ControlStatus string

const (
	StatusStandby       ControlStatus = "STANDBY"
	StatusActive        ControlStatus = "ACTIVE"
	StatusTransitioning ControlStatus = "TRANSITIONING"
	StatusFault         ControlStatus = "FAULT"
	StatusOffline       ControlStatus = "OFFLINE"
)

// defaultAutomatedPrefixes matches spec.md §4.9's example policy; callers
// normally pass pkg/config.GateConfig.AutomatedPrefixes instead.
var defaultAutomatedPrefixes = []string{"HG-C", "CHK", "RG"}

// ReachabilityChecker decides whether a gate's SCADA endpoint is reachable,
// the gate on which AUTOMATED-mode eligibility depends. The default
// implementation is a prefix-based stub; production wiring swaps in a
// check against pkg/client.SCADAClient telemetry freshness.
type ReachabilityChecker interface {
	IsReachable(gateID string) bool
}

// PrefixReachability treats any gate whose id has one of Prefixes as
// reachable, with no live check. It is the solver-free default described
// in spec.md §9's open question on SCADA reachability.
type PrefixReachability struct {
	Prefixes []string
}

func (p PrefixReachability) IsReachable(gateID string) bool {
	prefixes := p.Prefixes
	if len(prefixes) == 0 {
		prefixes = defaultAutomatedPrefixes
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(gateID, prefix) {
			return true
		}
	}
	return false
}

// State is a gate's persisted runtime state, process-wide shared and
// guarded by a per-gate mutex (spec.md §5).
type State struct {
	GateID            string
	Mode              Mode
	ControlStatus     ControlStatus
	CurrentOpeningM   float64
	LastFlowM3S       float64
	LastManualUpdate  time.Time
	LastSyncCheck     time.Time
	FaultReason       string
}

// GateAuditRecorder persists a gate-state snapshot to the gate_operations
// audit log, independent of this registry's in-memory state. It is
// satisfied by internal/store/postgres.GateOperationRepository; tests leave
// it nil.
type GateAuditRecorder interface {
	Record(ctx context.Context, s State, operator, notes string) error
}

// Registry owns every gate's live state and serializes mutations per gate.
type Registry struct {
	net          *network.Network
	reachability ReachabilityChecker
	manualUpdateInterval time.Duration
	staleWarningMultiplier float64
	audit        GateAuditRecorder

	mu     sync.RWMutex
	locks  map[string]*sync.Mutex
	states map[string]*State
}

// SetAudit wires a GateAuditRecorder into the registry. Every successful
// UpdateManual and ExecuteTransition records a row through it once set; nil
// (the default) skips auditing, matching the optional-sink pattern
// internal/gate/scadastream uses for its timeseries sink.
func (r *Registry) SetAudit(audit GateAuditRecorder) {
	r.audit = audit
}

func (r *Registry) recordAudit(ctx context.Context, s State, operator, notes string) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Record(ctx, s, operator, notes); err != nil {
		logger.Warn("failed to persist gate audit record", "gate_id", s.GateID, "error", err)
	}
}

// recordModeMetrics refreshes the gate-mode-distribution gauge from the
// registry's current state. Called whenever a gate's mode changes, since
// that is the only time the distribution can move.
func (r *Registry) recordModeMetrics() {
	r.mu.RLock()
	counts := make(map[string]int, len(r.states))
	for _, s := range r.states {
		counts[string(s.Mode)]++
	}
	r.mu.RUnlock()
	metrics.Get().SetGateModeCounts(counts)
}

// NewRegistry builds a gate registry for every gate in net, assigning each
// an initial mode from automatedPrefixes (falling back to spec.md's
// defaults).
func NewRegistry(net *network.Network, automatedPrefixes []string, reachability ReachabilityChecker, manualUpdateInterval time.Duration, staleWarningMultiplier float64) *Registry {
	if reachability == nil {
		reachability = PrefixReachability{Prefixes: automatedPrefixes}
	}
	if manualUpdateInterval == 0 {
		manualUpdateInterval = 15 * time.Minute
	}
	if staleWarningMultiplier == 0 {
		staleWarningMultiplier = 2.0
	}

	r := &Registry{
		net:                    net,
		reachability:           reachability,
		manualUpdateInterval:   manualUpdateInterval,
		staleWarningMultiplier: staleWarningMultiplier,
		locks:                  make(map[string]*sync.Mutex),
		states:                 make(map[string]*State),
	}

	prefixes := automatedPrefixes
	if len(prefixes) == 0 {
		prefixes = defaultAutomatedPrefixes
	}

	for id := range net.Gates {
		mode := ModeManual
		for _, p := range prefixes {
			if strings.HasPrefix(id, p) {
				mode = ModeAutomated
				break
			}
		}
		r.locks[id] = &sync.Mutex{}
		r.states[id] = &State{GateID: id, Mode: mode, ControlStatus: StatusStandby}
	}

	r.recordModeMetrics()
	return r
}

func (r *Registry) lockFor(gateID string) *sync.Mutex {
	r.mu.RLock()
	l := r.locks[gateID]
	r.mu.RUnlock()
	return l
}

// GetState returns a copy of gate's current state, enriched by callers with
// live measurements where needed; this registry only tracks commanded
// state.
func (r *Registry) GetState(gateID string) (State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[gateID]
	if !ok {
		return State{}, apperror.New(apperror.CodeGateNotFound, fmt.Sprintf("gate %q not found", gateID))
	}
	return *s, nil
}

// UpdateManual applies a manual opening command, recomputing flow via C1,
// persisting an audit record, and refreshing the gate's sync-check
// timestamp. Only permitted while the gate's mode is MANUAL.
func (r *Registry) UpdateManual(ctx context.Context, gateID string, openingPercent float64, upstreamLevelM, downstreamLevelM float64, operator, notes string) (State, error) {
	lock := r.lockFor(gateID)
	if lock == nil {
		return State{}, apperror.New(apperror.CodeGateNotFound, fmt.Sprintf("gate %q not found", gateID))
	}
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	s := r.states[gateID]
	r.mu.Unlock()

	if s.Mode != ModeManual {
		return State{}, apperror.New(apperror.CodeNonManualUpdate, fmt.Sprintf("gate %q is in mode %s, not MANUAL", gateID, s.Mode))
	}

	g := r.net.Gates[gateID]
	openingM := openingPercent / 100 * g.MaxOpeningM
	res := gateflow.Compute(g, upstreamLevelM, downstreamLevelM, openingM)

	s.CurrentOpeningM = openingM
	s.LastFlowM3S = res.FlowM3S
	s.LastManualUpdate = time.Now()
	s.LastSyncCheck = s.LastManualUpdate
	snapshot := *s

	r.recordAudit(ctx, snapshot, operator, notes)

	return snapshot, nil
}

// ApplyTelemetry records a live reading pushed from SCADA for an AUTOMATED
// gate. Readings for MANUAL gates are dropped: a manual gate's state is
// only ever advanced by UpdateManual, never by the automated feed.
func (r *Registry) ApplyTelemetry(gateID string, openingM, flowM3S float64, observedAt time.Time, reachable bool) error {
	lock := r.lockFor(gateID)
	if lock == nil {
		return apperror.New(apperror.CodeGateNotFound, fmt.Sprintf("gate %q not found", gateID))
	}
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	s := r.states[gateID]
	r.mu.Unlock()

	if s.Mode != ModeAutomated {
		return nil
	}

	if !reachable {
		s.ControlStatus = StatusFault
		s.FaultReason = "SCADA endpoint unreachable"
		s.LastSyncCheck = observedAt
		return nil
	}

	s.CurrentOpeningM = openingM
	s.LastFlowM3S = flowM3S
	s.LastSyncCheck = observedAt
	if s.ControlStatus == StatusFault {
		s.ControlStatus = StatusStandby
		s.FaultReason = ""
	}
	return nil
}

// TransitionResult is the outcome of validating a proposed mode change.
type TransitionResult struct {
	IsValid         bool
	Reason          string
	Recommendations []string
	EstimatedImpact string
}

// ValidateTransition checks whether gateID may move to targetMode.
func (r *Registry) ValidateTransition(gateID string, targetMode Mode, force bool) (TransitionResult, error) {
	s, err := r.GetState(gateID)
	if err != nil {
		return TransitionResult{}, err
	}

	if targetMode == ModeAutomated && !r.reachability.IsReachable(gateID) {
		return TransitionResult{IsValid: false, Reason: "SCADA endpoint not reachable"}, nil
	}
	if targetMode == ModeManual && s.ControlStatus == StatusActive && !force {
		return TransitionResult{IsValid: false, Reason: "automated command in flight; pass force to override"}, nil
	}

	result := TransitionResult{IsValid: true}
	if s.CurrentOpeningM > 0 {
		result.Recommendations = append(result.Recommendations, "verify opening after transition; large intermediate openings during mode change can cause transients")
	}
	return result, nil
}

// ExecuteTransition drives gateID's mode change, serialized by the gate's
// mutex. Status moves through TRANSITIONING; on success it lands on
// targetMode + STANDBY and records an audit entry, on failure it lands on
// FAULT with the error recorded.
func (r *Registry) ExecuteTransition(ctx context.Context, gateID string, targetMode Mode, force bool) error {
	lock := r.lockFor(gateID)
	if lock == nil {
		return apperror.New(apperror.CodeGateNotFound, fmt.Sprintf("gate %q not found", gateID))
	}
	lock.Lock()
	defer lock.Unlock()

	validation, err := r.ValidateTransition(gateID, targetMode, force)
	if err != nil {
		return err
	}

	r.mu.Lock()
	s := r.states[gateID]
	r.mu.Unlock()

	s.ControlStatus = StatusTransitioning

	if !validation.IsValid {
		s.ControlStatus = StatusFault
		s.FaultReason = validation.Reason
		return apperror.New(apperror.CodeInvalidTransition, fmt.Sprintf("gate %q cannot transition to %s: %s", gateID, targetMode, validation.Reason))
	}

	s.Mode = targetMode
	s.ControlStatus = StatusStandby
	s.FaultReason = ""
	snapshot := *s

	r.recordAudit(ctx, snapshot, "system", fmt.Sprintf("transitioned to %s", targetMode))
	r.recordModeMetrics()

	return nil
}

// SyncStatus summarizes the gate population's mode split and data quality.
type SyncStatus struct {
	AutomatedGates []string
	ManualGates    []string
	QualityScore   float64
	Warnings       []string
}

// GetSyncStatus partitions gates by mode and scores data quality, warning
// about MANUAL gates whose last update exceeds 2x the manual update
// interval.
func (r *Registry) GetSyncStatus(now time.Time) SyncStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := SyncStatus{QualityScore: 1.0}
	conflicts := 0
	var lastSync time.Time

	for id, s := range r.states {
		switch s.Mode {
		case ModeAutomated:
			status.AutomatedGates = append(status.AutomatedGates, id)
		case ModeManual:
			status.ManualGates = append(status.ManualGates, id)
			if !s.LastManualUpdate.IsZero() && now.Sub(s.LastManualUpdate) > time.Duration(r.staleWarningMultiplier*float64(r.manualUpdateInterval)) {
				status.Warnings = append(status.Warnings, fmt.Sprintf("gate %q not updated within %.0fx the manual update interval", id, r.staleWarningMultiplier))
			}
		}
		if s.ControlStatus == StatusFault {
			conflicts++
		}
		if s.LastSyncCheck.After(lastSync) {
			lastSync = s.LastSyncCheck
		}
	}

	status.QualityScore -= 0.1 * float64(conflicts)
	if !lastSync.IsZero() && now.Sub(lastSync) > time.Hour {
		status.QualityScore -= 0.2
	}
	if status.QualityScore < 0 {
		status.QualityScore = 0
	}

	return status
}
