package adapter

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/munbon/irrigation-control/internal/demand"
	"github.com/munbon/irrigation-control/internal/gate"
	"github.com/munbon/irrigation-control/internal/network"
	"github.com/munbon/irrigation-control/internal/network/router"
	sched "github.com/munbon/irrigation-control/internal/schedule"
	"github.com/munbon/irrigation-control/internal/scheduler/optimizer"
	"github.com/munbon/irrigation-control/internal/team"
)

// Impact is step 1 of the common adaptation procedure: the operations
// touched by an event, the resulting water shortage, and the zones left
// short.
type Impact struct {
	AffectedOperations []*sched.Operation
	ShortageM3         float64
	AffectedZones      []string
}

// Alternative is a candidate reroute, scored the way C4 prescribes:
// efficiency lost relative to the failed path's capacity, extra travel
// implied by routing through a different gate, and how many additional
// gates the reroute touches.
type Alternative struct {
	Path                  router.Path
	EfficiencyLossPct     float64
	ExtraTravelTimeS      float64
	AdditionalGatesNeeded int
}

// Adapter wires the network, gate registry, and operation schedule together
// to carry out step 1-5 of the common adaptation procedure for each event
// kind in the decision tables.
type Adapter struct {
	Net   *network.Network
	Gates *gate.Registry
}

// NewAdapter builds an adapter over net and the gate registry that controls
// it.
func NewAdapter(net *network.Network, gates *gate.Registry) *Adapter {
	return &Adapter{Net: net, Gates: gates}
}

// ComputeImpact finds every non-terminal operation on failedGate or on a
// gate feeding one of failedGate's downstream nodes, and sums the water
// those operations were expected to deliver as the shortage.
func (a *Adapter) ComputeImpact(s *sched.Schedule, failedGate string) Impact {
	downstream := router.AffectedDownstream(a.Net, failedGate)
	downstreamSet := make(map[string]bool, len(downstream))
	for _, n := range downstream {
		downstreamSet[n] = true
	}

	var impact Impact
	zoneSeen := make(map[string]bool)
	for _, op := range s.Operations {
		if op.Status == sched.OpCompleted || op.Status == sched.OpCancelled || op.Status == sched.OpOverridden {
			continue
		}

		affected := op.GateID == failedGate
		if !affected {
			if g, ok := a.Net.Gates[op.GateID]; ok {
				affected = downstreamSet[g.UpstreamNode] || downstreamSet[g.DownstreamNode]
			}
		}
		if !affected {
			continue
		}

		impact.AffectedOperations = append(impact.AffectedOperations, op)
		durationS := op.PlannedEnd.Sub(op.PlannedStart).Seconds()
		if durationS > 0 {
			impact.ShortageM3 += op.ExpectedFlowAfterM3S * durationS
		}
		if zoneID := a.zoneOfGate(op.GateID); zoneID != "" && !zoneSeen[zoneID] {
			zoneSeen[zoneID] = true
			impact.AffectedZones = append(impact.AffectedZones, zoneID)
		}
	}
	return impact
}

// zoneOfGate returns the id of the zone whose delivery gates include
// gateID, or "" if none claims it.
func (a *Adapter) zoneOfGate(gateID string) string {
	for _, z := range a.Net.Zones {
		for _, g := range z.DeliveryGates {
			if g == gateID {
				return z.ID
			}
		}
	}
	return ""
}

// EnumerateAlternatives looks for spare capacity on sibling gates sharing
// failedGate's upstream node — the only redundancy a tree-shaped network
// offers — and scores each by the fraction of failedGate's capacity it
// cannot absorb.
func (a *Adapter) EnumerateAlternatives(failedGate string, openingM, levelM map[string]float64) []Alternative {
	g, ok := a.Net.Gates[failedGate]
	if !ok {
		return nil
	}

	var alts []Alternative
	for _, siblingID := range a.Net.ChildGates(g.UpstreamNode) {
		if siblingID == failedGate {
			continue
		}
		sibling := a.Net.Gates[siblingID]
		path := router.Path{g.UpstreamNode, sibling.DownstreamNode}
		used := router.BottleneckFlowM3S(a.Net, path, openingM, levelM)
		spare := sibling.MaxFlowM3S - used
		if spare <= 0 {
			continue
		}

		lossPct := 0.0
		if g.MaxFlowM3S > 0 {
			lossPct = math.Max(0, 1-spare/g.MaxFlowM3S) * 100
		}
		alts = append(alts, Alternative{
			Path:                  path,
			EfficiencyLossPct:     lossPct,
			ExtraTravelTimeS:      0,
			AdditionalGatesNeeded: 1,
		})
	}
	return alts
}

// ApplyGateFailure runs the common adaptation procedure for a gate-failure
// event: compute impact, enumerate alternatives, select a strategy, and
// apply it through the operation state machine. It returns the strategy
// chosen and any transition errors encountered (an operation already in an
// incompatible state is skipped, not fatal).
func (a *Adapter) ApplyGateFailure(s *sched.Schedule, event GateFailureEvent, openingM, levelM map[string]float64) (Strategy, []error) {
	impact := a.ComputeImpact(s, event.GateID)
	alternatives := a.EnumerateAlternatives(event.GateID, openingM, levelM)
	strategy := SelectGateFailureStrategy(event.RepairHours, impact.ShortageM3, alternatives)

	var errs []error
	for _, op := range impact.AffectedOperations {
		next := sched.OpCancelled
		if op.Status == sched.OpInProgress {
			next = sched.OpFailed
		}
		if err := op.Transition(next); err != nil {
			errs = append(errs, err)
			continue
		}

		switch strategy {
		case StrategyDelay:
			delay := time.Duration(event.RepairHours * float64(time.Hour))
			op.PlannedStart = op.PlannedStart.Add(delay)
			op.PlannedEnd = op.PlannedEnd.Add(delay)
			if err := op.Transition(sched.OpRescheduled); err != nil {
				errs = append(errs, err)
			}

		case StrategyReroute, StrategyPartialDelivery:
			if len(alternatives) > 0 {
				gates := router.PathGates(a.Net, alternatives[0].Path)
				if len(gates) > 0 {
					op.GateID = gates[len(gates)-1]
				}
			}
			if err := op.Transition(sched.OpRescheduled); err != nil {
				errs = append(errs, err)
			}

		case StrategyEmergencyOverride:
			op.Status = sched.OpOverridden
			op.OverrideReason = fmt.Sprintf("gate %s failure (%s): shortage %.0f m3 with no viable reroute", event.GateID, event.FailureType, impact.ShortageM3)
		}
	}

	if len(impact.AffectedOperations) > 0 {
		s.IncrementVersion()
	}
	return strategy, errs
}

// ApplyTeamUnavailable reassigns affected operations to replacement when it
// covers the operation's zone and is available, otherwise pushes the
// operation past event.Until.
func (a *Adapter) ApplyTeamUnavailable(s *sched.Schedule, event TeamUnavailableEvent, gateZone map[string]string, replacement *team.Team) Strategy {
	var affected []*sched.Operation
	for _, op := range s.Operations {
		if op.TeamID != event.TeamID {
			continue
		}
		if op.Status == sched.OpCompleted || op.Status == sched.OpCancelled || op.Status == sched.OpOverridden {
			continue
		}
		if op.PlannedStart.Before(event.Until) && op.PlannedEnd.After(event.From) {
			affected = append(affected, op)
		}
	}

	hasReplacement := replacement != nil && replacement.Status == team.StatusAvailable
	strategy := SelectTeamUnavailableStrategy(hasReplacement)

	for _, op := range affected {
		zone, ok := gateZone[op.GateID]
		if !ok {
			zone = a.zoneOfGate(op.GateID)
		}
		if strategy == StrategyReassign && replacement.CoversZone(zone) {
			op.TeamID = replacement.Code
			continue
		}
		shift := event.Until.Sub(op.PlannedStart)
		op.PlannedStart = op.PlannedStart.Add(shift)
		op.PlannedEnd = op.PlannedEnd.Add(shift)
	}

	if len(affected) > 0 {
		s.IncrementVersion()
	}
	return strategy
}

// ApplyReoptimize re-solves the remaining planning horizon from fromDate,
// fixing completed and in-progress operations (and anything already dated
// before fromDate) as boundary conditions, per spec.md §4.10's
// reoptimization guarantee that in-flight work is never modified.
func (a *Adapter) ApplyReoptimize(s *sched.Schedule, fromDate time.Time, remainingDemands []demand.GateAggregate, teams []team.Team, gateZone map[string]string, constraints optimizer.Constraints) error {
	var fixed []*sched.Operation
	for _, op := range s.Operations {
		if op.Status == sched.OpCompleted || op.Status == sched.OpInProgress || op.OperationDate.Before(fromDate) {
			fixed = append(fixed, op)
		}
	}

	result, err := optimizer.Build(a.Net, s.Week, remainingDemands, teams, nil, gateZone, constraints)
	if err != nil {
		return err
	}

	s.Operations = append(fixed, result.Schedule.Operations...)
	s.IncrementVersion()
	return nil
}

// ApplyEmergencyOverride bypasses the optimizer entirely: it forces gateID
// into manual mode, writes the requested opening straight through the gate
// registry, and marks every overlapping non-terminal operation on that gate
// as overridden with the operator and reason recorded.
func (a *Adapter) ApplyEmergencyOverride(ctx context.Context, s *sched.Schedule, event EmergencyOverrideEvent, upstreamLevelM, downstreamLevelM float64) error {
	if err := a.Gates.ExecuteTransition(ctx, event.GateID, gate.ModeManual, true); err != nil {
		return err
	}
	if _, err := a.Gates.UpdateManual(ctx, event.GateID, event.TargetOpeningPercent, upstreamLevelM, downstreamLevelM, event.Operator, "emergency override"); err != nil {
		return err
	}

	for _, op := range s.Operations {
		if op.GateID != event.GateID {
			continue
		}
		if op.Status == sched.OpCompleted || op.Status == sched.OpCancelled || op.Status == sched.OpOverridden {
			continue
		}
		op.Status = sched.OpOverridden
		op.OverrideReason = "emergency override"
		op.OverrideOperator = event.Operator
	}

	s.IncrementVersion()
	return nil
}
