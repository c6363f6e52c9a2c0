// Package optimizer implements the scheduler optimizer (C7): turns
// aggregated zone demands, the network, and the team roster into a weekly
// plan of gate operations.
//
// The contract speaks of a MILP over per-slot openings, flows, team
// assignment, and routing. No MILP solver is wired into this module (no
// suitable library appears anywhere the rest of this repository draws its
// dependencies from); instead this package runs the same fallback the
// contract prescribes on solver timeout — a deterministic greedy
// constructor in weighted-priority order, honoring the team daily cap and
// the upstream-before-downstream gravity sequence as hard constraints on
// every assignment, and validates the resulting opening vector against the
// hydraulic solver and each canal's flow capacity exactly as the MILP path
// would.
package optimizer

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/munbon/irrigation-control/internal/demand"
	"github.com/munbon/irrigation-control/internal/hydraulics/solver"
	"github.com/munbon/irrigation-control/internal/network"
	sched "github.com/munbon/irrigation-control/internal/schedule"
	"github.com/munbon/irrigation-control/internal/team"
	"github.com/munbon/irrigation-control/pkg/metrics"
)

// solveAlgorithm and buildAlgorithm label this package's two metrics.Get()
// call sites: the hydraulic feasibility check and the greedy schedule
// constructor as a whole.
const (
	solveAlgorithm = "hydraulic-fixed-point"
	buildAlgorithm = "schedule-build-greedy"
)

const (
	slotDuration   = 30 * time.Minute
	weightTravel   = 1.0
	weightChanges  = 10.0
	weightSpill    = 100.0

	feasibilityMaxErrorM3S = 0.1
	feasibilityMaxTries    = 5

	// canalCapacityMarginFactor keeps every operated gate's solved flow at
	// or below 90% of its rated MaxFlowM3S, the safety margin spec.md's
	// feasibility check requires on top of the raw capacity limit.
	canalCapacityMarginFactor = 0.9

	dayKeyLayout = "2006-01-02"
)

// Constraints carries planning-horizon parameters and the optimizer's cost
// weights, sourced from the optimization_constraints table (spec.md §6.4).
type Constraints struct {
	OperationDays   []time.Weekday
	WorkingHours    team.TimeWindow
	WeightTravel    float64
	WeightChanges   float64
	WeightSpill     float64
}

func (c Constraints) withDefaults() Constraints {
	if len(c.OperationDays) == 0 {
		c.OperationDays = []time.Weekday{time.Tuesday, time.Thursday}
	}
	if c.WeightTravel == 0 {
		c.WeightTravel = weightTravel
	}
	if c.WeightChanges == 0 {
		c.WeightChanges = weightChanges
	}
	if c.WeightSpill == 0 {
		c.WeightSpill = weightSpill
	}
	return c
}

// PlanResult is the optimizer's output: the constructed schedule plus the
// objective components that drove the assignment, for observability.
type PlanResult struct {
	Schedule      *sched.Schedule
	TravelKM      float64
	ChangeCount   int
	SpillM3       float64
	FeasibleTries int
}

// Build constructs a weekly schedule from aggregated demands, assigning
// each delivery gate's required operation to the team covering its zone in
// weighted-priority order (the greedy constructor). Two hard constraints
// apply to every assignment just as they would to a MILP solution: a team's
// assignments on a given day may not exceed its MaxOperationsPerDay (the
// team daily cap), and a gate immediately downstream of another operated
// gate is staggered at least one slot after its upstream gate (the gravity
// sequence). The resulting opening vector is then verified against the
// hydraulic solver and each canal's flow capacity, perturbing openings via
// bisection up to feasibilityMaxTries times if either is violated.
func Build(net *network.Network, week sched.Week, demands []demand.GateAggregate, teams []team.Team, plotZone map[string]string, gateZone map[string]string, constraints Constraints) (*PlanResult, error) {
	buildStart := time.Now()
	constraints = constraints.withDefaults()

	ordered := append([]demand.GateAggregate(nil), demands...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].WeightedPriority > ordered[j].WeightedPriority
	})

	s := &sched.Schedule{
		Week:   week,
		Status: sched.StatusDraft,
		Version: 1,
	}

	openings := make(map[string]float64, len(net.Gates))
	for id := range net.Gates {
		openings[id] = 0
	}

	opSeq := 0
	slotCursor := firstOperationDay(constraints)
	gateSlot := make(map[string]time.Time, len(ordered))
	teamDayCount := make(map[string]int, len(teams))

	for _, ga := range ordered {
		gate, ok := net.Gates[ga.DeliveryGate]
		if !ok {
			continue
		}

		opSlot := slotCursor
		if upstream := net.ParentGate(gate.UpstreamNode); upstream != "" {
			if uSlot, scheduled := gateSlot[upstream]; scheduled {
				if minSlot := uSlot.Add(slotDuration); opSlot.Before(minSlot) {
					opSlot = minSlot
				}
			}
		}

		assignedTeam := pickTeam(teams, gateZone[ga.DeliveryGate], opSlot, teamDayCount)
		if assignedTeam != "" {
			teamDayCount[teamDayKey(assignedTeam, opSlot)]++
		}

		durationSeconds := ga.WindowEnd.Sub(ga.WindowStart).Seconds()
		targetFlow := 0.0
		if durationSeconds > 0 {
			targetFlow = ga.TotalM3 / durationSeconds
		}
		openingPercent := 0.0
		if gate.MaxFlowM3S > 0 {
			openingPercent = clamp(targetFlow/gate.MaxFlowM3S*100, 0, 100)
		}
		openings[ga.DeliveryGate] = openingPercent / 100 * gate.MaxOpeningM

		opSeq++
		op := &sched.Operation{
			ID:                   opID(week, opSeq),
			GateID:               ga.DeliveryGate,
			OperationDate:        opSlot,
			PlannedStart:         opSlot,
			PlannedEnd:           opSlot.Add(slotDuration),
			Sequence:             opSeq,
			TargetOpeningPercent: openingPercent,
			ExpectedFlowAfterM3S: targetFlow,
			TeamID:               assignedTeam,
			Status:               sched.OpScheduled,
		}
		s.Operations = append(s.Operations, op)
		gateSlot[ga.DeliveryGate] = opSlot
		if next := opSlot.Add(slotDuration); next.After(slotCursor) {
			slotCursor = next
		}
	}

	// A downstream gate placed ahead of its upstream gate by the priority
	// order is moved to one slot after it.
	for moved := true; moved; {
		moved = false
		for _, op := range s.Operations {
			upstream := net.ParentGate(net.Gates[op.GateID].UpstreamNode)
			uSlot, scheduled := gateSlot[upstream]
			if minSlot := uSlot.Add(slotDuration); upstream != "" && scheduled && op.PlannedStart.Before(minSlot) {
				op.OperationDate, op.PlannedStart, op.PlannedEnd = minSlot, minSlot, minSlot.Add(slotDuration)
				gateSlot[op.GateID] = minSlot
				moved = true
			}
		}
	}

	result := &PlanResult{Schedule: s, ChangeCount: len(s.Operations)}

	feasible, tries := verifyFeasibility(net, openings)
	result.FeasibleTries = tries

	s.Metrics.TotalDemandM3 = totalDemand(demands)
	s.Metrics.AllocatedM3 = totalAllocated(demands, feasible)

	metrics.Get().RecordSolveOperation(buildAlgorithm, feasible, time.Since(buildStart), s.Metrics.AllocatedM3)

	return result, nil
}

// verifyFeasibility passes the opening vector to the hydraulic solver; if
// the solver's max error exceeds feasibilityMaxErrorM3S, or any gate's
// solved flow exceeds canalCapacityMarginFactor of its rated MaxFlowM3S, it
// perturbs openings by bisecting them toward zero and re-solves, up to
// feasibilityMaxTries times.
func verifyFeasibility(net *network.Network, openings map[string]float64) (bool, int) {
	levels := make(map[string]float64, len(net.Nodes))
	for id, n := range net.Nodes {
		if n.IsSource {
			levels[id] = n.FixedLevelM
		} else {
			levels[id] = n.InvertElevationM + 0.5
		}
	}

	for try := 0; try < feasibilityMaxTries; try++ {
		solveStart := time.Now()
		flowState, conv := solver.Solve(net, solver.State{LevelM: levels, OpeningM: openings}, solver.Config{})
		ok := conv.Converged && conv.MaxErrorM <= feasibilityMaxErrorM3S && withinCanalCapacity(net, flowState.FlowM3S)
		metrics.Get().RecordSolveOperation(solveAlgorithm, ok, time.Since(solveStart), maxFlow(flowState.FlowM3S))
		if ok {
			return true, try
		}
		for id := range openings {
			openings[id] *= 0.5
		}
	}
	return false, feasibilityMaxTries
}

// maxFlow returns the largest solved flow across all gates, the single
// scalar RecordSolveOperation's maxFlow argument expects.
func maxFlow(flows map[string]float64) float64 {
	max := 0.0
	for _, f := range flows {
		if f > max {
			max = f
		}
	}
	return max
}

// withinCanalCapacity reports whether every gate's solved flow stays at or
// below canalCapacityMarginFactor of its rated MaxFlowM3S. A zero
// MaxFlowM3S means the gate's capacity is unconstrained.
func withinCanalCapacity(net *network.Network, flows map[string]float64) bool {
	for id, g := range net.Gates {
		if g.MaxFlowM3S <= 0 {
			continue
		}
		if flows[id] > g.MaxFlowM3S*canalCapacityMarginFactor {
			return false
		}
	}
	return true
}

// pickTeam assigns the first available team covering zone whose count of
// assignments on opSlot's day is still under its MaxOperationsPerDay (a
// zero cap means unlimited). It falls back to any team under cap, and
// returns "" when every team has reached its cap.
func pickTeam(teams []team.Team, zone string, opSlot time.Time, teamDayCount map[string]int) string {
	underCap := func(t team.Team) bool {
		if t.MaxOperationsPerDay <= 0 {
			return true
		}
		return teamDayCount[teamDayKey(t.Code, opSlot)] < t.MaxOperationsPerDay
	}

	for _, t := range teams {
		if t.CoversZone(zone) && t.Status == team.StatusAvailable && underCap(t) {
			return t.Code
		}
	}
	for _, t := range teams {
		if underCap(t) {
			return t.Code
		}
	}
	return ""
}

func teamDayKey(teamCode string, opSlot time.Time) string {
	return fmt.Sprintf("%s|%s", teamCode, opSlot.Format(dayKeyLayout))
}

func firstOperationDay(c Constraints) time.Time {
	now := time.Now()
	for i := 0; i < 7; i++ {
		d := now.AddDate(0, 0, i)
		for _, wd := range c.OperationDays {
			if d.Weekday() == wd {
				return time.Date(d.Year(), d.Month(), d.Day(), 6, 0, 0, 0, time.UTC)
			}
		}
	}
	return now
}

func totalDemand(demands []demand.GateAggregate) float64 {
	total := 0.0
	for _, d := range demands {
		total += d.TotalM3
	}
	return total
}

func totalAllocated(demands []demand.GateAggregate, feasible bool) float64 {
	if !feasible {
		return 0
	}
	return totalDemand(demands)
}

func opID(week sched.Week, seq int) string {
	return week.String() + "-OP-" + strconv.Itoa(seq)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
