// Package solver implements the steady-state fixed-point hydraulic solver
// (C3): forward solve of node levels and gate flows given openings and a
// fixed source level, plus an inverse mode that searches for openings
// hitting target delivery flows.
package solver

import (
	"fmt"
	"math"
	"sort"

	"github.com/munbon/irrigation-control/internal/hydraulics/gateflow"
	"github.com/munbon/irrigation-control/internal/hydraulics/reach"
	"github.com/munbon/irrigation-control/internal/network"
)

const (
	relaxationFactor   = 0.7
	timeStepS          = 60.0
	convergenceTolM    = 1e-3
	maxIterations      = 100
	minDepthM          = 0.1
	maxDepthM          = 5.0
	downstreamBlendW   = 0.5
	upstreamBlendW     = 0.5
	inverseOuterIters  = 20
	inverseAdjustFactor = 0.3
	inverseTolM3S       = 0.1
)

// Config carries the tunable constants the solver runs with, sourced from
// pkg/config.HydraulicsConfig. Zero-value Config falls back to the package
// defaults above.
type Config struct {
	RelaxationFactor       float64
	TimeStepS              float64
	ConvergenceToleranceM  float64
	MaxIterations          int
	InverseOuterIterations int
	InverseAdjustmentFactor float64
}

func (c Config) withDefaults() Config {
	if c.RelaxationFactor == 0 {
		c.RelaxationFactor = relaxationFactor
	}
	if c.TimeStepS == 0 {
		c.TimeStepS = timeStepS
	}
	if c.ConvergenceToleranceM == 0 {
		c.ConvergenceToleranceM = convergenceTolM
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = maxIterations
	}
	if c.InverseOuterIterations == 0 {
		c.InverseOuterIterations = inverseOuterIters
	}
	if c.InverseAdjustmentFactor == 0 {
		c.InverseAdjustmentFactor = inverseAdjustFactor
	}
	return c
}

// State is the solver's working set: current level per node and current
// opening per gate. Flow per gate is derived, not carried between calls.
type State struct {
	LevelM  map[string]float64
	OpeningM map[string]float64
}

// FlowState augments State with the last computed flow per gate.
type FlowState struct {
	State
	FlowM3S map[string]float64
}

// Convergence reports the forward solver's outcome. The solver never
// errors on physical impossibility; callers decide whether a non-converged
// or warned result is usable.
type Convergence struct {
	Converged  bool
	Iterations int
	MaxErrorM  float64
	Warnings   []string
}

// Solve runs the forward fixed-point iteration to steady state, mutating a
// copy of initial and returning the resulting FlowState alongside
// convergence diagnostics.
func Solve(net *network.Network, initial State, cfg Config) (FlowState, Convergence) {
	cfg = cfg.withDefaults()

	levels := cloneMap(initial.LevelM)
	openings := cloneMap(initial.OpeningM)
	flows := make(map[string]float64, len(net.Gates))

	var conv Convergence

	gateIDs := sortedGateIDs(net)

	for iter := 1; iter <= cfg.MaxIterations; iter++ {
		for _, id := range gateIDs {
			g := net.Gates[id]
			res := gateflow.Compute(g, levels[g.UpstreamNode], levels[g.DownstreamNode], openings[id])
			flows[id] = res.FlowM3S
			conv.Warnings = append(conv.Warnings, res.Warnings...)
		}

		maxDelta := 0.0
		for nodeID, node := range net.Nodes {
			if node.IsSource {
				continue
			}

			inflow := 0.0
			if parentGate := net.ParentGate(nodeID); parentGate != "" {
				inflow = flows[parentGate]
			}
			outflow := 0.0
			for _, childGate := range net.ChildGates(nodeID) {
				outflow += flows[childGate]
			}
			imbalance := inflow - outflow

			newLevel := levels[nodeID] + cfg.RelaxationFactor*imbalance*cfg.TimeStepS/node.SurfaceAreaM2
			newLevel = clamp(newLevel, node.InvertElevationM+minDepthM, node.InvertElevationM+maxDepthM)

			if parentGate := net.ParentGate(nodeID); parentGate != "" && flows[parentGate] > 0 {
				r := net.Reaches[parentGate]
				hf := reach.HeadLoss(r, flows[parentGate])
				upstreamLevel := levels[net.Gates[parentGate].UpstreamNode]
				newLevel = downstreamBlendW*newLevel + upstreamBlendW*(upstreamLevel-hf)
			}

			delta := math.Abs(newLevel - levels[nodeID])
			if delta > maxDelta {
				maxDelta = delta
			}
			levels[nodeID] = newLevel

			depth := levels[nodeID] - node.InvertElevationM
			if depth <= minDepthM {
				conv.Warnings = append(conv.Warnings, fmt.Sprintf("node %q is dry (depth %.3fm)", nodeID, depth))
			}
		}

		conv.Iterations = iter
		conv.MaxErrorM = maxDelta

		if maxDelta < cfg.ConvergenceToleranceM {
			conv.Converged = true
			break
		}
	}

	if !conv.Converged {
		conv.Warnings = append(conv.Warnings, fmt.Sprintf("solver did not converge within %d iterations (max error %.4fm)", cfg.MaxIterations, conv.MaxErrorM))
	}

	return FlowState{
		State:   State{LevelM: levels, OpeningM: openings},
		FlowM3S: flows,
	}, conv
}

// InverseResult is the outcome of the inverse optimization, which searches
// for an opening vector achieving target delivery flows.
type InverseResult struct {
	FlowState
	Converged   bool
	Iterations  int
	TotalErrorM3S float64
}

// SolveInverse tunes gate openings toward the given target delivery flows
// (keyed by delivery node id), re-solving forward at each outer iteration
// and keeping the opening vector with the lowest total error across all
// targets.
func SolveInverse(net *network.Network, initial State, targets map[string]float64, cfg Config) InverseResult {
	cfg = cfg.withDefaults()

	openings := cloneMap(initial.OpeningM)

	best := InverseResult{}
	bestErr := math.Inf(1)

	for outer := 0; outer < cfg.InverseOuterIterations; outer++ {
		fwd, conv := Solve(net, State{LevelM: initial.LevelM, OpeningM: openings}, cfg)

		totalErr := 0.0
		for nodeID, target := range targets {
			gateID := net.ParentGate(nodeID)
			if gateID == "" {
				continue
			}
			actual := fwd.FlowM3S[gateID]
			e := target - actual
			totalErr += math.Abs(e)

			if target == 0 {
				continue
			}
			factor := 1 + sign(e)*cfg.InverseAdjustmentFactor*math.Abs(e)/target
			for _, upstreamGate := range upstreamGatesOf(net, gateID) {
				g := net.Gates[upstreamGate]
				openings[upstreamGate] = clamp(openings[upstreamGate]*factor, g.MinOpeningM, g.MaxOpeningM)
			}
		}

		if totalErr < bestErr {
			bestErr = totalErr
			best = InverseResult{
				FlowState:     fwd,
				Converged:     conv.Converged,
				Iterations:    outer + 1,
				TotalErrorM3S: totalErr,
			}
		}

		if totalErr < inverseTolM3S {
			break
		}
	}

	best.Converged = best.Converged && best.TotalErrorM3S < inverseTolM3S
	return best
}

// upstreamGatesOf returns gateID plus every gate on the path from the
// network source to gateID's upstream node, i.e. every gate that must be
// adjusted to change gateID's delivery.
func upstreamGatesOf(net *network.Network, gateID string) []string {
	gates := []string{gateID}
	node := net.Gates[gateID].UpstreamNode
	for {
		parent := net.ParentGate(node)
		if parent == "" {
			break
		}
		gates = append(gates, parent)
		node = net.Gates[parent].UpstreamNode
	}
	return gates
}

func sign(v float64) float64 {
	if v > 0 {
		return 1
	}
	if v < 0 {
		return -1
	}
	return 0
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

func cloneMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// sortedGateIDs returns gate ids ordered by the depth of their upstream
// node, shallowest first; gates at the same depth come in no fixed order.
// Each sweep computes every gate's flow from the same level snapshot, so
// the order only affects the order of the warnings collected.
func sortedGateIDs(net *network.Network) []string {
	ids := make([]string, 0, len(net.Gates))
	for id := range net.Gates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return depthOf(net, net.Gates[ids[i]].UpstreamNode) < depthOf(net, net.Gates[ids[j]].UpstreamNode)
	})
	return ids
}

func depthOf(net *network.Network, nodeID string) int {
	depth := 0
	for {
		parent := net.ParentGate(nodeID)
		if parent == "" {
			return depth
		}
		nodeID = net.Gates[parent].UpstreamNode
		depth++
	}
}
