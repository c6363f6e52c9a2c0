package gate

import (
	"fmt"

	"github.com/munbon/irrigation-control/internal/network"
)

const manualDeviationThresholdPercent = 5.0

// Instruction is a field-team-facing manual operation instruction,
// generated when a gate's solver-optimal opening diverges meaningfully
// from its currently commanded opening.
type Instruction struct {
	GateID               string
	Reason               string
	CurrentOpeningPercent float64
	TargetOpeningPercent  float64
	EstimatedDeltaFlowM3S float64
	SafetyChecks          []string
	CoordinationNotes     []string
}

// GenerateManualInstructions compares each MANUAL gate's current opening
// against targetOpeningPercent (the solver-optimal opening for current
// system demand, computed by the caller via internal/hydraulics/solver)
// and emits an instruction wherever the two differ by more than 5%.
func (r *Registry) GenerateManualInstructions(targetOpeningPercent map[string]float64, targetFlowM3S map[string]float64) []Instruction {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Instruction
	for id, s := range r.states {
		if s.Mode != ModeManual {
			continue
		}
		target, ok := targetOpeningPercent[id]
		if !ok {
			continue
		}

		g := r.net.Gates[id]
		currentPercent := 0.0
		if g.MaxOpeningM > 0 {
			currentPercent = s.CurrentOpeningM / g.MaxOpeningM * 100
		}

		if abs(target-currentPercent) <= manualDeviationThresholdPercent {
			continue
		}

		out = append(out, Instruction{
			GateID:                id,
			Reason:                fmt.Sprintf("opening deviates %.1f%% from solver target", target-currentPercent),
			CurrentOpeningPercent: currentPercent,
			TargetOpeningPercent:  target,
			EstimatedDeltaFlowM3S: targetFlowM3S[id] - s.LastFlowM3S,
			SafetyChecks:          []string{"confirm no personnel in canal reach before adjusting", "verify upstream level reading is current"},
			CoordinationNotes:     coordinationNotes(r.net, id),
		})
	}
	return out
}

// coordinationNotes lists sibling gates drawing from the same upstream node
// as gateID, since their openings interact hydraulically.
func coordinationNotes(net *network.Network, gateID string) []string {
	g, ok := net.Gates[gateID]
	if !ok {
		return nil
	}
	var notes []string
	for _, siblingID := range net.ChildGates(g.UpstreamNode) {
		if siblingID != gateID {
			notes = append(notes, fmt.Sprintf("gate %q shares upstream node %q", siblingID, g.UpstreamNode))
		}
	}
	return notes
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
