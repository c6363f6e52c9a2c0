package gate

import (
	"context"
	"testing"
)

func TestGenerateManualInstructions_SkipsWithinThreshold(t *testing.T) {
	net := buildNet(t)
	reg := NewRegistry(net, nil, nil, 0, 0)

	if _, err := reg.UpdateManual(context.Background(), "FG-M1", 50, 10, 9, "op1", "initial"); err != nil {
		t.Fatalf("UpdateManual: %v", err)
	}

	instructions := reg.GenerateManualInstructions(
		map[string]float64{"FG-M1": 52},
		map[string]float64{"FG-M1": 1.0},
	)
	if len(instructions) != 0 {
		t.Errorf("expected no instructions within threshold, got %d", len(instructions))
	}
}

func TestGenerateManualInstructions_EmitsBeyondThreshold(t *testing.T) {
	net := buildNet(t)
	reg := NewRegistry(net, nil, nil, 0, 0)

	if _, err := reg.UpdateManual(context.Background(), "FG-M1", 20, 10, 9, "op1", "initial"); err != nil {
		t.Fatalf("UpdateManual: %v", err)
	}

	instructions := reg.GenerateManualInstructions(
		map[string]float64{"FG-M1": 80},
		map[string]float64{"FG-M1": 1.5},
	)
	if len(instructions) != 1 {
		t.Fatalf("expected 1 instruction, got %d", len(instructions))
	}
	inst := instructions[0]
	if inst.GateID != "FG-M1" {
		t.Errorf("GateID = %v, want FG-M1", inst.GateID)
	}
	if inst.TargetOpeningPercent != 80 {
		t.Errorf("TargetOpeningPercent = %v, want 80", inst.TargetOpeningPercent)
	}
	if len(inst.SafetyChecks) == 0 {
		t.Errorf("expected safety checks to be populated")
	}
}

func TestGenerateManualInstructions_IgnoresAutomatedGates(t *testing.T) {
	net := buildNet(t)
	reg := NewRegistry(net, nil, nil, 0, 0)

	instructions := reg.GenerateManualInstructions(
		map[string]float64{"HG-C1": 90},
		map[string]float64{"HG-C1": 2.0},
	)
	if len(instructions) != 0 {
		t.Errorf("expected no instructions for AUTOMATED gate, got %d", len(instructions))
	}
}

func TestGenerateManualInstructions_CoordinationNotesEmptyWithoutSiblingGates(t *testing.T) {
	net := buildNet(t)
	reg := NewRegistry(net, nil, nil, 0, 0)

	notes := coordinationNotes(reg.net, "HG-C1")
	if len(notes) != 0 {
		t.Errorf("expected no sibling notes for the only gate off N-SRC, got %v", notes)
	}
}
