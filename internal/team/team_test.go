package team

import "testing"

func TestTeam_HasCapability(t *testing.T) {
	tm := Team{Capabilities: []string{"manual_gate", "scada_reset"}}
	if !tm.HasCapability("manual_gate") {
		t.Errorf("expected manual_gate capability")
	}
	if tm.HasCapability("welding") {
		t.Errorf("did not expect welding capability")
	}
}

func TestTeam_CoversZone(t *testing.T) {
	tm := Team{AssignedZones: []string{"Z1", "Z2"}}
	if !tm.CoversZone("Z2") {
		t.Errorf("expected Z2 coverage")
	}
	if tm.CoversZone("Z9") {
		t.Errorf("did not expect Z9 coverage")
	}
}
