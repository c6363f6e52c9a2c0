package gate

import (
	"context"
	"testing"
	"time"

	"github.com/munbon/irrigation-control/internal/network"
)

func buildNet(t *testing.T) *network.Network {
	t.Helper()
	nodes := map[string]*network.Node{
		"N-SRC": {ID: "N-SRC", IsSource: true, FixedLevelM: 10, SurfaceAreaM2: 5000, InvertElevationM: 9},
		"N-A":   {ID: "N-A", InvertElevationM: 8, SurfaceAreaM2: 1000},
		"N-B":   {ID: "N-B", InvertElevationM: 6, SurfaceAreaM2: 1000},
	}
	gates := map[string]*network.Gate{
		"HG-C1": {ID: "HG-C1", UpstreamNode: "N-SRC", DownstreamNode: "N-A", WidthM: 2, MaxOpeningM: 1.5, MaxFlowM3S: 3, SillElevationM: 8, K1: 0.6, K2: -0.2, CalMinHsGo: 0.5, CalMaxHsGo: 5},
		"FG-M1": {ID: "FG-M1", UpstreamNode: "N-A", DownstreamNode: "N-B", WidthM: 1.5, MaxOpeningM: 1.2, MaxFlowM3S: 2, SillElevationM: 6, K1: 0.55, K2: -0.15, CalMinHsGo: 0.5, CalMaxHsGo: 5},
	}
	reaches := map[string]*network.Reach{
		"HG-C1": {GateID: "HG-C1", LengthM: 500, BottomWidthM: 3, SideSlope: 1.5, ManningN: 0.025, BedSlope: 0.0002},
		"FG-M1": {GateID: "FG-M1", LengthM: 400, BottomWidthM: 2.5, SideSlope: 1.5, ManningN: 0.025, BedSlope: 0.0002},
	}
	net, err := network.Build("N-SRC", nodes, gates, reaches, nil, nil)
	if err != nil {
		t.Fatalf("network.Build: %v", err)
	}
	return net
}

func TestNewRegistry_AssignsInitialModeByPrefix(t *testing.T) {
	net := buildNet(t)
	reg := NewRegistry(net, nil, nil, 0, 0)

	s1, err := reg.GetState("HG-C1")
	if err != nil {
		t.Fatalf("GetState(HG-C1): %v", err)
	}
	if s1.Mode != ModeAutomated {
		t.Errorf("HG-C1 mode = %v, want AUTOMATED", s1.Mode)
	}

	s2, err := reg.GetState("FG-M1")
	if err != nil {
		t.Fatalf("GetState(FG-M1): %v", err)
	}
	if s2.Mode != ModeManual {
		t.Errorf("FG-M1 mode = %v, want MANUAL", s2.Mode)
	}
}

func TestUpdateManual_RejectedWhenNotManualMode(t *testing.T) {
	net := buildNet(t)
	reg := NewRegistry(net, nil, nil, 0, 0)

	_, err := reg.UpdateManual(context.Background(), "HG-C1", 50, 10, 9, "op1", "test")
	if err == nil {
		t.Errorf("expected error updating an AUTOMATED gate manually")
	}
}

func TestUpdateManual_SucceedsAndRecomputesFlow(t *testing.T) {
	net := buildNet(t)
	reg := NewRegistry(net, nil, nil, 0, 0)

	s, err := reg.UpdateManual(context.Background(), "FG-M1", 50, 10, 9, "op1", "test")
	if err != nil {
		t.Fatalf("UpdateManual: %v", err)
	}
	if s.LastFlowM3S <= 0 {
		t.Errorf("LastFlowM3S = %v, want > 0", s.LastFlowM3S)
	}
	if s.LastManualUpdate.IsZero() {
		t.Errorf("LastManualUpdate not recorded")
	}
}

func TestValidateTransition_AutomatedRequiresReachability(t *testing.T) {
	net := buildNet(t)
	reg := NewRegistry(net, nil, PrefixReachability{Prefixes: []string{"NEVER-MATCHES"}}, 0, 0)

	result, err := reg.ValidateTransition("FG-M1", ModeAutomated, false)
	if err != nil {
		t.Fatalf("ValidateTransition: %v", err)
	}
	if result.IsValid {
		t.Errorf("expected invalid transition when SCADA unreachable")
	}
}

func TestExecuteTransition_SuccessReachesStandby(t *testing.T) {
	net := buildNet(t)
	reg := NewRegistry(net, nil, nil, 0, 0)

	if err := reg.ExecuteTransition(context.Background(), "FG-M1", ModeHybrid, false); err != nil {
		t.Fatalf("ExecuteTransition: %v", err)
	}
	s, _ := reg.GetState("FG-M1")
	if s.Mode != ModeHybrid || s.ControlStatus != StatusStandby {
		t.Errorf("state = %+v, want mode=HYBRID status=STANDBY", s)
	}
}

func TestGetSyncStatus_PartitionsByMode(t *testing.T) {
	net := buildNet(t)
	reg := NewRegistry(net, nil, nil, 0, 0)

	status := reg.GetSyncStatus(time.Now())
	if len(status.AutomatedGates) != 1 || len(status.ManualGates) != 1 {
		t.Errorf("status = %+v, want 1 automated and 1 manual gate", status)
	}
	if status.QualityScore != 1.0 {
		t.Errorf("QualityScore = %v, want 1.0 with no conflicts", status.QualityScore)
	}
}

func TestGetSyncStatus_WarnsOnStaleManualUpdate(t *testing.T) {
	net := buildNet(t)
	reg := NewRegistry(net, nil, nil, 15*time.Minute, 2.0)

	reg.mu.Lock()
	reg.states["FG-M1"].LastManualUpdate = time.Now().Add(-1 * time.Hour)
	reg.mu.Unlock()

	status := reg.GetSyncStatus(time.Now())
	if len(status.Warnings) == 0 {
		t.Errorf("expected a staleness warning for FG-M1")
	}
}
