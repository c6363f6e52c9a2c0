package optimizer

import (
	"testing"
	"time"

	"github.com/munbon/irrigation-control/internal/demand"
	"github.com/munbon/irrigation-control/internal/network"
	sched "github.com/munbon/irrigation-control/internal/schedule"
	"github.com/munbon/irrigation-control/internal/team"
)

func buildNet(t *testing.T) *network.Network {
	t.Helper()
	nodes := map[string]*network.Node{
		"N-SRC": {ID: "N-SRC", IsSource: true, FixedLevelM: 10, SurfaceAreaM2: 5000, InvertElevationM: 9},
		"N-A":   {ID: "N-A", InvertElevationM: 8, SurfaceAreaM2: 1000},
	}
	gates := map[string]*network.Gate{
		"HG-D1": {
			ID: "HG-D1", UpstreamNode: "N-SRC", DownstreamNode: "N-A",
			WidthM: 2, MaxOpeningM: 1.5, MaxFlowM3S: 3, SillElevationM: 8,
			K1: 0.6, K2: -0.2, CalMinHsGo: 0.5, CalMaxHsGo: 5,
		},
	}
	reaches := map[string]*network.Reach{
		"HG-D1": {GateID: "HG-D1", LengthM: 500, BottomWidthM: 3, SideSlope: 1.5, ManningN: 0.025, BedSlope: 0.0002},
	}
	net, err := network.Build("N-SRC", nodes, gates, reaches, nil, nil)
	if err != nil {
		t.Fatalf("network.Build: %v", err)
	}
	return net
}

func TestBuild_ProducesScheduledOperationForDemand(t *testing.T) {
	net := buildNet(t)
	demands := []demand.GateAggregate{
		{DeliveryGate: "HG-D1", TotalM3: 500, WeightedPriority: 7, WindowStart: time.Now(), WindowEnd: time.Now().Add(3 * time.Hour)},
	}
	teams := []team.Team{{Code: "T1", AssignedZones: []string{"Z1"}, Status: team.StatusAvailable}}

	result, err := Build(net, sched.Week{ISOYear: 2026, ISOWeek: 31}, demands, teams, nil, map[string]string{"HG-D1": "Z1"}, Constraints{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if len(result.Schedule.Operations) != 1 {
		t.Fatalf("expected 1 operation, got %d", len(result.Schedule.Operations))
	}
	op := result.Schedule.Operations[0]
	if op.GateID != "HG-D1" {
		t.Errorf("GateID = %v, want HG-D1", op.GateID)
	}
	if op.TeamID != "T1" {
		t.Errorf("TeamID = %v, want T1", op.TeamID)
	}
	if op.Status != sched.OpScheduled {
		t.Errorf("Status = %v, want scheduled", op.Status)
	}
}

func buildChainNet(t *testing.T) *network.Network {
	t.Helper()
	nodes := map[string]*network.Node{
		"N-SRC": {ID: "N-SRC", IsSource: true, FixedLevelM: 10, SurfaceAreaM2: 5000, InvertElevationM: 9},
		"N-A":   {ID: "N-A", InvertElevationM: 8, SurfaceAreaM2: 1000},
		"N-B":   {ID: "N-B", InvertElevationM: 6, SurfaceAreaM2: 1000},
	}
	gates := map[string]*network.Gate{
		"HG-D1": {ID: "HG-D1", UpstreamNode: "N-SRC", DownstreamNode: "N-A", WidthM: 2, MaxOpeningM: 1.5, MaxFlowM3S: 3, SillElevationM: 8, K1: 0.6, K2: -0.2, CalMinHsGo: 0.5, CalMaxHsGo: 5},
		"HG-D2": {ID: "HG-D2", UpstreamNode: "N-A", DownstreamNode: "N-B", WidthM: 1.5, MaxOpeningM: 1.2, MaxFlowM3S: 2, SillElevationM: 6, K1: 0.55, K2: -0.15, CalMinHsGo: 0.5, CalMaxHsGo: 5},
	}
	reaches := map[string]*network.Reach{
		"HG-D1": {GateID: "HG-D1", LengthM: 500, BottomWidthM: 3, SideSlope: 1.5, ManningN: 0.025, BedSlope: 0.0002},
		"HG-D2": {GateID: "HG-D2", LengthM: 400, BottomWidthM: 2.5, SideSlope: 1.5, ManningN: 0.025, BedSlope: 0.0002},
	}
	net, err := network.Build("N-SRC", nodes, gates, reaches, nil, nil)
	if err != nil {
		t.Fatalf("network.Build: %v", err)
	}
	return net
}

func TestBuild_GravitySequenceStaggersDownstreamGate(t *testing.T) {
	net := buildChainNet(t)
	now := time.Now()
	demands := []demand.GateAggregate{
		// Lower priority but upstream: HG-D1 must still land no later than
		// one slot before HG-D2, the gravity sequence constraint, even
		// though the greedy order would otherwise schedule HG-D2 first.
		{DeliveryGate: "HG-D1", TotalM3: 500, WeightedPriority: 5, WindowStart: now, WindowEnd: now.Add(time.Hour)},
		{DeliveryGate: "HG-D2", TotalM3: 500, WeightedPriority: 9, WindowStart: now, WindowEnd: now.Add(time.Hour)},
	}
	teams := []team.Team{{Code: "T1", AssignedZones: []string{"Z1"}, Status: team.StatusAvailable}}

	result, err := Build(net, sched.Week{ISOYear: 2026, ISOWeek: 31}, demands, teams, nil, map[string]string{"HG-D1": "Z1", "HG-D2": "Z1"}, Constraints{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	var d1, d2 *sched.Operation
	for _, op := range result.Schedule.Operations {
		switch op.GateID {
		case "HG-D1":
			d1 = op
		case "HG-D2":
			d2 = op
		}
	}
	if d1 == nil || d2 == nil {
		t.Fatalf("expected operations for both HG-D1 and HG-D2, got %+v", result.Schedule.Operations)
	}
	if !d2.PlannedStart.After(d1.PlannedStart) {
		t.Errorf("downstream HG-D2 start %v not staggered after upstream HG-D1 start %v", d2.PlannedStart, d1.PlannedStart)
	}
}

func TestPickTeam_DailyCapSpillsToNextTeam(t *testing.T) {
	teams := []team.Team{
		{Code: "T1", AssignedZones: []string{"Z1"}, Status: team.StatusAvailable, MaxOperationsPerDay: 1},
		{Code: "T2", AssignedZones: []string{"Z1"}, Status: team.StatusAvailable, MaxOperationsPerDay: 1},
	}

	teamDayCount := map[string]int{}
	opSlot := firstOperationDay(Constraints{}.withDefaults())

	first := pickTeam(teams, "Z1", opSlot, teamDayCount)
	if first != "T1" {
		t.Fatalf("first assignment = %v, want T1", first)
	}
	teamDayCount[teamDayKey(first, opSlot)]++

	second := pickTeam(teams, "Z1", opSlot, teamDayCount)
	if second != "T2" {
		t.Errorf("second assignment = %v, want T2 once T1 is at its daily cap", second)
	}
}

func TestBuild_SkipsUnknownDeliveryGate(t *testing.T) {
	net := buildNet(t)
	demands := []demand.GateAggregate{
		{DeliveryGate: "HG-GHOST", TotalM3: 500, WeightedPriority: 7, WindowStart: time.Now(), WindowEnd: time.Now().Add(time.Hour)},
	}
	result, err := Build(net, sched.Week{ISOYear: 2026, ISOWeek: 31}, demands, nil, nil, nil, Constraints{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if len(result.Schedule.Operations) != 0 {
		t.Errorf("expected 0 operations for unknown gate, got %d", len(result.Schedule.Operations))
	}
}
