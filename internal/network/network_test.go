package network

import (
	"testing"

	"github.com/munbon/irrigation-control/pkg/apperror"
)

func validNodes() map[string]*Node {
	return map[string]*Node{
		"N-SRC": {ID: "N-SRC", IsSource: true, FixedLevelM: 10, SurfaceAreaM2: 5000},
		"N-A":   {ID: "N-A", InvertElevationM: 8, SurfaceAreaM2: 1000},
		"N-B":   {ID: "N-B", InvertElevationM: 6, SurfaceAreaM2: 1000},
	}
}

func validGates() map[string]*Gate {
	return map[string]*Gate{
		"HG-C1": {
			ID: "HG-C1", UpstreamNode: "N-SRC", DownstreamNode: "N-A",
			Type: GateSluice, WidthM: 2, MaxOpeningM: 1.5, MinOpeningM: 0,
			SillElevationM: 8, K1: 0.6, K2: -0.2, CalMinHsGo: 0.5, CalMaxHsGo: 5,
		},
		"HG-C2": {
			ID: "HG-C2", UpstreamNode: "N-A", DownstreamNode: "N-B",
			Type: GateSluice, WidthM: 1.5, MaxOpeningM: 1.2, MinOpeningM: 0,
			SillElevationM: 6, K1: 0.55, K2: -0.15, CalMinHsGo: 0.5, CalMaxHsGo: 5,
		},
	}
}

func validReaches() map[string]*Reach {
	return map[string]*Reach{
		"HG-C1": {GateID: "HG-C1", LengthM: 500, BottomWidthM: 3, SideSlope: 1.5, ManningN: 0.025, BedSlope: 0.0002},
		"HG-C2": {GateID: "HG-C2", LengthM: 400, BottomWidthM: 2.5, SideSlope: 1.5, ManningN: 0.025, BedSlope: 0.0002},
	}
}

func TestBuild_Valid(t *testing.T) {
	n, err := Build("N-SRC", validNodes(), validGates(), validReaches(), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := n.ParentGate("N-A"); got != "HG-C1" {
		t.Errorf("ParentGate(N-A) = %q, want HG-C1", got)
	}
	if got := n.ChildGates("N-SRC"); len(got) != 1 || got[0] != "HG-C1" {
		t.Errorf("ChildGates(N-SRC) = %v, want [HG-C1]", got)
	}
	if got := n.ParentGate("N-SRC"); got != "" {
		t.Errorf("ParentGate(N-SRC) = %q, want empty", got)
	}
}

func TestBuild_SourceNotFound(t *testing.T) {
	_, err := Build("N-MISSING", validNodes(), validGates(), validReaches(), nil, nil)
	if !apperror.Is(err, apperror.CodeTopologyBroken) {
		t.Fatalf("expected CodeTopologyBroken, got %v", err)
	}
}

func TestBuild_SourceNotMarked(t *testing.T) {
	nodes := validNodes()
	nodes["N-SRC"].IsSource = false
	_, err := Build("N-SRC", nodes, validGates(), validReaches(), nil, nil)
	if !apperror.Is(err, apperror.CodeTopologyBroken) {
		t.Fatalf("expected CodeTopologyBroken, got %v", err)
	}
}

func TestBuild_SelfLoop(t *testing.T) {
	gates := validGates()
	gates["HG-C1"].DownstreamNode = gates["HG-C1"].UpstreamNode
	_, err := Build("N-SRC", validNodes(), gates, validReaches(), nil, nil)
	if !apperror.Is(err, apperror.CodeTopologyBroken) {
		t.Fatalf("expected CodeTopologyBroken, got %v", err)
	}
}

func TestBuild_UnknownNodeReference(t *testing.T) {
	gates := validGates()
	gates["HG-C1"].DownstreamNode = "N-GHOST"
	_, err := Build("N-SRC", validNodes(), gates, validReaches(), nil, nil)
	if !apperror.Is(err, apperror.CodeTopologyBroken) {
		t.Fatalf("expected CodeTopologyBroken, got %v", err)
	}
}

func TestBuild_TwoParentGates(t *testing.T) {
	gates := validGates()
	gates["HG-C3"] = &Gate{
		ID: "HG-C3", UpstreamNode: "N-SRC", DownstreamNode: "N-A",
		Type: GateSluice, WidthM: 1, MaxOpeningM: 1, SillElevationM: 8,
		K1: 0.5, K2: -0.1,
	}
	reaches := validReaches()
	reaches["HG-C3"] = &Reach{GateID: "HG-C3", LengthM: 100, BottomWidthM: 1, SideSlope: 1, ManningN: 0.025, BedSlope: 0.0002}
	_, err := Build("N-SRC", validNodes(), gates, reaches, nil, nil)
	if !apperror.Is(err, apperror.CodeTopologyBroken) {
		t.Fatalf("expected CodeTopologyBroken for two parent gates, got %v", err)
	}
}

func TestBuild_InvalidK1(t *testing.T) {
	gates := validGates()
	gates["HG-C1"].K1 = 0
	_, err := Build("N-SRC", validNodes(), gates, validReaches(), nil, nil)
	if !apperror.Is(err, apperror.CodeCorruptCalibration) {
		t.Fatalf("expected CodeCorruptCalibration, got %v", err)
	}
}

func TestBuild_InvalidK2(t *testing.T) {
	gates := validGates()
	gates["HG-C1"].K2 = 0.5
	_, err := Build("N-SRC", validNodes(), gates, validReaches(), nil, nil)
	if !apperror.Is(err, apperror.CodeCorruptCalibration) {
		t.Fatalf("expected CodeCorruptCalibration, got %v", err)
	}
}

func TestBuild_InvalidMaxOpening(t *testing.T) {
	gates := validGates()
	gates["HG-C1"].MaxOpeningM = 6
	_, err := Build("N-SRC", validNodes(), gates, validReaches(), nil, nil)
	if !apperror.Is(err, apperror.CodeCorruptCalibration) {
		t.Fatalf("expected CodeCorruptCalibration, got %v", err)
	}
}

func TestBuild_NonPositiveReachGeometry(t *testing.T) {
	reaches := validReaches()
	reaches["HG-C1"].ManningN = 0
	_, err := Build("N-SRC", validNodes(), validGates(), reaches, nil, nil)
	if !apperror.Is(err, apperror.CodeTopologyBroken) {
		t.Fatalf("expected CodeTopologyBroken, got %v", err)
	}
}

func TestBuild_UnreachableNode(t *testing.T) {
	nodes := validNodes()
	nodes["N-ORPHAN"] = &Node{ID: "N-ORPHAN", SurfaceAreaM2: 500}
	_, err := Build("N-SRC", nodes, validGates(), validReaches(), nil, nil)
	if !apperror.Is(err, apperror.CodeTopologyBroken) {
		t.Fatalf("expected CodeTopologyBroken for unreachable node, got %v", err)
	}
}

func TestBuild_BranchingTree(t *testing.T) {
	nodes := validNodes()
	nodes["N-C"] = &Node{ID: "N-C", InvertElevationM: 5, SurfaceAreaM2: 800}
	gates := validGates()
	gates["HG-C3"] = &Gate{
		ID: "HG-C3", UpstreamNode: "N-SRC", DownstreamNode: "N-C",
		Type: GateSluice, WidthM: 1, MaxOpeningM: 1, SillElevationM: 10,
		K1: 0.5, K2: -0.1,
	}
	reaches := validReaches()
	reaches["HG-C3"] = &Reach{GateID: "HG-C3", LengthM: 100, BottomWidthM: 1, SideSlope: 1, ManningN: 0.025, BedSlope: 0.0002}

	n, err := Build("N-SRC", nodes, gates, reaches, nil, nil)
	if err != nil {
		t.Fatalf("branching tree should be valid: %v", err)
	}
	children := n.ChildGates("N-SRC")
	if len(children) != 2 {
		t.Errorf("ChildGates(N-SRC) = %v, want 2 entries", children)
	}
}
