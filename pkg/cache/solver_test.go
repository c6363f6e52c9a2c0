package cache

import (
	"context"
	"testing"
	"time"
)

func sampleSnapshot() *NetworkSnapshot {
	return &NetworkSnapshot{
		Nodes: []NetworkNode{
			{ID: "HG-C-01", GateOpening: 0.6},
			{ID: "N-02"},
			{ID: "N-03"},
		},
		Edges: []NetworkEdge{
			{From: "HG-C-01", To: "N-02", Capacity: 10},
			{From: "N-02", To: "N-03", Capacity: 10},
		},
	}
}

func TestSolverCache_SetGet(t *testing.T) {
	memCache := NewMemoryCache(nil)
	defer memCache.Close()

	solverCache := NewSolverCache(memCache, 5*time.Minute)

	ctx := context.Background()
	snap := sampleSnapshot()

	result := &CachedSolveResult{
		Converged:         true,
		Iterations:        5,
		MaxResidualM:      0.0005,
		ComputationTimeMs: 1.5,
		NodeHeadsM:        map[string]float64{"N-02": 12.3, "N-03": 11.8},
		ReachFlows: []ReachFlowCache{
			{From: "HG-C-01", To: "N-02", FlowCMS: 10, Capacity: 10, Utilization: 1.0},
			{From: "N-02", To: "N-03", FlowCMS: 10, Capacity: 10, Utilization: 1.0},
		},
	}

	err := solverCache.Set(ctx, snap, "forward", result, 0)
	if err != nil {
		t.Fatalf("failed to set: %v", err)
	}

	got, found, err := solverCache.Get(ctx, snap, "forward")
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if !found {
		t.Fatal("expected to find cached result")
	}

	if got.MaxResidualM != result.MaxResidualM {
		t.Errorf("expected residual %f, got %f", result.MaxResidualM, got.MaxResidualM)
	}
	if len(got.ReachFlows) != 2 {
		t.Errorf("expected 2 reach flows, got %d", len(got.ReachFlows))
	}
}

func TestSolverCache_GetNotFound(t *testing.T) {
	memCache := NewMemoryCache(nil)
	defer memCache.Close()

	solverCache := NewSolverCache(memCache, 5*time.Minute)

	ctx := context.Background()
	snap := &NetworkSnapshot{}

	result, found, err := solverCache.Get(ctx, snap, "inverse")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected not found")
	}
	if result != nil {
		t.Error("expected nil result")
	}
}

func TestSolverCache_DifferentMode(t *testing.T) {
	memCache := NewMemoryCache(nil)
	defer memCache.Close()

	solverCache := NewSolverCache(memCache, 5*time.Minute)

	ctx := context.Background()
	snap := sampleSnapshot()

	result := &CachedSolveResult{Converged: true}

	solverCache.Set(ctx, snap, "forward", result, 0)

	_, found, _ := solverCache.Get(ctx, snap, "inverse")
	if found {
		t.Error("should not find result for different solve mode")
	}
}

func TestSolverCache_Invalidate(t *testing.T) {
	memCache := NewMemoryCache(nil)
	defer memCache.Close()

	solverCache := NewSolverCache(memCache, 5*time.Minute)

	ctx := context.Background()
	snap := sampleSnapshot()

	result := &CachedSolveResult{Converged: true}

	solverCache.Set(ctx, snap, "forward", result, 0)
	solverCache.Set(ctx, snap, "inverse", result, 0)

	err := solverCache.Invalidate(ctx, snap)
	if err != nil {
		t.Fatalf("failed to invalidate: %v", err)
	}

	_, found1, _ := solverCache.Get(ctx, snap, "forward")
	_, found2, _ := solverCache.Get(ctx, snap, "inverse")

	if found1 || found2 {
		t.Error("expected cache to be invalidated")
	}
}

func TestSolverCache_InvalidateAll(t *testing.T) {
	memCache := NewMemoryCache(nil)
	defer memCache.Close()

	solverCache := NewSolverCache(memCache, 5*time.Minute)

	ctx := context.Background()

	snap1 := &NetworkSnapshot{Nodes: []NetworkNode{{ID: "A"}}}
	snap2 := &NetworkSnapshot{Nodes: []NetworkNode{{ID: "B"}}}

	result := &CachedSolveResult{Converged: true}

	solverCache.Set(ctx, snap1, "forward", result, 0)
	solverCache.Set(ctx, snap2, "inverse", result, 0)

	count, err := solverCache.InvalidateAll(ctx)
	if err != nil {
		t.Fatalf("failed to invalidate all: %v", err)
	}

	if count != 2 {
		t.Errorf("expected 2 invalidated, got %d", count)
	}
}
