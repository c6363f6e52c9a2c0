package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SolverCache memoizes hydraulic solver results keyed by a hash of the
// whole network snapshot and the solve mode; any change to one gate
// opening or reach capacity yields a different key for the whole network.
type SolverCache struct {
	cache      Cache
	defaultTTL time.Duration
}

// CachedSolveResult is a cached hydraulic solve outcome.
type CachedSolveResult struct {
	Converged         bool              `json:"converged"`
	Iterations        int               `json:"iterations"`
	MaxResidualM      float64           `json:"max_residual_m"`
	ComputationTimeMs float64           `json:"computation_time_ms"`
	NodeHeadsM        map[string]float64 `json:"node_heads_m,omitempty"`
	ReachFlows        []ReachFlowCache  `json:"reach_flows,omitempty"`
	ComputedAt        time.Time         `json:"computed_at"`
}

// ReachFlowCache is a cached per-reach flow result.
type ReachFlowCache struct {
	From        string  `json:"from"`
	To          string  `json:"to"`
	FlowCMS     float64 `json:"flow_cms"`
	Capacity    float64 `json:"capacity"`
	Utilization float64 `json:"utilization"`
}

// NewSolverCache creates a cache for hydraulic solve results.
func NewSolverCache(cache Cache, defaultTTL time.Duration) *SolverCache {
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	return &SolverCache{
		cache:      cache,
		defaultTTL: defaultTTL,
	}
}

// Get retrieves a cached solve result for the given network snapshot and
// solve mode ("forward" or "inverse").
func (sc *SolverCache) Get(ctx context.Context, snap *NetworkSnapshot, mode string) (*CachedSolveResult, bool, error) {
	key := BuildSolveKey(NetworkHash(snap), mode)

	data, err := sc.cache.Get(ctx, key)
	if err != nil {
		if err == ErrKeyNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}

	var result CachedSolveResult
	if err := json.Unmarshal(data, &result); err != nil {
		_ = sc.cache.Delete(ctx, key)
		return nil, false, nil
	}

	return &result, true, nil
}

// Set stores a solve result in the cache.
func (sc *SolverCache) Set(ctx context.Context, snap *NetworkSnapshot, mode string, result *CachedSolveResult, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = sc.defaultTTL
	}

	key := BuildSolveKey(NetworkHash(snap), mode)
	result.ComputedAt = time.Now()

	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	return sc.cache.Set(ctx, key, data, ttl)
}

// Invalidate removes the cached solve result for a network snapshot,
// across every solve mode.
func (sc *SolverCache) Invalidate(ctx context.Context, snap *NetworkSnapshot) error {
	pattern := fmt.Sprintf("solve:*:%s", NetworkHash(snap))
	_, err := sc.cache.DeleteByPattern(ctx, pattern)
	return err
}

// InvalidateAll removes every cached solve result. Called when the
// network topology itself changes (a reach is added or decommissioned).
func (sc *SolverCache) InvalidateAll(ctx context.Context) (int64, error) {
	return sc.cache.DeleteByPattern(ctx, "solve:*")
}
