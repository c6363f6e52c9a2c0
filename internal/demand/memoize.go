package demand

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/munbon/irrigation-control/pkg/cache"
)

const memoizeTTL = 15 * time.Minute

// MemoCache memoizes Aggregate results under key (week, weather_adj,
// rainfall_mm, #plots) as spec.md §4.5 prescribes.
type MemoCache struct {
	cache cache.Cache
}

// NewMemoCache wraps an underlying key-value cache for demand-aggregate
// memoization.
func NewMemoCache(c cache.Cache) *MemoCache {
	return &MemoCache{cache: c}
}

func memoKey(week string, weatherAdj WeatherFactors, plotCount int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%.4f|%.4f|%d", week, weatherAdj.WeatherAdjustment, weatherAdj.RainfallMM, plotCount)
	return "demand:agg:" + hex.EncodeToString(h.Sum(nil))[:32]
}

// Get returns a previously memoized aggregate result for the given week,
// weather factors, and plot count, if still within TTL.
func (m *MemoCache) Get(ctx context.Context, week string, weatherAdj WeatherFactors, plotCount int) ([]GateAggregate, bool) {
	raw, err := m.cache.Get(ctx, memoKey(week, weatherAdj, plotCount))
	if err != nil {
		return nil, false
	}
	var out []GateAggregate
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}

// Set memoizes an aggregate result for 15 minutes.
func (m *MemoCache) Set(ctx context.Context, week string, weatherAdj WeatherFactors, plotCount int, result []GateAggregate) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return m.cache.Set(ctx, memoKey(week, weatherAdj, plotCount), raw, memoizeTTL)
}
