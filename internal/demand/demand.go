// Package demand implements the demand aggregator (C5): rolls per-plot
// weekly demand records into per-delivery-gate aggregates, applying
// weather modifiers and the prior week's accumulated adjustments, then
// checks the result against each gate's hydraulic capacity.
package demand

import (
	"sort"
	"time"

	"github.com/munbon/irrigation-control/pkg/apperror"
)

// Priority is the qualitative urgency of a plot's demand.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

var priorityValue = map[Priority]float64{
	PriorityCritical: 9,
	PriorityHigh:     7,
	PriorityMedium:   5,
	PriorityLow:      3,
}

const rainfallSavingsM3PerRaiPerMM = 1.6

// minPlotDemandM3 is the floor adj_plot is clamped to — demand never goes
// negative even under heavy rainfall offset.
const minPlotDemandM3 = 0.0

// PlotDemand is a single plot's weekly demand record.
type PlotDemand struct {
	PlotID       string
	DeliveryGate string
	VolumeM3     float64
	AreaRai      float64
	Priority     Priority
	WindowStart  time.Time
	WindowEnd    time.Time
}

// WeatherFactors modulates plot demand before aggregation.
type WeatherFactors struct {
	WeatherAdjustment float64 // multiplicative, ∈ [0.5, 1.5]
	RainfallMM        float64
}

// GateAggregate is a delivery gate's rolled-up weekly demand.
type GateAggregate struct {
	DeliveryGate      string
	TotalM3           float64
	WeightedPriority  float64
	WindowStart       time.Time
	WindowEnd         time.Time
	ContributingPlots []string
}

// Aggregate rolls plots into per-delivery-gate aggregates, applying
// weatherAdj and the carried-forward weekly adjustment for each plot's
// zone (demandModifier, from the weekly adjustment accumulator), sorted by
// weighted priority descending.
func Aggregate(plots []PlotDemand, weatherAdj WeatherFactors, zoneDemandModifier map[string]float64, plotZone map[string]string) []GateAggregate {
	byGate := make(map[string]*GateAggregate)

	for _, p := range plots {
		modifier := 1.0
		if zone, ok := plotZone[p.PlotID]; ok {
			if m, ok := zoneDemandModifier[zone]; ok {
				modifier = m
			}
		}

		adj := p.VolumeM3*weatherAdj.WeatherAdjustment*modifier - weatherAdj.RainfallMM*rainfallSavingsM3PerRaiPerMM*p.AreaRai
		if adj < minPlotDemandM3 {
			adj = minPlotDemandM3
		}

		ga, ok := byGate[p.DeliveryGate]
		if !ok {
			ga = &GateAggregate{DeliveryGate: p.DeliveryGate, WindowStart: p.WindowStart, WindowEnd: p.WindowEnd}
			byGate[p.DeliveryGate] = ga
		}

		ga.TotalM3 += adj
		ga.WeightedPriority += priorityValue[p.Priority] * adj
		ga.ContributingPlots = append(ga.ContributingPlots, p.PlotID)

		if p.WindowStart.Before(ga.WindowStart) {
			ga.WindowStart = p.WindowStart
		}
		if p.WindowEnd.After(ga.WindowEnd) {
			ga.WindowEnd = p.WindowEnd
		}
	}

	out := make([]GateAggregate, 0, len(byGate))
	for _, ga := range byGate {
		if ga.TotalM3 > 0 {
			ga.WeightedPriority /= ga.TotalM3
		}
		out = append(out, *ga)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].WeightedPriority > out[j].WeightedPriority
	})

	return out
}

// CheckCapacity flags gates whose required flow (total volume over the
// delivery window) exceeds maxFlowM3S.
func CheckCapacity(gates []GateAggregate, maxFlowM3S map[string]float64) []error {
	var errs []error
	for _, g := range gates {
		seconds := g.WindowEnd.Sub(g.WindowStart).Seconds()
		if seconds <= 0 {
			continue
		}
		requiredFlow := g.TotalM3 / seconds
		if maxFlow, ok := maxFlowM3S[g.DeliveryGate]; ok && requiredFlow > maxFlow {
			errs = append(errs, apperror.New(apperror.CodeCapacityViolation,
				"gate "+g.DeliveryGate+" required flow exceeds max_flow_m3s"))
		}
	}
	return errs
}
