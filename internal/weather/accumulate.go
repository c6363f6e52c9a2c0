package weather

import "time"

// WeeklySummary is the per-zone carry-forward that the demand aggregator
// applies to the following week's inputs.
type WeeklySummary struct {
	Zone                      string
	DemandModifier            float64
	ETModifier                float64
	ApplicationTimeModifier   float64
	BlackoutDates             []time.Time
}

// AccumulateWeek folds a zone's daily adjustments for week w into the
// WeeklySummary the scheduler multiplies into week w+1's demand inputs.
func AccumulateWeek(zone string, daily map[time.Time]DailyAdjustment) WeeklySummary {
	summary := WeeklySummary{
		Zone:                    zone,
		DemandModifier:          1.0,
		ETModifier:              1.0,
		ApplicationTimeModifier: 1.0,
	}

	for date, adj := range daily {
		summary.DemandModifier *= 1 - adj.DemandReductionPercent/100
		summary.ETModifier *= 1 + adj.ETAdjustmentPercent/100
		if m := 1 + adj.ApplicationTimeIncreasePercent/100; m > summary.ApplicationTimeModifier {
			summary.ApplicationTimeModifier = m
		}
		if adj.OperationsCancelled {
			summary.BlackoutDates = append(summary.BlackoutDates, date)
		}
	}

	return summary
}
