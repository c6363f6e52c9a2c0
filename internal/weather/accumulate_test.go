package weather

import (
	"testing"
	"time"
)

func TestAccumulateWeek_MultiplicativeDemandModifier(t *testing.T) {
	daily := map[time.Time]DailyAdjustment{
		time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC): {Effect: Effect{DemandReductionPercent: 30}},
		time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC): {Effect: Effect{DemandReductionPercent: 30}},
	}
	summary := AccumulateWeek("Z1", daily)
	want := 0.7 * 0.7
	if diff := summary.DemandModifier - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("DemandModifier = %v, want %v", summary.DemandModifier, want)
	}
}

func TestAccumulateWeek_BlackoutDatesCollected(t *testing.T) {
	d1 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)
	daily := map[time.Time]DailyAdjustment{
		d1: {Effect: Effect{OperationsCancelled: true}},
		d2: {Effect: Effect{OperationsCancelled: false}},
	}
	summary := AccumulateWeek("Z1", daily)
	if len(summary.BlackoutDates) != 1 || !summary.BlackoutDates[0].Equal(d1) {
		t.Errorf("BlackoutDates = %v, want [%v]", summary.BlackoutDates, d1)
	}
}

func TestAccumulateWeek_ApplicationTimeModifierTakesMax(t *testing.T) {
	daily := map[time.Time]DailyAdjustment{
		time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC): {Effect: Effect{ApplicationTimeIncreasePercent: 15}},
		time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC): {Effect: Effect{ApplicationTimeIncreasePercent: 5}},
	}
	summary := AccumulateWeek("Z1", daily)
	if summary.ApplicationTimeModifier != 1.15 {
		t.Errorf("ApplicationTimeModifier = %v, want 1.15", summary.ApplicationTimeModifier)
	}
}

func TestAccumulateWeek_WeeklyRainfallSequenceScenario(t *testing.T) {
	rainfall := []float64{30, 5, 0, 12, 0, 0, 0}
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	daily := make(map[time.Time]DailyAdjustment, len(rainfall))
	for i, mm := range rainfall {
		day := start.AddDate(0, 0, i)
		daily[day] = Evaluate("Z1", Observation{RainfallMM: mm}, DefaultRules())
	}

	summary := AccumulateWeek("Z1", daily)

	// 0 (30mm blackout) * 1 * 1 * 0.7 (12mm) * 1 * 1 * 1 = 0: the blackout
	// day's zero factor dominates the week regardless of the other days.
	want := 0.0
	if diff := summary.DemandModifier - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("DemandModifier = %v, want %v", summary.DemandModifier, want)
	}
	if len(summary.BlackoutDates) != 1 || !summary.BlackoutDates[0].Equal(start) {
		t.Errorf("BlackoutDates = %v, want [%v]", summary.BlackoutDates, start)
	}
}

func TestAccumulateWeek_NoAdjustmentsDefaultsToIdentity(t *testing.T) {
	summary := AccumulateWeek("Z1", nil)
	if summary.DemandModifier != 1.0 || summary.ETModifier != 1.0 || summary.ApplicationTimeModifier != 1.0 {
		t.Errorf("expected identity modifiers with no daily adjustments, got %+v", summary)
	}
}
