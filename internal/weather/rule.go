// Package weather implements the weekly adjustment accumulator (C6): a
// data-driven daily rule table that turns per-zone weather observations
// into demand/ET/timing adjustments, and a next-week aggregation pass that
// carries those adjustments forward into the demand aggregator's inputs.
package weather

import "fmt"

// Operator is a comparison used by a rule condition.
type Operator string

const (
	OpGT Operator = ">"
	OpLT Operator = "<"
	OpGE Operator = ">="
	OpLE Operator = "<="
	OpEQ Operator = "=="
	OpNE Operator = "!="
)

// Condition tests a single observation field against a threshold.
type Condition struct {
	Field string
	Op    Operator
	Value float64
}

// Observation is a zone's weather reading for a single day.
type Observation struct {
	RainfallMM        float64
	TemperatureDropC  float64
	WindSpeedKMH      float64
	ETMM              float64
}

func (o Observation) field(name string) (float64, bool) {
	switch name {
	case "rainfall_mm":
		return o.RainfallMM, true
	case "temperature_drop_c":
		return o.TemperatureDropC, true
	case "wind_speed_kmh":
		return o.WindSpeedKMH, true
	case "et_mm":
		return o.ETMM, true
	default:
		return 0, false
	}
}

func (c Condition) matches(o Observation) bool {
	v, ok := o.field(c.Field)
	if !ok {
		return false
	}
	switch c.Op {
	case OpGT:
		return v > c.Value
	case OpLT:
		return v < c.Value
	case OpGE:
		return v >= c.Value
	case OpLE:
		return v <= c.Value
	case OpEQ:
		return v == c.Value
	case OpNE:
		return v != c.Value
	default:
		return false
	}
}

// Effect is what a matched rule applies to a day's adjustment.
type Effect struct {
	OperationsCancelled       bool
	DemandReductionPercent    float64
	ETAdjustmentPercent       float64
	ApplicationTimeIncreasePercent float64
}

// Rule is a single data-driven adjustment rule: all of Conditions must
// match (AND-composed) for Effect to apply. ConflictsWith names other rule
// IDs this rule cannot coexist with; on conflict, higher Priority wins.
type Rule struct {
	ID            string
	Priority      int
	Conditions    []Condition
	ConflictsWith []string
	Effect        Effect
}

func (r Rule) matches(o Observation) bool {
	if len(r.Conditions) == 0 {
		return false
	}
	for _, c := range r.Conditions {
		if !c.matches(o) {
			return false
		}
	}
	return true
}

// DefaultRules is the R1-R4 table from spec.md §4.6.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:       "R1",
			Priority: 40,
			Conditions: []Condition{
				{Field: "rainfall_mm", Op: OpGT, Value: 25},
			},
			ConflictsWith: []string{"R2"},
			Effect:        Effect{OperationsCancelled: true, DemandReductionPercent: 100},
		},
		{
			ID:       "R2",
			Priority: 30,
			Conditions: []Condition{
				{Field: "rainfall_mm", Op: OpGT, Value: 10},
				{Field: "rainfall_mm", Op: OpLE, Value: 25},
			},
			ConflictsWith: []string{"R1"},
			Effect:        Effect{DemandReductionPercent: 30},
		},
		{
			ID:       "R3",
			Priority: 20,
			Conditions: []Condition{
				{Field: "temperature_drop_c", Op: OpGT, Value: 5},
			},
			Effect: Effect{ETAdjustmentPercent: -20},
		},
		{
			ID:       "R4",
			Priority: 10,
			Conditions: []Condition{
				{Field: "wind_speed_kmh", Op: OpGT, Value: 20},
			},
			Effect: Effect{ApplicationTimeIncreasePercent: 15},
		},
	}
}

// DailyAdjustment is the result of evaluating a rule set against a zone's
// observation for one day.
type DailyAdjustment struct {
	Zone                           string
	Effect
	AppliedRules []string
}

// Evaluate matches every rule in rules against o, resolves conflicts by
// priority (the highest-priority matched rule among a mutually-exclusive
// set wins), and composes the remaining matched rules' effects: demand
// reduction multiplicatively (only one demand-affecting rule can win a
// conflict), ET and application-time additively.
func Evaluate(zone string, o Observation, rules []Rule) DailyAdjustment {
	matched := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.matches(o) {
			matched = append(matched, r)
		}
	}

	excluded := make(map[string]bool)
	for _, r := range matched {
		for _, other := range matched {
			if other.ID == r.ID || excluded[r.ID] {
				continue
			}
			if contains(r.ConflictsWith, other.ID) && other.Priority < r.Priority {
				excluded[other.ID] = true
			}
		}
	}

	out := DailyAdjustment{Zone: zone}
	for _, r := range matched {
		if excluded[r.ID] {
			continue
		}
		out.AppliedRules = append(out.AppliedRules, r.ID)
		if r.Effect.OperationsCancelled {
			out.OperationsCancelled = true
		}
		out.DemandReductionPercent = 100 - (100-out.DemandReductionPercent)*(1-r.Effect.DemandReductionPercent/100)
		out.ETAdjustmentPercent += r.Effect.ETAdjustmentPercent
		out.ApplicationTimeIncreasePercent += r.Effect.ApplicationTimeIncreasePercent
	}

	return out
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %v", c.Field, c.Op, c.Value)
}
