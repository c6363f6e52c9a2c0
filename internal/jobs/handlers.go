package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/munbon/irrigation-control/internal/adapter"
	"github.com/munbon/irrigation-control/internal/demand"
	"github.com/munbon/irrigation-control/internal/gate"
	"github.com/munbon/irrigation-control/internal/network"
	sched "github.com/munbon/irrigation-control/internal/schedule"
	"github.com/munbon/irrigation-control/internal/scheduler/optimizer"
	"github.com/munbon/irrigation-control/internal/store/livestate"
	"github.com/munbon/irrigation-control/internal/store/postgres"
	"github.com/munbon/irrigation-control/internal/weather"
	"github.com/munbon/irrigation-control/pkg/audit"
	"github.com/munbon/irrigation-control/pkg/client"
	"github.com/munbon/irrigation-control/pkg/logger"
	"github.com/munbon/irrigation-control/pkg/metrics"
)

// Handlers wires the background task handlers to the repositories and
// collaborator clients a job needs, and registers them on an asynq mux.
type Handlers struct {
	Net          *network.Network
	Gates        *gate.Registry
	Adapter      *adapter.Adapter
	Schedules    *postgres.ScheduleRepository
	Teams        *postgres.TeamRepository
	WeatherRepo  *postgres.WeatherAdjustmentRepository
	Adaptations  *postgres.AdaptationRepository
	Instructions *postgres.FieldInstructionRepository
	LiveState    *livestate.Store
	Agronomy     *client.AgronomyClient
	Weather      *client.WeatherClient
	Scada        *client.SCADAClient
	Constraints  optimizer.Constraints
}

// RegisterHandlers wires every task type to its handler on mux.
func (h *Handlers) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeWeeklyBuild, h.HandleWeeklyBuild)
	mux.HandleFunc(TypeReoptimize, h.HandleReoptimize)
	mux.HandleFunc(TypeDailyAccumulate, h.HandleDailyAccumulate)
	mux.HandleFunc(TypeInstructionBuild, h.HandleInstructionBuild)
}

// HandleWeeklyBuild runs a full C7 plan build for one ISO week: pulls
// plot demand from agronomy per zone, aggregates via C5, and persists the
// resulting schedule.
func (h *Handlers) HandleWeeklyBuild(ctx context.Context, t *asynq.Task) error {
	var payload WeeklyBuildPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal weekly build payload (%v): %w", err, asynq.SkipRetry)
	}

	week := sched.Week{ISOYear: payload.ISOYear, ISOWeek: payload.ISOWeek}
	logger.Info("starting weekly build", "week", week.String())

	weekTag := week.String()
	var plots []demand.PlotDemand
	plotZone := make(map[string]string)
	gateZone := make(map[string]string)
	zoneDemandModifier := make(map[string]float64)
	priorYear, priorWeek := isoWeekStart(payload.ISOYear, payload.ISOWeek).AddDate(0, 0, -7).ISOWeek()

	for zoneID, z := range h.Net.Zones {
		for _, g := range z.DeliveryGates {
			gateZone[g] = zoneID
		}

		if summary, err := h.WeatherRepo.GetWeeklySummary(ctx, zoneID, priorYear, priorWeek); err == nil {
			zoneDemandModifier[zoneID] = summary.DemandModifier
		}

		raw, err := h.Agronomy.GetZoneDemands(ctx, zoneID, weekTag)
		if err != nil {
			logger.Warn("agronomy fetch failed, skipping zone for this build", "zone", zoneID, "error", err)
			continue
		}
		for _, p := range raw {
			plotZone[p.PlotID] = zoneID
			plots = append(plots, toDemandPlot(p, week))
		}
	}

	aggregates := demand.Aggregate(plots, demand.WeatherFactors{WeatherAdjustment: 1.0}, zoneDemandModifier, plotZone)

	teams, err := h.Teams.List(ctx)
	if err != nil {
		return fmt.Errorf("list teams: %w", err)
	}

	result, err := optimizer.Build(h.Net, week, aggregates, teams, plotZone, gateZone, h.Constraints)
	if err != nil {
		return fmt.Errorf("build plan: %w", err)
	}

	if err := h.Schedules.Create(ctx, result.Schedule); err != nil {
		return fmt.Errorf("persist schedule: %w", err)
	}

	logger.Info("weekly build complete", "week", week.String(), "schedule_id", result.Schedule.ID, "operations", len(result.Schedule.Operations))
	return nil
}

// toDemandPlot maps the agronomy service's raw shape onto the demand
// package's input shape. 1 hectare = 6.25 rai; priority buckets follow
// the qualitative thresholds the agronomy service's crop model assigns.
func toDemandPlot(p client.PlotDemand, week sched.Week) demand.PlotDemand {
	priority := demand.PriorityLow
	switch {
	case p.Priority >= 9:
		priority = demand.PriorityCritical
	case p.Priority >= 7:
		priority = demand.PriorityHigh
	case p.Priority >= 5:
		priority = demand.PriorityMedium
	}

	start := isoWeekStart(week.ISOYear, week.ISOWeek)
	return demand.PlotDemand{
		PlotID:       p.PlotID,
		DeliveryGate: p.DeliveryNode,
		VolumeM3:     p.BaseVolumeM3,
		AreaRai:      p.AreaHa * 6.25,
		Priority:     priority,
		WindowStart:  start,
		WindowEnd:    start.AddDate(0, 0, 7),
	}
}

// isoWeekStart returns the Monday that begins ISO week isoWeek of
// isoYear.
func isoWeekStart(isoYear, isoWeek int) time.Time {
	jan4 := time.Date(isoYear, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := int(jan4.Weekday())
	if offset == 0 {
		offset = 7
	}
	week1Monday := jan4.AddDate(0, 0, -(offset - 1))
	return week1Monday.AddDate(0, 0, (isoWeek-1)*7)
}

// HandleReoptimize runs the background half of a C10 adaptation: load the
// schedule, re-solve the remaining horizon, and persist the result.
func (h *Handlers) HandleReoptimize(ctx context.Context, t *asynq.Task) error {
	var payload ReoptimizePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal reoptimize payload (%v): %w", err, asynq.SkipRetry)
	}

	s, err := h.Schedules.GetByID(ctx, payload.ScheduleID)
	if err != nil {
		return fmt.Errorf("load schedule: %w", err)
	}

	teams, err := h.Teams.List(ctx)
	if err != nil {
		return fmt.Errorf("list teams: %w", err)
	}

	gateZone := make(map[string]string)
	for zoneID, z := range h.Net.Zones {
		for _, g := range z.DeliveryGates {
			gateZone[g] = zoneID
		}
	}

	remaining := remainingDemandFromSchedule(s, payload.FromDate)
	if err := h.Adapter.ApplyReoptimize(s, payload.FromDate, remaining, teams, gateZone, h.Constraints); err != nil {
		return fmt.Errorf("reoptimize: %w", err)
	}

	if err := h.Schedules.ReplaceOperations(ctx, s); err != nil {
		return fmt.Errorf("persist reoptimized schedule: %w", err)
	}

	if err := h.Adaptations.Record(ctx, s.ID, payload.EventKind, adapter.StrategyNone, 0, nil); err != nil {
		logger.Warn("failed to record reoptimize adaptation", "schedule_id", s.ID, "error", err)
	}
	if err := h.LiveState.PushAdaptation(ctx, s.ID, livestate.AdaptationEntry{
		EventKind: payload.EventKind, Strategy: string(adapter.StrategyNone), OccurredAt: payload.FromDate,
	}); err != nil {
		logger.Warn("failed to push adaptation live state", "schedule_id", s.ID, "error", err)
	}

	metrics.Get().RecordAdaptationEvent(payload.EventKind, string(adapter.StrategyNone))
	if err := audit.Log(ctx, audit.NewEntry().
		Service("irrigation-control").
		Method("HandleReoptimize").
		Action(audit.ActionReoptimize).
		Outcome(audit.OutcomeSuccess).
		Resource("schedule", s.ID).
		Meta("event_kind", payload.EventKind).
		Build()); err != nil {
		logger.Warn("failed to write reoptimize audit entry", "schedule_id", s.ID, "error", err)
	}

	logger.Info("reoptimize complete", "schedule_id", s.ID, "event_kind", payload.EventKind)
	return nil
}

// remainingDemandFromSchedule reconstructs per-gate demand aggregates from
// the not-yet-fixed portion of a schedule being reoptimized, so the
// re-solve targets the same water volumes the original build did without
// a fresh round trip to agronomy.
func remainingDemandFromSchedule(s *sched.Schedule, fromDate time.Time) []demand.GateAggregate {
	byGate := make(map[string]*demand.GateAggregate)
	for _, op := range s.Operations {
		if op.Status == sched.OpCompleted || op.Status == sched.OpInProgress || op.OperationDate.Before(fromDate) {
			continue
		}
		durationS := op.PlannedEnd.Sub(op.PlannedStart).Seconds()
		volumeM3 := op.ExpectedFlowAfterM3S * durationS

		agg, ok := byGate[op.GateID]
		if !ok {
			agg = &demand.GateAggregate{DeliveryGate: op.GateID, WindowStart: op.PlannedStart, WindowEnd: op.PlannedEnd}
			byGate[op.GateID] = agg
		}
		agg.TotalM3 += volumeM3
		if op.PlannedStart.Before(agg.WindowStart) {
			agg.WindowStart = op.PlannedStart
		}
		if op.PlannedEnd.After(agg.WindowEnd) {
			agg.WindowEnd = op.PlannedEnd
		}
	}

	out := make([]demand.GateAggregate, 0, len(byGate))
	for _, agg := range byGate {
		out = append(out, *agg)
	}
	return out
}

// HandleDailyAccumulate evaluates one zone's end-of-day weather rule
// table and folds the result into that ISO week's running C6 summary.
// The weather collaborator client this module wires (pkg/client) only
// exposes a weekly rainfall/ET figure rather than spec.md §6.2's
// per-day `get_zone_weather`; until a daily endpoint is wired, the
// weekly figure stands in as that day's Observation, which is exact
// for a week evaluated after a single accumulation and a safe
// over-approximation for any day evaluated more than once.
func (h *Handlers) HandleDailyAccumulate(ctx context.Context, t *asynq.Task) error {
	var payload DailyAccumulatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal daily accumulate payload (%v): %w", err, asynq.SkipRetry)
	}

	week := sched.Week{ISOYear: payload.ISOYear, ISOWeek: payload.ISOWeek}
	wk, err := h.Weather.GetWeeklyWeather(ctx, payload.Zone, week.String())
	if err != nil {
		return fmt.Errorf("fetch weather: %w", err)
	}

	obs := weather.Observation{RainfallMM: wk.RainfallMM, ETMM: wk.ReferenceETMM}
	today := time.Now().Truncate(24 * time.Hour)
	adj := weather.Evaluate(payload.Zone, obs, weather.DefaultRules())
	if err := h.WeatherRepo.SaveDaily(ctx, today, adj); err != nil {
		return fmt.Errorf("save daily adjustment: %w", err)
	}

	day := weather.AccumulateWeek(payload.Zone, map[time.Time]weather.DailyAdjustment{today: adj})
	if prior, err := h.WeatherRepo.GetWeeklySummary(ctx, payload.Zone, payload.ISOYear, payload.ISOWeek); err == nil {
		day.DemandModifier *= prior.DemandModifier
		day.ETModifier *= prior.ETModifier
		if prior.ApplicationTimeModifier > day.ApplicationTimeModifier {
			day.ApplicationTimeModifier = prior.ApplicationTimeModifier
		}
		day.BlackoutDates = append(day.BlackoutDates, prior.BlackoutDates...)
	}

	if err := h.WeatherRepo.SaveWeeklySummary(ctx, payload.ISOYear, payload.ISOWeek, day); err != nil {
		return fmt.Errorf("save weekly summary: %w", err)
	}

	logger.Info("daily accumulate complete", "zone", payload.Zone, "week", week.String())
	return nil
}

// HandleInstructionBuild regenerates manual-operation instructions for a
// schedule's operational day, the background counterpart to
// gate.Registry.GenerateManualInstructions.
func (h *Handlers) HandleInstructionBuild(ctx context.Context, t *asynq.Task) error {
	var payload InstructionBuildPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal instruction build payload (%v): %w", err, asynq.SkipRetry)
	}

	s, err := h.Schedules.GetByID(ctx, payload.ScheduleID)
	if err != nil {
		return fmt.Errorf("load schedule: %w", err)
	}

	targetOpening := make(map[string]float64)
	targetFlow := make(map[string]float64)
	opForGate := make(map[string]*sched.Operation)
	for _, op := range s.Operations {
		if !sameDay(op.OperationDate, payload.Day) {
			continue
		}
		targetOpening[op.GateID] = op.TargetOpeningPercent
		targetFlow[op.GateID] = op.ExpectedFlowAfterM3S
		opForGate[op.GateID] = op
	}

	instructions := h.Gates.GenerateManualInstructions(targetOpening, targetFlow)
	for seq, instr := range instructions {
		op, ok := opForGate[instr.GateID]
		if !ok {
			continue
		}
		id := uuid.NewString()
		if err := h.Instructions.Save(ctx, id, op.ID, op.TeamID, payload.Day, seq, instr); err != nil {
			logger.Warn("failed to persist field instruction", "gate_id", instr.GateID, "error", err)
		}
	}

	pushed := h.pushAutomatedSetpoints(ctx, targetOpening)
	logger.Info("instruction build complete", "schedule_id", s.ID, "day", payload.Day, "instructions", len(instructions), "setpoints_pushed", pushed)
	return nil
}

// pushAutomatedSetpoints sends each AUTOMATED-mode gate's target opening to
// SCADA, the command-push half of C9 complementing scadastream's
// telemetry-pull half. Manual-mode gates are skipped; their targets are
// handled by the field instructions generated above instead.
func (h *Handlers) pushAutomatedSetpoints(ctx context.Context, targetOpeningPercent map[string]float64) int {
	if h.Scada == nil {
		return 0
	}
	pushed := 0
	for gateID, percent := range targetOpeningPercent {
		state, err := h.Gates.GetState(gateID)
		if err != nil || state.Mode != gate.ModeAutomated {
			continue
		}
		g, ok := h.Net.Gates[gateID]
		if !ok {
			continue
		}
		cmd := client.SetpointCommand{GateID: gateID, OpeningM: g.MaxOpeningM * percent / 100, IssuedBy: "scheduler"}
		if err := h.Scada.SendSetpoint(ctx, cmd); err != nil {
			logger.Warn("failed to push scada setpoint", "gate_id", gateID, "error", err)
			continue
		}
		pushed++
	}
	return pushed
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
