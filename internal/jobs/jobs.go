// Package jobs dispatches the core's background work — weekly schedule
// builds, re-plan events, and the daily weather accumulator — through
// asynq task queues instead of bare goroutines or a cron library, giving
// each a durable, retryable home. Grounded on the asynq
// scheduler/handler split used elsewhere in the example pack for the
// same class of problem (long-running, retryable, payload-carrying
// background work).
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task type names, the asynq queue's routing key.
const (
	TypeWeeklyBuild      = "schedule:weekly_build"
	TypeReoptimize       = "schedule:reoptimize"
	TypeDailyAccumulate  = "weather:daily_accumulate"
	TypeInstructionBuild = "gate:instruction_build"
)

// WeeklyBuildPayload triggers a full weekly plan build for one ISO week.
type WeeklyBuildPayload struct {
	ISOYear int `json:"iso_year"`
	ISOWeek int `json:"iso_week"`
}

// ReoptimizePayload triggers a partial re-solve of a schedule's remaining
// horizon, the background counterpart to internal/adapter.ApplyReoptimize.
type ReoptimizePayload struct {
	ScheduleID string    `json:"schedule_id"`
	FromDate   time.Time `json:"from_date"`
	EventKind  string    `json:"event_kind"`
}

// DailyAccumulatePayload triggers the daily weather-adjustment rollup for
// one zone into that week's feed-forward summary.
type DailyAccumulatePayload struct {
	Zone    string `json:"zone"`
	ISOYear int    `json:"iso_year"`
	ISOWeek int    `json:"iso_week"`
}

// InstructionBuildPayload triggers manual-operation instruction
// generation for a schedule's active day.
type InstructionBuildPayload struct {
	ScheduleID string    `json:"schedule_id"`
	Day        time.Time `json:"day"`
}

// Scheduler enqueues background tasks onto the asynq work queue.
type Scheduler struct {
	client *asynq.Client
}

// NewScheduler builds a Scheduler against a Redis-backed asynq broker.
func NewScheduler(redisAddr, redisPassword string, redisDB int) *Scheduler {
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr, Password: redisPassword, DB: redisDB})
	return &Scheduler{client: client}
}

// Close releases the underlying Redis connection.
func (s *Scheduler) Close() error {
	return s.client.Close()
}

// EnqueueWeeklyBuild schedules a weekly plan build on the critical queue,
// retried up to twice, each attempt limited to 60 seconds.
func (s *Scheduler) EnqueueWeeklyBuild(ctx context.Context, isoYear, isoWeek int) (*asynq.TaskInfo, error) {
	payload, err := json.Marshal(WeeklyBuildPayload{ISOYear: isoYear, ISOWeek: isoWeek})
	if err != nil {
		return nil, fmt.Errorf("marshal weekly build payload: %w", err)
	}
	return s.client.EnqueueContext(ctx, asynq.NewTask(TypeWeeklyBuild, payload),
		asynq.MaxRetry(2), asynq.Timeout(60*time.Second), asynq.Queue("critical"))
}

// EnqueueReoptimize schedules a re-plan event, the background path for
// every C10 event that ends in ApplyReoptimize.
func (s *Scheduler) EnqueueReoptimize(ctx context.Context, scheduleID, eventKind string, fromDate time.Time) (*asynq.TaskInfo, error) {
	payload, err := json.Marshal(ReoptimizePayload{ScheduleID: scheduleID, FromDate: fromDate, EventKind: eventKind})
	if err != nil {
		return nil, fmt.Errorf("marshal reoptimize payload: %w", err)
	}
	return s.client.EnqueueContext(ctx, asynq.NewTask(TypeReoptimize, payload),
		asynq.MaxRetry(1), asynq.Timeout(30*time.Second), asynq.Queue("critical"))
}

// EnqueueDailyAccumulate schedules the end-of-day weather rollup for a
// zone.
func (s *Scheduler) EnqueueDailyAccumulate(ctx context.Context, zone string, isoYear, isoWeek int) (*asynq.TaskInfo, error) {
	payload, err := json.Marshal(DailyAccumulatePayload{Zone: zone, ISOYear: isoYear, ISOWeek: isoWeek})
	if err != nil {
		return nil, fmt.Errorf("marshal daily accumulate payload: %w", err)
	}
	return s.client.EnqueueContext(ctx, asynq.NewTask(TypeDailyAccumulate, payload),
		asynq.MaxRetry(3), asynq.Timeout(30*time.Second), asynq.Queue("default"))
}

// EnqueueInstructionBuild schedules manual-instruction generation for a
// schedule's operational day.
func (s *Scheduler) EnqueueInstructionBuild(ctx context.Context, scheduleID string, day time.Time) (*asynq.TaskInfo, error) {
	payload, err := json.Marshal(InstructionBuildPayload{ScheduleID: scheduleID, Day: day})
	if err != nil {
		return nil, fmt.Errorf("marshal instruction build payload: %w", err)
	}
	return s.client.EnqueueContext(ctx, asynq.NewTask(TypeInstructionBuild, payload),
		asynq.MaxRetry(3), asynq.Timeout(30*time.Second), asynq.Queue("default"))
}
