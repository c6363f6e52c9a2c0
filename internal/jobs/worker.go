package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/munbon/irrigation-control/pkg/logger"
)

// TaskServer runs the asynq consumer loop against a set of registered
// Handlers, the pkg/server.Worker that actually executes weekly builds,
// re-plan events, daily accumulation, and instruction generation as they
// are enqueued by Scheduler or by another process sharing the same Redis
// broker.
type TaskServer struct {
	srv *asynq.Server
	mux *asynq.ServeMux
}

// NewTaskServer builds a TaskServer consuming the "critical" and "default"
// queues handlers.RegisterHandlers wires its task types onto, with
// "critical" serviced at twice the concurrency of "default".
func NewTaskServer(redisAddr, redisPassword string, redisDB, concurrency int, handlers *Handlers) *TaskServer {
	if concurrency <= 0 {
		concurrency = 10
	}
	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr, Password: redisPassword, DB: redisDB},
		asynq.Config{
			Concurrency: concurrency,
			Queues:      map[string]int{"critical": 2, "default": 1},
		},
	)
	mux := asynq.NewServeMux()
	handlers.RegisterHandlers(mux)
	return &TaskServer{srv: srv, mux: mux}
}

// Name identifies this worker in server logs and the health surface.
func (t *TaskServer) Name() string { return "job-task-server" }

// Run starts consuming tasks until ctx is cancelled.
func (t *TaskServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- t.srv.Run(t.mux) }()

	select {
	case <-ctx.Done():
		t.srv.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("task server: %w", err)
	}
}

// WeeklyBuildTrigger enqueues a weekly build task once per interval, the
// calendar-driven counterpart to an operator-triggered schedule build.
type WeeklyBuildTrigger struct {
	scheduler *Scheduler
	interval  time.Duration
}

// NewWeeklyBuildTrigger builds a trigger that enqueues a build for the
// current ISO week every interval.
func NewWeeklyBuildTrigger(scheduler *Scheduler, interval time.Duration) *WeeklyBuildTrigger {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &WeeklyBuildTrigger{scheduler: scheduler, interval: interval}
}

// Name identifies this worker in server logs and the health surface.
func (w *WeeklyBuildTrigger) Name() string { return "weekly-build-trigger" }

// Run enqueues a weekly build for the current ISO week on every tick until
// ctx is cancelled.
func (w *WeeklyBuildTrigger) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			isoYear, isoWeek := time.Now().ISOWeek()
			if _, err := w.scheduler.EnqueueWeeklyBuild(ctx, isoYear, isoWeek); err != nil {
				logger.Warn("failed to enqueue weekly build", "error", err)
			}
		}
	}
}

// DailyAccumulateTrigger enqueues the end-of-day weather rollup for a fixed
// set of zones once per interval.
type DailyAccumulateTrigger struct {
	scheduler *Scheduler
	zones     []string
	interval  time.Duration
}

// NewDailyAccumulateTrigger builds a trigger that enqueues a daily
// accumulate task for every zone in zones on each tick.
func NewDailyAccumulateTrigger(scheduler *Scheduler, zones []string, interval time.Duration) *DailyAccumulateTrigger {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &DailyAccumulateTrigger{scheduler: scheduler, zones: zones, interval: interval}
}

// Name identifies this worker in server logs and the health surface.
func (d *DailyAccumulateTrigger) Name() string { return "daily-accumulate-trigger" }

// Run enqueues the daily accumulate task for every configured zone on each
// tick until ctx is cancelled.
func (d *DailyAccumulateTrigger) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			isoYear, isoWeek := time.Now().ISOWeek()
			for _, zone := range d.zones {
				if _, err := d.scheduler.EnqueueDailyAccumulate(ctx, zone, isoYear, isoWeek); err != nil {
					logger.Warn("failed to enqueue daily accumulate", "zone", zone, "error", err)
				}
			}
		}
	}
}
