package main

import (
	"github.com/spf13/cobra"

	"github.com/munbon/irrigation-control/internal/gate/scadastream"
	"github.com/munbon/irrigation-control/internal/jobs"
	"github.com/munbon/irrigation-control/pkg/logger"
	"github.com/munbon/irrigation-control/pkg/server"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the control plane's background workers and health surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			srv := server.New(a.cfg, &server.Options{AuditLogger: a.auditLogger})
			a.scada.SetRateLimiter(srv.RateLimiter())
			srv.Register(jobs.NewTaskServer(a.cfg.Jobs.RedisAddr, a.cfg.Jobs.RedisPassword, a.cfg.Jobs.RedisDB, a.cfg.Jobs.Concurrency, a.handlers))
			srv.Register(jobs.NewWeeklyBuildTrigger(a.jobScheduler, a.cfg.Jobs.WeeklyBuildPeriod))
			srv.Register(jobs.NewDailyAccumulateTrigger(a.jobScheduler, a.zoneIDs(), a.cfg.Jobs.DailyAccumPeriod))
			srv.Register(scadastream.NewConsumer(a.streamConf, a.gates, a.timeSeries))

			logger.Info("control plane starting", "zones", len(a.zoneIDs()), "gates", len(a.net.Gates))
			return srv.Run()
		},
	}
}
