package main

import (
	"context"
	"fmt"

	"github.com/munbon/irrigation-control/internal/adapter"
	"github.com/munbon/irrigation-control/internal/gate"
	"github.com/munbon/irrigation-control/internal/gate/scadastream"
	"github.com/munbon/irrigation-control/internal/jobs"
	"github.com/munbon/irrigation-control/internal/network"
	"github.com/munbon/irrigation-control/internal/store/livestate"
	"github.com/munbon/irrigation-control/internal/store/postgres"
	"github.com/munbon/irrigation-control/internal/store/timeseries"
	"github.com/munbon/irrigation-control/pkg/audit"
	"github.com/munbon/irrigation-control/pkg/cache"
	"github.com/munbon/irrigation-control/pkg/client"
	"github.com/munbon/irrigation-control/pkg/config"
	"github.com/munbon/irrigation-control/pkg/database"
	"github.com/munbon/irrigation-control/pkg/logger"
)

// app holds every long-lived dependency the composition root wires
// together, assembled once by newApp and reused by whichever subcommand
// is running.
type app struct {
	cfg *config.Config
	db  *database.PostgresDB
	net *network.Network

	gates     *gate.Registry
	adapter   *adapter.Adapter
	liveState *livestate.Store

	schedules    *postgres.ScheduleRepository
	teams        *postgres.TeamRepository
	weatherRepo  *postgres.WeatherAdjustmentRepository
	adaptations  *postgres.AdaptationRepository
	instructions *postgres.FieldInstructionRepository
	gateOps      *postgres.GateOperationRepository
	timeSeries   timeseries.Sink

	agronomy *client.AgronomyClient
	gis      *client.GISClient
	scada    *client.SCADAClient
	weather  *client.WeatherClient

	jobScheduler *jobs.Scheduler
	handlers     *jobs.Handlers
	streamConf   scadastream.Config

	auditLogger audit.Logger
}

// newApp loads configuration, connects to Postgres, runs migrations,
// loads the canal network topology, and wires every domain package to its
// store and collaborator dependencies.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadWithServiceDefaults("irrigation-control", 8080)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger.InitWithConfig(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	net, err := network.LoadFromFile(cfg.Network.TopologyPath)
	if err != nil {
		return nil, fmt.Errorf("load network topology: %w", err)
	}

	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(ctx, db.Pool(), &cfg.Database, postgres.Migrations, postgres.MigrationsDir); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	c, err := cache.New(cache.FromConfig(&cfg.Cache))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("build cache: %w", err)
	}

	gates := gate.NewRegistry(net, cfg.Gate.AutomatedPrefixes, nil, cfg.Gate.ManualUpdateInterval, cfg.Gate.StaleWarningMultiplier)
	gateOps := postgres.NewGateOperationRepository(db)
	gates.SetAudit(gateOps)

	scada := client.NewSCADAClient(endpointConfig(cfg.Collaborators.SCADA))

	var auditLogger audit.Logger
	if cfg.Audit.Enabled {
		auditLogger, err = audit.New(&audit.Config{
			Enabled:         cfg.Audit.Enabled,
			Backend:         cfg.Audit.Backend,
			BufferSize:      cfg.Audit.BufferSize,
			FlushPeriod:     cfg.Audit.FlushPeriod,
			ExcludeMethods:  cfg.Audit.ExcludeMethods,
			IncludeRequest:  cfg.Audit.IncludeRequest,
			IncludeResponse: cfg.Audit.IncludeResponse,
		})
		if err != nil {
			logger.Warn("failed to create audit logger, continuing without it", "error", err)
			auditLogger = nil
		} else {
			audit.SetGlobal(auditLogger)
		}
	}

	a := &app{
		cfg:          cfg,
		db:           db,
		net:          net,
		gates:        gates,
		adapter:      adapter.NewAdapter(net, gates),
		liveState:    livestate.New(c),
		schedules:    postgres.NewScheduleRepository(db),
		teams:        postgres.NewTeamRepository(db),
		weatherRepo:  postgres.NewWeatherAdjustmentRepository(db),
		adaptations:  postgres.NewAdaptationRepository(db),
		instructions: postgres.NewFieldInstructionRepository(db),
		gateOps:      gateOps,
		timeSeries:   postgres.NewTimeSeriesSink(db),
		agronomy:     client.NewAgronomyClient(endpointConfig(cfg.Collaborators.Agronomy)),
		gis:          client.NewGISClient(endpointConfig(cfg.Collaborators.GIS)),
		scada:        scada,
		weather:      client.NewWeatherClient(endpointConfig(cfg.Collaborators.Weather)),
		jobScheduler: jobs.NewScheduler(cfg.Jobs.RedisAddr, cfg.Jobs.RedisPassword, cfg.Jobs.RedisDB),
		streamConf:   scadastream.DefaultConfig(cfg.Collaborators.SCADAStreamURL),
		auditLogger:  auditLogger,
	}

	a.handlers = &jobs.Handlers{
		Net:          net,
		Gates:        gates,
		Adapter:      a.adapter,
		Schedules:    a.schedules,
		Teams:        a.teams,
		WeatherRepo:  a.weatherRepo,
		Adaptations:  a.adaptations,
		Instructions: a.instructions,
		LiveState:    a.liveState,
		Agronomy:     a.agronomy,
		Weather:      a.weather,
		Scada:        a.scada,
	}

	return a, nil
}

// close releases the composition root's long-lived connections.
func (a *app) close() {
	if a.jobScheduler != nil {
		_ = a.jobScheduler.Close()
	}
	if a.auditLogger != nil {
		_ = a.auditLogger.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// zoneIDs returns every zone this network defines, the set the daily
// weather accumulator runs across.
func (a *app) zoneIDs() []string {
	zones := make([]string, 0, len(a.net.Zones))
	for id := range a.net.Zones {
		zones = append(zones, id)
	}
	return zones
}

func endpointConfig(e config.ServiceEndpoint) client.Config {
	return client.Config{
		BaseURL:      e.BaseURL,
		Timeout:      e.Timeout,
		MaxRetries:   e.MaxRetries,
		RetryBackoff: e.RetryBackoff,
	}
}
