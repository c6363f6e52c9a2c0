// Package server hosts the control plane's process bootstrap: it owns the
// background workers (weekly scheduler builds, real-time re-plan loops),
// the process's own health/metrics HTTP surface, and graceful shutdown.
// The control plane has no public RPC surface of its own — it calls out
// to external collaborators over HTTP (see pkg/client) and is driven by
// its own worker loops and the dual-mode gate controller, not by inbound
// requests.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/munbon/irrigation-control/pkg/audit"
	"github.com/munbon/irrigation-control/pkg/config"
	"github.com/munbon/irrigation-control/pkg/logger"
	"github.com/munbon/irrigation-control/pkg/metrics"
	"github.com/munbon/irrigation-control/pkg/ratelimit"
	"github.com/munbon/irrigation-control/pkg/telemetry"
)

// Worker is a long-running background loop owned by the process. It must
// return promptly once ctx is cancelled.
type Worker interface {
	Name() string
	Run(ctx context.Context) error
}

// Server is the control plane's process bootstrap. It owns no inbound RPC
// surface; it supervises Workers and exposes health/metrics over HTTP.
type Server struct {
	config      *config.Config
	telemetry   *telemetry.Provider
	rateLimiter ratelimit.Limiter
	auditLogger audit.Logger
	httpServer  *http.Server

	workers []Worker
	healthy atomic.Bool

	mu       sync.Mutex
	workerWG sync.WaitGroup
}

// Options carries overrides for the dependencies the server would
// otherwise construct itself from config.
type Options struct {
	RateLimiter ratelimit.Limiter
	AuditLogger audit.Logger
}

// New constructs a Server from config, wiring a rate limiter and audit
// logger unless overridden.
func New(cfg *config.Config, opts *Options) *Server {
	if opts == nil {
		opts = &Options{}
	}

	rateLimiter := opts.RateLimiter
	if rateLimiter == nil && cfg.RateLimit.Enabled {
		var err error
		rateLimiter, err = ratelimit.New(&ratelimit.Config{
			Requests:        cfg.RateLimit.Requests,
			Window:          cfg.RateLimit.Window,
			Strategy:        cfg.RateLimit.Strategy,
			Backend:         cfg.RateLimit.Backend,
			BurstSize:       cfg.RateLimit.BurstSize,
			CleanupInterval: cfg.RateLimit.CleanupInterval,
			RedisAddr:       cfg.RateLimit.RedisAddr,
		})
		if err != nil {
			logger.Log.Warn("failed to create rate limiter, continuing without it", "error", err)
			rateLimiter = nil
		} else {
			logger.Log.Info("rate limiter initialized",
				"requests", cfg.RateLimit.Requests,
				"window", cfg.RateLimit.Window,
				"strategy", cfg.RateLimit.Strategy,
			)
		}
	}

	auditLogger := opts.AuditLogger
	if auditLogger == nil && cfg.Audit.Enabled {
		var err error
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
			logger.Log.Warn("failed to create audit logger, continuing without it", "error", err)
			auditLogger = nil
		} else {
			audit.SetGlobal(auditLogger)
			logger.Log.Info("audit logger initialized", "backend", cfg.Audit.Backend)
		}
	}

	s := &Server{
		config:      cfg,
		rateLimiter: rateLimiter,
		auditLogger: auditLogger,
	}
	s.healthy.Store(false)
	return s
}

// RateLimiter returns the configured outbound rate limiter, if any.
func (s *Server) RateLimiter() ratelimit.Limiter { return s.rateLimiter }

// AuditLogger returns the configured audit sink, if any.
func (s *Server) AuditLogger() audit.Logger { return s.auditLogger }

// Register adds a background worker to be started by Run.
func (s *Server) Register(w Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers = append(s.workers, w)
}

// Run starts telemetry, the HTTP health/metrics surface, and every
// registered worker, then blocks until a shutdown signal or a worker
// failure occurs.
func (s *Server) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if s.config.Tracing.Enabled {
		tp, err := telemetry.Init(ctx, telemetry.Config{
			Enabled:     s.config.Tracing.Enabled,
			Endpoint:    s.config.Tracing.Endpoint,
			ServiceName: s.config.Tracing.ServiceName,
			Version:     s.config.App.Version,
			Environment: s.config.App.Environment,
			SampleRate:  s.config.Tracing.SampleRate,
		})
		if err != nil {
			logger.Log.Warn("failed to init telemetry", "error", err)
		} else {
			s.telemetry = tp
			logger.Log.Info("telemetry initialized",
				"endpoint", s.config.Tracing.Endpoint,
				"sample_rate", s.config.Tracing.SampleRate,
			)
		}
	}

	if s.config.Metrics.Enabled {
		go func() {
			logger.Log.Info("starting metrics server",
				"port", s.config.Metrics.Port,
				"path", s.config.Metrics.Path,
			)
			if err := metrics.StartMetricsServer(s.config.Metrics.Port); err != nil {
				logger.Log.Error("metrics server failed", "error", err)
			}
		}()
	}

	if m := metrics.Get(); m != nil {
		m.SetServiceInfo(s.config.App.Version, s.config.App.Environment)
	}

	lc := net.ListenConfig{}
	lis, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", s.config.HTTP.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.httpServer = &http.Server{
		Handler:      s.healthMux(),
		ReadTimeout:  s.config.HTTP.ReadTimeout,
		WriteTimeout: s.config.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1+len(s.workers))

	go func() {
		logger.Log.Info("starting health/admin server",
			"service", s.config.App.Name,
			"port", s.config.HTTP.Port,
			"environment", s.config.App.Environment,
			"version", s.config.App.Version,
		)
		if err := s.httpServer.Serve(lis); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("health server: %w", err)
		}
	}()

	for _, w := range s.workers {
		w := w
		s.workerWG.Add(1)
		go func() {
			defer s.workerWG.Done()
			logger.Log.Info("starting worker", "worker", w.Name())
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("worker %s: %w", w.Name(), err)
			}
		}()
	}

	s.healthy.Store(true)

	if s.auditLogger != nil {
		entry := audit.NewEntry().
			Service(s.config.App.Name).
			Method("server.Start").
			Action(audit.ActionCreate).
			Outcome(audit.OutcomeSuccess).
			Meta("port", s.config.HTTP.Port).
			Meta("version", s.config.App.Version).
			Meta("environment", s.config.App.Environment).
			Build()
		if err := s.auditLogger.Log(ctx, entry); err != nil {
			logger.Log.Warn("failed to log audit entry", "error", err)
		}
	}

	select {
	case err := <-errCh:
		logger.Log.Error("shutting down due to failure", "error", err)
		s.shutdown()
		return err
	case <-ctx.Done():
		logger.Log.Info("received shutdown signal")
		s.shutdown()
		return nil
	}
}

// healthMux builds the process's own liveness/readiness HTTP surface.
func (s *Server) healthMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !s.healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "not ready"})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})
	return mux
}

func (s *Server) shutdown() {
	s.healthy.Store(false)

	if s.auditLogger != nil {
		entry := audit.NewEntry().
			Service(s.config.App.Name).
			Method("server.Shutdown").
			Action(audit.ActionUpdate).
			Outcome(audit.OutcomeSuccess).
			Meta("reason", "signal").
			Build()
		if err := s.auditLogger.Log(context.Background(), entry); err != nil {
			logger.Log.Warn("failed to log audit entry", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.HTTP.ShutdownTimeout)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			logger.Log.Warn("failed to shut down health server cleanly", "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Log.Info("all workers stopped")
	case <-ctx.Done():
		logger.Log.Warn("timed out waiting for workers to stop")
	}

	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(context.Background()); err != nil {
			logger.Log.Warn("failed to shutdown telemetry", "error", err)
		}
	}

	if s.rateLimiter != nil {
		if err := s.rateLimiter.Close(); err != nil {
			logger.Log.Warn("failed to close rate limiter", "error", err)
		}
	}

	if s.auditLogger != nil {
		if err := s.auditLogger.Close(); err != nil {
			logger.Log.Warn("failed to close audit logger", "error", err)
		}
	}

	logger.Log.Info("server stopped gracefully")
}

// Stop closes the health server immediately, without waiting for the
// shutdown timeout; it does not stop the workers. Intended for tests.
func (s *Server) Stop() {
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
}
