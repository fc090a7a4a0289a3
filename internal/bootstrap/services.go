package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roadmetrics/countline/config"
	sweeperadapter "github.com/roadmetrics/countline/internal/adapters/sweeper"
	"github.com/roadmetrics/countline/internal/data"
	"github.com/roadmetrics/countline/internal/domain/progress"
	"github.com/roadmetrics/countline/internal/engine"
	httpx "github.com/roadmetrics/countline/internal/http"
	"github.com/roadmetrics/countline/internal/observability/statsd"
	"github.com/roadmetrics/countline/internal/service"
)

const shutdownWaitTimeout = 30 * time.Second

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Intake   *service.IntakeService
	Pipeline *service.PipelineService
	Sweeper  *sweeperadapter.Runner
	Broker   *progress.Broker
	Jobs     *data.JobRepo
	Registry *data.ProgressRegistry
	Store    *data.ObjectStore
	Metrics  *statsd.Client
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Store       *data.ObjectStore
	Logger      *slog.Logger
}

// NewServices wires repositories, the engine adapter and the domain services.
// The engine binary is resolved exactly once here; every invocation uses the
// same resolution.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	metricsSink := buildMetricsSink(logger, cfg.Observability)

	registry := data.NewProgressRegistry(deps.RedisClient, cfg.Pipeline.ProgressTTL)
	broker := progress.NewBroker(registry)
	jobRepo := data.NewJobRepo(deps.DB, data.RepoConfig{Logger: logger})

	binary := engine.Resolve(cfg.Engine)
	if binary.Found {
		logger.Info("detection engine resolved", "path", binary.Path)
	} else {
		logger.Warn("detection engine not found, using fallback path", "path", binary.Path)
	}
	engineAdapter := engine.NewAdapter(engine.AdapterOptions{
		Binary: binary,
		Config: cfg.Engine,
		Logger: logger,
	})

	pipeline, err := service.NewPipelineService(service.PipelineServiceOptions{
		Engine:   engineAdapter,
		Jobs:     jobRepo,
		Store:    deps.Store,
		Broker:   broker,
		Registry: registry,
		Config:   cfg.Pipeline,
		Logger:   logger,
		Metrics:  metricsSink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire pipeline service: %w", err)
	}

	intake, err := service.NewIntakeService(service.IntakeServiceOptions{
		Store:    deps.Store,
		Pipeline: pipeline,
		Broker:   broker,
		Registry: registry,
		Config:   cfg.Pipeline,
		Logger:   logger,
		Metrics:  metricsSink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire intake service: %w", err)
	}

	var sweeper *sweeperadapter.Runner
	if cfg.IsSweeperEnabled() {
		sweeper, err = sweeperadapter.NewRunner(sweeperadapter.RunnerOptions{
			DB:       deps.DB,
			Registry: registry,
			Store:    deps.Store,
			Config:   cfg.Sweeper,
			Pipeline: cfg.Pipeline,
			Logger:   logger,
			Metrics:  metricsSink,
		})
		if err != nil {
			return ServiceContainer{}, fmt.Errorf("wire sweeper runner: %w", err)
		}
	}

	return ServiceContainer{
		Intake:   intake,
		Pipeline: pipeline,
		Sweeper:  sweeper,
		Broker:   broker,
		Jobs:     jobRepo,
		Registry: registry,
		Store:    deps.Store,
		Metrics:  metricsSink,
	}, nil
}

func buildMetricsSink(logger *slog.Logger, cfg config.ObservabilityConfig) *statsd.Client {
	if !cfg.Metrics.IsEnabled() {
		return nil
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.Metrics.StatsdAddress,
		Prefix:  "countline",
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		return nil
	}
	return client
}

// ServiceOrchestrationConfig groups runtime dependencies for service
// orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// RunServicesWithShutdown starts all enabled services and manages their
// lifecycle. This function blocks until a shutdown signal is received or a
// service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("service orchestration config is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 2)

	var httpServer *http.Server
	if cfg.Config.IsHTTPServerEnabled() {
		httpServer = startHTTPServer(cfg, logger)
	}

	var sweeperDone <-chan struct{}
	if cfg.Config.IsSweeperEnabled() && cfg.Services.Sweeper != nil {
		done := make(chan struct{})
		sweeperDone = done
		go func() {
			defer close(done)
			if err := cfg.Services.Sweeper.Run(ctx); err != nil {
				select {
				case errCh <- fmt.Errorf("sweeper failed: %w", err):
				default:
					logger.Warn("dropping sweeper error", "error", err)
				}
			}
		}()
		logger.InfoContext(ctx, "background service started", "service", "sweeper")
	}

	return waitForShutdown(shutdownConfig{
		ctx:         ctx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  httpServer,
		httpConfig:  cfg.Config.HTTP,
		services:    cfg.Services,
		logger:      logger,
		sweeperDone: sweeperDone,
	})
}

func startHTTPServer(cfg *ServiceOrchestrationConfig, logger *slog.Logger) *http.Server {
	handler := httpx.NewRouter(httpx.RouterServices{
		Intake:  cfg.Services.Intake,
		Jobs:    cfg.Services.Jobs,
		Markers: cfg.Services.Registry,
		Broker:  cfg.Services.Broker,
		Logger:  logger,
	})

	server := &http.Server{
		Addr:              cfg.Config.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Config.HTTP.ReadHeaderTimeout,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
		}
	}()

	return server
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	httpConfig  config.HTTPConfig
	services    ServiceContainer
	logger      *slog.Logger
	sweeperDone <-chan struct{}
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services. The pipeline drains
// last so in-flight jobs can still reach a terminal record.
func gracefulStop(cfg shutdownConfig) error {
	if cfg.httpServer != nil {
		cfg.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.httpConfig.ShutdownTimeout)
		defer cancel()

		if err := cfg.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown HTTP server: %w", err)
		}
		cfg.logger.Info("HTTP server stopped")
	}

	if cfg.sweeperDone != nil {
		select {
		case <-cfg.sweeperDone:
			cfg.logger.Info("sweeper stopped")
		case <-time.After(shutdownWaitTimeout):
			cfg.logger.Warn("timeout waiting for sweeper to stop")
		}
	}

	if cfg.services.Pipeline != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
		defer cancel()
		if err := cfg.services.Pipeline.Shutdown(drainCtx); err != nil {
			cfg.logger.Warn("timeout waiting for in-flight jobs", "error", err)
		}
	}

	if cfg.services.Broker != nil {
		cfg.services.Broker.StopAll()
	}
	if cfg.services.Metrics != nil {
		if err := cfg.services.Metrics.Close(); err != nil {
			cfg.logger.Warn("close metrics sink failed", "error", err)
		}
	}

	return nil
}
