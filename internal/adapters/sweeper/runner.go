// Package sweeper provides adapters for running the reconciliation sweeper.
package sweeper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roadmetrics/countline/config"
	"github.com/roadmetrics/countline/internal/data"
	"github.com/roadmetrics/countline/internal/domain/progress"
	"github.com/roadmetrics/countline/internal/observability/statsd"
	"github.com/roadmetrics/countline/internal/service"
)

// Runner provides a simple adapter to run the sweeper loop.
// It constructs the sweeper service and runs both sweep loops.
type Runner struct {
	sweeper *service.SweeperService
	logger  *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB       *sql.DB
	Registry *data.ProgressRegistry
	Store    *data.ObjectStore
	Config   config.SweeperConfig
	Pipeline config.PipelineConfig
	Logger   *slog.Logger

	// Optional dependency injection for testing/decoupling
	Repo    service.SweeperRepository
	Markers service.MarkerLister
	Objects service.ObjectStore
	Events  progress.Publisher
	Metrics statsd.Sink
}

// NewRunner creates a new sweeper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	swp, err := wireSweeperService(opts)
	if err != nil {
		return nil, fmt.Errorf("wire sweeper service: %w", err)
	}

	return &Runner{
		sweeper: swp,
		logger:  opts.Logger,
	}, nil
}

func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.Repo == nil && opts.DB == nil {
		return errors.New("database connection is required")
	}
	if opts.Markers == nil && opts.Registry == nil {
		return errors.New("progress registry is required")
	}
	if opts.Objects == nil && opts.Store == nil {
		return errors.New("object store is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

func wireSweeperService(opts RunnerOptions) (*service.SweeperService, error) {
	repo := opts.Repo
	if repo == nil {
		repo = data.NewJobRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
	}

	markers := opts.Markers
	if markers == nil {
		markers = opts.Registry
	}

	objects := opts.Objects
	if objects == nil {
		objects = opts.Store
	}

	events := opts.Events
	if events == nil && opts.Registry != nil {
		events = opts.Registry
	}

	return service.NewSweeperService(service.SweeperServiceOptions{
		Repo:    repo,
		Markers: markers,
		Store:   objects,
		Config:  opts.Config,
		Scratch: opts.Pipeline,
		Events:  events,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
}

// Run starts both sweep loops and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting sweeper runner")
	return r.sweeper.Run(ctx)
}
