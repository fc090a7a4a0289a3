package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/roadmetrics/countline/config"
	"github.com/roadmetrics/countline/internal/data"
	"github.com/roadmetrics/countline/internal/domain/model"
	"github.com/roadmetrics/countline/internal/domain/progress"
	"github.com/roadmetrics/countline/internal/engine"
	apperrors "github.com/roadmetrics/countline/internal/errors"
	"github.com/roadmetrics/countline/internal/observability/metrics"
	"github.com/roadmetrics/countline/internal/observability/statsd"
)

// EngineInvoker runs one detection pass over a staged input video.
type EngineInvoker interface {
	Invoke(ctx context.Context, req engine.InvokeRequest, onProgress engine.ProgressFunc) (*engine.InvokeResult, error)
}

// JobWriter persists terminal job records.
type JobWriter interface {
	Create(ctx context.Context, job *model.DetectionJob) error
}

// StartRequest hands a staged upload to the pipeline.
type StartRequest struct {
	TrackingID string
	Owner      string
	Input      model.MediaRef
	StartedAt  time.Time
}

// PipelineServiceOptions groups dependencies for PipelineService.
type PipelineServiceOptions struct {
	Engine   EngineInvoker     // Required: detection engine adapter
	Jobs     JobWriter         // Required: terminal job record store
	Store    ObjectStore       // Required: remote artifact storage
	Broker   *progress.Broker  // Required: progress fan-out
	Registry MarkerRegistry    // Required: in-flight marker store
	Config   config.PipelineConfig
	Logger   *slog.Logger      // Optional: structured logger
	Metrics  statsd.Sink       // Optional: metrics sink (StatsD-compatible)
	Time     data.TimeProvider // Optional: defaults to real time
}

// PipelineService drives a staged upload through the detection engine and
// writes exactly one terminal job record per tracking id. In-progress state
// lives only in progress events and markers; the database never sees a
// partially processed job.
type PipelineService struct {
	engine   EngineInvoker
	jobs     JobWriter
	store    ObjectStore
	broker   *progress.Broker
	registry MarkerRegistry
	config   config.PipelineConfig
	logger   *slog.Logger
	metrics  statsd.Sink
	time     data.TimeProvider

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPipelineService constructs a new PipelineService.
func NewPipelineService(opts PipelineServiceOptions) (*PipelineService, error) {
	if opts.Engine == nil {
		return nil, errors.New("EngineInvoker is required")
	}
	if opts.Jobs == nil {
		return nil, errors.New("JobWriter is required")
	}
	if opts.Store == nil {
		return nil, errors.New("ObjectStore is required")
	}
	if opts.Broker == nil {
		return nil, errors.New("progress Broker is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("MarkerRegistry is required")
	}

	tp := opts.Time
	if tp == nil {
		tp = &data.RealTimeProvider{}
	}

	concurrency := opts.Config.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "pipeline_service")
		logger.Debug("PipelineService initialized",
			"concurrency", concurrency,
			"scratch_root", opts.Config.ScratchRoot,
		)
	}

	return &PipelineService{
		engine:   opts.Engine,
		jobs:     opts.Jobs,
		store:    opts.Store,
		broker:   opts.Broker,
		registry: opts.Registry,
		config:   opts.Config,
		logger:   logger,
		metrics:  opts.Metrics,
		time:     tp,
		sem:      semaphore.NewWeighted(concurrency),
	}, nil
}

// Start schedules one staged upload for processing and returns immediately.
// Processing runs on its own goroutine with its own lifetime; the request
// context that delivered the upload does not bound the job.
func (s *PipelineService) Start(req StartRequest) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if s.logger != nil {
			s.logger.Warn("pipeline shutting down, dropping job", "tracking_id", req.TrackingID)
		}
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.process(context.Background(), req)
	}()
}

// Shutdown stops accepting new jobs and waits for in-flight ones to finish.
func (s *PipelineService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *PipelineService) process(ctx context.Context, req StartRequest) {
	if !s.sem.TryAcquire(1) {
		s.publish(ctx, model.ProgressEvent{
			TrackingID: req.TrackingID,
			Stage:      model.StageQueued,
			Message:    "waiting for a processing slot",
			Timestamp:  s.time.Now(),
		}, req)
		if err := s.sem.Acquire(ctx, 1); err != nil {
			s.finishFailed(ctx, req, apperrors.Internal("processing slot wait aborted", err))
			return
		}
	}
	defer s.sem.Release(1)

	start := s.time.Now()
	scratch := filepath.Join(s.config.ScratchRoot, req.TrackingID)
	if err := os.MkdirAll(scratch, 0o750); err != nil {
		s.finishFailed(ctx, req, apperrors.Internal("failed to create scratch directory", err))
		return
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "scratch cleanup failed", "tracking_id", req.TrackingID, "error", err)
		}
	}()

	s.publish(ctx, model.ProgressEvent{
		TrackingID: req.TrackingID,
		Stage:      model.StageProcessing,
		Progress:   0,
		Message:    "detection started",
		Timestamp:  s.time.Now(),
	}, req)

	result, err := s.engine.Invoke(ctx, engine.InvokeRequest{
		JobID:      req.TrackingID,
		InputURL:   req.Input.URL,
		ScratchDir: scratch,
	}, func(report engine.ProgressReport) {
		s.publish(ctx, model.ProgressEvent{
			TrackingID: req.TrackingID,
			Stage:      report.Stage,
			Progress:   report.Progress,
			Message:    report.Message,
			Timestamp:  s.time.Now(),
		}, req)
	})
	if err != nil {
		s.finishFailed(ctx, req, err)
		return
	}

	outputMedia, resultsMedia, err := s.uploadArtifacts(ctx, req.TrackingID, result)
	if err != nil {
		s.finishFailed(ctx, req, err)
		return
	}

	completedAt := s.time.Now()
	elapsed := completedAt.Sub(start)
	countingData := result.Results.CountingData

	job := &model.DetectionJob{
		ID:                req.TrackingID,
		Owner:             req.Owner,
		Status:            model.JobStatusCompleted,
		InputMedia:        req.Input,
		OutputMedia:       outputMedia,
		ResultsArtifact:   resultsMedia,
		CountingData:      &countingData,
		TotalFrames:       result.Results.TotalFrames,
		TotalVehicles:     result.Results.TotalVehicles,
		Accuracy:          result.Results.Accuracy,
		StartedAt:         req.StartedAt,
		CompletedAt:       &completedAt,
		ProcessingSeconds: elapsed.Seconds(),
		CreatedAt:         completedAt,
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		// The terminal event below still carries the full result, so live
		// subscribers see the outcome even when the row never lands.
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "terminal job record write failed",
				"tracking_id", req.TrackingID, "error", err)
		}
		metrics.EmitDetectionLifecycle(s.metrics, metrics.DetectionMetric{
			Stage:  "persist",
			Result: metrics.ResultError,
			Err:    err,
		})
	}

	summary := &model.ResultSummary{
		DetectionID:    req.TrackingID,
		Status:         model.JobStatusCompleted,
		OutputVideoURL: outputMedia.URL,
		TotalVehicles:  result.Results.TotalVehicles,
		Accuracy:       result.Results.Accuracy,
		ProcessingTime: elapsed.Seconds(),
		CountingData:   &countingData,
	}
	s.broker.Publish(ctx, model.ProgressEvent{
		TrackingID: req.TrackingID,
		Stage:      model.StageCompleted,
		Progress:   100,
		Message:    "detection completed",
		Timestamp:  completedAt,
		Result:     summary,
	})
	s.clearMarker(ctx, req.TrackingID)

	metrics.EmitDetectionLifecycle(s.metrics, metrics.DetectionMetric{
		Stage:    model.StageCompleted,
		Result:   metrics.ResultSuccess,
		Duration: elapsed,
	})
	if s.logger != nil {
		s.logger.InfoContext(ctx, "detection completed",
			"tracking_id", req.TrackingID,
			"total_vehicles", result.Results.TotalVehicles,
			"accuracy", result.Results.Accuracy,
			"elapsed", elapsed,
		)
	}
}

// uploadArtifacts pushes the annotated video and the results artifact to
// remote storage under the job's deterministic keys.
func (s *PipelineService) uploadArtifacts(
	ctx context.Context,
	trackingID string,
	result *engine.InvokeResult,
) (model.MediaRef, model.MediaRef, error) {
	output, err := s.uploadFile(ctx, model.EncodeOutputKey(trackingID), result.OutputVideoPath, "video/mp4")
	if err != nil {
		return model.MediaRef{}, model.MediaRef{}, apperrors.Storage("failed to store output video", err)
	}

	results, err := s.uploadFile(ctx, model.EncodeResultsKey(trackingID), result.ResultsPath, "application/json")
	if err != nil {
		return model.MediaRef{}, model.MediaRef{}, apperrors.Storage("failed to store results artifact", err)
	}

	return output, results, nil
}

func (s *PipelineService) uploadFile(ctx context.Context, key, path, contentType string) (model.MediaRef, error) {
	f, err := os.Open(path) // #nosec G304 - path is under the job's own scratch dir
	if err != nil {
		return model.MediaRef{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return model.MediaRef{}, fmt.Errorf("stat %s: %w", path, err)
	}

	url, err := s.store.Upload(ctx, key, f, info.Size(), contentType)
	if err != nil {
		return model.MediaRef{}, err
	}

	return model.MediaRef{URL: url, ObjectKey: key}, nil
}

// finishFailed terminates a job on the failure path: one failed row, one
// terminal error event, marker cleared. It never propagates the error; the
// pipeline goroutine has no caller to return it to.
func (s *PipelineService) finishFailed(ctx context.Context, req StartRequest, cause error) {
	completedAt := s.time.Now()
	elapsed := completedAt.Sub(req.StartedAt)
	errText := cause.Error()

	job := &model.DetectionJob{
		ID:                req.TrackingID,
		Owner:             req.Owner,
		Status:            model.JobStatusFailed,
		InputMedia:        req.Input,
		StartedAt:         req.StartedAt,
		CompletedAt:       &completedAt,
		ProcessingSeconds: elapsed.Seconds(),
		LastError:         &errText,
		CreatedAt:         completedAt,
	}
	if err := s.jobs.Create(ctx, job); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed job record write failed",
			"tracking_id", req.TrackingID, "error", err)
	}

	s.broker.Publish(ctx, model.ProgressEvent{
		TrackingID: req.TrackingID,
		Stage:      model.StageError,
		Message:    errText,
		Timestamp:  completedAt,
		Result: &model.ResultSummary{
			DetectionID:    req.TrackingID,
			Status:         model.JobStatusFailed,
			ProcessingTime: elapsed.Seconds(),
			Error:          errText,
		},
	})
	s.clearMarker(ctx, req.TrackingID)

	metrics.EmitDetectionLifecycle(s.metrics, metrics.DetectionMetric{
		Stage:    model.StageError,
		Result:   metrics.ResultError,
		Duration: elapsed,
		Err:      cause,
	})
	if s.logger != nil {
		s.logger.ErrorContext(ctx, "detection failed",
			"tracking_id", req.TrackingID,
			"error", cause,
			"elapsed", elapsed,
		)
	}
}

// publish fans an event out and refreshes the job's in-flight marker.
func (s *PipelineService) publish(ctx context.Context, event model.ProgressEvent, req StartRequest) {
	s.broker.Publish(ctx, event)
	if err := s.registry.SetMarker(ctx, data.ProgressMarker{
		TrackingID: event.TrackingID,
		Stage:      event.Stage,
		Progress:   event.Progress,
		Owner:      req.Owner,
		StartedAt:  req.StartedAt,
		UpdatedAt:  event.Timestamp,
	}); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "progress marker write failed",
			"tracking_id", event.TrackingID, "error", err)
	}
}

func (s *PipelineService) clearMarker(ctx context.Context, trackingID string) {
	if err := s.registry.ClearMarker(ctx, trackingID); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "progress marker clear failed",
			"tracking_id", trackingID, "error", err)
	}
}
