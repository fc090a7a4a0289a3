package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roadmetrics/countline/config"
	"github.com/roadmetrics/countline/internal/data"
	"github.com/roadmetrics/countline/internal/domain/model"
	"github.com/roadmetrics/countline/internal/domain/progress"
	apperrors "github.com/roadmetrics/countline/internal/errors"
	"github.com/roadmetrics/countline/internal/observability/metrics"
	"github.com/roadmetrics/countline/internal/observability/statsd"
)

// ObjectStore is the remote storage surface the services depend on.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	PresignedGetURL(ctx context.Context, key string) (string, error)
	Remove(ctx context.Context, key string) error
	ListKeys(ctx context.Context, prefix string) ([]data.RemoteObject, error)
}

// MarkerRegistry records in-flight progress markers so silent jobs stay
// discoverable by the sweeper.
type MarkerRegistry interface {
	SetMarker(ctx context.Context, marker data.ProgressMarker) error
	ClearMarker(ctx context.Context, jobID string) error
}

// PipelineStarter accepts an uploaded input for asynchronous processing.
type PipelineStarter interface {
	Start(req StartRequest)
}

// UploadRequest is one inbound video upload.
type UploadRequest struct {
	Body        io.Reader
	Size        int64
	ContentType string
	Owner       string
}

// UploadAccepted is the synchronous response to an accepted upload. The
// tracking id is minted before any I/O so every later artifact and progress
// event can reference it.
type UploadAccepted struct {
	TrackingID string
	Status     string
}

// IntakeServiceOptions groups dependencies for IntakeService.
type IntakeServiceOptions struct {
	Store    ObjectStore          // Required: remote input storage
	Pipeline PipelineStarter      // Required: asynchronous processing hand-off
	Broker   *progress.Broker     // Required: progress fan-out
	Registry MarkerRegistry       // Required: in-flight marker store
	Config   config.PipelineConfig
	Logger   *slog.Logger         // Optional: structured logger
	Metrics  statsd.Sink          // Optional: metrics sink (StatsD-compatible)
	Time     data.TimeProvider    // Optional: defaults to real time
}

// IntakeService validates inbound uploads, stages them in remote storage and
// hands them to the pipeline. Validation happens before any storage I/O so a
// rejected request has no side effects at all.
type IntakeService struct {
	store    ObjectStore
	pipeline PipelineStarter
	broker   *progress.Broker
	registry MarkerRegistry
	config   config.PipelineConfig
	logger   *slog.Logger
	metrics  statsd.Sink
	time     data.TimeProvider
}

// NewIntakeService constructs a new IntakeService.
func NewIntakeService(opts IntakeServiceOptions) (*IntakeService, error) {
	if opts.Store == nil {
		return nil, errors.New("ObjectStore is required")
	}
	if opts.Pipeline == nil {
		return nil, errors.New("PipelineStarter is required")
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

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "intake_service")
	}

	return &IntakeService{
		store:    opts.Store,
		pipeline: opts.Pipeline,
		broker:   opts.Broker,
		registry: opts.Registry,
		config:   opts.Config,
		logger:   logger,
		metrics:  opts.Metrics,
		time:     tp,
	}, nil
}

// Upload validates and stages one video upload.
//
// Ordering is deliberate: validate first, mint the tracking id second, touch
// storage last. A validation failure therefore leaves no trace, and a storage
// failure leaves no job record, only a marker that is cleared on the way out.
func (s *IntakeService) Upload(ctx context.Context, req UploadRequest) (*UploadAccepted, error) {
	start := s.time.Now()

	if err := s.validate(req); err != nil {
		s.emit("uploading_input", metrics.ResultError, s.time.Now().Sub(start), err)
		return nil, err
	}

	trackingID := uuid.NewString()
	inputKey := model.EncodeInputKey(trackingID)

	event := model.ProgressEvent{
		TrackingID: trackingID,
		Stage:      model.StageUploadingInput,
		Progress:   0,
		Message:    "receiving input video",
		Timestamp:  start,
	}
	s.broker.Publish(ctx, event)
	if err := s.registry.SetMarker(ctx, data.ProgressMarker{
		TrackingID: trackingID,
		Stage:      model.StageUploadingInput,
		Owner:      req.Owner,
		StartedAt:  start,
		UpdatedAt:  start,
	}); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "progress marker write failed", "tracking_id", trackingID, "error", err)
	}

	// The declared size already passed validation; the limit reader guards
	// against bodies that lie about their length.
	body := io.LimitReader(req.Body, s.config.MaxUploadBytes+1)
	inputURL, err := s.store.Upload(ctx, inputKey, body, req.Size, req.ContentType)
	if err != nil {
		if clearErr := s.registry.ClearMarker(ctx, trackingID); clearErr != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "progress marker clear failed", "tracking_id", trackingID, "error", clearErr)
		}
		s.emit("uploading_input", metrics.ResultError, s.time.Now().Sub(start), err)
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "input upload failed", "tracking_id", trackingID, "error", err)
		}
		return nil, apperrors.Storage("failed to store input video", err)
	}

	s.pipeline.Start(StartRequest{
		TrackingID: trackingID,
		Owner:      req.Owner,
		Input: model.MediaRef{
			URL:       inputURL,
			ObjectKey: inputKey,
		},
		StartedAt: start,
	})

	s.emit("uploading_input", metrics.ResultSuccess, s.time.Now().Sub(start), nil)
	if s.logger != nil {
		s.logger.InfoContext(ctx, "upload accepted",
			"tracking_id", trackingID,
			"size", req.Size,
			"content_type", req.ContentType,
		)
	}

	return &UploadAccepted{TrackingID: trackingID, Status: "processing"}, nil
}

func (s *IntakeService) validate(req UploadRequest) error {
	if req.Body == nil {
		return apperrors.Validation("request body is required")
	}
	if req.Size <= 0 {
		return apperrors.Validation("upload size must be declared and positive")
	}
	if req.Size > s.config.MaxUploadBytes {
		return apperrors.Validationf("upload of %d bytes exceeds the %d byte limit", req.Size, s.config.MaxUploadBytes)
	}
	contentType := strings.TrimSpace(req.ContentType)
	if contentType == "" {
		return apperrors.Validation("content type is required")
	}
	if !s.config.ContentTypeAllowed(contentType) {
		return apperrors.Validationf("unsupported content type %q", contentType)
	}
	return nil
}

func (s *IntakeService) emit(stage, result string, elapsed time.Duration, err error) {
	metrics.EmitDetectionLifecycle(s.metrics, metrics.DetectionMetric{
		Stage:    stage,
		Result:   result,
		Duration: elapsed,
		Err:      err,
	})
}
