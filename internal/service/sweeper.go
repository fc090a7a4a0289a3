package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/roadmetrics/countline/config"
	"github.com/roadmetrics/countline/internal/data"
	"github.com/roadmetrics/countline/internal/domain/model"
	"github.com/roadmetrics/countline/internal/domain/progress"
	"github.com/roadmetrics/countline/internal/observability/metrics"
	"github.com/roadmetrics/countline/internal/observability/statsd"
)

// SweeperRepository is the job record surface the sweeper depends on.
type SweeperRepository interface {
	Exists(ctx context.Context, id string) (bool, error)
	Create(ctx context.Context, job *model.DetectionJob) error
	ListByStatusOlderThan(ctx context.Context, status model.JobStatus, cutoff time.Time, limit int) ([]*model.DetectionJob, error)
	Delete(ctx context.Context, id string) error
}

// MarkerLister extends MarkerRegistry with enumeration for recovery sweeps.
type MarkerLister interface {
	ListMarkers(ctx context.Context) ([]data.ProgressMarker, error)
	GetMarker(ctx context.Context, jobID string) (*data.ProgressMarker, error)
	ClearMarker(ctx context.Context, jobID string) error
}

// SweeperServiceOptions groups dependencies for SweeperService.
type SweeperServiceOptions struct {
	Repo    SweeperRepository    // Required: job record store
	Markers MarkerLister         // Required: in-flight marker store
	Store   ObjectStore          // Required: remote artifact storage
	Config  config.SweeperConfig // Required: sweeper configuration
	Scratch config.PipelineConfig
	Events  progress.Publisher   // Optional: terminal event mirror
	Logger  *slog.Logger         // Optional: structured logger
	Metrics statsd.Sink          // Optional: metrics sink (StatsD-compatible)
	Time    data.TimeProvider    // Optional: defaults to real time
}

// SweeperService reconciles the system back to a consistent state.
//
// This service manages:
// - Forcing silent in-flight jobs to a terminal failed record.
// - Expiring completed jobs and their remote artifacts past retention.
// - Removing orphaned scratch directories and remote objects.
//
// Every pass is idempotent and every item is handled log-and-continue; one
// bad record never stops a sweep.
type SweeperService struct {
	repo    SweeperRepository
	markers MarkerLister
	store   ObjectStore
	config  config.SweeperConfig
	scratch config.PipelineConfig
	events  progress.Publisher
	logger  *slog.Logger
	metrics statsd.Sink
	time    data.TimeProvider
}

// NewSweeperService constructs a new SweeperService.
func NewSweeperService(opts SweeperServiceOptions) (*SweeperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("SweeperRepository is required")
	}
	if opts.Markers == nil {
		return nil, errors.New("MarkerLister is required")
	}
	if opts.Store == nil {
		return nil, errors.New("ObjectStore is required")
	}

	tp := opts.Time
	if tp == nil {
		tp = &data.RealTimeProvider{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "sweeper_service")
		logger.Debug("SweeperService initialized",
			"recovery_interval", opts.Config.RecoveryInterval,
			"retention_interval", opts.Config.RetentionInterval,
			"processing_timeout", opts.Config.ProcessingTimeout,
			"retention_window", opts.Config.RetentionWindow,
		)
	}

	return &SweeperService{
		repo:    opts.Repo,
		markers: opts.Markers,
		store:   opts.Store,
		config:  opts.Config,
		scratch: opts.Scratch,
		events:  opts.Events,
		logger:  logger,
		metrics: opts.Metrics,
		time:    tp,
	}, nil
}

// Run starts both sweep loops and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *SweeperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting sweeper service",
			"recovery_interval", s.config.RecoveryInterval,
			"retention_interval", s.config.RetentionInterval,
		)
	}

	// Jitter prevents a thundering herd when several instances restart
	// together.
	s.waitWithJitter(ctx, s.config.RecoveryInterval)

	recovery := time.NewTicker(s.config.RecoveryInterval)
	defer recovery.Stop()
	retention := time.NewTicker(s.config.RetentionInterval)
	defer retention.Stop()

	if err := s.RunRecovery(ctx); err != nil {
		s.logSweepError(err, "initial recovery sweep")
	}

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "sweeper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-recovery.C:
			if err := s.RunRecovery(ctx); err != nil {
				s.logSweepError(err, "recovery sweep")
			}

		case <-retention.C:
			if err := s.RunRetention(ctx); err != nil {
				s.logSweepError(err, "retention sweep")
			}
		}
	}
}

func (s *SweeperService) waitWithJitter(ctx context.Context, interval time.Duration) {
	maxJitter := int64(interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

// RunRecovery performs one stuck-job recovery pass.
func (s *SweeperService) RunRecovery(ctx context.Context) error {
	return s.runSteps(ctx, []sweepStep{
		{fn: s.failStuckJobs, label: "fail stuck jobs"},
	})
}

// RunRetention performs one retention and orphan cleanup pass.
func (s *SweeperService) RunRetention(ctx context.Context) error {
	return s.runSteps(ctx, []sweepStep{
		{fn: s.expireCompletedJobs, label: "expire completed jobs"},
		{fn: s.removeOrphanScratchDirs, label: "remove orphan scratch dirs"},
		{fn: s.removeOrphanRemoteObjects, label: "remove orphan remote objects"},
	})
}

type sweepFunc func(context.Context) (int64, error)

type sweepStep struct {
	fn    sweepFunc
	label string
}

func (s *SweeperService) runSteps(ctx context.Context, steps []sweepStep) error {
	var (
		errs               []error
		allContextCanceled = true
	)

	for _, step := range steps {
		start := s.time.Now()
		count, err := step.fn(ctx)
		metrics.EmitSweep(s.metrics, metrics.SweepMetric{
			Step:     step.label,
			Affected: count,
			Errors:   boolToCount(suppressContextCancellation(err) != nil),
			Duration: s.time.Now().Sub(start),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.label, err))
			allContextCanceled = allContextCanceled && isContextCancellation(err)
		}
	}

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if allContextCanceled && isContextCancellation(joined) {
			return context.Canceled
		}
		return fmt.Errorf("sweep failed: %w", joined)
	}

	return nil
}

// failStuckJobs forces a terminal failed record for every in-flight job whose
// marker has gone silent past the processing timeout. The next sweep is a
// no-op for the same job because the marker is cleared with the record write.
func (s *SweeperService) failStuckJobs(ctx context.Context) (int64, error) {
	markers, err := s.markers.ListMarkers(ctx)
	if err != nil {
		return 0, err
	}

	now := s.time.Now()
	var (
		count   int64
		itemErr error
	)
	for _, marker := range markers {
		if ctx.Err() != nil {
			return count, ctx.Err()
		}
		if now.Sub(marker.UpdatedAt) < s.config.ProcessingTimeout {
			continue
		}

		exists, err := s.repo.Exists(ctx, marker.TrackingID)
		if err != nil {
			itemErr = errors.Join(itemErr, err)
			continue
		}
		if exists {
			// A terminal record already landed; only the marker leaked.
			if err := s.markers.ClearMarker(ctx, marker.TrackingID); err != nil {
				itemErr = errors.Join(itemErr, err)
			}
			continue
		}

		if err := s.failStuckJob(ctx, marker, now); err != nil {
			itemErr = errors.Join(itemErr, err)
			continue
		}
		count++
	}

	if count > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "failed stuck jobs",
			"count", count,
			"processing_timeout", s.config.ProcessingTimeout,
		)
	}
	return count, itemErr
}

func (s *SweeperService) failStuckJob(ctx context.Context, marker data.ProgressMarker, now time.Time) error {
	errText := fmt.Sprintf("processing timeout: no progress since %s (stage %s)",
		marker.UpdatedAt.UTC().Format(time.RFC3339), marker.Stage)
	completedAt := now

	job := &model.DetectionJob{
		ID:     marker.TrackingID,
		Owner:  marker.Owner,
		Status: model.JobStatusFailed,
		InputMedia: model.MediaRef{
			ObjectKey: model.EncodeInputKey(marker.TrackingID),
		},
		StartedAt:         marker.StartedAt,
		CompletedAt:       &completedAt,
		ProcessingSeconds: now.Sub(marker.StartedAt).Seconds(),
		LastError:         &errText,
		CreatedAt:         now,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return fmt.Errorf("record stuck job %s: %w", marker.TrackingID, err)
	}

	if err := s.markers.ClearMarker(ctx, marker.TrackingID); err != nil {
		return fmt.Errorf("clear stuck marker %s: %w", marker.TrackingID, err)
	}

	if s.events != nil {
		_ = s.events.PublishTerminalEvent(ctx, model.ProgressEvent{
			TrackingID: marker.TrackingID,
			Stage:      model.StageError,
			Message:    errText,
			Timestamp:  now,
			Result: &model.ResultSummary{
				DetectionID:    marker.TrackingID,
				Status:         model.JobStatusFailed,
				ProcessingTime: now.Sub(marker.StartedAt).Seconds(),
				Error:          errText,
			},
		})
	}
	return nil
}

// expireCompletedJobs deletes completed jobs past the retention window along
// with their remote artifacts. Artifacts go first so a partial failure leaves
// the row behind for the next sweep to retry.
func (s *SweeperService) expireCompletedJobs(ctx context.Context) (int64, error) {
	cutoff := s.time.Now().Add(-s.config.RetentionWindow)

	var (
		total   int64
		itemErr error
	)
	for {
		jobs, err := s.repo.ListByStatusOlderThan(ctx, model.JobStatusCompleted, cutoff, s.config.BatchSize)
		if err != nil {
			return total, errors.Join(itemErr, err)
		}
		if len(jobs) == 0 {
			break
		}

		var progressed bool
		for _, job := range jobs {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			if err := s.expireJob(ctx, job); err != nil {
				itemErr = errors.Join(itemErr, err)
				continue
			}
			total++
			progressed = true
		}
		if !progressed {
			break
		}
	}

	if total > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "expired completed jobs",
			"count", total,
			"retention_window", s.config.RetentionWindow,
		)
	}
	return total, itemErr
}

func (s *SweeperService) expireJob(ctx context.Context, job *model.DetectionJob) error {
	keys := []string{
		model.EncodeInputKey(job.ID),
		model.EncodeOutputKey(job.ID),
		model.EncodeResultsKey(job.ID),
	}
	for _, key := range keys {
		if err := s.store.Remove(ctx, key); err != nil {
			return fmt.Errorf("remove artifact %s: %w", key, err)
		}
	}

	if err := s.repo.Delete(ctx, job.ID); err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			return nil
		}
		return fmt.Errorf("delete job %s: %w", job.ID, err)
	}
	return nil
}

// removeOrphanScratchDirs deletes scratch directories whose job has neither a
// record nor an in-flight marker. The age floor keeps the sweep from racing a
// job that is still setting up.
func (s *SweeperService) removeOrphanScratchDirs(ctx context.Context) (int64, error) {
	entries, err := os.ReadDir(s.scratch.ScratchRoot)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read scratch root: %w", err)
	}

	now := s.time.Now()
	var (
		count   int64
		itemErr error
	)
	for _, entry := range entries {
		if ctx.Err() != nil {
			return count, ctx.Err()
		}
		if !entry.IsDir() {
			continue
		}
		if _, err := uuid.Parse(entry.Name()); err != nil {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			itemErr = errors.Join(itemErr, err)
			continue
		}
		if now.Sub(info.ModTime()) < s.config.OrphanMinAge {
			continue
		}

		orphan, err := s.isOrphan(ctx, entry.Name())
		if err != nil {
			itemErr = errors.Join(itemErr, err)
			continue
		}
		if !orphan {
			continue
		}

		dir := filepath.Join(s.scratch.ScratchRoot, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			itemErr = errors.Join(itemErr, fmt.Errorf("remove scratch dir %s: %w", dir, err))
			continue
		}
		count++
	}

	if count > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "removed orphan scratch dirs", "count", count)
	}
	return count, itemErr
}

// removeOrphanRemoteObjects deletes remote objects under the detection prefix
// whose job id resolves to nothing. Keys that do not follow the artifact
// layout are left alone; they belong to someone else.
func (s *SweeperService) removeOrphanRemoteObjects(ctx context.Context) (int64, error) {
	objects, err := s.store.ListKeys(ctx, model.ObjectKeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("list remote objects: %w", err)
	}

	now := s.time.Now()
	var (
		count   int64
		itemErr error
	)
	for _, obj := range objects {
		if ctx.Err() != nil {
			return count, ctx.Err()
		}

		jobID, _, err := model.DecodeObjectKey(obj.Key)
		if err != nil {
			continue
		}
		if now.Sub(obj.LastModified) < s.config.OrphanMinAge {
			continue
		}

		orphan, err := s.isOrphan(ctx, jobID)
		if err != nil {
			itemErr = errors.Join(itemErr, err)
			continue
		}
		if !orphan {
			continue
		}

		if err := s.store.Remove(ctx, obj.Key); err != nil {
			itemErr = errors.Join(itemErr, fmt.Errorf("remove remote object %s: %w", obj.Key, err))
			continue
		}
		count++
	}

	if count > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "removed orphan remote objects", "count", count)
	}
	return count, itemErr
}

// isOrphan reports whether a job id has neither a record nor an in-flight
// marker.
func (s *SweeperService) isOrphan(ctx context.Context, jobID string) (bool, error) {
	exists, err := s.repo.Exists(ctx, jobID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	marker, err := s.markers.GetMarker(ctx, jobID)
	if err != nil {
		return false, err
	}
	return marker == nil, nil
}

func (s *SweeperService) logSweepError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}

	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}

	s.logger.Error(label+" failed", "error", err)
}

func boolToCount(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
