package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/roadmetrics/countline/internal/data/pgxutil"
	"github.com/roadmetrics/countline/internal/domain/model"
)

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for the detection job record store.
// Rows are written exactly once, at the terminal transition; there are no
// in-progress rows and no updates.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const jobColumns = `
  id,
  owner,
  status,
  input_url,
  input_object_key,
  output_url,
  output_object_key,
  results_url,
  results_object_key,
  counting_data,
  total_frames,
  total_vehicles,
  accuracy,
  started_at,
  completed_at,
  processing_seconds,
  last_error,
  created_at
`

// Create inserts the terminal row for a job. It is called exactly once per
// job, by the pipeline's completion or failure handler, and validates the
// terminal-state invariants before touching the database.
func (r *JobRepo) Create(ctx context.Context, job *model.DetectionJob) error {
	if job == nil {
		return errors.New("detection job is required")
	}
	if err := job.Validate(); err != nil {
		return err
	}

	var countingData []byte
	if job.CountingData != nil {
		var err error
		countingData, err = json.Marshal(job.CountingData)
		if err != nil {
			return fmt.Errorf("marshal counting data: %w", err)
		}
	}

	query := `
	  INSERT INTO detection_jobs(
	    id, owner, status,
	    input_url, input_object_key,
	    output_url, output_object_key,
	    results_url, results_object_key,
	    counting_data, total_frames, total_vehicles, accuracy,
	    started_at, completed_at, processing_seconds, last_error, created_at
	  )
	  VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`

	_, err := r.DB.ExecContext(ctx, query,
		job.ID,
		job.Owner,
		job.Status,
		nullableString(job.InputMedia.URL),
		nullableString(job.InputMedia.ObjectKey),
		nullableString(job.OutputMedia.URL),
		nullableString(job.OutputMedia.ObjectKey),
		nullableString(job.ResultsArtifact.URL),
		nullableString(job.ResultsArtifact.ObjectKey),
		countingData,
		job.TotalFrames,
		job.TotalVehicles,
		job.Accuracy,
		job.StartedAt.UTC(),
		nullableTime(job.CompletedAt),
		job.ProcessingSeconds,
		nullableStringPtr(job.LastError),
		r.timeProvider.Now().UTC(),
	)
	if err != nil {
		return MapDBError(fmt.Errorf("insert detection job: %w", err))
	}
	return nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.DetectionJob, error) {
	var job *model.DetectionJob
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, `
			SELECT `+jobColumns+`
			FROM detection_jobs
			WHERE id = $1
		`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		job, err = collectJobFromRows(rows)
		return err
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrJobNotFound
	}
	if err != nil {
		return nil, MapDBError(fmt.Errorf("get detection job: %w", err))
	}
	return job, nil
}

// Exists reports whether a row exists for the given job id.
func (r *JobRepo) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM detection_jobs WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return false, MapDBError(fmt.Errorf("check detection job exists: %w", err))
	}
	return exists, nil
}

// ListByStatusOlderThan returns up to limit jobs in the given status whose
// terminal transition happened before the cutoff. Used by the sweeper's
// retention pass.
func (r *JobRepo) ListByStatusOlderThan(
	ctx context.Context,
	status model.JobStatus,
	cutoff time.Time,
	limit int,
) ([]*model.DetectionJob, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid job status: %s", status)
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM detection_jobs
		WHERE status = $1
		  AND COALESCE(completed_at, created_at) < $2
		ORDER BY COALESCE(completed_at, created_at)
		LIMIT $3
	`, status, cutoff.UTC(), limit)
	if err != nil {
		return nil, MapDBError(fmt.Errorf("list detection jobs: %w", err))
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			_ = cerr
		}
	}()

	var jobs []*model.DetectionJob
	for rows.Next() {
		job, scanErr := scanJobFromRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan detection job: %w", scanErr)
		}
		jobs = append(jobs, job)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, MapDBError(rowsErr)
	}
	return jobs, nil
}

// Delete removes a job row. Returns model.ErrJobNotFound when no row exists.
func (r *JobRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM detection_jobs WHERE id = $1`, id)
	if err != nil {
		return MapDBError(fmt.Errorf("delete detection job: %w", err))
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrJobNotFound
	}
	return nil
}

// collectJobFromRows collects a single job from pgx rows.
func collectJobFromRows(rows pgx.Rows) (*model.DetectionJob, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	job, err := scanJobFromRow(rows)
	if err != nil {
		return nil, err
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}

	return job, nil
}

type jobRowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	inputURL, inputKey     sql.NullString
	outputURL, outputKey   sql.NullString
	resultsURL, resultsKey sql.NullString
	countingData           []byte
	completedAt            sql.NullTime
	lastError              sql.NullString
}

func (d *jobRowData) scanInto(scanner jobRowScanner, job *model.DetectionJob) error {
	return scanner.Scan(
		&job.ID,
		&job.Owner,
		&job.Status,
		&d.inputURL,
		&d.inputKey,
		&d.outputURL,
		&d.outputKey,
		&d.resultsURL,
		&d.resultsKey,
		&d.countingData,
		&job.TotalFrames,
		&job.TotalVehicles,
		&job.Accuracy,
		&job.StartedAt,
		&d.completedAt,
		&job.ProcessingSeconds,
		&d.lastError,
		&job.CreatedAt,
	)
}

func (d *jobRowData) apply(job *model.DetectionJob) error {
	job.InputMedia = model.MediaRef{URL: d.inputURL.String, ObjectKey: d.inputKey.String}
	job.OutputMedia = model.MediaRef{URL: d.outputURL.String, ObjectKey: d.outputKey.String}
	job.ResultsArtifact = model.MediaRef{URL: d.resultsURL.String, ObjectKey: d.resultsKey.String}
	job.CompletedAt = cloneNullableTime(d.completedAt)
	job.LastError = cloneNullableString(d.lastError)

	if len(d.countingData) > 0 {
		var counting model.CountingData
		if err := json.Unmarshal(d.countingData, &counting); err != nil {
			return fmt.Errorf("unmarshal counting data: %w", err)
		}
		job.CountingData = &counting
	}
	return nil
}

func scanJobFromRow(scanner jobRowScanner) (*model.DetectionJob, error) {
	job := &model.DetectionJob{}
	var data jobRowData
	if err := data.scanInto(scanner, job); err != nil {
		return nil, err
	}
	if err := data.apply(job); err != nil {
		return nil, err
	}
	return job, nil
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
