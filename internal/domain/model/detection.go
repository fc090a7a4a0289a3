// Package model defines the core data types for the countline detection pipeline.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the current status of a detection job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobStatus string

const (
	// JobStatusProcessing indicates a job is in flight. It is the only
	// non-terminal status and is never persisted to the job record store.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusCompleted indicates a job finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a job failed to complete.
	JobStatusFailed JobStatus = "failed"
)

// UnmarshalText implements encoding.TextUnmarshaler for JobStatus.
func (s *JobStatus) UnmarshalText(text []byte) error {
	v := JobStatus(strings.ToLower(strings.TrimSpace(string(text))))
	if v.Valid() {
		*s = v
		return nil
	}
	return fmt.Errorf("invalid JobStatus: %q", v)
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusProcessing || s == JobStatusCompleted || s == JobStatusFailed
}

// Terminal returns true once a job can never change status again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ErrJobNotFound is returned when a detection job does not exist.
var ErrJobNotFound = errors.New("detection job not found")

// MediaRef points at a durable remote artifact. Both fields are populated
// only after a successful upload to remote storage.
type MediaRef struct {
	URL       string `json:"url"        db:"url"`
	ObjectKey string `json:"object_key" db:"object_key"`
}

// Empty reports whether the reference has been populated.
func (m MediaRef) Empty() bool {
	return m.URL == "" && m.ObjectKey == ""
}

// CountingData holds per-lane, per-vehicle-class unique counts derived from
// virtual line-crossing events inside the detection engine.
type CountingData struct {
	// PerLane maps lane id to vehicle class to count.
	PerLane map[string]map[string]int `json:"perLane"`
	// TotalCounted is the number of unique vehicles counted.
	TotalCounted int `json:"totalCounted"`
	// LinePosition is the configured horizontal counting line (pixel row).
	LinePosition int `json:"linePosition"`
	// CountedTrackIDs holds every track id that has been counted. A track id
	// appears at most once; counting increments are guarded by membership
	// here, not by the running tally alone.
	CountedTrackIDs []string `json:"countedTrackIds"`
}

// Validate enforces the at-most-once counting contract: no duplicate track
// ids, and the per-lane bucket sum matching both the unique track count and
// the reported total.
func (c *CountingData) Validate() error {
	seen := make(map[string]struct{}, len(c.CountedTrackIDs))
	for _, id := range c.CountedTrackIDs {
		if id == "" {
			return errors.New("counting data contains an empty track id")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("track id %q counted more than once", id)
		}
		seen[id] = struct{}{}
	}

	var bucketSum int
	for lane, classes := range c.PerLane {
		for class, n := range classes {
			if n < 0 {
				return fmt.Errorf("negative count for lane %q class %q", lane, class)
			}
			bucketSum += n
		}
	}

	if bucketSum != len(c.CountedTrackIDs) {
		return fmt.Errorf("bucket sum %d does not match %d counted track ids", bucketSum, len(c.CountedTrackIDs))
	}
	if c.TotalCounted != bucketSum {
		return fmt.Errorf("totalCounted %d does not match bucket sum %d", c.TotalCounted, bucketSum)
	}
	return nil
}

// DetectionJob is the central entity of the pipeline. The id is minted by
// upload intake before any storage I/O or database row exists; the row is
// persisted exactly once, at the terminal transition, and never updated
// afterward except by deletion.
type DetectionJob struct {
	ID     string    `json:"id"     db:"id"`
	Owner  string    `json:"owner"  db:"owner"`
	Status JobStatus `json:"status" db:"status"`

	InputMedia      MediaRef `json:"input_media"`
	OutputMedia     MediaRef `json:"output_media"`
	ResultsArtifact MediaRef `json:"results_artifact"`

	CountingData  *CountingData `json:"counting_data,omitempty"`
	TotalFrames   int           `json:"total_frames"            db:"total_frames"`
	TotalVehicles int           `json:"total_vehicles"          db:"total_vehicles"`
	Accuracy      float64       `json:"accuracy"                db:"accuracy"`

	StartedAt         time.Time  `json:"started_at"             db:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	ProcessingSeconds float64    `json:"processing_seconds"     db:"processing_seconds"`

	// LastError is present only when Status is failed.
	LastError *string `json:"last_error,omitempty" db:"last_error"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Validate checks the invariants that must hold before a terminal row is
// written. Processing rows are never persisted, so a persistable job is
// always terminal.
func (j *DetectionJob) Validate() error {
	if strings.TrimSpace(j.ID) == "" {
		return errors.New("job id is required")
	}
	if !j.Status.Terminal() {
		return fmt.Errorf("job %s is not in a terminal status: %s", j.ID, j.Status)
	}

	switch j.Status {
	case JobStatusCompleted:
		if j.CountingData == nil {
			return fmt.Errorf("completed job %s has no counting data", j.ID)
		}
		if err := j.CountingData.Validate(); err != nil {
			return fmt.Errorf("job %s: %w", j.ID, err)
		}
	case JobStatusFailed:
		if j.LastError == nil || strings.TrimSpace(*j.LastError) == "" {
			return fmt.Errorf("failed job %s has no error text", j.ID)
		}
		// A failed job never carries partial counts.
		if j.CountingData != nil {
			return fmt.Errorf("failed job %s carries counting data", j.ID)
		}
	case JobStatusProcessing:
		// unreachable; Terminal() check above rejects it
	}

	return nil
}
