// Package testutil provides testing utilities and helpers for the countline detection pipeline.
package testutil

import (
	"time"

	"github.com/roadmetrics/countline/internal/domain/model"
)

// DefaultJobID is a fixed UUID used across tests for predictable assertions.
const DefaultJobID = "3f1d9a52-7c44-4a1a-9f33-5b2f6a8d9e01"

// CountingDataBuilder provides a fluent interface for building CountingData
// values for testing.
type CountingDataBuilder struct {
	data model.CountingData
}

// NewCountingData creates a CountingDataBuilder with a consistent two-lane
// default: three vehicles, bucket sums matching the track id count.
func NewCountingData() *CountingDataBuilder {
	return &CountingDataBuilder{
		data: model.CountingData{
			PerLane: map[string]map[string]int{
				"lane_1": {"car": 2},
				"lane_2": {"truck": 1},
			},
			TotalCounted:    3,
			LinePosition:    540,
			CountedTrackIDs: []string{"t1", "t2", "t3"},
		},
	}
}

// WithPerLane replaces the per-lane counts.
func (b *CountingDataBuilder) WithPerLane(perLane map[string]map[string]int) *CountingDataBuilder {
	b.data.PerLane = perLane
	return b
}

// WithTotalCounted sets the total counted vehicles.
func (b *CountingDataBuilder) WithTotalCounted(total int) *CountingDataBuilder {
	b.data.TotalCounted = total
	return b
}

// WithLinePosition sets the counting line pixel row.
func (b *CountingDataBuilder) WithLinePosition(pos int) *CountingDataBuilder {
	b.data.LinePosition = pos
	return b
}

// WithTrackIDs replaces the counted track ids.
func (b *CountingDataBuilder) WithTrackIDs(ids ...string) *CountingDataBuilder {
	b.data.CountedTrackIDs = ids
	return b
}

// Build returns the constructed CountingData.
func (b *CountingDataBuilder) Build() model.CountingData {
	return b.data
}

// JobBuilder provides a fluent interface for building DetectionJob records
// for testing.
type JobBuilder struct {
	job *model.DetectionJob
}

// NewCompletedJob creates a JobBuilder for a valid completed job.
func NewCompletedJob() *JobBuilder {
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	completed := started.Add(90 * time.Second)
	counting := NewCountingData().Build()

	return &JobBuilder{
		job: &model.DetectionJob{
			ID:     DefaultJobID,
			Owner:  "tester",
			Status: model.JobStatusCompleted,
			InputMedia: model.MediaRef{
				URL:       "https://storage.example.com/" + model.EncodeInputKey(DefaultJobID),
				ObjectKey: model.EncodeInputKey(DefaultJobID),
			},
			OutputMedia: model.MediaRef{
				URL:       "https://storage.example.com/" + model.EncodeOutputKey(DefaultJobID),
				ObjectKey: model.EncodeOutputKey(DefaultJobID),
			},
			ResultsArtifact: model.MediaRef{
				URL:       "https://storage.example.com/" + model.EncodeResultsKey(DefaultJobID),
				ObjectKey: model.EncodeResultsKey(DefaultJobID),
			},
			CountingData:      &counting,
			TotalFrames:       2700,
			TotalVehicles:     counting.TotalCounted,
			Accuracy:          0.92,
			StartedAt:         started,
			CompletedAt:       &completed,
			ProcessingSeconds: 90,
			CreatedAt:         completed,
		},
	}
}

// NewFailedJob creates a JobBuilder for a valid failed job.
func NewFailedJob() *JobBuilder {
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	completed := started.Add(30 * time.Second)
	errText := "engine invocation failed: exit status 1"

	return &JobBuilder{
		job: &model.DetectionJob{
			ID:     DefaultJobID,
			Owner:  "tester",
			Status: model.JobStatusFailed,
			InputMedia: model.MediaRef{
				URL:       "https://storage.example.com/" + model.EncodeInputKey(DefaultJobID),
				ObjectKey: model.EncodeInputKey(DefaultJobID),
			},
			StartedAt:         started,
			CompletedAt:       &completed,
			ProcessingSeconds: 30,
			LastError:         &errText,
			CreatedAt:         completed,
		},
	}
}

// WithID sets the job id.
func (b *JobBuilder) WithID(id string) *JobBuilder {
	b.job.ID = id
	return b
}

// WithOwner sets the job owner.
func (b *JobBuilder) WithOwner(owner string) *JobBuilder {
	b.job.Owner = owner
	return b
}

// WithStatus sets the job status.
func (b *JobBuilder) WithStatus(status model.JobStatus) *JobBuilder {
	b.job.Status = status
	return b
}

// WithCountingData sets the counting data.
func (b *JobBuilder) WithCountingData(data *model.CountingData) *JobBuilder {
	b.job.CountingData = data
	return b
}

// WithTotalVehicles sets the total vehicle count.
func (b *JobBuilder) WithTotalVehicles(total int) *JobBuilder {
	b.job.TotalVehicles = total
	return b
}

// WithError sets the terminal error text.
func (b *JobBuilder) WithError(text string) *JobBuilder {
	b.job.LastError = &text
	return b
}

// WithCompletedAt sets the terminal transition time.
func (b *JobBuilder) WithCompletedAt(t time.Time) *JobBuilder {
	b.job.CompletedAt = &t
	return b
}

// WithCreatedAt sets the record creation time.
func (b *JobBuilder) WithCreatedAt(t time.Time) *JobBuilder {
	b.job.CreatedAt = t
	return b
}

// Build returns the constructed DetectionJob.
func (b *JobBuilder) Build() *model.DetectionJob {
	return b.job
}
