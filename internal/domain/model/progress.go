package model

import "time"

// Progress stages emitted over the lifetime of a job. The engine reports its
// own stages verbatim; the pipeline adds the bracketing stages below.
const (
	StageQueued         = "queued"
	StageUploadingInput = "uploading_input"
	StageProcessing     = "processing"
	StageCompleted      = "completed"
	StageError          = "error"
)

// ProgressEvent is the wire format for per-job and global progress fan-out.
// Delivery is fire-and-forget; the job record store is the durable source of
// truth for terminal state.
type ProgressEvent struct {
	TrackingID string    `json:"trackingId"`
	Stage      string    `json:"stage"`
	Progress   int       `json:"progress"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`

	// Result is populated only on terminal events.
	Result *ResultSummary `json:"result,omitempty"`
}

// Terminal reports whether the event closes out its job.
func (e ProgressEvent) Terminal() bool {
	return e.Stage == StageCompleted || e.Stage == StageError
}

// ResultSummary carries the final outcome on terminal progress events.
type ResultSummary struct {
	DetectionID    string        `json:"detectionId"`
	Status         JobStatus     `json:"status"`
	OutputVideoURL string        `json:"outputVideoUrl,omitempty"`
	TotalVehicles  int           `json:"totalVehicles"`
	Accuracy       float64       `json:"accuracy"`
	ProcessingTime float64       `json:"processingTime"`
	CountingData   *CountingData `json:"countingData,omitempty"`
	Error          string        `json:"error,omitempty"`
}
