// Package httpx provides HTTP handlers and utilities for the detection API.
package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/roadmetrics/countline/internal/data"
	"github.com/roadmetrics/countline/internal/domain/model"
	"github.com/roadmetrics/countline/internal/service"
)

// JobReader fetches persisted job records.
type JobReader interface {
	GetByID(ctx context.Context, id string) (*model.DetectionJob, error)
}

// MarkerReader exposes in-flight progress markers for jobs that have no
// record yet.
type MarkerReader interface {
	GetMarker(ctx context.Context, jobID string) (*data.ProgressMarker, error)
}

// DetectionHandlers provides HTTP handlers for detection job operations.
type DetectionHandlers struct {
	Intake  *service.IntakeService
	Jobs    JobReader
	Markers MarkerReader
}

// detectionResponse is the JSON shape of a persisted detection job.
type detectionResponse struct {
	TrackingID        string              `json:"trackingId"`
	Owner             string              `json:"owner,omitempty"`
	Status            model.JobStatus     `json:"status"`
	InputVideoURL     string              `json:"inputVideoUrl,omitempty"`
	OutputVideoURL    string              `json:"outputVideoUrl,omitempty"`
	ResultsURL        string              `json:"resultsUrl,omitempty"`
	TotalFrames       int                 `json:"totalFrames"`
	TotalVehicles     int                 `json:"totalVehicles"`
	Accuracy          float64             `json:"accuracy"`
	CountingData      *model.CountingData `json:"countingData,omitempty"`
	StartedAt         time.Time           `json:"startedAt"`
	CompletedAt       *time.Time          `json:"completedAt,omitempty"`
	ProcessingSeconds float64             `json:"processingSeconds"`
	Error             string              `json:"error,omitempty"`
}

// inflightResponse is the JSON shape for a job that is still processing and
// therefore has no persisted record yet.
type inflightResponse struct {
	TrackingID string `json:"trackingId"`
	Status     string `json:"status"`
	Stage      string `json:"stage"`
	Progress   int    `json:"progress"`
}

// CreateDetection handles video uploads. The body is streamed as-is to
// remote storage; multipart is not used so the declared Content-Length is
// the video size.
func (h *DetectionHandlers) CreateDetection(w http.ResponseWriter, r *http.Request) {
	accepted, err := h.Intake.Upload(r.Context(), service.UploadRequest{
		Body:        r.Body,
		Size:        r.ContentLength,
		ContentType: r.Header.Get("Content-Type"),
		Owner:       r.Header.Get("X-Owner"),
	})
	if err != nil {
		RenderError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"trackingId": accepted.TrackingID,
		"status":     accepted.Status,
	})
}

// GetDetection returns the persisted record for a terminal job, or the
// in-flight marker state for a job that is still running.
func (h *DetectionHandlers) GetDetection(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("detection id must be a UUID")})
		return
	}

	job, err := h.Jobs.GetByID(r.Context(), id)
	if err == nil {
		WriteJSON(w, http.StatusOK, toDetectionResponse(job))
		return
	}
	if !errors.Is(err, model.ErrJobNotFound) {
		RenderError(w, err)
		return
	}

	if h.Markers != nil {
		marker, markerErr := h.Markers.GetMarker(r.Context(), id)
		if markerErr == nil && marker != nil {
			WriteJSON(w, http.StatusOK, inflightResponse{
				TrackingID: marker.TrackingID,
				Status:     "processing",
				Stage:      marker.Stage,
				Progress:   marker.Progress,
			})
			return
		}
	}

	RenderError(w, model.ErrJobNotFound)
}

func toDetectionResponse(job *model.DetectionJob) detectionResponse {
	resp := detectionResponse{
		TrackingID:        job.ID,
		Owner:             job.Owner,
		Status:            job.Status,
		InputVideoURL:     job.InputMedia.URL,
		OutputVideoURL:    job.OutputMedia.URL,
		ResultsURL:        job.ResultsArtifact.URL,
		TotalFrames:       job.TotalFrames,
		TotalVehicles:     job.TotalVehicles,
		Accuracy:          job.Accuracy,
		CountingData:      job.CountingData,
		StartedAt:         job.StartedAt,
		CompletedAt:       job.CompletedAt,
		ProcessingSeconds: job.ProcessingSeconds,
	}
	if job.LastError != nil {
		resp.Error = *job.LastError
	}
	return resp
}
