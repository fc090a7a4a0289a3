package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/roadmetrics/countline/internal/domain/model"
	"github.com/roadmetrics/countline/internal/domain/progress"
)

// EventHandlers streams progress events to clients over Server-Sent Events.
type EventHandlers struct {
	Broker *progress.Broker
}

// StreamDetectionEvents subscribes the client to a single job's progress
// channel. The stream closes after the terminal event or when the client
// disconnects; delivery is best effort and carries no replay.
func (h *EventHandlers) StreamDetectionEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("detection id must be a UUID")})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "streaming_unsupported", Err: errors.New("response writer does not support streaming")})
		return
	}

	unsubscribe, events := h.Broker.SubscribeJob(id)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-events:
			if !open {
				return
			}
			if !writeSSEEvent(w, flusher, event) {
				return
			}
			if event.Terminal() {
				return
			}
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event model.ProgressEvent) bool {
	payload, err := json.Marshal(event)
	if err != nil {
		return false
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return false
	}
	if _, err := w.Write(payload); err != nil {
		return false
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return false
	}
	flusher.Flush()
	return true
}
