package httpx

import (
	"log/slog"
	"net/http"

	"github.com/roadmetrics/countline/internal/domain/progress"
	"github.com/roadmetrics/countline/internal/service"
)

// RouterServices holds the services needed by the HTTP router.
type RouterServices struct {
	Intake  *service.IntakeService
	Jobs    JobReader
	Markers MarkerReader
	Broker  *progress.Broker
	Logger  *slog.Logger
}

// NewRouter creates and configures a new HTTP router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	detectionHandlers := &DetectionHandlers{
		Intake:  services.Intake,
		Jobs:    services.Jobs,
		Markers: services.Markers,
	}
	eventHandlers := &EventHandlers{Broker: services.Broker}

	mux.Handle("POST /api/detections", http.HandlerFunc(detectionHandlers.CreateDetection))
	mux.Handle("GET /api/detections/{id}", http.HandlerFunc(detectionHandlers.GetDetection))
	mux.Handle("GET /api/detections/{id}/events", http.HandlerFunc(eventHandlers.StreamDetectionEvents))
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var handler http.Handler = mux
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	return handler
}
