package httpx

import "net/http"

// healthHandler answers readiness and liveness probes. It reports process
// health only; storage and database connectivity are checked at bootstrap.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	// A write failure here means the probe already hung up.
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
