package api

import (
	"net/http"
	"time"

	"github.com/ironswallow/ironswallow/pkg/metrics"
)

// MetricsServer is the operational endpoint of the ingest process:
// liveness and Prometheus metrics, no data access.
type MetricsServer struct {
	mux *http.ServeMux
}

// NewMetricsServer builds the operational server.
func NewMetricsServer() *MetricsServer {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy"}` + "\n"))
	})
	mux.Handle("GET /metrics", metrics.Handler())
	return &MetricsServer{mux: mux}
}

// Start serves until the listener fails.
func (m *MetricsServer) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      m.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// Handler returns the mux for tests.
func (m *MetricsServer) Handler() http.Handler {
	return m.mux
}
