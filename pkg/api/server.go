// Package api serves the read-only JSON views of the ingested data.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ironswallow/ironswallow/pkg/log"
	"github.com/ironswallow/ironswallow/pkg/metrics"
)

// Server exposes the departure board and operational endpoints. All
// queries go through a read-only pool, never the ingest connection.
type Server struct {
	pool   *pgxpool.Pool
	mux    *http.ServeMux
	logger zerolog.Logger
}

// NewServer builds a server over pool.
func NewServer(pool *pgxpool.Pool) *Server {
	mux := http.NewServeMux()
	s := &Server{
		pool:   pool,
		mux:    mux,
		logger: log.WithComponent("api"),
	}

	mux.HandleFunc("GET /json/departures/{location}", s.departuresHandler)
	mux.HandleFunc("GET /json/departures/{location}/{time}", s.departuresHandler)
	mux.HandleFunc("GET /healthz", s.healthHandler)
	mux.Handle("GET /metrics", metrics.Handler())

	return s
}

// Start serves until the listener fails or the server is shut down.
func (s *Server) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("serving")
	return server.ListenAndServe()
}

// Handler returns the mux for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

type errorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Status: status, Message: message})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.pool.Ping(ctx); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
