// Package api exposes the latest measurement, on-demand cycles and the
// Prometheus registry over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"v6probe/internal/model"
	"v6probe/internal/report"
	"v6probe/internal/session"
)

var errRunDisabled = errors.New("measurements are disabled")

// RunFunc executes one measurement cycle.
type RunFunc func(ctx context.Context) (session.Result, error)

// Server provides the HTTP API.
type Server struct {
	Logger   *zap.Logger
	Latest   *report.Latest
	Run      RunFunc
	Gatherer prometheus.Gatherer

	// runMu keeps scheduled and on-demand cycles from overlapping.
	runMu sync.Mutex
}

func NewServer(l *zap.Logger, latest *report.Latest, run RunFunc, g prometheus.Gatherer) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Latest: latest, Run: run, Gatherer: g}
}

type runResponse struct {
	Measurement model.Measurement `json:"measurement"`
	DurationMs  int64             `json:"duration_ms"`
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/api/measurement", s.handleLatest)
	r.Post("/api/measurements", s.handleRun)

	if s.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// ListenAndServe serves the router on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.Logger.Info("api listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if s.Latest == nil {
		writeJSONError(w, http.StatusNotFound, "no measurement yet")
		return
	}
	m, ok := s.Latest.Get()
	if !ok {
		writeJSONError(w, http.StatusNotFound, "no measurement yet")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// RunCycle runs one cycle, waiting for any cycle already in flight.
func (s *Server) RunCycle(ctx context.Context) (session.Result, error) {
	if s.Run == nil {
		return session.Result{}, errRunDisabled
	}
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.Run(ctx)
}

// Schedule runs a cycle immediately and then every interval until ctx ends.
func (s *Server) Schedule(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.Logger.Warn("scheduled measurement failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.Run == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "measurements are disabled")
		return
	}

	res, err := s.RunCycle(r.Context())
	if err != nil {
		s.Logger.Warn("measurement cycle failed", zap.Error(err))
		writeJSONError(w, http.StatusGatewayTimeout, err.Error())
		return
	}
	if !res.Reported {
		// No direct target configured: nothing was measured.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, runResponse{
		Measurement: res.Measurement,
		DurationMs:  res.Duration.Milliseconds(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
