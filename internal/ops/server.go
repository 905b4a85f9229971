// Package ops exposes Questward's operational HTTP surface: liveness and
// readiness checks, Prometheus metrics, and build information. It carries no
// domain routes; all domain work is driven by the scheduler.
package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"questward/internal/config"
)

// healthCheckTimeout bounds all readiness probes for one request.
const healthCheckTimeout = 2 * time.Second

// HealthProbe is one subsystem readiness check (database, upstream API).
type HealthProbe interface {
	// Name returns a human-readable identifier for the probe.
	Name() string

	// Check performs the health check, respecting the context deadline.
	Check(ctx context.Context) error
}

// Server is the ops HTTP server.
type Server struct {
	logger *slog.Logger
	build  config.BuildInfo
	probes []HealthProbe
	router *chi.Mux
}

// NewServer builds the ops router with the standard middleware chain.
func NewServer(logger *slog.Logger, build config.BuildInfo, registry *prometheus.Registry, probes ...HealthProbe) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		logger: logger,
		build:  build,
		probes: probes,
		router: chi.NewRouter(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleLiveness)
	s.router.Get("/readyz", s.handleReadiness)
	s.router.Get("/version", s.handleVersion)
	if registry != nil {
		s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	return s
}

// Handler returns the http.Handler for the ops routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleLiveness reports process liveness. It never touches dependencies so
// a struggling database cannot get the process restarted.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type readinessResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// handleReadiness runs all registered probes concurrently under a shared
// deadline. Probes that do not finish in time count as unhealthy.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if len(s.probes) == 0 {
		s.writeJSON(w, http.StatusOK, readinessResponse{Status: "healthy"})
		return
	}

	type probeResult struct {
		name string
		err  error
	}

	var (
		mu      sync.Mutex
		results = make(map[string]probeResult, len(s.probes))
		wg      sync.WaitGroup
	)

	for _, probe := range s.probes {
		wg.Add(1)
		go func(p HealthProbe) {
			defer wg.Done()

			var err error
			func() {
				defer func() {
					if rec := recover(); rec != nil {
						err = fmt.Errorf("probe panicked: %v", rec)
					}
				}()
				err = p.Check(ctx)
			}()

			mu.Lock()
			results[p.Name()] = probeResult{name: p.Name(), err: err}
			mu.Unlock()
		}(probe)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// Deadline hit. Probes that have not reported get marked unhealthy
		// below.
	}

	mu.Lock()
	completed := make(map[string]probeResult, len(results))
	for name, res := range results {
		completed[name] = res
	}
	mu.Unlock()

	components := make(map[string]componentStatus, len(s.probes))
	allHealthy := true
	for _, probe := range s.probes {
		name := probe.Name()
		result, ok := completed[name]
		switch {
		case !ok:
			allHealthy = false
			components[name] = componentStatus{Status: "unhealthy", Message: "health check timed out"}
		case result.err != nil:
			allHealthy = false
			components[name] = componentStatus{Status: "unhealthy", Message: result.err.Error()}
		default:
			components[name] = componentStatus{Status: "healthy"}
		}
	}

	resp := readinessResponse{Components: components}
	if allHealthy {
		resp.Status = "healthy"
		s.writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.Status = "unhealthy"
	s.writeJSON(w, http.StatusServiceUnavailable, resp)
}

// handleVersion reports the linker-injected build metadata.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"version":    s.build.Version,
		"commit":     s.build.Commit,
		"build_time": s.build.BuildTime,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode ops response", "error", err)
	}
}
