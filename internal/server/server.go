// Package server exposes runs, stored plans, and the journal over HTTP.
//
// It provides:
//   - liveness and readiness probes backed by the health package
//   - an optional Prometheus metrics endpoint
//   - endpoints that start a run in the background, one at a time
//   - read-only views of stored plans and journal entries
//   - graceful shutdown that cancels the active run and drains connections
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/stepwise/internal/errors"
	"github.com/felixgeelhaar/stepwise/internal/health"
	"github.com/felixgeelhaar/stepwise/internal/journal"
	"github.com/felixgeelhaar/stepwise/internal/log"
	"github.com/felixgeelhaar/stepwise/internal/store"
)

// Server serves the stepwise HTTP API.
type Server struct {
	httpServer      *http.Server
	probes          *health.ProbeManager
	runs            *RunManager
	plans           store.PlanStore
	journal         *journal.Journal
	logger          *log.Logger
	defaultGoal     string
	shutdownTimeout time.Duration
}

// Config holds server configuration and collaborators.
type Config struct {
	// Address is the listen address (e.g., ":8080", "127.0.0.1:0")
	Address string

	// ShutdownTimeout is the maximum time to wait for connections to drain during shutdown.
	// Defaults to 30 seconds if not specified.
	ShutdownTimeout time.Duration

	// ReadTimeout defaults to 10 seconds.
	ReadTimeout time.Duration

	// WriteTimeout defaults to 10 seconds.
	WriteTimeout time.Duration

	// IdleTimeout defaults to 60 seconds.
	IdleTimeout time.Duration

	// DefaultGoal is run by POST /api/execute.
	DefaultGoal string

	Probes  *health.ProbeManager
	Runs    *RunManager
	Plans   store.PlanStore
	Journal *journal.Journal
	Logger  *log.Logger

	// Metrics, when set, is served at GET /metrics.
	Metrics http.Handler
}

// NewServer creates a server with all routes registered.
func NewServer(cfg Config) *Server {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.Probes == nil {
		cfg.Probes = health.NewProbeManager("")
	}
	if cfg.Journal == nil {
		cfg.Journal = journal.Discard()
	}

	s := &Server{
		probes:          cfg.Probes,
		runs:            cfg.Runs,
		plans:           cfg.Plans,
		journal:         cfg.Journal,
		logger:          log.OrDefault(cfg.Logger).WithGroup("server"),
		defaultGoal:     cfg.DefaultGoal,
		shutdownTimeout: cfg.ShutdownTimeout,
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.routes(cfg.Metrics),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) routes(metrics http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", s.handleLiveness)
	mux.HandleFunc("GET /health/ready", s.handleReadiness)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	mux.HandleFunc("POST /api/execute", s.handleExecute)
	mux.HandleFunc("POST /api/execute/custom", s.handleExecuteCustom)

	mux.HandleFunc("GET /api/plan/current", s.handleCurrentPlan)
	mux.HandleFunc("GET /api/plan/list", s.handleListPlans)
	mux.HandleFunc("GET /api/plan/{id}", s.handleGetPlan)
	mux.HandleFunc("GET /api/plan-fixes/{planId}", s.handlePlanFixes)

	mux.HandleFunc("GET /api/logs", s.handleLogs(s.journal.Since))
	mux.HandleFunc("GET /api/logs/system", s.handleLogs(s.journal.System))
	mux.HandleFunc("GET /api/logs/conversation", s.handleLogs(s.journal.Conversation))
	mux.HandleFunc("GET /api/logs/fixes", s.handleFixLogs)

	return mux
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens on the configured address and serves until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("server listening", "addr", ln.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.httpServer.Serve(ln); !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.Shutdown(context.WithoutCancel(ctx))
	})
	return g.Wait()
}

// Shutdown fails readiness, cancels the active run, and drains open
// connections for up to the shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.probes.MarkShutdown()
	s.httpServer.SetKeepAlivesEnabled(false)
	if s.runs != nil {
		s.runs.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	s.logger.Info("server shutting down")
	return s.httpServer.Shutdown(shutdownCtx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, fmt.Sprintf("Failed to encode response: %v", err), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleLiveness always answers 200, with a degraded status during shutdown.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.probes.CheckLiveness(r.Context()))
}

// handleReadiness answers 503 while shutting down or when a dependency is
// unhealthy.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	result := s.probes.CheckReadiness(r.Context())
	status := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, result)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	s.startRun(w, s.defaultGoal)
}

func (s *Server) handleExecuteCustom(w http.ResponseWriter, r *http.Request) {
	prompt := r.URL.Query().Get("prompt")
	if prompt == "" {
		writeError(w, http.StatusBadRequest, "missing prompt parameter")
		return
	}
	s.startRun(w, prompt)
}

func (s *Server) startRun(w http.ResponseWriter, goal string) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "runs are not enabled")
		return
	}
	switch err := s.runs.Start(goal); {
	case stderrors.Is(err, ErrRunActive):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "goal": goal})
	}
}

func (s *Server) handleCurrentPlan(w http.ResponseWriter, r *http.Request) {
	if s.runs != nil {
		if id, ok := s.runs.Current(); ok {
			writeJSON(w, http.StatusOK, map[string]string{"planId": id})
			return
		}
	}
	writeError(w, http.StatusNotFound, "no plan has been created yet")
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	ids, err := s.plans.List()
	if err != nil {
		s.logger.WithError(err).Error("failed to list plans")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := s.plans.Get(r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handlePlanFixes(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("planId")
	plan, err := s.plans.Get(id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	total, _ := plan.Counts()
	writeJSON(w, http.StatusOK, map[string]any{
		"planId":     id,
		"totalTasks": total,
		"fixLogs":    s.journal.Fixes(),
	})
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.HasCode(err, errors.ErrCodePlanNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.WithError(err).Error("failed to read plan")
	writeError(w, http.StatusInternalServerError, err.Error())
}

// handleLogs serves entries newer than the optional since parameter.
func (s *Server) handleLogs(query func(since int64) []journal.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var since int64
		if raw := r.URL.Query().Get("since"); raw != "" {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid since parameter: %q", raw))
				return
			}
			since = v
		}
		writeJSON(w, http.StatusOK, query(since))
	}
}

func (s *Server) handleFixLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.journal.Fixes())
}
