package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"

	"github.com/evanz1215/binance-trading-bot/internal/engine"
	"github.com/evanz1215/binance-trading-bot/internal/logger"
	"github.com/evanz1215/binance-trading-bot/internal/monitoring"
)

// Server is the local control surface for the engine. It is read-mostly; the
// only mutations are start and stop.
type Server struct {
	coordinator *engine.Coordinator
	health      *monitoring.HealthChecker
	log         *logger.Logger
	srv         *http.Server
}

func NewServer(coordinator *engine.Coordinator, health *monitoring.HealthChecker, log *logger.Logger) *Server {
	return &Server{
		coordinator: coordinator,
		health:      health,
		log:         log,
	}
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/positions", s.handlePositions).Methods(http.MethodGet)
	v1.HandleFunc("/risk", s.handleRisk).Methods(http.MethodGet)
	v1.HandleFunc("/engine/start", s.handleStart).Methods(http.MethodPost)
	v1.HandleFunc("/engine/stop", s.handleStop).Methods(http.MethodPost)

	if s.health != nil {
		r.Handle("/health", s.health).Methods(http.MethodGet)
	}
	return r
}

// Start serves the API on the given port until Shutdown.
func (s *Server) Start(port int) error {
	r := s.router()

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	if s.log != nil {
		s.log.Info("API server listening on %s", s.srv.Addr)
	}
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coordinator.GetStatus())
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"positions": s.coordinator.OpenPositions(),
	})
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	report, err := s.coordinator.RiskManager().GetRiskReport(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.Start(r.Context()); err != nil {
		// Only a state conflict is the caller's fault; a failed
		// initialization is a dependency problem.
		code := http.StatusInternalServerError
		if errors.Is(err, engine.ErrAlreadyStarted) {
			code = http.StatusConflict
		}
		writeError(w, code, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.Stop(r.Context()); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, engine.ErrNotRunning) {
			code = http.StatusConflict
		}
		writeError(w, code, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := jsoniter.NewEncoder(w).Encode(payload); err != nil {
		// Headers are already out; nothing left to do but note it.
		_ = err
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
