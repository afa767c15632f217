// orchestrator/server.go
// HTTP front for the controller. Clients submit generation requests here;
// dashboards watch /ws; /status gives a freshly probed per-server table.

package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"splitserve/shared"
)

// requestTimeout bounds one whole generate call: health fan-out plus the
// slowest possible prefill + decode + fallback sequence.
const requestTimeout = 3 * time.Minute

// Server is the orchestrator HTTP service.
type Server struct {
	cfg        *shared.Config
	controller *Controller
	hub        *EventHub
}

// NewServer builds the orchestrator service from config.
func NewServer(cfg *shared.Config) *Server {
	hub := NewEventHub()
	return &Server{
		cfg:        cfg,
		controller: NewController(cfg).WithEvents(hub),
		hub:        hub,
	}
}

// Controller exposes the underlying controller (used by tests and the CLI).
func (s *Server) Controller() *Controller { return s.controller }

// Handler builds the HTTP mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// ── Client-facing endpoints ──────────────────────────────────────────────
	mux.HandleFunc("POST /v1/generate", s.handleGenerate)

	// ── Debug / status ───────────────────────────────────────────────────────
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /ws", s.hub.HandleWS)

	return mux
}

// Run starts the HTTP server and blocks until SIGINT/SIGTERM, then drains.
func (s *Server) Run() error {
	done := make(chan struct{})
	defer close(done)
	s.hub.StartStatsBroadcast(done)

	if s.cfg.Advertise {
		cleanup, err := Advertise(s.cfg.Listen)
		if err != nil {
			logrus.Warnf("[Orchestrator] mDNS advertisement failed: %v", err)
		} else {
			defer cleanup()
		}
	}

	srv := &http.Server{Addr: s.cfg.Listen, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("[Orchestrator] Listening on %s (%d servers configured)",
			s.cfg.Listen, len(s.cfg.Servers))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logrus.Info("[Orchestrator] Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// ─── Client: POST /v1/generate ────────────────────────────────────────────────

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req shared.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Prompt == "" {
		http.Error(w, "prompt is required", http.StatusBadRequest)
		return
	}
	if req.Model == "" {
		http.Error(w, "model is required", http.StatusBadRequest)
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}

	// Wrap with a timeout so a hung backend doesn't block forever
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	outcome := s.controller.Generate(ctx, req)

	w.Header().Set("Content-Type", "application/json")
	if outcome.Method == shared.MethodFailed {
		w.WriteHeader(http.StatusBadGateway)
	}
	json.NewEncoder(w).Encode(outcome)
}

// ─── Debug: GET /status ───────────────────────────────────────────────────────

// handleStatus probes every configured server and returns the full table.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	servers := s.controller.Registry().All()
	health := s.controller.Monitor().Refresh(r.Context(), servers)

	type serverStatus struct {
		shared.ServerDescriptor
		Health shared.HealthStatus `json:"health"`
	}

	out := make([]serverStatus, 0, len(servers))
	allHealthy := true
	for _, srv := range servers {
		st := health[srv.ID]
		out = append(out, serverStatus{ServerDescriptor: srv, Health: st})
		s.hub.EmitServerHealth(srv, st)
		if !st.Healthy {
			allHealthy = false
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"servers":     out,
		"all_healthy": allHealthy,
		"server_time": time.Now().UnixMilli(),
	})
}
