// stub/server.go
// A stand-in backend that speaks the prefill/decode/generate wire contract.
// Used for local development, demos, and the orchestrator's integration
// tests — no GPU, no model, just deterministic pretend inference.

package stub

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"splitserve/shared"
)

// Config describes one stub backend instance.
type Config struct {
	Port      int
	Model     string             // model name reported by /health
	Backend   shared.BackendKind // shapes the prefill context payload
	WarmupS   int                // seconds of "loading" before loaded=true
	StepDelay time.Duration      // simulated per-token generation delay
}

// Server is a fake prefill/decode backend.
type Server struct {
	cfg       Config
	startedAt time.Time
}

// NewServer builds a stub backend from config.
func NewServer(cfg Config) *Server {
	if cfg.Model == "" {
		cfg.Model = "qwen"
	}
	if cfg.Backend == "" {
		cfg.Backend = shared.BackendTextPriming
	}
	return &Server{cfg: cfg, startedAt: time.Now()}
}

// Handler builds the HTTP mux for the four contract endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /prefill", s.handlePrefill)
	mux.HandleFunc("POST /decode", s.handleDecode)
	mux.HandleFunc("POST /generate", s.handleGenerate)
	return mux
}

// Run starts the stub and blocks until SIGINT/SIGTERM.
func (s *Server) Run() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	logrus.Infof("[Stub] %s backend (%s) on %s", s.cfg.Model, s.cfg.Backend, addr)

	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	errCh := make(chan error, 1)
	go func() {
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

	logrus.Info("[Stub] Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// loaded reports whether the pretend model has finished its warmup.
func (s *Server) loaded() bool {
	return time.Since(s.startedAt) >= time.Duration(s.cfg.WarmupS)*time.Second
}

// ─── GET /health ──────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if !s.loaded() {
		status = "loading"
	}
	writeJSON(w, http.StatusOK, shared.HealthResponse{
		Status: status,
		Model:  s.cfg.Model,
		Loaded: s.loaded(),
	})
}

// ─── POST /prefill ────────────────────────────────────────────────────────────

func (s *Server) handlePrefill(w http.ResponseWriter, r *http.Request) {
	var req shared.PrefillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, shared.ErrorResponse{Error: "invalid request body"})
		return
	}
	if !s.loaded() {
		writeJSON(w, http.StatusServiceUnavailable, shared.ErrorResponse{Error: "model still loading"})
		return
	}

	start := time.Now()
	tokens := tokenCount(req.Prompt)
	time.Sleep(time.Duration(tokens) * s.cfg.StepDelay / 8) // prefill is batched

	var payload string
	if s.cfg.Backend == shared.BackendTensorCache {
		payload = serializeCache(req.Prompt, tokens)
	} else {
		// text_priming: nothing exportable — the prompt itself is the handoff
		payload = req.Prompt
	}

	elapsed := time.Since(start)
	writeJSON(w, http.StatusOK, shared.PrefillResponse{
		Context: payload,
		Prompt:  req.Prompt,
		Metrics: shared.PrefillMetrics{
			PromptEvalCount:      tokens,
			PromptEvalDurationNs: elapsed.Nanoseconds(),
			PrefillTimeS:         elapsed.Seconds(),
		},
	})
}

// ─── POST /decode ─────────────────────────────────────────────────────────────

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	var req shared.DecodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, shared.ErrorResponse{Error: "invalid request body"})
		return
	}
	if !s.loaded() {
		writeJSON(w, http.StatusServiceUnavailable, shared.ErrorResponse{Error: "model still loading"})
		return
	}

	start := time.Now()
	text, tokens := s.generateText(req.Prompt, req.MaxNewTokens)
	elapsed := time.Since(start).Seconds()

	tps := float64(tokens)
	if elapsed > 0 {
		tps = float64(tokens) / elapsed
	}
	writeJSON(w, http.StatusOK, shared.DecodeResponse{
		GeneratedText:   text,
		DecodeTime:      elapsed,
		TokensGenerated: tokens,
		TokensPerSec:    tps,
	})
}

// ─── POST /generate ───────────────────────────────────────────────────────────

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req shared.SingleGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, shared.ErrorResponse{Error: "invalid request body"})
		return
	}
	if !s.loaded() {
		writeJSON(w, http.StatusServiceUnavailable, shared.ErrorResponse{Error: "model still loading"})
		return
	}

	start := time.Now()
	text, _ := s.generateText(req.Prompt, req.MaxTokens)
	writeJSON(w, http.StatusOK, shared.SingleGenerateResponse{
		Response:       text,
		GenerationTime: time.Since(start).Seconds(),
	})
}

// ─── Pretend inference ────────────────────────────────────────────────────────

// generateText produces a deterministic continuation so tests and demos get
// stable output.
func (s *Server) generateText(prompt string, maxTokens int) (string, int) {
	if maxTokens <= 0 {
		maxTokens = 64
	}
	words := strings.Fields(prompt)
	n := len(words)
	if n > maxTokens {
		n = maxTokens
	}
	time.Sleep(time.Duration(n) * s.cfg.StepDelay)

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ", s.cfg.Model)
	for i := 0; i < n; i++ {
		b.WriteString(words[n-1-i])
		b.WriteByte(' ')
	}
	return strings.TrimSpace(b.String()), n + 1
}

// fakeKVCache mimics per-layer key/value state exported by a cache-capable
// backend.
type fakeKVCache struct {
	Prompt string
	Layers int
	Keys   [][]float32
	Values [][]float32
}

// serializeCache gob-encodes a small fake KV cache and base64s it — the same
// shape of handoff a real cache-exporting backend produces.
func serializeCache(prompt string, tokens int) string {
	cache := fakeKVCache{Prompt: prompt, Layers: 2}
	for l := 0; l < cache.Layers; l++ {
		row := make([]float32, tokens)
		for t := range row {
			row[t] = float32(l*tokens + t)
		}
		cache.Keys = append(cache.Keys, row)
		cache.Values = append(cache.Values, row)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cache); err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func tokenCount(prompt string) int {
	n := len(strings.Fields(prompt))
	if n == 0 {
		n = 1
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
