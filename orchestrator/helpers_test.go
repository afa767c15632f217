// orchestrator/helpers_test.go
// Shared test fixtures: a configurable fake backend speaking the wire
// contract, with per-endpoint call counters.

package orchestrator

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"splitserve/shared"
)

// fakeBackend is an httptest-hosted backend with scriptable behavior.
type fakeBackend struct {
	model  string
	loaded bool

	prefillStatus  int // non-zero forces that HTTP status on /prefill
	decodeStatus   int
	generateStatus int

	prefillDelay time.Duration
	decodeDelay  time.Duration

	prefillContext string
	prefillTime    float64
	decodeText     string
	decodeTime     float64
	generateText   string

	healthCalls   int32
	prefillCalls  int32
	decodeCalls   int32
	generateCalls int32

	srv *httptest.Server
}

func newFakeBackend(t *testing.T, model string) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		model:          model,
		loaded:         true,
		prefillContext: "ctx-blob",
		prefillTime:    1.5,
		decodeText:     "generated text",
		decodeTime:     2.0,
		generateText:   "fallback text",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&b.healthCalls, 1)
		status := "healthy"
		if !b.loaded {
			status = "loading"
		}
		writeBody(w, http.StatusOK, shared.HealthResponse{Status: status, Model: b.model, Loaded: b.loaded})
	})
	mux.HandleFunc("POST /prefill", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&b.prefillCalls, 1)
		time.Sleep(b.prefillDelay)
		if b.prefillStatus != 0 {
			writeBody(w, b.prefillStatus, shared.ErrorResponse{Error: "prefill exploded"})
			return
		}
		var req shared.PrefillRequest
		json.NewDecoder(r.Body).Decode(&req)
		writeBody(w, http.StatusOK, shared.PrefillResponse{
			Context: b.prefillContext,
			Prompt:  req.Prompt,
			Metrics: shared.PrefillMetrics{
				PromptEvalCount:      7,
				PromptEvalDurationNs: int64(b.prefillTime * 1e9),
				PrefillTimeS:         b.prefillTime,
			},
		})
	})
	mux.HandleFunc("POST /decode", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&b.decodeCalls, 1)
		time.Sleep(b.decodeDelay)
		if b.decodeStatus != 0 {
			writeBody(w, b.decodeStatus, shared.ErrorResponse{Error: "decode exploded"})
			return
		}
		writeBody(w, http.StatusOK, shared.DecodeResponse{
			GeneratedText:   b.decodeText,
			DecodeTime:      b.decodeTime,
			TokensGenerated: 42,
			TokensPerSec:    21.0,
		})
	})
	mux.HandleFunc("POST /generate", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&b.generateCalls, 1)
		if b.generateStatus != 0 {
			writeBody(w, b.generateStatus, shared.ErrorResponse{Error: "generate exploded"})
			return
		}
		writeBody(w, http.StatusOK, shared.SingleGenerateResponse{
			Response:       b.generateText,
			GenerationTime: 0.8,
		})
	})

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func writeBody(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// entry turns the fake backend into a config entry with the given role.
func (b *fakeBackend) entry(t *testing.T, role shared.Role, backend shared.BackendKind) shared.ServerEntry {
	t.Helper()
	u, err := url.Parse(b.srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return shared.ServerEntry{Host: u.Hostname(), Port: port, Model: b.model, Role: role, Backend: backend}
}

// descriptor is entry() materialized the way the registry sees it.
func (b *fakeBackend) descriptor(t *testing.T, role shared.Role, backend shared.BackendKind) shared.ServerDescriptor {
	t.Helper()
	e := b.entry(t, role, backend)
	return shared.ServerDescriptor{
		ID:        e.Host + ":" + strconv.Itoa(e.Port),
		Host:      e.Host,
		Port:      e.Port,
		ModelType: e.Model,
		Role:      e.Role,
		Backend:   e.Backend,
	}
}

// newTestController builds a controller over the given entries with short
// stage timeouts.
func newTestController(entries ...shared.ServerEntry) *Controller {
	cfg := &shared.Config{
		Servers:  entries,
		Timeouts: shared.Timeouts{HealthS: 1, PrefillS: 2, DecodeS: 1, GenerateS: 2},
	}
	return NewController(cfg)
}
