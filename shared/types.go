// shared/types.go
// Common types used by the orchestrator, the status CLI, and the stub backend.

package shared

import (
	"fmt"
	"time"
)

// ─── Roles & Backend Kinds ────────────────────────────────────────────────────

// Role says which generation phase a server is provisioned for.
type Role string

const (
	RolePrefill Role = "prefill" // compute-bound: processes the full prompt
	RoleDecode  Role = "decode"  // bandwidth-bound: generates output tokens
)

// BackendKind tags the serving technology behind a server.
//
// A tensor_cache backend can serialize its attention cache and hand it over;
// a text_priming backend only warms itself and echoes the prompt as "context".
type BackendKind string

const (
	BackendTensorCache BackendKind = "tensor_cache"
	BackendTextPriming BackendKind = "text_priming"
)

// ─── Server Descriptor ────────────────────────────────────────────────────────

// ServerDescriptor is one statically configured backend server.
// Built once from config, never mutated afterwards.
type ServerDescriptor struct {
	ID        string      `json:"id"` // host:port, unique across the fleet
	Host      string      `json:"host"`
	Port      int         `json:"port"`
	ModelType string      `json:"model_type"` // e.g. "qwen", "llama"
	Role      Role        `json:"role"`
	Backend   BackendKind `json:"backend"`
}

// URL returns the base URL for this server, e.g. "http://10.0.0.4:8001".
func (s ServerDescriptor) URL() string {
	return fmt.Sprintf("http://%s:%d", s.Host, s.Port)
}

// ─── Health ───────────────────────────────────────────────────────────────────

// HealthStatus is the outcome of a single /health probe.
// Rewritten on every refresh; read-only downstream.
type HealthStatus struct {
	ServerID  string    `json:"server_id"`
	Healthy   bool      `json:"healthy"`
	Model     string    `json:"model,omitempty"` // model the backend reports
	Error     string    `json:"error,omitempty"` // why the probe failed, if it did
	CheckedAt time.Time `json:"checked_at"`
}

// ─── Stage Results ────────────────────────────────────────────────────────────

// PrefillResult is what a successful prefill call produced.
// Created per request, consumed immediately, never persisted.
type PrefillResult struct {
	Prompt       string      `json:"prompt"`
	Context      string      `json:"context"` // opaque: base64 cache blob or echoed prompt
	PromptTokens int         `json:"prompt_tokens"`
	PrefillTime  float64     `json:"prefill_time"` // seconds
	Backend      BackendKind `json:"backend"`
}

// GenerationResult is what the decode (or fallback generate) stage produced.
type GenerationResult struct {
	Text            string  `json:"text"`
	TokensGenerated int     `json:"tokens_generated"`
	DecodeTime      float64 `json:"decode_time"` // seconds
	TokensPerSec    float64 `json:"tokens_per_sec"`
}

// ─── Request Outcome ──────────────────────────────────────────────────────────

// Method says which tier of the degradation chain produced the response.
type Method string

const (
	MethodDisaggregated Method = "disaggregated"        // prefill + decode, split across nodes
	MethodFallback      Method = "single_node_fallback" // one decode server did everything
	MethodFailed        Method = "failed"               // every tier failed
)

// GenerateRequest is what a client sends to the orchestrator.
type GenerateRequest struct {
	RequestID   string  `json:"request_id,omitempty"`
	Prompt      string  `json:"prompt"`
	Model       string  `json:"model"` // model type to route on, e.g. "qwen"
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// RequestOutcome is the orchestrator's answer for one generate call.
// Every failure mode resolves into one of these — nothing escapes as an error.
type RequestOutcome struct {
	RequestID       string  `json:"request_id"`
	Response        string  `json:"response"`
	Method          Method  `json:"method"`
	PrefillServerID string  `json:"prefill_server_id,omitempty"`
	DecodeServerID  string  `json:"decode_server_id,omitempty"`
	PrefillTime     float64 `json:"prefill_time"` // seconds; 0 on the fallback path
	DecodeTime      float64 `json:"decode_time"`  // seconds
	TotalTime       float64 `json:"total_time"`   // prefill + decode, or the single generation time
	TokensPerSec    float64 `json:"tokens_per_sec"`
	Error           string  `json:"error,omitempty"` // set only when method == failed
}

// ─── Backend Wire Contract ────────────────────────────────────────────────────
// Every prefill/decode server speaks these four endpoints. Field names are
// fixed — the orchestrator, status CLI, and stub backend all share them.

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"` // "healthy" | "loading"
	Model  string `json:"model"`
	Loaded bool   `json:"loaded"`
}

// PrefillRequest is the body of POST /prefill.
type PrefillRequest struct {
	Prompt string `json:"prompt"`
}

// PrefillMetrics carries the backend-side timings for a prefill pass.
type PrefillMetrics struct {
	PromptEvalCount      int     `json:"prompt_eval_count"`
	PromptEvalDurationNs int64   `json:"prompt_eval_duration_ns"`
	PrefillTimeS         float64 `json:"prefill_time_s"`
}

// PrefillResponse is the 200 body of POST /prefill.
type PrefillResponse struct {
	Context string         `json:"context"` // base64 cache blob, or the prompt itself
	Prompt  string         `json:"prompt"`
	Metrics PrefillMetrics `json:"metrics"`
}

// DecodeRequest is the body of POST /decode. Context is advisory — a decode
// backend generally cannot consume a foreign cache, so Prompt is authoritative.
type DecodeRequest struct {
	Prompt       string  `json:"prompt"`
	Context      string  `json:"context,omitempty"`
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature"`
}

// DecodeResponse is the 200 body of POST /decode.
type DecodeResponse struct {
	GeneratedText   string  `json:"generated_text"`
	DecodeTime      float64 `json:"decode_time"`
	TokensGenerated int     `json:"tokens_generated"`
	TokensPerSec    float64 `json:"tokens_per_sec"`
}

// SingleGenerateRequest is the body of POST /generate (fallback path).
type SingleGenerateRequest struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// SingleGenerateResponse is the 200 body of POST /generate.
type SingleGenerateResponse struct {
	Response       string  `json:"response"`
	GenerationTime float64 `json:"generation_time"`
}

// ErrorResponse is what backends return on 4xx/5xx.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ─── Event Types ──────────────────────────────────────────────────────────────
// Broadcast over the orchestrator's /ws endpoint for dashboards.

// MeshEvent wraps every websocket broadcast with a type tag and timestamp.
type MeshEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"` // unix millis
	Data      any    `json:"data"`
}

// RequestEvent describes request lifecycle progress.
type RequestEvent struct {
	RequestID       string  `json:"request_id"`
	Model           string  `json:"model,omitempty"`
	Method          Method  `json:"method,omitempty"`
	PrefillServerID string  `json:"prefill_server_id,omitempty"`
	DecodeServerID  string  `json:"decode_server_id,omitempty"`
	Stage           string  `json:"stage,omitempty"` // "prefill" | "decode" | "fallback"
	TotalTime       float64 `json:"total_time,omitempty"`
	TokensPerSec    float64 `json:"tokens_per_sec,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// ServerEvent describes a health transition for one backend.
type ServerEvent struct {
	ServerID  string `json:"server_id"`
	ModelType string `json:"model_type"`
	Role      Role   `json:"role"`
	Healthy   bool   `json:"healthy"`
	Error     string `json:"error,omitempty"`
}

// DashboardStats is the periodic aggregate pushed to dashboards.
type DashboardStats struct {
	TotalRequests   int64   `json:"total_requests"`
	Disaggregated   int64   `json:"disaggregated"`
	Fallbacks       int64   `json:"fallbacks"`
	Failures        int64   `json:"failures"`
	AvgTotalSeconds float64 `json:"avg_total_seconds"`
	UptimeSecs      int64   `json:"uptime_secs"`
}
