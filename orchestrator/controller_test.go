// orchestrator/controller_test.go
// The degradation chain end to end against scripted backends.

package orchestrator

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"splitserve/shared"
)

func genReq(model string) shared.GenerateRequest {
	return shared.GenerateRequest{
		RequestID: "req-1",
		Prompt:    "write fibonacci in python",
		Model:     model,
		MaxTokens: 128,
	}
}

func TestGenerate_Disaggregated(t *testing.T) {
	// Scenario A: prefill@A and decode@B both healthy for qwen.
	prefill := newFakeBackend(t, "qwen")
	prefill.prefillContext = "X"
	decode := newFakeBackend(t, "qwen")
	decode.decodeText = "def fibonacci(n): ..."

	prefillSrv := prefill.descriptor(t, shared.RolePrefill, shared.BackendTensorCache)
	decodeSrv := decode.descriptor(t, shared.RoleDecode, shared.BackendTensorCache)

	c := newTestController(
		prefill.entry(t, shared.RolePrefill, shared.BackendTensorCache),
		decode.entry(t, shared.RoleDecode, shared.BackendTensorCache),
	)
	out := c.Generate(context.Background(), genReq("qwen"))

	assert.Equal(t, shared.MethodDisaggregated, out.Method)
	assert.Contains(t, out.Response, "fibonacci")
	assert.Equal(t, prefillSrv.ID, out.PrefillServerID)
	assert.Equal(t, decodeSrv.ID, out.DecodeServerID)
	assert.InDelta(t, 1.5, out.PrefillTime, 1e-9)
	assert.InDelta(t, 2.0, out.DecodeTime, 1e-9)
	assert.InDelta(t, out.PrefillTime+out.DecodeTime, out.TotalTime, 1e-9)
	assert.InDelta(t, 21.0, out.TokensPerSec, 1e-9)
	assert.Empty(t, out.Error)

	assert.EqualValues(t, 1, atomic.LoadInt32(&prefill.prefillCalls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&decode.decodeCalls))
	assert.EqualValues(t, 0, atomic.LoadInt32(&decode.generateCalls))
}

func TestGenerate_FallbackWhenNoPrefill(t *testing.T) {
	// Scenario B: only a decode server is healthy.
	decode := newFakeBackend(t, "qwen")
	decode.generateText = "single node answer"
	decodeSrv := decode.descriptor(t, shared.RoleDecode, shared.BackendTextPriming)

	c := newTestController(decode.entry(t, shared.RoleDecode, shared.BackendTextPriming))
	out := c.Generate(context.Background(), genReq("qwen"))

	assert.Equal(t, shared.MethodFallback, out.Method)
	assert.Equal(t, "single node answer", out.Response)
	assert.Equal(t, decodeSrv.ID, out.DecodeServerID)
	assert.Empty(t, out.PrefillServerID)
	assert.InDelta(t, 0.8, out.TotalTime, 1e-9)

	// /generate exactly once, disaggregated path never touched
	assert.EqualValues(t, 1, atomic.LoadInt32(&decode.generateCalls))
	assert.EqualValues(t, 0, atomic.LoadInt32(&decode.decodeCalls))
	assert.EqualValues(t, 0, atomic.LoadInt32(&decode.prefillCalls))
}

func TestGenerate_FailedWhenNoServersForModel(t *testing.T) {
	// Scenario C: servers exist, but none for the requested model type.
	decode := newFakeBackend(t, "qwen")

	c := newTestController(decode.entry(t, shared.RoleDecode, shared.BackendTextPriming))
	out := c.Generate(context.Background(), genReq("llama"))

	assert.Equal(t, shared.MethodFailed, out.Method)
	assert.Equal(t, "No servers available", out.Error)
	assert.Empty(t, out.Response)
	assert.EqualValues(t, 0, atomic.LoadInt32(&decode.generateCalls))
}

func TestGenerate_FailedWhenNothingHealthy(t *testing.T) {
	// Both servers answer /health but the model isn't loaded anywhere.
	prefill := newFakeBackend(t, "qwen")
	prefill.loaded = false
	decode := newFakeBackend(t, "qwen")
	decode.loaded = false

	c := newTestController(
		prefill.entry(t, shared.RolePrefill, shared.BackendTensorCache),
		decode.entry(t, shared.RoleDecode, shared.BackendTensorCache),
	)
	out := c.Generate(context.Background(), genReq("qwen"))

	assert.Equal(t, shared.MethodFailed, out.Method)
	assert.Equal(t, "No servers available", out.Error)
	assert.Empty(t, out.Response)
}

func TestGenerate_PrefillFailureDegradesToFallback(t *testing.T) {
	prefill := newFakeBackend(t, "qwen")
	prefill.prefillStatus = http.StatusInternalServerError
	decode := newFakeBackend(t, "qwen")
	decode.generateText = "rescued by fallback"

	c := newTestController(
		prefill.entry(t, shared.RolePrefill, shared.BackendTensorCache),
		decode.entry(t, shared.RoleDecode, shared.BackendTensorCache),
	)
	out := c.Generate(context.Background(), genReq("qwen"))

	assert.Equal(t, shared.MethodFallback, out.Method)
	assert.Equal(t, "rescued by fallback", out.Response)

	// No retry of the failed tier
	assert.EqualValues(t, 1, atomic.LoadInt32(&prefill.prefillCalls))
	assert.EqualValues(t, 0, atomic.LoadInt32(&decode.decodeCalls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&decode.generateCalls))
}

func TestGenerate_DecodeTimeoutDegradesToFallback(t *testing.T) {
	prefill := newFakeBackend(t, "qwen")
	decode := newFakeBackend(t, "qwen")
	decode.decodeDelay = 1500 * time.Millisecond // beyond the 1s decode timeout

	c := newTestController(
		prefill.entry(t, shared.RolePrefill, shared.BackendTensorCache),
		decode.entry(t, shared.RoleDecode, shared.BackendTensorCache),
	)
	out := c.Generate(context.Background(), genReq("qwen"))

	assert.Equal(t, shared.MethodFallback, out.Method)
	assert.EqualValues(t, 1, atomic.LoadInt32(&decode.decodeCalls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&decode.generateCalls))
}

func TestGenerate_BoundedOutboundCalls(t *testing.T) {
	// Worst case: prefill succeeds, decode fails, fallback fails too.
	// Exactly 3 generation-path calls, then a terminal failed outcome.
	prefill := newFakeBackend(t, "qwen")
	decode := newFakeBackend(t, "qwen")
	decode.decodeStatus = http.StatusInternalServerError
	decode.generateStatus = http.StatusInternalServerError

	c := newTestController(
		prefill.entry(t, shared.RolePrefill, shared.BackendTensorCache),
		decode.entry(t, shared.RoleDecode, shared.BackendTensorCache),
	)
	out := c.Generate(context.Background(), genReq("qwen"))

	assert.Equal(t, shared.MethodFailed, out.Method)
	assert.Equal(t, "All generation methods failed", out.Error)
	assert.Empty(t, out.Response)

	total := atomic.LoadInt32(&prefill.prefillCalls) +
		atomic.LoadInt32(&decode.decodeCalls) +
		atomic.LoadInt32(&decode.generateCalls)
	assert.LessOrEqual(t, total, int32(3))
}

func TestGenerate_DeterministicServerPair(t *testing.T) {
	// Two healthy candidates per role: the earliest-registered pair wins,
	// every time.
	p1 := newFakeBackend(t, "qwen")
	p2 := newFakeBackend(t, "qwen")
	d1 := newFakeBackend(t, "qwen")
	d2 := newFakeBackend(t, "qwen")

	c := newTestController(
		p1.entry(t, shared.RolePrefill, shared.BackendTensorCache),
		p2.entry(t, shared.RolePrefill, shared.BackendTensorCache),
		d1.entry(t, shared.RoleDecode, shared.BackendTensorCache),
		d2.entry(t, shared.RoleDecode, shared.BackendTensorCache),
	)

	first := c.Generate(context.Background(), genReq("qwen"))
	second := c.Generate(context.Background(), genReq("qwen"))

	require.Equal(t, shared.MethodDisaggregated, first.Method)
	require.Equal(t, shared.MethodDisaggregated, second.Method)
	assert.Equal(t, first.PrefillServerID, second.PrefillServerID)
	assert.Equal(t, first.DecodeServerID, second.DecodeServerID)
	assert.Equal(t, p1.descriptor(t, shared.RolePrefill, shared.BackendTensorCache).ID, first.PrefillServerID)
	assert.Equal(t, d1.descriptor(t, shared.RoleDecode, shared.BackendTensorCache).ID, first.DecodeServerID)

	assert.EqualValues(t, 0, atomic.LoadInt32(&p2.prefillCalls))
	assert.EqualValues(t, 0, atomic.LoadInt32(&d2.decodeCalls))
}

func TestGenerate_DefaultsApplied(t *testing.T) {
	decode := newFakeBackend(t, "qwen")
	c := newTestController(decode.entry(t, shared.RoleDecode, shared.BackendTextPriming))

	req := shared.GenerateRequest{RequestID: "r", Prompt: "hi", Model: "qwen"}
	out := c.Generate(context.Background(), req)

	// Zero max_tokens/temperature must not break the request.
	assert.Equal(t, shared.MethodFallback, out.Method)
}
