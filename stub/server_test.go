// stub/server_test.go
// The stub must honor the same wire contract the orchestrator expects.

package stub

import (
	"bytes"
	"encoding/base64"
	"encoding/gob"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"splitserve/shared"
)

func newTestStub(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(NewServer(cfg).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestHealth_Loaded(t *testing.T) {
	ts := newTestStub(t, Config{Model: "qwen"})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body shared.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "qwen", body.Model)
	assert.True(t, body.Loaded)
}

func TestHealth_Warmup(t *testing.T) {
	ts := newTestStub(t, Config{Model: "qwen", WarmupS: 60})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body shared.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "loading", body.Status)
	assert.False(t, body.Loaded)
}

func TestPrefill_TextPrimingEchoesPrompt(t *testing.T) {
	ts := newTestStub(t, Config{Model: "qwen", Backend: shared.BackendTextPriming})

	resp, err := http.Post(ts.URL+"/prefill", "application/json",
		strings.NewReader(`{"prompt":"warm the model please"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body shared.PrefillResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "warm the model please", body.Context)
	assert.Equal(t, 4, body.Metrics.PromptEvalCount)
}

func TestPrefill_TensorCacheSerializesCache(t *testing.T) {
	ts := newTestStub(t, Config{Model: "qwen", Backend: shared.BackendTensorCache})

	resp, err := http.Post(ts.URL+"/prefill", "application/json",
		strings.NewReader(`{"prompt":"one two three"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body shared.PrefillResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEqual(t, "one two three", body.Context, "tensor_cache must not echo the prompt")

	// The payload round-trips as base64(gob(cache))
	raw, err := base64.StdEncoding.DecodeString(body.Context)
	require.NoError(t, err)
	var cache fakeKVCache
	require.NoError(t, gob.NewDecoder(bytes.NewReader(raw)).Decode(&cache))
	assert.Equal(t, "one two three", cache.Prompt)
	assert.Len(t, cache.Keys, cache.Layers)
}

func TestPrefill_RejectsWhileLoading(t *testing.T) {
	ts := newTestStub(t, Config{Model: "qwen", WarmupS: 60})

	resp, err := http.Post(ts.URL+"/prefill", "application/json",
		strings.NewReader(`{"prompt":"hi"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body shared.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.Error)
}

func TestDecode_Deterministic(t *testing.T) {
	ts := newTestStub(t, Config{Model: "qwen"})

	payload := `{"prompt":"alpha beta gamma","context":"ignored","max_new_tokens":8,"temperature":0.7}`
	var first, second shared.DecodeResponse
	for i, out := range []*shared.DecodeResponse{&first, &second} {
		resp, err := http.Post(ts.URL+"/decode", "application/json", strings.NewReader(payload))
		require.NoError(t, err, "call %d", i)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
		resp.Body.Close()
	}

	assert.Equal(t, first.GeneratedText, second.GeneratedText)
	assert.Contains(t, first.GeneratedText, "[qwen]")
	assert.Greater(t, first.TokensGenerated, 0)
	assert.Greater(t, first.TokensPerSec, 0.0)
}

func TestGenerate_Contract(t *testing.T) {
	ts := newTestStub(t, Config{Model: "qwen"})

	resp, err := http.Post(ts.URL+"/generate", "application/json",
		strings.NewReader(`{"prompt":"hello there","max_tokens":4,"temperature":0.1}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body shared.SingleGenerateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.Response)
	assert.GreaterOrEqual(t, body.GenerationTime, 0.0)
}

func TestBadBodiesAre400(t *testing.T) {
	ts := newTestStub(t, Config{Model: "qwen"})

	for _, path := range []string{"/prefill", "/decode", "/generate"} {
		resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader("{broken"))
		require.NoError(t, err, path)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}
}
