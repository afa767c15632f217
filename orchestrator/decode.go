// orchestrator/decode.go
// Client for the decode stage and for the single-node /generate fallback.
// The context payload is forwarded as-is but the prompt is the authoritative
// input — a decode backend generally can't consume a foreign-format cache.

package orchestrator

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"splitserve/shared"
)

// DecodeClient calls POST /decode and POST /generate on decode servers.
type DecodeClient struct {
	decode   *http.Client
	generate *http.Client
}

// NewDecodeClient builds a client with the decode and fallback-generate timeouts.
func NewDecodeClient(decodeTimeout, generateTimeout time.Duration) *DecodeClient {
	return &DecodeClient{
		decode:   &http.Client{Timeout: decodeTimeout},
		generate: &http.Client{Timeout: generateTimeout},
	}
}

// Decode generates text on srv using the prefill context payload.
// Tokens/sec is computed server-side and passed through. No retry.
func (c *DecodeClient) Decode(ctx context.Context, srv shared.ServerDescriptor, contextPayload, prompt string, maxTokens int, temperature float64) (*shared.GenerationResult, error) {
	req := shared.DecodeRequest{
		Prompt:       prompt,
		Context:      contextPayload,
		MaxNewTokens: maxTokens,
		Temperature:  temperature,
	}

	var resp shared.DecodeResponse
	if err := postJSON(ctx, c.decode, srv.URL()+"/decode", req, &resp); err != nil {
		logrus.Warnf("[Decode] %s failed (%s): %v", srv.ID, classify(err), err)
		return nil, err
	}

	logrus.Debugf("[Decode] %s done: %d tokens in %.3fs (%.1f tok/s)",
		srv.ID, resp.TokensGenerated, resp.DecodeTime, resp.TokensPerSec)

	return &shared.GenerationResult{
		Text:            resp.GeneratedText,
		TokensGenerated: resp.TokensGenerated,
		DecodeTime:      resp.DecodeTime,
		TokensPerSec:    resp.TokensPerSec,
	}, nil
}

// Generate runs the full single-node generation path on srv — the fallback
// tier, no disaggregation.
func (c *DecodeClient) Generate(ctx context.Context, srv shared.ServerDescriptor, prompt string, maxTokens int, temperature float64) (*shared.SingleGenerateResponse, error) {
	req := shared.SingleGenerateRequest{
		Prompt:      prompt,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	var resp shared.SingleGenerateResponse
	if err := postJSON(ctx, c.generate, srv.URL()+"/generate", req, &resp); err != nil {
		logrus.Warnf("[Generate] %s failed (%s): %v", srv.ID, classify(err), err)
		return nil, err
	}
	return &resp, nil
}
