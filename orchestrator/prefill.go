// orchestrator/prefill.go
// Client for the prefill stage. A tensor_cache backend returns a serialized
// attention cache; a text_priming backend just warms itself and echoes the
// prompt. Either way the payload is opaque here.

package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"splitserve/shared"
)

// PrefillClient calls POST /prefill on a prefill server.
type PrefillClient struct {
	client *http.Client
}

// NewPrefillClient builds a client with the prefill stage timeout.
func NewPrefillClient(timeout time.Duration) *PrefillClient {
	return &PrefillClient{client: &http.Client{Timeout: timeout}}
}

// Prefill runs the prompt through srv and returns the opaque context payload
// plus token counts and timing. No retry: any failure is reported upward for
// the fallback tier to handle.
func (c *PrefillClient) Prefill(ctx context.Context, srv shared.ServerDescriptor, prompt string) (*shared.PrefillResult, error) {
	var resp shared.PrefillResponse
	err := postJSON(ctx, c.client, srv.URL()+"/prefill", shared.PrefillRequest{Prompt: prompt}, &resp)
	if err == nil && resp.Context == "" {
		// A disaggregated handoff needs a payload, even a placeholder one.
		err = fmt.Errorf("%w: missing context field", errMalformed)
	}
	if err != nil {
		logrus.Warnf("[Prefill] %s failed (%s): %v", srv.ID, classify(err), err)
		return nil, err
	}

	logrus.Debugf("[Prefill] %s done: %d prompt tokens in %.3fs",
		srv.ID, resp.Metrics.PromptEvalCount, resp.Metrics.PrefillTimeS)

	return &shared.PrefillResult{
		Prompt:       prompt,
		Context:      resp.Context,
		PromptTokens: resp.Metrics.PromptEvalCount,
		PrefillTime:  resp.Metrics.PrefillTimeS,
		Backend:      srv.Backend,
	}, nil
}
