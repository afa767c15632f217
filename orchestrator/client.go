// orchestrator/client.go
// Shared HTTP plumbing for the stage clients. One request value per call,
// built from the per-call context — no global mutable client state.

package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"splitserve/shared"
)

// postJSON sends payload to url and decodes the 200 body into out.
// Non-200 replies become *statusError (carrying the backend's error field when
// present); undecodable 200 bodies are wrapped with errMalformed.
func postJSON(ctx context.Context, client *http.Client, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var e shared.ErrorResponse
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return &statusError{code: resp.StatusCode, msg: e.Error}
		}
		return &statusError{code: resp.StatusCode, msg: string(bytes.TrimSpace(raw))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: %v", errMalformed, err)
		}
	}
	return nil
}
