// orchestrator/health.go
// Probes every registered server's /health in parallel. Runs fresh at the
// start of every logical request — large models get evicted from memory
// between requests, so cached health would misroute work to a server that
// silently dropped its model.

package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"splitserve/shared"
)

// HealthMonitor issues parallel /health probes with a short per-probe timeout.
type HealthMonitor struct {
	client  *http.Client
	timeout time.Duration
}

// NewHealthMonitor builds a monitor with the given per-probe timeout.
func NewHealthMonitor(timeout time.Duration) *HealthMonitor {
	return &HealthMonitor{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Refresh probes all servers concurrently and returns a complete status map
// keyed by server ID. It never fails: any probe problem shows up as
// healthy=false for that server. Worst-case wall time is one probe timeout.
func (m *HealthMonitor) Refresh(ctx context.Context, servers []shared.ServerDescriptor) map[string]shared.HealthStatus {
	statuses := make([]shared.HealthStatus, len(servers))

	var wg sync.WaitGroup
	for i, srv := range servers {
		wg.Add(1)
		go func(i int, srv shared.ServerDescriptor) {
			defer wg.Done()
			statuses[i] = m.probe(ctx, srv)
		}(i, srv)
	}
	wg.Wait()

	out := make(map[string]shared.HealthStatus, len(servers))
	for _, st := range statuses {
		out[st.ServerID] = st
		if !st.Healthy {
			logrus.Debugf("[Health] %s unhealthy: %s", st.ServerID, st.Error)
		}
	}
	return out
}

// probe checks one server. Healthy means HTTP 200 with loaded=true in the
// body; anything else — timeout, refused connection, non-200, garbage body,
// model still loading — is unhealthy.
func (m *HealthMonitor) probe(ctx context.Context, srv shared.ServerDescriptor) shared.HealthStatus {
	status := shared.HealthStatus{ServerID: srv.ID, CheckedAt: time.Now()}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL()+"/health", nil)
	if err != nil {
		status.Error = err.Error()
		return status
	}

	resp, err := m.client.Do(req)
	if err != nil {
		status.Error = fmt.Sprintf("unreachable: %v", err)
		return status
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		status.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return status
	}

	var body shared.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		status.Error = fmt.Sprintf("malformed health body: %v", err)
		return status
	}

	status.Model = body.Model
	if !body.Loaded {
		status.Error = fmt.Sprintf("model not loaded (status=%q)", body.Status)
		return status
	}

	status.Healthy = true
	return status
}
