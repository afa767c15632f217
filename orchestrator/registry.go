// orchestrator/registry.go
// Static registry of configured backend servers and the first-fit selector.
// No load tracking and no heartbeats — liveness comes from the per-request
// health probe, and selection is purely deterministic by registration order.

package orchestrator

import (
	"github.com/sirupsen/logrus"

	"splitserve/shared"
)

// Registry holds the ordered, immutable server list built from config.
type Registry struct {
	servers []shared.ServerDescriptor
}

// NewRegistry builds a registry from descriptors in registration order.
func NewRegistry(servers []shared.ServerDescriptor) *Registry {
	for _, s := range servers {
		logrus.Infof("[Registry] Server %s (model=%s role=%s backend=%s)",
			s.ID, s.ModelType, s.Role, s.Backend)
	}
	return &Registry{servers: servers}
}

// All returns the server list in registration order.
func (r *Registry) All() []shared.ServerDescriptor {
	out := make([]shared.ServerDescriptor, len(r.servers))
	copy(out, r.servers)
	return out
}

// Pick returns the first registered server matching role and modelType whose
// current health status is healthy. If several candidates are healthy, the
// earliest-registered one always wins — no load balancing.
func (r *Registry) Pick(role shared.Role, modelType string, health map[string]shared.HealthStatus) (shared.ServerDescriptor, bool) {
	for _, s := range r.servers {
		if s.Role != role || s.ModelType != modelType {
			continue
		}
		if st, ok := health[s.ID]; ok && st.Healthy {
			return s, true
		}
	}
	return shared.ServerDescriptor{}, false
}
