// orchestrator/controller.go
// The degradation chain. One Generate call walks three tiers in order:
//
//	Tier 1: disaggregated — prefill on one node, decode on another
//	Tier 2: single-node fallback — POST /generate on a healthy decode node
//	Tier 3: failed — structured outcome, never an escaped error
//
// No retries within a tier; a failure drops straight to the next tier.
// Health is refreshed at the top of every call, never cached across calls.

package orchestrator

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"splitserve/shared"
)

const (
	errNoServers      = "No servers available"
	errAllTiersFailed = "All generation methods failed"

	defaultMaxTokens   = 512
	defaultTemperature = 0.7
)

// Controller wires the health monitor, registry, and stage clients into the
// generate pipeline. All fields are built from injected config — no globals.
type Controller struct {
	registry *Registry
	monitor  *HealthMonitor
	prefill  *PrefillClient
	decode   *DecodeClient
	events   *EventHub // nil when no dashboard hub is attached
}

// NewController builds a controller and its per-stage clients from config.
func NewController(cfg *shared.Config) *Controller {
	return &Controller{
		registry: NewRegistry(cfg.Descriptors()),
		monitor:  NewHealthMonitor(cfg.HealthTimeout()),
		prefill:  NewPrefillClient(cfg.PrefillTimeout()),
		decode:   NewDecodeClient(cfg.DecodeTimeout(), cfg.GenerateTimeout()),
	}
}

// WithEvents attaches a dashboard event hub. Safe to skip entirely.
func (c *Controller) WithEvents(hub *EventHub) *Controller {
	c.events = hub
	return c
}

// Registry exposes the static server list (status endpoint, CLI).
func (c *Controller) Registry() *Registry { return c.registry }

// Monitor exposes the health monitor (status endpoint, CLI).
func (c *Controller) Monitor() *HealthMonitor { return c.monitor }

// Generate runs one logical request through the degradation chain.
// Every failure mode resolves into a RequestOutcome; this never returns an
// error and never panics on network trouble.
func (c *Controller) Generate(ctx context.Context, req shared.GenerateRequest) *shared.RequestOutcome {
	if req.MaxTokens <= 0 {
		req.MaxTokens = defaultMaxTokens
	}
	if req.Temperature == 0 {
		req.Temperature = defaultTemperature
	}

	startedAt := time.Now()

	// Fresh health picture for this request — models may have been evicted
	// since the last one.
	health := c.monitor.Refresh(ctx, c.registry.All())

	outcome := c.tryDisaggregated(ctx, req, health)
	if outcome == nil {
		outcome = c.tryFallback(ctx, req, health)
	}

	logrus.Infof("[Controller] Request %s → %s in %.3fs (model=%s)",
		req.RequestID, outcome.Method, time.Since(startedAt).Seconds(), req.Model)
	c.events.EmitRequestDone(req, outcome)
	return outcome
}

// tryDisaggregated attempts tier 1. A nil return means "drop to fallback".
func (c *Controller) tryDisaggregated(ctx context.Context, req shared.GenerateRequest, health map[string]shared.HealthStatus) *shared.RequestOutcome {
	prefillSrv, ok := c.registry.Pick(shared.RolePrefill, req.Model, health)
	if !ok {
		logrus.Infof("[Controller] Request %s: no healthy prefill server for %q (%s)",
			req.RequestID, req.Model, FailNoHealthyServer)
		return nil
	}
	decodeSrv, ok := c.registry.Pick(shared.RoleDecode, req.Model, health)
	if !ok {
		logrus.Infof("[Controller] Request %s: no healthy decode server for %q (%s)",
			req.RequestID, req.Model, FailNoHealthyServer)
		return nil
	}

	logrus.Infof("[Controller] Request %s: disaggregated %s → %s",
		req.RequestID, prefillSrv.ID, decodeSrv.ID)

	pre, err := c.prefill.Prefill(ctx, prefillSrv, req.Prompt)
	if err != nil {
		// Classified and logged by the client; degrade.
		return nil
	}
	c.events.EmitStage(req, "prefill", prefillSrv.ID)

	gen, err := c.decode.Decode(ctx, decodeSrv, pre.Context, req.Prompt, req.MaxTokens, req.Temperature)
	if err != nil {
		return nil
	}
	c.events.EmitStage(req, "decode", decodeSrv.ID)

	return disaggregatedOutcome(req, prefillSrv, decodeSrv, pre, gen)
}

// tryFallback attempts tier 2 on any healthy decode server — independent of
// prefill availability — and settles on tier 3 when that fails too.
func (c *Controller) tryFallback(ctx context.Context, req shared.GenerateRequest, health map[string]shared.HealthStatus) *shared.RequestOutcome {
	decodeSrv, ok := c.registry.Pick(shared.RoleDecode, req.Model, health)
	if !ok {
		logrus.Warnf("[Controller] Request %s: %s — no healthy decode server for %q",
			req.RequestID, errNoServers, req.Model)
		return failedOutcome(req, errNoServers)
	}

	logrus.Infof("[Controller] Request %s: falling back to single-node generation on %s",
		req.RequestID, decodeSrv.ID)
	c.events.EmitStage(req, "fallback", decodeSrv.ID)

	resp, err := c.decode.Generate(ctx, decodeSrv, req.Prompt, req.MaxTokens, req.Temperature)
	if err != nil {
		logrus.Warnf("[Controller] Request %s: %s (%s)",
			req.RequestID, errAllTiersFailed, FailAllTiersFailed)
		return failedOutcome(req, errAllTiersFailed)
	}
	return fallbackOutcome(req, decodeSrv, resp)
}
