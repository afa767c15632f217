// orchestrator/events.go
// WebSocket hub for real-time dashboard events: request routing, stage
// completions, fallbacks, per-server health transitions, and rolling stats.
// All emitters are nil-safe so the controller works without a hub attached.

package orchestrator

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"splitserve/shared"
)

// EventHub manages WebSocket clients and broadcasts MeshEvents.
type EventHub struct {
	mu      sync.RWMutex
	clients map[*wsClient]bool

	upgrader websocket.Upgrader

	// Counters for dashboard stats
	startTime     time.Time
	totalRequests int64
	disaggregated int64
	fallbacks     int64
	failures      int64
	totalSecsSum  int64 // cumulative total_time in milliseconds
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewEventHub builds an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{
		clients:   make(map[*wsClient]bool),
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		startTime: time.Now(),
	}
}

// Broadcast sends an event to all connected dashboard clients.
func (h *EventHub) Broadcast(event shared.MeshEvent) {
	if h == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			// Client buffer full — drop the message
		}
	}
}

func (h *EventHub) register(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
	logrus.Infof("[WS] Dashboard client connected (%d total)", len(h.clients))
}

func (h *EventHub) unregister(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		client.conn.Close()
		logrus.Infof("[WS] Dashboard client disconnected (%d remaining)", len(h.clients))
	}
}

// ClientCount returns the number of connected dashboard clients.
func (h *EventHub) ClientCount() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ─── WebSocket HTTP handler ───────────────────────────────────────────────────

// HandleWS upgrades an HTTP connection to a WebSocket and starts the pumps.
func (h *EventHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Warnf("[WS] Upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}
	h.register(client)

	// Initial stats snapshot for the new client
	data, _ := json.Marshal(h.statsEvent())
	select {
	case client.send <- data:
	default:
	}

	go client.writePump()
	go client.readPump(h)
}

// ─── Read/Write pumps ─────────────────────────────────────────────────────────

// readPump drains incoming messages (none are expected, but reading is what
// detects disconnects and handles pongs).
func (c *wsClient) readPump(h *EventHub) {
	defer h.unregister(c)
	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// writePump sends messages from the send channel to the WebSocket.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ─── Event emitters ───────────────────────────────────────────────────────────

// EmitStage broadcasts that a request finished a pipeline stage.
func (h *EventHub) EmitStage(req shared.GenerateRequest, stage, serverID string) {
	if h == nil {
		return
	}
	evt := shared.RequestEvent{
		RequestID: req.RequestID,
		Model:     req.Model,
		Stage:     stage,
	}
	switch stage {
	case "prefill":
		evt.PrefillServerID = serverID
	default:
		evt.DecodeServerID = serverID
	}
	h.Broadcast(shared.MeshEvent{
		Type:      "stage_done",
		Timestamp: time.Now().UnixMilli(),
		Data:      evt,
	})
}

// EmitRequestDone broadcasts a finished request and updates the counters.
func (h *EventHub) EmitRequestDone(req shared.GenerateRequest, outcome *shared.RequestOutcome) {
	if h == nil {
		return
	}
	atomic.AddInt64(&h.totalRequests, 1)
	switch outcome.Method {
	case shared.MethodDisaggregated:
		atomic.AddInt64(&h.disaggregated, 1)
	case shared.MethodFallback:
		atomic.AddInt64(&h.fallbacks, 1)
	case shared.MethodFailed:
		atomic.AddInt64(&h.failures, 1)
	}
	atomic.AddInt64(&h.totalSecsSum, int64(outcome.TotalTime*1000))

	h.Broadcast(shared.MeshEvent{
		Type:      "request_done",
		Timestamp: time.Now().UnixMilli(),
		Data: shared.RequestEvent{
			RequestID:       outcome.RequestID,
			Model:           req.Model,
			Method:          outcome.Method,
			PrefillServerID: outcome.PrefillServerID,
			DecodeServerID:  outcome.DecodeServerID,
			TotalTime:       outcome.TotalTime,
			TokensPerSec:    outcome.TokensPerSec,
			Error:           outcome.Error,
		},
	})
}

// EmitServerHealth broadcasts one server's probe result.
func (h *EventHub) EmitServerHealth(srv shared.ServerDescriptor, st shared.HealthStatus) {
	if h == nil {
		return
	}
	h.Broadcast(shared.MeshEvent{
		Type:      "server_health",
		Timestamp: time.Now().UnixMilli(),
		Data: shared.ServerEvent{
			ServerID:  srv.ID,
			ModelType: srv.ModelType,
			Role:      srv.Role,
			Healthy:   st.Healthy,
			Error:     st.Error,
		},
	})
}

func (h *EventHub) statsEvent() shared.MeshEvent {
	completed := atomic.LoadInt64(&h.totalRequests) - atomic.LoadInt64(&h.failures)
	avg := float64(0)
	if completed > 0 {
		avg = float64(atomic.LoadInt64(&h.totalSecsSum)) / 1000 / float64(completed)
	}
	return shared.MeshEvent{
		Type:      "stats",
		Timestamp: time.Now().UnixMilli(),
		Data: shared.DashboardStats{
			TotalRequests:   atomic.LoadInt64(&h.totalRequests),
			Disaggregated:   atomic.LoadInt64(&h.disaggregated),
			Fallbacks:       atomic.LoadInt64(&h.fallbacks),
			Failures:        atomic.LoadInt64(&h.failures),
			AvgTotalSeconds: avg,
			UptimeSecs:      int64(time.Since(h.startTime).Seconds()),
		},
	}
}

// StartStatsBroadcast pushes stats every 3 seconds while clients are connected.
// Stops when the context is cancelled.
func (h *EventHub) StartStatsBroadcast(done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(3 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if h.ClientCount() > 0 {
					h.Broadcast(h.statsEvent())
				}
			}
		}
	}()
}
