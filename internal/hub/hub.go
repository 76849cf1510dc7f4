// internal/hub/hub.go
//
// The hub keeps the set of live client connections per tenant and fans state
// change events out to them. The registry is plain process-local state owned
// by whoever constructs the hub; there is no package-level connection map.
package hub

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/unclebandit/courier-backend/internal/model"
)

// CloseUnauthorized is sent before dropping a connection that failed the
// handshake.
const CloseUnauthorized = 4401

type Hub struct {
	auth       TokenVerifier
	log        zerolog.Logger
	heartbeat  time.Duration
	sendBuffer int
	upgrader   websocket.Upgrader

	mu      sync.RWMutex
	tenants map[int]map[string]*Conn
}

func New(auth TokenVerifier, log zerolog.Logger, heartbeat time.Duration, sendBuffer int) *Hub {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Hub{
		auth:       auth,
		log:        log.With().Str("component", "hub").Logger(),
		heartbeat:  heartbeat,
		sendBuffer: sendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Operator dashboards connect from their own origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		tenants: make(map[int]map[string]*Conn),
	}
}

// ServeWS upgrades the request and runs the handshake: tenantId and token
// arrive as query parameters. A connection that fails verification is closed
// with a reason code and never registered.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	tenantID, err := strconv.Atoi(r.URL.Query().Get("tenantId"))
	token := r.URL.Query().Get("token")

	ws, upgradeErr := h.upgrader.Upgrade(w, r, nil)
	if upgradeErr != nil {
		// Upgrade already wrote the HTTP error.
		return
	}

	if err != nil || token == "" {
		h.reject(ws, "missing tenantId or token")
		return
	}

	userID, authErr := h.auth.Verify(token, tenantID)
	if authErr != nil {
		h.log.Warn().Err(authErr).Int("tenant_id", tenantID).Msg("handshake rejected")
		h.reject(ws, "unauthorized")
		return
	}

	conn := &Conn{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		UserID:   userID,
		ws:       ws,
		send:     make(chan model.Event, h.sendBuffer),
		done:     make(chan struct{}),
	}
	conn.markAlive()

	h.register(conn)

	conn.enqueue(model.NewEvent(model.EventConnected, map[string]any{
		"connectionId": conn.ID,
		"tenantId":     tenantID,
	}))

	go conn.writePump(h)
	go conn.readPump(h)

	h.log.Info().Str("connection_id", conn.ID).Int("tenant_id", tenantID).
		Str("user_id", userID).Msg("connection registered")
}

func (h *Hub) reject(ws *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(CloseUnauthorized, reason)
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = ws.Close()
}

func (h *Hub) register(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.tenants[c.TenantID]
	if !ok {
		conns = make(map[string]*Conn)
		h.tenants[c.TenantID] = conns
	}
	conns[c.ID] = c
}

// evict closes the connection and removes it from the registry. An empty
// tenant bucket is removed with it so the map stays bounded by live tenants.
func (h *Hub) evict(c *Conn, code int, reason string) {
	c.close(code, reason)

	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.tenants[c.TenantID]
	if !ok {
		return
	}
	if _, ok := conns[c.ID]; !ok {
		return
	}
	delete(conns, c.ID)
	if len(conns) == 0 {
		delete(h.tenants, c.TenantID)
	}
	h.log.Info().Str("connection_id", c.ID).Int("tenant_id", c.TenantID).
		Str("reason", reason).Msg("connection deregistered")
}

// Push fans an event out to every live connection of one tenant, skipping
// any excluded connection ids. Delivery is best effort: a connection whose
// buffer is full gets dropped, the others are unaffected.
func (h *Hub) Push(tenantID int, event model.Event, excludeConnectionID ...string) {
	excluded := map[string]struct{}{}
	for _, id := range excludeConnectionID {
		excluded[id] = struct{}{}
	}

	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.tenants[tenantID]))
	for _, c := range h.tenants[tenantID] {
		if _, skip := excluded[c.ID]; !skip {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(event) {
			h.log.Warn().Str("connection_id", c.ID).Int("tenant_id", tenantID).
				Msg("outbound buffer full, dropping connection")
			h.evict(c, websocket.ClosePolicyViolation, "client too slow")
		}
	}
}

// Run drives the heartbeat until the context is cancelled. Each sweep
// closes every connection that failed to answer the previous ping, then
// marks the survivors tentatively dead and pings them again. A silent
// client is gone within two intervals.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			h.sweep()
		}
	}
}

func (h *Hub) sweep() {
	h.mu.RLock()
	conns := []*Conn{}
	for _, bucket := range h.tenants {
		for _, c := range bucket {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if !c.alive.Load() {
			h.evict(c, websocket.CloseGoingAway, "heartbeat timeout")
			continue
		}
		c.alive.Store(false)
		deadline := time.Now().Add(writeWait)
		if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			h.evict(c, websocket.CloseAbnormalClosure, "ping failed")
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	conns := []*Conn{}
	for _, bucket := range h.tenants {
		for _, c := range bucket {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range conns {
		h.evict(c, websocket.CloseGoingAway, "server shutting down")
	}
}

// ConnectionCount reports how many live connections a tenant has.
func (h *Hub) ConnectionCount(tenantID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tenants[tenantID])
}

// ListTenants returns the ids of tenants with at least one live connection.
func (h *Hub) ListTenants() []int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]int, 0, len(h.tenants))
	for id := range h.tenants {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
