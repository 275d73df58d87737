package main

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// TelemetryWebSocketHandler manages WebSocket connections for live
// telemetry. Each tick's frame is broadcast to every connected client;
// a newly connected client gets the latest frame immediately so it does
// not wait out a quiet pipeline.
type TelemetryWebSocketHandler struct {
	monitor *Monitor

	clients   map[*websocket.Conn]*sync.Mutex // Each connection has its own write mutex
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader
}

// NewTelemetryWebSocketHandler creates the handler. The caller wires it
// to the pipeline's frame callback.
func NewTelemetryWebSocketHandler(monitor *Monitor) *TelemetryWebSocketHandler {
	return &TelemetryWebSocketHandler{
		monitor: monitor,
		clients: make(map[*websocket.Conn]*sync.Mutex),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // Local-network tool, no origin policy
			},
		},
	}
}

// HandleWebSocket upgrades the connection and parks it in the client set
func (h *TelemetryWebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket: Upgrade failed from %s: %v", r.RemoteAddr, err)
		return
	}

	clientID := uuid.NewString()[:8]

	h.clientsMu.Lock()
	h.clients[conn] = &sync.Mutex{}
	clientCount := len(h.clients)
	h.clientsMu.Unlock()

	log.Printf("WebSocket: Client %s connected from %s (%d total)", clientID, r.RemoteAddr, clientCount)

	// Seed the new client with the current state
	if frame := h.monitor.LatestFrame(); frame.Type != "" {
		h.send(conn, frame)
	}

	go h.readLoop(conn, clientID)
}

// readLoop drains (and discards) client messages until the connection
// closes; the protocol is push-only
func (h *TelemetryWebSocketHandler) readLoop(conn *websocket.Conn, clientID string) {
	defer func() {
		h.clientsMu.Lock()
		delete(h.clients, conn)
		clientCount := len(h.clients)
		h.clientsMu.Unlock()
		conn.Close()
		log.Printf("WebSocket: Client %s disconnected (%d remaining)", clientID, clientCount)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast sends a telemetry frame to all connected clients. Failed
// writes drop the client.
func (h *TelemetryWebSocketHandler) Broadcast(frame TelemetryFrame) {
	h.clientsMu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn, mu := range h.clients {
		conns = append(conns, conn)
		mutexes = append(mutexes, mu)
	}
	h.clientsMu.RUnlock()

	var failed []*websocket.Conn
	for i, conn := range conns {
		mutexes[i].Lock()
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		err := conn.WriteJSON(frame)
		mutexes[i].Unlock()
		if err != nil {
			failed = append(failed, conn)
		}
	}

	if len(failed) > 0 {
		h.clientsMu.Lock()
		for _, conn := range failed {
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
		}
		h.clientsMu.Unlock()
	}
}

// send writes one frame to a single client under its write mutex
func (h *TelemetryWebSocketHandler) send(conn *websocket.Conn, frame TelemetryFrame) {
	h.clientsMu.RLock()
	mu, ok := h.clients[conn]
	h.clientsMu.RUnlock()
	if !ok {
		return
	}

	mu.Lock()
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	err := conn.WriteJSON(frame)
	mu.Unlock()
	if err != nil {
		h.clientsMu.Lock()
		delete(h.clients, conn)
		h.clientsMu.Unlock()
		conn.Close()
	}
}

// ClientCount returns the number of connected telemetry clients
func (h *TelemetryWebSocketHandler) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}
