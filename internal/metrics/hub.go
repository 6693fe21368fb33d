package metrics

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub broadcasts periodic Snapshot updates to every connected dashboard
// client. Unlike the per-ride room pattern it's generalized from, there is
// only one room: metrics are global, not scoped to a single ride.
type Hub struct {
	mu    sync.RWMutex
	conns map[*websocket.Conn]struct{}

	register   chan *websocket.Conn
	unregister chan *websocket.Conn
}

// NewHub builds a Hub. Call Run in its own goroutine before serving connections.
func NewHub() *Hub {
	return &Hub{
		conns:      make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Run processes registrations until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.conns {
				conn.Close()
			}
			h.conns = make(map[*websocket.Conn]struct{})
			h.mu.Unlock()
			return
		case conn := <-h.register:
			h.mu.Lock()
			h.conns[conn] = struct{}{}
			h.mu.Unlock()
		case conn := <-h.unregister:
			h.mu.Lock()
			delete(h.conns, conn)
			h.mu.Unlock()
			conn.Close()
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and registers the resulting connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("metrics: ws upgrade failed: %v", err)
		return
	}
	h.register <- conn

	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				h.unregister <- conn
				return
			}
		}
	}()
}

// Broadcast pushes snap to every connected client, dropping any that error.
func (h *Hub) Broadcast(snap Snapshot) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(snap); err != nil {
			h.unregister <- conn
		}
	}
}

// RunTicker periodically computes a Snapshot (aggregator + throughput) and
// broadcasts it until ctx is cancelled.
func RunTicker(ctx context.Context, hub *Hub, aggregator *Aggregator, throughput *Throughput, gauges *Gauges, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := aggregator.Snapshot(ctx)
			if err != nil {
				log.Printf("metrics: snapshot failed: %v", err)
				continue
			}
			ridesPerMinute, err := throughput.Sample(ctx)
			if err != nil {
				log.Printf("metrics: throughput sample failed: %v", err)
			} else {
				snap.RidesPerMinute = ridesPerMinute
			}
			if delay, ok := ConsistencyDelayMS(ctx); ok {
				snap.ConsistencyDelay = &delay
			}
			if gauges != nil {
				gauges.Observe(snap, snap.RidesPerMinute)
			}
			hub.Broadcast(snap)
		}
	}
}
