package events

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub broadcasts trade events to every connected websocket client.
type Hub struct {
	logger    *zap.Logger
	broadcast chan []byte

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	closed  bool
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:    logger,
		broadcast: make(chan []byte, 64),
		clients:   make(map[*websocket.Conn]bool),
	}
}

// Run drains the broadcast channel until ctx is cancelled. Slow or dead
// clients are dropped, never waited on.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
}

func (h *Hub) PublishTrade(_ context.Context, ev TradeEvent) error {
	msg, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- msg:
	default:
		// Buffer full: drop rather than stall the executor.
		h.logger.Warn("hub broadcast buffer full, dropping event",
			zap.String("event_id", ev.ID))
	}
	return nil
}

func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
	return nil
}
