package socket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"example.com/jonoshongjog/services/relief/internal/notify"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// PongWait is how long a connection may stay silent before it is dropped
	PongWait   = 60 * time.Second
	writeWait  = 10 * time.Second
	pingPeriod = PongWait * 9 / 10
)

// conn serializes writes; gorilla allows one concurrent writer per connection
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(messageType, data)
}

// Hub tracks the open websocket connections of each user
type Hub struct {
	clients map[uuid.UUID]map[*conn]struct{}
	mu      sync.RWMutex
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{clients: make(map[uuid.UUID]map[*conn]struct{})}
}

func (h *Hub) register(userID uuid.UUID, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*conn]struct{})
	}
	h.clients[userID][c] = struct{}{}
	log.Debug().Str("user_id", userID.String()).Msg("WebSocket client registered")
}

func (h *Hub) unregister(userID uuid.UUID, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.clients, userID)
		}
		log.Debug().Str("user_id", userID.String()).Msg("WebSocket client unregistered")
	}
}

// Connections returns the number of open connections of a user
func (h *Hub) Connections(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Serve registers the connection and blocks until the client goes away
func (h *Hub) Serve(ctx context.Context, userID uuid.UUID, ws *websocket.Conn) {
	c := &conn{ws: ws}
	h.register(userID, c)
	defer func() {
		h.unregister(userID, c)
		ws.Close()
	}()

	_ = ws.SetReadDeadline(time.Now().Add(PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(PongWait))
	})
	ws.SetPingHandler(func(data string) error {
		_ = ws.SetReadDeadline(time.Now().Add(PongWait))
		return c.write(websocket.PongMessage, []byte(data))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = ws.Close()
				return
			case <-ticker.C:
				if err := c.write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Clients only listen; reading keeps control frames flowing
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("user_id", userID.String()).Msg("Unexpected websocket close")
			}
			return
		}
	}
}

// Send writes a message to every connection of a user; an offline user is not an error
func (h *Hub) Send(userID uuid.UUID, message []byte) error {
	h.mu.RLock()
	conns := make([]*conn, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	var failed int
	for _, c := range conns {
		if err := c.write(websocket.TextMessage, message); err != nil {
			failed++
			log.Warn().Err(err).Str("user_id", userID.String()).Msg("WebSocket write failed")
		}
	}
	if failed > 0 && failed == len(conns) {
		return errors.Errorf("websocket send to %s failed on all %d connections", userID, failed)
	}
	return nil
}

// Notify implements notify.Notifier by pushing the event to each recipient
func (h *Hub) Notify(_ context.Context, event notify.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}
	var firstErr error
	for _, userID := range event.Recipients {
		if err := h.Send(userID, data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
