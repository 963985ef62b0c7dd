package notification

import (
	"sync"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"
)

const clientBuffer = 16

// Publisher pushes realtime events to a user. Delivery is fire-and-forget.
type Publisher interface {
	Publish(user string, event Event)
}

type client struct {
	send chan Event
}

// Hub tracks open websocket connections per user.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) register(user string) *client {
	c := &client{send: make(chan Event, clientBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[user] == nil {
		h.clients[user] = make(map[*client]struct{})
	}
	h.clients[user][c] = struct{}{}
	return c
}

func (h *Hub) unregister(user string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clients[user]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			close(c.send)
		}
		if len(set) == 0 {
			delete(h.clients, user)
		}
	}
}

// Publish never blocks. A client whose buffer is full misses the event.
func (h *Hub) Publish(user string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[user] {
		select {
		case c.send <- event:
		default:
			h.logger.Warn("dropping realtime event for slow client",
				zap.String("user", user), zap.String("event", event.Type))
		}
	}
}

// Connections reports how many sockets user has open.
func (h *Hub) Connections(user string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[user])
}

// Serve pumps events to conn until the peer goes away.
func (h *Hub) Serve(user string, conn *websocket.Conn) {
	c := h.register(user)
	defer h.unregister(user, c)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range c.send {
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("websocket write failed", zap.String("user", user), zap.Error(err))
				return
			}
		}
	}()

	// Inbound frames are ignored; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.unregister(user, c)
	<-done
}
