package hub

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Connection is one participant's socket as the hub sees it.
type Connection interface {
	ID() string
	Room() string
	Send(data []byte) error
	Close() error
}

type room struct {
	clients map[string]Connection
	mu      sync.RWMutex
}

// Hub fans operations out to every participant of a room except the
// sender. Rooms are keyed by the artifact triple (domain/project/file).
// With redis configured, broadcasts also cross server instances through
// pub/sub.
type Hub struct {
	rooms map[string]*room
	mu    sync.RWMutex

	bridge *Bridge
	log    *logrus.Entry
}

func New() *Hub {
	return &Hub{
		rooms: make(map[string]*room),
		log:   logrus.WithField("component", "hub"),
	}
}

// AttachBridge wires cross-instance fan-out through redis pub/sub. Nil
// client leaves the hub single-instance.
func (h *Hub) AttachBridge(client *redis.Client) {
	if client == nil {
		return
	}
	h.bridge = newBridge(client, h)
}

func (h *Hub) Register(conn Connection) {
	h.mu.Lock()
	r, exists := h.rooms[conn.Room()]
	if !exists {
		r = &room{clients: make(map[string]Connection)}
		h.rooms[conn.Room()] = r
	}
	h.mu.Unlock()

	r.mu.Lock()
	r.clients[conn.ID()] = conn
	count := len(r.clients)
	r.mu.Unlock()

	if h.bridge != nil && count == 1 {
		h.bridge.subscribe(conn.Room())
	}

	h.log.Infof("client %s joined room %s (%d active)", conn.ID(), conn.Room(), count)
}

func (h *Hub) Unregister(conn Connection) {
	h.mu.RLock()
	r, exists := h.rooms[conn.Room()]
	h.mu.RUnlock()

	if !exists {
		return
	}

	r.mu.Lock()
	delete(r.clients, conn.ID())
	count := len(r.clients)
	r.mu.Unlock()

	h.log.Infof("client %s left room %s (%d active)", conn.ID(), conn.Room(), count)

	if count == 0 {
		h.mu.Lock()
		delete(h.rooms, conn.Room())
		h.mu.Unlock()
		if h.bridge != nil {
			h.bridge.unsubscribe(conn.Room())
		}
	}
}

// Broadcast relays data to every room member except the sender and, when
// bridged, publishes it for other server instances.
func (h *Hub) Broadcast(sender Connection, data []byte) {
	h.deliver(sender.Room(), sender.ID(), data)
	if h.bridge != nil {
		h.bridge.publish(context.Background(), sender.Room(), sender.ID(), data)
	}
}

// deliver fans data out locally, skipping the excluded client ID.
func (h *Hub) deliver(roomKey, excludeID string, data []byte) {
	h.mu.RLock()
	r, exists := h.rooms[roomKey]
	h.mu.RUnlock()

	if !exists {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, conn := range r.clients {
		if id == excludeID {
			continue
		}
		if err := conn.Send(data); err != nil {
			go func(c Connection) {
				h.Unregister(c)
			}(conn)
		}
	}
}

// Stats returns the active room and client counts.
func (h *Hub) Stats() (rooms, clients int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms = len(h.rooms)
	for _, r := range h.rooms {
		r.mu.RLock()
		clients += len(r.clients)
		r.mu.RUnlock()
	}
	return rooms, clients
}
