// Package relay fans live-feed events out to downstream websocket
// subscribers, one upstream connection per streamer regardless of the
// subscriber count.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/streamlab/webcast-relay/webcast"
)

// Connector is the per-room upstream supervisor the hub drives. Satisfied by
// *webcast.Connector.
type Connector interface {
	Connect(ctx context.Context, username string) error
	Disconnect(preventReconnect bool)
	Events() <-chan webcast.Event
}

// ConnectorFactory builds a fresh Connector for a room.
type ConnectorFactory func(username string) Connector

type room struct {
	username    string
	connector   Connector
	subscribers map[string]*Client
	done        chan struct{}
	cancel      context.CancelFunc
}

// Hub owns the room table. The first subscriber of a username spawns its
// connector; the last one leaving tears it down.
type Hub struct {
	factory ConnectorFactory
	metrics *Metrics
	logger  *slog.Logger

	mu    sync.Mutex
	rooms map[string]*room
}

func NewHub(factory ConnectorFactory, metrics *Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		factory: factory,
		metrics: metrics,
		logger:  logger,
		rooms:   make(map[string]*room),
	}
}

// Subscribe attaches a client to a username's room, creating the room and
// its upstream connection on first use.
func (h *Hub) Subscribe(username string, c *Client) {
	username = webcast.NormalizeUsername(username)

	h.mu.Lock()
	r, ok := h.rooms[username]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		r = &room{
			username:    username,
			connector:   h.factory(username),
			subscribers: make(map[string]*Client),
			done:        make(chan struct{}),
			cancel:      cancel,
		}
		h.rooms[username] = r
		h.metrics.ActiveRooms.Inc()
		go h.pumpRoom(r)
		go h.connectRoom(ctx, r)
		h.logger.Info("room opened", "username", username)
	}
	r.subscribers[c.ID] = c
	h.mu.Unlock()
}

// connectRoom runs the room's upstream connect sequence. A teardown strands
// an attempt already in flight, but one that had not started yet would still
// bring the upstream connection up for a room that no longer exists, so the
// room table is re-checked once the sequence returns.
func (h *Hub) connectRoom(ctx context.Context, r *room) {
	if err := r.connector.Connect(ctx, r.username); err != nil {
		h.logger.Warn("room connect failed", "username", r.username, "error", err)
	}

	h.mu.Lock()
	gone := h.rooms[r.username] != r
	h.mu.Unlock()
	if gone {
		r.connector.Disconnect(true)
	}
}

// Unsubscribe detaches a client. The room is torn down, upstream included,
// when its last subscriber leaves.
func (h *Hub) Unsubscribe(username, clientID string) {
	username = webcast.NormalizeUsername(username)

	h.mu.Lock()
	r, ok := h.rooms[username]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(r.subscribers, clientID)
	teardown := len(r.subscribers) == 0
	if teardown {
		delete(h.rooms, username)
		close(r.done)
		h.metrics.ActiveRooms.Dec()
	}
	h.mu.Unlock()

	if teardown {
		r.cancel()
		r.connector.Disconnect(true)
		h.logger.Info("room closed", "username", username)
	}
}

// Rooms returns the number of open rooms.
func (h *Hub) Rooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Shutdown tears down every room regardless of subscribers.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	rooms := make([]*room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.rooms = make(map[string]*room)
	h.mu.Unlock()

	for _, r := range rooms {
		close(r.done)
		r.cancel()
		r.connector.Disconnect(true)
		h.metrics.ActiveRooms.Dec()
	}
}

func (h *Hub) pumpRoom(r *room) {
	for {
		select {
		case ev := <-r.connector.Events():
			h.broadcast(r, ev)
		case <-r.done:
			return
		}
	}
}

func (h *Hub) broadcast(r *room, ev webcast.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal event", "event", string(ev.Name), "error", err)
		return
	}

	h.mu.Lock()
	subs := make([]*Client, 0, len(r.subscribers))
	for _, c := range r.subscribers {
		subs = append(subs, c)
	}
	h.mu.Unlock()

	for _, c := range subs {
		if !c.TrySend(payload) {
			h.metrics.MessagesDropped.Inc()
			h.logger.Warn("subscriber lagging, message dropped",
				"username", r.username, "client_id", c.ID, "event", string(ev.Name))
		}
	}
	h.metrics.EventsBroadcast.WithLabelValues(string(ev.Name)).Inc()
}
