package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the downstream HTTP surface: the subscriber websocket, health,
// and metrics.
type Server struct {
	hub      *Hub
	metrics  *Metrics
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, metrics *Metrics, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		hub:      hub,
		metrics:  metrics,
		gatherer: gatherer,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// downstream consumers connect from anywhere
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/ws", s.handleWS)
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"rooms":  s.hub.Rooms(),
	})
}

// clientCommand is the subscriber protocol: one JSON object per text frame.
type clientCommand struct {
	Action   string `json:"action"`
	Username string `json:"username"`
}

type serverNotice struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(conn, s.logger)
	s.metrics.ConnectedClients.Inc()
	s.logger.Info("client connected", "client_id", client.ID, "remote", r.RemoteAddr)
	go client.WritePump()

	subscribed := make(map[string]bool)
	defer func() {
		for username := range subscribed {
			s.hub.Unsubscribe(username, client.ID)
		}
		client.Close()
		s.metrics.ConnectedClients.Dec()
		s.logger.Info("client disconnected", "client_id", client.ID)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd clientCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			s.notify(client, "error", map[string]any{"message": "invalid command"})
			continue
		}
		s.handleCommand(client, subscribed, cmd)
	}
}

func (s *Server) handleCommand(client *Client, subscribed map[string]bool, cmd clientCommand) {
	username := cmd.Username
	if username == "" {
		s.notify(client, "error", map[string]any{"message": "username required"})
		return
	}
	switch cmd.Action {
	case "subscribe":
		s.hub.Subscribe(username, client)
		subscribed[username] = true
		s.notify(client, "subscribed", map[string]any{"username": username})
	case "unsubscribe":
		s.hub.Unsubscribe(username, client.ID)
		delete(subscribed, username)
		s.notify(client, "unsubscribed", map[string]any{"username": username})
	default:
		s.notify(client, "error", map[string]any{"message": "unknown action " + cmd.Action})
	}
}

func (s *Server) notify(client *Client, event string, data map[string]any) {
	payload, err := json.Marshal(serverNotice{Event: event, Data: data})
	if err != nil {
		return
	}
	client.TrySend(payload)
}
