package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the relay's Prometheus instruments. Construct with a
// dedicated registry so tests stay isolated.
type Metrics struct {
	EventsBroadcast  *prometheus.CounterVec
	MessagesDropped  prometheus.Counter
	ActiveRooms      prometheus.Gauge
	ConnectedClients prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsBroadcast: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webcast_relay",
			Name:      "events_broadcast_total",
			Help:      "Events fanned out to subscribers, by event name.",
		}, []string{"event"}),
		MessagesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "webcast_relay",
			Name:      "messages_dropped_total",
			Help:      "Messages dropped because a subscriber could not keep up.",
		}),
		ActiveRooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "webcast_relay",
			Name:      "active_rooms",
			Help:      "Rooms with at least one subscriber.",
		}),
		ConnectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "webcast_relay",
			Name:      "connected_clients",
			Help:      "Downstream websocket clients currently connected.",
		}),
	}
}
