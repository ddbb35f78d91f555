// Package mocktesting provides a test double for the upstream webcast feed:
// an httptest websocket server that speaks the real binary envelope protocol
// (protobuf frames, optional gzip, acknowledgements).
package mocktesting

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/streamlab/webcast-relay/webcast/schema"
)

// SubMessage is one sub-message to embed in an outgoing frame. When Binary is
// non-nil it is used verbatim (for corrupt-payload tests); otherwise Fields is
// encoded through the schema registry.
type SubMessage struct {
	Type   string
	Fields map[string]any
	Binary []byte
}

// MockWebcastServer mimics the upstream webcast websocket endpoint.
type MockWebcastServer struct {
	server   *httptest.Server
	upgrader websocket.Upgrader
	registry *schema.Registry

	mu         sync.Mutex
	conns      map[*websocket.Conn]bool
	lastHeader http.Header
	lastQuery  url.Values

	acks  chan uint64
	msgID atomic.Uint64
}

// NewMockWebcastServer starts a mock feed endpoint at /webcast/im/ws/.
func NewMockWebcastServer() *MockWebcastServer {
	m := &MockWebcastServer{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		registry: schema.Default(),
		conns:    make(map[*websocket.Conn]bool),
		acks:     make(chan uint64, 64),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/webcast/im/ws/", m.handleWebSocket)
	m.server = httptest.NewServer(mux)
	return m
}

// URL returns the ws:// feed URL including the query string a captured
// session URL would carry.
func (m *MockWebcastServer) URL() string {
	base := strings.Replace(m.server.URL, "http://", "ws://", 1)
	return base + "/webcast/im/ws/?aid=1988&room_id=7400000000000000000&browser_version=capture"
}

// Acks returns the envelope ids acknowledged by connected clients, in the
// order received.
func (m *MockWebcastServer) Acks() <-chan uint64 { return m.acks }

// LastUpgradeHeader returns the headers of the most recent upgrade request.
func (m *MockWebcastServer) LastUpgradeHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHeader
}

// LastUpgradeQuery returns the query parameters of the most recent upgrade
// request.
func (m *MockWebcastServer) LastUpgradeQuery() url.Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastQuery
}

// ClientCount returns the number of currently connected clients.
func (m *MockWebcastServer) ClientCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// Close tears down all connections and the server.
func (m *MockWebcastServer) Close() {
	m.mu.Lock()
	for conn := range m.conns {
		conn.Close()
	}
	m.conns = make(map[*websocket.Conn]bool)
	m.mu.Unlock()
	m.server.Close()
}

// CloseClients drops every connected client but keeps the server listening,
// simulating an upstream-side disconnect.
func (m *MockWebcastServer) CloseClients() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for conn := range m.conns {
		conn.Close()
	}
	m.conns = make(map[*websocket.Conn]bool)
}

func (m *MockWebcastServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.lastHeader = r.Header.Clone()
	m.lastQuery = r.URL.Query()
	m.mu.Unlock()

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	m.mu.Lock()
	m.conns[conn] = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.conns, conn)
		m.mu.Unlock()
		conn.Close()
	}()

	// The only inbound binary traffic is acknowledgement frames.
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		ack, err := m.registry.Decode(schema.TypeWebsocketAck, data)
		if err != nil {
			continue
		}
		if id, ok := ack["id"].(uint64); ok {
			select {
			case m.acks <- id:
			default:
			}
		}
	}
}

// BuildFrame assembles a complete envelope frame carrying the given
// sub-messages, gzip-compressing the inner container when compress is set.
// An id of 0 marks the frame as not requiring acknowledgement.
func (m *MockWebcastServer) BuildFrame(id uint64, compress bool, msgs ...SubMessage) ([]byte, error) {
	var encoded []any
	for _, sm := range msgs {
		binary := sm.Binary
		if binary == nil {
			enc, err := m.registry.Encode(sm.Type, sm.Fields)
			if err != nil {
				return nil, fmt.Errorf("encode sub-message %s: %w", sm.Type, err)
			}
			binary = enc
		}
		encoded = append(encoded, map[string]any{
			"type":   sm.Type,
			"binary": binary,
		})
	}

	container, err := m.registry.Encode(schema.TypeResponse, map[string]any{
		"messages": encoded,
		"cursor":   fmt.Sprintf("cursor-%d", m.msgID.Add(1)),
	})
	if err != nil {
		return nil, fmt.Errorf("encode response container: %w", err)
	}

	if compress {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(container); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		container = buf.Bytes()
	}

	return m.registry.Encode(schema.TypeWebsocketMessage, map[string]any{
		"id":     id,
		"type":   "msg",
		"binary": container,
	})
}

// SendFrame broadcasts a pre-built binary frame to every connected client.
func (m *MockWebcastServer) SendFrame(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.conns) == 0 {
		return fmt.Errorf("no connected clients")
	}
	for conn := range m.conns {
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			return fmt.Errorf("send frame: %w", err)
		}
	}
	return nil
}

// SendSubMessages builds and broadcasts a frame in one step.
func (m *MockWebcastServer) SendSubMessages(id uint64, compress bool, msgs ...SubMessage) error {
	frame, err := m.BuildFrame(id, compress, msgs...)
	if err != nil {
		return err
	}
	return m.SendFrame(frame)
}

// SendEnvelope broadcasts an envelope of an acknowledgement-only kind, which
// carries no response container.
func (m *MockWebcastServer) SendEnvelope(kind string, id uint64) error {
	frame, err := m.registry.Encode(schema.TypeWebsocketMessage, map[string]any{
		"id":   id,
		"type": kind,
	})
	if err != nil {
		return err
	}
	return m.SendFrame(frame)
}

// SendChat broadcasts a single chat sub-message, the most common frame shape
// on a live feed.
func (m *MockWebcastServer) SendChat(id uint64, compress bool, userID uint64, uniqueID, comment string) error {
	return m.SendSubMessages(id, compress, SubMessage{
		Type: schema.TypeChat,
		Fields: map[string]any{
			"comment": comment,
			"user": map[string]any{
				"userId":   userID,
				"uniqueId": uniqueID,
				"nickname": uniqueID,
			},
		},
	})
}

// SendControl broadcasts a control sub-message with the given action code.
func (m *MockWebcastServer) SendControl(id uint64, action int32) error {
	return m.SendSubMessages(id, false, SubMessage{
		Type:   schema.TypeControl,
		Fields: map[string]any{"action": action},
	})
}
