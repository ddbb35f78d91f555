package relay

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/streamlab/webcast-relay/webcast"
)

func newTestServer(t *testing.T) (*httptest.Server, *fakeConnector) {
	t.Helper()
	fake := newFakeConnector()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	hub := NewHub(func(username string) Connector { return fake }, metrics, slog.Default())
	srv := httptest.NewServer(NewServer(hub, metrics, reg, slog.Default()).Handler())
	t.Cleanup(srv.Close)
	return srv, fake
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("frame is not JSON: %v (%s)", err, data)
	}
	return out
}

func TestServer_SubscribeAndReceive(t *testing.T) {
	srv, fake := newTestServer(t)
	conn := dialWS(t, srv)

	if err := conn.WriteJSON(clientCommand{Action: "subscribe", Username: "livehost"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	frame := readFrame(t, conn)
	if frame["event"] != "subscribed" {
		t.Fatalf("frame = %v, want subscribed ack", frame)
	}

	waitConnects(t, fake, 1)
	fake.events <- webcast.Event{
		Username: "livehost",
		Name:     webcast.EventGift,
		Payload:  map[string]any{"giftName": "Rose", "diamondCount": float64(1)},
	}

	frame = readFrame(t, conn)
	if frame["event"] != "gift" || frame["username"] != "livehost" {
		t.Errorf("frame = %v", frame)
	}
	data, _ := frame["data"].(map[string]any)
	if data["giftName"] != "Rose" {
		t.Errorf("data = %v", data)
	}
}

func TestServer_UnsubscribeStopsDelivery(t *testing.T) {
	srv, fake := newTestServer(t)
	conn := dialWS(t, srv)

	conn.WriteJSON(clientCommand{Action: "subscribe", Username: "livehost"})
	readFrame(t, conn) // subscribed
	waitConnects(t, fake, 1)

	conn.WriteJSON(clientCommand{Action: "unsubscribe", Username: "livehost"})
	frame := readFrame(t, conn)
	if frame["event"] != "unsubscribed" {
		t.Fatalf("frame = %v", frame)
	}
	if got := fake.disconnects.Load(); got != 1 {
		t.Errorf("disconnects = %d, last unsubscribe must tear the room down", got)
	}
}

func TestServer_DisconnectCleansUpSubscriptions(t *testing.T) {
	srv, fake := newTestServer(t)
	conn := dialWS(t, srv)

	conn.WriteJSON(clientCommand{Action: "subscribe", Username: "livehost"})
	readFrame(t, conn)
	waitConnects(t, fake, 1)

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for fake.disconnects.Load() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("room not torn down after the client dropped")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServer_RejectsBadCommands(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dialWS(t, srv)

	conn.WriteMessage(websocket.TextMessage, []byte("not json"))
	frame := readFrame(t, conn)
	if frame["event"] != "error" {
		t.Errorf("frame = %v, want an error notice", frame)
	}

	conn.WriteJSON(clientCommand{Action: "subscribe"})
	frame = readFrame(t, conn)
	if frame["event"] != "error" {
		t.Errorf("frame = %v, subscribe without username must fail", frame)
	}

	conn.WriteJSON(clientCommand{Action: "dance", Username: "livehost"})
	frame = readFrame(t, conn)
	if frame["event"] != "error" {
		t.Errorf("frame = %v, unknown action must fail", frame)
	}
}

func TestServer_Healthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dialWS(t, srv)
	conn.WriteJSON(clientCommand{Action: "subscribe", Username: "livehost"})
	readFrame(t, conn)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "webcast_relay_active_rooms 1") {
		t.Errorf("metrics output missing active rooms gauge:\n%s", body)
	}
}
