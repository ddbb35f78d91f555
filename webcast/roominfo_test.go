package webcast

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRoomInfoClient_FetchRoomInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api-live/user/room/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("uniqueId") != "livehost" || q.Get("aid") != "1988" {
			t.Errorf("query = %v", q)
		}
		w.Write([]byte(`{"data": {"user": {"roomId": "7400000000000000000", "status": 2}}}`))
	}))
	defer srv.Close()

	c := NewRoomInfoClient(slog.Default())
	c.BaseURL = srv.URL

	info, err := c.FetchRoomInfo(context.Background(), "livehost")
	if err != nil {
		t.Fatalf("FetchRoomInfo: %v", err)
	}
	if !info.Live() || info.RoomID != "7400000000000000000" {
		t.Errorf("info = %+v", info)
	}
}

func TestRoomInfoClient_OfflineRoom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {"user": {"roomId": "", "status": 4}}}`))
	}))
	defer srv.Close()

	c := NewRoomInfoClient(slog.Default())
	c.BaseURL = srv.URL

	info, err := c.FetchRoomInfo(context.Background(), "sleeper")
	if err != nil {
		t.Fatalf("FetchRoomInfo: %v", err)
	}
	if info.Live() {
		t.Error("status 4 must not report live")
	}
}

func TestRoomInfoClient_FetchGiftListDeduplicates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/webcast/gift/list/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"data": {
			"gifts": [
				{"id": 5655, "name": "Rose", "diamond_count": 1, "image": {"url_list": ["https://cdn.example/rose.png"]}},
				{"id": 5827, "name": "Finger Heart", "diamond_count": 5}
			],
			"pages": [
				{"gifts": [
					{"id": 5655, "name": "Rose", "diamond_count": 1},
					{"id": 6064, "name": "Galaxy", "diamond_count": 1000}
				]}
			]
		}}`))
	}))
	defer srv.Close()

	c := NewRoomInfoClient(slog.Default())
	c.WebcastURL = srv.URL

	gifts, err := c.FetchGiftList(context.Background(), "7400000000000000000")
	if err != nil {
		t.Fatalf("FetchGiftList: %v", err)
	}
	if len(gifts) != 3 {
		t.Fatalf("got %d gifts, want 3 after dedupe: %+v", len(gifts), gifts)
	}
	if gifts[0].Name != "Rose" || gifts[0].ImageURL != "https://cdn.example/rose.png" {
		t.Errorf("first gift = %+v", gifts[0])
	}
}

func TestRoomInfoClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewRoomInfoClient(slog.Default())
	c.BaseURL = srv.URL

	if _, err := c.FetchRoomInfo(context.Background(), "anyone"); err == nil {
		t.Fatal("non-200 response should surface as an error")
	}
}
