package webcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Room status codes as reported by the room API.
const (
	RoomStatusLive    = 2
	RoomStatusOffline = 4
)

const (
	defaultRoomBaseURL    = "https://www.tiktok.com"
	defaultWebcastBaseURL = "https://webcast.tiktok.com"
)

// RoomInfo is the subset of the room API response the connector cares about.
type RoomInfo struct {
	RoomID string
	Status int
}

// Live reports whether the room is currently broadcasting.
func (r *RoomInfo) Live() bool { return r.Status == RoomStatusLive }

// Gift describes one entry of the room gift catalogue, used to enrich gift
// events with names and diamond values.
type Gift struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	DiamondCount int    `json:"diamond_count"`
	ImageURL     string `json:"image_url,omitempty"`
}

// RoomInfoClient talks to the public room endpoints. It is optional: the
// connector works without it, skipping the liveness pre-check.
type RoomInfoClient struct {
	// BaseURL serves the room lookup; WebcastURL serves the gift list.
	// Both default to the production hosts when empty.
	BaseURL    string
	WebcastURL string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewRoomInfoClient(logger *slog.Logger) *RoomInfoClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoomInfoClient{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     logger,
	}
}

// FetchRoomInfo resolves a username to its room id and live status.
func (c *RoomInfoClient) FetchRoomInfo(ctx context.Context, username string) (*RoomInfo, error) {
	base := c.BaseURL
	if base == "" {
		base = defaultRoomBaseURL
	}
	u := fmt.Sprintf("%s/api-live/user/room/?aid=1988&sourceType=54&uniqueId=%s", base, url.QueryEscape(username))

	var body struct {
		Data struct {
			User struct {
				RoomID string `json:"roomId"`
				Status int    `json:"status"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, u, &body); err != nil {
		return nil, fmt.Errorf("fetch room info for %s: %w", username, err)
	}
	info := &RoomInfo{RoomID: body.Data.User.RoomID, Status: body.Data.User.Status}
	c.Logger.Debug("room info fetched", "username", username, "room_id", info.RoomID, "status", info.Status)
	return info, nil
}

// FetchGiftList returns the gift catalogue of a room. Gifts may appear both
// in the flat list and inside pages; duplicates are collapsed by id.
func (c *RoomInfoClient) FetchGiftList(ctx context.Context, roomID string) ([]Gift, error) {
	base := c.WebcastURL
	if base == "" {
		base = defaultWebcastBaseURL
	}
	u := fmt.Sprintf("%s/webcast/gift/list/?aid=1988&app_language=en-US&room_id=%s", base, url.QueryEscape(roomID))

	var body struct {
		Data struct {
			Gifts []giftEntry `json:"gifts"`
			Pages []struct {
				Gifts []giftEntry `json:"gifts"`
			} `json:"pages"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, u, &body); err != nil {
		return nil, fmt.Errorf("fetch gift list for room %s: %w", roomID, err)
	}

	seen := make(map[int64]bool)
	var gifts []Gift
	add := func(e giftEntry) {
		if e.ID == 0 || seen[e.ID] {
			return
		}
		seen[e.ID] = true
		g := Gift{ID: e.ID, Name: e.Name, DiamondCount: e.DiamondCount}
		if len(e.Image.URLList) > 0 {
			g.ImageURL = e.Image.URLList[0]
		}
		gifts = append(gifts, g)
	}
	for _, e := range body.Data.Gifts {
		add(e)
	}
	for _, p := range body.Data.Pages {
		for _, e := range p.Gifts {
			add(e)
		}
	}
	return gifts, nil
}

type giftEntry struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	DiamondCount int    `json:"diamond_count"`
	Image        struct {
		URLList []string `json:"url_list"`
	} `json:"image"`
}

func (c *RoomInfoClient) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:128.0) Gecko/20100101 Firefox/128.0")
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
