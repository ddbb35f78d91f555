package webcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/streamlab/webcast-relay/webcast/websocket"
)

// ErrNotLive reports that the requested user has no running broadcast.
var ErrNotLive = errors.New("webcast: user is not live")

// Session is the credential bundle needed to open one live socket: the
// signed socket URL and the cookies that authenticate the upgrade.
type Session struct {
	SocketURL string             `json:"socketUrl"`
	RoomID    string             `json:"roomId,omitempty"`
	Cookies   []websocket.Cookie `json:"cookies"`
}

// SessionProvider acquires a fresh Session for a username. Every reconnect
// attempt goes through the provider again; sessions are single-use.
type SessionProvider interface {
	FetchSession(ctx context.Context, username string) (*Session, error)
}

// SessionProviderFunc adapts a function to the SessionProvider interface.
type SessionProviderFunc func(ctx context.Context, username string) (*Session, error)

func (f SessionProviderFunc) FetchSession(ctx context.Context, username string) (*Session, error) {
	return f(ctx, username)
}

// HTTPSessionProvider fetches sessions from an external signing service.
// The service answers GET {BaseURL}/session?uniqueId=<username> with a
// Session JSON body, or 404 when the user is not live.
type HTTPSessionProvider struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewHTTPSessionProvider(baseURL string, logger *slog.Logger) *HTTPSessionProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSessionProvider{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     logger,
	}
}

func (p *HTTPSessionProvider) FetchSession(ctx context.Context, username string) (*Session, error) {
	u := fmt.Sprintf("%s/session?uniqueId=%s", p.BaseURL, url.QueryEscape(username))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build session request: %w", err)
	}
	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch session: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotLive, username)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("session service returned %d: %s", resp.StatusCode, body)
	}

	var sess Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return nil, fmt.Errorf("decode session response: %w", err)
	}
	if sess.SocketURL == "" {
		return nil, errors.New("session response missing socket url")
	}
	p.Logger.Debug("session acquired", "username", username, "room_id", sess.RoomID)
	return &sess, nil
}
