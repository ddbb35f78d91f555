// Package websocket owns the physical connection to the upstream webcast
// feed: dialing with the browser-shaped handshake the feed expects, keep-alive
// pings, frame decode and acknowledgement. It never reconnects on its own;
// lifecycle policy belongs to the connection supervisor.
package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Cookie is one upstream session cookie, as handed over by the session
// acquisition collaborator.
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// sessionCookieNames is the allow-list of cookies the upstream handshake
// needs. Everything else the capture step collected stays off the wire.
var sessionCookieNames = map[string]bool{
	"ttwid":          true,
	"tt_chain_token": true,
	"odin_tt":        true,
	"sid_guard":      true,
	"uid_tt":         true,
	"bm_sv":          true,
	"msToken":        true,
}

const (
	originURL               = "https://www.tiktok.com"
	userAgent               = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:128.0) Gecko/20100101 Firefox/128.0"
	canonicalBrowserVersion = "5.0 (Windows)"

	defaultPingInterval     = 10 * time.Second
	defaultHandshakeTimeout = 30 * time.Second
	controlWriteTimeout     = 5 * time.Second
)

// ConnectError reports a rejected or failed websocket upgrade.
type ConnectError struct {
	URL        string
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *ConnectError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("webcast: upgrade rejected with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("webcast: dial failed: %v", e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Options configures a Dial.
type Options struct {
	Codec            *FrameCodec
	Logger           *slog.Logger
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
	// Header carries extra headers merged over the default browser set.
	Header http.Header
}

// Client is one physical socket to the upstream feed. Decoded responses are
// delivered in arrival order on Responses(), which is closed when the read
// loop exits; Err reports why.
type Client struct {
	conn         *websocket.Conn
	codec        *FrameCodec
	logger       *slog.Logger
	pingInterval time.Duration

	responses chan *Response
	done      chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once

	stateMu sync.Mutex
	err     error
	closed  bool
}

// Dial opens a connection to the feed URL, filtering cookies through the
// allow-list and forcing the browser_version query parameter to its canonical
// value. The websocket library generates a fresh random Sec-WebSocket-Key per
// attempt. A rejected upgrade returns a *ConnectError.
func Dial(ctx context.Context, rawURL string, cookies []Cookie, opts Options) (*Client, error) {
	codec := opts.Codec
	if codec == nil {
		codec = NewFrameCodec(nil, opts.Logger)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pingInterval := opts.PingInterval
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	handshakeTimeout := opts.HandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = defaultHandshakeTimeout
	}

	wsURL, err := normalizeURL(rawURL)
	if err != nil {
		return nil, &ConnectError{URL: rawURL, Err: err}
	}

	header := http.Header{}
	header.Set("User-Agent", userAgent)
	header.Set("Accept", "*/*")
	header.Set("Accept-Language", "en-US,en;q=0.9")
	header.Set("Cache-Control", "no-cache")
	header.Set("Pragma", "no-cache")
	header.Set("Origin", originURL)
	header.Set("Sec-Fetch-Dest", "empty")
	header.Set("Sec-Fetch-Mode", "websocket")
	header.Set("Sec-Fetch-Site", "same-site")
	if cookieHeader := formatCookies(cookies); cookieHeader != "" {
		header.Set("Cookie", cookieHeader)
	}
	for k, vs := range opts.Header {
		for _, v := range vs {
			header.Add(k, v)
		}
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, &ConnectError{URL: wsURL, StatusCode: status, Err: err}
	}

	c := &Client{
		conn:         conn,
		codec:        codec,
		logger:       logger,
		pingInterval: pingInterval,
		responses:    make(chan *Response, 16),
		done:         make(chan struct{}),
	}

	go c.readLoop()
	go c.pingLoop()

	logger.Info("webcast socket connected",
		"url", wsURL,
		"remote", conn.RemoteAddr().String())
	return c, nil
}

// Responses returns the stream of decoded response containers. The channel
// is closed when the socket closes, by either side.
func (c *Client) Responses() <-chan *Response { return c.responses }

// Done is closed when the socket is fully shut down.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns the transport error that ended the connection, or nil when it
// was closed locally via Close.
func (c *Client) Err() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.closed {
		return nil
	}
	return c.err
}

// Close shuts down the socket and stops the keep-alive. Safe to call more
// than once.
func (c *Client) Close() error {
	c.stateMu.Lock()
	c.closed = true
	c.stateMu.Unlock()
	c.shutdown()
	return nil
}

func (c *Client) fail(err error) {
	c.stateMu.Lock()
	if c.err == nil && !c.closed {
		c.err = err
	}
	closed := c.closed
	c.stateMu.Unlock()
	if !closed {
		c.logger.Warn("webcast socket lost", "error", err)
	}
	c.shutdown()
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
}

// readLoop is the only reader of the connection. Frame-level decode failures
// drop the frame, never the connection.
func (c *Client) readLoop() {
	defer close(c.responses)
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		frame, err := c.codec.DecodeFrame(data)
		if err != nil {
			c.logger.Warn("dropping undecodable frame",
				"bytes", len(data),
				"error", err)
			continue
		}

		if frame.AckID > 0 {
			c.sendAck(frame.AckID)
		}
		if frame.Response == nil {
			continue
		}

		select {
		case c.responses <- frame.Response:
		case <-c.done:
			return
		}
	}
}

// pingLoop keeps the upstream from idling the connection out. Ping writes go
// through WriteControl so they never contend with the ack path for long.
func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(controlWriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("keep-alive ping failed", "error", err)
			}
		}
	}
}

// sendAck acknowledges a frame id at most once, best-effort. Upstream will
// not redeliver a frame whose ack was lost; that data loss is part of the
// protocol contract.
func (c *Client) sendAck(id uint64) {
	ack, err := c.codec.EncodeAck(id)
	if err != nil {
		c.logger.Error("encode ack failed", "id", id, "error", err)
		return
	}
	c.writeMu.Lock()
	err = c.conn.WriteMessage(websocket.BinaryMessage, ack)
	c.writeMu.Unlock()
	if err != nil {
		c.logger.Warn("ack send failed, frame effectively dropped",
			"id", id,
			"error", err)
	}
}

// normalizeURL re-encodes the captured feed URL and pins browser_version to
// the value the upstream expects from a desktop browser session.
func normalizeURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse feed url: %w", err)
	}
	q := u.Query()
	q.Set("browser_version", canonicalBrowserVersion)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func formatCookies(cookies []Cookie) string {
	var b []byte
	for _, ck := range cookies {
		if !sessionCookieNames[ck.Name] {
			continue
		}
		if len(b) > 0 {
			b = append(b, "; "...)
		}
		b = append(b, ck.Name...)
		b = append(b, '=')
		b = append(b, ck.Value...)
	}
	return string(b)
}
