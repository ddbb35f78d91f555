package webcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/streamlab/webcast-relay/webcast/schema"
	"github.com/streamlab/webcast-relay/webcast/websocket"
)

// ErrGivenUp reports that the connector exhausted its reconnect budget and
// will stay down until the next explicit Connect.
var ErrGivenUp = errors.New("webcast: gave up reconnecting")

// State is the connector lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateReconnectScheduled
	StateGivenUp
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateReconnectScheduled:
		return "reconnectScheduled"
	case StateGivenUp:
		return "givenUp"
	default:
		return "unknown"
	}
}

// Connector owns at most one live socket for one streamer and supervises its
// lifecycle: session acquisition, connect, read pump, reconnect with
// exponential backoff, and stream-end detection. Events flow out on a
// buffered channel and are dropped, never blocked on, when the consumer
// falls behind.
//
// Every state transition is guarded by a generation token: Disconnect and a
// fresh Connect bump the generation, which strands any in-flight dial,
// pending retry timer, or stale read pump so it can neither emit events nor
// mutate state.
type Connector struct {
	cfg      Config
	provider SessionProvider
	logger   *slog.Logger
	codec    *websocket.FrameCodec
	events   chan Event

	// RoomInfo, when set before Connect, enables the liveness pre-check
	// and room id resolution against the public room API.
	RoomInfo *RoomInfoClient

	mu              sync.Mutex
	gen             uint64
	username        string
	roomID          string
	state           State
	client          *websocket.Client
	shouldReconnect bool
	attempt         int
	retryTimer      *time.Timer
	gifts           map[uint64]Gift
}

func NewConnector(cfg Config, provider SessionProvider, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Connector{
		cfg:      cfg,
		provider: provider,
		logger:   logger,
		codec:    websocket.NewFrameCodec(schema.Default(), logger),
		events:   make(chan Event, cfg.EventBuffer),
		state:    StateIdle,
	}
}

// Events returns the consumer channel. It is never closed; callers multiplex
// it with their own shutdown signal.
func (c *Connector) Events() <-chan Event { return c.events }

func (c *Connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connector) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// RoomID returns the resolved room id, empty until a session or room lookup
// supplied one.
func (c *Connector) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// Connect starts supervising the given streamer. It performs the first
// attempt synchronously and returns its error; reconnects after that run in
// the background. Calling Connect while a connection is in flight or
// established is a no-op.
func (c *Connector) Connect(ctx context.Context, username string) error {
	username = NormalizeUsername(username)

	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		current := c.username
		c.mu.Unlock()
		c.logger.Warn("connect ignored, already active", "username", current)
		return nil
	}
	c.username = username
	c.roomID = ""
	c.gifts = nil
	c.shouldReconnect = true
	c.attempt = 0
	c.cancelRetryLocked()
	c.state = StateConnecting
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.emit(gen, Event{Username: username, Name: EventConnecting, Payload: map[string]any{"username": username}})
	return c.establish(ctx, gen, username)
}

// Disconnect tears down the socket. With preventReconnect the connector
// returns to idle and pending retries are cancelled; otherwise the reconnect
// policy stays armed and the next socket loss event would still retry.
func (c *Connector) Disconnect(preventReconnect bool) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.cancelRetryLocked()
	if preventReconnect {
		c.shouldReconnect = false
	}
	client := c.client
	c.client = nil
	username := c.username
	wasActive := c.state == StateConnecting || c.state == StateConnected || c.state == StateReconnectScheduled
	if preventReconnect {
		c.state = StateIdle
	} else {
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	if client != nil {
		client.Close()
	}
	if wasActive {
		c.emit(gen, Event{Username: username, Name: EventDisconnected, Payload: map[string]any{
			"username": username,
			"manually": preventReconnect,
		}})
	}
}

// establish runs one connection attempt for the given generation: optional
// liveness check, session fetch, dial, then hand-off to the read pump.
func (c *Connector) establish(ctx context.Context, gen uint64, username string) error {
	if c.RoomInfo != nil {
		info, err := c.RoomInfo.FetchRoomInfo(ctx, username)
		if err == nil && !info.Live() {
			err = fmt.Errorf("%w: %s (status %d)", ErrNotLive, username, info.Status)
		}
		if err != nil {
			return c.connectFailed(gen, username, err)
		}
		c.mu.Lock()
		if gen == c.gen {
			c.roomID = info.RoomID
		}
		c.mu.Unlock()
	}

	sctx, cancel := context.WithTimeout(ctx, c.cfg.SessionTimeout)
	sess, err := c.provider.FetchSession(sctx, username)
	cancel()
	if err != nil {
		return c.connectFailed(gen, username, fmt.Errorf("fetch session: %w", err))
	}

	c.mu.Lock()
	stale := gen != c.gen || !c.shouldReconnect
	c.mu.Unlock()
	if stale {
		return nil
	}

	client, err := websocket.Dial(ctx, sess.SocketURL, sess.Cookies, websocket.Options{
		Codec:            c.codec,
		Logger:           c.logger,
		PingInterval:     c.cfg.PingInterval,
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	})
	if err != nil {
		return c.connectFailed(gen, username, err)
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		client.Close()
		return nil
	}
	if c.client != nil {
		// one physical socket per connector, always
		c.client.Close()
	}
	c.client = client
	c.state = StateConnected
	c.attempt = 0
	c.cancelRetryLocked()
	if sess.RoomID != "" {
		c.roomID = sess.RoomID
	}
	roomID := c.roomID
	c.mu.Unlock()

	c.logger.Info("connected", "username", username, "room_id", roomID)
	c.emit(gen, Event{Username: username, Name: EventConnected, Payload: map[string]any{
		"username": username,
		"roomId":   roomID,
	}})
	if c.RoomInfo != nil && roomID != "" {
		go c.loadGiftCatalogue(gen, roomID)
	}
	go c.pump(client, gen, username)
	return nil
}

// loadGiftCatalogue fetches the room's gift list so gift events without an
// inline giftDetails block still carry names and diamond values.
func (c *Connector) loadGiftCatalogue(gen uint64, roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SessionTimeout)
	defer cancel()
	gifts, err := c.RoomInfo.FetchGiftList(ctx, roomID)
	if err != nil {
		c.logger.Warn("gift catalogue fetch failed", "room_id", roomID, "error", err)
		return
	}
	byID := make(map[uint64]Gift, len(gifts))
	for _, g := range gifts {
		byID[uint64(g.ID)] = g
	}

	c.mu.Lock()
	if gen == c.gen {
		c.gifts = byID
	}
	c.mu.Unlock()
	c.logger.Debug("gift catalogue loaded", "room_id", roomID, "gifts", len(byID))
}

// enrichGift fills catalogue data into a gift payload that arrived without
// its giftDetails block.
func (c *Connector) enrichGift(payload map[string]any) {
	if _, ok := payload["giftName"]; ok {
		return
	}
	id, ok := payload["giftId"].(uint64)
	if !ok {
		return
	}
	c.mu.Lock()
	g, found := c.gifts[id]
	c.mu.Unlock()
	if !found {
		return
	}
	payload["giftName"] = g.Name
	payload["diamondCount"] = int32(g.DiamondCount)
	if g.ImageURL != "" {
		payload["giftImageUrl"] = g.ImageURL
	}
}

// connectFailed records a failed attempt and arms the retry timer when the
// reconnect policy allows. Stale generations change nothing.
func (c *Connector) connectFailed(gen uint64, username string, err error) error {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return err
	}
	c.state = StateDisconnected
	should := c.shouldReconnect
	c.mu.Unlock()

	c.logger.Error("connect attempt failed", "username", username, "error", err)
	c.emit(gen, errorEvent(username, err))
	if should {
		c.scheduleReconnect(gen, username)
	}
	return err
}

// pump drains one client's responses until its channel closes, then reports
// the socket loss. A generation bump ends it silently.
func (c *Connector) pump(client *websocket.Client, gen uint64, username string) {
	for resp := range client.Responses() {
		if !c.isCurrent(gen) {
			return
		}
		if c.handleResponse(gen, username, resp) {
			return
		}
	}
	c.socketClosed(gen, username, client.Err())
}

// handleResponse fans one decoded container out as events. It returns true
// when a terminal control action ended the session.
func (c *Connector) handleResponse(gen uint64, username string, resp *websocket.Response) bool {
	for _, msg := range resp.Messages {
		if msg.Type == schema.TypeControl {
			action, _ := msg.Data["action"].(int32)
			if c.cfg.isStreamEnd(action) {
				c.mu.Lock()
				if gen != c.gen {
					c.mu.Unlock()
					return true
				}
				// flip before emitting so no consumer can observe
				// streamEnd while a reconnect is still possible
				c.shouldReconnect = false
				c.mu.Unlock()
				c.logger.Info("stream ended", "username", username, "action", action)
				c.emit(gen, Event{Username: username, Name: EventStreamEnd, Payload: map[string]any{"action": action}})
				c.Disconnect(true)
				return true
			}
			c.emit(gen, Event{Username: username, Name: EventControlAction, Payload: map[string]any{"action": action}})
			continue
		}

		name, ok := eventNameByType[msg.Type]
		if !ok {
			continue
		}
		payload := NormalizePayload(msg.Type, msg.Data)
		if msg.Type == schema.TypeGift {
			c.enrichGift(payload)
		}
		c.emit(gen, Event{Username: username, Name: name, Payload: payload})
		if msg.Type == schema.TypeSocial {
			if sub, ok := socialSubEvent(payload); ok {
				c.emit(gen, Event{Username: username, Name: sub, Payload: payload})
			}
		}
	}
	return false
}

// socketClosed handles an upstream-initiated connection loss.
func (c *Connector) socketClosed(gen uint64, username string, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	wasConnected := c.state == StateConnected
	c.state = StateDisconnected
	c.client = nil
	should := c.shouldReconnect
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("socket closed", "username", username, "error", err)
		c.emit(gen, errorEvent(username, fmt.Errorf("socket closed: %w", err)))
	}
	if wasConnected {
		c.emit(gen, Event{Username: username, Name: EventDisconnected, Payload: map[string]any{
			"username": username,
			"manually": false,
		}})
	}
	if should {
		c.scheduleReconnect(gen, username)
	}
}

// scheduleReconnect arms the backoff timer for the next attempt, or gives up
// once the attempt budget is spent. At most one timer is pending at a time.
func (c *Connector) scheduleReconnect(gen uint64, username string) {
	c.mu.Lock()
	if gen != c.gen || !c.shouldReconnect || c.retryTimer != nil ||
		c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return
	}
	if c.attempt >= c.cfg.MaxReconnectAttempts {
		c.state = StateGivenUp
		c.mu.Unlock()
		c.logger.Error("giving up", "username", username, "attempts", c.cfg.MaxReconnectAttempts)
		c.emit(gen, errorEvent(username, ErrGivenUp))
		return
	}
	c.attempt++
	attempt := c.attempt
	delay := c.cfg.reconnectDelay(attempt - 1)
	c.state = StateReconnectScheduled
	c.retryTimer = time.AfterFunc(delay, func() {
		c.retryFire(gen, username, attempt)
	})
	c.mu.Unlock()

	c.logger.Info("reconnect scheduled", "username", username, "attempt", attempt, "delay", delay)
}

func (c *Connector) retryFire(gen uint64, username string, attempt int) {
	c.mu.Lock()
	if gen != c.gen || !c.shouldReconnect || c.state != StateReconnectScheduled {
		c.mu.Unlock()
		return
	}
	c.retryTimer = nil
	c.state = StateConnecting
	c.mu.Unlock()

	c.emit(gen, Event{Username: username, Name: EventReconnecting, Payload: map[string]any{
		"username": username,
		"attempt":  attempt,
	}})
	c.establish(context.Background(), gen, username)
}

func (c *Connector) cancelRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

func (c *Connector) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen
}

// emit delivers an event best-effort: stale generations are silenced and a
// full consumer channel drops the event with a warning.
func (c *Connector) emit(gen uint64, ev Event) {
	if !c.isCurrent(gen) {
		return
	}
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("dropping event, consumer lagging", "event", string(ev.Name), "username", ev.Username)
	}
}

func errorEvent(username string, err error) Event {
	return Event{Username: username, Name: EventError, Payload: map[string]any{"message": err.Error()}}
}
