package webcast

import "time"

// Config carries the tunables of a feed connection. The zero value is not
// usable directly; pass it through withDefaults or start from DefaultConfig.
type Config struct {
	// PingInterval is the keep-alive cadence on the live socket.
	PingInterval time.Duration

	// HandshakeTimeout bounds the websocket upgrade.
	HandshakeTimeout time.Duration

	// SessionTimeout bounds one session-acquisition call to the provider.
	SessionTimeout time.Duration

	// BaseReconnectDelay is the first retry delay; each further attempt
	// doubles it until the exponent reaches BackoffCap.
	BaseReconnectDelay time.Duration
	BackoffCap         int

	// MaxReconnectAttempts is the number of consecutive failed attempts
	// after which the connector gives up until the next explicit Connect.
	MaxReconnectAttempts int

	// StreamEndActions lists the control-message action codes treated as
	// the broadcast ending. A matching action suppresses reconnection.
	StreamEndActions []int32

	// EventBuffer is the capacity of the consumer event channel. Events
	// are dropped, never blocked on, when the consumer falls behind.
	EventBuffer int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		PingInterval:         10 * time.Second,
		HandshakeTimeout:     30 * time.Second,
		SessionTimeout:       30 * time.Second,
		BaseReconnectDelay:   5 * time.Second,
		BackoffCap:           6,
		MaxReconnectAttempts: 10,
		StreamEndActions:     []int32{3, 4},
		EventBuffer:          256,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = d.SessionTimeout
	}
	if c.BaseReconnectDelay <= 0 {
		c.BaseReconnectDelay = d.BaseReconnectDelay
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = d.BackoffCap
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = d.MaxReconnectAttempts
	}
	if c.StreamEndActions == nil {
		c.StreamEndActions = d.StreamEndActions
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = d.EventBuffer
	}
	return c
}

// reconnectDelay returns the delay before retry number attempt (zero-based).
func (c Config) reconnectDelay(attempt int) time.Duration {
	if attempt > c.BackoffCap {
		attempt = c.BackoffCap
	}
	return c.BaseReconnectDelay * (1 << attempt)
}

func (c Config) isStreamEnd(action int32) bool {
	for _, a := range c.StreamEndActions {
		if a == action {
			return true
		}
	}
	return false
}
