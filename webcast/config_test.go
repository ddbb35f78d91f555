package webcast

import (
	"testing"
	"time"
)

func TestConfig_ReconnectDelayDoublesAndClamps(t *testing.T) {
	cfg := Config{BaseReconnectDelay: 100 * time.Millisecond, BackoffCap: 3}.withDefaults()

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		800 * time.Millisecond, // clamped at the cap
		800 * time.Millisecond,
	}
	for attempt, w := range want {
		if got := cfg.reconnectDelay(attempt); got != w {
			t.Errorf("reconnectDelay(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestConfig_IsStreamEnd(t *testing.T) {
	cfg := DefaultConfig()
	for _, action := range []int32{3, 4} {
		if !cfg.isStreamEnd(action) {
			t.Errorf("action %d should end the stream by default", action)
		}
	}
	for _, action := range []int32{0, 1, 2, 5} {
		if cfg.isStreamEnd(action) {
			t.Errorf("action %d should not end the stream", action)
		}
	}

	custom := Config{StreamEndActions: []int32{3}}.withDefaults()
	if custom.isStreamEnd(4) {
		t.Error("explicit StreamEndActions should override the default set")
	}
}

func TestConfig_WithDefaultsFillsZeroValues(t *testing.T) {
	cfg := Config{}.withDefaults()
	def := DefaultConfig()
	if cfg.PingInterval != def.PingInterval || cfg.MaxReconnectAttempts != def.MaxReconnectAttempts {
		t.Errorf("zero config not filled: %+v", cfg)
	}
	if cfg.EventBuffer != def.EventBuffer {
		t.Errorf("EventBuffer = %d, want %d", cfg.EventBuffer, def.EventBuffer)
	}

	tuned := Config{PingInterval: time.Second}.withDefaults()
	if tuned.PingInterval != time.Second {
		t.Error("explicit values must survive withDefaults")
	}
}
