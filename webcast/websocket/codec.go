package websocket

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"

	"github.com/streamlab/webcast-relay/webcast/schema"
)

// gzip magic bytes. The third byte (deflate method) is checked when present;
// upstream always uses 0x08.
const (
	gzipMagic1 = 0x1f
	gzipMagic2 = 0x8b
	gzipMagic3 = 0x08
)

// DecompressionError reports a payload that carried the gzip magic bytes but
// failed to inflate. It is frame-local: the caller drops the frame and keeps
// the connection.
type DecompressionError struct {
	Err error
}

func (e *DecompressionError) Error() string {
	return fmt.Sprintf("webcast: frame decompression failed: %v", e.Err)
}

func (e *DecompressionError) Unwrap() error { return e.Err }

// Message is one decoded sub-message of a response container.
type Message struct {
	Type string
	Data map[string]any
}

// Response is the decoded inner container of a "msg" envelope.
type Response struct {
	Messages        []Message
	Cursor          string
	FetchIntervalMs int32
	ServerTimestamp int64
	WsParams        map[string]string
}

// DecodedFrame is the result of decoding one raw socket frame. Response is
// nil for acknowledgement-only envelope kinds.
type DecodedFrame struct {
	AckID    uint64
	Response *Response
}

// FrameCodec turns raw socket bytes into decoded responses and encodes
// acknowledgement frames. It is stateless apart from the registry and safe
// for concurrent use.
type FrameCodec struct {
	registry *schema.Registry
	logger   *slog.Logger
	domain   map[string]bool
}

// NewFrameCodec creates a codec over the given registry. A nil logger
// defaults to slog.Default().
func NewFrameCodec(registry *schema.Registry, logger *slog.Logger) *FrameCodec {
	if registry == nil {
		registry = schema.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	domain := make(map[string]bool)
	for _, typ := range schema.DomainTypes() {
		domain[typ] = true
	}
	return &FrameCodec{registry: registry, logger: logger, domain: domain}
}

// DecodeFrame decodes the outer envelope, reverses gzip compression when the
// payload carries the magic bytes, decodes the response container and its
// sub-messages. A sub-message that fails to decode is logged and skipped;
// the rest of the frame is still delivered. Upstream occasionally ships
// malformed frames and a single bad one must never cost the connection.
func (c *FrameCodec) DecodeFrame(raw []byte) (*DecodedFrame, error) {
	env, err := c.registry.Decode(schema.TypeWebsocketMessage, raw)
	if err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	ackID, _ := env["id"].(uint64)
	kind, _ := env["type"].(string)
	if kind != "msg" {
		// Acknowledgement-only envelope kinds carry no domain data.
		return &DecodedFrame{AckID: ackID}, nil
	}

	payload, _ := env["binary"].([]byte)
	if isGzipped(payload) {
		payload, err = gunzip(payload)
		if err != nil {
			return nil, &DecompressionError{Err: err}
		}
	}

	container, err := c.registry.Decode(schema.TypeResponse, payload)
	if err != nil {
		return nil, fmt.Errorf("decode response container: %w", err)
	}

	resp := &Response{}
	if s, ok := container["cursor"].(string); ok {
		resp.Cursor = s
	}
	if v, ok := container["fetchInterval"].(int32); ok {
		resp.FetchIntervalMs = v
	}
	if v, ok := container["serverTimestamp"].(int64); ok {
		resp.ServerTimestamp = v
	}
	if params, ok := container["wsParams"].([]any); ok {
		resp.WsParams = make(map[string]string, len(params))
		for _, p := range params {
			m, ok := p.(map[string]any)
			if !ok {
				continue
			}
			name, _ := m["name"].(string)
			value, _ := m["value"].(string)
			if name != "" {
				resp.WsParams[name] = value
			}
		}
	}

	rawMsgs, _ := container["messages"].([]any)
	for _, rm := range rawMsgs {
		m, ok := rm.(map[string]any)
		if !ok {
			continue
		}
		msgType, _ := m["type"].(string)
		if !c.domain[msgType] {
			// Sub-message types outside the fixed set are dropped, not errors.
			continue
		}
		binary, _ := m["binary"].([]byte)
		data, err := c.registry.Decode(msgType, binary)
		if err != nil {
			c.logger.Warn("skipping undecodable sub-message",
				"type", msgType,
				"error", err)
			continue
		}
		resp.Messages = append(resp.Messages, Message{Type: msgType, Data: data})
	}

	return &DecodedFrame{AckID: ackID, Response: resp}, nil
}

// EncodeAck builds the acknowledgement frame for the given envelope id.
func (c *FrameCodec) EncodeAck(id uint64) ([]byte, error) {
	return c.registry.Encode(schema.TypeWebsocketAck, map[string]any{
		"id":   id,
		"type": "ack",
	})
}

func isGzipped(payload []byte) bool {
	if len(payload) < 2 || payload[0] != gzipMagic1 || payload[1] != gzipMagic2 {
		return false
	}
	if len(payload) > 2 && payload[2] != gzipMagic3 {
		return false
	}
	return true
}

func gunzip(payload []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	return out, nil
}
