// Package schema holds the fixed set of Webcast protobuf message layouts and
// decodes/encodes them without generated code. The upstream protocol is
// undocumented; layouts are table-driven so that unknown field numbers can be
// skipped instead of failing (the feed adds fields without notice).
package schema

import (
	"fmt"
	"sync"

	"google.golang.org/protobuf/encoding/protowire"
)

// Kind identifies how a field's wire value is interpreted.
type Kind int

const (
	KindString Kind = iota
	KindBytes
	KindUint64
	KindInt64
	KindInt32
	KindBool
	KindMessage
)

// Field describes one field of a message layout.
type Field struct {
	Num      protowire.Number
	Name     string
	Kind     Kind
	Repeated bool
	// MessageType names the nested layout when Kind is KindMessage.
	MessageType string
	// Required is only enforced by Encode. The ack frame is the single
	// outbound type and upstream rejects it without id and type.
	Required bool
}

// Error reports an unknown type or malformed bytes for a known layout.
// It indicates either a caller bug (unknown type, bad outbound object) or a
// corrupt frame; callers decide which of those is fatal.
type Error struct {
	Type string
	Op   string // "decode" or "encode"
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("schema: %s %s: %s", e.Op, e.Type, e.Msg)
}

func decodeErr(typeName, format string, args ...any) *Error {
	return &Error{Type: typeName, Op: "decode", Msg: fmt.Sprintf(format, args...)}
}

func encodeErr(typeName, format string, args ...any) *Error {
	return &Error{Type: typeName, Op: "encode", Msg: fmt.Sprintf(format, args...)}
}

// Registry maps message type names to their layouts. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	types map[string][]Field
	index map[string]map[protowire.Number]*Field
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry with the fixed Webcast message
// set, built once on first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry builds a registry containing the fixed Webcast message set.
func NewRegistry() *Registry {
	types := messageLayouts()
	index := make(map[string]map[protowire.Number]*Field, len(types))
	for name, fields := range types {
		byNum := make(map[protowire.Number]*Field, len(fields))
		for i := range fields {
			byNum[fields[i].Num] = &fields[i]
		}
		index[name] = byNum
	}
	return &Registry{types: types, index: index}
}

// Has reports whether typeName is a known layout.
func (r *Registry) Has(typeName string) bool {
	_, ok := r.types[typeName]
	return ok
}

// Decode deserializes data as typeName. Unknown field numbers are skipped;
// a wire-level parse failure returns a *Error.
func (r *Registry) Decode(typeName string, data []byte) (map[string]any, error) {
	if _, ok := r.types[typeName]; !ok {
		return nil, decodeErr(typeName, "unknown message type")
	}
	return r.decodeFields(typeName, data)
}

func (r *Registry) decodeFields(typeName string, data []byte) (map[string]any, error) {
	byNum := r.index[typeName]

	out := make(map[string]any)
	b := data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, decodeErr(typeName, "malformed tag: %v", protowire.ParseError(n))
		}
		b = b[n:]

		f := byNum[num]
		if f == nil {
			// Unknown field: skip for schema evolution tolerance.
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, decodeErr(typeName, "malformed unknown field %d: %v", num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}

		val, n, err := r.consumeField(typeName, f, typ, b)
		if err != nil {
			return nil, err
		}
		b = b[n:]

		if f.Repeated {
			prev, _ := out[f.Name].([]any)
			out[f.Name] = append(prev, val)
		} else {
			out[f.Name] = val
		}
	}
	return out, nil
}

func (r *Registry) consumeField(typeName string, f *Field, typ protowire.Type, b []byte) (any, int, error) {
	switch f.Kind {
	case KindString, KindBytes, KindMessage:
		if typ != protowire.BytesType {
			return nil, 0, decodeErr(typeName, "field %s: want bytes wire type, got %d", f.Name, typ)
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, 0, decodeErr(typeName, "field %s: %v", f.Name, protowire.ParseError(n))
		}
		switch f.Kind {
		case KindString:
			return string(v), n, nil
		case KindBytes:
			cp := make([]byte, len(v))
			copy(cp, v)
			return cp, n, nil
		default:
			if _, ok := r.types[f.MessageType]; !ok {
				return nil, 0, decodeErr(typeName, "field %s: unknown nested type %s", f.Name, f.MessageType)
			}
			m, err := r.decodeFields(f.MessageType, v)
			if err != nil {
				return nil, 0, err
			}
			return m, n, nil
		}
	default:
		if typ != protowire.VarintType {
			return nil, 0, decodeErr(typeName, "field %s: want varint wire type, got %d", f.Name, typ)
		}
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, 0, decodeErr(typeName, "field %s: %v", f.Name, protowire.ParseError(n))
		}
		switch f.Kind {
		case KindUint64:
			return v, n, nil
		case KindInt64:
			return int64(v), n, nil
		case KindInt32:
			return int32(v), n, nil
		default:
			return v != 0, n, nil
		}
	}
}

// Encode serializes obj as typeName, emitting fields in layout order.
// A missing required field or a value of the wrong Go type returns a *Error.
func (r *Registry) Encode(typeName string, obj map[string]any) ([]byte, error) {
	fields, ok := r.types[typeName]
	if !ok {
		return nil, encodeErr(typeName, "unknown message type")
	}

	var b []byte
	for i := range fields {
		f := &fields[i]
		raw, present := obj[f.Name]
		if !present {
			if f.Required {
				return nil, encodeErr(typeName, "missing required field %s", f.Name)
			}
			continue
		}

		values := []any{raw}
		if f.Repeated {
			list, ok := raw.([]any)
			if !ok {
				return nil, encodeErr(typeName, "field %s: want []any, got %T", f.Name, raw)
			}
			values = list
		}

		for _, v := range values {
			enc, err := r.appendField(typeName, f, b, v)
			if err != nil {
				return nil, err
			}
			b = enc
		}
	}
	return b, nil
}

func (r *Registry) appendField(typeName string, f *Field, b []byte, v any) ([]byte, error) {
	switch f.Kind {
	case KindString:
		s, ok := v.(string)
		if !ok {
			return nil, encodeErr(typeName, "field %s: want string, got %T", f.Name, v)
		}
		b = protowire.AppendTag(b, f.Num, protowire.BytesType)
		return protowire.AppendString(b, s), nil
	case KindBytes:
		raw, ok := v.([]byte)
		if !ok {
			return nil, encodeErr(typeName, "field %s: want []byte, got %T", f.Name, v)
		}
		b = protowire.AppendTag(b, f.Num, protowire.BytesType)
		return protowire.AppendBytes(b, raw), nil
	case KindMessage:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, encodeErr(typeName, "field %s: want map[string]any, got %T", f.Name, v)
		}
		nested, err := r.Encode(f.MessageType, m)
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, f.Num, protowire.BytesType)
		return protowire.AppendBytes(b, nested), nil
	default:
		u, err := varintValue(typeName, f, v)
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, f.Num, protowire.VarintType)
		return protowire.AppendVarint(b, u), nil
	}
}

func varintValue(typeName string, f *Field, v any) (uint64, error) {
	switch x := v.(type) {
	case uint64:
		return x, nil
	case int64:
		return uint64(x), nil
	case int32:
		return uint64(x), nil
	case int:
		return uint64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, encodeErr(typeName, "field %s: want integer or bool, got %T", f.Name, v)
	}
}
