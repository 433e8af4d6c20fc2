package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Codec errors.
var (
	ErrEmptyFrame   = errors.New("empty frame")
	ErrMissingType  = errors.New("message has no type")
	ErrUnknownCodec = errors.New("unknown codec")
)

// FrameKind selects the transport frame type a codec produces.
type FrameKind int

const (
	FrameText FrameKind = iota
	FrameBinary
)

// Codec converts commands to frames and frames to messages.
// Implementations are stateless and safe for concurrent use.
type Codec interface {
	Encode(cmd Command) ([]byte, error)
	Decode(data []byte) (Message, error)
	Frame() FrameKind
	Name() string
}

// NewCodec returns the codec registered under name ("json" or "cbor").
func NewCodec(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "cbor":
		return CBORCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// jsonEnvelope is the JSON wire format shared by commands and messages.
type jsonEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// JSONCodec encodes envelopes as JSON text frames.
type JSONCodec struct{}

func (JSONCodec) Name() string     { return "json" }
func (JSONCodec) Frame() FrameKind { return FrameText }

// Encode validates cmd and wraps it in a typed envelope.
func (JSONCodec) Encode(cmd Command) ([]byte, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", cmd.CommandType(), err)
	}

	return json.Marshal(jsonEnvelope{Type: cmd.CommandType(), Data: data})
}

// Decode parses an envelope and its typed body.
func (JSONCodec) Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}

	var env jsonEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return nil, ErrMissingType
	}

	return decodeBody(env.Type, len(env.Data) > 0, func(v any) error {
		return json.Unmarshal(env.Data, v)
	})
}

// decodeBody maps a type tag to its message struct. unmarshal fills v from
// the envelope body in whichever encoding the caller uses.
func decodeBody(typ string, hasData bool, unmarshal func(v any) error) (Message, error) {
	var msg Message
	switch typ {
	case TypePong:
		var m Pong
		if hasData {
			if err := unmarshal(&m); err != nil {
				return nil, fmt.Errorf("decode %s: %w", typ, err)
			}
		}
		msg = m
	case TypeAuthAck:
		var m AuthAck
		if hasData {
			if err := unmarshal(&m); err != nil {
				return nil, fmt.Errorf("decode %s: %w", typ, err)
			}
		}
		msg = m
	case TypeAuthReject:
		var m AuthReject
		if hasData {
			if err := unmarshal(&m); err != nil {
				return nil, fmt.Errorf("decode %s: %w", typ, err)
			}
		}
		msg = m
	case TypeErrorNotice:
		var m ErrorNotice
		if hasData {
			if err := unmarshal(&m); err != nil {
				return nil, fmt.Errorf("decode %s: %w", typ, err)
			}
		}
		msg = m
	default:
		ev := ServerEvent{Type: typ}
		if hasData {
			if err := unmarshal(&ev.Payload); err != nil {
				return nil, fmt.Errorf("decode %s: %w", typ, err)
			}
		}
		msg = ev
	}
	return msg, nil
}
