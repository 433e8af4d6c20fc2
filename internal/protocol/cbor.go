package protocol

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error

	// Canonical key order keeps frames byte-identical for equal commands.
	cborEnc, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("protocol: cbor encoder mode: %v", err))
	}

	cborDec, err = cbor.DecOptions{
		DupMapKey:      cbor.DupMapKeyQuiet,
		IndefLength:    cbor.IndefLengthAllowed,
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("protocol: cbor decoder mode: %v", err))
	}
}

// cborEnvelope mirrors jsonEnvelope for binary frames.
type cborEnvelope struct {
	Type string          `cbor:"type"`
	Data cbor.RawMessage `cbor:"data,omitempty"`
}

// CBORCodec encodes envelopes as canonical CBOR binary frames.
type CBORCodec struct{}

func (CBORCodec) Name() string     { return "cbor" }
func (CBORCodec) Frame() FrameKind { return FrameBinary }

func (CBORCodec) Encode(cmd Command) ([]byte, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}

	data, err := cborEnc.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", cmd.CommandType(), err)
	}

	return cborEnc.Marshal(cborEnvelope{Type: cmd.CommandType(), Data: data})
}

func (CBORCodec) Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}

	var env cborEnvelope
	if err := cborDec.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return nil, ErrMissingType
	}

	return decodeBody(env.Type, len(env.Data) > 0, func(v any) error {
		return cborDec.Unmarshal(env.Data, v)
	})
}
