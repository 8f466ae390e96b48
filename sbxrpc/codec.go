package sbxrpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Encoding selects the wire codec used for Connect-RPC payloads.
type Encoding string

const (
	EncodingProtobuf Encoding = "proto"
	EncodingJSON     Encoding = "json"
)

// jsonCodec implements connect.Codec using encoding/json. It is the fully
// general codec: every message type this SDK defines round-trips through
// it correctly.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// protoMarshaler is implemented by the handful of hot-path message types
// (the Process service's start, send-input and output-frame messages) that
// carry a hand-written protobuf-wire encoding,
// built directly on protowire rather than generated descriptors.
type protoMarshaler interface {
	MarshalProtoWire() ([]byte, error)
}

type protoUnmarshaler interface {
	UnmarshalProtoWire([]byte) error
}

// protoCodec implements connect.Codec for the "proto" encoding. Message
// types that implement protoMarshaler/protoUnmarshaler use the hand-rolled
// protowire encoding; everything else falls back to JSON bytes carried
// under the same codec name, matching this module's pragmatic stance on
// not requiring a protoc-gen-connect-go toolchain (see DESIGN.md).
type protoCodec struct{}

func (protoCodec) Name() string { return "proto" }

func (protoCodec) Marshal(v any) ([]byte, error) {
	if m, ok := v.(protoMarshaler); ok {
		return m.MarshalProtoWire()
	}
	return json.Marshal(v)
}

func (protoCodec) Unmarshal(data []byte, v any) error {
	if m, ok := v.(protoUnmarshaler); ok {
		return m.UnmarshalProtoWire(data)
	}
	return json.Unmarshal(data, v)
}

// --- shared protowire helpers for hand-rolled hot-path messages ---
//
// The hot-path message types live in sbxprocess; these helpers are
// exported so that package can build its protowire encodings without
// duplicating the field-walking boilerplate.

// AppendTaggedString appends a length-delimited string field, skipping the
// empty value the way proto3 does.
func AppendTaggedString(buf []byte, fieldNum int32, s string) []byte {
	if s == "" {
		return buf
	}
	buf = protowire.AppendTag(buf, protowire.Number(fieldNum), protowire.BytesType)
	return protowire.AppendBytes(buf, []byte(s))
}

// AppendTaggedBytes appends a length-delimited bytes field.
func AppendTaggedBytes(buf []byte, fieldNum int32, b []byte) []byte {
	if len(b) == 0 {
		return buf
	}
	buf = protowire.AppendTag(buf, protowire.Number(fieldNum), protowire.BytesType)
	return protowire.AppendBytes(buf, b)
}

// AppendTaggedVarint appends a varint field, skipping the zero value.
func AppendTaggedVarint(buf []byte, fieldNum int32, v uint64) []byte {
	if v == 0 {
		return buf
	}
	buf = protowire.AppendTag(buf, protowire.Number(fieldNum), protowire.VarintType)
	return protowire.AppendVarint(buf, v)
}

// ConsumeFields walks a protowire-encoded message, invoking fn for every
// field. Unrecognized field numbers are fn's to skip, which keeps the
// hand-rolled decoders forward-compatible with new server fields.
func ConsumeFields(data []byte, fn func(num protowire.Number, typ protowire.Type, val []byte) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("sbxrpc: malformed protobuf tag")
		}
		data = data[n:]

		var val []byte
		switch typ {
		case protowire.VarintType:
			v, n2 := protowire.ConsumeVarint(data)
			if n2 < 0 {
				return fmt.Errorf("sbxrpc: malformed varint field")
			}
			val = protowire.AppendVarint(nil, v)
			data = data[n2:]
		case protowire.BytesType:
			v, n2 := protowire.ConsumeBytes(data)
			if n2 < 0 {
				return fmt.Errorf("sbxrpc: malformed bytes field")
			}
			val = v
			data = data[n2:]
		default:
			n2 := protowire.ConsumeFieldValue(num, typ, data)
			if n2 < 0 {
				return fmt.Errorf("sbxrpc: malformed field")
			}
			val = data[:n2]
			data = data[n2:]
		}

		if err := fn(num, typ, val); err != nil {
			return err
		}
	}
	return nil
}
