package greenlight

import (
	"math"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// CodecName 与节点协商的内容子类型（application/grpc+proto）
const CodecName = "proto"

// wireMessage is implemented by every request and response type. Encoding is
// proto3 binary: zero scalars are omitted, unknown fields are skipped.
type wireMessage interface {
	appendWire(b []byte) []byte
	readWire(b []byte) error
}

// WireCodec 节点消息的 protobuf 编解码器
type WireCodec struct{}

func (WireCodec) Name() string {
	return CodecName
}

func (WireCodec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, errors.Errorf("greenlight: cannot marshal %T", v)
	}
	return m.appendWire(nil), nil
}

func (WireCodec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(wireMessage)
	if !ok {
		return errors.Errorf("greenlight: cannot unmarshal into %T", v)
	}
	return m.readWire(data)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarint(b, num, 1)
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// appendMessage always writes the field, so empty repeated elements survive.
func appendMessage(b []byte, num protowire.Number, m wireMessage) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m.appendWire(nil))
}

// field is one decoded wire field. v holds varint and fixed values, raw holds
// length-delimited payloads.
type field struct {
	num protowire.Number
	v   uint64
	raw []byte
}

func (f field) bytes() []byte {
	if len(f.raw) == 0 {
		return nil
	}
	return append([]byte(nil), f.raw...)
}

func (f field) str() string {
	return string(f.raw)
}

func (f field) double() float64 {
	return math.Float64frombits(f.v)
}

func eachField(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "greenlight: malformed tag")
		}
		b = b[n:]

		f := field{num: num}
		switch typ {
		case protowire.VarintType:
			f.v, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.v, n = protowire.ConsumeFixed64(b)
		case protowire.Fixed32Type:
			var v32 uint32
			v32, n = protowire.ConsumeFixed32(b)
			f.v = uint64(v32)
		case protowire.BytesType:
			f.raw, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return errors.Wrapf(protowire.ParseError(n), "greenlight: malformed field %d", num)
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func readAmount(raw []byte) (*Amount, error) {
	a := new(Amount)
	if err := a.readWire(raw); err != nil {
		return nil, err
	}
	return a, nil
}
