package serialization

import (
	"reflect"

	"github.com/hashicorp/go-msgpack/codec"

	"github.com/loopgrid/ringd/internal/errors"
)

// InMemoryFormat selects how a ringbuffer stores its items.
type InMemoryFormat string

const (
	// FormatBinary keeps items in their serialized form. Reads return the
	// stored payload without a codec round trip.
	FormatBinary InMemoryFormat = "binary"
	// FormatObject decodes items on write and re-encodes them on read.
	FormatObject InMemoryFormat = "object"
)

// Valid reports whether f is a known format.
func (f InMemoryFormat) Valid() bool {
	return f == FormatBinary || f == FormatObject
}

// Service converts between payload Data and decoded object form. It must be
// safe for concurrent use by multiple containers.
type Service interface {
	ToData(v interface{}) (Data, error)
	ToObject(d Data) (interface{}, error)
}

// MsgpackService encodes objects with MessagePack. The handle is shared and
// read-only after construction, which makes the service safe for concurrent
// encoders and decoders.
type MsgpackService struct {
	handle *codec.MsgpackHandle
}

// NewMsgpackService creates the default item codec.
func NewMsgpackService() *MsgpackService {
	h := &codec.MsgpackHandle{}
	h.RawToString = true
	h.MapType = reflect.TypeOf(map[string]interface{}(nil))
	return &MsgpackService{handle: h}
}

// ToData encodes v. A nil value maps to a nil payload.
func (s *MsgpackService) ToData(v interface{}) (Data, error) {
	if v == nil {
		return nil, nil
	}
	var out []byte
	enc := codec.NewEncoderBytes(&out, s.handle)
	if err := enc.Encode(v); err != nil {
		return nil, errors.SerializationFailed("msgpack encode failed", err)
	}
	return out, nil
}

// ToObject decodes d. A nil payload maps to a nil value.
func (s *MsgpackService) ToObject(d Data) (interface{}, error) {
	if d == nil {
		return nil, nil
	}
	var v interface{}
	dec := codec.NewDecoderBytes(d, s.handle)
	if err := dec.Decode(&v); err != nil {
		return nil, errors.SerializationFailed("msgpack decode failed", err)
	}
	return v, nil
}
