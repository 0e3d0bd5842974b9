// Package replication fans primary appends out to backup members and
// keeps backups convergent through full container syncs.
package replication

import (
	"reflect"

	"github.com/hashicorp/go-msgpack/codec"
)

// Internal replication plane routes.
const (
	AppendPath = "/internal/v1/replication/append"
	SyncPath   = "/internal/v1/replication/sync"

	// ContentType is the wire format of replication bodies.
	ContentType = "application/x-msgpack"
)

var wireHandle = newWireHandle()

func newWireHandle() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.RawToString = true
	h.MapType = reflect.TypeOf(map[string]interface{}(nil))
	return h
}

// EncodeEnvelope marshals a replication envelope to msgpack.
func EncodeEnvelope(v interface{}) ([]byte, error) {
	var out []byte
	if err := codec.NewEncoderBytes(&out, wireHandle).Encode(v); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeEnvelope unmarshals a msgpack replication envelope.
func DecodeEnvelope(data []byte, v interface{}) error {
	return codec.NewDecoderBytes(data, wireHandle).Decode(v)
}
