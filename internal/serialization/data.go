// Package serialization provides the binary stream primitives and item
// codecs used by ringbuffer containers and the replication plane.
//
// All multi-byte values are big-endian. Strings and byte arrays are
// int32-length-prefixed; a length of -1 encodes a nil byte array. The layout
// carries no self-describing type tags, so writer and reader must agree on
// field order.
package serialization

// Data is the serialized form of a ringbuffer item as supplied by clients.
// A nil Data is a valid payload and survives storage and transfer.
type Data []byte

// Size returns the payload length in bytes.
func (d Data) Size() int {
	return len(d)
}

// Clone returns an independent copy of the payload.
func (d Data) Clone() Data {
	if d == nil {
		return nil
	}
	out := make(Data, len(d))
	copy(out, d)
	return out
}
