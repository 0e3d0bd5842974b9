package serialization

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/loopgrid/ringd/internal/errors"
)

const nilArrayLength = int32(-1)

// Writer accumulates big-endian fields into an in-memory buffer.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter creates an empty stream writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the accumulated stream. The slice is owned by the writer.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return w.buf.Len()
}

func (w *Writer) WriteInt32(v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	w.buf.Write(b[:])
}

func (w *Writer) WriteInt64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	w.buf.Write(b[:])
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

// WriteString writes an int32 length followed by the raw UTF-8 bytes.
func (w *Writer) WriteString(s string) {
	w.WriteInt32(int32(len(s)))
	w.buf.WriteString(s)
}

// WriteByteArray writes an int32 length followed by the bytes. A nil slice
// is encoded as length -1 and is distinguishable from an empty slice.
func (w *Writer) WriteByteArray(b []byte) {
	if b == nil {
		w.WriteInt32(nilArrayLength)
		return
	}
	w.WriteInt32(int32(len(b)))
	w.buf.Write(b)
}

// Reader consumes big-endian fields from a byte slice. Every read validates
// the remaining length and reports stream corruption instead of panicking.
type Reader struct {
	data []byte
	pos  int
}

// NewReader creates a reader positioned at the start of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

func (r *Reader) require(n int, field string) error {
	if r.Remaining() < n {
		return errors.CorruptStream(
			fmt.Sprintf("truncated stream: need %d bytes for %s at offset %d, have %d", n, field, r.pos, r.Remaining()), nil)
	}
	return nil
}

func (r *Reader) ReadInt32(field string) (int32, error) {
	if err := r.require(4, field); err != nil {
		return 0, err
	}
	v := int32(binary.BigEndian.Uint32(r.data[r.pos:]))
	r.pos += 4
	return v, nil
}

func (r *Reader) ReadInt64(field string) (int64, error) {
	if err := r.require(8, field); err != nil {
		return 0, err
	}
	v := int64(binary.BigEndian.Uint64(r.data[r.pos:]))
	r.pos += 8
	return v, nil
}

func (r *Reader) ReadBool(field string) (bool, error) {
	if err := r.require(1, field); err != nil {
		return false, err
	}
	b := r.data[r.pos]
	r.pos++
	if b > 1 {
		return false, errors.CorruptStream(fmt.Sprintf("invalid bool byte %d for %s", b, field), nil)
	}
	return b == 1, nil
}

func (r *Reader) ReadString(field string) (string, error) {
	n, err := r.ReadInt32(field)
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", errors.CorruptStream(fmt.Sprintf("invalid string length %d for %s", n, field), nil)
	}
	if err := r.require(int(n), field); err != nil {
		return "", err
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func (r *Reader) ReadByteArray(field string) ([]byte, error) {
	n, err := r.ReadInt32(field)
	if err != nil {
		return nil, err
	}
	if n == nilArrayLength {
		return nil, nil
	}
	if n < 0 {
		return nil, errors.CorruptStream(fmt.Sprintf("invalid byte array length %d for %s", n, field), nil)
	}
	if err := r.require(int(n), field); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.data[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return out, nil
}
