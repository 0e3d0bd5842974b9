// Package ringbuffer implements the capacity-bounded, append-only ring log:
// a circular store addressed by monotonically increasing sequences, an
// optional per-item expiration policy, and a container that couples both
// with a clock-skew-safe transfer protocol.
package ringbuffer

// toIndex maps a sequence onto a slot index using floored modulo, so the
// result is non-negative for any int64 sequence. Item and expiration arrays
// share this mapping.
func toIndex(seq, capacity int64) int64 {
	m := seq % capacity
	if m < 0 {
		m += capacity
	}
	return m
}
