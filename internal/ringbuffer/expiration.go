package ringbuffer

// ExpirationPolicy tracks per-slot expiration deadlines for a ring with a
// time-to-live. A ring without a TTL has no policy at all rather than a
// zero-valued one; the container holds nil in that case.
//
// Deadlines are epoch milliseconds stamped at append time (now + ttl). A
// vacated slot carries deadline 0.
type ExpirationPolicy struct {
	deadlines []int64
	capacity  int64
	ttlMs     int64
}

// NewExpirationPolicy creates a policy for a ring of the given capacity.
// ttlMs must be positive.
func NewExpirationPolicy(capacity, ttlMs int64) *ExpirationPolicy {
	return &ExpirationPolicy{
		deadlines: make([]int64, capacity),
		capacity:  capacity,
		ttlMs:     ttlMs,
	}
}

func (p *ExpirationPolicy) TTLMs() int64 {
	return p.ttlMs
}

// Stamp records the deadline for the slot of seq as nowMs + ttl.
func (p *ExpirationPolicy) Stamp(seq, nowMs int64) {
	p.deadlines[toIndex(seq, p.capacity)] = nowMs + p.ttlMs
}

// DeadlineAt returns the absolute deadline for the slot of seq.
func (p *ExpirationPolicy) DeadlineAt(seq int64) int64 {
	return p.deadlines[toIndex(seq, p.capacity)]
}

// SetDeadline overwrites the absolute deadline for the slot of seq.
func (p *ExpirationPolicy) SetDeadline(seq, deadlineMs int64) {
	p.deadlines[toIndex(seq, p.capacity)] = deadlineMs
}

// Clear marks the slot of seq as vacated.
func (p *ExpirationPolicy) Clear(seq int64) {
	p.deadlines[toIndex(seq, p.capacity)] = 0
}

// IsExpired reports whether the item at seq has reached its deadline. Only
// meaningful for live sequences, which are always stamped.
func (p *ExpirationPolicy) IsExpired(seq, nowMs int64) bool {
	return p.deadlines[toIndex(seq, p.capacity)] <= nowMs
}

// Restore replaces all deadlines in one step. The slice must have exactly
// capacity entries laid out by the shared slot mapping.
func (p *ExpirationPolicy) Restore(deadlines []int64) {
	p.deadlines = deadlines
}
