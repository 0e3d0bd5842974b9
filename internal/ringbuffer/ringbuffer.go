package ringbuffer

// Ringbuffer is the raw circular item store. It hands out monotonically
// increasing sequences and overwrites the oldest slot once full. Slot access
// is unchecked; bounds enforcement is the container's job. Not safe for
// concurrent use.
type Ringbuffer struct {
	items    []interface{}
	capacity int64
	tailSeq  int64
	headSeq  int64
}

// NewRingbuffer creates an empty ring with the given fixed capacity.
// The empty state is tailSequence == -1, headSequence == 0.
func NewRingbuffer(capacity int64) *Ringbuffer {
	return &Ringbuffer{
		items:    make([]interface{}, capacity),
		capacity: capacity,
		tailSeq:  -1,
		headSeq:  0,
	}
}

func (r *Ringbuffer) Capacity() int64 {
	return r.capacity
}

// Size returns the number of retained items, never exceeding capacity.
func (r *Ringbuffer) Size() int64 {
	return r.tailSeq - r.headSeq + 1
}

func (r *Ringbuffer) IsEmpty() bool {
	return r.Size() == 0
}

func (r *Ringbuffer) TailSequence() int64 {
	return r.tailSeq
}

func (r *Ringbuffer) HeadSequence() int64 {
	return r.headSeq
}

// SetTailSequence moves the tail bookkeeping without touching slots.
func (r *Ringbuffer) SetTailSequence(seq int64) {
	r.tailSeq = seq
}

// SetHeadSequence moves the head bookkeeping without touching slots. Items
// below the new head become unreadable even though their slots still hold
// data until overwritten.
func (r *Ringbuffer) SetHeadSequence(seq int64) {
	r.headSeq = seq
}

// Add claims the next sequence and stores the item there. When the ring is
// full the head advances by one, evicting the oldest item.
func (r *Ringbuffer) Add(item interface{}) int64 {
	r.tailSeq++
	if r.tailSeq-r.headSeq >= r.capacity {
		r.headSeq = r.tailSeq - r.capacity + 1
	}
	r.items[toIndex(r.tailSeq, r.capacity)] = item
	return r.tailSeq
}

// Read returns the item stored at the slot for seq without bounds checking.
func (r *Ringbuffer) Read(seq int64) interface{} {
	return r.items[toIndex(seq, r.capacity)]
}

// Set replaces the item at the slot for seq without bookkeeping changes.
func (r *Ringbuffer) Set(seq int64, item interface{}) {
	r.items[toIndex(seq, r.capacity)] = item
}

// Restore replaces the entire ring state in one step. The items slice must
// have exactly capacity entries laid out by the shared slot mapping.
func (r *Ringbuffer) Restore(items []interface{}, headSeq, tailSeq int64) {
	r.items = items
	r.headSeq = headSeq
	r.tailSeq = tailSeq
}

// Clear drops all items and returns the ring to its empty state.
func (r *Ringbuffer) Clear() {
	r.items = make([]interface{}, r.capacity)
	r.tailSeq = -1
	r.headSeq = 0
}
