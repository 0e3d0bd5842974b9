package ringbuffer

import (
	"github.com/loopgrid/ringd/internal/clock"
	"github.com/loopgrid/ringd/internal/errors"
	"github.com/loopgrid/ringd/internal/serialization"
)

// Container couples a ring with its configuration, optional expiration
// policy, item codec and clock. It enforces read bounds, stamps expiration
// deadlines on append, and implements the transfer protocol used for backup
// synchronization.
//
// A container has a single logical owner and performs no internal locking;
// callers serialize access per container.
type Container struct {
	cfg        Config
	ring       *Ringbuffer
	expiration *ExpirationPolicy
	codec      serialization.Service
	clock      clock.Clock
}

// ReadResult is the outcome of a batch read.
type ReadResult struct {
	Items []serialization.Data
	// NextSequence is where a follow-up read should start.
	NextSequence int64
}

// NewContainer builds an empty container from a validated definition. A
// zero TTL leaves the container without an expiration policy.
func NewContainer(cfg Config, codec serialization.Service, clk clock.Clock) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Container{
		cfg:   cfg,
		ring:  NewRingbuffer(int64(cfg.Capacity)),
		codec: codec,
		clock: clk,
	}
	if cfg.TimeToLiveSeconds > 0 {
		c.expiration = NewExpirationPolicy(int64(cfg.Capacity), cfg.TTLMs())
	}
	return c, nil
}

// Config returns the definition this container was built from.
func (c *Container) Config() Config {
	return c.cfg
}

func (c *Container) Name() string {
	return c.cfg.Name
}

func (c *Container) Capacity() int64 {
	return c.ring.Capacity()
}

func (c *Container) Size() int64 {
	return c.ring.Size()
}

func (c *Container) IsEmpty() bool {
	return c.ring.IsEmpty()
}

func (c *Container) HeadSequence() int64 {
	return c.ring.HeadSequence()
}

func (c *Container) TailSequence() int64 {
	return c.ring.TailSequence()
}

// SetHeadSequence advances the head bookkeeping, logically dropping items
// below the new head. Slots are not wiped here.
func (c *Container) SetHeadSequence(seq int64) {
	c.ring.SetHeadSequence(seq)
}

// RemainingCapacity returns how many items fit before the oldest would be
// evicted. Without a TTL the ring overwrites unconditionally, so the full
// capacity is reported regardless of size.
func (c *Container) RemainingCapacity() int64 {
	if c.expiration == nil {
		return c.ring.Capacity()
	}
	return c.ring.Capacity() - c.ring.Size()
}

// HasExpirationPolicy reports whether a time-to-live is in force.
func (c *Container) HasExpirationPolicy() bool {
	return c.expiration != nil
}

// Add appends a payload, evicting the oldest item when the ring is full,
// and returns the assigned sequence. With a TTL in force the new item's
// deadline is stamped from this container's clock.
func (c *Container) Add(payload serialization.Data) (int64, error) {
	item, err := c.toStoredForm(payload)
	if err != nil {
		return 0, err
	}
	seq := c.ring.Add(item)
	if c.expiration != nil {
		c.expiration.Stamp(seq, c.clock.NowMs())
	}
	return seq, nil
}

// ReadOne returns the payload at seq. Reads below the head report a stale
// sequence carrying the current head; reads beyond the tail report the
// sequence as not yet available.
func (c *Container) ReadOne(seq int64) (serialization.Data, error) {
	if err := c.checkReadSequence(seq); err != nil {
		return nil, err
	}
	return c.toDataForm(c.ring.Read(seq))
}

// ReadMany returns up to maxCount payloads starting at start. Reading from
// tail+1 yields an empty result; the returned NextSequence is where the
// caller should continue.
func (c *Container) ReadMany(start int64, maxCount int) (ReadResult, error) {
	if maxCount < 1 {
		return ReadResult{}, errors.InvalidArgument("read count must be at least 1", nil).
			WithDetail("name", c.cfg.Name).
			WithDetail("count", maxCount)
	}
	head := c.ring.HeadSequence()
	tail := c.ring.TailSequence()
	if start < head {
		return ReadResult{}, errors.StaleSequence(c.cfg.Name, start, head)
	}
	if start > tail+1 {
		return ReadResult{}, errors.SequenceOutOfBounds(c.cfg.Name, start, tail)
	}

	end := start + int64(maxCount) - 1
	if end > tail {
		end = tail
	}
	items := make([]serialization.Data, 0, end-start+1)
	for seq := start; seq <= end; seq++ {
		data, err := c.toDataForm(c.ring.Read(seq))
		if err != nil {
			return ReadResult{}, err
		}
		items = append(items, data)
	}
	return ReadResult{Items: items, NextSequence: start + int64(len(items))}, nil
}

func (c *Container) checkReadSequence(seq int64) error {
	head := c.ring.HeadSequence()
	tail := c.ring.TailSequence()
	if seq < head {
		return errors.StaleSequence(c.cfg.Name, seq, head)
	}
	if seq > tail {
		return errors.SequenceOutOfBounds(c.cfg.Name, seq, tail)
	}
	return nil
}

// CleanupExpired advances the head past items whose deadline has passed,
// wiping their slots, and returns how many were removed. A container
// without a TTL never removes anything.
func (c *Container) CleanupExpired(nowMs int64) int64 {
	if c.expiration == nil {
		return 0
	}
	var removed int64
	for !c.ring.IsEmpty() {
		head := c.ring.HeadSequence()
		if !c.expiration.IsExpired(head, nowMs) {
			break
		}
		c.ring.Set(head, nil)
		c.expiration.Clear(head)
		c.ring.SetHeadSequence(head + 1)
		removed++
	}
	return removed
}

// WriteTo streams the container state in its transfer layout: name,
// capacity, head and tail sequences, the expiration policy marker (with
// the TTL when present), then every live item from head to tail. Per-item
// expiration is written as time remaining relative to this clock, which
// may be negative; absolute deadlines never cross the wire.
//
// On error the writer may hold a partial stream; callers use a fresh
// writer per attempt.
func (c *Container) WriteTo(w *serialization.Writer) error {
	w.WriteString(c.cfg.Name)
	w.WriteInt32(c.cfg.Capacity)
	w.WriteInt64(c.ring.HeadSequence())
	w.WriteInt64(c.ring.TailSequence())

	hasTTL := c.expiration != nil
	w.WriteBool(hasTTL)
	if hasTTL {
		w.WriteInt64(c.expiration.TTLMs())
	}

	nowMs := c.clock.NowMs()
	for seq := c.ring.HeadSequence(); seq <= c.ring.TailSequence(); seq++ {
		data, err := c.toDataForm(c.ring.Read(seq))
		if err != nil {
			return err
		}
		w.WriteByteArray(data)
		if hasTTL {
			w.WriteInt64(c.expiration.DeadlineAt(seq) - nowMs)
		}
	}
	return nil
}

// ReadFrom rebuilds the container from a transfer stream produced by
// WriteTo. The stream must match this container's configuration; any
// mismatch or decoding failure aborts with the container unchanged.
// Per-item deadlines are rebased onto this clock, preserving the time
// remaining that the sender observed.
func (c *Container) ReadFrom(r *serialization.Reader) error {
	name, err := r.ReadString("name")
	if err != nil {
		return err
	}
	if name != c.cfg.Name {
		return errors.ConfigMismatch(c.cfg.Name, "name", c.cfg.Name, name)
	}

	capacity, err := r.ReadInt32("capacity")
	if err != nil {
		return err
	}
	if capacity != c.cfg.Capacity {
		return errors.ConfigMismatch(c.cfg.Name, "capacity", c.cfg.Capacity, capacity)
	}

	head, err := r.ReadInt64("head sequence")
	if err != nil {
		return err
	}
	tail, err := r.ReadInt64("tail sequence")
	if err != nil {
		return err
	}
	if head < 0 || tail < head-1 || tail-head+1 > int64(capacity) {
		return errors.CorruptStream("stream sequence range is inconsistent", nil).
			WithDetail("name", c.cfg.Name).
			WithDetail("head_sequence", head).
			WithDetail("tail_sequence", tail)
	}

	hasTTL, err := r.ReadBool("expiration policy marker")
	if err != nil {
		return err
	}
	if hasTTL != (c.expiration != nil) {
		return errors.ConfigMismatch(c.cfg.Name, "expiration policy", c.expiration != nil, hasTTL)
	}
	if hasTTL {
		ttlMs, err := r.ReadInt64("ttl")
		if err != nil {
			return err
		}
		if ttlMs != c.expiration.TTLMs() {
			return errors.ConfigMismatch(c.cfg.Name, "ttl", c.expiration.TTLMs(), ttlMs)
		}
	}

	// Stage everything before touching live state so a torn stream cannot
	// leave a half-rebuilt container.
	items := make([]interface{}, capacity)
	var deadlines []int64
	if hasTTL {
		deadlines = make([]int64, capacity)
	}
	nowMs := c.clock.NowMs()
	for seq := head; seq <= tail; seq++ {
		raw, err := r.ReadByteArray("item")
		if err != nil {
			return err
		}
		item, err := c.toStoredForm(raw)
		if err != nil {
			return err
		}
		idx := toIndex(seq, int64(capacity))
		items[idx] = item
		if hasTTL {
			remainingMs, err := r.ReadInt64("remaining ttl")
			if err != nil {
				return err
			}
			deadlines[idx] = nowMs + remainingMs
		}
	}
	if r.Remaining() != 0 {
		return errors.CorruptStream("trailing bytes after container stream", nil).
			WithDetail("name", c.cfg.Name).
			WithDetail("trailing", r.Remaining())
	}

	c.ring.Restore(items, head, tail)
	if hasTTL {
		c.expiration.Restore(deadlines)
	}
	return nil
}

// toStoredForm converts a client payload into the slot representation for
// this container's in-memory format.
func (c *Container) toStoredForm(payload serialization.Data) (interface{}, error) {
	if c.cfg.InMemoryFormat == serialization.FormatObject {
		return c.codec.ToObject(payload)
	}
	return payload, nil
}

// toDataForm converts a slot value back into payload form.
func (c *Container) toDataForm(item interface{}) (serialization.Data, error) {
	if item == nil {
		return nil, nil
	}
	if c.cfg.InMemoryFormat == serialization.FormatObject {
		return c.codec.ToData(item)
	}
	data, ok := item.(serialization.Data)
	if !ok {
		return nil, errors.InternalError("slot holds a non-binary item in a binary ringbuffer", nil).
			WithDetail("name", c.cfg.Name)
	}
	return data, nil
}
