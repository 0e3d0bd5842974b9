// Package clock abstracts wall-clock access so expiration logic can be
// driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock supplies the current wall-clock time in epoch milliseconds.
type Clock interface {
	NowMs() int64
}

// System reads the operating system clock.
type System struct{}

func (System) NowMs() int64 {
	return time.Now().UnixMilli()
}

// Manual is a clock advanced explicitly by tests. Safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now int64
}

// NewManual creates a manual clock starting at the given epoch millisecond.
func NewManual(startMs int64) *Manual {
	return &Manual{now: startMs}
}

func (m *Manual) NowMs() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.AdvanceMs(d.Milliseconds())
}

// AdvanceMs moves the clock forward by ms milliseconds.
func (m *Manual) AdvanceMs(ms int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += ms
}

// Set jumps the clock to an absolute epoch millisecond.
func (m *Manual) Set(ms int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = ms
}
