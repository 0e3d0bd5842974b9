package ringbuffer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToIndexFlooredModulo(t *testing.T) {
	tests := []struct {
		seq      int64
		capacity int64
		want     int64
	}{
		{0, 3, 0},
		{1, 3, 1},
		{2, 3, 2},
		{3, 3, 0},
		{5, 3, 2},
		{-1, 3, 2},
		{-3, 3, 0},
		{7, 1, 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d mod %d", tt.seq, tt.capacity), func(t *testing.T) {
			assert.Equal(t, tt.want, toIndex(tt.seq, tt.capacity))
		})
	}
}

func TestNewRingbufferIsEmpty(t *testing.T) {
	r := NewRingbuffer(3)

	assert.Equal(t, int64(-1), r.TailSequence())
	assert.Equal(t, int64(0), r.HeadSequence())
	assert.Equal(t, int64(0), r.Size())
	assert.Equal(t, int64(3), r.Capacity())
	assert.True(t, r.IsEmpty())
}

func TestAddAssignsMonotonicSequences(t *testing.T) {
	r := NewRingbuffer(3)

	for want := int64(0); want < 5; want++ {
		got := r.Add(fmt.Sprintf("item-%d", want))
		require.Equal(t, want, got)
	}
}

func TestAddEvictsOldestWhenFull(t *testing.T) {
	r := NewRingbuffer(3)

	for i := 0; i < 3; i++ {
		r.Add(i)
	}
	assert.Equal(t, int64(0), r.HeadSequence())
	assert.Equal(t, int64(3), r.Size())

	r.Add(3)
	assert.Equal(t, int64(1), r.HeadSequence())
	assert.Equal(t, int64(3), r.TailSequence())
	assert.Equal(t, int64(3), r.Size())

	// The surviving window reads back in sequence order.
	for seq := r.HeadSequence(); seq <= r.TailSequence(); seq++ {
		assert.Equal(t, int(seq), r.Read(seq))
	}
}

func TestSlotReuseAfterWrap(t *testing.T) {
	r := NewRingbuffer(2)

	r.Add("a") // seq 0, slot 0
	r.Add("b") // seq 1, slot 1
	r.Add("c") // seq 2, slot 0 again

	assert.Equal(t, "c", r.Read(2))
	assert.Equal(t, "b", r.Read(1))
}

func TestSetReplacesWithoutBookkeeping(t *testing.T) {
	r := NewRingbuffer(3)
	r.Add("a")
	r.Add("b")

	r.Set(0, nil)

	assert.Nil(t, r.Read(0))
	assert.Equal(t, int64(1), r.TailSequence())
	assert.Equal(t, int64(0), r.HeadSequence())
}

func TestRestoreReplacesState(t *testing.T) {
	r := NewRingbuffer(3)
	r.Add("stale")

	items := make([]interface{}, 3)
	items[toIndex(4, 3)] = "x"
	items[toIndex(5, 3)] = "y"
	r.Restore(items, 4, 5)

	assert.Equal(t, int64(4), r.HeadSequence())
	assert.Equal(t, int64(5), r.TailSequence())
	assert.Equal(t, int64(2), r.Size())
	assert.Equal(t, "x", r.Read(4))
	assert.Equal(t, "y", r.Read(5))
}

func TestClearReturnsToEmptyState(t *testing.T) {
	r := NewRingbuffer(3)
	r.Add("a")
	r.Add("b")

	r.Clear()

	assert.True(t, r.IsEmpty())
	assert.Equal(t, int64(-1), r.TailSequence())
	assert.Equal(t, int64(0), r.HeadSequence())
	assert.Nil(t, r.Read(0))
}

func TestHeadAdvancementHidesItems(t *testing.T) {
	r := NewRingbuffer(4)
	for i := 0; i < 4; i++ {
		r.Add(i)
	}

	r.SetHeadSequence(2)

	assert.Equal(t, int64(2), r.Size())
	assert.Equal(t, int64(2), r.HeadSequence())
}
