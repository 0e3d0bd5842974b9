package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loopgrid/ringd/internal/clock"
	"github.com/loopgrid/ringd/internal/errors"
	"github.com/loopgrid/ringd/internal/metrics"
	"github.com/loopgrid/ringd/internal/nearcache"
	"github.com/loopgrid/ringd/internal/ringbuffer"
	"github.com/loopgrid/ringd/internal/serialization"
)

const baseMs = int64(1_700_000_000_000)

type replicatedAppend struct {
	name       string
	seq        int64
	payload    []byte
	syncCount  int
	asyncCount int
}

type fakeReplicator struct {
	mu      sync.Mutex
	appends []replicatedAppend
}

func (f *fakeReplicator) ReplicateAppend(ctx context.Context, name string, seq int64, payload serialization.Data, syncCount, asyncCount int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appends = append(f.appends, replicatedAppend{
		name: name, seq: seq, payload: []byte(payload), syncCount: syncCount, asyncCount: asyncCount,
	})
}

func (f *fakeReplicator) recorded() []replicatedAppend {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]replicatedAppend(nil), f.appends...)
}

func testDefs() []ringbuffer.Config {
	return []ringbuffer.Config{
		{Name: "events", Capacity: 3, BackupCount: 1, AsyncBackupCount: 1, InMemoryFormat: serialization.FormatBinary},
		{Name: "audit", Capacity: 4, InMemoryFormat: serialization.FormatBinary, TimeToLiveSeconds: 30},
	}
}

func newTestService(t *testing.T, clk clock.Clock) (*RingbufferService, *nearcache.Cache) {
	t.Helper()
	m := metrics.NewMetricsWithRegistry("service-test", prometheus.NewRegistry())
	codec := serialization.NewMsgpackService()
	cache := nearcache.New(nearcache.Config{
		Enabled:    true,
		MaxEntries: 64,
		Format:     serialization.FormatBinary,
	}, codec, clk, nil, zap.NewNop(), m)

	svc, err := NewRingbufferService(testDefs(), codec, clk, cache, time.Hour, zap.NewNop(), m)
	require.NoError(t, err)
	t.Cleanup(svc.Stop)
	return svc, cache
}

func TestServiceAddAndReadOne(t *testing.T) {
	clk := clock.NewManual(baseMs)
	svc, _ := newTestService(t, clk)
	ctx := context.Background()

	seq, err := svc.Add(ctx, "events", []byte("first"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)

	seq, err = svc.Add(ctx, "events", []byte("second"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)

	data, err := svc.ReadOne(ctx, "events", 1)
	require.NoError(t, err)
	assert.Equal(t, serialization.Data("second"), data)

	info, err := svc.Info("events")
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Capacity)
	assert.Equal(t, int64(2), info.Size)
	assert.Equal(t, int64(0), info.HeadSequence)
	assert.Equal(t, int64(1), info.TailSequence)
	assert.Equal(t, 1, info.BackupCount)
	assert.Equal(t, 1, info.AsyncBackupCount)
}

func TestServiceUnknownRingbuffer(t *testing.T) {
	clk := clock.NewManual(baseMs)
	svc, _ := newTestService(t, clk)
	ctx := context.Background()

	_, err := svc.Add(ctx, "missing", []byte("x"))
	assert.Equal(t, errors.ErrCodeRingbufferNotFound, errors.GetCode(err))

	_, err = svc.ReadOne(ctx, "missing", 0)
	assert.Equal(t, errors.ErrCodeRingbufferNotFound, errors.GetCode(err))

	_, err = svc.ReadMany(ctx, "missing", 0, 10)
	assert.Equal(t, errors.ErrCodeRingbufferNotFound, errors.GetCode(err))

	_, err = svc.Info("missing")
	assert.Equal(t, errors.ErrCodeRingbufferNotFound, errors.GetCode(err))
}

func TestServiceRejectsDuplicateDefinitions(t *testing.T) {
	clk := clock.NewManual(baseMs)
	m := metrics.NewMetricsWithRegistry("service-dup-test", prometheus.NewRegistry())
	codec := serialization.NewMsgpackService()
	cache := nearcache.New(nearcache.Config{}, codec, clk, nil, zap.NewNop(), m)

	defs := []ringbuffer.Config{
		{Name: "events", Capacity: 3, InMemoryFormat: serialization.FormatBinary},
		{Name: "events", Capacity: 5, InMemoryFormat: serialization.FormatBinary},
	}
	_, err := NewRingbufferService(defs, codec, clk, cache, time.Hour, zap.NewNop(), m)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidArgument, errors.GetCode(err))
}

func TestServiceEvictionMakesOldSequencesStale(t *testing.T) {
	clk := clock.NewManual(baseMs)
	svc, _ := newTestService(t, clk)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := svc.Add(ctx, "events", []byte{byte(i)})
		require.NoError(t, err)
	}

	_, err := svc.ReadOne(ctx, "events", 0)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeStaleSequence, errors.GetCode(err))

	ringErr := err.(*errors.RingError)
	assert.Equal(t, int64(1), ringErr.Details["head_sequence"])
}

func TestServiceReplicatesAppliedAdds(t *testing.T) {
	clk := clock.NewManual(baseMs)
	svc, _ := newTestService(t, clk)
	replicator := &fakeReplicator{}
	svc.SetReplicator(replicator)
	ctx := context.Background()

	_, err := svc.Add(ctx, "events", []byte("replicate-me"))
	require.NoError(t, err)

	// A buffer with no configured backups produces no replication traffic.
	_, err = svc.Add(ctx, "audit", []byte("local-only"))
	require.NoError(t, err)

	recorded := replicator.recorded()
	require.Len(t, recorded, 1)
	assert.Equal(t, "events", recorded[0].name)
	assert.Equal(t, int64(0), recorded[0].seq)
	assert.Equal(t, []byte("replicate-me"), recorded[0].payload)
	assert.Equal(t, 1, recorded[0].syncCount)
	assert.Equal(t, 1, recorded[0].asyncCount)
}

func TestServiceNearCachePopulatedOnRead(t *testing.T) {
	clk := clock.NewManual(baseMs)
	svc, cache := newTestService(t, clk)
	ctx := context.Background()

	_, err := svc.Add(ctx, "events", []byte("cached"))
	require.NoError(t, err)
	assert.Zero(t, cache.Len())

	data, err := svc.ReadOne(ctx, "events", 0)
	require.NoError(t, err)
	assert.Equal(t, serialization.Data("cached"), data)
	assert.Equal(t, 1, cache.Len())

	// The repeat read is served without touching the container.
	data, err = svc.ReadOne(ctx, "events", 0)
	require.NoError(t, err)
	assert.Equal(t, serialization.Data("cached"), data)
	assert.Equal(t, 1, cache.Len())
}

func TestServiceEvictionInvalidatesNearCache(t *testing.T) {
	clk := clock.NewManual(baseMs)
	svc, cache := newTestService(t, clk)
	ctx := context.Background()

	_, err := svc.Add(ctx, "events", []byte("soon-gone"))
	require.NoError(t, err)
	_, err = svc.ReadOne(ctx, "events", 0)
	require.NoError(t, err)
	require.Equal(t, 1, cache.Len())

	// Fill past capacity so sequence 0 is evicted and swept from the cache.
	for i := 1; i < 4; i++ {
		_, err := svc.Add(ctx, "events", []byte{byte(i)})
		require.NoError(t, err)
	}

	assert.Zero(t, cache.Len())
}

func TestServiceCleanupPassExpiresOnlyTTLBuffers(t *testing.T) {
	clk := clock.NewManual(baseMs)
	svc, _ := newTestService(t, clk)
	ctx := context.Background()

	_, err := svc.Add(ctx, "audit", []byte("expiring"))
	require.NoError(t, err)
	_, err = svc.Add(ctx, "events", []byte("persistent"))
	require.NoError(t, err)

	clk.Advance(31 * time.Second)
	svc.runCleanupPass()

	_, err = svc.ReadOne(ctx, "audit", 0)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeStaleSequence, errors.GetCode(err))

	info, err := svc.Info("audit")
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size)

	// The TTL-less buffer keeps its items forever.
	data, err := svc.ReadOne(ctx, "events", 0)
	require.NoError(t, err)
	assert.Equal(t, serialization.Data("persistent"), data)
}

func TestServiceExecuteInstallsSyncedState(t *testing.T) {
	clk := clock.NewManual(baseMs)
	svc, cache := newTestService(t, clk)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := svc.Add(ctx, "events", []byte{byte(i)})
		require.NoError(t, err)
	}
	_, err := svc.ReadOne(ctx, "events", 3)
	require.NoError(t, err)
	require.Equal(t, 1, cache.Len())

	// A donor container two appends in, streamed and installed wholesale.
	donor, err := ringbuffer.NewContainer(ringbuffer.Config{
		Name: "events", Capacity: 3, BackupCount: 1, AsyncBackupCount: 1,
		InMemoryFormat: serialization.FormatBinary,
	}, serialization.NewMsgpackService(), clk)
	require.NoError(t, err)
	_, err = donor.Add(serialization.Data("donor-0"))
	require.NoError(t, err)
	_, err = donor.Add(serialization.Data("donor-1"))
	require.NoError(t, err)

	w := serialization.NewWriter()
	require.NoError(t, donor.WriteTo(w))

	err = svc.Execute("events", func(c *ringbuffer.Container) error {
		return c.ReadFrom(serialization.NewReader(w.Bytes()))
	})
	require.NoError(t, err)

	// The install moved the tail backwards, so cached reads were dropped.
	assert.Zero(t, cache.Len())

	data, err := svc.ReadOne(ctx, "events", 1)
	require.NoError(t, err)
	assert.Equal(t, serialization.Data("donor-1"), data)

	_, err = svc.ReadOne(ctx, "events", 3)
	assert.Equal(t, errors.ErrCodeSequenceOutOfBounds, errors.GetCode(err))
}

func TestServiceSnapshotRoundTrip(t *testing.T) {
	clk := clock.NewManual(baseMs)
	svc, _ := newTestService(t, clk)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.Add(ctx, "events", []byte{byte(10 + i)})
		require.NoError(t, err)
	}

	payload, err := svc.Snapshot("events")
	require.NoError(t, err)

	clone, err := ringbuffer.NewContainer(ringbuffer.Config{
		Name: "events", Capacity: 3, BackupCount: 1, AsyncBackupCount: 1,
		InMemoryFormat: serialization.FormatBinary,
	}, serialization.NewMsgpackService(), clk)
	require.NoError(t, err)
	require.NoError(t, clone.ReadFrom(serialization.NewReader(payload)))

	assert.Equal(t, int64(1), clone.TailSequence())
	data, err := clone.ReadOne(0)
	require.NoError(t, err)
	assert.Equal(t, serialization.Data{10}, data)
}

func TestServiceReadManySemantics(t *testing.T) {
	clk := clock.NewManual(baseMs)
	svc, _ := newTestService(t, clk)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Add(ctx, "events", []byte{byte(i)})
		require.NoError(t, err)
	}

	result, err := svc.ReadMany(ctx, "events", 1, 10)
	require.NoError(t, err)
	assert.Len(t, result.Items, 2)
	assert.Equal(t, int64(3), result.NextSequence)

	// Reading from one past the tail is an empty result, not an error.
	result, err = svc.ReadMany(ctx, "events", 3, 5)
	require.NoError(t, err)
	assert.Empty(t, result.Items)
	assert.Equal(t, int64(3), result.NextSequence)

	_, err = svc.ReadMany(ctx, "events", 0, 0)
	assert.Equal(t, errors.ErrCodeInvalidArgument, errors.GetCode(err))

	_, err = svc.ReadMany(ctx, "events", 9, 5)
	assert.Equal(t, errors.ErrCodeSequenceOutOfBounds, errors.GetCode(err))
}

func TestServiceReplicaCounts(t *testing.T) {
	clk := clock.NewManual(baseMs)
	svc, _ := newTestService(t, clk)

	counts := svc.ReplicaCounts()
	assert.Equal(t, map[string]int{"events": 2, "audit": 0}, counts)
	assert.Equal(t, []string{"audit", "events"}, svc.Names())
}
