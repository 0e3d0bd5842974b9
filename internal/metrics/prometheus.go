package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for a ringd node
type Metrics struct {
	// Ringbuffer operation metrics
	AddsTotal      prometheus.CounterVec
	AddDuration    prometheus.Histogram
	AddBytes       prometheus.Histogram
	ReadsTotal     prometheus.CounterVec
	ReadDuration   prometheus.Histogram
	EvictionsTotal prometheus.CounterVec
	ExpiredTotal   prometheus.CounterVec
	RingbufferSize prometheus.GaugeVec
	HeadSequence   prometheus.GaugeVec
	TailSequence   prometheus.GaugeVec

	// Replication metrics
	ReplicationAppendsTotal   prometheus.CounterVec
	ReplicationAppendDuration prometheus.Histogram
	ReplicationFailuresTotal  prometheus.CounterVec
	FullSyncsTotal            prometheus.Counter
	FullSyncDuration          prometheus.Histogram
	BackupAppliesTotal        prometheus.Counter
	BackupOutOfOrderTotal     prometheus.Counter

	// Near cache metrics
	NearCacheHitsTotal          prometheus.Counter
	NearCacheMissesTotal        prometheus.Counter
	NearCacheEvictionsTotal     prometheus.Counter
	NearCacheInvalidationsTotal prometheus.Counter
	NearCacheEntriesTotal       prometheus.Gauge

	// Gossip metrics
	GossipMembersTotal   prometheus.Gauge
	GossipMembersHealthy prometheus.Gauge
	GossipEventsTotal    prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   prometheus.CounterVec
	HTTPRequestDuration prometheus.Histogram

	// System metrics
	GoroutinesTotal prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics on the default
// registry
func NewMetrics(nodeID string) *Metrics {
	return NewMetricsWithRegistry(nodeID, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates all metrics on the given registry. Tests
// pass a fresh registry so repeated construction never collides.
func NewMetricsWithRegistry(nodeID string, reg prometheus.Registerer) *Metrics {
	labels := prometheus.Labels{"node_id": nodeID}
	factory := promauto.With(reg)

	return &Metrics{
		// Ringbuffer operation metrics
		AddsTotal: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "ringd",
			Subsystem:   "ringbuffer",
			Name:        "adds_total",
			Help:        "Total number of add operations by ringbuffer",
			ConstLabels: labels,
		}, []string{"ringbuffer"}),
		AddDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "ringd",
			Subsystem:   "ringbuffer",
			Name:        "add_duration_seconds",
			Help:        "Histogram of add operation durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		AddBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "ringd",
			Subsystem:   "ringbuffer",
			Name:        "add_bytes",
			Help:        "Histogram of added payload sizes in bytes",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(256, 2, 10), // 256B to 128KB
		}),
		ReadsTotal: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "ringd",
			Subsystem:   "ringbuffer",
			Name:        "reads_total",
			Help:        "Total number of read operations by ringbuffer",
			ConstLabels: labels,
		}, []string{"ringbuffer"}),
		ReadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "ringd",
			Subsystem:   "ringbuffer",
			Name:        "read_duration_seconds",
			Help:        "Histogram of read operation durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		EvictionsTotal: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "ringd",
			Subsystem:   "ringbuffer",
			Name:        "evictions_total",
			Help:        "Total number of items evicted by capacity overwrite",
			ConstLabels: labels,
		}, []string{"ringbuffer"}),
		ExpiredTotal: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "ringd",
			Subsystem:   "ringbuffer",
			Name:        "expired_total",
			Help:        "Total number of items removed by the TTL sweep",
			ConstLabels: labels,
		}, []string{"ringbuffer"}),
		RingbufferSize: *factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "ringd",
			Subsystem:   "ringbuffer",
			Name:        "size",
			Help:        "Current number of retained items by ringbuffer",
			ConstLabels: labels,
		}, []string{"ringbuffer"}),
		HeadSequence: *factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "ringd",
			Subsystem:   "ringbuffer",
			Name:        "head_sequence",
			Help:        "Oldest retained sequence by ringbuffer",
			ConstLabels: labels,
		}, []string{"ringbuffer"}),
		TailSequence: *factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "ringd",
			Subsystem:   "ringbuffer",
			Name:        "tail_sequence",
			Help:        "Newest assigned sequence by ringbuffer",
			ConstLabels: labels,
		}, []string{"ringbuffer"}),

		// Replication metrics
		ReplicationAppendsTotal: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "ringd",
			Subsystem:   "replication",
			Name:        "appends_total",
			Help:        "Total number of backup appends by mode",
			ConstLabels: labels,
		}, []string{"mode"}),
		ReplicationAppendDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "ringd",
			Subsystem:   "replication",
			Name:        "append_duration_seconds",
			Help:        "Histogram of backup append round trip durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		ReplicationFailuresTotal: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "ringd",
			Subsystem:   "replication",
			Name:        "failures_total",
			Help:        "Total number of failed backup appends by mode",
			ConstLabels: labels,
		}, []string{"mode"}),
		FullSyncsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "ringd",
			Subsystem:   "replication",
			Name:        "full_syncs_total",
			Help:        "Total number of full container syncs sent",
			ConstLabels: labels,
		}),
		FullSyncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "ringd",
			Subsystem:   "replication",
			Name:        "full_sync_duration_seconds",
			Help:        "Histogram of full container sync durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		BackupAppliesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "ringd",
			Subsystem:   "replication",
			Name:        "backup_applies_total",
			Help:        "Total number of backup appends applied on this node",
			ConstLabels: labels,
		}),
		BackupOutOfOrderTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "ringd",
			Subsystem:   "replication",
			Name:        "backup_out_of_order_total",
			Help:        "Total number of backup appends rejected for ordering gaps",
			ConstLabels: labels,
		}),

		// Near cache metrics
		NearCacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "ringd",
			Subsystem:   "nearcache",
			Name:        "hits_total",
			Help:        "Total number of near cache hits",
			ConstLabels: labels,
		}),
		NearCacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "ringd",
			Subsystem:   "nearcache",
			Name:        "misses_total",
			Help:        "Total number of near cache misses",
			ConstLabels: labels,
		}),
		NearCacheEvictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "ringd",
			Subsystem:   "nearcache",
			Name:        "evictions_total",
			Help:        "Total number of near cache evictions",
			ConstLabels: labels,
		}),
		NearCacheInvalidationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "ringd",
			Subsystem:   "nearcache",
			Name:        "invalidations_total",
			Help:        "Total number of near cache invalidations",
			ConstLabels: labels,
		}),
		NearCacheEntriesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "ringd",
			Subsystem:   "nearcache",
			Name:        "entries_total",
			Help:        "Current number of near cache entries",
			ConstLabels: labels,
		}),

		// Gossip metrics
		GossipMembersTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "ringd",
			Subsystem:   "gossip",
			Name:        "members_total",
			Help:        "Total number of gossip members",
			ConstLabels: labels,
		}),
		GossipMembersHealthy: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "ringd",
			Subsystem:   "gossip",
			Name:        "members_healthy",
			Help:        "Number of healthy gossip members",
			ConstLabels: labels,
		}),
		GossipEventsTotal: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "ringd",
			Subsystem:   "gossip",
			Name:        "events_total",
			Help:        "Total number of membership events by type",
			ConstLabels: labels,
		}, []string{"type"}),

		// HTTP metrics
		HTTPRequestsTotal: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "ringd",
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "Total number of HTTP requests by method, route and status",
			ConstLabels: labels,
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "ringd",
			Subsystem:   "http",
			Name:        "request_duration_seconds",
			Help:        "Histogram of HTTP request durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),

		// System metrics
		GoroutinesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "ringd",
			Subsystem:   "system",
			Name:        "goroutines_total",
			Help:        "Current number of goroutines",
			ConstLabels: labels,
		}),
	}
}

// RecordAdd records metrics for an add operation
func (m *Metrics) RecordAdd(ringbuffer string, duration float64, bytes int) {
	m.AddsTotal.WithLabelValues(ringbuffer).Inc()
	m.AddDuration.Observe(duration)
	m.AddBytes.Observe(float64(bytes))
}

// RecordRead records metrics for a read operation
func (m *Metrics) RecordRead(ringbuffer string, duration float64) {
	m.ReadsTotal.WithLabelValues(ringbuffer).Inc()
	m.ReadDuration.Observe(duration)
}

// RecordEviction records a capacity eviction
func (m *Metrics) RecordEviction(ringbuffer string) {
	m.EvictionsTotal.WithLabelValues(ringbuffer).Inc()
}

// RecordExpired records items removed by the TTL sweep
func (m *Metrics) RecordExpired(ringbuffer string, count int64) {
	m.ExpiredTotal.WithLabelValues(ringbuffer).Add(float64(count))
}

// UpdateRingbufferState updates the per-ringbuffer gauges
func (m *Metrics) UpdateRingbufferState(ringbuffer string, size, head, tail int64) {
	m.RingbufferSize.WithLabelValues(ringbuffer).Set(float64(size))
	m.HeadSequence.WithLabelValues(ringbuffer).Set(float64(head))
	m.TailSequence.WithLabelValues(ringbuffer).Set(float64(tail))
}

// RecordReplicationAppend records a backup append round trip
func (m *Metrics) RecordReplicationAppend(mode string, duration float64) {
	m.ReplicationAppendsTotal.WithLabelValues(mode).Inc()
	m.ReplicationAppendDuration.Observe(duration)
}

// RecordReplicationFailure records a failed backup append
func (m *Metrics) RecordReplicationFailure(mode string) {
	m.ReplicationFailuresTotal.WithLabelValues(mode).Inc()
}

// RecordFullSync records a full container sync
func (m *Metrics) RecordFullSync(duration float64) {
	m.FullSyncsTotal.Inc()
	m.FullSyncDuration.Observe(duration)
}

// RecordBackupApply records a backup append applied locally
func (m *Metrics) RecordBackupApply() {
	m.BackupAppliesTotal.Inc()
}

// RecordBackupOutOfOrder records an ordering gap detected on apply
func (m *Metrics) RecordBackupOutOfOrder() {
	m.BackupOutOfOrderTotal.Inc()
}

// RecordNearCacheHit records a near cache hit
func (m *Metrics) RecordNearCacheHit() {
	m.NearCacheHitsTotal.Inc()
}

// RecordNearCacheMiss records a near cache miss
func (m *Metrics) RecordNearCacheMiss() {
	m.NearCacheMissesTotal.Inc()
}

// RecordNearCacheEviction records a near cache eviction
func (m *Metrics) RecordNearCacheEviction() {
	m.NearCacheEvictionsTotal.Inc()
}

// RecordNearCacheInvalidation records invalidated near cache entries
func (m *Metrics) RecordNearCacheInvalidation(count int) {
	m.NearCacheInvalidationsTotal.Add(float64(count))
}

// UpdateNearCacheEntries updates the near cache entry gauge
func (m *Metrics) UpdateNearCacheEntries(entries int) {
	m.NearCacheEntriesTotal.Set(float64(entries))
}

// UpdateGossipStats updates gossip statistics
func (m *Metrics) UpdateGossipStats(totalMembers, healthyMembers int) {
	m.GossipMembersTotal.Set(float64(totalMembers))
	m.GossipMembersHealthy.Set(float64(healthyMembers))
}

// RecordGossipEvent records a membership event
func (m *Metrics) RecordGossipEvent(eventType string) {
	m.GossipEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.Observe(duration)
}

// UpdateSystemStats updates system-level statistics
func (m *Metrics) UpdateSystemStats(goroutines int) {
	m.GoroutinesTotal.Set(float64(goroutines))
}
