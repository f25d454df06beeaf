// Package metrics implements the lock-free in-process counters and latency
// histogram exposed through the root package. Storage stays dependency
// free; exporters live under metrics/export.
package metrics

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a single counter or histogram.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginLocked
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricResolveSession
	MetricResolveToken
	MetricResolveRejected
	MetricSessionCreated
	MetricSessionDestroyed
	MetricSessionPromoted
	MetricHashMigration
	MetricCSRFRejected
	MetricPasswordChange
	MetricPasswordResetRequest
	MetricPasswordResetConfirm
	MetricEmailVerified
	MetricAccountCreated
	MetricResolveLatency
	MetricIDCount
)

// Name returns the stable dotted name used by exporters.
func (id MetricID) Name() string {
	switch id {
	case MetricLoginSuccess:
		return "authgate.login.success"
	case MetricLoginFailure:
		return "authgate.login.failure"
	case MetricLoginLocked:
		return "authgate.login.locked"
	case MetricRefreshSuccess:
		return "authgate.refresh.success"
	case MetricRefreshFailure:
		return "authgate.refresh.failure"
	case MetricResolveSession:
		return "authgate.resolve.session"
	case MetricResolveToken:
		return "authgate.resolve.token"
	case MetricResolveRejected:
		return "authgate.resolve.rejected"
	case MetricSessionCreated:
		return "authgate.session.created"
	case MetricSessionDestroyed:
		return "authgate.session.destroyed"
	case MetricSessionPromoted:
		return "authgate.session.promoted"
	case MetricHashMigration:
		return "authgate.password.migrated"
	case MetricCSRFRejected:
		return "authgate.csrf.rejected"
	case MetricPasswordChange:
		return "authgate.password.changed"
	case MetricPasswordResetRequest:
		return "authgate.password_reset.requested"
	case MetricPasswordResetConfirm:
		return "authgate.password_reset.confirmed"
	case MetricEmailVerified:
		return "authgate.email.verified"
	case MetricAccountCreated:
		return "authgate.account.created"
	case MetricResolveLatency:
		return "authgate.resolve.latency"
	default:
		return "authgate.unknown"
	}
}

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

// HistogramBoundsMS are the upper bounds (milliseconds) of the latency
// buckets; the final bucket is open ended.
var HistogramBoundsMS = [histBucketCount - 1]int64{5, 10, 25, 50, 100, 250, 500}

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Config controls which parts of the metrics system are live.
type Config struct {
	Enabled       bool
	EnableLatency bool
}

// Metrics holds one padded counter per MetricID plus the resolve latency
// histogram. All operations are safe for concurrent use; disabled
// instances are no-ops.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [MetricIDCount]paddedCounter
	histograms    [MetricIDCount]metricHistogram
}

// Snapshot is a point-in-time deep copy of all metrics.
type Snapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func New(cfg Config) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatency,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= MetricIDCount {
		return
	}
	if id != MetricResolveLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= MetricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil || !m.enabled {
		return Snapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := Snapshot{
		Counters:   make(map[MetricID]uint64, int(MetricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < MetricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricResolveLatency].buckets[i])
		}
		s.Histograms[MetricResolveLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	for i, bound := range HistogramBoundsMS {
		if ms <= bound {
			return i
		}
	}
	return histBucketCount - 1
}
