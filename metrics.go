package authcore

import (
	"sync/atomic"
	"time"
)

// MetricID names one Engine counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginLocked
	MetricLoginPasswordExpired
	MetricLoginDisabled
	MetricAccountLocked
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricLogout
	MetricLogoutAll
	MetricAccessTokenRevoked
	MetricAccessTokenRejected
	MetricPasswordChangeSuccess
	MetricPasswordChangeInvalidOld
	MetricPasswordChangeReuseRejected
	MetricAccountCreated
	MetricAccountCreationDuplicate
	MetricAccountUpdated
	MetricAccountDeactivated
	MetricAccountUnlocked
	MetricInternalError
	// MetricInvariantViolation counts store states that contradict the
	// refresh rotation protocol. Any non-zero value warrants investigation.
	MetricInvariantViolation
	MetricVerifyLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

// verifyLatencyBounds are the inclusive upper bounds of the first seven
// verify-latency buckets. The eighth bucket is unbounded.
var verifyLatencyBounds = [histBucketCount - 1]time.Duration{
	50 * time.Microsecond,
	100 * time.Microsecond,
	250 * time.Microsecond,
	500 * time.Microsecond,
	time.Millisecond,
	5 * time.Millisecond,
	25 * time.Millisecond,
}

// LatencyBucketBounds returns the finite upper bounds of the verify-latency
// histogram.
func LatencyBucketBounds() []time.Duration {
	out := make([]time.Duration, len(verifyLatencyBounds))
	copy(out, verifyLatencyBounds[:])
	return out
}

type latencyHistogram struct {
	buckets  [histBucketCount]uint64
	sumNanos uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters plus one latency histogram
// for access-token verification.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	verify        latencyHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter. Histograms hold
// per-bucket (not cumulative) counts; LatencySums the total observed time.
type MetricsSnapshot struct {
	Counters    map[MetricID]uint64
	Histograms  map[MetricID][]uint64
	LatencySums map[MetricID]time.Duration
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount || id == MetricVerifyLatency {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d. Only MetricVerifyLatency keeps a histogram; other ids
// are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id != MetricVerifyLatency {
		return
	}
	if d < 0 {
		d = 0
	}
	atomic.AddUint64(&m.verify.buckets[bucketIndex(d)], 1)
	atomic.AddUint64(&m.verify.sumNanos, uint64(d))
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:    map[MetricID]uint64{},
		Histograms:  map[MetricID][]uint64{},
		LatencySums: map[MetricID]time.Duration{},
	}
	if !m.Enabled() {
		return s
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricVerifyLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.verify.buckets[i])
		}
		s.Histograms[MetricVerifyLatency] = buckets
		s.LatencySums[MetricVerifyLatency] = time.Duration(atomic.LoadUint64(&m.verify.sumNanos))
	}

	return s
}

func bucketIndex(d time.Duration) int {
	for i, bound := range verifyLatencyBounds {
		if d <= bound {
			return i
		}
	}
	return histBucketCount - 1
}
