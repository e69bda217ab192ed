package dispatcher

import (
	"sync/atomic"
	"time"
)

// ServiceMetrics keeps in-process dispatch counters for the periodic report.
type ServiceMetrics struct {
	dispatched      atomic.Int64
	failed          atomic.Int64
	totalDurationNs atomic.Int64
	startedNs       atomic.Int64
}

func NewServiceMetrics() *ServiceMetrics {
	m := &ServiceMetrics{}
	m.startedNs.Store(time.Now().UnixNano())
	return m
}

func (m *ServiceMetrics) RecordSuccess(duration time.Duration) {
	m.dispatched.Add(1)
	m.totalDurationNs.Add(int64(duration))
}

func (m *ServiceMetrics) RecordFailure() {
	m.failed.Add(1)
}

func (m *ServiceMetrics) GetStats() map[string]interface{} {
	dispatched := m.dispatched.Load()
	failed := m.failed.Load()
	durationNs := m.totalDurationNs.Load()

	elapsed := time.Since(time.Unix(0, m.startedNs.Load())).Seconds()

	rate := 0.0
	if elapsed > 0 {
		rate = float64(dispatched) / elapsed
	}

	avgDuration := time.Duration(0)
	if dispatched > 0 {
		avgDuration = time.Duration(durationNs / dispatched)
	}

	return map[string]interface{}{
		"total_dispatched": dispatched,
		"total_failed":     failed,
		"rate_per_second":  rate,
		"avg_duration_ms":  avgDuration.Milliseconds(),
		"uptime_seconds":   elapsed,
	}
}

func (m *ServiceMetrics) Reset() {
	m.dispatched.Store(0)
	m.failed.Store(0)
	m.totalDurationNs.Store(0)
	m.startedNs.Store(time.Now().UnixNano())
}
