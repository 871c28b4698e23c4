// Package monitor collects in-process counters and latency histograms
// exposed at the metrics endpoint.
package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SystemMetrics tracks overall system performance.
type SystemMetrics struct {
	mu sync.RWMutex

	// Latency histograms
	APILatency  *LatencyHistogram
	FillLatency *LatencyHistogram

	// Counters
	ordersSubmitted uint64
	fillsProcessed  uint64
	ticksProcessed  uint64
	apiRequests     uint64
	apiErrors       uint64

	// Session stats, updated periodically from main.
	activeSessions    int
	persistedSessions int
}

// LatencyHistogram tracks latency samples with a sliding window and
// lazily recomputed percentile stats.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// NewSystemMetrics creates a new metrics instance.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		APILatency:  NewLatencyHistogram(1000),
		FillLatency: NewLatencyHistogram(1000),
	}
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts duration to ms and records.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99. Recomputes only when
// samples have changed since the last call.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	min, max := sorted[0], sorted[n-1]
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   min,
		Max:   max,
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false

	return h.cachedStats
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

// IncrementOrders increments the submitted-orders counter.
func (m *SystemMetrics) IncrementOrders() {
	atomic.AddUint64(&m.ordersSubmitted, 1)
}

// IncrementFills increments the processed-fills counter.
func (m *SystemMetrics) IncrementFills() {
	atomic.AddUint64(&m.fillsProcessed, 1)
}

// IncrementTicks increments the processed-ticks counter.
func (m *SystemMetrics) IncrementTicks() {
	atomic.AddUint64(&m.ticksProcessed, 1)
}

// IncrementAPI increments the API request counter.
func (m *SystemMetrics) IncrementAPI() {
	atomic.AddUint64(&m.apiRequests, 1)
}

// IncrementAPIErrors increments the API error counter.
func (m *SystemMetrics) IncrementAPIErrors() {
	atomic.AddUint64(&m.apiErrors, 1)
}

// SetSessionCounts updates resident and persisted session counts.
func (m *SystemMetrics) SetSessionCounts(active, persisted int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeSessions = active
	m.persistedSessions = persisted
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	APILatency        LatencyStats `json:"api_latency"`
	FillLatency       LatencyStats `json:"fill_latency"`
	OrdersSubmitted   uint64       `json:"orders_submitted"`
	FillsProcessed    uint64       `json:"fills_processed"`
	TicksProcessed    uint64       `json:"ticks_processed"`
	APIRequests       uint64       `json:"api_requests"`
	APIErrors         uint64       `json:"api_errors"`
	ActiveSessions    int          `json:"active_sessions"`
	PersistedSessions int          `json:"persisted_sessions"`
	GoroutineCount    int          `json:"goroutine_count"`
	HeapAlloc         uint64       `json:"heap_alloc_bytes"`
	HeapSys           uint64       `json:"heap_sys_bytes"`
	Timestamp         time.Time    `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *SystemMetrics) GetSnapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.mu.RLock()
	active := m.activeSessions
	persisted := m.persistedSessions
	m.mu.RUnlock()

	return MetricsSnapshot{
		APILatency:        m.APILatency.Stats(),
		FillLatency:       m.FillLatency.Stats(),
		OrdersSubmitted:   atomic.LoadUint64(&m.ordersSubmitted),
		FillsProcessed:    atomic.LoadUint64(&m.fillsProcessed),
		TicksProcessed:    atomic.LoadUint64(&m.ticksProcessed),
		APIRequests:       atomic.LoadUint64(&m.apiRequests),
		APIErrors:         atomic.LoadUint64(&m.apiErrors),
		ActiveSessions:    active,
		PersistedSessions: persisted,
		GoroutineCount:    runtime.NumGoroutine(),
		HeapAlloc:         memStats.HeapAlloc,
		HeapSys:           memStats.HeapSys,
		Timestamp:         time.Now(),
	}
}

// Timer helps measure operation duration.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

// NewTimer creates a timer that records to the given histogram.
func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{
		start:     time.Now(),
		histogram: h,
	}
}

// Stop records elapsed time to histogram.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
