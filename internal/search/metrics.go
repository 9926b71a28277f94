package search

import (
	"sort"
	"sync"
	"time"
)

// maxLatencySamples bounds the per-endpoint latency window so the collector
// cannot grow without bound.
const maxLatencySamples = 100

// Metrics is the process-wide request metrics collector. All mutating
// operations are internally synchronized since many pipeline runs share it.
type Metrics struct {
	mu                 sync.Mutex
	totalRequests      uint64
	successfulRequests uint64
	failedRequests     uint64
	cacheHits          uint64
	cacheMisses        uint64
	totalLatency       time.Duration
	requestTimes       map[string][]time.Duration
	errorCounts        map[string]uint64
}

// EndpointStats summarizes the retained latency window of one endpoint.
// Latencies are in seconds.
type EndpointStats struct {
	Count int     `json:"count"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	TotalRequests      uint64                   `json:"total_requests"`
	SuccessfulRequests uint64                   `json:"successful_requests"`
	FailedRequests     uint64                   `json:"failed_requests"`
	SuccessRate        float64                  `json:"success_rate"`
	CacheHits          uint64                   `json:"cache_hits"`
	CacheMisses        uint64                   `json:"cache_misses"`
	CacheHitRate       float64                  `json:"cache_hit_rate"`
	AverageLatency     float64                  `json:"average_latency"`
	EndpointStats      map[string]EndpointStats `json:"endpoint_stats"`
	ErrorCounts        map[string]uint64        `json:"error_counts"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		requestTimes: make(map[string][]time.Duration),
		errorCounts:  make(map[string]uint64),
	}
}

// RecordRequest records one completed request with its outcome and latency.
func (m *Metrics) RecordRequest(endpoint string, success bool, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalRequests++
	if success {
		m.successfulRequests++
	} else {
		m.failedRequests++
	}
	m.totalLatency += latency

	times := append(m.requestTimes[endpoint], latency)
	if len(times) > maxLatencySamples {
		times = times[len(times)-maxLatencySamples:]
	}
	m.requestTimes[endpoint] = times
}

func (m *Metrics) RecordCacheHit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheHits++
}

func (m *Metrics) RecordCacheMiss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheMisses++
}

// RecordError counts an error by its machine-readable type.
func (m *Metrics) RecordError(errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCounts[errorType]++
}

// Snapshot returns a copy of the current metrics.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := Snapshot{
		TotalRequests:      m.totalRequests,
		SuccessfulRequests: m.successfulRequests,
		FailedRequests:     m.failedRequests,
		CacheHits:          m.cacheHits,
		CacheMisses:        m.cacheMisses,
		EndpointStats:      make(map[string]EndpointStats, len(m.requestTimes)),
		ErrorCounts:        make(map[string]uint64, len(m.errorCounts)),
	}
	if m.totalRequests > 0 {
		snapshot.SuccessRate = float64(m.successfulRequests) / float64(m.totalRequests)
		snapshot.AverageLatency = m.totalLatency.Seconds() / float64(m.totalRequests)
	}
	if lookups := m.cacheHits + m.cacheMisses; lookups > 0 {
		snapshot.CacheHitRate = float64(m.cacheHits) / float64(lookups)
	}
	for errorType, count := range m.errorCounts {
		snapshot.ErrorCounts[errorType] = count
	}
	for endpoint, times := range m.requestTimes {
		snapshot.EndpointStats[endpoint] = summarize(times)
	}
	return snapshot
}

// Reset zeroes all counters.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalRequests = 0
	m.successfulRequests = 0
	m.failedRequests = 0
	m.cacheHits = 0
	m.cacheMisses = 0
	m.totalLatency = 0
	m.requestTimes = make(map[string][]time.Duration)
	m.errorCounts = make(map[string]uint64)
}

func summarize(times []time.Duration) EndpointStats {
	sorted := make([]float64, len(times))
	var total float64
	for i, t := range times {
		sorted[i] = t.Seconds()
		total += t.Seconds()
	}
	sort.Float64s(sorted)

	n := len(sorted)
	stats := EndpointStats{
		Count: n,
		Avg:   total / float64(n),
		Min:   sorted[0],
		Max:   sorted[n-1],
		P50:   sorted[n/2],
	}
	stats.P95 = sorted[percentileIndex(n, 0.95)]
	stats.P99 = sorted[percentileIndex(n, 0.99)]
	return stats
}

func percentileIndex(n int, quantile float64) int {
	if n <= 1 {
		return 0
	}
	index := int(float64(n) * quantile)
	if index >= n {
		index = n - 1
	}
	return index
}
