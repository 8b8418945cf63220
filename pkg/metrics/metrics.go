// Package metrics keeps in-process timing and cache counters for the hot
// paths: refreshes, matrix computation, document decoding and chart draws.
//
// Counters are atomic and always on unless CV_METRICS=0. cvserve serves
// them at /metrics; cv logs them to the debug log on exit.
//
//	func compute() {
//	    defer metrics.Timer(metrics.Compute)()
//	    ...
//	}
package metrics

import (
	"os"
	"sync/atomic"
	"time"
)

var enabled atomic.Bool

func init() {
	enabled.Store(os.Getenv("CV_METRICS") != "0")
}

// Enabled returns whether metrics are collected.
func Enabled() bool {
	return enabled.Load()
}

// SetEnabled turns collection on or off.
func SetEnabled(e bool) {
	enabled.Store(e)
}

// TimingMetric tracks durations of one operation.
type TimingMetric struct {
	name    string
	count   atomic.Int64
	totalNs atomic.Int64
	maxNs   atomic.Int64
	minNs   atomic.Int64 // 0 means unset
}

func newTimingMetric(name string) *TimingMetric {
	return &TimingMetric{name: name}
}

// Record adds one measurement.
func (m *TimingMetric) Record(d time.Duration) {
	if !Enabled() {
		return
	}
	ns := d.Nanoseconds()
	m.count.Add(1)
	m.totalNs.Add(ns)

	for {
		old := m.maxNs.Load()
		if ns <= old || m.maxNs.CompareAndSwap(old, ns) {
			break
		}
	}
	for {
		old := m.minNs.Load()
		if old != 0 && ns >= old {
			break
		}
		if m.minNs.CompareAndSwap(old, ns) {
			break
		}
	}
}

// Name returns the metric name.
func (m *TimingMetric) Name() string { return m.name }

// Count returns the number of measurements.
func (m *TimingMetric) Count() int64 { return m.count.Load() }

// Stats snapshots the metric.
func (m *TimingMetric) Stats() TimingStats {
	count := m.count.Load()
	total := m.totalNs.Load()
	var avg int64
	if count > 0 {
		avg = total / count
	}
	return TimingStats{
		Name:    m.name,
		Count:   count,
		TotalMs: float64(total) / 1e6,
		AvgMs:   float64(avg) / 1e6,
		MaxMs:   float64(m.maxNs.Load()) / 1e6,
		MinMs:   float64(m.minNs.Load()) / 1e6,
	}
}

// Reset clears the metric.
func (m *TimingMetric) Reset() {
	m.count.Store(0)
	m.totalNs.Store(0)
	m.maxNs.Store(0)
	m.minNs.Store(0)
}

// TimingStats is a snapshot of a TimingMetric.
type TimingStats struct {
	Name    string  `json:"name"`
	Count   int64   `json:"count"`
	TotalMs float64 `json:"total_ms"`
	AvgMs   float64 `json:"avg_ms"`
	MaxMs   float64 `json:"max_ms"`
	MinMs   float64 `json:"min_ms,omitempty"`
}

// Timer returns a function that records the time elapsed since Timer was
// called. Use with defer.
func Timer(m *TimingMetric) func() {
	if !Enabled() || m == nil {
		return func() {}
	}
	start := time.Now()
	return func() { m.Record(time.Since(start)) }
}

// CacheMetric counts hits and misses of one cache.
type CacheMetric struct {
	name   string
	hits   atomic.Int64
	misses atomic.Int64
}

// Hit records a cache hit.
func (c *CacheMetric) Hit() {
	if Enabled() {
		c.hits.Add(1)
	}
}

// Miss records a cache miss.
func (c *CacheMetric) Miss() {
	if Enabled() {
		c.misses.Add(1)
	}
}

// Stats snapshots the metric.
func (c *CacheMetric) Stats() CacheStats {
	h, m := c.hits.Load(), c.misses.Load()
	var rate float64
	if h+m > 0 {
		rate = float64(h) / float64(h+m)
	}
	return CacheStats{Name: c.name, Hits: h, Misses: m, HitRate: rate}
}

// Reset clears the metric.
func (c *CacheMetric) Reset() {
	c.hits.Store(0)
	c.misses.Store(0)
}

// CacheStats is a snapshot of a CacheMetric.
type CacheStats struct {
	Name    string  `json:"name"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

var (
	Refresh   = newTimingMetric("refresh")
	Compute   = newTimingMetric("compute_matrix")
	Decode    = newTimingMetric("decode_document")
	ChartDraw = newTimingMetric("chart_draw")
	Export    = newTimingMetric("chart_export")

	DocumentMemo = &CacheMetric{name: "document_memo"}
)

// AllTimingMetrics returns every registered timing metric.
func AllTimingMetrics() []*TimingMetric {
	return []*TimingMetric{Refresh, Compute, Decode, ChartDraw, Export}
}

// AllCacheMetrics returns every registered cache metric.
func AllCacheMetrics() []*CacheMetric {
	return []*CacheMetric{DocumentMemo}
}

// ResetAll clears every metric.
func ResetAll() {
	for _, m := range AllTimingMetrics() {
		m.Reset()
	}
	for _, c := range AllCacheMetrics() {
		c.Reset()
	}
}

// Report is the /metrics response body.
type Report struct {
	Timings []TimingStats `json:"timings"`
	Caches  []CacheStats  `json:"caches"`
}

// Snapshot collects stats for every metric that has data.
func Snapshot() Report {
	var r Report
	for _, m := range AllTimingMetrics() {
		if m.Count() > 0 {
			r.Timings = append(r.Timings, m.Stats())
		}
	}
	for _, c := range AllCacheMetrics() {
		if s := c.Stats(); s.Hits+s.Misses > 0 {
			r.Caches = append(r.Caches, s)
		}
	}
	return r
}
