package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestTimingMetric_Record(t *testing.T) {
	m := newTimingMetric("test")
	m.Record(2 * time.Millisecond)
	m.Record(4 * time.Millisecond)
	m.Record(3 * time.Millisecond)

	s := m.Stats()
	if s.Count != 3 || s.MinMs != 2 || s.MaxMs != 4 || s.AvgMs != 3 || s.TotalMs != 9 {
		t.Errorf("stats = %+v", s)
	}

	m.Reset()
	if m.Count() != 0 || m.Stats().MinMs != 0 {
		t.Errorf("after reset: %+v", m.Stats())
	}
}

func TestTimingMetric_Concurrent(t *testing.T) {
	m := newTimingMetric("concurrent")
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(d time.Duration) {
			defer wg.Done()
			m.Record(d)
		}(time.Duration(i) * time.Microsecond)
	}
	wg.Wait()

	s := m.Stats()
	if s.Count != 50 || s.MinMs != 0.001 || s.MaxMs != 0.05 {
		t.Errorf("stats = %+v", s)
	}
}

func TestDisabled(t *testing.T) {
	SetEnabled(false)
	defer SetEnabled(true)

	m := newTimingMetric("off")
	Timer(m)()
	m.Record(time.Second)
	c := &CacheMetric{name: "off"}
	c.Hit()
	if m.Count() != 0 || c.Stats().Hits != 0 {
		t.Error("disabled metrics should not record")
	}
}

func TestCacheMetric(t *testing.T) {
	c := &CacheMetric{name: "memo"}
	c.Hit()
	c.Hit()
	c.Hit()
	c.Miss()
	if s := c.Stats(); s.Hits != 3 || s.Misses != 1 || s.HitRate != 0.75 {
		t.Errorf("stats = %+v", s)
	}
}

func TestSnapshot_OnlyMetricsWithData(t *testing.T) {
	ResetAll()
	defer ResetAll()

	Refresh.Record(time.Millisecond)
	DocumentMemo.Miss()

	r := Snapshot()
	if len(r.Timings) != 1 || r.Timings[0].Name != "refresh" {
		t.Errorf("timings = %+v", r.Timings)
	}
	if len(r.Caches) != 1 || r.Caches[0].Name != "document_memo" {
		t.Errorf("caches = %+v", r.Caches)
	}
}
