package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestCounter_IncAndAdd(t *testing.T) {
	c := NewCounter("test.counter")
	if c.Value() != 0 {
		t.Fatalf("initial value = %d, want 0", c.Value())
	}
	c.Inc()
	c.Add(9)
	if c.Value() != 10 {
		t.Fatalf("after Inc+Add(9) value = %d, want 10", c.Value())
	}
	// Negative adds must be ignored (counters are monotonic).
	c.Add(-5)
	if c.Value() != 10 {
		t.Fatalf("after Add(-5) value = %d, want 10 (negatives ignored)", c.Value())
	}
	if c.Name() != "test.counter" {
		t.Fatalf("name = %q, want %q", c.Name(), "test.counter")
	}
}

func TestGauge_SetIncDec(t *testing.T) {
	g := NewGauge("test.gauge")
	g.Set(42)
	g.Inc()
	g.Dec()
	g.Dec()
	if g.Value() != 41 {
		t.Fatalf("after Set(42)+Inc+2*Dec value = %d, want 41", g.Value())
	}
	g.Set(-10) // gauges can go negative
	if g.Value() != -10 {
		t.Fatalf("after Set(-10) value = %d, want -10", g.Value())
	}
}

func TestHistogram_Observe(t *testing.T) {
	h := NewHistogram("test.hist")
	if h.Count() != 0 || h.Min() != 0 || h.Max() != 0 || h.Mean() != 0 {
		t.Fatalf("empty histogram not all-zero: count=%d min=%f max=%f mean=%f", h.Count(), h.Min(), h.Max(), h.Mean())
	}
	h.Observe(10)
	h.Observe(20)
	h.Observe(30)
	if h.Count() != 3 || h.Sum() != 60 || h.Min() != 10 || h.Max() != 30 || h.Mean() != 20 {
		t.Fatalf("after observing 10,20,30: count=%d sum=%f min=%f max=%f mean=%f",
			h.Count(), h.Sum(), h.Min(), h.Max(), h.Mean())
	}
}

func TestHistogram_NegativeAndMixedValues(t *testing.T) {
	h := NewHistogram("test.mixed")
	h.Observe(-100.5)
	h.Observe(0)
	h.Observe(100.5)
	if h.Min() != -100.5 || h.Max() != 100.5 || h.Mean() != 0 {
		t.Fatalf("min=%f max=%f mean=%f, want -100.5/100.5/0", h.Min(), h.Max(), h.Mean())
	}
}

func TestTimer_Stop(t *testing.T) {
	h := NewHistogram("test.timer")
	timer := NewTimer(h)
	time.Sleep(time.Millisecond)
	if d := timer.Stop(); d <= 0 {
		t.Fatalf("duration = %v, want > 0", d)
	}
	if h.Count() != 1 || h.Min() < 1 {
		t.Fatalf("histogram after Stop: count=%d min=%f, want count 1 and min >= 1ms", h.Count(), h.Min())
	}

	// A timer with a nil histogram must not panic.
	if d := NewTimer(nil).Stop(); d < 0 {
		t.Fatalf("nil-hist duration = %v, want >= 0", d)
	}
}

func TestRegistry_GetOrCreateIsIdempotent(t *testing.T) {
	r := NewRegistry()
	if r.Counter("ops") != r.Counter("ops") {
		t.Fatal("Counter: repeated lookup returned different instances")
	}
	if r.Gauge("peers") != r.Gauge("peers") {
		t.Fatal("Gauge: repeated lookup returned different instances")
	}
	if r.Histogram("latency") != r.Histogram("latency") {
		t.Fatal("Histogram: repeated lookup returned different instances")
	}
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry()
	r.Counter("c").Add(5)
	r.Gauge("g").Set(42)
	h := r.Histogram("h")
	h.Observe(10)
	h.Observe(20)

	snap := r.Snapshot()
	if v := snap["c"]; v.(int64) != 5 {
		t.Fatalf("counter c = %v, want 5", v)
	}
	if v := snap["g"]; v.(int64) != 42 {
		t.Fatalf("gauge g = %v, want 42", v)
	}
	hm := snap["h"].(map[string]interface{})
	if hm["count"].(int64) != 2 || hm["sum"].(float64) != 30 || hm["mean"].(float64) != 15 {
		t.Fatalf("histogram h snapshot = %+v, want count 2 sum 30 mean 15", hm)
	}
}

func TestConcurrentCounterGaugeHistogram(t *testing.T) {
	c := NewCounter("concurrent.counter")
	g := NewGauge("concurrent.gauge")
	h := NewHistogram("concurrent.hist")

	const goroutines, iterations = 100, 1000
	var wg sync.WaitGroup
	wg.Add(goroutines * 3)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				c.Inc()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				g.Inc()
				g.Dec()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				h.Observe(float64(j))
			}
		}()
	}
	wg.Wait()

	want := int64(goroutines * iterations)
	if c.Value() != want {
		t.Fatalf("counter = %d, want %d", c.Value(), want)
	}
	if g.Value() != 0 {
		t.Fatalf("gauge = %d, want 0", g.Value())
	}
	if h.Count() != want {
		t.Fatalf("histogram count = %d, want %d", h.Count(), want)
	}
}

func TestStandardMetricNamesAreDistinct(t *testing.T) {
	names := []string{MetricGets, MetricPuts, MetricDeletes, MetricNodeBytes, MetricCacheHits, MetricCacheMisses}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if n == "" {
			t.Fatal("standard metric name is empty")
		}
		if seen[n] {
			t.Fatalf("duplicate standard metric name %q", n)
		}
		seen[n] = true
	}
}
