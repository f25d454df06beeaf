package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestIncAndValue(t *testing.T) {
	m := New(Config{Enabled: true})

	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginFailure)

	if got := m.Value(MetricLoginSuccess); got != 2 {
		t.Fatalf("login success = %d, want 2", got)
	}
	if got := m.Value(MetricLoginFailure); got != 1 {
		t.Fatalf("login failure = %d, want 1", got)
	}
	if got := m.Value(MetricLoginLocked); got != 0 {
		t.Fatalf("untouched counter = %d, want 0", got)
	}
}

func TestDisabledIsNoOp(t *testing.T) {
	m := New(Config{Enabled: false})

	m.Inc(MetricLoginSuccess)
	m.Observe(MetricResolveLatency, time.Millisecond)

	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("disabled counter = %d", got)
	}
	snap := m.Snapshot()
	if len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatalf("disabled snapshot not empty: %+v", snap)
	}
}

func TestNilReceiverSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricLoginSuccess)
	m.Observe(MetricResolveLatency, time.Millisecond)
	if m.Value(MetricLoginSuccess) != 0 {
		t.Fatal("nil metrics returned a value")
	}
	if m.Enabled() || m.LatencyEnabled() {
		t.Fatal("nil metrics reports enabled")
	}
}

func TestObserveBuckets(t *testing.T) {
	m := New(Config{Enabled: true, EnableLatency: true})

	durations := []time.Duration{
		3 * time.Millisecond,   // bucket 0 (<=5)
		5 * time.Millisecond,   // bucket 0
		20 * time.Millisecond,  // bucket 2 (<=25)
		400 * time.Millisecond, // bucket 6 (<=500)
		2 * time.Second,        // bucket 7 (open ended)
	}
	for _, d := range durations {
		m.Observe(MetricResolveLatency, d)
	}

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricResolveLatency]
	want := []uint64{2, 0, 1, 0, 0, 0, 1, 1}
	if len(buckets) != len(want) {
		t.Fatalf("bucket count = %d", len(buckets))
	}
	for i := range want {
		if buckets[i] != want[i] {
			t.Fatalf("bucket %d = %d, want %d (all %v)", i, buckets[i], want[i], buckets)
		}
	}
}

func TestObserveIgnoredWithoutLatency(t *testing.T) {
	m := New(Config{Enabled: true, EnableLatency: false})

	m.Observe(MetricResolveLatency, time.Millisecond)
	if _, ok := m.Snapshot().Histograms[MetricResolveLatency]; ok {
		t.Fatal("histogram present with latency disabled")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	m := New(Config{Enabled: true, EnableLatency: true})
	m.Inc(MetricLoginSuccess)

	snap := m.Snapshot()
	m.Inc(MetricLoginSuccess)

	if snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("snapshot mutated: %d", snap.Counters[MetricLoginSuccess])
	}
}

func TestMetricNamesStable(t *testing.T) {
	seen := make(map[string]MetricID, int(MetricIDCount))
	for id := MetricID(0); id < MetricIDCount; id++ {
		name := id.Name()
		if name == "authgate.unknown" {
			t.Fatalf("metric %d has no name", id)
		}
		if prior, dup := seen[name]; dup {
			t.Fatalf("metrics %d and %d share name %q", prior, id, name)
		}
		seen[name] = id
	}
}

func TestConcurrentInc(t *testing.T) {
	m := New(Config{Enabled: true})

	const workers, perWorker = 8, 1000
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.Inc(MetricResolveSession)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricResolveSession); got != workers*perWorker {
		t.Fatalf("counter = %d, want %d", got, workers*perWorker)
	}
}
