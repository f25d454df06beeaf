package otel

import (
	"errors"
	"testing"

	authgate "github.com/channelworks/authgate"
	"go.opentelemetry.io/otel/metric/noop"
)

type staticSource struct {
	snapshot authgate.MetricsSnapshot
	dropped  uint64
}

func (s *staticSource) MetricsSnapshot() authgate.MetricsSnapshot { return s.snapshot }
func (s *staticSource) AuditDropped() uint64                      { return s.dropped }

func TestNewExporterRegistersAllCounters(t *testing.T) {
	source := &staticSource{
		snapshot: authgate.MetricsSnapshot{
			Counters:   map[authgate.MetricID]uint64{authgate.MetricLoginSuccess: 3},
			Histograms: map[authgate.MetricID][]uint64{},
		},
	}

	exporter, err := NewExporter(noop.NewMeterProvider().Meter("test"), source)
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}
	defer exporter.Close()

	// one instrument per counter id, the latency histogram is separate
	if got := len(exporter.counters); got != int(authgate.MetricResolveLatency) {
		t.Fatalf("registered counters = %d, want %d", got, int(authgate.MetricResolveLatency))
	}
}

func TestNewExporterRejectsNilInputs(t *testing.T) {
	if _, err := NewExporter(nil, &staticSource{}); !errors.Is(err, ErrNilMeter) {
		t.Fatalf("nil meter error = %v, want ErrNilMeter", err)
	}
	if _, err := NewExporter(noop.NewMeterProvider().Meter("test"), nil); !errors.Is(err, ErrNilSource) {
		t.Fatalf("nil source error = %v, want ErrNilSource", err)
	}
}

func TestCloseIsSafe(t *testing.T) {
	exporter, err := NewExporter(noop.NewMeterProvider().Meter("test"), &staticSource{})
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}
	if err := exporter.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var nilExporter *Exporter
	if err := nilExporter.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := cumulativeBuckets([]uint64{2, 0, 1, 0, 0, 0, 1, 1})
	want := [8]uint64{2, 2, 3, 3, 3, 3, 4, 5}
	if got != want {
		t.Fatalf("cumulative = %v, want %v", got, want)
	}

	// a missing histogram observes all zeros
	if got := cumulativeBuckets(nil); got != ([8]uint64{}) {
		t.Fatalf("nil cumulative = %v", got)
	}
}
