// Package otel bridges the in-process metrics snapshot into OpenTelemetry
// observable instruments. The hot path never touches otel; the bridge
// reads a snapshot only when the meter's reader collects.
package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	authgate "github.com/channelworks/authgate"
	internalmetrics "github.com/channelworks/authgate/internal/metrics"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is anything that can hand out metric snapshots; *authgate.Service
// satisfies it.
type Source interface {
	MetricsSnapshot() authgate.MetricsSnapshot
	AuditDropped() uint64
}

type observedCounter struct {
	id         authgate.MetricID
	instrument metric.Int64ObservableCounter
}

type observedHistogram struct {
	id      authgate.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter registers one observable instrument per counter plus the
// cumulative latency buckets. Close unregisters the callback.
type Exporter struct {
	source       Source
	registration metric.Registration
	counters     []observedCounter
	histogram    observedHistogram
	auditDropped metric.Int64ObservableCounter
}

// NewExporter wires every service metric onto the given meter.
func NewExporter(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &Exporter{source: source}
	observables := make([]metric.Observable, 0, int(internalmetrics.MetricIDCount)+10)

	for id := authgate.MetricID(0); id < internalmetrics.MetricIDCount; id++ {
		if id == internalmetrics.MetricResolveLatency {
			continue
		}
		ins, err := meter.Int64ObservableCounter(id.Name(), metric.WithDescription("Service counter."))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", id.Name(), err)
		}
		exporter.counters = append(exporter.counters, observedCounter{id: id, instrument: ins})
		observables = append(observables, ins)
	}

	histName := internalmetrics.MetricResolveLatency.Name()
	exporter.histogram.id = internalmetrics.MetricResolveLatency
	for i := range exporter.histogram.buckets {
		suffix := "inf"
		if i < len(internalmetrics.HistogramBoundsMS) {
			suffix = strconv.FormatInt(internalmetrics.HistogramBoundsMS[i], 10) + "ms"
		}
		name := histName + ".bucket.le." + suffix
		ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
		if err != nil {
			return nil, fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
		}
		exporter.histogram.buckets[i] = ins
		observables = append(observables, ins)
	}

	countIns, err := meter.Int64ObservableGauge(histName+".count", metric.WithDescription("Histogram total sample count."))
	if err != nil {
		return nil, fmt.Errorf("create histogram count gauge: %w", err)
	}
	exporter.histogram.count = countIns
	observables = append(observables, countIns)

	auditDropped, err := meter.Int64ObservableCounter(
		"authgate.audit.dropped",
		metric.WithDescription("Dropped audit events due to dispatcher backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	exporter.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		snapshot := exporter.source.MetricsSnapshot()
		for _, c := range exporter.counters {
			observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
		}

		cumulative := cumulativeBuckets(snapshot.Histograms[exporter.histogram.id])
		for i := range cumulative {
			observer.ObserveInt64(exporter.histogram.buckets[i], int64(cumulative[i]))
		}
		observer.ObserveInt64(exporter.histogram.count, int64(cumulative[len(cumulative)-1]))

		observer.ObserveInt64(exporter.auditDropped, int64(exporter.source.AuditDropped()))
		return nil
	}, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	exporter.registration = registration
	return exporter, nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}

func cumulativeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(out); i++ {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
