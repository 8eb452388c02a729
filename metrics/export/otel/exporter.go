package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/authsvc"
	"github.com/MrEthical07/authsvc/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// OperationsName carries every engine counter, split by the operation
	// and outcome attributes.
	OperationsName = "authsvc.operations"

	AttrOperation = "operation"
	AttrOutcome   = "outcome"
	AttrBound     = "le"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() authsvc.MetricsSnapshot
}

type operationSeries struct {
	id    authsvc.MetricID
	attrs metric.ObserveOption
}

type latencySeries struct {
	id      authsvc.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
	bounds  [8]metric.ObserveOption
}

// Exporter publishes engine metrics through a single callback that reads
// one snapshot per collection cycle.
type Exporter struct {
	source       metricsSource
	registration metric.Registration
	operations   metric.Int64ObservableCounter
	series       []operationSeries
	latency      []latencySeries
}

func NewExporter(meter metric.Meter, engine *authsvc.Engine) (*Exporter, error) {
	return NewExporterFromSource(meter, engine)
}

func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	operations, err := meter.Int64ObservableCounter(OperationsName,
		metric.WithDescription("Auth operations by outcome."),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", OperationsName, err)
	}

	exporter := &Exporter{
		source:     source,
		operations: operations,
		series:     make([]operationSeries, 0, len(internaldefs.CounterDefs)),
	}
	for _, def := range internaldefs.CounterDefs {
		exporter.series = append(exporter.series, operationSeries{
			id: def.ID,
			attrs: metric.WithAttributeSet(attribute.NewSet(
				attribute.String(AttrOperation, def.Operation),
				attribute.String(AttrOutcome, def.Outcome),
			)),
		})
	}

	observables := []metric.Observable{operations}
	for _, def := range internaldefs.HistogramDefs {
		s := latencySeries{id: def.ID}
		s.buckets, err = meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative count per upper bound."))
		if err != nil {
			return nil, fmt.Errorf("create %s_bucket: %w", def.Name, err)
		}
		s.count, err = meter.Int64ObservableGauge(def.Name+"_count",
			metric.WithDescription(def.Help+" Sample count."))
		if err != nil {
			return nil, fmt.Errorf("create %s_count: %w", def.Name, err)
		}
		for i := range s.bounds {
			s.bounds[i] = metric.WithAttributes(attribute.String(AttrBound, boundLabel(i)))
		}
		exporter.latency = append(exporter.latency, s)
		observables = append(observables, s.buckets, s.count)
	}

	exporter.registration, err = meter.RegisterCallback(exporter.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return exporter, nil
}

func (e *Exporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 {
		return nil
	}

	for _, s := range e.series {
		observer.ObserveInt64(e.operations, int64(snapshot.Counters[s.id]), s.attrs)
	}
	for _, s := range e.latency {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[s.id]))
		for i, v := range cumulative {
			observer.ObserveInt64(s.buckets, int64(v), s.bounds[i])
		}
		observer.ObserveInt64(s.count, int64(cumulative[len(cumulative)-1]))
	}
	return nil
}

func boundLabel(i int) string {
	if i >= len(internaldefs.HistogramUpperBounds) {
		return "+Inf"
	}
	return strconv.FormatFloat(internaldefs.HistogramUpperBounds[i], 'g', -1, 64)
}

// Close unregisters the callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
