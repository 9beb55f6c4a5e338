// Package metrics holds the OpenTelemetry instruments of the scan dispatcher
// and the Prometheus backed meter provider they are exported through.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// DefaultBuckets provides a common set of histogram buckets in seconds that can
// be reused across the application for latency metrics.
var DefaultBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60} //nolint: gochecknoglobals

// Outcomes of a method invocation.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

const meterName = "mailscan/scanner"

// NewMeterProvider returns a meter provider whose instruments are exported to
// registerer through the OpenTelemetry Prometheus exporter.
func NewMeterProvider(registerer prometheus.Registerer) (*sdkmetric.MeterProvider, error) {
	exp, err := otelprom.New(otelprom.WithRegisterer(registerer))
	if err != nil {
		return nil, fmt.Errorf("could not create otel exporter: %w", err)
	}

	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp)), nil
}

// Recorder records per-method durations and outcomes. A nil *Recorder records nothing.
type Recorder struct {
	duration metric.Float64Histogram
	methods  metric.Int64Counter
	scans    metric.Int64Counter
}

// NewRecorder creates the dispatcher instruments on mp.
func NewRecorder(mp metric.MeterProvider) (*Recorder, error) {
	meter := mp.Meter(meterName)

	duration, err := meter.Float64Histogram("mailscan.method.duration",
		metric.WithDescription("Duration of a discovery method invocation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(DefaultBuckets...))
	if err != nil {
		return nil, fmt.Errorf("could not create duration histogram: %w", err)
	}
	methods, err := meter.Int64Counter("mailscan.method.invocations",
		metric.WithDescription("Discovery method invocations by outcome."))
	if err != nil {
		return nil, fmt.Errorf("could not create invocation counter: %w", err)
	}
	scans, err := meter.Int64Counter("mailscan.scans",
		metric.WithDescription("Completed scans."))
	if err != nil {
		return nil, fmt.Errorf("could not create scan counter: %w", err)
	}

	return &Recorder{duration: duration, methods: methods, scans: scans}, nil
}

// ObserveMethod records one invocation of method.
func (r *Recorder) ObserveMethod(ctx context.Context, method, outcome, kind string, d time.Duration) {
	if r == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("outcome", outcome),
		attribute.String("kind", kind),
	)
	r.duration.Record(ctx, d.Seconds(), attrs)
	r.methods.Add(ctx, 1, attrs)
}

// ObserveScan records a completed scan.
func (r *Recorder) ObserveScan(ctx context.Context) {
	if r == nil {
		return
	}

	r.scans.Add(ctx, 1)
}
