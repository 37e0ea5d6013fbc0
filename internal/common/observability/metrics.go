package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"

	"purchase-sync/internal/common/logger"
)

// Observability records session operations through an OpenTelemetry meter
// exported on the default Prometheus registry.
type Observability struct {
	meterProvider *metric.MeterProvider
	meter         otelmetric.Meter
	opCounter     otelmetric.Int64Counter
	opDuration    otelmetric.Float64Histogram
	stateChanges  otelmetric.Int64Counter
}

func New(serviceName string, log logger.Logger) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("failed to create prometheus exporter", map[string]interface{}{"error": err.Error()})
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	return newWithProvider(provider, serviceName)
}

// NewWithReader wires a caller-supplied reader, used by tests with a
// ManualReader.
func NewWithReader(serviceName string, reader metric.Reader) *Observability {
	return newWithProvider(metric.NewMeterProvider(metric.WithReader(reader)), serviceName)
}

func newWithProvider(provider *metric.MeterProvider, serviceName string) *Observability {
	meter := provider.Meter(serviceName)

	opCounter, _ := meter.Int64Counter(
		"purchases.operations",
		otelmetric.WithDescription("Number of purchase session operations"),
	)

	opDuration, _ := meter.Float64Histogram(
		"purchases.operation.duration",
		otelmetric.WithDescription("Purchase session operation duration"),
		otelmetric.WithUnit("ms"),
	)

	stateChanges, _ := meter.Int64Counter(
		"purchases.state.changes",
		otelmetric.WithDescription("Number of published session state snapshots"),
	)

	return &Observability{
		meterProvider: provider,
		meter:         meter,
		opCounter:     opCounter,
		opDuration:    opDuration,
		stateChanges:  stateChanges,
	}
}

// RecordOperation counts one finished operation and its duration.
func (o *Observability) RecordOperation(ctx context.Context, operation, status string, duration time.Duration) {
	attrs := otelmetric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
	if o.opCounter != nil {
		o.opCounter.Add(ctx, 1, attrs)
	}
	if o.opDuration != nil {
		o.opDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) RecordStateChange(ctx context.Context) {
	if o.stateChanges != nil {
		o.stateChanges.Add(ctx, 1)
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.meterProvider.Shutdown(ctx)
	}
}
