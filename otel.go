package mailstore

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/elasticmail/mailstore"
)

// otelInstrumentation holds OpenTelemetry instrumentation for the service.
type otelInstrumentation struct {
	enabled bool

	// Tracing
	tracingEnabled bool
	tracer         trace.Tracer

	// Metrics
	metricsEnabled bool

	// Message operations
	putLatency  metric.Float64Histogram
	putCount    metric.Int64Counter
	putErrors   metric.Int64Counter
	getLatency  metric.Float64Histogram
	getCount    metric.Int64Counter
	getErrors   metric.Int64Counter
	scanLatency metric.Float64Histogram
	scanCount   metric.Int64Counter
	scanErrors  metric.Int64Counter

	// Mutations
	modifyLatency metric.Float64Histogram
	modifyCount   metric.Int64Counter
	modifyErrors  metric.Int64Counter
	deleteLatency metric.Float64Histogram
	deleteCount   metric.Int64Counter
	deleteErrors  metric.Int64Counter

	// Maintenance (purge, scrub)
	maintenanceLatency metric.Float64Histogram
	maintenanceCount   metric.Int64Counter
	maintenanceErrors  metric.Int64Counter
}

// newOtelInstrumentation creates new OTel instrumentation from options.
func newOtelInstrumentation(opts *options) (*otelInstrumentation, error) {
	o := &otelInstrumentation{
		enabled:        opts.tracingEnabled || opts.metricsEnabled,
		tracingEnabled: opts.tracingEnabled,
		metricsEnabled: opts.metricsEnabled,
	}

	if !o.enabled {
		return o, nil
	}

	// Initialize tracer
	if opts.tracingEnabled {
		tp := opts.tracerProvider
		if tp == nil {
			tp = otel.GetTracerProvider()
		}
		o.tracer = tp.Tracer(instrumentationName)
	}

	// Initialize metrics
	if opts.metricsEnabled {
		mp := opts.meterProvider
		if mp == nil {
			mp = otel.GetMeterProvider()
		}
		if err := o.initMetrics(mp); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// initMetrics initializes all metric instruments.
func (o *otelInstrumentation) initMetrics(mp metric.MeterProvider) error {
	meter := mp.Meter(instrumentationName)

	var err error

	// Put metrics
	o.putLatency, err = meter.Float64Histogram(
		"mailstore.put.duration",
		metric.WithDescription("Duration of put operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.putCount, err = meter.Int64Counter(
		"mailstore.put.count",
		metric.WithDescription("Number of messages stored"),
	)
	if err != nil {
		return err
	}

	o.putErrors, err = meter.Int64Counter(
		"mailstore.put.errors",
		metric.WithDescription("Number of put errors"),
	)
	if err != nil {
		return err
	}

	// Get metrics
	o.getLatency, err = meter.Float64Histogram(
		"mailstore.get.duration",
		metric.WithDescription("Duration of get operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.getCount, err = meter.Int64Counter(
		"mailstore.get.count",
		metric.WithDescription("Number of get operations"),
	)
	if err != nil {
		return err
	}

	o.getErrors, err = meter.Int64Counter(
		"mailstore.get.errors",
		metric.WithDescription("Number of get errors"),
	)
	if err != nil {
		return err
	}

	// Scan metrics
	o.scanLatency, err = meter.Float64Histogram(
		"mailstore.scan.duration",
		metric.WithDescription("Duration of label index scans"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.scanCount, err = meter.Int64Counter(
		"mailstore.scan.count",
		metric.WithDescription("Number of label index scans"),
	)
	if err != nil {
		return err
	}

	o.scanErrors, err = meter.Int64Counter(
		"mailstore.scan.errors",
		metric.WithDescription("Number of scan errors"),
	)
	if err != nil {
		return err
	}

	// Modify metrics
	o.modifyLatency, err = meter.Float64Histogram(
		"mailstore.modify.duration",
		metric.WithDescription("Duration of modify operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.modifyCount, err = meter.Int64Counter(
		"mailstore.modify.count",
		metric.WithDescription("Number of modify operations"),
	)
	if err != nil {
		return err
	}

	o.modifyErrors, err = meter.Int64Counter(
		"mailstore.modify.errors",
		metric.WithDescription("Number of modify errors"),
	)
	if err != nil {
		return err
	}

	// Delete metrics
	o.deleteLatency, err = meter.Float64Histogram(
		"mailstore.delete.duration",
		metric.WithDescription("Duration of delete operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.deleteCount, err = meter.Int64Counter(
		"mailstore.delete.count",
		metric.WithDescription("Number of delete operations"),
	)
	if err != nil {
		return err
	}

	o.deleteErrors, err = meter.Int64Counter(
		"mailstore.delete.errors",
		metric.WithDescription("Number of delete errors"),
	)
	if err != nil {
		return err
	}

	// Maintenance metrics
	o.maintenanceLatency, err = meter.Float64Histogram(
		"mailstore.maintenance.duration",
		metric.WithDescription("Duration of purge and scrub runs"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.maintenanceCount, err = meter.Int64Counter(
		"mailstore.maintenance.count",
		metric.WithDescription("Number of purge and scrub runs"),
	)
	if err != nil {
		return err
	}

	o.maintenanceErrors, err = meter.Int64Counter(
		"mailstore.maintenance.errors",
		metric.WithDescription("Number of purge and scrub errors"),
	)
	if err != nil {
		return err
	}

	return nil
}

// startSpan starts a new span if tracing is enabled.
// Caller should call the returned func with the operation error when done.
func (o *otelInstrumentation) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if !o.tracingEnabled || o.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := o.tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// recordPut records put operation metrics.
func (o *otelInstrumentation) recordPut(ctx context.Context, duration time.Duration, size int64, err error) {
	if !o.metricsEnabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.Int64("message_size", size),
	)

	o.putLatency.Record(ctx, duration.Seconds(), attrs)
	o.putCount.Add(ctx, 1, attrs)
	if err != nil {
		o.putErrors.Add(ctx, 1, attrs)
	}
}

// recordGet records get operation metrics.
func (o *otelInstrumentation) recordGet(ctx context.Context, duration time.Duration, raw bool, err error) {
	if !o.metricsEnabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.Bool("raw", raw),
	)

	o.getLatency.Record(ctx, duration.Seconds(), attrs)
	o.getCount.Add(ctx, 1, attrs)
	if err != nil {
		o.getErrors.Add(ctx, 1, attrs)
	}
}

// recordScan records scan operation metrics.
func (o *otelInstrumentation) recordScan(ctx context.Context, duration time.Duration, labelID, resultCount int, err error) {
	if !o.metricsEnabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.Int("label_id", labelID),
		attribute.Int("result_count", resultCount),
	)

	o.scanLatency.Record(ctx, duration.Seconds(), attrs)
	o.scanCount.Add(ctx, 1, attrs)
	if err != nil {
		o.scanErrors.Add(ctx, 1, attrs)
	}
}

// recordModify records modify operation metrics.
func (o *otelInstrumentation) recordModify(ctx context.Context, duration time.Duration, messageCount int, err error) {
	if !o.metricsEnabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.Int("message_count", messageCount),
	)

	o.modifyLatency.Record(ctx, duration.Seconds(), attrs)
	o.modifyCount.Add(ctx, 1, attrs)
	if err != nil {
		o.modifyErrors.Add(ctx, 1, attrs)
	}
}

// recordDelete records delete operation metrics.
func (o *otelInstrumentation) recordDelete(ctx context.Context, duration time.Duration, messageCount int, err error) {
	if !o.metricsEnabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.Int("message_count", messageCount),
	)

	o.deleteLatency.Record(ctx, duration.Seconds(), attrs)
	o.deleteCount.Add(ctx, 1, attrs)
	if err != nil {
		o.deleteErrors.Add(ctx, 1, attrs)
	}
}

// recordMaintenance records purge/scrub metrics.
func (o *otelInstrumentation) recordMaintenance(ctx context.Context, duration time.Duration, operation string, affected int, err error) {
	if !o.metricsEnabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Int("affected", affected),
	)

	o.maintenanceLatency.Record(ctx, duration.Seconds(), attrs)
	o.maintenanceCount.Add(ctx, 1, attrs)
	if err != nil {
		o.maintenanceErrors.Add(ctx, 1, attrs)
	}
}
