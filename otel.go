package ezlist

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
	instrumentationName = "github.com/qll/ezlist"
)

// otelInstrumentation holds OpenTelemetry instrumentation for the list manager.
type otelInstrumentation struct {
	enabled bool

	// Tracing
	tracingEnabled bool
	tracer         trace.Tracer

	// Metrics
	metricsEnabled bool

	// Processing passes
	processLatency metric.Float64Histogram
	processCount   metric.Int64Counter
	processErrors  metric.Int64Counter

	// Dispatched commands
	commandCount  metric.Int64Counter
	commandErrors metric.Int64Counter
	userErrors    metric.Int64Counter

	// Broadcast deliveries
	deliveryCount  metric.Int64Counter
	deliveryErrors metric.Int64Counter
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

	o.processLatency, err = meter.Float64Histogram(
		"ezlist.process.duration",
		metric.WithDescription("Duration of mailbox processing passes"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.processCount, err = meter.Int64Counter(
		"ezlist.process.count",
		metric.WithDescription("Number of mailbox processing passes"),
	)
	if err != nil {
		return err
	}

	o.processErrors, err = meter.Int64Counter(
		"ezlist.process.errors",
		metric.WithDescription("Number of failed processing passes"),
	)
	if err != nil {
		return err
	}

	o.commandCount, err = meter.Int64Counter(
		"ezlist.command.count",
		metric.WithDescription("Number of dispatched commands"),
	)
	if err != nil {
		return err
	}

	o.commandErrors, err = meter.Int64Counter(
		"ezlist.command.errors",
		metric.WithDescription("Number of commands that failed unexpectedly"),
	)
	if err != nil {
		return err
	}

	o.userErrors, err = meter.Int64Counter(
		"ezlist.command.user_errors",
		metric.WithDescription("Number of commands rejected as user errors"),
	)
	if err != nil {
		return err
	}

	o.deliveryCount, err = meter.Int64Counter(
		"ezlist.delivery.count",
		metric.WithDescription("Number of attempted subscriber deliveries"),
	)
	if err != nil {
		return err
	}

	o.deliveryErrors, err = meter.Int64Counter(
		"ezlist.delivery.errors",
		metric.WithDescription("Number of failed subscriber deliveries"),
	)
	if err != nil {
		return err
	}

	return nil
}

// startSpan starts a new span if tracing is enabled.
// Caller must call the returned func with the operation's error when done.
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

// recordProcess records metrics for one mailbox processing pass.
func (o *otelInstrumentation) recordProcess(ctx context.Context, duration time.Duration, err error) {
	if !o.metricsEnabled {
		return
	}

	o.processLatency.Record(ctx, duration.Seconds())
	o.processCount.Add(ctx, 1)
	if err != nil {
		o.processErrors.Add(ctx, 1)
	}
}

// recordCommand records metrics for one dispatched command.
func (o *otelInstrumentation) recordCommand(ctx context.Context, intent Intent, err error) {
	if !o.metricsEnabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("intent", intent.String()),
	)

	o.commandCount.Add(ctx, 1, attrs)
	if err == nil {
		return
	}
	if IsUserError(err) {
		o.userErrors.Add(ctx, 1, attrs)
	} else {
		o.commandErrors.Add(ctx, 1, attrs)
	}
}

// recordDelivery records metrics for one subscriber delivery attempt.
func (o *otelInstrumentation) recordDelivery(ctx context.Context, err error) {
	if !o.metricsEnabled {
		return
	}

	o.deliveryCount.Add(ctx, 1)
	if err != nil {
		o.deliveryErrors.Add(ctx, 1)
	}
}
