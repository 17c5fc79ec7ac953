package ezlist

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Default configuration values.
const (
	// DefaultSubjectPrefix tags every outbound subject.
	DefaultSubjectPrefix = "[List]"
)

// options holds list manager configuration.
type options struct {
	logger *slog.Logger

	subjectPrefix       string
	skipSender          bool
	manageSubscriptions bool
	templates           Templates

	// OpenTelemetry
	tracingEnabled bool
	metricsEnabled bool
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// newOptions creates options with defaults and applies provided options.
func newOptions(opts ...Option) *options {
	o := &options{
		logger:              slog.Default(),
		subjectPrefix:       DefaultSubjectPrefix,
		skipSender:          true,
		manageSubscriptions: true,
		templates:           DefaultTemplates(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures a list manager.
type Option func(*options)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSubjectPrefix sets the tag prepended to every outbound subject.
func WithSubjectPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.subjectPrefix = prefix
		}
	}
}

// WithSkipSender controls whether the author of a broadcast receives their
// own message back. Enabled by default.
func WithSkipSender(skip bool) Option {
	return func(o *options) {
		o.skipSender = skip
	}
}

// WithSubscriptionManagement enables or disables the subscribe, verify,
// and unsubscribe operations. When disabled, every such request is
// rejected as a user error. Enabled by default.
func WithSubscriptionManagement(enabled bool) Option {
	return func(o *options) {
		o.manageSubscriptions = enabled
	}
}

// WithTemplates sets the notification templates. Missing templates keep
// their defaults.
func WithTemplates(t Templates) Option {
	return func(o *options) {
		if t.Subscription != nil {
			o.templates.Subscription = t.Subscription
		}
		if t.Welcome != nil {
			o.templates.Welcome = t.Welcome
		}
		if t.DeletionKey != nil {
			o.templates.DeletionKey = t.DeletionKey
		}
		if t.Unsubscribe != nil {
			o.templates.Unsubscribe = t.Unsubscribe
		}
	}
}

// --- Observability Options ---

// WithMetrics enables OpenTelemetry metrics using the global meter
// provider, or the one set via WithMeterProvider.
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		o.metricsEnabled = enabled
	}
}

// WithTracing enables OpenTelemetry tracing using the global tracer
// provider, or the one set via WithTracerProvider.
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
	}
}

// WithMeterProvider sets a custom meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// WithTracerProvider sets a custom tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}
