// Package otelobs implements observability.Tracer and observability.Metrics
// on top of go.opentelemetry.io/otel, for deployments exporting traces and
// metrics to an OTLP collector. Logging is delegated to an embedded
// slogobs.Observer: OpenTelemetry's logs API is still less stable across the
// ecosystem than its trace/metric SDKs, and this repo's structured-logging
// story already lives in slogobs.
package otelobs

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/aigohq/aigo/providers/observability"
	"github.com/aigohq/aigo/providers/observability/slogobs"
)

const instrumentationName = "github.com/aigohq/aigo"

// Observer implements observability.Provider over a configured
// trace.TracerProvider and metric.MeterProvider, falling back to no-op
// providers when none is supplied (the OpenTelemetry global providers are
// not consulted).
type Observer struct {
	*slogobs.Observer
	tracer trace.Tracer
	meter  metric.Meter

	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
}

// Option configures an Observer.
type Option func(*options)

type options struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	logOpts        []slogobs.Option
}

// WithTracerProvider sets the trace.TracerProvider spans are started
// against. Defaults to a no-op TracerProvider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithMeterProvider sets the metric.MeterProvider counters and histograms
// are created against. Defaults to a no-op MeterProvider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// WithLogOptions forwards options to the embedded slogobs.Observer.
func WithLogOptions(opts ...slogobs.Option) Option {
	return func(o *options) { o.logOpts = append(o.logOpts, opts...) }
}

// New constructs an Observer. It creates no instruments itself; Counter and
// Histogram fall back to no-op instruments if the configured MeterProvider
// rejects instrument creation.
func New(opts ...Option) *Observer {
	cfg := &options{}
	for _, opt := range opts {
		opt(cfg)
	}

	tracerProvider := cfg.tracerProvider
	if tracerProvider == nil {
		tracerProvider = tracenoop.NewTracerProvider()
	}
	meterProvider := cfg.meterProvider
	if meterProvider == nil {
		meterProvider = metricnoop.NewMeterProvider()
	}

	return &Observer{
		Observer:   slogobs.New(cfg.logOpts...),
		tracer:     tracerProvider.Tracer(instrumentationName),
		meter:      meterProvider.Meter(instrumentationName),
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

var _ observability.Provider = (*Observer)(nil)

// StartSpan starts a span via the configured tracer, translating
// observability.Attribute into OTel's attribute.KeyValue.
func (o *Observer) StartSpan(ctx context.Context, name string, attrs ...observability.Attribute) (context.Context, observability.Span) {
	ctx, span := o.tracer.Start(ctx, name, trace.WithAttributes(toKeyValues(attrs)...))
	return ctx, &otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttributes(attrs ...observability.Attribute) {
	s.span.SetAttributes(toKeyValues(attrs)...)
}

func (s *otelSpan) SetStatus(code observability.StatusCode, description string) {
	switch code {
	case observability.StatusOK:
		s.span.SetStatus(codes.Ok, description)
	case observability.StatusError:
		s.span.SetStatus(codes.Error, description)
	default:
		s.span.SetStatus(codes.Unset, description)
	}
}

func (s *otelSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s *otelSpan) AddEvent(name string, attrs ...observability.Attribute) {
	s.span.AddEvent(name, trace.WithAttributes(toKeyValues(attrs)...))
}

// Counter returns an OTel Int64Counter, creating and caching the instrument
// on first use.
func (o *Observer) Counter(name string) observability.Counter {
	if c, ok := o.counters[name]; ok {
		return &otelCounter{counter: c}
	}
	c, err := o.meter.Int64Counter(name)
	if err != nil {
		// Instrument creation only fails on a malformed name; fall back to a
		// discarded instrument rather than propagating a metrics error into
		// request-handling code.
		c, _ = metricnoop.NewMeterProvider().Meter(instrumentationName).Int64Counter(name)
	}
	o.counters[name] = c
	return &otelCounter{counter: c}
}

// Histogram returns an OTel Float64Histogram, creating and caching the
// instrument on first use.
func (o *Observer) Histogram(name string) observability.Histogram {
	if h, ok := o.histograms[name]; ok {
		return &otelHistogram{histogram: h}
	}
	h, err := o.meter.Float64Histogram(name)
	if err != nil {
		h, _ = metricnoop.NewMeterProvider().Meter(instrumentationName).Float64Histogram(name)
	}
	o.histograms[name] = h
	return &otelHistogram{histogram: h}
}

type otelCounter struct {
	counter metric.Int64Counter
}

func (c *otelCounter) Add(ctx context.Context, value int64, attrs ...observability.Attribute) {
	c.counter.Add(ctx, value, metric.WithAttributes(toKeyValues(attrs)...))
}

type otelHistogram struct {
	histogram metric.Float64Histogram
}

func (h *otelHistogram) Record(ctx context.Context, value float64, attrs ...observability.Attribute) {
	h.histogram.Record(ctx, value, metric.WithAttributes(toKeyValues(attrs)...))
}

func toKeyValues(attrs []observability.Attribute) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		switch v := a.Value.(type) {
		case string:
			kvs = append(kvs, attribute.String(a.Key, v))
		case int:
			kvs = append(kvs, attribute.Int(a.Key, v))
		case int64:
			kvs = append(kvs, attribute.Int64(a.Key, v))
		case float64:
			kvs = append(kvs, attribute.Float64(a.Key, v))
		case bool:
			kvs = append(kvs, attribute.Bool(a.Key, v))
		case []string:
			kvs = append(kvs, attribute.StringSlice(a.Key, v))
		default:
			kvs = append(kvs, attribute.String(a.Key, observability.TruncateStringDefault(stringifyAny(v))))
		}
	}
	return kvs
}

func stringifyAny(v any) string {
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return ""
}
