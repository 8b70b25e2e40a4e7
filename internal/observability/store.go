package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"imagegate/internal/counterstore"
)

const instrumentationName = "imagegate/counterstore"

// InstrumentedStore wraps a counterstore.Store implementation with
// OpenTelemetry tracing and metrics instrumentation.
type InstrumentedStore struct {
	inner    counterstore.Store
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// InstrumentOption customises where an instrumented wrapper sends its data.
type InstrumentOption func(*instrumentOptions)

type instrumentOptions struct {
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

// WithMeterProvider records metrics on mp instead of the global provider.
func WithMeterProvider(mp metric.MeterProvider) InstrumentOption {
	return func(o *instrumentOptions) {
		o.meterProvider = mp
	}
}

// WithTracerProvider records spans on tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) InstrumentOption {
	return func(o *instrumentOptions) {
		o.tracerProvider = tp
	}
}

func buildInstrumentOptions(opts []InstrumentOption) instrumentOptions {
	o := instrumentOptions{
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewInstrumentedStore creates a new store wrapper that records trace spans,
// operation latency histograms, and error counters for every counter store call.
func NewInstrumentedStore(inner counterstore.Store, opts ...InstrumentOption) (*InstrumentedStore, error) {
	o := buildInstrumentOptions(opts)
	tracer := o.tracerProvider.Tracer(instrumentationName)
	meter := o.meterProvider.Meter(instrumentationName)

	duration, err := meter.Float64Histogram(
		"counterstore.operation.duration",
		metric.WithDescription("Duration of counter store operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"counterstore.operation.errors",
		metric.WithDescription("Number of counter store operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStore{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedStore) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "counterstore."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("counterstore.operation", operation),
		}, attrs...)...),
	)
	return ctx, span
}

func (s *InstrumentedStore) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds()
	attrs := metric.WithAttributes(attribute.String("operation", operation))

	s.duration.Record(ctx, elapsed, attrs)

	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

func (s *InstrumentedStore) Incr(ctx context.Context, key string) (int64, error) {
	ctx, span := s.startSpan(ctx, "Incr", attribute.String("counter.key", key))
	start := time.Now()
	value, err := s.inner.Incr(ctx, key)
	if err == nil {
		span.SetAttributes(attribute.Int64("counter.value", value))
	}
	s.record(ctx, span, "Incr", start, err)
	return value, err
}

func (s *InstrumentedStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, span := s.startSpan(ctx, "Expire",
		attribute.String("counter.key", key),
		attribute.Int64("counter.ttl_seconds", int64(ttl/time.Second)),
	)
	start := time.Now()
	err := s.inner.Expire(ctx, key, ttl)
	s.record(ctx, span, "Expire", start, err)
	return err
}

func (s *InstrumentedStore) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}
