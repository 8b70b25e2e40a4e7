// Package observability wires the gateway's OpenTelemetry signals. Setup
// builds one resource describing the process and its quota policy, and the
// Provider it returns hands out the counter-store and quota instruments on
// its own meter and tracer providers. Metrics are exported to Prometheus
// under the "imagegate" namespace; traces go to stdout or OTLP.
package observability

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"imagegate/internal/counterstore"
	"imagegate/internal/models"
	"imagegate/internal/ratelimit"
	"imagegate/internal/version"
)

const (
	defaultServiceName = "imagegate"
	metricNamespace    = "imagegate"
)

// Provider owns the process's tracer and meter providers. Either may be
// absent when its signal is disabled.
type Provider struct {
	resource       *resource.Resource
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	promExporter   *prometheus.Exporter
}

type SetupOption func(*setupOptions)

type setupOptions struct {
	readers []sdkmetric.Reader
}

// WithMetricReader adds a reader to the meter provider. The meter provider
// is built whenever a reader is present, even with Prometheus disabled.
func WithMetricReader(r sdkmetric.Reader) SetupOption {
	return func(o *setupOptions) {
		o.readers = append(o.readers, r)
	}
}

// Setup builds the providers described by cfg and installs them as the
// otel globals. The returned Provider must be shut down on exit.
func Setup(cfg *models.Config, ver version.Info, opts ...SetupOption) (*Provider, error) {
	var o setupOptions
	for _, opt := range opts {
		opt(&o)
	}

	res, err := newResource(cfg, ver)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	p := &Provider{resource: res}

	if cfg.Observability.Tracing.Enabled {
		tp, err := setupTracing(res, cfg.Observability.Tracing)
		if err != nil {
			return nil, fmt.Errorf("failed to setup tracing: %w", err)
		}
		p.tracerProvider = tp
		otel.SetTracerProvider(tp)
		// Join traces started by the edge proxy in front of the gateway.
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{}, propagation.Baggage{}))
	}

	readers := o.readers
	if cfg.Metrics.Enabled {
		exporter, err := prometheus.New(prometheus.WithNamespace(metricNamespace))
		if err != nil {
			p.Shutdown(context.Background())
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		p.promExporter = exporter
		readers = append(readers, exporter)
	}

	if len(readers) > 0 {
		mpOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
		for _, r := range readers {
			mpOpts = append(mpOpts, sdkmetric.WithReader(r))
		}
		p.meterProvider = sdkmetric.NewMeterProvider(mpOpts...)
		otel.SetMeterProvider(p.meterProvider)
	}

	return p, nil
}

// newResource describes the process: build identity plus the quota policy
// and store backend, so dashboards can tell replicas and policies apart.
func newResource(cfg *models.Config, ver version.Info) (*resource.Resource, error) {
	serviceName := cfg.Observability.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(ver.Version),
		attribute.String("service.instance.id", ver.InstanceID),
		attribute.String("host.name", ver.Hostname),
		attribute.String("vcs.commit", ver.GitCommit),
		attribute.String("deployment.environment", deploymentEnvironment()),
		attribute.String("imagegate.store.type", cfg.Store.Type),
		attribute.Bool("imagegate.quota.enabled", cfg.Quota.Enabled),
	}
	if cfg.Quota.Enabled {
		attrs = append(attrs,
			attribute.Int64("imagegate.quota.global_limit", cfg.Quota.GlobalLimit),
			attribute.Int64("imagegate.quota.client_limit", cfg.Quota.ClientLimit),
			attribute.Int64("imagegate.quota.period_seconds", int64(cfg.Quota.Period.Seconds())),
		)
	}

	return resource.New(context.Background(), resource.WithAttributes(attrs...))
}

func (p *Provider) Resource() *resource.Resource {
	return p.resource
}

// MetricsEnabled reports whether a Prometheus exporter is registered.
func (p *Provider) MetricsEnabled() bool {
	return p != nil && p.promExporter != nil
}

func (p *Provider) instrumentOptions() []InstrumentOption {
	var opts []InstrumentOption
	if p.meterProvider != nil {
		opts = append(opts, WithMeterProvider(p.meterProvider))
	}
	if p.tracerProvider != nil {
		opts = append(opts, WithTracerProvider(p.tracerProvider))
	}
	return opts
}

// InstrumentStore wraps store with spans and operation metrics. With both
// signals disabled store is returned as is.
func (p *Provider) InstrumentStore(store counterstore.Store) (counterstore.Store, error) {
	if p.meterProvider == nil && p.tracerProvider == nil {
		return store, nil
	}
	instrumented, err := NewInstrumentedStore(store, p.instrumentOptions()...)
	if err != nil {
		return nil, fmt.Errorf("instrument counter store: %w", err)
	}
	return instrumented, nil
}

// QuotaObserver returns a gate observer counting verdicts, or nil when
// metrics are disabled.
func (p *Provider) QuotaObserver() (ratelimit.Observer, error) {
	if p.meterProvider == nil {
		return nil, nil
	}
	qm, err := NewQuotaMetrics(p.instrumentOptions()...)
	if err != nil {
		return nil, fmt.Errorf("create quota metrics: %w", err)
	}
	return qm.Record, nil
}

// Shutdown flushes and stops both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

func setupTracing(res *resource.Resource, cfg models.TracingConfig) (*sdktrace.TracerProvider, error) {
	var exporter sdktrace.SpanExporter
	var err error

	switch cfg.Exporter {
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp":
		exporter, err = otlptracegrpc.New(context.Background(),
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s exporter: %w", cfg.Exporter, err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler(cfg.SampleRate))),
	), nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

func deploymentEnvironment() string {
	if env := os.Getenv("IMAGEGATE_ENVIRONMENT"); env != "" {
		return env
	}
	return "development"
}
