package observability

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"imagegate/internal/ratelimit"
)

// Verdict outcomes recorded on quota.verdicts.
const (
	OutcomeAllowed      = "allowed"
	OutcomeDeniedClient = "denied_client"
	OutcomeDeniedGlobal = "denied_global"
	OutcomeStoreError   = "store_unavailable"
	OutcomeConfigError  = "configuration_missing"
)

// QuotaMetrics counts quota decisions. Its Record method matches
// ratelimit.Observer and is installed with ratelimit.WithObserver.
type QuotaMetrics struct {
	verdicts metric.Int64Counter
}

func NewQuotaMetrics(opts ...InstrumentOption) (*QuotaMetrics, error) {
	o := buildInstrumentOptions(opts)
	meter := o.meterProvider.Meter("imagegate/ratelimit")

	verdicts, err := meter.Int64Counter(
		"quota.verdicts",
		metric.WithDescription("Number of quota checks by outcome"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, err
	}

	return &QuotaMetrics{verdicts: verdicts}, nil
}

// Record adds one check to the outcome it ended in.
func (m *QuotaMetrics) Record(ctx context.Context, v ratelimit.Verdict, err error) {
	attrs := []attribute.KeyValue{attribute.String("outcome", Outcome(v, err))}
	if v.Bucket != "" {
		attrs = append(attrs, attribute.String("bucket", v.Bucket.String()))
	}
	m.verdicts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// Outcome names the result of a check for metric labels.
func Outcome(v ratelimit.Verdict, err error) string {
	switch {
	case errors.Is(err, ratelimit.ErrConfigurationMissing):
		return OutcomeConfigError
	case err != nil:
		return OutcomeStoreError
	case v.Allowed:
		return OutcomeAllowed
	case v.Scope == ratelimit.ScopeClient:
		return OutcomeDeniedClient
	default:
		return OutcomeDeniedGlobal
	}
}
