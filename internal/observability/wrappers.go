package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/benputley1/cex-reporter-sub000/internal/capability"
)

// InstrumentedProvider wraps a capability.Provider with metrics and tracing.
// Engine-side capability metrics count script-facing calls, cache included;
// this wrapper counts the loads that actually reached the provider.
type InstrumentedProvider struct {
	inner   capability.Provider
	metrics *MetricsCollector
	tracer  trace.Tracer
}

var _ capability.Provider = (*InstrumentedProvider)(nil)

// NewInstrumentedProvider wraps a data provider with observability.
func NewInstrumentedProvider(inner capability.Provider, metrics *MetricsCollector, ts *TracerSetup) *InstrumentedProvider {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedProvider{
		inner:   inner,
		metrics: metrics,
		tracer:  tracer,
	}
}

func (p *InstrumentedProvider) Trades(ctx context.Context, f capability.TradeFilter) (*capability.Dataset, error) {
	return p.observe(ctx, capability.NameTrades, func(ctx context.Context) (*capability.Dataset, error) {
		return p.inner.Trades(ctx, f)
	})
}

func (p *InstrumentedProvider) Balances(ctx context.Context) (*capability.Dataset, error) {
	return p.observe(ctx, capability.NameBalances, p.inner.Balances)
}

func (p *InstrumentedProvider) History(ctx context.Context, days int) (*capability.Dataset, error) {
	return p.observe(ctx, capability.NameHistory, func(ctx context.Context) (*capability.Dataset, error) {
		return p.inner.History(ctx, days)
	})
}

func (p *InstrumentedProvider) observe(ctx context.Context, name string, fn func(context.Context) (*capability.Dataset, error)) (*capability.Dataset, error) {
	if p.tracer != nil {
		var span trace.Span
		ctx, span = p.tracer.Start(ctx, "provider."+name,
			trace.WithAttributes(
				attribute.String("capability", name),
			))
		defer span.End()
	}

	start := time.Now()
	ds, err := fn(ctx)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
		if p.tracer != nil {
			span := trace.SpanFromContext(ctx)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}

	if p.metrics != nil {
		p.metrics.ProviderRequestsTotal.WithLabelValues(name, status).Inc()
		p.metrics.ProviderRequestDuration.WithLabelValues(name).Observe(duration)
	}

	return ds, err
}
