package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/benputley1/cex-reporter-sub000/internal/capability"
	"github.com/benputley1/cex-reporter-sub000/internal/config"
)

// --- No-op Path ---

func TestNew_NilConfig(t *testing.T) {
	obs, err := New(nil, nil)
	if err != nil {
		t.Fatalf("New(nil) error: %v", err)
	}
	if obs != nil {
		t.Fatal("expected nil Observability for nil config")
	}
}

func TestNew_AllDisabled(t *testing.T) {
	obs, err := New(&config.ObservabilityConfig{}, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if obs == nil {
		t.Fatal("expected non-nil Observability")
	}
	if obs.Metrics != nil {
		t.Error("metrics should be nil when not enabled")
	}
	if obs.Tracer != nil {
		t.Error("tracer should be nil when not enabled")
	}
	if obs.Health == nil {
		t.Error("health checker should always be created")
	}
}

func TestNew_MetricsEnabled(t *testing.T) {
	obs, err := New(&config.ObservabilityConfig{
		Metrics: &config.MetricsConfig{Enabled: true},
	}, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if obs.Metrics == nil || obs.Metrics.Registry == nil {
		t.Fatal("expected metrics collector with registry")
	}
}

func TestObservability_ShutdownNil(t *testing.T) {
	// Should not panic.
	var obs *Observability
	obs.Shutdown(context.Background())
}

func TestTracerSetup_NilSafe(t *testing.T) {
	var ts *TracerSetup
	if ts.Tracer() == nil {
		t.Error("nil TracerSetup should still hand out a noop tracer")
	}
	if err := ts.Shutdown(context.Background()); err != nil {
		t.Errorf("nil shutdown error: %v", err)
	}
}

func TestNewTracerSetup_Disabled(t *testing.T) {
	ts, err := NewTracerSetup(nil)
	if err != nil || ts != nil {
		t.Errorf("NewTracerSetup(nil) = %v, %v", ts, err)
	}
	ts, err = NewTracerSetup(&config.TracingConfig{Enabled: false})
	if err != nil || ts != nil {
		t.Errorf("disabled tracing = %v, %v", ts, err)
	}
}

// --- MetricsCollector ---

func TestMetricsCollector_Created(t *testing.T) {
	m := NewMetricsCollector()
	if m == nil {
		t.Fatal("expected non-nil MetricsCollector")
	}
	if m.Registry == nil {
		t.Fatal("expected non-nil Registry")
	}

	// Initialize the vecs so they appear in Gather (a CounterVec only shows
	// up after its first labeled child exists).
	m.SubmissionsTotal.WithLabelValues("succeeded").Inc()
	m.SubmissionDuration.WithLabelValues("succeeded").Observe(0.01)
	m.RejectionsTotal.WithLabelValues("forbidden_call").Inc()
	m.CapabilityCallsTotal.WithLabelValues("get_trades", "ok").Inc()
	m.CapabilityLoadDuration.WithLabelValues("get_trades").Observe(0.001)
	m.ProviderRequestsTotal.WithLabelValues("get_trades", "success").Inc()
	m.ProviderRequestDuration.WithLabelValues("get_trades").Observe(0.001)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather error: %v", err)
	}

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, expected := range []string{
		"cexrpt_engine_submissions_total",
		"cexrpt_engine_submission_duration_seconds",
		"cexrpt_engine_active_runs",
		"cexrpt_validator_rejections_total",
		"cexrpt_capability_calls_total",
		"cexrpt_capability_load_duration_seconds",
		"cexrpt_provider_requests_total",
		"cexrpt_provider_request_duration_seconds",
	} {
		if !names[expected] {
			t.Errorf("metric %q not found in registry", expected)
		}
	}
}

func TestMetricsCollector_RecordAndGather(t *testing.T) {
	m := NewMetricsCollector()

	m.SubmissionsTotal.WithLabelValues("succeeded").Inc()
	m.SubmissionsTotal.WithLabelValues("succeeded").Inc()
	m.SubmissionsTotal.WithLabelValues("timed_out").Inc()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather error: %v", err)
	}

	var found bool
	for _, f := range families {
		if f.GetName() == "cexrpt_engine_submissions_total" {
			found = true
			for _, metric := range f.GetMetric() {
				labels := labelMap(metric.GetLabel())
				if labels["outcome"] == "succeeded" {
					if got := metric.GetCounter().GetValue(); got != 2 {
						t.Errorf("succeeded count = %v, want 2", got)
					}
				}
				if labels["outcome"] == "timed_out" {
					if got := metric.GetCounter().GetValue(); got != 1 {
						t.Errorf("timed_out count = %v, want 1", got)
					}
				}
			}
		}
	}
	if !found {
		t.Error("cexrpt_engine_submissions_total not found")
	}
}

func labelMap(pairs []*dto.LabelPair) map[string]string {
	m := make(map[string]string)
	for _, p := range pairs {
		m[p.GetName()] = p.GetValue()
	}
	return m
}

// --- HealthChecker ---

func TestHealthChecker_NoChecks(t *testing.T) {
	h := NewHealthChecker(nil)
	status := h.CheckReady(context.Background())
	if status.Status != "ok" {
		t.Errorf("status = %q, want ok", status.Status)
	}
}

func TestHealthChecker_AllPass(t *testing.T) {
	h := NewHealthChecker(nil)
	h.AddCheck("ledger", func(ctx context.Context) error { return nil })
	h.AddCheck("sandbox", func(ctx context.Context) error { return nil })

	status := h.CheckReady(context.Background())
	if status.Status != "ok" {
		t.Errorf("status = %q, want ok", status.Status)
	}
	if status.Checks["ledger"].Status != "ok" {
		t.Errorf("ledger check = %q, want ok", status.Checks["ledger"].Status)
	}
}

func TestHealthChecker_OneFails(t *testing.T) {
	h := NewHealthChecker(nil)
	h.AddCheck("ledger", func(ctx context.Context) error { return errors.New("connection refused") })
	h.AddCheck("sandbox", func(ctx context.Context) error { return nil })

	status := h.CheckReady(context.Background())
	if status.Status != "degraded" {
		t.Errorf("status = %q, want degraded", status.Status)
	}
	if status.Checks["ledger"].Status != "fail" {
		t.Errorf("ledger check = %q, want fail", status.Checks["ledger"].Status)
	}
	if status.Checks["ledger"].Message == "" {
		t.Error("failed check lost its message")
	}
	if status.Checks["sandbox"].Status != "ok" {
		t.Errorf("sandbox check = %q, want ok", status.Checks["sandbox"].Status)
	}
}

func TestHealthChecker_Liveness(t *testing.T) {
	h := NewHealthChecker(nil)
	status := h.CheckHealth()
	if status.Status != "ok" {
		t.Errorf("liveness status = %q, want ok", status.Status)
	}
}

// --- InstrumentedProvider (wrapper) ---

type mockProvider struct {
	lastFilter capability.TradeFilter
	err        error
	called     int
}

func (m *mockProvider) dataset() (*capability.Dataset, error) {
	m.called++
	if m.err != nil {
		return nil, m.err
	}
	return &capability.Dataset{Columns: []string{"venue"}, Rows: [][]any{{"kraken"}}}, nil
}

func (m *mockProvider) Trades(_ context.Context, f capability.TradeFilter) (*capability.Dataset, error) {
	m.lastFilter = f
	return m.dataset()
}

func (m *mockProvider) Balances(context.Context) (*capability.Dataset, error) {
	return m.dataset()
}

func (m *mockProvider) History(context.Context, int) (*capability.Dataset, error) {
	return m.dataset()
}

func TestInstrumentedProvider_Success(t *testing.T) {
	metrics := NewMetricsCollector()
	inner := &mockProvider{}

	p := NewInstrumentedProvider(inner, metrics, nil)
	ds, err := p.Trades(context.Background(), capability.TradeFilter{Days: 7, Venue: "kraken"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ds.Rows) != 1 {
		t.Errorf("rows = %d, want 1", len(ds.Rows))
	}
	if inner.called != 1 {
		t.Errorf("inner called %d times, want 1", inner.called)
	}
	if inner.lastFilter.Venue != "kraken" {
		t.Errorf("filter = %+v, want it passed through", inner.lastFilter)
	}

	val := counterValue(t, metrics.Registry, "cexrpt_provider_requests_total",
		prometheus.Labels{"capability": "get_trades", "status": "success"})
	if val != 1 {
		t.Errorf("requests_total = %v, want 1", val)
	}
}

func TestInstrumentedProvider_Error(t *testing.T) {
	metrics := NewMetricsCollector()
	inner := &mockProvider{err: errors.New("venue unreachable")}

	p := NewInstrumentedProvider(inner, metrics, nil)
	_, err := p.Balances(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}

	val := counterValue(t, metrics.Registry, "cexrpt_provider_requests_total",
		prometheus.Labels{"capability": "get_balances", "status": "error"})
	if val != 1 {
		t.Errorf("error requests_total = %v, want 1", val)
	}
}

func TestInstrumentedProvider_NilMetrics(t *testing.T) {
	inner := &mockProvider{}

	// nil metrics — should not panic.
	p := NewInstrumentedProvider(inner, nil, nil)
	ds, err := p.History(context.Background(), 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ds.Rows) != 1 {
		t.Errorf("rows = %d, want 1", len(ds.Rows))
	}
}

// --- Helpers ---

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels prometheus.Labels) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather error: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			lm := labelMap(metric.GetLabel())
			match := true
			for k, v := range labels {
				if lm[k] != v {
					match = false
					break
				}
			}
			if match {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}
