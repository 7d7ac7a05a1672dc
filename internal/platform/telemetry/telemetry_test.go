package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func newTestProvider() *TelemetryProvider {
	return NewTelemetryProvider(TelemetryConfig{
		ServiceName:    "cds-test",
		ServiceVersion: "test",
		Environment:    "test",
	})
}

// ── Configuration ──

func TestConfig_Defaults(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{})
	res := tp.Resource()
	if res["service.name"] != "cds-server" {
		t.Errorf("expected default service name cds-server, got %s", res["service.name"])
	}
	if res["deployment.environment"] != "development" {
		t.Errorf("expected default environment development, got %s", res["deployment.environment"])
	}
}

func TestConfig_MetricsDisabled(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{MetricsEnabled: BoolPtr(false)})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/dak/danger-signs", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := tp.MetricsMiddleware()(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := tp.GetHistogram("http.server.request.duration"); got != nil {
		t.Error("expected no histogram when metrics disabled")
	}
}

// ── Histogram ──

func TestHistogram_ObserveAndBuckets(t *testing.T) {
	h := newHistogram([]float64{1, 5, 10})
	for _, v := range []float64{0.5, 3, 7, 20} {
		h.Observe(v)
	}

	if h.Count() != 4 {
		t.Errorf("expected count 4, got %d", h.Count())
	}
	if h.Sum() != 30.5 {
		t.Errorf("expected sum 30.5, got %g", h.Sum())
	}

	cum := h.cumulativeBuckets()
	want := []int64{1, 2, 3}
	for i, w := range want {
		if cum[i] != w {
			t.Errorf("bucket %d: expected %d, got %d", i, w, cum[i])
		}
	}
}

func TestHistogram_ConcurrentObserve(t *testing.T) {
	h := newHistogram(defaultDurationBuckets)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h.Observe(0.05)
			}
		}()
	}
	wg.Wait()

	if h.Count() != 1000 {
		t.Errorf("expected 1000 observations, got %d", h.Count())
	}
}

// ── Decision support recorders ──

func TestRuleEvaluation_RecordsCounterAndDuration(t *testing.T) {
	tp := newTestProvider()
	tp.RuleEvaluation("anc", 500*time.Microsecond)
	tp.RuleEvaluation("anc", 300*time.Microsecond)
	tp.RuleEvaluation("prep", time.Millisecond)

	if got := tp.GetCounter("cds.rule.evaluations", "anc"); got != 2 {
		t.Errorf("expected 2 anc evaluations, got %d", got)
	}
	if got := tp.GetCounter("cds.rule.evaluations", "prep"); got != 1 {
		t.Errorf("expected 1 prep evaluation, got %d", got)
	}

	h := tp.GetHistogram("cds.rule.evaluation.duration")
	if h == nil || h.Count() != 3 {
		t.Fatalf("expected 3 duration observations")
	}
}

func TestAlertsFired_BySeverity(t *testing.T) {
	tp := newTestProvider()
	tp.AlertsFired("critical", 2)
	tp.AlertsFired("warning", 1)
	tp.AlertsFired("critical", 1)
	tp.AlertsFired("info", 0)

	if got := tp.GetCounter("cds.alerts.fired", "critical"); got != 3 {
		t.Errorf("expected 3 critical alerts, got %d", got)
	}
	if got := tp.GetCounter("cds.alerts.fired", "info"); got != 0 {
		t.Errorf("expected zero-count to be ignored, got %d", got)
	}
}

func TestCacheCounters(t *testing.T) {
	tp := newTestProvider()
	tp.CacheHit()
	tp.CacheHit()
	tp.CacheMiss()

	if got := tp.GetCounter("cds.cache.hits", ""); got != 2 {
		t.Errorf("expected 2 hits, got %d", got)
	}
	if got := tp.GetCounter("cds.cache.misses", ""); got != 1 {
		t.Errorf("expected 1 miss, got %d", got)
	}
}

func TestImportRows_ByOutcome(t *testing.T) {
	tp := newTestProvider()
	tp.ImportRows("imported", 10)
	tp.ImportRows("rejected", 2)
	tp.ImportRows("updated", 3)

	if got := tp.GetCounter("dak.import.rows", "imported"); got != 10 {
		t.Errorf("expected 10 imported rows, got %d", got)
	}
	if got := tp.GetCounter("dak.import.rows", "rejected"); got != 2 {
		t.Errorf("expected 2 rejected rows, got %d", got)
	}
}

// ── Middleware ──

func TestMetricsMiddleware_RecordsDuration(t *testing.T) {
	tp := newTestProvider()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/dak/evaluate/anc", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/dak/evaluate/:module")

	h := tp.MetricsMiddleware()(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	global := tp.GetHistogram("http.server.request.duration")
	if global == nil || global.Count() != 1 {
		t.Fatal("expected one duration observation")
	}

	key := LabelsKey(http.MethodPost, "/api/dak/evaluate/:module", "200")
	labeled := tp.GetLabeledHistogram("http.server.request.duration", key)
	if labeled == nil || labeled.Count() != 1 {
		t.Fatalf("expected labeled observation for %s", key)
	}

	if got := tp.GetGauge("http.server.active_requests"); got != 0 {
		t.Errorf("expected active requests back to 0, got %d", got)
	}
}

func TestTracingMiddleware_RecordsSpan(t *testing.T) {
	tp := newTestProvider()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/dak/evaluate/anc", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/dak/evaluate/:module")
	c.Set("request_id", "req-42")

	h := tp.TracingMiddleware()(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := tp.GetRecordedSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "HTTP POST /api/dak/evaluate/:module" {
		t.Errorf("unexpected span name %s", span.Name)
	}
	if span.Attributes["cds.module"] != "anc" {
		t.Errorf("expected cds.module=anc, got %s", span.Attributes["cds.module"])
	}
	if span.Attributes["request.id"] != "req-42" {
		t.Errorf("expected request.id attribute, got %s", span.Attributes["request.id"])
	}
	if span.StatusCode != SpanStatusOK {
		t.Errorf("expected OK status, got %d", span.StatusCode)
	}
}

func TestTracingMiddleware_ErrorStatus(t *testing.T) {
	tp := newTestProvider()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/admin/dak/rules", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := tp.TracingMiddleware()(func(c echo.Context) error {
		c.Response().WriteHeader(http.StatusInternalServerError)
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := tp.GetRecordedSpans()
	if len(spans) != 1 || spans[0].StatusCode != SpanStatusError {
		t.Fatal("expected one span with error status")
	}
}

// ── Prometheus exposition ──

func TestPrometheusHandler_Exposition(t *testing.T) {
	tp := newTestProvider()
	tp.RuleEvaluation("anc", time.Millisecond)
	tp.AlertsFired("critical", 2)
	tp.RulesSkipped(3)
	tp.CacheHit()
	tp.CacheMiss()
	tp.ImportRows("imported", 5)
	tp.SetActiveRules(42)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := tp.PrometheusHandler()(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body := rec.Body.String()
	for _, want := range []string{
		`cds_rule_evaluations_total{module="anc"} 1`,
		`cds_alerts_fired_total{severity="critical"} 2`,
		"cds_rules_skipped_total 3",
		"cds_cache_hits_total 1",
		"cds_cache_misses_total 1",
		`dak_import_rows_total{outcome="imported"} 5`,
		"cds_rules_active 42",
		"# TYPE cds_rule_evaluation_duration_seconds histogram",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

// ── Helpers ──

func TestExtractCareModule(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/api/dak/evaluate/anc", "anc"},
		{"/api/dak/evaluate/prep/extra", "prep"},
		{"/api/dak/decision-support/art", "art"},
		{"/api/admin/dak/rules", ""},
		{"/healthz", ""},
		{"/api/dak/evaluate/", ""},
	}
	for _, tc := range cases {
		if got := extractCareModule(tc.path); got != tc.want {
			t.Errorf("extractCareModule(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}
