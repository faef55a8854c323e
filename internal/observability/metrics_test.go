package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestPipelineCollectorRecordsPhases(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPipelineCollector(reg)
	if err != nil {
		t.Fatalf("NewPipelineCollector: %v", err)
	}

	collector.ObservePhase("propagate_scoring", 120*time.Millisecond)
	collector.ObservePhase("propagate_scoring", 80*time.Millisecond)
	collector.ObservePhase("detect", 40*time.Millisecond)

	if count := histogramSampleCount(t, reg, "pipeline_phase_duration_seconds", map[string]string{
		"phase": "propagate_scoring",
	}); count != 2 {
		t.Fatalf("pipeline_phase_duration_seconds sample_count = %d, want 2", count)
	}
	if count := histogramSampleCount(t, reg, "pipeline_phase_duration_seconds", map[string]string{
		"phase": "detect",
	}); count != 1 {
		t.Fatalf("detect phase sample_count = %d, want 1", count)
	}
}

func TestPipelineCollectorCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPipelineCollector(reg)
	if err != nil {
		t.Fatalf("NewPipelineCollector: %v", err)
	}

	collector.AddPropagated(24)
	collector.AddPropagationFailures("sgp4_init", 2)
	collector.AddEvents("A4", 3)
	collector.AddEvents("D2", 1)
	collector.AddMissingSamples(5)
	collector.SetPool("starlink", 25)
	collector.SetVisible("starlink", 7, 9.5)

	if got := testutil.ToFloat64(collector.SatellitesPropagated); got != 24 {
		t.Fatalf("pipeline_satellites_propagated_total = %v, want 24", got)
	}
	if got := testutil.ToFloat64(collector.PropagationFailures.WithLabelValues("sgp4_init")); got != 2 {
		t.Fatalf("pipeline_propagation_failures_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.EventsDetected.WithLabelValues("A4")); got != 3 {
		t.Fatalf("pipeline_events_detected_total{kind=A4} = %v, want 3", got)
	}
	if got := testutil.ToFloat64(collector.PoolSize.WithLabelValues("starlink")); got != 25 {
		t.Fatalf("pipeline_pool_size = %v, want 25", got)
	}
	if got := testutil.ToFloat64(collector.VisibleMean.WithLabelValues("starlink")); got != 9.5 {
		t.Fatalf("pipeline_visible_mean = %v, want 9.5", got)
	}

	// Negative and zero deltas are dropped rather than panicking the counter.
	collector.AddPropagated(-1)
	collector.AddMissingSamples(0)
	if got := testutil.ToFloat64(collector.MissingSamples); got != 5 {
		t.Fatalf("pipeline_missing_samples_total = %v, want 5", got)
	}
}

func TestMetricsHandlerExposesPipelineSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPipelineCollector(reg)
	if err != nil {
		t.Fatalf("NewPipelineCollector: %v", err)
	}
	collector.ObservePhase("select", 10*time.Millisecond)
	collector.SetPool("oneweb", 18)
	collector.SetVisible("oneweb", 6, 8.2)
	collector.AddEvents("A5", 2)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"pipeline_phase_duration_seconds",
		"pipeline_pool_size",
		"pipeline_visible_min",
		"pipeline_visible_mean",
		"pipeline_events_detected_total",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestDaemonCollectorTracksRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewDaemonCollector(reg)
	if err != nil {
		t.Fatalf("NewDaemonCollector: %v", err)
	}

	collector.ObserveRun(250 * time.Millisecond)
	collector.ObserveRun(400 * time.Millisecond)
	collector.IncRunFailure()
	collector.SetCatalogSize(120)

	if count := histogramSampleCount(t, reg, "daemon_run_duration_seconds", nil); count != 2 {
		t.Fatalf("daemon_run_duration_seconds sample_count = %d, want 2", count)
	}
	if got := testutil.ToFloat64(collector.RunFailures); got != 1 {
		t.Fatalf("daemon_run_failures_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.CatalogSize); got != 120 {
		t.Fatalf("daemon_catalog_elements = %v, want 120", got)
	}
	if got := testutil.ToFloat64(collector.LastRunUnix); got <= 0 {
		t.Fatalf("daemon_last_run_timestamp_seconds should be set after a run, got %v", got)
	}
}

func TestCollectorsRegisterTwiceOnSharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPipelineCollector(reg); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	second, err := NewPipelineCollector(reg)
	if err != nil {
		t.Fatalf("second registration should reuse existing collectors: %v", err)
	}
	second.AddEvents("A4", 1)
	if got := testutil.ToFloat64(second.EventsDetected.WithLabelValues("A4")); got != 1 {
		t.Fatalf("reused collector should record, got %v", got)
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
