package observability

import (
	"context"
	"testing"

	"github.com/signalsfoundry/constellation-handover/internal/logging"
)

func TestTracingConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("HOPIPE_TRACING_ENABLED", "")
	t.Setenv("HOPIPE_TRACING_EXPORTER", "")
	t.Setenv("HOPIPE_TRACING_SERVICE_NAME", "")
	t.Setenv("HOPIPE_TRACING_SAMPLE_RATIO", "")
	t.Setenv("HOPIPE_OTLP_ENDPOINT", "")

	cfg := TracingConfigFromEnv()
	if cfg.Enabled {
		t.Fatal("tracing enabled without HOPIPE_TRACING_ENABLED")
	}
	if cfg.Exporter != "stdout" {
		t.Fatalf("default exporter = %q, want stdout", cfg.Exporter)
	}
	if cfg.ServiceName != "handover-pipeline" {
		t.Fatalf("default service name = %q", cfg.ServiceName)
	}
	if cfg.SampleRatio != 1.0 {
		t.Fatalf("default sample ratio = %v, want 1.0", cfg.SampleRatio)
	}
}

func TestTracingConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("HOPIPE_TRACING_ENABLED", "TRUE")
	t.Setenv("HOPIPE_TRACING_EXPORTER", "OTLPGRPC")
	t.Setenv("HOPIPE_TRACING_SERVICE_NAME", "coverage-daemon")
	t.Setenv("HOPIPE_TRACING_SAMPLE_RATIO", "0.25")
	t.Setenv("HOPIPE_OTLP_ENDPOINT", "collector:4317")

	cfg := TracingConfigFromEnv()
	if !cfg.Enabled {
		t.Fatal("HOPIPE_TRACING_ENABLED=TRUE not honored")
	}
	if cfg.Exporter != "otlpgrpc" {
		t.Fatalf("exporter = %q, want otlpgrpc", cfg.Exporter)
	}
	if cfg.ServiceName != "coverage-daemon" {
		t.Fatalf("service name = %q", cfg.ServiceName)
	}
	if cfg.SampleRatio != 0.25 {
		t.Fatalf("sample ratio = %v, want 0.25", cfg.SampleRatio)
	}
	if cfg.Endpoint != "collector:4317" {
		t.Fatalf("endpoint = %q", cfg.Endpoint)
	}
}

func TestTracingConfigFromEnvRejectsBadRatio(t *testing.T) {
	t.Setenv("HOPIPE_TRACING_SAMPLE_RATIO", "1.7")

	if cfg := TracingConfigFromEnv(); cfg.SampleRatio != 1.0 {
		t.Fatalf("out-of-range ratio accepted: %v", cfg.SampleRatio)
	}
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, logging.Noop())
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	if shutdown == nil {
		t.Fatal("shutdown func is nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitTracingUnknownExporter(t *testing.T) {
	cfg := TracingConfig{Enabled: true, Exporter: "jaeger-thrift"}
	if _, err := InitTracing(context.Background(), cfg, logging.Noop()); err == nil {
		t.Fatal("unknown exporter accepted")
	}
}
