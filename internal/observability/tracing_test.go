package observability

import (
	"context"
	"testing"

	"github.com/signalsfoundry/junctionbox-simulator/internal/logging"
)

func TestTracingConfigFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"JBOX_TRACING_ENABLED", "JBOX_TRACING_EXPORTER", "JBOX_TRACING_SERVICE_NAME",
		"JBOX_TRACING_SAMPLE_RATIO", "JBOX_OTLP_ENDPOINT",
	} {
		t.Setenv(key, "")
	}

	cfg := TracingConfigFromEnv()
	if cfg != DefaultTracingConfig() {
		t.Fatalf("TracingConfigFromEnv() = %+v, want defaults", cfg)
	}
}

func TestApplyTracingEnv(t *testing.T) {
	t.Setenv("JBOX_TRACING_ENABLED", "TRUE")
	t.Setenv("JBOX_TRACING_EXPORTER", "OTLP")
	t.Setenv("JBOX_TRACING_SERVICE_NAME", "jbox-test")
	t.Setenv("JBOX_TRACING_SAMPLE_RATIO", "0.25")
	t.Setenv("JBOX_OTLP_ENDPOINT", "collector:4317")

	cfg := DefaultTracingConfig()
	ApplyTracingEnv(&cfg)
	want := TracingConfig{
		Enabled:     true,
		ServiceName: "jbox-test",
		Exporter:    "otlp",
		Endpoint:    "collector:4317",
		SampleRatio: 0.25,
	}
	if cfg != want {
		t.Fatalf("ApplyTracingEnv = %+v, want %+v", cfg, want)
	}
}

func TestApplyTracingEnvIgnoresBadRatio(t *testing.T) {
	t.Setenv("JBOX_TRACING_SAMPLE_RATIO", "1.5")
	cfg := TracingConfig{SampleRatio: 0.5}
	ApplyTracingEnv(&cfg)
	if cfg.SampleRatio != 0.5 {
		t.Fatalf("sample ratio = %v, want unchanged 0.5", cfg.SampleRatio)
	}
}

func TestInitTracingDisabledIsNoop(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, logging.Noop())
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin", SampleRatio: 1}, logging.Noop())
	if err == nil {
		t.Fatalf("expected error for unsupported exporter")
	}
}
