package observability

import (
	"bytes"
	"context"
	"os"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestTracingConfigFromEnvDefaults(t *testing.T) {
	unsetEnv(t, "MMTC_TRACING_ENABLED", "MMTC_TRACING_EXPORTER", "MMTC_TRACING_SERVICE_NAME", "MMTC_TRACING_SAMPLE_RATIO")
	cfg, err := TracingConfigFromEnv()
	if err != nil {
		t.Fatalf("TracingConfigFromEnv: %v", err)
	}
	if cfg.Enabled || cfg.Exporter != "stdout" || cfg.ServiceName != "mmtc" || cfg.SampleRatio != 1 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestTracingConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("MMTC_TRACING_ENABLED", "true")
	t.Setenv("MMTC_TRACING_EXPORTER", "OTLP")
	t.Setenv("MMTC_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("MMTC_TRACING_SAMPLE_RATIO", "0.25")
	cfg, err := TracingConfigFromEnv()
	if err != nil {
		t.Fatalf("TracingConfigFromEnv: %v", err)
	}
	if !cfg.Enabled || cfg.Exporter != "otlp" || cfg.Endpoint != "collector:4317" || cfg.SampleRatio != 0.25 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestTracingConfigFromEnvRejectsRatio(t *testing.T) {
	t.Setenv("MMTC_TRACING_SAMPLE_RATIO", "2")
	if _, err := TracingConfigFromEnv(); err == nil {
		t.Fatalf("expected error for sample ratio above 1")
	}
}

func TestInitTracingStdout(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	shutdown, err := InitTracing(ctx, TracingConfig{
		Enabled:     true,
		ServiceName: "mmtc-test",
		Exporter:    "stdout",
		SampleRatio: 1,
		Output:      &buf,
	}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}

	_, span := otel.Tracer("test").Start(ctx, "correlation.attempt")
	span.End()
	ShutdownWithTimeout(ctx, shutdown, nil)

	if !bytes.Contains(buf.Bytes(), []byte("correlation.attempt")) {
		t.Fatalf("expected exported span in output, got %q", buf.String())
	}
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	if _, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"}, nil); err == nil {
		t.Fatalf("expected error for unsupported exporter")
	}
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}
