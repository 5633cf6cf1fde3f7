package otel

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestParseResourceAttributes(t *testing.T) {
	attrs := parseResourceAttributes("env=dev, team = core ,invalid,=skip")
	if attrs["env"] != "dev" {
		t.Fatalf("expected env=dev, got %q", attrs["env"])
	}
	if attrs["team"] != "core" {
		t.Fatalf("expected team=core, got %q", attrs["team"])
	}
	if _, ok := attrs["invalid"]; ok {
		t.Fatalf("expected invalid attribute to be skipped")
	}
	if _, ok := attrs[""]; ok {
		t.Fatalf("expected empty key to be skipped")
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	cases := map[string]string{
		"http://127.0.0.1:4318":  "127.0.0.1:4318",
		"https://localhost:4318": "localhost:4318",
		"127.0.0.1:4318/":        "127.0.0.1:4318",
		"":                       "",
	}
	for input, expected := range cases {
		if got := normalizeEndpoint(input); got != expected {
			t.Fatalf("normalizeEndpoint(%q) = %q, want %q", input, got, expected)
		}
	}
}

func TestSDKOptionsFromEnv(t *testing.T) {
	t.Setenv("POLI_OTEL_ENABLED", "false")
	t.Setenv("POLI_OTEL_SERVICE_NAME", "politerm-test")
	t.Setenv("POLI_OTEL_RESOURCE_ATTRIBUTES", "env=staging")
	t.Setenv("POLI_OTEL_ENDPOINT", "127.0.0.1:9998")

	opts := SDKOptionsFromEnv("")
	if opts.Enabled {
		t.Fatalf("expected Enabled false")
	}
	if opts.ServiceName != "politerm-test" {
		t.Fatalf("expected service name override, got %q", opts.ServiceName)
	}
	if opts.HTTPEndpoint != "127.0.0.1:9998" {
		t.Fatalf("expected endpoint override, got %q", opts.HTTPEndpoint)
	}
	if opts.ResourceAttributes["env"] != "staging" {
		t.Fatalf("expected resource attribute env=staging, got %v", opts.ResourceAttributes)
	}
}

func TestSDKOptionsEnabledByEndpoint(t *testing.T) {
	if opts := SDKOptionsFromEnv("localhost:4318"); !opts.Enabled {
		t.Fatalf("expected tracing to be enabled by an endpoint")
	}
	if opts := SDKOptionsFromEnv(""); opts.Enabled {
		t.Fatalf("expected tracing to be disabled without endpoint")
	}
}

func TestSetupSDKDisabledIsNoop(t *testing.T) {
	shutdown, err := SetupSDK(context.Background(), SDKOptions{})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSpanHelpers(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	ctx, span := provider.Tracer("test").Start(context.Background(), "wait")
	RecordSpanEvent(ctx, "nudge", attribute.String("party", "PLANNER"))
	EndSpan(span, errors.New("boom"))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	if len(spans[0].Events()) < 1 || spans[0].Events()[0].Name != "nudge" {
		t.Fatalf("expected nudge event, got %v", spans[0].Events())
	}
	if spans[0].Status().Code != codes.Error {
		t.Fatalf("expected error status")
	}
}
