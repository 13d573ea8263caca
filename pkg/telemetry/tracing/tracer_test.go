package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mercator-hq/relay/pkg/config"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func enabledConfig(sampler string) *config.TracingConfig {
	return &config.TracingConfig{
		Enabled:     true,
		Sampler:     sampler,
		SampleRatio: 1.0,
		Endpoint:    "localhost:4317",
		ServiceName: "relay-test",
		Insecure:    true,
		Timeout:     time.Second,
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *config.TracingConfig
		wantErr bool
	}{
		{"nil config", nil, true},
		{"disabled", &config.TracingConfig{Enabled: false}, false},
		{"always", enabledConfig(SamplerAlways), false},
		{"never", enabledConfig(SamplerNever), false},
		{"ratio", enabledConfig(SamplerRatio), false},
		{"unknown sampler", enabledConfig("sometimes"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, err := New(tt.config, WithSpanProcessor(tracetest.NewSpanRecorder()))
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if tracer.Enabled() != tt.config.Enabled {
				t.Errorf("Enabled() = %v, want %v", tracer.Enabled(), tt.config.Enabled)
			}
			if err := tracer.Shutdown(context.Background()); err != nil {
				t.Errorf("Shutdown() error = %v", err)
			}
		})
	}
}

func TestNew_OTLPExporterDoesNotBlock(t *testing.T) {
	// Nothing listens on this port; startup must still succeed.
	cfg := enabledConfig(SamplerAlways)
	cfg.Endpoint = "127.0.0.1:1"

	tracer, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = tracer.Shutdown(ctx)
}

func TestTracer_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer, err := New(enabledConfig(SamplerAlways), WithSpanProcessor(recorder), WithServiceVersion("1.2.3"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer tracer.Shutdown(context.Background())

	_, span := tracer.Start(context.Background(), "relay.proxy")
	for _, kv := range RequestAttributes("sess-1", "http", "stream", "", "/chat/completions") {
		span.SetAttributes(kv)
	}
	SetOutcome(span, "errored", 3)
	SetError(span, errors.New("boom"), "stream")
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	got := spans[0]

	attrs := map[string]string{}
	for _, kv := range got.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs["relay.session_id"] != "sess-1" || attrs["relay.outcome"] != "errored" || attrs["relay.chunks"] != "3" {
		t.Errorf("unexpected attributes: %v", attrs)
	}
	if _, ok := attrs["relay.model"]; ok {
		t.Error("empty model should not be recorded")
	}
	if got.Status().Code != codes.Error || got.Status().Description != "stream" {
		t.Errorf("status = %+v", got.Status())
	}
	if len(got.Events()) == 0 {
		t.Error("error event not recorded")
	}

	version, _ := got.Resource().Set().Value("service.version")
	if version.AsString() != "1.2.3" {
		t.Errorf("service.version = %q", version.AsString())
	}
}

func TestTracer_NeverSamplerDropsRootSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer, err := New(enabledConfig(SamplerNever), WithSpanProcessor(recorder))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer tracer.Shutdown(context.Background())

	_, span := tracer.Start(context.Background(), "dropped")
	span.End()

	if n := len(recorder.Ended()); n != 0 {
		t.Errorf("expected no recorded spans, got %d", n)
	}
}

func TestCreateSampler_InvalidRatio(t *testing.T) {
	for _, ratio := range []float64{-0.1, 1.5} {
		if _, err := createSampler(SamplerRatio, ratio); err == nil {
			t.Errorf("ratio %v should be rejected", ratio)
		}
	}
	s, err := createSampler(SamplerRatio, 0.5)
	if err != nil {
		t.Fatalf("createSampler() error = %v", err)
	}
	var _ sdktrace.Sampler = s
}

func TestHTTPMiddleware_ExtractsTraceContext(t *testing.T) {
	if _, err := New(&config.TracingConfig{}); err != nil {
		t.Fatalf("New() error = %v", err)
	}

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	var seen string
	handler := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != traceID {
		t.Errorf("handler saw trace id %q, want %q", seen, traceID)
	}
	if rec.Header().Get("X-Trace-ID") != traceID {
		t.Errorf("X-Trace-ID = %q", rec.Header().Get("X-Trace-ID"))
	}

	out := http.Header{}
	Inject(Extract(context.Background(), req.Header), out)
	if out.Get("traceparent") == "" {
		t.Error("Inject should write traceparent")
	}
}

func TestHTTPMiddleware_NoTraceContext(t *testing.T) {
	handler := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if TraceID(r.Context()) != "" {
			t.Error("expected no trace id")
		}
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Header().Get("X-Trace-ID") != "" {
		t.Error("X-Trace-ID should be absent")
	}
}
