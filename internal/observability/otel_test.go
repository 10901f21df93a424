package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/lifeline-backend/internal/config"
)

func preserveOTelGlobals(t *testing.T) {
	t.Helper()
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	prevExp := newOTLPExporterFn
	prevRes := newServiceResourceFn
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
		newOTLPExporterFn = prevExp
		newServiceResourceFn = prevRes
	})
}

func enabled(name string) config.OTELConfig {
	return config.OTELConfig{
		Enabled:     true,
		Insecure:    true,
		Endpoint:    "localhost:4317",
		ServiceName: name,
		SampleRatio: 1.0,
		Environment: "test",
	}
}

// useMemoryExporter swaps the OTLP exporter for an in-process recorder.
func useMemoryExporter(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	mem := tracetest.NewInMemoryExporter()
	newOTLPExporterFn = func(context.Context, otlptrace.Client) (sdktrace.SpanExporter, error) {
		return mem, nil
	}
	return mem
}

func TestSetupOTel_Disabled_NoOp(t *testing.T) {
	preserveOTelGlobals(t)
	prev := otel.GetTracerProvider()

	cfg := enabled("svc")
	cfg.Enabled = false
	shutdown, err := SetupOTel(context.Background(), cfg, "v0.0.0")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown returned error: %v", err)
	}
	if otel.GetTracerProvider() != prev {
		t.Fatalf("disabled setup replaced the tracer provider")
	}
}

func TestSetupOTel_ExportsSpansWithServiceResource(t *testing.T) {
	preserveOTelGlobals(t)
	mem := useMemoryExporter(t)

	shutdown, err := SetupOTel(context.Background(), enabled("lifeline-api"), "v1.2.3")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	_, span := Tracer("matcher").Start(context.Background(), "OnRequestCreated")
	span.End()
	tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	if !ok {
		t.Fatalf("expected *sdktrace.TracerProvider")
	}
	// The in-memory exporter forgets spans on shutdown, so flush instead.
	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	spans := mem.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("exported %d spans", len(spans))
	}
	got := spans[0]
	if got.InstrumentationScope.Name != "lifeline/matcher" {
		t.Fatalf("scope=%q", got.InstrumentationScope.Name)
	}
	want := map[attribute.Key]string{
		"service.name":           "lifeline-api",
		"service.version":        "v1.2.3",
		"service.namespace":      ServiceNamespace,
		"deployment.environment": "test",
	}
	attrs := map[attribute.Key]string{}
	for _, kv := range got.Resource.Attributes() {
		attrs[kv.Key] = kv.Value.Emit()
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Fatalf("resource %s=%q want %q", k, attrs[k], v)
		}
	}
}

func TestSetupOTel_PropagatesTraceContext(t *testing.T) {
	preserveOTelGlobals(t)
	useMemoryExporter(t)

	shutdown, err := SetupOTel(context.Background(), enabled("svc"), "v1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	ctx, span := Tracer("test").Start(context.Background(), "outbound")
	defer span.End()

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if carrier.Get("traceparent") == "" {
		t.Fatalf("traceparent not injected: %v", carrier)
	}
	remote := trace.SpanContextFromContext(otel.GetTextMapPropagator().Extract(context.Background(), carrier))
	if remote.TraceID() != span.SpanContext().TraceID() {
		t.Fatalf("trace id lost in round trip")
	}
}

func TestSetupOTel_RealExporter_TLSAndInsecure(t *testing.T) {
	for _, insecure := range []bool{true, false} {
		preserveOTelGlobals(t)
		cfg := enabled("svc")
		cfg.Insecure = insecure

		// The gRPC client connects lazily, so setup succeeds without a collector.
		shutdown, err := SetupOTel(context.Background(), cfg, "v1")
		if err != nil {
			t.Fatalf("insecure=%v: %v", insecure, err)
		}
		if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
			t.Fatalf("expected *sdktrace.TracerProvider")
		}
		_ = shutdown(context.Background())
	}
}

func TestSetupOTel_Errors_LeaveGlobalsIntact(t *testing.T) {
	cases := map[string]func(){
		"exporter": func() {
			newOTLPExporterFn = func(context.Context, otlptrace.Client) (sdktrace.SpanExporter, error) {
				return nil, errors.New("boom-exporter")
			}
		},
		"resource": func() {
			newServiceResourceFn = func(context.Context, config.OTELConfig, string) (*resource.Resource, error) {
				return nil, errors.New("boom-resource")
			}
		},
	}
	for name, inject := range cases {
		t.Run(name, func(t *testing.T) {
			preserveOTelGlobals(t)
			inject()
			prevTP := otel.GetTracerProvider()
			prevProp := otel.GetTextMapPropagator()

			if _, err := SetupOTel(context.Background(), enabled("svc"), "v0"); err == nil {
				t.Fatalf("expected error, got nil")
			}
			if otel.GetTracerProvider() != prevTP || otel.GetTextMapPropagator() != prevProp {
				t.Fatalf("globals changed on failure")
			}
		})
	}
}

func TestSampler(t *testing.T) {
	root := sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       trace.TraceID{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 1},
		Name:          "root",
	}
	cases := []struct {
		ratio float64
		want  sdktrace.SamplingDecision
	}{
		{1.5, sdktrace.RecordAndSample},
		{1, sdktrace.RecordAndSample},
		{0, sdktrace.Drop},
		{-1, sdktrace.Drop},
	}
	for _, tc := range cases {
		if got := sampler(tc.ratio).ShouldSample(root).Decision; got != tc.want {
			t.Fatalf("sampler(%v)=%v want %v", tc.ratio, got, tc.want)
		}
	}

	// A sampled parent wins over the local ratio.
	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    root.TraceID,
		SpanID:     trace.SpanID{1},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	child := root
	child.ParentContext = trace.ContextWithRemoteSpanContext(context.Background(), parent)
	if got := sampler(0).ShouldSample(child).Decision; got != sdktrace.RecordAndSample {
		t.Fatalf("parent-based sampling ignored: %v", got)
	}
}
