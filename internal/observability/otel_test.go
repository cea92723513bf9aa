package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/hr-intake-bot/internal/config"
)

var testDeployment = Deployment{Version: "v1.2.3", Transport: "poll", BitrixMode: "TASKS"}

func preserveOTelGlobals(t *testing.T) {
	t.Helper()
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
}

func enabled(name string, insecure bool) config.OTELConfig {
	return config.OTELConfig{
		Enabled:     true,
		Insecure:    insecure,
		Endpoint:    "localhost:4317",
		ServiceName: name,
		SampleRatio: 1.0,
	}
}

func TestSetupOTel_Disabled_NoOp(t *testing.T) {
	preserveOTelGlobals(t)
	prevTP := otel.GetTracerProvider()

	shutdown, err := SetupOTel(context.Background(), config.OTELConfig{Endpoint: "ignored:4317"}, testDeployment)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown returned error: %v", err)
	}
	if otel.GetTracerProvider() != prevTP {
		t.Fatalf("disabled tracing must not replace the provider")
	}
}

func TestSetupOTel_Insecure_SetsProviderAndPropagator(t *testing.T) {
	preserveOTelGlobals(t)

	shutdown, err := SetupOTel(context.Background(), enabled("svc-insecure", true), testDeployment)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("expected *sdktrace.TracerProvider")
	}

	prop := otel.GetTextMapPropagator()
	carrier := propagation.MapCarrier{}
	ctx, span := otel.Tracer("services/SubmissionService").Start(context.Background(), "Submit")
	prop.Inject(ctx, carrier)
	span.End()
	if carrier.Get("traceparent") == "" {
		t.Fatalf("traceparent not injected: %v", carrier)
	}
}

func TestSetupOTel_SecureTLS_SetsProvider(t *testing.T) {
	preserveOTelGlobals(t)

	shutdown, err := SetupOTel(context.Background(), enabled("svc-tls", false), testDeployment)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("expected *sdktrace.TracerProvider")
	}
	_, span := otel.Tracer("bitrix").Start(context.Background(), "tasks.task.add", trace.WithSpanKind(trace.SpanKindClient))
	span.End()
}

func TestSetupOTel_ResourceCarriesDeployment(t *testing.T) {
	preserveOTelGlobals(t)

	orig := newServiceResourceFn
	defer func() { newServiceResourceFn = orig }()
	var got *resource.Resource
	newServiceResourceFn = func(ctx context.Context, serviceName string, d Deployment) (*resource.Resource, error) {
		r, err := orig(ctx, serviceName, d)
		got = r
		return r, err
	}

	shutdown, err := SetupOTel(context.Background(), enabled("hr-intake-bot", true), Deployment{Version: "v2", Transport: "webhook", BitrixMode: "CRM"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	want := map[attribute.Key]string{
		"service.name":    "hr-intake-bot",
		"service.version": "v2",
		"bot.transport":   "webhook",
		"bitrix.mode":     "CRM",
	}
	set := got.Set()
	for k, v := range want {
		if val, ok := set.Value(k); !ok || val.AsString() != v {
			t.Fatalf("resource %s = %v, want %q", k, val, v)
		}
	}
}

func TestSetupOTel_CanceledContext_StillSucceeds(t *testing.T) {
	preserveOTelGlobals(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // exporter creation is lazy

	shutdown, err := SetupOTel(ctx, enabled("svc-canceled", true), testDeployment)
	if err != nil {
		t.Fatalf("unexpected err with canceled ctx: %v", err)
	}
	_ = shutdown(context.Background())
}

func TestSetupOTel_ErrorsPropagateAndGlobalsIntact(t *testing.T) {
	for name, inject := range map[string]func() func(){
		"exporter": func() func() {
			orig := newOTLPExporterFn
			newOTLPExporterFn = func(context.Context, otlptrace.Client) (*otlptrace.Exporter, error) {
				return nil, errors.New("boom-exporter")
			}
			return func() { newOTLPExporterFn = orig }
		},
		"resource": func() func() {
			orig := newServiceResourceFn
			newServiceResourceFn = func(context.Context, string, Deployment) (*resource.Resource, error) {
				return nil, errors.New("boom-resource")
			}
			return func() { newServiceResourceFn = orig }
		},
	} {
		t.Run(name, func(t *testing.T) {
			preserveOTelGlobals(t)
			defer inject()()

			prevTP := otel.GetTracerProvider()
			prevProp := otel.GetTextMapPropagator()
			if _, err := SetupOTel(context.Background(), enabled("svc", true), testDeployment); err == nil {
				t.Fatalf("expected error, got nil")
			}
			if otel.GetTracerProvider() != prevTP || otel.GetTextMapPropagator() != prevProp {
				t.Fatalf("globals changed on failure")
			}
		})
	}
}

func TestShutdown_IsCallable(t *testing.T) {
	preserveOTelGlobals(t)

	shutdown, err := SetupOTel(context.Background(), enabled("svc-shutdown", true), testDeployment)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	ct, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	if err := shutdown(ct); err != nil {
		t.Fatalf("shutdown returned error: %v", err)
	}
}

func TestRecordBuildInfo(t *testing.T) {
	RecordBuildInfo(Deployment{Version: "v1", Transport: "poll", BitrixMode: "TASKS"})
	RecordBuildInfo(Deployment{Version: "v2", Transport: "webhook", BitrixMode: "CRM"})

	if got := testutil.CollectAndCount(buildInfo); got != 1 {
		t.Fatalf("expected a single build-info series, got %d", got)
	}
	if v := testutil.ToFloat64(buildInfo.WithLabelValues("v2", "webhook", "CRM")); v != 1 {
		t.Fatalf("build info = %v", v)
	}
}
