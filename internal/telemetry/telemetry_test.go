package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInit_DisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestInit_RequiresServiceName(t *testing.T) {
	if _, err := Init(context.Background(), Config{Enabled: true}); err == nil {
		t.Fatal("expected error")
	}
}

func TestTracerProvider_EmitsSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp, err := newTracerProvider(exp, Config{ServiceName: "aplgui-test", ServiceVersion: "v0"})
	if err != nil {
		t.Fatalf("newTracerProvider: %v", err)
	}

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	_, span := Tracer().Start(context.Background(), "checkpoint.rollback")
	span.End()
	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush: %v", err)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "checkpoint.rollback" {
		t.Fatalf("spans = %+v", spans)
	}
	found := false
	for _, kv := range spans[0].Resource.Attributes() {
		if kv.Key == attribute.Key("service.name") && kv.Value.AsString() == "aplgui-test" {
			found = true
		}
	}
	if !found {
		t.Error("resource should carry service.name")
	}
	tp.Shutdown(context.Background())
}
