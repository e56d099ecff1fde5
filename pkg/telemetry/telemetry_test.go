package telemetry

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newTestTracer() (trace.Tracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return provider.Tracer("test"), recorder
}

func findSpanByName(spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	for _, span := range spans {
		if span.Name() == name {
			return span
		}
	}
	return nil
}

func getAttr(attrs []attribute.KeyValue, key string) attribute.Value {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value
		}
	}
	return attribute.Value{}
}

func TestNestedActivations(t *testing.T) {
	tracer, recorder := newTestTracer()
	tr := NewTracker(context.Background(), tracer, "regression")

	endOuter := tr.Activate(1, "VariableSelectionStep")
	endInner := tr.Activate(2, "AssumptionCheckingStep")
	tr.Completed(2, "AssumptionCheckingStep")
	endInner(nil)
	endOuter(nil)

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended span count = %d, want 2", len(spans))
	}
	outer := findSpanByName(spans, "step.VariableSelectionStep")
	inner := findSpanByName(spans, "step.AssumptionCheckingStep")
	if outer == nil || inner == nil {
		t.Fatal("missing step spans")
	}
	if inner.Parent().SpanID() != outer.SpanContext().SpanID() {
		t.Fatalf("inner parent = %s, want %s", inner.Parent().SpanID(), outer.SpanContext().SpanID())
	}
	if got := getAttr(inner.Attributes(), StepIDKey).AsInt64(); got != 2 {
		t.Fatalf("step id attribute = %d", got)
	}
	if got := getAttr(outer.Attributes(), WorkflowKey).AsString(); got != "regression" {
		t.Fatalf("workflow attribute = %q", got)
	}
	if len(inner.Events()) != 1 || inner.Events()[0].Name != CompletedEvt {
		t.Fatalf("inner events = %v", inner.Events())
	}
}

func TestActivationError(t *testing.T) {
	tracer, recorder := newTestTracer()
	tr := NewTracker(context.Background(), tracer, "wf")

	end := tr.Activate(0, "ModelStep")
	tr.Warned(0, "ModelStep", "column is not numeric")
	end(errors.New("boom"))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended span count = %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error || spans[0].Status().Description != "boom" {
		t.Fatalf("status = %+v", spans[0].Status())
	}
	var warned bool
	for _, ev := range spans[0].Events() {
		if ev.Name == WarningEvt {
			warned = true
		}
	}
	if !warned {
		t.Fatal("missing warning event")
	}
	if len(tr.stack) != 0 {
		t.Fatalf("stack not unwound: %d", len(tr.stack))
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	tr := NewTracker(context.Background(), nil, "wf")
	tr.Activate(0, "LoadDatasetStep")(nil)
	tr.Reconciled("config")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, name := range []string{"guidedstats_step_activations_total", "guidedstats_reconciliations_total"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output lacks %s", name)
		}
	}
}
