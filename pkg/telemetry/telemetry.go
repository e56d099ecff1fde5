// Package telemetry records step activity of a workflow as OpenTelemetry
// spans and Prometheus metrics.
package telemetry

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	TracerName = "github.com/systemstart/guidedstats"

	WorkflowKey  = "guidedstats.workflow"
	StepIDKey    = "guidedstats.step.id"
	StepTypeKey  = "guidedstats.step.type"
	FieldKey     = "guidedstats.field"
	CompletedEvt = "guidedstats.step.completed"
	WarningEvt   = "guidedstats.step.warning"
)

var (
	stepActivations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guidedstats_step_activations_total",
			Help: "Total number of step activations",
		},
		[]string{"step_type", "status"},
	)

	stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guidedstats_step_activation_duration_seconds",
			Help:    "Step activation duration in seconds, including the cascade it triggers",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"step_type"},
	)

	stepCompletions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guidedstats_step_completions_total",
			Help: "Total number of completed steps",
		},
		[]string{"step_type"},
	)

	stepWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guidedstats_step_warnings_total",
			Help: "Total number of data problems reported to the user",
		},
		[]string{"step_type"},
	)

	reconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guidedstats_reconciliations_total",
			Help: "Total number of snapshot edits applied, by field",
		},
		[]string{"field"},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "guidedstats_active_sessions",
			Help: "Number of sessions held in memory",
		},
	)
)

// Tracker turns step activity into spans and metrics. Activations nest: a
// step activated while another is running becomes its child span.
type Tracker struct {
	tracer   trace.Tracer
	workflow string
	base     context.Context
	stack    []context.Context
}

// NewTracker creates a tracker. A nil tracer uses the global provider.
func NewTracker(ctx context.Context, tracer trace.Tracer, workflow string) *Tracker {
	if tracer == nil {
		tracer = otel.Tracer(TracerName)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Tracker{tracer: tracer, workflow: workflow, base: ctx}
}

func (t *Tracker) current() context.Context {
	if len(t.stack) > 0 {
		return t.stack[len(t.stack)-1]
	}
	return t.base
}

// Activate opens a span for a step activation. The returned func closes it.
func (t *Tracker) Activate(stepID int, stepType string) func(error) {
	ctx, span := t.tracer.Start(t.current(), "step."+stepType, trace.WithAttributes(
		attribute.String(WorkflowKey, t.workflow),
		attribute.Int(StepIDKey, stepID),
		attribute.String(StepTypeKey, stepType),
	))
	t.stack = append(t.stack, ctx)
	start := time.Now()

	return func(err error) {
		stepDuration.WithLabelValues(stepType).Observe(time.Since(start).Seconds())
		status := "ok"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
		}
		stepActivations.WithLabelValues(stepType, status).Inc()
		span.End()
		if n := len(t.stack); n > 0 {
			t.stack = t.stack[:n-1]
		}
	}
}

// Completed records that a step produced its outputs.
func (t *Tracker) Completed(stepID int, stepType string) {
	stepCompletions.WithLabelValues(stepType).Inc()
	trace.SpanFromContext(t.current()).AddEvent(CompletedEvt, trace.WithAttributes(
		attribute.Int(StepIDKey, stepID),
		attribute.String(StepTypeKey, stepType),
	))
}

// Warned records a data problem surfaced to the user.
func (t *Tracker) Warned(stepID int, stepType, message string) {
	stepWarnings.WithLabelValues(stepType).Inc()
	trace.SpanFromContext(t.current()).AddEvent(WarningEvt, trace.WithAttributes(
		attribute.Int(StepIDKey, stepID),
		attribute.String("message", message),
	))
}

// Reconciled records one applied snapshot edit.
func (t *Tracker) Reconciled(field string) {
	reconciliations.WithLabelValues(field).Inc()
}

// SessionOpened and SessionClosed track the number of live sessions.
func SessionOpened() { activeSessions.Inc() }

func SessionClosed() { activeSessions.Dec() }

// Handler serves the registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
