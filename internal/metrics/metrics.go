// Package metrics records interview counters through OpenTelemetry.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/spigell/screener"

// Recorder is safe for concurrent use. A nil *Recorder records nothing.
type Recorder struct {
	sessionsStarted    metric.Int64Counter
	sessionsFinished   metric.Int64Counter
	questionsGenerated metric.Int64Counter
	generationFailures metric.Int64Counter
	proctoringStrikes  metric.Int64Counter
	generationLatency  metric.Float64Histogram
}

// NewRecorder registers the instruments on provider. A nil provider yields a no-op recorder.
func NewRecorder(provider metric.MeterProvider) (*Recorder, error) {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter(meterName)

	var (
		r   Recorder
		err error
	)

	if r.sessionsStarted, err = meter.Int64Counter(
		"screener_sessions_started_total",
		metric.WithDescription("Interview sessions that reached ACTIVE"),
		metric.WithUnit("{session}"),
	); err != nil {
		return nil, fmt.Errorf("creating sessions started counter: %w", err)
	}

	if r.sessionsFinished, err = meter.Int64Counter(
		"screener_sessions_finished_total",
		metric.WithDescription("Interview sessions that reached a terminal status"),
		metric.WithUnit("{session}"),
	); err != nil {
		return nil, fmt.Errorf("creating sessions finished counter: %w", err)
	}

	if r.questionsGenerated, err = meter.Int64Counter(
		"screener_questions_generated_total",
		metric.WithDescription("Interviewer turns appended to transcripts"),
		metric.WithUnit("{turn}"),
	); err != nil {
		return nil, fmt.Errorf("creating questions counter: %w", err)
	}

	if r.generationFailures, err = meter.Int64Counter(
		"screener_generation_failures_total",
		metric.WithDescription("Failed generation attempts by failure kind"),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return nil, fmt.Errorf("creating failures counter: %w", err)
	}

	if r.proctoringStrikes, err = meter.Int64Counter(
		"screener_proctoring_strikes_total",
		metric.WithDescription("Counted proctoring events by kind"),
		metric.WithUnit("{event}"),
	); err != nil {
		return nil, fmt.Errorf("creating strikes counter: %w", err)
	}

	if r.generationLatency, err = meter.Float64Histogram(
		"screener_generation_duration_seconds",
		metric.WithDescription("Latency of generation calls by operation"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating latency histogram: %w", err)
	}

	return &r, nil
}

func (r *Recorder) SessionStarted(ctx context.Context) {
	if r == nil {
		return
	}
	r.sessionsStarted.Add(ctx, 1)
}

func (r *Recorder) SessionFinished(ctx context.Context, status string) {
	if r == nil {
		return
	}
	r.sessionsFinished.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (r *Recorder) QuestionGenerated(ctx context.Context) {
	if r == nil {
		return
	}
	r.questionsGenerated.Add(ctx, 1)
}

func (r *Recorder) GenerationFailed(ctx context.Context, operation, kind string) {
	if r == nil {
		return
	}
	r.generationFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("kind", kind),
	))
}

func (r *Recorder) ProctoringStrike(ctx context.Context, kind string) {
	if r == nil {
		return
	}
	r.proctoringStrikes.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (r *Recorder) ObserveGeneration(ctx context.Context, operation string, d time.Duration) {
	if r == nil {
		return
	}
	r.generationLatency.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("operation", operation)))
}
