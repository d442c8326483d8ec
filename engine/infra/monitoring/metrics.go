package monitoring

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics carries the engine's instruments. A nil *Metrics is valid and
// records nothing, so the orchestrator never branches on observability.
type Metrics struct {
	turns        metric.Int64Counter
	nodeDuration metric.Float64Histogram
	toolCalls    metric.Int64Counter
	generations  metric.Int64Counter
}

// NewMetrics registers the engine instruments on the meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	turns, err := meter.Int64Counter(
		"rounds_turns_total",
		metric.WithDescription("Completed turns by outcome and intent"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create turn counter: %w", err)
	}
	nodeDuration, err := meter.Float64Histogram(
		"rounds_node_duration_seconds",
		metric.WithDescription("Per-node execution duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create node duration histogram: %w", err)
	}
	toolCalls, err := meter.Int64Counter(
		"rounds_tool_invocations_total",
		metric.WithDescription("Tool gateway invocations by category and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool invocation counter: %w", err)
	}
	generations, err := meter.Int64Counter(
		"rounds_generation_calls_total",
		metric.WithDescription("Generation backend calls by purpose and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create generation counter: %w", err)
	}
	return &Metrics{
		turns:        turns,
		nodeDuration: nodeDuration,
		toolCalls:    toolCalls,
		generations:  generations,
	}, nil
}

// RecordTurn counts one completed turn.
func (m *Metrics) RecordTurn(ctx context.Context, outcome, intent string) {
	if m == nil {
		return
	}
	m.turns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("intent", intent),
	))
}

// RecordNode observes one node execution.
func (m *Metrics) RecordNode(ctx context.Context, node string, duration time.Duration) {
	if m == nil {
		return
	}
	m.nodeDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("node", node),
	))
}

// RecordToolCall counts one gateway invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, category, outcome string) {
	if m == nil {
		return
	}
	m.toolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("category", category),
		attribute.String("outcome", outcome),
	))
}

// RecordGeneration counts one backend call.
func (m *Metrics) RecordGeneration(ctx context.Context, purpose string, failed bool) {
	if m == nil {
		return
	}
	status := "ok"
	if failed {
		status = "error"
	}
	m.generations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("purpose", purpose),
		attribute.String("status", status),
	))
}
