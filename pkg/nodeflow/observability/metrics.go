package observability

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records nodeflow metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records one node execution and whether it faulted.
	RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error)

	// RecordSessionRun records the end of a workflow session.
	RecordSessionRun(ctx context.Context, success bool, duration time.Duration)

	// RecordSnapshot records the encoded size of a persisted node snapshot.
	RecordSnapshot(ctx context.Context, nodeID string, sizeBytes int64)
}

type otelMetrics struct {
	nodeExecutions metric.Int64Counter
	nodeLatency    metric.Float64Histogram
	nodeFaults     metric.Int64Counter
	sessionRuns    metric.Int64Counter
	sessionLatency metric.Float64Histogram
	snapshotSize   metric.Int64Histogram
}

func newOtelMetrics(meter metric.Meter) (*otelMetrics, error) {
	var m otelMetrics
	var errs []error
	var err error

	m.nodeExecutions, err = meter.Int64Counter("nodeflow.node.executions",
		metric.WithDescription("Number of node executions"),
	)
	errs = append(errs, err)

	m.nodeLatency, err = meter.Float64Histogram("nodeflow.node.latency_ms",
		metric.WithDescription("Node execution latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs = append(errs, err)

	m.nodeFaults, err = meter.Int64Counter("nodeflow.node.faults",
		metric.WithDescription("Number of node executions that ended in a fault"),
	)
	errs = append(errs, err)

	m.sessionRuns, err = meter.Int64Counter("nodeflow.session.runs",
		metric.WithDescription("Number of workflow sessions"),
	)
	errs = append(errs, err)

	m.sessionLatency, err = meter.Float64Histogram("nodeflow.session.latency_ms",
		metric.WithDescription("Workflow session latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs = append(errs, err)

	m.snapshotSize, err = meter.Int64Histogram("nodeflow.snapshot.size_bytes",
		metric.WithDescription("Encoded node snapshot size in bytes"),
		metric.WithUnit("By"),
	)
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &m, nil
}

// NewMetricsRecorder returns a MetricsRecorder backed by the global OTel
// meter provider. Configure the provider first:
//
//	otel.SetMeterProvider(yourProvider)
//
// If instrument creation fails, a no-op recorder is returned.
func NewMetricsRecorder() MetricsRecorder {
	m, err := newOtelMetrics(otel.Meter("nodeflow"))
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("node_id", nodeID))
	m.nodeExecutions.Add(ctx, 1, attrs)
	m.nodeLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err != nil {
		m.nodeFaults.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordSessionRun(ctx context.Context, success bool, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	m.sessionRuns.Add(ctx, 1, attrs)
	m.sessionLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
}

func (m *otelMetrics) RecordSnapshot(ctx context.Context, nodeID string, sizeBytes int64) {
	m.snapshotSize.Record(ctx, sizeBytes, metric.WithAttributes(attribute.String("node_id", nodeID)))
}
