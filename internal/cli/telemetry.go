package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// telemetry owns the OTel providers installed for one command.
type telemetry struct {
	reader   *sdkmetric.ManualReader
	shutdown []func(context.Context) error
}

// setupTelemetry installs a meter provider with an in-process reader when
// metrics is set, and a tracer provider exporting over OTLP/HTTP when
// endpoint is non-empty.
func setupTelemetry(ctx context.Context, metrics bool, endpoint string) (*telemetry, error) {
	t := &telemetry{}
	if metrics {
		t.reader = sdkmetric.NewManualReader()
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(t.reader))
		otel.SetMeterProvider(mp)
		t.shutdown = append(t.shutdown, mp.Shutdown)
	}
	if endpoint != "" {
		exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
		if err != nil {
			return nil, fmt.Errorf("creating OTLP exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
		otel.SetTracerProvider(tp)
		t.shutdown = append(t.shutdown, tp.Shutdown)
	}
	return t, nil
}

// Shutdown flushes and stops every provider.
func (t *telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range t.shutdown {
		errs = append(errs, fn(ctx))
	}
	return errors.Join(errs...)
}

// WriteMetrics prints one line per collected instrument: the total for
// counters, count and sum for histograms.
func (t *telemetry) WriteMetrics(ctx context.Context, w io.Writer) error {
	if t.reader == nil {
		return nil
	}
	var rm metricdata.ResourceMetrics
	if err := t.reader.Collect(ctx, &rm); err != nil {
		return fmt.Errorf("collecting metrics: %w", err)
	}

	var lines []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				var total int64
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
				lines = append(lines, fmt.Sprintf("%s %d", m.Name, total))
			case metricdata.Histogram[float64]:
				var count uint64
				var sum float64
				for _, dp := range data.DataPoints {
					count += dp.Count
					sum += dp.Sum
				}
				lines = append(lines, fmt.Sprintf("%s count=%d sum=%.1f", m.Name, count, sum))
			case metricdata.Histogram[int64]:
				var count uint64
				var sum int64
				for _, dp := range data.DataPoints {
					count += dp.Count
					sum += dp.Sum
				}
				lines = append(lines, fmt.Sprintf("%s count=%d sum=%d", m.Name, count, sum))
			}
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
