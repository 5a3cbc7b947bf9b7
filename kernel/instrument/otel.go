// Package instrument exposes the session's measurements to in-process
// metric pipelines: OpenTelemetry instruments read through a manual reader
// (optionally echoed to stdout) and a Prometheus collector over the live
// snapshot. Nothing here leaves the process.
package instrument

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/nmxmxh/perfscope/kernel/gpu"
	"github.com/nmxmxh/perfscope/kernel/quality"
)

// MetricsConfig configures the OpenTelemetry pipeline.
type MetricsConfig struct {
	ServiceName string
	// StdoutInterval, when positive, exports to Stdout on that period.
	StdoutInterval time.Duration
	Stdout         io.Writer
	Attributes     map[string]string
}

// DefaultMetricsConfig keeps everything in memory.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{ServiceName: "perfscope"}
}

// Metrics holds the session's OpenTelemetry instruments.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	reader   *sdkmetric.ManualReader
	meter    metric.Meter

	fpsSamples      metric.Int64Histogram
	evaluations     metric.Int64Counter
	tierTransitions metric.Int64Counter
	gpuScore        metric.Float64Histogram
	gpuUsage        metric.Float64Histogram
	cpuUsage        metric.Float64Histogram
	longTasks       metric.Int64Counter
}

// NewMetrics builds the meter provider and registers the instruments.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultMetricsConfig().ServiceName
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	for k, v := range cfg.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes("", attrs...))
	if err != nil {
		// schema URL conflicts only; fall back to the bare attributes
		res = resource.NewWithAttributes("", attrs...)
	}

	m := &Metrics{reader: sdkmetric.NewManualReader()}
	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(m.reader),
	}
	if cfg.StdoutInterval > 0 {
		var expOpts []stdoutmetric.Option
		if cfg.Stdout != nil {
			expOpts = append(expOpts, stdoutmetric.WithWriter(cfg.Stdout))
		}
		exp, err := stdoutmetric.New(expOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(cfg.StdoutInterval))))
	}
	m.provider = sdkmetric.NewMeterProvider(opts...)
	m.meter = m.provider.Meter("github.com/nmxmxh/perfscope")

	if err := m.registerInstruments(); err != nil {
		_ = m.provider.Shutdown(context.Background())
		return nil, err
	}
	return m, nil
}

func (m *Metrics) registerInstruments() error {
	var err error

	m.fpsSamples, err = m.meter.Int64Histogram(
		"perfscope.fps",
		metric.WithDescription("Per-second frame rate samples"),
		metric.WithUnit("{frame}/s"),
		metric.WithExplicitBucketBoundaries(10, 20, 25, 30, 35, 40, 45, 50, 55, 60, 90, 120),
	)
	if err != nil {
		return fmt.Errorf("failed to create fps histogram: %w", err)
	}

	m.evaluations, err = m.meter.Int64Counter(
		"perfscope.quality.evaluations",
		metric.WithDescription("Quality tier evaluations by resulting tier"),
	)
	if err != nil {
		return fmt.Errorf("failed to create evaluation counter: %w", err)
	}

	m.tierTransitions, err = m.meter.Int64Counter(
		"perfscope.quality.transitions",
		metric.WithDescription("Quality tier changes"),
	)
	if err != nil {
		return fmt.Errorf("failed to create transition counter: %w", err)
	}

	m.gpuScore, err = m.meter.Float64Histogram(
		"perfscope.gpu.score",
		metric.WithDescription("GPU benchmark throughput"),
		metric.WithUnit("{frame}/s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create gpu score histogram: %w", err)
	}

	m.gpuUsage, err = m.meter.Float64Histogram(
		"perfscope.gpu.usage",
		metric.WithDescription("Estimated GPU usage"),
		metric.WithUnit("%"),
	)
	if err != nil {
		return fmt.Errorf("failed to create gpu usage histogram: %w", err)
	}

	m.cpuUsage, err = m.meter.Float64Histogram(
		"perfscope.cpu.usage",
		metric.WithDescription("Estimated CPU usage"),
		metric.WithUnit("%"),
	)
	if err != nil {
		return fmt.Errorf("failed to create cpu usage histogram: %w", err)
	}

	m.longTasks, err = m.meter.Int64Counter(
		"perfscope.long_tasks",
		metric.WithDescription("Main-thread long tasks observed"),
	)
	if err != nil {
		return fmt.Errorf("failed to create long task counter: %w", err)
	}
	return nil
}

// RecordFPS records one frame-rate sample.
func (m *Metrics) RecordFPS(ctx context.Context, fps int) {
	m.fpsSamples.Record(ctx, int64(fps))
}

// RecordEvaluation counts a tier evaluation and, when it changed, the
// transition.
func (m *Metrics) RecordEvaluation(ctx context.Context, ev quality.Evaluation) {
	m.evaluations.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", string(ev.Tier))))
	if ev.Changed {
		m.tierTransitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("from", string(ev.Previous)),
			attribute.String("to", string(ev.Tier)),
		))
	}
}

// RecordGPU records one monitoring cycle.
func (m *Metrics) RecordGPU(ctx context.Context, res gpu.Result) {
	m.gpuScore.Record(ctx, res.Score)
	m.gpuUsage.Record(ctx, res.Usage)
}

// RecordCPUUsage records a worker usage report.
func (m *Metrics) RecordCPUUsage(ctx context.Context, usage float64) {
	m.cpuUsage.Record(ctx, usage)
}

// RecordLongTasks adds a batch of long tasks.
func (m *Metrics) RecordLongTasks(ctx context.Context, n int) {
	if n > 0 {
		m.longTasks.Add(ctx, int64(n))
	}
}

// Collect reads the current aggregation from the manual reader.
func (m *Metrics) Collect(ctx context.Context) (metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	err := m.reader.Collect(ctx, &rm)
	return rm, err
}

// Shutdown flushes exporters and stops the provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}
