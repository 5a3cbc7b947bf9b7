package instrument

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/nmxmxh/perfscope/kernel/gpu"
	"github.com/nmxmxh/perfscope/kernel/quality"
	"github.com/nmxmxh/perfscope/kernel/telemetry"
)

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestMetrics_RecordsIntoManualReader(t *testing.T) {
	m, err := NewMetrics(DefaultMetricsConfig())
	require.NoError(t, err)
	defer func() { _ = m.Shutdown(context.Background()) }()

	ctx := context.Background()
	for _, v := range []int{58, 60, 30} {
		m.RecordFPS(ctx, v)
	}
	m.RecordEvaluation(ctx, quality.Evaluation{Tier: quality.TierFull, Previous: quality.TierMinimal, Changed: true})
	m.RecordEvaluation(ctx, quality.Evaluation{Tier: quality.TierFull, Previous: quality.TierFull})
	m.RecordGPU(ctx, gpu.Result{Score: 50, Usage: 55})
	m.RecordCPUUsage(ctx, 42)
	m.RecordLongTasks(ctx, 3)
	m.RecordLongTasks(ctx, 0)

	rm, err := m.Collect(ctx)
	require.NoError(t, err)

	fps, ok := findMetric(rm, "perfscope.fps")
	require.True(t, ok)
	hist := fps.Data.(metricdata.Histogram[int64])
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(3), hist.DataPoints[0].Count)
	assert.Equal(t, int64(148), hist.DataPoints[0].Sum)

	evals, ok := findMetric(rm, "perfscope.quality.evaluations")
	require.True(t, ok)
	sum := evals.Data.(metricdata.Sum[int64])
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)
	tier, _ := sum.DataPoints[0].Attributes.Value("tier")
	assert.Equal(t, "full", tier.AsString())

	transitions, ok := findMetric(rm, "perfscope.quality.transitions")
	require.True(t, ok)
	tsum := transitions.Data.(metricdata.Sum[int64])
	require.Len(t, tsum.DataPoints, 1)
	assert.Equal(t, int64(1), tsum.DataPoints[0].Value)
	from, _ := tsum.DataPoints[0].Attributes.Value("from")
	assert.Equal(t, "minimal", from.AsString())

	long, ok := findMetric(rm, "perfscope.long_tasks")
	require.True(t, ok)
	assert.Equal(t, int64(3), long.Data.(metricdata.Sum[int64]).DataPoints[0].Value)

	score, ok := findMetric(rm, "perfscope.gpu.score")
	require.True(t, ok)
	assert.Equal(t, 50.0, score.Data.(metricdata.Histogram[float64]).DataPoints[0].Sum)
}

func TestMetrics_StdoutExporterFlushesOnShutdown(t *testing.T) {
	var buf bytes.Buffer
	m, err := NewMetrics(MetricsConfig{
		ServiceName:    "perfscope-test",
		StdoutInterval: time.Hour,
		Stdout:         &buf,
	})
	require.NoError(t, err)

	m.RecordFPS(context.Background(), 60)
	require.NoError(t, m.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "perfscope.fps")
}

func gather(t *testing.T, c prometheus.Collector) map[string]*dto.MetricFamily {
	t.Helper()
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestCollector_OmitsUnmeasuredFields(t *testing.T) {
	snap := telemetry.NewSnapshot()
	c := NewCollector(func() telemetry.MetricsSnapshot { return snap }, nil)

	families := gather(t, c)
	assert.NotContains(t, families, "perfscope_fps")
	assert.NotContains(t, families, "perfscope_web_vital")
	assert.NotContains(t, families, "perfscope_thermal_state")
	assert.NotContains(t, families, "perfscope_quality_tier")
	require.Contains(t, families, "perfscope_long_tasks_total")
	assert.Equal(t, 0.0, families["perfscope_long_tasks_total"].Metric[0].GetCounter().GetValue())
}

func TestCollector_ReportsSnapshotAndTier(t *testing.T) {
	agg := telemetry.NewAggregator(telemetry.DefaultConfig(), nil)
	agg.Apply(telemetry.FrameSample{FPS: 30})
	agg.Apply(telemetry.VitalReport{Name: "LCP", Value: 2100})
	agg.Apply(telemetry.GPUSample{Score: 40, Usage: 80})

	c := NewCollector(agg.Snapshot, func() quality.Tier { return quality.TierReduced })
	families := gather(t, c)

	require.Contains(t, families, "perfscope_fps")
	assert.Equal(t, 30.0, families["perfscope_fps"].Metric[0].GetGauge().GetValue())
	assert.Equal(t, 1.0, families["perfscope_lagging"].Metric[0].GetGauge().GetValue())

	vitals := families["perfscope_web_vital"].Metric
	require.Len(t, vitals, 1)
	assert.Equal(t, "lcp", vitals[0].Label[0].GetValue())
	assert.Equal(t, 2100.0, vitals[0].GetGauge().GetValue())

	tiers := map[string]float64{}
	for _, m := range families["perfscope_quality_tier"].Metric {
		tiers[m.Label[0].GetValue()] = m.GetGauge().GetValue()
	}
	assert.Equal(t, map[string]float64{"full": 0, "reduced": 1, "minimal": 0}, tiers)

	thermal := families["perfscope_thermal_state"].Metric
	require.Len(t, thermal, 1)
	assert.Equal(t, "serious", thermal[0].Label[0].GetValue())
}
