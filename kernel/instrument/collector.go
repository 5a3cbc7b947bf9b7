package instrument

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nmxmxh/perfscope/kernel/quality"
	"github.com/nmxmxh/perfscope/kernel/telemetry"
)

const namespace = "perfscope"

// Collector exposes the live snapshot as Prometheus gauges. Unmeasured
// fields are omitted rather than reported as zero.
type Collector struct {
	snapshot func() telemetry.MetricsSnapshot
	tier     func() quality.Tier

	fps          *prometheus.Desc
	averageFPS   *prometheus.Desc
	minFPS       *prometheus.Desc
	maxFPS       *prometheus.Desc
	lagging      *prometheus.Desc
	webVital     *prometheus.Desc
	longTasks    *prometheus.Desc
	memoryUsed   *prometheus.Desc
	memoryPct    *prometheus.Desc
	cpuUsage     *prometheus.Desc
	gpuUsage     *prometheus.Desc
	gpuScore     *prometheus.Desc
	qualityTier  *prometheus.Desc
	thermalState *prometheus.Desc
}

// NewCollector reads snapshot and tier on every scrape.
func NewCollector(snapshot func() telemetry.MetricsSnapshot, tier func() quality.Tier) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		snapshot:     snapshot,
		tier:         tier,
		fps:          desc("fps", "Latest per-second frame rate"),
		averageFPS:   desc("average_fps", "Mean frame rate over the statistics window"),
		minFPS:       desc("min_fps", "Lowest frame rate in the statistics window"),
		maxFPS:       desc("max_fps", "Highest frame rate in the statistics window"),
		lagging:      desc("lagging", "1 when the latest sample is below the lag threshold"),
		webVital:     desc("web_vital", "Latest Web Vitals value", "name"),
		longTasks:    desc("long_tasks_total", "Main-thread long tasks observed"),
		memoryUsed:   desc("memory_used_bytes", "Heap bytes in use"),
		memoryPct:    desc("memory_used_percent", "Heap usage against its limit"),
		cpuUsage:     desc("cpu_usage_percent", "Estimated CPU usage"),
		gpuUsage:     desc("gpu_usage_percent", "Estimated GPU usage"),
		gpuScore:     desc("gpu_score", "Latest GPU benchmark throughput"),
		qualityTier:  desc("quality_tier", "1 for the active rendering tier", "tier"),
		thermalState: desc("thermal_state", "1 for the derived thermal state", "state"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.fps, c.averageFPS, c.minFPS, c.maxFPS, c.lagging, c.webVital,
		c.longTasks, c.memoryUsed, c.memoryPct, c.cpuUsage, c.gpuUsage,
		c.gpuScore, c.qualityTier, c.thermalState,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.snapshot()

	gaugeInt(ch, c.fps, s.FPS)
	gaugeInt(ch, c.averageFPS, s.AverageFPS)
	gaugeInt(ch, c.minFPS, s.MinFPS)
	gaugeInt(ch, c.maxFPS, s.MaxFPS)
	if s.FPS != nil {
		lag := 0.0
		if s.IsLagging {
			lag = 1
		}
		ch <- prometheus.MustNewConstMetric(c.lagging, prometheus.GaugeValue, lag)
	}

	for name, v := range map[string]*float64{
		"lcp": s.LCP, "inp": s.INP, "cls": s.CLS, "fcp": s.FCP, "ttfb": s.TTFB,
	} {
		gaugeFloat(ch, c.webVital, v, name)
	}

	ch <- prometheus.MustNewConstMetric(c.longTasks, prometheus.CounterValue, float64(s.LongTasks))
	gaugeFloat(ch, c.memoryUsed, s.MemoryUsed)
	gaugeFloat(ch, c.memoryPct, s.MemoryPercentage)
	gaugeFloat(ch, c.cpuUsage, s.CPUUsage)
	gaugeFloat(ch, c.gpuUsage, s.GPUUsage)
	gaugeFloat(ch, c.gpuScore, s.GPUScore)

	if c.tier != nil {
		active := c.tier()
		for _, t := range quality.Tiers() {
			v := 0.0
			if t == active {
				v = 1
			}
			ch <- prometheus.MustNewConstMetric(c.qualityTier, prometheus.GaugeValue, v, string(t))
		}
	}
	if s.ThermalState != telemetry.ThermalUnknown && s.ThermalState != "" {
		ch <- prometheus.MustNewConstMetric(c.thermalState, prometheus.GaugeValue, 1, string(s.ThermalState))
	}
}

func gaugeInt(ch chan<- prometheus.Metric, d *prometheus.Desc, v *int) {
	if v != nil {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(*v))
	}
}

func gaugeFloat(ch chan<- prometheus.Metric, d *prometheus.Desc, v *float64, labels ...string) {
	if v != nil {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, *v, labels...)
	}
}
