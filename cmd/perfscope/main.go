// Command perfscope runs a monitoring session outside the browser: frames
// come from a simulated display, CPU load from gopsutil and the in-process
// benchmark worker. It prints the snapshot as it evolves and a report at
// the end.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/nmxmxh/perfscope/kernel/cpu"
	"github.com/nmxmxh/perfscope/kernel/gpu"
	"github.com/nmxmxh/perfscope/kernel/instrument"
	"github.com/nmxmxh/perfscope/kernel/monitor"
	"github.com/nmxmxh/perfscope/kernel/platform"
	"github.com/nmxmxh/perfscope/kernel/quality"
	"github.com/nmxmxh/perfscope/kernel/runtime"
	"github.com/nmxmxh/perfscope/kernel/telemetry"
	"github.com/nmxmxh/perfscope/kernel/utils"
)

func main() {
	configPath := flag.String("config", "", "YAML options file (defaults apply when empty)")
	duration := flag.Duration("duration", 10*time.Second, "Session length (0 runs until interrupted)")
	fps := flag.Float64("fps", 60, "Simulated display frame rate")
	degradeTo := flag.Float64("degrade-to", 0, "Frame rate to switch to after -degrade-after (0 disables)")
	degradeAfter := flag.Duration("degrade-after", 5*time.Second, "When to apply -degrade-to")
	printInterval := flag.Duration("print-interval", time.Second, "Snapshot print interval")
	format := flag.String("format", "text", "Output format: text or json")
	promText := flag.Bool("prometheus", false, "Print the final snapshot in Prometheus text format")
	otelInterval := flag.Duration("otel-stdout", 0, "Export OpenTelemetry metrics to stdout on this interval (0 disables)")
	logLevel := flag.String("log-level", "", "Log level override: debug, info, warn, error")
	flag.Parse()

	opts := monitor.DefaultOptions()
	if *configPath != "" {
		var err error
		opts, err = monitor.LoadOptions(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}
	if *logLevel != "" {
		opts.LogLevel = *logLevel
	}

	logger := utils.NewLogger(utils.LoggerConfig{
		Level:     utils.ParseLevel(opts.LogLevel),
		Component: "perfscope",
		Output:    os.Stderr,
		Colorize:  true,
	})
	utils.SetGlobalLogger(logger)

	if flag.Arg(0) == "hardware" {
		if err := writeJSON(os.Stdout, runtime.DetectHardware()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	if err := run(ctx, session{
		opts:          opts,
		fps:           *fps,
		degradeTo:     *degradeTo,
		degradeAfter:  *degradeAfter,
		printInterval: *printInterval,
		format:        *format,
		promText:      *promText,
		otelInterval:  *otelInterval,
		logger:        logger,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type session struct {
	opts          monitor.Options
	fps           float64
	degradeTo     float64
	degradeAfter  time.Duration
	printInterval time.Duration
	format        string
	promText      bool
	otelInterval  time.Duration
	logger        *utils.Logger
}

func run(ctx context.Context, s session) error {
	clk := clock.New()
	frames := platform.NewTickerFrames(clk, s.fps)
	host := platform.Default()
	host.Frames = frames

	metrics, err := instrument.NewMetrics(instrument.MetricsConfig{
		ServiceName:    "perfscope",
		StdoutInterval: s.otelInterval,
		Stdout:         os.Stdout,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metrics.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("Instrument shutdown failed", utils.Err(err))
		}
	}()

	m := monitor.New(monitor.Deps{
		Host:     host,
		Detector: runtime.Default(),
		Spawner:  cpu.DefaultSpawner(),
		Surfaces: gpu.DefaultSurface,
		Metrics:  metrics,
		Logger:   s.logger.Named("monitor"),
	}, s.opts)
	defer m.Close()

	cancelTier := m.Quality().Subscribe(func(ev quality.Evaluation) {
		if ev.Changed {
			s.logger.Info("Tier", utils.String("tier", string(ev.Tier)),
				utils.Int("max_animations", ev.Config.MaxConcurrentAnimations))
		}
	})
	defer cancelTier()

	if err := m.Start(); err != nil {
		return err
	}

	if s.degradeTo > 0 {
		t := clk.AfterFunc(s.degradeAfter, func() {
			s.logger.Info("Degrading display rate", utils.Float64("fps", s.degradeTo))
			frames.SetRate(s.degradeTo)
		})
		defer t.Stop()
	}

	interval := s.printInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := clk.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return s.finish(m)
		case <-ticker.C:
			if err := s.print(m.Snapshot()); err != nil {
				return err
			}
		}
	}
}

func (s session) print(snap telemetry.MetricsSnapshot) error {
	if s.format == "json" {
		return writeJSON(os.Stdout, snap)
	}
	fmt.Printf("fps=%s avg=%s lag=%t cpu=%s mem=%s thermal=%s\n",
		intOr(snap.FPS), intOr(snap.AverageFPS), snap.IsLagging,
		pctOr(snap.CPUUsage), pctOr(snap.MemoryPercentage), snap.ThermalState)
	return nil
}

func (s session) finish(m *monitor.Monitor) error {
	report := m.Report()
	if s.format == "json" {
		if err := writeJSON(os.Stdout, report); err != nil {
			return err
		}
	} else {
		fmt.Printf("\nScore %d (%s), tier %s\n", report.Score, report.Grade, m.Quality().Tier())
		for _, r := range report.Recommendations {
			fmt.Printf("  - %s\n", r)
		}
	}

	if s.promText {
		reg := prometheus.NewRegistry()
		if err := reg.Register(instrument.NewCollector(m.Snapshot, m.Quality().Tier)); err != nil {
			return err
		}
		families, err := reg.Gather()
		if err != nil {
			return err
		}
		for _, mf := range families {
			if _, err := expfmt.MetricFamilyToText(os.Stdout, mf); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func intOr(p *int) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *p)
}

func pctOr(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", *p)
}
