package monitor

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nmxmxh/perfscope/kernel/telemetry"
)

// Options selects which probes run. Window sizes apply when the Monitor is
// constructed; everything else can change through SetOptions.
type Options struct {
	FPS       bool `yaml:"fps"`
	WebVitals bool `yaml:"web_vitals"`
	LongTasks bool `yaml:"long_tasks"`
	Memory    bool `yaml:"memory"`
	Network   bool `yaml:"network"`
	Resources bool `yaml:"resources"`
	CPU       bool `yaml:"cpu"`
	GPU       bool `yaml:"gpu"`

	HistorySize int           `yaml:"history_size"`
	StatsWindow int           `yaml:"stats_window"`
	GPUInterval time.Duration `yaml:"gpu_interval"`

	// Browser overrides user-agent classification ("standard" or
	// "constrained"). Empty means detect.
	Browser string `yaml:"browser"`

	LogLevel string `yaml:"log_level"`
}

// DefaultOptions enables frame, perceptual, long-task, memory, CPU and GPU
// monitoring with the 60/10 windows.
func DefaultOptions() Options {
	return Options{
		FPS:         true,
		WebVitals:   true,
		LongTasks:   true,
		Memory:      true,
		CPU:         true,
		GPU:         true,
		HistorySize: telemetry.DefaultHistorySize,
		StatsWindow: telemetry.DefaultStatsWindow,
		GPUInterval: 2 * time.Second,
		LogLevel:    "info",
	}
}

// Validate rejects values no probe can run with.
func (o Options) Validate() error {
	if o.HistorySize < 0 {
		return fmt.Errorf("history_size must not be negative, got %d", o.HistorySize)
	}
	if o.StatsWindow < 0 {
		return fmt.Errorf("stats_window must not be negative, got %d", o.StatsWindow)
	}
	if o.HistorySize > 0 && o.StatsWindow > o.HistorySize {
		return fmt.Errorf("stats_window (%d) exceeds history_size (%d)", o.StatsWindow, o.HistorySize)
	}
	if o.GPUInterval < 0 {
		return fmt.Errorf("gpu_interval must not be negative, got %s", o.GPUInterval)
	}
	if o.Browser != "" {
		if _, ok := telemetry.ParseBrowserClass(o.Browser); !ok {
			return fmt.Errorf("unknown browser class %q", o.Browser)
		}
	}
	return nil
}

// ParseOptions decodes YAML over DefaultOptions, so omitted keys keep
// their defaults.
func ParseOptions(r io.Reader) (Options, error) {
	opts := DefaultOptions()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil && err != io.EOF {
		return Options{}, fmt.Errorf("failed to decode options: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// LoadOptions reads a YAML options file.
func LoadOptions(path string) (Options, error) {
	f, err := os.Open(path)
	if err != nil {
		return Options{}, fmt.Errorf("failed to open options file: %w", err)
	}
	defer f.Close()
	return ParseOptions(f)
}

func (o Options) telemetryConfig() telemetry.Config {
	cfg := telemetry.DefaultConfig()
	if o.HistorySize > 0 {
		cfg.HistorySize = o.HistorySize
	}
	if o.StatsWindow > 0 {
		cfg.StatsWindow = o.StatsWindow
	}
	return cfg
}
