package cpu

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// UsageProbe reads an OS-level CPU utilisation percentage.
type UsageProbe func() (float64, error)

// LocalOptions configures the in-process worker.
type LocalOptions struct {
	Interval     time.Duration // between cpu-usage reports
	BaselineRuns int           // sieve runs averaged into the baseline
	SieveSize    int
	Clock        clock.Clock
	// Usage, when set, supplies cpuUsage; otherwise it is derived from the
	// score drop against baseline.
	Usage UsageProbe
}

// DefaultLocalOptions reports once per second after a 3-run baseline.
func DefaultLocalOptions() LocalOptions {
	return LocalOptions{
		Interval:     time.Second,
		BaselineRuns: 3,
		SieveSize:    DefaultSieveSize,
	}
}

// LocalSpawner runs the worker protocol on a goroutine. It is the native
// counterpart of the browser Worker.
func LocalSpawner(opts LocalOptions) Spawner {
	d := DefaultLocalOptions()
	if opts.Interval <= 0 {
		opts.Interval = d.Interval
	}
	if opts.BaselineRuns <= 0 {
		opts.BaselineRuns = d.BaselineRuns
	}
	if opts.SieveSize <= 0 {
		opts.SieveSize = d.SieveSize
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return func(onMessage func(Message), onError func(error)) (Port, error) {
		w := &localWorker{
			opts:      opts,
			inbox:     make(chan Message, 4),
			done:      make(chan struct{}),
			onMessage: onMessage,
			onError:   onError,
		}
		go w.loop()
		return w, nil
	}
}

type localWorker struct {
	opts      LocalOptions
	inbox     chan Message
	done      chan struct{}
	closeOnce sync.Once
	onMessage func(Message)
	onError   func(error)

	scores   []float64
	baseline float64
}

func (w *localWorker) Post(m Message) error {
	select {
	case <-w.done:
		return ErrWorkerClosed
	default:
	}
	select {
	case w.inbox <- m:
		return nil
	case <-w.done:
		return ErrWorkerClosed
	}
}

func (w *localWorker) Terminate() {
	w.closeOnce.Do(func() { close(w.done) })
}

func (w *localWorker) send(m Message) {
	select {
	case <-w.done:
	default:
		w.onMessage(m)
	}
}

func (w *localWorker) loop() {
	defer func() {
		if r := recover(); r != nil && w.onError != nil {
			w.onError(&WorkerError{Message: "worker panicked"})
		}
	}()

	w.send(Message{Type: MsgWorkerReady})

	var ticker *clock.Ticker
	var tick <-chan time.Time
	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
	}
	defer stopTicker()

	for {
		select {
		case <-w.done:
			return
		case m := <-w.inbox:
			switch m.Type {
			case MsgStart:
				if ticker == nil {
					ticker = w.opts.Clock.Ticker(w.opts.Interval)
					tick = ticker.C
				}
			case MsgStop:
				stopTicker()
			}
		case <-tick:
			w.measure()
		}
	}
}

func (w *localWorker) measure() {
	score := measureCompute(w.opts.Clock, w.opts.SieveSize)

	if len(w.scores) < w.opts.BaselineRuns {
		w.scores = append(w.scores, score)
		if len(w.scores) < w.opts.BaselineRuns {
			return
		}
		sum := 0.0
		for _, s := range w.scores {
			sum += s
		}
		w.baseline = sum / float64(len(w.scores))
		baseline := w.baseline
		w.send(Message{Type: MsgBaselineEstablished, Baseline: &baseline})
		return
	}

	usage := usageFromScore(score, w.baseline)
	if w.opts.Usage != nil {
		if v, err := w.opts.Usage(); err == nil {
			usage = v
		}
	}
	baseline := w.baseline
	w.send(Message{Type: MsgCPUUsage, CPUUsage: &usage, Score: &score, Baseline: &baseline})
}
