package cpu

import (
	"sync"

	"github.com/nmxmxh/perfscope/kernel/telemetry"
	"github.com/nmxmxh/perfscope/kernel/utils"
)

// Session owns one worker for as long as CPU monitoring is enabled.
type Session struct {
	mu      sync.Mutex
	spawn   Spawner
	emit    telemetry.Emitter
	logger  *utils.Logger
	warn    *utils.WarnThrottle
	ownWarn bool // warn was created here and is closed on Stop
	port    Port
	started bool // start already posted for this port
	gen     uint64
}

// NewSession creates an idle session.
func NewSession(spawn Spawner, emit telemetry.Emitter, warn *utils.WarnThrottle, logger *utils.Logger) *Session {
	if logger == nil {
		logger = utils.DefaultLogger("cpu")
	}
	s := &Session{spawn: spawn, emit: emit, logger: logger, warn: warn}
	if warn == nil {
		s.warn = utils.NewWarnThrottle(logger, utils.DefaultThrottleConfig())
		s.ownWarn = true
	}
	return s
}

// Start spawns the worker. Failures are logged and leave the CPU fields
// unset; Start reports whether a worker is running afterwards.
func (s *Session) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port != nil {
		return true
	}
	if s.spawn == nil {
		s.warn.WarnOnce("cpu:unsupported", "CPU benchmark worker unavailable", utils.Err(ErrUnsupported))
		return false
	}

	s.gen++
	gen := s.gen
	port, err := s.spawnPort(gen)
	if err != nil || port == nil {
		s.warn.WarnOnce("cpu:spawn", "CPU benchmark worker failed to start", utils.Err(err))
		return false
	}
	s.port = port
	s.started = false
	s.logger.Debug("CPU worker spawned")
	return true
}

func (s *Session) spawnPort(gen uint64) (p Port, err error) {
	defer utils.RecoverError("cpu:spawn", &err)
	return s.spawn(
		func(m Message) { s.handle(gen, m) },
		func(err error) { s.fail(gen, err) },
	)
}

// Running reports whether a worker is attached.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port != nil
}

// Stop posts stop, terminates the worker and drops the handle. Safe to
// call repeatedly.
func (s *Session) Stop() {
	s.mu.Lock()
	port := s.port
	s.port = nil
	s.started = false
	s.gen++
	s.mu.Unlock()

	if s.ownWarn {
		s.warn.Close()
	}
	if port == nil {
		return
	}
	s.post(port, Message{Type: MsgStop})
	s.terminate(port)
}

func (s *Session) handle(gen uint64, m Message) {
	defer utils.RecoverWarn(s.logger, "cpu:message")

	s.mu.Lock()
	if gen != s.gen || s.port == nil {
		s.mu.Unlock()
		return
	}
	port := s.port
	needStart := m.Type == MsgWorkerReady && !s.started
	if needStart {
		s.started = true
	}
	s.mu.Unlock()

	switch m.Type {
	case MsgWorkerReady:
		if needStart {
			s.post(port, Message{Type: MsgStart})
		}
	case MsgCPUUsage:
		s.emit.Apply(telemetry.CPUSample{Usage: m.CPUUsage, Score: m.Score, Baseline: m.Baseline})
	case MsgBaselineEstablished:
		if m.Baseline != nil {
			s.emit.Apply(telemetry.CPUBaselineSet{Baseline: *m.Baseline})
		}
	case MsgError:
		s.warn.Warn("cpu:worker-error", "CPU worker reported an error", utils.Err(&WorkerError{Message: m.Message}))
	default:
		s.logger.Debug("Ignoring unknown worker message", utils.String("type", string(m.Type)))
	}
}

func (s *Session) fail(gen uint64, err error) {
	s.mu.Lock()
	current := gen == s.gen
	s.mu.Unlock()
	if current {
		s.warn.Warn("cpu:worker-failure", "CPU worker failed", utils.Err(err))
	}
}

func (s *Session) post(port Port, m Message) {
	defer utils.RecoverWarn(s.logger, "cpu:post")
	if err := port.Post(m); err != nil {
		s.warn.Warn("cpu:post", "Posting to CPU worker failed",
			utils.String("type", string(m.Type)), utils.Err(err))
	}
}

func (s *Session) terminate(port Port) {
	defer utils.RecoverWarn(s.logger, "cpu:terminate")
	port.Terminate()
}
