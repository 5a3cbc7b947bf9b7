package cpu

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/perfscope/kernel/telemetry"
)

type fakePort struct {
	mu         sync.Mutex
	posted     []MessageType
	terminated int
	onMessage  func(Message)
	onError    func(error)
}

func (p *fakePort) Post(m Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.terminated > 0 {
		return ErrWorkerClosed
	}
	p.posted = append(p.posted, m.Type)
	return nil
}

func (p *fakePort) Terminate() {
	p.mu.Lock()
	p.terminated++
	p.mu.Unlock()
}

func (p *fakePort) count(t MessageType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, m := range p.posted {
		if m == t {
			n++
		}
	}
	return n
}

type fakeSpawner struct {
	ports  []*fakePort
	spawns int
	err    error
}

func (f *fakeSpawner) spawn(onMessage func(Message), onError func(error)) (Port, error) {
	f.spawns++
	if f.err != nil {
		return nil, f.err
	}
	p := &fakePort{onMessage: onMessage, onError: onError}
	f.ports = append(f.ports, p)
	return p, nil
}

func TestSession_WorkerReadyPostsOneStart(t *testing.T) {
	agg := telemetry.NewAggregator(telemetry.DefaultConfig(), nil)
	spawner := &fakeSpawner{}
	s := NewSession(spawner.spawn, agg, nil, nil)

	require.True(t, s.Start())
	require.True(t, s.Start())
	require.Equal(t, 1, spawner.spawns)
	port := spawner.ports[0]

	port.onMessage(Message{Type: MsgWorkerReady})
	port.onMessage(Message{Type: MsgWorkerReady})
	assert.Equal(t, 1, port.count(MsgStart))
}

func TestSession_MessagesBecomeUpdates(t *testing.T) {
	agg := telemetry.NewAggregator(telemetry.DefaultConfig(), nil)
	spawner := &fakeSpawner{}
	s := NewSession(spawner.spawn, agg, nil, nil)
	require.True(t, s.Start())
	port := spawner.ports[0]

	port.onMessage(Message{Type: MsgBaselineEstablished, Baseline: telemetry.Float(1200)})
	port.onMessage(Message{Type: MsgCPUUsage, CPUUsage: telemetry.Float(62), Score: telemetry.Float(450)})
	port.onMessage(Message{Type: MsgError, Message: "sieve failed"})
	port.onMessage(Message{Type: "unknown"})
	port.onError(errors.New("script error"))

	snap := agg.Snapshot()
	require.NotNil(t, snap.CPUUsage)
	assert.Equal(t, 62.0, *snap.CPUUsage)
	assert.Equal(t, 450.0, *snap.CPUScore)
	assert.Equal(t, 1200.0, *snap.CPUBaseline)
	assert.Equal(t, telemetry.ThermalFair, snap.ThermalState)
}

func TestSession_StopPostsStopThenTerminatesOnce(t *testing.T) {
	agg := telemetry.NewAggregator(telemetry.DefaultConfig(), nil)
	spawner := &fakeSpawner{}
	s := NewSession(spawner.spawn, agg, nil, nil)
	require.True(t, s.Start())
	port := spawner.ports[0]

	s.Stop()
	s.Stop()
	assert.False(t, s.Running())
	assert.Equal(t, 1, port.count(MsgStop))
	assert.Equal(t, 1, port.terminated)

	// late messages from the old worker are dropped
	port.onMessage(Message{Type: MsgCPUUsage, CPUUsage: telemetry.Float(99)})
	assert.Nil(t, agg.Snapshot().CPUUsage)

	// restart gets a fresh worker and a fresh start handshake
	require.True(t, s.Start())
	require.Len(t, spawner.ports, 2)
	spawner.ports[1].onMessage(Message{Type: MsgWorkerReady})
	assert.Equal(t, 1, spawner.ports[1].count(MsgStart))
	s.Stop()
}

func TestSession_SpawnFailureLeavesFieldsUnset(t *testing.T) {
	agg := telemetry.NewAggregator(telemetry.DefaultConfig(), nil)
	s := NewSession((&fakeSpawner{err: errors.New("SecurityError")}).spawn, agg, nil, nil)
	assert.False(t, s.Start())
	assert.False(t, s.Running())
	s.Stop()

	panicky := NewSession(func(func(Message), func(error)) (Port, error) { panic("no Worker") }, agg, nil, nil)
	assert.NotPanics(t, func() { assert.False(t, panicky.Start()) })

	assert.False(t, NewSession(nil, agg, nil, nil).Start())
	assert.Nil(t, agg.Snapshot().CPUUsage)
}

func TestLocalWorker_ReportsBaselineAndUsage(t *testing.T) {
	agg := telemetry.NewAggregator(telemetry.DefaultConfig(), nil)
	spawn := LocalSpawner(LocalOptions{
		Interval:     2 * time.Millisecond,
		BaselineRuns: 2,
		SieveSize:    5000,
		Usage:        func() (float64, error) { return 40, nil },
	})
	s := NewSession(spawn, agg, nil, nil)
	require.True(t, s.Start())
	defer s.Stop()

	require.Eventually(t, func() bool {
		snap := agg.Snapshot()
		return snap.CPUBaseline != nil && snap.CPUUsage != nil
	}, 5*time.Second, 5*time.Millisecond)

	snap := agg.Snapshot()
	assert.Equal(t, 40.0, *snap.CPUUsage)
	assert.Greater(t, *snap.CPUBaseline, 0.0)
}

func TestLocalWorker_PostAfterTerminate(t *testing.T) {
	spawn := LocalSpawner(LocalOptions{Interval: time.Hour})
	port, err := spawn(func(Message) {}, nil)
	require.NoError(t, err)
	port.Terminate()
	port.Terminate()
	assert.ErrorIs(t, port.Post(Message{Type: MsgStart}), ErrWorkerClosed)
}

func TestSieveAndUsage(t *testing.T) {
	assert.Equal(t, 9592, sieve(100000))
	assert.Equal(t, 0, sieve(1))
	assert.Equal(t, 0.0, usageFromScore(10, 0))
	assert.Equal(t, 50.0, usageFromScore(50, 100))
	assert.Equal(t, 0.0, usageFromScore(150, 100))
}
