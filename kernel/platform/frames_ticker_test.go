package platform

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickerFrames_DeliversAtRate(t *testing.T) {
	mock := clock.NewMock()
	frames := NewTickerFrames(mock, 50) // 20ms period

	var mu sync.Mutex
	var got []float64
	done := make(chan struct{}, 1)
	_, err := frames.RequestFrame(func(ts float64) {
		mu.Lock()
		got = append(got, ts)
		mu.Unlock()
		done <- struct{}{}
	})
	require.NoError(t, err)
	assert.Equal(t, 1, frames.Pending())

	mock.Add(20 * time.Millisecond)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("frame callback not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.InDelta(t, 20.0, got[0], 0.001)
	assert.Equal(t, 0, frames.Pending())
}

func TestTickerFrames_Cancel(t *testing.T) {
	mock := clock.NewMock()
	frames := NewTickerFrames(mock, 60)

	fired := make(chan struct{}, 1)
	h, err := frames.RequestFrame(func(float64) { fired <- struct{}{} })
	require.NoError(t, err)

	frames.CancelFrame(h)
	frames.CancelFrame(h) // second cancel is a no-op
	mock.Add(time.Second)

	select {
	case <-fired:
		t.Fatal("cancelled frame fired")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Equal(t, 0, frames.Pending())
}
