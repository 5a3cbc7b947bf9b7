package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/perfscope/kernel/platform/platformtest"
	"github.com/nmxmxh/perfscope/kernel/telemetry"
)

func fps(v int) *int { return &v }

func TestEvaluate_StandardThresholds(t *testing.T) {
	cases := []struct {
		avg  *int
		want Tier
	}{
		{nil, TierMinimal},
		{fps(60), TierFull},
		{fps(55), TierFull},
		{fps(54), TierReduced},
		{fps(40), TierReduced},
		{fps(39), TierReduced},
		{fps(25), TierReduced},
		{fps(24), TierMinimal},
		{fps(0), TierMinimal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Evaluate(tc.avg, telemetry.BrowserStandard), "avg=%v", tc.avg)
	}
}

func TestEvaluate_ConstrainedBrowsersCappedAtReduced(t *testing.T) {
	cases := []struct {
		avg  int
		want Tier
	}{
		{120, TierReduced},
		{50, TierReduced},
		{35, TierReduced},
		{20, TierReduced},
		{19, TierMinimal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Evaluate(fps(tc.avg), telemetry.BrowserConstrained), "avg=%d", tc.avg)
	}
}

func TestEvaluate_IsPure(t *testing.T) {
	for avg := 0; avg <= 144; avg++ {
		for _, class := range []telemetry.BrowserClass{telemetry.BrowserStandard, telemetry.BrowserConstrained} {
			a := Evaluate(fps(avg), class)
			b := Evaluate(fps(avg), class)
			require.Equal(t, a, b)
			assert.Equal(t, ConfigFor(a), ConfigFor(b))
		}
	}
}

func TestConfigTableIsTotal(t *testing.T) {
	for _, tier := range Tiers() {
		cfg := ConfigFor(tier)
		assert.Equal(t, tier, cfg.Tier)
		assert.Positive(t, cfg.MaxConcurrentAnimations)
	}
	assert.Equal(t, ConfigFor(TierMinimal), ConfigFor("bogus"))

	full, reduced, minimal := ConfigFor(TierFull), ConfigFor(TierReduced), ConfigFor(TierMinimal)
	assert.False(t, full.ShouldReduceAnimations)
	assert.True(t, full.AllowComplexBlur)
	assert.Greater(t, full.MaxGPULayers, reduced.MaxGPULayers)
	assert.Greater(t, reduced.MaxGPULayers, minimal.MaxGPULayers)
	assert.False(t, minimal.AllowInfiniteAnimations)
}

func TestCanAnimate(t *testing.T) {
	assert.True(t, CanAnimate(TierMinimal, fps(10), PriorityHigh))
	assert.True(t, CanAnimate(TierMinimal, fps(10), PriorityMedium))
	assert.False(t, CanAnimate(TierMinimal, fps(60), PriorityLow))
	assert.False(t, CanAnimate(TierReduced, fps(34), PriorityLow))
	assert.True(t, CanAnimate(TierReduced, fps(35), PriorityLow))
	assert.True(t, CanAnimate(TierFull, fps(20), PriorityLow))

	assert.Equal(t, PriorityLow, ParsePriority("low"))
	assert.Equal(t, PriorityMedium, ParsePriority("urgent"))
}

func TestController_FollowsFrameSamples(t *testing.T) {
	agg := telemetry.NewAggregator(telemetry.DefaultConfig(), nil)
	c := NewController(telemetry.BrowserStandard, nil)
	detach := c.Attach(agg)
	defer detach()

	var events []Evaluation
	c.Subscribe(func(ev Evaluation) { events = append(events, ev) })

	assert.Equal(t, TierMinimal, c.Tier())
	assert.False(t, c.CanAnimate(PriorityLow))

	agg.Apply(telemetry.FrameSample{FPS: 60})
	assert.Equal(t, TierFull, c.Tier())
	assert.True(t, c.Config().AllowHeavyTransforms)

	// non-frame updates do not re-evaluate
	agg.Apply(telemetry.VitalReport{Name: "lcp", Value: 1200})
	require.Len(t, events, 1)
	assert.True(t, events[0].Changed)
	assert.Equal(t, TierMinimal, events[0].Previous)

	agg.Apply(telemetry.FrameSample{FPS: 60})
	require.Len(t, events, 2)
	assert.False(t, events[1].Changed)

	agg.Apply(telemetry.Clear{Target: telemetry.CategoryFrame})
	assert.Equal(t, TierMinimal, c.Tier())

	evaluations, transitions := c.Stats()
	assert.Equal(t, 3, evaluations)
	assert.Equal(t, 2, transitions)
}

func TestController_ScenariosFromFrameLoop(t *testing.T) {
	run := func(frames int) (*telemetry.Aggregator, *Controller) {
		agg := telemetry.NewAggregator(telemetry.DefaultConfig(), nil)
		c := NewController(telemetry.BrowserStandard, nil)
		c.Attach(agg)
		fake := platformtest.NewFrames()
		loop := telemetry.NewFrameLoop(fake, func(fps int) { agg.Apply(telemetry.FrameSample{FPS: fps}) }, nil)
		require.NoError(t, loop.Start())
		fake.FireEvenly(0, 1000, frames)
		loop.Stop()
		return agg, c
	}

	agg, c := run(60)
	snap := agg.Snapshot()
	assert.Equal(t, 60, *snap.FPS)
	assert.Equal(t, 60, *snap.AverageFPS)
	assert.False(t, snap.IsLagging)
	assert.Equal(t, TierFull, c.Tier())

	agg, c = run(20)
	snap = agg.Snapshot()
	assert.Equal(t, 20, *snap.FPS)
	assert.True(t, snap.IsLagging)
	assert.Equal(t, TierMinimal, c.Tier())
}

func TestController_ListenerPanicIsContained(t *testing.T) {
	c := NewController(telemetry.BrowserConstrained, nil)
	c.Subscribe(func(Evaluation) { panic("consumer bug") })
	snap := telemetry.NewSnapshot()
	snap.AverageFPS = fps(58)
	assert.NotPanics(t, func() {
		ev := c.Observe(snap)
		assert.Equal(t, TierReduced, ev.Tier)
	})

	c.SetBrowserClass(telemetry.BrowserStandard)
	assert.Equal(t, TierFull, c.Observe(snap).Tier)
}
