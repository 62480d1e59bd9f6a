package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-restir/common"
	"github.com/Carmen-Shannon/oxy-restir/engine/light"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
	"github.com/Carmen-Shannon/oxy-restir/engine/scene"
	"github.com/Carmen-Shannon/oxy-restir/engine/settings"
)

func headlessStore() settings.Store {
	s := settings.Default()
	s.Resolution = settings.Resolution{Width: 32, Height: 32, RenderScale: 1}
	s.Lighting.PresampledTileSize = 32
	s.Lighting.PresampledTileCount = 2
	s.Profiler.ReportFrames = 0
	return settings.NewStore(s)
}

func headlessScene() scene.Scene {
	return scene.NewScene("headless",
		scene.WithLights(&light.Point{Name: "p", Color: [3]float32{1, 1, 1}, Intensity: 1, Radius: 0.1}),
	)
}

func TestHeadlessRunsFrameCount(t *testing.T) {
	backend := renderer.NewRecordingBackend()
	e, err := NewEngine(headlessStore(), headlessScene(), WithBackend(backend), WithFrameCount(3))
	require.NoError(t, err)

	var seen []uint64
	e.SetRenderCallback(func(frame uint64) { seen = append(seen, frame) })
	require.NoError(t, e.Run(context.Background()))

	assert.Equal(t, []uint64{1, 2, 3}, seen)
	assert.Equal(t, uint64(3), e.Orchestrator().Frame())
	assert.Equal(t, uint64(3), backend.Frames())
	assert.Nil(t, e.Window())
}

func TestHeadlessDeviceLostIsFatal(t *testing.T) {
	backend := renderer.NewRecordingBackend()
	e, err := NewEngine(headlessStore(), headlessScene(), WithBackend(backend), WithFrameCount(10))
	require.NoError(t, err)

	e.SetRenderCallback(func(frame uint64) {
		if frame == 2 {
			backend.SetDeviceLost(true)
		}
	})
	err = e.Run(context.Background())
	assert.ErrorIs(t, err, renderer.ErrDeviceLost)
	assert.Equal(t, uint64(2), e.Orchestrator().Frame())
}

func TestHeadlessQuitStopsLoop(t *testing.T) {
	e, err := NewEngine(headlessStore(), headlessScene())
	require.NoError(t, err)
	e.SetRenderCallback(func(frame uint64) {
		if frame == 4 {
			e.Quit()
		}
	})
	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, uint64(4), e.Orchestrator().Frame())
}

func TestHeadlessContextCancel(t *testing.T) {
	e, err := NewEngine(headlessStore(), headlessScene())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	e.SetRenderCallback(func(frame uint64) {
		if frame == 1 {
			cancel()
		}
	})

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("engine did not stop after cancel")
	}
}

func TestFrameLimit(t *testing.T) {
	e, err := NewEngine(headlessStore(), headlessScene(), WithFrameCount(3), WithRenderFrameLimit(50))
	require.NoError(t, err)
	start := time.Now()
	require.NoError(t, e.Run(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestHotkeys(t *testing.T) {
	store := headlessStore()
	ei, err := NewEngine(store, headlessScene(), WithFrameCount(1))
	require.NoError(t, err)
	e := ei.(*engine)

	e.handleKey(common.KeyD)
	assert.Equal(t, settings.DenoiserOff, store.Snapshot().Denoiser)
	e.handleKey(common.KeyD)
	assert.Equal(t, settings.DenoiserReLAX, store.Snapshot().Denoiser)

	e.handleKey(common.KeyF)
	snap := store.Snapshot()
	assert.Equal(t, settings.ResamplingFused, snap.Lighting.DirectResampling)
	assert.Equal(t, settings.ResamplingFused, snap.Lighting.GIResampling)
	e.handleKey(common.KeyF)
	assert.Equal(t, settings.ResamplingTemporalAndSpatial, store.Snapshot().Lighting.DirectResampling)

	before := store.Snapshot().Sequence
	e.handleKey(common.KeyF5)
	e.handleKey(common.KeyP)
	assert.Equal(t, before, store.Snapshot().Sequence)
	require.NoError(t, e.Run(context.Background()))
}
