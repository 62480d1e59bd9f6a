package resource_set

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-restir/common"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
	"github.com/Carmen-Shannon/oxy-restir/engine/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var depthLayout = renderer.BindingLayout{
	{Slot: 0, Type: renderer.BindingUniform, Name: "constants"},
	{Slot: 1, Type: renderer.BindingStorageTexture, Format: renderer.FormatR32Float, Name: "currentDepth"},
	{Slot: 2, Type: renderer.BindingTexture, Format: renderer.FormatR32Float, Name: "previousDepth"},
}

func texture(t *testing.T, b renderer.Backend, label string) renderer.ResourceHandle {
	t.Helper()
	h, err := b.CreateResource(renderer.ResourceDesc{
		Label:  label,
		Kind:   renderer.ResourceKindTexture,
		Extent: common.Extent2D{Width: 4, Height: 4},
		Format: renderer.FormatR32Float,
		Usage:  renderer.UsageStorage | renderer.UsageSampled,
	})
	require.NoError(t, err)
	return h
}

func newDepthSet(t *testing.T, b renderer.Backend) (ResourceSet, renderer.ResourceHandle, renderer.ResourceHandle) {
	t.Helper()
	constants, err := b.CreateResource(renderer.ResourceDesc{Label: "constants", Size: 256, Usage: renderer.UsageUniform})
	require.NoError(t, err)
	a, bb := texture(t, b, "depth A"), texture(t, b, "depth B")
	s := NewResourceSet("GBuffer Depth", depthLayout,
		WithBinding(0, constants),
		WithPair(1, 2, a, bb),
	)
	return s, a, bb
}

func TestCreateBindingSetPrebakesBothOrders(t *testing.T) {
	b := renderer.NewRecordingBackend()
	s, a, bb := newDepthSet(t, b)

	_, err := s.BindingSet()
	assert.ErrorIs(t, err, ErrNotBuilt)

	require.NoError(t, s.CreateBindingSet(b, 0))
	assert.Equal(t, ConventionCurrentFirst, s.Convention())

	even, err := s.BindingSetFor(0)
	require.NoError(t, err)
	odd, err := s.BindingSetFor(1)
	require.NoError(t, err)
	assert.NotEqual(t, even, odd)

	assert.Contains(t, b.BindingSetBindings(even), renderer.Binding{Slot: 1, Resource: a})
	assert.Contains(t, b.BindingSetBindings(even), renderer.Binding{Slot: 2, Resource: bb})
	assert.Contains(t, b.BindingSetBindings(odd), renderer.Binding{Slot: 1, Resource: bb})
	assert.Contains(t, b.BindingSetBindings(odd), renderer.Binding{Slot: 2, Resource: a})

	b.ResetCalls()
	s.NextFrame()
	assert.Empty(t, b.Calls(), "a swap issues no backend work")
	current, err := s.BindingSet()
	require.NoError(t, err)
	assert.Equal(t, odd, current)
}

func TestSwapCorrectnessAcrossFrames(t *testing.T) {
	b := renderer.NewRecordingBackend()
	s, a, bb := newDepthSet(t, b)
	require.NoError(t, s.CreateBindingSet(b, 0))

	for frame := uint64(0); frame < 10; frame++ {
		require.NoError(t, s.Check(frame))
		current, previous := s.Current(0), s.Previous(0)
		assert.NotEqual(t, current, previous, "frame %d aliases", frame)
		assert.ElementsMatch(t, []renderer.ResourceHandle{a, bb}, []renderer.ResourceHandle{current, previous})

		s.NextFrame()
		assert.Equal(t, current, s.Previous(0), "current of frame %d must be previous of frame %d", frame, frame+1)
	}
	assert.Equal(t, uint64(10), s.Swaps())
}

func TestAliasedPairRejected(t *testing.T) {
	b := renderer.NewRecordingBackend()
	a := texture(t, b, "depth")
	s := NewResourceSet("Depth", depthLayout, WithPair(1, 2, a, a))
	assert.ErrorIs(t, s.CreateBindingSet(b, 0), ErrAliasedPair)
	assert.False(t, s.Built())
}

func TestCheckDetectsSkippedAndDoubleSwaps(t *testing.T) {
	b := renderer.NewRecordingBackend()
	s, _, _ := newDepthSet(t, b)
	require.NoError(t, s.CreateBindingSet(b, 5))
	assert.Equal(t, ParityOf(5), s.Parity())
	require.NoError(t, s.Check(5))

	assert.ErrorIs(t, s.Check(6), ErrParityTorn, "skipped swap")

	s.NextFrame()
	s.NextFrame()
	assert.ErrorIs(t, s.Check(6), ErrParityTorn, "double swap")
}

func TestRebuildResetsParityToFrame(t *testing.T) {
	b := renderer.NewRecordingBackend()
	s, _, _ := newDepthSet(t, b)
	require.NoError(t, s.CreateBindingSet(b, 0))
	s.NextFrame()
	s.NextFrame()
	s.NextFrame()

	require.NoError(t, s.CreateBindingSet(b, 7))
	assert.Equal(t, Parity(1), s.Parity())
	assert.Equal(t, uint64(0), s.Swaps())
	require.NoError(t, s.Check(7))
	assert.Equal(t, 2, b.Created("GBuffer Depth Even"))
}

func TestSingleAndPingPongConventions(t *testing.T) {
	b := renderer.NewRecordingBackend()
	out := texture(t, b, "gradients out")

	single := NewResourceSet("Composite", depthLayout[:2], WithBinding(1, out))
	assert.Equal(t, ConventionSingle, single.Convention())
	require.NoError(t, single.CreateBindingSet(b, 0))
	first, _ := single.BindingSet()
	single.NextFrame()
	second, _ := single.BindingSet()
	assert.Equal(t, first, second)
	assert.Equal(t, 0, b.Created("Composite Odd"))

	ping, pong := texture(t, b, "ping"), texture(t, b, "pong")
	filter := NewResourceSet("Filter Gradients", depthLayout, WithPair(1, 2, ping, pong), WithConvention(ConventionPingPong))
	require.NoError(t, filter.CreateBindingSet(b, 1))
	o0, _ := filter.BindingSetFor(0)
	o1, _ := filter.BindingSetFor(1)
	cur, _ := filter.BindingSet()
	assert.Equal(t, o0, cur, "ping-pong sets always start from order 0")
	assert.NotEqual(t, o0, o1)

	filter.Release(b)
	single.Release(b)
	assert.False(t, filter.Built())
}

func TestReservoirIndices(t *testing.T) {
	t.Run("temporal and spatial rotate through three slices", func(t *testing.T) {
		r := NewReservoirIndices(3)
		for range 6 {
			last := r.LastFrameOutput
			r.Update(settings.ResamplingTemporalAndSpatial)
			assert.Equal(t, last, r.TemporalInput)
			assert.NotEqual(t, last, r.InitialOutput)
			assert.NotEqual(t, last, r.TemporalOutput)
			assert.NotEqual(t, last, r.SpatialOutput)
			assert.Equal(t, r.TemporalOutput, r.SpatialInput)
			assert.Equal(t, r.SpatialOutput, r.ShadingInput)
			r.NextFrame()
			assert.Equal(t, r.ShadingInput, r.LastFrameOutput)
		}
	})

	t.Run("no resampling shades the initial samples", func(t *testing.T) {
		r := NewReservoirIndices(3)
		r.Update(settings.ResamplingNone)
		assert.Equal(t, r.InitialOutput, r.ShadingInput)
	})

	t.Run("spatial only reads the initial samples", func(t *testing.T) {
		r := NewReservoirIndices(2)
		r.Update(settings.ResamplingSpatial)
		assert.Equal(t, r.InitialOutput, r.SpatialInput)
		assert.Equal(t, r.SpatialOutput, r.ShadingInput)
		assert.NotEqual(t, r.SpatialInput, r.SpatialOutput)
	})

	t.Run("temporal only", func(t *testing.T) {
		r := NewReservoirIndices(2)
		r.Update(settings.ResamplingTemporal)
		assert.Equal(t, r.TemporalOutput, r.ShadingInput)
		assert.NotEqual(t, r.TemporalInput, r.TemporalOutput)
	})
}

func TestParity(t *testing.T) {
	assert.Equal(t, Parity(0), ParityOf(4))
	assert.Equal(t, Parity(1), ParityOf(7))
	assert.Equal(t, Parity(1), Parity(0).Flip())
	assert.Equal(t, "ping-pong", ConventionPingPong.String())
}

func TestReservoirIndicesFused(t *testing.T) {
	r := NewReservoirIndices(2)
	r.Update(settings.ResamplingFused)
	assert.Equal(t, r.LastFrameOutput, r.TemporalInput)
	assert.Equal(t, r.TemporalOutput, r.ShadingInput)
	r.NextFrame()
	assert.Equal(t, uint32(1), r.LastFrameOutput)
}
