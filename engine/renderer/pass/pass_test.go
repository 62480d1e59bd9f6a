package pass

import (
	"encoding/binary"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-restir/common"
	"github.com/Carmen-Shannon/oxy-restir/engine/profiler"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/cache"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/resource_set"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/shader"
)

const kernel = `//@oxy:include constants
//@oxy:bindings
@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {}
`

var testLayout = renderer.BindingLayout{
	{Slot: 0, Type: renderer.BindingUniform, Name: "constants"},
	{Slot: 1, Type: renderer.BindingStorageReadWrite, Name: "reservoirs"},
	{Slot: 2, Type: renderer.BindingStorageRead, Name: "previous_reservoirs"},
}

type fixture struct {
	backend   *renderer.RecordingBackend
	library   pipeline.Library
	constants ConstantBuffer
	ledger    profiler.Ledger
	seq       Sequencer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := renderer.NewRecordingBackend()
	shaders := shader.NewFactory(fstest.MapFS{
		"temporal.wgsl": {Data: []byte(kernel)},
		"spatial.wgsl":  {Data: []byte(kernel)},
	}, shader.WithStruct("constants", GPUPassConstantsSource))
	constants, err := NewConstantBuffer(backend, 4)
	require.NoError(t, err)
	ledger, err := profiler.NewLedger(backend)
	require.NoError(t, err)
	return &fixture{
		backend:   backend,
		library:   pipeline.NewLibrary(backend, shaders, cache.NewCache()),
		constants: constants,
		ledger:    ledger,
		seq:       NewSequencer(backend, ledger),
	}
}

func (f *fixture) executor(t *testing.T, key, path string, options ...ExecutorBuilderOption) Executor {
	t.Helper()
	e, err := NewExecutor(pipeline.NewDescriptor(key, path, pipeline.WithLayout(testLayout...)), f.constants, options...)
	require.NoError(t, err)
	require.NoError(t, e.Prepare(f.library, nil))
	return e
}

func (f *fixture) set(t *testing.T, e Executor) resource_set.ResourceSet {
	t.Helper()
	a, err := f.backend.CreateResource(renderer.ResourceDesc{Label: "ReservoirA", Kind: renderer.ResourceKindBuffer, Size: 64})
	require.NoError(t, err)
	b, err := f.backend.CreateResource(renderer.ResourceDesc{Label: "ReservoirB", Kind: renderer.ResourceKindBuffer, Size: 64})
	require.NoError(t, err)
	cb, ok := e.ConstantsBinding()
	require.True(t, ok)
	set := resource_set.NewResourceSet(e.Name(), testLayout,
		resource_set.WithBindingRange(cb.Slot, cb.Resource, cb.Offset, cb.Size),
		resource_set.WithPair(1, 2, a, b),
	)
	require.NoError(t, set.CreateBindingSet(f.backend, 0))
	return set
}

func TestPassConstantsLayout(t *testing.T) {
	c := GPUPassConstants{ViewSize: [2]uint32{1920, 1080}, RayCountIndex: -1, Params: [4]float32{1, 0, 0, 0}}
	buf := c.Marshal()
	require.Len(t, buf, c.Size())
	assert.Equal(t, uint32(1920), binary.LittleEndian.Uint32(buf[0:]))
	assert.Equal(t, uint32(1080), binary.LittleEndian.Uint32(buf[4:]))
	assert.Equal(t, uint32(0xffffffff), binary.LittleEndian.Uint32(buf[12:]))
	assert.Equal(t, uint32(0x3f800000), binary.LittleEndian.Uint32(buf[48:]))
	assert.Contains(t, GPUPassConstantsSource, "struct PassConstants")
}

func TestConstantBufferRegions(t *testing.T) {
	backend := renderer.NewRecordingBackend()
	cb, err := NewConstantBuffer(backend, 2)
	require.NoError(t, err)

	r0, err := cb.Region("a")
	require.NoError(t, err)
	r1, err := cb.Region("b")
	require.NoError(t, err)
	again, err := cb.Region("a")
	require.NoError(t, err)
	assert.Equal(t, r0, again)
	assert.Equal(t, uint64(RegionSize), r1.Offset())

	_, err = cb.Region("c")
	assert.ErrorIs(t, err, ErrConstantsExhausted)

	bd := cb.Binding(3, r1)
	assert.Equal(t, renderer.Binding{Slot: 3, Resource: cb.Handle(), Offset: RegionSize, Size: RegionSize}, bd)
}

func TestExecutorWritesConstantsAndDispatches(t *testing.T) {
	f := newFixture(t)
	first := f.executor(t, "Filler", "spatial.wgsl")
	e := f.executor(t, "Temporal Resampling", "temporal.wgsl", WithSection(profiler.SectionTemporalResampling), WithRayCount())
	assert.Equal(t, uint32(1), e.Region().Index)
	assert.Equal(t, uint32(0), first.Region().Index)
	set := f.set(t, e)

	require.NoError(t, f.backend.BeginFrame())
	err := e.Execute(f.seq, set, GPUPassConstants{FrameIndex: 7}, pipeline.DispatchInput{Extent: common.Extent2D{Width: 1281, Height: 720}})
	require.NoError(t, err)
	require.NoError(t, f.backend.EndFrame())

	data, err := f.backend.ReadResource(f.constants.Handle())
	require.NoError(t, err)
	region := data[e.Region().Offset():]
	assert.Equal(t, uint32(1281), binary.LittleEndian.Uint32(region[0:]))
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(region[8:]))
	assert.Equal(t, uint32(profiler.SectionTemporalResampling.RayCountIndex()), binary.LittleEndian.Uint32(region[12:]))

	var ops []string
	for _, c := range f.backend.Calls() {
		switch c.Op {
		case "BeginMarker", "EndMarker", "Dispatch":
			ops = append(ops, c.String())
		}
	}
	assert.Equal(t, []string{"BeginMarker(Temporal Resampling)", "Dispatch(Temporal Resampling 161x90x1)", "EndMarker()"}, ops)
	assert.Equal(t, 1, f.seq.Dispatches())
}

func TestExecutorUntaggedRayCount(t *testing.T) {
	f := newFixture(t)
	e := f.executor(t, "Spatial Resampling", "spatial.wgsl", WithSection(profiler.SectionSpatialResampling))
	set := f.set(t, e)

	require.NoError(t, f.backend.BeginFrame())
	require.NoError(t, e.Execute(f.seq, set, GPUPassConstants{RayCountIndex: 5}, pipeline.DispatchInput{Extent: common.Extent2D{Width: 8, Height: 8}}))
	data, err := f.backend.ReadResource(f.constants.Handle())
	require.NoError(t, err)
	assert.Equal(t, uint32(0xffffffff), binary.LittleEndian.Uint32(data[e.Region().Offset()+12:]))
}

func TestExecutorNotPrepared(t *testing.T) {
	f := newFixture(t)
	e, err := NewExecutor(pipeline.NewDescriptor("Unprepared", "temporal.wgsl", pipeline.WithLayout(testLayout...)), f.constants)
	require.NoError(t, err)
	err = e.Execute(f.seq, nil, GPUPassConstants{}, pipeline.DispatchInput{})
	assert.ErrorIs(t, err, ErrNotPrepared)
}

func TestSequencerBarrierOnSameBindingSet(t *testing.T) {
	f := newFixture(t)
	temporal := f.executor(t, "Temporal Resampling", "temporal.wgsl")
	spatial := f.executor(t, "Spatial Resampling", "spatial.wgsl")
	tSet := f.set(t, temporal)
	sSet := f.set(t, spatial)
	in := pipeline.DispatchInput{Extent: common.Extent2D{Width: 16, Height: 16}}

	require.NoError(t, f.backend.BeginFrame())
	require.NoError(t, temporal.Execute(f.seq, tSet, GPUPassConstants{}, in))
	require.NoError(t, spatial.Execute(f.seq, sSet, GPUPassConstants{}, in))
	assert.Zero(t, f.seq.Barriers())

	// the same set twice in a row needs its writes made visible
	require.NoError(t, spatial.Execute(f.seq, sSet, GPUPassConstants{}, in))
	assert.Equal(t, 1, f.seq.Barriers())

	var barrier renderer.Call
	for _, c := range f.backend.Calls() {
		if c.Op == "Barrier" {
			barrier = c
		}
	}
	assert.Equal(t, uint32(sSet.Current(0)), barrier.Handle)

	// an explicit barrier already separates the next dispatch
	f.seq.Barrier(sSet.Current(0))
	require.NoError(t, spatial.Execute(f.seq, sSet, GPUPassConstants{}, in))
	assert.Equal(t, 2, f.seq.Barriers())

	f.seq.Reset()
	assert.Zero(t, f.seq.Dispatches())
}

func TestSequencerSkipsEmptyGrid(t *testing.T) {
	f := newFixture(t)
	e := f.executor(t, "Temporal Resampling", "temporal.wgsl")
	set := f.set(t, e)
	require.NoError(t, f.backend.BeginFrame())
	require.NoError(t, e.Execute(f.seq, set, GPUPassConstants{}, pipeline.DispatchInput{}))
	assert.Empty(t, f.backend.Dispatches())
}

func TestSequencerUnbuiltSet(t *testing.T) {
	f := newFixture(t)
	e := f.executor(t, "Temporal Resampling", "temporal.wgsl")
	set := resource_set.NewResourceSet("Unbuilt", testLayout)
	require.NoError(t, f.backend.BeginFrame())
	err := e.Execute(f.seq, set, GPUPassConstants{}, pipeline.DispatchInput{Extent: common.Extent2D{Width: 8, Height: 8}})
	assert.ErrorIs(t, err, resource_set.ErrNotBuilt)
}

func TestExecuteOrderAlternatesPingPong(t *testing.T) {
	f := newFixture(t)
	e := f.executor(t, "Filter", "spatial.wgsl")
	a, err := f.backend.CreateResource(renderer.ResourceDesc{Label: "ScratchA", Kind: renderer.ResourceKindBuffer, Size: 64})
	require.NoError(t, err)
	b, err := f.backend.CreateResource(renderer.ResourceDesc{Label: "ScratchB", Kind: renderer.ResourceKindBuffer, Size: 64})
	require.NoError(t, err)
	cb, _ := e.ConstantsBinding()
	set := resource_set.NewResourceSet("Filter", testLayout,
		resource_set.WithBindingRange(cb.Slot, cb.Resource, cb.Offset, cb.Size),
		resource_set.WithPair(1, 2, a, b),
		resource_set.WithConvention(resource_set.ConventionPingPong),
	)
	require.NoError(t, set.CreateBindingSet(f.backend, 0))
	in := pipeline.DispatchInput{Extent: common.Extent2D{Width: 8, Height: 8}}

	require.NoError(t, f.backend.BeginFrame())
	require.NoError(t, e.ExecuteOrder(f.seq, set, 0, GPUPassConstants{}, in))
	require.NoError(t, e.ExecuteOrder(f.seq, set, 1, GPUPassConstants{}, in))

	var handles []uint32
	for _, c := range f.backend.Calls() {
		if c.Op == "Dispatch" {
			handles = append(handles, c.Handle)
		}
	}
	even, _ := set.BindingSetFor(0)
	odd, _ := set.BindingSetFor(1)
	assert.Equal(t, []uint32{uint32(even), uint32(odd)}, handles)
	assert.Zero(t, f.seq.Barriers())
}

func TestSharedConstantsBindWholeBuffer(t *testing.T) {
	f := newFixture(t)
	layout := renderer.BindingLayout{
		f.constants.SharedSlot(0),
		{Slot: 1, Type: renderer.BindingStorageReadWrite, Name: "reservoirs"},
	}
	first, err := NewExecutor(pipeline.NewDescriptor("Temporal Resampling", "temporal.wgsl", pipeline.WithLayout(layout...)), f.constants)
	require.NoError(t, err)
	second, err := NewExecutor(pipeline.NewDescriptor("Spatial Resampling", "spatial.wgsl", pipeline.WithLayout(layout...)), f.constants)
	require.NoError(t, err)

	a, ok := first.ConstantsBinding()
	require.True(t, ok)
	b, _ := second.ConstantsBinding()
	assert.Equal(t, a, b)
	assert.Equal(t, renderer.Binding{Slot: 0, Resource: f.constants.Handle()}, a)
	assert.NotEqual(t, first.Region(), second.Region())

	require.NoError(t, second.Prepare(f.library, nil))
	assert.Contains(t, second.Pipeline().Shader().Source(), "var<uniform> regions: array<PassRegion, 4>;")
}
