package denoiser

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-restir/common"
	"github.com/Carmen-Shannon/oxy-restir/engine/profiler"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/cache"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-restir/engine/settings"
)

const kernel = `//@oxy:include constants
//@oxy:bindings
@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {}
`

type fixture struct {
	backend   *renderer.RecordingBackend
	cache     cache.Cache
	library   pipeline.Library
	constants pass.ConstantBuffer
	seq       pass.Sequencer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := renderer.NewRecordingBackend()
	c := cache.NewCache()
	shaders := shader.NewFactory(fstest.MapFS{
		"denoiser/reblur.wgsl": {Data: []byte(kernel)},
		"denoiser/relax.wgsl":  {Data: []byte(kernel)},
	}, shader.WithStruct("constants", pass.GPUPassConstantsSource))
	constants, err := pass.NewConstantBuffer(backend, 4)
	require.NoError(t, err)
	ledger, err := profiler.NewLedger(backend)
	require.NoError(t, err)
	return &fixture{
		backend:   backend,
		cache:     c,
		library:   pipeline.NewLibrary(backend, shaders, c),
		constants: constants,
		seq:       pass.NewSequencer(backend, ledger),
	}
}

func (f *fixture) inputs(t *testing.T, extent common.Extent2D) Inputs {
	t.Helper()
	texture := func(label string, format renderer.TextureFormat) renderer.ResourceHandle {
		h, err := f.backend.CreateResource(renderer.ResourceDesc{Label: label, Kind: renderer.ResourceKindTexture, Extent: extent, Format: format})
		require.NoError(t, err)
		return h
	}
	return Inputs{
		Extent:      extent,
		Diffuse:     texture("DiffuseLighting", renderer.FormatRGBA16Float),
		Specular:    texture("SpecularLighting", renderer.FormatRGBA16Float),
		DepthA:      texture("DepthA", renderer.FormatR32Float),
		DepthB:      texture("DepthB", renderer.FormatR32Float),
		NormalsA:    texture("NormalsA", renderer.FormatRGBA16Float),
		NormalsB:    texture("NormalsB", renderer.FormatRGBA16Float),
		OutDiffuse:  texture("DenoisedDiffuse", renderer.FormatRGBA16Float),
		OutSpecular: texture("DenoisedSpecular", renderer.FormatRGBA16Float),
	}
}

func TestNewDenoiserRejectsOff(t *testing.T) {
	f := newFixture(t)
	_, err := NewDenoiser(settings.DenoiserOff, f.backend, f.library, f.constants, f.cache)
	assert.ErrorIs(t, err, ErrNoMethod)
}

func TestShaderPath(t *testing.T) {
	assert.Equal(t, "denoiser/reblur.wgsl", ShaderPath(settings.DenoiserReBLUR))
	assert.Equal(t, "denoiser/relax.wgsl", ShaderPath(settings.DenoiserReLAX))
}

func TestDenoiseRecordsOneDispatch(t *testing.T) {
	f := newFixture(t)
	d, err := NewDenoiser(settings.DenoiserReLAX, f.backend, f.library, f.constants, f.cache)
	require.NoError(t, err)
	assert.Equal(t, settings.DenoiserReLAX, d.Method())
	assert.True(t, d.IsAvailable())

	require.NoError(t, d.Setup(f.inputs(t, common.Extent2D{Width: 64, Height: 32}), 0))
	require.Len(t, d.ResourceSets(), 1)
	assert.Equal(t, 1, f.backend.Created("denoiser/relax/HistoryA"))
	assert.Equal(t, 1, f.backend.Created("denoiser/relax/NoConfidence"))

	require.NoError(t, f.backend.BeginFrame())
	require.NoError(t, d.Denoise(f.seq, 0))
	require.NoError(t, f.backend.EndFrame())
	assert.Equal(t, []string{"Denoiser (relax)"}, f.backend.Dispatches())
}

func TestSetupReusesUnchangedInputs(t *testing.T) {
	f := newFixture(t)
	d, err := NewDenoiser(settings.DenoiserReBLUR, f.backend, f.library, f.constants, f.cache)
	require.NoError(t, err)
	in := f.inputs(t, common.Extent2D{Width: 64, Height: 32})

	require.NoError(t, d.Setup(in, 0))
	first := d.ResourceSets()[0]
	require.NoError(t, d.Setup(in, 1))
	assert.Same(t, first, d.ResourceSets()[0])

	resized := f.inputs(t, common.Extent2D{Width: 32, Height: 16})
	require.NoError(t, d.Setup(resized, 2))
	assert.NotSame(t, first, d.ResourceSets()[0])
	assert.Equal(t, 2, f.backend.Created("denoiser/reblur/HistoryA"))
}

func TestHistoryAlternatesWithParity(t *testing.T) {
	f := newFixture(t)
	d, err := NewDenoiser(settings.DenoiserReLAX, f.backend, f.library, f.constants, f.cache)
	require.NoError(t, err)
	require.NoError(t, d.Setup(f.inputs(t, common.Extent2D{Width: 16, Height: 16}), 0))

	set := d.ResourceSets()[0]
	history := set.Current(1)
	set.NextFrame()
	assert.Equal(t, history, set.Previous(1))
	require.NoError(t, set.Check(1))
}

func TestUnavailableDenoiserIsNotCalled(t *testing.T) {
	f := newFixture(t)
	available := false
	d, err := NewDenoiser(settings.DenoiserReLAX, f.backend, f.library, f.constants, f.cache, WithAvailability(func() bool { return available }))
	require.NoError(t, err)
	require.NoError(t, d.Setup(f.inputs(t, common.Extent2D{Width: 16, Height: 16}), 0))

	assert.False(t, d.IsAvailable())
	assert.ErrorIs(t, d.Denoise(f.seq, 0), ErrUnavailable)
	assert.Empty(t, f.backend.Dispatches())
}

func TestReleaseDropsHistory(t *testing.T) {
	f := newFixture(t)
	d, err := NewDenoiser(settings.DenoiserReLAX, f.backend, f.library, f.constants, f.cache)
	require.NoError(t, err)
	in := f.inputs(t, common.Extent2D{Width: 16, Height: 16})
	in.Confidence = in.DepthA
	require.NoError(t, d.Setup(in, 0))
	live := f.backend.LiveResources()

	d.Release()
	assert.Nil(t, d.ResourceSets())
	assert.Equal(t, live-2, f.backend.LiveResources())
	assert.Zero(t, f.backend.Created("denoiser/relax/NoConfidence"))
}

func TestUnavailableUpscaler(t *testing.T) {
	u := NewUnavailableUpscaler("DLSS", "no NGX runtime")
	assert.Equal(t, "DLSS", u.Name())
	assert.False(t, u.IsAvailable())
	err := u.Upscale(nil, UpscaleInputs{})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "no NGX runtime")
}
