package orchestrator

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-restir/common"
	"github.com/Carmen-Shannon/oxy-restir/engine/light"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/cache"
	"github.com/Carmen-Shannon/oxy-restir/engine/scene"
	"github.com/Carmen-Shannon/oxy-restir/engine/settings"
	"github.com/Carmen-Shannon/oxy-restir/engine/shaders"
)

func testScene() scene.Scene {
	quad := func(emissive bool) scene.Mesh {
		g := scene.Geometry{FirstIndex: 0, IndexCount: 6}
		if emissive {
			g.EmissiveColor = [3]float32{1, 0.9, 0.8}
			g.EmissiveIntensity = 10
		}
		return scene.Mesh{
			Name:       "quad",
			Positions:  [][3]float32{{-1, -1, -3}, {1, -1, -3}, {1, 1, -3}, {-1, 1, -3}},
			Indices:    []uint32{0, 1, 2, 0, 2, 3},
			Geometries: []scene.Geometry{g},
		}
	}
	return scene.NewScene("test",
		scene.WithMeshes(quad(false), quad(true)),
		scene.WithInstances(
			scene.Instance{Mesh: 0, Transform: scene.Identity},
			scene.Instance{Mesh: 1, Transform: [12]float32{1, 0, 0, 0, 0, 1, 0, 2, 0, 0, 1, 0}},
		),
		scene.WithLights(
			&light.Point{Name: "bulb", Color: [3]float32{1, 1, 1}, Intensity: 5, Position: [3]float32{0, 1, -2}, Radius: 0.1},
			&light.Directional{Name: "sun", Color: [3]float32{1, 1, 1}, Irradiance: 2, Direction: [3]float32{0, -1, 0}, AngularSize: 0.5},
		),
	)
}

func testSettings() settings.Settings {
	s := settings.Default()
	s.Resolution = settings.Resolution{Width: 64, Height: 32, RenderScale: 1}
	s.Lighting.PresampledTileSize = 64
	s.Lighting.PresampledTileCount = 4
	s.Profiler.ReportFrames = 0
	return s
}

type fixture struct {
	backend *renderer.RecordingBackend
	store   settings.Store
	o       *orchestrator
}

func newFixture(t *testing.T, s settings.Settings, options ...OrchestratorBuilderOption) *fixture {
	t.Helper()
	backend := renderer.NewRecordingBackend()
	store := settings.NewStore(s)
	factory, err := shaders.NewFactory("")
	require.NoError(t, err)
	o, err := NewOrchestrator(backend, store, testScene(), factory, options...)
	require.NoError(t, err)
	t.Cleanup(o.Release)
	return &fixture{backend: backend, store: store, o: o.(*orchestrator)}
}

func (f *fixture) render(t *testing.T, frames int) {
	t.Helper()
	for range frames {
		require.NoError(t, f.o.RenderFrame(context.Background()))
	}
}

func contains(dispatches []string, name string) bool {
	for _, d := range dispatches {
		if d == name {
			return true
		}
	}
	return false
}

func hasPrefix(dispatches []string, prefix string) bool {
	for _, d := range dispatches {
		if strings.HasPrefix(d, prefix) {
			return true
		}
	}
	return false
}

func TestRenderFrameDefaultPipeline(t *testing.T) {
	f := newFixture(t, testSettings())
	f.render(t, 1)

	d := f.backend.Dispatches()
	for _, name := range []string{
		"Environment Map", "Mesh Processing", "Local Light PDF", "Presample Lights",
		"G-Buffer Fill (Raster)", "Initial Samples", "Temporal Resampling", "Spatial Resampling",
		"Shade Primary Surfaces", "Gradients", "Filter Gradients 0", "Filter Gradients 3", "Confidence",
		"BRDF Rays", "Shade Secondary Surfaces", "GI Temporal Resampling", "GI Spatial Resampling",
		"GI Final Shading", "Composite", "TAA", "Tone Mapping", "Bloom",
	} {
		assert.True(t, contains(d, name), "missing dispatch %s", name)
	}
	assert.True(t, hasPrefix(d, "Denoiser"))
	assert.False(t, contains(d, "G-Buffer Fill (Ray Traced)"))
	assert.False(t, contains(d, "Fused Resampling"))
	assert.False(t, contains(d, "ReGIR Build"))

	assert.Equal(t, uint64(1), f.o.Frame())
	assert.Equal(t, uint64(1), f.backend.Frames())
	require.NotZero(t, f.o.Output())
	desc, ok := f.backend.Resource(f.o.Output())
	require.True(t, ok)
	assert.Equal(t, common.Extent2D{Width: 64, Height: 32}, desc.Extent)
}

func TestEnvironmentBakedOnce(t *testing.T) {
	f := newFixture(t, testSettings())
	f.render(t, 1)
	f.backend.ResetCalls()
	f.render(t, 1)
	assert.False(t, contains(f.backend.Dispatches(), "Environment Map"))

	f.o.RequestShaderReload()
	f.backend.ResetCalls()
	f.render(t, 1)
	assert.True(t, contains(f.backend.Dispatches(), "Environment Map"))
}

func TestParityContinuity(t *testing.T) {
	f := newFixture(t, testSettings(), WithDebugAssertions())
	f.render(t, 1)

	lighting := f.o.set("Lighting")
	require.NotNil(t, lighting)
	for frame := 1; frame < 5; frame++ {
		depth, luminance := lighting.Current(0), lighting.Current(4)
		f.render(t, 1)
		assert.Equal(t, depth, lighting.Previous(0), "frame %d", frame)
		assert.Equal(t, luminance, lighting.Previous(4), "frame %d", frame)
		assert.NotEqual(t, depth, lighting.Current(0))
		assert.NoError(t, lighting.Check(f.o.Frame()))
	}
	assert.Equal(t, uint64(5), lighting.Swaps())
}

func TestParityTornDetected(t *testing.T) {
	f := newFixture(t, testSettings(), WithDebugAssertions())
	f.render(t, 2)

	f.o.set("G-Buffer").NextFrame()
	err := f.o.RenderFrame(context.Background())
	assert.ErrorIs(t, err, ErrParityTorn)
}

func TestFusedResamplingExcludesSplitPasses(t *testing.T) {
	s := testSettings()
	s.Lighting.DirectResampling = settings.ResamplingFused
	s.Lighting.GIResampling = settings.ResamplingFused
	f := newFixture(t, s)
	f.render(t, 2)

	d := f.backend.Dispatches()
	assert.True(t, contains(d, "Fused Resampling"))
	assert.True(t, contains(d, "GI Fused Resampling"))
	for _, split := range []string{"Temporal Resampling", "Spatial Resampling", "Shade Primary Surfaces", "GI Temporal Resampling", "GI Spatial Resampling"} {
		assert.False(t, contains(d, split), split)
	}
}

// resolutionIndependentSets bind only light, environment and scene resources.
var resolutionIndependentSets = map[string]bool{
	"Environment":       true,
	"Light Preparation": true,
	"Light PDF":         true,
	"Presampling":       true,
}

func TestResizeRebuildsTargetsOnly(t *testing.T) {
	s := testSettings()
	s.Resolution.Width, s.Resolution.Height = 1920, 1080
	f := newFixture(t, s)
	f.render(t, 1)
	before := map[string]int{}
	for _, name := range f.o.cache.Names() {
		before[name] = f.o.cache.Builds(name)
	}
	require.Equal(t, 1, before[setPrefix+"Lighting"])

	f.o.RequestResize(1280, 720)
	f.render(t, 1)

	var sets int
	for _, name := range f.o.cache.Names() {
		rebuilds := f.o.cache.Builds(name) - before[name]
		switch {
		case strings.HasPrefix(name, setPrefix):
			sets++
			want := 1
			if resolutionIndependentSets[strings.TrimPrefix(name, setPrefix)] {
				want = 0
			}
			assert.Equal(t, want, rebuilds, name)
		case strings.HasPrefix(name, lightPrefix), strings.HasPrefix(name, environmentPrefix), strings.HasPrefix(name, "rtxdi/"):
			assert.Zero(t, rebuilds, name)
		}
	}
	assert.GreaterOrEqual(t, sets, 10)
	assert.Equal(t, 1, f.backend.Created("NeighborOffsets"))
	assert.Equal(t, common.Extent2D{Width: 1280, Height: 720}, f.store.Snapshot().OutputExtent())
	desc, ok := f.backend.Resource(f.o.Output())
	require.True(t, ok)
	assert.Equal(t, common.Extent2D{Width: 1280, Height: 720}, desc.Extent)
}

func TestEmissiveMeshCapacityKeysTaskBuffer(t *testing.T) {
	f := newFixture(t, testSettings())
	f.render(t, 1)
	require.Equal(t, 1, f.o.cache.Builds(lightPrefix+"LightTasks"))
	require.Equal(t, cache.MeshQuantum, f.o.meshCapacity.Value())

	emissive := func(n int) []scene.Instance {
		out := make([]scene.Instance, n)
		for i := range out {
			out[i] = scene.Instance{Mesh: 1, Transform: scene.Identity}
		}
		return out
	}

	require.NoError(t, f.o.scene.SetInstances(emissive(130)))
	f.render(t, 1)
	assert.Equal(t, uint32(256), f.o.meshCapacity.Value())
	assert.Equal(t, 2, f.o.cache.Builds(lightPrefix+"LightTasks"))
	desc, ok := f.backend.Resource(f.o.lights.tasks)
	require.True(t, ok)
	assert.Equal(t, uint64(256+cache.PrimitiveQuantum)*light.GPULightTaskSize, desc.Size)
	assert.Len(t, f.o.counts.tasks, 130+2)

	require.NoError(t, f.o.scene.SetInstances(emissive(100)))
	f.render(t, 1)
	assert.Equal(t, uint32(256), f.o.meshCapacity.Value())
	assert.Equal(t, 2, f.o.cache.Builds(lightPrefix+"LightTasks"))
	assert.Len(t, f.o.counts.tasks, 100+2)
}

func TestImportanceSamplingResetRebuildsLights(t *testing.T) {
	f := newFixture(t, testSettings())
	f.render(t, 1)
	f.o.RequestImportanceSamplingReset()
	f.render(t, 1)

	assert.Equal(t, 2, f.o.cache.Builds(lightPrefix+"LightData"))
	assert.Equal(t, 1, f.o.cache.Builds(targetPrefix+"DepthA"))
}

func TestDenoiserOffLeavesGBufferAlone(t *testing.T) {
	f := newFixture(t, testSettings())
	f.render(t, 1)
	gbuffer := f.o.cache.Builds(setPrefix + "G-Buffer")

	f.store.Update(func(s *settings.Settings) { s.Denoiser = settings.DenoiserOff })
	f.backend.ResetCalls()
	f.render(t, 1)

	d := f.backend.Dispatches()
	assert.False(t, hasPrefix(d, "Denoiser"))
	assert.False(t, contains(d, "Gradients"))
	assert.Equal(t, gbuffer, f.o.cache.Builds(setPrefix+"G-Buffer"))
	assert.False(t, f.store.Derived().DenoiserAvailable)
}

func TestDenoiserUnavailableSkipped(t *testing.T) {
	available := false
	f := newFixture(t, testSettings(), WithDenoiserAvailability(func() bool { return available }))
	f.render(t, 1)
	assert.False(t, hasPrefix(f.backend.Dispatches(), "Denoiser"))

	available = true
	f.backend.ResetCalls()
	f.render(t, 1)
	assert.True(t, hasPrefix(f.backend.Dispatches(), "Denoiser"))
}

func TestDLSSFallsBackToTAA(t *testing.T) {
	s := testSettings()
	s.Post.AntiAliasing = settings.AADLSS
	s.Resolution.RenderScale = 0.5
	f := newFixture(t, s)
	f.render(t, 1)

	d := f.store.Derived()
	assert.Equal(t, settings.AATAA, d.EffectiveAntiAliasing)
	assert.False(t, d.UpscalerAvailable)
	assert.True(t, contains(f.backend.Dispatches(), "TAA"))
	assert.Equal(t, common.Extent2D{Width: 64, Height: 32}, f.o.renderExtent)
}

func TestAccumulationCountsAndResets(t *testing.T) {
	s := testSettings()
	s.Post.AntiAliasing = settings.AAAccumulation
	s.Post.AccumulationLimit = 3
	f := newFixture(t, s)
	f.render(t, 5)
	assert.Equal(t, uint32(3), f.store.Derived().AccumulatedFrames)
	assert.True(t, contains(f.backend.Dispatches(), "Accumulation"))

	f.store.Update(func(s *settings.Settings) { s.Post.Bloom = false })
	f.render(t, 1)
	assert.Equal(t, uint32(1), f.store.Derived().AccumulatedFrames)
}

func TestNoLightingClearsTargets(t *testing.T) {
	s := testSettings()
	s.Lighting.Direct = settings.DirectNone
	s.Lighting.Indirect = settings.IndirectNone
	f := newFixture(t, s)
	f.render(t, 1)

	var cleared []string
	for _, c := range f.backend.Calls() {
		if c.Op == "ClearResource" {
			cleared = append(cleared, c.Label)
		}
	}
	// the ray counters are zeroed every frame by the profiler
	assert.ElementsMatch(t, []string{"DiffuseLighting", "SpecularLighting", "RayCount"}, cleared)
	assert.False(t, contains(f.backend.Dispatches(), "Initial Samples"))
	assert.False(t, contains(f.backend.Dispatches(), "BRDF Rays"))
}

func TestReGIRBuildsGrid(t *testing.T) {
	s := testSettings()
	s.Lighting.LocalLightSampling = settings.LocalLightReGIR
	f := newFixture(t, s)
	f.render(t, 1)

	assert.True(t, contains(f.backend.Dispatches(), "ReGIR Build"))
	desc, ok := f.backend.Resource(f.o.lights.ris)
	require.True(t, ok)
	assert.Equal(t, uint64(2*64*4+regirCells*regirLightsPerCell)*risStride, desc.Size)
}

func TestRayTracedGBuffer(t *testing.T) {
	s := testSettings()
	s.GBuffer = settings.GBufferRayTraced
	f := newFixture(t, s)
	f.render(t, 1)

	d := f.backend.Dispatches()
	assert.True(t, contains(d, "G-Buffer Fill (Ray Traced)"))
	assert.False(t, contains(d, "G-Buffer Fill (Raster)"))
}

func TestFrameInFlight(t *testing.T) {
	f := newFixture(t, testSettings())
	f.o.inFlight.Store(true)
	assert.ErrorIs(t, f.o.RenderFrame(context.Background()), ErrFrameInFlight)
	f.o.inFlight.Store(false)
	assert.NoError(t, f.o.RenderFrame(context.Background()))
}

func TestDeviceLost(t *testing.T) {
	f := newFixture(t, testSettings())
	f.render(t, 1)
	f.backend.SetDeviceLost(true)
	err := f.o.RenderFrame(context.Background())
	assert.ErrorIs(t, err, renderer.ErrDeviceLost)
	assert.Equal(t, uint64(1), f.o.Frame())
}

func TestCancelledContextKeepsFrame(t *testing.T) {
	f := newFixture(t, testSettings())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, f.o.RenderFrame(ctx), context.Canceled)
	assert.Zero(t, f.o.Frame())
}

func TestNeighborOffsetsInUnitDisk(t *testing.T) {
	offsets := NeighborOffsets(NeighborOffsetCount)
	require.Len(t, offsets, NeighborOffsetCount)
	for _, o := range offsets {
		assert.LessOrEqual(t, math.Hypot(float64(o[0]), float64(o[1])), 1.0+1e-6)
	}
	assert.NotEqual(t, offsets[0], offsets[1])
	assert.Len(t, packOffsets(offsets[:4]), 32)
}

func TestPDFExtent(t *testing.T) {
	assert.Equal(t, common.Extent2D{Width: 1, Height: 1}, pdfExtent(0))
	assert.Equal(t, common.Extent2D{Width: 1, Height: 1}, pdfExtent(1))
	assert.Equal(t, common.Extent2D{Width: 4, Height: 4}, pdfExtent(9))
	assert.Equal(t, common.Extent2D{Width: 16, Height: 16}, pdfExtent(256))
}

func TestReleaseFreesDenoiserHistory(t *testing.T) {
	backend := renderer.NewRecordingBackend()
	factory, err := shaders.NewFactory("")
	require.NoError(t, err)
	oi, err := NewOrchestrator(backend, settings.NewStore(testSettings()), testScene(), factory)
	require.NoError(t, err)
	o := oi.(*orchestrator)
	require.NoError(t, o.RenderFrame(context.Background()))
	require.True(t, o.cache.Sealed())

	var history []string
	for _, name := range o.cache.Names() {
		if strings.Contains(name, "History") {
			history = append(history, name)
		}
	}
	require.NotEmpty(t, history)

	o.Release()
	assert.False(t, o.cache.Sealed())
	assert.Empty(t, o.cache.Names())
	assert.Nil(t, o.denoiser)
}
