package orchestrator

import (
	"github.com/Carmen-Shannon/oxy-restir/common"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/cache"
)

// targetPrefix namespaces the resolution-dependent textures and buffers in the cache.
const targetPrefix = "targets/"

// Bytes per pixel of the per-pixel buffers.
const (
	directReservoirStride  = 32
	giReservoirStride      = 48
	secondarySurfaceStride = 48
)

// pair is a temporal pair of allocations. At parity 0, A is current.
type pair struct {
	A, B renderer.ResourceHandle
}

// renderTargets are the resources sized from the render or output resolution. They are rebuilt
// together when either resolution changes.
type renderTargets struct {
	render common.Extent2D
	output common.Extent2D

	depth    pair
	normals  pair
	albedo   pair
	specular pair
	emissive renderer.ResourceHandle
	motion   renderer.ResourceHandle

	diffuseLighting  renderer.ResourceHandle
	specularLighting renderer.ResourceHandle
	denoisedDiffuse  renderer.ResourceHandle
	denoisedSpecular renderer.ResourceHandle
	luminance        pair

	gradients         renderer.ResourceHandle
	gradientsScratch  renderer.ResourceHandle
	confidenceHistory pair
	confidence        renderer.ResourceHandle

	directReservoirs  renderer.ResourceHandle
	giReservoirs      renderer.ResourceHandle
	secondarySurfaces renderer.ResourceHandle

	hdrColor    renderer.ResourceHandle
	accumulated pair
	taaFeedback pair
	resolved    renderer.ResourceHandle
	postA       renderer.ResourceHandle
	postB       renderer.ResourceHandle
}

// targetBuilder creates cache-owned targets and remembers the first error.
type targetBuilder struct {
	cache   cache.Cache
	backend renderer.Backend
	err     error
}

func (b *targetBuilder) texture(name string, extent common.Extent2D, format renderer.TextureFormat, usage renderer.ResourceUsage) renderer.ResourceHandle {
	if b.err != nil {
		return 0
	}
	h, err := cache.Resource(b.cache, b.backend, targetPrefix+name, renderer.ResourceDesc{
		Label:  name,
		Kind:   renderer.ResourceKindTexture,
		Extent: extent,
		Format: format,
		Usage:  usage,
	})
	b.err = err
	return h
}

func (b *targetBuilder) pair(name string, extent common.Extent2D, format renderer.TextureFormat, usage renderer.ResourceUsage) pair {
	return pair{
		A: b.texture(name+"A", extent, format, usage),
		B: b.texture(name+"B", extent, format, usage),
	}
}

func (b *targetBuilder) buffer(name string, size uint64) renderer.ResourceHandle {
	if b.err != nil {
		return 0
	}
	h, err := cache.Resource(b.cache, b.backend, targetPrefix+name, renderer.ResourceDesc{
		Label: name,
		Kind:  renderer.ResourceKindBuffer,
		Size:  size,
		Usage: renderer.UsageStorage | renderer.UsageCopyDst,
	})
	b.err = err
	return h
}

// ensureTargets resolves every render target for the frame's resolutions. Unchanged targets are
// returned from the cache.
func (o *orchestrator) ensureTargets(render, output common.Extent2D) error {
	b := &targetBuilder{cache: o.cache, backend: o.backend}
	const (
		rw      = renderer.UsageStorage | renderer.UsageSampled
		cleared = rw | renderer.UsageCopyDst
	)
	gradients := common.Extent2D{
		Width:  common.DivCeil(render.Width, gradientBlock),
		Height: common.DivCeil(render.Height, gradientBlock),
	}
	pixels := uint64(render.Width) * uint64(render.Height)

	t := renderTargets{render: render, output: output}
	t.depth = b.pair("Depth", render, renderer.FormatR32Float, rw)
	t.normals = b.pair("Normals", render, renderer.FormatRGBA16Float, rw)
	t.albedo = b.pair("DiffuseAlbedo", render, renderer.FormatRGBA8Unorm, rw)
	t.specular = b.pair("SpecularRough", render, renderer.FormatRGBA8Unorm, rw)
	t.emissive = b.texture("Emissive", render, renderer.FormatRGBA16Float, rw)
	t.motion = b.texture("MotionVectors", render, renderer.FormatRGBA16Float, rw)

	t.diffuseLighting = b.texture("DiffuseLighting", render, renderer.FormatRGBA16Float, cleared)
	t.specularLighting = b.texture("SpecularLighting", render, renderer.FormatRGBA16Float, cleared)
	t.denoisedDiffuse = b.texture("DenoisedDiffuse", render, renderer.FormatRGBA16Float, rw)
	t.denoisedSpecular = b.texture("DenoisedSpecular", render, renderer.FormatRGBA16Float, rw)
	t.luminance = b.pair("RestirLuminance", render, renderer.FormatRGBA16Float, rw)

	t.gradients = b.texture("Gradients", gradients, renderer.FormatRGBA16Float, rw)
	t.gradientsScratch = b.texture("GradientsScratch", gradients, renderer.FormatRGBA16Float, rw)
	t.confidenceHistory = b.pair("ConfidenceHistory", render, renderer.FormatR32Float, rw)
	t.confidence = b.texture("Confidence", render, renderer.FormatR32Float, rw)

	t.directReservoirs = b.buffer("DIReservoirs", pixels*directReservoirStride*uint64(directReservoirSlices))
	t.giReservoirs = b.buffer("GIReservoirs", pixels*giReservoirStride*uint64(giReservoirSlices))
	t.secondarySurfaces = b.buffer("SecondarySurfaces", pixels*secondarySurfaceStride)

	t.hdrColor = b.texture("HdrColor", render, renderer.FormatRGBA16Float, rw)
	t.accumulated = b.pair("AccumulatedColor", render, renderer.FormatRGBA32Float, rw)
	t.taaFeedback = b.pair("TaaFeedback", output, renderer.FormatRGBA32Float, rw)
	t.resolved = b.texture("ResolvedColor", output, renderer.FormatRGBA16Float, rw)
	t.postA = b.texture("PostA", output, renderer.FormatRGBA16Float, rw|renderer.UsageCopySrc)
	t.postB = b.texture("PostB", output, renderer.FormatRGBA16Float, rw|renderer.UsageCopySrc)
	if b.err != nil {
		return b.err
	}
	o.targets = t
	return nil
}
