package orchestrator

import (
	"encoding/binary"
	"math"

	"github.com/Carmen-Shannon/oxy-restir/common"
	"github.com/Carmen-Shannon/oxy-restir/engine/light"
	"github.com/Carmen-Shannon/oxy-restir/engine/logger"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/cache"
	"github.com/Carmen-Shannon/oxy-restir/engine/scene"
	"github.com/Carmen-Shannon/oxy-restir/engine/settings"
)

// lightPrefix namespaces the light-dependent resources. An importance sampling reset drops
// everything under it.
const lightPrefix = "lights/"

// environmentPrefix namespaces the environment map and its PDF.
const environmentPrefix = "environment/"

// NeighborOffsetCount is the number of spatial resampling offsets in the neighbor table.
const NeighborOffsetCount = 8192

// ReGIR grid dimensions. The grid cells follow the presampled tiles in the RIS buffer.
const (
	regirCells         uint32 = 16 * 16 * 16
	regirLightsPerCell uint32 = 128
)

// Byte strides of the light buffers.
const (
	lightStride        = 64
	indexStride        = 4
	risStride          = 8
	risLightDataStride = 32
)

// lightCounts are the counts and derived layouts of the frame's lights.
type lightCounts struct {
	light.Counts
	header     light.GPULightHeader
	primitives []byte
	tasks      []light.GPULightTask
	ris        light.RISLayout
	// version is the scene version the tasks were listed for.
	version uint64
	// regir is the number of RIS buffer entries after the presampled tiles, zero unless ReGIR
	// is the local light sampling mode.
	regir uint32
}

// risEntries returns the RIS buffer length in elements.
func (c lightCounts) risEntries() uint32 {
	return c.ris.Total + c.regir
}

// lightResources are the buffers sized from the quantized light capacities. A resize never
// touches them.
type lightResources struct {
	data            renderer.ResourceHandle
	indexMapping    renderer.ResourceHandle
	geometryToLight renderer.ResourceHandle
	tasks           renderer.ResourceHandle
	primitives      renderer.ResourceHandle
	header          renderer.ResourceHandle
	ris             renderer.ResourceHandle
	risLightData    renderer.ResourceHandle
	localPDF        renderer.ResourceHandle
	pdfExtent       common.Extent2D
	neighborOffsets renderer.ResourceHandle
}

// environmentResources track the environment map bake. The map is decoded and its PDF rebuilt
// only when dirty: on the first frame, after a shader reload, or when the source path changes.
type environmentResources struct {
	dirty   bool
	source  string
	texture renderer.ResourceHandle
	pdf     renderer.ResourceHandle
	extent  common.Extent2D
	// bake is set for the frame that must run the environment map pass.
	bake bool
}

// countLights counts the scene's lights and grows the capacities.
func (o *orchestrator) countLights(snap settings.Snapshot) {
	counts := o.scene.LightCounts()
	header, primitives := light.Pack(o.scene.Lights(), counts.EmissiveTriangles)
	tasks := o.counts.tasks
	if o.counts.version != o.sceneVersion {
		tasks = light.Tasks(o.scene.Emitters(), counts.PrimitiveLights)
	}

	c := lightCounts{
		Counts:     counts,
		header:     header,
		primitives: primitives,
		tasks:      tasks,
		ris:        light.NewRISLayout(snap.Lighting.PresampledTileSize, snap.Lighting.PresampledTileCount),
		version:    o.sceneVersion,
	}
	if snap.Lighting.LocalLightSampling == settings.LocalLightReGIR {
		c.regir = regirCells * regirLightsPerCell
	}

	if _, grew := o.meshCapacity.Fit(counts.EmissiveMeshes); grew {
		logger.Debug("emissive mesh capacity grew to %d", o.meshCapacity.Value())
	}
	o.triangleCapacity.Fit(counts.EmissiveTriangles)
	o.primitiveCapacity.Fit(counts.PrimitiveLights)
	o.geometryCapacity.Fit(counts.GeometryInstances)
	o.counts = c
}

// pdfExtent returns the smallest power-of-two square holding one texel per local light.
func pdfExtent(lights uint32) common.Extent2D {
	side := uint32(1)
	for side*side < lights {
		side <<= 1
	}
	return common.Extent2D{Width: side, Height: side}
}

// ensureLights resolves the light buffers. They are keyed by the quantized capacities, so a
// count that stays within its quantum reuses the allocation.
func (o *orchestrator) ensureLights() error {
	lights := o.triangleCapacity.Value() + o.primitiveCapacity.Value()
	size := func(n uint32, stride uint64) uint64 {
		return max(uint64(n)*stride, stride)
	}
	buffer := func(name string, bytes uint64, usage renderer.ResourceUsage) (renderer.ResourceHandle, error) {
		return cache.Resource(o.cache, o.backend, lightPrefix+name, renderer.ResourceDesc{
			Label: name,
			Kind:  renderer.ResourceKindBuffer,
			Size:  bytes,
			Usage: usage,
		})
	}
	const storage = renderer.UsageStorage | renderer.UsageCopyDst

	var (
		r   lightResources
		err error
	)
	// the second half holds the previous frame's lights for temporal light index mapping
	if r.data, err = buffer("LightData", size(2*lights, lightStride), storage); err != nil {
		return err
	}
	if r.indexMapping, err = buffer("LightIndexMapping", size(2*lights, indexStride), storage); err != nil {
		return err
	}
	if r.geometryToLight, err = buffer("GeometryToLight", size(o.geometryCapacity.Value(), indexStride), storage); err != nil {
		return err
	}
	// one task per emissive mesh plus one per primitive light
	tasks := o.meshCapacity.Value() + o.primitiveCapacity.Value()
	if r.tasks, err = buffer("LightTasks", size(tasks, light.GPULightTaskSize), storage); err != nil {
		return err
	}
	if r.primitives, err = buffer("PrimitiveLights", size(o.primitiveCapacity.Value(), lightStride), storage); err != nil {
		return err
	}
	if r.header, err = buffer("Header", 32, renderer.UsageUniform|renderer.UsageCopyDst); err != nil {
		return err
	}
	entries := o.counts.risEntries()
	if r.ris, err = buffer("RIS", size(entries, risStride), storage); err != nil {
		return err
	}
	if r.risLightData, err = buffer("RISLightData", size(entries, risLightDataStride), storage); err != nil {
		return err
	}

	r.pdfExtent = pdfExtent(lights)
	r.localPDF, err = cache.Resource(o.cache, o.backend, lightPrefix+"LocalLightPDF", renderer.ResourceDesc{
		Label:  "LocalLightPDF",
		Kind:   renderer.ResourceKindTexture,
		Extent: r.pdfExtent,
		Format: renderer.FormatR32Float,
		Usage:  renderer.UsageStorage | renderer.UsageSampled,
	})
	if err != nil {
		return err
	}

	r.neighborOffsets, err = cache.GetOrCreate(o.cache, "rtxdi/NeighborOffsets", cache.Key(NeighborOffsetCount), func() (renderer.ResourceHandle, func(), error) {
		h, err := o.backend.CreateResource(renderer.ResourceDesc{
			Label:  "NeighborOffsets",
			Kind:   renderer.ResourceKindTexture,
			Extent: common.Extent2D{Width: NeighborOffsetCount, Height: 1},
			Format: renderer.FormatRG32Float,
			Usage:  renderer.UsageSampled | renderer.UsageCopyDst,
		})
		if err != nil {
			return 0, nil, err
		}
		if err := o.backend.WriteTexture(h, packOffsets(NeighborOffsets(NeighborOffsetCount))); err != nil {
			o.backend.ReleaseResource(h)
			return 0, nil, err
		}
		return h, func() { o.backend.ReleaseResource(h) }, nil
	})
	if err != nil {
		return err
	}
	o.lights = r
	return nil
}

// uploadLights writes the light header, the preparation tasks and the primitive light records
// of the frame.
func (o *orchestrator) uploadLights() error {
	if err := o.backend.WriteResource(o.lights.header, 0, o.counts.header.Marshal()); err != nil {
		return err
	}
	tasks := light.MarshalTasks(o.counts.tasks, o.meshCapacity.Value()+o.primitiveCapacity.Value())
	if err := o.backend.WriteResource(o.lights.tasks, 0, tasks); err != nil {
		return err
	}
	if len(o.counts.primitives) == 0 {
		return nil
	}
	return o.backend.WriteResource(o.lights.primitives, 0, o.counts.primitives)
}

// ensureEnvironment decodes and uploads the environment map when it is dirty. A map that fails
// to load is replaced by the procedural sky and not retried until the path changes.
func (o *orchestrator) ensureEnvironment(path string) error {
	e := &o.environment
	e.bake = false
	if !e.dirty && e.source == path && e.texture != 0 {
		return nil
	}

	m, err := scene.ResolveEnvironmentMap(path)
	if err != nil {
		logger.Debug("environment map fallback extent %s", m.Extent)
	}
	tex, err := cache.Resource(o.cache, o.backend, environmentPrefix+"Texture", renderer.ResourceDesc{
		Label:  "EnvironmentMap",
		Kind:   renderer.ResourceKindTexture,
		Extent: m.Extent,
		Format: m.Format(),
		Usage:  renderer.UsageSampled | renderer.UsageCopyDst,
	})
	if err != nil {
		return err
	}
	if err := o.backend.WriteTexture(tex, m.Bytes()); err != nil {
		return err
	}
	pdf, err := cache.Resource(o.cache, o.backend, environmentPrefix+"PDF", renderer.ResourceDesc{
		Label:  "EnvironmentPDF",
		Kind:   renderer.ResourceKindTexture,
		Extent: m.Extent,
		Format: renderer.FormatR32Float,
		Usage:  renderer.UsageStorage | renderer.UsageSampled,
	})
	if err != nil {
		return err
	}

	*e = environmentResources{source: path, texture: tex, pdf: pdf, extent: m.Extent, bake: true}
	logger.Info("environment map baked: %s (%s, procedural: %t)", common.Coalesce(path, "procedural sky"), m.Extent, m.Procedural)
	return nil
}

// NeighborOffsets fills count spatial resampling offsets inside the unit disk from the R2
// low-discrepancy sequence. Offsets are in [-1, 1] and scaled by the sampling radius in the
// kernels.
//
// Parameters:
//   - count: the number of offsets
//
// Returns:
//   - [][2]float32: the offsets
func NeighborOffsets(count int) [][2]float32 {
	const phi2 = 1.0 / 1.3247179572447
	out := make([][2]float32, 0, count)
	u, v := 0.5, 0.5
	for len(out) < count {
		u += phi2
		v += phi2 * phi2
		if u >= 1 {
			u--
		}
		if v >= 1 {
			v--
		}
		if (u-0.5)*(u-0.5)+(v-0.5)*(v-0.5) > 0.25 {
			continue
		}
		out = append(out, [2]float32{float32((u - 0.5) * 2), float32((v - 0.5) * 2)})
	}
	return out
}

func packOffsets(offsets [][2]float32) []byte {
	buf := make([]byte, len(offsets)*8)
	for i, o := range offsets {
		binary.LittleEndian.PutUint32(buf[i*8:], math.Float32bits(o[0]))
		binary.LittleEndian.PutUint32(buf[i*8+4:], math.Float32bits(o[1]))
	}
	return buf
}
