package orchestrator

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-restir/common"
	"github.com/Carmen-Shannon/oxy-restir/engine/profiler"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/pipeline"
)

// gradientFilterPasses is the number of a-trous iterations run over the gradients.
const gradientFilterPasses = 4

// gradientBlock is the pixel block one gradient texel covers.
const gradientBlock uint32 = 4

// regionsSlot is the shared constants slot of every orchestrator layout.
const regionsSlot uint32 = 0

// Environment set slots.
const (
	envSlotSource uint32 = iota + 1
	envSlotPDF
)

// Light preparation set slots.
const (
	prepSlotVertices uint32 = iota + 1
	prepSlotIndices
	prepSlotGeometries
	prepSlotPrimitiveLights
	prepSlotHeader
	prepSlotLightData
	prepSlotIndexMapping
	prepSlotGeometryToLight
	prepSlotTasks
)

// Local light PDF set slots.
const (
	pdfSlotLightData uint32 = iota + 1
	pdfSlotHeader
	pdfSlotPDF
)

// Presampling set slots.
const (
	presampleSlotLightData uint32 = iota + 1
	presampleSlotHeader
	presampleSlotLocalPDF
	presampleSlotEnvironmentPDF
	presampleSlotRIS
	presampleSlotRISLightData
)

// GBuffer set slots. Each current slot is followed by its previous slot.
const (
	gbufSlotVertices uint32 = iota + 1
	gbufSlotIndices
	gbufSlotInstances
	gbufSlotGeometries
	gbufSlotDepth
	gbufSlotPrevDepth
	gbufSlotNormals
	gbufSlotPrevNormals
	gbufSlotAlbedo
	gbufSlotPrevAlbedo
	gbufSlotSpecular
	gbufSlotPrevSpecular
	gbufSlotEmissive
	gbufSlotMotion
	gbufSlotRayCounts
)

// Lighting set slots, shared by every direct and indirect lighting pass.
const (
	litSlotLightData uint32 = iota + 1
	litSlotIndexMapping
	litSlotHeader
	litSlotRIS
	litSlotRISLightData
	litSlotNeighborOffsets
	litSlotDirectReservoirs
	litSlotGIReservoirs
	litSlotSecondarySurfaces
	litSlotDepth
	litSlotPrevDepth
	litSlotNormals
	litSlotPrevNormals
	litSlotAlbedo
	litSlotPrevAlbedo
	litSlotSpecular
	litSlotPrevSpecular
	litSlotMotion
	litSlotEnvironment
	litSlotEnvironmentPDF
	litSlotLocalPDF
	litSlotDiffuse
	litSlotSpecularLighting
	litSlotLuminance
	litSlotPrevLuminance
	litSlotGradients
	litSlotRayCounts
)

// Gradient filter set slots.
const (
	filterSlotIn uint32 = iota + 1
	filterSlotOut
)

// Confidence set slots.
const (
	confSlotGradients uint32 = iota + 1
	confSlotHistory
	confSlotPrevHistory
	confSlotOut
	confSlotMotion
)

// Composite set slots.
const (
	compSlotDepth uint32 = iota + 1
	compSlotPrevDepth
	compSlotNormals
	compSlotPrevNormals
	compSlotAlbedo
	compSlotPrevAlbedo
	compSlotSpecular
	compSlotPrevSpecular
	compSlotEmissive
	compSlotDiffuse
	compSlotSpecularLighting
	compSlotDenoisedDiffuse
	compSlotDenoisedSpecular
	compSlotEnvironment
	compSlotOut
)

// Glass set slots.
const (
	glassSlotDepth uint32 = iota + 1
	glassSlotPrevDepth
	glassSlotNormals
	glassSlotPrevNormals
	glassSlotEnvironment
	glassSlotLightData
	glassSlotHeader
	glassSlotOut
	glassSlotVertices
	glassSlotIndices
	glassSlotGeometries
	glassSlotRayCounts
)

// Temporal resolve set slots, shared by accumulation and TAA.
const (
	resolveSlotIn uint32 = iota + 1
	resolveSlotMotion
	resolveSlotHistory
	resolveSlotPrevHistory
	resolveSlotOut
)

// Post stage set slots. Visualization appends its debug inputs.
const (
	postSlotIn uint32 = iota + 1
	postSlotOut
	visSlotConfidence
	visSlotGradients
	visSlotDiffuse
	visSlotDirectReservoirs
	visSlotGIReservoirs
)

func texture(slot uint32, format renderer.TextureFormat, name string) renderer.BindingSlot {
	return renderer.BindingSlot{Slot: slot, Type: renderer.BindingTexture, Format: format, Name: name}
}

func storageTexture(slot uint32, format renderer.TextureFormat, name string) renderer.BindingSlot {
	return renderer.BindingSlot{Slot: slot, Type: renderer.BindingStorageTexture, Format: format, Name: name}
}

func buffer(slot uint32, t renderer.BindingType, element, name string) renderer.BindingSlot {
	return renderer.BindingSlot{Slot: slot, Type: t, Element: element, Name: name}
}

func headerSlot(slot uint32) renderer.BindingSlot {
	return renderer.BindingSlot{Slot: slot, Type: renderer.BindingUniform, Element: "LightHeader", Name: "light_header"}
}

func rayCountSlot(slot uint32) renderer.BindingSlot {
	return buffer(slot, renderer.BindingStorageReadWrite, "atomic<u32>", "ray_counts")
}

// layouts holds the binding layout of every resource set. Slot 0 of each is the shared
// PassRegion array.
type layouts struct {
	environment renderer.BindingLayout
	preparation renderer.BindingLayout
	pdf         renderer.BindingLayout
	presampling renderer.BindingLayout
	gbuffer     renderer.BindingLayout
	lighting    renderer.BindingLayout
	filter      renderer.BindingLayout
	confidence  renderer.BindingLayout
	composite   renderer.BindingLayout
	glass       renderer.BindingLayout
	resolve     renderer.BindingLayout
	post        renderer.BindingLayout
	visualize   renderer.BindingLayout
}

func newLayouts(constants pass.ConstantBuffer) layouts {
	with := func(slots ...renderer.BindingSlot) renderer.BindingLayout {
		return append(renderer.BindingLayout{constants.SharedSlot(regionsSlot)}, slots...)
	}
	const (
		ro = renderer.BindingStorageRead
		rw = renderer.BindingStorageReadWrite

		rgba16 = renderer.FormatRGBA16Float
		rgba32 = renderer.FormatRGBA32Float
		rgba8  = renderer.FormatRGBA8Unorm
		r32    = renderer.FormatR32Float
	)

	post := with(
		texture(postSlotIn, rgba16, "color_in"),
		storageTexture(postSlotOut, rgba16, "color_out"),
	)
	return layouts{
		environment: with(
			texture(envSlotSource, rgba32, "environment_source"),
			storageTexture(envSlotPDF, r32, "environment_pdf"),
		),
		preparation: with(
			buffer(prepSlotVertices, ro, "f32", "vertices"),
			buffer(prepSlotIndices, ro, "u32", "indices"),
			buffer(prepSlotGeometries, ro, "GeometryInstance", "geometries"),
			buffer(prepSlotPrimitiveLights, ro, "Light", "primitive_lights"),
			headerSlot(prepSlotHeader),
			buffer(prepSlotLightData, rw, "Light", "light_data"),
			buffer(prepSlotIndexMapping, rw, "u32", "light_index_mapping"),
			buffer(prepSlotGeometryToLight, rw, "u32", "geometry_to_light"),
			buffer(prepSlotTasks, ro, "LightTask", "light_tasks"),
		),
		pdf: with(
			buffer(pdfSlotLightData, ro, "Light", "light_data"),
			headerSlot(pdfSlotHeader),
			storageTexture(pdfSlotPDF, r32, "local_light_pdf"),
		),
		presampling: with(
			buffer(presampleSlotLightData, ro, "Light", "light_data"),
			headerSlot(presampleSlotHeader),
			texture(presampleSlotLocalPDF, r32, "local_light_pdf"),
			texture(presampleSlotEnvironmentPDF, r32, "environment_pdf"),
			buffer(presampleSlotRIS, rw, "vec2<u32>", "ris_buffer"),
			buffer(presampleSlotRISLightData, rw, "vec4<u32>", "ris_light_data"),
		),
		gbuffer: with(
			buffer(gbufSlotVertices, ro, "f32", "vertices"),
			buffer(gbufSlotIndices, ro, "u32", "indices"),
			buffer(gbufSlotInstances, ro, "vec4<f32>", "instances"),
			buffer(gbufSlotGeometries, ro, "GeometryInstance", "geometries"),
			storageTexture(gbufSlotDepth, r32, "depth"),
			texture(gbufSlotPrevDepth, r32, "prev_depth"),
			storageTexture(gbufSlotNormals, rgba16, "normals"),
			texture(gbufSlotPrevNormals, rgba16, "prev_normals"),
			storageTexture(gbufSlotAlbedo, rgba8, "diffuse_albedo"),
			texture(gbufSlotPrevAlbedo, rgba8, "prev_diffuse_albedo"),
			storageTexture(gbufSlotSpecular, rgba8, "specular_rough"),
			texture(gbufSlotPrevSpecular, rgba8, "prev_specular_rough"),
			storageTexture(gbufSlotEmissive, rgba16, "emissive"),
			storageTexture(gbufSlotMotion, rgba16, "motion_vectors"),
			rayCountSlot(gbufSlotRayCounts),
		),
		lighting: with(
			buffer(litSlotLightData, ro, "Light", "light_data"),
			buffer(litSlotIndexMapping, ro, "u32", "light_index_mapping"),
			headerSlot(litSlotHeader),
			buffer(litSlotRIS, ro, "vec2<u32>", "ris_buffer"),
			buffer(litSlotRISLightData, ro, "vec4<u32>", "ris_light_data"),
			texture(litSlotNeighborOffsets, renderer.FormatRG32Float, "neighbor_offsets"),
			buffer(litSlotDirectReservoirs, rw, "vec4<u32>", "di_reservoirs"),
			buffer(litSlotGIReservoirs, rw, "vec4<u32>", "gi_reservoirs"),
			buffer(litSlotSecondarySurfaces, rw, "vec4<u32>", "secondary_surfaces"),
			texture(litSlotDepth, r32, "depth"),
			texture(litSlotPrevDepth, r32, "prev_depth"),
			texture(litSlotNormals, rgba16, "normals"),
			texture(litSlotPrevNormals, rgba16, "prev_normals"),
			texture(litSlotAlbedo, rgba8, "diffuse_albedo"),
			texture(litSlotPrevAlbedo, rgba8, "prev_diffuse_albedo"),
			texture(litSlotSpecular, rgba8, "specular_rough"),
			texture(litSlotPrevSpecular, rgba8, "prev_specular_rough"),
			texture(litSlotMotion, rgba16, "motion_vectors"),
			texture(litSlotEnvironment, rgba32, "environment"),
			texture(litSlotEnvironmentPDF, r32, "environment_pdf"),
			texture(litSlotLocalPDF, r32, "local_light_pdf"),
			storageTexture(litSlotDiffuse, rgba16, "diffuse_lighting"),
			storageTexture(litSlotSpecularLighting, rgba16, "specular_lighting"),
			storageTexture(litSlotLuminance, rgba16, "restir_luminance"),
			texture(litSlotPrevLuminance, rgba16, "prev_restir_luminance"),
			storageTexture(litSlotGradients, rgba16, "gradients"),
			rayCountSlot(litSlotRayCounts),
		),
		filter: with(
			texture(filterSlotIn, rgba16, "gradients_in"),
			storageTexture(filterSlotOut, rgba16, "gradients_out"),
		),
		confidence: with(
			texture(confSlotGradients, rgba16, "gradients"),
			storageTexture(confSlotHistory, r32, "confidence_history"),
			texture(confSlotPrevHistory, r32, "prev_confidence_history"),
			storageTexture(confSlotOut, r32, "confidence"),
			texture(confSlotMotion, rgba16, "motion_vectors"),
		),
		composite: with(
			texture(compSlotDepth, r32, "depth"),
			texture(compSlotPrevDepth, r32, "prev_depth"),
			texture(compSlotNormals, rgba16, "normals"),
			texture(compSlotPrevNormals, rgba16, "prev_normals"),
			texture(compSlotAlbedo, rgba8, "diffuse_albedo"),
			texture(compSlotPrevAlbedo, rgba8, "prev_diffuse_albedo"),
			texture(compSlotSpecular, rgba8, "specular_rough"),
			texture(compSlotPrevSpecular, rgba8, "prev_specular_rough"),
			texture(compSlotEmissive, rgba16, "emissive"),
			texture(compSlotDiffuse, rgba16, "diffuse_lighting"),
			texture(compSlotSpecularLighting, rgba16, "specular_lighting"),
			texture(compSlotDenoisedDiffuse, rgba16, "denoised_diffuse"),
			texture(compSlotDenoisedSpecular, rgba16, "denoised_specular"),
			texture(compSlotEnvironment, rgba32, "environment"),
			storageTexture(compSlotOut, rgba16, "hdr_color"),
		),
		glass: with(
			texture(glassSlotDepth, r32, "depth"),
			texture(glassSlotPrevDepth, r32, "prev_depth"),
			texture(glassSlotNormals, rgba16, "normals"),
			texture(glassSlotPrevNormals, rgba16, "prev_normals"),
			texture(glassSlotEnvironment, rgba32, "environment"),
			buffer(glassSlotLightData, ro, "Light", "light_data"),
			headerSlot(glassSlotHeader),
			storageTexture(glassSlotOut, rgba16, "hdr_color"),
			buffer(glassSlotVertices, ro, "f32", "vertices"),
			buffer(glassSlotIndices, ro, "u32", "indices"),
			buffer(glassSlotGeometries, ro, "GeometryInstance", "geometries"),
			rayCountSlot(glassSlotRayCounts),
		),
		resolve: with(
			texture(resolveSlotIn, rgba16, "color_in"),
			texture(resolveSlotMotion, rgba16, "motion_vectors"),
			storageTexture(resolveSlotHistory, rgba32, "history"),
			texture(resolveSlotPrevHistory, rgba32, "prev_history"),
			storageTexture(resolveSlotOut, rgba16, "color_out"),
		),
		post: post,
		visualize: append(append(renderer.BindingLayout{}, post...),
			texture(visSlotConfidence, r32, "confidence"),
			texture(visSlotGradients, rgba16, "gradients"),
			texture(visSlotDiffuse, rgba16, "diffuse_lighting"),
			buffer(visSlotDirectReservoirs, ro, "vec4<u32>", "di_reservoirs"),
			buffer(visSlotGIReservoirs, ro, "vec4<u32>", "gi_reservoirs"),
		),
	}
}

// dispatchGradients covers one thread per gradient block of the lit columns: the checkerboard
// halving is applied before the block division.
func dispatchGradients(checkerboard func() bool) pipeline.DispatchSize {
	downscaled := pipeline.DispatchDownscaled(gradientBlock)
	return func(in pipeline.DispatchInput) [3]uint32 {
		if checkerboard() {
			in.Extent.Width = common.DivCeil(in.Extent.Width, 2)
		}
		return downscaled(in)
	}
}

// passes holds every executor the orchestrator may run. Each runs at most once per frame.
type passes struct {
	layouts layouts

	environmentMap   pass.Executor
	meshProcessing   pass.Executor
	localLightPDF    pass.Executor
	presampleLights  pass.Executor
	presampleEnvMap  pass.Executor
	regirBuild       pass.Executor
	gbufferRaster    pass.Executor
	gbufferRayTraced pass.Executor
	initialSamples   pass.Executor
	temporal         pass.Executor
	spatial          pass.Executor
	shadePrimary     pass.Executor
	fused            pass.Executor
	gradients        pass.Executor
	filterGradients  []pass.Executor
	confidence       pass.Executor
	brdfRays         pass.Executor
	shadeSecondary   pass.Executor
	giTemporal       pass.Executor
	giSpatial        pass.Executor
	giFused          pass.Executor
	giFinalShading   pass.Executor
	composite        pass.Executor
	glass            pass.Executor
	accumulate       pass.Executor
	taa              pass.Executor
	tonemap          pass.Executor
	bloom            pass.Executor
	visualize        pass.Executor
}

// passSpec is the static description of one executor.
type passSpec struct {
	target   *pass.Executor
	name     string
	shader   string
	layout   renderer.BindingLayout
	section  profiler.Section
	rays     bool
	dispatch pipeline.DispatchSize
}

func newPasses(constants pass.ConstantBuffer, checkerboard func() bool) (*passes, error) {
	p := &passes{layouts: newLayouts(constants)}
	l := p.layouts
	lit := pipeline.DispatchCheckerboard(checkerboard)

	specs := []passSpec{
		{&p.environmentMap, "Environment Map", "light/environment_map.wgsl", l.environment, profiler.SectionEnvironmentMap, false, nil},
		{&p.meshProcessing, "Mesh Processing", "light/prepare_lights.wgsl", l.preparation, profiler.SectionMeshProcessing, false, pipeline.DispatchLinear},
		{&p.localLightPDF, "Local Light PDF", "light/local_light_pdf.wgsl", l.pdf, profiler.SectionLocalLightPDFMap, false, nil},
		{&p.presampleLights, "Presample Lights", "light/presample_lights.wgsl", l.presampling, profiler.SectionPresampleLights, false, nil},
		{&p.presampleEnvMap, "Presample Environment Map", "light/presample_environment.wgsl", l.presampling, profiler.SectionPresampleEnvironmentMap, false, nil},
		{&p.regirBuild, "ReGIR Build", "light/regir_build.wgsl", l.presampling, profiler.SectionReGIRBuild, false, pipeline.DispatchLinear},
		{&p.gbufferRaster, "G-Buffer Fill (Raster)", "gbuffer/raster.wgsl", l.gbuffer, profiler.SectionGBufferFill, false, nil},
		{&p.gbufferRayTraced, "G-Buffer Fill (Ray Traced)", "gbuffer/raytraced.wgsl", l.gbuffer, profiler.SectionGBufferFill, true, nil},
		{&p.initialSamples, "Initial Samples", "di/initial_samples.wgsl", l.lighting, profiler.SectionInitialSamples, false, lit},
		{&p.temporal, "Temporal Resampling", "di/temporal.wgsl", l.lighting, profiler.SectionTemporalResampling, true, lit},
		{&p.spatial, "Spatial Resampling", "di/spatial.wgsl", l.lighting, profiler.SectionSpatialResampling, true, lit},
		{&p.shadePrimary, "Shade Primary Surfaces", "di/shade.wgsl", l.lighting, profiler.SectionShadePrimarySurfaces, true, lit},
		{&p.fused, "Fused Resampling", "di/fused.wgsl", l.lighting, profiler.SectionShadePrimarySurfaces, true, lit},
		{&p.gradients, "Gradients", "di/gradients.wgsl", l.lighting, profiler.SectionGradients, true, dispatchGradients(checkerboard)},
		{&p.confidence, "Confidence", "di/confidence.wgsl", l.confidence, profiler.SectionGradients, false, nil},
		{&p.brdfRays, "BRDF Rays", "gi/brdf_rays.wgsl", l.lighting, profiler.SectionBRDFRays, true, lit},
		{&p.shadeSecondary, "Shade Secondary Surfaces", "gi/shade_secondary.wgsl", l.lighting, profiler.SectionShadeSecondarySurfaces, true, lit},
		{&p.giTemporal, "GI Temporal Resampling", "gi/temporal.wgsl", l.lighting, profiler.SectionGITemporalResampling, true, lit},
		{&p.giSpatial, "GI Spatial Resampling", "gi/spatial.wgsl", l.lighting, profiler.SectionGISpatialResampling, true, lit},
		{&p.giFused, "GI Fused Resampling", "gi/fused.wgsl", l.lighting, profiler.SectionGIFusedResampling, true, lit},
		{&p.giFinalShading, "GI Final Shading", "gi/final_shading.wgsl", l.lighting, profiler.SectionGIFinalShading, false, lit},
		{&p.composite, "Composite", "post/composite.wgsl", l.composite, profiler.NoSection, false, nil},
		{&p.glass, "Glass", "post/glass.wgsl", l.glass, profiler.SectionGlass, true, nil},
		{&p.accumulate, "Accumulation", "post/accumulate.wgsl", l.resolve, profiler.NoSection, false, nil},
		{&p.taa, "TAA", "post/taa.wgsl", l.resolve, profiler.SectionAntiAliasing, false, nil},
		{&p.tonemap, "Tone Mapping", "post/tonemap.wgsl", l.post, profiler.NoSection, false, nil},
		{&p.bloom, "Bloom", "post/bloom.wgsl", l.post, profiler.NoSection, false, nil},
		{&p.visualize, "Visualization", "post/visualize.wgsl", l.visualize, profiler.NoSection, false, nil},
	}

	for _, spec := range specs {
		e, err := newPass(spec, constants)
		if err != nil {
			return nil, err
		}
		*spec.target = e
	}

	p.filterGradients = make([]pass.Executor, gradientFilterPasses)
	for i := range p.filterGradients {
		e, err := newPass(passSpec{
			name:    fmt.Sprintf("Filter Gradients %d", i),
			shader:  "di/filter_gradients.wgsl",
			layout:  l.filter,
			section: profiler.SectionGradients,
		}, constants)
		if err != nil {
			return nil, err
		}
		p.filterGradients[i] = e
	}
	return p, nil
}

func newPass(spec passSpec, constants pass.ConstantBuffer) (pass.Executor, error) {
	opts := []pipeline.DescriptorBuilderOption{pipeline.WithLayout(spec.layout...)}
	if spec.dispatch != nil {
		opts = append(opts, pipeline.WithDispatch(spec.dispatch))
	}
	desc := pipeline.NewDescriptor(spec.name, spec.shader, opts...)

	execOpts := []pass.ExecutorBuilderOption{pass.WithSection(spec.section)}
	if spec.rays {
		execOpts = append(execOpts, pass.WithRayCount())
	}
	return pass.NewExecutor(desc, constants, execOpts...)
}

// all returns every executor in declaration order.
func (p *passes) all() []pass.Executor {
	out := []pass.Executor{
		p.environmentMap, p.meshProcessing, p.localLightPDF, p.presampleLights, p.presampleEnvMap,
		p.regirBuild, p.gbufferRaster, p.gbufferRayTraced, p.initialSamples, p.temporal, p.spatial,
		p.shadePrimary, p.fused, p.gradients, p.confidence, p.brdfRays, p.shadeSecondary,
		p.giTemporal, p.giSpatial, p.giFused, p.giFinalShading, p.composite, p.glass,
		p.accumulate, p.taa, p.tonemap, p.bloom, p.visualize,
	}
	return append(out, p.filterGradients...)
}
