package orchestrator

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-restir/engine/logger"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/cache"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/denoiser"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/resource_set"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-restir/engine/settings"
)

// setPrefix namespaces the resource sets in the cache.
const setPrefix = "sets/"

// setSpec describes one resource set. The cache rebuilds the set whenever any bound handle
// changes.
type setSpec struct {
	name       string
	layout     renderer.BindingLayout
	convention resource_set.Convention
	bindings   []renderer.Binding
	pairs      []resource_set.Pair
}

func bind(slot uint32, h renderer.ResourceHandle) renderer.Binding {
	return renderer.Binding{Slot: slot, Resource: h}
}

func pairOf(current, previous uint32, p pair) resource_set.Pair {
	return resource_set.Pair{CurrentSlot: current, PreviousSlot: previous, A: p.A, B: p.B}
}

// buildSet resolves the set through the cache. A rebuilt set starts at the parity of the frame
// being set up; an unchanged one keeps its swap history.
func (o *orchestrator) buildSet(spec setSpec) (resource_set.ResourceSet, error) {
	regions := o.constants.SharedBinding(regionsSlot)
	opts := []resource_set.ResourceSetBuilderOption{
		resource_set.WithConvention(spec.convention),
		resource_set.WithBindingRange(regions.Slot, regions.Resource, regions.Offset, regions.Size),
	}
	for _, b := range spec.bindings {
		opts = append(opts, resource_set.WithBinding(b.Slot, b.Resource))
	}
	for _, p := range spec.pairs {
		opts = append(opts, resource_set.WithPair(p.CurrentSlot, p.PreviousSlot, p.A, p.B))
	}

	key := cache.Key(spec.layout.Key(), regions.Resource, spec.convention, spec.bindings, spec.pairs)
	set, err := cache.GetOrCreate(o.cache, setPrefix+spec.name, key, func() (resource_set.ResourceSet, func(), error) {
		s := resource_set.NewResourceSet(spec.name, spec.layout, opts...)
		if err := s.CreateBindingSet(o.backend, o.frame); err != nil {
			return nil, nil, err
		}
		logger.Debug("resource set %s built in frame %d (%s)", spec.name, o.frame, s.Convention())
		return s, func() { s.Release(o.backend) }, nil
	})
	if err != nil {
		return nil, fmt.Errorf("resource set %s: %w", spec.name, err)
	}
	o.sets[spec.name] = set
	return set, nil
}

// set returns the resource set built under name in the last Setup.
func (o *orchestrator) set(name string) resource_set.ResourceSet {
	return o.sets[name]
}

// applyRequests handles the queued requests. Each one that replaces objects the GPU may still
// use waits for idle first.
func (o *orchestrator) applyRequests() error {
	r := o.takeRequests()
	if r.resize != nil {
		size := *r.resize
		o.store.Update(func(s *settings.Settings) {
			s.Resolution.Width = size.Width
			s.Resolution.Height = size.Height
		})
		if p, ok := o.backend.(renderer.Presenter); ok {
			o.backend.WaitForIdle()
			p.ConfigureSurface(int(size.Width), int(size.Height))
		}
		logger.Info("resize requested: %s", size)
	}
	if r.shaderReload {
		o.backend.WaitForIdle()
		epoch := o.shaders.Reload()
		if err := o.library.Invalidate(); err != nil {
			return err
		}
		o.environment.dirty = true
		logger.Info("shaders reloaded, epoch %d", epoch)
	}
	if r.samplingReset {
		o.backend.WaitForIdle()
		n, err := o.cache.Invalidate(lightPrefix)
		if err != nil {
			return err
		}
		for _, c := range []*cache.Capacity{o.meshCapacity, o.triangleCapacity, o.primitiveCapacity, o.geometryCapacity} {
			c.Reset()
		}
		logger.Info("importance sampling reset, %d light resources released", n)
	}
	return nil
}

// setup is the only place resources, pipelines and sets are rebuilt. It leaves the cache sealed
// so recording cannot allocate.
func (o *orchestrator) setup() error {
	o.cache.Unseal()
	defer o.cache.Seal()

	if err := o.applyRequests(); err != nil {
		return err
	}

	snap := o.store.Snapshot()
	o.snap = snap
	o.ledger.SetEnabled(snap.Profiler.Enabled)

	o.updateAntiAliasing(snap)
	if !o.sequenceSeen || snap.Sequence != o.lastSequence {
		o.accumulatedFrames = 0
		o.ledger.ResetAccumulation()
		o.lastSequence = snap.Sequence
		o.sequenceSeen = true
	}

	if err := o.ensureDenoiser(snap); err != nil {
		return err
	}
	denoising := o.denoiser != nil && o.denoiser.IsAvailable()
	if snap.DenoiserRequested() && !denoising && (o.frame == 0 || o.denoising) {
		logger.Warn("denoiser %s unavailable, lighting is composited undenoised", snap.Denoiser)
	}
	o.denoising = denoising
	if err := o.ensureEnvironment(snap.Lighting.EnvironmentMap); err != nil {
		return fmt.Errorf("environment map: %w", err)
	}

	if v := o.scene.Version(); v != o.sceneVersion {
		// the upload replaces buffers earlier frames may still read
		o.backend.WaitForIdle()
		o.sceneVersion = v
	}
	o.countLights(snap)
	if _, err := o.scene.Upload(o.backend); err != nil {
		return err
	}
	if err := o.ensureLights(); err != nil {
		return fmt.Errorf("light resources: %w", err)
	}
	if err := o.ensureTargets(o.renderExtent, o.outputExtent); err != nil {
		return fmt.Errorf("render targets: %w", err)
	}
	if err := o.buildSets(snap); err != nil {
		return err
	}
	if err := o.buildPostChain(snap); err != nil {
		return err
	}

	o.directIndices.Update(snap.Lighting.DirectResampling)
	o.giIndices.Update(snap.Lighting.GIResampling)

	defines := permutation(snap)
	for _, e := range o.passes.all() {
		if err := e.Prepare(o.library, defines); err != nil {
			return fmt.Errorf("pass %s: %w", e.Name(), err)
		}
	}

	if o.denoiser != nil {
		in := denoiser.Inputs{
			Extent:      o.renderExtent,
			Diffuse:     o.targets.diffuseLighting,
			Specular:    o.targets.specularLighting,
			DepthA:      o.targets.depth.A,
			DepthB:      o.targets.depth.B,
			NormalsA:    o.targets.normals.A,
			NormalsB:    o.targets.normals.B,
			OutDiffuse:  o.targets.denoisedDiffuse,
			OutSpecular: o.targets.denoisedSpecular,
		}
		if snap.ConfidenceEnabled() {
			in.Confidence = o.targets.confidence
		}
		if err := o.denoiser.Setup(in, o.frame); err != nil {
			return fmt.Errorf("denoiser: %w", err)
		}
	}

	if o.debugAssertions {
		return o.checkParity()
	}
	return nil
}

// updateAntiAliasing resolves the effective antialiasing mode and the two resolutions.
func (o *orchestrator) updateAntiAliasing(snap settings.Snapshot) {
	aa := snap.Post.AntiAliasing
	if aa == settings.AADLSS && !o.upscaler.IsAvailable() {
		aa = settings.AATAA
		if o.effectiveAA != aa {
			logger.Warn("%s unavailable, antialiasing falls back to TAA", o.upscaler.Name())
		}
	}
	o.effectiveAA = aa
	o.ledger.SetAccumulation(aa == settings.AAAccumulation)

	o.outputExtent = snap.OutputExtent()
	o.renderExtent = o.outputExtent
	if aa == settings.AADLSS {
		o.renderExtent = snap.RenderExtent()
	}
}

// ensureDenoiser creates, replaces or drops the denoiser to match the requested method.
func (o *orchestrator) ensureDenoiser(snap settings.Snapshot) error {
	if o.denoiser != nil && o.denoiser.Method() != snap.Denoiser {
		o.backend.WaitForIdle()
		o.denoiser.Release()
		o.denoiser = nil
	}
	if o.denoiser != nil || !snap.DenoiserRequested() {
		return nil
	}
	d, err := denoiser.NewDenoiser(snap.Denoiser, o.backend, o.library, o.constants, o.cache, denoiser.WithAvailability(o.denoiserAvailable))
	if err != nil {
		return fmt.Errorf("denoiser %s: %w", snap.Denoiser, err)
	}
	o.denoiser = d
	return nil
}

// permutation returns the kernel defines for the frame's settings.
func permutation(snap settings.Snapshot) shader.Defines {
	return shader.Defines{
		"CHECKERBOARD":          shader.Flag(snap.Lighting.Checkerboard),
		"LOCAL_LIGHT_MODE":      uint32(snap.Lighting.LocalLightSampling),
		"DIRECT_RESAMPLING":     uint32(snap.Lighting.DirectResampling),
		"GI_RESAMPLING":         uint32(snap.Lighting.GIResampling),
		"RESTIR_DI":             shader.Flag(snap.DirectReSTIR()),
		"BRDF_DIRECT":           shader.Flag(snap.Lighting.Direct == settings.DirectBRDF),
		"INDIRECT":              shader.Flag(snap.Lighting.Indirect != settings.IndirectNone),
		"RESTIR_GI":             shader.Flag(snap.ReSTIRGI()),
		"GRADIENTS":             shader.Flag(snap.GradientsEnabled()),
		"VISUALIZATION":         uint32(snap.Post.Visualization),
		"TILE_SIZE":             snap.Lighting.PresampledTileSize,
		"TILE_COUNT":            snap.Lighting.PresampledTileCount,
		"REGIR_CELLS":           regirCells,
		"REGIR_LIGHTS_PER_CELL": regirLightsPerCell,
		"NEIGHBOR_OFFSETS":      NeighborOffsetCount,
	}
}

// checkParity verifies that every set swapped once per frame since it was built.
func (o *orchestrator) checkParity() error {
	var errs []error
	for _, s := range o.allSets() {
		if err := s.Check(o.frame); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buildSets resolves every resource set of the lighting passes.
func (o *orchestrator) buildSets(snap settings.Snapshot) error {
	l := o.passes.layouts
	t := o.targets
	lights := o.lights
	sc := o.scene.Buffers()
	rays := o.ledger.RayCountBuffer()

	gbufferPairs := func(depth, normals, albedo, specular uint32) []resource_set.Pair {
		return []resource_set.Pair{
			pairOf(depth, depth+1, t.depth),
			pairOf(normals, normals+1, t.normals),
			pairOf(albedo, albedo+1, t.albedo),
			pairOf(specular, specular+1, t.specular),
		}
	}

	specs := []setSpec{
		{
			name:   "Environment",
			layout: l.environment,
			bindings: []renderer.Binding{
				bind(envSlotSource, o.environment.texture),
				bind(envSlotPDF, o.environment.pdf),
			},
		},
		{
			name:   "Light Preparation",
			layout: l.preparation,
			bindings: []renderer.Binding{
				bind(prepSlotVertices, sc.Vertices),
				bind(prepSlotIndices, sc.Indices),
				bind(prepSlotGeometries, sc.Geometries),
				bind(prepSlotPrimitiveLights, lights.primitives),
				bind(prepSlotHeader, lights.header),
				bind(prepSlotLightData, lights.data),
				bind(prepSlotIndexMapping, lights.indexMapping),
				bind(prepSlotGeometryToLight, lights.geometryToLight),
				bind(prepSlotTasks, lights.tasks),
			},
		},
		{
			name:   "Light PDF",
			layout: l.pdf,
			bindings: []renderer.Binding{
				bind(pdfSlotLightData, lights.data),
				bind(pdfSlotHeader, lights.header),
				bind(pdfSlotPDF, lights.localPDF),
			},
		},
		{
			name:   "Presampling",
			layout: l.presampling,
			bindings: []renderer.Binding{
				bind(presampleSlotLightData, lights.data),
				bind(presampleSlotHeader, lights.header),
				bind(presampleSlotLocalPDF, lights.localPDF),
				bind(presampleSlotEnvironmentPDF, o.environment.pdf),
				bind(presampleSlotRIS, lights.ris),
				bind(presampleSlotRISLightData, lights.risLightData),
			},
		},
		{
			name:   "G-Buffer",
			layout: l.gbuffer,
			bindings: []renderer.Binding{
				bind(gbufSlotVertices, sc.Vertices),
				bind(gbufSlotIndices, sc.Indices),
				bind(gbufSlotInstances, sc.Instances),
				bind(gbufSlotGeometries, sc.Geometries),
				bind(gbufSlotEmissive, t.emissive),
				bind(gbufSlotMotion, t.motion),
				bind(gbufSlotRayCounts, rays),
			},
			pairs: gbufferPairs(gbufSlotDepth, gbufSlotNormals, gbufSlotAlbedo, gbufSlotSpecular),
		},
		{
			name:   "Lighting",
			layout: l.lighting,
			bindings: []renderer.Binding{
				bind(litSlotLightData, lights.data),
				bind(litSlotIndexMapping, lights.indexMapping),
				bind(litSlotHeader, lights.header),
				bind(litSlotRIS, lights.ris),
				bind(litSlotRISLightData, lights.risLightData),
				bind(litSlotNeighborOffsets, lights.neighborOffsets),
				bind(litSlotDirectReservoirs, t.directReservoirs),
				bind(litSlotGIReservoirs, t.giReservoirs),
				bind(litSlotSecondarySurfaces, t.secondarySurfaces),
				bind(litSlotMotion, t.motion),
				bind(litSlotEnvironment, o.environment.texture),
				bind(litSlotEnvironmentPDF, o.environment.pdf),
				bind(litSlotLocalPDF, lights.localPDF),
				bind(litSlotDiffuse, t.diffuseLighting),
				bind(litSlotSpecularLighting, t.specularLighting),
				bind(litSlotGradients, t.gradients),
				bind(litSlotRayCounts, rays),
			},
			pairs: append(gbufferPairs(litSlotDepth, litSlotNormals, litSlotAlbedo, litSlotSpecular),
				pairOf(litSlotLuminance, litSlotPrevLuminance, t.luminance)),
		},
		{
			// order 0 writes Gradients, order 1 writes the scratch texture
			name:       "Filter Gradients",
			layout:     l.filter,
			convention: resource_set.ConventionPingPong,
			pairs: []resource_set.Pair{
				pairOf(filterSlotOut, filterSlotIn, pair{A: t.gradients, B: t.gradientsScratch}),
			},
		},
		{
			name:   "Confidence",
			layout: l.confidence,
			bindings: []renderer.Binding{
				bind(confSlotGradients, t.gradients),
				bind(confSlotOut, t.confidence),
				bind(confSlotMotion, t.motion),
			},
			pairs: []resource_set.Pair{pairOf(confSlotHistory, confSlotPrevHistory, t.confidenceHistory)},
		},
		{
			name:   "Composite",
			layout: l.composite,
			bindings: []renderer.Binding{
				bind(compSlotEmissive, t.emissive),
				bind(compSlotDiffuse, t.diffuseLighting),
				bind(compSlotSpecularLighting, t.specularLighting),
				bind(compSlotDenoisedDiffuse, t.denoisedDiffuse),
				bind(compSlotDenoisedSpecular, t.denoisedSpecular),
				bind(compSlotEnvironment, o.environment.texture),
				bind(compSlotOut, t.hdrColor),
			},
			pairs: gbufferPairs(compSlotDepth, compSlotNormals, compSlotAlbedo, compSlotSpecular),
		},
	}
	if snap.Post.Transparent {
		specs = append(specs, setSpec{
			name:   "Glass",
			layout: l.glass,
			bindings: []renderer.Binding{
				bind(glassSlotEnvironment, o.environment.texture),
				bind(glassSlotLightData, lights.data),
				bind(glassSlotHeader, lights.header),
				bind(glassSlotOut, t.hdrColor),
				bind(glassSlotVertices, sc.Vertices),
				bind(glassSlotIndices, sc.Indices),
				bind(glassSlotGeometries, sc.Geometries),
				bind(glassSlotRayCounts, rays),
			},
			pairs: []resource_set.Pair{
				pairOf(glassSlotDepth, glassSlotPrevDepth, t.depth),
				pairOf(glassSlotNormals, glassSlotPrevNormals, t.normals),
			},
		})
	}

	for _, spec := range specs {
		if _, err := o.buildSet(spec); err != nil {
			return err
		}
	}
	return nil
}
