package orchestrator

import (
	"github.com/Carmen-Shannon/oxy-restir/common"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/resource_set"
	"github.com/Carmen-Shannon/oxy-restir/engine/settings"
)

// seedStride decorrelates the random seeds of passes within a frame.
const seedStride uint32 = 0x9e3779b9

// passConstants returns the constants every pass of the frame shares. salt separates the
// random sequences of passes that would otherwise draw the same numbers.
func (o *orchestrator) passConstants(salt uint32) pass.GPUPassConstants {
	c := pass.GPUPassConstants{
		FrameIndex: uint32(o.frame),
		Parity:     uint32(resource_set.ParityOf(o.frame)),
		RandomSeed: uint32(o.frame)*seedStride ^ salt,
	}
	if o.snap.Lighting.Checkerboard {
		c.CheckerboardField = 1 + uint32(o.frame&1)
	}
	if o.counts.header.EnvironmentPresent != 0 {
		c.Flags |= pass.FlagEnvironmentMap
	}
	if o.denoising {
		c.Flags |= pass.FlagDenoiser
	}
	if o.snap.Post.Transparent {
		c.Flags |= pass.FlagTransparent
	}
	return c
}

func (o *orchestrator) renderInput() pipeline.DispatchInput {
	return pipeline.DispatchInput{Extent: o.renderExtent}
}

// prepareLights bakes the environment PDF when needed, fills the light buffers from the
// emissive geometry and presamples the RIS tiles.
func (o *orchestrator) prepareLights() error {
	p := o.passes
	if o.environment.bake {
		err := p.environmentMap.Execute(o.seq, o.set("Environment"), o.passConstants(1), pipeline.DispatchInput{Extent: o.environment.extent})
		if err != nil {
			return err
		}
		o.seq.Barrier(o.environment.pdf)
	}

	c := o.passConstants(2)
	c.ElementCount = o.counts.EmissiveTriangles + o.counts.PrimitiveLights
	if err := p.meshProcessing.Execute(o.seq, o.set("Light Preparation"), c, pipeline.DispatchInput{Count: c.ElementCount}); err != nil {
		return err
	}
	o.seq.Barrier(o.lights.data, o.lights.indexMapping, o.lights.geometryToLight)

	mode := o.snap.Lighting.LocalLightSampling
	if mode == settings.LocalLightPowerRIS || mode == settings.LocalLightReGIR {
		c := o.passConstants(3)
		c.ElementCount = o.counts.header.LocalCount
		if err := p.localLightPDF.Execute(o.seq, o.set("Light PDF"), c, pipeline.DispatchInput{Extent: o.lights.pdfExtent}); err != nil {
			return err
		}
		o.seq.Barrier(o.lights.localPDF)
	}

	presampling := o.set("Presampling")
	tiles := pipeline.DispatchInput{Extent: common.Extent2D{Width: o.counts.ris.TileSize, Height: o.counts.ris.TileCount}}
	c = o.passConstants(4)
	c.ElementCount = o.counts.ris.TileSize
	if err := p.presampleLights.Execute(o.seq, presampling, c, tiles); err != nil {
		return err
	}
	if o.counts.header.EnvironmentPresent != 0 {
		c := o.passConstants(5)
		c.ElementCount = o.counts.ris.TileSize
		if err := p.presampleEnvMap.Execute(o.seq, presampling, c, tiles); err != nil {
			return err
		}
	}
	if mode == settings.LocalLightReGIR {
		c := o.passConstants(6)
		c.ElementCount = o.counts.regir
		if err := p.regirBuild.Execute(o.seq, presampling, c, pipeline.DispatchInput{Count: c.ElementCount}); err != nil {
			return err
		}
	}
	o.seq.Barrier(o.lights.ris, o.lights.risLightData)
	return nil
}

// fillGBuffer runs exactly one of the raster and ray traced GBuffer passes.
func (o *orchestrator) fillGBuffer() error {
	exec := o.passes.gbufferRaster
	if o.snap.GBuffer == settings.GBufferRayTraced {
		exec = o.passes.gbufferRayTraced
	}
	set := o.set("G-Buffer")
	if err := exec.Execute(o.seq, set, o.passConstants(7), o.renderInput()); err != nil {
		return err
	}
	o.seq.Barrier(set.Current(0), set.Current(1), set.Current(2), set.Current(3), o.targets.emissive, o.targets.motion)
	return nil
}

// directLighting runs ReSTIR DI: initial samples, then either the fused kernel or the split
// temporal, spatial and shading passes, then the gradients feeding the denoiser.
func (o *orchestrator) directLighting() error {
	if !o.snap.DirectReSTIR() {
		return nil
	}
	p := o.passes
	set := o.set("Lighting")
	idx := o.directIndices
	reservoirs := o.targets.directReservoirs
	mode := o.snap.Lighting.DirectResampling

	c := o.passConstants(8)
	c.OutputSlice = idx.InitialOutput
	if err := p.initialSamples.Execute(o.seq, set, c, o.renderInput()); err != nil {
		return err
	}
	o.seq.Barrier(reservoirs)

	if mode == settings.ResamplingFused {
		c := o.passConstants(9)
		c.InputSlice = idx.TemporalInput
		c.SecondarySlice = idx.InitialOutput
		c.OutputSlice = idx.ShadingInput
		if err := p.fused.Execute(o.seq, set, c, o.renderInput()); err != nil {
			return err
		}
	} else {
		if mode.Temporal() {
			c := o.passConstants(10)
			c.InputSlice = idx.TemporalInput
			c.SecondarySlice = idx.InitialOutput
			c.OutputSlice = idx.TemporalOutput
			if err := p.temporal.Execute(o.seq, set, c, o.renderInput()); err != nil {
				return err
			}
			o.seq.Barrier(reservoirs)
		}
		if mode.Spatial() {
			c := o.passConstants(11)
			c.InputSlice = idx.SpatialInput
			c.OutputSlice = idx.SpatialOutput
			if err := p.spatial.Execute(o.seq, set, c, o.renderInput()); err != nil {
				return err
			}
			o.seq.Barrier(reservoirs)
		}
		c := o.passConstants(12)
		c.InputSlice = idx.ShadingInput
		c.OutputSlice = idx.ShadingInput
		if err := p.shadePrimary.Execute(o.seq, set, c, o.renderInput()); err != nil {
			return err
		}
	}
	o.seq.Barrier(reservoirs, o.targets.diffuseLighting, o.targets.specularLighting, set.Current(4))

	if o.snap.GradientsEnabled() {
		return o.gradients(set)
	}
	return nil
}

// gradients computes the temporal gradients, filters them in place over the ping-pong pair and
// derives the confidence the denoiser reads.
func (o *orchestrator) gradients(lighting resource_set.ResourceSet) error {
	p := o.passes
	t := o.targets

	c := o.passConstants(13)
	c.InputSlice = o.directIndices.TemporalInput
	c.OutputSlice = o.directIndices.ShadingInput
	if err := p.gradients.Execute(o.seq, lighting, c, o.renderInput()); err != nil {
		return err
	}
	o.seq.Barrier(t.gradients)

	filter := o.set("Filter Gradients")
	extent := common.Extent2D{
		Width:  common.DivCeil(o.renderExtent.Width, gradientBlock),
		Height: common.DivCeil(o.renderExtent.Height, gradientBlock),
	}
	for i, exec := range p.filterGradients {
		c := o.passConstants(14 + uint32(i))
		c.Params[0] = float32(uint32(1) << i)
		// iteration 0 reads Gradients, the last iteration writes it
		if err := exec.ExecuteOrder(o.seq, filter, (i+1)&1, c, pipeline.DispatchInput{Extent: extent}); err != nil {
			return err
		}
		o.seq.Barrier(t.gradients, t.gradientsScratch)
	}

	if !o.snap.ConfidenceEnabled() {
		return nil
	}
	set := o.set("Confidence")
	if err := p.confidence.Execute(o.seq, set, o.passConstants(18), o.renderInput()); err != nil {
		return err
	}
	o.seq.Barrier(t.confidence, set.Current(0))
	return nil
}

// indirectLighting traces BRDF rays, shades the secondary surfaces and, with ReSTIR GI,
// resamples them before the final shading.
func (o *orchestrator) indirectLighting() error {
	if !o.snap.BRDFAndIndirect() {
		return nil
	}
	p := o.passes
	set := o.set("Lighting")
	idx := o.giIndices
	reservoirs := o.targets.giReservoirs
	surfaces := o.targets.secondarySurfaces

	if err := p.brdfRays.Execute(o.seq, set, o.passConstants(20), o.renderInput()); err != nil {
		return err
	}
	o.seq.Barrier(surfaces)

	c := o.passConstants(21)
	c.OutputSlice = idx.InitialOutput
	if err := p.shadeSecondary.Execute(o.seq, set, c, o.renderInput()); err != nil {
		return err
	}
	o.seq.Barrier(surfaces, reservoirs, o.targets.diffuseLighting, o.targets.specularLighting)

	if !o.snap.ReSTIRGI() {
		return nil
	}
	mode := o.snap.Lighting.GIResampling
	if mode == settings.ResamplingFused {
		c := o.passConstants(22)
		c.InputSlice = idx.TemporalInput
		c.SecondarySlice = idx.InitialOutput
		c.OutputSlice = idx.ShadingInput
		if err := p.giFused.Execute(o.seq, set, c, o.renderInput()); err != nil {
			return err
		}
		o.seq.Barrier(reservoirs)
	} else {
		if mode.Temporal() {
			c := o.passConstants(23)
			c.InputSlice = idx.TemporalInput
			c.SecondarySlice = idx.InitialOutput
			c.OutputSlice = idx.TemporalOutput
			if err := p.giTemporal.Execute(o.seq, set, c, o.renderInput()); err != nil {
				return err
			}
			o.seq.Barrier(reservoirs)
		}
		if mode.Spatial() {
			c := o.passConstants(24)
			c.InputSlice = idx.SpatialInput
			c.OutputSlice = idx.SpatialOutput
			if err := p.giSpatial.Execute(o.seq, set, c, o.renderInput()); err != nil {
				return err
			}
			o.seq.Barrier(reservoirs)
		}
	}

	c = o.passConstants(25)
	c.InputSlice = idx.ShadingInput
	if err := p.giFinalShading.Execute(o.seq, set, c, o.renderInput()); err != nil {
		return err
	}
	o.seq.Barrier(o.targets.diffuseLighting, o.targets.specularLighting)
	return nil
}

// clearLighting zeroes the lighting targets on frames where no lighting stage wrote them.
func (o *orchestrator) clearLighting() error {
	if o.snap.DirectReSTIR() || o.snap.BRDFAndIndirect() {
		return nil
	}
	if err := o.seq.Clear(o.targets.diffuseLighting); err != nil {
		return err
	}
	return o.seq.Clear(o.targets.specularLighting)
}

// denoise runs the denoiser when it was requested and reports itself available.
func (o *orchestrator) denoise() error {
	if !o.denoising {
		return nil
	}
	if err := o.denoiser.Denoise(o.seq, o.frame); err != nil {
		return err
	}
	o.seq.Barrier(o.targets.denoisedDiffuse, o.targets.denoisedSpecular)
	return nil
}
