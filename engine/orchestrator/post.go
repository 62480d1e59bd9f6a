package orchestrator

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/denoiser"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/resource_set"
	"github.com/Carmen-Shannon/oxy-restir/engine/settings"
)

// postStage is one output-resolution stage of the post chain.
type postStage struct {
	exec pass.Executor
	set  resource_set.ResourceSet
	out  renderer.ResourceHandle
}

// postChain is the post-processing order resolved in Setup. Stages after the resolve ping-pong
// between the two post targets.
type postChain struct {
	glass bool
	// resolve is the accumulation or TAA pass, nil when antialiasing is off or upscaled.
	resolve    pass.Executor
	resolveSet resource_set.ResourceSet
	upscale    bool
	stages     []postStage
	output     renderer.ResourceHandle
}

// buildPostChain resolves the stage order and the resource set of each stage for the frame:
// composite, glass, resolve or upscale, tone mapping, bloom, visualization.
func (o *orchestrator) buildPostChain(snap settings.Snapshot) error {
	p := o.passes
	t := o.targets
	chain := postChain{glass: snap.Post.Transparent}
	current := t.hdrColor

	resolve := func(name string, exec pass.Executor, history pair) error {
		set, err := o.buildSet(setSpec{
			name:   name,
			layout: p.layouts.resolve,
			bindings: []renderer.Binding{
				bind(resolveSlotIn, current),
				bind(resolveSlotMotion, t.motion),
				bind(resolveSlotOut, t.resolved),
			},
			pairs: []resource_set.Pair{pairOf(resolveSlotHistory, resolveSlotPrevHistory, history)},
		})
		if err != nil {
			return err
		}
		chain.resolve, chain.resolveSet = exec, set
		current = t.resolved
		return nil
	}
	switch o.effectiveAA {
	case settings.AAAccumulation:
		if err := resolve("Accumulation", p.accumulate, t.accumulated); err != nil {
			return err
		}
	case settings.AATAA:
		if err := resolve("TAA", p.taa, t.taaFeedback); err != nil {
			return err
		}
	case settings.AADLSS:
		chain.upscale = true
		current = t.resolved
	}

	targets := [2]renderer.ResourceHandle{t.postA, t.postB}
	stage := func(name string, exec pass.Executor, layout renderer.BindingLayout, extra ...renderer.Binding) error {
		out := targets[len(chain.stages)&1]
		set, err := o.buildSet(setSpec{
			name:     name,
			layout:   layout,
			bindings: append([]renderer.Binding{bind(postSlotIn, current), bind(postSlotOut, out)}, extra...),
		})
		if err != nil {
			return err
		}
		chain.stages = append(chain.stages, postStage{exec: exec, set: set, out: out})
		current = out
		return nil
	}
	if snap.Post.Tonemapping {
		if err := stage("Tone Mapping", p.tonemap, p.layouts.post); err != nil {
			return err
		}
	}
	if snap.Post.Bloom {
		if err := stage("Bloom", p.bloom, p.layouts.post); err != nil {
			return err
		}
	}
	if snap.Post.Visualization != settings.VisualizationNone {
		err := stage("Visualization", p.visualize, p.layouts.visualize,
			bind(visSlotConfidence, t.confidence),
			bind(visSlotGradients, t.gradients),
			bind(visSlotDiffuse, t.diffuseLighting),
			bind(visSlotDirectReservoirs, t.directReservoirs),
			bind(visSlotGIReservoirs, t.giReservoirs),
		)
		if err != nil {
			return err
		}
	}

	chain.output = current
	o.post = chain
	return nil
}

// postProcess records the post chain and publishes its last written texture as the output.
func (o *orchestrator) postProcess() error {
	p := o.passes
	chain := o.post
	t := o.targets

	if err := p.composite.Execute(o.seq, o.set("Composite"), o.passConstants(30), o.renderInput()); err != nil {
		return err
	}
	o.seq.Barrier(t.hdrColor)

	if chain.glass {
		if err := p.glass.Execute(o.seq, o.set("Glass"), o.passConstants(31), o.renderInput()); err != nil {
			return err
		}
		o.seq.Barrier(t.hdrColor)
	}

	switch {
	case chain.resolve != nil:
		c := o.passConstants(32)
		if o.effectiveAA == settings.AAAccumulation {
			c.Flags |= pass.FlagAccumulate
			c.Params[0] = float32(o.accumulatedFrames)
		}
		if err := chain.resolve.Execute(o.seq, chain.resolveSet, c, pipeline.DispatchInput{Extent: o.outputExtent}); err != nil {
			return err
		}
		o.seq.Barrier(t.resolved, chain.resolveSet.Current(0))
		if o.effectiveAA == settings.AAAccumulation {
			o.accumulate()
		}
	case chain.upscale:
		err := o.upscaler.Upscale(o.seq, denoiser.UpscaleInputs{
			RenderExtent: o.renderExtent,
			OutputExtent: o.outputExtent,
			Color:        t.hdrColor,
			Depth:        o.set("G-Buffer").Current(0),
			Motion:       t.motion,
			Output:       t.resolved,
			Frame:        o.frame,
		})
		if err != nil {
			return fmt.Errorf("upscale: %w", err)
		}
		o.seq.Barrier(t.resolved)
	}

	for i, s := range chain.stages {
		c := o.passConstants(33 + uint32(i))
		c.Params[0] = float32(o.snap.Post.Visualization)
		if err := s.exec.Execute(o.seq, s.set, c, pipeline.DispatchInput{Extent: o.outputExtent}); err != nil {
			return err
		}
		o.seq.Barrier(s.out)
	}

	o.output = chain.output
	return nil
}

// accumulate counts the frames averaged into the accumulation history, up to the limit. A zero
// limit never stops.
func (o *orchestrator) accumulate() {
	limit := o.snap.Post.AccumulationLimit
	if limit == 0 || o.accumulatedFrames < limit {
		o.accumulatedFrames++
	}
}
