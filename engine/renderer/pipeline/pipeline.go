package pipeline

import (
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/shader"
)

// Descriptor is the static configuration of one compute kernel: which shader, which binding
// layout, and how its dispatch is sized. Descriptors never change after construction; a shader
// reload rebuilds the pipeline from the same descriptor.
type Descriptor struct {
	// Key is the unique identifier for the pass, used for caching, markers and lookups.
	Key        string
	ShaderPath string
	// EntryPoint overrides the shader's first @compute function when set.
	EntryPoint string
	Layout     renderer.BindingLayout
	Dispatch   DispatchSize
}

// pipeline is the implementation of the Pipeline interface.
type pipeline struct {
	desc   Descriptor
	handle renderer.PipelineHandle
	shader shader.Shader
}

// Pipeline is a compiled compute pipeline together with the descriptor it was built from.
type Pipeline interface {
	// PipelineKey returns the unique key associated with this pipeline, used for caching and lookups.
	//
	// Returns:
	//   - string: the unique key for this pipeline
	PipelineKey() string

	// Handle returns the backend pipeline object.
	//
	// Returns:
	//   - renderer.PipelineHandle: the backend handle
	Handle() renderer.PipelineHandle

	// Descriptor returns the descriptor the pipeline was built from.
	//
	// Returns:
	//   - Descriptor: the descriptor
	Descriptor() Descriptor

	// Shader retrieves the processed shader the pipeline was compiled from.
	//
	// Returns:
	//   - shader.Shader: the shader
	Shader() shader.Shader

	// WorkgroupSize returns the kernel's workgroup size.
	//
	// Returns:
	//   - [3]uint32: the workgroup size as [x, y, z]
	WorkgroupSize() [3]uint32

	// DispatchSize sizes a dispatch of this pipeline. Descriptors without a formula dispatch full screen.
	//
	// Parameters:
	//   - in: the view extent and element count; Group is filled in from the shader
	//
	// Returns:
	//   - [3]uint32: the workgroup counts
	DispatchSize(in DispatchInput) [3]uint32
}

var _ Pipeline = &pipeline{}

func (p *pipeline) PipelineKey() string {
	return p.desc.Key
}

func (p *pipeline) Handle() renderer.PipelineHandle {
	return p.handle
}

func (p *pipeline) Descriptor() Descriptor {
	return p.desc
}

func (p *pipeline) Shader() shader.Shader {
	return p.shader
}

func (p *pipeline) WorkgroupSize() [3]uint32 {
	return p.shader.WorkgroupSize()
}

func (p *pipeline) DispatchSize(in DispatchInput) [3]uint32 {
	in.Group = p.WorkgroupSize()
	if p.desc.Dispatch == nil {
		return DispatchFullScreen(in)
	}
	return p.desc.Dispatch(in)
}
