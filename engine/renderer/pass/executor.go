package pass

import (
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/Carmen-Shannon/oxy-restir/engine/profiler"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/resource_set"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/shader"
)

// ErrNotPrepared is returned when a pass is executed before its pipeline was resolved.
var ErrNotPrepared = errors.New("pass pipeline not prepared")

// constantsElement is the uniform element type the constant region is bound to.
const constantsElement = "PassConstants"

// sharedElementPrefix starts the element type of a uniform that binds every region.
const sharedElementPrefix = "array<PassRegion"

// RegionDefine is the permutation constant holding the pass's region index.
const RegionDefine = "PASS_REGION"

// executor is the implementation of the Executor interface.
type executor struct {
	name      string
	desc      pipeline.Descriptor
	section   profiler.Section
	countRays bool

	constants     ConstantBuffer
	region        Region
	constantsSlot uint32
	hasConstants  bool
	shared        bool

	pipeline pipeline.Pipeline
}

// Executor runs one compute pass: it writes the pass constants into its region, resolves the
// dispatch size from the pipeline's formula, and records the dispatch through a Sequencer.
// An Executor runs at most once per frame.
type Executor interface {
	// Name returns the debug marker name of the pass.
	Name() string

	// Descriptor returns the pipeline descriptor the pass is built from.
	Descriptor() pipeline.Descriptor

	// Section returns the profiler section the pass is timed under.
	Section() profiler.Section

	// CountsRays reports whether the pass is tagged with its section's ray count slot.
	CountsRays() bool

	// Region returns the pass's constant buffer region.
	Region() Region

	// ConstantsBinding returns the binding of the pass's constant region, or of the whole buffer
	// when the layout declares the shared PassRegion array. False if the layout has neither.
	//
	// Returns:
	//   - renderer.Binding: the range binding
	//   - bool: whether the layout declares a constants slot
	ConstantsBinding() (renderer.Binding, bool)

	// Prepare resolves the pipeline for defines. It builds only inside Setup, when the cache is
	// unsealed; afterwards it returns cached pipelines.
	//
	// Parameters:
	//   - lib: the pipeline library
	//   - defines: the permutation flags
	//
	// Returns:
	//   - error: a build error or cache.ErrSealed
	Prepare(lib pipeline.Library, defines shader.Defines) error

	// Pipeline returns the resolved pipeline, nil before Prepare.
	Pipeline() pipeline.Pipeline

	// Execute writes c and records the dispatch.
	//
	// Parameters:
	//   - seq: the frame's sequencer
	//   - set: the resource set to bind
	//   - c: the pass constants, ViewSize and RayCountIndex are filled in
	//   - in: the dispatch input
	//
	// Returns:
	//   - error: ErrNotPrepared, or a recording error
	Execute(seq Sequencer, set resource_set.ResourceSet, c GPUPassConstants, in pipeline.DispatchInput) error

	// ExecuteOrder is Execute with an explicit binding order, used by ping-pong passes.
	//
	// Parameters:
	//   - seq: the frame's sequencer
	//   - set: the resource set to bind
	//   - order: 0 or 1, or negative for the active order
	//   - c: the pass constants
	//   - in: the dispatch input
	//
	// Returns:
	//   - error: ErrNotPrepared, or a recording error
	ExecuteOrder(seq Sequencer, set resource_set.ResourceSet, order int, c GPUPassConstants, in pipeline.DispatchInput) error
}

var _ Executor = &executor{}

// NewExecutor creates an Executor for desc and assigns it a constant region.
//
// Parameters:
//   - desc: the pipeline descriptor
//   - constants: the frame's constant buffer
//   - options: variadic list of ExecutorBuilderOption functions
//
// Returns:
//   - Executor: the pass
//   - error: ErrConstantsExhausted
func NewExecutor(desc pipeline.Descriptor, constants ConstantBuffer, options ...ExecutorBuilderOption) (Executor, error) {
	e := &executor{
		name:      desc.Key,
		desc:      desc,
		section:   profiler.NoSection,
		constants: constants,
	}
	for _, opt := range options {
		opt(e)
	}

	for _, slot := range desc.Layout {
		if slot.Type != renderer.BindingUniform {
			continue
		}
		if slot.Element == "" || slot.Element == constantsElement || strings.HasPrefix(slot.Element, sharedElementPrefix) {
			e.constantsSlot = slot.Slot
			e.hasConstants = true
			e.shared = strings.HasPrefix(slot.Element, sharedElementPrefix)
			break
		}
	}
	if e.hasConstants {
		r, err := constants.Region(desc.Key)
		if err != nil {
			return nil, err
		}
		e.region = r
	}
	return e, nil
}

func (e *executor) Name() string {
	return e.name
}

func (e *executor) Descriptor() pipeline.Descriptor {
	return e.desc
}

func (e *executor) Section() profiler.Section {
	return e.section
}

func (e *executor) CountsRays() bool {
	return e.countRays
}

func (e *executor) Region() Region {
	return e.region
}

func (e *executor) ConstantsBinding() (renderer.Binding, bool) {
	if !e.hasConstants {
		return renderer.Binding{}, false
	}
	if e.shared {
		return e.constants.SharedBinding(e.constantsSlot), true
	}
	return e.constants.Binding(e.constantsSlot, e.region), true
}

func (e *executor) Prepare(lib pipeline.Library, defines shader.Defines) error {
	d := make(shader.Defines, len(defines)+1)
	maps.Copy(d, defines)
	d[RegionDefine] = e.region.Index
	p, err := lib.Get(e.desc, d)
	if err != nil {
		return fmt.Errorf("pass %s: %w", e.name, err)
	}
	e.pipeline = p
	return nil
}

func (e *executor) Pipeline() pipeline.Pipeline {
	return e.pipeline
}

func (e *executor) Execute(seq Sequencer, set resource_set.ResourceSet, c GPUPassConstants, in pipeline.DispatchInput) error {
	return e.ExecuteOrder(seq, set, -1, c, in)
}

func (e *executor) ExecuteOrder(seq Sequencer, set resource_set.ResourceSet, order int, c GPUPassConstants, in pipeline.DispatchInput) error {
	if e.pipeline == nil {
		return fmt.Errorf("%w: %s", ErrNotPrepared, e.name)
	}

	c.ViewSize = [2]uint32{in.Extent.Width, in.Extent.Height}
	c.RayCountIndex = -1
	if e.countRays {
		c.RayCountIndex = e.section.RayCountIndex()
	}
	if e.hasConstants {
		if err := e.constants.Write(e.region, &c); err != nil {
			return fmt.Errorf("pass %s constants: %w", e.name, err)
		}
	}

	return seq.DispatchOrder(e.name, e.section, e.pipeline, set, order, e.pipeline.DispatchSize(in))
}
