// Package denoiser holds the denoising and upscaling capabilities the frame core consumes. Both
// are injected and report their availability at runtime: a capability that is unavailable is
// skipped or replaced by a fallback, never called.
package denoiser

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-restir/common"
	"github.com/Carmen-Shannon/oxy-restir/engine/logger"
	"github.com/Carmen-Shannon/oxy-restir/engine/profiler"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/cache"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/resource_set"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-restir/engine/settings"
)

var (
	// ErrUnavailable is returned when an unavailable capability is used.
	ErrUnavailable = errors.New("capability unavailable")

	// ErrNoMethod is returned when a denoiser is requested for DenoiserOff.
	ErrNoMethod = errors.New("no denoising method")
)

// Binding slots of the denoiser kernels.
const (
	slotConstants uint32 = iota
	slotDiffuse
	slotSpecular
	slotDepth
	slotPrevDepth
	slotNormals
	slotPrevNormals
	slotConfidence
	slotHistoryIn
	slotHistoryOut
	slotOutDiffuse
	slotOutSpecular
)

// Inputs are the frame resources a denoiser reads and writes. DepthA/DepthB and
// NormalsA/NormalsB are GBuffer pairs, A current at even parity.
type Inputs struct {
	Extent      common.Extent2D
	Diffuse     renderer.ResourceHandle
	Specular    renderer.ResourceHandle
	DepthA      renderer.ResourceHandle
	DepthB      renderer.ResourceHandle
	NormalsA    renderer.ResourceHandle
	NormalsB    renderer.ResourceHandle
	Confidence  renderer.ResourceHandle
	OutDiffuse  renderer.ResourceHandle
	OutSpecular renderer.ResourceHandle
}

// Denoiser filters the noisy lighting into the denoised lighting targets.
type Denoiser interface {
	// Method returns the denoising method.
	Method() settings.DenoiserMode

	// IsAvailable reports whether the denoiser can run. It is checked every frame.
	IsAvailable() bool

	// Setup binds the denoiser to in, building history and binding sets when they changed.
	// Only called while the resource cache is unsealed.
	//
	// Parameters:
	//   - in: the frame resources
	//   - frame: the frame index Setup runs in
	//
	// Returns:
	//   - error: a build error
	Setup(in Inputs, frame uint64) error

	// Denoise records the denoising passes.
	//
	// Parameters:
	//   - seq: the frame's sequencer
	//   - frame: the frame index
	//
	// Returns:
	//   - error: ErrUnavailable, or a recording error
	Denoise(seq pass.Sequencer, frame uint64) error

	// ResourceSets returns the denoiser's temporal resource sets, swapped by the frame core.
	ResourceSets() []resource_set.ResourceSet

	// Release frees the binding sets and the history owned through the cache.
	Release()
}

// computeDenoiser is a single-kernel temporal filter. It keeps a history pair and filters the
// lighting with a depth and normal guided kernel.
type computeDenoiser struct {
	method    settings.DenoiserMode
	backend   renderer.Backend
	library   pipeline.Library
	constants pass.ConstantBuffer
	cache     cache.Cache
	available func() bool

	exec     pass.Executor
	set      resource_set.ResourceSet
	setKey   string
	extent   common.Extent2D
	confFlag uint32
}

var _ Denoiser = &computeDenoiser{}

var layout = renderer.BindingLayout{
	{Slot: slotConstants, Type: renderer.BindingUniform, Name: "constants"},
	{Slot: slotDiffuse, Type: renderer.BindingTexture, Format: renderer.FormatRGBA16Float, Name: "diffuse_in"},
	{Slot: slotSpecular, Type: renderer.BindingTexture, Format: renderer.FormatRGBA16Float, Name: "specular_in"},
	{Slot: slotDepth, Type: renderer.BindingTexture, Format: renderer.FormatR32Float, Name: "depth"},
	{Slot: slotPrevDepth, Type: renderer.BindingTexture, Format: renderer.FormatR32Float, Name: "prev_depth"},
	{Slot: slotNormals, Type: renderer.BindingTexture, Format: renderer.FormatRGBA16Float, Name: "normals"},
	{Slot: slotPrevNormals, Type: renderer.BindingTexture, Format: renderer.FormatRGBA16Float, Name: "prev_normals"},
	{Slot: slotConfidence, Type: renderer.BindingTexture, Format: renderer.FormatR32Float, Name: "confidence"},
	{Slot: slotHistoryIn, Type: renderer.BindingTexture, Format: renderer.FormatRGBA16Float, Name: "history_in"},
	{Slot: slotHistoryOut, Type: renderer.BindingStorageTexture, Format: renderer.FormatRGBA16Float, Name: "history_out"},
	{Slot: slotOutDiffuse, Type: renderer.BindingStorageTexture, Format: renderer.FormatRGBA16Float, Name: "diffuse_out"},
	{Slot: slotOutSpecular, Type: renderer.BindingStorageTexture, Format: renderer.FormatRGBA16Float, Name: "specular_out"},
}

// Layout returns the binding layout of the denoiser kernels.
func Layout() renderer.BindingLayout {
	return layout
}

// ShaderPath returns the kernel of method.
func ShaderPath(method settings.DenoiserMode) string {
	return fmt.Sprintf("denoiser/%s.wgsl", method)
}

// NewDenoiser creates the compute denoiser for method.
//
// Parameters:
//   - method: ReBLUR or ReLAX
//   - backend: the GPU backend
//   - library: the pipeline library
//   - constants: the frame's constant buffer
//   - c: the resource cache that owns the history
//   - options: variadic list of DenoiserBuilderOption functions
//
// Returns:
//   - Denoiser: the denoiser
//   - error: ErrNoMethod for DenoiserOff, or ErrConstantsExhausted
func NewDenoiser(method settings.DenoiserMode, backend renderer.Backend, library pipeline.Library, constants pass.ConstantBuffer, c cache.Cache, options ...DenoiserBuilderOption) (Denoiser, error) {
	if method == settings.DenoiserOff {
		return nil, ErrNoMethod
	}
	d := &computeDenoiser{
		method:    method,
		backend:   backend,
		library:   library,
		constants: constants,
		cache:     c,
		available: func() bool { return true },
	}
	for _, opt := range options {
		opt(d)
	}

	desc := pipeline.NewDescriptor(fmt.Sprintf("Denoiser (%s)", method), ShaderPath(method), pipeline.WithLayout(layout...))
	exec, err := pass.NewExecutor(desc, constants, pass.WithSection(profiler.SectionDenoising))
	if err != nil {
		return nil, err
	}
	d.exec = exec
	logger.Info("denoiser created: %s", method)
	return d, nil
}

func (d *computeDenoiser) Method() settings.DenoiserMode {
	return d.method
}

func (d *computeDenoiser) IsAvailable() bool {
	return d.available()
}

func (d *computeDenoiser) prefix() string {
	return fmt.Sprintf("denoiser/%s/", d.method)
}

func (d *computeDenoiser) Setup(in Inputs, frame uint64) error {
	d.confFlag = shader.Flag(in.Confidence != 0)
	if err := d.exec.Prepare(d.library, shader.Defines{"CONFIDENCE": d.confFlag}); err != nil {
		return err
	}

	history := renderer.ResourceDesc{
		Kind:   renderer.ResourceKindTexture,
		Extent: in.Extent,
		Format: renderer.FormatRGBA16Float,
		Usage:  renderer.UsageStorage | renderer.UsageSampled | renderer.UsageCopyDst,
	}
	historyA, err := cache.Resource(d.cache, d.backend, d.prefix()+"HistoryA", history)
	if err != nil {
		return err
	}
	historyB, err := cache.Resource(d.cache, d.backend, d.prefix()+"HistoryB", history)
	if err != nil {
		return err
	}

	confidence := in.Confidence
	if confidence == 0 {
		confidence, err = cache.Resource(d.cache, d.backend, d.prefix()+"NoConfidence", renderer.ResourceDesc{
			Kind:   renderer.ResourceKindTexture,
			Extent: common.Extent2D{Width: 1, Height: 1},
			Format: renderer.FormatR32Float,
			Usage:  renderer.UsageSampled,
		})
		if err != nil {
			return err
		}
	}

	key := cache.Key(in, confidence, historyA, historyB)
	if d.set != nil && d.set.Built() && key == d.setKey {
		return nil
	}
	if d.set != nil {
		d.set.Release(d.backend)
	}

	cb, _ := d.exec.ConstantsBinding()
	d.set = resource_set.NewResourceSet(d.exec.Name(), layout,
		resource_set.WithBindingRange(cb.Slot, cb.Resource, cb.Offset, cb.Size),
		resource_set.WithBinding(slotDiffuse, in.Diffuse),
		resource_set.WithBinding(slotSpecular, in.Specular),
		resource_set.WithBinding(slotConfidence, confidence),
		resource_set.WithBinding(slotOutDiffuse, in.OutDiffuse),
		resource_set.WithBinding(slotOutSpecular, in.OutSpecular),
		resource_set.WithPair(slotDepth, slotPrevDepth, in.DepthA, in.DepthB),
		resource_set.WithPair(slotNormals, slotPrevNormals, in.NormalsA, in.NormalsB),
		resource_set.WithPair(slotHistoryOut, slotHistoryIn, historyA, historyB),
	)
	if err := d.set.CreateBindingSet(d.backend, frame); err != nil {
		return err
	}
	d.setKey = key
	d.extent = in.Extent
	return nil
}

func (d *computeDenoiser) Denoise(seq pass.Sequencer, frame uint64) error {
	if !d.IsAvailable() {
		return ErrUnavailable
	}
	if d.set == nil {
		return fmt.Errorf("%w: denoiser %s", resource_set.ErrNotBuilt, d.method)
	}
	c := pass.GPUPassConstants{
		FrameIndex: uint32(frame),
		Parity:     uint32(d.set.Parity()),
		Flags:      pass.FlagDenoiser,
	}
	return d.exec.Execute(seq, d.set, c, pipeline.DispatchInput{Extent: d.extent})
}

func (d *computeDenoiser) ResourceSets() []resource_set.ResourceSet {
	if d.set == nil {
		return nil
	}
	return []resource_set.ResourceSet{d.set}
}

func (d *computeDenoiser) Release() {
	if d.set != nil {
		d.set.Release(d.backend)
		d.set = nil
	}
	if _, err := d.cache.Invalidate(d.prefix()); err != nil {
		logger.Warn("denoiser %s: history not released: %v", d.method, err)
	}
}
