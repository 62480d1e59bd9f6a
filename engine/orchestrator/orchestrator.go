// Package orchestrator sequences the passes of a ReSTIR frame. It owns every pass and resource
// set by name, takes one settings snapshot per frame, confines resource rebuilds to Setup, and
// swaps every temporal resource set exactly once after the frame was recorded.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-restir/common"
	"github.com/Carmen-Shannon/oxy-restir/engine/logger"
	"github.com/Carmen-Shannon/oxy-restir/engine/profiler"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/cache"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/denoiser"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/resource_set"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-restir/engine/scene"
	"github.com/Carmen-Shannon/oxy-restir/engine/settings"
)

var (
	// ErrFrameInFlight is returned when RenderFrame is entered while another call is recording.
	ErrFrameInFlight = errors.New("a frame is already being recorded")

	// ErrParityTorn is returned by RenderFrame when debug assertions find a resource set whose
	// swap count or parity disagrees with the frame counter.
	ErrParityTorn = resource_set.ErrParityTorn
)

// Reservoir slices per buffer.
const (
	directReservoirSlices uint32 = 3
	giReservoirSlices     uint32 = 2
)

// pending collects the requests made between two frames. They are applied in the next Setup.
type pending struct {
	resize        *common.Extent2D
	shaderReload  bool
	samplingReset bool
}

// orchestrator is the implementation of the Orchestrator interface.
type orchestrator struct {
	backend renderer.Backend
	store   settings.Store
	scene   scene.Scene
	shaders shader.Factory

	cache     cache.Cache
	library   pipeline.Library
	constants pass.ConstantBuffer
	ledger    profiler.Ledger
	seq       pass.Sequencer
	passes    *passes

	upscaler          denoiser.Upscaler
	denoiser          denoiser.Denoiser
	denoiserAvailable func() bool
	// denoising is whether the denoiser runs this frame.
	denoising bool

	debugAssertions bool
	regionCapacity  uint32

	mu       sync.Mutex
	requests pending
	inFlight atomic.Bool

	// frame is the index of the frame being recorded. Every set built in frame F starts at
	// ParityOf(F) and swaps once per completed frame.
	frame uint64
	snap  settings.Snapshot
	// effectiveAA is the antialiasing mode after the upscaler fallback.
	effectiveAA  settings.AntiAliasingMode
	renderExtent common.Extent2D
	outputExtent common.Extent2D

	directIndices *resource_set.ReservoirIndices
	giIndices     *resource_set.ReservoirIndices

	meshCapacity      *cache.Capacity
	triangleCapacity  *cache.Capacity
	primitiveCapacity *cache.Capacity
	geometryCapacity  *cache.Capacity

	sceneVersion uint64

	counts      lightCounts
	lights      lightResources
	environment environmentResources
	targets     renderTargets
	post        postChain

	sets map[string]resource_set.ResourceSet

	accumulatedFrames uint32
	lastSequence      uint64
	sequenceSeen      bool
	output            renderer.ResourceHandle
}

// Orchestrator drives the frame: Setup, light preparation, GBuffer fill, direct and indirect
// lighting, denoising, the post chain and the end-of-frame swap. Recording is single threaded;
// the Request methods may be called from any goroutine and only queue work for the next Setup.
type Orchestrator interface {
	// RenderFrame runs one frame.
	//
	// Parameters:
	//   - ctx: cancels the frame between stages
	//
	// Returns:
	//   - error: ErrFrameInFlight, ErrParityTorn with debug assertions on, a wrapped
	//     renderer.ErrDeviceLost that must end the frame loop, or a setup or recording error
	RenderFrame(ctx context.Context) error

	// RequestResize queues a change of the output resolution.
	//
	// Parameters:
	//   - width: the new output width in pixels
	//   - height: the new output height in pixels
	RequestResize(width, height uint32)

	// RequestShaderReload queues a reload of every kernel. The next Setup waits for the GPU to
	// go idle, starts a new shader epoch and rebakes the environment map.
	RequestShaderReload()

	// RequestImportanceSamplingReset queues a rebuild of every light-dependent resource.
	RequestImportanceSamplingReset()

	// Frame returns the number of completed frames.
	Frame() uint64

	// Output returns the texture the last frame presented, 0 before the first frame.
	Output() renderer.ResourceHandle

	// Ledger returns the profiler ledger.
	Ledger() profiler.Ledger

	// Report formats the profiler ledger for the current render resolution.
	Report() string

	// Release waits for the GPU and frees every object the orchestrator owns.
	Release()
}

var _ Orchestrator = &orchestrator{}

// NewOrchestrator creates an Orchestrator rendering sc with the settings in store.
//
// Parameters:
//   - backend: the GPU backend
//   - store: the settings store, read through one snapshot per frame
//   - sc: the scene, never mutated
//   - shaders: the kernel factory
//   - options: variadic list of OrchestratorBuilderOption functions
//
// Returns:
//   - Orchestrator: the orchestrator
//   - error: an allocation error, or pass.ErrConstantsExhausted
func NewOrchestrator(backend renderer.Backend, store settings.Store, sc scene.Scene, shaders shader.Factory, options ...OrchestratorBuilderOption) (Orchestrator, error) {
	o := &orchestrator{
		backend:           backend,
		store:             store,
		scene:             sc,
		shaders:           shaders,
		cache:             cache.NewCache(),
		upscaler:          denoiser.NewUnavailableUpscaler("DLSS", "no upscaler is linked into this build"),
		denoiserAvailable: func() bool { return true },
		regionCapacity:    pass.DefaultRegionCapacity,
		directIndices:     resource_set.NewReservoirIndices(directReservoirSlices),
		giIndices:         resource_set.NewReservoirIndices(giReservoirSlices),
		meshCapacity:      cache.NewCapacity(cache.MeshQuantum),
		triangleCapacity:  cache.NewCapacity(cache.TriangleQuantum),
		primitiveCapacity: cache.NewCapacity(cache.PrimitiveQuantum),
		geometryCapacity:  cache.NewCapacity(cache.MeshQuantum),
		sets:              make(map[string]resource_set.ResourceSet),
		environment:       environmentResources{dirty: true},
	}
	for _, opt := range options {
		opt(o)
	}

	snap := store.Snapshot()
	o.debugAssertions = o.debugAssertions || snap.Debug.Assertions

	var err error
	o.constants, err = pass.NewConstantBuffer(backend, o.regionCapacity)
	if err != nil {
		return nil, err
	}
	o.ledger, err = profiler.NewLedger(backend, profiler.WithEnabled(snap.Profiler.Enabled))
	if err != nil {
		o.constants.Release()
		return nil, err
	}
	o.library = pipeline.NewLibrary(backend, shaders, o.cache)
	o.seq = pass.NewSequencer(backend, o.ledger)
	o.passes, err = newPasses(o.constants, o.checkerboard)
	if err != nil {
		o.ledger.Release()
		o.constants.Release()
		return nil, err
	}
	logger.Info("orchestrator ready: backend %s, scene %s, %d constant regions", backend.Name(), sc.Name(), o.constants.Capacity())
	return o, nil
}

func (o *orchestrator) RequestResize(width, height uint32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests.resize = &common.Extent2D{Width: width, Height: height}
}

func (o *orchestrator) RequestShaderReload() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests.shaderReload = true
}

func (o *orchestrator) RequestImportanceSamplingReset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests.samplingReset = true
}

// takeRequests returns the queued requests and clears the queue.
func (o *orchestrator) takeRequests() pending {
	o.mu.Lock()
	defer o.mu.Unlock()
	r := o.requests
	o.requests = pending{}
	return r
}

func (o *orchestrator) Frame() uint64 {
	return o.frame
}

func (o *orchestrator) Output() renderer.ResourceHandle {
	return o.output
}

func (o *orchestrator) Ledger() profiler.Ledger {
	return o.ledger
}

func (o *orchestrator) Report() string {
	return o.ledger.Report(o.backend.Name(), o.renderExtent.Width, o.renderExtent.Height)
}

func (o *orchestrator) checkerboard() bool {
	return o.snap.Lighting.Checkerboard
}

func (o *orchestrator) RenderFrame(ctx context.Context) error {
	if !o.inFlight.CompareAndSwap(false, true) {
		return ErrFrameInFlight
	}
	defer o.inFlight.Store(false)

	if err := ctx.Err(); err != nil {
		return err
	}
	if o.backend.DeviceLost() {
		return fmt.Errorf("frame %d: %w", o.frame, renderer.ErrDeviceLost)
	}

	if err := o.setup(); err != nil {
		return fmt.Errorf("frame %d setup: %w", o.frame, err)
	}
	if err := o.record(ctx); err != nil {
		return fmt.Errorf("frame %d: %w", o.frame, err)
	}
	o.nextFrame()
	o.resolve()
	return nil
}

// record opens the backend frame and runs every stage. On error the frame is closed without
// swapping, so the resource sets stay consistent with the frame counter.
func (o *orchestrator) record(ctx context.Context) error {
	if err := o.backend.BeginFrame(); err != nil {
		return err
	}
	o.seq.Reset()

	stages := []struct {
		name string
		run  func() error
	}{
		{"light preparation", o.prepareLights},
		{"gbuffer", o.fillGBuffer},
		{"direct lighting", o.directLighting},
		{"indirect lighting", o.indirectLighting},
		{"lighting clear", o.clearLighting},
		{"denoise", o.denoise},
		{"post", o.postProcess},
	}

	err := o.ledger.BeginFrame()
	if err == nil {
		err = o.uploadLights()
	}
	for _, stage := range stages {
		if err != nil {
			break
		}
		if err = ctx.Err(); err != nil {
			break
		}
		if err = stage.run(); err != nil {
			err = fmt.Errorf("%s: %w", stage.name, err)
		}
	}
	if err == nil {
		err = o.ledger.EndFrame()
	}
	if err != nil {
		if endErr := o.backend.EndFrame(); errors.Is(endErr, renderer.ErrDeviceLost) {
			return errors.Join(err, endErr)
		}
		return err
	}
	return o.backend.EndFrame()
}

// nextFrame swaps every resource set and both reservoir index pairs once.
func (o *orchestrator) nextFrame() {
	for _, s := range o.allSets() {
		s.NextFrame()
	}
	o.directIndices.NextFrame()
	o.giIndices.NextFrame()
	o.frame++
}

// resolve reads back the previous frame's profiler bank and publishes the derived state.
func (o *orchestrator) resolve() {
	if err := o.ledger.ResolvePreviousFrame(); err != nil {
		logger.Warn("profiler readback: %v", err)
	}

	d := o.store.Derived()
	d.Frame = o.frame
	d.AccumulatedFrames = o.accumulatedFrames
	d.EffectiveAntiAliasing = o.effectiveAA
	d.UpscalerAvailable = o.upscaler.IsAvailable()
	d.DenoiserAvailable = o.denoiser != nil && o.denoiser.IsAvailable()
	d.SelectedMaterial = o.ledger.MaterialReadback()
	o.store.SetDerived(d)

	if n := o.snap.Profiler.ReportFrames; n > 0 && o.snap.Profiler.Enabled && o.frame%uint64(n) == 0 {
		logger.Info("profiler report\n%s", o.Report())
	}
}

// allSets returns every live resource set, the denoiser's included.
func (o *orchestrator) allSets() []resource_set.ResourceSet {
	out := make([]resource_set.ResourceSet, 0, len(o.sets)+1)
	for _, s := range o.sets {
		out = append(out, s)
	}
	if o.denoiser != nil {
		out = append(out, o.denoiser.ResourceSets()...)
	}
	return out
}

func (o *orchestrator) Release() {
	o.backend.WaitForIdle()
	o.cache.Unseal()
	if o.denoiser != nil {
		o.denoiser.Release()
		o.denoiser = nil
	}
	// sets are released through the cache
	o.sets = make(map[string]resource_set.ResourceSet)
	o.cache.Release()
	o.scene.Release(o.backend)
	o.ledger.Release()
	o.constants.Release()
	logger.Info("orchestrator released after %d frames", o.frame)
}
