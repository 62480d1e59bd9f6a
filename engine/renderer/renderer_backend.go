package renderer

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Carmen-Shannon/oxy-restir/common"
)

// RendererBackendType identifies the GPU backend implementation used by the renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based backend.
	BackendTypeWGPU RendererBackendType = iota

	// BackendTypeRecording selects the headless in-memory backend. It executes nothing on a GPU and
	// records every call, which makes it the backend of choice for tests and headless runs.
	BackendTypeRecording
)

var (
	// ErrDeviceLost is returned once the GPU device has been removed or has run out of memory.
	// It is fatal: the frame loop tears down and exits.
	ErrDeviceLost = errors.New("gpu device lost")

	// ErrInvalidHandle is returned when a call references a handle the backend does not own.
	ErrInvalidHandle = errors.New("invalid gpu handle")

	// ErrNoFrame is returned by recording calls made outside BeginFrame/EndFrame.
	ErrNoFrame = errors.New("no frame is being recorded")
)

// ResourceHandle identifies a buffer or texture owned by the backend. Zero is never a valid handle.
type ResourceHandle uint32

// PipelineHandle identifies a compute pipeline owned by the backend.
type PipelineHandle uint32

// BindingSetHandle identifies a binding set (bind group) owned by the backend.
type BindingSetHandle uint32

// TimerQueryHandle identifies one timer query slot.
type TimerQueryHandle uint32

// ResourceKind distinguishes buffers from textures.
type ResourceKind int

const (
	ResourceKindBuffer ResourceKind = iota
	ResourceKindTexture
)

// TextureFormat is the backend-neutral subset of texel formats the passes use.
type TextureFormat int

const (
	FormatRGBA16Float TextureFormat = iota
	FormatRGBA32Float
	FormatR32Float
	FormatRG32Float
	FormatR32Uint
	FormatRGBA32Uint
	FormatRGBA8Unorm
)

// BytesPerTexel returns the texel size of the format.
func (f TextureFormat) BytesPerTexel() uint64 {
	switch f {
	case FormatRGBA16Float, FormatRG32Float:
		return 8
	case FormatRGBA32Float, FormatRGBA32Uint:
		return 16
	default:
		return 4
	}
}

// ResourceUsage is a bit set of the ways a resource is used.
type ResourceUsage uint32

const (
	UsageStorage ResourceUsage = 1 << iota
	UsageUniform
	UsageSampled
	UsageCopySrc
	UsageCopyDst
	// UsageReadback marks a CPU-mappable buffer used as a copy destination for GPU readback.
	UsageReadback
)

// ResourceDesc describes a buffer (Size) or a 2D texture (Extent, Format) to create.
type ResourceDesc struct {
	Label  string
	Kind   ResourceKind
	Size   uint64
	Extent common.Extent2D
	Format TextureFormat
	Usage  ResourceUsage
}

// ByteSize returns the memory footprint of the described resource.
func (d ResourceDesc) ByteSize() uint64 {
	if d.Kind == ResourceKindBuffer {
		return d.Size
	}
	return uint64(d.Extent.Width) * uint64(d.Extent.Height) * d.Format.BytesPerTexel()
}

// BindingType is the shader-visible type of one binding slot.
type BindingType int

const (
	BindingUniform BindingType = iota
	// BindingStorageRead is a read-only storage buffer (SRV).
	BindingStorageRead
	// BindingStorageReadWrite is a read-write storage buffer (UAV).
	BindingStorageReadWrite
	// BindingTexture is a sampled texture (SRV).
	BindingTexture
	// BindingStorageTexture is a write-only storage texture (UAV).
	BindingStorageTexture
)

// Writable reports whether a dispatch can write through a slot of this type.
func (t BindingType) Writable() bool {
	return t == BindingStorageReadWrite || t == BindingStorageTexture
}

// BindingSlot declares one slot of a binding layout.
type BindingSlot struct {
	Slot   uint32
	Type   BindingType
	Format TextureFormat
	// Name is the variable name the shader pre-processor declares for this slot.
	Name string
	// Element is the WGSL type of a buffer slot: the struct of a uniform, the array element of a
	// storage buffer. Empty means PassConstants for uniforms and u32 for storage buffers.
	Element string
}

// BindingLayout is the shape of a binding set. Layouts with identical slots are interchangeable.
type BindingLayout []BindingSlot

// Key returns a canonical string for the layout, used to deduplicate backend layout objects.
func (l BindingLayout) Key() string {
	slots := make([]BindingSlot, len(l))
	copy(slots, l)
	sort.Slice(slots, func(i, j int) bool { return slots[i].Slot < slots[j].Slot })
	var sb strings.Builder
	for _, s := range slots {
		fmt.Fprintf(&sb, "%d:%d:%d;", s.Slot, s.Type, s.Format)
	}
	return sb.String()
}

// Slot returns the declaration of slot, or false if the layout has no such slot.
func (l BindingLayout) Slot(slot uint32) (BindingSlot, bool) {
	for _, s := range l {
		if s.Slot == slot {
			return s, true
		}
	}
	return BindingSlot{}, false
}

// Binding binds a resource to a slot of a binding set. Buffers may be bound as a byte range;
// a zero Size binds the whole buffer.
type Binding struct {
	Slot     uint32
	Resource ResourceHandle
	Offset   uint64
	Size     uint64
}

// ComputePipelineDesc describes a compute pipeline to create.
type ComputePipelineDesc struct {
	Label      string
	Source     string
	EntryPoint string
	Layout     BindingLayout
}

// Backend is the narrow GPU contract the frame core consumes. Everything API-specific (device
// creation, command encoding, synchronization primitives) lives behind it. Handles returned by a
// Backend are owned by it and stay valid until released.
type Backend interface {
	// Name returns a human readable adapter name for reports.
	//
	// Returns:
	//   - string: the adapter or backend name
	Name() string

	// CreateResource allocates a buffer or texture.
	//
	// Parameters:
	//   - desc: the resource description
	//
	// Returns:
	//   - ResourceHandle: the new resource
	//   - error: an allocation error, ErrDeviceLost when the device is gone
	CreateResource(desc ResourceDesc) (ResourceHandle, error)

	// CreateComputePipeline compiles a compute pipeline for the given source and binding layout.
	//
	// Parameters:
	//   - desc: the pipeline description
	//
	// Returns:
	//   - PipelineHandle: the new pipeline
	//   - error: a compilation error
	CreateComputePipeline(desc ComputePipelineDesc) (PipelineHandle, error)

	// CreateBindingSet builds an immutable binding set for layout from bindings.
	//
	// Parameters:
	//   - label: a debug label
	//   - layout: the binding layout the set must match
	//   - bindings: the resource bound to every slot of the layout
	//
	// Returns:
	//   - BindingSetHandle: the new binding set
	//   - error: ErrInvalidHandle if a binding references an unknown resource
	CreateBindingSet(label string, layout BindingLayout, bindings []Binding) (BindingSetHandle, error)

	// WriteResource uploads data into a buffer at offset.
	//
	// Parameters:
	//   - h: the destination buffer
	//   - offset: the byte offset into the buffer
	//   - data: the bytes to write
	//
	// Returns:
	//   - error: ErrInvalidHandle for unknown or non-buffer handles
	WriteResource(h ResourceHandle, offset uint64, data []byte) error

	// WriteTexture uploads tightly packed texel data covering the whole texture.
	//
	// Parameters:
	//   - h: the destination texture
	//   - data: the texel bytes
	//
	// Returns:
	//   - error: ErrInvalidHandle for unknown or non-texture handles
	WriteTexture(h ResourceHandle, data []byte) error

	// ClearResource records a zero fill of a buffer or texture into the current frame.
	ClearResource(h ResourceHandle) error

	// CopyResource records a whole-buffer copy from src to dst into the current frame.
	CopyResource(src, dst ResourceHandle) error

	// ReadResource maps a readback buffer and returns a copy of its contents. It only sees data from
	// frames whose submission has completed.
	//
	// Parameters:
	//   - h: the readback buffer
	//
	// Returns:
	//   - []byte: a copy of the buffer contents
	//   - error: a mapping error
	ReadResource(h ResourceHandle) ([]byte, error)

	// Dispatch records one compute dispatch into the current frame.
	//
	// Parameters:
	//   - p: the pipeline to run
	//   - bs: the binding set to bind at group 0
	//   - groups: the workgroup counts in x, y and z
	//
	// Returns:
	//   - error: ErrNoFrame outside BeginFrame/EndFrame, ErrInvalidHandle for unknown handles
	Dispatch(p PipelineHandle, bs BindingSetHandle, groups [3]uint32) error

	// Barrier records an execution and memory barrier on a resource so the next dispatch observes
	// every write made to it so far.
	//
	// Parameters:
	//   - h: the resource to synchronize
	Barrier(h ResourceHandle)

	// BeginMarker opens a named debug region in the command stream.
	BeginMarker(name string)

	// EndMarker closes the innermost debug region.
	EndMarker()

	// CreateTimerQueries allocates count timer query slots.
	CreateTimerQueries(count int) ([]TimerQueryHandle, error)

	// BeginTimer starts timing into q.
	BeginTimer(q TimerQueryHandle)

	// EndTimer stops timing into q.
	EndTimer(q TimerQueryHandle)

	// ReadTimer returns the last resolved duration of q, or false if it never completed.
	ReadTimer(q TimerQueryHandle) (time.Duration, bool)

	// BeginFrame opens the frame's command recording.
	//
	// Returns:
	//   - error: ErrDeviceLost when the device is gone
	BeginFrame() error

	// EndFrame closes and submits the frame's command recording.
	//
	// Returns:
	//   - error: a submission error, ErrDeviceLost when the device is gone
	EndFrame() error

	// WaitForIdle blocks until every submitted frame has completed on the GPU.
	WaitForIdle()

	ReleaseResource(h ResourceHandle)
	ReleasePipeline(h PipelineHandle)
	ReleaseBindingSet(h BindingSetHandle)

	// DeviceLost reports whether the device was removed.
	DeviceLost() bool

	// Close releases every object the backend still owns.
	Close()
}

// Presenter is implemented by backends that can show a texture on a window surface.
type Presenter interface {
	// Present blits the texture to the surface and presents it.
	//
	// Parameters:
	//   - h: the texture to show
	//
	// Returns:
	//   - error: a surface acquisition or submission error
	Present(h ResourceHandle) error

	// ConfigureSurface resizes the presentation surface.
	ConfigureSurface(width, height int)
}
