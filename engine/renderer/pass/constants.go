package pass

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
)

// RegionSize is the stride of constant buffer regions. It matches the minimum uniform buffer
// offset alignment of every supported adapter.
const RegionSize = 256

// DefaultRegionCapacity is the number of regions a constant buffer holds unless configured.
const DefaultRegionCapacity = 64

// ErrConstantsExhausted is returned when more passes ask for a region than the buffer holds.
var ErrConstantsExhausted = errors.New("constant buffer regions exhausted")

// Region is one pass's slice of the per-frame constant buffer.
type Region struct {
	Index uint32
	Name  string
}

// Offset returns the first byte of the region.
func (r Region) Offset() uint64 {
	return uint64(r.Index) * RegionSize
}

// constantBuffer is the implementation of the ConstantBuffer interface.
type constantBuffer struct {
	backend  renderer.Backend
	handle   renderer.ResourceHandle
	capacity uint32
	regions  map[string]Region
}

// ConstantBuffer is the per-frame uniform buffer shared by every pass. Each pass owns one
// RegionSize-aligned region, bound as a byte range in the pass's binding sets.
type ConstantBuffer interface {
	// Handle returns the underlying buffer.
	Handle() renderer.ResourceHandle

	// Region returns the region assigned to name, assigning the next free one on first use.
	//
	// Parameters:
	//   - name: the owning pass
	//
	// Returns:
	//   - Region: the region
	//   - error: ErrConstantsExhausted when every region is taken
	Region(name string) (Region, error)

	// Binding returns the binding of region r at slot.
	Binding(slot uint32, r Region) renderer.Binding

	// SharedBinding returns the binding of the whole buffer at slot. Passes that share one
	// binding set bind every region and index theirs with the PASS_REGION define.
	SharedBinding(slot uint32) renderer.Binding

	// SharedSlot returns the layout slot SharedBinding is bound to.
	//
	// Parameters:
	//   - slot: the binding slot
	//
	// Returns:
	//   - renderer.BindingSlot: a uniform slot declared as an array of PassRegion
	SharedSlot(slot uint32) renderer.BindingSlot

	// Capacity returns the number of regions.
	Capacity() uint32

	// Write uploads c into region r.
	//
	// Parameters:
	//   - r: the destination region
	//   - c: the constants
	//
	// Returns:
	//   - error: a backend write error
	Write(r Region, c *GPUPassConstants) error

	// Release frees the buffer.
	Release()
}

var _ ConstantBuffer = &constantBuffer{}

// NewConstantBuffer allocates a constant buffer with capacity regions.
//
// Parameters:
//   - backend: the GPU backend
//   - capacity: the number of regions, DefaultRegionCapacity if zero
//
// Returns:
//   - ConstantBuffer: the buffer
//   - error: an allocation error
func NewConstantBuffer(backend renderer.Backend, capacity uint32) (ConstantBuffer, error) {
	if capacity == 0 {
		capacity = DefaultRegionCapacity
	}
	h, err := backend.CreateResource(renderer.ResourceDesc{
		Label: "PassConstants",
		Kind:  renderer.ResourceKindBuffer,
		Size:  uint64(capacity) * RegionSize,
		Usage: renderer.UsageUniform | renderer.UsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("constant buffer: %w", err)
	}
	return &constantBuffer{
		backend:  backend,
		handle:   h,
		capacity: capacity,
		regions:  make(map[string]Region),
	}, nil
}

func (b *constantBuffer) Handle() renderer.ResourceHandle {
	return b.handle
}

func (b *constantBuffer) Region(name string) (Region, error) {
	if r, ok := b.regions[name]; ok {
		return r, nil
	}
	if uint32(len(b.regions)) >= b.capacity {
		return Region{}, fmt.Errorf("%w: %d regions, %s needs one more", ErrConstantsExhausted, b.capacity, name)
	}
	r := Region{Index: uint32(len(b.regions)), Name: name}
	b.regions[name] = r
	return r, nil
}

func (b *constantBuffer) Binding(slot uint32, r Region) renderer.Binding {
	return renderer.Binding{Slot: slot, Resource: b.handle, Offset: r.Offset(), Size: RegionSize}
}

func (b *constantBuffer) SharedBinding(slot uint32) renderer.Binding {
	return renderer.Binding{Slot: slot, Resource: b.handle}
}

func (b *constantBuffer) SharedSlot(slot uint32) renderer.BindingSlot {
	return renderer.BindingSlot{
		Slot:    slot,
		Type:    renderer.BindingUniform,
		Name:    "regions",
		Element: fmt.Sprintf("%s, %d>", sharedElementPrefix, b.capacity),
	}
}

func (b *constantBuffer) Capacity() uint32 {
	return b.capacity
}

func (b *constantBuffer) Write(r Region, c *GPUPassConstants) error {
	return b.backend.WriteResource(b.handle, r.Offset(), c.Marshal())
}

func (b *constantBuffer) Release() {
	if b.handle != 0 {
		b.backend.ReleaseResource(b.handle)
		b.handle = 0
	}
}
