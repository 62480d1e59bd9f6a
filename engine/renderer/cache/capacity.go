package cache

import "github.com/Carmen-Shannon/oxy-restir/common"

// Allocation quanta for light and geometry buffers.
const (
	MeshQuantum      uint32 = 128
	TriangleQuantum  uint32 = 1024
	PrimitiveQuantum uint32 = 128
)

// Capacity is a grow-only allocation size rounded up to a power-of-two quantum. Minor scene
// edits that lower a count keep the current allocation.
type Capacity struct {
	quantum uint32
	value   uint32
}

// NewCapacity creates a zero Capacity with the given quantum.
//
// Parameters:
//   - quantum: the power-of-two allocation granularity
//
// Returns:
//   - *Capacity: the capacity
func NewCapacity(quantum uint32) *Capacity {
	return &Capacity{quantum: quantum}
}

// Fit grows the capacity to hold requested elements.
//
// Parameters:
//   - requested: the element count this frame needs
//
// Returns:
//   - uint32: the capacity after fitting
//   - bool: true if the capacity grew
func (c *Capacity) Fit(requested uint32) (uint32, bool) {
	need := common.AlignUp(requested, c.quantum)
	if need <= c.value {
		return c.value, false
	}
	c.value = need
	return c.value, true
}

// Value returns the current capacity.
func (c *Capacity) Value() uint32 {
	return c.value
}

// Reset drops the capacity back to zero so the next Fit allocates exactly what is requested.
func (c *Capacity) Reset() {
	c.value = 0
}
