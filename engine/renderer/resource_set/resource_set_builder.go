package resource_set

import "github.com/Carmen-Shannon/oxy-restir/engine/renderer"

// ResourceSetBuilderOption is a functional option used to configure a ResourceSet during construction.
type ResourceSetBuilderOption func(*resourceSet)

// WithPair adds a temporal pair.
//
// Parameters:
//   - currentSlot: the slot the current half is bound at
//   - previousSlot: the slot the previous half is bound at
//   - a: the allocation that is current at parity 0
//   - b: the allocation that is current at parity 1
//
// Returns:
//   - ResourceSetBuilderOption: a function that adds the pair
func WithPair(currentSlot, previousSlot uint32, a, b renderer.ResourceHandle) ResourceSetBuilderOption {
	return func(s *resourceSet) {
		s.pairs = append(s.pairs, Pair{CurrentSlot: currentSlot, PreviousSlot: previousSlot, A: a, B: b})
	}
}

// WithBinding adds a binding that is the same in both orders.
//
// Parameters:
//   - slot: the binding slot
//   - h: the bound resource
//
// Returns:
//   - ResourceSetBuilderOption: a function that adds the binding
func WithBinding(slot uint32, h renderer.ResourceHandle) ResourceSetBuilderOption {
	return func(s *resourceSet) {
		s.static = append(s.static, renderer.Binding{Slot: slot, Resource: h})
	}
}

// WithBindingRange adds a binding of a byte range of a buffer that is the same in both orders.
//
// Parameters:
//   - slot: the binding slot
//   - h: the bound buffer
//   - offset: the first byte of the range
//   - size: the length of the range
//
// Returns:
//   - ResourceSetBuilderOption: a function that adds the binding
func WithBindingRange(slot uint32, h renderer.ResourceHandle, offset, size uint64) ResourceSetBuilderOption {
	return func(s *resourceSet) {
		s.static = append(s.static, renderer.Binding{Slot: slot, Resource: h, Offset: offset, Size: size})
	}
}

// WithConvention sets the parity convention. Sets without pairs are always ConventionSingle
// unless ping-pong is requested.
//
// Parameters:
//   - c: the convention
//
// Returns:
//   - ResourceSetBuilderOption: a function that sets the convention
func WithConvention(c Convention) ResourceSetBuilderOption {
	return func(s *resourceSet) {
		s.convention = c
	}
}
