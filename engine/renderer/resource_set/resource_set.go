package resource_set

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
)

var (
	// ErrAliasedPair is returned when both halves of a temporal pair are the same allocation.
	ErrAliasedPair = errors.New("temporal pair aliases one allocation")

	// ErrNotBuilt is returned when a binding set is requested before CreateBindingSet.
	ErrNotBuilt = errors.New("resource set has no binding sets")

	// ErrParityTorn is returned by Check when a set's swap count or parity disagrees with the frame.
	ErrParityTorn = errors.New("resource set parity torn")
)

// Parity selects which half of every temporal pair is current. It is shared by every set.
type Parity uint8

// ParityOf returns the parity of a frame index.
func ParityOf(frame uint64) Parity {
	return Parity(frame & 1)
}

// Flip returns the other parity.
func (p Parity) Flip() Parity {
	return p ^ 1
}

// Convention is how a set maps parity to binding order. It is local to the pass that owns the set.
type Convention int

const (
	// ConventionCurrentFirst binds [current, previous] for every pair and swaps once per frame.
	ConventionCurrentFirst Convention = iota

	// ConventionSingle has no pairs. One binding set serves both parities.
	ConventionSingle

	// ConventionPingPong alternates its two orders inside one frame (iterative filters). NextFrame
	// does not change which order comes first.
	ConventionPingPong
)

func (c Convention) String() string {
	switch c {
	case ConventionCurrentFirst:
		return "current-first"
	case ConventionSingle:
		return "single"
	case ConventionPingPong:
		return "ping-pong"
	default:
		return fmt.Sprintf("Convention(%d)", int(c))
	}
}

// Pair is one temporal pair: two distinct allocations bound at two slots. At parity 0, A is
// current; at parity 1, B is.
type Pair struct {
	CurrentSlot  uint32
	PreviousSlot uint32
	A, B         renderer.ResourceHandle
}

// resourceSet is the implementation of the ResourceSet interface.
type resourceSet struct {
	label      string
	layout     renderer.BindingLayout
	convention Convention
	pairs      []Pair
	static     []renderer.Binding

	sets   [2]renderer.BindingSetHandle
	built  bool
	parity Parity

	// builtFrame and swaps let Check verify NextFrame ran exactly once per frame since the build.
	builtFrame uint64
	swaps      uint64
}

// ResourceSet owns the two pre-baked binding sets of a pass with temporal state. Both binding
// orders exist up front, so NextFrame is an index flip with no GPU work. The pair resources are
// owned by whoever created them; the set owns only its binding sets.
type ResourceSet interface {
	// Label returns the debug label for this set.
	//
	// Returns:
	//   - string: the debug label
	Label() string

	// Convention returns the parity convention of the set.
	//
	// Returns:
	//   - Convention: the convention
	Convention() Convention

	// Layout returns the binding layout both binding sets are built for.
	//
	// Returns:
	//   - renderer.BindingLayout: the layout
	Layout() renderer.BindingLayout

	// CreateBindingSet builds both binding orders, one per parity, releasing any previous ones.
	// The set starts at the parity of frame.
	//
	// Parameters:
	//   - backend: the backend that creates the binding sets
	//   - frame: the index of the frame the set is first used in
	//
	// Returns:
	//   - error: ErrAliasedPair if a pair has A == B, or a backend error
	CreateBindingSet(backend renderer.Backend, frame uint64) error

	// Built reports whether CreateBindingSet succeeded.
	Built() bool

	// BindingSet returns the binding set for the current parity.
	//
	// Returns:
	//   - renderer.BindingSetHandle: the binding set
	//   - error: ErrNotBuilt before CreateBindingSet
	BindingSet() (renderer.BindingSetHandle, error)

	// BindingSetFor returns the binding set of one order regardless of parity. Ping-pong passes
	// alternate orders 0 and 1 between iterations.
	//
	// Parameters:
	//   - order: 0 or 1
	//
	// Returns:
	//   - renderer.BindingSetHandle: the binding set
	//   - error: ErrNotBuilt before CreateBindingSet
	BindingSetFor(order int) (renderer.BindingSetHandle, error)

	// Current returns the current-frame half of pair i.
	Current(i int) renderer.ResourceHandle

	// Previous returns the previous-frame half of pair i.
	Previous(i int) renderer.ResourceHandle

	// Parity returns the parity the set is at.
	Parity() Parity

	// Bindings returns the bindings of the binding set BindingSet returns.
	//
	// Returns:
	//   - []renderer.Binding: the bindings in the active order
	Bindings() []renderer.Binding

	// BindingsFor returns the bindings of one order regardless of parity.
	BindingsFor(order int) []renderer.Binding

	// NextFrame swaps current and previous of every pair. It must run exactly once per rendered
	// frame, after every pass of the frame was recorded.
	NextFrame()

	// Swaps returns how many times NextFrame ran since the last CreateBindingSet.
	Swaps() uint64

	// Check verifies that the set is at the parity of frame and swapped once per frame since its
	// build.
	//
	// Parameters:
	//   - frame: the index of the frame about to be recorded
	//
	// Returns:
	//   - error: ErrParityTorn on mismatch
	Check(frame uint64) error

	// Release frees both binding sets.
	//
	// Parameters:
	//   - backend: the backend that owns them
	Release(backend renderer.Backend)
}

var _ ResourceSet = &resourceSet{}

// NewResourceSet creates an unbuilt ResourceSet.
//
// Parameters:
//   - label: a debug label
//   - layout: the binding layout of the owning pass
//   - options: variadic list of ResourceSetBuilderOption functions
//
// Returns:
//   - ResourceSet: the set
func NewResourceSet(label string, layout renderer.BindingLayout, options ...ResourceSetBuilderOption) ResourceSet {
	s := &resourceSet{
		label:      label,
		layout:     layout,
		convention: ConventionCurrentFirst,
	}
	for _, opt := range options {
		opt(s)
	}
	if len(s.pairs) == 0 && s.convention == ConventionCurrentFirst {
		s.convention = ConventionSingle
	}
	return s
}

func (s *resourceSet) Label() string {
	return s.label
}

func (s *resourceSet) Convention() Convention {
	return s.convention
}

func (s *resourceSet) Layout() renderer.BindingLayout {
	return s.layout
}

func (s *resourceSet) bindings(order int) []renderer.Binding {
	out := make([]renderer.Binding, 0, len(s.static)+2*len(s.pairs))
	out = append(out, s.static...)
	for _, p := range s.pairs {
		current, previous := p.A, p.B
		if order == 1 {
			current, previous = p.B, p.A
		}
		out = append(out,
			renderer.Binding{Slot: p.CurrentSlot, Resource: current},
			renderer.Binding{Slot: p.PreviousSlot, Resource: previous},
		)
	}
	return out
}

func (s *resourceSet) CreateBindingSet(backend renderer.Backend, frame uint64) error {
	for _, p := range s.pairs {
		if p.A == p.B {
			return fmt.Errorf("%w: %s slots %d/%d", ErrAliasedPair, s.label, p.CurrentSlot, p.PreviousSlot)
		}
	}
	s.Release(backend)

	first, err := backend.CreateBindingSet(s.label+" Even", s.layout, s.bindings(0))
	if err != nil {
		return fmt.Errorf("resource set %s: %w", s.label, err)
	}
	second := first
	if s.convention != ConventionSingle {
		second, err = backend.CreateBindingSet(s.label+" Odd", s.layout, s.bindings(1))
		if err != nil {
			backend.ReleaseBindingSet(first)
			return fmt.Errorf("resource set %s: %w", s.label, err)
		}
	}

	s.sets = [2]renderer.BindingSetHandle{first, second}
	s.built = true
	s.builtFrame = frame
	s.swaps = 0
	s.parity = ParityOf(frame)
	return nil
}

func (s *resourceSet) Built() bool {
	return s.built
}

func (s *resourceSet) BindingSet() (renderer.BindingSetHandle, error) {
	if s.convention == ConventionPingPong {
		return s.BindingSetFor(0)
	}
	return s.BindingSetFor(int(s.parity))
}

func (s *resourceSet) BindingSetFor(order int) (renderer.BindingSetHandle, error) {
	if !s.built {
		return 0, fmt.Errorf("%w: %s", ErrNotBuilt, s.label)
	}
	return s.sets[order&1], nil
}

func (s *resourceSet) Bindings() []renderer.Binding {
	if s.convention == ConventionPingPong {
		return s.bindings(0)
	}
	return s.bindings(int(s.parity))
}

func (s *resourceSet) BindingsFor(order int) []renderer.Binding {
	return s.bindings(order & 1)
}

func (s *resourceSet) Current(i int) renderer.ResourceHandle {
	if s.parity == 0 {
		return s.pairs[i].A
	}
	return s.pairs[i].B
}

func (s *resourceSet) Previous(i int) renderer.ResourceHandle {
	if s.parity == 0 {
		return s.pairs[i].B
	}
	return s.pairs[i].A
}

func (s *resourceSet) Parity() Parity {
	return s.parity
}

func (s *resourceSet) NextFrame() {
	s.parity = s.parity.Flip()
	s.swaps++
}

func (s *resourceSet) Swaps() uint64 {
	return s.swaps
}

func (s *resourceSet) Check(frame uint64) error {
	if !s.built {
		return nil
	}
	if frame < s.builtFrame || s.swaps != frame-s.builtFrame {
		return fmt.Errorf("%w: %s swapped %d times since frame %d, now at frame %d", ErrParityTorn, s.label, s.swaps, s.builtFrame, frame)
	}
	if s.parity != ParityOf(frame) {
		return fmt.Errorf("%w: %s at parity %d in frame %d", ErrParityTorn, s.label, s.parity, frame)
	}
	return nil
}

func (s *resourceSet) Release(backend renderer.Backend) {
	if !s.built {
		return
	}
	backend.ReleaseBindingSet(s.sets[0])
	if s.sets[1] != s.sets[0] {
		backend.ReleaseBindingSet(s.sets[1])
	}
	s.sets = [2]renderer.BindingSetHandle{}
	s.built = false
}
