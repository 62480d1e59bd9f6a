package pass

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-restir/engine/profiler"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/resource_set"
)

// sequencer is the implementation of the Sequencer interface.
type sequencer struct {
	backend renderer.Backend
	ledger  profiler.Ledger

	last       renderer.BindingSetHandle
	lastWrites []renderer.ResourceHandle

	dispatches int
	barriers   int
}

// Sequencer records the dispatches of one frame in order. It brackets each dispatch with a
// debug marker and a profiler section, and it inserts a barrier on the writable resources of a
// binding set when two consecutive dispatches bind the same set.
type Sequencer interface {
	// Backend returns the backend dispatches are recorded on.
	Backend() renderer.Backend

	// Ledger returns the profiler ledger, or nil when profiling is off.
	Ledger() profiler.Ledger

	// Dispatch records one compute dispatch. Dispatches with an empty grid are skipped.
	//
	// Parameters:
	//   - name: the debug marker name
	//   - section: the profiler section, or profiler.NoSection
	//   - p: the pipeline to run
	//   - set: the resource set bound at group 0
	//   - groups: the workgroup counts
	//
	// Returns:
	//   - error: ErrNotBuilt for an unbuilt set, or a backend error
	Dispatch(name string, section profiler.Section, p pipeline.Pipeline, set resource_set.ResourceSet, groups [3]uint32) error

	// DispatchOrder is Dispatch with an explicit binding order. Ping-pong passes alternate
	// orders between iterations; a negative order selects the set's active order.
	//
	// Parameters:
	//   - name: the debug marker name
	//   - section: the profiler section, or profiler.NoSection
	//   - p: the pipeline to run
	//   - set: the resource set bound at group 0
	//   - order: 0, 1, or negative for the active order
	//   - groups: the workgroup counts
	//
	// Returns:
	//   - error: ErrNotBuilt for an unbuilt set, or a backend error
	DispatchOrder(name string, section profiler.Section, p pipeline.Pipeline, set resource_set.ResourceSet, order int, groups [3]uint32) error

	// Barrier records a barrier on every resource in hs.
	Barrier(hs ...renderer.ResourceHandle)

	// Clear records a zero fill of h.
	//
	// Parameters:
	//   - h: the resource to clear
	//
	// Returns:
	//   - error: a backend error
	Clear(h renderer.ResourceHandle) error

	// Reset forgets the last bound set. Called at the start of every frame.
	Reset()

	// Dispatches returns how many dispatches were recorded since Reset.
	Dispatches() int

	// Barriers returns how many barriers were recorded since Reset.
	Barriers() int
}

var _ Sequencer = &sequencer{}

// NewSequencer creates a Sequencer.
//
// Parameters:
//   - backend: the GPU backend
//   - ledger: the profiler ledger, may be nil
//
// Returns:
//   - Sequencer: the sequencer
func NewSequencer(backend renderer.Backend, ledger profiler.Ledger) Sequencer {
	return &sequencer{backend: backend, ledger: ledger}
}

func (s *sequencer) Backend() renderer.Backend {
	return s.backend
}

func (s *sequencer) Ledger() profiler.Ledger {
	return s.ledger
}

// writableResources lists the resources bindings may write through.
func writableResources(layout renderer.BindingLayout, bindings []renderer.Binding) []renderer.ResourceHandle {
	var out []renderer.ResourceHandle
	for _, b := range bindings {
		if slot, ok := layout.Slot(b.Slot); ok && slot.Type.Writable() {
			out = append(out, b.Resource)
		}
	}
	return out
}

func (s *sequencer) Dispatch(name string, section profiler.Section, p pipeline.Pipeline, set resource_set.ResourceSet, groups [3]uint32) error {
	return s.DispatchOrder(name, section, p, set, -1, groups)
}

func (s *sequencer) DispatchOrder(name string, section profiler.Section, p pipeline.Pipeline, set resource_set.ResourceSet, order int, groups [3]uint32) error {
	if groups[0] == 0 || groups[1] == 0 || groups[2] == 0 {
		return nil
	}
	var (
		bs       renderer.BindingSetHandle
		bindings []renderer.Binding
		err      error
	)
	if order < 0 {
		bs, err = set.BindingSet()
		bindings = set.Bindings()
	} else {
		bs, err = set.BindingSetFor(order)
		bindings = set.BindingsFor(order)
	}
	if err != nil {
		return err
	}

	if bs == s.last && s.last != 0 {
		s.Barrier(s.lastWrites...)
	}

	s.backend.BeginMarker(name)
	if s.ledger != nil {
		s.ledger.BeginSection(section)
	}
	err = s.backend.Dispatch(p.Handle(), bs, groups)
	if s.ledger != nil {
		s.ledger.EndSection(section)
	}
	s.backend.EndMarker()
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	s.dispatches++
	s.last = bs
	s.lastWrites = writableResources(set.Layout(), bindings)
	return nil
}

func (s *sequencer) Barrier(hs ...renderer.ResourceHandle) {
	for _, h := range hs {
		s.backend.Barrier(h)
		s.barriers++
	}
	if len(hs) > 0 {
		s.last = 0
		s.lastWrites = nil
	}
}

func (s *sequencer) Clear(h renderer.ResourceHandle) error {
	s.last = 0
	s.lastWrites = nil
	return s.backend.ClearResource(h)
}

func (s *sequencer) Reset() {
	s.last = 0
	s.lastWrites = nil
	s.dispatches = 0
	s.barriers = 0
}

func (s *sequencer) Dispatches() int {
	return s.dispatches
}

func (s *sequencer) Barriers() int {
	return s.barriers
}
