package pass

import "github.com/Carmen-Shannon/oxy-restir/engine/profiler"

// ExecutorBuilderOption is a functional option used to configure an Executor during construction.
type ExecutorBuilderOption func(*executor)

// WithName sets the debug marker name. Defaults to the descriptor key.
//
// Parameters:
//   - name: the marker name
//
// Returns:
//   - ExecutorBuilderOption: a function that sets the name
func WithName(name string) ExecutorBuilderOption {
	return func(e *executor) {
		e.name = name
	}
}

// WithSection times the pass under s.
//
// Parameters:
//   - s: the profiler section
//
// Returns:
//   - ExecutorBuilderOption: a function that sets the section
func WithSection(s profiler.Section) ExecutorBuilderOption {
	return func(e *executor) {
		e.section = s
	}
}

// WithRayCount tags the pass with its section's ray count slot, so the kernel adds its traced
// rays and hits to the section's counters.
//
// Returns:
//   - ExecutorBuilderOption: a function that enables the tag
func WithRayCount() ExecutorBuilderOption {
	return func(e *executor) {
		e.countRays = true
	}
}
