package orchestrator

import "github.com/Carmen-Shannon/oxy-restir/engine/renderer/denoiser"

// OrchestratorBuilderOption is a functional option used to configure an Orchestrator during construction.
type OrchestratorBuilderOption func(*orchestrator)

// WithUpscaler injects the upscaler used by the DLSS antialiasing mode. Without one the mode
// falls back to TAA.
//
// Parameters:
//   - u: the upscaler
//
// Returns:
//   - OrchestratorBuilderOption: a function that sets the upscaler
func WithUpscaler(u denoiser.Upscaler) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		if u != nil {
			o.upscaler = u
		}
	}
}

// WithDenoiserAvailability overrides the availability check of every denoiser the orchestrator
// creates. It is evaluated each frame.
//
// Parameters:
//   - fn: reports whether the denoiser can run
//
// Returns:
//   - OrchestratorBuilderOption: a function that sets the check
func WithDenoiserAvailability(fn func() bool) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		o.denoiserAvailable = fn
	}
}

// WithDebugAssertions checks the parity and swap count of every resource set in each Setup,
// regardless of the settings file.
//
// Returns:
//   - OrchestratorBuilderOption: a function that enables the checks
func WithDebugAssertions() OrchestratorBuilderOption {
	return func(o *orchestrator) {
		o.debugAssertions = true
	}
}

// WithRegionCapacity sets the number of constant buffer regions.
//
// Parameters:
//   - n: the region count
//
// Returns:
//   - OrchestratorBuilderOption: a function that sets the capacity
func WithRegionCapacity(n uint32) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		o.regionCapacity = n
	}
}
