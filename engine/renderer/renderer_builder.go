package renderer

import (
	"github.com/cogentcore/webgpu/wgpu"
)

// BackendBuilderOption is a functional option applied to a backend during construction via NewBackend.
type BackendBuilderOption func(*backendConfig)

// WithSurface attaches a window surface to a WebGPU backend so it can present.
//
// Parameters:
//   - descriptor: the platform surface descriptor from the window
//   - width: the initial surface width in pixels
//   - height: the initial surface height in pixels
//
// Returns:
//   - BackendBuilderOption: a function that applies the surface option
func WithSurface(descriptor *wgpu.SurfaceDescriptor, width, height int) BackendBuilderOption {
	return func(c *backendConfig) {
		c.surfaceDescriptor = descriptor
		c.surfaceWidth = width
		c.surfaceHeight = height
	}
}

// WithPresentMode sets the surface present mode which controls how frames are delivered to the display.
//
// Parameters:
//   - mode: the PresentMode to use (VSync or Uncapped)
//
// Returns:
//   - BackendBuilderOption: a function that applies the present mode option
func WithPresentMode(mode PresentMode) BackendBuilderOption {
	return func(c *backendConfig) {
		c.presentMode = mode
	}
}

// WithForceSoftwareRenderer forces WGPU to use a CPU/software fallback adapter instead of
// hardware GPU acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe).
//
// Parameters:
//   - force: true to force the software fallback adapter, false to use hardware (default)
//
// Returns:
//   - BackendBuilderOption: a function that applies the force software renderer option
func WithForceSoftwareRenderer(force bool) BackendBuilderOption {
	return func(c *backendConfig) {
		c.forceFallbackAdapter = force
	}
}

// WithRecordingOptions forwards options to a recording backend. Ignored by other backend types.
//
// Parameters:
//   - options: the RecordingBackend options
//
// Returns:
//   - BackendBuilderOption: a function that applies the recording options
func WithRecordingOptions(options ...RecordingBackendOption) BackendBuilderOption {
	return func(c *backendConfig) {
		c.recordingOptions = append(c.recordingOptions, options...)
	}
}
