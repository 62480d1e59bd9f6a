package renderer

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-restir/engine/logger"
	"github.com/cogentcore/webgpu/wgpu"
)

// PresentMode controls how presented frames are paced against the display.
type PresentMode int

const (
	// PresentModeUncapped presents as soon as a frame is ready.
	PresentModeUncapped PresentMode = iota

	// PresentModeVSync waits for vertical blank.
	PresentModeVSync
)

// backendConfig collects the builder options before the backend exists.
type backendConfig struct {
	forceFallbackAdapter bool
	presentMode          PresentMode
	surfaceDescriptor    *wgpu.SurfaceDescriptor
	surfaceWidth         int
	surfaceHeight        int
	recordingOptions     []RecordingBackendOption
}

// NewBackend creates the GPU backend of the given type. A WebGPU backend created with a surface
// also implements Presenter and has its surface configured to the requested size.
//
// Parameters:
//   - backendType: which backend to create
//   - options: variadic list of BackendBuilderOption functions to configure the backend
//
// Returns:
//   - Backend: the backend
//   - error: an error if no adapter or device could be acquired
func NewBackend(backendType RendererBackendType, options ...BackendBuilderOption) (Backend, error) {
	cfg := &backendConfig{}
	for _, opt := range options {
		opt(cfg)
	}

	switch backendType {
	case BackendTypeRecording:
		return NewRecordingBackend(cfg.recordingOptions...), nil
	case BackendTypeWGPU:
		b, err := newWGPURendererBackend(cfg.surfaceDescriptor, cfg.forceFallbackAdapter, cfg.presentMode == PresentModeVSync)
		if err != nil {
			return nil, err
		}
		if cfg.surfaceDescriptor != nil {
			b.ConfigureSurface(cfg.surfaceWidth, cfg.surfaceHeight)
		}
		logger.Info("gpu backend ready: %s (fallback adapter: %t)", b.Name(), cfg.forceFallbackAdapter)
		return b, nil
	default:
		return nil, fmt.Errorf("unknown renderer backend type %d", backendType)
	}
}
