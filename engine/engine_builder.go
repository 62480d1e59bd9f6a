package engine

import (
	"time"

	"github.com/Carmen-Shannon/oxy-restir/engine/orchestrator"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
	"github.com/Carmen-Shannon/oxy-restir/engine/window"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithWindow renders into a window. The engine creates a WebGPU backend on its surface and
// follows its resize and key events.
//
// Parameters:
//   - w: a spawned Window instance
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithBackend supplies the GPU backend instead of letting the engine create one.
//
// Parameters:
//   - b: the backend; the engine closes it on exit
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithBackend(b renderer.Backend) EngineBuilderOption {
	return func(e *engine) {
		e.backend = b
	}
}

// WithVSync paces presentation to the display refresh.
//
// Parameters:
//   - enabled: true for VSync
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithVSync(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.vsync = enabled
	}
}

// WithSettingsFile watches the settings file and applies it to the store whenever it changes.
//
// Parameters:
//   - path: the TOML settings file
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithSettingsFile(path string) EngineBuilderOption {
	return func(e *engine) {
		e.settingsPath = path
	}
}

// WithFrameCount stops the loop after n completed frames. Zero renders until the window closes
// or Quit is called.
//
// Parameters:
//   - n: the number of frames
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithFrameCount(n uint64) EngineBuilderOption {
	return func(e *engine) {
		e.frameCount = n
	}
}

// WithStatsInterval sets how often the CPU frame statistics are logged.
//
// Parameters:
//   - d: the interval (default one second)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithStatsInterval(d time.Duration) EngineBuilderOption {
	return func(e *engine) {
		e.statsInterval = d
	}
}

// WithOrchestratorOptions forwards options to the frame orchestrator.
//
// Parameters:
//   - options: the orchestrator options
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithOrchestratorOptions(options ...orchestrator.OrchestratorBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.orchOptions = append(e.orchOptions, options...)
	}
}

// WithRenderFrameLimit sets an optional render frame rate cap in frames per second.
// Pass 0 to uncap the render loop (default).
//
// Parameters:
//   - fps: maximum render frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			e.renderFrameLimit = 0
			return
		}
		e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
	}
}
