package common

// Virtual key codes used by the sample's hotkeys.
// These values match GLFW key codes which use ASCII values for printable keys.
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Key
const (
	KeyD  = 68  // D key (ASCII), toggles the denoiser
	KeyF  = 70  // F key (ASCII), toggles fused resampling
	KeyI  = 73  // I key (ASCII), resets importance sampling
	KeyP  = 80  // P key (ASCII), prints the profiler report
	KeyF5 = 294 // F5 key (GLFW), reloads shaders
)
