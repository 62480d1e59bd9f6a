// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import "fmt"

// Extent2D is a width/height pair in pixels. Render targets, dispatch sizes and the upscaler
// input/output sizes are all expressed with it.
type Extent2D struct {
	Width  uint32
	Height uint32
}

// Empty reports whether either dimension is zero. A minimized window reports an empty extent
// and the frame loop skips rendering until it grows again.
func (e Extent2D) Empty() bool {
	return e.Width == 0 || e.Height == 0
}

// Scale returns the extent multiplied by s, rounded down and clamped to at least one pixel per axis.
//
// Parameters:
//   - s: the scale factor, typically the render scale from the settings snapshot
//
// Returns:
//   - Extent2D: the scaled extent
func (e Extent2D) Scale(s float32) Extent2D {
	w := uint32(float32(e.Width) * s)
	h := uint32(float32(e.Height) * s)
	return Extent2D{Width: max(w, 1), Height: max(h, 1)}
}

func (e Extent2D) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}
