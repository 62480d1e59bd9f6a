package denoiser

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-restir/common"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/pass"
)

// UpscaleInputs are the resources an upscaler reads and writes.
type UpscaleInputs struct {
	RenderExtent common.Extent2D
	OutputExtent common.Extent2D
	Color        renderer.ResourceHandle
	Depth        renderer.ResourceHandle
	Motion       renderer.ResourceHandle
	Output       renderer.ResourceHandle
	Frame        uint64
}

// Upscaler resolves the render-resolution color into the output-resolution target, replacing
// temporal antialiasing when available.
type Upscaler interface {
	// Name returns the upscaler's name for logs and reports.
	Name() string

	// IsAvailable reports whether the upscaler can run. It is checked every frame.
	IsAvailable() bool

	// Upscale records the upscaling work.
	//
	// Parameters:
	//   - seq: the frame's sequencer
	//   - in: the frame resources
	//
	// Returns:
	//   - error: ErrUnavailable, or a recording error
	Upscale(seq pass.Sequencer, in UpscaleInputs) error
}

// unavailableUpscaler stands in for a vendor upscaler that is not present on this system.
type unavailableUpscaler struct {
	name   string
	reason string
}

var _ Upscaler = &unavailableUpscaler{}

// NewUnavailableUpscaler creates an Upscaler that always reports itself unavailable.
//
// Parameters:
//   - name: the upscaler name, e.g. "DLSS"
//   - reason: why it is unavailable
//
// Returns:
//   - Upscaler: the stand-in
func NewUnavailableUpscaler(name, reason string) Upscaler {
	return &unavailableUpscaler{name: name, reason: reason}
}

func (u *unavailableUpscaler) Name() string {
	return u.name
}

func (u *unavailableUpscaler) IsAvailable() bool {
	return false
}

func (u *unavailableUpscaler) Upscale(pass.Sequencer, UpscaleInputs) error {
	return fmt.Errorf("%w: %s: %s", ErrUnavailable, u.name, u.reason)
}
