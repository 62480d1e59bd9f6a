package pipeline

import "github.com/Carmen-Shannon/oxy-restir/common"

// DispatchInput carries what a dispatch-size formula may depend on.
type DispatchInput struct {
	// Extent is the view extent the pass runs at.
	Extent common.Extent2D
	// Count is the element count of linear passes (lights, triangles).
	Count uint32
	// Group is the kernel's workgroup size.
	Group [3]uint32
}

// DispatchSize computes workgroup counts for a pass.
type DispatchSize func(in DispatchInput) [3]uint32

// DispatchFullScreen covers every pixel: ceil(w/gx) × ceil(h/gy).
func DispatchFullScreen(in DispatchInput) [3]uint32 {
	return [3]uint32{
		common.DivCeil(in.Extent.Width, in.Group[0]),
		common.DivCeil(in.Extent.Height, in.Group[1]),
		1,
	}
}

// DispatchCheckerboard covers half the columns when enabled reports true at dispatch time.
//
// Parameters:
//   - enabled: reports whether checkerboard sampling is on for the frame
//
// Returns:
//   - DispatchSize: the formula
func DispatchCheckerboard(enabled func() bool) DispatchSize {
	return func(in DispatchInput) [3]uint32 {
		if enabled() {
			in.Extent.Width = common.DivCeil(in.Extent.Width, 2)
		}
		return DispatchFullScreen(in)
	}
}

// DispatchDownscaled covers a view reduced by factor in both axes, one thread per block.
//
// Parameters:
//   - factor: the block size, e.g. 4 for gradients
//
// Returns:
//   - DispatchSize: the formula
func DispatchDownscaled(factor uint32) DispatchSize {
	return func(in DispatchInput) [3]uint32 {
		in.Extent = common.Extent2D{
			Width:  common.DivCeil(in.Extent.Width, factor),
			Height: common.DivCeil(in.Extent.Height, factor),
		}
		return DispatchFullScreen(in)
	}
}

// DispatchLinear covers Count elements with one thread each.
func DispatchLinear(in DispatchInput) [3]uint32 {
	return [3]uint32{common.DivCeil(in.Count, in.Group[0]), 1, 1}
}
