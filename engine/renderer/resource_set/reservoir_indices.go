package resource_set

import "github.com/Carmen-Shannon/oxy-restir/engine/settings"

// ReservoirIndices tracks which array slice of a reservoir buffer each resampling stage reads
// and writes. Reservoirs are not paired allocations: one buffer holds Count slices, and the
// slice the shading pass consumed becomes the temporal input of the next frame.
type ReservoirIndices struct {
	Count uint32

	InitialOutput  uint32
	TemporalInput  uint32
	TemporalOutput uint32
	SpatialInput   uint32
	SpatialOutput  uint32
	ShadingInput   uint32

	LastFrameOutput    uint32
	CurrentFrameOutput uint32
}

// NewReservoirIndices creates indices over count slices.
//
// Parameters:
//   - count: the number of reservoir slices in the buffer, at least 2
//
// Returns:
//   - *ReservoirIndices: the indices
func NewReservoirIndices(count uint32) *ReservoirIndices {
	return &ReservoirIndices{Count: max(count, 2)}
}

// Update routes the stages of this frame for mode. Initial and temporal outputs never land in
// last frame's slice. With two slices the spatial output reuses it, which is safe only behind
// the barrier that follows temporal resampling.
//
// Parameters:
//   - mode: the resampling mode of the frame
func (r *ReservoirIndices) Update(mode settings.ResamplingMode) {
	next := func(i uint32) uint32 { return (i + 1) % r.Count }

	r.InitialOutput = next(r.LastFrameOutput)
	r.TemporalInput = r.LastFrameOutput
	r.TemporalOutput = next(r.TemporalInput)

	r.SpatialInput = r.InitialOutput
	if mode.Temporal() {
		r.SpatialInput = r.TemporalOutput
	}
	r.SpatialOutput = next(r.SpatialInput)

	switch {
	case mode == settings.ResamplingFused:
		// the fused kernel reads last frame's slice and writes one output
		r.ShadingInput = r.TemporalOutput
	case mode.Spatial():
		r.ShadingInput = r.SpatialOutput
	case mode.Temporal():
		r.ShadingInput = r.TemporalOutput
	default:
		r.ShadingInput = r.InitialOutput
	}
	r.CurrentFrameOutput = r.ShadingInput
}

// NextFrame makes this frame's shading input the temporal history of the next frame.
func (r *ReservoirIndices) NextFrame() {
	r.LastFrameOutput = r.CurrentFrameOutput
}
