package settings

import "github.com/Carmen-Shannon/oxy-restir/common"

// Snapshot is the per-frame copy of Settings. It is a plain value: passing it around copies it,
// so nothing a pass does can leak into another pass or into the next frame.
type Snapshot struct {
	Settings
	// Sequence increases with every settings change. Accumulation restarts when it moves.
	Sequence uint64
}

// RenderExtent is the resolution the lighting passes run at. It differs from the output size only
// when an upscaler renders at a reduced scale.
func (s Snapshot) RenderExtent() common.Extent2D {
	return s.OutputExtent().Scale(s.Resolution.RenderScale)
}

// DirectReSTIR reports whether the ReSTIR DI passes run this frame.
func (s Snapshot) DirectReSTIR() bool {
	return s.Lighting.Direct == DirectReSTIR
}

// BRDFAndIndirect reports whether BRDF rays are traced. BRDF direct lighting and every indirect
// mode need them.
func (s Snapshot) BRDFAndIndirect() bool {
	return s.Lighting.Direct == DirectBRDF || s.Lighting.Indirect != IndirectNone
}

// ReSTIRGI reports whether the ReSTIR GI passes run this frame.
func (s Snapshot) ReSTIRGI() bool {
	return s.Lighting.Indirect == IndirectReSTIRGI
}

// DenoiserRequested reports whether the settings ask for denoising. The denoiser may still be
// skipped if it reports itself unavailable.
func (s Snapshot) DenoiserRequested() bool {
	return s.Denoiser != DenoiserOff
}

// GradientsEnabled reports whether the temporal gradient and confidence passes run. They only
// make sense with ReSTIR DI history and a denoiser to consume them.
func (s Snapshot) GradientsEnabled() bool {
	return s.Lighting.Gradients && s.DirectReSTIR() && s.DenoiserRequested()
}

// ConfidenceEnabled reports whether the confidence pass runs after the gradients.
func (s Snapshot) ConfidenceEnabled() bool {
	return s.GradientsEnabled() && s.Lighting.Confidence
}
