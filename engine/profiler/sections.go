package profiler

import "fmt"

// Section is one timed region of the frame. The order is the report order.
type Section int

const (
	SectionTLASUpdate Section = iota
	SectionEnvironmentMap
	SectionGBufferFill
	SectionMeshProcessing
	SectionLocalLightPDFMap
	SectionPresampleLights
	SectionPresampleEnvironmentMap
	SectionReGIRBuild
	SectionInitialSamples
	SectionTemporalResampling
	SectionSpatialResampling
	SectionShadePrimarySurfaces
	SectionBRDFRays
	SectionShadeSecondarySurfaces
	SectionGITemporalResampling
	SectionGISpatialResampling
	SectionGIFusedResampling
	SectionGIFinalShading
	SectionGradients
	SectionDenoising
	SectionGlass
	SectionAntiAliasing
	SectionFrame
	// SectionMaterialReadback is not timed. Its ray count slot carries the material index under
	// the cursor plus one.
	SectionMaterialReadback

	// SectionCount is the number of sections.
	SectionCount
)

// NoSection marks a dispatch that is not timed and writes no ray counts.
const NoSection Section = -1

var sectionNames = [SectionCount]string{
	"TLAS Update",
	"Environment Map",
	"G-Buffer Fill",
	"Mesh Processing",
	"Light PDF Map",
	"Presample Lights",
	"Presample Env. Map",
	"ReGIR Build",
	"Initial Samples",
	"Temporal Resampling",
	"Spatial Resampling",
	"Shade Primary Surf.",
	"BRDF or MIS Rays",
	"Shade Secondary Surf.",
	"GI - Temporal Resampling",
	"GI - Spatial Resampling",
	"GI - Fused Resampling",
	"GI - Final Shading",
	"Gradients",
	"Denoising",
	"Glass",
	"TAA or DLSS",
	"Frame Time (GPU)",
	"(Material Readback)",
}

func (s Section) String() string {
	if s < 0 || s >= SectionCount {
		return fmt.Sprintf("Section(%d)", int(s))
	}
	return sectionNames[s]
}

// Valid reports whether s names a real section.
func (s Section) Valid() bool {
	return s >= 0 && s < SectionCount
}

// RayCountIndex returns the u32 index of the section's ray counter in the ray count buffer, or
// -1 for NoSection. The hit counter follows it.
func (s Section) RayCountIndex() int32 {
	if !s.Valid() {
		return -1
	}
	return int32(s) * 2
}
