package settings

import (
	"fmt"
	"strings"
)

// GBufferMode selects how primary surfaces are produced. The two modes are alternatives, a
// frame never runs both.
type GBufferMode int

const (
	// GBufferRaster rasterizes scene geometry into the GBuffer.
	GBufferRaster GBufferMode = iota
	// GBufferRayTraced traces primary rays into the GBuffer.
	GBufferRayTraced
)

// DirectLightingMode selects the direct lighting path.
type DirectLightingMode int

const (
	DirectNone DirectLightingMode = iota
	// DirectBRDF shades direct lighting from BRDF rays only, it runs inside the indirect stage.
	DirectBRDF
	// DirectReSTIR runs ReSTIR DI resampling.
	DirectReSTIR
)

// IndirectLightingMode selects the indirect lighting path.
type IndirectLightingMode int

const (
	IndirectNone IndirectLightingMode = iota
	// IndirectBRDF traces BRDF rays and shades the secondary surfaces without resampling.
	IndirectBRDF
	// IndirectReSTIRGI resamples the secondary surface samples with ReSTIR GI.
	IndirectReSTIRGI
)

// ResamplingMode selects the reuse strategy for ReSTIR DI and ReSTIR GI. ResamplingFused is
// mutually exclusive with the split temporal and spatial passes.
type ResamplingMode int

const (
	ResamplingNone ResamplingMode = iota
	ResamplingTemporal
	ResamplingSpatial
	ResamplingTemporalAndSpatial
	ResamplingFused
)

// Temporal reports whether the split path runs a temporal pass.
func (m ResamplingMode) Temporal() bool {
	return m == ResamplingTemporal || m == ResamplingTemporalAndSpatial
}

// Spatial reports whether the split path runs a spatial pass.
func (m ResamplingMode) Spatial() bool {
	return m == ResamplingSpatial || m == ResamplingTemporalAndSpatial
}

// DenoiserMode selects the denoising method. Changing the method recreates the denoiser.
type DenoiserMode int

const (
	DenoiserOff DenoiserMode = iota
	DenoiserReBLUR
	DenoiserReLAX
)

// AntiAliasingMode selects the resolve/antialias behavior of the post chain.
type AntiAliasingMode int

const (
	AANone AntiAliasingMode = iota
	// AAAccumulation averages frames while the camera and settings are still.
	AAAccumulation
	AATAA
	// AADLSS upscales from the render resolution. Falls back to AATAA when the upscaler is unavailable.
	AADLSS
)

// LocalLightSampling selects how local lights are presampled.
type LocalLightSampling int

const (
	LocalLightUniform LocalLightSampling = iota
	// LocalLightPowerRIS builds a power-weighted PDF map of local lights before presampling.
	LocalLightPowerRIS
	// LocalLightReGIR builds the world-space ReGIR grid after presampling.
	LocalLightReGIR
)

// VisualizationMode selects the debug overlay drawn at the end of the post chain.
type VisualizationMode int

const (
	VisualizationNone VisualizationMode = iota
	VisualizationDirectReservoirWeight
	VisualizationGIReservoirWeight
	VisualizationConfidence
	VisualizationGradients
	VisualizationDenoiserInput
)

var (
	gbufferModeNames        = []string{"raster", "raytraced"}
	directLightingModeNames = []string{"none", "brdf", "restir"}
	indirectModeNames       = []string{"none", "brdf", "restirgi"}
	resamplingModeNames     = []string{"none", "temporal", "spatial", "temporal_spatial", "fused"}
	denoiserModeNames       = []string{"off", "reblur", "relax"}
	aaModeNames             = []string{"none", "accumulation", "taa", "dlss"}
	localLightNames         = []string{"uniform", "power_ris", "regir"}
	visualizationNames      = []string{"none", "direct_weight", "gi_weight", "confidence", "gradients", "denoiser_input"}
)

func enumString(names []string, v int) string {
	if v < 0 || v >= len(names) {
		return fmt.Sprintf("unknown(%d)", v)
	}
	return names[v]
}

func enumParse(kind string, names []string, text []byte) (int, error) {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for i, n := range names {
		if n == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %s %q", ErrUnknownMode, kind, s)
}

func (m GBufferMode) String() string { return enumString(gbufferModeNames, int(m)) }
func (m GBufferMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
func (m *GBufferMode) UnmarshalText(text []byte) error {
	v, err := enumParse("gbuffer mode", gbufferModeNames, text)
	if err != nil {
		return err
	}
	*m = GBufferMode(v)
	return nil
}

func (m DirectLightingMode) String() string { return enumString(directLightingModeNames, int(m)) }
func (m DirectLightingMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
func (m *DirectLightingMode) UnmarshalText(text []byte) error {
	v, err := enumParse("direct lighting mode", directLightingModeNames, text)
	if err != nil {
		return err
	}
	*m = DirectLightingMode(v)
	return nil
}

func (m IndirectLightingMode) String() string { return enumString(indirectModeNames, int(m)) }
func (m IndirectLightingMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
func (m *IndirectLightingMode) UnmarshalText(text []byte) error {
	v, err := enumParse("indirect lighting mode", indirectModeNames, text)
	if err != nil {
		return err
	}
	*m = IndirectLightingMode(v)
	return nil
}

func (m ResamplingMode) String() string { return enumString(resamplingModeNames, int(m)) }
func (m ResamplingMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
func (m *ResamplingMode) UnmarshalText(text []byte) error {
	v, err := enumParse("resampling mode", resamplingModeNames, text)
	if err != nil {
		return err
	}
	*m = ResamplingMode(v)
	return nil
}

func (m DenoiserMode) String() string { return enumString(denoiserModeNames, int(m)) }
func (m DenoiserMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
func (m *DenoiserMode) UnmarshalText(text []byte) error {
	v, err := enumParse("denoiser mode", denoiserModeNames, text)
	if err != nil {
		return err
	}
	*m = DenoiserMode(v)
	return nil
}

func (m AntiAliasingMode) String() string { return enumString(aaModeNames, int(m)) }
func (m AntiAliasingMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
func (m *AntiAliasingMode) UnmarshalText(text []byte) error {
	v, err := enumParse("antialiasing mode", aaModeNames, text)
	if err != nil {
		return err
	}
	*m = AntiAliasingMode(v)
	return nil
}

func (m LocalLightSampling) String() string { return enumString(localLightNames, int(m)) }
func (m LocalLightSampling) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
func (m *LocalLightSampling) UnmarshalText(text []byte) error {
	v, err := enumParse("local light sampling", localLightNames, text)
	if err != nil {
		return err
	}
	*m = LocalLightSampling(v)
	return nil
}

func (m VisualizationMode) String() string { return enumString(visualizationNames, int(m)) }
func (m VisualizationMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
func (m *VisualizationMode) UnmarshalText(text []byte) error {
	v, err := enumParse("visualization mode", visualizationNames, text)
	if err != nil {
		return err
	}
	*m = VisualizationMode(v)
	return nil
}
