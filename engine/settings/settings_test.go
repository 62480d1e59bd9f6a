package settings

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeOverridesOnlyGivenKeys(t *testing.T) {
	s := Default()
	doc := []byte(`
denoiser = "off"

[lighting]
direct_resampling = "fused"
checkerboard = true

[post]
antialiasing = "dlss"
`)
	require.NoError(t, Decode(doc, &s))

	assert.Equal(t, DenoiserOff, s.Denoiser)
	assert.Equal(t, ResamplingFused, s.Lighting.DirectResampling)
	assert.True(t, s.Lighting.Checkerboard)
	assert.Equal(t, AADLSS, s.Post.AntiAliasing)
	assert.Equal(t, uint32(1920), s.Resolution.Width)
	assert.Equal(t, IndirectReSTIRGI, s.Lighting.Indirect)
}

func TestDecodeRejectsUnknownMode(t *testing.T) {
	s := Default()
	err := Decode([]byte(`denoiser = "magic"`), &s)
	require.Error(t, err)
	assert.Equal(t, DenoiserReLAX, s.Denoiser)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "restir.toml")
	want := Default()
	want.GBuffer = GBufferRayTraced
	want.Lighting.LocalLightSampling = LocalLightReGIR
	want.Post.Visualization = VisualizationGradients

	require.NoError(t, Save(path, want))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), got)
}

func TestValidate(t *testing.T) {
	s := Default()
	s.Resolution.RenderScale = 0
	assert.ErrorIs(t, s.Validate(), ErrInvalidSettings)

	s = Default()
	s.Resolution.Width = 0
	assert.ErrorIs(t, s.Validate(), ErrInvalidSettings)

	assert.NoError(t, Default().Validate())
}

func TestSnapshotIsolation(t *testing.T) {
	st := NewStore(Default())
	snap := st.Snapshot()

	st.Update(func(s *Settings) { s.Denoiser = DenoiserOff })

	assert.Equal(t, DenoiserReLAX, snap.Denoiser)
	next := st.Snapshot()
	assert.Equal(t, DenoiserOff, next.Denoiser)
	assert.Greater(t, next.Sequence, snap.Sequence)
}

func TestReplaceRejectsInvalid(t *testing.T) {
	st := NewStore(Default())
	bad := Default()
	bad.Resolution.Height = 0

	assert.Error(t, st.Replace(bad))
	assert.Equal(t, uint32(1080), st.Snapshot().Resolution.Height)
}

func TestSnapshotGating(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*Settings)
		wantReSTIR    bool
		wantBRDF      bool
		wantGradients bool
	}{
		{"defaults", func(*Settings) {}, true, true, true},
		{"denoiser off disables gradients", func(s *Settings) { s.Denoiser = DenoiserOff }, true, true, false},
		{"brdf direct only", func(s *Settings) {
			s.Lighting.Direct = DirectBRDF
			s.Lighting.Indirect = IndirectNone
		}, false, true, false},
		{"no lighting", func(s *Settings) {
			s.Lighting.Direct = DirectNone
			s.Lighting.Indirect = IndirectNone
		}, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(&s)
			snap := Snapshot{Settings: s}
			assert.Equal(t, tt.wantReSTIR, snap.DirectReSTIR())
			assert.Equal(t, tt.wantBRDF, snap.BRDFAndIndirect())
			assert.Equal(t, tt.wantGradients, snap.GradientsEnabled())
		})
	}
}

func TestResamplingModeSplitFlags(t *testing.T) {
	assert.True(t, ResamplingTemporalAndSpatial.Temporal())
	assert.True(t, ResamplingTemporalAndSpatial.Spatial())
	assert.False(t, ResamplingFused.Temporal())
	assert.False(t, ResamplingFused.Spatial())
	assert.False(t, ResamplingSpatial.Temporal())
}
