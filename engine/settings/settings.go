// Package settings holds the user-facing renderer configuration. The renderer never reads the
// live configuration while recording a frame: it takes a Snapshot once per frame and every pass
// of that frame observes the same values.
package settings

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-restir/common"
)

var (
	// ErrUnknownMode is returned when a configuration file names a mode that does not exist.
	ErrUnknownMode = errors.New("unknown mode")

	// ErrInvalidSettings is returned by Validate for out-of-range values.
	ErrInvalidSettings = errors.New("invalid settings")
)

// Resolution describes the output size and the fraction of it that is actually rendered.
type Resolution struct {
	Width       uint32  `toml:"width"`
	Height      uint32  `toml:"height"`
	RenderScale float32 `toml:"render_scale"`
}

// Lighting groups the direct and indirect lighting configuration.
type Lighting struct {
	Direct             DirectLightingMode   `toml:"direct"`
	Indirect           IndirectLightingMode `toml:"indirect"`
	DirectResampling   ResamplingMode       `toml:"direct_resampling"`
	GIResampling       ResamplingMode       `toml:"gi_resampling"`
	LocalLightSampling LocalLightSampling   `toml:"local_light_sampling"`
	Checkerboard       bool                 `toml:"checkerboard"`
	Gradients          bool                 `toml:"gradients"`
	Confidence         bool                 `toml:"confidence"`
	// PresampledTileSize and PresampledTileCount size the RIS buffers filled by light presampling.
	PresampledTileSize  uint32 `toml:"presampled_tile_size"`
	PresampledTileCount uint32 `toml:"presampled_tile_count"`
	EnvironmentMap      string `toml:"environment_map"`
}

// Post groups the post-processing chain toggles.
type Post struct {
	AntiAliasing      AntiAliasingMode  `toml:"antialiasing"`
	Transparent       bool              `toml:"transparent"`
	Tonemapping       bool              `toml:"tonemapping"`
	Bloom             bool              `toml:"bloom"`
	Visualization     VisualizationMode `toml:"visualization"`
	AccumulationLimit uint32            `toml:"accumulation_limit"`
}

// Profiler groups the GPU profiler toggles.
type Profiler struct {
	Enabled bool `toml:"enabled"`
	// ReportFrames is how many frames pass between two logged profiler reports. Zero disables logging.
	ReportFrames uint32 `toml:"report_frames"`
}

// Debug groups developer toggles.
type Debug struct {
	// Assertions enables the parity and swap-count checks at the end of every frame.
	Assertions bool   `toml:"assertions"`
	LogLevel   string `toml:"log_level"`
}

// Settings is the full renderer configuration as stored in the settings file.
type Settings struct {
	Resolution Resolution   `toml:"resolution"`
	GBuffer    GBufferMode  `toml:"gbuffer"`
	Lighting   Lighting     `toml:"lighting"`
	Denoiser   DenoiserMode `toml:"denoiser"`
	Post       Post         `toml:"post"`
	Profiler   Profiler     `toml:"profiler"`
	Debug      Debug        `toml:"debug"`
	ShaderDir  string       `toml:"shader_dir"`
}

// Default returns the configuration the sample starts with when no settings file exists.
//
// Returns:
//   - Settings: the default settings
func Default() Settings {
	return Settings{
		Resolution: Resolution{Width: 1920, Height: 1080, RenderScale: 1},
		GBuffer:    GBufferRaster,
		Lighting: Lighting{
			Direct:              DirectReSTIR,
			Indirect:            IndirectReSTIRGI,
			DirectResampling:    ResamplingTemporalAndSpatial,
			GIResampling:        ResamplingTemporalAndSpatial,
			LocalLightSampling:  LocalLightPowerRIS,
			Gradients:           true,
			Confidence:          true,
			PresampledTileSize:  1024,
			PresampledTileCount: 128,
		},
		Denoiser: DenoiserReLAX,
		Post: Post{
			AntiAliasing:      AATAA,
			Tonemapping:       true,
			Bloom:             true,
			AccumulationLimit: 1024,
		},
		Profiler: Profiler{Enabled: true, ReportFrames: 600},
		Debug:    Debug{LogLevel: "info"},
	}
}

// Validate checks the values a settings file can get wrong.
//
// Returns:
//   - error: an ErrInvalidSettings-wrapped error naming the first bad field, or nil
func (s Settings) Validate() error {
	if s.Resolution.Width == 0 || s.Resolution.Height == 0 {
		return fmt.Errorf("%w: resolution %dx%d", ErrInvalidSettings, s.Resolution.Width, s.Resolution.Height)
	}
	if s.Resolution.RenderScale <= 0 || s.Resolution.RenderScale > 1 {
		return fmt.Errorf("%w: render scale %v outside (0, 1]", ErrInvalidSettings, s.Resolution.RenderScale)
	}
	if s.Lighting.PresampledTileSize == 0 || s.Lighting.PresampledTileCount == 0 {
		return fmt.Errorf("%w: presampled tiles %dx%d", ErrInvalidSettings, s.Lighting.PresampledTileCount, s.Lighting.PresampledTileSize)
	}
	return nil
}

// OutputExtent returns the display resolution.
func (s Settings) OutputExtent() common.Extent2D {
	return common.Extent2D{Width: s.Resolution.Width, Height: s.Resolution.Height}
}

// Derived is the read-only state the renderer writes back for display. It is never an input
// to frame orchestration.
type Derived struct {
	DenoiserAvailable     bool
	UpscalerAvailable     bool
	EffectiveAntiAliasing AntiAliasingMode
	// SelectedMaterial is the material under the cursor read back from the GPU, or -1.
	SelectedMaterial int
	AccumulatedFrames uint32
	Frame             uint64
}

// store is the implementation of the Store interface.
type store struct {
	mu       sync.Mutex
	current  Settings
	sequence uint64
	derived  Derived
}

// Store is the mutable settings holder shared between the UI side (window callbacks, the settings
// file watcher) and the renderer. The renderer only reads it through Snapshot.
type Store interface {
	// Snapshot copies the current settings for one frame.
	//
	// Returns:
	//   - Snapshot: an immutable copy stamped with the change sequence number
	Snapshot() Snapshot

	// Update applies fn to the live settings under the store lock and bumps the change sequence.
	//
	// Parameters:
	//   - fn: the mutation to apply
	Update(fn func(*Settings))

	// Replace swaps the live settings wholesale, typically after the settings file was reloaded.
	//
	// Parameters:
	//   - s: the new settings
	//
	// Returns:
	//   - error: the validation error, in which case the live settings are unchanged
	Replace(s Settings) error

	// Derived returns the state last written back by the renderer.
	Derived() Derived

	// SetDerived records the renderer's derived state.
	SetDerived(d Derived)
}

var _ Store = &store{}

// NewStore creates a Store seeded with s.
//
// Parameters:
//   - s: the initial settings
//
// Returns:
//   - Store: the new store
func NewStore(s Settings) Store {
	return &store{current: s, derived: Derived{SelectedMaterial: -1}}
}

func (st *store) Snapshot() Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return Snapshot{Settings: st.current, Sequence: st.sequence}
}

func (st *store) Update(fn func(*Settings)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	fn(&st.current)
	st.sequence++
}

func (st *store) Replace(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.current = s
	st.sequence++
	return nil
}

func (st *store) Derived() Derived {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.derived
}

func (st *store) SetDerived(d Derived) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.derived = d
}
