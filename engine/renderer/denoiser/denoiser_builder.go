package denoiser

// DenoiserBuilderOption is a functional option used to configure a Denoiser during construction.
type DenoiserBuilderOption func(*computeDenoiser)

// WithAvailability sets the availability probe, checked once per frame.
//
// Parameters:
//   - fn: reports whether the denoiser can run
//
// Returns:
//   - DenoiserBuilderOption: a function that sets the probe
func WithAvailability(fn func() bool) DenoiserBuilderOption {
	return func(d *computeDenoiser) {
		d.available = fn
	}
}
