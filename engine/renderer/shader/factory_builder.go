package shader

// FactoryBuilderOption is a functional option used to configure a Factory during construction.
type FactoryBuilderOption func(*factory)

// WithStruct registers a WGSL struct source for @oxy:include.
//
// Parameters:
//   - key: the include key
//   - source: the WGSL struct definition
//
// Returns:
//   - FactoryBuilderOption: a function that registers the struct
func WithStruct(key, source string) FactoryBuilderOption {
	return func(f *factory) {
		f.pp.Register(key, source)
	}
}

// WithPreProcessor replaces the factory's pre-processor.
//
// Parameters:
//   - pp: the pre-processor to use
//
// Returns:
//   - FactoryBuilderOption: a function that sets the pre-processor
func WithPreProcessor(pp PreProcessor) FactoryBuilderOption {
	return func(f *factory) {
		f.pp = pp
	}
}
