package pipeline

import "github.com/Carmen-Shannon/oxy-restir/engine/renderer"

// DescriptorBuilderOption is a functional option used to configure a Descriptor during construction.
type DescriptorBuilderOption func(*Descriptor)

// NewDescriptor creates a Descriptor that dispatches full screen unless configured otherwise.
//
// Parameters:
//   - key: the unique pass key
//   - shaderPath: the kernel path in the shader factory's file system
//   - options: variadic list of DescriptorBuilderOption functions
//
// Returns:
//   - Descriptor: the descriptor
func NewDescriptor(key, shaderPath string, options ...DescriptorBuilderOption) Descriptor {
	d := Descriptor{
		Key:        key,
		ShaderPath: shaderPath,
		Dispatch:   DispatchFullScreen,
	}
	for _, opt := range options {
		opt(&d)
	}
	return d
}

// WithLayout sets the binding layout of the pass.
//
// Parameters:
//   - slots: the binding slots
//
// Returns:
//   - DescriptorBuilderOption: a function that sets the layout
func WithLayout(slots ...renderer.BindingSlot) DescriptorBuilderOption {
	return func(d *Descriptor) {
		d.Layout = renderer.BindingLayout(slots)
	}
}

// WithEntryPoint selects the kernel entry point.
//
// Parameters:
//   - name: the @compute function name
//
// Returns:
//   - DescriptorBuilderOption: a function that sets the entry point
func WithEntryPoint(name string) DescriptorBuilderOption {
	return func(d *Descriptor) {
		d.EntryPoint = name
	}
}

// WithDispatch sets the dispatch-size formula.
//
// Parameters:
//   - fn: the formula
//
// Returns:
//   - DescriptorBuilderOption: a function that sets the formula
func WithDispatch(fn DispatchSize) DescriptorBuilderOption {
	return func(d *Descriptor) {
		d.Dispatch = fn
	}
}
