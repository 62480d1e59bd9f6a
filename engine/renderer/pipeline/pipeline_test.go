package pipeline

import (
	"testing"
	"testing/fstest"

	"github.com/Carmen-Shannon/oxy-restir/common"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/cache"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchFormulas(t *testing.T) {
	hd := common.Extent2D{Width: 1920, Height: 1080}
	checker := true
	tests := []struct {
		name string
		fn   DispatchSize
		in   DispatchInput
		want [3]uint32
	}{
		{"full screen exact", DispatchFullScreen, DispatchInput{Extent: hd, Group: [3]uint32{8, 8, 1}}, [3]uint32{240, 135, 1}},
		{"full screen partial", DispatchFullScreen, DispatchInput{Extent: common.Extent2D{Width: 1281, Height: 719}, Group: [3]uint32{16, 16, 1}}, [3]uint32{81, 45, 1}},
		{"checkerboard", DispatchCheckerboard(func() bool { return checker }), DispatchInput{Extent: hd, Group: [3]uint32{8, 8, 1}}, [3]uint32{120, 135, 1}},
		{"gradients", DispatchDownscaled(4), DispatchInput{Extent: common.Extent2D{Width: 1282, Height: 721}, Group: [3]uint32{8, 8, 1}}, [3]uint32{41, 23, 1}},
		{"linear", DispatchLinear, DispatchInput{Count: 1025, Group: [3]uint32{256, 1, 1}}, [3]uint32{5, 1, 1}},
		{"linear empty", DispatchLinear, DispatchInput{Count: 0, Group: [3]uint32{256, 1, 1}}, [3]uint32{0, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fn(tt.in))
		})
	}

	checker = false
	assert.Equal(t, [3]uint32{240, 135, 1}, DispatchCheckerboard(func() bool { return checker })(DispatchInput{Extent: hd, Group: [3]uint32{8, 8, 1}}))
}

const kernel = `//@oxy:define CHECKERBOARD
//@oxy:bindings
@compute @workgroup_size(8, 8)
fn main() {}
`

func newLibrary(t *testing.T) (Library, *renderer.RecordingBackend, shader.Factory, cache.Cache) {
	t.Helper()
	backend := renderer.NewRecordingBackend()
	shaders := shader.NewFactory(fstest.MapFS{"temporal.wgsl": {Data: []byte(kernel)}})
	c := cache.NewCache()
	return NewLibrary(backend, shaders, c), backend, shaders, c
}

func TestLibraryCachesAndRebuilds(t *testing.T) {
	lib, backend, shaders, c := newLibrary(t)
	desc := NewDescriptor("Temporal Resampling", "temporal.wgsl",
		WithLayout(renderer.BindingSlot{Slot: 0, Type: renderer.BindingStorageReadWrite, Name: "reservoirs"}),
		WithDispatch(DispatchDownscaled(2)),
	)

	p1, err := lib.Get(desc, shader.Defines{"CHECKERBOARD": 0})
	require.NoError(t, err)
	p2, err := lib.Get(desc, shader.Defines{"CHECKERBOARD": 0})
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.Equal(t, 1, backend.Created("Temporal Resampling"))
	assert.Equal(t, [3]uint32{8, 8, 1}, p1.WorkgroupSize())
	assert.Equal(t, [3]uint32{60, 34, 1}, p1.DispatchSize(DispatchInput{Extent: common.Extent2D{Width: 960, Height: 540}}))

	p3, err := lib.Get(desc, shader.Defines{"CHECKERBOARD": 1})
	require.NoError(t, err)
	assert.NotEqual(t, p1.Handle(), p3.Handle())
	assert.Equal(t, 2, backend.Created("Temporal Resampling"))

	shaders.Reload()
	c.Seal()
	_, err = lib.Get(desc, shader.Defines{"CHECKERBOARD": 1})
	assert.ErrorIs(t, err, cache.ErrSealed)
	assert.ErrorIs(t, lib.Invalidate(), cache.ErrSealed)

	c.Unseal()
	p4, err := lib.Get(desc, shader.Defines{"CHECKERBOARD": 1})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), p4.Shader().Epoch())
	assert.Equal(t, 3, backend.Created("Temporal Resampling"))

	require.NoError(t, lib.Invalidate())
	assert.Empty(t, c.Names())
}

func TestDescriptorDefaults(t *testing.T) {
	d := NewDescriptor("Composite", "composite.wgsl", WithEntryPoint("composite_main"))
	assert.Equal(t, "Composite", d.Key)
	assert.Equal(t, "composite_main", d.EntryPoint)
	assert.NotNil(t, d.Dispatch)
	assert.Empty(t, d.Layout)
}
