package shader

import (
	"testing"
	"testing/fstest"

	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const constantsSource = `struct PassConstants {
	frame: u32,
}`

const temporalKernel = `//@oxy:include constants
//@oxy:define CHECKERBOARD
//@oxy:bindings

@compute @workgroup_size(8, 8)
fn main(@builtin(global_invocation_id) id: vec3u) {
	/* reads previous, writes current */
	let x = CHECKERBOARD;
}
`

var temporalLayout = renderer.BindingLayout{
	{Slot: 0, Type: renderer.BindingUniform, Name: "constants"},
	{Slot: 1, Type: renderer.BindingTexture, Format: renderer.FormatRGBA16Float, Name: "previousDepth"},
	{Slot: 2, Type: renderer.BindingStorageTexture, Format: renderer.FormatRGBA16Float, Name: "currentDepth"},
	{Slot: 3, Type: renderer.BindingStorageReadWrite, Element: "Reservoir", Name: "reservoirs"},
	{Slot: 4, Type: renderer.BindingTexture, Format: renderer.FormatR32Uint, Name: "materialIds"},
}

func newTestFactory() Factory {
	fsys := fstest.MapFS{
		"temporal.wgsl": {Data: []byte(temporalKernel)},
		"empty.wgsl":    {Data: []byte("fn helper() {}")},
	}
	return NewFactory(fsys, WithStruct("constants", constantsSource))
}

func TestLoadExpandsAnnotations(t *testing.T) {
	f := newTestFactory()
	s, err := f.Load("temporal.wgsl", temporalLayout, Defines{"CHECKERBOARD": 1})
	require.NoError(t, err)

	src := s.Source()
	assert.Contains(t, src, "struct PassConstants")
	assert.Contains(t, src, "const CHECKERBOARD: u32 = 1u;")
	assert.Contains(t, src, "@group(0) @binding(0) var<uniform> constants: PassConstants;")
	assert.Contains(t, src, "@group(0) @binding(1) var previousDepth: texture_2d<f32>;")
	assert.Contains(t, src, "@group(0) @binding(2) var currentDepth: texture_storage_2d<rgba16float, write>;")
	assert.Contains(t, src, "@group(0) @binding(3) var<storage, read_write> reservoirs: array<Reservoir>;")
	assert.Contains(t, src, "@group(0) @binding(4) var materialIds: texture_2d<u32>;")
	assert.Equal(t, "main", s.EntryPoint())
	assert.Equal(t, [3]uint32{8, 8, 1}, s.WorkgroupSize())
	assert.Equal(t, uint64(1), s.Epoch())
}

func TestMissingDefineDefaultsToZero(t *testing.T) {
	f := newTestFactory()
	s, err := f.Load("temporal.wgsl", temporalLayout, nil)
	require.NoError(t, err)
	assert.Contains(t, s.Source(), "const CHECKERBOARD: u32 = 0u;")
}

func TestLoadErrors(t *testing.T) {
	f := newTestFactory()

	_, err := f.Load("missing.wgsl", nil, nil)
	assert.Error(t, err)

	_, err = f.Load("empty.wgsl", nil, nil)
	assert.ErrorContains(t, err, "no @compute entry point")

	bad := append(renderer.BindingLayout{}, temporalLayout...)
	bad[1].Name = ""
	_, err = f.Load("temporal.wgsl", bad, nil)
	assert.ErrorContains(t, err, "has no name")

	noStorage := renderer.BindingLayout{{Slot: 0, Type: renderer.BindingUniform, Name: "constants"}}
	s, err := f.Load("temporal.wgsl", noStorage, nil)
	require.NoError(t, err)
	assert.NotContains(t, s.Source(), "reservoirs")
}

func TestReloadStartsNewEpoch(t *testing.T) {
	fsys := fstest.MapFS{"k.wgsl": {Data: []byte("@compute @workgroup_size(64) fn a() {}")}}
	f := NewFactory(fsys)

	s, err := f.Load("k.wgsl", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "a", s.EntryPoint())
	assert.Equal(t, [3]uint32{64, 1, 1}, s.WorkgroupSize())

	fsys["k.wgsl"] = &fstest.MapFile{Data: []byte("@compute @workgroup_size(32) fn b() {}")}
	s, err = f.Load("k.wgsl", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "a", s.EntryPoint(), "source is cached until reload")

	assert.Equal(t, uint64(2), f.Reload())
	s, err = f.Load("k.wgsl", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "b", s.EntryPoint())
	assert.Equal(t, uint64(2), s.Epoch())
}

func TestParseAnnotation(t *testing.T) {
	tests := []struct {
		line    string
		want    *Annotation
		wantErr bool
	}{
		{"let a = 1;", nil, false},
		{"// plain comment", nil, false},
		{"//@oxy:include light", &Annotation{Type: AnnotationTypeInclude, Arg: "light", Line: 3}, false},
		{"  // @oxy:bindings", &Annotation{Type: AnnotationTypeBindings, Line: 3}, false},
		{"//@oxy:define USE_REGIR", &Annotation{Type: AnnotationTypeDefine, Arg: "USE_REGIR", Line: 3}, false},
		{"//@oxy:define 1BAD", nil, true},
		{"//@oxy:include", nil, true},
		{"//@oxy:group 0 0", nil, true},
		{"//@oxy:", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseAnnotation(tt.line, 3)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefinesKey(t *testing.T) {
	assert.Equal(t, "A=1,B=0", Defines{"B": 0, "A": 1}.Key())
	assert.Equal(t, "", Defines{}.Key())
	assert.Equal(t, uint32(1), Flag(true))
	assert.Equal(t, uint32(0), Flag(false))
}
