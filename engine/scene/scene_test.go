package scene

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/Carmen-Shannon/oxy-restir/common"
	"github.com/Carmen-Shannon/oxy-restir/engine/light"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
)

func quad(emissive bool) Mesh {
	g := Geometry{FirstIndex: 0, IndexCount: 6}
	if emissive {
		g.EmissiveColor = [3]float32{1, 1, 1}
		g.EmissiveIntensity = 5
	}
	return Mesh{
		Name:       "quad",
		Positions:  [][3]float32{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}},
		Indices:    []uint32{0, 1, 2, 0, 2, 3},
		Geometries: []Geometry{g},
	}
}

func testScene() Scene {
	return NewScene("test",
		WithMeshes(quad(true), quad(false)),
		WithInstances(Instance{Mesh: 0, Transform: Identity}, Instance{Mesh: 1, Transform: Identity}, Instance{Mesh: 7}),
		WithLights(&light.Point{Name: "bulb", Intensity: 1}),
		WithCountWorkers(2),
	)
}

func TestLightCountsCachedPerVersion(t *testing.T) {
	s := testScene()
	counts := s.LightCounts()
	assert.Equal(t, light.Counts{EmissiveMeshes: 1, EmissiveTriangles: 2, PrimitiveLights: 1, GeometryInstances: 2}, counts)

	v := s.Version()
	require.NoError(t, s.AddInstance(0, Identity))
	assert.Greater(t, s.Version(), v)
	assert.Equal(t, uint32(2), s.LightCounts().EmissiveMeshes)

	assert.Error(t, s.AddInstance(5, Identity))
}

func TestSetInstancesReplacesAll(t *testing.T) {
	s := testScene()
	v := s.Version()
	require.NoError(t, s.SetInstances([]Instance{{Mesh: 0, Transform: Identity}, {Mesh: 0, Transform: Identity}, {Mesh: 0, Transform: Identity}}))
	assert.Greater(t, s.Version(), v)
	assert.Equal(t, uint32(3), s.LightCounts().EmissiveMeshes)

	v = s.Version()
	assert.Error(t, s.SetInstances([]Instance{{Mesh: 2}}))
	assert.Equal(t, v, s.Version())
	assert.Len(t, s.Emitters(), 3)
}

func TestLightsAreCopies(t *testing.T) {
	s := testScene()
	ls := s.Lights()
	ls[0].(*light.Point).Intensity = 100
	assert.Equal(t, float32(1), s.Lights()[0].(*light.Point).Intensity)
}

func TestUploadOnlyWhenChanged(t *testing.T) {
	s := testScene()
	backend := renderer.NewRecordingBackend()

	b1, err := s.Upload(backend)
	require.NoError(t, err)
	assert.NotZero(t, b1.Geometries)
	b2, err := s.Upload(backend)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
	assert.Equal(t, 1, backend.Created("SceneGeometries"))

	data, err := backend.ReadResource(b1.Geometries)
	require.NoError(t, err)
	assert.Len(t, data, 2*32)

	s.SetLights(nil)
	_, err = s.Upload(backend)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.Created("SceneGeometries"))
	assert.Equal(t, 4, backend.LiveResources())

	s.Release(backend)
	assert.Zero(t, backend.LiveResources())
}

func TestPackRebasesIndices(t *testing.T) {
	s := testScene().(*scene)
	_, indices, instances, geometries := s.pack()
	assert.Len(t, indices, 12*4)
	assert.Len(t, instances, 2*instanceStride)
	// the second instance uses mesh 1, whose indices start at 6
	second := geometries[32:]
	assert.Equal(t, []byte{6, 0, 0, 0}, second[16:20])
	assert.Equal(t, []byte{4, 0, 0, 0}, second[24:28])
}

func TestResolveEnvironmentMap(t *testing.T) {
	m, err := ResolveEnvironmentMap("")
	require.NoError(t, err)
	assert.True(t, m.Procedural)
	assert.Equal(t, ProceduralExtent, m.Extent)
	assert.Len(t, m.Bytes(), int(ProceduralExtent.Width*ProceduralExtent.Height*16))

	m, err = ResolveEnvironmentMap(filepath.Join(t.TempDir(), "missing.bmp"))
	assert.Error(t, err)
	require.NotNil(t, m)
	assert.True(t, m.Procedural)
}

func TestLoadEnvironmentMapBMP(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for y := range 2 {
		for x := range 4 {
			img.Set(x, y, color.RGBA{R: 255, G: 0, B: 0, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "sky.bmp")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, bmp.Encode(f, img))
	require.NoError(t, f.Close())

	m, err := LoadEnvironmentMap(path)
	require.NoError(t, err)
	assert.False(t, m.Procedural)
	assert.Equal(t, common.Extent2D{Width: 4, Height: 2}, m.Extent)
	assert.InDelta(t, 1.0, m.Texels[0], 1e-6)
	assert.InDelta(t, 0.0, m.Texels[1], 1e-6)
}
