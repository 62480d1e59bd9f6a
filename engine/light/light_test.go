package light

import (
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleLights() []Light {
	return []Light{
		&Directional{Name: "sun", Color: [3]float32{1, 0.9, 0.8}, Irradiance: 3, Direction: [3]float32{0, -2, 0}, AngularSize: 0.5},
		&Point{Name: "bulb", Color: [3]float32{1, 1, 1}, Intensity: 10, Position: [3]float32{1, 2, 3}, Radius: 0.1},
		&Spot{
			Point:        Point{Name: "lamp", Color: [3]float32{1, 1, 1}, Intensity: 5, Radius: 0.05},
			Direction:    [3]float32{0, 0, -1},
			InnerAngle:   30,
			OuterAngle:   45,
			Profile:      "narrow.ies",
			ProfileIndex: -1,
		},
		&Environment{Name: "sky", RadianceScale: [3]float32{1, 1, 1}, Rotation: 0.25, TextureIndex: -1},
		&Cylinder{Name: "tube", Color: [3]float32{1, 0, 0}, Flux: 2, Direction: [3]float32{1, 0, 0}, Length: 2, Radius: 0.1},
		&Disk{Name: "disk", Color: [3]float32{0, 1, 0}, Flux: 4, Direction: [3]float32{0, 1, 0}, Radius: 0.5},
		&Rect{Name: "panel", Color: [3]float32{0, 0, 1}, Flux: 8, Direction: [3]float32{0, 0, 1}, Width: 1, Height: 2},
	}
}

func TestKindNames(t *testing.T) {
	for _, l := range sampleLights() {
		k, err := ParseKind(l.Kind().String())
		require.NoError(t, err)
		assert.Equal(t, l.Kind(), k)
	}
	_, err := ParseKind("area")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestCloneIsDeep(t *testing.T) {
	for _, l := range sampleLights() {
		c := Clone(l)
		require.NotNil(t, c)
		assert.Equal(t, l, c)
		assert.NotSame(t, l, c)
	}

	spot := sampleLights()[2].(*Spot)
	c := Clone(spot).(*Spot)
	c.Position[0] = 42
	assert.Zero(t, spot.Position[0])
}

func TestStoreLoadKeepsEveryVariant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lights.toml")
	lights := sampleLights()
	require.NoError(t, Store(path, lights))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded, len(lights))
	for i := range lights {
		assert.Equal(t, lights[i].Kind(), loaded[i].Kind())
		assert.Equal(t, lights[i].ID(), loaded[i].ID())
	}
	spot := loaded[2].(*Spot)
	assert.Equal(t, "narrow.ies", spot.Profile)
	assert.Equal(t, int32(-1), spot.ProfileIndex)
	assert.Equal(t, float32(45), spot.OuterAngle)
	assert.Equal(t, float32(2), loaded[6].(*Rect).Height)
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode([]byte("[[light]]\nkind = \"area\"\nname = \"x\"\n"))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestGPULightPacking(t *testing.T) {
	g := sampleLights()[2].GPU()
	assert.Equal(t, 64, g.Size())
	buf := g.Marshal()
	require.Len(t, buf, 64)
	assert.Equal(t, uint32(KindSpot), binary.LittleEndian.Uint32(buf[12:]))
	assert.InDelta(t, math.Cos(math.Pi/4), math.Float32frombits(binary.LittleEndian.Uint32(buf[52:])), 1e-6)
	assert.Equal(t, uint32(0xffffffff), binary.LittleEndian.Uint32(buf[56:]))

	// directions are normalized
	d := sampleLights()[0].GPU()
	assert.Equal(t, [3]float32{0, -1, 0}, d.Direction)
}

func TestPackOrdersRegions(t *testing.T) {
	h, records := Pack(sampleLights(), 100)

	// bulb, lamp, tube, disk, panel are local; sun is infinite; sky is last
	assert.Equal(t, uint32(105), h.LocalCount)
	assert.Equal(t, uint32(100), h.PrimitiveFirst)
	assert.Equal(t, uint32(105), h.InfiniteFirst)
	assert.Equal(t, uint32(1), h.InfiniteCount)
	assert.Equal(t, uint32(106), h.EnvironmentIndex)
	assert.Equal(t, uint32(1), h.EnvironmentPresent)
	require.Len(t, records, 7*64)
	assert.Equal(t, uint32(KindPoint), binary.LittleEndian.Uint32(records[12:]))
	assert.Equal(t, uint32(KindDirectional), binary.LittleEndian.Uint32(records[5*64+12:]))
	assert.Equal(t, uint32(KindEnvironment), binary.LittleEndian.Uint32(records[6*64+12:]))

	header := h.Marshal()
	assert.Len(t, header, h.Size())

	h, records = Pack(nil, 0)
	assert.Equal(t, uint32(InvalidIndex), h.EnvironmentIndex)
	assert.Empty(t, records)
}

func TestCounterCountsEmissiveGeometry(t *testing.T) {
	glow := Emitter{EmissiveColor: [3]float32{1, 0, 0}, EmissiveIntensity: 1, IndexCount: 30}
	dark := Emitter{IndexCount: 300}
	off := Emitter{EmissiveColor: [3]float32{1, 1, 1}, EmissiveIntensity: 0, IndexCount: 3}

	meshes := make([][]Emitter, 200)
	for i := range meshes {
		meshes[i] = []Emitter{glow, dark, off}
	}

	c := NewCounter(4)
	counts := c.Count(meshes, sampleLights())
	assert.Equal(t, Counts{
		EmissiveMeshes:    200,
		EmissiveTriangles: 2000,
		PrimitiveLights:   7,
		GeometryInstances: 600,
	}, counts)

	assert.Equal(t, Counts{}, c.Count(nil, nil))
}

func TestRISLayout(t *testing.T) {
	r := NewRISLayout(1024, 128)
	assert.Equal(t, uint32(131072), r.EnvironmentOffset)
	assert.Equal(t, uint32(262144), r.Total)
}

func TestTasksCoverEveryLight(t *testing.T) {
	glow := Emitter{EmissiveColor: [3]float32{1, 1, 1}, EmissiveIntensity: 2, IndexCount: 6}
	dark := Emitter{IndexCount: 9}
	meshes := [][]Emitter{{dark, glow}, {glow}}

	tasks := Tasks(meshes, 2)
	require.Len(t, tasks, 4)
	assert.Equal(t, GPULightTask{Geometry: 1, FirstLight: 0, LightCount: 2, Primitive: InvalidIndex}, tasks[0])
	assert.Equal(t, GPULightTask{Geometry: 2, FirstLight: 2, LightCount: 2, Primitive: InvalidIndex}, tasks[1])
	assert.Equal(t, GPULightTask{Geometry: InvalidIndex, FirstLight: 4, LightCount: 1, Primitive: 0}, tasks[2])
	assert.Equal(t, uint32(5), tasks[3].FirstLight)

	buf := MarshalTasks(tasks, 8)
	require.Len(t, buf, 8*GPULightTaskSize)
	assert.Equal(t, uint32(InvalidIndex), binary.LittleEndian.Uint32(buf[4*GPULightTaskSize+4:]))
	assert.Equal(t, tasks[1].Marshal(), buf[GPULightTaskSize:2*GPULightTaskSize])
	assert.Len(t, MarshalTasks(nil, 0), GPULightTaskSize)
}
