package light

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// InvalidIndex marks an absent light, e.g. the environment index of a scene without sky.
const InvalidIndex = 0xffffffff

// GPULightSource is the canonical WGSL definition of the Light struct.
// Matches GPULight layout exactly (64 bytes, std430 aligned).
//
//go:embed assets/light.wgsl
var GPULightSource string

// GPULight is the GPU-aligned record of one light. Emissive triangles are written in the same
// format by the light preparation kernel.
// Size: 64 bytes (std430 / WGSL aligned).
type GPULight struct {
	Position  [3]float32 // offset  0: world-space position, unused for infinite lights
	Kind      uint32     // offset 12: Kind
	Color     [3]float32 // offset 16: linear RGB
	Power     float32    // offset 28: intensity, flux or irradiance
	Direction [3]float32 // offset 32: normalized axis or normal
	SizeA     float32    // offset 44: radius, length, width or angular size
	SizeB     float32    // offset 48: cylinder radius, rect height, spot cos(inner)
	SizeC     float32    // offset 52: spot cos(outer), environment rotation
	Index     int32      // offset 56: IES profile or environment texture index, -1 when none
	Flags     uint32     // offset 60: reserved
}

// Size returns the size of the GPULight struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (64)
func (g *GPULight) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPULight struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 64-byte buffer ready for GPU upload
func (g *GPULight) Marshal() []byte {
	buf := make([]byte, 64)
	g.marshalInto(buf)
	return buf
}

func (g *GPULight) marshalInto(buf []byte) {
	putVec3(buf[0:12], g.Position)
	binary.LittleEndian.PutUint32(buf[12:16], g.Kind)
	putVec3(buf[16:28], g.Color)
	binary.LittleEndian.PutUint32(buf[28:32], math.Float32bits(g.Power))
	putVec3(buf[32:44], g.Direction)
	binary.LittleEndian.PutUint32(buf[44:48], math.Float32bits(g.SizeA))
	binary.LittleEndian.PutUint32(buf[48:52], math.Float32bits(g.SizeB))
	binary.LittleEndian.PutUint32(buf[52:56], math.Float32bits(g.SizeC))
	binary.LittleEndian.PutUint32(buf[56:60], uint32(g.Index))
	binary.LittleEndian.PutUint32(buf[60:64], g.Flags)
}

func putVec3(buf []byte, v [3]float32) {
	for i := range 3 {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v[i]))
	}
}

// GPULightHeaderSource is the canonical WGSL definition of the LightHeader struct.
// Matches GPULightHeader layout exactly (32 bytes, std430 aligned).
//
//go:embed assets/light_header.wgsl
var GPULightHeaderSource string

// GPULightHeader describes the regions of the light buffer.
// Size: 32 bytes.
type GPULightHeader struct {
	LocalFirst         uint32 // offset  0: first local light
	LocalCount         uint32 // offset  4: emissive triangles plus local primitive lights
	InfiniteFirst      uint32 // offset  8: first infinite light
	InfiniteCount      uint32 // offset 12: directional lights
	EnvironmentIndex   uint32 // offset 16: the environment light, InvalidIndex when absent
	EnvironmentPresent uint32 // offset 20: 1 when the environment light is sampled
	EmissiveTriangles  uint32 // offset 24: records written by the light preparation kernel
	PrimitiveFirst     uint32 // offset 28: first record written from the CPU
}

// Size returns the size of the GPULightHeader struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (32)
func (h *GPULightHeader) Size() int {
	return int(unsafe.Sizeof(*h))
}

// Marshal serializes the GPULightHeader struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 32-byte buffer ready for GPU upload
func (h *GPULightHeader) Marshal() []byte {
	buf := make([]byte, 32)
	binary.LittleEndian.PutUint32(buf[0:4], h.LocalFirst)
	binary.LittleEndian.PutUint32(buf[4:8], h.LocalCount)
	binary.LittleEndian.PutUint32(buf[8:12], h.InfiniteFirst)
	binary.LittleEndian.PutUint32(buf[12:16], h.InfiniteCount)
	binary.LittleEndian.PutUint32(buf[16:20], h.EnvironmentIndex)
	binary.LittleEndian.PutUint32(buf[20:24], h.EnvironmentPresent)
	binary.LittleEndian.PutUint32(buf[24:28], h.EmissiveTriangles)
	binary.LittleEndian.PutUint32(buf[28:32], h.PrimitiveFirst)
	return buf
}

func (l *Directional) GPU() GPULight {
	return GPULight{
		Kind:      uint32(KindDirectional),
		Color:     l.Color,
		Power:     l.Irradiance,
		Direction: normalize(l.Direction),
		SizeA:     l.AngularSize,
		Index:     -1,
	}
}

func (l *Point) GPU() GPULight {
	return GPULight{
		Position: l.Position,
		Kind:     uint32(KindPoint),
		Color:    l.Color,
		Power:    l.Intensity,
		SizeA:    l.Radius,
		Index:    -1,
	}
}

func (l *Spot) GPU() GPULight {
	g := l.Point.GPU()
	g.Kind = uint32(KindSpot)
	g.Direction = normalize(l.Direction)
	g.SizeB = cosDegrees(l.InnerAngle)
	g.SizeC = cosDegrees(l.OuterAngle)
	g.Index = l.ProfileIndex
	return g
}

func (l *Environment) GPU() GPULight {
	return GPULight{
		Kind:  uint32(KindEnvironment),
		Color: l.RadianceScale,
		Power: 1,
		SizeC: l.Rotation,
		Index: l.TextureIndex,
	}
}

func (l *Cylinder) GPU() GPULight {
	return GPULight{
		Position:  l.Position,
		Kind:      uint32(KindCylinder),
		Color:     l.Color,
		Power:     l.Flux,
		Direction: normalize(l.Direction),
		SizeA:     l.Length,
		SizeB:     l.Radius,
		Index:     -1,
	}
}

func (l *Disk) GPU() GPULight {
	return GPULight{
		Position:  l.Position,
		Kind:      uint32(KindDisk),
		Color:     l.Color,
		Power:     l.Flux,
		Direction: normalize(l.Direction),
		SizeA:     l.Radius,
		Index:     -1,
	}
}

func (l *Rect) GPU() GPULight {
	return GPULight{
		Position:  l.Position,
		Kind:      uint32(KindRect),
		Color:     l.Color,
		Power:     l.Flux,
		Direction: normalize(l.Direction),
		SizeA:     l.Width,
		SizeB:     l.Height,
		Index:     -1,
	}
}

// Pack orders the primitive lights behind the emissive triangles: local primitives first, then
// infinite lights, then the environment light. Only the first environment light is used.
//
// Parameters:
//   - lights: the scene's primitive lights
//   - emissiveTriangles: the records the light preparation kernel writes at the buffer start
//
// Returns:
//   - GPULightHeader: the buffer regions
//   - []byte: the primitive records, to be written at PrimitiveFirst
func Pack(lights []Light, emissiveTriangles uint32) (GPULightHeader, []byte) {
	var local, infinite []GPULight
	var env *GPULight
	for _, l := range lights {
		g := l.GPU()
		switch {
		case l.Kind() == KindEnvironment:
			if env == nil {
				env = &g
			}
		case l.Infinite():
			infinite = append(infinite, g)
		default:
			local = append(local, g)
		}
	}

	h := GPULightHeader{
		LocalFirst:        0,
		LocalCount:        emissiveTriangles + uint32(len(local)),
		EmissiveTriangles: emissiveTriangles,
		PrimitiveFirst:    emissiveTriangles,
		EnvironmentIndex:  InvalidIndex,
	}
	h.InfiniteFirst = h.LocalCount
	h.InfiniteCount = uint32(len(infinite))

	records := append(local, infinite...)
	if env != nil {
		h.EnvironmentIndex = h.InfiniteFirst + h.InfiniteCount
		h.EnvironmentPresent = 1
		records = append(records, *env)
	}

	buf := make([]byte, len(records)*64)
	for i := range records {
		records[i].marshalInto(buf[i*64:])
	}
	return h, buf
}
