package scene

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUGeometryInstanceSource is the canonical WGSL definition of the GeometryInstance struct.
// Matches GPUGeometryInstance layout exactly (32 bytes, std430 aligned).
//
//go:embed assets/geometry_instance.wgsl
var GPUGeometryInstanceSource string

// GPUGeometryInstance is one geometry of one instance, the unit the light preparation kernel
// turns into triangle lights.
// Size: 32 bytes (std430 / WGSL aligned).
type GPUGeometryInstance struct {
	EmissiveColor     [3]float32 // offset  0: emissive RGB
	EmissiveIntensity float32    // offset 12: emissive scale
	FirstIndex        uint32     // offset 16: first index in the scene index buffer
	IndexCount        uint32     // offset 20: index count
	VertexOffset      uint32     // offset 24: first vertex of the mesh in the scene vertex buffer
	InstanceIndex     uint32     // offset 28: owning instance
}

// Size returns the size of the GPUGeometryInstance struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (32)
func (g *GPUGeometryInstance) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUGeometryInstance struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 32-byte buffer ready for GPU upload
func (g *GPUGeometryInstance) Marshal() []byte {
	buf := make([]byte, 32)
	for i := range 3 {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(g.EmissiveColor[i]))
	}
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(g.EmissiveIntensity))
	binary.LittleEndian.PutUint32(buf[16:20], g.FirstIndex)
	binary.LittleEndian.PutUint32(buf[20:24], g.IndexCount)
	binary.LittleEndian.PutUint32(buf[24:28], g.VertexOffset)
	binary.LittleEndian.PutUint32(buf[28:32], g.InstanceIndex)
	return buf
}

// instanceStride is a 3x4 transform followed by the first geometry and geometry count, padded.
const instanceStride = 64

// pack lays out the vertex, index, instance and geometry buffers. Mesh indices are rebased onto
// the shared index buffer.
func (s *scene) pack() (vertices, indices, instances, geometries []byte) {
	vertexBase := make([]uint32, len(s.meshes))
	indexBase := make([]uint32, len(s.meshes))
	var nv, ni uint32
	for i, m := range s.meshes {
		vertexBase[i], indexBase[i] = nv, ni
		nv += uint32(len(m.Positions))
		ni += uint32(len(m.Indices))
	}

	vertices = make([]byte, 0, nv*16)
	indices = make([]byte, 0, ni*4)
	for _, m := range s.meshes {
		for _, p := range m.Positions {
			vertices = binary.LittleEndian.AppendUint32(vertices, math.Float32bits(p[0]))
			vertices = binary.LittleEndian.AppendUint32(vertices, math.Float32bits(p[1]))
			vertices = binary.LittleEndian.AppendUint32(vertices, math.Float32bits(p[2]))
			vertices = binary.LittleEndian.AppendUint32(vertices, math.Float32bits(1))
		}
		for _, idx := range m.Indices {
			indices = binary.LittleEndian.AppendUint32(indices, idx)
		}
	}

	var firstGeometry uint32
	for i, inst := range s.instances {
		m := s.meshes[inst.Mesh]
		rec := make([]byte, instanceStride)
		for j, v := range inst.Transform {
			binary.LittleEndian.PutUint32(rec[j*4:], math.Float32bits(v))
		}
		binary.LittleEndian.PutUint32(rec[48:], firstGeometry)
		binary.LittleEndian.PutUint32(rec[52:], uint32(len(m.Geometries)))
		instances = append(instances, rec...)

		for _, g := range m.Geometries {
			gi := GPUGeometryInstance{
				EmissiveColor:     g.EmissiveColor,
				EmissiveIntensity: g.EmissiveIntensity,
				FirstIndex:        indexBase[inst.Mesh] + g.FirstIndex,
				IndexCount:        g.IndexCount,
				VertexOffset:      vertexBase[inst.Mesh],
				InstanceIndex:     uint32(i),
			}
			geometries = append(geometries, gi.Marshal()...)
		}
		firstGeometry += uint32(len(m.Geometries))
	}
	return vertices, indices, instances, geometries
}
