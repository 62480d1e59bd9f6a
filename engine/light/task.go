package light

import (
	_ "embed"
	"encoding/binary"
	"unsafe"
)

// GPULightTaskSource is the canonical WGSL definition of the LightTask struct.
// Matches GPULightTask layout exactly (16 bytes, std430 aligned).
//
//go:embed assets/light_task.wgsl
var GPULightTaskSource string

// GPULightTaskSize is the byte stride of one task in the task buffer.
const GPULightTaskSize = 16

// GPULightTask is one unit of light preparation: an emissive geometry expanding into
// LightCount triangle lights, or a single primitive light copied from the CPU upload.
// Size: 16 bytes.
type GPULightTask struct {
	Geometry   uint32 // offset  0: geometry index, InvalidIndex for a primitive light
	FirstLight uint32 // offset  4: first light element of the task
	LightCount uint32 // offset  8: triangles of the geometry, 1 for a primitive
	Primitive  uint32 // offset 12: primitive light index, InvalidIndex for a geometry
}

// Size returns the size of the GPULightTask struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (16)
func (t *GPULightTask) Size() int {
	return int(unsafe.Sizeof(*t))
}

// Marshal serializes the GPULightTask struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 16-byte buffer ready for GPU upload
func (t *GPULightTask) Marshal() []byte {
	buf := make([]byte, GPULightTaskSize)
	t.marshalInto(buf)
	return buf
}

func (t *GPULightTask) marshalInto(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], t.Geometry)
	binary.LittleEndian.PutUint32(buf[4:8], t.FirstLight)
	binary.LittleEndian.PutUint32(buf[8:12], t.LightCount)
	binary.LittleEndian.PutUint32(buf[12:16], t.Primitive)
}

// Tasks lists the light preparation tasks: one per emissive geometry in geometry buffer order,
// then one per primitive light. FirstLight is ascending, so a kernel thread finds its task by
// binary search.
//
// Parameters:
//   - meshes: the emitters of every mesh instance, in instance order
//   - primitives: the number of primitive lights
//
// Returns:
//   - []GPULightTask: the tasks
func Tasks(meshes [][]Emitter, primitives uint32) []GPULightTask {
	var (
		tasks    []GPULightTask
		geometry uint32
		first    uint32
	)
	for _, geometries := range meshes {
		for _, e := range geometries {
			if e.Emissive() && e.IndexCount >= 3 {
				n := e.IndexCount / 3
				tasks = append(tasks, GPULightTask{Geometry: geometry, FirstLight: first, LightCount: n, Primitive: InvalidIndex})
				first += n
			}
			geometry++
		}
	}
	for p := range primitives {
		tasks = append(tasks, GPULightTask{Geometry: InvalidIndex, FirstLight: first + p, LightCount: 1, Primitive: p})
	}
	return tasks
}

// MarshalTasks packs tasks into a buffer of capacity records. Records past the last task carry
// FirstLight = InvalidIndex so a binary search over the whole buffer never lands on them.
//
// Parameters:
//   - tasks: the tasks, at most capacity
//   - capacity: the record count of the task buffer
//
// Returns:
//   - []byte: capacity*16 bytes
func MarshalTasks(tasks []GPULightTask, capacity uint32) []byte {
	n := max(capacity, uint32(len(tasks)), 1)
	buf := make([]byte, int(n)*GPULightTaskSize)
	pad := GPULightTask{Geometry: InvalidIndex, FirstLight: InvalidIndex, Primitive: InvalidIndex}
	for i := range int(n) {
		t := pad
		if i < len(tasks) {
			t = tasks[i]
		}
		t.marshalInto(buf[i*GPULightTaskSize:])
	}
	return buf
}
