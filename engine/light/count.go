package light

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
)

// countChunk is the number of meshes one counting task covers.
const countChunk = 64

// Emitter is the emissive view of one mesh geometry.
type Emitter struct {
	EmissiveColor     [3]float32
	EmissiveIntensity float32
	IndexCount        uint32
}

// Emissive reports whether the geometry contributes triangle lights.
func (e Emitter) Emissive() bool {
	return (e.EmissiveColor[0] != 0 || e.EmissiveColor[1] != 0 || e.EmissiveColor[2] != 0) && e.EmissiveIntensity > 0
}

// Counts are the light counts the light buffers are sized from.
type Counts struct {
	EmissiveMeshes    uint32
	EmissiveTriangles uint32
	PrimitiveLights   uint32
	GeometryInstances uint32
}

// Counter counts lights in parallel on a reusable worker pool.
type Counter struct {
	pool    worker.DynamicWorkerPool
	workers int
}

// NewCounter creates a Counter with workers goroutines. Zero uses one less than the CPU count.
//
// Parameters:
//   - workers: the pool size
//
// Returns:
//   - *Counter: the counter
func NewCounter(workers int) *Counter {
	if workers <= 0 {
		workers = max(runtime.NumCPU()-1, 1)
	}
	return &Counter{
		pool:    worker.NewDynamicWorkerPool(workers, 256, 1*time.Second),
		workers: workers,
	}
}

// Count counts emissive geometries and their triangles across meshes, plus the primitive
// lights. A geometry is one emissive mesh; its triangles are IndexCount/3.
//
// Parameters:
//   - meshes: the emitters of every mesh instance, one slice per instance
//   - primitives: the scene's primitive lights
//
// Returns:
//   - Counts: the totals
func (c *Counter) Count(meshes [][]Emitter, primitives []Light) Counts {
	var emissiveMeshes, emissiveTriangles, instances atomic.Uint32

	var wg sync.WaitGroup
	taskID := 0
	for start := 0; start < len(meshes); start += countChunk {
		chunk := meshes[start:min(start+countChunk, len(meshes))]
		wg.Add(1)
		id := taskID
		taskID++
		c.pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				var m, t, g uint32
				for _, geometries := range chunk {
					for _, e := range geometries {
						g++
						if e.Emissive() {
							m++
							t += e.IndexCount / 3
						}
					}
				}
				emissiveMeshes.Add(m)
				emissiveTriangles.Add(t)
				instances.Add(g)
				return nil, nil
			},
		})
	}
	wg.Wait()

	return Counts{
		EmissiveMeshes:    emissiveMeshes.Load(),
		EmissiveTriangles: emissiveTriangles.Load(),
		PrimitiveLights:   uint32(len(primitives)),
		GeometryInstances: instances.Load(),
	}
}
