package scene

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-restir/engine/light"
	"github.com/Carmen-Shannon/oxy-restir/engine/logger"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
)

// Geometry is one draw range of a mesh with its emissive material.
type Geometry struct {
	FirstIndex        uint32
	IndexCount        uint32
	EmissiveColor     [3]float32
	EmissiveIntensity float32
}

// Emitter returns the emissive view of the geometry.
func (g Geometry) Emitter() light.Emitter {
	return light.Emitter{EmissiveColor: g.EmissiveColor, EmissiveIntensity: g.EmissiveIntensity, IndexCount: g.IndexCount}
}

// Mesh is indexed triangle geometry split into geometries.
type Mesh struct {
	Name       string
	Positions  [][3]float32
	Indices    []uint32
	Geometries []Geometry
}

// Instance places a mesh in the world.
type Instance struct {
	Mesh int
	// Transform is a row-major 3x4 affine matrix.
	Transform [12]float32
}

// Identity is the identity instance transform.
var Identity = [12]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0}

// Buffers are the scene's GPU buffers. The frame core binds them and never writes them.
type Buffers struct {
	Vertices  renderer.ResourceHandle
	Indices   renderer.ResourceHandle
	Instances renderer.ResourceHandle
	// Geometries holds one GPUGeometryInstance per geometry of every instance.
	Geometries renderer.ResourceHandle
}

// scene is the implementation of the Scene interface.
type scene struct {
	mu        *sync.RWMutex
	name      string
	meshes    []Mesh
	instances []Instance
	lights    []light.Light
	version   uint64

	counter        *light.Counter
	countWorkers   int
	counts         light.Counts
	countedVersion uint64

	buffers         Buffers
	uploadedVersion uint64
}

// Scene is the narrow view of the world the frame core consumes: light and geometry counts,
// primitive lights, and GPU buffers. The core never mutates a Scene. Changes made by the
// application bump Version, and the core re-reads counts and buffers in the next Setup.
// Thread-safe for concurrent access.
type Scene interface {
	// Name returns the scene's identifier.
	Name() string

	// Version returns a counter that moves whenever geometry or lights change.
	//
	// Returns:
	//   - uint64: the version, starting at 1
	Version() uint64

	// Lights returns copies of the primitive lights.
	//
	// Returns:
	//   - []light.Light: deep copies, safe to modify
	Lights() []light.Light

	// Emitters returns the emissive view of every geometry instance, one slice per instance.
	Emitters() [][]light.Emitter

	// LightCounts counts emissive geometry and primitive lights. The result is cached per Version.
	//
	// Returns:
	//   - light.Counts: the counts
	LightCounts() light.Counts

	// Upload creates or refreshes the scene buffers on backend when the scene changed.
	//
	// Parameters:
	//   - backend: the GPU backend
	//
	// Returns:
	//   - Buffers: the current buffers
	//   - error: an allocation or upload error
	Upload(backend renderer.Backend) (Buffers, error)

	// Buffers returns the buffers of the last Upload.
	Buffers() Buffers

	// AddInstance places mesh at transform.
	//
	// Parameters:
	//   - mesh: the mesh index
	//   - transform: the instance transform
	//
	// Returns:
	//   - error: an error if mesh is out of range
	AddInstance(mesh int, transform [12]float32) error

	// SetInstances replaces every instance.
	//
	// Parameters:
	//   - instances: the new instances, copied
	//
	// Returns:
	//   - error: an error if an instance names a mesh out of range; the scene is unchanged
	SetInstances(instances []Instance) error

	// SetLights replaces the primitive lights.
	//
	// Parameters:
	//   - lights: the new lights, copied
	SetLights(lights []light.Light)

	// Release frees the scene buffers.
	//
	// Parameters:
	//   - backend: the backend that owns them
	Release(backend renderer.Backend)
}

var _ Scene = &scene{}

// NewScene creates a static scene.
//
// Parameters:
//   - name: the name of the scene
//   - options: functional options to configure the scene
//
// Returns:
//   - Scene: the newly created scene
func NewScene(name string, options ...SceneBuilderOption) Scene {
	s := &scene{
		mu:      &sync.RWMutex{},
		name:    name,
		version: 1,
	}
	for _, option := range options {
		option(s)
	}

	// Created after options so WithCountWorkers can override the default.
	s.counter = light.NewCounter(s.countWorkers)
	return s
}

func (s *scene) Name() string {
	return s.name
}

func (s *scene) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *scene) Lights() []light.Light {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]light.Light, len(s.lights))
	for i, l := range s.lights {
		out[i] = light.Clone(l)
	}
	return out
}

func (s *scene) Emitters() [][]light.Emitter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.emitters()
}

func (s *scene) emitters() [][]light.Emitter {
	out := make([][]light.Emitter, len(s.instances))
	for i, inst := range s.instances {
		geometries := s.meshes[inst.Mesh].Geometries
		out[i] = make([]light.Emitter, len(geometries))
		for j, g := range geometries {
			out[i][j] = g.Emitter()
		}
	}
	return out
}

func (s *scene) LightCounts() light.Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countedVersion != s.version {
		s.counts = s.counter.Count(s.emitters(), s.lights)
		s.countedVersion = s.version
		logger.Debug("scene %s: %d emissive meshes, %d emissive triangles, %d primitive lights",
			s.name, s.counts.EmissiveMeshes, s.counts.EmissiveTriangles, s.counts.PrimitiveLights)
	}
	return s.counts
}

func (s *scene) AddInstance(mesh int, transform [12]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mesh < 0 || mesh >= len(s.meshes) {
		return fmt.Errorf("scene %s: mesh %d out of range (%d meshes)", s.name, mesh, len(s.meshes))
	}
	s.instances = append(s.instances, Instance{Mesh: mesh, Transform: transform})
	s.version++
	return nil
}

func (s *scene) SetInstances(instances []Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, inst := range instances {
		if inst.Mesh < 0 || inst.Mesh >= len(s.meshes) {
			return fmt.Errorf("scene %s: instance %d: mesh %d out of range (%d meshes)", s.name, i, inst.Mesh, len(s.meshes))
		}
	}
	s.instances = append([]Instance(nil), instances...)
	s.version++
	return nil
}

func (s *scene) SetLights(lights []light.Light) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lights = make([]light.Light, len(lights))
	for i, l := range lights {
		s.lights[i] = light.Clone(l)
	}
	s.version++
}

func (s *scene) Buffers() Buffers {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buffers
}

func (s *scene) Upload(backend renderer.Backend) (Buffers, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadedVersion == s.version && s.buffers.Geometries != 0 {
		return s.buffers, nil
	}
	s.release(backend)

	vertices, indices, instances, geometries := s.pack()
	var err error
	create := func(label string, data []byte, usage renderer.ResourceUsage) renderer.ResourceHandle {
		if err != nil {
			return 0
		}
		// zero-length buffers are not allowed, keep one element
		size := max(uint64(len(data)), 16)
		var h renderer.ResourceHandle
		h, err = backend.CreateResource(renderer.ResourceDesc{
			Label: label,
			Kind:  renderer.ResourceKindBuffer,
			Size:  size,
			Usage: usage | renderer.UsageCopyDst,
		})
		if err == nil && len(data) > 0 {
			err = backend.WriteResource(h, 0, data)
		}
		return h
	}
	s.buffers = Buffers{
		Vertices:   create("SceneVertices", vertices, renderer.UsageStorage),
		Indices:    create("SceneIndices", indices, renderer.UsageStorage),
		Instances:  create("SceneInstances", instances, renderer.UsageStorage),
		Geometries: create("SceneGeometries", geometries, renderer.UsageStorage),
	}
	if err != nil {
		s.release(backend)
		return Buffers{}, fmt.Errorf("scene %s upload: %w", s.name, err)
	}
	s.uploadedVersion = s.version
	return s.buffers, nil
}

func (s *scene) release(backend renderer.Backend) {
	for _, h := range []renderer.ResourceHandle{s.buffers.Vertices, s.buffers.Indices, s.buffers.Instances, s.buffers.Geometries} {
		if h != 0 {
			backend.ReleaseResource(h)
		}
	}
	s.buffers = Buffers{}
}

func (s *scene) Release(backend renderer.Backend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.release(backend)
	s.uploadedVersion = 0
}
