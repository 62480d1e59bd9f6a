package pipeline

import (
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/cache"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/shader"
)

// cachePrefix namespaces pipeline entries in the resource cache.
const cachePrefix = "pipeline/"

// library is the implementation of the Library interface.
type library struct {
	backend renderer.Backend
	shaders shader.Factory
	cache   cache.Cache
}

// Library compiles pipelines through the resource cache. A pipeline is rebuilt when the shader
// epoch or its permutation flags change.
type Library interface {
	// Get returns the pipeline for desc built with defines, compiling it if needed.
	//
	// Parameters:
	//   - desc: the pass descriptor
	//   - defines: the permutation flags
	//
	// Returns:
	//   - Pipeline: the pipeline
	//   - error: a compile error, or cache.ErrSealed when a rebuild is needed outside setup
	Get(desc Descriptor, defines shader.Defines) (Pipeline, error)

	// Invalidate drops every compiled pipeline.
	//
	// Returns:
	//   - error: cache.ErrSealed outside setup
	Invalidate() error
}

var _ Library = &library{}

// NewLibrary creates a Library.
//
// Parameters:
//   - backend: the backend pipelines are created on
//   - shaders: the shader factory
//   - c: the cache that owns the pipelines
//
// Returns:
//   - Library: the library
func NewLibrary(backend renderer.Backend, shaders shader.Factory, c cache.Cache) Library {
	return &library{backend: backend, shaders: shaders, cache: c}
}

func (l *library) Get(desc Descriptor, defines shader.Defines) (Pipeline, error) {
	key := cache.Key(l.shaders.Epoch(), defines.Key())
	return cache.GetOrCreate(l.cache, cachePrefix+desc.Key, key, func() (Pipeline, func(), error) {
		s, err := l.shaders.Load(desc.ShaderPath, desc.Layout, defines)
		if err != nil {
			return nil, nil, err
		}
		entry := desc.EntryPoint
		if entry == "" {
			entry = s.EntryPoint()
		}
		h, err := l.backend.CreateComputePipeline(renderer.ComputePipelineDesc{
			Label:      desc.Key,
			Source:     s.Source(),
			EntryPoint: entry,
			Layout:     desc.Layout,
		})
		if err != nil {
			return nil, nil, err
		}
		p := &pipeline{desc: desc, handle: h, shader: s}
		return p, func() { l.backend.ReleasePipeline(h) }, nil
	})
}

func (l *library) Invalidate() error {
	_, err := l.cache.Invalidate(cachePrefix)
	return err
}
