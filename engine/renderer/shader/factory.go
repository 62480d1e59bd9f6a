package shader

import (
	"fmt"
	"io/fs"
	"sync"

	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
)

// factory is the implementation of the Factory interface.
type factory struct {
	mu      *sync.Mutex
	fsys    fs.FS
	pp      PreProcessor
	sources map[string]string
	epoch   uint64
}

// Factory reads WGSL kernels from a file system and turns them into Shaders. Raw sources are
// cached until Reload, which starts a new epoch.
type Factory interface {
	// Load reads, pre-processes and validates the kernel at path.
	//
	// Parameters:
	//   - path: the kernel path inside the factory's file system
	//   - layout: the binding layout the kernel is compiled for
	//   - defines: the permutation flags
	//
	// Returns:
	//   - Shader: the processed shader
	//   - error: a read or pre-processing error
	Load(path string, layout renderer.BindingLayout, defines Defines) (Shader, error)

	// Epoch returns the current reload epoch. Pipelines built in an older epoch are stale.
	//
	// Returns:
	//   - uint64: the epoch, starting at 1
	Epoch() uint64

	// Reload drops every cached source and starts a new epoch.
	//
	// Returns:
	//   - uint64: the new epoch
	Reload() uint64
}

var _ Factory = &factory{}

// NewFactory creates a Factory over fsys.
//
// Parameters:
//   - fsys: the file system holding the kernels, e.g. the embedded set or os.DirFS(dir)
//   - options: variadic list of FactoryBuilderOption functions
//
// Returns:
//   - Factory: the factory
func NewFactory(fsys fs.FS, options ...FactoryBuilderOption) Factory {
	f := &factory{
		mu:      &sync.Mutex{},
		fsys:    fsys,
		pp:      NewPreProcessor(nil),
		sources: make(map[string]string),
		epoch:   1,
	}
	for _, opt := range options {
		opt(f)
	}
	return f
}

func (f *factory) Load(path string, layout renderer.BindingLayout, defines Defines) (Shader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, ok := f.sources[path]
	if !ok {
		data, err := fs.ReadFile(f.fsys, path)
		if err != nil {
			return nil, fmt.Errorf("read shader %s: %w", path, err)
		}
		raw = string(data)
		f.sources[path] = raw
	}
	return newShader(path, raw, f.epoch, f.pp, layout, defines)
}

func (f *factory) Epoch() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.epoch
}

func (f *factory) Reload() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.sources)
	f.epoch++
	return f.epoch
}
