package shaders

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/Carmen-Shannon/oxy-restir/engine/light"
	"github.com/Carmen-Shannon/oxy-restir/engine/logger"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-restir/engine/scene"
)

//go:embed assets
var assets embed.FS

// includeDir holds the helper sources pasted by @oxy:include, keyed by file name.
const includeDir = "include"

// Embedded returns the compiled-in kernel tree rooted at the kernel paths, e.g.
// "di/temporal.wgsl".
//
// Returns:
//   - fs.FS: the embedded kernels
func Embedded() fs.FS {
	sub, err := fs.Sub(assets, "assets")
	if err != nil {
		panic(err)
	}
	return sub
}

// NewFactory creates the shader factory for the frame's kernels. An empty dir serves the
// embedded kernels; otherwise kernels are read from dir, so a Reload picks up edits on disk.
// The struct definitions shared with the CPU and the helper includes are registered for
// @oxy:include.
//
// Parameters:
//   - dir: the kernel directory, empty for the embedded kernels
//
// Returns:
//   - shader.Factory: the factory
//   - error: an include that cannot be read
func NewFactory(dir string) (shader.Factory, error) {
	fsys := Embedded()
	if dir != "" {
		fsys = os.DirFS(dir)
		logger.Info("shaders loaded from %s", dir)
	}

	opts := []shader.FactoryBuilderOption{
		shader.WithStruct("constants", pass.GPUPassConstantsSource),
		shader.WithStruct("light", light.GPULightSource),
		shader.WithStruct("light_header", light.GPULightHeaderSource),
		shader.WithStruct("light_task", light.GPULightTaskSource),
		shader.WithStruct("geometry_instance", scene.GPUGeometryInstanceSource),
	}
	includes, err := Includes(fsys)
	if err != nil {
		return nil, err
	}
	for key, src := range includes {
		opts = append(opts, shader.WithStruct(key, src))
	}
	return shader.NewFactory(fsys, opts...), nil
}

// Includes reads the helper sources of a kernel tree, keyed by their file name without the
// extension.
//
// Parameters:
//   - fsys: the kernel tree
//
// Returns:
//   - map[string]string: the sources by include key
//   - error: an unreadable include directory or file
func Includes(fsys fs.FS) (map[string]string, error) {
	entries, err := fs.ReadDir(fsys, includeDir)
	if err != nil {
		return nil, fmt.Errorf("shader includes: %w", err)
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".wgsl" {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(includeDir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("shader include %s: %w", e.Name(), err)
		}
		out[strings.TrimSuffix(e.Name(), ".wgsl")] = string(data)
	}
	return out, nil
}
