package scene

import "github.com/Carmen-Shannon/oxy-restir/engine/light"

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithMeshes adds meshes to the scene. Meshes are placed with WithInstances or AddInstance.
//
// Parameters:
//   - meshes: the meshes to add
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithMeshes(meshes ...Mesh) SceneBuilderOption {
	return func(s *scene) {
		s.meshes = append(s.meshes, meshes...)
	}
}

// WithInstances places meshes. Instances referencing unknown meshes are dropped.
//
// Parameters:
//   - instances: the instances to add
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithInstances(instances ...Instance) SceneBuilderOption {
	return func(s *scene) {
		for _, inst := range instances {
			if inst.Mesh >= 0 && inst.Mesh < len(s.meshes) {
				s.instances = append(s.instances, inst)
			}
		}
	}
}

// WithLights sets the primitive lights.
//
// Parameters:
//   - lights: the lights, copied
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithLights(lights ...light.Light) SceneBuilderOption {
	return func(s *scene) {
		for _, l := range lights {
			s.lights = append(s.lights, light.Clone(l))
		}
	}
}

// WithCountWorkers sets the number of worker goroutines used to count emissive geometry.
// Defaults to runtime.NumCPU()-1.
//
// Parameters:
//   - n: the number of workers (minimum 1)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithCountWorkers(n int) SceneBuilderOption {
	return func(s *scene) {
		if n < 1 {
			n = 1
		}
		s.countWorkers = n
	}
}
