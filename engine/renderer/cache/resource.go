package cache

import "github.com/Carmen-Shannon/oxy-restir/engine/renderer"

// Resource returns the buffer or texture cached under name, creating it when desc changed since
// the last call. The stale resource is released first. An empty desc.Label defaults to name.
//
// Parameters:
//   - c: the cache
//   - backend: the backend that allocates the resource
//   - name: the cache entry name
//   - desc: the resource description, the cache key
//
// Returns:
//   - renderer.ResourceHandle: the resource
//   - error: an allocation error, or ErrSealed when a rebuild is needed outside Setup
func Resource(c Cache, backend renderer.Backend, name string, desc renderer.ResourceDesc) (renderer.ResourceHandle, error) {
	if desc.Label == "" {
		desc.Label = name
	}
	key := Key(desc.Kind, desc.Size, desc.Extent, desc.Format, desc.Usage)
	return GetOrCreate(c, name, key, func() (renderer.ResourceHandle, func(), error) {
		h, err := backend.CreateResource(desc)
		if err != nil {
			return 0, nil, err
		}
		return h, func() { backend.ReleaseResource(h) }, nil
	})
}
