// Package cache builds expensive GPU objects on demand and rebuilds them only when the key they
// were built for changes. Rebuilds are confined to the frame's setup phase: outside it the cache
// is sealed and a key mismatch is an error rather than a silent mid-frame reallocation.
package cache

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-restir/engine/logger"
	"github.com/google/uuid"
)

// ErrSealed is returned when an entry would have to be built or released while the cache is sealed.
var ErrSealed = errors.New("resource cache is sealed")

// BuildFunc creates the object for an entry. The returned release function frees it and may be nil.
type BuildFunc func() (value any, release func(), err error)

// Entry describes a cached object.
type Entry struct {
	Value   any
	Key     string
	BuildID uuid.UUID
	// Builds counts how many times the entry was built over the life of the cache.
	Builds int
}

type entry struct {
	Entry
	release func()
}

// resourceCache is the implementation of the Cache interface.
type resourceCache struct {
	mu      *sync.Mutex
	entries map[string]*entry
	builds  map[string]int
	sealed  bool
}

// Cache owns named GPU objects together with the dependency key each was built for.
type Cache interface {
	// Resolve returns the object cached under name if it was built for key. Otherwise the stale
	// object is released and build is called. Prefer the typed GetOrCreate helper.
	//
	// Parameters:
	//   - name: the entry name
	//   - key: the dependency key the object must match
	//   - build: creates the object when the key changed
	//
	// Returns:
	//   - any: the cached or freshly built object
	//   - error: ErrSealed if a rebuild is needed while sealed, or the build error
	Resolve(name, key string, build BuildFunc) (any, error)

	// Lookup returns the entry cached under name without building anything.
	//
	// Parameters:
	//   - name: the entry name
	//
	// Returns:
	//   - Entry: the entry
	//   - bool: true if the entry exists
	Lookup(name string) (Entry, bool)

	// Builds returns how many times name was built, including builds that were later released.
	//
	// Parameters:
	//   - name: the entry name
	//
	// Returns:
	//   - int: the build count
	Builds(name string) int

	// Invalidate releases every entry whose name starts with prefix. An empty prefix drops everything.
	//
	// Parameters:
	//   - prefix: the entry name prefix
	//
	// Returns:
	//   - int: the number of released entries
	//   - error: ErrSealed while sealed
	Invalidate(prefix string) (int, error)

	// Seal forbids builds and releases until Unseal.
	Seal()

	// Unseal permits builds and releases. Only the frame's setup phase runs unsealed.
	Unseal()

	// Sealed reports whether the cache is sealed.
	Sealed() bool

	// Names returns the names of every cached entry, sorted.
	Names() []string

	// Release frees every cached object regardless of the sealed state. Used at teardown.
	Release()
}

var _ Cache = &resourceCache{}

// NewCache creates an empty, unsealed Cache.
//
// Returns:
//   - Cache: the cache
func NewCache() Cache {
	return &resourceCache{
		mu:      &sync.Mutex{},
		entries: make(map[string]*entry),
		builds:  make(map[string]int),
	}
}

// GetOrCreate is the typed form of Cache.Resolve.
//
// Parameters:
//   - c: the cache
//   - name: the entry name
//   - key: the dependency key the object must match
//   - build: creates the object and its release function
//
// Returns:
//   - T: the cached or freshly built object
//   - error: ErrSealed, the build error, or a type mismatch with an earlier build under name
func GetOrCreate[T any](c Cache, name, key string, build func() (T, func(), error)) (T, error) {
	var zero T
	v, err := c.Resolve(name, key, func() (any, func(), error) {
		return build()
	})
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache entry %s holds %T", name, v)
	}
	return t, nil
}

// Key joins dependency components into one cache key.
//
// Parameters:
//   - parts: the components, formatted with %v
//
// Returns:
//   - string: the key
func Key(parts ...any) string {
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = fmt.Sprint(p)
	}
	return strings.Join(s, "|")
}

func (c *resourceCache) Resolve(name, key string, build BuildFunc) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[name]
	if ok && e.Key == key {
		return e.Value, nil
	}
	if c.sealed {
		return nil, fmt.Errorf("%w: %s needs a rebuild for key %q", ErrSealed, name, key)
	}
	if ok {
		if e.release != nil {
			e.release()
		}
		delete(c.entries, name)
	}

	value, release, err := build()
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", name, err)
	}
	c.builds[name]++
	ne := &entry{
		Entry: Entry{
			Value:   value,
			Key:     key,
			BuildID: uuid.New(),
			Builds:  c.builds[name],
		},
		release: release,
	}
	c.entries[name] = ne
	logger.Debug("cache build %s [%s] key=%q build=%d", name, ne.BuildID, key, ne.Builds)
	return value, nil
}

func (c *resourceCache) Lookup(name string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[name]
	if !ok {
		return Entry{}, false
	}
	return e.Entry, true
}

func (c *resourceCache) Builds(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builds[name]
}

func (c *resourceCache) Invalidate(prefix string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		return 0, fmt.Errorf("%w: invalidate %q", ErrSealed, prefix)
	}
	n := 0
	for name, e := range c.entries {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if e.release != nil {
			e.release()
		}
		delete(c.entries, name)
		n++
	}
	return n, nil
}

func (c *resourceCache) Seal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealed = true
}

func (c *resourceCache) Unseal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealed = false
}

func (c *resourceCache) Sealed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sealed
}

func (c *resourceCache) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *resourceCache) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.release != nil {
			e.release()
		}
	}
	clear(c.entries)
}
