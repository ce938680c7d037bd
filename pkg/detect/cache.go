package detect

import "github.com/freshen/freshen/pkg/config"

// Cache tracks the last-known top layer diff-id of every distinct base image
// in the configuration. It is created empty at orchestration start, populated
// lazily on first use, and refreshed when an image that doubles as a base is
// looked up or rebuilt during the same run. The run is single-threaded; a
// concurrent implementation would need to guard this map.
type Cache struct {
	topLayer map[string]string
}

// NewCache builds a cache keyed by the distinct base references of specs.
func NewCache(specs []config.Spec) *Cache {
	c := &Cache{topLayer: make(map[string]string, len(specs))}
	for _, spec := range specs {
		if _, ok := c.topLayer[spec.Base]; !ok {
			c.topLayer[spec.Base] = ""
		}
	}
	return c
}

// Tracks reports whether ref is one of the configured base references.
func (c *Cache) Tracks(ref string) bool {
	_, ok := c.topLayer[ref]
	return ok
}

// Resolved reports whether ref's top layer has been looked up already.
func (c *Cache) Resolved(ref string) bool {
	return c.topLayer[ref] != ""
}

// TopLayer returns the cached top layer diff-id for ref, or "".
func (c *Cache) TopLayer(ref string) string {
	return c.topLayer[ref]
}

// SetTopLayer records the top layer diff-id for a tracked base reference.
// Setting an untracked reference is a no-op.
func (c *Cache) SetTopLayer(ref, layer string) {
	if _, ok := c.topLayer[ref]; ok {
		c.topLayer[ref] = layer
	}
}

// Bases returns the set of tracked base references.
func (c *Cache) Bases() []string {
	bases := make([]string, 0, len(c.topLayer))
	for ref := range c.topLayer {
		bases = append(bases, ref)
	}
	return bases
}
