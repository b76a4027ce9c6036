// Package cache provides a generic LRU cache with a soft limit and an
// eviction callback.
//
// gfx uses it to memoize native objects that are expensive to derive,
// such as render pipelines keyed by their full fixed-function
// configuration. The eviction callback destroys the native object.
//
//	c := cache.New[uint64, backend.RenderPipeline](64, func(_ uint64, p backend.RenderPipeline) {
//		p.Destroy()
//	})
//	p, hit, err := c.GetOrCreate(key, build)
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
