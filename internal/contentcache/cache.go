// Package contentcache caches serialized backend responses in the relaxed
// store, keyed by backend and by the hash of the logical request path.
//
// Every failure in this package degrades to a cache miss. Errors are logged
// and never returned, except from GetOrFetch where the fetcher's own error
// is passed through.
package contentcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/sync/singleflight"

	"bluebottle/internal/bb"
	"bluebottle/internal/database"
	"bluebottle/internal/state"
)

// DefaultTTL applies when a caller does not give a positive TTL.
const DefaultTTL = 7 * 24 * time.Hour

// Key returns the fixed-width cache key for a logical request path: the hex
// SHA-256 of the path.
func Key(path string) string {
	return bb.PathHash(path)
}

// Cache is a TTL cache layered on the relaxed store. All access goes through
// the state runtime's relaxed actor.
type Cache struct {
	rt     *state.Runtime
	ttl    time.Duration
	logger bb.Logger
	fills  singleflight.Group
}

// New returns a cache over rt. A non-positive defaultTTL means DefaultTTL.
func New(rt *state.Runtime, defaultTTL time.Duration, logger bb.Logger) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	if logger == nil {
		logger = bb.NewNopLogger()
	}
	return &Cache{rt: rt, ttl: defaultTTL, logger: logger}
}

// DefaultTTL returns the TTL used when callers pass zero.
func (c *Cache) DefaultTTL() time.Duration { return c.ttl }

type entry struct {
	content []byte
	ttl     time.Duration
}

// Lookup returns the raw payload cached for path and its remaining TTL.
// An entry whose TTL has run out is reported as a miss even if the row is
// still present; Prune removes it later.
func (c *Cache) Lookup(backendID bb.BackendID, path string) ([]byte, time.Duration, bool) {
	key := Key(path)
	e, err := state.Relaxed(c.rt, func(s *database.RelaxedStore) (entry, error) {
		content, ttl, err := s.GetContentCacheEntry(backendID, key)
		return entry{content: content, ttl: ttl}, err
	})
	if err != nil {
		if !errors.Is(err, bb.ErrNotFound) {
			c.logger.Error("content cache lookup failed", "backend", backendID, "path", path, "error", err)
		}
		return nil, 0, false
	}
	if e.ttl <= 0 {
		return nil, 0, false
	}
	return e.content, e.ttl, true
}

// Store caches a raw payload for path. A non-positive ttl means the cache's
// default TTL.
func (c *Cache) Store(backendID bb.BackendID, path string, content []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	key := Key(path)
	err := c.rt.WithRelaxed(func(s *database.RelaxedStore) error {
		return s.AddContentCacheEntry(backendID, key, content, ttl)
	})
	if err != nil {
		c.logger.Error("content cache store failed", "backend", backendID, "path", path, "error", err)
	}
}

// Prune removes expired entries and returns how many were removed.
func (c *Cache) Prune() int {
	n, err := state.Relaxed(c.rt, (*database.RelaxedStore).PruneContentCache)
	if err != nil {
		c.logger.Error("content cache prune failed", "error", err)
		return 0
	}
	c.logger.Debug("content cache pruned", "removed", n)
	return n
}

// Purge removes every entry and returns how many were removed.
func (c *Cache) Purge() int {
	n, err := state.Relaxed(c.rt, (*database.RelaxedStore).PurgeContentCache)
	if err != nil {
		c.logger.Error("content cache purge failed", "error", err)
		return 0
	}
	c.logger.Info("content cache purged", "removed", n)
	return n
}

// Get decodes the live entry for path into a T. A payload that does not
// decode as T is treated as a miss.
func Get[T any](c *Cache, backendID bb.BackendID, path string) (T, bool) {
	var v T
	content, _, ok := c.Lookup(backendID, path)
	if !ok {
		return v, false
	}
	if err := cbor.Unmarshal(content, &v); err != nil {
		c.logger.Error("content cache entry could not be decoded", "backend", backendID, "path", path, "error", err)
		var zero T
		return zero, false
	}
	return v, true
}

// Put encodes v and caches it for path.
func Put[T any](c *Cache, backendID bb.BackendID, path string, v T, ttl time.Duration) {
	content, err := cbor.Marshal(v)
	if err != nil {
		c.logger.Error("content cache entry could not be encoded", "backend", backendID, "path", path, "error", err)
		return
	}
	c.Store(backendID, path, content, ttl)
}

// GetOrFetch returns the live entry for path, or calls fetch and caches its
// result. Concurrent callers missing on the same entry share one fetch. The
// shared fetch is not cancelled by any one caller: a caller whose ctx ends
// stops waiting and gets ctx.Err(), while the others still get the result.
func GetOrFetch[T any](ctx context.Context, c *Cache, backendID bb.BackendID, path string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	if v, ok := Get[T](c, backendID, path); ok {
		return v, nil
	}

	fillCtx := context.WithoutCancel(ctx)
	flight := fmt.Sprintf("%s/%s", backendID, Key(path))
	ch := c.fills.DoChan(flight, func() (any, error) {
		if v, ok := Get[T](c, backendID, path); ok {
			return v, nil
		}
		v, err := fetch(fillCtx)
		if err != nil {
			return nil, err
		}
		Put(c, backendID, path, v, ttl)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("fetching %s: %w", path, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return zero, fmt.Errorf("fetching %s: %w", path, res.Err)
		}
		v, _ := res.Val.(T)
		return v, nil
	}
}
