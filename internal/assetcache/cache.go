// Package assetcache stores binary blobs (posters, thumbnails) as individual
// files named by the hash of their logical path, evicting the least recently
// accessed files when asked to fit a byte budget.
//
// The cache does not go through the state actors. Writes are atomic
// (temp file + rename) so readers never see a partial file, and prunes are
// serialized within the process.
package assetcache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"bluebottle/internal/bb"
)

// Cache is a content-addressed directory of asset files:
//
//	<cache_dir>/assets/
//	  <sha256 of logical path>   (one file per asset)
//	  .tmp-*                     (in-flight writes)
type Cache struct {
	dir    string
	clock  bb.Clock
	logger bb.Logger

	pruneMu sync.Mutex
}

// New creates a cache rooted at dir, creating the directory if needed.
func New(dir string, clock bb.Clock, logger bb.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create asset cache directory: %w", err)
	}
	if clock == nil {
		clock = bb.RealClock{}
	}
	if logger == nil {
		logger = bb.NewNopLogger()
	}
	return &Cache{dir: dir, clock: clock, logger: logger}, nil
}

// Dir returns the directory holding the cached files.
func (c *Cache) Dir() string { return c.dir }

func (c *Cache) pathFor(logicalPath string) string {
	return filepath.Join(c.dir, bb.PathHash(logicalPath))
}

// TryGet returns the cached bytes for logicalPath. Absence and read errors
// are both reported as a miss. A hit refreshes the entry's access time.
func (c *Cache) TryGet(logicalPath string) ([]byte, bool) {
	p := c.pathFor(logicalPath)
	data, err := os.ReadFile(p)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Debug("asset cache read failed", "path", logicalPath, "error", err)
		}
		return nil, false
	}
	c.touch(p)
	return data, true
}

// Insert stores data for logicalPath, replacing any previous entry. Failures
// are logged and otherwise ignored.
func (c *Cache) Insert(logicalPath string, data []byte) {
	if err := c.writeFile(c.pathFor(logicalPath), data); err != nil {
		c.logger.Warn("asset cache write failed", "path", logicalPath, "error", err)
	}
}

// Remove deletes the entry for logicalPath. Removing a missing entry is not an error.
func (c *Cache) Remove(logicalPath string) error {
	if err := os.Remove(c.pathFor(logicalPath)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove asset: %w", err)
	}
	return nil
}

// touch marks an entry as just used. Recency must not depend on whether the
// filesystem is mounted with atime updates.
func (c *Cache) touch(p string) {
	now := c.clock.Now()
	if err := os.Chtimes(p, now, now); err != nil {
		c.logger.Debug("asset cache access time not updated", "file", p, "error", err)
	}
}

// writeFile writes data to destPath using atomic write (temp file + rename).
func (c *Cache) writeFile(destPath string, data []byte) error {
	tmpFile, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true

	c.touch(destPath)
	return nil
}

type asset struct {
	name     string
	size     int64
	accessed time.Time
}

// list returns every well-formed entry. Directories and temp files are
// skipped silently; other foreign names are skipped with a warning when warn is set.
func (c *Cache) list(warn bool) ([]asset, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read asset cache directory: %w", err)
	}

	assets := make([]asset, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !bb.IsPathHash(name) {
			if warn && !strings.HasPrefix(name, ".tmp-") {
				c.logger.Warn("skipping foreign file in asset cache", "file", name)
			}
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed since ReadDir.
			continue
		}
		assets = append(assets, asset{
			name:     name,
			size:     info.Size(),
			accessed: accessTime(info),
		})
	}
	return assets, nil
}

// Usage returns the total size in bytes of all entries.
func (c *Cache) Usage() int64 {
	assets, err := c.list(false)
	if err != nil {
		c.logger.Warn("asset cache usage unavailable", "error", err)
		return 0
	}
	var total int64
	for _, a := range assets {
		total += a.size
	}
	return total
}

// PruneTo removes the least recently accessed entries until the total size
// is at or below target, and returns how many were removed. A failed removal
// is logged and skipped.
func (c *Cache) PruneTo(target int64) int {
	c.pruneMu.Lock()
	defer c.pruneMu.Unlock()

	assets, err := c.list(true)
	if err != nil {
		c.logger.Warn("asset cache prune skipped", "error", err)
		return 0
	}

	var total int64
	for _, a := range assets {
		total += a.size
	}
	if total <= target {
		return 0
	}

	sort.SliceStable(assets, func(i, j int) bool {
		return assets[i].accessed.Before(assets[j].accessed)
	})

	removed := 0
	for _, a := range assets {
		if total <= target {
			break
		}
		if err := os.Remove(filepath.Join(c.dir, a.name)); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				c.logger.Warn("asset cache remove failed", "file", a.name, "error", err)
				continue
			}
			// Already gone: the space is free either way.
			total -= a.size
			continue
		}
		total -= a.size
		removed++
	}

	c.logger.Info("asset cache pruned", "removed", removed, "remaining_bytes", total, "target_bytes", target)
	return removed
}
