// Package dirs resolves and creates the configuration, cache and data roots
// used by every other storage component.
package dirs

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// AppName is the per-application directory name used under OS conventional roots.
const AppName = "Bluebottle"

// Paths holds the three storage roots. All three exist once returned by Init or
// after a successful EnsureCreated.
type Paths struct {
	ConfigDir string
	CacheDir  string
	DataDir   string
}

// Resolve derives the storage roots without touching the filesystem.
// A non-empty root places config/, cache/ and data/ beneath it; otherwise
// OS conventional per-user locations are used.
func Resolve(root string) (Paths, error) {
	if root != "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return Paths{}, fmt.Errorf("resolving storage root: %w", err)
		}
		return FromRoot(abs), nil
	}
	return fromConvention()
}

// FromRoot places all three directories beneath root.
func FromRoot(root string) Paths {
	return Paths{
		ConfigDir: filepath.Join(root, "config"),
		CacheDir:  filepath.Join(root, "cache"),
		DataDir:   filepath.Join(root, "data"),
	}
}

func fromConvention() (Paths, error) {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("cannot determine config directory: %w", err)
	}
	cacheBase, err := os.UserCacheDir()
	if err != nil {
		return Paths{}, fmt.Errorf("cannot determine cache directory: %w", err)
	}
	dataBase, err := userDataDir()
	if err != nil {
		return Paths{}, err
	}

	return Paths{
		ConfigDir: filepath.Join(configBase, AppName),
		CacheDir:  filepath.Join(cacheBase, AppName),
		DataDir:   filepath.Join(dataBase, AppName),
	}, nil
}

// userDataDir mirrors os.UserConfigDir for application data, which the
// standard library does not expose.
func userDataDir() (string, error) {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir, nil
	}
	if dir := platformDataDir(); dir != "" {
		return dir, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share"), nil
}

// EnsureCreated creates all three directories. The first failure is returned
// and no further directories are attempted.
func (p Paths) EnsureCreated() error {
	for _, dir := range []string{p.ConfigDir, p.CacheDir, p.DataDir} {
		if dir == "" {
			return fmt.Errorf("storage directory path is empty")
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	return nil
}

// AssetCacheDir is where asset blobs are stored, one file per entry.
func (p Paths) AssetCacheDir() string { return filepath.Join(p.CacheDir, "assets") }

// DurablePath is the durable store's database file.
func (p Paths) DurablePath() string { return filepath.Join(p.DataDir, "durable.sqlite") }

// RelaxedPath is the relaxed store's database file.
func (p Paths) RelaxedPath() string { return filepath.Join(p.DataDir, "relaxed.sqlite") }

// LogDir holds the application log file.
func (p Paths) LogDir() string { return filepath.Join(p.DataDir, "log") }

// ConfigPath is the default location of the TOML config file.
func (p Paths) ConfigPath() string { return filepath.Join(p.ConfigDir, "bluebottle.toml") }

// IdentityPath is the age identity used to seal backend context.
func (p Paths) IdentityPath() string { return filepath.Join(p.ConfigDir, "identity.age") }

var (
	initOnce sync.Once
	resolved atomic.Pointer[Paths]
	initErr  error
)

// Init resolves and creates the process-wide storage roots exactly once.
// Later calls return the first result regardless of root.
func Init(root string) (Paths, error) {
	initOnce.Do(func() {
		p, err := Resolve(root)
		if err != nil {
			initErr = err
			return
		}
		if err := p.EnsureCreated(); err != nil {
			initErr = err
			return
		}
		resolved.Store(&p)
	})
	if initErr != nil {
		return Paths{}, initErr
	}
	return *resolved.Load(), nil
}

// MustGet returns the paths resolved by Init. It panics when called before a
// successful Init, which is a startup ordering bug.
func MustGet() Paths {
	p := resolved.Load()
	if p == nil {
		panic("dirs: paths were not initialized")
	}
	return *p
}
