package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/dustin/go-humanize"
)

// Config represents the on-disk configuration for bluebottle.
type Config struct {
	LogLevel     string             `toml:"log_level"` // debug, info, warn or error
	ContentCache ContentCacheConfig `toml:"content_cache"`
	AssetCache   AssetCacheConfig   `toml:"asset_cache"`
	State        StateConfig        `toml:"state"`
	Secrets      SecretsConfig      `toml:"secrets"`
}

// ContentCacheConfig holds settings for cached backend responses.
type ContentCacheConfig struct {
	DefaultTTL Duration `toml:"default_ttl"` // used when a caller gives no TTL
}

// AssetCacheConfig holds settings for the on-disk image cache.
type AssetCacheConfig struct {
	Budget ByteSize `toml:"budget"` // maintenance prunes the cache down to this size
}

// StateConfig holds settings for the store actors.
type StateConfig struct {
	QueueDepth int `toml:"queue_depth"` // mailbox size per store
}

// SecretsConfig controls sealing of backend contexts.
type SecretsConfig struct {
	SealBackendContext bool `toml:"seal_backend_context"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		LogLevel:     "info",
		ContentCache: ContentCacheConfig{DefaultTTL: Duration(7 * 24 * time.Hour)},
		AssetCache:   AssetCacheConfig{Budget: 512 * humanize.MiByte},
		State:        StateConfig{QueueDepth: 500},
		Secrets:      SecretsConfig{SealBackendContext: true},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error: got %q", c.LogLevel)
	}
	if c.ContentCache.DefaultTTL <= 0 {
		return fmt.Errorf("content_cache.default_ttl must be positive: got %s", c.ContentCache.DefaultTTL)
	}
	if c.State.QueueDepth <= 0 {
		return fmt.Errorf("state.queue_depth must be positive: got %d", c.State.QueueDepth)
	}
	return nil
}

// Env holds the environment overrides.
type Env struct {
	Home       string `env:"BLUEBOTTLE_HOME"`        // explicit storage root
	ConfigPath string `env:"BLUEBOTTLE_CONFIG_PATH"` // config file location
	LogLevel   string `env:"BLUEBOTTLE_LOG_LEVEL"`
}

// LoadEnv reads the overrides from the process environment.
func LoadEnv() (Env, error) {
	e, err := env.ParseAs[Env]()
	if err != nil {
		return Env{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	return e, nil
}

// Apply overlays environment overrides onto cfg.
func (e Env) Apply(cfg *Config) {
	if e.LogLevel != "" {
		cfg.LogLevel = e.LogLevel
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader. Keys missing from the
// input keep their default values.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	cfg := Default()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path. A missing file
// yields the defaults.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads the config file, applies environment overrides and validates
// the result.
func Load(path string, e Env) (*Config, error) {
	cfg, err := ReadFromFile(path)
	if err != nil {
		return nil, err
	}
	e.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
