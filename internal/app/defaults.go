package app

import (
	"fmt"

	"bluebottle/internal/config"
	"bluebottle/internal/dirs"
)

// Defaults are the resolved storage roots and config file location.
type Defaults struct {
	Paths      dirs.Paths
	ConfigPath string
}

// GetDefaults resolves application locations, checking environment overrides first.
// Environment variables:
//   - BLUEBOTTLE_HOME: storage root holding config/, cache/ and data/
//     (default: the OS per-user config, cache and data directories)
//   - BLUEBOTTLE_CONFIG_PATH: config file location (default: <config_dir>/bluebottle.toml)
func GetDefaults(e config.Env) (Defaults, error) {
	paths, err := dirs.Resolve(e.Home)
	if err != nil {
		return Defaults{}, fmt.Errorf("resolving storage directories: %w", err)
	}

	configPath := e.ConfigPath
	if configPath == "" {
		configPath = paths.ConfigPath()
	}

	return Defaults{Paths: paths, ConfigPath: configPath}, nil
}
