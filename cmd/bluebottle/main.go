package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"bluebottle/internal/app"
	"bluebottle/internal/bb"
	"bluebottle/internal/config"
	"bluebottle/internal/database"
	"bluebottle/internal/dirs"
	"bluebottle/internal/navigator"
	"bluebottle/internal/state"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// environment reads the overrides, letting --root win over BLUEBOTTLE_HOME.
func environment(cmd *cobra.Command) (config.Env, error) {
	e, err := config.LoadEnv()
	if err != nil {
		return config.Env{}, err
	}
	if root, _ := cmd.Flags().GetString("root"); root != "" {
		e.Home = root
	}
	return e, nil
}

// newStorage reads the config and opens all persistent state. The caller must defer s.Close().
// command identifies the CLI command being run (e.g. "maintain", "cache prune").
func newStorage(cmd *cobra.Command, command string) (*app.Storage, error) {
	e, err := environment(cmd)
	if err != nil {
		return nil, err
	}

	defaults, err := app.GetDefaults(e)
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.Load(defaults.ConfigPath, e)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Resolved and created once per process.
	if _, err := dirs.Init(e.Home); err != nil {
		return nil, fmt.Errorf("creating storage directories: %w", err)
	}

	s, err := app.NewStorage(cfg, dirs.MustGet(), command, app.Options{Stderr: os.Stderr})
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	return s, nil
}

var rootCmd = &cobra.Command{
	Use:           "bluebottle",
	Short:         "Inspect and maintain Bluebottle's local state",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// paths command
var pathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Show resolved storage locations",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := environment(cmd)
		if err != nil {
			return err
		}
		defaults, err := app.GetDefaults(e)
		if err != nil {
			return err
		}

		p := defaults.Paths
		fmt.Printf("Config file:   %s\n", defaults.ConfigPath)
		fmt.Printf("Config dir:    %s\n", p.ConfigDir)
		fmt.Printf("Cache dir:     %s\n", p.CacheDir)
		fmt.Printf("Data dir:      %s\n", p.DataDir)
		fmt.Printf("Durable store: %s\n", p.DurablePath())
		fmt.Printf("Relaxed store: %s\n", p.RelaxedPath())
		fmt.Printf("Asset cache:   %s\n", p.AssetCacheDir())
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with default values",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := environment(cmd)
		if err != nil {
			return err
		}
		defaults, err := app.GetDefaults(e)
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		if err := config.Init(defaults.ConfigPath, config.Default()); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "View effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := environment(cmd)
		if err != nil {
			return err
		}
		defaults, err := app.GetDefaults(e)
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.Load(defaults.ConfigPath, e)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("# effective configuration (%s)\n", defaults.ConfigPath)
		m := &config.Manager{}
		return m.Write(os.Stdout, cfg)
	},
}

// backends command
var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "Manage configured media backends",
}

var backendsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured backends",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newStorage(cmd, "backends list")
		if err != nil {
			return err
		}
		defer s.Close()

		backends, err := s.Backends()
		if err != nil {
			return err
		}
		if len(backends) == 0 {
			fmt.Println("No backends configured.")
			return nil
		}

		for _, b := range backends {
			fmt.Printf("%s  %-10s  %s\n", b.ID, b.Kind, redact(b.Context))
		}
		return nil
	},
}

type jellyfinContext struct {
	URL   string `json:"url"`
	Token string `json:"token,omitempty"`
}

var backendsAddCmd = &cobra.Command{
	Use:   "add KIND",
	Short: "Register a backend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := bb.ParseBackendKind(args[0])
		if err != nil {
			return err
		}
		url, _ := cmd.Flags().GetString("url")
		token, _ := cmd.Flags().GetString("token")
		if url == "" {
			return fmt.Errorf("--url is required")
		}

		s, err := newStorage(cmd, "backends add")
		if err != nil {
			return err
		}
		defer s.Close()

		id, err := s.RegisterBackend(kind, jellyfinContext{URL: url, Token: token})
		if err != nil {
			return err
		}

		fmt.Printf("Registered %s backend %s\n", kind, id)
		return nil
	},
}

// redact hides credentials when printing a backend context.
func redact(ctx []byte) string {
	var doc map[string]any
	if err := json.Unmarshal(ctx, &doc); err != nil {
		return "<unreadable context>"
	}
	if _, ok := doc["token"]; ok {
		doc["token"] = "***"
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return "<unreadable context>"
	}
	return string(out)
}

// schema command
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Show the schema version of both stores",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newStorage(cmd, "schema")
		if err != nil {
			return err
		}
		defer s.Close()

		statuses, err := s.Runtime().MigrationStatus()
		if err != nil {
			return err
		}
		for _, st := range statuses {
			fmt.Println(st)
		}
		return nil
	},
}

// cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the content cache",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove expired content cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newStorage(cmd, "cache prune")
		if err != nil {
			return err
		}
		defer s.Close()

		fmt.Printf("Removed %d expired entr(ies)\n", s.ContentCache().Prune())
		return nil
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove every content cache entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newStorage(cmd, "cache purge")
		if err != nil {
			return err
		}
		defer s.Close()

		fmt.Printf("Removed %d entr(ies)\n", s.ContentCache().Purge())
		return nil
	},
}

// assets command
var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "Manage the asset cache",
}

var assetsUsageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show asset cache size",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newStorage(cmd, "assets usage")
		if err != nil {
			return err
		}
		defer s.Close()

		usage := s.AssetCache().Usage()
		budget := s.Config().AssetCache.Budget
		fmt.Printf("%s used of %s budget\n", humanize.IBytes(uint64(usage)), budget)
		return nil
	},
}

var assetsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Evict least recently used assets",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newStorage(cmd, "assets prune")
		if err != nil {
			return err
		}
		defer s.Close()

		target := s.Config().AssetCache.Budget
		if raw, _ := cmd.Flags().GetString("target"); raw != "" {
			if target, err = config.ParseByteSize(raw); err != nil {
				return err
			}
		}

		removed := s.AssetCache().PruneTo(int64(target))
		fmt.Printf("Removed %d asset(s), %s remaining\n", removed, humanize.IBytes(uint64(s.AssetCache().Usage())))
		return nil
	},
}

// maintain command
var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Prune expired content and shrink the asset cache to budget",
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")

		s, err := newStorage(cmd, "maintain")
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		report, err := s.Maintain(ctx)
		if err != nil {
			s.Session().Fail()
			return err
		}

		fmt.Printf("Content cache: removed %d expired entr(ies)\n", report.ContentRemoved)
		fmt.Printf("Asset cache:   removed %d asset(s), %s remaining\n",
			report.AssetsRemoved, humanize.IBytes(uint64(report.AssetBytes)))
		return nil
	},
}

// kv command
var kvCmd = &cobra.Command{
	Use:   "kv",
	Short: "Read and write relaxed key-value state",
}

var kvGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Print a stored value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newStorage(cmd, "kv get")
		if err != nil {
			return err
		}
		defer s.Close()

		value, err := state.Relaxed(s.Runtime(), func(r *database.RelaxedStore) ([]byte, error) {
			return r.GetKeyValue(args[0])
		})
		if err != nil {
			return err
		}
		fmt.Printf("%q\n", value)
		return nil
	},
}

var kvSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Store a value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newStorage(cmd, "kv set")
		if err != nil {
			return err
		}
		defer s.Close()

		return s.Runtime().WithRelaxed(func(r *database.RelaxedStore) error {
			return r.SetKeyValue(args[0], []byte(args[1]))
		})
	},
}

// nav command
var navCmd = &cobra.Command{
	Use:   "nav [SCREEN]",
	Short: "Show or set the screen restored at startup",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newStorage(cmd, "nav")
		if err != nil {
			return err
		}
		defer s.Close()

		n := s.Navigator()
		if len(args) == 0 {
			fmt.Println(n.Load())
			return nil
		}

		screen, err := navigator.ParseScreen(args[0])
		if err != nil {
			return err
		}
		// Close flushes the queued write.
		return n.Navigate(screen)
	},
}

func init() {
	rootCmd.PersistentFlags().String("root", "", "Storage root holding config/, cache/ and data/ (overrides BLUEBOTTLE_HOME)")

	rootCmd.AddCommand(pathsCmd)
	rootCmd.AddCommand(schemaCmd)

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)

	// backends subcommands
	backendsCmd.AddCommand(backendsListCmd)
	backendsCmd.AddCommand(backendsAddCmd)
	backendsAddCmd.Flags().String("url", "", "Server URL")
	backendsAddCmd.Flags().String("token", "", "Access token")
	rootCmd.AddCommand(backendsCmd)

	// cache subcommands
	cacheCmd.AddCommand(cachePruneCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)

	// assets subcommands
	assetsCmd.AddCommand(assetsUsageCmd)
	assetsCmd.AddCommand(assetsPruneCmd)
	assetsPruneCmd.Flags().String("target", "", "Target size, e.g. 256MiB (default: configured budget)")
	rootCmd.AddCommand(assetsCmd)

	rootCmd.AddCommand(maintainCmd)
	maintainCmd.Flags().Duration("timeout", 5*time.Minute, "Give up after this long")

	kvCmd.AddCommand(kvGetCmd)
	kvCmd.AddCommand(kvSetCmd)
	rootCmd.AddCommand(kvCmd)

	rootCmd.AddCommand(navCmd)
}
