package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"bluebottle/internal/assetcache"
	"bluebottle/internal/bb"
	"bluebottle/internal/config"
	"bluebottle/internal/contentcache"
	"bluebottle/internal/database"
	"bluebottle/internal/dirs"
	"bluebottle/internal/navigator"
	"bluebottle/internal/secrets"
	"bluebottle/internal/state"
)

// Storage is the application's handle on all persistent state. It is built
// once at startup and passed to everything that needs storage; nothing else
// opens the stores.
type Storage struct {
	cfg       *config.Config
	paths     dirs.Paths
	clock     bb.Clock
	session   *Session
	logger    bb.Logger
	logFile   *os.File
	runtime   *state.Runtime
	content   *contentcache.Cache
	assets    *assetcache.Cache
	navigator *navigator.Navigator
	sealer    *secrets.Sealer
}

// Options adjusts NewStorage for tests and embedding.
type Options struct {
	Clock bb.Clock
	// Logger replaces the file logger. When nil, logs go to
	// <data_dir>/log/bluebottle.log and to Stderr.
	Logger bb.Logger
	Stderr io.Writer
}

// NewStorage creates the storage directories and opens every store.
// command identifies the CLI command being run (e.g. "maintain").
// The caller must call Close when done.
func NewStorage(cfg *config.Config, paths dirs.Paths, command string, opts Options) (*Storage, error) {
	clock := opts.Clock
	if clock == nil {
		clock = bb.RealClock{}
	}

	if err := paths.EnsureCreated(); err != nil {
		return nil, fmt.Errorf("creating storage directories: %w", err)
	}

	session := NewSession(command, clock)
	s := &Storage{cfg: cfg, paths: paths, clock: clock, session: session, logger: opts.Logger}

	if s.logger == nil {
		level, err := ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		l, f, err := newLogger(paths.LogDir(), session.ID, level, opts.Stderr)
		if err != nil {
			return nil, fmt.Errorf("creating logger: %w", err)
		}
		s.logger = &slogAdapter{l: l.With(slog.String("command", command))}
		s.logFile = f
	}

	s.logger.Info("resolved storage directories",
		"config_dir", paths.ConfigDir, "cache_dir", paths.CacheDir, "data_dir", paths.DataDir)

	if cfg.Secrets.SealBackendContext {
		sealer, err := secrets.LoadOrCreate(paths.IdentityPath())
		if err != nil {
			s.closeLog()
			return nil, fmt.Errorf("loading secrets identity: %w", err)
		}
		s.sealer = sealer
	}

	rt, err := state.Open(paths, state.Options{
		QueueDepth: cfg.State.QueueDepth,
		Clock:      clock,
		Logger:     s.logger,
	})
	if err != nil {
		s.closeLog()
		return nil, err
	}
	s.runtime = rt

	assets, err := assetcache.New(paths.AssetCacheDir(), clock, s.logger)
	if err != nil {
		rt.Close()
		s.closeLog()
		return nil, fmt.Errorf("creating asset cache: %w", err)
	}
	s.assets = assets

	s.content = contentcache.New(rt, time.Duration(cfg.ContentCache.DefaultTTL), s.logger)
	s.navigator = navigator.New(rt, s.logger)
	return s, nil
}

func (s *Storage) Config() *config.Config { return s.cfg }
func (s *Storage) Paths() dirs.Paths { return s.paths }
func (s *Storage) Session() *Session { return s.session }
func (s *Storage) Logger() bb.Logger { return s.logger }
func (s *Storage) Runtime() *state.Runtime { return s.runtime }
func (s *Storage) ContentCache() *contentcache.Cache { return s.content }
func (s *Storage) AssetCache() *assetcache.Cache { return s.assets }
func (s *Storage) Navigator() *navigator.Navigator { return s.navigator }

// RegisterBackend persists the connection context for a new backend and
// returns its generated ID. backendContext is marshalled to JSON and sealed when
// sealing is enabled.
func (s *Storage) RegisterBackend(kind bb.BackendKind, backendContext any) (bb.BackendID, error) {
	doc, err := json.Marshal(backendContext)
	if err != nil {
		return bb.BackendID{}, fmt.Errorf("encoding backend context: %w", err)
	}
	if s.sealer != nil {
		if doc, err = s.sealer.SealJSON(doc); err != nil {
			return bb.BackendID{}, err
		}
	}

	st := bb.BackendInitState{ID: bb.NewBackendID(), Kind: kind, Context: doc}
	err = s.runtime.WithDurable(func(d *database.DurableStore) error {
		return d.SaveBackendInitState(st)
	})
	if err != nil {
		return bb.BackendID{}, fmt.Errorf("registering %s backend: %w", kind, err)
	}

	s.logger.Info("backend registered", "backend", st.ID, "kind", kind, "sealed", s.sealer != nil)
	return st.ID, nil
}

// Backends returns every registered backend with its context unsealed.
// Any record that cannot be read or unsealed fails the whole call.
func (s *Storage) Backends() ([]bb.BackendInitState, error) {
	states, err := state.Durable(s.runtime, (*database.DurableStore).ReadAllBackendInitState)
	if err != nil {
		return nil, fmt.Errorf("reading backends: %w", err)
	}

	for i := range states {
		if _, sealed := secrets.IsSealed(states[i].Context); !sealed {
			continue
		}
		if s.sealer == nil {
			sealer, err := secrets.LoadOrCreate(s.paths.IdentityPath())
			if err != nil {
				return nil, fmt.Errorf("loading secrets identity: %w", err)
			}
			s.sealer = sealer
		}
		ctx, err := s.sealer.OpenJSON(states[i].Context)
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", states[i].ID, err)
		}
		states[i].Context = ctx
	}
	return states, nil
}

// MaintenanceReport summarizes one Maintain pass.
type MaintenanceReport struct {
	ContentRemoved int
	AssetsRemoved  int
	AssetBytes     int64
}

// Maintain prunes expired content cache rows and shrinks the asset cache to
// the configured budget. The two run concurrently; they touch different stores.
func (s *Storage) Maintain(ctx context.Context) (MaintenanceReport, error) {
	var report MaintenanceReport
	budget := int64(s.cfg.AssetCache.Budget)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.ContentRemoved = s.content.Prune()
		return nil
	})
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.AssetsRemoved = s.assets.PruneTo(budget)
		return nil
	})
	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("maintenance: %w", err)
	}

	report.AssetBytes = s.assets.Usage()
	s.logger.Info("maintenance finished",
		"content_removed", report.ContentRemoved,
		"assets_removed", report.AssetsRemoved,
		"asset_bytes", report.AssetBytes)
	return report, nil
}

// Close shuts down the store actors after their queued work has run, then
// closes the log file.
func (s *Storage) Close() error {
	var firstErr error
	if err := s.runtime.Close(); err != nil {
		firstErr = err
		s.session.Fail()
	}

	s.logger.Info("session finished",
		"status", s.session.Status, "elapsed", s.clock.Now().Sub(s.session.Started).Round(time.Millisecond))
	s.closeLog()
	return firstErr
}

func (s *Storage) closeLog() {
	if s.logFile != nil {
		s.logFile.Close()
		s.logFile = nil
	}
}
