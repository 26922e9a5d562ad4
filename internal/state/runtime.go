// Package state owns the two relational stores for the life of the process
// and serializes every access to them through one actor per store.
package state

import (
	"errors"
	"fmt"

	"bluebottle/internal/actor"
	"bluebottle/internal/bb"
	"bluebottle/internal/database"
	"bluebottle/internal/database/migrations"
	"bluebottle/internal/dirs"
)

// Runtime is the only holder of the durable and relaxed store connections.
// Construct it once at startup and pass it to every collaborator that needs
// storage access.
type Runtime struct {
	durable *actor.Actor[*database.DurableStore]
	relaxed *actor.Actor[*database.RelaxedStore]
	logger  bb.Logger
}

// Options configures Open.
type Options struct {
	// QueueDepth bounds each store's mailbox. Zero means actor.DefaultQueueDepth.
	QueueDepth int
	Clock      bb.Clock
	Logger     bb.Logger
}

// Open opens both stores under paths.DataDir and starts their actors.
// A durable store failure is fatal. The relaxed store resets itself once
// before giving up.
func Open(paths dirs.Paths, opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = bb.NewNopLogger()
	}
	clock := opts.Clock
	if clock == nil {
		clock = bb.RealClock{}
	}

	durable, err := database.OpenDurable(paths.DurablePath(), clock, logger)
	if err != nil {
		return nil, fmt.Errorf("opening durable state: %w", err)
	}

	relaxed, err := database.OpenRelaxed(paths.RelaxedPath(), clock, logger)
	if err != nil {
		durable.Close()
		return nil, fmt.Errorf("opening relaxed state: %w", err)
	}

	return NewRuntime(durable, relaxed, opts.QueueDepth, logger), nil
}

// NewRuntime starts actors over already opened stores. The runtime takes
// ownership of both and closes them in Close.
func NewRuntime(durable *database.DurableStore, relaxed *database.RelaxedStore, queueDepth int, logger bb.Logger) *Runtime {
	if logger == nil {
		logger = bb.NewNopLogger()
	}
	return &Runtime{
		durable: actor.Spawn("durable", durable, actor.Options[*database.DurableStore]{
			QueueDepth: queueDepth,
			Logger:     logger,
			OnStop:     (*database.DurableStore).Close,
		}),
		relaxed: actor.Spawn("relaxed", relaxed, actor.Options[*database.RelaxedStore]{
			QueueDepth: queueDepth,
			Logger:     logger,
			OnStop:     (*database.RelaxedStore).Close,
		}),
		logger: logger,
	}
}

// WithDurable runs op against the durable store and waits for it.
func (r *Runtime) WithDurable(op func(*database.DurableStore) error) error {
	return r.durable.Do(op)
}

// WithRelaxed runs op against the relaxed store and waits for it.
func (r *Runtime) WithRelaxed(op func(*database.RelaxedStore) error) error {
	return r.relaxed.Do(op)
}

// SubmitRelaxed queues op against the relaxed store without waiting for it
// to run. Errors returned by op are logged.
func (r *Runtime) SubmitRelaxed(op func(*database.RelaxedStore) error) error {
	return r.relaxed.Submit(func(s *database.RelaxedStore) {
		if err := op(s); err != nil {
			r.logger.Error("background relaxed state operation failed", "error", err)
		}
	})
}

// Durable runs op against the durable store and returns its typed result.
func Durable[T any](r *Runtime, op func(*database.DurableStore) (T, error)) (T, error) {
	return actor.Call(r.durable, op)
}

// Relaxed runs op against the relaxed store and returns its typed result.
func Relaxed[T any](r *Runtime, op func(*database.RelaxedStore) (T, error)) (T, error) {
	return actor.Call(r.relaxed, op)
}

// MigrationStatus reports the schema version of both stores, durable first.
func (r *Runtime) MigrationStatus() ([]migrations.Status, error) {
	durable, err := Durable(r, (*database.DurableStore).MigrationStatus)
	if err != nil {
		return nil, fmt.Errorf("inspecting durable schema: %w", err)
	}
	relaxed, err := Relaxed(r, (*database.RelaxedStore).MigrationStatus)
	if err != nil {
		return nil, fmt.Errorf("inspecting relaxed schema: %w", err)
	}
	return []migrations.Status{durable, relaxed}, nil
}

// Close shuts both actors down after their queued work has run and closes
// the stores. The runtime is unusable afterwards.
func (r *Runtime) Close() error {
	return errors.Join(
		wrapClose("durable", r.durable.Close()),
		wrapClose("relaxed", r.relaxed.Close()),
	)
}

func wrapClose(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("closing %s state: %w", name, err)
}
