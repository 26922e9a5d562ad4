// Package actor serializes access to a single resource through a bounded
// mailbox drained by one worker goroutine.
//
// Callers on any goroutine submit closures over the resource and block for a
// typed result. Exactly one closure runs at a time, so the resource needs no
// locking of its own. Operations must not call back into the same actor:
// the worker would wait on itself.
package actor

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"bluebottle/internal/bb"
)

var (
	// ErrNotStarted is returned for work submitted before Start.
	ErrNotStarted = errors.New("actor has not been started")
	// ErrShutDown is returned for work submitted to a stopped actor, or
	// queued work that was never run because the actor stopped.
	ErrShutDown = errors.New("actor is shut down")
	// ErrPanicked is returned to the caller whose operation panicked.
	// The actor stops afterwards.
	ErrPanicked = errors.New("actor operation panicked")
)

// DefaultQueueDepth bounds the mailbox when no depth is configured.
const DefaultQueueDepth = 500

// State is the actor lifecycle. There is no transition out of StateShutDown.
type State int32

const (
	StateUninitialized State = iota
	StateRunning
	StateShutDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateShutDown:
		return "shut down"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Options configures an actor.
type Options[S any] struct {
	// QueueDepth bounds the mailbox. Submitting to a full mailbox blocks.
	QueueDepth int
	Logger     bb.Logger
	// OnStop runs on the worker goroutine after the last operation, e.g. to
	// close the resource. Its error is returned from Close.
	OnStop func(S) error
}

// Actor owns a resource of type S and runs operations against it one at a time.
type Actor[S any] struct {
	name    string
	logger  bb.Logger
	onStop  func(S) error
	queue   chan func(S)
	quit    chan struct{}
	done    chan struct{}
	state   atomic.Int32
	quitOne sync.Once
	stopErr error
}

// New creates an actor in StateUninitialized. Call Start to begin serving.
func New[S any](name string, opts Options[S]) *Actor[S] {
	depth := opts.QueueDepth
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	logger := opts.Logger
	if logger == nil {
		logger = bb.NewNopLogger()
	}

	return &Actor[S]{
		name:   name,
		logger: logger,
		onStop: opts.OnStop,
		queue:  make(chan func(S), depth),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Spawn creates an actor and starts it with store.
func Spawn[S any](name string, store S, opts Options[S]) *Actor[S] {
	a := New(name, opts)
	// A freshly created actor is always uninitialized.
	_ = a.Start(store)
	return a
}

// Start moves the actor to StateRunning and launches its worker.
func (a *Actor[S]) Start(store S) error {
	if !a.state.CompareAndSwap(int32(StateUninitialized), int32(StateRunning)) {
		return fmt.Errorf("starting actor %s: already %s", a.name, a.State())
	}
	go a.run(store)
	return nil
}

// Name returns the actor's name as used in logs.
func (a *Actor[S]) Name() string { return a.name }

// State returns the current lifecycle state.
func (a *Actor[S]) State() State { return State(a.state.Load()) }

// Close stops accepting work, runs everything already queued, invokes
// OnStop and waits for the worker to exit. It is safe to call more than once.
func (a *Actor[S]) Close() error {
	if a.state.CompareAndSwap(int32(StateUninitialized), int32(StateShutDown)) {
		close(a.done)
		return nil
	}
	a.quitOne.Do(func() { close(a.quit) })
	<-a.done
	return a.stopErr
}

func (a *Actor[S]) run(store S) {
	defer close(a.done)
	a.logger.Info("state actor started", "actor", a.name)

	for {
		select {
		case op := <-a.queue:
			if !a.exec(store, op) {
				a.stop(store, "operation panicked")
				return
			}
		case <-a.quit:
			a.drain(store)
			return
		}
	}
}

// drain runs operations that were queued before Close.
func (a *Actor[S]) drain(store S) {
	for {
		select {
		case op := <-a.queue:
			if !a.exec(store, op) {
				a.stop(store, "operation panicked")
				return
			}
		default:
			a.stop(store, "closed")
			return
		}
	}
}

func (a *Actor[S]) stop(store S, reason string) {
	a.state.Store(int32(StateShutDown))
	if a.onStop != nil {
		a.stopErr = a.onStop(store)
		if a.stopErr != nil {
			a.logger.Error("state actor stop hook failed", "actor", a.name, "error", a.stopErr)
		}
	}
	a.logger.Warn("state actor shut down", "actor", a.name, "reason", reason)
}

func (a *Actor[S]) exec(store S, op func(S)) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("state actor operation panicked",
				"actor", a.name, "panic", r, "stack", string(debug.Stack()))
			ok = false
		}
	}()
	op(store)
	return true
}

// enqueue blocks until op is in the mailbox or the actor stops.
func (a *Actor[S]) enqueue(op func(S)) error {
	switch a.State() {
	case StateUninitialized:
		return ErrNotStarted
	case StateShutDown:
		return ErrShutDown
	}

	select {
	case <-a.quit:
		return ErrShutDown
	default:
	}

	select {
	case a.queue <- op:
		return nil
	case <-a.quit:
		return ErrShutDown
	case <-a.done:
		return ErrShutDown
	}
}

type result[T any] struct {
	val T
	err error
}

// Call runs op on the actor's worker and blocks until it returns.
func Call[S, T any](a *Actor[S], op func(S) (T, error)) (T, error) {
	var zero T
	reply := make(chan result[T], 1)

	err := a.enqueue(func(store S) {
		defer func() {
			if r := recover(); r != nil {
				reply <- result[T]{err: fmt.Errorf("%w: %v", ErrPanicked, r)}
				panic(r)
			}
		}()
		v, err := op(store)
		reply <- result[T]{val: v, err: err}
	})
	if err != nil {
		return zero, fmt.Errorf("actor %s: %w", a.name, err)
	}

	select {
	case r := <-reply:
		return r.val, r.err
	case <-a.done:
		select {
		case r := <-reply:
			return r.val, r.err
		default:
			return zero, fmt.Errorf("actor %s: %w", a.name, ErrShutDown)
		}
	}
}

// Do runs op on the actor's worker and blocks until it returns.
func (a *Actor[S]) Do(op func(S) error) error {
	_, err := Call(a, func(store S) (struct{}, error) {
		return struct{}{}, op(store)
	})
	return err
}

// Submit queues op without waiting for it to run. It still blocks while the
// mailbox is full. The only errors are lifecycle errors.
func (a *Actor[S]) Submit(op func(S)) error {
	if err := a.enqueue(op); err != nil {
		return fmt.Errorf("actor %s: %w", a.name, err)
	}
	return nil
}
