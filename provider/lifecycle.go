package provider

import (
	"context"
	"image"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// State is observable state of provider session
type State int

const (
	// StateIdle means no backend is usable: nothing requested yet, Invalid selected or last switch failed
	StateIdle State = iota
	// StateSwitchQueued means switch task waits for a worker
	StateSwitchQueued
	// StateSwitchRunning means switch task unloads/loads backends right now
	StateSwitchRunning
	// StateReady means backend is loaded and detection can run
	StateReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSwitchQueued:
		return "switch-queued"
	case StateSwitchRunning:
		return "switch-running"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Lifecycle owns detection backend of one engine instance.
// Switching happens on a background task; at most one such task exists at any time.
// The tick path (Detect) never waits for a switch.
type Lifecycle struct {
	registry *Registry
	pool     *Pool
	ownsPool bool
	logger   logrus.FieldLogger

	// switchMu serializes Switch and Close callers
	switchMu sync.Mutex

	// mu guards everything below and is held by switch tasks for their whole run
	mu       sync.Mutex
	current  ID
	loadedID ID
	backend  DetectionProvider
	lastErr  error
	closed   bool

	solo     atomic.Bool
	task     atomic.Pointer[Task]
	ready    atomic.Bool
	temporal atomic.Bool
}

// LifecycleOption configures Lifecycle
type LifecycleOption func(*Lifecycle)

// WithPool makes lifecycle run switch tasks on shared pool. Pool is not closed by Lifecycle.
func WithPool(pool *Pool) LifecycleOption {
	return func(l *Lifecycle) {
		l.pool = pool
		l.ownsPool = false
	}
}

// WithLifecycleLogger sets logger
func WithLifecycleLogger(logger logrus.FieldLogger) LifecycleOption {
	return func(l *Lifecycle) {
		l.logger = logger
	}
}

// NewLifecycle creates session with Invalid provider, not ready
func NewLifecycle(registry *Registry, options ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{
		registry: registry,
		current:  Invalid,
		loadedID: Invalid,
		logger:   logrus.StandardLogger(),
	}
	l.solo.Store(true)
	for _, option := range options {
		option(l)
	}
	if l.pool == nil {
		l.pool = NewPool(1)
		l.ownsPool = true
	}
	l.logger = l.logger.WithField("component", "provider-lifecycle")
	return l
}

// Ready reports whether backend is loaded and usable
func (l *Lifecycle) Ready() bool {
	return l.ready.Load()
}

// IsTemporal reports whether loaded backend keeps object identity across calls
func (l *Lifecycle) IsTemporal() bool {
	return l.temporal.Load()
}

// Current returns requested provider (the one being switched to or already loaded)
func (l *Lifecycle) Current() ID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// LastError returns failure of the most recent switch attempt, nil on success
func (l *Lifecycle) LastError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// State returns current session state. Never blocks on running switch.
func (l *Lifecycle) State() State {
	if l.ready.Load() {
		return StateReady
	}
	if task := l.task.Load(); task != nil {
		switch task.State() {
		case TaskQueued:
			return StateSwitchQueued
		case TaskRunning:
			return StateSwitchRunning
		}
	}
	return StateIdle
}

// Await blocks until in-flight switch (if any) is finished
func (l *Lifecycle) Await() {
	if task := l.task.Load(); task != nil {
		task.Await()
	}
}

// Switch requests backend change. Automatic is resolved through Registry.
// Requests for the current provider are ignored. An in-flight switch is dequeued if still queued,
// otherwise awaited, before the new one is submitted.
func (l *Lifecycle) Switch(id ID) (*Task, error) {
	target := l.registry.Resolve(id)

	l.switchMu.Lock()
	defer l.switchMu.Unlock()

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, errors.New("lifecycle closed")
	}
	// A failed attempt may be re-triggered with the same provider
	if target == l.current && l.lastErr == nil {
		l.mu.Unlock()
		return nil, nil
	}
	from := l.current
	previous := l.task.Load()
	l.mu.Unlock()

	l.logger.Infof("Switching provider from '%s' to '%s'", from, target)

	if previous != nil {
		if state := previous.CancelOrAwait(); state == TaskCancelled {
			l.logger.Debugf("Dequeued pending switch before it started")
		}
	}

	l.mu.Lock()
	l.current = target
	l.lastErr = nil
	l.task.Store(nil)
	l.ready.Store(false)
	l.mu.Unlock()

	task, err := l.pool.Submit(func(ctx context.Context) error {
		return l.runSwitch(ctx, target)
	})
	if err != nil {
		return nil, errors.Wrap(err, "can't submit provider switch")
	}

	l.task.Store(task)
	return task, nil
}

// runSwitch is the body of switch task: unload whatever is loaded, then load target
func (l *Lifecycle) runSwitch(_ context.Context, target ID) error {
	l.ready.Store(false)

	l.mu.Lock()
	defer l.mu.Unlock()

	from := l.loadedID
	l.lastErr = nil

	if l.backend != nil {
		err := guard(l.backend.Unload)
		l.backend = nil
		l.loadedID = Invalid
		l.temporal.Store(false)
		if err != nil {
			l.lastErr = errors.Wrapf(ErrProviderUnloadFailed, "provider '%s': %v", from, err)
			l.logger.WithError(err).Errorf("Failed switching provider from '%s' to '%s'", from, target)
			return l.lastErr
		}
	}

	backend, err := l.registry.New(target)
	if err == nil && backend != nil {
		err = guard(backend.Load)
	}
	if err != nil {
		l.lastErr = errors.Wrapf(ErrProviderLoadFailed, "provider '%s': %v", target, err)
		l.logger.WithError(err).Errorf("Failed switching provider from '%s' to '%s'", from, target)
		return l.lastErr
	}

	l.backend = backend
	l.loadedID = target
	if backend == nil {
		l.logger.Infof("Switched provider from '%s' to '%s', detection disabled", from, target)
		return nil
	}
	l.applyModeLocked()
	l.logger.Infof("Switched provider from '%s' to '%s'", from, target)
	l.ready.Store(true)
	return nil
}

// ApplyMode configures backend for solo (one object) or group tracking.
// Desired mode is remembered and re-applied after every successful load.
// Backends which can't keep identity across calls always get group limits.
func (l *Lifecycle) ApplyMode(solo bool) {
	l.solo.Store(solo)
	if !l.ready.Load() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.backend != nil {
		l.applyModeLocked()
	}
}

func (l *Lifecycle) applyModeLocked() {
	temporal := l.backend.IsTemporal()
	l.temporal.Store(temporal)
	if l.solo.Load() && temporal {
		l.backend.SetTrackingLimit(1)
		return
	}
	_, limit := l.backend.TrackingLimitRange()
	l.backend.SetTrackingLimit(limit)
}

// Detect runs backend on the frame. Returns false when no detection happened this call:
// backend not ready, switch in progress or backend failure. Never blocks on a switch.
func (l *Lifecycle) Detect(frame image.Image) ([]Detection, bool) {
	if !l.ready.Load() {
		return nil, false
	}
	if !l.mu.TryLock() {
		return nil, false
	}
	defer l.mu.Unlock()
	if !l.ready.Load() || l.backend == nil {
		return nil, false
	}
	err := guard(func() error {
		return l.backend.Process(frame)
	})
	if err != nil {
		l.logger.WithError(err).Warnf("Provider '%s' failed to process frame", l.loadedID)
		return nil, false
	}
	return Collect(l.backend), true
}

// Close dequeues or awaits in-flight switch and synchronously unloads backend
func (l *Lifecycle) Close() error {
	l.switchMu.Lock()
	defer l.switchMu.Unlock()

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	task := l.task.Load()
	l.mu.Unlock()

	if task != nil {
		task.CancelOrAwait()
	}

	l.mu.Lock()
	l.ready.Store(false)
	l.task.Store(nil)
	var err error
	if l.backend != nil {
		if unloadErr := guard(l.backend.Unload); unloadErr != nil {
			err = errors.Wrapf(ErrProviderUnloadFailed, "provider '%s': %v", l.loadedID, unloadErr)
			l.logger.WithError(unloadErr).Errorf("Failed to unload provider '%s'", l.loadedID)
		}
		l.backend = nil
		l.loadedID = Invalid
	}
	l.mu.Unlock()

	if l.ownsPool {
		l.pool.Close()
	}
	return err
}

// guard converts backend panics into errors so they never cross task boundary
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
