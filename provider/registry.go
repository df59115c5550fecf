package provider

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Factory creates fresh (not yet loaded) backend instance
type Factory func() (DetectionProvider, error)

// Probe checks whether backend can work on this machine
type Probe func() error

// DefaultPriority is the order in which Automatic is resolved
var DefaultPriority = []ID{
	PigoFaceDetection,
}

type registration struct {
	factory Factory
	probe   Probe
}

// Registry knows which backends exist and which of them are usable.
// It replaces process-wide factory state: create one, call Initialize, hand it to engines, call Finalize at shutdown.
type Registry struct {
	mu            sync.RWMutex
	registrations map[ID]registration
	available     map[ID]bool
	priority      []ID
	initialized   bool
	logger        logrus.FieldLogger
}

// RegistryOption configures Registry
type RegistryOption func(*Registry)

// WithPriority overrides resolution order of Automatic
func WithPriority(ids ...ID) RegistryOption {
	return func(r *Registry) {
		r.priority = append([]ID(nil), ids...)
	}
}

// WithRegistryLogger sets logger
func WithRegistryLogger(logger logrus.FieldLogger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates empty registry
func NewRegistry(options ...RegistryOption) *Registry {
	r := &Registry{
		registrations: make(map[ID]registration),
		available:     make(map[ID]bool),
		priority:      append([]ID(nil), DefaultPriority...),
		logger:        logrus.StandardLogger(),
	}
	for _, option := range options {
		option(r)
	}
	r.logger = r.logger.WithField("component", "provider-registry")
	return r
}

// Register adds backend. Probe may be nil meaning "always available".
func (r *Registry) Register(id ID, factory Factory, probe Probe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registrations[id] = registration{factory: factory, probe: probe}
	if r.initialized {
		r.available[id] = r.probeLocked(id)
	}
}

// Initialize probes every registered backend.
// Returns ErrProviderUnavailable when none of them is usable; registry stays usable anyway.
func (r *Registry) Initialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	anyAvailable := false
	for id := range r.registrations {
		ok := r.probeLocked(id)
		r.available[id] = ok
		anyAvailable = anyAvailable || ok
	}
	r.initialized = true
	if !anyAvailable {
		r.logger.Error("All supported providers failed to initialize")
		return errors.Wrap(ErrProviderUnavailable, "no usable providers")
	}
	return nil
}

func (r *Registry) probeLocked(id ID) bool {
	reg := r.registrations[id]
	if reg.probe == nil {
		return true
	}
	if err := reg.probe(); err != nil {
		r.logger.WithError(err).Warnf("Failed to make provider '%s' available", id)
		return false
	}
	return true
}

// Finalize forgets availability information. Registered factories are kept.
func (r *Registry) Finalize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.available = make(map[ID]bool)
	r.initialized = false
}

// IsAvailable reports whether backend passed probing
func (r *Registry) IsAvailable(id ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.available[id]
}

// FindIdealProvider returns first available backend in priority order, or Invalid
func (r *Registry) FindIdealProvider() ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.priority {
		if r.available[id] {
			return id
		}
	}
	return Invalid
}

// Resolve turns Automatic into concrete backend. Unavailable backends resolve to Invalid.
func (r *Registry) Resolve(id ID) ID {
	if id == Automatic {
		return r.FindIdealProvider()
	}
	if id != Invalid && !r.IsAvailable(id) {
		r.logger.Warnf("Provider '%s' is not available", id)
		return Invalid
	}
	return id
}

// New creates backend instance. Invalid yields nil provider without error.
func (r *Registry) New(id ID) (DetectionProvider, error) {
	if id == Invalid {
		return nil, nil
	}
	r.mu.RLock()
	reg, ok := r.registrations[id]
	available := r.available[id]
	r.mu.RUnlock()
	if !ok || !available {
		return nil, errors.Wrapf(ErrProviderUnavailable, "provider '%s'", id)
	}
	p, err := reg.factory()
	if err != nil {
		return nil, errors.Wrapf(err, "can't create provider '%s'", id)
	}
	return p, nil
}
