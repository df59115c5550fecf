package provider

import (
	"image"
	"sync"

	"github.com/pkg/errors"
)

const replayMaxTrackingLimit = 64

// ReplayProvider plays back detections pushed by the host, one batch per Process call.
// Batches are consumed in push order; with nothing queued Process reports no detections.
// Detections are reported only once: ticks without a fresh batch see an empty result.
type ReplayProvider struct {
	mu       sync.Mutex
	queue    [][]Detection
	current  []Detection
	limit    int
	temporal bool
	latest   bool
	loaded   bool

	// Optional hooks, mostly for tests
	loadFn   func() error
	unloadFn func() error
}

// ReplayOption configures ReplayProvider
type ReplayOption func(*ReplayProvider)

// WithTemporal marks replayed detections as identity preserving
func WithTemporal(temporal bool) ReplayOption {
	return func(p *ReplayProvider) {
		p.temporal = temporal
	}
}

// WithLatestOnly makes Push replace batches not processed yet
func WithLatestOnly(latest bool) ReplayOption {
	return func(p *ReplayProvider) {
		p.latest = latest
	}
}

// WithLoadHook runs fn inside Load
func WithLoadHook(fn func() error) ReplayOption {
	return func(p *ReplayProvider) {
		p.loadFn = fn
	}
}

// WithUnloadHook runs fn inside Unload
func WithUnloadHook(fn func() error) ReplayOption {
	return func(p *ReplayProvider) {
		p.unloadFn = fn
	}
}

// NewReplayProvider creates provider with empty queue
func NewReplayProvider(options ...ReplayOption) *ReplayProvider {
	p := &ReplayProvider{
		limit: replayMaxTrackingLimit,
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// RegisterReplay adds replay backend to registry. Every switch to Replay gets the same instance.
func RegisterReplay(registry *Registry, p *ReplayProvider) {
	registry.Register(Replay, func() (DetectionProvider, error) {
		return p, nil
	}, nil)
}

// Push queues detections for one future Process call. Safe for concurrent use.
func (p *ReplayProvider) Push(batch []Detection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest {
		p.queue = p.queue[:0]
	}
	p.queue = append(p.queue, append([]Detection(nil), batch...))
}

// Pending returns number of queued batches
func (p *ReplayProvider) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Load marks provider usable
func (p *ReplayProvider) Load() error {
	if p.loadFn != nil {
		if err := p.loadFn(); err != nil {
			return err
		}
	}
	p.mu.Lock()
	p.loaded = true
	p.mu.Unlock()
	return nil
}

// Unload drops queued batches
func (p *ReplayProvider) Unload() error {
	if p.unloadFn != nil {
		if err := p.unloadFn(); err != nil {
			return err
		}
	}
	p.mu.Lock()
	p.loaded = false
	p.queue = nil
	p.current = nil
	p.mu.Unlock()
	return nil
}

// Process takes next queued batch. Frame is ignored.
func (p *ReplayProvider) Process(_ image.Image) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		return errors.New("replay provider is not loaded")
	}
	p.current = nil
	if len(p.queue) == 0 {
		return nil
	}
	p.current = p.queue[0]
	p.queue = p.queue[1:]
	if len(p.current) > p.limit {
		p.current = p.current[:p.limit]
	}
	return nil
}

// DetectionCount returns size of the batch taken by last Process call
func (p *ReplayProvider) DetectionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.current)
}

// DetectionAt returns i-th detection of the current batch
func (p *ReplayProvider) DetectionAt(index int) (Rect, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	det := p.current[index]
	return det.Rect, det.Confidence
}

// SetTrackingLimit caps batch size
func (p *ReplayProvider) SetTrackingLimit(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n < 1 {
		n = 1
	}
	if n > replayMaxTrackingLimit {
		n = replayMaxTrackingLimit
	}
	p.limit = n
}

// TrackingLimitRange returns allowed limits
func (p *ReplayProvider) TrackingLimitRange() (int, int) {
	return 1, replayMaxTrackingLimit
}

// IsTemporal reports configured temporal flag
func (p *ReplayProvider) IsTemporal() bool {
	return p.temporal
}
