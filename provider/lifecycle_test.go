package provider

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// journal records provider calls in order
type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) add(event string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, event)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.events...)
}

type fakeProvider struct {
	name       string
	journal    *journal
	loadGate   chan struct{}
	loadStart  chan struct{}
	loadErr    error
	unloadErr  error
	loadPanic  bool
	temporal   bool
	limit      atomic.Int32
	loads      atomic.Int32
	detections []Detection
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{
		name:      name,
		journal:   &journal{},
		loadStart: make(chan struct{}, 16),
	}
}

func (p *fakeProvider) Load() error {
	p.loads.Add(1)
	p.journal.add("load " + p.name)
	p.loadStart <- struct{}{}
	if p.loadGate != nil {
		<-p.loadGate
	}
	if p.loadPanic {
		panic("driver crashed")
	}
	p.journal.add("loaded " + p.name)
	return p.loadErr
}

func (p *fakeProvider) Unload() error {
	p.journal.add("unload " + p.name)
	return p.unloadErr
}

func (p *fakeProvider) Process(_ image.Image) error {
	return nil
}

func (p *fakeProvider) DetectionCount() int {
	return len(p.detections)
}

func (p *fakeProvider) DetectionAt(index int) (Rect, float64) {
	return p.detections[index].Rect, p.detections[index].Confidence
}

func (p *fakeProvider) SetTrackingLimit(n int) {
	p.limit.Store(int32(n))
}

func (p *fakeProvider) TrackingLimitRange() (int, int) {
	return 1, 8
}

func (p *fakeProvider) IsTemporal() bool {
	return p.temporal
}

// newTestLifecycle registers x as PigoFaceDetection and y as Replay
func newTestLifecycle(t *testing.T, x, y *fakeProvider, options ...LifecycleOption) *Lifecycle {
	t.Helper()
	logger := quietLogger()
	registry := NewRegistry(WithRegistryLogger(logger))
	registry.Register(PigoFaceDetection, fakeFactory(x), nil)
	registry.Register(Replay, fakeFactory(y), nil)
	require.NoError(t, registry.Initialize())
	options = append([]LifecycleOption{WithLifecycleLogger(logger)}, options...)
	return NewLifecycle(registry, options...)
}

func waitLoadStart(t *testing.T, p *fakeProvider) {
	t.Helper()
	select {
	case <-p.loadStart:
	case <-time.After(waitTimeout):
		t.Fatalf("Timeout waiting for %s load", p.name)
	}
}

func TestLifecycleSwitchWhileRunning(t *testing.T) {
	shared := &journal{}
	x := newFakeProvider("x")
	x.journal = shared
	x.loadGate = make(chan struct{})
	y := newFakeProvider("y")
	y.journal = shared
	lifecycle := newTestLifecycle(t, x, y)
	defer lifecycle.Close()

	taskX, err := lifecycle.Switch(PigoFaceDetection)
	require.NoError(t, err)
	require.NotNil(t, taskX)
	waitLoadStart(t, x)
	assert.Equal(t, StateSwitchRunning, lifecycle.State())

	// Tick path never blocks on a running switch
	_, ok := lifecycle.Detect(nil)
	assert.False(t, ok)

	switched := make(chan *Task)
	go func() {
		task, err := lifecycle.Switch(Replay)
		assert.NoError(t, err)
		switched <- task
	}()
	// Second switch awaits the running one
	select {
	case <-switched:
		t.Fatalf("Switch must wait for running task")
	case <-time.After(50 * time.Millisecond):
	}
	close(x.loadGate)

	var taskY *Task
	select {
	case taskY = <-switched:
	case <-time.After(waitTimeout):
		t.Fatalf("Timeout waiting for second switch")
	}
	require.NotNil(t, taskY)
	assert.Equal(t, TaskCompleted, taskX.State())
	taskY.Await()

	assert.Equal(t, int32(1), x.loads.Load())
	assert.Equal(t, int32(1), y.loads.Load())
	assert.Equal(t, []string{"load x", "loaded x", "unload x", "load y", "loaded y"}, shared.list())
	assert.Equal(t, Replay, lifecycle.Current())
	assert.True(t, lifecycle.Ready())
	assert.Equal(t, StateReady, lifecycle.State())
	assert.NoError(t, lifecycle.LastError())
}

func TestLifecycleSwitchWhileQueued(t *testing.T) {
	pool := NewPool(1)
	defer pool.Close()

	x := newFakeProvider("x")
	y := newFakeProvider("y")
	lifecycle := newTestLifecycle(t, x, y, WithPool(pool))
	defer lifecycle.Close()

	// Occupy the only worker
	release := make(chan struct{})
	started := make(chan struct{})
	_, err := pool.Submit(func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	require.NoError(t, err)
	waitClosed(t, started, "blocker start")

	taskX, err := lifecycle.Switch(PigoFaceDetection)
	require.NoError(t, err)
	assert.Equal(t, StateSwitchQueued, lifecycle.State())

	taskY, err := lifecycle.Switch(Replay)
	require.NoError(t, err)
	assert.Equal(t, TaskCancelled, taskX.State())

	close(release)
	taskY.Await()
	assert.Equal(t, int32(0), x.loads.Load(), "dequeued switch must never run")
	assert.Equal(t, int32(1), y.loads.Load())
	assert.Equal(t, Replay, lifecycle.Current())
	assert.True(t, lifecycle.Ready())
}

func TestLifecycleSameProvider(t *testing.T) {
	x := newFakeProvider("x")
	lifecycle := newTestLifecycle(t, x, newFakeProvider("y"))
	defer lifecycle.Close()

	task, err := lifecycle.Switch(PigoFaceDetection)
	require.NoError(t, err)
	task.Await()

	task, err = lifecycle.Switch(PigoFaceDetection)
	require.NoError(t, err)
	assert.Nil(t, task)
	assert.Equal(t, int32(1), x.loads.Load())
}

func TestLifecycleLoadFailure(t *testing.T) {
	x := newFakeProvider("x")
	x.loadErr = errors.New("no device")
	lifecycle := newTestLifecycle(t, x, newFakeProvider("y"))
	defer lifecycle.Close()

	task, err := lifecycle.Switch(PigoFaceDetection)
	require.NoError(t, err)
	task.Await()

	assert.False(t, lifecycle.Ready())
	assert.Equal(t, StateIdle, lifecycle.State())
	assert.True(t, errors.Is(lifecycle.LastError(), ErrProviderLoadFailed))
	assert.True(t, errors.Is(task.Err(), ErrProviderLoadFailed))
	_, ok := lifecycle.Detect(nil)
	assert.False(t, ok)

	// User re-triggers the same provider
	x.loadErr = nil
	task, err = lifecycle.Switch(PigoFaceDetection)
	require.NoError(t, err)
	require.NotNil(t, task)
	task.Await()
	assert.True(t, lifecycle.Ready())
	assert.NoError(t, lifecycle.LastError())
}

func TestLifecycleLoadPanic(t *testing.T) {
	x := newFakeProvider("x")
	x.loadPanic = true
	lifecycle := newTestLifecycle(t, x, newFakeProvider("y"))
	defer lifecycle.Close()

	task, err := lifecycle.Switch(PigoFaceDetection)
	require.NoError(t, err)
	task.Await()
	assert.False(t, lifecycle.Ready())
	assert.True(t, errors.Is(lifecycle.LastError(), ErrProviderLoadFailed))
}

func TestLifecycleUnloadFailure(t *testing.T) {
	x := newFakeProvider("x")
	x.unloadErr = errors.New("busy")
	y := newFakeProvider("y")
	lifecycle := newTestLifecycle(t, x, y)
	defer lifecycle.Close()

	task, err := lifecycle.Switch(PigoFaceDetection)
	require.NoError(t, err)
	task.Await()
	require.True(t, lifecycle.Ready())

	task, err = lifecycle.Switch(Replay)
	require.NoError(t, err)
	task.Await()
	assert.False(t, lifecycle.Ready())
	assert.True(t, errors.Is(lifecycle.LastError(), ErrProviderUnloadFailed))
	assert.Equal(t, int32(0), y.loads.Load())
}

func TestLifecycleApplyMode(t *testing.T) {
	x := newFakeProvider("x")
	y := newFakeProvider("y")
	y.temporal = true
	lifecycle := newTestLifecycle(t, x, y)
	defer lifecycle.Close()

	// Mode requested before load is applied after it
	lifecycle.ApplyMode(true)
	task, err := lifecycle.Switch(Replay)
	require.NoError(t, err)
	task.Await()
	assert.True(t, lifecycle.IsTemporal())
	assert.Equal(t, int32(1), y.limit.Load())

	lifecycle.ApplyMode(false)
	assert.Equal(t, int32(8), y.limit.Load())

	// Non temporal backend always tracks a group
	lifecycle.ApplyMode(true)
	task, err = lifecycle.Switch(PigoFaceDetection)
	require.NoError(t, err)
	task.Await()
	assert.False(t, lifecycle.IsTemporal())
	assert.Equal(t, int32(8), x.limit.Load())
}

func TestLifecycleDetect(t *testing.T) {
	x := newFakeProvider("x")
	x.detections = []Detection{
		{Rect: Rect{X: 10, Y: 20, Width: 30, Height: 40}, Confidence: 0.9},
	}
	lifecycle := newTestLifecycle(t, x, newFakeProvider("y"))
	defer lifecycle.Close()

	task, err := lifecycle.Switch(PigoFaceDetection)
	require.NoError(t, err)
	task.Await()

	detections, ok := lifecycle.Detect(nil)
	require.True(t, ok)
	assert.Equal(t, x.detections, detections)
}

func TestLifecycleInvalid(t *testing.T) {
	x := newFakeProvider("x")
	lifecycle := newTestLifecycle(t, x, newFakeProvider("y"))
	defer lifecycle.Close()

	task, err := lifecycle.Switch(PigoFaceDetection)
	require.NoError(t, err)
	task.Await()

	task, err = lifecycle.Switch(Invalid)
	require.NoError(t, err)
	task.Await()
	assert.False(t, lifecycle.Ready())
	assert.Equal(t, Invalid, lifecycle.Current())
	assert.Equal(t, []string{"load x", "loaded x", "unload x"}, x.journal.list())
}

func TestLifecycleClose(t *testing.T) {
	x := newFakeProvider("x")
	x.loadGate = make(chan struct{})
	lifecycle := newTestLifecycle(t, x, newFakeProvider("y"))

	_, err := lifecycle.Switch(PigoFaceDetection)
	require.NoError(t, err)
	waitLoadStart(t, x)

	closed := make(chan struct{})
	go func() {
		assert.NoError(t, lifecycle.Close())
		close(closed)
	}()
	close(x.loadGate)
	waitClosed(t, closed, "close")

	assert.False(t, lifecycle.Ready())
	assert.Equal(t, []string{"load x", "loaded x", "unload x"}, x.journal.list())

	_, err = lifecycle.Switch(Replay)
	assert.Error(t, err)
	assert.NoError(t, lifecycle.Close())
}
