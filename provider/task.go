package provider

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// TaskState is lifecycle state of background task
type TaskState int32

const (
	TaskQueued TaskState = iota
	TaskRunning
	TaskCompleted
	TaskCancelled
)

func (s TaskState) String() string {
	switch s {
	case TaskQueued:
		return "queued"
	case TaskRunning:
		return "running"
	case TaskCompleted:
		return "completed"
	case TaskCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// TaskFunc is unit of background work
type TaskFunc func(ctx context.Context) error

// Task is handle of work submitted to Pool
type Task struct {
	fn    TaskFunc
	mu    sync.Mutex
	state TaskState
	err   error
	done  chan struct{}
}

func newTask(fn TaskFunc) *Task {
	return &Task{
		fn:    fn,
		state: TaskQueued,
		done:  make(chan struct{}),
	}
}

// State returns current state of the task
func (t *Task) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns error produced by the task. Valid once Done is closed.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Done is closed when the task either completes or gets cancelled
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Await blocks until the task completes or gets cancelled
func (t *Task) Await() {
	<-t.done
}

// Cancel dequeues the task if it has not started yet.
// Returns true when the task is guaranteed never to run.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TaskQueued {
		return t.state == TaskCancelled
	}
	t.state = TaskCancelled
	close(t.done)
	return true
}

// CancelOrAwait dequeues the task if still queued, otherwise waits for it to finish.
// On return the task is in a terminal state, which is returned.
func (t *Task) CancelOrAwait() TaskState {
	if !t.Cancel() {
		t.Await()
	}
	return t.State()
}

func (t *Task) run(ctx context.Context) {
	t.mu.Lock()
	if t.state != TaskQueued {
		t.mu.Unlock()
		return
	}
	t.state = TaskRunning
	t.mu.Unlock()

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("task panicked: %v", r)
		}
		t.mu.Lock()
		t.err = err
		t.state = TaskCompleted
		t.mu.Unlock()
		close(t.done)
	}()
	err = t.fn(ctx)
}

// Pool runs tasks on a fixed set of goroutines in submission order
type Pool struct {
	queue  chan *Task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewPool starts pool with given number of workers (at least one)
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	pool := &Pool{
		queue:  make(chan *Task, 64),
		ctx:    ctx,
		cancel: cancel,
	}
	pool.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go pool.worker()
	}
	return pool
}

func (pool *Pool) worker() {
	defer pool.wg.Done()
	for task := range pool.queue {
		if pool.ctx.Err() != nil {
			task.Cancel()
			continue
		}
		task.run(pool.ctx)
	}
}

// Submit enqueues new task
func (pool *Pool) Submit(fn TaskFunc) (*Task, error) {
	pool.mu.RLock()
	defer pool.mu.RUnlock()
	if pool.closed {
		return nil, ErrPoolClosed
	}
	task := newTask(fn)
	pool.queue <- task
	return task, nil
}

// Close cancels queued tasks, signals running ones via context and waits for workers to exit
func (pool *Pool) Close() {
	pool.mu.Lock()
	if pool.closed {
		pool.mu.Unlock()
		return
	}
	pool.closed = true
	pool.cancel()
	close(pool.queue)
	pool.mu.Unlock()
	pool.wg.Wait()
}
