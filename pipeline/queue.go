package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/digest/core"
)

const releaseTimeout = 30 * time.Second

// inflightCounter counts dispatched tasks that have not finished. Unlike
// sync.WaitGroup, add may run concurrently with wait while the count is zero.
type inflightCounter struct {
	mu   sync.Mutex
	idle sync.Cond
	n    int
}

func newInflightCounter() *inflightCounter {
	f := &inflightCounter{}
	f.idle.L = &f.mu
	return f
}

func (f *inflightCounter) add() {
	f.mu.Lock()
	f.n++
	f.mu.Unlock()
}

func (f *inflightCounter) done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n--
	if f.n < 0 {
		panic("pipeline: negative inflight count")
	}
	if f.n == 0 {
		f.idle.Broadcast()
	}
}

// wait blocks until the count drops to zero.
func (f *inflightCounter) wait() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.n > 0 {
		f.idle.Wait()
	}
}

// taskQueue buffers the tasks of one stage and feeds them to an ants pool.
// enqueue never blocks: a full or closed queue rejects the task.
type taskQueue struct {
	stage    core.Stage
	tasks    chan core.Task
	pool     *ants.Pool
	handle   func(ctx context.Context, task core.Task)
	reject   func(task core.Task, err error)
	inflight *inflightCounter
	done     chan struct{}
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
}

func newTaskQueue(
	stage core.Stage,
	poolSize, queueSize int,
	inflight *inflightCounter,
	handle func(ctx context.Context, task core.Task),
	reject func(task core.Task, err error),
	logger *slog.Logger,
) (*taskQueue, error) {
	logger = logger.With("stage", stage.String())
	pool, err := ants.NewPool(poolSize, ants.WithPanicHandler(func(v any) {
		logger.Error("worker panic", "panic", v)
	}))
	if err != nil {
		return nil, err
	}

	q := &taskQueue{
		stage:    stage,
		tasks:    make(chan core.Task, queueSize),
		pool:     pool,
		handle:   handle,
		reject:   reject,
		inflight: inflight,
		done:     make(chan struct{}),
		logger:   logger,
	}
	go q.feed()
	return q, nil
}

// enqueue hands a task to the feeder. It reports false if the queue is full or closed.
func (q *taskQueue) enqueue(task core.Task) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}

	q.inflight.add()
	select {
	case q.tasks <- task:
		return true
	default:
		q.inflight.done()
		return false
	}
}

func (q *taskQueue) feed() {
	defer close(q.done)
	for task := range q.tasks {
		if q.isClosed() {
			// Left PENDING in storage, Recover picks it up on the next start.
			q.logger.Debug("dropping queued task on shutdown", "task", task.ID, "record", task.RecordID)
			q.inflight.done()
			continue
		}

		err := q.pool.Submit(func() {
			defer q.inflight.done()
			q.handle(context.Background(), task)
		})
		if err != nil {
			q.logger.Error("error submitting task", "task", task.ID, "record", task.RecordID, "err", err)
			q.reject(task, err)
			q.inflight.done()
		}
	}
}

func (q *taskQueue) isClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// close stops accepting tasks, drops the queued ones and waits for running workers.
func (q *taskQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	<-q.done
	if err := q.pool.ReleaseTimeout(releaseTimeout); err != nil {
		q.logger.Warn("workers still running after release timeout", "err", err)
	}
}
