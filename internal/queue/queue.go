package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// ErrQueueClosed is returned when tasks are submitted to a closed queue.
var ErrQueueClosed = errors.New("queue is closed")

// Task is a unit of background work.
type Task func()

// Queue executes tasks one at a time, in the order they were submitted.
// Submission never blocks, so a running task may submit follow-up tasks.
type Queue struct {
	tasks []Task

	// Synchronization
	mu       sync.Mutex
	notEmpty *sync.Cond
	idle     *sync.Cond

	// State
	running bool
	closed  bool
	stats   Stats
	done    chan struct{}

	logger *log.Logger
}

// Stats tracks queue throughput.
type Stats struct {
	TotalEnqueued  int64
	TotalProcessed int64
	TotalPanics    int64
	CurrentSize    int
	PeakSize       int
	LastEnqueue    time.Time
	LastProcessed  time.Time
}

// New creates a queue and starts its worker. A nil logger uses the default
// logger.
func New(logger *log.Logger) *Queue {
	if logger == nil {
		logger = log.Default()
	}
	q := &Queue{
		done:   make(chan struct{}),
		logger: logger,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.idle = sync.NewCond(&q.mu)

	go q.run()

	return q
}

// Submit appends a task to the queue.
func (q *Queue) Submit(task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.tasks = append(q.tasks, task)
	q.stats.TotalEnqueued++
	q.stats.LastEnqueue = time.Now()
	if len(q.tasks) > q.stats.PeakSize {
		q.stats.PeakSize = len(q.tasks)
	}

	q.notEmpty.Signal()
	return nil
}

// Wait blocks until the queue is empty and no task is running, or until ctx
// is done. Tasks submitted by running tasks are waited for as well.
func (q *Queue) Wait(ctx context.Context) error {
	// Wake the waiter below when ctx ends so it does not outlive the call.
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.idle.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for q.busy() {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.idle.Wait()
	}
	return nil
}

// Size returns the number of tasks waiting to run.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.tasks)
}

// Stats returns current queue statistics.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := q.stats
	stats.CurrentSize = len(q.tasks)
	return stats
}

// Close waits until the queue is idle, including follow-up tasks submitted
// by running tasks, then stops accepting tasks and stops the worker. It is
// safe to call more than once but must not be called from a task.
func (q *Queue) Close() error {
	q.mu.Lock()
	for q.busy() {
		q.idle.Wait()
	}
	q.closed = true
	q.notEmpty.Broadcast()
	q.mu.Unlock()

	<-q.done
	return nil
}

// busy reports whether work is queued or running (must be called with lock held).
func (q *Queue) busy() bool {
	return len(q.tasks) > 0 || q.running
}

func (q *Queue) run() {
	defer close(q.done)

	for {
		q.mu.Lock()
		for len(q.tasks) == 0 && !q.closed {
			q.notEmpty.Wait()
		}
		if len(q.tasks) == 0 && q.closed {
			q.idle.Broadcast()
			q.mu.Unlock()
			return
		}

		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.running = true
		q.mu.Unlock()

		q.execute(task)

		q.mu.Lock()
		q.running = false
		q.stats.TotalProcessed++
		q.stats.LastProcessed = time.Now()
		if len(q.tasks) == 0 {
			q.idle.Broadcast()
		}
		q.mu.Unlock()
	}
}

// execute runs a task, keeping the worker alive if it panics.
func (q *Queue) execute(task Task) {
	defer func() {
		if r := recover(); r != nil {
			q.mu.Lock()
			q.stats.TotalPanics++
			q.mu.Unlock()
			q.logger.Error("queue task panicked", "panic", fmt.Sprint(r))
		}
	}()
	task()
}
