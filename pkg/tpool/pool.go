// Package tpool implements a bounded, lazily-scaling worker thread pool:
// a FIFO queue of tasks served by goroutines spawned on demand up to a
// configured cap, with per-task completion signaling and a shutdown path
// that refuses to discard outstanding work.
package tpool

import (
	"sync"

	"github.com/olegmenkov/sysprog/internal/logger"
	"github.com/olegmenkov/sysprog/pkg/metrics"
)

const (
	// MaxThreads is the hard ceiling on a pool's max_threads setting.
	MaxThreads = 1024
	// MaxTasks is the hard ceiling on the number of tasks a pool may
	// hold queued at once.
	MaxTasks = 1 << 16
)

// Pool is a bounded worker pool. The zero value is not usable; construct
// one with New.
type Pool struct {
	mu            sync.Mutex
	taskAvailable *sync.Cond
	allIdle       *sync.Cond
	workers       sync.WaitGroup

	maxThreads     int
	maxTasks       int
	threadsCreated int
	threadsBusy    int

	taskFirst *Task
	taskLast  *Task
	taskTotal int

	shuttingDown bool

	metrics *metrics.Registry
}

// New constructs a Pool that lazily spawns up to maxThreads workers and
// holds at most maxTasks queued tasks at once. A non-positive maxTasks
// falls back to MaxTasks.
func New(maxThreads, maxTasks int) (*Pool, error) {
	if maxThreads <= 0 || maxThreads > MaxThreads {
		return nil, newError(ErrInvalidArgument, "max_threads %d out of range (0, %d]", maxThreads, MaxThreads)
	}
	if maxTasks <= 0 {
		maxTasks = MaxTasks
	}
	if maxTasks > MaxTasks {
		return nil, newError(ErrInvalidArgument, "max_tasks %d out of range (0, %d]", maxTasks, MaxTasks)
	}

	p := &Pool{
		maxThreads: maxThreads,
		maxTasks:   maxTasks,
		metrics:    metrics.NewRegistry(),
	}
	p.taskAvailable = sync.NewCond(&p.mu)
	p.allIdle = sync.NewCond(&p.mu)
	return p, nil
}

// Metrics exposes the pool's in-process counters: tasks queued, tasks
// done, and threads created.
func (p *Pool) Metrics() *metrics.Registry {
	return p.metrics
}

// ThreadCount returns the number of worker goroutines spawned so far.
func (p *Pool) ThreadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.threadsCreated
}

func (p *Pool) workerLoop() {
	defer p.workers.Done()
	for {
		p.mu.Lock()
		for !p.shuttingDown && p.taskFirst == nil {
			p.taskAvailable.Wait()
		}

		if p.shuttingDown {
			p.threadsCreated--
			p.mu.Unlock()
			return
		}

		task := p.taskFirst
		p.taskFirst = task.next
		if p.taskFirst == nil {
			p.taskLast = nil
		}
		p.taskTotal--
		p.threadsBusy++
		p.mu.Unlock()

		task.setState(StateRunning)
		logger.DebugFields(logger.Fields{"task_id": task.ID}, "tpool: task running")
		result := task.fn(task.arg)
		task.complete(result)
		p.metrics.Inc("tasks.done", 1)

		p.mu.Lock()
		p.threadsBusy--
		if p.taskTotal == 0 && p.threadsBusy == 0 {
			p.allIdle.Signal()
		}
		p.mu.Unlock()
	}
}

// Push enqueues task for execution, lazily spawning a new worker if the
// pool has spare capacity and every existing worker is busy or already
// has a queued task waiting for it.
func (p *Pool) Push(task *Task) error {
	if task == nil {
		return newError(ErrInvalidArgument, "task must not be nil")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shuttingDown {
		return newError(ErrInvalidArgument, "pool is shutting down")
	}
	if p.taskTotal >= p.maxTasks {
		return newError(ErrTooManyTasks, "pool already holds %d queued tasks", p.maxTasks)
	}

	task.mu.Lock()
	state := task.state
	task.mu.Unlock()
	if state != StateNew && state != StateDone {
		return newError(ErrTaskInPool, "task is already queued or running")
	}

	task.setState(StateQueued)
	task.mu.Lock()
	task.owner = p
	task.next = nil
	task.mu.Unlock()

	if p.taskFirst == nil {
		p.taskFirst = task
		p.taskLast = task
	} else {
		p.taskLast.next = task
		p.taskLast = task
	}
	p.taskTotal++
	p.metrics.Inc("tasks.queued", 1)

	if p.threadsCreated < p.maxThreads && p.taskTotal > p.threadsCreated-p.threadsBusy {
		p.threadsCreated++
		p.metrics.Set("threads.created", int64(p.threadsCreated))
		p.workers.Add(1)
		go p.workerLoop()
	}

	p.taskAvailable.Signal()
	return nil
}

// Close shuts the pool down, refusing to do so while tasks are queued or
// running. It blocks until every spawned worker has exited.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.taskTotal > 0 || p.threadsBusy > 0 {
		p.mu.Unlock()
		return newError(ErrHasTasks, "%d queued, %d running", p.taskTotal, p.threadsBusy)
	}

	// Push checks shuttingDown under this same lock before spawning, so
	// no worker can be added to p.workers after this point; the Wait
	// below covers every worker ever spawned.
	p.shuttingDown = true
	p.taskAvailable.Broadcast()
	p.mu.Unlock()

	p.workers.Wait()
	return nil
}

// Wait blocks until every currently queued and running task completes,
// without shutting the pool down.
func (p *Pool) Wait() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.taskTotal > 0 || p.threadsBusy > 0 {
		p.allIdle.Wait()
	}
}
