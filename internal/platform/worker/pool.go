// Package worker provides a small fixed-size worker pool for running
// independent tasks concurrently.
package worker

import (
	"context"
	"sync"
)

// Task is a unit of work submitted to the pool.
type Task struct {
	// ID identifies the task in results and logs
	ID string
	// Run does the work. The context is the pool's context.
	Run func(ctx context.Context) error
}

// Result is the outcome of one task.
type Result struct {
	TaskID string
	Err    error
}

// Pool runs submitted tasks on a fixed number of goroutines.
type Pool struct {
	tasks   chan Task
	results chan Result
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewPool starts a pool with the given number of workers. queueSize bounds
// the number of tasks that can be queued without blocking Submit.
func NewPool(ctx context.Context, workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	poolCtx, cancel := context.WithCancel(ctx)

	p := &Pool{
		tasks:   make(chan Task, queueSize),
		results: make(chan Result, queueSize),
		ctx:     poolCtx,
		cancel:  cancel,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			err := task.Run(p.ctx)
			res := Result{TaskID: task.ID, Err: err}
			// Prefer delivering the result; only give up when the buffer is
			// full and the pool is shutting down
			select {
			case p.results <- res:
			default:
				select {
				case p.results <- res:
				case <-p.ctx.Done():
					return
				}
			}
		}
	}
}

// Submit queues a task. It blocks when the queue is full and returns false
// once the pool is shut down.
func (p *Pool) Submit(task Task) bool {
	select {
	case <-p.ctx.Done():
		return false
	case p.tasks <- task:
		return true
	}
}

// Results returns the channel task outcomes are delivered on.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Close stops accepting tasks, waits for in-flight work, and closes the
// results channel.
func (p *Pool) Close() {
	close(p.tasks)
	p.wg.Wait()
	p.cancel()
	close(p.results)
}
