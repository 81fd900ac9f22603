// Package workerpool provides a small bounded worker pool for running
// independent tasks with a fixed concurrency ceiling.
package workerpool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Task is a unit of work executed by the pool.
type Task func(ctx context.Context)

// Pool runs submitted tasks on a fixed set of workers. Panics inside a
// task are recovered and logged so one bad task cannot take down the
// pool.
type Pool struct {
	tasks  chan Task
	wg     sync.WaitGroup
	logger *slog.Logger

	closeOnce sync.Once
}

// New starts a pool with the given number of workers. Size values
// below 1 are raised to 1.
func New(size int, logger *slog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		tasks:  make(chan Task),
		logger: logger,
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker task panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	task(context.Background())
}

// Submit queues a task. It blocks while all workers are busy and the
// queue is full. Submit after Close panics.
func (p *Pool) Submit(task Task) {
	p.tasks <- task
}

// Close stops accepting tasks and waits for in-flight ones to finish.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.tasks)
	})
	p.wg.Wait()
}

// ParallelFor runs fn for each index in [0, n) using at most size
// workers and waits for all of them. Panics in fn are recovered and
// returned as errors in the slot for their index.
func ParallelFor(ctx context.Context, size, n int, fn func(ctx context.Context, i int) error) []error {
	if size < 1 {
		size = 1
	}
	errs := make([]error, n)
	sem := make(chan struct{}, size)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			errs[i] = ctx.Err()
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("task %d panicked: %v", i, r)
				}
			}()
			errs[i] = fn(ctx, i)
		}(i)
	}
	wg.Wait()
	return errs
}
