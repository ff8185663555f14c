// Package runner provides the bounded worker pool the scan orchestrator
// dispatches per-file work onto.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Task represents a unit of work.
type Task func(workerID int) error

// PanicError is returned for a task that panicked. The pool keeps running.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("runner: task panicked: %v", e.Value)
}

// WorkerPool manages a pool of worker goroutines.
type WorkerPool struct {
	NumWorkers int
	Tasks      chan Task
	// OnError receives every task error, including recovered panics. It is
	// called from worker goroutines.
	OnError func(workerID int, err error)
	Logger  *slog.Logger

	wg          sync.WaitGroup // Workers WG
	taskWG      sync.WaitGroup // Tasks WG
	completed   int64
	stopOnce    sync.Once
}

// NewWorkerPool creates a new worker pool. A non-positive size uses one
// worker per CPU.
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	// Use buffered channel to prevent deadlocks when submitting many tasks
	bufferSize := numWorkers * 10
	if bufferSize < 100 {
		bufferSize = 100
	}
	return &WorkerPool{
		NumWorkers: numWorkers,
		Tasks:      make(chan Task, bufferSize),
		Logger:     slog.Default(),
	}
}

// Start launches the worker goroutines.
func (p *WorkerPool) Start() {
	p.logger().Debug("starting worker pool", "workers", p.NumWorkers)
	for i := 0; i < p.NumWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for task := range p.Tasks {
		if err := p.run(id, task); err != nil && p.OnError != nil {
			p.OnError(id, err)
		}
		atomic.AddInt64(&p.completed, 1)
		p.taskWG.Done()
	}
}

func (p *WorkerPool) run(id int, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return task(id)
}

// Submit adds a task to the pool. It blocks while the buffer is full and
// returns the context error, without queuing, once ctx is done.
func (p *WorkerPool) Submit(ctx context.Context, t Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.taskWG.Add(1)
	select {
	case p.Tasks <- t:
		return nil
	case <-ctx.Done():
		p.taskWG.Done()
		return ctx.Err()
	}
}

// Stop closes the task channel and waits for workers to drain it. It is
// safe to call more than once.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		close(p.Tasks)
		p.wg.Wait()
		p.logger().Debug("worker pool stopped", "completed", p.Completed())
	})
}

// Completed returns the number of tasks that have finished, successfully
// or not.
func (p *WorkerPool) Completed() int {
	return int(atomic.LoadInt64(&p.completed))
}

func (p *WorkerPool) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
