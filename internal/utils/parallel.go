package utils

import (
	"sync"
)

// Task is a unit of work run by RunParallel.
type Task[T any] func() (T, error)

// RunParallel runs every task in its own goroutine and returns results and
// errors in task order.
func RunParallel[T any](tasks []Task[T]) ([]T, []error) {
	var wg sync.WaitGroup
	results := make([]T, len(tasks))
	errs := make([]error, len(tasks))

	wg.Add(len(tasks))
	for i, task := range tasks {
		go func(index int, t Task[T]) {
			defer wg.Done()
			results[index], errs[index] = t()
		}(i, task)
	}

	wg.Wait()
	return results, errs
}

// WorkerPool runs submitted jobs on a fixed number of goroutines. A job
// that panics is reported to onPanic and does not take its worker down.
type WorkerPool struct {
	jobs      chan func()
	pending   sync.WaitGroup
	onPanic   func(any)
	closeOnce sync.Once
}

func NewWorkerPool(workers int, onPanic func(any)) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	p := &WorkerPool{
		jobs:    make(chan func(), workers*2),
		onPanic: onPanic,
	}
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

func (p *WorkerPool) work() {
	for job := range p.jobs {
		p.run(job)
	}
}

func (p *WorkerPool) run(job func()) {
	defer p.pending.Done()
	defer func() {
		if r := recover(); r != nil && p.onPanic != nil {
			p.onPanic(r)
		}
	}()
	job()
}

// AddTask queues job, blocking while the queue is full. It must not be
// called after Close.
func (p *WorkerPool) AddTask(job func()) {
	p.pending.Add(1)
	p.jobs <- job
}

// Wait blocks until every queued job has finished.
func (p *WorkerPool) Wait() {
	p.pending.Wait()
}

// Close stops the workers once the queue drains. Safe to call twice.
func (p *WorkerPool) Close() {
	p.closeOnce.Do(func() { close(p.jobs) })
}
