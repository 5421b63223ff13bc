package engine

import (
	"context"
	"sync"
)

// task is the unit of work dispatched to a worker.
type task[T any] struct {
	payload T
	result  chan<- taskResult[T]
}

type taskResult[T any] struct {
	payload T
	err     error
}

// workerPool is a fixed-size goroutine pool with a bounded input queue.
// The mutex serializes Drain's channel close against in-flight Submits so a
// late producer (retry timer, HTTP ingest) cannot send on a closed channel.
type workerPool[T, R any] struct {
	queue   chan task[T]
	process func(ctx context.Context, t T) (R, error)
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// newWorkerPool creates and starts a pool with n goroutines and queue capacity cap.
func newWorkerPool[T, R any](ctx context.Context, n, cap int, fn func(context.Context, T) (R, error)) *workerPool[T, R] {
	p := &workerPool[T, R]{
		queue:   make(chan task[T], cap),
		process: fn,
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(ctx)
		}()
	}
	return p
}

func (p *workerPool[T, R]) run(ctx context.Context) {
	for {
		select {
		case t, ok := <-p.queue:
			if !ok {
				return
			}
			_, err := p.process(ctx, t.payload)
			if t.result != nil {
				t.result <- taskResult[T]{payload: t.payload, err: err}
			}
		case <-ctx.Done():
			return
		}
	}
}

// Submit enqueues work without blocking (returns false if full or drained).
func (p *workerPool[T, R]) Submit(t T) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.queue <- task[T]{payload: t}:
		return true
	default:
		return false
	}
}

// Drain closes the queue and waits for all workers to finish. Safe to call
// more than once.
func (p *workerPool[T, R]) Drain() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}

// QueueLen returns how many tasks are currently queued.
func (p *workerPool[T, R]) QueueLen() int {
	return len(p.queue)
}

// QueueCap returns the total queue capacity.
func (p *workerPool[T, R]) QueueCap() int {
	return cap(p.queue)
}
