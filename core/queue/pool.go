package queue

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Pool executes tasks on at most Workers concurrent goroutines.
type Pool struct {
	handler HandlerFunc
	logger  *zap.Logger
	sem     chan struct{}

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool creates an in-process executor. workers <= 0 defaults to 16.
func NewPool(workers int, handler HandlerFunc, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		handler: handler,
		logger:  logger,
		sem:     make(chan struct{}, workers),
	}
}

// Submit schedules task and returns immediately.
func (p *Pool) Submit(ctx context.Context, task Task) (Handle, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrClosed
	}

	f := newFuture()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		select {
		case p.sem <- struct{}{}:
		case <-ctx.Done():
			f.resolve(Result{}, ctx.Err())
			return
		}
		defer func() { <-p.sem }()

		f.resolve(safeRun(ctx, p.handler, task, p.logger))
	}()
	return f, nil
}

// Close rejects new tasks and waits for running ones.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}
