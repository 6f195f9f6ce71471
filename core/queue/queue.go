package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed is returned when submitting to, or awaiting on, a closed executor.
var ErrClosed = errors.New("queue: executor closed")

// Task asks a worker to hold ItemID for HolderID.
type Task struct {
	ItemID   string `json:"item_id"`
	HolderID string `json:"holder_id"`
}

// Result is a worker's report for one task.
type Result struct {
	ItemID    string `json:"item_id"`
	Processed bool   `json:"processed"`
	Reason    string `json:"reason,omitempty"`
}

// HandlerFunc executes one task.
// A returned error means the task could not be evaluated at all (e.g. the
// store is unreachable); a task that was evaluated and refused is a Result
// with Processed set to false.
type HandlerFunc func(ctx context.Context, task Task) (Result, error)

// Handle is a pending task result.
type Handle interface {
	Await(ctx context.Context) (Result, error)
}

// Executor accepts tasks for asynchronous execution.
type Executor interface {
	Submit(ctx context.Context, task Task) (Handle, error)
	Close() error
}

// RemoteError carries a handler error reported by an out-of-process worker.
type RemoteError struct {
	ItemID  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("task %s failed on worker: %s", e.ItemID, e.Message)
}

// NewExecutor builds the executor selected by cfg.Driver.
// The handler is used by the local pool only; AMQP tasks run in the worker command.
func NewExecutor(cfg Config, handler HandlerFunc, logger *zap.Logger) (Executor, error) {
	switch cfg.Driver {
	case DriverLocal, "":
		return NewPool(cfg.Workers, handler, logger), nil
	case DriverAMQP:
		return DialExecutor(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported queue driver %q", cfg.Driver)
	}
}

type future struct {
	once sync.Once
	done chan struct{}
	res  Result
	err  error
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

func (f *future) resolve(res Result, err error) {
	f.once.Do(func() {
		f.res, f.err = res, err
		close(f.done)
	})
}

// Await blocks until the task completes or ctx ends.
func (f *future) Await(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		return f.res, f.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// safeRun invokes handler and turns a panic into a refused result.
func safeRun(ctx context.Context, handler HandlerFunc, task Task, logger *zap.Logger) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Task handler panicked",
				zap.String("item_id", task.ItemID),
				zap.Any("panic", r))
			res, err = Result{ItemID: task.ItemID, Processed: false, Reason: "worker_failure"}, nil
		}
	}()
	return handler(ctx, task)
}
