// Package queue runs circulation tasks on a pool of workers and collects their results.
//
// A Task asks a worker to place a hold on one item for one holder. An Executor
// accepts tasks and returns a Handle per task; awaiting the Handle yields the
// worker's Result. Two executors are provided:
//
//   - Pool: in-process, bounded goroutine pool. Used by default and in tests.
//   - AMQPExecutor: publishes each task to a RabbitMQ queue and waits for the
//     reply on an exclusive reply queue, matched by correlation id. The worker
//     side is the Consumer, run by the worker command.
//
// Both executors run the same HandlerFunc, so a task behaves identically
// whether it runs in-process or out-of-process.
//
// # Usage
//
//	exec, err := queue.NewExecutor(cfg.Queue, worker.Handle, log)
//	h, err := exec.Submit(ctx, queue.Task{ItemID: id, HolderID: holder})
//	res, err := h.Await(ctx)
package queue
