package lending

import (
	"context"

	"book-circulation/core/queue"
	"book-circulation/core/utils"

	"go.uber.org/zap"
)

// Worker executes one checkout task. It has the queue.HandlerFunc shape and
// runs both in the in-process pool and in the AMQP worker.
type Worker struct {
	controller *Controller
	logger     *zap.Logger
}

// NewWorker creates a Worker.
func NewWorker(controller *Controller, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{controller: controller, logger: logger}
}

// Handle holds task.ItemID for task.HolderID.
// Malformed ids, missing items and held items are refusals, not errors.
func (w *Worker) Handle(ctx context.Context, task queue.Task) (queue.Result, error) {
	itemID, ok := utils.CanonicalID(task.ItemID)
	if !ok {
		return queue.Result{ItemID: task.ItemID, Reason: ReasonMalformedID}, nil
	}
	holderID, ok := utils.CanonicalID(task.HolderID)
	if !ok {
		return queue.Result{ItemID: itemID, Reason: ReasonMalformedID}, nil
	}

	out, err := w.controller.CheckoutOne(ctx, itemID, holderID)
	if err != nil {
		w.logger.Error("Checkout task failed", zap.String("item_id", itemID), zap.Error(err))
		return queue.Result{ItemID: itemID}, err
	}

	w.logger.Debug("Checkout task done",
		zap.String("item_id", itemID),
		zap.String("status", string(out.Status)),
		zap.String("reason", out.Reason))

	return queue.Result{
		ItemID:    itemID,
		Processed: out.Status == StatusProcessed,
		Reason:    out.Reason,
	}, nil
}
