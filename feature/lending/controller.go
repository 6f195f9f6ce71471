package lending

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Controller performs the holder transitions of checkout and return.
type Controller struct {
	store  HoldStore
	logger *zap.Logger
}

// NewController creates a Controller over store.
func NewController(store HoldStore, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{store: store, logger: logger}
}

// CheckoutOne holds a single item. A missing or already held item is
// not_processed; only store failures are returned as errors.
func (c *Controller) CheckoutOne(ctx context.Context, itemID, holderID string) (Outcome, error) {
	ok, err := c.store.Hold(ctx, itemID, holderID)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return NotProcessed(itemID, ReasonUnavailable), nil
	}
	return Processed(itemID), nil
}

// Candidates returns the ids among itemIDs that are currently unheld.
func (c *Controller) Candidates(ctx context.Context, itemIDs []string) ([]string, error) {
	return c.store.Unheld(ctx, itemIDs)
}

// CheckoutMany holds every unheld item among itemIDs in one conditional update.
// The candidate query only predicts the result; if the update modifies a
// different number of rows the transaction is rolled back and the call fails
// with ErrInvariantViolation.
func (c *Controller) CheckoutMany(ctx context.Context, itemIDs []string, holderID string) ([]Outcome, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}

	var candidates []string
	err := c.store.Transaction(ctx, func(tx HoldStore) error {
		var err error
		candidates, err = tx.Unheld(ctx, itemIDs)
		if err != nil || len(candidates) == 0 {
			return err
		}

		modified, err := tx.HoldMany(ctx, itemIDs, holderID)
		if err != nil {
			return err
		}
		if modified != int64(len(candidates)) {
			c.logger.Error("Bulk hold count mismatch",
				zap.String("holder_id", holderID),
				zap.Int("candidates", len(candidates)),
				zap.Int64("modified", modified))
			return fmt.Errorf("%w: expected %d, modified %d", ErrInvariantViolation, len(candidates), modified)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	held := make(map[string]struct{}, len(candidates))
	for _, id := range candidates {
		held[id] = struct{}{}
	}

	outcomes := make([]Outcome, 0, len(itemIDs))
	for _, id := range itemIDs {
		if _, ok := held[id]; ok {
			outcomes = append(outcomes, Processed(id))
		} else {
			outcomes = append(outcomes, NotProcessed(id, ReasonUnavailable))
		}
	}
	return outcomes, nil
}

// Return releases an item held by holderID.
// The release is one conditional update; the item is read only to classify a miss.
func (c *Controller) Return(ctx context.Context, itemID, holderID string) error {
	ok, err := c.store.Release(ctx, itemID, holderID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	_, found, err := c.store.Holder(ctx, itemID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("book %s: %w", itemID, ErrNotFound)
	}
	return fmt.Errorf("book %s: %w", itemID, ErrOwnershipMismatch)
}
