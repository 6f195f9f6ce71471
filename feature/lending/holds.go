package lending

import (
	"context"
	"errors"
	"fmt"

	"book-circulation/feature/books/models"

	"gorm.io/gorm"
)

// HoldStore is the persistence contract for the holder column.
// Every mutation is a single conditional UPDATE; exclusivity comes from the
// predicate being evaluated by the database at write time.
type HoldStore interface {
	// Hold sets the holder of an unheld item and reports whether it matched.
	Hold(ctx context.Context, itemID, holderID string) (bool, error)
	// HoldMany sets the holder of every unheld item among itemIDs and returns the modified count.
	HoldMany(ctx context.Context, itemIDs []string, holderID string) (int64, error)
	// Unheld returns the ids among itemIDs that exist and are not held.
	Unheld(ctx context.Context, itemIDs []string) ([]string, error)
	// Release clears the holder of an item held by holderID and reports whether it matched.
	Release(ctx context.Context, itemID, holderID string) (bool, error)
	// Holder returns the current holder of an item; found is false when the item does not exist.
	Holder(ctx context.Context, itemID string) (holder *string, found bool, err error)
	// Transaction runs fn against a store bound to one transaction. An error
	// from fn rolls back every write fn made.
	Transaction(ctx context.Context, fn func(HoldStore) error) error
}

// GormHoldStore implements HoldStore on the books table.
type GormHoldStore struct {
	db *gorm.DB
}

// NewHoldStore creates a HoldStore bound to db.
func NewHoldStore(db *gorm.DB) *GormHoldStore {
	return &GormHoldStore{db: db}
}

func (s *GormHoldStore) books(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.Book{})
}

func (s *GormHoldStore) Hold(ctx context.Context, itemID, holderID string) (bool, error) {
	res := s.books(ctx).
		Where("id = ? AND holder_id IS NULL", itemID).
		Update("holder_id", holderID)
	if res.Error != nil {
		return false, storeErr("hold", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormHoldStore) HoldMany(ctx context.Context, itemIDs []string, holderID string) (int64, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}
	res := s.books(ctx).
		Where("id IN ? AND holder_id IS NULL", itemIDs).
		Update("holder_id", holderID)
	if res.Error != nil {
		return 0, storeErr("hold many", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormHoldStore) Unheld(ctx context.Context, itemIDs []string) ([]string, error) {
	ids := []string{}
	if len(itemIDs) == 0 {
		return ids, nil
	}
	err := s.books(ctx).
		Where("id IN ? AND holder_id IS NULL", itemIDs).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, storeErr("query unheld", err)
	}
	return ids, nil
}

func (s *GormHoldStore) Release(ctx context.Context, itemID, holderID string) (bool, error) {
	res := s.books(ctx).
		Where("id = ? AND holder_id = ?", itemID, holderID).
		Update("holder_id", nil)
	if res.Error != nil {
		return false, storeErr("release", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormHoldStore) Holder(ctx context.Context, itemID string) (*string, bool, error) {
	var book models.Book
	err := s.db.WithContext(ctx).
		Select("id", "holder_id").
		Where("id = ?", itemID).
		Take(&book).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storeErr("find holder", err)
	}
	return book.HolderID, true, nil
}

func (s *GormHoldStore) Transaction(ctx context.Context, fn func(HoldStore) error) error {
	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&GormHoldStore{db: tx})
		return fnErr
	})
	if err != nil && fnErr == nil {
		return storeErr("transaction", err)
	}
	return err
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
