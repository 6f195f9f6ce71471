package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when no record matches the id.
	ErrNotFound = errors.New("record not found")
	// ErrUnavailable wraps every failure to reach or query the database.
	ErrUnavailable = errors.New("store unavailable")
)

// Repository provides CRUD over one gorm model keyed by a string id.
type Repository[M any] struct {
	db *gorm.DB
}

// NewRepository creates a repository bound to db.
func NewRepository[M any](db *gorm.DB) *Repository[M] {
	return &Repository[M]{db: db}
}

// DB returns the underlying handle.
func (r *Repository[M]) DB() *gorm.DB {
	return r.db
}

// Create inserts the model.
func (r *Repository[M]) Create(ctx context.Context, m *M) error {
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return unavailable("create", err)
	}
	return nil
}

// CreateInBatches inserts models in chunks of size.
func (r *Repository[M]) CreateInBatches(ctx context.Context, ms []M, size int) error {
	if len(ms) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(&ms, size).Error; err != nil {
		return unavailable("create batch", err)
	}
	return nil
}

// FindByID loads the model with the given id.
func (r *Repository[M]) FindByID(ctx context.Context, id string) (*M, error) {
	var m M
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("find", err)
	}
	return &m, nil
}

// Exists reports whether a record with the id exists.
func (r *Repository[M]) Exists(ctx context.Context, id string) (bool, error) {
	return r.ExistsBy(ctx, "id", id)
}

// ExistsBy reports whether any record has column equal to value.
func (r *Repository[M]) ExistsBy(ctx context.Context, column string, value any) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(new(M)).Where(column+" = ?", value).Count(&count).Error; err != nil {
		return false, unavailable("exists", err)
	}
	return count > 0, nil
}

// Update applies fields to the record and returns the reloaded model.
// MySQL reports changed rather than matched rows, so presence is checked first.
func (r *Repository[M]) Update(ctx context.Context, id string, fields map[string]any) (*M, error) {
	m, err := r.FindByID(ctx, id)
	if err != nil || len(fields) == 0 {
		return m, err
	}
	if err := r.db.WithContext(ctx).Model(new(M)).Where("id = ?", id).Updates(fields).Error; err != nil {
		return nil, unavailable("update", err)
	}
	return r.FindByID(ctx, id)
}

// Delete removes the record with the id.
func (r *Repository[M]) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(new(M))
	if res.Error != nil {
		return unavailable("delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Pluck returns up to limit values of column, ordered by column.
func (r *Repository[M]) Pluck(ctx context.Context, column string, limit int) ([]string, error) {
	var out []string
	q := r.db.WithContext(ctx).Model(new(M)).Order(column)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Pluck(column, &out).Error; err != nil {
		return nil, unavailable("pluck", err)
	}
	return out, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
