package books

import (
	"context"
	"errors"
	"fmt"

	"book-circulation/core/store"
	"book-circulation/core/utils"
	"book-circulation/feature/books/models"

	"go.uber.org/zap"
)

// ErrNotFound is returned for malformed or unknown book ids.
var ErrNotFound = errors.New("book not found")

// Service manages the book catalog.
type Service struct {
	repo      *store.Repository[models.Book]
	validator *utils.Validator
	logger    *zap.Logger
}

// NewService creates a new book service.
func NewService(repo *store.Repository[models.Book], logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, validator: utils.NewValidator(), logger: logger}
}

// Create validates req and stores a new, available book.
func (s *Service) Create(ctx context.Context, req models.CreateBookRequest) (*models.Book, error) {
	if err := s.validator.Check(req); err != nil {
		return nil, err
	}
	book := &models.Book{
		ID:       utils.NewID(),
		Name:     req.Name,
		Author:   req.Author,
		ISBN13:   req.ISBN13,
		NumPages: req.NumPages,
	}
	if err := s.repo.Create(ctx, book); err != nil {
		return nil, err
	}
	s.logger.Debug("Book created", zap.String("book_id", book.ID))
	return book, nil
}

// Get returns the book with the given id.
func (s *Service) Get(ctx context.Context, id string) (*models.Book, error) {
	bookID, err := canonical(id)
	if err != nil {
		return nil, err
	}
	return notFound(s.repo.FindByID(ctx, bookID))
}

// Update applies the fields set in req.
func (s *Service) Update(ctx context.Context, id string, req models.UpdateBookRequest) (*models.Book, error) {
	bookID, err := canonical(id)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Check(req); err != nil {
		return nil, err
	}
	return notFound(s.repo.Update(ctx, bookID, req.Fields()))
}

// Delete removes the book.
func (s *Service) Delete(ctx context.Context, id string) error {
	bookID, err := canonical(id)
	if err != nil {
		return err
	}
	_, err = notFound(nil, s.repo.Delete(ctx, bookID))
	return err
}

func canonical(id string) (string, error) {
	bookID, ok := utils.CanonicalID(id)
	if !ok {
		return "", fmt.Errorf("book %s: %w", id, ErrNotFound)
	}
	return bookID, nil
}

func notFound(book *models.Book, err error) (*models.Book, error) {
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return book, err
}
