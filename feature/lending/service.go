package lending

import (
	"context"
	"fmt"

	"book-circulation/core/utils"

	"go.uber.org/zap"
)

// HolderDirectory resolves user ids.
type HolderDirectory interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// Service is the checkout and return entry point used by the HTTP handler and the CLI.
type Service struct {
	dispatcher *Dispatcher
	controller *Controller
	holders    HolderDirectory
	logger     *zap.Logger
}

// NewService creates a lending service.
func NewService(dispatcher *Dispatcher, controller *Controller, holders HolderDirectory, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		dispatcher: dispatcher,
		controller: controller,
		holders:    holders,
		logger:     logger,
	}
}

// Checkout holds the requested books for the user.
func (s *Service) Checkout(ctx context.Context, userID string, bookIDs []string) (Partition, error) {
	holderID, err := s.resolveHolder(ctx, userID)
	if err != nil {
		return Partition{}, err
	}
	return s.dispatcher.Checkout(ctx, holderID, bookIDs)
}

// Return releases a book held by the user.
func (s *Service) Return(ctx context.Context, bookID, userID string) error {
	itemID, ok := utils.CanonicalID(bookID)
	if !ok {
		return fmt.Errorf("book %s: %w", bookID, ErrNotFound)
	}
	holderID, err := s.resolveHolder(ctx, userID)
	if err != nil {
		return err
	}
	return s.controller.Return(ctx, itemID, holderID)
}

func (s *Service) resolveHolder(ctx context.Context, userID string) (string, error) {
	holderID, ok := utils.CanonicalID(userID)
	if !ok {
		return "", fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	exists, err := s.holders.Exists(ctx, holderID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("user %s: %w", holderID, ErrNotFound)
	}
	return holderID, nil
}
