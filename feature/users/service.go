package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"book-circulation/core/store"
	"book-circulation/core/utils"
	"book-circulation/feature/users/models"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrNotFound is returned for malformed or unknown user ids.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when another user already has the email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrRateLimited is returned when registrations exceed the configured rate.
	ErrRateLimited = errors.New("registration rate limit exceeded")
)

// Service manages library members.
type Service struct {
	repo      *store.Repository[models.User]
	validator *utils.Validator
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// NewService creates a user service allowing perMinute registrations per
// minute, with bursts of the same size. Zero or less disables the limit.
func NewService(repo *store.Repository[models.User], perMinute int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
	return &Service{
		repo:      repo,
		validator: utils.NewValidator(),
		limiter:   limiter,
		logger:    logger,
	}
}

// Exists reports whether a user with the canonical id exists.
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	return s.repo.Exists(ctx, id)
}

// Register creates a user with a hashed password.
func (s *Service) Register(ctx context.Context, req models.CreateUserRequest) (*models.User, error) {
	if !s.limiter.Allow() {
		return nil, ErrRateLimited
	}
	if err := s.validator.Check(req); err != nil {
		return nil, err
	}
	if err := s.checkEmail(ctx, req.Email); err != nil {
		return nil, err
	}

	hash, salt, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		ID:           utils.NewID(),
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: hash,
		PasswordSalt: salt,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("User registered", zap.String("user_id", user.ID))
	return user, nil
}

// Get returns the user with the given id.
func (s *Service) Get(ctx context.Context, id string) (*models.User, error) {
	userID, err := canonical(id)
	if err != nil {
		return nil, err
	}
	return notFound(s.repo.FindByID(ctx, userID))
}

// Update applies the fields set in req. A new password is re-hashed with a fresh salt.
func (s *Service) Update(ctx context.Context, id string, req models.UpdateUserRequest) (*models.User, error) {
	userID, err := canonical(id)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Check(req); err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if req.Email != nil {
		current, err := s.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		if *req.Email != current.Email {
			if err := s.checkEmail(ctx, *req.Email); err != nil {
				return nil, err
			}
		}
		fields["email"] = *req.Email
	}
	if req.Username != nil {
		fields["username"] = *req.Username
	}
	if req.Password != nil {
		hash, salt, err := hashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		fields["password_hash"] = hash
		fields["password_salt"] = salt
	}
	return notFound(s.repo.Update(ctx, userID, fields))
}

// Delete removes the user.
func (s *Service) Delete(ctx context.Context, id string) error {
	userID, err := canonical(id)
	if err != nil {
		return err
	}
	_, err = notFound(nil, s.repo.Delete(ctx, userID))
	return err
}

// Authenticate reports whether password matches the user's stored hash.
func (s *Service) Authenticate(ctx context.Context, id, password string) (bool, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return verifyPassword(password, user.PasswordSalt, user.PasswordHash)
}

func (s *Service) checkEmail(ctx context.Context, email string) error {
	taken, err := s.repo.ExistsBy(ctx, "email", email)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%s: %w", email, ErrEmailTaken)
	}
	return nil
}

func canonical(id string) (string, error) {
	userID, ok := utils.CanonicalID(id)
	if !ok {
		return "", fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return userID, nil
}

func notFound(user *models.User, err error) (*models.User, error) {
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return user, err
}
