package users

import (
	"errors"

	"book-circulation/core/logger"
	"book-circulation/core/utils"
	"book-circulation/feature/users/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for users.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers the user routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/users")
	group.Post("/", h.HandleCreate)
	group.Get("/:id", h.HandleGet)
	group.Patch("/:id", h.HandleUpdate)
	group.Delete("/:id", h.HandleDelete)
}

// HandleCreate registers a user.
// @Summary Register User
// @Description Creates a library member. Registrations are rate limited.
// @Tags users
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param user body models.CreateUserRequest true "User"
// @Success 201 {object} models.User
// @Failure 400 {object} map[string]interface{} "Validation failed"
// @Failure 409 {object} map[string]string "Email already registered"
// @Failure 429 {object} map[string]string "Too many registrations"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /users [post]
func (h *Handler) HandleCreate(c *fiber.Ctx) error {
	var req models.CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}

	user, err := h.service.Register(c.UserContext(), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

// HandleGet returns a user.
// @Summary Get User
// @Tags users
// @Security ApiKeyAuth
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} models.User
// @Failure 404 {object} map[string]string "User not found"
// @Router /users/{id} [get]
func (h *Handler) HandleGet(c *fiber.Ctx) error {
	user, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(user)
}

// HandleUpdate partially updates a user.
// @Summary Update User
// @Description Updates the given fields. A supplied password is re-hashed.
// @Tags users
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param user body models.UpdateUserRequest true "Fields to update"
// @Success 200 {object} models.User
// @Failure 400 {object} map[string]interface{} "Validation failed"
// @Failure 404 {object} map[string]string "User not found"
// @Failure 409 {object} map[string]string "Email already registered"
// @Router /users/{id} [patch]
func (h *Handler) HandleUpdate(c *fiber.Ctx) error {
	var req models.UpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}

	user, err := h.service.Update(c.UserContext(), c.Params("id"), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(user)
}

// HandleDelete deletes a user.
// @Summary Delete User
// @Tags users
// @Security ApiKeyAuth
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} map[string]string "User deleted"
// @Failure 404 {object} map[string]string "User not found"
// @Router /users/{id} [delete]
func (h *Handler) HandleDelete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), c.Params("id")); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "deleted"})
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	var verr *utils.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Validation failed", "fields": verr.Fields})
	case errors.Is(err, ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	case errors.Is(err, ErrEmailTaken):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Email already registered"})
	case errors.Is(err, ErrRateLimited):
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Too many registrations, try again later"})
	default:
		logger.WithRayID(h.logger, c).Error("User request failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
	}
}
