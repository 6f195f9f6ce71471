package books

import (
	"errors"

	"book-circulation/core/logger"
	"book-circulation/core/utils"
	"book-circulation/feature/books/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for books.
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

// RegisterRoutes registers the book routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/books")
	group.Post("/", h.HandleCreate)
	group.Get("/:id", h.HandleGet)
	group.Patch("/:id", h.HandleUpdate)
	group.Delete("/:id", h.HandleDelete)
}

// HandleCreate creates a book.
// @Summary Create Book
// @Description Adds an available book to the catalog.
// @Tags books
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param book body models.CreateBookRequest true "Book"
// @Success 201 {object} models.Book
// @Failure 400 {object} map[string]interface{} "Validation failed"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /books [post]
func (h *Handler) HandleCreate(c *fiber.Ctx) error {
	var req models.CreateBookRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}

	book, err := h.service.Create(c.UserContext(), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(book)
}

// HandleGet returns a book.
// @Summary Get Book
// @Tags books
// @Security ApiKeyAuth
// @Produce json
// @Param id path string true "Book ID"
// @Success 200 {object} models.Book
// @Failure 404 {object} map[string]string "Book not found"
// @Router /books/{id} [get]
func (h *Handler) HandleGet(c *fiber.Ctx) error {
	book, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(book)
}

// HandleUpdate partially updates a book.
// @Summary Update Book
// @Description Updates the given fields. The holder cannot be changed here.
// @Tags books
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param id path string true "Book ID"
// @Param book body models.UpdateBookRequest true "Fields to update"
// @Success 200 {object} models.Book
// @Failure 400 {object} map[string]interface{} "Validation failed"
// @Failure 404 {object} map[string]string "Book not found"
// @Router /books/{id} [patch]
func (h *Handler) HandleUpdate(c *fiber.Ctx) error {
	var req models.UpdateBookRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}

	book, err := h.service.Update(c.UserContext(), c.Params("id"), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(book)
}

// HandleDelete deletes a book.
// @Summary Delete Book
// @Tags books
// @Security ApiKeyAuth
// @Produce json
// @Param id path string true "Book ID"
// @Success 200 {object} map[string]string "Book deleted"
// @Failure 404 {object} map[string]string "Book not found"
// @Router /books/{id} [delete]
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
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Book not found"})
	default:
		logger.WithRayID(h.logger, c).Error("Book request failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
	}
}
