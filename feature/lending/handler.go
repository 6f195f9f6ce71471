package lending

import (
	"bytes"
	"encoding/json"
	"errors"

	"book-circulation/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for checkout and return.
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

// RegisterRoutes registers the lending routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	app.Post("/checkout/:user_id", h.HandleCheckout)
	app.Post("/return/:book_id", h.HandleReturn)
}

// TimeoutResponse is the body returned when dispatched tasks did not all report in time.
type TimeoutResponse struct {
	Error           string   `json:"error"`
	ProcessedIDs    []string `json:"processed_ids"`
	NotProcessedIDs []string `json:"not_processed_ids"`
	PendingIDs      []string `json:"pending_ids"`
}

// ReturnRequest is the object form of the return body.
type ReturnRequest struct {
	UserID string `json:"user_id"`
}

// HandleCheckout checks out a list of books for a user.
// @Summary Checkout Books
// @Description Holds every available book in the list for the user. Five or more distinct ids are processed by background workers.
// @Tags lending
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param user_id path string true "User ID"
// @Param book_ids body []string true "Book IDs"
// @Success 201 {object} Partition "Processed and not processed book ids"
// @Failure 400 {object} map[string]string "Invalid body"
// @Failure 404 {object} map[string]string "User not found"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Failure 504 {object} TimeoutResponse "Workers did not report in time"
// @Router /checkout/{user_id} [post]
func (h *Handler) HandleCheckout(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)
	userID := c.Params("user_id")

	var bookIDs []string
	if err := json.Unmarshal(c.Body(), &bookIDs); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Body must be a JSON array of book ids"})
	}

	partition, err := h.service.Checkout(c.UserContext(), userID, bookIDs)
	if err != nil {
		var timeout *DispatchTimeoutError
		switch {
		case errors.Is(err, ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		case errors.As(err, &timeout):
			l.Warn("Checkout timed out", zap.String("user_id", userID), zap.Strings("pending", timeout.Pending))
			return c.Status(fiber.StatusGatewayTimeout).JSON(TimeoutResponse{
				Error:           err.Error(),
				ProcessedIDs:    timeout.Partial.ProcessedIDs,
				NotProcessedIDs: timeout.Partial.NotProcessedIDs,
				PendingIDs:      timeout.Pending,
			})
		default:
			l.Error("Checkout failed", zap.String("user_id", userID), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Checkout failed"})
		}
	}

	l.Info("Checkout completed",
		zap.String("user_id", userID),
		zap.Int("processed", len(partition.ProcessedIDs)),
		zap.Int("not_processed", len(partition.NotProcessedIDs)))

	return c.Status(fiber.StatusCreated).JSON(partition)
}

// HandleReturn returns a book held by a user.
// @Summary Return Book
// @Description Releases the book if it is held by the given user. The body is the user id as a JSON string, or {"user_id": "..."}.
// @Tags lending
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param book_id path string true "Book ID"
// @Param user_id body string true "User ID"
// @Success 201 {object} map[string]string "Book returned"
// @Failure 400 {object} map[string]string "Invalid body"
// @Failure 404 {object} map[string]string "Book or user not found"
// @Failure 409 {object} map[string]string "Book held by another user"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /return/{book_id} [post]
func (h *Handler) HandleReturn(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)
	bookID := c.Params("book_id")

	userID, ok := parseUserID(c.Body())
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Body must be a user id string or {\"user_id\": ...}"})
	}

	if err := h.service.Return(c.UserContext(), bookID, userID); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, ErrOwnershipMismatch):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Book is checked out by another user"})
		default:
			l.Error("Return failed", zap.String("book_id", bookID), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Return failed"})
		}
	}

	l.Info("Book returned", zap.String("book_id", bookID), zap.String("user_id", userID))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"status": "returned"})
}

func parseUserID(body []byte) (string, bool) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return "", false
	}
	switch body[0] {
	case '"':
		var id string
		if err := json.Unmarshal(body, &id); err != nil {
			return "", false
		}
		return id, id != ""
	case '{':
		var req ReturnRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return "", false
		}
		return req.UserID, req.UserID != ""
	default:
		return "", false
	}
}
