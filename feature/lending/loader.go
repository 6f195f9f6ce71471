package lending

import (
	"time"

	"book-circulation/core/queue"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Feature implements the loader.Feature interface.
type Feature struct {
	service *Service
	handler *Handler
}

// NewFeature wires the dispatcher and service around controller. The executor
// must run Worker.Handle for the same store, either in-process or in the worker command.
func NewFeature(controller *Controller, executor queue.Executor, holders HolderDirectory, awaitTimeout time.Duration, logger *zap.Logger) *Feature {
	dispatcher := NewDispatcher(controller, executor, awaitTimeout, logger)
	svc := NewService(dispatcher, controller, holders, logger)
	return &Feature{service: svc, handler: NewHandler(svc, logger)}
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "lending"
}

// IsEnabled checks if the feature is enabled.
func (f *Feature) IsEnabled() bool {
	return true
}

// Service returns the lending service.
func (f *Feature) Service() *Service {
	return f.service
}

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	f.handler.RegisterRoutes(app)
	return nil
}
