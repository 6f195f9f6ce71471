package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"book-circulation/core/config"
	"book-circulation/core/loader"
	"book-circulation/core/logger"
	"book-circulation/core/middleware/auth"
	"book-circulation/core/middleware/rayid"
	"book-circulation/core/queue"
	bookModels "book-circulation/feature/books/models"
	userModels "book-circulation/feature/users/models"

	"book-circulation/feature/books"
	"book-circulation/feature/lending"
	"book-circulation/feature/users"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	_ "book-circulation/docs/swagger"
)

// @title Book Circulation API
// @version 1.0
// @description API for lending library books.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

var autoMigrate bool

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the book circulation server",
	Long:  `Starts the HTTP server, the checkout executor and all enabled features.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		rt, err := newServices(ctx)
		if err != nil {
			return err
		}
		defer rt.close(ctx)
		logg := rt.logger

		if autoMigrate {
			if err := rt.db.AutoMigrate(&bookModels.Book{}, &userModels.User{}); err != nil {
				return err
			}
			logg.Info("Schema migrated")
		}

		controller := lending.NewController(lending.NewHoldStore(rt.db), logg)
		worker := lending.NewWorker(controller, logg)
		executor, err := queue.NewExecutor(rt.cfg.Queue, worker.Handle, logg)
		if err != nil {
			return err
		}
		defer func() {
			if err := executor.Close(); err != nil {
				logg.Warn("Failed to close executor", zap.Error(err))
			}
		}()
		logg.Info("Checkout executor ready", zap.String("driver", rt.cfg.Queue.Driver), zap.Int("workers", rt.cfg.Queue.Workers))

		app, err := newApp(rt.cfg, logg, rt.db, controller, executor)
		if err != nil {
			return err
		}

		errCh := make(chan error, 1)
		go func() {
			logg.Info("Starting server", zap.String("addr", rt.cfg.Server.Addr()))
			errCh <- app.Listen(rt.cfg.Server.Addr())
		}()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sig:
		case err := <-errCh:
			return err
		}

		logg.Info("Shutting down server...")
		return app.ShutdownWithTimeout(rt.cfg.Server.ShutdownTimeout())
	},
}

func init() {
	startCmd.Flags().BoolVar(&autoMigrate, "migrate", false, "Run schema migration before serving")
	RootCmd.AddCommand(startCmd)
}

// newApp builds the fiber app with middleware and every feature mounted.
func newApp(cfg *config.Config, logg *zap.Logger, db *gorm.DB, controller *lending.Controller, executor queue.Executor) (*fiber.App, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	userFeature := users.NewFeature(db, cfg.Server.RegisterPerMinute, logg)

	mgr := loader.NewManager(logg)
	mgr.Register(books.NewFeature(db, logg))
	mgr.Register(userFeature)
	mgr.Register(lending.NewFeature(controller, executor, userFeature.Service(), cfg.Queue.AwaitTimeout(), logg))

	// RayID first so every later log line carries it.
	app.Use(rayid.New())

	app.Use(func(c *fiber.Ctx) error {
		l := logger.WithRayID(logg, c)
		start := time.Now()
		err := c.Next()
		l.Info("Request completed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("ip", c.IP()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
		)
		if err != nil {
			l.Error("Request error", zap.Error(err))
		}
		return err
	})

	// Public routes
	app.Get("/", func(c *fiber.Ctx) error {
		return c.Redirect("/swagger/index.html", fiber.StatusFound)
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/swagger/*", swagger.HandlerDefault)

	app.Use(auth.New(auth.Config{ApiKey: cfg.Server.ApiKey}))

	if err := mgr.LoadAll(app); err != nil {
		return nil, err
	}
	return app, nil
}
