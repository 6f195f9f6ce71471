package cmd

import (
	"context"
	"fmt"

	"book-circulation/core/config"
	"book-circulation/core/database"
	"book-circulation/core/logger"
	"book-circulation/core/telemetry"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// services is the process-wide state a command works with. The database
// handle is owned here and closed by close.
type services struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       *gorm.DB
	shutdown telemetry.ShutdownFunc
}

func newServices(ctx context.Context) (*services, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logg, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	zap.ReplaceGlobals(logg)

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("database connection required: %w", err)
	}
	logg.Info("Connected to database",
		zap.String("driver", cfg.Database.Driver),
		zap.String("name", cfg.Database.Name))

	return &services{cfg: cfg, logger: logg, db: db, shutdown: shutdown}, nil
}

func (r *services) close(ctx context.Context) {
	if err := database.Close(r.db); err != nil {
		r.logger.Warn("Failed to close database", zap.Error(err))
	}
	if err := r.shutdown(ctx); err != nil {
		r.logger.Warn("Failed to flush traces", zap.Error(err))
	}
	_ = r.logger.Sync()
}
