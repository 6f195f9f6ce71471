package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"book-circulation/core/queue"
	"book-circulation/feature/lending"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume checkout tasks from RabbitMQ",
	Long: `Runs the checkout task worker against queue.url. Start it alongside
servers configured with QUEUE_DRIVER=amqp.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := newServices(ctx)
		if err != nil {
			return err
		}
		defer rt.close(context.Background())

		controller := lending.NewController(lending.NewHoldStore(rt.db), rt.logger)
		worker := lending.NewWorker(controller, rt.logger)

		consumer, err := queue.DialConsumer(rt.cfg.Queue, worker.Handle, rt.logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := consumer.Close(); err != nil {
				rt.logger.Warn("Failed to close consumer", zap.Error(err))
			}
		}()

		err = consumer.Run(ctx)
		if errors.Is(err, queue.ErrClosed) {
			return fmt.Errorf("broker closed the delivery channel: %w", err)
		}
		rt.logger.Info("Worker stopped")
		return err
	},
}

func init() {
	RootCmd.AddCommand(workerCmd)
}
