package cmd

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"book-circulation/core/queue"
	"book-circulation/core/store"
	"book-circulation/feature/books/models"
	"book-circulation/feature/lending"
	userModels "book-circulation/feature/users/models"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	checkoutUser  string
	checkoutLimit int
)

// checkoutCmd represents the checkout command
var checkoutCmd = &cobra.Command{
	Use:   "checkout",
	Short: "Check out the first N books for a user",
	Long: `Runs a checkout in-process through the configured executor and prints
the partition. With --limit 5 or more the checkout is dispatched to workers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		rt, err := newServices(ctx)
		if err != nil {
			return err
		}
		defer rt.close(ctx)

		bookIDs, err := store.NewRepository[models.Book](rt.db).Pluck(ctx, "id", checkoutLimit)
		if err != nil {
			return err
		}

		controller := lending.NewController(lending.NewHoldStore(rt.db), rt.logger)
		worker := lending.NewWorker(controller, rt.logger)
		executor, err := queue.NewExecutor(rt.cfg.Queue, worker.Handle, rt.logger)
		if err != nil {
			return err
		}
		defer executor.Close()

		dispatcher := lending.NewDispatcher(controller, executor, rt.cfg.Queue.AwaitTimeout(), rt.logger)
		svc := lending.NewService(dispatcher, controller, store.NewRepository[userModels.User](rt.db), rt.logger)

		start := time.Now()
		partition, err := svc.Checkout(ctx, checkoutUser, bookIDs)
		if err != nil {
			return err
		}
		rt.logger.Info("Checkout finished",
			zap.Int("requested", len(bookIDs)),
			zap.Int("processed", len(partition.ProcessedIDs)),
			zap.Duration("elapsed", time.Since(start)))

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(partition)
	},
}

func init() {
	checkoutCmd.Flags().StringVar(&checkoutUser, "user", "", "User id to check out for")
	checkoutCmd.Flags().IntVar(&checkoutLimit, "limit", 5, "Number of books to request")
	_ = checkoutCmd.MarkFlagRequired("user")
	RootCmd.AddCommand(checkoutCmd)
}

