package cmd

import (
	"context"
	"fmt"

	"book-circulation/core/storage"
	"book-circulation/core/store"
	"book-circulation/core/utils"
	"book-circulation/feature/books/models"
	"book-circulation/feature/users"
	userModels "book-circulation/feature/users/models"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const seedPassword = "library-seed"

var (
	seedUsers          int
	seedBooks          int
	seedBatch          int
	seedFixture        string
	seedManifestObject string
)

// seedCmd represents the seed command
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create users and books for local testing",
	Long: `Bulk-creates users and books. Books are generated, or read from a JSON
fixture object (an array of {"name","author","isbn13","num_pages"}) in the
storage bucket. The created ids can be written back as a manifest object.

Examples:
  seed --users 10 --books 200
  seed --users 5 --fixture books.json --manifest seeded.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		rt, err := newServices(ctx)
		if err != nil {
			return err
		}
		defer rt.close(ctx)

		var client storage.Client
		if seedFixture != "" || seedManifestObject != "" {
			if client, err = storage.NewClient(rt.cfg.Storage); err != nil {
				return err
			}
		}

		opts := seedOptions{Users: seedUsers, Books: seedBooks, BatchSize: seedBatch}
		if seedFixture != "" {
			if err := storage.ReadJSON(ctx, client, rt.cfg.Storage.Bucket, seedFixture, &opts.Fixture); err != nil {
				return err
			}
			rt.logger.Info("Loaded book fixture", zap.String("object", seedFixture), zap.Int("books", len(opts.Fixture)))
		}

		manifest, err := seedLibrary(ctx, rt.db, opts, rt.logger)
		if err != nil {
			return err
		}

		if seedManifestObject != "" {
			if err := storage.WriteJSON(ctx, client, rt.cfg.Storage.Bucket, seedManifestObject, manifest); err != nil {
				return err
			}
			rt.logger.Info("Manifest written", zap.String("object", seedManifestObject))
		}

		fmt.Printf("Seeded %d users and %d books\n", len(manifest.UserIDs), len(manifest.BookIDs))
		return nil
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedUsers, "users", 5, "Number of users to create")
	seedCmd.Flags().IntVar(&seedBooks, "books", 50, "Number of books to generate (ignored with --fixture)")
	seedCmd.Flags().IntVar(&seedBatch, "batch", 100, "Insert batch size")
	seedCmd.Flags().StringVar(&seedFixture, "fixture", "", "Book fixture object in the storage bucket")
	seedCmd.Flags().StringVar(&seedManifestObject, "manifest", "", "Write the created ids to this object in the storage bucket")
	RootCmd.AddCommand(seedCmd)
}

type seedOptions struct {
	Users     int
	Books     int
	BatchSize int
	Fixture   []models.CreateBookRequest
}

type seedManifest struct {
	UserIDs []string `json:"user_ids"`
	BookIDs []string `json:"book_ids"`
}

// seedLibrary creates users and books concurrently. Fixture books replace
// generated ones and are validated before anything is written.
func seedLibrary(ctx context.Context, db *gorm.DB, opts seedOptions, logg *zap.Logger) (seedManifest, error) {
	books := opts.Fixture
	if books == nil {
		books = generateBooks(opts.Books)
	}
	v := utils.NewValidator()
	for i, b := range books {
		if err := v.Check(b); err != nil {
			return seedManifest{}, fmt.Errorf("fixture book %d: %w", i, err)
		}
	}

	manifest := seedManifest{UserIDs: make([]string, opts.Users), BookIDs: make([]string, len(books))}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rows := make([]models.Book, len(books))
		for i, b := range books {
			rows[i] = models.Book{ID: utils.NewID(), Name: b.Name, Author: b.Author, ISBN13: b.ISBN13, NumPages: b.NumPages}
			manifest.BookIDs[i] = rows[i].ID
		}
		batch := opts.BatchSize
		if batch <= 0 {
			batch = 100
		}
		return store.NewRepository[models.Book](db).CreateInBatches(gctx, rows, batch)
	})

	// Registration hashes with argon2id, so users are created a few at a time.
	svc := users.NewService(store.NewRepository[userModels.User](db), 0, logg)
	ug, uctx := errgroup.WithContext(gctx)
	ug.SetLimit(4)
	for i := 0; i < opts.Users; i++ {
		i := i
		ug.Go(func() error {
			u, err := svc.Register(uctx, userModels.CreateUserRequest{
				Email:    fmt.Sprintf("reader-%s@library.test", utils.NewID()[:8]),
				Username: fmt.Sprintf("reader%03d", i+1),
				Password: seedPassword,
			})
			if err != nil {
				return err
			}
			manifest.UserIDs[i] = u.ID
			return nil
		})
	}
	g.Go(ug.Wait)

	if err := g.Wait(); err != nil {
		return seedManifest{}, err
	}
	logg.Info("Seed completed", zap.Int("users", len(manifest.UserIDs)), zap.Int("books", len(manifest.BookIDs)))
	return manifest, nil
}

func generateBooks(n int) []models.CreateBookRequest {
	out := make([]models.CreateBookRequest, n)
	for i := range out {
		out[i] = models.CreateBookRequest{
			Name:     fmt.Sprintf("Volume %04d", i+1),
			Author:   fmt.Sprintf("Author %02d", i%37+1),
			ISBN13:   fmt.Sprintf("978%010d", i+1),
			NumPages: 100 + (i*53)%700,
		}
	}
	return out
}
