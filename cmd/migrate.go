package cmd

import (
	"context"
	"fmt"

	"book-circulation/core/database"
	bookModels "book-circulation/feature/books/models"
	userModels "book-circulation/feature/users/models"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// requiredColumns lists the columns each table must have after migration.
var requiredColumns = map[string][]string{
	"books": {"id", "name", "author", "isbn13", "num_pages", "holder_id", "created_at", "updated_at"},
	"users": {"id", "email", "username", "password_hash", "password_salt", "created_at", "updated_at"},
}

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the books and users tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		rt, err := newServices(ctx)
		if err != nil {
			return err
		}
		defer rt.close(ctx)

		if err := migrateSchema(rt.db); err != nil {
			return err
		}

		for _, table := range []string{"books", "users"} {
			cols, err := database.GetTableColumns(rt.db, table)
			if err != nil {
				return err
			}
			fmt.Printf("\n=== %s ===\n", table)
			for _, c := range cols {
				fmt.Printf("%-16s %-16s null=%-4s key=%s\n", c.Field, c.Type, c.Null, c.Key)
			}
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(migrateCmd)
}

// migrateSchema runs AutoMigrate and fails if any required column is still absent.
func migrateSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(&bookModels.Book{}, &userModels.User{}); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	for table, required := range requiredColumns {
		missing, err := database.MissingColumns(db, table, required)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return fmt.Errorf("table %s is missing columns %v", table, missing)
		}
	}
	return nil
}
