// Package database handles database connections and schema inspection.
//
// It wraps GORM to open either a MySQL connection pool or a SQLite database
// (file or in-memory) based on the application's configuration.
//
// # Connect
//
// Connect builds the dialector for the configured driver, tunes the pool and
// pings the database under the configured timeout. GORM's implicit write
// transaction is disabled: the circulation store relies on single conditional
// UPDATE statements for exclusivity.
//
// # Schema Inspection
//
// GetTableColumns and MissingColumns let the migrate command verify that the
// books and users tables carry the columns the service depends on, most
// importantly the nullable holder column.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    log.Fatal("Database connection failed", err)
//	}
//	defer database.Close(db)
//
//	missing, err := database.MissingColumns(db, "books", []string{"id", "holder_id"})
package database
