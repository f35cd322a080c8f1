package pg

import (
	"database/sql"

	_ "github.com/lib/pq"
	"github.com/nimasrn/group-factory/pkg/logger"
	"github.com/pressly/goose/v3"
)

func Migrate(cfg Config, dir string) error {
	return withMigrationDB(cfg, func(db *sql.DB) error {
		if err := goose.Up(db, dir); err != nil {
			return err
		}

		version, err := goose.GetDBVersion(db)
		if err == nil {
			logger.Info("migrations applied", "dir", dir, "version", version)
		}
		return nil
	})
}

// Rollback undoes the most recent migration.
func Rollback(cfg Config, dir string) error {
	return withMigrationDB(cfg, func(db *sql.DB) error {
		return goose.Down(db, dir)
	})
}

func MigrationStatus(cfg Config, dir string) error {
	return withMigrationDB(cfg, func(db *sql.DB) error {
		return goose.Status(db, dir)
	})
}

func withMigrationDB(cfg Config, fn func(db *sql.DB) error) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	db, err := newSqlConnection(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(db)
}
