package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sujalbistaa/setor7/internal/models"
)

// Options tune the connection.
type Options struct {
	LogLevel logger.LogLevel
}

// Init opens a gorm connection for a DATABASE_URL of the form
// postgres://... or sqlite://<path>.
func Init(dbURL string, opts Options) (*gorm.DB, error) {
	var dialector gorm.Dialector
	isSQLite := false

	switch {
	case strings.HasPrefix(dbURL, "postgres://"), strings.HasPrefix(dbURL, "postgresql://"):
		dialector = postgres.Open(dbURL)
		slog.Info("connecting to PostgreSQL database")
	case strings.HasPrefix(dbURL, "sqlite://"):
		dsn := sqliteDSN(strings.TrimPrefix(dbURL, "sqlite://"))
		dialector = sqlite.Open(dsn)
		isSQLite = true
		slog.Info("connecting to SQLite database", "path", dsn)
	default:
		return nil, fmt.Errorf("invalid DATABASE_URL prefix: must start with postgres:// or sqlite://")
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(opts.LogLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if isSQLite {
		// SQLite has a single writer; serialising on one connection keeps
		// transactions from failing with SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
	}

	slog.Info("database connection established")
	return db, nil
}

// sqliteDSN enables foreign keys and a busy timeout unless the caller set pragmas.
func sqliteDSN(path string) string {
	if strings.Contains(path, "_pragma=") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Migrate creates or updates the schema for every model.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return backfillSearchText(ctx, db)
}

// backfillSearchText fills the search column for stories written before it existed.
func backfillSearchText(ctx context.Context, db *gorm.DB) error {
	var stories []models.Story
	res := db.WithContext(ctx).
		Select("id", "title", "content", "location").
		Where("search_text = ?", "").
		FindInBatches(&stories, 500, func(tx *gorm.DB, _ int) error {
			for i := range stories {
				err := tx.Model(&models.Story{}).
					Where("id = ?", stories[i].ID).
					UpdateColumn("search_text", stories[i].SearchKey()).Error
				if err != nil {
					return err
				}
			}
			return nil
		})
	if res.Error != nil {
		return fmt.Errorf("backfilling story search text: %w", res.Error)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
