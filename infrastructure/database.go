package infrastructure

import (
	"context"
	"fmt"
	"time"

	"voice-notes/domain"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "", "postgres":
		return gormpostgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Connect opens the database, retrying every second until ctx is done.
func Connect(ctx context.Context, driver, dsn string) (db *gorm.DB, err error) {
	d, err := dialector(driver, dsn)
	if err != nil {
		return nil, err
	}
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context is done, giving up on db connection: %w", ctx.Err())
		default:
			db, err = gorm.Open(d, cfg)
			if err == nil {
				return db, nil
			}
			log.Warn().Err(err).Str("driver", driver).Msg("could not connect to DB")
		}
		time.Sleep(1 * time.Second)
	}
}

func CreateTables(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Profile{},
		&domain.Note{})
}
