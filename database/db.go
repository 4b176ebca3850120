package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the database named by uri. Accepted forms:
//
//	sqlite:///posts.db     sqlite file relative to the working directory
//	posts.db, :memory:     bare sqlite paths
//	postgres://...         postgres (also postgresql:// and key=value DSNs)
func Connect(uri string, log zerolog.Logger, debug bool) (*gorm.DB, error) {
	dialector, isSQLite := dialectorFor(uri)

	gormLogger := logger.Default.LogMode(logger.Silent)
	if debug {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if isSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// sqlite has a single writer, and every :memory: connection is its own database
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Info().Str("driver", db.Dialector.Name()).Msg("database ready")
	return db, nil
}

func dialectorFor(uri string) (gorm.Dialector, bool) {
	switch {
	case strings.HasPrefix(uri, "postgres://"),
		strings.HasPrefix(uri, "postgresql://"),
		strings.Contains(uri, "host="):
		return postgres.Open(uri), false
	}

	path := strings.TrimPrefix(uri, "sqlite:///")
	path = strings.TrimPrefix(path, "sqlite://")
	if !strings.Contains(path, "?") {
		path += "?_foreign_keys=on"
	}
	return sqlite.Open(path), true
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&User{}, &Post{}, &Comment{}, &Session{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
