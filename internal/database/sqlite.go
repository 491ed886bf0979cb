package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wanderlist/wanderlist-api/internal/accounts"
	"github.com/wanderlist/wanderlist-api/internal/groups"
	"github.com/wanderlist/wanderlist-api/internal/lists"
	"github.com/wanderlist/wanderlist-api/internal/places"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&accounts.User{},
		&places.Place{},
		&lists.MembershipRecord{},
		&groups.Group{},
		&groups.Membership{},
	); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
