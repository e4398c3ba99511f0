package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
)

// Database defines the methods required for scan record storage and retrieval.
type Database interface {
	// Initialize sets up the necessary tables or buckets.
	Initialize(ctx context.Context) error

	Close(ctx context.Context) error

	// SaveRecord inserts or replaces a record keyed by its ID.
	SaveRecord(ctx context.Context, record models.FileRecord) error

	// GetRecord retrieves a record by ID.
	GetRecord(ctx context.Context, id string) (models.FileRecord, error)

	// FindByHash returns every stored record whose content hash is sha256.
	FindByHash(ctx context.Context, sha256 string) ([]models.FileRecord, error)

	// LoadRecordsPaginated retrieves a page of records, newest scan first, and
	// the total count matching the filter.
	LoadRecordsPaginated(ctx context.Context, filter models.RecordFilter) ([]models.FileRecord, int, error)

	// DeleteRecord removes a record.
	DeleteRecord(ctx context.Context, id string) error

	// GetStats aggregates counters over all stored records.
	GetStats(ctx context.Context) (models.StatsResponse, error)

	// AddBlacklistedToken adds a token string to the blacklist with its expiration time.
	AddBlacklistedToken(ctx context.Context, tokenString string, exp int64) error

	// IsTokenBlacklisted checks if a token is in the blacklist.
	// If the token is expired, it removes it from the blacklist.
	IsTokenBlacklisted(ctx context.Context, tokenString string) (bool, error)
}

var ErrRecordNotFound = errors.New("record not found")

// Open returns the backend selected by config. It returns nil and no error
// when persistence is disabled.
func Open(ctx context.Context, config *DatabaseConfig, logger *logrus.Logger) (Database, error) {
	var (
		db  Database
		err error
	)
	switch config.Type {
	case TypeNone:
		return nil, nil
	case TypeBolt:
		db, err = NewBoltDB(config.Path, logger)
	case TypeSQLite:
		db, err = NewSQLiteDB(config.Path, logger)
	case TypeRedis:
		db, err = NewRedisDB(ctx, config, logger)
	default:
		return nil, fmt.Errorf("unsupported DATABASE_TYPE: %s", config.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", config.Type, err)
	}
	return db, nil
}
