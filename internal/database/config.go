package database

import (
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

// Supported DATABASE_TYPE values.
const (
	TypeNone   = "none"
	TypeBolt   = "bolt"
	TypeSQLite = "sqlite"
	TypeRedis  = "redis"
)

// DatabaseConfig holds the database-related configuration.
type DatabaseConfig struct {
	Type      string
	Path      string
	RedisAddr string
	RedisPass string
	RedisDB   int
}

// LoadDatabaseConfig loads database configuration from environment variables.
func LoadDatabaseConfig() (*DatabaseConfig, error) {
	dbType := os.Getenv("DATABASE_TYPE")
	if dbType == "" {
		dbType = TypeNone
		logrus.Infof("Missing DATABASE_TYPE. Defaulting to %q; records are not persisted.", dbType)
	}

	config := &DatabaseConfig{
		Type: dbType,
	}

	switch dbType {
	case TypeNone:
	case TypeBolt, TypeSQLite:
		config.Path = os.Getenv("DATABASE_PATH")
		if config.Path == "" {
			return nil, fmt.Errorf("DATABASE_PATH is required for %s", dbType)
		}
	case TypeRedis:
		config.RedisAddr = os.Getenv("REDIS_ADDR")
		if config.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required for RedisDB")
		}
		config.RedisPass = os.Getenv("REDIS_PASSWORD")
		dbStr := os.Getenv("REDIS_DB")
		if dbStr == "" {
			config.RedisDB = 0 // default DB
		} else {
			db, err := strconv.Atoi(dbStr)
			if err != nil {
				return nil, fmt.Errorf("invalid REDIS_DB value: %v", err)
			}
			config.RedisDB = db
		}
	default:
		return nil, fmt.Errorf("unsupported DATABASE_TYPE: %s", dbType)
	}

	return config, nil
}
