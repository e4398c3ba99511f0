package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
)

const recordsIndexKey = "records"

// RedisDB implements the Database interface using Redis.
type RedisDB struct {
	client *redis.Client
	logger *logrus.Logger
}

// NewRedisDB initializes a new RedisDB instance.
func NewRedisDB(ctx context.Context, cfg *DatabaseConfig, logger *logrus.Logger) (*RedisDB, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &RedisDB{
		client: rdb,
		logger: logger,
	}, nil
}

// Initialize is a no-op; Redis is schema-less.
func (r *RedisDB) Initialize(ctx context.Context) error {
	return nil
}

func recordKey(id string) string {
	return fmt.Sprintf("record:%s", id)
}

func hashSetKey(sha256 string) string {
	return fmt.Sprintf("hash:%s", strings.ToLower(sha256))
}

// SaveRecord stores the record JSON, its position in the scan-time index and
// its membership in the hash set.
func (r *RedisDB) SaveRecord(ctx context.Context, record models.FileRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal FileRecord: %w", err)
	}

	prev, err := r.GetRecord(ctx, record.ID)
	if err != nil && err != ErrRecordNotFound {
		return err
	}
	reindex := err == nil && prev.SHA256 != "" && prev.SHA256 != record.SHA256

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if reindex {
			pipe.SRem(ctx, hashSetKey(prev.SHA256), record.ID)
		}
		pipe.Set(ctx, recordKey(record.ID), data, 0)
		pipe.ZAdd(ctx, recordsIndexKey, &redis.Z{
			Score:  float64(record.ScannedAt.UnixNano()),
			Member: record.ID,
		})
		if record.SHA256 != "" {
			pipe.SAdd(ctx, hashSetKey(record.SHA256), record.ID)
		}
		return nil
	})
	if err != nil {
		r.logger.WithError(err).WithField("id", record.ID).Error("SaveRecord: failed to store record")
		return err
	}
	return nil
}

// GetRecord retrieves a specific record.
func (r *RedisDB) GetRecord(ctx context.Context, id string) (models.FileRecord, error) {
	var record models.FileRecord

	val, err := r.client.Get(ctx, recordKey(id)).Result()
	if err != nil {
		if err == redis.Nil {
			return record, ErrRecordNotFound
		}
		return record, err
	}

	if err := json.Unmarshal([]byte(val), &record); err != nil {
		return record, err
	}
	return record, nil
}

func (r *RedisDB) getMany(ctx context.Context, ids []string) ([]models.FileRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = recordKey(id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	records := make([]models.FileRecord, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var record models.FileRecord
		if err := json.Unmarshal([]byte(s), &record); err != nil {
			r.logger.WithError(err).WithField("id", ids[i]).Warn("getMany: failed to decode record")
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// FindByHash returns the records sharing a content hash.
func (r *RedisDB) FindByHash(ctx context.Context, sha256 string) ([]models.FileRecord, error) {
	ids, err := r.client.SMembers(ctx, hashSetKey(sha256)).Result()
	if err != nil {
		return nil, err
	}
	records, err := r.getMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	sortRecords(records)
	return records, nil
}

func (r *RedisDB) loadAll(ctx context.Context) ([]models.FileRecord, error) {
	ids, err := r.client.ZRevRange(ctx, recordsIndexKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return r.getMany(ctx, ids)
}

// LoadRecordsPaginated retrieves a page of records. Unfiltered listings page
// directly over the sorted set; filtered ones load and filter in memory.
func (r *RedisDB) LoadRecordsPaginated(ctx context.Context, filter models.RecordFilter) ([]models.FileRecord, int, error) {
	filter = normalizeFilter(filter)

	if filter.Verdict == "" && filter.Threat == "" && filter.Duplicate == nil {
		total, err := r.client.ZCard(ctx, recordsIndexKey).Result()
		if err != nil {
			return nil, 0, err
		}
		start := int64((filter.Page - 1) * filter.PerPage)
		stop := start + int64(filter.PerPage) - 1
		ids, err := r.client.ZRevRange(ctx, recordsIndexKey, start, stop).Result()
		if err != nil {
			return nil, 0, err
		}
		records, err := r.getMany(ctx, ids)
		if err != nil {
			return nil, 0, err
		}
		if records == nil {
			records = []models.FileRecord{}
		}
		return records, int(total), nil
	}

	all, err := r.loadAll(ctx)
	if err != nil {
		return nil, 0, err
	}
	page, total := paginate(all, filter)
	return page, total, nil
}

// DeleteRecord removes a record and its index entries.
func (r *RedisDB) DeleteRecord(ctx context.Context, id string) error {
	record, err := r.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, recordKey(id))
		pipe.ZRem(ctx, recordsIndexKey, id)
		if record.SHA256 != "" {
			pipe.SRem(ctx, hashSetKey(record.SHA256), id)
		}
		return nil
	})
	return err
}

// GetStats aggregates counters over all records.
func (r *RedisDB) GetStats(ctx context.Context) (models.StatsResponse, error) {
	all, err := r.loadAll(ctx)
	if err != nil {
		return models.StatsResponse{}, err
	}
	return computeStats(all), nil
}

// Close closes the Redis client connection.
func (r *RedisDB) Close(ctx context.Context) error {
	return r.client.Close()
}

// AddBlacklistedToken adds a token string to the blacklist with its expiration time.
func (r *RedisDB) AddBlacklistedToken(ctx context.Context, tokenString string, exp int64) error {
	ttl := time.Until(time.Unix(exp, 0))
	if ttl <= 0 {
		// Token already expired; no need to blacklist
		return nil
	}

	key := fmt.Sprintf("blacklist:%s", tokenString)
	return r.client.Set(ctx, key, "1", ttl).Err()
}

// IsTokenBlacklisted checks if a token is in the blacklist.
func (r *RedisDB) IsTokenBlacklisted(ctx context.Context, tokenString string) (bool, error) {
	key := fmt.Sprintf("blacklist:%s", tokenString)
	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return exists == 1, nil
}
