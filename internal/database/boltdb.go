package database

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
)

var (
	recordsBucket     = []byte("Records")
	hashIndexBucket   = []byte("HashIndex")
	blacklistedBucket = []byte("BlacklistedTokens")
)

// BoltDB implements the Database interface using bbolt.
type BoltDB struct {
	db     *bbolt.DB
	path   string
	logger *logrus.Logger
}

// NewBoltDB initializes a new BoltDB instance.
func NewBoltDB(path string, logger *logrus.Logger) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	boltDB := &BoltDB{
		db:     db,
		path:   path,
		logger: logger,
	}

	if err := boltDB.Initialize(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return boltDB, nil
}

// Initialize sets up the necessary buckets.
func (b *BoltDB) Initialize(ctx context.Context) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{recordsBucket, hashIndexBucket, blacklistedBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

func (b *BoltDB) Close(context.Context) error {
	return b.db.Close()
}

// hashKey is the index key sha256/id; a prefix scan on sha256/ lists ids.
func hashKey(sha256, id string) []byte {
	return []byte(strings.ToLower(sha256) + "/" + id)
}

// SaveRecord inserts or replaces a record and keeps the hash index current.
func (b *BoltDB) SaveRecord(ctx context.Context, record models.FileRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal FileRecord: %w", err)
	}

	err = b.db.Update(func(tx *bbolt.Tx) error {
		records := tx.Bucket(recordsBucket)
		index := tx.Bucket(hashIndexBucket)

		if prev := records.Get([]byte(record.ID)); prev != nil {
			var old models.FileRecord
			if err := json.Unmarshal(prev, &old); err == nil && old.SHA256 != record.SHA256 {
				if err := index.Delete(hashKey(old.SHA256, old.ID)); err != nil {
					return err
				}
			}
		}
		if err := records.Put([]byte(record.ID), data); err != nil {
			return err
		}
		if record.SHA256 == "" {
			return nil
		}
		return index.Put(hashKey(record.SHA256, record.ID), nil)
	})
	if err != nil {
		b.logger.WithError(err).WithField("id", record.ID).Error("SaveRecord: failed to store record")
		return fmt.Errorf("failed to save record to BoltDB: %w", err)
	}
	return nil
}

// GetRecord retrieves a record by ID.
func (b *BoltDB) GetRecord(ctx context.Context, id string) (models.FileRecord, error) {
	var record models.FileRecord
	err := b.db.View(func(tx *bbolt.Tx) error {
		val := tx.Bucket(recordsBucket).Get([]byte(id))
		if val == nil {
			return ErrRecordNotFound
		}
		return json.Unmarshal(val, &record)
	})
	return record, err
}

// FindByHash returns the records sharing a content hash.
func (b *BoltDB) FindByHash(ctx context.Context, sha256 string) ([]models.FileRecord, error) {
	var out []models.FileRecord
	err := b.db.View(func(tx *bbolt.Tx) error {
		records := tx.Bucket(recordsBucket)
		c := tx.Bucket(hashIndexBucket).Cursor()
		prefix := []byte(strings.ToLower(sha256) + "/")
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			id := bytes.TrimPrefix(k, prefix)
			val := records.Get(id)
			if val == nil {
				continue
			}
			var record models.FileRecord
			if err := json.Unmarshal(val, &record); err != nil {
				b.logger.WithError(err).WithField("id", string(id)).Warn("FindByHash: failed to decode record")
				continue
			}
			out = append(out, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortRecords(out)
	return out, nil
}

func (b *BoltDB) loadAll() ([]models.FileRecord, error) {
	var out []models.FileRecord
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(recordsBucket).ForEach(func(k, v []byte) error {
			var record models.FileRecord
			if err := json.Unmarshal(v, &record); err != nil {
				b.logger.WithError(err).WithField("id", string(k)).Warn("loadAll: failed to decode record")
				return nil
			}
			out = append(out, record)
			return nil
		})
	})
	return out, err
}

// LoadRecordsPaginated retrieves a filtered page of records.
func (b *BoltDB) LoadRecordsPaginated(ctx context.Context, filter models.RecordFilter) ([]models.FileRecord, int, error) {
	all, err := b.loadAll()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load records: %w", err)
	}
	page, total := paginate(all, filter)
	return page, total, nil
}

// DeleteRecord removes a record and its index entry.
func (b *BoltDB) DeleteRecord(ctx context.Context, id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		records := tx.Bucket(recordsBucket)
		val := records.Get([]byte(id))
		if val == nil {
			return ErrRecordNotFound
		}
		var record models.FileRecord
		if err := json.Unmarshal(val, &record); err == nil && record.SHA256 != "" {
			if err := tx.Bucket(hashIndexBucket).Delete(hashKey(record.SHA256, id)); err != nil {
				return err
			}
		}
		return records.Delete([]byte(id))
	})
}

// GetStats aggregates counters over all records.
func (b *BoltDB) GetStats(ctx context.Context) (models.StatsResponse, error) {
	all, err := b.loadAll()
	if err != nil {
		return models.StatsResponse{}, fmt.Errorf("failed to load records: %w", err)
	}
	return computeStats(all), nil
}

// AddBlacklistedToken adds a token string to the blacklist with its expiration time.
func (b *BoltDB) AddBlacklistedToken(ctx context.Context, tokenString string, exp int64) error {
	data, err := json.Marshal(exp)
	if err != nil {
		return fmt.Errorf("failed to marshal expiration time: %w", err)
	}

	err = b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(blacklistedBucket).Put([]byte(tokenString), data)
	})
	if err != nil {
		return fmt.Errorf("failed to add token to blacklist: %w", err)
	}
	return nil
}

// IsTokenBlacklisted checks if a token is in the blacklist.
// If the token is expired, it removes it from the blacklist.
func (b *BoltDB) IsTokenBlacklisted(ctx context.Context, tokenString string) (bool, error) {
	var exp int64
	found := false
	err := b.db.View(func(tx *bbolt.Tx) error {
		val := tx.Bucket(blacklistedBucket).Get([]byte(tokenString))
		if val == nil {
			return nil
		}
		found = true
		return json.Unmarshal(val, &exp)
	})
	if err != nil || !found {
		return false, err
	}

	if exp < time.Now().Unix() {
		err := b.db.Update(func(tx *bbolt.Tx) error {
			return tx.Bucket(blacklistedBucket).Delete([]byte(tokenString))
		})
		if err != nil {
			b.logger.WithError(err).Error("IsTokenBlacklisted: failed to delete expired token")
			return false, err
		}
		return false, nil
	}
	return true, nil
}
