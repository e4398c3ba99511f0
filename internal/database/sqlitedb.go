package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
)

// scannedAtLayout has fixed width so TEXT ordering follows time ordering.
const scannedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteDB represents the SQLite implementation of the Database interface.
type SQLiteDB struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewSQLiteDB initializes a new SQLiteDB instance.
func NewSQLiteDB(dataSourceName string, logger *logrus.Logger) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite3 database: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	// Set connection pool parameters
	db.SetMaxOpenConns(1) // SQLite3 doesn't support multiple writers well.

	sqliteDB := &SQLiteDB{
		db:     db,
		logger: logger,
	}

	if err := sqliteDB.Initialize(context.TODO()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return sqliteDB, nil
}

func (s *SQLiteDB) Close(context.Context) error {
	return s.db.Close()
}

// Initialize creates the necessary tables and indexes.
func (s *SQLiteDB) Initialize(ctx context.Context) error {
	schema := `
    CREATE TABLE IF NOT EXISTS records (
        id TEXT PRIMARY KEY,
        run_id TEXT NOT NULL DEFAULT '',
        sha256 TEXT NOT NULL,
        filename TEXT NOT NULL,
        full_path TEXT NOT NULL,
        verdict TEXT NOT NULL,
        status TEXT NOT NULL,
        duplicate INTEGER NOT NULL DEFAULT 0,
        threats TEXT NOT NULL DEFAULT '[]',
        scanned_at TEXT NOT NULL,
        data TEXT NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_records_sha256 ON records(sha256);
    CREATE INDEX IF NOT EXISTS idx_records_scanned_at ON records(scanned_at);
    CREATE INDEX IF NOT EXISTS idx_records_verdict ON records(verdict);

	-- Blacklisted Tokens
	CREATE TABLE IF NOT EXISTS blacklisted_tokens (
		token TEXT PRIMARY KEY,
		expires_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_blacklisted_tokens_expires_at ON blacklisted_tokens(expires_at);
    `
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// SaveRecord inserts or replaces a record.
func (s *SQLiteDB) SaveRecord(ctx context.Context, record models.FileRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal FileRecord: %w", err)
	}
	threats := record.Threats
	if threats == nil {
		threats = []string{}
	}
	threatsJSON, err := json.Marshal(threats)
	if err != nil {
		return fmt.Errorf("failed to marshal threats: %w", err)
	}

	query := `
		INSERT INTO records (id, run_id, sha256, filename, full_path, verdict, status, duplicate, threats, scanned_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			run_id=excluded.run_id,
			sha256=excluded.sha256,
			filename=excluded.filename,
			full_path=excluded.full_path,
			verdict=excluded.verdict,
			status=excluded.status,
			duplicate=excluded.duplicate,
			threats=excluded.threats,
			scanned_at=excluded.scanned_at,
			data=excluded.data;
	`
	_, err = s.db.ExecContext(ctx, query,
		record.ID, record.RunID, record.SHA256, record.Filename, record.FullPath,
		string(record.Verdict), string(record.Status), record.Duplicate,
		string(threatsJSON), record.ScannedAt.UTC().Format(scannedAtLayout), string(data))
	if err != nil {
		s.logger.WithError(err).Errorf("SaveRecord: failed to store record %s", record.ID)
		return err
	}
	return nil
}

func decodeRecord(data string) (models.FileRecord, error) {
	var record models.FileRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return record, fmt.Errorf("failed to decode record: %w", err)
	}
	return record, nil
}

// GetRecord retrieves a single record by ID.
func (s *SQLiteDB) GetRecord(ctx context.Context, id string) (models.FileRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM records WHERE id = ?;`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.FileRecord{}, ErrRecordNotFound
		}
		s.logger.WithError(err).Errorf("GetRecord: failed to retrieve record %s", id)
		return models.FileRecord{}, err
	}
	return decodeRecord(data)
}

func (s *SQLiteDB) queryRecords(ctx context.Context, query string, args ...interface{}) ([]models.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.FileRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			s.logger.WithError(err).Warn("queryRecords: failed to scan row")
			continue
		}
		record, err := decodeRecord(data)
		if err != nil {
			s.logger.WithError(err).Warn("queryRecords: skipping undecodable row")
			continue
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// FindByHash returns every record with the given content hash.
func (s *SQLiteDB) FindByHash(ctx context.Context, sha256 string) ([]models.FileRecord, error) {
	records, err := s.queryRecords(ctx,
		`SELECT data FROM records WHERE sha256 = ? ORDER BY scanned_at DESC, id ASC;`,
		strings.ToLower(sha256))
	if err != nil {
		s.logger.WithError(err).Errorf("FindByHash: failed to query hash %s", sha256)
		return nil, err
	}
	return records, nil
}

// LoadRecordsPaginated retrieves a specific page of records and the total count.
func (s *SQLiteDB) LoadRecordsPaginated(ctx context.Context, filter models.RecordFilter) ([]models.FileRecord, int, error) {
	filter = normalizeFilter(filter)

	var where []string
	var args []interface{}
	if filter.Verdict != "" {
		where = append(where, "verdict = ?")
		args = append(args, filter.Verdict)
	}
	if filter.Threat != "" {
		tag, err := json.Marshal(filter.Threat)
		if err != nil {
			return nil, 0, err
		}
		where = append(where, "instr(threats, ?) > 0")
		args = append(args, string(tag))
	}
	if filter.Duplicate != nil {
		where = append(where, "duplicate = ?")
		args = append(args, *filter.Duplicate)
	}
	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM records %s;`, clause)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		s.logger.WithError(err).Error("LoadRecordsPaginated: failed to count records")
		return nil, 0, err
	}

	pageQuery := fmt.Sprintf(`
		SELECT data FROM records %s
		ORDER BY scanned_at DESC, id ASC
		LIMIT ? OFFSET ?;
	`, clause)
	pageArgs := append(append([]interface{}{}, args...), filter.PerPage, (filter.Page-1)*filter.PerPage)
	records, err := s.queryRecords(ctx, pageQuery, pageArgs...)
	if err != nil {
		s.logger.WithError(err).Error("LoadRecordsPaginated: failed to execute query")
		return nil, 0, err
	}
	if records == nil {
		records = []models.FileRecord{}
	}
	return records, total, nil
}

// DeleteRecord removes a record.
func (s *SQLiteDB) DeleteRecord(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?;`, id)
	if err != nil {
		s.logger.WithError(err).Errorf("DeleteRecord: failed to delete record %s", id)
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// GetStats aggregates counters with SQL.
func (s *SQLiteDB) GetStats(ctx context.Context) (models.StatsResponse, error) {
	stats := models.StatsResponse{ByVerdict: make(map[string]int)}

	var lastScan sql.NullString
	var duplicates, withThreats sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(duplicate), SUM(CASE WHEN threats != '[]' THEN 1 ELSE 0 END), MAX(scanned_at)
		FROM records;
	`).Scan(&stats.TotalRecords, &duplicates, &withThreats, &lastScan)
	if err != nil {
		return stats, fmt.Errorf("failed to aggregate records: %w", err)
	}
	stats.Duplicates = int(duplicates.Int64)
	stats.WithThreats = int(withThreats.Int64)
	if lastScan.Valid {
		if t, err := time.Parse(scannedAtLayout, lastScan.String); err == nil {
			stats.LastScanAt = t
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT verdict, COUNT(*) FROM records GROUP BY verdict;`)
	if err != nil {
		return stats, fmt.Errorf("failed to group verdicts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var verdict string
		var n int
		if err := rows.Scan(&verdict, &n); err != nil {
			return stats, err
		}
		stats.ByVerdict[verdict] = n
	}
	return stats, rows.Err()
}

// AddBlacklistedToken adds a token string to the blacklist with its expiration time.
func (s *SQLiteDB) AddBlacklistedToken(ctx context.Context, tokenString string, exp int64) error {
	query := `
		INSERT INTO blacklisted_tokens (token, expires_at)
		VALUES (?, ?)
		ON CONFLICT(token) DO UPDATE SET
			expires_at=excluded.expires_at;
	`
	_, err := s.db.ExecContext(ctx, query, tokenString, exp)
	if err != nil {
		s.logger.WithError(err).Error("AddBlacklistedToken: failed to add token")
		return err
	}
	return nil
}

// IsTokenBlacklisted checks if a token is in the blacklist.
// If the token is expired, it removes it from the blacklist.
func (s *SQLiteDB) IsTokenBlacklisted(ctx context.Context, tokenString string) (bool, error) {
	var expiresAt int64
	query := `
		SELECT expires_at
		FROM blacklisted_tokens
		WHERE token = ?;
	`
	err := s.db.QueryRowContext(ctx, query, tokenString).Scan(&expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil // Token not blacklisted
		}
		s.logger.WithError(err).Error("IsTokenBlacklisted: failed to query token")
		return false, err
	}

	if expiresAt < time.Now().Unix() {
		// Token expired; remove from blacklist
		if _, err := s.db.ExecContext(ctx, `DELETE FROM blacklisted_tokens WHERE token = ?;`, tokenString); err != nil {
			s.logger.WithError(err).Error("IsTokenBlacklisted: failed to delete expired token")
			return false, err
		}
		return false, nil
	}

	return true, nil // Token is blacklisted and not expired
}
