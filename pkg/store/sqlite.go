package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const sqliteBaseSchema = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS partitions (
    name TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS records (
    partition TEXT NOT NULL REFERENCES partitions(name),
    key TEXT NOT NULL,
    value BLOB NOT NULL,
    PRIMARY KEY (partition, key)
);
`

// SQLiteStore is a Store backed by a single SQLite file.
type SQLiteStore struct {
	sqlDB  *sql.DB
	logger zerolog.Logger
}

// OpenSQLiteStore opens the database at path and applies pending migrations.
func OpenSQLiteStore(path string, logger zerolog.Logger) (*SQLiteStore, error) {
	return OpenSQLiteStoreWithMigrations(path, Migrations, logger)
}

// OpenSQLiteStoreWithMigrations is OpenSQLiteStore with an explicit schema history.
func OpenSQLiteStoreWithMigrations(path string, migrations []Migration, logger zerolog.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := "file:" + cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteBaseSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ensure base schema: %w", err)
	}

	s := &SQLiteStore{
		sqlDB:  sqlDB,
		logger: logger.With().Str("component", "SQLiteStore").Logger(),
	}
	version, err := s.migrate(migrations)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	s.logger.Info().Str("path", cleanPath).Int("schema_version", version).Msg("SQLiteStore opened.")
	return s, nil
}

type sqliteMigrator struct {
	tx *sql.Tx
}

func (m sqliteMigrator) CreatePartition(p Partition) error {
	if p == "" {
		return fmt.Errorf("partition name is required")
	}
	if _, err := m.tx.Exec("INSERT OR IGNORE INTO partitions (name) VALUES (?)", string(p)); err != nil {
		return fmt.Errorf("create partition %s: %w", p, err)
	}
	return nil
}

func (s *SQLiteStore) migrate(migrations []Migration) (int, error) {
	current, err := s.SchemaVersion()
	if err != nil {
		return 0, err
	}
	return applyPending(migrations, current, func(m Migration) error {
		tx, err := s.sqlDB.BeginTx(context.Background(), nil)
		if err != nil {
			return fmt.Errorf("begin migration transaction: %w", err)
		}
		if err := m.Apply(sqliteMigrator{tx: tx}); err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now().UTC().UnixMilli(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration: %w", err)
		}
		return tx.Commit()
	})
}

// SchemaVersion reports the highest migration recorded in schema_migrations.
func (s *SQLiteStore) SchemaVersion() (int, error) {
	var version sql.NullInt64
	if err := s.sqlDB.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}

func (s *SQLiteStore) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return ErrClosed
	}
	return nil
}

func (s *SQLiteStore) checkPartition(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, p Partition) error {
	var found int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM partitions WHERE name = ?", string(p)).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrUnknownPartition, p)
	}
	if err != nil {
		return s.wrap(fmt.Errorf("check partition %s: %w", p, err))
	}
	return nil
}

// Get retrieves the value stored under key.
func (s *SQLiteStore) Get(ctx context.Context, p Partition, key string) ([]byte, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if err := s.checkPartition(ctx, s.sqlDB, p); err != nil {
		return nil, err
	}
	var value []byte
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT value FROM records WHERE partition = ? AND key = ?", string(p), key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, s.wrap(fmt.Errorf("get %s/%s: %w", p, key, err))
	}
	return value, nil
}

// Put stores value under key.
func (s *SQLiteStore) Put(ctx context.Context, p Partition, key string, value []byte) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("key is required")
	}
	if err := s.checkPartition(ctx, s.sqlDB, p); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO records (partition, key, value) VALUES (?, ?, ?)
ON CONFLICT(partition, key) DO UPDATE SET value = excluded.value`,
		string(p), key, value,
	)
	if err != nil {
		return s.wrap(fmt.Errorf("put %s/%s: %w", p, key, err))
	}
	return nil
}

// GetAllKeys lists the keys of a partition.
func (s *SQLiteStore) GetAllKeys(ctx context.Context, p Partition) ([]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if err := s.checkPartition(ctx, s.sqlDB, p); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, "SELECT key FROM records WHERE partition = ?", string(p))
	if err != nil {
		return nil, s.wrap(fmt.Errorf("list %s keys: %w", p, err))
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan %s key: %w", p, err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// GetAll lists the values of a partition.
func (s *SQLiteStore) GetAll(ctx context.Context, p Partition) ([][]byte, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if err := s.checkPartition(ctx, s.sqlDB, p); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, "SELECT value FROM records WHERE partition = ?", string(p))
	if err != nil {
		return nil, s.wrap(fmt.Errorf("list %s values: %w", p, err))
	}
	defer rows.Close()

	var values [][]byte
	for rows.Next() {
		var v []byte
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan %s value: %w", p, err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// DeleteMany removes keys inside one transaction; any failure rolls the batch back.
func (s *SQLiteStore) DeleteMany(ctx context.Context, p Partition, keys []string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return s.wrap(fmt.Errorf("begin delete transaction: %w", err))
	}
	if err := s.checkPartition(ctx, tx, p); err != nil {
		_ = tx.Rollback()
		return err
	}
	stmt, err := tx.PrepareContext(ctx, "DELETE FROM records WHERE partition = ? AND key = ?")
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, k := range keys {
		if _, err := stmt.ExecContext(ctx, string(p), k); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("delete %s/%s: %w", p, k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	s.logger.Info().Msg("Closing SQLiteStore.")
	return s.sqlDB.Close()
}

func (s *SQLiteStore) wrap(err error) error {
	if err != nil && strings.Contains(err.Error(), "database is closed") {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return err
}
