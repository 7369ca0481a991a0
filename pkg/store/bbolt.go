package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.etcd.io/bbolt"
)

const (
	boltMetaBucket    = "_meta"
	boltSchemaVersion = "schema_version"
)

// BoltStore is a Store backed by a local BoltDB file. Each partition is a bucket and
// every operation runs inside a bbolt transaction, so DeleteMany is all-or-nothing.
type BoltStore struct {
	db     *bbolt.DB
	logger zerolog.Logger
}

// OpenBoltStore opens (or creates) the database at path and applies pending migrations.
func OpenBoltStore(path string, logger zerolog.Logger) (*BoltStore, error) {
	return OpenBoltStoreWithMigrations(path, Migrations, logger)
}

// OpenBoltStoreWithMigrations is OpenBoltStore with an explicit schema history.
func OpenBoltStoreWithMigrations(path string, migrations []Migration, logger zerolog.Logger) (*BoltStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	s := &BoltStore{
		db:     db,
		logger: logger.With().Str("component", "BoltStore").Logger(),
	}
	version, err := s.migrate(migrations)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Info().Str("path", cleanPath).Int("schema_version", version).Msg("BoltStore opened.")
	return s, nil
}

type boltMigrator struct {
	tx *bbolt.Tx
}

func (m boltMigrator) CreatePartition(p Partition) error {
	if p == "" || string(p) == boltMetaBucket {
		return fmt.Errorf("invalid partition name %q", p)
	}
	if _, err := m.tx.CreateBucketIfNotExists([]byte(p)); err != nil {
		return fmt.Errorf("create %s bucket: %w", p, err)
	}
	return nil
}

func (s *BoltStore) migrate(migrations []Migration) (int, error) {
	current, err := s.SchemaVersion()
	if err != nil {
		return 0, err
	}
	return applyPending(migrations, current, func(m Migration) error {
		return s.db.Update(func(tx *bbolt.Tx) error {
			if err := m.Apply(boltMigrator{tx: tx}); err != nil {
				return err
			}
			meta, err := tx.CreateBucketIfNotExists([]byte(boltMetaBucket))
			if err != nil {
				return fmt.Errorf("create meta bucket: %w", err)
			}
			return meta.Put([]byte(boltSchemaVersion), []byte(strconv.Itoa(m.Version)))
		})
	})
}

// SchemaVersion reports the highest migration recorded in the meta bucket.
func (s *BoltStore) SchemaVersion() (int, error) {
	version := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket([]byte(boltMetaBucket))
		if meta == nil {
			return nil
		}
		raw := meta.Get([]byte(boltSchemaVersion))
		if raw == nil {
			return nil
		}
		v, err := strconv.Atoi(string(raw))
		if err != nil {
			return fmt.Errorf("parse schema version: %w", err)
		}
		version = v
		return nil
	})
	return version, err
}

func boltBucket(tx *bbolt.Tx, p Partition) (*bbolt.Bucket, error) {
	if string(p) == boltMetaBucket {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPartition, p)
	}
	bucket := tx.Bucket([]byte(p))
	if bucket == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPartition, p)
	}
	return bucket, nil
}

func (s *BoltStore) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return ErrClosed
	}
	return nil
}

// Get retrieves the value stored under key.
func (s *BoltStore) Get(ctx context.Context, p Partition, key string) ([]byte, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket, err := boltBucket(tx, p)
		if err != nil {
			return err
		}
		raw := bucket.Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		// bbolt memory is only valid for the life of the transaction.
		value = cloneBytes(raw)
		return nil
	})
	if err != nil {
		return nil, s.wrap(err)
	}
	return value, nil
}

// Put stores value under key.
func (s *BoltStore) Put(ctx context.Context, p Partition, key string, value []byte) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("key is required")
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := boltBucket(tx, p)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), value)
	})
	return s.wrap(err)
}

// GetAllKeys lists the keys of a partition in byte order.
func (s *BoltStore) GetAllKeys(ctx context.Context, p Partition) ([]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket, err := boltBucket(tx, p)
		if err != nil {
			return err
		}
		return bucket.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, s.wrap(err)
	}
	return keys, nil
}

// GetAll lists the values of a partition.
func (s *BoltStore) GetAll(ctx context.Context, p Partition) ([][]byte, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	var values [][]byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket, err := boltBucket(tx, p)
		if err != nil {
			return err
		}
		return bucket.ForEach(func(_, v []byte) error {
			values = append(values, cloneBytes(v))
			return nil
		})
	})
	if err != nil {
		return nil, s.wrap(err)
	}
	return values, nil
}

// DeleteMany removes keys inside a single read-write transaction.
func (s *BoltStore) DeleteMany(ctx context.Context, p Partition, keys []string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := boltBucket(tx, p)
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := bucket.Delete([]byte(k)); err != nil {
				return fmt.Errorf("delete %s/%s: %w", p, k, err)
			}
		}
		return nil
	})
	return s.wrap(err)
}

// Close closes the underlying BoltDB database.
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.logger.Info().Msg("Closing BoltStore.")
	return s.db.Close()
}

func (s *BoltStore) wrap(err error) error {
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return err
}
