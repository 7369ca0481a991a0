// Package store provides the persistent key-value layer behind the new-tab caches.
//
// A Store holds a small set of named partitions (analogous to tables), each keyed
// by a string id. Values are opaque byte slices; typed encoding is left to callers.
// Every backend offers the same contract:
//
//   - Get returns ErrNotFound when the key is absent.
//   - Put is an upsert and never fails on conflict.
//   - GetAllKeys and GetAll return partition contents in unspecified order.
//   - DeleteMany removes all listed keys in one unit of work, or none of them.
//
// Partitions are created by an ordered list of migrations (see Migrations) which
// is applied once when a store is opened. Migrations are additive: a later step may
// introduce a partition but never reshapes an existing one.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Partition names an independently keyed section of a Store.
type Partition string

const (
	// PartitionImage holds one background image record per calendar day.
	PartitionImage Partition = "image"
	// PartitionWeather holds the last known weather for each city.
	PartitionWeather Partition = "weather"
	// PartitionHoliday holds one holiday calendar per country and year.
	PartitionHoliday Partition = "holiday"
)

var (
	// ErrNotFound indicates a requested key is absent from its partition.
	ErrNotFound = errors.New("record not found")
	// ErrUnknownPartition indicates the partition has not been created by any migration.
	ErrUnknownPartition = errors.New("unknown partition")
	// ErrClosed indicates the store has already been closed.
	ErrClosed = errors.New("store is closed")
)

// Store is the contract shared by every persistence backend.
type Store interface {
	// Get retrieves the value stored under key.
	Get(ctx context.Context, partition Partition, key string) ([]byte, error)
	// Put stores value under key, replacing any existing value.
	Put(ctx context.Context, partition Partition, key string, value []byte) error
	// GetAllKeys lists every key in the partition.
	GetAllKeys(ctx context.Context, partition Partition) ([]string, error)
	// GetAll lists every value in the partition.
	GetAll(ctx context.Context, partition Partition) ([][]byte, error)
	// DeleteMany removes keys atomically. Missing keys are ignored.
	DeleteMany(ctx context.Context, partition Partition, keys []string) error
	// Close releases the resources held by the store.
	Close() error
}

// SchemaVersion reports the highest migration applied to s.
func SchemaVersion(s Store) (int, error) {
	v, ok := s.(interface{ SchemaVersion() (int, error) })
	if !ok {
		return 0, fmt.Errorf("store %T does not report a schema version", s)
	}
	return v.SchemaVersion()
}
