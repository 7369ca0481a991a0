package store

import (
	"context"
	"fmt"
	"sync"
)

// InMemoryStore is a thread-safe, in-memory Store implementation.
// It is used for tests and for ephemeral runs where nothing needs to survive a restart.
type InMemoryStore struct {
	mu      sync.RWMutex
	data    map[Partition]map[string][]byte
	version int
	closed  bool
}

// NewInMemoryStore creates an in-memory store with every known migration applied.
func NewInMemoryStore() *InMemoryStore {
	s := &InMemoryStore{data: make(map[Partition]map[string][]byte)}
	// The built-in migrations only create partitions and cannot fail here.
	_, _ = s.Migrate(Migrations)
	return s
}

// Migrate applies the migrations above the current schema version.
func (s *InMemoryStore) Migrate(migrations []Migration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	version, err := applyPending(migrations, s.version, func(m Migration) error {
		created := partitionSet{}
		if err := m.Apply(created); err != nil {
			return err
		}
		for p := range created {
			if _, ok := s.data[p]; !ok {
				s.data[p] = make(map[string][]byte)
			}
		}
		return nil
	})
	s.version = version
	return version, err
}

// SchemaVersion reports the highest migration applied.
func (s *InMemoryStore) SchemaVersion() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version, nil
}

func (s *InMemoryStore) partition(p Partition) (map[string][]byte, error) {
	if s.closed {
		return nil, ErrClosed
	}
	part, ok := s.data[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPartition, p)
	}
	return part, nil
}

// Get retrieves a copy of the value stored under key.
func (s *InMemoryStore) Get(ctx context.Context, p Partition, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	part, err := s.partition(p)
	if err != nil {
		return nil, err
	}
	value, ok := part[key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBytes(value), nil
}

// Put stores a copy of value under key.
func (s *InMemoryStore) Put(ctx context.Context, p Partition, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	part, err := s.partition(p)
	if err != nil {
		return err
	}
	part[key] = cloneBytes(value)
	return nil
}

// GetAllKeys lists the keys of a partition.
func (s *InMemoryStore) GetAllKeys(ctx context.Context, p Partition) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	part, err := s.partition(p)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(part))
	for k := range part {
		keys = append(keys, k)
	}
	return keys, nil
}

// GetAll lists copies of the values of a partition.
func (s *InMemoryStore) GetAll(ctx context.Context, p Partition) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	part, err := s.partition(p)
	if err != nil {
		return nil, err
	}
	values := make([][]byte, 0, len(part))
	for _, v := range part {
		values = append(values, cloneBytes(v))
	}
	return values, nil
}

// DeleteMany removes keys under a single lock, so no reader observes a partial delete.
func (s *InMemoryStore) DeleteMany(ctx context.Context, p Partition, keys []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	part, err := s.partition(p)
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(part, k)
	}
	return nil
}

// Close marks the store closed. Later calls fail with ErrClosed.
func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
