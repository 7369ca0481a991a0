package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig holds configuration for the Firestore backend.
type FirestoreConfig struct {
	ProjectID string
	// CollectionPrefix is prepended to every partition's collection name. Defaults to "newtab".
	CollectionPrefix string
}

type firestoreRecord struct {
	Value []byte `firestore:"value"`
}

type firestoreMeta struct {
	Version    int      `firestore:"version"`
	Partitions []string `firestore:"partitions"`
}

// FirestoreStore is a Store using one Firestore collection per partition.
// It suits low volume deployments; DeleteMany runs inside a Firestore transaction.
type FirestoreStore struct {
	client     *firestore.Client
	prefix     string
	logger     zerolog.Logger
	partitions partitionSet
	version    int
}

// NewFirestoreStore creates a FirestoreStore over an injected client and applies
// pending migrations. The client's lifecycle is managed by the caller.
func NewFirestoreStore(ctx context.Context, cfg *FirestoreConfig, client *firestore.Client, logger zerolog.Logger) (*FirestoreStore, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client cannot be nil")
	}
	prefix := cfg.CollectionPrefix
	if prefix == "" {
		prefix = "newtab"
	}
	s := &FirestoreStore{
		client:     client,
		prefix:     prefix,
		logger:     logger.With().Str("component", "FirestoreStore").Logger(),
		partitions: partitionSet{},
	}
	if err := s.migrate(ctx, Migrations); err != nil {
		return nil, err
	}
	logger.Info().Str("project_id", cfg.ProjectID).Str("prefix", prefix).Msg("FirestoreStore initialized.")
	return s, nil
}

func (s *FirestoreStore) metaRef() *firestore.DocumentRef {
	return s.client.Collection(s.prefix + "_meta").Doc("schema")
}

func (s *FirestoreStore) collection(p Partition) *firestore.CollectionRef {
	return s.client.Collection(s.prefix + "_" + string(p))
}

func (s *FirestoreStore) migrate(ctx context.Context, migrations []Migration) error {
	var meta firestoreMeta
	snap, err := s.metaRef().Get(ctx)
	switch {
	case status.Code(err) == codes.NotFound:
	case err != nil:
		return fmt.Errorf("read schema meta: %w", err)
	default:
		if err := snap.DataTo(&meta); err != nil {
			return fmt.Errorf("decode schema meta: %w", err)
		}
	}
	for _, n := range meta.Partitions {
		s.partitions[Partition(n)] = struct{}{}
	}

	s.version, err = applyPending(migrations, meta.Version, func(m Migration) error {
		if err := m.Apply(s.partitions); err != nil {
			return err
		}
		next := firestoreMeta{Version: m.Version}
		for p := range s.partitions {
			next.Partitions = append(next.Partitions, string(p))
		}
		sort.Strings(next.Partitions)
		_, err := s.metaRef().Set(ctx, next)
		return err
	})
	return err
}

// SchemaVersion reports the highest migration applied.
func (s *FirestoreStore) SchemaVersion() (int, error) {
	return s.version, nil
}

func (s *FirestoreStore) check(ctx context.Context, p Partition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.client == nil {
		return ErrClosed
	}
	if !s.partitions.has(p) {
		return fmt.Errorf("%w: %s", ErrUnknownPartition, p)
	}
	return nil
}

// Get retrieves a single document by its key.
func (s *FirestoreStore) Get(ctx context.Context, p Partition, key string) ([]byte, error) {
	if err := s.check(ctx, p); err != nil {
		return nil, err
	}
	docSnap, err := s.collection(p).Doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to get document from Firestore.")
		return nil, fmt.Errorf("firestore get for %s/%s: %w", p, key, err)
	}
	var rec firestoreRecord
	if err := docSnap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("firestore DataTo for %s/%s: %w", p, key, err)
	}
	return rec.Value, nil
}

// Put writes the document for key.
func (s *FirestoreStore) Put(ctx context.Context, p Partition, key string, value []byte) error {
	if err := s.check(ctx, p); err != nil {
		return err
	}
	if _, err := s.collection(p).Doc(key).Set(ctx, firestoreRecord{Value: value}); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to write document to Firestore.")
		return fmt.Errorf("firestore set for %s/%s: %w", p, key, err)
	}
	return nil
}

// GetAllKeys lists the document ids of a partition.
func (s *FirestoreStore) GetAllKeys(ctx context.Context, p Partition) ([]string, error) {
	if err := s.check(ctx, p); err != nil {
		return nil, err
	}
	var keys []string
	it := s.collection(p).DocumentRefs(ctx)
	for {
		ref, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore list %s: %w", p, err)
		}
		keys = append(keys, ref.ID)
	}
	return keys, nil
}

// GetAll lists the values of a partition.
func (s *FirestoreStore) GetAll(ctx context.Context, p Partition) ([][]byte, error) {
	if err := s.check(ctx, p); err != nil {
		return nil, err
	}
	snaps, err := s.collection(p).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("firestore get all %s: %w", p, err)
	}
	values := make([][]byte, 0, len(snaps))
	for _, snap := range snaps {
		var rec firestoreRecord
		if err := snap.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("firestore DataTo for %s/%s: %w", p, snap.Ref.ID, err)
		}
		values = append(values, rec.Value)
	}
	return values, nil
}

// DeleteMany removes keys inside one Firestore transaction.
func (s *FirestoreStore) DeleteMany(ctx context.Context, p Partition, keys []string) error {
	if err := s.check(ctx, p); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, k := range keys {
			if err := tx.Delete(s.collection(p).Doc(k)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("firestore delete %s: %w", p, err)
	}
	return nil
}

// Close is a no-op as the Firestore client's lifecycle is managed externally.
func (s *FirestoreStore) Close() error {
	s.logger.Info().Msg("FirestoreStore does not close the injected Firestore client.")
	return nil
}
