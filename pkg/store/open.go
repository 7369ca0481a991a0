package store

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// Backend names accepted by Open.
const (
	BackendMemory    = "memory"
	BackendBolt      = "bbolt"
	BackendSQLite    = "sqlite"
	BackendRedis     = "redis"
	BackendFirestore = "firestore"
)

// Config selects and configures a backend.
type Config struct {
	Backend string
	// Path is the database file for the bbolt and sqlite backends.
	Path            string
	Redis           RedisConfig
	Firestore       FirestoreConfig
	CredentialsFile string
}

// Open constructs the configured backend with every migration applied.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendMemory:
		return NewInMemoryStore(), nil
	case "", BackendBolt:
		return OpenBoltStore(cfg.Path, logger)
	case BackendSQLite:
		return OpenSQLiteStore(cfg.Path, logger)
	case BackendRedis:
		return NewRedisStore(ctx, &cfg.Redis, logger)
	case BackendFirestore:
		var opts []option.ClientOption
		if cfg.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		}
		client, err := firestore.NewClient(ctx, cfg.Firestore.ProjectID, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		fs, err := NewFirestoreStore(ctx, &cfg.Firestore, client, logger)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return &ownedFirestoreStore{FirestoreStore: fs, client: client}, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// ownedFirestoreStore closes the client that Open created on the caller's behalf.
type ownedFirestoreStore struct {
	*FirestoreStore
	client *firestore.Client
}

func (s *ownedFirestoreStore) Close() error {
	_ = s.FirestoreStore.Close()
	return s.client.Close()
}
