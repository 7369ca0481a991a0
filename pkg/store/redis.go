package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the configuration for the Redis client.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces every key the store writes. Defaults to "newtab".
	KeyPrefix string
}

// RedisStore is a Store using one Redis hash per partition.
// DeleteMany issues a single HDEL inside a MULTI/EXEC transaction.
type RedisStore struct {
	redisClient *redis.Client
	logger      zerolog.Logger
	prefix      string
	partitions  partitionSet
	version     int
}

// NewRedisStore creates and connects a new RedisStore.
// It pings the Redis server to ensure connectivity and applies pending migrations.
func NewRedisStore(ctx context.Context, cfg *RedisConfig, logger zerolog.Logger) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("redis_address", cfg.Addr).Msg("Successfully connected to Redis.")

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "newtab"
	}
	s := &RedisStore{
		redisClient: rdb,
		logger:      logger.With().Str("component", "RedisStore").Logger(),
		prefix:      prefix,
		partitions:  partitionSet{},
	}
	if err := s.migrate(ctx, Migrations); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return s, nil
}

func (s *RedisStore) metaKey() string       { return s.prefix + ":meta" }
func (s *RedisStore) partitionsKey() string { return s.prefix + ":partitions" }
func (s *RedisStore) hashKey(p Partition) string {
	return s.prefix + ":" + string(p)
}

func (s *RedisStore) migrate(ctx context.Context, migrations []Migration) error {
	current := 0
	raw, err := s.redisClient.HGet(ctx, s.metaKey(), "schema_version").Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	default:
		if current, err = strconv.Atoi(raw); err != nil {
			return fmt.Errorf("parse schema version: %w", err)
		}
	}

	s.version, err = applyPending(migrations, current, func(m Migration) error {
		created := partitionSet{}
		if err := m.Apply(created); err != nil {
			return err
		}
		_, err := s.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for p := range created {
				pipe.SAdd(ctx, s.partitionsKey(), string(p))
			}
			pipe.HSet(ctx, s.metaKey(), "schema_version", m.Version)
			return nil
		})
		return err
	})
	if err != nil {
		return err
	}

	names, err := s.redisClient.SMembers(ctx, s.partitionsKey()).Result()
	if err != nil {
		return fmt.Errorf("load partitions: %w", err)
	}
	for _, n := range names {
		s.partitions[Partition(n)] = struct{}{}
	}
	return nil
}

// SchemaVersion reports the highest migration applied.
func (s *RedisStore) SchemaVersion() (int, error) {
	return s.version, nil
}

func (s *RedisStore) check(ctx context.Context, p Partition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.redisClient == nil {
		return ErrClosed
	}
	if !s.partitions.has(p) {
		return fmt.Errorf("%w: %s", ErrUnknownPartition, p)
	}
	return nil
}

// Get retrieves the value stored under key.
func (s *RedisStore) Get(ctx context.Context, p Partition, key string) ([]byte, error) {
	if err := s.check(ctx, p); err != nil {
		return nil, err
	}
	value, err := s.redisClient.HGet(ctx, s.hashKey(p), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, s.wrap(fmt.Errorf("redis hget %s/%s: %w", p, key, err))
	}
	s.logger.Debug().Str("partition", string(p)).Str("key", key).Msg("Redis store hit.")
	return value, nil
}

// Put stores value under key.
func (s *RedisStore) Put(ctx context.Context, p Partition, key string, value []byte) error {
	if err := s.check(ctx, p); err != nil {
		return err
	}
	if err := s.redisClient.HSet(ctx, s.hashKey(p), key, value).Err(); err != nil {
		return s.wrap(fmt.Errorf("redis hset %s/%s: %w", p, key, err))
	}
	return nil
}

// GetAllKeys lists the keys of a partition.
func (s *RedisStore) GetAllKeys(ctx context.Context, p Partition) ([]string, error) {
	if err := s.check(ctx, p); err != nil {
		return nil, err
	}
	keys, err := s.redisClient.HKeys(ctx, s.hashKey(p)).Result()
	if err != nil {
		return nil, s.wrap(fmt.Errorf("redis hkeys %s: %w", p, err))
	}
	return keys, nil
}

// GetAll lists the values of a partition.
func (s *RedisStore) GetAll(ctx context.Context, p Partition) ([][]byte, error) {
	if err := s.check(ctx, p); err != nil {
		return nil, err
	}
	raw, err := s.redisClient.HVals(ctx, s.hashKey(p)).Result()
	if err != nil {
		return nil, s.wrap(fmt.Errorf("redis hvals %s: %w", p, err))
	}
	values := make([][]byte, len(raw))
	for i, v := range raw {
		values[i] = []byte(v)
	}
	return values, nil
}

// DeleteMany removes keys in one MULTI/EXEC transaction.
func (s *RedisStore) DeleteMany(ctx context.Context, p Partition, keys []string) error {
	if err := s.check(ctx, p); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	_, err := s.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.hashKey(p), keys...)
		return nil
	})
	if err != nil {
		return s.wrap(fmt.Errorf("redis hdel %s: %w", p, err))
	}
	return nil
}

// Close closes the Redis client connection.
func (s *RedisStore) Close() error {
	if s.redisClient != nil {
		s.logger.Info().Msg("Closing Redis client connection...")
		return s.redisClient.Close()
	}
	return nil
}

func (s *RedisStore) wrap(err error) error {
	if errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return err
}
