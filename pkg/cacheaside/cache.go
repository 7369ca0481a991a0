// Package cacheaside composes a persistent store, a freshness rule, an upstream
// fetcher and an eviction rule into a single get-or-compute operation.
//
// The algorithm for Get is fixed:
//
//  1. Derive the lookup key from the request.
//  2. Read the stored record for that key.
//  3. If it exists and is fresh, return it. No network call is made.
//  4. Otherwise fetch. On success write the new record back, start an eviction
//     pass in the background and return the new record. On failure return the
//     stale record if the cache is configured to serve one, else an unavailable
//     result carrying the typed failure.
//
// Nothing coordinates concurrent misses for the same key: both fetch, both write,
// and the last write wins. Eviction passes are idempotent, so redundant passes from
// writes in quick succession are harmless.
package cacheaside

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/illmade-knight/go-newtab/pkg/events"
	"github.com/illmade-knight/go-newtab/pkg/store"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/illmade-knight/go-newtab/pkg/cacheaside"

// Record is a stored value that knows its own key.
type Record interface {
	Key() string
}

// Fetcher produces a fresh record for a request. now is the cache's clock reading
// for this Get, so records can be stamped deterministically.
type Fetcher[Q any, R Record] func(ctx context.Context, req Q, now time.Time) (R, error)

// Options configures a Cache.
type Options[Q any, R Record] struct {
	Partition store.Partition
	Key       func(req Q) string
	Fresh     Freshness[R]
	Fetch     Fetcher[Q, R]
	// Evict runs after every successful write. Nil disables eviction.
	Evict EvictionPolicy[R]
	// ServeStale returns the last stored record when a refetch fails.
	ServeStale bool
	// EvictionTimeout bounds a background eviction pass. Defaults to 30s.
	EvictionTimeout time.Duration

	// BeforePut transforms a fetched record into its stored form, e.g. moving a
	// payload to a blob store. The caller still receives the untransformed record.
	BeforePut func(ctx context.Context, rec R) (R, error)
	// AfterGet restores a stored record. An error turns the hit into a miss.
	AfterGet func(ctx context.Context, rec R) (R, error)
	// AfterEvict runs once the evicted keys are deleted. Its error is only logged.
	AfterEvict func(ctx context.Context, keys []string) error
}

// Cache is a cache-aside orchestrator for one resource type.
type Cache[Q any, R Record] struct {
	opts     Options[Q, R]
	part     partition[R]
	logger   zerolog.Logger
	notifier events.Notifier
	now      func() time.Time
	tracer   trace.Tracer
	wg       sync.WaitGroup
}

// Option customises a Cache beyond its Options.
type Option func(*settings)

type settings struct {
	notifier        events.Notifier
	now             func() time.Time
	evictionTimeout time.Duration
}

// WithNotifier reports fills and evictions to n.
func WithNotifier(n events.Notifier) Option {
	return func(s *settings) { s.notifier = n }
}

// WithEvictionTimeout bounds background eviction passes for caches whose Options
// leave EvictionTimeout unset.
func WithEvictionTimeout(d time.Duration) Option {
	return func(s *settings) { s.evictionTimeout = d }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// ClockOf returns the clock a Cache built with options would use, so callers that
// compute keys from the time agree with the cache.
func ClockOf(options ...Option) func() time.Time {
	s := settings{now: time.Now}
	for _, o := range options {
		o(&s)
	}
	return s.now
}

// New creates a Cache over st.
func New[Q any, R Record](st store.Store, opts Options[Q, R], logger zerolog.Logger, options ...Option) (*Cache[Q, R], error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if opts.Partition == "" || opts.Key == nil || opts.Fresh == nil || opts.Fetch == nil {
		return nil, fmt.Errorf("partition, key, freshness, and fetcher are required")
	}
	s := settings{now: time.Now}
	for _, o := range options {
		o(&s)
	}
	if opts.EvictionTimeout <= 0 {
		opts.EvictionTimeout = s.evictionTimeout
	}
	if opts.EvictionTimeout <= 0 {
		opts.EvictionTimeout = 30 * time.Second
	}
	return &Cache[Q, R]{
		opts:     opts,
		part:     partition[R]{store: st, name: opts.Partition},
		logger:   logger.With().Str("component", "CacheAside").Str("partition", string(opts.Partition)).Logger(),
		notifier: s.notifier,
		now:      s.now,
		tracer:   otel.Tracer(tracerName),
	}, nil
}

// Get returns the resource for req, following the cache-aside algorithm.
func (c *Cache[Q, R]) Get(ctx context.Context, req Q) Result[R] {
	key := c.opts.Key(req)
	ctx, span := c.tracer.Start(ctx, "cacheaside.Get", trace.WithAttributes(
		attribute.String("cache.partition", string(c.opts.Partition)),
		attribute.String("cache.key", key),
	))
	defer span.End()

	res := c.get(ctx, key, req)
	span.SetAttributes(attribute.String("cache.source", res.Source.String()))
	if res.Err != nil {
		span.RecordError(res.Err)
	}
	if res.Source == SourceUnavailable {
		span.SetStatus(codes.Error, "unavailable")
	}
	return res
}

func (c *Cache[Q, R]) get(ctx context.Context, key string, req Q) Result[R] {
	now := c.now()
	logger := c.logger.With().Str("key", key).Logger()

	cached, found, err := c.part.get(ctx, key)
	if err != nil {
		logger.Warn().Err(err).Msg("Stored record unreadable, treating as a miss.")
	}
	if found && c.opts.AfterGet != nil {
		if cached, err = c.opts.AfterGet(ctx, cached); err != nil {
			logger.Warn().Err(err).Msg("Stored record could not be restored, treating as a miss.")
			found = false
		}
	}
	if found && c.opts.Fresh(cached, now) {
		logger.Debug().Msg("Cache hit.")
		return Result[R]{Value: cached, Found: true, Source: SourceCache}
	}
	logger.Debug().Bool("stale_present", found).Msg("Cache miss. Falling back to source.")

	fetched, err := c.opts.Fetch(ctx, req, now)
	if err != nil {
		if KindOf(err) == KindUnknown {
			err = Network("fetch "+key, err)
		}
		if found && c.opts.ServeStale {
			logger.Warn().Err(err).Msg("Fetch failed, serving stale record.")
			return Result[R]{Value: cached, Found: true, Source: SourceStale, Err: err}
		}
		logger.Warn().Err(err).Msg("Fetch failed, resource unavailable.")
		return Unavailable[R](err)
	}

	toStore := fetched
	if c.opts.BeforePut != nil {
		if toStore, err = c.opts.BeforePut(ctx, fetched); err != nil {
			logger.Error().Err(err).Msg("Failed to prepare record for storage.")
			return Result[R]{Value: fetched, Found: true, Source: SourceOrigin, Err: Storage("prepare "+key, err)}
		}
	}
	if err := c.part.put(ctx, key, toStore); err != nil {
		logger.Error().Err(err).Msg("Failed to write record back to store.")
		return Result[R]{Value: fetched, Found: true, Source: SourceOrigin, Err: err}
	}
	logger.Debug().Msg("Source hit. Record written back to store.")
	c.notify(ctx, events.New(events.TypeFilled, string(c.opts.Partition), []string{key}, now))

	c.evictInBackground()
	return Result[R]{Value: fetched, Found: true, Source: SourceOrigin}
}

// evictInBackground starts an eviction pass that the caller does not wait for.
// The pass runs on its own context so it completes even if the request is cancelled.
func (c *Cache[Q, R]) evictInBackground() {
	if c.opts.Evict == nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		evictCtx, cancel := context.WithTimeout(context.Background(), c.opts.EvictionTimeout)
		defer cancel()
		if _, err := c.Evict(evictCtx); err != nil {
			c.logger.Error().Err(err).Msg("Background eviction failed; the next write will retry.")
		}
	}()
}

// Evict runs one eviction pass synchronously and returns the keys it removed.
// The delete is a single atomic batch: on failure nothing is removed.
func (c *Cache[Q, R]) Evict(ctx context.Context) ([]string, error) {
	if c.opts.Evict == nil {
		return nil, nil
	}
	now := c.now()
	candidates := &evictionCandidates[R]{partition: c.part, logger: c.logger}
	victims, err := c.opts.Evict(ctx, candidates, now)
	if err != nil {
		err = Storage("select eviction candidates", err)
		c.reportEvictionFailure(ctx, nil, err, now)
		return nil, err
	}
	victims = appendMissing(victims, candidates.corrupt)
	if len(victims) == 0 {
		return nil, nil
	}
	if err := c.part.store.DeleteMany(ctx, c.opts.Partition, victims); err != nil {
		err = Storage("delete evicted records", err)
		c.reportEvictionFailure(ctx, victims, err, now)
		return nil, err
	}
	c.logger.Info().Strs("keys", victims).Msg("Evicted records.")
	if c.opts.AfterEvict != nil {
		if err := c.opts.AfterEvict(ctx, victims); err != nil {
			c.logger.Warn().Err(err).Msg("Post-eviction cleanup failed.")
		}
	}
	c.notify(ctx, events.New(events.TypeEvicted, string(c.opts.Partition), victims, now))
	return victims, nil
}

func (c *Cache[Q, R]) reportEvictionFailure(ctx context.Context, keys []string, err error, now time.Time) {
	ev := events.New(events.TypeEvictionFailed, string(c.opts.Partition), keys, now)
	ev.Error = err.Error()
	c.notify(ctx, ev)
}

func (c *Cache[Q, R]) notify(ctx context.Context, ev events.Event) {
	if c.notifier != nil {
		c.notifier.Notify(ctx, ev)
	}
}

// Wait blocks until every background eviction pass started so far has finished.
func (c *Cache[Q, R]) Wait() {
	c.wg.Wait()
}

// Close waits for background work. The store belongs to the caller and stays open.
func (c *Cache[Q, R]) Close() error {
	c.Wait()
	return nil
}

// partition is a typed, JSON-encoded view of one store partition.
type partition[R Record] struct {
	store store.Store
	name  store.Partition
}

func (p partition[R]) get(ctx context.Context, key string) (R, bool, error) {
	var zero R
	raw, err := p.store.Get(ctx, p.name, key)
	if errors.Is(err, store.ErrNotFound) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, Storage("get "+key, err)
	}
	var rec R
	if err := json.Unmarshal(raw, &rec); err != nil {
		return zero, false, Parse("decode stored "+key, err)
	}
	return rec, true, nil
}

func (p partition[R]) put(ctx context.Context, key string, rec R) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return Parse("encode "+key, err)
	}
	if err := p.store.Put(ctx, p.name, key, raw); err != nil {
		return Storage("put "+key, err)
	}
	return nil
}

// Keys implements Candidates.
func (p partition[R]) Keys(ctx context.Context) ([]string, error) {
	return p.store.GetAllKeys(ctx, p.name)
}

// records decodes every value of the partition. When some value does not decode,
// the partition is walked again by key to name the corrupt records.
func (p partition[R]) records(ctx context.Context) ([]R, []string, error) {
	raws, err := p.store.GetAll(ctx, p.name)
	if err != nil {
		return nil, nil, err
	}
	recs := make([]R, 0, len(raws))
	undecodable := 0
	for _, raw := range raws {
		var rec R
		if err := json.Unmarshal(raw, &rec); err != nil {
			undecodable++
			continue
		}
		recs = append(recs, rec)
	}
	if undecodable == 0 {
		return recs, nil, nil
	}

	keys, err := p.Keys(ctx)
	if err != nil {
		return nil, nil, err
	}
	var corrupt []string
	for _, k := range keys {
		if _, _, err := p.get(ctx, k); IsKind(err, KindParse) {
			corrupt = append(corrupt, k)
		}
	}
	return recs, corrupt, nil
}

// evictionCandidates is the Candidates view handed to an eviction policy. Records
// that no longer decode are collected so the pass can remove them too.
type evictionCandidates[R Record] struct {
	partition[R]
	logger  zerolog.Logger
	corrupt []string
}

// Records implements Candidates.
func (e *evictionCandidates[R]) Records(ctx context.Context) ([]R, error) {
	recs, corrupt, err := e.partition.records(ctx)
	if err != nil {
		return nil, err
	}
	if len(corrupt) > 0 {
		e.logger.Warn().Strs("keys", corrupt).Msg("Undecodable records selected for eviction.")
	}
	e.corrupt = corrupt
	return recs, nil
}

func appendMissing(dst, src []string) []string {
	for _, k := range src {
		if !slices.Contains(dst, k) {
			dst = append(dst, k)
		}
	}
	return dst
}
