// Package weather serves current weather per city through a cache-aside layer.
// Readings are fresh for three hours and kept for a day as a fallback.
package weather

import (
	"context"
	"sync"
	"time"

	"github.com/illmade-knight/go-newtab/pkg/cacheaside"
	"github.com/illmade-knight/go-newtab/pkg/store"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	// FreshFor is how long a reading is served without refetching.
	FreshFor = 3 * time.Hour
	// KeepFor is how long a reading is retained as a stale fallback.
	KeepFor = 24 * time.Hour
)

// Record is a stored reading, keyed by the city name as requested.
type Record struct {
	City      string    `json:"city"`
	Weather   Weather   `json:"weather"`
	Timestamp time.Time `json:"timestamp"`
}

func (r Record) Key() string { return r.City }

// Source fetches the current weather for a city.
type Source interface {
	Current(ctx context.Context, city string) (Weather, error)
}

// Service looks up weather per city.
type Service struct {
	cache  *cacheaside.Cache[string, Record]
	logger zerolog.Logger
}

// NewService wires src and st into a cache-aside weather service.
func NewService(st store.Store, src Source, logger zerolog.Logger, opts ...cacheaside.Option) (*Service, error) {
	stamp := func(r Record) time.Time { return r.Timestamp }
	cache, err := cacheaside.New(st, cacheaside.Options[string, Record]{
		Partition: store.PartitionWeather,
		Key:       func(city string) string { return city },
		Fresh:     cacheaside.MaxAge(FreshFor, stamp),
		Evict:     cacheaside.ExpireOlderThan(KeepFor, stamp),
		Fetch: func(ctx context.Context, city string, now time.Time) (Record, error) {
			w, err := src.Current(ctx, city)
			if err != nil {
				return Record{}, err
			}
			return Record{City: city, Weather: w, Timestamp: now}, nil
		},
		ServeStale: true,
	}, logger, opts...)
	if err != nil {
		return nil, err
	}
	return &Service{
		cache:  cache,
		logger: logger.With().Str("component", "WeatherService").Logger(),
	}, nil
}

// ForCity returns the weather for city.
func (s *Service) ForCity(ctx context.Context, city string) cacheaside.Result[Record] {
	return s.cache.Get(ctx, city)
}

// ForCities looks up each distinct city concurrently. Lookups are independent: one
// city failing never affects another, and every result carries its own outcome.
func (s *Service) ForCities(ctx context.Context, cities []string) map[string]cacheaside.Result[Record] {
	distinct := make(map[string]struct{}, len(cities))
	for _, city := range cities {
		distinct[city] = struct{}{}
	}

	var mu sync.Mutex
	out := make(map[string]cacheaside.Result[Record], len(distinct))
	g, gctx := errgroup.WithContext(ctx)
	for city := range distinct {
		g.Go(func() error {
			res := s.ForCity(gctx, city)
			mu.Lock()
			out[city] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Sweep runs one eviction pass.
func (s *Service) Sweep(ctx context.Context) ([]string, error) {
	return s.cache.Evict(ctx)
}

// Close waits for background eviction.
func (s *Service) Close() error {
	return s.cache.Close()
}
