// Package background picks, caches and serves the new-tab page's image of the day.
package background

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/illmade-knight/go-newtab/pkg/cacheaside"
	"github.com/illmade-knight/go-newtab/pkg/location"
	"github.com/illmade-knight/go-newtab/pkg/store"
	"github.com/rs/zerolog"
)

// DefaultKeepDays is how many daily images are retained.
const DefaultKeepDays = 5

// Source fetches a new image for a search query.
type Source interface {
	FetchImage(ctx context.Context, query string) (ImageRecord, error)
}

// BlobStore holds image payloads outside the key-value store.
type BlobStore interface {
	Put(ctx context.Context, name string, data []byte, contentType string) error
	Get(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
}

// Config holds configuration for the background service.
type Config struct {
	// Timezone decides which calendar day "today" is. Empty means UTC.
	Timezone string
	// FallbackImages are static image URLs shown when no image can be produced.
	FallbackImages []string
	KeepDays       int
}

// Service serves one image per calendar day.
type Service struct {
	cache  *cacheaside.Cache[string, ImageRecord]
	config Config
	picker *QueryPicker
	blobs  BlobStore
	now    func() time.Time
	logger zerolog.Logger
}

// blobName is the blob store name of a day's image payload.
func blobName(date string) string {
	return "images/" + date
}

// NewService wires src and st into a cache-aside image service. blobs may be nil,
// in which case payloads are stored inline.
func NewService(st store.Store, src Source, picker *QueryPicker, blobs BlobStore, config Config, logger zerolog.Logger, opts ...cacheaside.Option) (*Service, error) {
	if config.Timezone == "" {
		config.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(config.Timezone); err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", config.Timezone, err)
	}
	if config.KeepDays <= 0 {
		config.KeepDays = DefaultKeepDays
	}
	if picker == nil {
		picker = NewQueryPicker(nil, nil)
	}

	s := &Service{
		config: config,
		picker: picker,
		blobs:  blobs,
		now:    cacheaside.ClockOf(opts...),
		logger: logger.With().Str("component", "BackgroundService").Logger(),
	}

	cacheOpts := cacheaside.Options[string, ImageRecord]{
		Partition: store.PartitionImage,
		Key:       func(date string) string { return date },
		Fresh:     cacheaside.Always[ImageRecord](),
		Evict:     cacheaside.KeepNewest[ImageRecord](config.KeepDays),
		Fetch: func(ctx context.Context, date string, now time.Time) (ImageRecord, error) {
			query := s.picker.Pick()
			s.logger.Info().Str("date", date).Str("query", query).Msg("Fetching new daily image.")
			rec, err := src.FetchImage(ctx, query)
			if err != nil {
				return ImageRecord{}, err
			}
			rec.ID = date
			rec.FetchedAt = now
			return rec, nil
		},
		AfterGet: s.restorePayload,
	}
	if blobs != nil {
		cacheOpts.BeforePut = s.offloadPayload
		cacheOpts.AfterEvict = s.deleteBlobs
	}

	cache, err := cacheaside.New(st, cacheOpts, logger, opts...)
	if err != nil {
		return nil, err
	}
	s.cache = cache
	return s, nil
}

func (s *Service) offloadPayload(ctx context.Context, rec ImageRecord) (ImageRecord, error) {
	if len(rec.Payload) == 0 {
		return rec, nil
	}
	name := blobName(rec.ID)
	if err := s.blobs.Put(ctx, name, rec.Payload, rec.ContentType); err != nil {
		return rec, err
	}
	rec.BlobRef = name
	rec.Payload = nil
	return rec, nil
}

func (s *Service) restorePayload(ctx context.Context, rec ImageRecord) (ImageRecord, error) {
	if rec.BlobRef == "" {
		return rec, nil
	}
	if s.blobs == nil {
		return rec, fmt.Errorf("record %s references blob %s but no blob store is configured", rec.ID, rec.BlobRef)
	}
	data, err := s.blobs.Get(ctx, rec.BlobRef)
	if err != nil {
		return rec, err
	}
	rec.Payload = data
	return rec, nil
}

func (s *Service) deleteBlobs(ctx context.Context, dates []string) error {
	var errs []error
	for _, date := range dates {
		if err := s.blobs.Delete(ctx, blobName(date)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Today returns today's background. It never fails: when no image can be produced
// the result is a static fallback chosen by weekday, with Err saying why.
func (s *Service) Today(ctx context.Context) Background {
	date, err := location.Today(s.config.Timezone, s.now())
	if err != nil {
		return s.fallback(s.now().UTC().Format(location.DateLayout), err)
	}

	res := s.cache.Get(ctx, date)
	if !res.Found {
		s.logger.Warn().Err(res.Err).Str("date", date).Msg("No daily image available, using fallback.")
		return s.fallback(date, res.Err)
	}

	attribution := res.Value.Attribution()
	return Background{
		Date:        date,
		Attribution: &attribution,
		Image:       res.Value.Payload,
		ContentType: res.Value.ContentType,
		Source:      res.Source.String(),
		Err:         res.Err,
	}
}

func (s *Service) fallback(date string, err error) Background {
	bg := Background{
		Date:     date,
		Fallback: true,
		Source:   cacheaside.SourceUnavailable.String(),
		Err:      err,
	}
	if n := len(s.config.FallbackImages); n > 0 {
		day, perr := time.Parse(location.DateLayout, date)
		if perr != nil {
			day = s.now()
		}
		bg.FallbackURL = s.config.FallbackImages[int(day.Weekday())%n]
	}
	return bg
}

// Sweep runs one eviction pass.
func (s *Service) Sweep(ctx context.Context) ([]string, error) {
	return s.cache.Evict(ctx)
}

// Close waits for background eviction.
func (s *Service) Close() error {
	return s.cache.Close()
}
