// Package holiday answers "is today a public holiday here?" from yearly calendars
// cached per country.
package holiday

import (
	"context"
	"fmt"
	"time"

	"github.com/illmade-knight/go-newtab/pkg/cacheaside"
	"github.com/illmade-knight/go-newtab/pkg/location"
	"github.com/illmade-knight/go-newtab/pkg/store"
	"github.com/rs/zerolog"
)

// YearRecord is one country's calendar for one year, keyed "CC-YYYY".
type YearRecord struct {
	ID          string    `json:"id"`
	CountryCode string    `json:"countryCode"`
	Year        int       `json:"year"`
	Holidays    []Holiday `json:"holidays"`
	Timestamp   time.Time `json:"timestamp"`
}

func (r YearRecord) Key() string { return r.ID }

// Source fetches a country's holidays for a year.
type Source interface {
	PublicHolidays(ctx context.Context, year int, countryCode string) ([]Holiday, error)
}

type yearRequest struct {
	CountryCode string
	Year        int
}

func recordID(countryCode string, year int) string {
	return fmt.Sprintf("%s-%d", countryCode, year)
}

// Service resolves today's holiday for a location.
type Service struct {
	cache  *cacheaside.Cache[yearRequest, YearRecord]
	now    func() time.Time
	logger zerolog.Logger
}

// NewService wires src and st into a cache-aside holiday service.
func NewService(st store.Store, src Source, logger zerolog.Logger, opts ...cacheaside.Option) (*Service, error) {
	year := func(r YearRecord) int { return r.Year }
	cache, err := cacheaside.New(st, cacheaside.Options[yearRequest, YearRecord]{
		Partition: store.PartitionHoliday,
		Key:       func(req yearRequest) string { return recordID(req.CountryCode, req.Year) },
		Fresh:     cacheaside.YearAtLeast(year),
		Evict:     cacheaside.ExpireBeforeYear(year),
		Fetch: func(ctx context.Context, req yearRequest, now time.Time) (YearRecord, error) {
			holidays, err := src.PublicHolidays(ctx, req.Year, req.CountryCode)
			if err != nil {
				return YearRecord{}, err
			}
			return YearRecord{
				ID:          recordID(req.CountryCode, req.Year),
				CountryCode: req.CountryCode,
				Year:        req.Year,
				Holidays:    holidays,
				Timestamp:   now,
			}, nil
		},
	}, logger, opts...)
	if err != nil {
		return nil, err
	}
	return &Service{
		cache:  cache,
		now:    cacheaside.ClockOf(opts...),
		logger: logger.With().Str("component", "HolidayService").Logger(),
	}, nil
}

// Today returns the local name of today's holiday at loc, where today is the
// calendar date in loc's timezone. Found is false on an ordinary day.
func (s *Service) Today(ctx context.Context, loc location.Location) cacheaside.Result[string] {
	date, err := location.Today(loc.TZ, s.now())
	if err != nil {
		return cacheaside.Unavailable[string](err)
	}
	return s.ForDate(ctx, loc, date)
}

// ForDate is Today for an explicit YYYY-MM-DD date.
func (s *Service) ForDate(ctx context.Context, loc location.Location, date string) cacheaside.Result[string] {
	if loc.CountryCode == "" {
		return cacheaside.Unavailable[string](fmt.Errorf("location %q has no country code", loc.ID))
	}
	day, err := time.Parse(location.DateLayout, date)
	if err != nil {
		return cacheaside.Unavailable[string](fmt.Errorf("invalid date %q: %w", date, err))
	}

	res := s.cache.Get(ctx, yearRequest{CountryCode: loc.CountryCode, Year: day.Year()})
	return cacheaside.Map(res, func(rec YearRecord) (string, bool) {
		return match(rec.Holidays, date, loc.Region)
	})
}

// match returns the local name of the first holiday on date observed in region.
func match(holidays []Holiday, date, region string) (string, bool) {
	for _, h := range holidays {
		if h.Date == date && h.AppliesTo(region) {
			return h.LocalName, true
		}
	}
	return "", false
}

// Sweep runs one eviction pass.
func (s *Service) Sweep(ctx context.Context) ([]string, error) {
	return s.cache.Evict(ctx)
}

// Close waits for background eviction.
func (s *Service) Close() error {
	return s.cache.Close()
}
