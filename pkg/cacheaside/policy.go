package cacheaside

import (
	"context"
	"sort"
	"time"
)

// Freshness decides whether a stored record may be served without refetching.
// Implementations must be pure.
type Freshness[R any] func(rec R, now time.Time) bool

// Always treats any stored record as fresh. Used when the key already encodes
// freshness, such as one image per calendar day.
func Always[R any]() Freshness[R] {
	return func(R, time.Time) bool { return true }
}

// MaxAge treats a record as fresh while now - stamp(rec) < maxAge.
func MaxAge[R any](maxAge time.Duration, stamp func(R) time.Time) Freshness[R] {
	return func(rec R, now time.Time) bool {
		return now.Sub(stamp(rec)) < maxAge
	}
}

// lastZone is the last timezone to reach a new calendar day (UTC-12).
var lastZone = time.FixedZone("AoE", -12*60*60)

// CalendarYear is the year that some place on Earth is still in at now. A year is
// only over once UTC-12 has left it, so records keyed by a location's local year
// stay current until every location has rolled over.
func CalendarYear(now time.Time) int {
	return now.In(lastZone).Year()
}

// YearAtLeast treats a record as fresh while its year is not before CalendarYear(now).
func YearAtLeast[R any](year func(R) int) Freshness[R] {
	return func(rec R, now time.Time) bool {
		return year(rec) >= CalendarYear(now)
	}
}

// Candidates exposes a partition to an eviction policy. Keys never decodes values,
// so key-only policies stay cheap on partitions holding large payloads.
type Candidates[R any] interface {
	Keys(ctx context.Context) ([]string, error)
	Records(ctx context.Context) ([]R, error)
}

// EvictionPolicy returns the keys to purge from a partition.
type EvictionPolicy[R any] func(ctx context.Context, c Candidates[R], now time.Time) ([]string, error)

// KeepNewest keeps the n greatest keys in ascending byte order and evicts the rest.
// For zero-padded YYYY-MM-DD keys this is the n most recent days.
func KeepNewest[R any](n int) EvictionPolicy[R] {
	return func(ctx context.Context, c Candidates[R], _ time.Time) ([]string, error) {
		keys, err := c.Keys(ctx)
		if err != nil {
			return nil, err
		}
		if len(keys) <= n {
			return nil, nil
		}
		sorted := append([]string(nil), keys...)
		sort.Strings(sorted)
		return sorted[:len(sorted)-n], nil
	}
}

// ExpireOlderThan evicts every record with now - stamp(rec) >= horizon.
func ExpireOlderThan[R Record](horizon time.Duration, stamp func(R) time.Time) EvictionPolicy[R] {
	return func(ctx context.Context, c Candidates[R], now time.Time) ([]string, error) {
		recs, err := c.Records(ctx)
		if err != nil {
			return nil, err
		}
		var victims []string
		for _, rec := range recs {
			if now.Sub(stamp(rec)) >= horizon {
				victims = append(victims, rec.Key())
			}
		}
		return victims, nil
	}
}

// ExpireBeforeYear evicts every record whose year is before CalendarYear(now).
func ExpireBeforeYear[R Record](year func(R) int) EvictionPolicy[R] {
	return func(ctx context.Context, c Candidates[R], now time.Time) ([]string, error) {
		recs, err := c.Records(ctx)
		if err != nil {
			return nil, err
		}
		var victims []string
		for _, rec := range recs {
			if year(rec) < CalendarYear(now) {
				victims = append(victims, rec.Key())
			}
		}
		return victims, nil
	}
}
