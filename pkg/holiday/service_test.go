package holiday_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/illmade-knight/go-newtab/pkg/cacheaside"
	"github.com/illmade-knight/go-newtab/pkg/holiday"
	"github.com/illmade-knight/go-newtab/pkg/location"
	"github.com/illmade-knight/go-newtab/pkg/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSource struct {
	mu    sync.Mutex
	calls []string
	Func  func(year int, cc string) ([]holiday.Holiday, error)
}

func (m *mockSource) PublicHolidays(_ context.Context, year int, cc string) ([]holiday.Holiday, error) {
	m.mu.Lock()
	m.calls = append(m.calls, cc)
	m.mu.Unlock()
	return m.Func(year, cc)
}

func (m *mockSource) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

var germany2025 = []holiday.Holiday{
	{Date: "2025-01-01", LocalName: "Neujahr", CountryCode: "DE"},
	{Date: "2025-01-06", LocalName: "Heilige Drei Könige", CountryCode: "DE", Counties: []string{"DE-BW", "DE-BY", "DE-ST"}},
	{Date: "2025-10-03", LocalName: "Tag der Deutschen Einheit", CountryCode: "DE"},
}

var (
	munich = location.Location{ID: "muc", Label: "Munich, Germany", TZ: "Europe/Berlin", CountryCode: "DE", Region: "DE-BY"}
	berlin = location.Location{ID: "ber", Label: "Berlin, Germany", TZ: "Europe/Berlin", CountryCode: "DE", Region: "DE-BE"}
)

func newService(t *testing.T, src *mockSource, now time.Time) (*holiday.Service, store.Store) {
	t.Helper()
	st := store.NewInMemoryStore()
	svc, err := holiday.NewService(st, src, zerolog.Nop(), cacheaside.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, st
}

func germanySource() *mockSource {
	return &mockSource{Func: func(year int, cc string) ([]holiday.Holiday, error) {
		if cc == "DE" && year == 2025 {
			return germany2025, nil
		}
		return []holiday.Holiday{}, nil
	}}
}

func TestService_ForDate(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)

	testCases := []struct {
		name      string
		loc       location.Location
		date      string
		wantName  string
		wantFound bool
	}{
		{name: "national holiday", loc: berlin, date: "2025-10-03", wantName: "Tag der Deutschen Einheit", wantFound: true},
		{name: "regional holiday in region", loc: munich, date: "2025-01-06", wantName: "Heilige Drei Könige", wantFound: true},
		{name: "regional holiday elsewhere", loc: berlin, date: "2025-01-06", wantFound: false},
		{name: "ordinary day", loc: munich, date: "2025-03-12", wantFound: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _ := newService(t, germanySource(), now)

			res := svc.ForDate(ctx, tc.loc, tc.date)

			assert.NoError(t, res.Err)
			assert.NotEqual(t, cacheaside.SourceUnavailable, res.Source, "a non-holiday is not a failure")
			assert.Equal(t, tc.wantFound, res.Found)
			assert.Equal(t, tc.wantName, res.Value)
		})
	}
}

func TestService_OneFetchPerCountryYear(t *testing.T) {
	ctx := context.Background()
	src := germanySource()
	svc, st := newService(t, src, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))

	svc.ForDate(ctx, munich, "2025-01-06")
	svc.ForDate(ctx, berlin, "2025-10-03")
	svc.ForDate(ctx, munich, "2025-12-25")

	assert.Equal(t, 1, src.count())
	keys, err := st.GetAllKeys(ctx, store.PartitionHoliday)
	require.NoError(t, err)
	assert.Equal(t, []string{"DE-2025"}, keys)
}

func TestService_EmptyCalendarIsCached(t *testing.T) {
	ctx := context.Background()
	src := &mockSource{Func: func(int, string) ([]holiday.Holiday, error) { return []holiday.Holiday{}, nil }}
	svc, _ := newService(t, src, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	nowhere := location.Location{ID: "x", TZ: "UTC", CountryCode: "XX"}

	first := svc.ForDate(ctx, nowhere, "2025-05-01")
	second := svc.ForDate(ctx, nowhere, "2025-05-01")

	assert.False(t, first.Found)
	assert.Equal(t, cacheaside.SourceCache, second.Source)
	assert.Equal(t, 1, src.count())
}

func TestService_FailureIsDistinctFromNoHoliday(t *testing.T) {
	ctx := context.Background()
	src := &mockSource{Func: func(int, string) ([]holiday.Holiday, error) {
		return nil, cacheaside.Network("holidays DE-2025", errors.New("503"))
	}}
	svc, st := newService(t, src, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))

	res := svc.ForDate(ctx, munich, "2025-10-03")

	assert.False(t, res.Found)
	assert.Equal(t, cacheaside.SourceUnavailable, res.Source)
	assert.True(t, cacheaside.IsKind(res.Err, cacheaside.KindNetwork))
	keys, _ := st.GetAllKeys(ctx, store.PartitionHoliday)
	assert.Empty(t, keys, "nothing cached on failure")
}

func TestService_TodayUsesLocationTimezone(t *testing.T) {
	ctx := context.Background()
	// 23:30 UTC on 2 October is already 3 October in Berlin.
	now := time.Date(2025, 10, 2, 23, 30, 0, 0, time.UTC)
	svc, _ := newService(t, germanySource(), now)

	res := svc.Today(ctx, berlin)
	require.True(t, res.Found)
	assert.Equal(t, "Tag der Deutschen Einheit", res.Value)

	utc := berlin
	utc.TZ = "UTC"
	assert.False(t, svc.Today(ctx, utc).Found)
}

func TestService_InvalidInput(t *testing.T) {
	ctx := context.Background()
	src := germanySource()
	svc, _ := newService(t, src, time.Now())

	assert.Equal(t, cacheaside.SourceUnavailable, svc.ForDate(ctx, location.Location{ID: "nocc", TZ: "UTC"}, "2025-01-01").Source)
	assert.Equal(t, cacheaside.SourceUnavailable, svc.ForDate(ctx, munich, "01/01/2025").Source)
	assert.Equal(t, cacheaside.SourceUnavailable, svc.Today(ctx, location.Location{CountryCode: "DE", TZ: "Nope/Zone"}).Source)
	assert.Zero(t, src.count())
}

func TestService_EvictsPastYears(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	src := germanySource()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	svc, err := holiday.NewService(st, src, zerolog.Nop(), cacheaside.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	svc.ForDate(ctx, berlin, "2024-06-01")
	require.NoError(t, svc.Close())

	now = time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	svc, err = holiday.NewService(st, src, zerolog.Nop(), cacheaside.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	svc.ForDate(ctx, berlin, "2025-01-02")
	require.NoError(t, svc.Close())

	keys, err := st.GetAllKeys(ctx, store.PartitionHoliday)
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"DE-2025"}, keys)
}

func TestService_NewYearsEveBehindUTC(t *testing.T) {
	ctx := context.Background()
	// 02:00 UTC on 1 January 2026 is 18:00 on 31 December 2025 in Los Angeles.
	now := time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC)
	la := location.Location{ID: "lax", Label: "Los Angeles, USA", TZ: "America/Los_Angeles", CountryCode: "US", Region: "US-CA"}
	fail := false
	src := &mockSource{Func: func(year int, cc string) ([]holiday.Holiday, error) {
		if fail {
			return nil, cacheaside.Network("holidays", errors.New("503"))
		}
		return []holiday.Holiday{{Date: "2025-12-25", LocalName: "Christmas Day", CountryCode: "US"}}, nil
	}}
	svc, st := newService(t, src, now)

	for i := 0; i < 3; i++ {
		res := svc.Today(ctx, la)
		require.NoError(t, res.Err)
		assert.False(t, res.Found)
	}
	require.NoError(t, svc.Close())

	assert.Equal(t, 1, src.count(), "last year's calendar stays fresh until every zone has rolled over")
	keys, err := st.GetAllKeys(ctx, store.PartitionHoliday)
	require.NoError(t, err)
	assert.Equal(t, []string{"US-2025"}, keys)

	fail = true
	res := svc.ForDate(ctx, la, "2025-12-25")
	require.True(t, res.Found)
	assert.Equal(t, cacheaside.SourceCache, res.Source)
	assert.Equal(t, "Christmas Day", res.Value)
}
