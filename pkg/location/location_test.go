package location_test

import (
	"testing"
	"time"

	"github.com/illmade-knight/go-newtab/pkg/location"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocation_City(t *testing.T) {
	assert.Equal(t, "Wellington", location.Location{Label: "Wellington, New Zealand"}.City())
	assert.Equal(t, "Tokyo", location.Location{Label: "Tokyo"}.City())
	assert.Equal(t, "", location.Location{}.City())
}

func TestToday(t *testing.T) {
	// 2025-12-31 20:00 UTC is already New Year's Day in Auckland.
	now := time.Date(2025, 12, 31, 20, 0, 0, 0, time.UTC)

	testCases := []struct {
		tz   string
		want string
	}{
		{tz: "UTC", want: "2025-12-31"},
		{tz: "Pacific/Auckland", want: "2026-01-01"},
		{tz: "America/La_Paz", want: "2025-12-31"},
	}
	for _, tc := range testCases {
		t.Run(tc.tz, func(t *testing.T) {
			got, err := location.Today(tc.tz, now)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := location.Today("Mars/Olympus_Mons", now)
	assert.Error(t, err)
}

func TestCatalog(t *testing.T) {
	locs := []location.Location{
		{ID: "wlg", Label: "Wellington, New Zealand", TZ: "Pacific/Auckland", CountryCode: "NZ"},
		{ID: "muc", Label: "Munich, Germany", TZ: "Europe/Berlin", CountryCode: "DE", Region: "DE-BY"},
	}

	t.Run("Lookup and order", func(t *testing.T) {
		c, err := location.NewCatalog(locs)
		require.NoError(t, err)

		got, ok := c.Lookup("muc")
		require.True(t, ok)
		assert.Equal(t, "DE-BY", got.Region)
		_, ok = c.Lookup("nope")
		assert.False(t, ok)

		assert.Equal(t, 2, c.Len())
		assert.Equal(t, []string{"Wellington, New Zealand", "Munich, Germany"}, c.Labels())
	})

	t.Run("Rejects invalid entries", func(t *testing.T) {
		_, err := location.NewCatalog(append(locs, locs[0]))
		assert.ErrorContains(t, err, "duplicate")

		_, err = location.NewCatalog([]location.Location{{ID: "x", TZ: "Not/AZone"}})
		assert.ErrorContains(t, err, "unknown timezone")

		_, err = location.NewCatalog([]location.Location{{Label: "Nameless", TZ: "UTC"}})
		assert.ErrorContains(t, err, "no id")
	})
}
