package holiday_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/illmade-knight/go-newtab/pkg/cacheaside"
	"github.com/illmade-knight/go-newtab/pkg/holiday"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNagerClient_PublicHolidays(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name     string
		status   int
		body     string
		wantKind cacheaside.Kind
		wantLen  int
	}{
		{
			name:   "decodes holidays",
			status: http.StatusOK,
			body: `[{"date":"2025-10-03","localName":"Tag der Deutschen Einheit","name":"German Unity Day","countryCode":"DE","counties":null,"types":["Public"]},
			        {"date":"2025-11-01","localName":"Allerheiligen","name":"All Saints' Day","countryCode":"DE","counties":["DE-BW","DE-BY"],"launchYear":1990}]`,
			wantLen: 2,
		},
		{name: "empty calendar", status: http.StatusOK, body: `[]`, wantLen: 0},
		{name: "not a list", status: http.StatusOK, body: `{"oops":true}`, wantKind: cacheaside.KindParse},
		{name: "server error", status: http.StatusInternalServerError, body: `boom`, wantKind: cacheaside.KindNetwork},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/PublicHolidays/2025/DE", r.URL.Path)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			t.Cleanup(srv.Close)
			client := holiday.NewNagerClient(srv.URL, srv.Client(), zerolog.Nop())

			got, err := client.PublicHolidays(ctx, 2025, "DE")

			if tc.wantKind != cacheaside.KindUnknown {
				assert.Equal(t, tc.wantKind, cacheaside.KindOf(err))
				return
			}
			require.NoError(t, err)
			require.Len(t, got, tc.wantLen)
			if tc.wantLen == 2 {
				assert.Nil(t, got[0].Counties)
				assert.Equal(t, []string{"DE-BW", "DE-BY"}, got[1].Counties)
				require.NotNil(t, got[1].LaunchYear)
				assert.Equal(t, 1990, *got[1].LaunchYear)
			}
		})
	}
}

func TestHoliday_AppliesTo(t *testing.T) {
	national := holiday.Holiday{Counties: nil}
	regional := holiday.Holiday{Counties: []string{"DE-BY"}}

	assert.True(t, national.AppliesTo(""))
	assert.True(t, national.AppliesTo("DE-BE"))
	assert.True(t, regional.AppliesTo("DE-BY"))
	assert.False(t, regional.AppliesTo("DE-BE"))
	assert.False(t, regional.AppliesTo(""))
	assert.False(t, holiday.Holiday{Counties: []string{}}.AppliesTo(""))
}
