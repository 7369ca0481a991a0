package dashboard_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/illmade-knight/go-newtab/pkg/background"
	"github.com/illmade-knight/go-newtab/pkg/cacheaside"
	"github.com/illmade-knight/go-newtab/pkg/dashboard"
	"github.com/illmade-knight/go-newtab/pkg/location"
	"github.com/illmade-knight/go-newtab/pkg/weather"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackground struct {
	mu sync.Mutex
	bg background.Background
}

func (f *fakeBackground) Today(context.Context) background.Background {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bg
}

func (f *fakeBackground) set(bg background.Background) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bg = bg
}

type fakeWeather struct {
	mu     sync.Mutex
	cities []string
}

func (f *fakeWeather) ForCity(_ context.Context, city string) cacheaside.Result[weather.Record] {
	f.mu.Lock()
	f.cities = append(f.cities, city)
	f.mu.Unlock()
	if city == "Atlantis" {
		return cacheaside.Unavailable[weather.Record](cacheaside.Network("weather Atlantis", errors.New("404")))
	}
	return cacheaside.Result[weather.Record]{
		Value:  weather.Record{City: city, Weather: weather.Weather{Temp: 18, Description: "clear sky", Icon: "01d"}, Timestamp: time.Date(2025, 10, 8, 9, 0, 0, 0, time.UTC)},
		Found:  true,
		Source: cacheaside.SourceCache,
	}
}

type fakeHolidays struct{}

func (fakeHolidays) Today(_ context.Context, loc location.Location) cacheaside.Result[string] {
	if loc.CountryCode == "DE" {
		return cacheaside.Result[string]{Value: "Tag der Deutschen Einheit", Found: true, Source: cacheaside.SourceCache}
	}
	return cacheaside.Result[string]{Source: cacheaside.SourceOrigin}
}

func (fakeHolidays) ForDate(_ context.Context, _ location.Location, date string) cacheaside.Result[string] {
	if date == "2025-12-25" {
		return cacheaside.Result[string]{Value: "Weihnachten", Found: true, Source: cacheaside.SourceCache}
	}
	return cacheaside.Result[string]{Source: cacheaside.SourceCache}
}

func setup(t *testing.T, bg background.Background) (*dashboard.Dashboard, *fakeWeather, *httptest.Server, *background.Handles) {
	t.Helper()
	return setupWith(t, &fakeBackground{bg: bg})
}

func setupWith(t *testing.T, fb *fakeBackground) (*dashboard.Dashboard, *fakeWeather, *httptest.Server, *background.Handles) {
	t.Helper()
	catalog, err := location.NewCatalog([]location.Location{
		{ID: "muc", Label: "Munich, Germany", TZ: "Europe/Berlin", CountryCode: "DE", Region: "DE-BY"},
		{ID: "atl", Label: "Atlantis, Ocean", TZ: "UTC", CountryCode: "XX"},
	})
	require.NoError(t, err)
	w := &fakeWeather{}
	d := dashboard.New(fb, w, fakeHolidays{}, catalog, zerolog.Nop())

	handles := background.NewHandles()
	mux := http.NewServeMux()
	dashboard.NewHandlers(d, handles).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return d, w, srv, handles
}

func imageBackground() background.Background {
	return background.Background{
		Date:        "2025-10-08",
		Attribution: &background.Attribution{Name: "Jane Doe"},
		Image:       []byte("JPEGDATA"),
		ContentType: "image/jpeg",
		Source:      "cache",
	}
}

func TestDashboard_Build(t *testing.T) {
	d, w, _, _ := setup(t, imageBackground())

	view := d.Build(context.Background())

	require.Len(t, view.Clocks, 2)
	assert.Equal(t, "2025-10-08", view.Background.Date)

	munich := view.Clocks[0]
	assert.Equal(t, "muc", munich.Location.ID)
	require.NotNil(t, munich.Weather.Weather)
	assert.Equal(t, 18, munich.Weather.Weather.Temp)
	assert.Equal(t, "Munich", munich.Weather.City)
	assert.True(t, munich.Holiday.IsHoliday)
	assert.Equal(t, "Tag der Deutschen Einheit", munich.Holiday.Name)

	atlantis := view.Clocks[1]
	assert.Nil(t, atlantis.Weather.Weather)
	assert.Equal(t, "unavailable", atlantis.Weather.Source)
	assert.NotEmpty(t, atlantis.Weather.Error)
	assert.False(t, atlantis.Holiday.IsHoliday)
	assert.Empty(t, atlantis.Holiday.Error, "an ordinary day is not an error")

	assert.ElementsMatch(t, []string{"Munich", "Atlantis"}, w.cities)
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHandlers_BackgroundImageLifecycle(t *testing.T) {
	fb := &fakeBackground{bg: imageBackground()}
	_, _, srv, handles := setupWith(t, fb)

	// --- The dashboard hands out an image URL ---
	var view struct {
		Background struct {
			ImageURL    string `json:"imageUrl"`
			Attribution struct {
				Name string `json:"name"`
			} `json:"attribution"`
		} `json:"background"`
		Clocks []json.RawMessage `json:"clocks"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/dashboard", &view))
	require.True(t, strings.HasPrefix(view.Background.ImageURL, dashboard.ImagePath))
	assert.Equal(t, "Jane Doe", view.Background.Attribution.Name)
	assert.Len(t, view.Clocks, 2)

	// --- The URL serves the bytes ---
	resp, err := http.Get(srv.URL + view.Background.ImageURL)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, []byte("JPEGDATA"), body)

	// --- A second tab loading the same day shares the handle ---
	var again struct {
		ImageURL string `json:"imageUrl"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/background", &again))
	assert.Equal(t, view.Background.ImageURL, again.ImageURL)
	assert.Equal(t, 1, handles.Len())

	// --- One tab closing leaves the image for the other ---
	release := func(url string) int {
		req, err := http.NewRequest(http.MethodDelete, srv.URL+url, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusNoContent, release(view.Background.ImageURL))
	resp, err = http.Get(srv.URL + again.ImageURL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// --- The next day's image supersedes the old handle ---
	next := imageBackground()
	next.Date = "2025-10-09"
	next.Image = []byte("NEXTDAY")
	fb.set(next)
	var tomorrow struct {
		ImageURL string `json:"imageUrl"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/background", &tomorrow))
	assert.NotEqual(t, again.ImageURL, tomorrow.ImageURL)
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+again.ImageURL, nil))
	assert.Equal(t, 1, handles.Len())

	// --- Explicit release ---
	assert.Equal(t, http.StatusNoContent, release(tomorrow.ImageURL))
	assert.Zero(t, handles.Len())
	assert.Equal(t, http.StatusNotFound, release(tomorrow.ImageURL))
}

func TestHandlers_FallbackBackgroundHasNoImageURL(t *testing.T) {
	_, _, srv, handles := setup(t, background.Background{Date: "2025-10-08", Fallback: true, FallbackURL: "wed.jpg", Source: "unavailable"})

	var bg map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/background", &bg))
	assert.Equal(t, true, bg["fallback"])
	assert.Equal(t, "wed.jpg", bg["fallbackUrl"])
	assert.NotContains(t, bg, "imageUrl")
	assert.Zero(t, handles.Len())
}

func TestHandlers_Weather(t *testing.T) {
	_, _, srv, _ := setup(t, imageBackground())

	var ok dashboard.WeatherView
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/weather?city=London", &ok))
	require.NotNil(t, ok.Weather)
	assert.Equal(t, "clear sky", ok.Weather.Description)

	var down dashboard.WeatherView
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv.URL+"/api/weather?city=Atlantis", &down))
	assert.NotEmpty(t, down.Error)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/weather", nil))
}

func TestHandlers_Holiday(t *testing.T) {
	_, _, srv, _ := setup(t, imageBackground())

	var today dashboard.HolidayView
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/holiday?location=muc", &today))
	assert.True(t, today.IsHoliday)

	var christmas dashboard.HolidayView
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/holiday?location=muc&date=2025-12-25", &christmas))
	assert.Equal(t, "Weihnachten", christmas.Name)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/holiday?location=nowhere", nil))
}
