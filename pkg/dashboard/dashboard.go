// Package dashboard assembles everything the new-tab page shows (the daily
// background plus weather and holiday per clock) and serves it over HTTP.
package dashboard

import (
	"context"
	"time"

	"github.com/illmade-knight/go-newtab/pkg/background"
	"github.com/illmade-knight/go-newtab/pkg/cacheaside"
	"github.com/illmade-knight/go-newtab/pkg/location"
	"github.com/illmade-knight/go-newtab/pkg/weather"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// BackgroundService produces today's background.
type BackgroundService interface {
	Today(ctx context.Context) background.Background
}

// WeatherService looks up weather per city.
type WeatherService interface {
	ForCity(ctx context.Context, city string) cacheaside.Result[weather.Record]
}

// HolidayService looks up holidays per location.
type HolidayService interface {
	Today(ctx context.Context, loc location.Location) cacheaside.Result[string]
	ForDate(ctx context.Context, loc location.Location, date string) cacheaside.Result[string]
}

// WeatherView is one city's weather as shown on the page.
type WeatherView struct {
	City      string           `json:"city"`
	Weather   *weather.Weather `json:"weather,omitempty"`
	UpdatedAt *time.Time       `json:"updatedAt,omitempty"`
	Source    string           `json:"source"`
	Error     string           `json:"error,omitempty"`
}

// HolidayView is one location's holiday as shown on the page.
type HolidayView struct {
	LocationID string `json:"locationId"`
	Name       string `json:"name,omitempty"`
	IsHoliday  bool   `json:"isHoliday"`
	Source     string `json:"source"`
	Error      string `json:"error,omitempty"`
}

// ClockView is one configured clock with its weather and holiday.
type ClockView struct {
	Location location.Location `json:"location"`
	Weather  WeatherView       `json:"weather"`
	Holiday  HolidayView       `json:"holiday"`
}

// View is the whole page.
type View struct {
	Background background.Background `json:"background"`
	Clocks     []ClockView           `json:"clocks"`
}

// Dashboard builds page views from the three services.
type Dashboard struct {
	background BackgroundService
	weather    WeatherService
	holidays   HolidayService
	catalog    *location.Catalog
	logger     zerolog.Logger
}

// New creates a Dashboard over the configured clocks.
func New(bg BackgroundService, w WeatherService, h HolidayService, catalog *location.Catalog, logger zerolog.Logger) *Dashboard {
	return &Dashboard{
		background: bg,
		weather:    w,
		holidays:   h,
		catalog:    catalog,
		logger:     logger.With().Str("component", "Dashboard").Logger(),
	}
}

// Build gathers every part of the page concurrently. Each part degrades on its
// own; Build itself never fails.
func (d *Dashboard) Build(ctx context.Context) View {
	clocks := d.catalog.All()
	view := View{Clocks: make([]ClockView, len(clocks))}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		view.Background = d.background.Today(gctx)
		return nil
	})
	for i, loc := range clocks {
		g.Go(func() error {
			view.Clocks[i] = ClockView{
				Location: loc,
				Weather:  NewWeatherView(loc.City(), d.weather.ForCity(gctx, loc.City())),
				Holiday:  NewHolidayView(loc.ID, d.holidays.Today(gctx, loc)),
			}
			return nil
		})
	}
	_ = g.Wait()

	d.logger.Debug().Int("clocks", len(clocks)).Str("background_source", view.Background.Source).Msg("Built dashboard.")
	return view
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// NewWeatherView renders a weather lookup for the page.
func NewWeatherView(city string, res cacheaside.Result[weather.Record]) WeatherView {
	v := WeatherView{City: city, Source: res.Source.String(), Error: errString(res.Err)}
	if res.Found {
		w := res.Value.Weather
		ts := res.Value.Timestamp
		v.Weather = &w
		v.UpdatedAt = &ts
	}
	return v
}

// NewHolidayView renders a holiday lookup for the page.
func NewHolidayView(locationID string, res cacheaside.Result[string]) HolidayView {
	return HolidayView{
		LocationID: locationID,
		Name:       res.Value,
		IsHoliday:  res.Found,
		Source:     res.Source.String(),
		Error:      errString(res.Err),
	}
}
