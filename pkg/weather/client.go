package weather

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/url"
	"strings"

	"github.com/illmade-knight/go-newtab/pkg/cacheaside"
	"github.com/illmade-knight/go-newtab/pkg/upstream"
	"github.com/rs/zerolog"
)

// DefaultBaseURL is the OpenWeatherMap v2.5 API root.
const DefaultBaseURL = "https://api.openweathermap.org/data/2.5"

const (
	defaultDescription = "No description"
	defaultIcon        = "01d"
)

// Weather is a rounded current-conditions snapshot.
type Weather struct {
	Temp        int    `json:"temp"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// ClientConfig holds configuration for the OpenWeatherMap client.
type ClientConfig struct {
	APIKey  string
	BaseURL string
}

// OpenWeatherClient fetches current weather by city name.
type OpenWeatherClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewOpenWeatherClient creates a client. A nil httpClient uses upstream.NewHTTPClient.
func NewOpenWeatherClient(cfg ClientConfig, httpClient *http.Client, logger zerolog.Logger) *OpenWeatherClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = upstream.NewHTTPClient()
	}
	return &OpenWeatherClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger.With().Str("component", "OpenWeatherClient").Logger(),
	}
}

type currentResponse struct {
	Main *struct {
		Temp *float64 `json:"temp"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
}

// Current returns the current weather for city in metric units.
func (c *OpenWeatherClient) Current(ctx context.Context, city string) (Weather, error) {
	if c.apiKey == "" {
		return Weather{}, cacheaside.Network("weather "+city, errors.New("OpenWeatherMap API key is missing"))
	}
	params := url.Values{}
	params.Set("q", city)
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")

	c.logger.Debug().Str("city", city).Msg("Fetching current weather.")
	var resp currentResponse
	if err := upstream.GetJSON(ctx, c.httpClient, "weather "+city, c.baseURL+"/weather?"+params.Encode(), nil, &resp); err != nil {
		return Weather{}, err
	}
	if resp.Main == nil || resp.Main.Temp == nil {
		return Weather{}, cacheaside.Parse("weather "+city, errors.New("response has no main.temp"))
	}

	w := Weather{
		Temp:        roundHalfUp(*resp.Main.Temp),
		Description: defaultDescription,
		Icon:        defaultIcon,
	}
	if len(resp.Weather) > 0 {
		if d := resp.Weather[0].Description; d != "" {
			w.Description = d
		}
		if i := resp.Weather[0].Icon; i != "" {
			w.Icon = i
		}
	}
	return w, nil
}

// roundHalfUp rounds to the nearest integer with halves going up, so -2.5 is -2.
func roundHalfUp(t float64) int {
	return int(math.Floor(t + 0.5))
}
