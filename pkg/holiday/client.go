package holiday

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/illmade-knight/go-newtab/pkg/upstream"
	"github.com/rs/zerolog"
)

// DefaultBaseURL is the Nager.Date v3 API root.
const DefaultBaseURL = "https://date.nager.at/api/v3"

// Holiday is one public holiday as published by Nager.Date.
type Holiday struct {
	Date        string `json:"date"`
	LocalName   string `json:"localName"`
	Name        string `json:"name"`
	CountryCode string `json:"countryCode"`
	Fixed       bool   `json:"fixed"`
	Global      bool   `json:"global"`
	// Counties lists the subdivisions observing the holiday; nil means nationwide.
	Counties   []string `json:"counties"`
	LaunchYear *int     `json:"launchYear"`
	Types      []string `json:"types"`
}

// AppliesTo reports whether the holiday is observed in region.
func (h Holiday) AppliesTo(region string) bool {
	if h.Counties == nil {
		return true
	}
	if region == "" {
		return false
	}
	for _, c := range h.Counties {
		if c == region {
			return true
		}
	}
	return false
}

// NagerClient fetches public holiday calendars.
type NagerClient struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewNagerClient creates a client. An empty baseURL uses DefaultBaseURL.
func NewNagerClient(baseURL string, httpClient *http.Client, logger zerolog.Logger) *NagerClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = upstream.NewHTTPClient()
	}
	return &NagerClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger.With().Str("component", "NagerClient").Logger(),
	}
}

// PublicHolidays returns every public holiday of countryCode in year.
func (c *NagerClient) PublicHolidays(ctx context.Context, year int, countryCode string) ([]Holiday, error) {
	op := fmt.Sprintf("holidays %s-%d", countryCode, year)
	c.logger.Debug().Str("country_code", countryCode).Int("year", year).Msg("Fetching public holidays.")

	var holidays []Holiday
	url := fmt.Sprintf("%s/PublicHolidays/%d/%s", c.baseURL, year, countryCode)
	if err := upstream.GetJSON(ctx, c.httpClient, op, url, nil, &holidays); err != nil {
		return nil, err
	}
	if holidays == nil {
		holidays = []Holiday{}
	}
	return holidays, nil
}
