package background

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/illmade-knight/go-newtab/pkg/cacheaside"
	"github.com/illmade-knight/go-newtab/pkg/upstream"
	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultBaseURL is the Unsplash API root.
const DefaultBaseURL = "https://api.unsplash.com"

// Photo is the subset of an Unsplash search hit that the new-tab page uses.
type Photo struct {
	ID             string `json:"id"`
	Description    string `json:"description"`
	AltDescription string `json:"alt_description"`
	URLs           struct {
		Full string `json:"full"`
	} `json:"urls"`
	User struct {
		Name  string `json:"name"`
		Links struct {
			HTML string `json:"html"`
		} `json:"links"`
	} `json:"user"`
	Links struct {
		HTML string `json:"html"`
	} `json:"links"`
}

// PhotoLocation is where a photo was taken, when the photographer recorded it.
type PhotoLocation struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

// UnsplashConfig holds configuration for the Unsplash client.
type UnsplashConfig struct {
	AccessKey string
	BaseURL   string
}

// UnsplashClient searches Unsplash and downloads photos.
type UnsplashClient struct {
	accessKey  string
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewUnsplashClient creates a client. A nil httpClient uses upstream.NewHTTPClient.
func NewUnsplashClient(cfg UnsplashConfig, httpClient *http.Client, logger zerolog.Logger) *UnsplashClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = upstream.NewHTTPClient()
	}
	return &UnsplashClient{
		accessKey:  cfg.AccessKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger.With().Str("component", "UnsplashClient").Logger(),
	}
}

func (c *UnsplashClient) authHeader() http.Header {
	return http.Header{"Authorization": {"Client-ID " + c.accessKey}}
}

// Search returns the top landscape photo for query.
func (c *UnsplashClient) Search(ctx context.Context, query string) (Photo, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", "1")
	params.Set("orientation", "landscape")

	var resp struct {
		Results []Photo `json:"results"`
	}
	if err := upstream.GetJSON(ctx, c.httpClient, "search "+query, c.baseURL+"/search/photos?"+params.Encode(), c.authHeader(), &resp); err != nil {
		return Photo{}, err
	}
	if len(resp.Results) == 0 {
		return Photo{}, cacheaside.Empty("search "+query, nil)
	}
	return resp.Results[0], nil
}

// Details returns the recorded location of a photo.
func (c *UnsplashClient) Details(ctx context.Context, id string) (PhotoLocation, error) {
	var resp struct {
		Location PhotoLocation `json:"location"`
	}
	if err := upstream.GetJSON(ctx, c.httpClient, "photo "+id, c.baseURL+"/photos/"+url.PathEscape(id), c.authHeader(), &resp); err != nil {
		return PhotoLocation{}, err
	}
	return resp.Location, nil
}

// Download fetches the image bytes and their content type.
func (c *UnsplashClient) Download(ctx context.Context, imageURL string) ([]byte, string, error) {
	return upstream.Get(ctx, c.httpClient, "download image", imageURL, nil)
}

// FetchImage runs search, details and download for query. Only search and
// download failures are fatal: without details the location falls back to the
// query itself.
func (c *UnsplashClient) FetchImage(ctx context.Context, query string) (ImageRecord, error) {
	if c.accessKey == "" {
		return ImageRecord{}, cacheaside.Network("search "+query, errors.New("Unsplash access key is missing"))
	}

	photo, err := c.Search(ctx, query)
	if err != nil {
		return ImageRecord{}, err
	}

	loc, err := c.Details(ctx, photo.ID)
	if err != nil {
		c.logger.Warn().Err(err).Str("photo_id", photo.ID).Msg("Could not fetch photo location.")
	}
	if loc.City == "" {
		loc = PhotoLocation{City: capitalize(query)}
	}

	payload, contentType, err := c.Download(ctx, photo.URLs.Full)
	if err != nil {
		return ImageRecord{}, err
	}

	description := photo.Description
	if description == "" {
		description = photo.AltDescription
	}
	return ImageRecord{
		Payload:         payload,
		ContentType:     contentType,
		AuthorName:      photo.User.Name,
		AuthorURL:       photo.User.Links.HTML,
		Description:     description,
		SourceURL:       photo.Links.HTML,
		LocationCity:    loc.City,
		LocationCountry: loc.Country,
	}, nil
}

var upper = cases.Upper(language.Und)

// capitalize upper-cases the first letter of s and leaves the rest unchanged.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return upper.String(string(r)) + s[size:]
}
