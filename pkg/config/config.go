// Package config loads the new-tab service configuration from NEWTAB_-prefixed
// environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/illmade-knight/go-newtab/pkg/background"
	"github.com/illmade-knight/go-newtab/pkg/blobstore"
	"github.com/illmade-knight/go-newtab/pkg/holiday"
	"github.com/illmade-knight/go-newtab/pkg/location"
	"github.com/illmade-knight/go-newtab/pkg/store"
	"github.com/illmade-knight/go-newtab/pkg/weather"
)

// Prefix is prepended to every environment variable name.
const Prefix = "NEWTAB_"

// Clocks is the JSON-encoded list of configured locations.
type Clocks []location.Location

// UnmarshalText decodes a JSON array of locations.
func (c *Clocks) UnmarshalText(text []byte) error {
	var locs []location.Location
	if err := json.Unmarshal(text, &locs); err != nil {
		return fmt.Errorf("clocks must be a JSON array of locations: %w", err)
	}
	*c = locs
	return nil
}

// Config is the full service configuration.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
	HTTPPort  string `env:"HTTP_PORT"  envDefault:":8080"`

	StoreBackend              string `env:"STORE_BACKEND"              envDefault:"bbolt"`
	StorePath                 string `env:"STORE_PATH"                 envDefault:"newtab.db"`
	RedisAddr                 string `env:"REDIS_ADDR"                 envDefault:"localhost:6379"`
	RedisPassword             string `env:"REDIS_PASSWORD"`
	RedisDB                   int    `env:"REDIS_DB"`
	RedisKeyPrefix            string `env:"REDIS_KEY_PREFIX"           envDefault:"newtab"`
	ProjectID                 string `env:"PROJECT_ID"`
	FirestoreCollectionPrefix string `env:"FIRESTORE_COLLECTION_PREFIX" envDefault:"newtab"`
	CredentialsFile           string `env:"CREDENTIALS_FILE"`

	UnsplashAccessKey  string `env:"UNSPLASH_ACCESS_KEY"`
	UnsplashBaseURL    string `env:"UNSPLASH_BASE_URL"`
	OpenWeatherAPIKey  string `env:"OPENWEATHER_API_KEY"`
	OpenWeatherBaseURL string `env:"OPENWEATHER_BASE_URL"`
	NagerBaseURL       string `env:"NAGER_BASE_URL"`

	Timezone        string        `env:"TIMEZONE"         envDefault:"UTC"`
	Clocks          Clocks        `env:"CLOCKS"`
	FallbackImages  []string      `env:"FALLBACK_IMAGES"  envSeparator:","`
	KeepImages      int           `env:"KEEP_IMAGES"      envDefault:"5"`
	EvictionTimeout time.Duration `env:"EVICTION_TIMEOUT" envDefault:"30s"`

	GCSBucket       string `env:"GCS_BUCKET"`
	GCSObjectPrefix string `env:"GCS_OBJECT_PREFIX" envDefault:"newtab"`
	PubsubTopicID   string `env:"PUBSUB_TOPIC_ID"`

	OTELEndpoint string `env:"OTEL_ENDPOINT"`
	OTELEnabled  bool   `env:"OTEL_ENABLED" envDefault:"true"`
}

// Load parses the configuration from the environment and validates it.
func Load() (*Config, error) {
	return LoadFrom(nil)
}

// LoadFrom parses the configuration from environ instead of the process
// environment when environ is non-nil.
func LoadFrom(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	opts := env.Options{Prefix: Prefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err))
	}
	if _, err := location.NewCatalog(c.Clocks); err != nil {
		errs = append(errs, fmt.Errorf("invalid clocks: %w", err))
	}
	if c.KeepImages <= 0 {
		errs = append(errs, errors.New("keep images must be positive"))
	}
	if c.StoreBackend == store.BackendFirestore {
		if c.ProjectID == "" {
			errs = append(errs, errors.New("project id is required for the firestore backend"))
		}
		// Firestore documents are capped at 1 MiB, so image payloads must live in GCS.
		if c.GCSBucket == "" {
			errs = append(errs, errors.New("gcs bucket is required for the firestore backend"))
		}
	}
	if c.PubsubTopicID != "" && c.ProjectID == "" {
		errs = append(errs, errors.New("project id is required for pubsub events"))
	}
	return errors.Join(errs...)
}

// Store returns the store backend configuration.
func (c *Config) Store() store.Config {
	return store.Config{
		Backend: c.StoreBackend,
		Path:    c.StorePath,
		Redis: store.RedisConfig{
			Addr:      c.RedisAddr,
			Password:  c.RedisPassword,
			DB:        c.RedisDB,
			KeyPrefix: c.RedisKeyPrefix,
		},
		Firestore: store.FirestoreConfig{
			ProjectID:        c.ProjectID,
			CollectionPrefix: c.FirestoreCollectionPrefix,
		},
		CredentialsFile: c.CredentialsFile,
	}
}

// Catalog indexes the configured clocks. Load has already validated them.
func (c *Config) Catalog() *location.Catalog {
	catalog, err := location.NewCatalog(c.Clocks)
	if err != nil {
		catalog, _ = location.NewCatalog(nil)
	}
	return catalog
}

// Unsplash returns the Unsplash client configuration.
func (c *Config) Unsplash() background.UnsplashConfig {
	return background.UnsplashConfig{AccessKey: c.UnsplashAccessKey, BaseURL: c.UnsplashBaseURL}
}

// OpenWeather returns the OpenWeatherMap client configuration.
func (c *Config) OpenWeather() weather.ClientConfig {
	return weather.ClientConfig{APIKey: c.OpenWeatherAPIKey, BaseURL: c.OpenWeatherBaseURL}
}

// NagerURL returns the Nager.Date API root.
func (c *Config) NagerURL() string {
	if c.NagerBaseURL == "" {
		return holiday.DefaultBaseURL
	}
	return c.NagerBaseURL
}

// Background returns the background service configuration.
func (c *Config) Background() background.Config {
	return background.Config{
		Timezone:       c.Timezone,
		FallbackImages: c.FallbackImages,
		KeepDays:       c.KeepImages,
	}
}

// Blobs returns the blob store configuration. Ok is false when no bucket is set.
func (c *Config) Blobs() (blobstore.Config, bool) {
	return blobstore.Config{BucketName: c.GCSBucket, ObjectPrefix: c.GCSObjectPrefix}, c.GCSBucket != ""
}
