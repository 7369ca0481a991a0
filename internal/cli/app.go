package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/illmade-knight/go-newtab/pkg/background"
	"github.com/illmade-knight/go-newtab/pkg/blobstore"
	"github.com/illmade-knight/go-newtab/pkg/cacheaside"
	"github.com/illmade-knight/go-newtab/pkg/config"
	"github.com/illmade-knight/go-newtab/pkg/events"
	"github.com/illmade-knight/go-newtab/pkg/holiday"
	"github.com/illmade-knight/go-newtab/pkg/location"
	"github.com/illmade-knight/go-newtab/pkg/store"
	"github.com/illmade-knight/go-newtab/pkg/telemetry"
	"github.com/illmade-knight/go-newtab/pkg/weather"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// app is the wired object graph shared by every command.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	store   store.Store
	catalog *location.Catalog

	background *background.Service
	weather    *weather.Service
	holidays   *holiday.Service

	closers []func(ctx context.Context) error
}

// loadConfig reads the environment and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if storeBackend != "" {
		cfg.StoreBackend = storeBackend
	}
	if storePath != "" {
		cfg.StorePath = storePath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	return cfg, cfg.Validate()
}

// openStore loads the configuration and opens only the store.
func openStore(ctx context.Context, logOut io.Writer) (*config.Config, zerolog.Logger, store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat, logOut)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	st, err := store.Open(ctx, cfg.Store(), logger)
	if err != nil {
		return nil, logger, nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	return cfg, logger, st, nil
}

// newApp opens the store and wires every service. Close must be called.
func newApp(ctx context.Context, logOut io.Writer) (*app, error) {
	cfg, logger, st, err := openStore(ctx, logOut)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, store: st, catalog: cfg.Catalog()}
	a.closers = append(a.closers, func(context.Context) error { return st.Close() })

	if err := a.wire(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) clientOptions() []option.ClientOption {
	if a.cfg.CredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(a.cfg.CredentialsFile)}
}

func (a *app) wire(ctx context.Context) error {
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: "newtab",
		Endpoint:    a.cfg.OTELEndpoint,
		Enabled:     a.cfg.OTELEnabled,
	})
	if err != nil {
		return fmt.Errorf("set up tracing: %w", err)
	}
	a.closers = append(a.closers, shutdownTracing)

	notifier := events.Multi{events.NewLogNotifier(a.logger)}
	if a.cfg.PubsubTopicID != "" {
		client, err := pubsub.NewClient(ctx, a.cfg.ProjectID, a.clientOptions()...)
		if err != nil {
			return fmt.Errorf("create pubsub client: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		publisher, err := events.NewPubsubNotifier(ctx, events.NewPubsubNotifierDefaults(a.cfg.PubsubTopicID), client, a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, publisher.Stop)
		notifier = append(notifier, publisher)
	}

	var blobs background.BlobStore
	if blobCfg, ok := a.cfg.Blobs(); ok {
		client, err := storage.NewClient(ctx, a.clientOptions()...)
		if err != nil {
			return fmt.Errorf("create storage client: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		gcs, err := blobstore.NewGCSBlobStore(blobstore.NewGCSClientAdapter(client), blobCfg, a.logger)
		if err != nil {
			return err
		}
		blobs = gcs
	}

	cacheOpts := []cacheaside.Option{
		cacheaside.WithNotifier(notifier),
		cacheaside.WithEvictionTimeout(a.cfg.EvictionTimeout),
	}

	picker := background.NewQueryPicker(a.catalog.Labels(), nil)
	unsplash := background.NewUnsplashClient(a.cfg.Unsplash(), nil, a.logger)
	if a.background, err = background.NewService(a.store, unsplash, picker, blobs, a.cfg.Background(), a.logger, cacheOpts...); err != nil {
		return err
	}
	a.closers = append(a.closers, func(context.Context) error { return a.background.Close() })

	openWeather := weather.NewOpenWeatherClient(a.cfg.OpenWeather(), nil, a.logger)
	if a.weather, err = weather.NewService(a.store, openWeather, a.logger, cacheOpts...); err != nil {
		return err
	}
	a.closers = append(a.closers, func(context.Context) error { return a.weather.Close() })

	nager := holiday.NewNagerClient(a.cfg.NagerURL(), nil, a.logger)
	if a.holidays, err = holiday.NewService(a.store, nager, a.logger, cacheOpts...); err != nil {
		return err
	}
	a.closers = append(a.closers, func(context.Context) error { return a.holidays.Close() })
	return nil
}

// Close releases everything in reverse order of acquisition, so services finish
// their background eviction before the store and clients close.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
