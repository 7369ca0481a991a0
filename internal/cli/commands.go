package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/illmade-knight/go-newtab/pkg/background"
	"github.com/illmade-knight/go-newtab/pkg/cacheaside"
	"github.com/illmade-knight/go-newtab/pkg/dashboard"
	"github.com/illmade-knight/go-newtab/pkg/microservice"
	"github.com/illmade-knight/go-newtab/pkg/store"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(backgroundCmd)
	rootCmd.AddCommand(weatherCmd)
	rootCmd.AddCommand(holidayCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(migrateCmd)

	serveCmd.Flags().String("port", "", "HTTP listen address (default from NEWTAB_HTTP_PORT)")
	serveCmd.Flags().Duration("shutdown-timeout", 15*time.Second, "Grace period for in-flight requests on shutdown")
	backgroundCmd.Flags().StringP("out", "o", "", "Write today's image bytes to this file")
	holidayCmd.Flags().String("date", "", "Date to check (YYYY-MM-DD) instead of today in the location's timezone")
}

// serveCmd runs the HTTP API until interrupted.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API over HTTP",
	Args:  cobra.NoArgs,
	RunE:  handleServe,
}

// backgroundCmd prints today's background.
var backgroundCmd = &cobra.Command{
	Use:   "background",
	Short: "Fetch or read today's background image",
	Args:  cobra.NoArgs,
	RunE:  handleBackground,
}

// weatherCmd prints current weather for one or more cities.
var weatherCmd = &cobra.Command{
	Use:   "weather <city>...",
	Short: "Show current weather for cities",
	Args:  cobra.MinimumNArgs(1),
	RunE:  handleWeather,
}

// holidayCmd prints today's holiday for a configured location.
var holidayCmd = &cobra.Command{
	Use:   "holiday <location-id>",
	Short: "Show today's public holiday for a configured location",
	Args:  cobra.ExactArgs(1),
	RunE:  handleHoliday,
}

// sweepCmd runs one eviction pass over every partition.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Evict expired entries from every cache partition",
	Args:  cobra.NoArgs,
	RunE:  handleSweep,
}

// migrateCmd opens the store, applying pending migrations.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending store migrations and report the schema version",
	Args:  cobra.NoArgs,
	RunE:  handleMigrate,
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withApp wires the app for one command and tears it down afterwards.
func withApp(cmd *cobra.Command, run func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	runErr := run(ctx, a)
	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Close(closeCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}

func handleServe(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		port, _ := cmd.Flags().GetString("port")
		if port == "" {
			port = a.cfg.HTTPPort
		}
		grace, _ := cmd.Flags().GetDuration("shutdown-timeout")

		d := dashboard.New(a.background, a.weather, a.holidays, a.catalog, a.logger)
		handles := background.NewHandles()
		defer handles.Close()

		server := microservice.NewBaseServer(a.logger, port)
		dashboard.NewHandlers(d, handles).Register(server.Mux())

		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		return microservice.Run(ctx, server, grace)
	})
}

func handleBackground(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		bg := a.background.Today(ctx)
		if out, _ := cmd.Flags().GetString("out"); out != "" && len(bg.Image) > 0 {
			if err := os.WriteFile(out, bg.Image, 0o644); err != nil {
				return fmt.Errorf("write image: %w", err)
			}
			a.logger.Info().Str("path", out).Int("bytes", len(bg.Image)).Msg("Wrote background image.")
		}
		return printJSON(cmd.OutOrStdout(), bg)
	})
}

func handleWeather(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		results := a.weather.ForCities(ctx, args)
		views := make([]dashboard.WeatherView, 0, len(args))
		seen := make(map[string]bool, len(args))
		for _, city := range args {
			if seen[city] {
				continue
			}
			seen[city] = true
			views = append(views, dashboard.NewWeatherView(city, results[city]))
		}
		return printJSON(cmd.OutOrStdout(), views)
	})
}

func handleHoliday(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		loc, ok := a.catalog.Lookup(args[0])
		if !ok {
			return fmt.Errorf("unknown location %q; configure it in NEWTAB_CLOCKS", args[0])
		}
		var res cacheaside.Result[string]
		if date, _ := cmd.Flags().GetString("date"); date != "" {
			res = a.holidays.ForDate(ctx, loc, date)
		} else {
			res = a.holidays.Today(ctx, loc)
		}
		return printJSON(cmd.OutOrStdout(), dashboard.NewHolidayView(loc.ID, res))
	})
}

type sweepReport struct {
	Partition store.Partition `json:"partition"`
	Evicted   []string        `json:"evicted"`
	Error     string          `json:"error,omitempty"`
}

func handleSweep(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		sweeps := []struct {
			partition store.Partition
			sweep     func(context.Context) ([]string, error)
		}{
			{store.PartitionImage, a.background.Sweep},
			{store.PartitionWeather, a.weather.Sweep},
			{store.PartitionHoliday, a.holidays.Sweep},
		}
		reports := make([]sweepReport, 0, len(sweeps))
		var failed bool
		for _, s := range sweeps {
			evicted, err := s.sweep(ctx)
			r := sweepReport{Partition: s.partition, Evicted: evicted}
			if err != nil {
				r.Error = err.Error()
				failed = true
			}
			if r.Evicted == nil {
				r.Evicted = []string{}
			}
			reports = append(reports, r)
		}
		if err := printJSON(cmd.OutOrStdout(), reports); err != nil {
			return err
		}
		if failed {
			return fmt.Errorf("one or more partitions failed to sweep")
		}
		return nil
	})
}

func handleMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, logger, st, err := openStore(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer st.Close()

	version, err := store.SchemaVersion(st)
	if err != nil {
		return err
	}
	logger.Info().Str("backend", cfg.StoreBackend).Int("schema_version", version).Msg("Store is migrated.")
	return printJSON(cmd.OutOrStdout(), map[string]any{
		"backend":       cfg.StoreBackend,
		"schemaVersion": version,
		"latestVersion": store.LatestVersion(store.Migrations),
	})
}
