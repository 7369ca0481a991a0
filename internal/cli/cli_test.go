package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Run("json output at the requested level", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := newLogger("warn", "json", &buf)
		require.NoError(t, err)

		logger.Info().Msg("hidden")
		logger.Warn().Msg("shown")

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "shown", line["message"])
		assert.Equal(t, "newtab", line["service"])
	})

	t.Run("empty level defaults to info", func(t *testing.T) {
		logger, err := newLogger("", "console", &bytes.Buffer{})
		require.NoError(t, err)
		assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
	})

	t.Run("rejects unknown values", func(t *testing.T) {
		_, err := newLogger("loud", "json", &bytes.Buffer{})
		assert.Error(t, err)
		_, err = newLogger("info", "xml", &bytes.Buffer{})
		assert.Error(t, err)
	})
}

// runCommand executes the root command with args and returns stdout.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		storeBackend, storePath, logLevel, logFormat = "", "", "", ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestWeatherCommand(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"main":{"temp":21.6},"weather":[{"description":"few clouds","icon":"02d"}]}`))
	}))
	t.Cleanup(upstream.Close)
	t.Setenv("NEWTAB_OPENWEATHER_API_KEY", "test")
	t.Setenv("NEWTAB_OPENWEATHER_BASE_URL", upstream.URL)
	t.Setenv("NEWTAB_OTEL_ENABLED", "false")

	out, err := runCommand(t, "weather", "London", "Paris", "London", "--store", "memory", "--log-format", "json", "--log-level", "error")
	require.NoError(t, err)

	var views []struct {
		City    string `json:"city"`
		Source  string `json:"source"`
		Weather struct {
			Temp int `json:"temp"`
		} `json:"weather"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "London", views[0].City)
	assert.Equal(t, 22, views[0].Weather.Temp)
	assert.Equal(t, "origin", views[1].Source)
}

func TestMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "newtab.db")

	out, err := runCommand(t, "migrate", "--store", "bbolt", "--store-path", path, "--log-level", "error")
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "bbolt", report["backend"])
	assert.Equal(t, report["latestVersion"], report["schemaVersion"])
}

func TestHolidayCommand_UnknownLocation(t *testing.T) {
	t.Setenv("NEWTAB_OTEL_ENABLED", "false")
	_, err := runCommand(t, "holiday", "nowhere", "--store", "memory", "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown location")
}
