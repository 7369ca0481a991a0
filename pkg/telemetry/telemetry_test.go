package telemetry_test

import (
	"context"
	"testing"

	"github.com/illmade-knight/go-newtab/pkg/telemetry"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	testCases := []struct {
		name string
		cfg  telemetry.Config
	}{
		{name: "no-op without endpoint", cfg: telemetry.Config{ServiceName: "newtab", Enabled: true}},
		{name: "no-op when disabled", cfg: telemetry.Config{ServiceName: "newtab", Endpoint: "http://localhost:4318"}},
		// A non-routable address, so nothing is actually exported.
		{name: "provider with endpoint", cfg: telemetry.Config{ServiceName: "newtab", Endpoint: "http://192.0.2.1:4318", Enabled: true}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			shutdown, err := telemetry.Setup(context.Background(), tc.cfg)
			require.NoError(t, err)
			require.NoError(t, shutdown(context.Background()))
		})
	}
}
