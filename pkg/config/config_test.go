package config_test

import (
	"testing"
	"time"

	"github.com/illmade-knight/go-newtab/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.HTTPPort)
	assert.Equal(t, "bbolt", cfg.StoreBackend)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, 5, cfg.KeepImages)
	assert.Equal(t, 30*time.Second, cfg.EvictionTimeout)
	assert.Empty(t, cfg.Clocks)
	assert.True(t, cfg.OTELEnabled)

	_, ok := cfg.Blobs()
	assert.False(t, ok)
	assert.Equal(t, "https://date.nager.at/api/v3", cfg.NagerURL())
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{
		"NEWTAB_STORE_BACKEND":    "sqlite",
		"NEWTAB_STORE_PATH":       "/tmp/newtab.sqlite",
		"NEWTAB_TIMEZONE":         "Pacific/Auckland",
		"NEWTAB_FALLBACK_IMAGES":  "a.jpg,b.jpg",
		"NEWTAB_EVICTION_TIMEOUT": "5s",
		"NEWTAB_GCS_BUCKET":       "newtab-images",
		"NEWTAB_CLOCKS":           `[{"id":"wlg","label":"Wellington, New Zealand","tz":"Pacific/Auckland","countryCode":"NZ"},{"id":"muc","label":"Munich, Germany","tz":"Europe/Berlin","countryCode":"DE","region":"DE-BY"}]`,
	})
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store().Backend)
	assert.Equal(t, "/tmp/newtab.sqlite", cfg.Store().Path)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, cfg.Background().FallbackImages)
	assert.Equal(t, 5*time.Second, cfg.EvictionTimeout)

	blobs, ok := cfg.Blobs()
	require.True(t, ok)
	assert.Equal(t, "newtab-images", blobs.BucketName)

	catalog := cfg.Catalog()
	require.Equal(t, 2, catalog.Len())
	muc, found := catalog.Lookup("muc")
	require.True(t, found)
	assert.Equal(t, "DE-BY", muc.Region)
}

func TestLoadFrom_FirestoreWithBucket(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{
		"NEWTAB_STORE_BACKEND": "firestore",
		"NEWTAB_PROJECT_ID":    "newtab",
		"NEWTAB_GCS_BUCKET":    "newtab-images",
	})
	require.NoError(t, err)

	assert.Equal(t, "firestore", cfg.Store().Backend)
	_, ok := cfg.Blobs()
	assert.True(t, ok)
}

func TestLoadFrom_Invalid(t *testing.T) {
	testCases := []struct {
		name    string
		environ map[string]string
		wantErr string
	}{
		{name: "bad timezone", environ: map[string]string{"NEWTAB_TIMEZONE": "Atlantis/Capital"}, wantErr: "invalid timezone"},
		{name: "clocks not JSON", environ: map[string]string{"NEWTAB_CLOCKS": "Wellington"}, wantErr: "JSON array"},
		{name: "clock with bad timezone", environ: map[string]string{"NEWTAB_CLOCKS": `[{"id":"x","tz":"Nope/Zone"}]`}, wantErr: "invalid clocks"},
		{name: "non-positive image bound", environ: map[string]string{"NEWTAB_KEEP_IMAGES": "0"}, wantErr: "keep images"},
		{name: "firestore without project", environ: map[string]string{"NEWTAB_STORE_BACKEND": "firestore"}, wantErr: "project id"},
		{name: "firestore without image bucket", environ: map[string]string{"NEWTAB_STORE_BACKEND": "firestore", "NEWTAB_PROJECT_ID": "newtab"}, wantErr: "gcs bucket"},
		{name: "bad duration", environ: map[string]string{"NEWTAB_EVICTION_TIMEOUT": "soon"}, wantErr: "parse env"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.LoadFrom(tc.environ)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
