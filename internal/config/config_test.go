package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "/dev/swradio0", cfg.Device.Path)
	assert.Equal(t, 1000000, cfg.Device.SampleRate)
	assert.Equal(t, RegionEurope, cfg.Region)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesFieldsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hvylya.yaml")
	contents := `
device:
  path: /dev/swradio1
  sample_rate: 2000000
region: us
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/swradio1", cfg.Device.Path)
	assert.Equal(t, 2000000, cfg.Device.SampleRate)
	assert.Equal(t, RegionUS, cfg.Region)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Fields the file didn't mention keep their built-in default.
	assert.Equal(t, 100, cfg.Audio.LatencyMs)
}

func TestRegionDeemphasisTau(t *testing.T) {
	assert.InDelta(t, 50e-6, RegionEurope.DeemphasisTau(), 1e-9)
	assert.InDelta(t, 75e-6, RegionUS.DeemphasisTau(), 1e-9)
	assert.InDelta(t, 50e-6, Region("bogus").DeemphasisTau(), 1e-9)
}
