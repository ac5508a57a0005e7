package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PoOnesNerfect/oofs/internal/capture"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "auto", cfg.Capture)
	assert.Equal(t, "development", cfg.Profile)
	assert.Equal(t, "github.com/PoOnesNerfect/oofs", cfg.RuntimeImport)
	assert.Contains(t, cfg.Exclude, "*_test.go")
}

func TestLoad(t *testing.T) {
	t.Setenv("OOFGEN_CAPTURE", "")
	t.Setenv("OOFGEN_PROFILE", "")

	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("file values override defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "oofgen.yaml")
		require.NoError(t, os.WriteFile(path, []byte("capture: disabled\nprofile: release\n"), 0644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "disabled", cfg.Capture)
		assert.Equal(t, "release", cfg.Profile)
		assert.Equal(t, "github.com/PoOnesNerfect/oofs", cfg.RuntimeImport, "untouched fields keep defaults")
	})

	t.Run("malformed yaml fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "oofgen.yaml")
		require.NoError(t, os.WriteFile(path, []byte("capture: [broken"), 0644))

		_, err := Load(path)
		assert.ErrorContains(t, err, "failed to parse config")
	})
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("OOFGEN_CAPTURE", "")
	t.Setenv("OOFGEN_PROFILE", "")
	t.Setenv("OOFGEN_RUNTIME_IMPORT", "")

	path := filepath.Join(t.TempDir(), "nested", "oofgen.yaml")
	cfg := DefaultConfig()
	cfg.Capture = "always"

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestCaptureConfig(t *testing.T) {
	cfg := &Config{Capture: "always", Profile: "release"}
	cc, err := cfg.CaptureConfig()
	require.NoError(t, err)
	assert.Equal(t, capture.Config{Mode: capture.Always, Profile: capture.Release}, cc)

	_, err = (&Config{Capture: "sometimes"}).CaptureConfig()
	assert.Error(t, err)

	_, err = (&Config{Capture: "auto", Profile: "prod"}).CaptureConfig()
	assert.Error(t, err)
}

func TestExcluded(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.Excluded("pkg/store/store_test.go"))
	assert.True(t, cfg.Excluded("api.gen.go"))
	assert.False(t, cfg.Excluded("pkg/store/store.go"))
}
