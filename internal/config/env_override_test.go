package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides(t *testing.T) {
	t.Run("OOFGEN_CAPTURE overrides the file value", func(t *testing.T) {
		t.Setenv("OOFGEN_CAPTURE", "always")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "always", cfg.Capture)
	})

	t.Run("OOFGEN_PROFILE overrides the file value", func(t *testing.T) {
		t.Setenv("OOFGEN_PROFILE", "release")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "release", cfg.Profile)
	})

	t.Run("OOFGEN_RUNTIME_IMPORT overrides the file value", func(t *testing.T) {
		t.Setenv("OOFGEN_RUNTIME_IMPORT", "example.com/fork/oofs")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "example.com/fork/oofs", cfg.RuntimeImport)
	})

	t.Run("empty environment leaves the config alone", func(t *testing.T) {
		t.Setenv("OOFGEN_CAPTURE", "")
		t.Setenv("OOFGEN_PROFILE", "")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "auto", cfg.Capture)
		assert.Equal(t, "development", cfg.Profile)
	})
}
