package capture

import (
	"go/parser"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decide(t *testing.T, cfg Config, src string) Policy {
	t.Helper()
	expr, err := parser.ParseExpr(src)
	require.NoError(t, err)
	return cfg.Decide(expr)
}

func TestDecideAuto(t *testing.T) {
	dev := Config{Mode: Auto, Profile: Development}
	rel := Config{Mode: Auto, Profile: Release}

	t.Run("literals are always lazy", func(t *testing.T) {
		for _, src := range []string{`"abc"`, `42`, `3.5`, `'x'`, `("abc")`, `1 + 2`, `-7`, `nil`, `true`} {
			assert.Equal(t, Lazy, decide(t, dev, src), src)
			assert.Equal(t, Lazy, decide(t, rel, src), src)
		}
	})

	t.Run("mutable handles follow the profile", func(t *testing.T) {
		for _, src := range []string{`buf`, `c.conn`, `&req`, `rows[0]`, `m["k"]`, `newReader()`, `[]byte{1}`} {
			assert.Equal(t, Eager, decide(t, dev, src), src)
			assert.Equal(t, Skip, decide(t, rel, src), src)
		}
	})
}

func TestDecideOverrides(t *testing.T) {
	always := Config{Mode: Always, Profile: Release}
	disabled := Config{Mode: Disabled, Profile: Development}

	assert.Equal(t, Eager, decide(t, always, `buf`))
	assert.Equal(t, Skip, decide(t, disabled, `buf`))

	// literals never need capture regardless of mode
	assert.Equal(t, Lazy, decide(t, always, `"abc"`))
	assert.Equal(t, Lazy, decide(t, disabled, `"abc"`))
}

func TestParseMode(t *testing.T) {
	for s, want := range map[string]Mode{"": Auto, "auto": Auto, "always": Always, "disabled": Disabled} {
		got, err := ParseMode(s)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseMode("maybe")
	assert.ErrorContains(t, err, `unknown capture mode "maybe"`)
}

func TestParseProfile(t *testing.T) {
	for s, want := range map[string]Profile{"": Development, "dev": Development, "development": Development, "release": Release} {
		got, err := ParseProfile(s)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseProfile("prod")
	assert.ErrorContains(t, err, `unknown profile "prod"`)
}

func TestPolicyString(t *testing.T) {
	assert.Equal(t, "lazy", Lazy.String())
	assert.Equal(t, "eager", Eager.String())
	assert.Equal(t, "skip", Skip.String())
}
