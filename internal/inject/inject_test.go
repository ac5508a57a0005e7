package inject

import (
	"go/parser"
	"go/token"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PoOnesNerfect/oofs/internal/capture"
	"github.com/PoOnesNerfect/oofs/internal/classify"
)

func rewrite(t *testing.T, cfg Config, src string) (string, Stats) {
	t.Helper()
	out, stats, err := New(nil, cfg).RewriteSource("src.go", []byte(src))
	require.NoError(t, err)
	return string(out), stats
}

func devRewrite(t *testing.T, src string) (string, Stats) {
	return rewrite(t, Config{Capture: capture.Config{Mode: capture.Auto, Profile: capture.Development}}, src)
}

func TestLiteralArgStaysInline(t *testing.T) {
	out, stats := devRewrite(t, `package p

func load() (int, error) {
	n, err := parse("abc")
	if err != nil {
		return 0, err
	}
	return n, nil
}
`)
	assert.Equal(t, 1, stats.Sites)
	assert.Contains(t, out, `github.com/PoOnesNerfect/oofs`)
	assert.Contains(t, out, `oofs.Func("parse", oofs.At("src.go", 4, 12)).Param("abc").Wrap(err)`)
	assert.NotContains(t, out, "__oof", "a literal argument needs no binding")
	assert.Contains(t, out, `parse("abc")`, "the call itself is untouched")
}

func TestEagerBinding(t *testing.T) {
	src := `package p

func flush(buf []byte) error {
	if err := send(buf); err != nil {
		return err
	}
	return nil
}
`
	t.Run("development captures before the call", func(t *testing.T) {
		out, stats := devRewrite(t, src)
		assert.Equal(t, 1, stats.Sites)
		assert.Contains(t, out, "__oof0 := buf")
		assert.Contains(t, out, "__oofCap0 := oofs.Capture(__oof0)")
		assert.Contains(t, out, "send(__oof0)")
		assert.Contains(t, out, ".ParamEager(__oofCap0)")
	})

	t.Run("release skips the rendering", func(t *testing.T) {
		out, _ := rewrite(t, Config{Capture: capture.Config{Mode: capture.Auto, Profile: capture.Release}}, src)
		assert.Contains(t, out, "__oof0 := buf")
		assert.Contains(t, out, ".ParamSkipped(__oof0)")
		assert.NotContains(t, out, "oofs.Capture(")
	})
}

func TestCapturedReceiver(t *testing.T) {
	out, _ := devRewrite(t, `package p

func shutdown(path string) error {
	if err := open(path).Close(); err != nil {
		return err
	}
	return nil
}
`)
	assert.Contains(t, out, "__oof0 := open(path)")
	assert.Contains(t, out, "__oof0.Close()")
	assert.Contains(t, out, `oofs.MethodOn("Close"`)
	assert.Contains(t, out, ".ParamEager(__oofCap0).Wrap(err)")
}

func TestMetaCallsFold(t *testing.T) {
	out, _ := devRewrite(t, `package p

func fetch(id string) error {
	if err := dial(id); err != nil {
		return oofs.TagErr(oofs.AttachErr(err, "attempt"), Retry)
	}
	return nil
}
`)
	assert.Contains(t, out, `.Attach("attempt").Tag(Retry).Wrap(err)`)
	assert.NotContains(t, out, "TagErr")
	assert.NotContains(t, out, "AttachErr")
}

func TestDirectives(t *testing.T) {
	t.Run("tag and attach apply to every site", func(t *testing.T) {
		out, _ := devRewrite(t, `package p

//oofs:tag(Retry)
//oofs:attach("stage one")
func step() error {
	if err := run(); err != nil {
		return err
	}
	return nil
}
`)
		assert.Contains(t, out, `.Tag(Retry).Attach("stage one").Wrap(err)`)
	})

	t.Run("skip leaves the function alone", func(t *testing.T) {
		src := `package p

//oofs:skip
func step() error {
	if err := run(); err != nil {
		return err
	}
	return nil
}
`
		out, stats := devRewrite(t, src)
		assert.False(t, stats.Changed())
		assert.Equal(t, src, out)
	})

	t.Run("debug_skip suppresses one argument", func(t *testing.T) {
		out, _ := devRewrite(t, `package p

//oofs:debug_skip(password)
func login(user, password string) error {
	if err := auth(user, password); err != nil {
		return err
	}
	return nil
}
`)
		assert.Contains(t, out, ".ParamEager(__oofCap0).ParamSkipped(__oof1)")
		assert.NotContains(t, out, "oofs.Capture(__oof1)")
	})

	t.Run("debug_with overrides the rendering", func(t *testing.T) {
		out, _ := devRewrite(t, `package p

//oofs:debug_with(body, summarize)
func post(body []byte) error {
	if err := send(body); err != nil {
		return err
	}
	return nil
}
`)
		assert.Contains(t, out, "__oofCap0 := oofs.CaptureString(__oof0, summarize(__oof0))")
		assert.Contains(t, out, ".ParamEager(__oofCap0)")
	})

	t.Run("capture override beats the global mode", func(t *testing.T) {
		out, _ := devRewrite(t, `package p

//oofs:capture(disabled)
func flush(buf []byte) error {
	if err := send(buf); err != nil {
		return err
	}
	return nil
}
`)
		assert.Contains(t, out, ".ParamSkipped(__oof0)")
		assert.NotContains(t, out, "oofs.Capture(")
	})
}

func TestEnsureRewrite(t *testing.T) {
	out, stats := devRewrite(t, `package p

func split(s string, parts []string) error {
	if err := oofs.Ensure(len(parts) == 2, "bad pair %q", s); err != nil {
		return err
	}
	return nil
}
`)
	assert.Equal(t, 1, stats.Ensures)
	assert.Contains(t, out, `oofs.EnsureExpr(len(parts) == 2, "len(parts) == 2", "bad pair %q", s)`)
}

func TestEnsureRewriteHonorsSkip(t *testing.T) {
	src := `package p

//oofs:skip
func split(parts []string) error {
	if err := oofs.Ensure(len(parts) == 2); err != nil {
		return err
	}
	return nil
}
`
	out, stats := devRewrite(t, src)
	assert.Zero(t, stats.Ensures)
	assert.Equal(t, src, out)
}

func TestRewriteIsFixedPoint(t *testing.T) {
	src := `package p

func pipeline(path string, buf []byte) error {
	data, err := read(path)
	if err != nil {
		return err
	}
	if err := decode(data, buf); err != nil {
		return oofs.TagErr(err, Corrupt)
	}
	if err := oofs.Ensure(len(buf) > 0); err != nil {
		return err
	}
	return nil
}
`
	first, stats := devRewrite(t, src)
	require.True(t, stats.Changed())

	second, stats2 := devRewrite(t, first)
	assert.False(t, stats2.Changed())
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("second rewrite changed the output (-first +second):\n%s", diff)
	}
}

func TestRewrittenOutputClassifiesClean(t *testing.T) {
	out, _ := devRewrite(t, `package p

func load(path string) (int, error) {
	n, err := parse(path)
	if err != nil {
		return 0, err
	}
	return n, nil
}
`)
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "out.go", out, parser.ParseComments)
	require.NoError(t, err)
	fns, err := classify.New(fset).ScanFile(f)
	require.NoError(t, err)
	for _, fn := range fns {
		assert.Empty(t, fn.Sites)
	}
}

func TestParseErrorSurfaces(t *testing.T) {
	_, _, err := New(nil, Config{}).RewriteSource("broken.go", []byte("package p\nfunc {"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "broken.go"))
}
