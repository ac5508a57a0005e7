package oofs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptions(t *testing.T) {
	loc := At("x.go", 1, 1)

	t.Run("function call", func(t *testing.T) {
		b := Func("json.Unmarshal", loc).Param([]byte(`{}`)).Param(nil)
		assert.Equal(t, "json.Unmarshal($0, $1)", b.frame.Description())
	})

	t.Run("method on named receiver", func(t *testing.T) {
		b := Method("client", "Fetch", loc).Param("id-7")
		assert.Equal(t, "client.Fetch($0)", b.frame.Description())
	})

	t.Run("method on captured receiver", func(t *testing.T) {
		b := MethodOn("Parse", loc).Param("abc").Param(10)
		assert.Equal(t, "$0.Parse($1)", b.frame.Description())
	})

	t.Run("bare expression", func(t *testing.T) {
		b := Value("<-done", loc)
		assert.Equal(t, "<-done", b.frame.Description())
	})
}

func TestParamCapture(t *testing.T) {
	loc := At("x.go", 2, 9)

	t.Run("lazy param renders the bound value", func(t *testing.T) {
		b := Func("parse", loc).Param("abc")
		p := b.frame.Params()
		require.Len(t, p, 1)
		assert.Equal(t, "$0", p[0].Label)
		assert.Equal(t, "string", p[0].Type)
		assert.Equal(t, `"abc"`, p[0].Value)
		assert.True(t, p[0].HasValue)
	})

	t.Run("eager capture is immune to later mutation", func(t *testing.T) {
		buf := []byte("before")
		c := Capture(buf)
		copy(buf, "mutate")

		b := Func("read", loc).ParamEager(c)
		assert.Equal(t, `"before"`, b.frame.Params()[0].Value)
	})

	t.Run("skipped param reports type only", func(t *testing.T) {
		b := Func("load", loc).ParamSkipped("secret")
		p := b.frame.Params()[0]
		assert.Equal(t, "string", p.Type)
		assert.False(t, p.HasValue)
		assert.Empty(t, p.Value)
	})

	t.Run("caller-rendered capture", func(t *testing.T) {
		c := CaptureString(42, "0x2a")
		b := Func("seek", loc).ParamEager(c)
		p := b.frame.Params()[0]
		assert.Equal(t, "int", p.Type)
		assert.Equal(t, "0x2a", p.Value)
	})
}

func TestDebugString(t *testing.T) {
	assert.Equal(t, "<nil>", debugString(nil))
	assert.Equal(t, `"a b"`, debugString("a b"))
	assert.Equal(t, `"raw"`, debugString([]byte("raw")))
	assert.Equal(t, `"boom"`, debugString(errors.New("boom")))
	assert.Equal(t, "12", debugString(12))
	assert.Equal(t, "map[k:1]", debugString(map[string]int{"k": 1}))
}

func TestLazyAttachments(t *testing.T) {
	calls := 0
	b := Func("op", At("x.go", 3, 9)).AttachLazy(func() string {
		calls++
		return "expensive"
	})
	err := b.Wrap(errors.New("boom"))
	o := err.(*Oof)

	assert.Zero(t, calls, "attachment must not render before the report does")

	first := o.Report()
	second := o.Report()
	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
	assert.Contains(t, first, "0: expensive")
}

func TestWrapNilShortCircuits(t *testing.T) {
	b := Func("op", At("x.go", 4, 9)).Param("unused")
	assert.NoError(t, b.Wrap(nil))
}
