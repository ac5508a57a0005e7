package oofs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestWrap(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, Wrap(nil))
	})

	t.Run("foreign error becomes zero-frame aggregate", func(t *testing.T) {
		base := errors.New("boom")
		o := Wrap(base)
		require.NotNil(t, o)
		assert.Empty(t, o.Frames())
		assert.Equal(t, "boom", o.Error())
		assert.Equal(t, "boom", o.CauseText())
	})

	t.Run("already wrapped is returned unchanged", func(t *testing.T) {
		o := Errorf("once")
		assert.Same(t, o, Wrap(o))
	})
}

func TestUnwrap(t *testing.T) {
	base := errors.New("disk full")
	var err error = Func("save", At("store.go", 12, 9)).Wrap(base)

	assert.True(t, errors.Is(err, base))

	t.Run("message cause has nothing beneath it", func(t *testing.T) {
		assert.Nil(t, Errorf("standalone").Unwrap())
	})
}

func TestFrameOrder(t *testing.T) {
	base := errors.New("boom")
	err := Func("inner", At("a.go", 1, 1)).Wrap(base)
	err = Func("middle", At("b.go", 2, 2)).Wrap(err)
	err = Func("outer", At("c.go", 3, 3)).Wrap(err)

	o, ok := err.(*Oof)
	require.True(t, ok)

	frames := o.Frames()
	require.Len(t, frames, 3)
	assert.Equal(t, "inner()", frames[0].Description())
	assert.Equal(t, "middle()", frames[1].Description())
	assert.Equal(t, "outer()", frames[2].Description())
	assert.Equal(t, "outer() failed at `c.go:3:3`", o.Error())
}

func TestTagging(t *testing.T) {
	retry := NewTag("retry")
	fatal := NewTag("fatal")

	t.Run("tag applied at the inner boundary stays visible", func(t *testing.T) {
		base := errors.New("connection reset")
		err := TagErr(Func("dial", At("net.go", 4, 9)).Wrap(base), retry)
		err = Func("fetch", At("client.go", 20, 9)).Wrap(err)

		o := err.(*Oof)
		assert.False(t, o.Tagged(retry), "outermost frame is untagged")
		assert.True(t, o.TaggedNested(retry))
		assert.False(t, o.TaggedNested(fatal))
	})

	t.Run("duplicate tags collapse", func(t *testing.T) {
		o := Errorf("x").Tag(retry).Tag(retry)
		assert.True(t, o.Tagged(retry))
		assert.Equal(t, 1, o.cause.tags.len())
	})

	t.Run("tags on a zero-frame aggregate survive the first boundary", func(t *testing.T) {
		o := Errorf("not found").Tag(fatal)
		err := Func("lookup", At("db.go", 7, 9)).Wrap(o)
		assert.True(t, err.(*Oof).TaggedNested(fatal))
	})

	t.Run("same name is not same identity", func(t *testing.T) {
		other := NewTag("retry")
		o := Errorf("x").Tag(retry)
		assert.False(t, o.Tagged(other))
	})
}

func TestMetaHelpers(t *testing.T) {
	retry := NewTag("retry")

	assert.Nil(t, TagErr(nil, retry))
	assert.Nil(t, AttachErr(nil, "ctx"))
	assert.Nil(t, AttachLazyErr(nil, func() string { return "ctx" }))

	err := AttachErr(errors.New("boom"), "attempt 3")
	require.NotNil(t, err)
	assert.Contains(t, err.(*Oof).Report(), `0: "attempt 3"`)
}

func TestPropagationAcrossGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	timeout := NewTag("timeout")
	results := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func(i int) {
			base := fmt.Errorf("worker %d stalled", i)
			results <- TagErr(Func("poll", At("worker.go", 33, 10)).Param(i).Wrap(base), timeout)
		}(i)
	}

	for i := 0; i < 4; i++ {
		err := <-results
		require.Error(t, err)
		assert.True(t, err.(*Oof).TaggedNested(timeout))
	}
}
