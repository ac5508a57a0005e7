package oofs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsure(t *testing.T) {
	t.Run("holds", func(t *testing.T) {
		assert.Nil(t, Ensure(true))
		assert.Nil(t, Ensure(true, "ignored %d", 1))
	})

	t.Run("fails with default message", func(t *testing.T) {
		o := Ensure(false)
		require.NotNil(t, o)
		assert.Equal(t, "assertion failed", o.Error())
	})

	t.Run("fails with formatted message", func(t *testing.T) {
		o := Ensure(false, "expected %d parts, got %d", 2, 3)
		require.NotNil(t, o)
		assert.Equal(t, "expected 2 parts, got 3", o.Error())
	})

	t.Run("non-string message is still rendered", func(t *testing.T) {
		o := Ensure(false, 42)
		require.NotNil(t, o)
		assert.Equal(t, "42", o.Error())
	})
}

func TestEnsureExpr(t *testing.T) {
	assert.Nil(t, EnsureExpr(true, "len(parts) == 2"))

	o := EnsureExpr(false, "len(parts) == 2")
	require.NotNil(t, o)
	assert.Equal(t, "assertion failed: `len(parts) == 2`", o.Error())
}

func TestEnsureEq(t *testing.T) {
	t.Run("equal", func(t *testing.T) {
		assert.Nil(t, EnsureEq(1, 1))
		assert.Nil(t, EnsureEq("a", "a"))
	})

	t.Run("slice operands compare by contents", func(t *testing.T) {
		assert.Nil(t, EnsureEq([]byte("abc"), []byte("abc")))
		assert.Nil(t, EnsureEq(map[string]int{"k": 1}, map[string]int{"k": 1}))

		o := EnsureEq([]byte("abc"), []byte("abd"))
		require.NotNil(t, o)
		assert.Contains(t, o.Report(), "assertion failed: `(left == right)`")
	})

	t.Run("mixed comparability does not panic", func(t *testing.T) {
		require.NotNil(t, EnsureEq([]int{1}, 1))
		require.NotNil(t, EnsureEq(nil, []int{1}))
		assert.Nil(t, EnsureEq(nil, nil))
	})

	t.Run("unequal report names the expression and both operands", func(t *testing.T) {
		o := EnsureEq(1, 2)
		require.NotNil(t, o)

		report := o.Report()
		assert.Contains(t, report, "assertion failed: `(left == right)`")
		assert.Contains(t, report, " left: 1")
		assert.Contains(t, report, "right: 2")
	})

	t.Run("custom message keeps the operand attachments", func(t *testing.T) {
		o := EnsureEq("want", "got", "checksum mismatch")
		require.NotNil(t, o)
		assert.Equal(t, "checksum mismatch", o.Error())
		assert.Contains(t, o.Report(), ` left: "want"`)
	})

	t.Run("failure survives propagation", func(t *testing.T) {
		err := Func("verify", At("sum.go", 18, 9)).Wrap(EnsureEq(1, 2))
		assert.Contains(t, err.(*Oof).Report(), "assertion failed: `(left == right)`")
	})
}
