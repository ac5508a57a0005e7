package oofs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTagIdentity(t *testing.T) {
	retry := NewTag("retry")

	assert.Equal(t, "retry", retry.Name())
	assert.False(t, retry.IsZero())

	var zero Tag
	assert.True(t, zero.IsZero())
	assert.Empty(t, zero.Name())

	copied := retry
	var s tagSet
	s.add(retry)
	assert.True(t, s.has(copied), "a copied Tag keeps its identity")
}

func TestTagSet(t *testing.T) {
	a, b := NewTag("a"), NewTag("b")

	var s tagSet
	s.add(a)
	s.add(a)
	s.add(b)
	assert.Equal(t, 2, s.len())
	assert.True(t, s.has(a))
	assert.True(t, s.has(b))

	s.add(Tag{})
	assert.Equal(t, 2, s.len(), "zero tags are ignored")
	assert.False(t, s.has(Tag{}))
}
