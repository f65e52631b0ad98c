package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, Key("en", "hello"), Key("en", "hello"))
	assert.NotEqual(t, Key("en", "hello"), Key("de", "hello"))
	// part boundaries matter
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
	assert.Len(t, Key("x"), 64)
}

func TestAudioCacheEvictsOldest(t *testing.T) {
	c, err := NewAudioCache(2)
	require.NoError(t, err)

	c.Put("a", []byte("1"))
	c.Put("b", []byte("2"))
	c.Put("c", []byte("3"))

	_, ok := c.Get("a")
	assert.False(t, ok)

	got, ok := c.Get("c")
	require.True(t, ok)
	assert.Equal(t, []byte("3"), got)
	assert.Equal(t, 2, c.Len())
}

func TestNewAudioCacheRejectsZeroSize(t *testing.T) {
	_, err := NewAudioCache(0)
	assert.Error(t, err)
}
