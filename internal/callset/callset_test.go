package callset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableSwapReturnsPreviousValue(t *testing.T) {
	table := New()
	key := Key{ChannelID: 1, ServiceID: 2, MethodID: 3}

	previous, had := table.Swap(key, "first")
	assert.False(t, had)
	assert.Nil(t, previous)

	previous, had = table.Swap(key, "second")
	require.True(t, had)
	assert.Equal(t, "first", previous)

	value, ok := table.Load(key)
	require.True(t, ok)
	assert.Equal(t, "second", value)
}

func TestTableClearRemovesAndReturnsEntry(t *testing.T) {
	table := New()
	key := Key{ChannelID: 1, ServiceID: 1, MethodID: 1}
	table.Swap(key, "value")

	previous, had := table.Clear(key)
	require.True(t, had)
	assert.Equal(t, "value", previous)

	_, ok := table.Load(key)
	assert.False(t, ok)

	_, had = table.Clear(key)
	assert.False(t, had)
}

func TestTableDeleteOnlyRemovesMatchingValue(t *testing.T) {
	table := New()
	key := Key{ChannelID: 1, ServiceID: 1, MethodID: 1}
	table.Swap(key, "stale")

	// Someone else has already replaced the entry by the time the stale
	// holder tries to unlink itself.
	table.Swap(key, "fresh")
	table.Delete(key, "stale")

	value, ok := table.Load(key)
	require.True(t, ok)
	assert.Equal(t, "fresh", value)

	table.Delete(key, "fresh")
	_, ok = table.Load(key)
	assert.False(t, ok)
}

func TestTableLenReflectsActiveEntries(t *testing.T) {
	table := New()
	assert.Equal(t, 0, table.Len())

	table.Swap(Key{ChannelID: 1, ServiceID: 1, MethodID: 1}, "a")
	table.Swap(Key{ChannelID: 1, ServiceID: 1, MethodID: 2}, "b")
	assert.Equal(t, 2, table.Len())

	table.Clear(Key{ChannelID: 1, ServiceID: 1, MethodID: 1})
	assert.Equal(t, 1, table.Len())
}

func TestTableInitResetsToEmpty(t *testing.T) {
	table := New()
	table.Swap(Key{ChannelID: 1, ServiceID: 1, MethodID: 1}, "a")
	require.Equal(t, 1, table.Len())

	table.Init()
	assert.Equal(t, 0, table.Len())
}
