package utils

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDIsSortableULID(t *testing.T) {
	ids := make([]string, 0, 500)
	for i := 0; i < 500; i++ {
		ids = append(ids, NewID())
	}
	for _, id := range ids {
		require.True(t, IsULID(id), id)
	}
	assert.True(t, sort.StringsAreSorted(ids))
}

func TestNewIDAtOrdersByTime(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	early := NewIDAt(base)
	late := NewIDAt(base.Add(time.Millisecond))
	assert.Less(t, early, late)
}

func TestIsULID(t *testing.T) {
	assert.True(t, IsULID("01HZ0000000000000000000AAA"))
	assert.False(t, IsULID("01HZ0000000000000000000AAI"), "I is not crockford")
	assert.False(t, IsULID("01hz0000000000000000000aaa"))
	assert.False(t, IsULID("6f1c2b4e-9d7a-4c1e-8b1a-2f3d4e5f6a7b"))
}

func TestValidClientID(t *testing.T) {
	assert.True(t, ValidClientID("01HZ0000000000000000000AAA"))
	assert.True(t, ValidClientID("6f1c2b4e-9d7a-4c1e-8b1a-2f3d4e5f6a7b"))
	assert.False(t, ValidClientID(""))
	assert.False(t, ValidClientID("has space"))
}

func TestMonotonicClockNeverRepeats(t *testing.T) {
	frozen := time.Date(2024, 5, 1, 10, 0, 0, 123456789, time.UTC)
	c := &MonotonicClock{now: func() time.Time { return frozen }}

	first := c.Now()
	second := c.Now()
	assert.Equal(t, frozen.Truncate(time.Millisecond), first)
	assert.Equal(t, first.Add(time.Millisecond), second)

	c.now = func() time.Time { return frozen.Add(-time.Hour) }
	assert.True(t, c.Now().After(second))
}

func TestRFC3339RoundTrip(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 5_000_000, time.UTC)
	s := RFC3339(ts)
	assert.Equal(t, "2024-05-01T10:00:00.005Z", s)
	back, err := ParseRFC3339(s)
	require.NoError(t, err)
	assert.True(t, back.Equal(ts))
}
