package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"r4r-detector/internal/models"
)

func TestLRUCache_GetSet(t *testing.T) {
	c := NewLRUCache(2, 0)

	c.Set("a", 1)
	c.Set("b", 2)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache(2, 0)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // a is now the most recently used
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "b was the LRU entry")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestLRUCache_TTLExpiry(t *testing.T) {
	c := NewLRUCache(10, 20*time.Millisecond)

	c.Set("a", 1)
	_, ok := c.Get("a")
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)

	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size(), "expired entry is removed on access")
}

func TestLRUCache_SetRestartsTTL(t *testing.T) {
	c := NewLRUCache(10, 40*time.Millisecond)

	c.Set("a", 1)
	time.Sleep(25 * time.Millisecond)
	c.Set("a", 2)
	time.Sleep(25 * time.Millisecond)

	v, ok := c.Get("a")
	assert.True(t, ok, "the rewrite restarted the TTL")
	assert.Equal(t, 2, v)
}

func TestLRUCache_DeleteAndClear(t *testing.T) {
	c := NewLRUCache(10, 0)

	c.Set("a", 1)
	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))

	c.Set("b", 2)
	c.Set("c", 3)
	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestLRUCache_Stats(t *testing.T) {
	c := NewLRUCache(10, 0)

	c.Set("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 1e-9)
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, 10, stats.Capacity)
}

func TestReportCache(t *testing.T) {
	rc := NewReportCache(4, time.Minute)

	report := models.NewR4RAnalysis("0xabc")
	report.R4RScore = 0.42
	rc.Set(report)

	got, ok := rc.Get("0xabc")
	require.True(t, ok)
	assert.Equal(t, 0.42, got.R4RScore)

	rc.Invalidate("0xabc")
	_, ok = rc.Get("0xabc")
	assert.False(t, ok)
}

func TestNetworkCache_KeyIsOrderInsensitive(t *testing.T) {
	nc := NewNetworkCache(4, time.Minute)

	scan := models.NewNetworkAnalysis([]string{"a", "b", "c"})
	nc.Set([]string{"a", "b", "c"}, scan)

	got, ok := nc.Get([]string{"c", "a", "b"})
	require.True(t, ok)
	assert.Equal(t, scan, got)

	_, ok = nc.Get([]string{"a", "b"})
	assert.False(t, ok, "a different member set is a different scan")
}
