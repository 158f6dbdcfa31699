package pipeline

import (
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/city-temperature-etl/internal/domain"
	"github.com/couchcryptid/city-temperature-etl/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2)
	c.put("a", Result{Partitions: 1})
	c.put("b", Result{Partitions: 2})

	// touching "a" makes "b" the eviction candidate
	_, ok := c.get("a")
	assert.True(t, ok)

	c.put("c", Result{Partitions: 3})
	assert.Equal(t, 2, c.size())

	_, ok = c.get("b")
	assert.False(t, ok)
	got, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, got.Partitions)
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache(2)
	c.put("a", Result{Partitions: 1})
	c.put("a", Result{Partitions: 9})

	got, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, 9, got.Partitions)
	assert.Equal(t, 1, c.size())
}

func TestLRUCache_MinimumSize(t *testing.T) {
	c := newLRUCache(0)
	for i := range 3 {
		c.put(strconv.Itoa(i), Result{})
	}
	assert.Equal(t, 1, c.size())
}

func TestResultCache_Metrics(t *testing.T) {
	m := observability.NewMetricsForTesting()
	c := NewResultCache(4, m)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Put("k", Result{Mode: ModeSequential})
	got, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, ModeSequential, got.Mode)

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.ResultCache.WithLabelValues("hit")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.ResultCache.WithLabelValues("miss")), 1e-9)
}

func TestFingerprint(t *testing.T) {
	ts := time.Date(2023, time.March, 1, 0, 0, 0, 0, time.UTC)
	data := []domain.Record{{City: "A", Timestamp: ts, Temperature: 1.5}}

	base := Fingerprint(data, ModeConcurrent, 4)
	assert.Len(t, base, 64)
	assert.Equal(t, base, Fingerprint(data, ModeConcurrent, 4))

	assert.NotEqual(t, base, Fingerprint(data, ModeSequential, 4))
	assert.NotEqual(t, base, Fingerprint(data, ModeConcurrent, 2))

	changed := []domain.Record{{City: "A", Timestamp: ts, Temperature: 1.6}}
	assert.NotEqual(t, base, Fingerprint(changed, ModeConcurrent, 4))
}

func TestFingerprint_ZoneOffset(t *testing.T) {
	utc := time.Date(2024, time.March, 1, 4, 30, 0, 0, time.UTC)
	local := utc.In(time.FixedZone("UTC-5", -5*60*60))
	require.True(t, utc.Equal(local))
	require.NotEqual(t, domain.SeasonAt(utc), domain.SeasonAt(local))

	a := []domain.Record{{City: "A", Timestamp: utc, Temperature: 1}}
	b := []domain.Record{{City: "A", Timestamp: local, Temperature: 1}}
	assert.NotEqual(t, Fingerprint(a, ModeSequential, 1), Fingerprint(b, ModeSequential, 1))
}
