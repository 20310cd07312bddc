package cache

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMetrics_Singleton(t *testing.T) {
	m1 := GetMetrics()
	m2 := GetMetrics()

	require.NotNil(t, m1)
	assert.Same(t, m1, m2, "should return same instance")
}

func TestMetrics_CollectorsRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := GetMetrics()
	m.Init()

	for _, c := range m.Collectors() {
		require.NoError(t, reg.Register(c))
	}

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_RecordedByMemoryCache(t *testing.T) {
	m := GetMetrics()
	c := NewMemoryCache(1, time.Minute)
	ctx := context.Background()

	hitsBefore := testutil.ToFloat64(m.hitsTotal.WithLabelValues(backendMemory))
	missesBefore := testutil.ToFloat64(m.missesTotal.WithLabelValues(backendMemory))
	evictionsBefore := testutil.ToFloat64(m.evictionsTotal.WithLabelValues(backendMemory))

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	_, err := c.Get(ctx, "a")
	require.NoError(t, err)
	_, err = c.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrCacheMiss)
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))

	assert.Equal(t, hitsBefore+1, testutil.ToFloat64(m.hitsTotal.WithLabelValues(backendMemory)))
	assert.Equal(t, missesBefore+1, testutil.ToFloat64(m.missesTotal.WithLabelValues(backendMemory)))
	assert.Equal(t, evictionsBefore+1, testutil.ToFloat64(m.evictionsTotal.WithLabelValues(backendMemory)))
}
