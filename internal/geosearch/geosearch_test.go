package geosearch

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/geohealth/internal/features/poi"
	"serotonyl.ru/geohealth/internal/geo"
)

// Отдельная база, чтобы тест не задел данные разработчика.
const testRedisDB = 13

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: testRedisDB})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis недоступен, тест пропущен (%v)", err)
	}

	require.NoError(t, client.FlushDB(context.Background()).Err())
	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return client
}

func TestDisabledIndex(t *testing.T) {
	idx := NewIndex(nil, true)
	assert.False(t, idx.Enabled())
	assert.NoError(t, idx.Upsert(context.Background(), &poi.POI{ID: 1}))
	assert.NoError(t, idx.Remove(context.Background(), &poi.POI{ID: 1}))
}

func TestSearchRadius(t *testing.T) {
	client := newTestClient(t)
	idx := NewIndex(client, true)
	ctx := context.Background()

	pois := []*poi.POI{
		{ID: 1, Category: "pharmacy", Lat: 55.7558, Lon: 37.6173},
		{ID: 2, Category: "park", Lat: 55.7560, Lon: 37.6180},
		{ID: 3, Category: "pharmacy", Lat: 55.8000, Lon: 37.7000},
	}
	for _, p := range pois {
		require.NoError(t, idx.Upsert(ctx, p))
	}

	center := geo.Point{Lat: 55.7558, Lon: 37.6173}

	hits, err := idx.SearchRadius(ctx, center, 500, "")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(1), hits[0].POIID)
	assert.Equal(t, int64(2), hits[1].POIID)

	hits, err = idx.SearchRadius(ctx, center, 500, "pharmacy")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(1), hits[0].POIID)

	require.NoError(t, idx.Remove(ctx, pois[0]))
	hits, err = idx.SearchRadius(ctx, center, 500, "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(2), hits[0].POIID)
}
