// Package geosearch — индекс POI в Redis (GEOADD/GEOSEARCH) для поиска по радиусу.
// Индекс вторичен: источник правды — PostgreSQL, при сбое Redis поиск идёт по базе.
package geosearch

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"serotonyl.ru/geohealth/internal/features/poi"
	"serotonyl.ru/geohealth/internal/geo"
)

const (
	keyAll            = "poi:geo"
	keyCategoryPrefix = "poi:geo:cat:"
)

// Index — геоиндекс POI поверх go-redis.
type Index struct {
	client  *redis.Client
	enabled bool
}

var (
	_ poi.GeoSearchIndex = (*Index)(nil)
	_ poi.GeoIndexWriter = (*Index)(nil)
)

// NewIndex создаёт индекс. enabled=false — поиск всегда уходит в базу.
func NewIndex(client *redis.Client, enabled bool) *Index {
	return &Index{client: client, enabled: enabled && client != nil}
}

func categoryKey(category string) string {
	return keyCategoryPrefix + category
}

// Enabled сообщает, включён ли индекс.
func (i *Index) Enabled() bool {
	return i.enabled
}

// Upsert добавляет или обновляет координаты POI в общем ключе и в ключе категории.
func (i *Index) Upsert(ctx context.Context, p *poi.POI) error {
	if !i.enabled {
		return nil
	}
	loc := &redis.GeoLocation{
		Name:      strconv.FormatInt(p.ID, 10),
		Longitude: p.Lon,
		Latitude:  p.Lat,
	}

	pipe := i.client.TxPipeline()
	pipe.GeoAdd(ctx, keyAll, loc)
	if p.Category != "" {
		pipe.GeoAdd(ctx, categoryKey(p.Category), loc)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ошибка записи в геоиндекс (poi_id=%d): %w", p.ID, err)
	}
	return nil
}

// Remove убирает POI из индекса.
func (i *Index) Remove(ctx context.Context, p *poi.POI) error {
	if !i.enabled {
		return nil
	}
	member := strconv.FormatInt(p.ID, 10)

	pipe := i.client.TxPipeline()
	pipe.ZRem(ctx, keyAll, member)
	if p.Category != "" {
		pipe.ZRem(ctx, categoryKey(p.Category), member)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ошибка удаления из геоиндекса (poi_id=%d): %w", p.ID, err)
	}
	return nil
}

// SearchRadius возвращает POI в радиусе, ближайшие первыми.
func (i *Index) SearchRadius(ctx context.Context, center geo.Point, radiusMeters float64, category string) ([]poi.GeoHit, error) {
	if !i.enabled {
		return nil, errors.New("геоиндекс выключен")
	}
	key := keyAll
	if category != "" {
		key = categoryKey(category)
	}

	locations, err := i.client.GeoSearchLocation(ctx, key, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  center.Lon,
			Latitude:   center.Lat,
			Radius:     radiusMeters,
			RadiusUnit: "m",
			Sort:       "ASC",
		},
		WithDist: true,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("ошибка GEOSEARCH: %w", err)
	}

	hits := make([]poi.GeoHit, 0, len(locations))
	for _, loc := range locations {
		id, err := strconv.ParseInt(loc.Name, 10, 64)
		if err != nil {
			continue
		}
		hits = append(hits, poi.GeoHit{POIID: id, DistanceMeters: loc.Dist})
	}
	return hits, nil
}
