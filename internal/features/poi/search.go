package poi

import (
	"context"
	"errors"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/geohealth/internal/common"
	"serotonyl.ru/geohealth/internal/geo"
)

// GeoHit — результат геоиндекса: ID и расстояние от центра.
type GeoHit struct {
	POIID          int64
	DistanceMeters float64
}

// GeoSearchIndex — внешний индекс для поиска по радиусу.
type GeoSearchIndex interface {
	Enabled() bool
	// SearchRadius возвращает POI в радиусе, ближайшие первыми.
	SearchRadius(ctx context.Context, center geo.Point, radiusMeters float64, category string) ([]GeoHit, error)
}

// GeoIndexWriter — синхронизация индекса при изменении POI.
type GeoIndexWriter interface {
	Upsert(ctx context.Context, p *POI) error
	Remove(ctx context.Context, p *POI) error
}

// InRadius ищет активные одобренные POI не дальше radiusMeters от центра.
// Сначала спрашивает геоиндекс; если он выключен или упал, выполняет
// точный обход через префильтр по прямоугольнику.
func (s *Service) InRadius(ctx context.Context, center geo.Point, radiusMeters float64, category string) ([]RatedPOI, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}
	if radiusMeters <= 0 {
		return nil, fmt.Errorf("радиус %v: %w", radiusMeters, common.ErrInvalidArea)
	}

	if s.index != nil && s.index.Enabled() {
		items, err := s.searchIndex(ctx, center, radiusMeters, category)
		if err == nil {
			return items, nil
		}
		log.WithError(err).WithFields(log.Fields{
			"lat":    center.Lat,
			"lon":    center.Lon,
			"radius": radiusMeters,
		}).Warn("Геоиндекс недоступен, используем точный поиск")
	}

	return s.searchExact(ctx, center, radiusMeters, category)
}

func (s *Service) searchIndex(ctx context.Context, center geo.Point, radiusMeters float64, category string) ([]RatedPOI, error) {
	hits, err := s.index.SearchRadius(ctx, center, radiusMeters, category)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrSearchBackendUnavailable, err)
	}

	ids := make([]int64, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.POIID)
	}
	pois, err := s.store.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*POI, len(pois))
	for _, p := range pois {
		byID[p.ID] = p
	}

	// Индекс может отставать от базы: неактивные и удалённые отбрасываем
	var found []*POI
	distances := make(map[int64]float64, len(hits))
	for _, h := range hits {
		p, ok := byID[h.POIID]
		if !ok || !p.Searchable() || h.DistanceMeters > radiusMeters {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		found = append(found, p)
		distances[p.ID] = h.DistanceMeters
	}
	return s.attachRatings(ctx, found, distances)
}

func (s *Service) searchExact(ctx context.Context, center geo.Point, radiusMeters float64, category string) ([]RatedPOI, error) {
	candidates, err := s.store.InBox(ctx, geo.BoundingBox(center, radiusMeters), category)
	if err != nil {
		return nil, err
	}

	var found []*POI
	distances := make(map[int64]float64, len(candidates))
	for _, p := range candidates {
		dist, err := geo.Distance(center, p.Point())
		if err != nil || dist > radiusMeters {
			continue
		}
		found = append(found, p)
		distances[p.ID] = dist
	}
	sort.SliceStable(found, func(i, j int) bool {
		return distances[found[i].ID] < distances[found[j].ID]
	})
	return s.attachRatings(ctx, found, distances)
}

// InBoundingBox возвращает активные одобренные POI в прямоугольнике.
func (s *Service) InBoundingBox(ctx context.Context, box geo.Box, category string) ([]RatedPOI, error) {
	if err := box.Validate(); err != nil {
		return nil, err
	}
	pois, err := s.store.InBox(ctx, box, category)
	if err != nil {
		return nil, err
	}
	return s.attachRatings(ctx, pois, nil)
}

func (s *Service) attachRatings(ctx context.Context, pois []*POI, distances map[int64]float64) ([]RatedPOI, error) {
	ids := make([]int64, 0, len(pois))
	for _, p := range pois {
		ids = append(ids, p.ID)
	}
	ratings, err := s.store.Ratings(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]RatedPOI, 0, len(pois))
	for _, p := range pois {
		item := RatedPOI{POI: *p, Rating: ratings[p.ID]}
		if d, ok := distances[p.ID]; ok {
			item.DistanceMeters = &d
		}
		out = append(out, item)
	}
	return out, nil
}

// AreaHealth считает индекс здоровья области: поиск, взвешенное среднее,
// сводка по категориям и, если получится, адрес центра.
func (s *Service) AreaHealth(ctx context.Context, q AreaQuery) (*AreaResult, error) {
	var (
		items  []RatedPOI
		center geo.Point
		err    error
	)

	switch {
	case q.Center != nil:
		center = *q.Center
		items, err = s.InRadius(ctx, center, q.RadiusMeters, q.Category)
	case q.SW != nil && q.NE != nil:
		box := geo.Box{SW: *q.SW, NE: *q.NE}
		center = box.Center()
		items, err = s.InBoundingBox(ctx, box, q.Category)
	default:
		return nil, common.ErrInvalidArea
	}
	if err != nil {
		return nil, err
	}

	index := AreaIndex(items)
	result := &AreaResult{
		HealthIndex:    index,
		Interpretation: Interpret(index),
		Categories:     categoryStats(items),
		POIs:           items,
		Count:          len(items),
	}
	result.Label = s.label(ctx, center)
	return result, nil
}

func (s *Service) label(ctx context.Context, center geo.Point) string {
	if s.resolver == nil {
		return ""
	}
	label, err := s.resolver.Reverse(ctx, center)
	if err != nil {
		if !errors.Is(err, common.ErrAddressNotFound) {
			log.WithError(err).Debug("Не удалось получить адрес области")
		}
		return ""
	}
	return label
}
