package reports

import (
	"context"
	"fmt"
	"time"

	"serotonyl.ru/geohealth/internal/config"
	"serotonyl.ru/geohealth/internal/geo"
)

// Deduplicator проверяет геовременную уникальность отчётов.
// Один экземпляр используется и при создании, и при модерации,
// поэтому радиус и окно всегда совпадают.
type Deduplicator struct {
	store        Store
	radiusMeters float64
	windowHours  int
}

// NewDeduplicator создаёт движок дедупликации с радиусом и окном из конфигурации.
func NewDeduplicator(store Store, cfg *config.Config) *Deduplicator {
	return &Deduplicator{
		store:        store,
		radiusMeters: cfg.UniquenessRadiusMeters,
		windowHours:  cfg.UniquenessTimeWindowHours,
	}
}

// CheckUniqueness ищет отчёты той же категории и типа не дальше радиуса
// за окно [at-window, at]. Только чтение: повторный вызов даёт тот же ответ.
func (d *Deduplicator) CheckUniqueness(ctx context.Context, lat, lon float64, category string, kind Kind, at time.Time) (Uniqueness, error) {
	return d.check(ctx, lat, lon, category, kind, at, 0)
}

// CheckReport проверяет уже сохранённый отчёт, не считая его совпадением с самим собой.
func (d *Deduplicator) CheckReport(ctx context.Context, r *Report) (Uniqueness, error) {
	return d.check(ctx, r.Lat, r.Lon, r.Category, r.Kind, r.CreatedAt, r.ID)
}

func (d *Deduplicator) check(ctx context.Context, lat, lon float64, category string, kind Kind, at time.Time, excludeID int64) (Uniqueness, error) {
	if err := geo.ValidateCoordinate(lat, lon); err != nil {
		return Uniqueness{}, err
	}

	center := geo.Point{Lat: lat, Lon: lon}
	from, to := geo.TimeWindow(at, d.windowHours)

	candidates, err := d.store.FindCandidates(ctx, CandidateFilter{
		Category:  category,
		Kind:      kind,
		From:      from,
		To:        to,
		Box:       geo.BoundingBox(center, d.radiusMeters),
		ExcludeID: excludeID,
	})
	if err != nil {
		return Uniqueness{}, fmt.Errorf("ошибка поиска дубликатов: %w", err)
	}

	var matches []Match
	for _, c := range candidates {
		dist, err := geo.DistanceMeters(lat, lon, c.Lat, c.Lon)
		if err != nil {
			continue
		}
		if dist <= d.radiusMeters {
			matches = append(matches, Match{
				ReportID:       c.ID,
				AuthorID:       c.AuthorID,
				DistanceMeters: dist,
				CreatedAt:      c.CreatedAt,
			})
		}
	}

	return Uniqueness{IsUnique: len(matches) == 0, Matches: matches}, nil
}
