package poi

import (
	"context"

	"serotonyl.ru/geohealth/internal/geo"
)

// Store — хранилище POI и их рейтингов.
type Store interface {
	Create(ctx context.Context, p *POI) error
	Get(ctx context.Context, id int64) (*POI, error)
	GetMany(ctx context.Context, ids []int64) ([]*POI, error)
	UpdateDescription(ctx context.Context, id int64, description string) error
	// ListIDs — постраничный обход всех POI по возрастанию ID.
	ListIDs(ctx context.Context, afterID int64, limit int) ([]int64, error)
	// InBox — активные одобренные POI в прямоугольнике. Пустая категория — все.
	InBox(ctx context.Context, box geo.Box, category string) ([]*POI, error)

	// GetRating возвращает nil без ошибки, если рейтинг ещё не считался.
	GetRating(ctx context.Context, poiID int64) (*Rating, error)
	SaveRating(ctx context.Context, r *Rating) error
	Ratings(ctx context.Context, poiIDs []int64) (map[int64]*Rating, error)
}

var (
	_ Store = (*Repository)(nil)
	_ Store = (*MemoryStore)(nil)
)
