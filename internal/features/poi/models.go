// Package poi — точки интереса, их рейтинги, поиск по области и индекс здоровья района.
package poi

import (
	"time"

	"serotonyl.ru/geohealth/internal/geo"
)

// POI — точка интереса (аптека, парк, спортзал...).
type POI struct {
	ID          int64     `db:"id"`
	CategoryID  int64     `db:"category_id"`
	Category    string    `db:"category"`
	Name        string    `db:"name"`
	Lat         float64   `db:"lat"`
	Lon         float64   `db:"lon"`
	Description string    `db:"description"`
	Verified    bool      `db:"verified"` // Проверена модератором, даёт бонус к индексу
	Active      bool      `db:"active"`
	Approved    bool      `db:"approved"`
	CreatedAt   time.Time `db:"created_at"`
}

// Point возвращает координаты POI.
func (p *POI) Point() geo.Point {
	return geo.Point{Lat: p.Lat, Lon: p.Lon}
}

// Searchable — POI участвует в поиске и расчёте индекса.
func (p *POI) Searchable() bool {
	return p.Active && p.Approved
}

// Rating — рассчитанный рейтинг POI. Полностью пересчитывается из текущего состояния.
type Rating struct {
	POIID               int64     `db:"poi_id"`
	StaticScore         float64   `db:"static_score"` // Оценка описания (0..100)
	SocialScore         float64   `db:"social_score"` // Оценка по отзывам (0..100)
	CompositeScore      float64   `db:"composite_score"`
	ReviewCount         int       `db:"review_count"`
	ApprovedReviewCount int       `db:"approved_review_count"`
	LastRecomputed      time.Time `db:"last_recomputed"`
}

// Review — отзыв о POI в том виде, в каком он нужен для социальной оценки.
type Review struct {
	ReportID  int64
	AuthorID  int64
	Rating    *int // 1..5
	Approved  bool
	CreatedAt time.Time
}

// RatedPOI — POI с текущим рейтингом (nil, если ещё не считался).
type RatedPOI struct {
	POI
	Rating *Rating
	// DistanceMeters заполняется только при поиске по радиусу.
	DistanceMeters *float64
}

// Composite возвращает итоговую оценку; для POI без рейтинга — нейтральные 50.
func (r RatedPOI) Composite() float64 {
	if r.Rating == nil {
		return NeutralScore
	}
	return r.Rating.CompositeScore
}

// ApprovedReviews — сколько одобренных отзывов стоит за рейтингом.
func (r RatedPOI) ApprovedReviews() int {
	if r.Rating == nil {
		return 0
	}
	return r.Rating.ApprovedReviewCount
}

// AreaQuery — область запроса: либо центр и радиус, либо прямоугольник.
type AreaQuery struct {
	Center       *geo.Point
	RadiusMeters float64
	SW, NE       *geo.Point
	Category     string // Пусто — все категории
}

// CategoryStats — сводка по категории в области.
type CategoryStats struct {
	Count            int
	AverageComposite float64
	HealthIndex      float64
}

// AreaResult — индекс здоровья района.
type AreaResult struct {
	HealthIndex    float64
	Interpretation Interpretation
	Categories     map[string]CategoryStats
	POIs           []RatedPOI
	Count          int
	// Label — адрес центра области, если геокодер ответил.
	Label string
}

// RecomputeSummary — итог массового пересчёта.
type RecomputeSummary struct {
	Processed int
	Failed    int
}
