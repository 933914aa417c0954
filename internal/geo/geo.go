// Package geo — расстояния по большому кругу и временные окна.
// Используется дедупликацией отчётов и поиском POI по радиусу.
package geo

import (
	"fmt"
	"math"
	"time"

	"serotonyl.ru/geohealth/internal/common"
)

const (
	// EarthRadiusMeters — средний радиус Земли (IUGG).
	EarthRadiusMeters = 6371008.8
	// MetersPerDegree — грубая оценка «1° ≈ 111 км» для префильтра.
	MetersPerDegree = 111000.0
)

// Point — точка на поверхности Земли.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Box — прямоугольник в градусах: юго-западный и северо-восточный углы.
type Box struct {
	SW Point `json:"sw"`
	NE Point `json:"ne"`
}

// ValidateCoordinate проверяет диапазоны: lat ∈ [-90, 90], lon ∈ [-180, 180].
func ValidateCoordinate(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("lat=%v lon=%v: %w", lat, lon, common.ErrInvalidCoordinate)
	}
	return nil
}

// Validate проверяет точку.
func (p Point) Validate() error {
	return ValidateCoordinate(p.Lat, p.Lon)
}

// DistanceMeters возвращает расстояние по большому кругу (формула гаверсинусов).
func DistanceMeters(lat1, lon1, lat2, lon2 float64) (float64, error) {
	if err := ValidateCoordinate(lat1, lon1); err != nil {
		return 0, err
	}
	if err := ValidateCoordinate(lat2, lon2); err != nil {
		return 0, err
	}
	return haversine(lat1, lon1, lat2, lon2), nil
}

// Distance — то же самое для двух точек.
func Distance(a, b Point) (float64, error) {
	return DistanceMeters(a.Lat, a.Lon, b.Lat, b.Lon)
}

func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	// Ошибки округления могут дать a чуть больше 1
	a = math.Min(1, a)
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(a))
}

// TimeWindow возвращает включительные границы [t-hours, t].
func TimeWindow(t time.Time, hours int) (from, to time.Time) {
	return t.Add(-time.Duration(hours) * time.Hour), t
}

// InWindow проверяет, что ts попадает в [from, to] включительно.
func InWindow(ts, from, to time.Time) bool {
	return !ts.Before(from) && !ts.After(to)
}

// BoundingBox строит префильтр вокруг центра: полусторона radius·√2 в градусах.
// Долгота дополнительно делится на cos(lat), чтобы на высоких широтах
// прямоугольник не оказался уже круга. Префильтр только отсекает заведомо
// далёкие точки, окончательное решение всегда за DistanceMeters.
// Если круг задевает 180-й меридиан, долгота переносится на другую сторону
// и SW.Lon оказывается больше NE.Lon (см. CrossesAntimeridian).
func BoundingBox(center Point, radiusMeters float64) Box {
	half := radiusMeters * math.Sqrt2 / MetersPerDegree

	latDelta := half
	lonDelta := 180.0
	if cosLat := math.Cos(center.Lat * math.Pi / 180); cosLat > 0.01 {
		lonDelta = math.Min(180, half/cosLat)
	}

	west, east := -180.0, 180.0
	if lonDelta < 180 {
		west = wrapLon(center.Lon - lonDelta)
		east = wrapLon(center.Lon + lonDelta)
	}

	return Box{
		SW: Point{Lat: math.Max(-90, center.Lat-latDelta), Lon: west},
		NE: Point{Lat: math.Min(90, center.Lat+latDelta), Lon: east},
	}
}

// wrapLon приводит долготу к [-180, 180].
func wrapLon(lon float64) float64 {
	switch {
	case lon < -180:
		return lon + 360
	case lon > 180:
		return lon - 360
	}
	return lon
}

// CrossesAntimeridian — прямоугольник перекинут через 180-й меридиан:
// по долготе он покрывает [SW.Lon, 180] и [-180, NE.Lon].
func (b Box) CrossesAntimeridian() bool {
	return b.SW.Lon > b.NE.Lon
}

// Contains проверяет, лежит ли точка в прямоугольнике (границы включительно).
func (b Box) Contains(lat, lon float64) bool {
	if lat < b.SW.Lat || lat > b.NE.Lat {
		return false
	}
	if b.CrossesAntimeridian() {
		return lon >= b.SW.Lon || lon <= b.NE.Lon
	}
	return lon >= b.SW.Lon && lon <= b.NE.Lon
}

// Center — середина прямоугольника с учётом переноса через 180-й меридиан.
func (b Box) Center() Point {
	east := b.NE.Lon
	if b.CrossesAntimeridian() {
		east += 360
	}
	return Point{Lat: (b.SW.Lat + b.NE.Lat) / 2, Lon: wrapLon((b.SW.Lon + east) / 2)}
}

// Validate проверяет углы прямоугольника.
func (b Box) Validate() error {
	if err := b.SW.Validate(); err != nil {
		return err
	}
	if err := b.NE.Validate(); err != nil {
		return err
	}
	// SW.Lon > NE.Lon допустимо: прямоугольник через 180-й меридиан
	if b.SW.Lat > b.NE.Lat {
		return fmt.Errorf("юго-западный угол северо-восточнее северо-восточного: %w", common.ErrInvalidCoordinate)
	}
	return nil
}
