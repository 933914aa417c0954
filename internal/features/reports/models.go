// Package reports — приём отчётов (отзывы о POI и инциденты) и геовременная дедупликация.
package reports

import (
	"time"

	"github.com/go-playground/validator/v10"

	"serotonyl.ru/geohealth/internal/geo"
)

// Kind — тип отчёта.
type Kind string

const (
	KindPOIReview Kind = "poi_review"
	KindIncident  Kind = "incident"
)

// Status — статус модерации.
type Status string

const (
	StatusPending     Status = "pending"
	StatusApproved    Status = "approved"
	StatusSoftReject  Status = "soft_reject"
	StatusSpamBlocked Status = "spam_blocked"
)

// Report — отчёт пользователя. Автор и координаты после создания не меняются.
type Report struct {
	ID       int64   `db:"id"`
	AuthorID int64   `db:"author_id"`
	Kind     Kind    `db:"kind"`
	Lat      float64 `db:"lat"`
	Lon      float64 `db:"lon"`
	Category string  `db:"category"`
	Content  string  `db:"content"`
	HasMedia bool    `db:"has_media"`
	Rating   *int    `db:"rating"` // 1..5, только для отзывов
	// IsUnique — nil, пока уникальность ни разу не считалась.
	IsUnique          *bool          `db:"is_unique"`
	Status            Status         `db:"status"`
	ModeratedBy       *int64         `db:"moderated_by"`
	ModeratedAt       *time.Time     `db:"moderated_at"`
	ModerationComment string         `db:"moderation_comment"`
	POIID             *int64         `db:"poi_id"`
	Rewarded          bool           `db:"rewarded"` // Награда уже выдана (не более одного раза)
	FormData          map[string]any `db:"form_data"`
	CreatedAt         time.Time      `db:"created_at"`
}

// Point возвращает координаты отчёта.
func (r *Report) Point() geo.Point {
	return geo.Point{Lat: r.Lat, Lon: r.Lon}
}

// Unique сообщает значение флага уникальности (false, если не считался).
func (r *Report) Unique() bool {
	return r.IsUnique != nil && *r.IsUnique
}

// SubmitInput — входные данные нового отчёта.
type SubmitInput struct {
	AuthorID int64          `validate:"required,gt=0"`
	Kind     Kind           `validate:"required,oneof=poi_review incident"`
	Lat      float64        `validate:"-"`
	Lon      float64        `validate:"-"`
	Category string         `validate:"required,max=100"`
	Content  string         `validate:"max=5000"`
	HasMedia bool           `validate:"-"`
	Rating   *int           `validate:"omitempty,min=1,max=5"`
	POIID    *int64         `validate:"omitempty"`
	FormData map[string]any `validate:"-"`
}

// Validate проверяет поля ввода (координаты проверяет geo).
func (in *SubmitInput) Validate() error {
	v := validator.New()
	return v.Struct(in)
}

// Match — отчёт-совпадение для проверки уникальности.
type Match struct {
	ReportID       int64
	AuthorID       int64
	DistanceMeters float64
	CreatedAt      time.Time
}

// Uniqueness — результат проверки.
type Uniqueness struct {
	IsUnique bool
	Matches  []Match
}

// SubmitResult — что получилось при отправке отчёта.
type SubmitResult struct {
	Report     *Report
	Uniqueness Uniqueness
	// Points — баллы, начисленные сразу (только для дубликатов).
	Points int64
}
