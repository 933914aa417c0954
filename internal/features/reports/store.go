package reports

import (
	"context"
	"time"

	"serotonyl.ru/geohealth/internal/geo"
)

// CandidateFilter — условия выборки кандидатов для дедупликации.
// Отчёты в статусе spam_blocked в выборку не попадают никогда.
type CandidateFilter struct {
	Category  string
	Kind      Kind
	From, To  time.Time // Включительно
	Box       geo.Box   // Префильтр, окончательная проверка по расстоянию
	ExcludeID int64     // 0 — никого не исключать
}

// Store — хранилище отчётов.
type Store interface {
	Create(ctx context.Context, r *Report) error
	Get(ctx context.Context, id int64) (*Report, error)
	// Update сохраняет изменяемые поля: статус, уникальность, модерацию, флаг награды.
	Update(ctx context.Context, r *Report) error
	// SetRewarded меняет только флаг награды, не трогая статус и модерацию.
	SetRewarded(ctx context.Context, id int64, rewarded bool) error
	FindCandidates(ctx context.Context, f CandidateFilter) ([]*Report, error)
	ListByPOI(ctx context.Context, poiID int64) ([]*Report, error)
}

var (
	_ Store = (*Repository)(nil)
	_ Store = (*MemoryStore)(nil)
)
