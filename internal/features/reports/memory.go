package reports

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"serotonyl.ru/geohealth/internal/common"
	"serotonyl.ru/geohealth/internal/geo"
)

// MemoryStore — хранилище отчётов в памяти (тесты, локальный режим).
type MemoryStore struct {
	mu      sync.RWMutex
	reports map[int64]*Report
	nextID  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reports: make(map[int64]*Report)}
}

func clone(r *Report) *Report {
	out := *r
	out.FormData = maps.Clone(r.FormData)
	return &out
}

func (m *MemoryStore) Create(_ context.Context, r *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	r.ID = m.nextID
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	m.reports[r.ID] = clone(r)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id int64) (*Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.reports[id]
	if !ok {
		return nil, fmt.Errorf("report_id=%d: %w", id, common.ErrReportNotFound)
	}
	return clone(r), nil
}

func (m *MemoryStore) Update(_ context.Context, r *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.reports[r.ID]
	if !ok {
		return fmt.Errorf("report_id=%d: %w", r.ID, common.ErrReportNotFound)
	}
	stored.Status = r.Status
	stored.IsUnique = r.IsUnique
	stored.ModeratedBy = r.ModeratedBy
	stored.ModeratedAt = r.ModeratedAt
	stored.ModerationComment = r.ModerationComment
	stored.Rewarded = r.Rewarded
	return nil
}

func (m *MemoryStore) SetRewarded(_ context.Context, id int64, rewarded bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.reports[id]
	if !ok {
		return fmt.Errorf("report_id=%d: %w", id, common.ErrReportNotFound)
	}
	stored.Rewarded = rewarded
	return nil
}

func (m *MemoryStore) FindCandidates(_ context.Context, f CandidateFilter) ([]*Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Report
	for _, r := range m.reports {
		if r.ID == f.ExcludeID || r.Status == StatusSpamBlocked {
			continue
		}
		if r.Category != f.Category || r.Kind != f.Kind {
			continue
		}
		if !geo.InWindow(r.CreatedAt, f.From, f.To) || !f.Box.Contains(r.Lat, r.Lon) {
			continue
		}
		out = append(out, clone(r))
	}
	sortReports(out)
	return out, nil
}

func (m *MemoryStore) ListByPOI(_ context.Context, poiID int64) ([]*Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Report
	for _, r := range m.reports {
		if r.POIID != nil && *r.POIID == poiID {
			out = append(out, clone(r))
		}
	}
	sortReports(out)
	return out, nil
}

func sortReports(rs []*Report) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.Before(rs[j].CreatedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}
