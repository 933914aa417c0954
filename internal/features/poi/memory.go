package poi

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"serotonyl.ru/geohealth/internal/common"
	"serotonyl.ru/geohealth/internal/geo"
)

// MemoryStore — хранилище POI в памяти (тесты, локальный режим).
type MemoryStore struct {
	mu         sync.RWMutex
	pois       map[int64]*POI
	ratings    map[int64]*Rating
	categories map[string]int64
	nextID     int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pois:       make(map[int64]*POI),
		ratings:    make(map[int64]*Rating),
		categories: make(map[string]int64),
	}
}

func (m *MemoryStore) Create(_ context.Context, p *POI) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	catID, ok := m.categories[p.Category]
	if !ok {
		catID = int64(len(m.categories) + 1)
		m.categories[p.Category] = catID
	}
	m.nextID++
	p.ID = m.nextID
	p.CategoryID = catID
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	stored := *p
	m.pois[p.ID] = &stored
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id int64) (*POI, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.pois[id]
	if !ok {
		return nil, fmt.Errorf("poi_id=%d: %w", id, common.ErrPOINotFound)
	}
	out := *p
	return &out, nil
}

func (m *MemoryStore) GetMany(_ context.Context, ids []int64) ([]*POI, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*POI
	for _, id := range ids {
		if p, ok := m.pois[id]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) UpdateDescription(_ context.Context, id int64, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pois[id]
	if !ok {
		return fmt.Errorf("poi_id=%d: %w", id, common.ErrPOINotFound)
	}
	p.Description = description
	return nil
}

func (m *MemoryStore) ListIDs(_ context.Context, afterID int64, limit int) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []int64
	for id := range m.pois {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *MemoryStore) InBox(_ context.Context, box geo.Box, category string) ([]*POI, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*POI
	for _, p := range m.pois {
		if !p.Searchable() || !box.Contains(p.Lat, p.Lon) {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) GetRating(_ context.Context, poiID int64) (*Rating, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rt, ok := m.ratings[poiID]
	if !ok {
		return nil, nil
	}
	out := *rt
	return &out, nil
}

func (m *MemoryStore) SaveRating(_ context.Context, rt *Rating) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *rt
	m.ratings[rt.POIID] = &stored
	return nil
}

func (m *MemoryStore) Ratings(_ context.Context, poiIDs []int64) (map[int64]*Rating, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[int64]*Rating, len(poiIDs))
	for _, id := range poiIDs {
		if rt, ok := m.ratings[id]; ok {
			cp := *rt
			out[id] = &cp
		}
	}
	return out, nil
}
