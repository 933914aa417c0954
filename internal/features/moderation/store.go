package moderation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store — журнал модерации. Записи только добавляются; Delete нужен лишь
// для отката решения, которое не удалось применить.
type Store interface {
	Append(ctx context.Context, l *Log) error
	Delete(ctx context.Context, id int64) error
	ListByReport(ctx context.Context, reportID int64) ([]*Log, error)
}

var (
	_ Store = (*Repository)(nil)
	_ Store = (*MemoryStore)(nil)
)

// Repository — журнал в таблице moderation_logs.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Append добавляет запись и заполняет ID и CreatedAt.
func (r *Repository) Append(ctx context.Context, l *Log) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO moderation_logs (moderator_id, report_id, action, comment, processing_time_seconds)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, l.ModeratorID, l.ReportID, string(l.Action), l.Comment, l.ProcessingTimeSeconds).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи журнала модерации: %w", err)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM moderation_logs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("ошибка удаления записи журнала: %w", err)
	}
	return nil
}

// ListByReport возвращает решения по отчёту в хронологическом порядке.
func (r *Repository) ListByReport(ctx context.Context, reportID int64) ([]*Log, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, moderator_id, report_id, action, comment, processing_time_seconds, created_at
		FROM moderation_logs
		WHERE report_id = $1
		ORDER BY created_at, id
	`, reportID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения журнала модерации: %w", err)
	}
	defer rows.Close()

	var out []*Log
	for rows.Next() {
		var l Log
		var action string
		if err := rows.Scan(&l.ID, &l.ModeratorID, &l.ReportID, &action, &l.Comment, &l.ProcessingTimeSeconds, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования: %w", err)
		}
		l.Action = Action(action)
		out = append(out, &l)
	}
	return out, rows.Err()
}

// MemoryStore — журнал в памяти.
type MemoryStore struct {
	mu     sync.Mutex
	logs   []*Log
	nextID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(_ context.Context, l *Log) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	l.ID = m.nextID
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	stored := *l
	m.logs = append(m.logs, &stored)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, l := range m.logs {
		if l.ID == id {
			m.logs = append(m.logs[:i], m.logs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *MemoryStore) ListByReport(_ context.Context, reportID int64) ([]*Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Log
	for _, l := range m.logs {
		if l.ReportID == reportID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}
