package reports

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/geohealth/internal/common"
)

// Repository выполняет SQL-запросы к таблице reports.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий отчётов.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const reportColumns = `
	id, author_id, kind, lat, lon, category, content, has_media, rating, is_unique,
	status, moderated_by, moderated_at, moderation_comment, poi_id, rewarded, form_data, created_at`

func scanReport(row pgx.Row) (*Report, error) {
	var r Report
	var kind, status string
	err := row.Scan(
		&r.ID, &r.AuthorID, &kind, &r.Lat, &r.Lon, &r.Category, &r.Content, &r.HasMedia,
		&r.Rating, &r.IsUnique, &status, &r.ModeratedBy, &r.ModeratedAt, &r.ModerationComment,
		&r.POIID, &r.Rewarded, &r.FormData, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Kind = Kind(kind)
	r.Status = Status(status)
	return &r, nil
}

func collectReports(rows pgx.Rows) ([]*Report, error) {
	defer rows.Close()

	var out []*Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования отчёта: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

// Create сохраняет новый отчёт и заполняет ID и CreatedAt (если не задан).
func (r *Repository) Create(ctx context.Context, rep *Report) error {
	formData := rep.FormData
	if formData == nil {
		formData = map[string]any{}
	}
	query := `
		INSERT INTO reports
		    (author_id, kind, lat, lon, category, content, has_media, rating, is_unique,
		     status, poi_id, rewarded, form_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, COALESCE($14, NOW()))
		RETURNING id, created_at
	`
	var createdAt any
	if !rep.CreatedAt.IsZero() {
		createdAt = rep.CreatedAt
	}
	err := r.db.QueryRow(ctx, query,
		rep.AuthorID, string(rep.Kind), rep.Lat, rep.Lon, rep.Category, rep.Content, rep.HasMedia,
		rep.Rating, rep.IsUnique, string(rep.Status), rep.POIID, rep.Rewarded, formData, createdAt,
	).Scan(&rep.ID, &rep.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания отчёта: %w", err)
	}
	return nil
}

// Get возвращает отчёт или common.ErrReportNotFound.
func (r *Repository) Get(ctx context.Context, id int64) (*Report, error) {
	rep, err := scanReport(r.db.QueryRow(ctx, `SELECT`+reportColumns+` FROM reports WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("report_id=%d: %w", id, common.ErrReportNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения отчёта: %w", err)
	}
	return rep, nil
}

// Update сохраняет изменяемые поля отчёта.
func (r *Repository) Update(ctx context.Context, rep *Report) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE reports
		SET status = $2, is_unique = $3, moderated_by = $4, moderated_at = $5,
		    moderation_comment = $6, rewarded = $7
		WHERE id = $1
	`, rep.ID, string(rep.Status), rep.IsUnique, rep.ModeratedBy, rep.ModeratedAt,
		rep.ModerationComment, rep.Rewarded)
	if err != nil {
		return fmt.Errorf("ошибка обновления отчёта: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("report_id=%d: %w", rep.ID, common.ErrReportNotFound)
	}
	return nil
}

func (r *Repository) SetRewarded(ctx context.Context, id int64, rewarded bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE reports SET rewarded = $2 WHERE id = $1`, id, rewarded)
	if err != nil {
		return fmt.Errorf("ошибка обновления флага награды: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("report_id=%d: %w", id, common.ErrReportNotFound)
	}
	return nil
}

// FindCandidates выбирает отчёты той же категории и типа в окне времени
// и в прямоугольнике префильтра. Использует индекс (category, kind, created_at).
func (r *Repository) FindCandidates(ctx context.Context, f CandidateFilter) ([]*Report, error) {
	rows, err := r.db.Query(ctx, `SELECT`+reportColumns+`
		FROM reports
		WHERE category = $1 AND kind = $2
		  AND status <> 'spam_blocked'
		  AND created_at BETWEEN $3 AND $4
		  AND lat BETWEEN $5 AND $6
		  AND (lon BETWEEN $7 AND $8 OR ($7 > $8 AND (lon >= $7 OR lon <= $8)))
		  AND id <> $9
		ORDER BY created_at, id
	`, f.Category, string(f.Kind), f.From, f.To,
		f.Box.SW.Lat, f.Box.NE.Lat, f.Box.SW.Lon, f.Box.NE.Lon, f.ExcludeID)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска кандидатов: %w", err)
	}
	return collectReports(rows)
}

// ListByPOI возвращает отчёты, привязанные к POI.
func (r *Repository) ListByPOI(ctx context.Context, poiID int64) ([]*Report, error) {
	rows, err := r.db.Query(ctx, `SELECT`+reportColumns+`
		FROM reports
		WHERE poi_id = $1
		ORDER BY created_at, id
	`, poiID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения отчётов POI: %w", err)
	}
	return collectReports(rows)
}
