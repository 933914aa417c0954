package poi

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/geohealth/internal/common"
	"serotonyl.ru/geohealth/internal/geo"
)

// Repository выполняет SQL-запросы к таблицам pois и poi_ratings.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий POI.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const poiColumns = `
	p.id, p.category_id, c.name, p.name, p.lat, p.lon, p.description,
	p.verified, p.active, p.approved, p.created_at`

const poiFrom = ` FROM pois p JOIN poi_categories c ON c.id = p.category_id`

func scanPOI(row pgx.Row) (*POI, error) {
	var p POI
	err := row.Scan(
		&p.ID, &p.CategoryID, &p.Category, &p.Name, &p.Lat, &p.Lon, &p.Description,
		&p.Verified, &p.Active, &p.Approved, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectPOIs(rows pgx.Rows) ([]*POI, error) {
	defer rows.Close()

	var out []*POI
	for rows.Next() {
		p, err := scanPOI(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования POI: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

// Create сохраняет POI. Категория создаётся по имени, если её ещё нет.
func (r *Repository) Create(ctx context.Context, p *POI) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO poi_categories (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, p.Category).Scan(&p.CategoryID)
	if err != nil {
		return fmt.Errorf("ошибка создания категории: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO pois (category_id, name, lat, lon, description, verified, active, approved)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, p.CategoryID, p.Name, p.Lat, p.Lon, p.Description, p.Verified, p.Active, p.Approved).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания POI: %w", err)
	}

	return tx.Commit(ctx)
}

// Get возвращает POI или common.ErrPOINotFound.
func (r *Repository) Get(ctx context.Context, id int64) (*POI, error) {
	p, err := scanPOI(r.db.QueryRow(ctx, `SELECT`+poiColumns+poiFrom+` WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("poi_id=%d: %w", id, common.ErrPOINotFound)
		}
		return nil, fmt.Errorf("ошибка чтения POI: %w", err)
	}
	return p, nil
}

// GetMany возвращает найденные POI (отсутствующие ID пропускаются).
func (r *Repository) GetMany(ctx context.Context, ids []int64) ([]*POI, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT`+poiColumns+poiFrom+` WHERE p.id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения POI: %w", err)
	}
	return collectPOIs(rows)
}

// UpdateDescription меняет описание POI.
func (r *Repository) UpdateDescription(ctx context.Context, id int64, description string) error {
	tag, err := r.db.Exec(ctx, `UPDATE pois SET description = $2 WHERE id = $1`, id, description)
	if err != nil {
		return fmt.Errorf("ошибка обновления описания: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("poi_id=%d: %w", id, common.ErrPOINotFound)
	}
	return nil
}

// ListIDs возвращает очередную страницу ID.
func (r *Repository) ListIDs(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM pois WHERE id > $1 ORDER BY id LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка POI: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ошибка сканирования: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InBox выбирает активные одобренные POI в прямоугольнике.
func (r *Repository) InBox(ctx context.Context, box geo.Box, category string) ([]*POI, error) {
	rows, err := r.db.Query(ctx, `SELECT`+poiColumns+poiFrom+`
		WHERE p.active AND p.approved
		  AND p.lat BETWEEN $1 AND $2
		  AND (p.lon BETWEEN $3 AND $4 OR ($3 > $4 AND (p.lon >= $3 OR p.lon <= $4)))
		  AND ($5 = '' OR c.name = $5)
		ORDER BY p.id
	`, box.SW.Lat, box.NE.Lat, box.SW.Lon, box.NE.Lon, category)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска POI в области: %w", err)
	}
	return collectPOIs(rows)
}

const ratingColumns = ` poi_id, static_score, social_score, composite_score,
	review_count, approved_review_count, last_recomputed`

func scanRating(row pgx.Row) (*Rating, error) {
	var rt Rating
	err := row.Scan(&rt.POIID, &rt.StaticScore, &rt.SocialScore, &rt.CompositeScore,
		&rt.ReviewCount, &rt.ApprovedReviewCount, &rt.LastRecomputed)
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

// GetRating возвращает рейтинг или nil, если его нет.
func (r *Repository) GetRating(ctx context.Context, poiID int64) (*Rating, error) {
	rt, err := scanRating(r.db.QueryRow(ctx, `SELECT`+ratingColumns+` FROM poi_ratings WHERE poi_id = $1`, poiID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения рейтинга: %w", err)
	}
	return rt, nil
}

// SaveRating записывает рейтинг целиком (upsert).
func (r *Repository) SaveRating(ctx context.Context, rt *Rating) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO poi_ratings
		    (poi_id, static_score, social_score, composite_score, review_count, approved_review_count, last_recomputed)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (poi_id) DO UPDATE SET
		    static_score = EXCLUDED.static_score,
		    social_score = EXCLUDED.social_score,
		    composite_score = EXCLUDED.composite_score,
		    review_count = EXCLUDED.review_count,
		    approved_review_count = EXCLUDED.approved_review_count,
		    last_recomputed = EXCLUDED.last_recomputed
	`, rt.POIID, rt.StaticScore, rt.SocialScore, rt.CompositeScore,
		rt.ReviewCount, rt.ApprovedReviewCount, rt.LastRecomputed)
	if err != nil {
		return fmt.Errorf("ошибка сохранения рейтинга (poi_id=%d): %w", rt.POIID, err)
	}
	return nil
}

// Ratings возвращает рейтинги по списку POI.
func (r *Repository) Ratings(ctx context.Context, poiIDs []int64) (map[int64]*Rating, error) {
	out := make(map[int64]*Rating, len(poiIDs))
	if len(poiIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `SELECT`+ratingColumns+` FROM poi_ratings WHERE poi_id = ANY($1)`, poiIDs)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения рейтингов: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rt, err := scanRating(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования рейтинга: %w", err)
		}
		out[rt.POIID] = rt
	}
	return out, rows.Err()
}
