package poi

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"serotonyl.ru/geohealth/internal/common"
	"serotonyl.ru/geohealth/internal/config"
	"serotonyl.ru/geohealth/internal/geocode"
)

// ReviewSource отдаёт отзывы, привязанные к POI.
type ReviewSource interface {
	ReviewsForPOI(ctx context.Context, poiID int64) ([]Review, error)
}

// ReputationSource отдаёт накопленную репутацию авторов.
type ReputationSource interface {
	Reputations(ctx context.Context, accountIDs []int64) (map[int64]int64, error)
}

// StaticScorer оценивает описание POI (0..100). Сам отвечает за таймаут
// и значение по умолчанию, ошибок не возвращает.
type StaticScorer interface {
	StaticScore(ctx context.Context, description, category string) float64
}

// Deps — внешние зависимости сервиса. Все, кроме Store, необязательны.
type Deps struct {
	Store       Store
	Reviews     ReviewSource
	Reputations ReputationSource
	Scorer      StaticScorer
	Index       GeoSearchIndex
	IndexWriter GeoIndexWriter
	Resolver    geocode.AddressResolver
}

// Service — POI, рейтинги, поиск и индекс здоровья.
type Service struct {
	store       Store
	reviews     ReviewSource
	reputations ReputationSource
	scorer      StaticScorer
	index       GeoSearchIndex
	indexWriter GeoIndexWriter
	resolver    geocode.AddressResolver

	weights     HealthWeights
	batchSize   int
	maxParallel int

	locks *common.KeyedMutex // Пересчёты одного POI не пересекаются
	now   func() time.Time
}

// NewService создаёт сервис POI.
func NewService(deps Deps, cfg *config.Config) *Service {
	return &Service{
		store:       deps.Store,
		reviews:     deps.Reviews,
		reputations: deps.Reputations,
		scorer:      deps.Scorer,
		index:       deps.Index,
		indexWriter: deps.IndexWriter,
		resolver:    deps.Resolver,
		weights:     WeightsFromConfig(cfg),
		batchSize:   cfg.RecomputeBatchSize,
		maxParallel: cfg.RecomputeMaxParallel,
		locks:       common.NewKeyedMutex(),
		now:         time.Now,
	}
}

// SetReviewSource подключает источник отзывов. Сервис отчётов создаётся
// после сервиса POI, поэтому связываем их уже после конструкторов.
func (s *Service) SetReviewSource(src ReviewSource) {
	s.reviews = src
}

// Create сохраняет POI, добавляет его в геоиндекс и считает первый рейтинг.
func (s *Service) Create(ctx context.Context, p *POI) (*Rating, error) {
	if err := p.Point().Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}

	if s.indexWriter != nil && p.Searchable() {
		if err := s.indexWriter.Upsert(ctx, p); err != nil {
			log.WithError(err).WithField("poi_id", p.ID).Warn("Не удалось добавить POI в геоиндекс")
		}
	}

	return s.Recompute(ctx, p.ID)
}

// Get возвращает POI с текущим рейтингом.
func (s *Service) Get(ctx context.Context, id int64) (*RatedPOI, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rt, err := s.store.GetRating(ctx, id)
	if err != nil {
		return nil, err
	}
	return &RatedPOI{POI: *p, Rating: rt}, nil
}

// UpdateDescription меняет описание и сразу пересчитывает рейтинг.
func (s *Service) UpdateDescription(ctx context.Context, id int64, description string) (*Rating, error) {
	if err := s.store.UpdateDescription(ctx, id, description); err != nil {
		return nil, err
	}
	return s.Recompute(ctx, id)
}

// Recompute заново строит рейтинг POI из текущего состояния: описание,
// одобренные отзывы, репутация авторов, отметка о проверке.
func (s *Service) Recompute(ctx context.Context, poiID int64) (*Rating, error) {
	unlock := s.locks.Lock(poiID)
	defer unlock()

	p, err := s.store.Get(ctx, poiID)
	if err != nil {
		return nil, err
	}

	var reviews []Review
	if s.reviews != nil {
		reviews, err = s.reviews.ReviewsForPOI(ctx, poiID)
		if err != nil {
			return nil, fmt.Errorf("ошибка получения отзывов (poi_id=%d): %w", poiID, err)
		}
	}

	reputations := map[int64]int64{}
	if s.reputations != nil && len(reviews) > 0 {
		authors := make([]int64, 0, len(reviews))
		for _, r := range reviews {
			authors = append(authors, r.AuthorID)
		}
		reputations, err = s.reputations.Reputations(ctx, authors)
		if err != nil {
			return nil, fmt.Errorf("ошибка получения репутации авторов: %w", err)
		}
	}

	static := NeutralScore
	if s.scorer != nil {
		static = s.scorer.StaticScore(ctx, p.Description, p.Category)
	}

	now := s.now()
	social := SocialScore(reviews, reputations, now, s.weights.HalfLifeDays)

	approved := 0
	for _, r := range reviews {
		if r.Approved {
			approved++
		}
	}

	rating := &Rating{
		POIID:               poiID,
		StaticScore:         static,
		SocialScore:         social,
		CompositeScore:      CompositeScore(static, social, p.Verified, s.weights),
		ReviewCount:         len(reviews),
		ApprovedReviewCount: approved,
		LastRecomputed:      now,
	}
	if err := s.store.SaveRating(ctx, rating); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"poi_id":    poiID,
		"composite": rating.CompositeScore,
		"reviews":   rating.ReviewCount,
	}).Debug("Рейтинг POI пересчитан")

	return rating, nil
}

// RecomputeAll обходит все POI пачками и пересчитывает их с ограниченным
// параллелизмом. Ошибка на одном POI пишется в лог и не останавливает обход.
func (s *Service) RecomputeAll(ctx context.Context) (RecomputeSummary, error) {
	var processed, failed atomic.Int64
	var afterID int64

	for {
		ids, err := s.store.ListIDs(ctx, afterID, s.batchSize)
		if err != nil {
			return RecomputeSummary{Processed: int(processed.Load()), Failed: int(failed.Load())}, err
		}
		if len(ids) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.maxParallel)
		for _, id := range ids {
			g.Go(func() error {
				if _, err := s.Recompute(gctx, id); err != nil {
					failed.Add(1)
					log.WithError(err).WithField("poi_id", id).Error("Ошибка пересчёта POI")
					return nil
				}
				processed.Add(1)
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return RecomputeSummary{Processed: int(processed.Load()), Failed: int(failed.Load())}, err
		}
		afterID = ids[len(ids)-1]
	}

	summary := RecomputeSummary{Processed: int(processed.Load()), Failed: int(failed.Load())}
	log.WithFields(log.Fields{
		"processed": summary.Processed,
		"failed":    summary.Failed,
	}).Info("Пересчёт рейтингов завершён")
	return summary, nil
}
