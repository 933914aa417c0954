package reports

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/geohealth/internal/common"
	"serotonyl.ru/geohealth/internal/features/ledger"
	"serotonyl.ru/geohealth/internal/features/poi"
	"serotonyl.ru/geohealth/internal/features/rewards"
	"serotonyl.ru/geohealth/internal/geo"
)

// Ledger — операции леджера, нужные при приёме отчёта.
type Ledger interface {
	CheckNotBanned(ctx context.Context, accountID int64) error
	Credit(ctx context.Context, req ledger.CreditRequest) (*ledger.Transaction, error)
}

// Recomputer пересчитывает рейтинг POI после изменения его отзывов.
type Recomputer interface {
	Recompute(ctx context.Context, poiID int64) (*poi.Rating, error)
}

// Service принимает отчёты пользователей.
type Service struct {
	store      Store
	dedup      *Deduplicator
	ledger     Ledger
	policy     *rewards.Policy
	forms      Forms
	limiter    *common.RateLimiter
	recomputer Recomputer
	now        func() time.Time
}

// NewService создаёт сервис приёма отчётов.
func NewService(store Store, dedup *Deduplicator, l Ledger, policy *rewards.Policy, forms Forms, limiter *common.RateLimiter, recomputer Recomputer) *Service {
	if forms == nil {
		forms = Forms{}
	}
	return &Service{
		store:      store,
		dedup:      dedup,
		ledger:     l,
		policy:     policy,
		forms:      forms,
		limiter:    limiter,
		recomputer: recomputer,
		now:        time.Now,
	}
}

// Submit принимает новый отчёт.
//
// Порядок: проверка полей, бана, координат, анкета категории,
// лимит частоты, проверка уникальности, сохранение. Дубликат получает
// награду сразу; уникальный отчёт награждается только при одобрении.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidReport, err)
	}
	if err := s.ledger.CheckNotBanned(ctx, in.AuthorID); err != nil {
		return nil, err
	}
	if err := geo.ValidateCoordinate(in.Lat, in.Lon); err != nil {
		return nil, err
	}
	if in.Kind == KindIncident && in.Rating != nil {
		return nil, fmt.Errorf("%w: у инцидента не бывает оценки", common.ErrInvalidReport)
	}
	if err := s.forms.Validate(in.Category, in.FormData); err != nil {
		return nil, err
	}

	if s.limiter != nil && !s.limiter.Allow(in.AuthorID) {
		return nil, common.ErrRateLimited
	}

	report, uniq, err := s.create(ctx, in)
	if err != nil {
		// Несохранённый отчёт не расходует лимит
		if s.limiter != nil {
			s.limiter.Release(in.AuthorID)
		}
		return nil, err
	}

	isUnique := uniq.IsUnique
	result := &SubmitResult{Report: report, Uniqueness: uniq}

	if !isUnique {
		result.Points = s.rewardDuplicate(ctx, report)
	}

	log.WithFields(log.Fields{
		"report_id": report.ID,
		"author_id": report.AuthorID,
		"category":  report.Category,
		"unique":    isUnique,
		"matches":   len(uniq.Matches),
	}).Info("Отчёт принят")

	if report.POIID != nil && s.recomputer != nil {
		if _, err := s.recomputer.Recompute(ctx, *report.POIID); err != nil {
			log.WithError(err).WithField("poi_id", *report.POIID).Warn("Не удалось пересчитать рейтинг POI")
		}
	}

	return result, nil
}

// create проверяет уникальность и сохраняет отчёт.
func (s *Service) create(ctx context.Context, in SubmitInput) (*Report, Uniqueness, error) {
	now := s.now()
	uniq, err := s.dedup.CheckUniqueness(ctx, in.Lat, in.Lon, in.Category, in.Kind, now)
	if err != nil {
		return nil, uniq, err
	}

	isUnique := uniq.IsUnique
	report := &Report{
		AuthorID:  in.AuthorID,
		Kind:      in.Kind,
		Lat:       in.Lat,
		Lon:       in.Lon,
		Category:  in.Category,
		Content:   in.Content,
		HasMedia:  in.HasMedia,
		Rating:    in.Rating,
		IsUnique:  &isUnique,
		Status:    StatusPending,
		POIID:     in.POIID,
		FormData:  in.FormData,
		CreatedAt: now,
		// Флаг ставится до начисления: модерация не выдаст вторую награду
		Rewarded: !isUnique,
	}
	if err := s.store.Create(ctx, report); err != nil {
		return nil, uniq, err
	}

	return report, uniq, nil
}

// rewardDuplicate начисляет награду за дубликат. Если начисление не прошло,
// снимается только флаг, и награду выдаст модерация. Остальные поля не
// трогаем: модератор мог уже принять решение по отчёту.
func (s *Service) rewardDuplicate(ctx context.Context, report *Report) int64 {
	outcome := s.policy.ForReport(rewards.Input{
		IsUnique: false,
		HasMedia: report.HasMedia,
		Kind:     rewards.Kind(report.Kind),
	})

	reportID := report.ID
	_, err := s.ledger.Credit(ctx, ledger.CreditRequest{
		AccountID:         report.AuthorID,
		Points:            outcome.Points,
		Reputation:        outcome.Reputation,
		MonthlyReputation: outcome.MonthlyReputation,
		Reason:            outcome.Reason,
		LinkedReportID:    &reportID,
	})
	if err == nil {
		return outcome.Points
	}

	log.WithError(err).WithField("report_id", report.ID).Error("Не удалось начислить награду за дубликат")
	report.Rewarded = false
	if err := s.store.SetRewarded(ctx, report.ID, false); err != nil {
		log.WithError(err).WithField("report_id", report.ID).Error("Не удалось снять флаг награды")
	}
	return 0
}

// Get возвращает отчёт.
func (s *Service) Get(ctx context.Context, id int64) (*Report, error) {
	return s.store.Get(ctx, id)
}

// ReviewsForPOI отдаёт отзывы POI для социальной оценки. Спам не учитывается.
func (s *Service) ReviewsForPOI(ctx context.Context, poiID int64) ([]poi.Review, error) {
	reports, err := s.store.ListByPOI(ctx, poiID)
	if err != nil {
		return nil, err
	}

	var out []poi.Review
	for _, r := range reports {
		if r.Kind != KindPOIReview || r.Status == StatusSpamBlocked {
			continue
		}
		out = append(out, poi.Review{
			ReportID:  r.ID,
			AuthorID:  r.AuthorID,
			Rating:    r.Rating,
			Approved:  r.Status == StatusApproved,
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}
