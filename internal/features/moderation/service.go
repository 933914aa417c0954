package moderation

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/geohealth/internal/common"
	"serotonyl.ru/geohealth/internal/features/ledger"
	"serotonyl.ru/geohealth/internal/features/reports"
	"serotonyl.ru/geohealth/internal/features/rewards"
)

// Ledger — операции леджера, которые вызывает модерация.
type Ledger interface {
	Credit(ctx context.Context, req ledger.CreditRequest) (*ledger.Transaction, error)
	ApplySpamPenalty(ctx context.Context, accountID int64, reportID *int64, penalty int64) (*ledger.Account, error)
}

// QualityScorer возвращает множитель качества отзыва (с таймаутом и запасным 1.0).
type QualityScorer interface {
	QualityMultiplier(ctx context.Context, content, category string, hasMedia bool) float64
}

// Service — state-машина модерации.
//
//	pending  → approved | soft_reject | spam_blocked
//	approved → approved (только запись в журнал)
//
// Остальные переходы запрещены и ничего не меняют.
type Service struct {
	reports    reports.Store
	dedup      *reports.Deduplicator
	logs       Store
	ledger     Ledger
	policy     *rewards.Policy
	quality    QualityScorer
	recomputer reports.Recomputer

	locks *common.KeyedMutex // Решения по одному отчёту не пересекаются
	now   func() time.Time
}

// NewService создаёт сервис модерации. quality и recomputer могут быть nil.
func NewService(
	reportStore reports.Store,
	dedup *reports.Deduplicator,
	logs Store,
	l Ledger,
	policy *rewards.Policy,
	quality QualityScorer,
	recomputer reports.Recomputer,
) *Service {
	return &Service{
		reports:    reportStore,
		dedup:      dedup,
		logs:       logs,
		ledger:     l,
		policy:     policy,
		quality:    quality,
		recomputer: recomputer,
		locks:      common.NewKeyedMutex(),
		now:        time.Now,
	}
}

// Approve одобряет отчёт. Награда выдаётся не более одного раза за отчёт:
// дубликаты получили её при создании, повторное одобрение только пишет журнал.
//
// Запись в журнал делается до начисления. Если начисление не прошло, запись
// удаляется, а статус откатывается: решение либо применено целиком вместе
// с одной строкой журнала, либо не применено вовсе.
func (s *Service) Approve(ctx context.Context, reportID int64, moderatorID *int64, comment string) (*Decision, error) {
	start := s.now()
	unlock := s.locks.Lock(reportID)
	defer unlock()

	r, err := s.reports.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}

	switch r.Status {
	case reports.StatusApproved:
		l, err := s.writeLog(ctx, r.ID, moderatorID, ActionApproved, comment, start)
		if err != nil {
			return nil, err
		}
		s.logDecision(l)
		return &Decision{Report: r, Log: l}, nil
	case reports.StatusPending:
	default:
		return nil, s.invalidTransition(r, reports.StatusApproved)
	}

	if r.IsUnique == nil {
		u, err := s.dedup.CheckReport(ctx, r)
		if err != nil {
			return nil, err
		}
		r.IsUnique = &u.IsUnique
	}

	prev := *r
	reward := !r.Rewarded
	var outcome rewards.Outcome
	if reward {
		outcome = s.outcome(ctx, r)
	}

	s.markModerated(r, reports.StatusApproved, moderatorID, comment)
	if reward {
		r.Rewarded = true
	}
	if err := s.reports.Update(ctx, r); err != nil {
		return nil, err
	}

	decision := &Decision{Report: r}
	decision.Log, err = s.writeLog(ctx, r.ID, moderatorID, ActionApproved, comment, start)
	if err != nil {
		s.rollback(ctx, &prev)
		return nil, err
	}

	if reward {
		tx, err := s.credit(ctx, r, outcome)
		if err != nil {
			s.discardLog(ctx, decision.Log)
			s.rollback(ctx, &prev)
			return nil, err
		}
		decision.Transaction = tx
	}

	s.logDecision(decision.Log)
	s.recompute(ctx, r)
	return decision, nil
}

// outcome считает награду по политике. Качество спрашиваем у оракула
// только для уникальных отчётов: дубликату оно не влияет на сумму.
func (s *Service) outcome(ctx context.Context, r *reports.Report) rewards.Outcome {
	unique := r.Unique()
	quality := rewards.DefaultQualityMultiplier
	if unique && s.quality != nil {
		quality = s.quality.QualityMultiplier(ctx, r.Content, r.Category, r.HasMedia)
	}

	return s.policy.ForReport(rewards.Input{
		IsUnique: unique,
		HasMedia: r.HasMedia,
		Kind:     rewards.Kind(r.Kind),
		Quality:  quality,
	})
}

func (s *Service) credit(ctx context.Context, r *reports.Report, outcome rewards.Outcome) (*ledger.Transaction, error) {
	reportID := r.ID
	return s.ledger.Credit(ctx, ledger.CreditRequest{
		AccountID:         r.AuthorID,
		Points:            outcome.Points,
		Reputation:        outcome.Reputation,
		MonthlyReputation: outcome.MonthlyReputation,
		Reason:            outcome.Reason,
		LinkedReportID:    &reportID,
		CountUniqueReview: r.Unique(),
		Metadata:          map[string]any{"quality": outcome.Quality},
	})
}

// SoftReject мягко отклоняет отчёт: только статус, без штрафа.
func (s *Service) SoftReject(ctx context.Context, reportID int64, moderatorID *int64, comment string) (*Decision, error) {
	start := s.now()
	unlock := s.locks.Lock(reportID)
	defer unlock()

	r, err := s.reports.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if r.Status != reports.StatusPending {
		return nil, s.invalidTransition(r, reports.StatusSoftReject)
	}

	prev := *r
	s.markModerated(r, reports.StatusSoftReject, moderatorID, comment)
	if err := s.reports.Update(ctx, r); err != nil {
		return nil, err
	}

	l, err := s.writeLog(ctx, r.ID, moderatorID, ActionSoftRejected, comment, start)
	if err != nil {
		s.rollback(ctx, &prev)
		return nil, err
	}

	s.logDecision(l)
	s.recompute(ctx, r)
	return &Decision{Report: r, Log: l}, nil
}

// SpamBlock блокирует отчёт как спам и штрафует автора (может забанить).
// Журнал и штраф согласованы так же, как в Approve.
func (s *Service) SpamBlock(ctx context.Context, reportID int64, moderatorID *int64, comment string) (*Decision, error) {
	start := s.now()
	unlock := s.locks.Lock(reportID)
	defer unlock()

	r, err := s.reports.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if r.Status != reports.StatusPending {
		return nil, s.invalidTransition(r, reports.StatusSpamBlocked)
	}

	prev := *r
	s.markModerated(r, reports.StatusSpamBlocked, moderatorID, comment)
	if err := s.reports.Update(ctx, r); err != nil {
		return nil, err
	}

	l, err := s.writeLog(ctx, r.ID, moderatorID, ActionSpamBlocked, comment, start)
	if err != nil {
		s.rollback(ctx, &prev)
		return nil, err
	}

	acc, err := s.ledger.ApplySpamPenalty(ctx, r.AuthorID, &r.ID, s.policy.SpamPenalty())
	if err != nil {
		s.discardLog(ctx, l)
		s.rollback(ctx, &prev)
		return nil, err
	}

	s.logDecision(l)
	s.recompute(ctx, r)
	return &Decision{Report: r, Log: l, Account: acc}, nil
}

// Logs возвращает журнал решений по отчёту.
func (s *Service) Logs(ctx context.Context, reportID int64) ([]*Log, error) {
	return s.logs.ListByReport(ctx, reportID)
}

func (s *Service) markModerated(r *reports.Report, status reports.Status, moderatorID *int64, comment string) {
	now := s.now()
	r.Status = status
	r.ModeratedBy = moderatorID
	r.ModeratedAt = &now
	r.ModerationComment = comment
}

func (s *Service) invalidTransition(r *reports.Report, to reports.Status) error {
	log.WithFields(log.Fields{
		"report_id": r.ID,
		"from":      r.Status,
		"to":        to,
	}).Warn("Запрещённый переход статуса")
	return fmt.Errorf("%s → %s: %w", r.Status, to, common.ErrInvalidTransition)
}

// rollback возвращает отчёт в прежнее состояние, если журнал или леджер отказали.
// Вычисленная уникальность сохраняется: она не зависит от решения.
func (s *Service) rollback(ctx context.Context, prev *reports.Report) {
	if err := s.reports.Update(ctx, prev); err != nil {
		log.WithError(err).WithField("report_id", prev.ID).Error("Не удалось откатить статус отчёта")
	}
}

func (s *Service) writeLog(ctx context.Context, reportID int64, moderatorID *int64, action Action, comment string, start time.Time) (*Log, error) {
	l := &Log{
		ModeratorID:           moderatorID,
		ReportID:              reportID,
		Action:                action,
		Comment:               comment,
		ProcessingTimeSeconds: s.now().Sub(start).Seconds(),
	}
	if err := s.logs.Append(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// discardLog убирает запись о решении, которое не удалось применить.
func (s *Service) discardLog(ctx context.Context, l *Log) {
	if err := s.logs.Delete(ctx, l.ID); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"report_id": l.ReportID,
			"log_id":    l.ID,
		}).Error("Не удалось удалить запись журнала неприменённого решения")
	}
}

func (s *Service) logDecision(l *Log) {
	log.WithFields(log.Fields{
		"report_id":    l.ReportID,
		"moderator_id": l.ModeratorID,
		"action":       l.Action,
	}).Info("Решение модерации записано")
}

// recompute пересчитывает рейтинг POI, к которому привязан отзыв.
func (s *Service) recompute(ctx context.Context, r *reports.Report) {
	if s.recomputer == nil || r.Kind != reports.KindPOIReview || r.POIID == nil {
		return
	}
	if _, err := s.recomputer.Recompute(ctx, *r.POIID); err != nil {
		log.WithError(err).WithField("poi_id", *r.POIID).Warn("Не удалось пересчитать рейтинг POI")
	}
}
