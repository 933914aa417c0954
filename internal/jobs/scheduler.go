// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: месячный сброс репутации
// и ночной пересчёт рейтингов POI.
package jobs

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/geohealth/internal/common"
	"serotonyl.ru/geohealth/internal/config"
	"serotonyl.ru/geohealth/internal/features/leaderboard"
	"serotonyl.ru/geohealth/internal/features/ledger"
	"serotonyl.ru/geohealth/internal/features/poi"
)

// MonthlyResetter — месячный сброс леджера.
type MonthlyResetter interface {
	MonthlyReset(ctx context.Context, rate float64) (ledger.ResetSummary, error)
}

// RatingRecomputer — пересчёт рейтингов всех POI.
type RatingRecomputer interface {
	RecomputeAll(ctx context.Context) (poi.RecomputeSummary, error)
}

// MonthlyTop отдаёт итоговую таблицу месяца перед сбросом.
type MonthlyTop interface {
	TopMonthly(ctx context.Context) ([]leaderboard.Entry, error)
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron       *cron.Cron
	cfg        *config.Config
	ledger     MonthlyResetter
	ratings    RatingRecomputer
	top        MonthlyTop
	cronCancel context.CancelFunc
}

// NewScheduler создаёт планировщик в часовом поясе Москвы. top может быть nil.
func NewScheduler(cfg *config.Config, l MonthlyResetter, ratings RatingRecomputer, top MonthlyTop) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(common.MoscowLocation())),
		cfg:     cfg,
		ledger:  l,
		ratings: ratings,
		top:     top,
	}
}

// Start регистрирует задачи и запускает cron.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, s.cronCancel = context.WithCancel(ctx)

	if _, err := s.cron.AddFunc(s.cfg.MonthlyResetCron, func() { s.RunMonthlyReset(ctx) }); err != nil {
		return fmt.Errorf("некорректное расписание MONTHLY_RESET_CRON: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.RecomputeCron, func() { s.RunRecompute(ctx) }); err != nil {
		return fmt.Errorf("некорректное расписание RECOMPUTE_CRON: %w", err)
	}

	s.cron.Start()
	log.WithFields(log.Fields{
		"monthly_reset": s.cfg.MonthlyResetCron,
		"recompute":     s.cfg.RecomputeCron,
	}).Info("Планировщик задач запущен (Europe/Moscow)")
	return nil
}

// Stop останавливает планировщик и ждёт завершения запущенных задач.
func (s *Scheduler) Stop() {
	if s.cronCancel != nil {
		s.cronCancel()
	}
	<-s.cron.Stop().Done()
	log.Info("Планировщик задач остановлен")
}

// RunMonthlyReset фиксирует итоги месяца в логе и сбрасывает месячную репутацию.
func (s *Scheduler) RunMonthlyReset(ctx context.Context) {
	defer common.RecoverFromPanic("monthly_reset")
	log.Info("[CRON] Месячный сброс репутации")

	if s.top != nil {
		entries, err := s.top.TopMonthly(ctx)
		if err != nil {
			log.WithError(err).Warn("[CRON] Не удалось получить итоги месяца")
		}
		for _, e := range entries {
			log.WithFields(log.Fields{
				"rank":       e.Rank,
				"account_id": e.AccountID,
				"reputation": e.Score,
			}).Info("[CRON] Итоги месяца")
		}
	}

	summary, err := s.ledger.MonthlyReset(ctx, s.cfg.PointsToReputationRate)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка месячного сброса")
		return
	}
	log.WithFields(log.Fields{
		"processed": summary.Processed,
		"failed":    summary.Failed,
		"converted": summary.ConvertedPoints,
	}).Info("[CRON] Месячный сброс завершён")
}

// RunRecompute пересчитывает рейтинги всех POI: затухание отзывов
// меняет индекс даже без новых событий.
func (s *Scheduler) RunRecompute(ctx context.Context) {
	defer common.RecoverFromPanic("recompute_ratings")
	log.Info("[CRON] Пересчёт рейтингов POI")

	summary, err := s.ratings.RecomputeAll(ctx)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка пересчёта рейтингов")
		return
	}
	log.WithFields(log.Fields{
		"processed": summary.Processed,
		"failed":    summary.Failed,
	}).Info("[CRON] Пересчёт рейтингов завершён")
}
