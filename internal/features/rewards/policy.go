// Package rewards — чистая функция расчёта баллов и репутации за отчёт.
// Никаких обращений к БД: на входе признаки отчёта, на выходе суммы.
package rewards

import (
	"math"

	"serotonyl.ru/geohealth/internal/common"
	"serotonyl.ru/geohealth/internal/config"
)

// Границы множителя качества, который приходит от оракула.
const (
	MinQualityMultiplier     = 0.5
	MaxQualityMultiplier     = 1.5
	DefaultQualityMultiplier = 1.0
)

// Kind — тип отчёта с точки зрения политики наград.
type Kind string

const (
	KindPOIReview Kind = "poi_review"
	KindIncident  Kind = "incident"
)

// Input — признаки отчёта, от которых зависит награда.
type Input struct {
	IsUnique bool
	HasMedia bool
	Kind     Kind
	// Quality — множитель качества от оракула. 0 означает «не передан» (= 1.0).
	Quality float64
}

// Outcome — сколько начислить.
type Outcome struct {
	Points            int64
	Reputation        int64
	MonthlyReputation int64
	// Reason — причина для транзакции в леджере.
	Reason string
	// Quality — фактически применённый множитель (после ограничения диапазона).
	Quality float64
}

// Причины начисления, которые выдаёт политика (совпадают с ledger.Reason*).
const (
	ReasonUniqueReviewApproved = "unique_review_approved"
	ReasonDuplicateReview      = "duplicate_review"
	ReasonIncidentReported     = "incident_reported"
)

// Policy хранит базовые величины наград из конфигурации.
type Policy struct {
	pointsUnique       int64
	reputationUnique   int64
	pointsDuplicate    int64
	spamPenalty        int64
	mediaMultiplier    float64
	duplicateMediaMult float64
	incidentUplift     float64
}

// NewPolicy создаёт политику из конфигурации.
func NewPolicy(cfg *config.Config) *Policy {
	return &Policy{
		pointsUnique:       cfg.PointsForUniqueReview,
		reputationUnique:   cfg.ReputationForUniqueReview,
		pointsDuplicate:    cfg.PointsForDuplicate,
		spamPenalty:        cfg.ReputationPenaltyForSpam,
		mediaMultiplier:    cfg.MediaBonusMultiplier,
		duplicateMediaMult: cfg.DuplicateMediaMultiplier,
		incidentUplift:     cfg.IncidentUplift,
	}
}

// ForReport рассчитывает награду.
//
// Уникальный отчёт:
//
//	points = round(base × q × uplift), rep = round(baseRep × q × uplift), monthly = rep
//	uplift = 1.2 для инцидентов, 1.0 для отзывов
//	медиа удваивает оба значения уже ПОСЛЕ множителя качества
//
// Дубликат: фиксированные баллы без учёта качества, репутация 0, медиа ×1.5.
func (p *Policy) ForReport(in Input) Outcome {
	q := ClampQuality(in.Quality)

	if !in.IsUnique {
		points := p.pointsDuplicate
		if in.HasMedia {
			points = common.RoundInt(float64(points) * p.duplicateMediaMult)
		}
		return Outcome{
			Points:  points,
			Reason:  ReasonDuplicateReview,
			Quality: DefaultQualityMultiplier,
		}
	}

	uplift := 1.0
	reason := ReasonUniqueReviewApproved
	if in.Kind == KindIncident {
		uplift = p.incidentUplift
		reason = ReasonIncidentReported
	}

	points := common.RoundInt(float64(p.pointsUnique) * q * uplift)
	reputation := common.RoundInt(float64(p.reputationUnique) * q * uplift)

	if in.HasMedia {
		points = common.RoundInt(float64(points) * p.mediaMultiplier)
		reputation = common.RoundInt(float64(reputation) * p.mediaMultiplier)
	}

	return Outcome{
		Points:            points,
		Reputation:        reputation,
		MonthlyReputation: reputation,
		Reason:            reason,
		Quality:           q,
	}
}

// SpamPenalty возвращает, на сколько уменьшить репутацию за спам (положительное число).
func (p *Policy) SpamPenalty() int64 {
	return p.spamPenalty
}

// ClampQuality приводит множитель к [0.5, 1.5]; 0 и мусор дают 1.0.
func ClampQuality(q float64) float64 {
	if q == 0 || math.IsNaN(q) {
		return DefaultQualityMultiplier
	}
	return common.Clamp(q, MinQualityMultiplier, MaxQualityMultiplier)
}

// QualityMultiplier переводит оценку оракула (полнота и полезность в [0,1])
// в множитель: 0.5 + среднее, то есть 0.5 для пустого отзыва и 1.5 для идеального.
func QualityMultiplier(completeness, usefulness float64) float64 {
	c := common.Clamp(completeness, 0, 1)
	u := common.Clamp(usefulness, 0, 1)
	return ClampQuality(MinQualityMultiplier + (c+u)/2)
}
