package poi

import (
	"math"
	"time"

	"serotonyl.ru/geohealth/internal/common"
	"serotonyl.ru/geohealth/internal/config"
)

// NeutralScore — оценка «нет данных»: пустая область, POI без отзывов, сбой оракула.
const NeutralScore = 50.0

// Interpretation — словесная оценка индекса.
type Interpretation string

const (
	InterpretationExcellent   Interpretation = "excellent"
	InterpretationFavorable   Interpretation = "favorable"
	InterpretationAverage     Interpretation = "average"
	InterpretationUnfavorable Interpretation = "unfavorable"
)

// Interpret переводит индекс 0..100 в словесную оценку.
//
//	81..100 → excellent, 61..80 → favorable, 31..60 → average, 0..30 → unfavorable
func Interpret(index float64) Interpretation {
	switch {
	case index >= 81:
		return InterpretationExcellent
	case index >= 61:
		return InterpretationFavorable
	case index >= 31:
		return InterpretationAverage
	default:
		return InterpretationUnfavorable
	}
}

// HealthWeights — коэффициенты расчёта.
type HealthWeights struct {
	Infra             float64
	Social            float64
	VerificationBonus float64
	HalfLifeDays      float64
}

// WeightsFromConfig берёт коэффициенты из конфигурации.
func WeightsFromConfig(cfg *config.Config) HealthWeights {
	return HealthWeights{
		Infra:             cfg.HealthWeightInfra,
		Social:            cfg.HealthWeightSocial,
		VerificationBonus: cfg.HealthVerificationBonus,
		HalfLifeDays:      cfg.HealthHalfLifeDays,
	}
}

// CompositeScore = clamp(0, 100, infra·static + social·social + бонус за проверку).
func CompositeScore(static, social float64, verified bool, w HealthWeights) float64 {
	score := w.Infra*static + w.Social*social
	if verified {
		score += w.VerificationBonus
	}
	return common.Clamp(score, 0, 100)
}

// AuthorWeight — вес отзыва по репутации автора.
func AuthorWeight(reputation int64) float64 {
	switch {
	case reputation < 100:
		return 0.5
	case reputation < 1000:
		return 1.0
	default:
		return 1.5
	}
}

// SocialScore считает оценку по одобренным отзывам с оценкой.
// Вес отзыва: 2^(-возраст/halfLife) · вес автора. Нет отзывов — NeutralScore.
func SocialScore(reviews []Review, reputations map[int64]int64, now time.Time, halfLifeDays float64) float64 {
	var sumW, sumWS float64
	for _, r := range reviews {
		if !r.Approved || r.Rating == nil {
			continue
		}
		s := (float64(*r.Rating) - 1) / 4
		ageDays := math.Max(0, now.Sub(r.CreatedAt).Hours()/24)
		w := math.Pow(2, -ageDays/halfLifeDays) * AuthorWeight(reputations[r.AuthorID])
		sumW += w
		sumWS += w * s
	}
	if sumW == 0 {
		return NeutralScore
	}
	return 100 * sumWS / sumW
}

// Reliability — доверие к рейтингу POI: 10 одобренных отзывов дают полный вес.
func Reliability(approvedReviews int) float64 {
	return common.Clamp(float64(approvedReviews)/10, 0.1, 1)
}

// AreaIndex — средневзвешенная итоговая оценка POI области. Пустая область — NeutralScore.
func AreaIndex(items []RatedPOI) float64 {
	var sumW, sumWS float64
	for _, it := range items {
		w := Reliability(it.ApprovedReviews())
		sumW += w
		sumWS += w * it.Composite()
	}
	if sumW == 0 {
		return NeutralScore
	}
	return sumWS / sumW
}

// categoryStats собирает сводку по категориям.
func categoryStats(items []RatedPOI) map[string]CategoryStats {
	groups := make(map[string][]RatedPOI)
	for _, it := range items {
		groups[it.Category] = append(groups[it.Category], it)
	}

	out := make(map[string]CategoryStats, len(groups))
	for category, group := range groups {
		var sum float64
		for _, it := range group {
			sum += it.Composite()
		}
		out[category] = CategoryStats{
			Count:            len(group),
			AverageComposite: sum / float64(len(group)),
			HealthIndex:      AreaIndex(group),
		}
	}
	return out
}
