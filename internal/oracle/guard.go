package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/geohealth/internal/common"
	"serotonyl.ru/geohealth/internal/config"
	"serotonyl.ru/geohealth/internal/features/rewards"
)

// Значения, которые подставляются при таймауте или ошибке оракула.
const (
	FallbackStaticScore = 50.0
	FallbackQuality     = rewards.DefaultQualityMultiplier
)

// Guard ограничивает время ответа оракула и подставляет значения по умолчанию.
// Оценки описаний кэшируются: описание меняется редко, а пересчёт идёт каждую ночь.
type Guard struct {
	oracle  ScoringOracle
	timeout time.Duration
	cache   *common.TTLCache[float64]
}

// NewGuard оборачивает оракул. oracle == nil — всегда значения по умолчанию.
func NewGuard(o ScoringOracle, cfg *config.Config) *Guard {
	g := &Guard{oracle: o, timeout: cfg.OracleTimeout}

	cache, err := common.NewTTLCache[float64](4096, cfg.OracleCacheTTL)
	if err != nil {
		log.WithError(err).Warn("Не удалось создать кэш оракула, работаем без кэша")
	} else {
		g.cache = cache
	}
	return g
}

// StaticScore возвращает оценку описания 0..100 или FallbackStaticScore.
func (g *Guard) StaticScore(ctx context.Context, description, category string) float64 {
	if g.oracle == nil || description == "" {
		return FallbackStaticScore
	}

	key := cacheKey(category, description)
	if g.cache != nil {
		if v, ok := g.cache.Get(key); ok {
			return v
		}
	}

	res, err := call(ctx, g.timeout, func(ctx context.Context) (DescriptionScore, error) {
		return g.oracle.ScoreDescription(ctx, description, category)
	})
	if err != nil {
		log.WithError(err).WithField("category", category).Warn("Оракул не оценил описание, используем 50")
		return FallbackStaticScore
	}

	score := common.Clamp(res.StaticScore, 0, 100)
	if g.cache != nil {
		g.cache.Set(key, score)
	}
	return score
}

// QualityMultiplier возвращает множитель качества отзыва 0.5..1.5 или FallbackQuality.
func (g *Guard) QualityMultiplier(ctx context.Context, content, category string, hasMedia bool) float64 {
	if g.oracle == nil {
		return FallbackQuality
	}

	res, err := call(ctx, g.timeout, func(ctx context.Context) (ReviewQuality, error) {
		return g.oracle.ScoreReviewQuality(ctx, content, category, hasMedia)
	})
	if err != nil {
		log.WithError(err).WithField("category", category).Warn("Оракул не оценил отзыв, множитель 1.0")
		return FallbackQuality
	}
	return rewards.QualityMultiplier(res.Completeness, res.Usefulness)
}

// call выполняет fn с таймаутом и не ждёт дольше, даже если fn игнорирует контекст.
func call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, common.ErrOracleTimeout
	}
}

func cacheKey(category, description string) string {
	sum := sha256.Sum256([]byte(category + "\x00" + description))
	return hex.EncodeToString(sum[:])
}
