// Package ledger — service.go содержит бизнес-логику леджера:
// начисления, списания, покупки наград, штрафы за спам и месячный сброс.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/geohealth/internal/common"
	"serotonyl.ru/geohealth/internal/config"
)

// defaultHistoryLimit — сколько транзакций отдаёт History, если лимит не задан.
const defaultHistoryLimit = 20

// Названия причин для описаний транзакций.
var reasonTitles = map[string]string{
	ReasonUniqueReviewApproved: "Уникальный отзыв одобрен",
	ReasonDuplicateReview:      "Отзыв-дубликат",
	ReasonIncidentReported:     "Сообщение об инциденте",
	ReasonMediaAttached:        "Бонус за фото",
	ReasonMonthlyBonus:         "Месячный бонус",
	ReasonSeasonalActivity:     "Сезонная активность",
	ReasonAchievementBonus:     "Достижение",
	ReasonRewardPurchase:       "Покупка награды",
	ReasonMonthlyConversion:    "Конвертация баллов в репутацию",
	ReasonMonthlyReset:         "Сброс месячной репутации",
	ReasonSpamPenalty:          "Штраф за спам",
}

// Service управляет счетами пользователей.
type Service struct {
	store Store
	cfg   *config.Config
	locks *common.KeyedMutex // Замки по аккаунтам
	now   func() time.Time
}

// NewService создаёт сервис леджера.
func NewService(store Store, cfg *config.Config) *Service {
	return &Service{
		store: store,
		cfg:   cfg,
		locks: common.NewKeyedMutex(),
		now:   time.Now,
	}
}

// EnsureAccount возвращает счёт пользователя, создавая его при первой активности.
func (s *Service) EnsureAccount(ctx context.Context, accountID int64) (*Account, error) {
	acc, err := s.store.GetAccount(ctx, accountID)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, common.ErrAccountNotFound) {
		return nil, err
	}

	acc, err = s.store.CreateAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	log.WithField("account_id", accountID).Info("Создан новый счёт")
	return acc, nil
}

// GetAccount возвращает счёт без создания.
func (s *Service) GetAccount(ctx context.Context, accountID int64) (*Account, error) {
	return s.store.GetAccount(ctx, accountID)
}

// ListAccounts возвращает все счета (для рейтинга и месячного сброса).
func (s *Service) ListAccounts(ctx context.Context) ([]*Account, error) {
	return s.store.ListAccounts(ctx)
}

// CheckNotBanned возвращает common.ErrAccountBanned, если бан действует.
// Истёкший временный бан снимается здесь же.
func (s *Service) CheckNotBanned(ctx context.Context, accountID int64) error {
	acc, err := s.EnsureAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !acc.Banned {
		return nil
	}

	now := s.now()
	if acc.IsBannedAt(now) {
		return fmt.Errorf("account_id=%d: %w", accountID, common.ErrAccountBanned)
	}

	unlock := s.locks.Lock(accountID)
	defer unlock()

	var stillBanned bool
	_, err = s.store.Mutate(ctx, accountID, func(a *Account) ([]*Transaction, error) {
		if a.IsBannedAt(now) {
			stillBanned = true
			return nil, nil
		}
		a.Banned = false
		a.BannedUntil = nil
		return nil, nil
	})
	if err != nil {
		return err
	}
	if stillBanned {
		return fmt.Errorf("account_id=%d: %w", accountID, common.ErrAccountBanned)
	}

	log.WithField("account_id", accountID).Info("Срок бана истёк, бан снят")
	return nil
}

// Credit начисляет баллы и репутацию одной транзакцией.
// Уровень пересчитывается и только растёт.
func (s *Service) Credit(ctx context.Context, req CreditRequest) (*Transaction, error) {
	if req.Points < 0 || req.Reputation < 0 || req.MonthlyReputation < 0 {
		return nil, common.ErrInvalidAmount
	}
	if req.Points == 0 && req.Reputation == 0 && req.MonthlyReputation == 0 {
		return nil, common.ErrInvalidAmount
	}
	if !IsValidReason(req.Reason) {
		return nil, fmt.Errorf("неизвестная причина %q: %w", req.Reason, common.ErrInvalidAmount)
	}

	if _, err := s.EnsureAccount(ctx, req.AccountID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(req.AccountID)
	defer unlock()

	now := s.now()
	entries, err := s.store.Mutate(ctx, req.AccountID, func(a *Account) ([]*Transaction, error) {
		a.PointsBalance += req.Points
		a.TotalReputation += req.Reputation
		a.MonthlyReputation += req.MonthlyReputation
		a.Level = max(a.Level, LevelFor(a.TotalReputation))
		if req.CountUniqueReview {
			a.UniqueReviewCount++
		}

		metadata := map[string]any{
			"reputation_delta":         req.Reputation,
			"monthly_reputation_delta": req.MonthlyReputation,
		}
		for k, v := range req.Metadata {
			metadata[k] = v
		}

		return []*Transaction{{
			Direction:      DirectionCredit,
			Amount:         req.Points,
			Reason:         req.Reason,
			LinkedReportID: req.LinkedReportID,
			BalanceAfter:   a.PointsBalance,
			Description:    describe(req.Reason, req.Points),
			Metadata:       metadata,
			CreatedAt:      now,
		}}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка начисления (account_id=%d): %w", req.AccountID, err)
	}

	log.WithFields(log.Fields{
		"account_id": req.AccountID,
		"points":     req.Points,
		"reputation": req.Reputation,
		"reason":     req.Reason,
	}).Info("Начисление выполнено")

	return entries[0], nil
}

// Debit списывает баллы. При нехватке возвращает common.ErrInsufficientBalance
// и ничего не меняет. linkedReportID может быть nil.
func (s *Service) Debit(ctx context.Context, accountID, amount int64, reason string, linkedReportID *int64) (*Transaction, error) {
	if amount <= 0 {
		return nil, common.ErrInvalidAmount
	}
	if !IsValidReason(reason) {
		return nil, fmt.Errorf("неизвестная причина %q: %w", reason, common.ErrInvalidAmount)
	}

	unlock := s.locks.Lock(accountID)
	defer unlock()

	now := s.now()
	entries, err := s.store.Mutate(ctx, accountID, func(a *Account) ([]*Transaction, error) {
		if a.PointsBalance < amount {
			return nil, common.ErrInsufficientBalance
		}
		a.PointsBalance -= amount
		return []*Transaction{{
			Direction:      DirectionDebit,
			Amount:         amount,
			Reason:         reason,
			LinkedReportID: linkedReportID,
			BalanceAfter:   a.PointsBalance,
			Description:    describe(reason, -amount),
			CreatedAt:      now,
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return entries[0], nil
}

// CreateReward добавляет награду в каталог. stock = UnlimitedStock — без ограничений.
func (s *Service) CreateReward(ctx context.Context, title string, pointsCost, stock int64) (*Reward, error) {
	if pointsCost <= 0 || stock < UnlimitedStock {
		return nil, common.ErrInvalidAmount
	}
	rw := &Reward{Title: title, PointsCost: pointsCost, Stock: stock, Active: true}
	if err := s.store.CreateReward(ctx, rw); err != nil {
		return nil, err
	}
	return rw, nil
}

// PurchaseReward покупает награду: списание, склад и запись о владении
// выполняются атомарно.
func (s *Service) PurchaseReward(ctx context.Context, accountID, rewardID int64) (*OwnedReward, error) {
	if err := s.CheckNotBanned(ctx, accountID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(accountID)
	defer unlock()

	now := s.now()
	code := uuid.NewString()
	owned, err := s.store.Purchase(ctx, accountID, rewardID, code, func(a *Account, rw *Reward) (*Transaction, error) {
		if !rw.Available() {
			return nil, fmt.Errorf("reward_id=%d: %w", rw.ID, common.ErrRewardUnavailable)
		}
		if a.PointsBalance < rw.PointsCost {
			return nil, common.ErrInsufficientBalance
		}

		a.PointsBalance -= rw.PointsCost
		if rw.Stock != UnlimitedStock {
			rw.Stock--
		}
		rw.Sold++

		return &Transaction{
			Direction:    DirectionDebit,
			Amount:       rw.PointsCost,
			Reason:       ReasonRewardPurchase,
			BalanceAfter: a.PointsBalance,
			Description:  fmt.Sprintf("%s «%s»", describe(ReasonRewardPurchase, -rw.PointsCost), rw.Title),
			Metadata:     map[string]any{"reward_id": rw.ID, "code": code},
			CreatedAt:    now,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"account_id": accountID,
		"reward_id":  rewardID,
	}).Info("Награда куплена")

	return owned, nil
}

// OwnedRewards возвращает купленные награды пользователя.
func (s *Service) OwnedRewards(ctx context.Context, accountID int64) ([]*OwnedReward, error) {
	return s.store.OwnedRewards(ctx, accountID)
}

// ApplySpamPenalty снимает репутацию за спам (не ниже нуля), увеличивает
// счётчик спама и банит на SpamBanDays, когда счётчик достигает порога.
// Возвращает состояние счёта после штрафа.
func (s *Service) ApplySpamPenalty(ctx context.Context, accountID int64, reportID *int64, penalty int64) (*Account, error) {
	if penalty < 0 {
		return nil, common.ErrInvalidAmount
	}
	if _, err := s.EnsureAccount(ctx, accountID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(accountID)
	defer unlock()

	now := s.now()
	var after Account
	var bannedNow bool
	_, err := s.store.Mutate(ctx, accountID, func(a *Account) ([]*Transaction, error) {
		taken := min(penalty, a.TotalReputation)
		a.TotalReputation -= taken
		a.MonthlyReputation = max(0, a.MonthlyReputation-penalty)
		a.SpamCount++

		if a.SpamCount >= s.cfg.SpamThresholdForBan && !a.IsBannedAt(now) {
			until := now.AddDate(0, 0, s.cfg.SpamBanDays)
			a.Banned = true
			a.BannedUntil = &until
			bannedNow = true
		}
		after = *a

		description := fmt.Sprintf("%s: -%d репутации", reasonTitles[ReasonSpamPenalty], taken)
		if bannedNow {
			description += ", бан до " + common.FormatDateTime(*a.BannedUntil)
		}

		return []*Transaction{{
			Direction:      DirectionDebit,
			Amount:         0,
			Reason:         ReasonSpamPenalty,
			LinkedReportID: reportID,
			BalanceAfter:   a.PointsBalance,
			Description:    description,
			Metadata: map[string]any{
				"reputation_delta": -taken,
				"spam_count":       a.SpamCount,
				"banned":           bannedNow,
			},
			CreatedAt: now,
		}}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка штрафа за спам (account_id=%d): %w", accountID, err)
	}

	if bannedNow {
		log.WithFields(log.Fields{
			"account_id":   accountID,
			"spam_count":   after.SpamCount,
			"banned_until": after.BannedUntil,
		}).Warn("Аккаунт заблокирован за спам")
	}
	return &after, nil
}

// MonthlyReset конвертирует часть баллов в накопленную репутацию и обнуляет
// месячную репутацию у всех счетов. Ошибка на одном счёте не останавливает цикл.
func (s *Service) MonthlyReset(ctx context.Context, rate float64) (ResetSummary, error) {
	var summary ResetSummary
	if rate < 0 || rate > 1 {
		return summary, fmt.Errorf("коэффициент конвертации %v: %w", rate, common.ErrInvalidAmount)
	}

	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return summary, fmt.Errorf("ошибка получения счетов: %w", err)
	}

	for _, acc := range accounts {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		converted, err := s.resetAccount(ctx, acc.ID, rate)
		if err != nil {
			summary.Failed++
			log.WithError(err).WithField("account_id", acc.ID).Error("Ошибка месячного сброса")
			continue
		}
		summary.Processed++
		summary.ConvertedPoints += converted
	}

	log.WithFields(log.Fields{
		"processed": summary.Processed,
		"failed":    summary.Failed,
		"converted": summary.ConvertedPoints,
	}).Info("Месячный сброс завершён")

	return summary, nil
}

func (s *Service) resetAccount(ctx context.Context, accountID int64, rate float64) (int64, error) {
	unlock := s.locks.Lock(accountID)
	defer unlock()

	now := s.now()
	var converted int64
	_, err := s.store.Mutate(ctx, accountID, func(a *Account) ([]*Transaction, error) {
		var entries []*Transaction

		converted = int64(math.Floor(float64(a.PointsBalance) * rate))
		if converted > 0 {
			a.PointsBalance -= converted
			a.TotalReputation += converted * 10
			a.Level = max(a.Level, LevelFor(a.TotalReputation))
			entries = append(entries, &Transaction{
				Direction:    DirectionDebit,
				Amount:       converted,
				Reason:       ReasonMonthlyConversion,
				BalanceAfter: a.PointsBalance,
				Description:  describe(ReasonMonthlyConversion, -converted),
				Metadata:     map[string]any{"reputation_delta": converted * 10, "rate": rate},
				CreatedAt:    now,
			})
		}

		if a.MonthlyReputation != 0 || converted > 0 {
			entries = append(entries, &Transaction{
				Direction:    DirectionDebit,
				Amount:       0,
				Reason:       ReasonMonthlyReset,
				BalanceAfter: a.PointsBalance,
				Description:  reasonTitles[ReasonMonthlyReset],
				Metadata:     map[string]any{"monthly_reputation_before": a.MonthlyReputation},
				CreatedAt:    now,
			})
			a.MonthlyReputation = 0
		}
		return entries, nil
	})
	if err != nil {
		return 0, err
	}
	return converted, nil
}

// History возвращает последние транзакции пользователя (новые первыми).
func (s *Service) History(ctx context.Context, accountID int64, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.store.Transactions(ctx, accountID, limit)
}

// Reputations возвращает накопленную репутацию по списку аккаунтов.
// Отсутствующим аккаунтам соответствует 0.
func (s *Service) Reputations(ctx context.Context, accountIDs []int64) (map[int64]int64, error) {
	out := make(map[int64]int64, len(accountIDs))
	for _, id := range accountIDs {
		if _, ok := out[id]; ok {
			continue
		}
		acc, err := s.store.GetAccount(ctx, id)
		if err != nil {
			if errors.Is(err, common.ErrAccountNotFound) {
				out[id] = 0
				continue
			}
			return nil, err
		}
		out[id] = acc.TotalReputation
	}
	return out, nil
}

func describe(reason string, points int64) string {
	title, ok := reasonTitles[reason]
	if !ok {
		title = reason
	}
	return fmt.Sprintf("%s (%s)", title, common.FormatPointsAmount(points))
}
