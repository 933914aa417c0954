// Package ledger реализует счёт пользователя: баллы, репутацию, уровень, баны.
// models.go описывает аккаунт, транзакции и каталог наград.
package ledger

import (
	"math"
	"time"
)

// Account — счёт пользователя. Создаётся при первой активности,
// меняется только через операции леджера, никогда не удаляется.
type Account struct {
	ID                int64      `db:"id"`                  // ID пользователя
	TotalReputation   int64      `db:"total_reputation"`    // Накопленная репутация (>= 0)
	MonthlyReputation int64      `db:"monthly_reputation"`  // Репутация за месяц (обнуляется)
	PointsBalance     int64      `db:"points_balance"`      // Баллы, которые можно потратить (>= 0)
	Level             int        `db:"level"`               // Уровень (>= 1, только растёт)
	UniqueReviewCount int        `db:"unique_review_count"` // Сколько уникальных отчётов одобрено
	SpamCount         int        `db:"spam_count"`          // Сколько отчётов заблокировано как спам
	Banned            bool       `db:"banned"`              // Флаг бана
	BannedUntil       *time.Time `db:"banned_until"`        // nil при Banned = навсегда
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

// IsBannedAt сообщает, действует ли бан в момент now.
func (a *Account) IsBannedAt(now time.Time) bool {
	if !a.Banned {
		return false
	}
	return a.BannedUntil == nil || now.Before(*a.BannedUntil)
}

// LevelFor вычисляет уровень по репутации: max(1, floor(sqrt(rep/100)) + 1).
//
//	0..99 → 1, 100..399 → 2, 400..899 → 3, 900..1599 → 4
func LevelFor(totalReputation int64) int {
	if totalReputation <= 0 {
		return 1
	}
	level := int(math.Floor(math.Sqrt(float64(totalReputation)/100))) + 1
	return max(1, level)
}

// Direction — направление движения баллов.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// Причины транзакций.
const (
	ReasonUniqueReviewApproved = "unique_review_approved"
	ReasonDuplicateReview      = "duplicate_review"
	ReasonIncidentReported     = "incident_reported"
	ReasonMediaAttached        = "media_attached"
	ReasonMonthlyBonus         = "monthly_bonus"
	ReasonSeasonalActivity     = "seasonal_activity"
	ReasonAchievementBonus     = "achievement_bonus"
	ReasonRewardPurchase       = "reward_purchase"
	ReasonMonthlyConversion    = "monthly_conversion"
	ReasonMonthlyReset         = "monthly_reset"
	ReasonSpamPenalty          = "spam_penalty"
)

var validReasons = map[string]bool{
	ReasonUniqueReviewApproved: true,
	ReasonDuplicateReview:      true,
	ReasonIncidentReported:     true,
	ReasonMediaAttached:        true,
	ReasonMonthlyBonus:         true,
	ReasonSeasonalActivity:     true,
	ReasonAchievementBonus:     true,
	ReasonRewardPurchase:       true,
	ReasonMonthlyConversion:    true,
	ReasonMonthlyReset:         true,
	ReasonSpamPenalty:          true,
}

// IsValidReason проверяет, что причина из известного списка.
func IsValidReason(reason string) bool {
	return validReasons[reason]
}

// Transaction — запись в журнале. Только добавляется, никогда не редактируется.
// Amount всегда в баллах; изменения репутации лежат в Metadata.
type Transaction struct {
	ID             int64          `db:"id"`
	AccountID      int64          `db:"account_id"`
	Direction      Direction      `db:"direction"`
	Amount         int64          `db:"amount"` // Всегда >= 0
	Reason         string         `db:"reason"`
	LinkedReportID *int64         `db:"linked_report_id"`
	BalanceAfter   int64          `db:"balance_after"` // Баланс баллов после операции
	Description    string         `db:"description"`
	Metadata       map[string]any `db:"metadata"`
	CreatedAt      time.Time      `db:"created_at"`
}

// UnlimitedStock — награда без ограничения по количеству.
const UnlimitedStock int64 = -1

// Reward — позиция каталога, которую можно купить за баллы.
type Reward struct {
	ID         int64     `db:"id"`
	Title      string    `db:"title"`
	PointsCost int64     `db:"points_cost"`
	Stock      int64     `db:"stock"` // -1 = без ограничений
	Sold       int64     `db:"sold"`
	Active     bool      `db:"active"`
	CreatedAt  time.Time `db:"created_at"`
}

// Available — награда включена и ещё есть на складе.
func (r *Reward) Available() bool {
	return r.Active && (r.Stock == UnlimitedStock || r.Stock > 0)
}

// OwnedReward — купленная награда со ссылкой на транзакцию списания.
type OwnedReward struct {
	ID            int64     `db:"id"`
	AccountID     int64     `db:"account_id"`
	RewardID      int64     `db:"reward_id"`
	TransactionID int64     `db:"transaction_id"`
	Code          string    `db:"code"` // Код активации (UUID)
	CreatedAt     time.Time `db:"created_at"`
}

// CreditRequest — параметры начисления.
type CreditRequest struct {
	AccountID         int64
	Points            int64
	Reputation        int64
	MonthlyReputation int64
	Reason            string
	LinkedReportID    *int64
	// CountUniqueReview увеличивает счётчик уникальных отчётов (для тай-брейка в рейтинге).
	CountUniqueReview bool
	Metadata          map[string]any
}

// ResetSummary — итог ежемесячного сброса.
type ResetSummary struct {
	Processed       int   // Аккаунтов обработано без ошибок
	Failed          int   // Аккаунтов с ошибкой (пропущены, в лог)
	ConvertedPoints int64 // Всего баллов сконвертировано в репутацию
}
