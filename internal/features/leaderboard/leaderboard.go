// Package leaderboard — рейтинг пользователей по репутации.
package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"serotonyl.ru/geohealth/internal/common"
	"serotonyl.ru/geohealth/internal/config"
	"serotonyl.ru/geohealth/internal/features/ledger"
)

// Metric — по какой репутации строится рейтинг.
type Metric string

const (
	MetricTotal   Metric = "total"
	MetricMonthly Metric = "monthly"
)

// Entry — строка рейтинга.
type Entry struct {
	Rank              int
	AccountID         int64
	Score             int64
	UniqueReviewCount int
	Level             int
}

func (m Metric) value(a *ledger.Account) int64 {
	if m == MetricMonthly {
		return a.MonthlyReputation
	}
	return a.TotalReputation
}

// Rank строит рейтинг: исключаются аккаунты, чей бан действует в момент now.
// Сортировка по убыванию метрики, при равенстве по числу уникальных отзывов,
// дальше порядок входа. Места начинаются с 1.
func Rank(accounts []*ledger.Account, metric Metric, now time.Time) []Entry {
	eligible := make([]*ledger.Account, 0, len(accounts))
	for _, a := range accounts {
		if !a.IsBannedAt(now) {
			eligible = append(eligible, a)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		vi, vj := metric.value(eligible[i]), metric.value(eligible[j])
		if vi != vj {
			return vi > vj
		}
		return eligible[i].UniqueReviewCount > eligible[j].UniqueReviewCount
	})

	out := make([]Entry, len(eligible))
	for i, a := range eligible {
		out[i] = Entry{
			Rank:              i + 1,
			AccountID:         a.ID,
			Score:             metric.value(a),
			UniqueReviewCount: a.UniqueReviewCount,
			Level:             a.Level,
		}
	}
	return out
}

// PositionOf возвращает место аккаунта или common.ErrNotRanked.
func PositionOf(entries []Entry, accountID int64) (int, error) {
	for _, e := range entries {
		if e.AccountID == accountID {
			return e.Rank, nil
		}
	}
	return 0, fmt.Errorf("account_id=%d: %w", accountID, common.ErrNotRanked)
}

// AccountLister — источник счетов.
type AccountLister interface {
	ListAccounts(ctx context.Context) ([]*ledger.Account, error)
}

// Service строит рейтинги по текущему состоянию леджера.
type Service struct {
	accounts AccountLister
	topN     int
	now      func() time.Time
}

func NewService(accounts AccountLister, cfg *config.Config) *Service {
	return &Service{accounts: accounts, topN: cfg.MonthlyLeaderboardTopN, now: time.Now}
}

// Leaderboard возвращает полный рейтинг по метрике.
func (s *Service) Leaderboard(ctx context.Context, metric Metric) ([]Entry, error) {
	accounts, err := s.accounts.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	return Rank(accounts, metric, s.now()), nil
}

// TopMonthly возвращает первые N по месячной репутации.
func (s *Service) TopMonthly(ctx context.Context) ([]Entry, error) {
	entries, err := s.Leaderboard(ctx, MetricMonthly)
	if err != nil {
		return nil, err
	}
	if len(entries) > s.topN {
		entries = entries[:s.topN]
	}
	return entries, nil
}

// Position возвращает место аккаунта в рейтинге по метрике.
func (s *Service) Position(ctx context.Context, accountID int64, metric Metric) (int, error) {
	entries, err := s.Leaderboard(ctx, metric)
	if err != nil {
		return 0, err
	}
	return PositionOf(entries, accountID)
}
