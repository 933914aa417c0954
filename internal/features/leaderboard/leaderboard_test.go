package leaderboard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/geohealth/internal/common"
	"serotonyl.ru/geohealth/internal/config"
	"serotonyl.ru/geohealth/internal/features/ledger"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func accounts() []*ledger.Account {
	expired := now.Add(-24 * time.Hour)
	active := now.Add(24 * time.Hour)
	return []*ledger.Account{
		{ID: 1, TotalReputation: 500, MonthlyReputation: 10, UniqueReviewCount: 3},
		{ID: 2, TotalReputation: 900, MonthlyReputation: 50, UniqueReviewCount: 1},
		{ID: 3, TotalReputation: 500, MonthlyReputation: 50, UniqueReviewCount: 7},
		{ID: 4, TotalReputation: 2000, MonthlyReputation: 90, Banned: true},
		{ID: 5, TotalReputation: 500, MonthlyReputation: 0, UniqueReviewCount: 3},
		// Бан истёк, флаг ещё не сброшен
		{ID: 6, TotalReputation: 700, MonthlyReputation: 20, UniqueReviewCount: 2, Banned: true, BannedUntil: &expired},
		{ID: 7, TotalReputation: 3000, MonthlyReputation: 99, Banned: true, BannedUntil: &active},
	}
}

func TestRank(t *testing.T) {
	tests := []struct {
		name   string
		metric Metric
		order  []int64
	}{
		{"total", MetricTotal, []int64{2, 6, 3, 1, 5}},
		{"monthly", MetricMonthly, []int64{3, 2, 6, 1, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := Rank(accounts(), tt.metric, now)
			require.Len(t, entries, len(tt.order))
			for i, e := range entries {
				assert.Equal(t, i+1, e.Rank)
				assert.Equal(t, tt.order[i], e.AccountID)
			}
		})
	}
}

func TestPositionOf(t *testing.T) {
	entries := Rank(accounts(), MetricTotal, now)

	pos, err := PositionOf(entries, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, pos)

	pos, err = PositionOf(entries, 6)
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	_, err = PositionOf(entries, 4)
	assert.ErrorIs(t, err, common.ErrNotRanked)

	_, err = PositionOf(entries, 7)
	assert.ErrorIs(t, err, common.ErrNotRanked)

	_, err = PositionOf(entries, 42)
	assert.ErrorIs(t, err, common.ErrNotRanked)
}

type staticAccounts []*ledger.Account

func (s staticAccounts) ListAccounts(context.Context) ([]*ledger.Account, error) {
	return s, nil
}

func TestTopMonthly(t *testing.T) {
	cfg := config.Default()
	cfg.MonthlyLeaderboardTopN = 2
	svc := NewService(staticAccounts(accounts()), cfg)
	svc.now = func() time.Time { return now }

	top, err := svc.TopMonthly(context.Background())
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, int64(3), top[0].AccountID)
	assert.Equal(t, int64(2), top[1].AccountID)

	pos, err := svc.Position(context.Background(), 5, MetricMonthly)
	require.NoError(t, err)
	assert.Equal(t, 5, pos)

	pos, err = svc.Position(context.Background(), 6, MetricMonthly)
	require.NoError(t, err)
	assert.Equal(t, 3, pos)
}
