package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/geohealth/internal/config"
	"serotonyl.ru/geohealth/internal/features/leaderboard"
	"serotonyl.ru/geohealth/internal/features/ledger"
	"serotonyl.ru/geohealth/internal/features/poi"
)

type ledgerSpy struct {
	rate  float64
	calls int
	err   error
}

func (l *ledgerSpy) MonthlyReset(_ context.Context, rate float64) (ledger.ResetSummary, error) {
	l.calls++
	l.rate = rate
	return ledger.ResetSummary{Processed: 3}, l.err
}

type ratingsSpy struct {
	calls int
	panic bool
}

func (r *ratingsSpy) RecomputeAll(context.Context) (poi.RecomputeSummary, error) {
	r.calls++
	if r.panic {
		panic("boom")
	}
	return poi.RecomputeSummary{Processed: 10}, nil
}

type topSpy struct {
	calls int
}

func (t *topSpy) TopMonthly(context.Context) ([]leaderboard.Entry, error) {
	t.calls++
	return []leaderboard.Entry{{Rank: 1, AccountID: 7, Score: 300}}, nil
}

func TestRunMonthlyReset(t *testing.T) {
	cfg := config.Default()
	cfg.PointsToReputationRate = 0.2
	l, top := &ledgerSpy{}, &topSpy{}

	s := NewScheduler(cfg, l, &ratingsSpy{}, top)
	s.RunMonthlyReset(context.Background())

	assert.Equal(t, 1, l.calls)
	assert.Equal(t, 0.2, l.rate)
	assert.Equal(t, 1, top.calls)
}

func TestRunMonthlyResetError(t *testing.T) {
	l := &ledgerSpy{err: errors.New("db down")}
	s := NewScheduler(config.Default(), l, &ratingsSpy{}, nil)

	assert.NotPanics(t, func() { s.RunMonthlyReset(context.Background()) })
	assert.Equal(t, 1, l.calls)
}

func TestRunRecomputeRecoversPanic(t *testing.T) {
	r := &ratingsSpy{panic: true}
	s := NewScheduler(config.Default(), &ledgerSpy{}, r, nil)

	assert.NotPanics(t, func() { s.RunRecompute(context.Background()) })
	assert.Equal(t, 1, r.calls)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	cfg := config.Default()
	cfg.RecomputeCron = "каждую ночь"
	s := NewScheduler(cfg, &ledgerSpy{}, &ratingsSpy{}, nil)

	err := s.Start(context.Background())
	require.Error(t, err)
	s.Stop()
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(config.Default(), &ledgerSpy{}, &ratingsSpy{}, nil)
	require.NoError(t, s.Start(context.Background()))
	assert.Len(t, s.cron.Entries(), 2)
	s.Stop()
}
