package reports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/geohealth/internal/common"
	"serotonyl.ru/geohealth/internal/config"
	"serotonyl.ru/geohealth/internal/features/ledger"
	"serotonyl.ru/geohealth/internal/features/poi"
	"serotonyl.ru/geohealth/internal/features/rewards"
)

type recomputeSpy struct {
	calls []int64
}

func (r *recomputeSpy) Recompute(_ context.Context, poiID int64) (*poi.Rating, error) {
	r.calls = append(r.calls, poiID)
	return &poi.Rating{POIID: poiID}, nil
}

type fixture struct {
	svc    *Service
	store  *MemoryStore
	ledger *ledger.Service
	spy    *recomputeSpy
	now    time.Time
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	f := &fixture{
		store: NewMemoryStore(),
		spy:   &recomputeSpy{},
		now:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.ledger = ledger.NewService(ledger.NewMemoryStore(), cfg)
	limiter := common.NewRateLimiter(cfg.ReportRateLimitRequests, cfg.ReportRateLimitWindow)
	t.Cleanup(limiter.Close)

	f.svc = NewService(f.store, NewDeduplicator(f.store, cfg), f.ledger, rewards.NewPolicy(cfg), nil, limiter, f.spy)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func reviewInput(author int64, lat float64) SubmitInput {
	rating := 4
	return SubmitInput{
		AuthorID: author,
		Kind:     KindPOIReview,
		Lat:      lat,
		Lon:      moscowLon,
		Category: "pharmacy",
		Content:  "Круглосуточная аптека, вежливые сотрудники",
		Rating:   &rating,
	}
}

func TestSubmitMoscowScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Default())

	first, err := f.svc.Submit(ctx, reviewInput(1, moscowLat))
	require.NoError(t, err)
	assert.True(t, first.Uniqueness.IsUnique)
	assert.True(t, first.Report.Unique())
	assert.False(t, first.Report.Rewarded)
	assert.Zero(t, first.Points)

	// Уникальный отчёт до модерации ничего не получает
	acc, err := f.ledger.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, acc.PointsBalance)

	// 12 м и час спустя: дубликат, 10 баллов сразу
	f.now = f.now.Add(time.Hour)
	dup, err := f.svc.Submit(ctx, reviewInput(2, nearbyLat))
	require.NoError(t, err)
	assert.False(t, dup.Uniqueness.IsUnique)
	assert.True(t, dup.Report.Rewarded)
	assert.Equal(t, int64(10), dup.Points)

	acc, err = f.ledger.GetAccount(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(10), acc.PointsBalance)
	assert.Zero(t, acc.TotalReputation)

	history, err := f.ledger.History(ctx, 2, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, ledger.ReasonDuplicateReview, history[0].Reason)
	require.NotNil(t, history[0].LinkedReportID)
	assert.Equal(t, dup.Report.ID, *history[0].LinkedReportID)

	// 25 ч после первого: снова уникальный
	f.now = f.now.Add(24 * time.Hour)
	later, err := f.svc.Submit(ctx, reviewInput(3, nearbyLat))
	require.NoError(t, err)
	assert.False(t, later.Uniqueness.IsUnique, "дубликат второго отчёта, которому 24 ч")

	f.now = f.now.Add(2 * time.Hour)
	fresh, err := f.svc.Submit(ctx, reviewInput(4, farAwayLat))
	require.NoError(t, err)
	assert.True(t, fresh.Uniqueness.IsUnique)
}

func TestSubmitAfterWindowIsUnique(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Default())

	_, err := f.svc.Submit(ctx, reviewInput(1, moscowLat))
	require.NoError(t, err)

	f.now = f.now.Add(25 * time.Hour)
	res, err := f.svc.Submit(ctx, reviewInput(2, nearbyLat))
	require.NoError(t, err)
	assert.True(t, res.Uniqueness.IsUnique)
}

func TestSubmitDuplicateWithMedia(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Default())

	_, err := f.svc.Submit(ctx, reviewInput(1, moscowLat))
	require.NoError(t, err)

	in := reviewInput(2, nearbyLat)
	in.HasMedia = true
	res, err := f.svc.Submit(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, int64(15), res.Points)
}

func TestSubmitRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Default())

	badRating := 7
	tests := []struct {
		name   string
		mutate func(in *SubmitInput)
		err    error
	}{
		{"latitude out of range", func(in *SubmitInput) { in.Lat = 91 }, common.ErrInvalidCoordinate},
		{"longitude out of range", func(in *SubmitInput) { in.Lon = -181 }, common.ErrInvalidCoordinate},
		{"missing category", func(in *SubmitInput) { in.Category = "" }, common.ErrInvalidReport},
		{"unknown kind", func(in *SubmitInput) { in.Kind = "rumour" }, common.ErrInvalidReport},
		{"rating out of range", func(in *SubmitInput) { in.Rating = &badRating }, common.ErrInvalidReport},
		{"incident with rating", func(in *SubmitInput) { in.Kind = KindIncident }, common.ErrInvalidReport},
		{"missing author", func(in *SubmitInput) { in.AuthorID = 0 }, common.ErrInvalidReport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := reviewInput(1, moscowLat)
			tt.mutate(&in)
			_, err := f.svc.Submit(ctx, in)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	// Ни один некорректный отчёт не сохранён
	u, err := NewDeduplicator(f.store, config.Default()).CheckUniqueness(ctx, moscowLat, moscowLon, "pharmacy", KindPOIReview, f.now)
	require.NoError(t, err)
	assert.True(t, u.IsUnique)
}

func TestSubmitBannedAuthor(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.SpamThresholdForBan = 1
	f := newFixture(t, cfg)

	_, err := f.ledger.ApplySpamPenalty(ctx, 9, nil, 20)
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, reviewInput(9, moscowLat))
	assert.ErrorIs(t, err, common.ErrAccountBanned)
}

func TestSubmitRateLimit(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.ReportRateLimitRequests = 2
	f := newFixture(t, cfg)

	for i := range 2 {
		_, err := f.svc.Submit(ctx, reviewInput(1, moscowLat+float64(i)*0.01))
		require.NoError(t, err)
	}
	_, err := f.svc.Submit(ctx, reviewInput(1, moscowLat+0.05))
	assert.ErrorIs(t, err, common.ErrRateLimited)

	// Другой автор не затронут
	_, err = f.svc.Submit(ctx, reviewInput(2, moscowLat+0.05))
	assert.NoError(t, err)
}

type failingCreateStore struct {
	*MemoryStore
}

func (failingCreateStore) Create(context.Context, *Report) error {
	return errors.New("db down")
}

func TestSubmitFailedWriteKeepsRateLimitSlot(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.ReportRateLimitRequests = 1
	f := newFixture(t, cfg)

	f.svc.store = failingCreateStore{MemoryStore: f.store}
	_, err := f.svc.Submit(ctx, reviewInput(1, moscowLat))
	require.Error(t, err)

	f.svc.store = f.store
	_, err = f.svc.Submit(ctx, reviewInput(1, moscowLat))
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, reviewInput(1, farAwayLat))
	assert.ErrorIs(t, err, common.ErrRateLimited)
}

// approvingLedger одобряет отчёт «параллельно» и отказывает в начислении.
type approvingLedger struct {
	Ledger
	store *MemoryStore
}

func (l approvingLedger) Credit(ctx context.Context, req ledger.CreditRequest) (*ledger.Transaction, error) {
	r, err := l.store.Get(ctx, *req.LinkedReportID)
	if err != nil {
		return nil, err
	}
	moderatorID := int64(1000)
	at := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	r.Status = StatusApproved
	r.ModeratedBy = &moderatorID
	r.ModeratedAt = &at
	r.ModerationComment = "ok"
	if err := l.store.Update(ctx, r); err != nil {
		return nil, err
	}
	return nil, errors.New("db down")
}

func TestSubmitFailedDuplicateCreditKeepsModeration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Default())

	_, err := f.svc.Submit(ctx, reviewInput(1, moscowLat))
	require.NoError(t, err)

	f.svc.ledger = approvingLedger{Ledger: f.ledger, store: f.store}
	res, err := f.svc.Submit(ctx, reviewInput(2, nearbyLat))
	require.NoError(t, err)
	assert.False(t, res.Uniqueness.IsUnique)
	assert.Equal(t, int64(0), res.Points)

	stored, err := f.store.Get(ctx, res.Report.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, stored.Status)
	require.NotNil(t, stored.ModeratedBy)
	assert.Equal(t, int64(1000), *stored.ModeratedBy)
	assert.NotNil(t, stored.ModeratedAt)
	assert.Equal(t, "ok", stored.ModerationComment)
	assert.False(t, stored.Rewarded)
}

func TestSubmitRecomputesLinkedPOI(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Default())

	poiID := int64(77)
	in := reviewInput(1, moscowLat)
	in.POIID = &poiID
	_, err := f.svc.Submit(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, []int64{77}, f.spy.calls)
}

func TestReviewsForPOI(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Default())
	poiID := int64(5)
	rating := 5

	seed(t, f.store, &Report{AuthorID: 1, Kind: KindPOIReview, Category: "park", POIID: &poiID, Rating: &rating, Status: StatusApproved})
	seed(t, f.store, &Report{AuthorID: 2, Kind: KindPOIReview, Category: "park", POIID: &poiID, Status: StatusPending})
	seed(t, f.store, &Report{AuthorID: 3, Kind: KindPOIReview, Category: "park", POIID: &poiID, Status: StatusSpamBlocked})
	seed(t, f.store, &Report{AuthorID: 4, Kind: KindIncident, Category: "park", POIID: &poiID, Status: StatusApproved})

	reviews, err := f.svc.ReviewsForPOI(ctx, poiID)
	require.NoError(t, err)
	require.Len(t, reviews, 2)
	assert.True(t, reviews[0].Approved)
	assert.Equal(t, 5, *reviews[0].Rating)
	assert.False(t, reviews[1].Approved)
}
