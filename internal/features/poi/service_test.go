package poi

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/geohealth/internal/common"
	"serotonyl.ru/geohealth/internal/config"
	"serotonyl.ru/geohealth/internal/geo"
)

type fakeReviews map[int64][]Review

func (f fakeReviews) ReviewsForPOI(_ context.Context, poiID int64) ([]Review, error) {
	return f[poiID], nil
}

type fakeReputations map[int64]int64

func (f fakeReputations) Reputations(_ context.Context, ids []int64) (map[int64]int64, error) {
	out := make(map[int64]int64, len(ids))
	for _, id := range ids {
		out[id] = f[id]
	}
	return out, nil
}

type fixedScorer float64

func (f fixedScorer) StaticScore(context.Context, string, string) float64 { return float64(f) }

type fakeIndex struct {
	enabled bool
	hits    []GeoHit
	err     error
	calls   int
}

func (f *fakeIndex) Enabled() bool { return f.enabled }

func (f *fakeIndex) SearchRadius(context.Context, geo.Point, float64, string) ([]GeoHit, error) {
	f.calls++
	return f.hits, f.err
}

type fakeResolver struct {
	label string
	err   error
}

func (f fakeResolver) Reverse(context.Context, geo.Point) (string, error) { return f.label, f.err }
func (f fakeResolver) Forward(context.Context, string) (geo.Point, error) {
	return geo.Point{}, common.ErrAddressNotFound
}

var center = geo.Point{Lat: 55.7558, Lon: 37.6173}

func newPOI(category string, lat, lon float64) *POI {
	return &POI{Category: category, Name: category, Lat: lat, Lon: lon, Active: true, Approved: true}
}

func seedPOIs(t *testing.T, svc *Service) []*POI {
	t.Helper()
	pois := []*POI{
		newPOI("pharmacy", 55.7560, 37.6175), // ~25 м
		newPOI("park", 55.7570, 37.6173),     // ~133 м
		newPOI("pharmacy", 55.7700, 37.6173), // ~1.6 км
		{Category: "park", Lat: 55.7559, Lon: 37.6173, Active: false, Approved: true},
		{Category: "park", Lat: 55.7559, Lon: 37.6174, Active: true, Approved: false},
	}
	for _, p := range pois {
		_, err := svc.Create(context.Background(), p)
		require.NoError(t, err)
	}
	return pois
}

func TestRecompute(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	p := &POI{Category: "gym", Lat: 55.75, Lon: 37.61, Verified: true, Active: true, Approved: true}
	require.NoError(t, store.Create(ctx, p))

	reviews := fakeReviews{p.ID: {
		{AuthorID: 1, Rating: intPtr(5), Approved: true, CreatedAt: now},
		{AuthorID: 2, Rating: intPtr(3), Approved: false, CreatedAt: now},
	}}
	svc := NewService(Deps{Store: store, Reviews: reviews, Reputations: fakeReputations{1: 500}, Scorer: fixedScorer(80)}, config.Default())
	svc.now = func() time.Time { return now }

	rt, err := svc.Recompute(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 80.0, rt.StaticScore)
	assert.InDelta(t, 100, rt.SocialScore, 1e-9)
	assert.InDelta(t, 0.7*80+0.3*100+5, rt.CompositeScore, 1e-9)
	assert.Equal(t, 2, rt.ReviewCount)
	assert.Equal(t, 1, rt.ApprovedReviewCount)
	assert.Equal(t, now, rt.LastRecomputed)

	// Пересчёт — чистая функция текущего состояния
	again, err := svc.Recompute(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, rt, again)

	_, err = svc.Recompute(ctx, 999)
	assert.ErrorIs(t, err, common.ErrPOINotFound)
}

func TestRecomputeWithoutCollaboratorsIsNeutral(t *testing.T) {
	ctx := context.Background()
	svc := NewService(Deps{Store: NewMemoryStore()}, config.Default())

	p := newPOI("cafe", 55.75, 37.61)
	rt, err := svc.Create(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, NeutralScore, rt.StaticScore)
	assert.Equal(t, NeutralScore, rt.SocialScore)
	assert.InDelta(t, 50, rt.CompositeScore, 1e-9)
}

func TestUpdateDescriptionRecomputes(t *testing.T) {
	ctx := context.Background()
	svc := NewService(Deps{Store: NewMemoryStore(), Scorer: fixedScorer(90)}, config.Default())

	p := newPOI("cafe", 55.75, 37.61)
	_, err := svc.Create(ctx, p)
	require.NoError(t, err)

	rt, err := svc.UpdateDescription(ctx, p.ID, "Новое описание")
	require.NoError(t, err)
	assert.Equal(t, 90.0, rt.StaticScore)

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Новое описание", got.Description)
	assert.Equal(t, rt, got.Rating)
}

func TestInRadiusExact(t *testing.T) {
	ctx := context.Background()
	svc := NewService(Deps{Store: NewMemoryStore()}, config.Default())
	pois := seedPOIs(t, svc)

	items, err := svc.InRadius(ctx, center, 200, "")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, pois[0].ID, items[0].ID)
	assert.Equal(t, pois[1].ID, items[1].ID)
	require.NotNil(t, items[0].DistanceMeters)
	assert.Less(t, *items[0].DistanceMeters, *items[1].DistanceMeters)
	assert.NotNil(t, items[0].Rating)

	items, err = svc.InRadius(ctx, center, 200, "park")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, pois[1].ID, items[0].ID)

	_, err = svc.InRadius(ctx, geo.Point{Lat: 100}, 200, "")
	assert.ErrorIs(t, err, common.ErrInvalidCoordinate)

	_, err = svc.InRadius(ctx, center, 0, "")
	assert.ErrorIs(t, err, common.ErrInvalidArea)
}

func TestInRadiusUsesIndex(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	idx := &fakeIndex{enabled: true}
	svc := NewService(Deps{Store: store, Index: idx}, config.Default())
	pois := seedPOIs(t, svc)

	// Индекс знает про неактивный POI: его отбрасываем
	idx.hits = []GeoHit{{POIID: pois[0].ID, DistanceMeters: 25}, {POIID: pois[3].ID, DistanceMeters: 11}}
	items, err := svc.InRadius(ctx, center, 200, "")
	require.NoError(t, err)
	assert.Equal(t, 1, idx.calls)
	require.Len(t, items, 1)
	assert.Equal(t, pois[0].ID, items[0].ID)
	assert.Equal(t, 25.0, *items[0].DistanceMeters)
}

func TestInRadiusFallsBackWhenIndexFails(t *testing.T) {
	ctx := context.Background()
	idx := &fakeIndex{enabled: true, err: errors.New("connection refused")}
	svc := NewService(Deps{Store: NewMemoryStore(), Index: idx}, config.Default())
	seedPOIs(t, svc)

	items, err := svc.InRadius(ctx, center, 200, "")
	require.NoError(t, err)
	assert.Equal(t, 1, idx.calls)
	assert.Len(t, items, 2)

	idx.enabled = false
	items, err = svc.InRadius(ctx, center, 200, "")
	require.NoError(t, err)
	assert.Equal(t, 1, idx.calls)
	assert.Len(t, items, 2)
}

func TestInBoundingBox(t *testing.T) {
	ctx := context.Background()
	svc := NewService(Deps{Store: NewMemoryStore()}, config.Default())
	pois := seedPOIs(t, svc)

	box := geo.Box{SW: geo.Point{Lat: 55.75, Lon: 37.61}, NE: geo.Point{Lat: 55.76, Lon: 37.62}}
	items, err := svc.InBoundingBox(ctx, box, "")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, pois[0].ID, items[0].ID)
	assert.Nil(t, items[0].DistanceMeters)

	_, err = svc.InBoundingBox(ctx, geo.Box{SW: box.NE, NE: box.SW}, "")
	assert.ErrorIs(t, err, common.ErrInvalidCoordinate)
}

func TestSearchAcrossAntimeridian(t *testing.T) {
	ctx := context.Background()
	svc := NewService(Deps{Store: NewMemoryStore()}, config.Default())

	east := newPOI("pharmacy", -17.0, 179.99995)
	west := newPOI("pharmacy", -17.0, -179.99995)
	far := newPOI("pharmacy", -17.0, 179.9)
	for _, p := range []*POI{east, west, far} {
		_, err := svc.Create(ctx, p)
		require.NoError(t, err)
	}

	// ~10.6 м через 180-й меридиан
	items, err := svc.InRadius(ctx, geo.Point{Lat: -17.0, Lon: -179.99995}, 50, "")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, west.ID, items[0].ID)
	assert.Equal(t, east.ID, items[1].ID)
	assert.InDelta(t, 10.6, *items[1].DistanceMeters, 0.5)

	box := geo.Box{SW: geo.Point{Lat: -18, Lon: 179.95}, NE: geo.Point{Lat: -16, Lon: -179.95}}
	items, err = svc.InBoundingBox(ctx, box, "")
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestAreaHealth(t *testing.T) {
	ctx := context.Background()
	svc := NewService(Deps{Store: NewMemoryStore(), Scorer: fixedScorer(90), Resolver: fakeResolver{label: "Красная площадь"}}, config.Default())
	seedPOIs(t, svc)

	res, err := svc.AreaHealth(ctx, AreaQuery{Center: &center, RadiusMeters: 200})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	// static 90, social 50: 0.7·90 + 0.3·50 = 78
	assert.InDelta(t, 78, res.HealthIndex, 1e-9)
	assert.Equal(t, InterpretationFavorable, res.Interpretation)
	assert.Equal(t, "Красная площадь", res.Label)
	require.Contains(t, res.Categories, "pharmacy")
	assert.Equal(t, 1, res.Categories["pharmacy"].Count)
}

func TestAreaHealthEmptyArea(t *testing.T) {
	ctx := context.Background()
	svc := NewService(Deps{Store: NewMemoryStore(), Resolver: fakeResolver{err: errors.New("timeout")}}, config.Default())

	sw := geo.Point{Lat: 10, Lon: 10}
	ne := geo.Point{Lat: 10.1, Lon: 10.1}
	res, err := svc.AreaHealth(ctx, AreaQuery{SW: &sw, NE: &ne})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
	assert.Equal(t, 50.0, res.HealthIndex)
	assert.Equal(t, InterpretationAverage, res.Interpretation)
	assert.Empty(t, res.Label)

	_, err = svc.AreaHealth(ctx, AreaQuery{})
	assert.ErrorIs(t, err, common.ErrInvalidArea)
}

type countingStore struct {
	*MemoryStore
	mu    sync.Mutex
	saves int
	fail  int64
}

func (c *countingStore) SaveRating(ctx context.Context, rt *Rating) error {
	if rt.POIID == c.fail {
		return errors.New("disk full")
	}
	c.mu.Lock()
	c.saves++
	c.mu.Unlock()
	return c.MemoryStore.SaveRating(ctx, rt)
}

func TestRecomputeAll(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{MemoryStore: NewMemoryStore(), fail: 3}
	for i := range 7 {
		require.NoError(t, store.Create(ctx, newPOI("cafe", 55+float64(i)*0.01, 37)))
	}

	cfg := config.Default()
	cfg.RecomputeBatchSize = 3
	cfg.RecomputeMaxParallel = 2
	svc := NewService(Deps{Store: store}, cfg)

	summary, err := svc.RecomputeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 6, store.saves)
}
