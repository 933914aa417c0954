package poi

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"serotonyl.ru/geohealth/internal/config"
)

func intPtr(v int) *int { return &v }

func TestInterpret(t *testing.T) {
	tests := []struct {
		index float64
		want  Interpretation
	}{
		{100, InterpretationExcellent},
		{81, InterpretationExcellent},
		{80.9, InterpretationFavorable},
		{61, InterpretationFavorable},
		{60, InterpretationAverage},
		{50, InterpretationAverage},
		{31, InterpretationAverage},
		{30, InterpretationUnfavorable},
		{0, InterpretationUnfavorable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Interpret(tt.index), "index=%v", tt.index)
	}
}

func TestCompositeScore(t *testing.T) {
	w := WeightsFromConfig(config.Default())

	assert.InDelta(t, 50, CompositeScore(50, 50, false, w), 1e-9)
	assert.InDelta(t, 55, CompositeScore(50, 50, true, w), 1e-9)
	assert.InDelta(t, 0.7*80+0.3*20, CompositeScore(80, 20, false, w), 1e-9)
	assert.InDelta(t, 100, CompositeScore(100, 100, true, w), 1e-9)
	assert.InDelta(t, 0, CompositeScore(-50, 0, false, w), 1e-9)
}

func TestAuthorWeight(t *testing.T) {
	assert.Equal(t, 0.5, AuthorWeight(0))
	assert.Equal(t, 0.5, AuthorWeight(99))
	assert.Equal(t, 1.0, AuthorWeight(100))
	assert.Equal(t, 1.0, AuthorWeight(999))
	assert.Equal(t, 1.5, AuthorWeight(1000))
}

func TestSocialScore(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("no reviews", func(t *testing.T) {
		assert.Equal(t, NeutralScore, SocialScore(nil, nil, now, 180))
	})

	t.Run("only unapproved or unrated", func(t *testing.T) {
		reviews := []Review{
			{AuthorID: 1, Rating: intPtr(5), Approved: false, CreatedAt: now},
			{AuthorID: 2, Rating: nil, Approved: true, CreatedAt: now},
		}
		assert.Equal(t, NeutralScore, SocialScore(reviews, nil, now, 180))
	})

	t.Run("single five star", func(t *testing.T) {
		reviews := []Review{{AuthorID: 1, Rating: intPtr(5), Approved: true, CreatedAt: now}}
		assert.InDelta(t, 100, SocialScore(reviews, nil, now, 180), 1e-9)
	})

	t.Run("half life and author weight", func(t *testing.T) {
		// Свежая 1★ от новичка (вес 0.5) и 5★ полугодовой давности от эксперта (1.5 · 0.5)
		reviews := []Review{
			{AuthorID: 1, Rating: intPtr(1), Approved: true, CreatedAt: now},
			{AuthorID: 2, Rating: intPtr(5), Approved: true, CreatedAt: now.AddDate(0, 0, -180)},
		}
		reps := map[int64]int64{1: 10, 2: 5000}
		w1, w2 := 0.5, 1.5*0.5
		want := 100 * (w2 * 1) / (w1 + w2)
		assert.InDelta(t, want, SocialScore(reviews, reps, now, 180), 1e-9)
	})
}

func TestAreaIndex(t *testing.T) {
	t.Run("empty area is neutral average", func(t *testing.T) {
		index := AreaIndex(nil)
		assert.Equal(t, 50.0, index)
		assert.Equal(t, InterpretationAverage, Interpret(index))
	})

	t.Run("reliability weighting", func(t *testing.T) {
		items := []RatedPOI{
			{POI: POI{ID: 1}, Rating: &Rating{CompositeScore: 90, ApprovedReviewCount: 10}},
			{POI: POI{ID: 2}, Rating: &Rating{CompositeScore: 30, ApprovedReviewCount: 0}},
		}
		want := (1.0*90 + 0.1*30) / 1.1
		assert.InDelta(t, want, AreaIndex(items), 1e-9)
	})

	t.Run("unrated poi counts as neutral", func(t *testing.T) {
		items := []RatedPOI{{POI: POI{ID: 1}}}
		assert.InDelta(t, 50, AreaIndex(items), 1e-9)
	})
}

func TestReliability(t *testing.T) {
	assert.InDelta(t, 0.1, Reliability(0), 1e-9)
	assert.InDelta(t, 0.5, Reliability(5), 1e-9)
	assert.InDelta(t, 1.0, Reliability(25), 1e-9)
	assert.False(t, math.IsNaN(Reliability(-1)))
}
