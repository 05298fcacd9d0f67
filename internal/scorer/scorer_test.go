package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"call-insights-go/internal/types"
)

func TestEmptyVectorIsNeutral(t *testing.T) {
	s := New()
	for _, features := range []map[string]float64{nil, {}} {
		result := s.Score(features)
		assert.InDelta(t, types.NeutralScore, result.Score, 1e-9)
		assert.Equal(t, types.SatisfactionMedium, result.Category)
	}
}

func TestSilenceDrivesScoreDown(t *testing.T) {
	s := New()

	quiet := s.Score(map[string]float64{FeatureSilenceRatio: 0.9})
	lively := s.Score(map[string]float64{FeatureSilenceRatio: 0.05, FeatureRMSMean: 0.2})

	assert.Less(t, quiet.Score, lively.Score)
	assert.Equal(t, types.SatisfactionLow, quiet.Category)
	assert.Equal(t, types.SatisfactionHigh, lively.Category)
}

func TestScoreStaysInRange(t *testing.T) {
	s := New()

	floor := s.Score(map[string]float64{FeatureSilenceRatio: 5, FeatureZCRMean: 5})
	assert.GreaterOrEqual(t, floor.Score, 1.0)

	ceiling := s.Score(map[string]float64{FeatureSilenceRatio: 0, FeatureRMSMean: 10})
	assert.LessOrEqual(t, ceiling.Score, 5.0)
}

func TestCategoryBrackets(t *testing.T) {
	cases := []struct {
		score float64
		want  types.SatisfactionCategory
	}{
		{1.0, types.SatisfactionLow},
		{1.99, types.SatisfactionLow},
		{2.0, types.SatisfactionMedium},
		{3.99, types.SatisfactionMedium},
		{4.0, types.SatisfactionHigh},
		{5.0, types.SatisfactionHigh},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, types.CategoryForScore(tc.score), "score %v", tc.score)
	}
}
