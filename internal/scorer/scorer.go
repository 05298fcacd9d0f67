// Package scorer predicts call satisfaction from the merged acoustic feature
// vector. The scorer is fallback-guaranteed: it always produces a result and
// substitutes the neutral midpoint instead of propagating model problems.
package scorer

import (
	"call-insights-go/internal/logger"
	"call-insights-go/internal/types"
)

// Feature vector keys understood by the model.
const (
	FeatureSilenceRatio     = "silence_ratio"
	FeatureRMSMean          = "rms_mean"
	FeatureZCRMean          = "zcr_mean"
	FeatureSpectralCentroid = "spectral_centroid_mean"
)

type Scorer struct{}

func New() *Scorer {
	return &Scorer{}
}

// Score maps the feature vector onto a 1 to 5 satisfaction score. An empty or
// nil vector yields the neutral default (3.0, medium).
func (s *Scorer) Score(features map[string]float64) types.ScoreResult {
	if len(features) == 0 {
		logger.New().WithField("module", "scorer").Warn("empty feature vector, returning neutral score")
		return neutral()
	}

	// Linear stand-in for the trained satisfaction model: long silences and
	// flat low-energy audio correlate with dissatisfied callers.
	score := 3.8
	if v, ok := features[FeatureSilenceRatio]; ok {
		score -= 2.5 * clamp01(v)
	}
	if v, ok := features[FeatureRMSMean]; ok {
		score += 1.5 * clamp01(v*4)
	}
	if v, ok := features[FeatureZCRMean]; ok {
		score -= 0.8 * clamp01(v*2)
	}

	if score < 1.0 {
		score = 1.0
	}
	if score > 5.0 {
		score = 5.0
	}
	return types.ScoreResult{Score: score, Category: types.CategoryForScore(score)}
}

func neutral() types.ScoreResult {
	return types.ScoreResult{Score: types.NeutralScore, Category: types.SatisfactionMedium}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
