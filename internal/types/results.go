package types

// Adapter result types. Each external analysis adapter returns one of these;
// adapters that are fallback-guaranteed return the value with no error so the
// fatal/non-fatal distinction is visible in the signature.

// TranscriptResult is the Transcriber adapter output.
type TranscriptResult struct {
	FullText     string      `json:"full_text"`
	Utterances   []Utterance `json:"utterances"`
	SilenceRatio float64     `json:"silence_ratio"`
}

// AudioFeatures is the FeatureExtractor adapter output. A nil *AudioFeatures
// means extraction failed and the feature set degrades, not the pipeline.
type AudioFeatures struct {
	RMSMean              float64   `json:"rms_mean"`
	ZCRMean              float64   `json:"zcr_mean"`
	SpectralCentroidMean float64   `json:"spectral_centroid_mean"`
	MFCCMeans            []float64 `json:"mfcc_means,omitempty"`
	SilenceRatio         float64   `json:"silence_ratio"`
}

// ScoreResult is the SatisfactionScorer adapter output.
type ScoreResult struct {
	Score    float64              `json:"score"`
	Category SatisfactionCategory `json:"category"`
}

// Evaluation is the Evaluator adapter output.
type Evaluation struct {
	Text     string            `json:"evaluation"`
	Score    float64           `json:"score"`
	Topics   []string          `json:"topics"`
	Emotions map[string]string `json:"emotions"`
	Summary  string            `json:"summary"`
}

// CoachingContent is the CoachingNarrator adapter output.
type CoachingContent struct {
	Summary        string `json:"summary"`
	CoachingPoints string `json:"coaching_points"`
	Strengths      string `json:"strengths"`
	AreasToImprove string `json:"areas_to_improve"`
}
