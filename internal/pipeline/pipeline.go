// Package pipeline runs the per-call analysis flow: transcription, acoustic
// scoring, then LLM evaluation. Each stage is tracked by its own ledger row;
// a fatal stage error fails the run and sweeps every in-flight row for the
// call to failed.
package pipeline

import (
	"context"
	"fmt"

	"call-insights-go/internal/ledger"
	"call-insights-go/internal/logger"
	"call-insights-go/internal/scorer"
	"call-insights-go/internal/store"
	"call-insights-go/internal/types"
)

// Transcriber converts a recording into a transcript. Errors are fatal to the
// pipeline run.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*types.TranscriptResult, error)
}

// FeatureExtractor probes recordings locally. Extract returning nil means the
// feature set degrades without failing the run.
type FeatureExtractor interface {
	Duration(audioPath string) (float64, error)
	Extract(audioPath string) *types.AudioFeatures
}

// SatisfactionScorer predicts satisfaction from the merged feature vector.
type SatisfactionScorer interface {
	Score(features map[string]float64) types.ScoreResult
}

// Evaluator produces the qualitative call review. Fallback-guaranteed.
type Evaluator interface {
	Evaluate(ctx context.Context, agentName, transcript string, utterances []types.Utterance) types.Evaluation
}

// Executor drives one call through all stages.
type Executor struct {
	store       *store.Store
	ledger      *ledger.Ledger
	transcriber Transcriber
	extractor   FeatureExtractor
	scorer      SatisfactionScorer
	evaluator   Evaluator
}

func New(s *store.Store, l *ledger.Ledger, t Transcriber, f FeatureExtractor, sc SatisfactionScorer, e Evaluator) *Executor {
	return &Executor{store: s, ledger: l, transcriber: t, extractor: f, scorer: sc, evaluator: e}
}

// Run executes the full pipeline for one call. The transcription ledger row
// is created by the dispatcher inside the same transaction that marks the
// call processing; its id arrives here as transcriptionTaskID.
func (x *Executor) Run(ctx context.Context, callID, transcriptionTaskID int64) error {
	log := logger.New().WithCall(callID)
	log.Info("pipeline run started")

	call, err := x.store.GetCall(ctx, callID)
	if err != nil {
		return x.abort(ctx, callID, fmt.Errorf("load call: %w", err))
	}

	// best-effort duration probe, never fatal
	if call.DurationSec == nil {
		if seconds, err := x.extractor.Duration(call.AudioPath); err == nil && seconds > 0 {
			_ = x.store.SetCallDuration(ctx, callID, int(seconds))
		}
	}

	transcript, err := x.transcriber.Transcribe(ctx, call.AudioPath)
	if err != nil {
		return x.abort(ctx, callID, fmt.Errorf("transcribe: %w", err))
	}
	if _, err := x.store.CreateTranscript(ctx, callID, *transcript); err != nil {
		return x.abort(ctx, callID, fmt.Errorf("persist transcript: %w", err))
	}
	if err := x.ledger.Complete(ctx, transcriptionTaskID); err != nil {
		return x.abort(ctx, callID, fmt.Errorf("complete transcription task: %w", err))
	}
	log.WithField("utterances", len(transcript.Utterances)).Info("transcription stage completed")

	analysisTask, err := x.ledger.CreateForCall(ctx, callID, call.AgentID, types.TaskAnalysis, types.TaskProcessing)
	if err != nil {
		return x.abort(ctx, callID, fmt.Errorf("open analysis task: %w", err))
	}
	score := x.scorer.Score(featureVector(x.extractor.Extract(call.AudioPath), transcript))
	if _, err := x.store.CreateAnalysis(ctx, callID, score); err != nil {
		return x.abort(ctx, callID, fmt.Errorf("persist analysis: %w", err))
	}
	if err := x.ledger.Complete(ctx, analysisTask.ID); err != nil {
		return x.abort(ctx, callID, fmt.Errorf("complete analysis task: %w", err))
	}
	log.WithField("score", score.Score).WithField("category", string(score.Category)).Info("analysis stage completed")

	evalTask, err := x.ledger.CreateForCall(ctx, callID, call.AgentID, types.TaskLLMEvaluation, types.TaskProcessing)
	if err != nil {
		return x.abort(ctx, callID, fmt.Errorf("open evaluation task: %w", err))
	}
	agent, err := x.store.GetAgent(ctx, call.AgentID)
	if err != nil {
		return x.abort(ctx, callID, fmt.Errorf("load agent: %w", err))
	}
	evaluation := x.evaluator.Evaluate(ctx, agent.Name, transcript.FullText, transcript.Utterances)
	if err := x.store.UpdateAnalysisNarrative(ctx, callID, evaluation); err != nil {
		return x.abort(ctx, callID, fmt.Errorf("persist evaluation: %w", err))
	}
	if err := x.ledger.Complete(ctx, evalTask.ID); err != nil {
		return x.abort(ctx, callID, fmt.Errorf("complete evaluation task: %w", err))
	}

	if err := x.store.UpdateCallStatus(ctx, callID, types.CallCompleted); err != nil {
		return x.abort(ctx, callID, fmt.Errorf("complete call: %w", err))
	}
	log.Info("pipeline run completed")
	return nil
}

// abort fails the call and sweeps every still-processing ledger row for it,
// then hands the original error back to the caller.
func (x *Executor) abort(ctx context.Context, callID int64, cause error) error {
	_ = x.ledger.FailProcessing(ctx, callID, cause.Error())
	_ = x.store.UpdateCallStatus(ctx, callID, types.CallFailed)
	return cause
}

// featureVector merges the local acoustic features with the silence ratio
// reported by the transcription service. The transcription value wins when
// both exist.
func featureVector(features *types.AudioFeatures, transcript *types.TranscriptResult) map[string]float64 {
	fv := map[string]float64{}
	if features != nil {
		fv[scorer.FeatureRMSMean] = features.RMSMean
		fv[scorer.FeatureZCRMean] = features.ZCRMean
		fv[scorer.FeatureSpectralCentroid] = features.SpectralCentroidMean
		fv[scorer.FeatureSilenceRatio] = features.SilenceRatio
	}
	if transcript != nil && transcript.SilenceRatio > 0 {
		fv[scorer.FeatureSilenceRatio] = transcript.SilenceRatio
	}
	return fv
}
