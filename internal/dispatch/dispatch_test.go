package dispatch

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-insights-go/internal/coaching"
	"call-insights-go/internal/ledger"
	"call-insights-go/internal/pipeline"
	"call-insights-go/internal/store"
	"call-insights-go/internal/types"
)

type blockingTranscriber struct {
	release chan struct{}
}

func (b *blockingTranscriber) Transcribe(ctx context.Context, _ string) (*types.TranscriptResult, error) {
	if b.release != nil {
		select {
		case <-b.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &types.TranscriptResult{FullText: "ok", SilenceRatio: 0.1}, nil
}

type noopExtractor struct{}

func (noopExtractor) Duration(string) (float64, error)    { return 60, nil }
func (noopExtractor) Extract(string) *types.AudioFeatures { return nil }

type fixedScorer struct{}

func (fixedScorer) Score(map[string]float64) types.ScoreResult {
	return types.ScoreResult{Score: 3.5, Category: types.SatisfactionMedium}
}

type staticEvaluator struct{}

func (staticEvaluator) Evaluate(context.Context, string, string, []types.Utterance) types.Evaluation {
	return types.Evaluation{Text: "fine", Score: 3.5, Summary: "Quick call."}
}

type staticNarrator struct{}

func (staticNarrator) DailyCoaching(context.Context, string, string, []string, float64) types.CoachingContent {
	return types.CoachingContent{Summary: "Good day.", CoachingPoints: "Keep pace."}
}

func setup(t *testing.T, tr pipeline.Transcriber) (*Dispatcher, *store.Store, *types.Call) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	agent, err := s.CreateAgent(ctx, "EMP-001", "Dana Reyes", "")
	require.NoError(t, err)
	call, err := s.CreateCall(ctx, store.NewCall{
		AgentID:   agent.ID,
		AudioPath: "/audio/a.wav",
		CallDate:  time.Now().UTC(),
	})
	require.NoError(t, err)

	taskLedger := ledger.New(s)
	executor := pipeline.New(s, taskLedger, tr, noopExtractor{}, fixedScorer{}, staticEvaluator{})
	d := New(s, taskLedger, executor, coaching.New(s, staticNarrator{}))
	t.Cleanup(d.Close)
	return d, s, call
}

func TestTriggerPipelineRunsToCompletion(t *testing.T) {
	d, s, call := setup(t, &blockingTranscriber{})
	ctx := context.Background()

	task, err := d.TriggerPipeline(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskTranscription, task.Kind)
	assert.NotEmpty(t, task.JobRef)

	require.Eventually(t, func() bool {
		got, err := s.GetCall(ctx, call.ID)
		return err == nil && got.Status == types.CallCompleted
	}, 5*time.Second, 10*time.Millisecond)

	analysis, err := s.GetAnalysisByCall(ctx, call.ID)
	require.NoError(t, err)
	assert.True(t, analysis.HasNarrative())
}

func TestTriggerPipelineRejectsConcurrentRun(t *testing.T) {
	tr := &blockingTranscriber{release: make(chan struct{})}
	d, s, call := setup(t, tr)
	ctx := context.Background()

	_, err := d.TriggerPipeline(ctx, call.ID)
	require.NoError(t, err)

	_, err = d.TriggerPipeline(ctx, call.ID)
	assert.ErrorIs(t, err, store.ErrPipelineInFlight)

	close(tr.release)
	require.Eventually(t, func() bool {
		got, err := s.GetCall(ctx, call.ID)
		return err == nil && got.Status == types.CallCompleted
	}, 5*time.Second, 10*time.Millisecond)

	// settled runs can be superseded
	_, err = d.TriggerPipeline(ctx, call.ID)
	assert.NoError(t, err)
}

func TestTriggerPipelineUnknownCall(t *testing.T) {
	d, _, _ := setup(t, &blockingTranscriber{})
	_, err := d.TriggerPipeline(context.Background(), 9999)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTriggerCoaching(t *testing.T) {
	d, s, call := setup(t, &blockingTranscriber{})
	ctx := context.Background()

	task, err := d.TriggerCoaching(ctx, call.AgentID, "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, types.TaskCoaching, task.Kind)

	require.Eventually(t, func() bool {
		got, err := s.GetTask(ctx, task.ID)
		return err == nil && got.Status == types.TaskCompleted
	}, 5*time.Second, 10*time.Millisecond)

	record, err := s.GetCoaching(ctx, call.AgentID, "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, "No completed calls for this day.", record.DailySummary)

	_, err = d.TriggerCoaching(ctx, call.AgentID, "2026-03-14")
	assert.ErrorIs(t, err, store.ErrCoachingExists)
}
