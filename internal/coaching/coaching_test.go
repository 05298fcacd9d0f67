package coaching

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-insights-go/internal/store"
	"call-insights-go/internal/types"
)

type stubNarrator struct {
	gotSummaries []string
	gotAvg       float64
	content      types.CoachingContent
}

func (n *stubNarrator) DailyCoaching(_ context.Context, _, _ string, summaries []string, avg float64) types.CoachingContent {
	n.gotSummaries = summaries
	n.gotAvg = avg
	return n.content
}

func setup(t *testing.T) (*store.Store, *types.Agent) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	agent, err := s.CreateAgent(context.Background(), "EMP-001", "Dana Reyes", "billing")
	require.NoError(t, err)
	return s, agent
}

func completedCall(t *testing.T, s *store.Store, agentID int64, at time.Time) *types.Call {
	t.Helper()
	ctx := context.Background()
	call, err := s.CreateCall(ctx, store.NewCall{AgentID: agentID, AudioPath: "/audio/a.wav", CallDate: at})
	require.NoError(t, err)
	require.NoError(t, s.UpdateCallStatus(ctx, call.ID, types.CallCompleted))
	return call
}

func TestGenerateDailyAggregatesAnalyzedCalls(t *testing.T) {
	s, agent := setup(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	first := completedCall(t, s, agent.ID, day)
	second := completedCall(t, s, agent.ID, day.Add(2*time.Hour))
	completedCall(t, s, agent.ID, day.Add(4*time.Hour)) // completed but never analyzed

	_, err := s.CreateAnalysis(ctx, first.ID, types.ScoreResult{Score: 4.0, Category: types.SatisfactionHigh})
	require.NoError(t, err)
	require.NoError(t, s.UpdateAnalysisNarrative(ctx, first.ID, types.Evaluation{Text: "good", Summary: "Refund sorted."}))
	_, err = s.CreateAnalysis(ctx, second.ID, types.ScoreResult{Score: 2.0, Category: types.SatisfactionMedium})
	require.NoError(t, err)
	require.NoError(t, s.UpdateAnalysisNarrative(ctx, second.ID, types.Evaluation{Text: "tense", Summary: "Escalated complaint."}))

	narrator := &stubNarrator{content: types.CoachingContent{
		Summary:        "Mixed day.",
		CoachingPoints: "Slow down on escalations.",
		Strengths:      "Fast refunds.",
		AreasToImprove: "De-escalation.",
	}}
	record, err := New(s, narrator).GenerateDaily(ctx, agent.ID, "2026-03-14")
	require.NoError(t, err)

	assert.Equal(t, []string{"Refund sorted.", "Escalated complaint."}, narrator.gotSummaries)
	assert.InDelta(t, 3.0, narrator.gotAvg, 1e-9)

	assert.Equal(t, "Mixed day.", record.DailySummary)
	assert.Equal(t, 3, record.CallCount)
	require.NotNil(t, record.AvgSatisfaction)
	assert.InDelta(t, 3.0, *record.AvgSatisfaction, 1e-9)
}

func TestGenerateDailyNoCompletedCalls(t *testing.T) {
	s, agent := setup(t)
	ctx := context.Background()

	record, err := New(s, &stubNarrator{}).GenerateDaily(ctx, agent.ID, "2026-03-14")
	require.NoError(t, err)

	assert.Equal(t, noDataSummary, record.DailySummary)
	assert.Equal(t, 0, record.CallCount)
	assert.Nil(t, record.AvgSatisfaction)
}

func TestGenerateDailyNeutralAverageWithoutAnalyses(t *testing.T) {
	s, agent := setup(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	completedCall(t, s, agent.ID, day)

	narrator := &stubNarrator{content: types.CoachingContent{Summary: "s", CoachingPoints: "p"}}
	record, err := New(s, narrator).GenerateDaily(ctx, agent.ID, "2026-03-14")
	require.NoError(t, err)

	assert.InDelta(t, types.NeutralScore, narrator.gotAvg, 1e-9)
	require.NotNil(t, record.AvgSatisfaction)
	assert.InDelta(t, types.NeutralScore, *record.AvgSatisfaction, 1e-9)
	assert.Equal(t, 1, record.CallCount)
}

func TestGenerateDailyRejectsDuplicate(t *testing.T) {
	s, agent := setup(t)
	ctx := context.Background()
	aggregator := New(s, &stubNarrator{content: types.CoachingContent{Summary: "s", CoachingPoints: "p"}})

	first, err := aggregator.GenerateDaily(ctx, agent.ID, "2026-03-14")
	require.NoError(t, err)

	_, err = aggregator.GenerateDaily(ctx, agent.ID, "2026-03-14")
	assert.ErrorIs(t, err, store.ErrCoachingExists)

	// the original record is untouched
	got, err := s.GetCoaching(ctx, agent.ID, "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestGenerateDailyRejectsBadDate(t *testing.T) {
	s, agent := setup(t)
	_, err := New(s, &stubNarrator{}).GenerateDaily(context.Background(), agent.ID, "03/14/2026")
	assert.Error(t, err)
}

func TestGenerateDailyUnknownAgent(t *testing.T) {
	s, _ := setup(t)
	_, err := New(s, &stubNarrator{}).GenerateDaily(context.Background(), 9999, "2026-03-14")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
