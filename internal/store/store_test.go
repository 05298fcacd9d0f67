package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-insights-go/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedAgent(t *testing.T, s *Store) *types.Agent {
	t.Helper()
	agent, err := s.CreateAgent(context.Background(), "EMP-001", "Dana Reyes", "billing")
	require.NoError(t, err)
	return agent
}

func seedCall(t *testing.T, s *Store, agentID int64, callDate time.Time) *types.Call {
	t.Helper()
	call, err := s.CreateCall(context.Background(), NewCall{
		AgentID:   agentID,
		AudioPath: "/audio/sample.wav",
		CallDate:  callDate,
	})
	require.NoError(t, err)
	return call
}

func TestGetOrCreateAgent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.GetOrCreateAgent(ctx, "EMP-007", "Sam Okafor", "retention")
	require.NoError(t, err)

	second, err := s.GetOrCreateAgent(ctx, "EMP-007", "Different Name", "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Sam Okafor", second.Name)

	byEmployee, err := s.GetAgentByEmployeeID(ctx, "EMP-007")
	require.NoError(t, err)
	assert.Equal(t, first.ID, byEmployee.ID)

	_, err = s.GetAgentByEmployeeID(ctx, "EMP-404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCallLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	agent := seedAgent(t, s)

	call := seedCall(t, s, agent.ID, time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC))
	assert.Equal(t, types.CallPending, call.Status)
	assert.Nil(t, call.DurationSec)

	require.NoError(t, s.UpdateCallStatus(ctx, call.ID, types.CallProcessing))
	require.NoError(t, s.SetCallDuration(ctx, call.ID, 187))

	got, err := s.GetCall(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, types.CallProcessing, got.Status)
	require.NotNil(t, got.DurationSec)
	assert.Equal(t, 187, *got.DurationSec)

	_, err = s.GetCall(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListCallsByAgentAndDate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	agent := seedAgent(t, s)

	seedCall(t, s, agent.ID, time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	second := seedCall(t, s, agent.ID, time.Date(2026, 3, 14, 16, 45, 0, 0, time.UTC))
	seedCall(t, s, agent.ID, time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC))

	require.NoError(t, s.UpdateCallStatus(ctx, second.ID, types.CallCompleted))

	day, err := s.ListCallsByAgentAndDate(ctx, agent.ID, "2026-03-14", "")
	require.NoError(t, err)
	require.Len(t, day, 2)
	assert.True(t, day[0].CallDate.Before(day[1].CallDate))

	completed, err := s.ListCallsByAgentAndDate(ctx, agent.ID, "2026-03-14", types.CallCompleted)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, second.ID, completed[0].ID)

	_, err = s.ListCallsByAgentAndDate(ctx, agent.ID, "14-03-2026", "")
	assert.Error(t, err)
}

func TestTranscriptAndAnalysis(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	agent := seedAgent(t, s)
	call := seedCall(t, s, agent.ID, time.Now().UTC())

	result := types.TranscriptResult{
		FullText: "hello world",
		Utterances: []types.Utterance{
			{SpeakerID: "AGENT", Start: 0, End: 2.5, Text: "hello"},
			{SpeakerID: "CUSTOMER", Start: 3, End: 4, Text: "world"},
		},
		SilenceRatio: 0.2,
	}
	transcript, err := s.CreateTranscript(ctx, call.ID, result)
	require.NoError(t, err)
	assert.Len(t, transcript.Utterances, 2)
	assert.Equal(t, "AGENT", transcript.Utterances[0].SpeakerID)

	analysis, err := s.CreateAnalysis(ctx, call.ID, types.ScoreResult{Score: 4.2, Category: types.SatisfactionHigh})
	require.NoError(t, err)
	assert.False(t, analysis.HasNarrative())

	ev := types.Evaluation{
		Text:     "Handled the refund promptly.",
		Score:    4.0,
		Topics:   []string{"billing"},
		Emotions: map[string]string{"agent": "calm", "customer": "relieved"},
		Summary:  "Refund issued.",
	}
	require.NoError(t, s.UpdateAnalysisNarrative(ctx, call.ID, ev))

	got, err := s.GetAnalysisByCall(ctx, call.ID)
	require.NoError(t, err)
	assert.True(t, got.HasNarrative())
	assert.Equal(t, []string{"billing"}, got.KeyTopics)
	assert.Equal(t, "relieved", got.Emotions["customer"])

	err = s.UpdateAnalysisNarrative(ctx, 9999, ev)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTaskFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	agent := seedAgent(t, s)
	call := seedCall(t, s, agent.ID, time.Now().UTC())

	_, err := s.CreateTask(ctx, &call.ID, &agent.ID, types.TaskTranscription, types.TaskProcessing, "job-1")
	require.NoError(t, err)
	second, err := s.CreateTask(ctx, &call.ID, &agent.ID, types.TaskAnalysis, types.TaskProcessing, "")
	require.NoError(t, err)
	_, err = s.CreateTask(ctx, nil, &agent.ID, types.TaskCoaching, types.TaskCompleted, "job-2")
	require.NoError(t, err)

	byCall, err := s.ListTasks(ctx, TaskFilter{CallID: &call.ID})
	require.NoError(t, err)
	assert.Len(t, byCall, 2)

	byKind, err := s.ListTasks(ctx, TaskFilter{Kind: types.TaskCoaching})
	require.NoError(t, err)
	require.Len(t, byKind, 1)
	assert.Nil(t, byKind[0].CallID)
	require.NotNil(t, byKind[0].AgentID)
	assert.Equal(t, agent.ID, *byKind[0].AgentID)

	inFlight, err := s.HasProcessingTask(ctx, call.ID)
	require.NoError(t, err)
	assert.True(t, inFlight)

	require.NoError(t, s.UpdateTaskStatus(ctx, second.ID, types.TaskFailed, "boom"))
	got, err := s.GetTask(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskFailed, got.Status)
	assert.Equal(t, "boom", got.ErrorMessage)
}

func TestBeginPipelineRunSupersedesPriorResults(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	agent := seedAgent(t, s)
	call := seedCall(t, s, agent.ID, time.Now().UTC())

	_, err := s.CreateTranscript(ctx, call.ID, types.TranscriptResult{FullText: "old"})
	require.NoError(t, err)
	_, err = s.CreateAnalysis(ctx, call.ID, types.ScoreResult{Score: 2.0, Category: types.SatisfactionMedium})
	require.NoError(t, err)

	task, err := s.BeginPipelineRun(ctx, call.ID, "job-ref-1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskTranscription, task.Kind)
	assert.Equal(t, types.TaskProcessing, task.Status)
	assert.Equal(t, "job-ref-1", task.JobRef)

	_, err = s.GetTranscriptByCall(ctx, call.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetAnalysisByCall(ctx, call.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.GetCall(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, types.CallProcessing, got.Status)
}

func TestBeginPipelineRunRejectsInFlight(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	agent := seedAgent(t, s)
	call := seedCall(t, s, agent.ID, time.Now().UTC())

	first, err := s.BeginPipelineRun(ctx, call.ID, "job-1")
	require.NoError(t, err)

	_, err = s.BeginPipelineRun(ctx, call.ID, "job-2")
	assert.ErrorIs(t, err, ErrPipelineInFlight)

	// once the run settles, a new one is allowed again
	require.NoError(t, s.UpdateTaskStatus(ctx, first.ID, types.TaskFailed, "stt down"))
	_, err = s.BeginPipelineRun(ctx, call.ID, "job-3")
	assert.NoError(t, err)

	_, err = s.BeginPipelineRun(ctx, 9999, "job-4")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCoachingUniquePerAgentDay(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	agent := seedAgent(t, s)

	avg := 4.1
	created, err := s.CreateCoaching(ctx, NewCoaching{
		AgentID:         agent.ID,
		Date:            "2026-03-14",
		DailySummary:    "Strong day.",
		CoachingPoints:  "Keep it up.",
		CallCount:       5,
		AvgSatisfaction: &avg,
	})
	require.NoError(t, err)
	require.NotNil(t, created.AvgSatisfaction)
	assert.InDelta(t, 4.1, *created.AvgSatisfaction, 1e-9)

	_, err = s.CreateCoaching(ctx, NewCoaching{
		AgentID:        agent.ID,
		Date:           "2026-03-14",
		DailySummary:   "Second attempt.",
		CoachingPoints: "n/a",
	})
	assert.ErrorIs(t, err, ErrCoachingExists)

	// same agent, another day is fine
	_, err = s.CreateCoaching(ctx, NewCoaching{
		AgentID:        agent.ID,
		Date:           "2026-03-15",
		DailySummary:   "No completed calls for this day.",
		CoachingPoints: "No coaching available without call data.",
	})
	require.NoError(t, err)

	got, err := s.GetCoaching(ctx, agent.ID, "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, "Strong day.", got.DailySummary)

	history, err := s.ListCoachingByAgent(ctx, agent.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "2026-03-15", history[0].Date)
}

func TestAggregates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	alice, err := s.CreateAgent(ctx, "EMP-A", "Alice", "")
	require.NoError(t, err)
	bob, err := s.CreateAgent(ctx, "EMP-B", "Bob", "")
	require.NoError(t, err)

	day := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	for i, tc := range []struct {
		agentID int64
		score   float64
	}{
		{alice.ID, 4.5},
		{alice.ID, 3.5},
		{bob.ID, 2.0},
	} {
		call := seedCall(t, s, tc.agentID, day.Add(time.Duration(i)*time.Hour))
		require.NoError(t, s.UpdateCallStatus(ctx, call.ID, types.CallCompleted))
		_, err := s.CreateAnalysis(ctx, call.ID, types.ScoreResult{
			Score: tc.score, Category: types.CategoryForScore(tc.score),
		})
		require.NoError(t, err)
	}
	// one unanalyzed pending call for alice
	seedCall(t, s, alice.ID, day.Add(5*time.Hour))

	stats, err := s.AgentStats(ctx, alice.ID, "2026-03-14", "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.CallCount)
	assert.Equal(t, 2, stats.CompletedCount)
	assert.Equal(t, 1, stats.PendingCount)
	require.NotNil(t, stats.AvgSatisfaction)
	assert.InDelta(t, 4.0, *stats.AvgSatisfaction, 1e-9)

	overview, err := s.Overview(ctx, "2026-03-14", "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, 4, overview.TotalCalls)
	assert.Equal(t, 3, overview.AnalyzedCount)

	top, err := s.TopPerformers(ctx, "2026-03-14", "2026-03-14", 3)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, alice.ID, top[0].AgentID)
	assert.Equal(t, bob.ID, top[1].AgentID)
}
