package ledger

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

func setup(t *testing.T) (*Ledger, *store.Store, *types.Call) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	agent, err := s.CreateAgent(ctx, "EMP-001", "Dana Reyes", "")
	require.NoError(t, err)
	call, err := s.CreateCall(ctx, store.NewCall{
		AgentID:   agent.ID,
		AudioPath: "/audio/sample.wav",
		CallDate:  time.Now().UTC(),
	})
	require.NoError(t, err)
	return New(s), s, call
}

func TestTerminalStatesAreFinal(t *testing.T) {
	l, s, call := setup(t)
	ctx := context.Background()

	task, err := l.CreateForCall(ctx, call.ID, call.AgentID, types.TaskTranscription, types.TaskProcessing)
	require.NoError(t, err)

	require.NoError(t, l.Complete(ctx, task.ID))

	err = l.Fail(ctx, task.ID, "too late")
	assert.ErrorIs(t, err, ErrTerminal)
	err = l.Transition(ctx, task.ID, types.TaskProcessing, "")
	assert.ErrorIs(t, err, ErrTerminal)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskCompleted, got.Status)
	assert.Empty(t, got.ErrorMessage)
}

func TestFailClearsOnlyOnNonFailure(t *testing.T) {
	l, s, call := setup(t)
	ctx := context.Background()

	task, err := l.CreateForCall(ctx, call.ID, call.AgentID, types.TaskAnalysis, types.TaskPending)
	require.NoError(t, err)

	require.NoError(t, l.Fail(ctx, task.ID, "decoder crashed"))
	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "decoder crashed", got.ErrorMessage)
}

func TestFailProcessingSweep(t *testing.T) {
	l, s, call := setup(t)
	ctx := context.Background()

	done, err := l.CreateForCall(ctx, call.ID, call.AgentID, types.TaskTranscription, types.TaskProcessing)
	require.NoError(t, err)
	require.NoError(t, l.Complete(ctx, done.ID))

	inFlight, err := l.CreateForCall(ctx, call.ID, call.AgentID, types.TaskAnalysis, types.TaskProcessing)
	require.NoError(t, err)

	require.NoError(t, l.FailProcessing(ctx, call.ID, "stage aborted"))

	swept, err := s.GetTask(ctx, inFlight.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskFailed, swept.Status)
	assert.Equal(t, "stage aborted", swept.ErrorMessage)

	// the completed row is untouched
	kept, err := s.GetTask(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskCompleted, kept.Status)
}

func TestAgentScopedTasks(t *testing.T) {
	l, _, call := setup(t)
	ctx := context.Background()

	task, err := l.CreateForAgent(ctx, call.AgentID, types.TaskCoaching, types.TaskProcessing, "job-9")
	require.NoError(t, err)
	assert.Nil(t, task.CallID)
	assert.Equal(t, "job-9", task.JobRef)

	tasks, err := l.TasksForAgent(ctx, call.AgentID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, types.TaskCoaching, tasks[0].Kind)
}
