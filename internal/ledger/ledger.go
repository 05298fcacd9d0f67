// Package ledger is the bookkeeping layer for pipeline and coaching tasks.
// It owns lifecycle transitions and nothing else.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"call-insights-go/internal/store"
	"call-insights-go/internal/types"
)

// ErrTerminal is returned when a transition is attempted on a task that has
// already completed or failed.
var ErrTerminal = errors.New("ledger: task already in a terminal state")

type Ledger struct {
	store *store.Store
}

func New(s *store.Store) *Ledger {
	return &Ledger{store: s}
}

// CreateForCall opens a ledger row for one pipeline stage of a call.
func (l *Ledger) CreateForCall(ctx context.Context, callID, agentID int64, kind types.TaskKind, status types.TaskStatus) (*types.Task, error) {
	return l.store.CreateTask(ctx, &callID, &agentID, kind, status, "")
}

// CreateForAgent opens a ledger row for an agent-scoped run (coaching).
func (l *Ledger) CreateForAgent(ctx context.Context, agentID int64, kind types.TaskKind, status types.TaskStatus, jobRef string) (*types.Task, error) {
	return l.store.CreateTask(ctx, nil, &agentID, kind, status, jobRef)
}

// Transition moves a task to a new status. Terminal states are final: a
// completed or failed task can never be re-transitioned.
func (l *Ledger) Transition(ctx context.Context, taskID int64, status types.TaskStatus, errorMessage string) error {
	task, err := l.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status.Terminal() {
		return fmt.Errorf("%w: task %d is %s", ErrTerminal, taskID, task.Status)
	}
	if status != types.TaskFailed {
		errorMessage = ""
	}
	return l.store.UpdateTaskStatus(ctx, taskID, status, errorMessage)
}

// Complete marks a task completed.
func (l *Ledger) Complete(ctx context.Context, taskID int64) error {
	return l.Transition(ctx, taskID, types.TaskCompleted, "")
}

// Fail marks a task failed with the captured error text.
func (l *Ledger) Fail(ctx context.Context, taskID int64, errorMessage string) error {
	return l.Transition(ctx, taskID, types.TaskFailed, errorMessage)
}

// TasksForCall lists all ledger rows for a call, newest first.
func (l *Ledger) TasksForCall(ctx context.Context, callID int64) ([]types.Task, error) {
	return l.store.ListTasks(ctx, store.TaskFilter{CallID: &callID})
}

// TasksForAgent lists all ledger rows for an agent, newest first.
func (l *Ledger) TasksForAgent(ctx context.Context, agentID int64) ([]types.Task, error) {
	return l.store.ListTasks(ctx, store.TaskFilter{AgentID: &agentID})
}

// Find lists ledger rows matching kind and status.
func (l *Ledger) Find(ctx context.Context, kind types.TaskKind, status types.TaskStatus) ([]types.Task, error) {
	return l.store.ListTasks(ctx, store.TaskFilter{Kind: kind, Status: status})
}

// FailProcessing sweeps every in-flight task for a call into failed with the
// captured error text. Used by the executor when a stage aborts the run.
func (l *Ledger) FailProcessing(ctx context.Context, callID int64, errorMessage string) error {
	tasks, err := l.store.ListTasks(ctx, store.TaskFilter{CallID: &callID, Status: types.TaskProcessing})
	if err != nil {
		return err
	}
	for _, task := range tasks {
		if err := l.store.UpdateTaskStatus(ctx, task.ID, types.TaskFailed, errorMessage); err != nil {
			return err
		}
	}
	return nil
}
