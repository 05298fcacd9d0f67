package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"call-insights-go/internal/types"
)

const taskColumns = `id, call_id, agent_id, kind, status, job_ref, error_message, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (*types.Task, error) {
	var t types.Task
	var callID, agentID sql.NullInt64
	var created, updated string
	if err := row.Scan(&t.ID, &callID, &agentID, &t.Kind, &t.Status, &t.JobRef, &t.ErrorMessage, &created, &updated); err != nil {
		return nil, err
	}
	if callID.Valid {
		t.CallID = &callID.Int64
	}
	if agentID.Valid {
		t.AgentID = &agentID.Int64
	}
	t.CreatedAt = parseStamp(created)
	t.UpdatedAt = parseStamp(updated)
	return &t, nil
}

// CreateTask inserts a ledger row. callID and agentID may each be nil
// depending on the kind.
func (s *Store) CreateTask(ctx context.Context, callID, agentID *int64, kind types.TaskKind, status types.TaskStatus, jobRef string) (*types.Task, error) {
	now := nowStamp()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (call_id, agent_id, kind, status, job_ref, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullableInt64(callID), nullableInt64(agentID), kind, status, jobRef, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetTask(ctx, id)
}

// GetTask fetches a ledger row by identifier.
func (s *Store) GetTask(ctx context.Context, id int64) (*types.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// UpdateTaskStatus sets status and error text on a ledger row.
func (s *Store) UpdateTaskStatus(ctx context.Context, id int64, status types.TaskStatus, errorMessage string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		status, errorMessage, nowStamp(), id)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return nil
}

// TaskFilter narrows ledger queries. Zero fields are ignored.
type TaskFilter struct {
	CallID  *int64
	AgentID *int64
	Kind    types.TaskKind
	Status  types.TaskStatus
}

// ListTasks returns ledger rows matching the filter, newest first.
func (s *Store) ListTasks(ctx context.Context, f TaskFilter) ([]types.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	var args []any
	if f.CallID != nil {
		query += ` AND call_id = ?`
		args = append(args, *f.CallID)
	}
	if f.AgentID != nil {
		query += ` AND agent_id = ?`
		args = append(args, *f.AgentID)
	}
	if f.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, f.Kind)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []types.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, *task)
	}
	return out, rows.Err()
}

// HasProcessingTask reports whether any task for the call is still in flight.
func (s *Store) HasProcessingTask(ctx context.Context, callID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE call_id = ? AND status = ?`,
		callID, types.TaskProcessing,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count processing tasks: %w", err)
	}
	return n > 0, nil
}
