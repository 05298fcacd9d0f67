package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"call-insights-go/internal/types"
)

const callColumns = `id, agent_id, audio_path, call_date, duration_sec, caller_number, status, created_at, updated_at`

func scanCall(row interface{ Scan(...any) error }) (*types.Call, error) {
	var c types.Call
	var callDate, created, updated string
	var duration sql.NullInt64
	var caller sql.NullString
	if err := row.Scan(&c.ID, &c.AgentID, &c.AudioPath, &callDate, &duration, &caller, &c.Status, &created, &updated); err != nil {
		return nil, err
	}
	c.CallDate = parseStamp(callDate)
	if duration.Valid {
		v := int(duration.Int64)
		c.DurationSec = &v
	}
	c.CallerNumber = caller.String
	c.CreatedAt = parseStamp(created)
	c.UpdatedAt = parseStamp(updated)
	return &c, nil
}

// NewCall is the ingestion payload for CreateCall.
type NewCall struct {
	AgentID      int64
	AudioPath    string
	CallDate     time.Time
	CallerNumber string
}

// CreateCall inserts a pending call.
func (s *Store) CreateCall(ctx context.Context, nc NewCall) (*types.Call, error) {
	now := nowStamp()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO calls (agent_id, audio_path, call_date, caller_number, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nc.AgentID, nc.AudioPath, stampTime(nc.CallDate), nc.CallerNumber, types.CallPending, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert call: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetCall(ctx, id)
}

// GetCall fetches a call by identifier.
func (s *Store) GetCall(ctx context.Context, id int64) (*types.Call, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls WHERE id = ?`, id)
	call, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get call: %w", err)
	}
	return call, nil
}

// UpdateCallStatus moves a call to the given lifecycle status.
func (s *Store) UpdateCallStatus(ctx context.Context, id int64, status types.CallStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE calls SET status = ?, updated_at = ? WHERE id = ?`, status, nowStamp(), id)
	if err != nil {
		return fmt.Errorf("update call status: %w", err)
	}
	return nil
}

// SetCallDuration records the probed audio duration in seconds.
func (s *Store) SetCallDuration(ctx context.Context, id int64, seconds int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE calls SET duration_sec = ?, updated_at = ? WHERE id = ?`, seconds, nowStamp(), id)
	if err != nil {
		return fmt.Errorf("set call duration: %w", err)
	}
	return nil
}

// dayRange returns the [start, next-day) bounds for a calendar date.
func dayRange(date string) (string, string, error) {
	day, err := time.Parse(types.DateLayout, date)
	if err != nil {
		return "", "", fmt.Errorf("parse date %q: %w", date, err)
	}
	return stampTime(day), stampTime(day.AddDate(0, 0, 1)), nil
}

// ListCallsByAgentAndDate returns an agent's calls on a calendar date,
// optionally filtered by status, ordered by call date.
func (s *Store) ListCallsByAgentAndDate(ctx context.Context, agentID int64, date string, status types.CallStatus) ([]types.Call, error) {
	from, to, err := dayRange(date)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + callColumns + ` FROM calls WHERE agent_id = ? AND call_date >= ? AND call_date < ?`
	args := []any{agentID, from, to}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY call_date, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	var out []types.Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		out = append(out, *call)
	}
	return out, rows.Err()
}

// BeginPipelineRun atomically prepares a call for a (re)processing run:
// it rejects the run when any task for the call is still processing, deletes
// any prior transcript and analysis so the new run supersedes them, marks the
// call processing and inserts the transcription ledger row.
func (s *Store) BeginPipelineRun(ctx context.Context, callID int64, jobRef string) (*types.Task, error) {
	call, err := s.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var inFlight int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE call_id = ? AND status = ?`,
		callID, types.TaskProcessing,
	).Scan(&inFlight); err != nil {
		return nil, fmt.Errorf("count in-flight tasks: %w", err)
	}
	if inFlight > 0 {
		return nil, ErrPipelineInFlight
	}

	// supersede results of any earlier run
	if _, err := tx.ExecContext(ctx, `DELETE FROM transcripts WHERE call_id = ?`, callID); err != nil {
		return nil, fmt.Errorf("supersede transcript: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM analyses WHERE call_id = ?`, callID); err != nil {
		return nil, fmt.Errorf("supersede analysis: %w", err)
	}

	now := nowStamp()
	if _, err := tx.ExecContext(ctx,
		`UPDATE calls SET status = ?, updated_at = ? WHERE id = ?`,
		types.CallProcessing, now, callID,
	); err != nil {
		return nil, fmt.Errorf("mark call processing: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO tasks (call_id, agent_id, kind, status, job_ref, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		callID, call.AgentID, types.TaskTranscription, types.TaskProcessing, jobRef, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert transcription task: %w", err)
	}
	taskID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit pipeline run: %w", err)
	}
	return s.GetTask(ctx, taskID)
}
