package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"call-insights-go/internal/types"
)

// CreateTranscript persists the transcription stage output for a call.
// Transcripts are 1:1 with calls and immutable once written.
func (s *Store) CreateTranscript(ctx context.Context, callID int64, result types.TranscriptResult) (*types.Transcript, error) {
	utterances, err := json.Marshal(result.Utterances)
	if err != nil {
		return nil, fmt.Errorf("marshal utterances: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts (call_id, full_text, utterances_json, silence_ratio, created_at)
         VALUES (?, ?, ?, ?, ?)`,
		callID, result.FullText, string(utterances), result.SilenceRatio, nowStamp(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert transcript: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.getTranscript(ctx, `id = ?`, id)
}

// GetTranscriptByCall fetches the transcript for a call, or ErrNotFound.
func (s *Store) GetTranscriptByCall(ctx context.Context, callID int64) (*types.Transcript, error) {
	return s.getTranscript(ctx, `call_id = ?`, callID)
}

func (s *Store) getTranscript(ctx context.Context, where string, arg any) (*types.Transcript, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, call_id, full_text, utterances_json, silence_ratio, created_at
         FROM transcripts WHERE `+where, arg)

	var t types.Transcript
	var utterances, created string
	err := row.Scan(&t.ID, &t.CallID, &t.FullText, &utterances, &t.SilenceRatio, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transcript: %w", err)
	}
	if err := json.Unmarshal([]byte(utterances), &t.Utterances); err != nil {
		return nil, fmt.Errorf("unmarshal utterances: %w", err)
	}
	t.CreatedAt = parseStamp(created)
	return &t, nil
}

// CreateAnalysis persists the scoring stage output. Narrative fields stay
// empty until the evaluation stage fills them in.
func (s *Store) CreateAnalysis(ctx context.Context, callID int64, score types.ScoreResult) (*types.Analysis, error) {
	now := nowStamp()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO analyses (call_id, satisfaction_score, satisfaction_category, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)`,
		callID, score.Score, score.Category, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert analysis: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.getAnalysis(ctx, `id = ?`, id)
}

// UpdateAnalysisNarrative fills the evaluation-stage fields of an analysis.
func (s *Store) UpdateAnalysisNarrative(ctx context.Context, callID int64, ev types.Evaluation) error {
	topics, err := json.Marshal(ev.Topics)
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}
	emotions, err := json.Marshal(ev.Emotions)
	if err != nil {
		return fmt.Errorf("marshal emotions: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE analyses SET evaluation = ?, evaluation_score = ?, key_topics_json = ?,
            emotions_json = ?, summary = ?, updated_at = ? WHERE call_id = ?`,
		ev.Text, ev.Score, string(topics), string(emotions), ev.Summary, nowStamp(), callID,
	)
	if err != nil {
		return fmt.Errorf("update analysis narrative: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetAnalysisByCall fetches the analysis for a call, or ErrNotFound.
func (s *Store) GetAnalysisByCall(ctx context.Context, callID int64) (*types.Analysis, error) {
	return s.getAnalysis(ctx, `call_id = ?`, callID)
}

func (s *Store) getAnalysis(ctx context.Context, where string, arg any) (*types.Analysis, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, call_id, satisfaction_score, satisfaction_category, evaluation,
            evaluation_score, key_topics_json, emotions_json, summary, created_at, updated_at
         FROM analyses WHERE `+where, arg)

	var a types.Analysis
	var topics, emotions, created, updated string
	err := row.Scan(&a.ID, &a.CallID, &a.SatisfactionScore, &a.SatisfactionCategory,
		&a.Evaluation, &a.EvaluationScore, &topics, &emotions, &a.Summary, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	if err := json.Unmarshal([]byte(topics), &a.KeyTopics); err != nil {
		return nil, fmt.Errorf("unmarshal topics: %w", err)
	}
	if err := json.Unmarshal([]byte(emotions), &a.Emotions); err != nil {
		return nil, fmt.Errorf("unmarshal emotions: %w", err)
	}
	a.CreatedAt = parseStamp(created)
	a.UpdatedAt = parseStamp(updated)
	return &a, nil
}
