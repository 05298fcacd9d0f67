package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"call-insights-go/internal/types"
)

const coachingColumns = `id, agent_id, date, daily_summary, coaching_points, strengths, areas_to_improve, call_count, avg_satisfaction, created_at`

func scanCoaching(row interface{ Scan(...any) error }) (*types.Coaching, error) {
	var c types.Coaching
	var avg sql.NullFloat64
	var created string
	if err := row.Scan(&c.ID, &c.AgentID, &c.Date, &c.DailySummary, &c.CoachingPoints,
		&c.Strengths, &c.AreasToImprove, &c.CallCount, &avg, &created); err != nil {
		return nil, err
	}
	if avg.Valid {
		c.AvgSatisfaction = &avg.Float64
	}
	c.CreatedAt = parseStamp(created)
	return &c, nil
}

// NewCoaching is the creation payload for CreateCoaching.
type NewCoaching struct {
	AgentID         int64
	Date            string
	DailySummary    string
	CoachingPoints  string
	Strengths       string
	AreasToImprove  string
	CallCount       int
	AvgSatisfaction *float64
}

// CreateCoaching inserts the coaching record for (agent, date). A second
// attempt for the same pair returns ErrCoachingExists; existing rows are
// never overwritten.
func (s *Store) CreateCoaching(ctx context.Context, nc NewCoaching) (*types.Coaching, error) {
	var avg any
	if nc.AvgSatisfaction != nil {
		avg = *nc.AvgSatisfaction
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO coaching (agent_id, date, daily_summary, coaching_points, strengths,
            areas_to_improve, call_count, avg_satisfaction, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nc.AgentID, nc.Date, nc.DailySummary, nc.CoachingPoints, nc.Strengths,
		nc.AreasToImprove, nc.CallCount, avg, nowStamp(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, ErrCoachingExists
		}
		return nil, fmt.Errorf("insert coaching: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+coachingColumns+` FROM coaching WHERE id = ?`, id)
	coaching, err := scanCoaching(row)
	if err != nil {
		return nil, fmt.Errorf("get coaching: %w", err)
	}
	return coaching, nil
}

// GetCoaching fetches the coaching record for (agent, date), or ErrNotFound.
func (s *Store) GetCoaching(ctx context.Context, agentID int64, date string) (*types.Coaching, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+coachingColumns+` FROM coaching WHERE agent_id = ? AND date = ?`, agentID, date)
	coaching, err := scanCoaching(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get coaching: %w", err)
	}
	return coaching, nil
}

// ListCoachingByAgent returns an agent's coaching history, newest date first.
func (s *Store) ListCoachingByAgent(ctx context.Context, agentID int64) ([]types.Coaching, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+coachingColumns+` FROM coaching WHERE agent_id = ? ORDER BY date DESC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("list coaching: %w", err)
	}
	defer rows.Close()

	var out []types.Coaching
	for rows.Next() {
		coaching, err := scanCoaching(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coaching: %w", err)
		}
		out = append(out, *coaching)
	}
	return out, rows.Err()
}
