package store

import (
	"context"
	"database/sql"
	"fmt"
)

// AgentStatRow aggregates an agent's calls over a date range.
type AgentStatRow struct {
	CallCount       int      `json:"call_count"`
	CompletedCount  int      `json:"completed_count"`
	PendingCount    int      `json:"pending_count"`
	ProcessingCount int      `json:"processing_count"`
	AvgSatisfaction *float64 `json:"avg_satisfaction,omitempty"`
	AvgDurationSec  *float64 `json:"avg_duration_sec,omitempty"`
}

// AgentStats aggregates an agent's calls between two calendar dates
// (inclusive). Satisfaction averages only calls that have an analysis.
func (s *Store) AgentStats(ctx context.Context, agentID int64, startDate, endDate string) (*AgentStatRow, error) {
	from, _, err := dayRange(startDate)
	if err != nil {
		return nil, err
	}
	_, to, err := dayRange(endDate)
	if err != nil {
		return nil, err
	}

	var row AgentStatRow
	var avgSat, avgDur sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
            COUNT(CASE WHEN c.status = 'completed' THEN 1 END),
            COUNT(CASE WHEN c.status = 'pending' THEN 1 END),
            COUNT(CASE WHEN c.status = 'processing' THEN 1 END),
            AVG(a.satisfaction_score),
            AVG(c.duration_sec)
         FROM calls c
         LEFT JOIN analyses a ON a.call_id = c.id
         WHERE c.agent_id = ? AND c.call_date >= ? AND c.call_date < ?`,
		agentID, from, to,
	).Scan(&row.CallCount, &row.CompletedCount, &row.PendingCount, &row.ProcessingCount, &avgSat, &avgDur)
	if err != nil {
		return nil, fmt.Errorf("agent stats: %w", err)
	}
	if avgSat.Valid {
		row.AvgSatisfaction = &avgSat.Float64
	}
	if avgDur.Valid {
		row.AvgDurationSec = &avgDur.Float64
	}
	return &row, nil
}

// AgentPerformance is one agent's aggregate for the dashboard ranking.
type AgentPerformance struct {
	AgentID         int64    `json:"agent_id"`
	EmployeeID      string   `json:"employee_id"`
	Name            string   `json:"name"`
	CallCount       int      `json:"call_count"`
	AvgSatisfaction *float64 `json:"avg_satisfaction,omitempty"`
}

// OverviewRow aggregates all calls over a date range.
type OverviewRow struct {
	TotalCalls      int      `json:"total_calls"`
	AnalyzedCount   int      `json:"analyzed_count"`
	AvgSatisfaction *float64 `json:"avg_satisfaction,omitempty"`
}

// Overview returns the dashboard aggregate between two calendar dates
// (inclusive).
func (s *Store) Overview(ctx context.Context, startDate, endDate string) (*OverviewRow, error) {
	from, _, err := dayRange(startDate)
	if err != nil {
		return nil, err
	}
	_, to, err := dayRange(endDate)
	if err != nil {
		return nil, err
	}

	var row OverviewRow
	var avgSat sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(a.id), AVG(a.satisfaction_score)
         FROM calls c
         LEFT JOIN analyses a ON a.call_id = c.id
         WHERE c.call_date >= ? AND c.call_date < ?`,
		from, to,
	).Scan(&row.TotalCalls, &row.AnalyzedCount, &avgSat)
	if err != nil {
		return nil, fmt.Errorf("overview: %w", err)
	}
	if avgSat.Valid {
		row.AvgSatisfaction = &avgSat.Float64
	}
	return &row, nil
}

// TopPerformers ranks agents by average satisfaction over a date range.
func (s *Store) TopPerformers(ctx context.Context, startDate, endDate string, limit int) ([]AgentPerformance, error) {
	from, _, err := dayRange(startDate)
	if err != nil {
		return nil, err
	}
	_, to, err := dayRange(endDate)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 3
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT ag.id, ag.employee_id, ag.name, COUNT(c.id), AVG(a.satisfaction_score)
         FROM agents ag
         JOIN calls c ON c.agent_id = ag.id AND c.call_date >= ? AND c.call_date < ?
         LEFT JOIN analyses a ON a.call_id = c.id
         GROUP BY ag.id, ag.employee_id, ag.name
         ORDER BY AVG(a.satisfaction_score) DESC
         LIMIT ?`,
		from, to, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("top performers: %w", err)
	}
	defer rows.Close()

	var out []AgentPerformance
	for rows.Next() {
		var p AgentPerformance
		var avgSat sql.NullFloat64
		if err := rows.Scan(&p.AgentID, &p.EmployeeID, &p.Name, &p.CallCount, &avgSat); err != nil {
			return nil, fmt.Errorf("scan performer: %w", err)
		}
		if avgSat.Valid {
			p.AvgSatisfaction = &avgSat.Float64
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
