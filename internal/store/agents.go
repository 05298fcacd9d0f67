package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"call-insights-go/internal/types"
)

const agentColumns = `id, employee_id, name, department, created_at`

func scanAgent(row interface{ Scan(...any) error }) (*types.Agent, error) {
	var a types.Agent
	var created string
	if err := row.Scan(&a.ID, &a.EmployeeID, &a.Name, &a.Department, &created); err != nil {
		return nil, err
	}
	a.CreatedAt = parseStamp(created)
	return &a, nil
}

// CreateAgent inserts a new agent identified by a unique employee id.
func (s *Store) CreateAgent(ctx context.Context, employeeID, name, department string) (*types.Agent, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (employee_id, name, department, created_at) VALUES (?, ?, ?, ?)`,
		employeeID, name, department, nowStamp(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert agent: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetAgent(ctx, id)
}

// GetAgent fetches an agent by identifier.
func (s *Store) GetAgent(ctx context.Context, id int64) (*types.Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
	agent, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return agent, nil
}

// GetAgentByEmployeeID fetches an agent by its external employee id.
func (s *Store) GetAgentByEmployeeID(ctx context.Context, employeeID string) (*types.Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE employee_id = ?`, employeeID)
	agent, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent by employee id: %w", err)
	}
	return agent, nil
}

// GetOrCreateAgent resolves an agent by employee id, creating it if missing.
func (s *Store) GetOrCreateAgent(ctx context.Context, employeeID, name, department string) (*types.Agent, error) {
	agent, err := s.GetAgentByEmployeeID(ctx, employeeID)
	if err == nil {
		return agent, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	agent, err = s.CreateAgent(ctx, employeeID, name, department)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		// lost a create race, the row exists now
		return s.GetAgentByEmployeeID(ctx, employeeID)
	}
	return agent, err
}

// ListAgents returns all agents ordered by id.
func (s *Store) ListAgents(ctx context.Context) ([]types.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []types.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		out = append(out, *agent)
	}
	return out, rows.Err()
}
