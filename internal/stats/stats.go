// Package stats composes the read-side reports: per-call processing status,
// per-agent aggregates and the dashboard overview.
package stats

import (
	"context"
	"errors"
	"time"

	"call-insights-go/internal/ledger"
	"call-insights-go/internal/store"
	"call-insights-go/internal/types"
)

const defaultRangeDays = 7

type Service struct {
	store  *store.Store
	ledger *ledger.Ledger
}

func New(s *store.Store, l *ledger.Ledger) *Service {
	return &Service{store: s, ledger: l}
}

// TranscriptSummary is the trimmed transcript view used in status reports.
type TranscriptSummary struct {
	ID             int64   `json:"id"`
	UtteranceCount int     `json:"utterance_count"`
	SilenceRatio   float64 `json:"silence_ratio"`
	Excerpt        string  `json:"excerpt"`
}

// CallStatusReport is the full processing picture of one call.
type CallStatusReport struct {
	Call       *types.Call        `json:"call"`
	Tasks      []types.Task       `json:"tasks"`
	Transcript *TranscriptSummary `json:"transcript,omitempty"`
	Analysis   *types.Analysis    `json:"analysis,omitempty"`
}

// CallStatus reports a call's lifecycle state, its ledger rows and whatever
// artifacts the pipeline has produced so far.
func (s *Service) CallStatus(ctx context.Context, callID int64) (*CallStatusReport, error) {
	call, err := s.store.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.ledger.TasksForCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	report := &CallStatusReport{Call: call, Tasks: tasks}

	transcript, err := s.store.GetTranscriptByCall(ctx, callID)
	switch {
	case err == nil:
		report.Transcript = &TranscriptSummary{
			ID:             transcript.ID,
			UtteranceCount: len(transcript.Utterances),
			SilenceRatio:   transcript.SilenceRatio,
			Excerpt:        excerpt(transcript.FullText),
		}
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	analysis, err := s.store.GetAnalysisByCall(ctx, callID)
	switch {
	case err == nil:
		report.Analysis = analysis
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}
	return report, nil
}

// AgentStatsReport is the per-agent aggregate over a date range.
type AgentStatsReport struct {
	Agent     *types.Agent        `json:"agent"`
	StartDate string              `json:"start_date"`
	EndDate   string              `json:"end_date"`
	Stats     *store.AgentStatRow `json:"stats"`
}

// AgentStats aggregates an agent's calls over [startDate, endDate]; an empty
// range defaults to the trailing week.
func (s *Service) AgentStats(ctx context.Context, agentID int64, startDate, endDate string) (*AgentStatsReport, error) {
	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	startDate, endDate = defaultRange(startDate, endDate)
	row, err := s.store.AgentStats(ctx, agentID, startDate, endDate)
	if err != nil {
		return nil, err
	}
	return &AgentStatsReport{Agent: agent, StartDate: startDate, EndDate: endDate, Stats: row}, nil
}

// OverviewReport is the dashboard aggregate over a date range.
type OverviewReport struct {
	StartDate     string                   `json:"start_date"`
	EndDate       string                   `json:"end_date"`
	Totals        *store.OverviewRow       `json:"totals"`
	TopPerformers []store.AgentPerformance `json:"top_performers"`
}

// DashboardOverview aggregates all calls over [startDate, endDate] and ranks
// the top three agents by average satisfaction.
func (s *Service) DashboardOverview(ctx context.Context, startDate, endDate string) (*OverviewReport, error) {
	startDate, endDate = defaultRange(startDate, endDate)
	totals, err := s.store.Overview(ctx, startDate, endDate)
	if err != nil {
		return nil, err
	}
	top, err := s.store.TopPerformers(ctx, startDate, endDate, 3)
	if err != nil {
		return nil, err
	}
	return &OverviewReport{StartDate: startDate, EndDate: endDate, Totals: totals, TopPerformers: top}, nil
}

func defaultRange(startDate, endDate string) (string, string) {
	if endDate == "" {
		endDate = time.Now().UTC().Format(types.DateLayout)
	}
	if startDate == "" {
		end, err := time.Parse(types.DateLayout, endDate)
		if err != nil {
			end = time.Now().UTC()
		}
		startDate = end.AddDate(0, 0, -(defaultRangeDays - 1)).Format(types.DateLayout)
	}
	return startDate, endDate
}

func excerpt(text string) string {
	const max = 200
	if len(text) <= max {
		return text
	}
	return text[:max] + "…"
}
