// Package coaching aggregates one agent-day of completed calls into a single
// coaching record. At most one record exists per (agent, date); a day with no
// completed calls still produces a record so the run counts as a success.
package coaching

import (
	"context"
	"fmt"
	"time"

	"call-insights-go/internal/logger"
	"call-insights-go/internal/store"
	"call-insights-go/internal/types"
)

// noDataSummary is stored verbatim for a day without completed calls.
const noDataSummary = "No completed calls for this day."

// Narrator produces the coaching narrative. Fallback-guaranteed.
type Narrator interface {
	DailyCoaching(ctx context.Context, agentName, date string, summaries []string, avgSatisfaction float64) types.CoachingContent
}

type Aggregator struct {
	store    *store.Store
	narrator Narrator
}

func New(s *store.Store, n Narrator) *Aggregator {
	return &Aggregator{store: s, narrator: n}
}

// GenerateDaily builds and persists the coaching record for an agent and a
// calendar date (today when date is empty). Returns ErrCoachingExists from
// the store when the record already exists.
func (a *Aggregator) GenerateDaily(ctx context.Context, agentID int64, date string) (*types.Coaching, error) {
	if date == "" {
		date = time.Now().UTC().Format(types.DateLayout)
	} else if _, err := time.Parse(types.DateLayout, date); err != nil {
		return nil, fmt.Errorf("parse coaching date %q: %w", date, err)
	}

	agent, err := a.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	log := logger.New().WithAgent(agentID).WithField("date", date)

	calls, err := a.store.ListCallsByAgentAndDate(ctx, agentID, date, types.CallCompleted)
	if err != nil {
		return nil, err
	}
	if len(calls) == 0 {
		log.Info("no completed calls, storing no-data coaching record")
		return a.store.CreateCoaching(ctx, store.NewCoaching{
			AgentID:        agentID,
			Date:           date,
			DailySummary:   noDataSummary,
			CoachingPoints: "No coaching available without call data.",
		})
	}

	// Collect per-call summaries in call order. Calls whose analysis never
	// got a narrative still count toward the day but contribute no summary
	// and no score.
	var (
		summaries []string
		scoreSum  float64
		scored    int
	)
	for _, call := range calls {
		analysis, err := a.store.GetAnalysisByCall(ctx, call.ID)
		if err != nil {
			continue
		}
		scoreSum += analysis.SatisfactionScore
		scored++
		if analysis.Summary != "" {
			summaries = append(summaries, analysis.Summary)
		}
	}

	avg := types.NeutralScore
	if scored > 0 {
		avg = scoreSum / float64(scored)
	}

	log.WithField("calls", len(calls)).WithField("analyzed", scored).Info("generating daily coaching")
	content := a.narrator.DailyCoaching(ctx, agent.Name, date, summaries, avg)
	return a.store.CreateCoaching(ctx, store.NewCoaching{
		AgentID:         agentID,
		Date:            date,
		DailySummary:    content.Summary,
		CoachingPoints:  content.CoachingPoints,
		Strengths:       content.Strengths,
		AreasToImprove:  content.AreasToImprove,
		CallCount:       len(calls),
		AvgSatisfaction: &avg,
	})
}
