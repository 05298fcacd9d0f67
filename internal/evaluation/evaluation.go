// Package evaluation holds the LLM-backed adapters: per-call evaluation and
// the daily coaching narrator. Both are fallback-guaranteed: any model
// failure (missing credentials, API error, unparseable reply) degrades to a
// deterministic narrative and never propagates as an error.
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"call-insights-go/internal/logger"
	"call-insights-go/internal/types"
)

const defaultModel = "claude-sonnet-4-5"

// Service is the LLM adapter. USE_MOCK_LLM=true switches to deterministic
// offline replies; an unset ANTHROPIC_API_KEY degrades to fallbacks.
type Service struct {
	llm  completer
	mock bool
}

func New() *Service {
	s := &Service{mock: os.Getenv("USE_MOCK_LLM") == "true"}
	if s.mock {
		return s
	}
	key := os.Getenv("ANTHROPIC_API_KEY")
	if key == "" {
		logger.New().WithField("module", "evaluation").Warn("ANTHROPIC_API_KEY not set, LLM stages will use fallback output")
		return s
	}
	model := os.Getenv("LLM_MODEL")
	if model == "" {
		model = defaultModel
	}
	s.llm = newSDKCompleter(key, model)
	return s
}

// NewWithCompleter wires a custom model client, used by tests.
func NewWithCompleter(c completer) *Service {
	return &Service{llm: c}
}

type evaluationReply struct {
	Evaluation string            `json:"evaluation"`
	Score      float64           `json:"score"`
	Topics     []string          `json:"topics"`
	Emotions   map[string]string `json:"emotions"`
	Summary    string            `json:"summary"`
}

type coachingReply struct {
	Summary        string `json:"summary"`
	CoachingPoints string `json:"coaching_points"`
	Strengths      string `json:"strengths"`
	AreasToImprove string `json:"areas_to_improve"`
}

// Evaluate produces the qualitative review of one call. Always returns a
// usable Evaluation.
func (s *Service) Evaluate(ctx context.Context, agentName, transcript string, utterances []types.Utterance) types.Evaluation {
	log := logger.New().WithField("module", "evaluation")
	if s.mock {
		return mockEvaluation(agentName)
	}
	if s.llm == nil {
		return fallbackEvaluation(agentName)
	}

	out, err := s.complete(ctx, systemEvaluator, buildEvaluationPrompt(agentName, transcript, utterances))
	if err != nil {
		log.WithError(err).Warn("evaluation request failed, using fallback")
		return fallbackEvaluation(agentName)
	}
	raw := extractJSON(out)
	if raw == "" {
		log.Warn("no JSON object in evaluation reply, using fallback")
		return fallbackEvaluation(agentName)
	}
	var reply evaluationReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		log.WithError(err).Warn("cannot decode evaluation reply, using fallback")
		return fallbackEvaluation(agentName)
	}

	ev := types.Evaluation{
		Text:     reply.Evaluation,
		Score:    reply.Score,
		Topics:   reply.Topics,
		Emotions: reply.Emotions,
		Summary:  reply.Summary,
	}
	if ev.Text == "" {
		return fallbackEvaluation(agentName)
	}
	if ev.Score < 1 || ev.Score > 5 {
		ev.Score = types.NeutralScore
	}
	if len(ev.Topics) == 0 {
		ev.Topics = []string{"general"}
	}
	if len(ev.Emotions) == 0 {
		ev.Emotions = map[string]string{"agent": "neutral", "customer": "neutral"}
	}
	if ev.Summary == "" {
		ev.Summary = "Call summary unavailable."
	}
	return ev
}

// DailyCoaching produces the narrative for one agent-day. Always returns a
// usable CoachingContent.
func (s *Service) DailyCoaching(ctx context.Context, agentName, date string, summaries []string, avgSatisfaction float64) types.CoachingContent {
	log := logger.New().WithField("module", "evaluation")
	if s.mock {
		return mockCoaching(agentName, len(summaries), avgSatisfaction)
	}
	if s.llm == nil {
		return fallbackCoaching(agentName, len(summaries), avgSatisfaction)
	}

	out, err := s.complete(ctx, systemCoach, buildCoachingPrompt(agentName, date, summaries, avgSatisfaction))
	if err != nil {
		log.WithError(err).Warn("coaching request failed, using fallback")
		return fallbackCoaching(agentName, len(summaries), avgSatisfaction)
	}
	raw := extractJSON(out)
	if raw == "" {
		log.Warn("no JSON object in coaching reply, using fallback")
		return fallbackCoaching(agentName, len(summaries), avgSatisfaction)
	}
	var reply coachingReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		log.WithError(err).Warn("cannot decode coaching reply, using fallback")
		return fallbackCoaching(agentName, len(summaries), avgSatisfaction)
	}

	content := types.CoachingContent{
		Summary:        reply.Summary,
		CoachingPoints: reply.CoachingPoints,
		Strengths:      reply.Strengths,
		AreasToImprove: reply.AreasToImprove,
	}
	if content.Summary == "" || content.CoachingPoints == "" {
		return fallbackCoaching(agentName, len(summaries), avgSatisfaction)
	}
	return content
}

func (s *Service) complete(ctx context.Context, system, prompt string) (string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 45 * time.Second
	var out string
	op := func() error {
		reply, err := s.llm.Complete(ctx, system, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		out = reply
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return "", err
	}
	return out, nil
}

func fallbackEvaluation(agentName string) types.Evaluation {
	return types.Evaluation{
		Text:     fmt.Sprintf("No automated evaluation is available for this call handled by %s.", agentName),
		Score:    types.NeutralScore,
		Topics:   []string{"general"},
		Emotions: map[string]string{"agent": "neutral", "customer": "neutral"},
		Summary:  "Call summary unavailable.",
	}
}

func fallbackCoaching(agentName string, callCount int, avgSatisfaction float64) types.CoachingContent {
	return types.CoachingContent{
		Summary:        fmt.Sprintf("%s handled %d calls with an average satisfaction of %.1f out of 5.", agentName, callCount, avgSatisfaction),
		CoachingPoints: "Automated coaching notes could not be generated for this day. Review the individual call evaluations directly.",
		Strengths:      "Not available.",
		AreasToImprove: "Not available.",
	}
}

func mockEvaluation(agentName string) types.Evaluation {
	return types.Evaluation{
		Text:     fmt.Sprintf("MOCK EVALUATION: %s acknowledged the issue quickly and resolved it within the call.", agentName),
		Score:    4.0,
		Topics:   []string{"billing", "refund"},
		Emotions: map[string]string{"agent": "calm", "customer": "relieved"},
		Summary:  "Customer reported a duplicate charge and the agent issued a refund.",
	}
}

func mockCoaching(agentName string, callCount int, avgSatisfaction float64) types.CoachingContent {
	return types.CoachingContent{
		Summary:        fmt.Sprintf("MOCK COACHING: %s handled %d calls with an average satisfaction of %.1f.", agentName, callCount, avgSatisfaction),
		CoachingPoints: "Keep confirming the resolution before closing the call.",
		Strengths:      "Clear explanations and a calm tone throughout the day.",
		AreasToImprove: "Shorten hold times during account lookups.",
	}
}
