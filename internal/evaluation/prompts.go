package evaluation

import (
	"fmt"
	"strings"

	"call-insights-go/internal/types"
)

const systemEvaluator = `You are a quality assurance reviewer for a call center. You evaluate agent performance from call transcripts and respond with a single JSON object, nothing else.`

const systemCoach = `You are a call center team coach. You write short, actionable daily coaching notes for agents and respond with a single JSON object, nothing else.`

func buildEvaluationPrompt(agentName, transcript string, utterances []types.Utterance) string {
	var sb strings.Builder
	sb.WriteString("Evaluate the following call handled by agent ")
	sb.WriteString(agentName)
	sb.WriteString(".\n\nTranscript:\n")
	sb.WriteString(transcript)
	if conv := formatConversation(utterances); conv != "" {
		sb.WriteString("\n\nSpeaker turns:\n")
		sb.WriteString(conv)
	}
	sb.WriteString(`

Respond with JSON only:
{
  "evaluation": "two or three sentences on how the agent handled the call",
  "score": <1-5 number>,
  "topics": ["main topics discussed"],
  "emotions": {"agent": "<emotion>", "customer": "<emotion>"},
  "summary": "one sentence summary of the call"
}`)
	return sb.String()
}

func buildCoachingPrompt(agentName, date string, summaries []string, avgSatisfaction float64) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write daily coaching notes for agent %s covering %s.\n", agentName, date)
	fmt.Fprintf(&sb, "The agent handled %d calls with an average satisfaction of %.1f out of 5.\n\nCall summaries in order:\n", len(summaries), avgSatisfaction)
	for i, s := range summaries {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, s)
	}
	sb.WriteString(`
Respond with JSON only:
{
  "summary": "two or three sentences summarizing the day",
  "coaching_points": "concrete advice for tomorrow",
  "strengths": "what the agent did well",
  "areas_to_improve": "what to work on"
}`)
	return sb.String()
}

func formatConversation(utterances []types.Utterance) string {
	var sb strings.Builder
	for _, u := range utterances {
		fmt.Fprintf(&sb, "[%s %.1f-%.1f] %s\n", u.SpeakerID, u.Start, u.End, u.Text)
	}
	return strings.TrimRight(sb.String(), "\n")
}
