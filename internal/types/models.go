package types

import "time"

// DateLayout is the calendar-date format used for coaching records and
// date-range filters.
const DateLayout = "2006-01-02"

type CallStatus string

const (
	CallPending    CallStatus = "pending"
	CallProcessing CallStatus = "processing"
	CallCompleted  CallStatus = "completed"
	CallFailed     CallStatus = "failed"
)

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Terminal reports whether a task status may no longer transition.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

type TaskKind string

const (
	TaskTranscription TaskKind = "transcription"
	TaskAnalysis      TaskKind = "analysis"
	TaskLLMEvaluation TaskKind = "llm_evaluation"
	TaskCoaching      TaskKind = "coaching"
)

type SatisfactionCategory string

const (
	SatisfactionLow    SatisfactionCategory = "low"
	SatisfactionMedium SatisfactionCategory = "medium"
	SatisfactionHigh   SatisfactionCategory = "high"
)

// CategoryForScore maps a model score onto its category bracket.
// Brackets are inclusive on their low end: <2.0 low, [2.0,4.0) medium, >=4.0 high.
func CategoryForScore(score float64) SatisfactionCategory {
	switch {
	case score < 2.0:
		return SatisfactionLow
	case score < 4.0:
		return SatisfactionMedium
	default:
		return SatisfactionHigh
	}
}

// NeutralScore is the documented neutral midpoint used whenever no model
// output is available (scorer fallback, coaching average with no analyses).
const NeutralScore = 3.0

type Agent struct {
	ID         int64     `json:"id"`
	EmployeeID string    `json:"employee_id"`
	Name       string    `json:"name"`
	Department string    `json:"department,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Call struct {
	ID           int64      `json:"id"`
	AgentID      int64      `json:"agent_id"`
	AudioPath    string     `json:"audio_path"`
	CallDate     time.Time  `json:"call_date"`
	DurationSec  *int       `json:"duration_sec,omitempty"`
	CallerNumber string     `json:"caller_number,omitempty"`
	Status       CallStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Utterance is one speaker-attributed span of the transcript. The JSON shape
// is the external round-trip format for speaker segments.
type Utterance struct {
	SpeakerID string  `json:"speakerId"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Text      string  `json:"text"`
}

type Transcript struct {
	ID           int64       `json:"id"`
	CallID       int64       `json:"call_id"`
	FullText     string      `json:"full_text"`
	Utterances   []Utterance `json:"utterances"`
	SilenceRatio float64     `json:"silence_ratio"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Analysis is written in two passes: satisfaction fields after the scoring
// stage, narrative fields after the LLM evaluation stage.
type Analysis struct {
	ID                   int64                `json:"id"`
	CallID               int64                `json:"call_id"`
	SatisfactionScore    float64              `json:"satisfaction_score"`
	SatisfactionCategory SatisfactionCategory `json:"satisfaction_category"`
	Evaluation           string               `json:"evaluation,omitempty"`
	EvaluationScore      float64              `json:"evaluation_score,omitempty"`
	KeyTopics            []string             `json:"key_topics,omitempty"`
	Emotions             map[string]string    `json:"emotions,omitempty"`
	Summary              string               `json:"summary,omitempty"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

// HasNarrative distinguishes a fully evaluated analysis from the partial
// state that exists between the scoring and evaluation stages.
func (a *Analysis) HasNarrative() bool {
	return a != nil && a.Evaluation != ""
}

// Task is one ledger row tracking a pipeline stage for a call, or a coaching
// run for an agent. Exactly one of CallID/AgentID is meaningful per kind.
type Task struct {
	ID           int64      `json:"id"`
	CallID       *int64     `json:"call_id,omitempty"`
	AgentID      *int64     `json:"agent_id,omitempty"`
	Kind         TaskKind   `json:"kind"`
	Status       TaskStatus `json:"status"`
	JobRef       string     `json:"job_ref,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Coaching is the one-per-agent-per-day aggregation artifact.
type Coaching struct {
	ID              int64     `json:"id"`
	AgentID         int64     `json:"agent_id"`
	Date            string    `json:"date"`
	DailySummary    string    `json:"daily_summary"`
	CoachingPoints  string    `json:"coaching_points"`
	Strengths       string    `json:"strengths,omitempty"`
	AreasToImprove  string    `json:"areas_to_improve,omitempty"`
	CallCount       int       `json:"call_count"`
	AvgSatisfaction *float64  `json:"avg_satisfaction,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
