package triage

import "encoding/json"

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerPatient   Speaker = "PATIENT"
	SpeakerAssistant Speaker = "ASSISTANT"
)

// Turn is one line of the interview. Turns are never edited or reordered.
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// State tracks where a session is in its lifecycle.
type State string

const (
	// StateAwaitingAnswer means a question is outstanding
	StateAwaitingAnswer State = "awaiting_answer"

	// StateTerminated means a verdict was produced and the session is gone
	StateTerminated State = "terminated"
)

// Priority is the coarse urgency label attached to a verdict.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Verdict is the structured urgency assessment that ends an interview.
type Verdict struct {
	EmergencyIndex int      `json:"emergency_index"`
	PriorityLabel  Priority `json:"priority_label"`
	Rationale      string   `json:"rationale"`
}

// FallbackVerdict is returned when the backend never produces a usable
// verdict. Ambiguous cases default to medium risk rather than low.
var FallbackVerdict = Verdict{
	EmergencyIndex: 65,
	PriorityLabel:  PriorityMedium,
	Rationale:      "insufficient information, defaulting to medium-risk",
}

// VerdictPath records how a verdict was reached.
type VerdictPath string

const (
	PathExtracted VerdictPath = "extracted"
	PathForced    VerdictPath = "forced"
	PathFallback  VerdictPath = "fallback"
)

// Request is one inbound interview step for a patient.
type Request struct {
	PatientID string
	Context   json.RawMessage // EHR context, only read when the session is created
	Answer    string
}

// Outcome is the result of advancing a session by one request. Exactly one
// of NextQuestion or Verdict is set.
type Outcome struct {
	PatientID      string
	NextQuestion   string
	Verdict        *Verdict
	Path           VerdictPath
	AssistantTurns int
	// Context is the session's EHR snapshot, populated on terminal outcomes.
	Context json.RawMessage
}

// Done reports whether the outcome ended the session.
func (o *Outcome) Done() bool { return o.Verdict != nil }
