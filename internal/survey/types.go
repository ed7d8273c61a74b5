package survey

import (
	"strings"

	"github.com/playlens/survey-orchestrator/internal/apperrors"
)

// Action is the terminal verdict of one interaction run. The string
// values are consumed by the survey backend and must stay stable.
type Action string

const (
	ActionTailQuestion  Action = "TAIL_QUESTION"
	ActionPassToNext    Action = "PASS_TO_NEXT"
	ActionRetryQuestion Action = "RETRY_QUESTION"
)

// Validity classifies an answer as usable or one of the unusable
// classes, computed before any sufficiency analysis.
type Validity string

const (
	ValidityValid          Validity = "VALID"
	ValidityRefusal        Validity = "REFUSAL"
	ValidityOffTopic       Validity = "OFF_TOPIC"
	ValidityUnintelligible Validity = "UNINTELLIGIBLE"
)

// ValidityResult carries the classification plus observability fields.
// Only Validity drives control flow.
type ValidityResult struct {
	Validity   Validity `json:"validity"`
	Confidence float64  `json:"confidence"`
	Reason     string   `json:"reason"`
	Source     string   `json:"source"` // "rule" or "llm"
}

// Role of a conversation node.
type Role string

const (
	RoleQuestion Role = "QUESTION"
	RoleAnswer   Role = "ANSWER"
)

// NodeType tags how a node entered the conversation. A RETRY node is
// an AI-authored re-ask inserted after the rejected answer; the answer
// itself is never removed.
type NodeType string

const (
	NodeNormal NodeType = "NORMAL"
	NodeTail   NodeType = "TAIL"
	NodeRetry  NodeType = "RETRY"
)

// ConversationNode is one entry of the caller-owned conversation log.
type ConversationNode struct {
	Role Role     `json:"role"`
	Type NodeType `json:"node_type"`
	Text string   `json:"text"`
}

// InteractionRequest is the request body for /surveys/interaction.
type InteractionRequest struct {
	SessionID           string             `json:"session_id"`
	UserAnswer          string             `json:"user_answer"`
	CurrentQuestion     string             `json:"current_question"`
	ProbeCount          int                `json:"probe_count"`
	RetryCount          int                `json:"retry_count"`
	MaxTailQuestions    int                `json:"max_tail_questions,omitempty"`
	GameInfo            map[string]any     `json:"game_info,omitempty"`
	ConversationHistory []ConversationNode `json:"conversation_history,omitempty"`
}

// Validate checks the request fields the engine cannot proceed
// without. An empty user_answer is legal: it is classified as a
// refusal, not rejected as bad input.
func (r *InteractionRequest) Validate() error {
	var fields []apperrors.FieldError
	if strings.TrimSpace(r.SessionID) == "" {
		fields = append(fields, apperrors.FieldError{
			Field: "session_id", Value: r.SessionID, Reason: "must not be empty",
		})
	}
	if strings.TrimSpace(r.CurrentQuestion) == "" {
		fields = append(fields, apperrors.FieldError{
			Field: "current_question", Value: r.CurrentQuestion, Reason: "must not be empty",
		})
	}
	if r.ProbeCount < 0 {
		fields = append(fields, apperrors.FieldError{
			Field: "probe_count", Value: r.ProbeCount, Reason: "must not be negative",
		})
	}
	if len(fields) > 0 {
		return apperrors.InvalidInput("invalid interaction request", fields...)
	}
	return nil
}

// InteractionResponse is the non-streamed mirror of one run.
type InteractionResponse struct {
	Action   Action  `json:"action"`
	Message  *string `json:"message"`
	Analysis string  `json:"analysis,omitempty"`
}

// GameContext extracts the free-text game context from game_info, if
// the caller supplied one.
func (r *InteractionRequest) GameContext() string {
	if r.GameInfo == nil {
		return ""
	}
	if s, ok := r.GameInfo["game_context"].(string); ok {
		return s
	}
	return ""
}
