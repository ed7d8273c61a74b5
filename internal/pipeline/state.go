package pipeline

import "github.com/playlens/survey-orchestrator/internal/survey"

// State of one interaction run. The machine never revisits a state
// within a run.
type State int

const (
	StateStart State = iota
	StateValidating
	StateRefusalEnd
	StateOffTopicRetry
	StateAnalyzing
	StateGeneratingTail
	StatePassEnd
	StateDone
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "START"
	case StateValidating:
		return "VALIDATING"
	case StateRefusalEnd:
		return "REFUSAL_END"
	case StateOffTopicRetry:
		return "OFF_TOPIC_RETRY"
	case StateAnalyzing:
		return "ANALYZING"
	case StateGeneratingTail:
		return "GENERATING_TAIL"
	case StatePassEnd:
		return "PASS_END"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// nextState is the machine's pure transition function. A non-VALID
// classification always short-circuits past the analyzer: the backend
// is never asked to judge sufficiency of unusable input. The analyzer
// inputs are only consulted from ANALYZING.
func nextState(s State, v survey.Validity, action survey.Action) State {
	switch s {
	case StateStart:
		return StateValidating
	case StateValidating:
		switch v {
		case survey.ValidityValid:
			return StateAnalyzing
		case survey.ValidityRefusal:
			return StateRefusalEnd
		default: // OFF_TOPIC, UNINTELLIGIBLE
			return StateOffTopicRetry
		}
	case StateAnalyzing:
		switch action {
		case survey.ActionTailQuestion:
			return StateGeneratingTail
		case survey.ActionRetryQuestion:
			return StateOffTopicRetry
		default:
			return StatePassEnd
		}
	case StateRefusalEnd, StateOffTopicRetry, StateGeneratingTail, StatePassEnd:
		return StateDone
	default:
		return StateDone
	}
}
