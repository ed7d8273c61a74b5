// Package streaming defines the wire events of one interaction run
// and the emitters that frame them. Event ordering is a total order
// within a run: exactly one start first, exactly one done or error
// last, every intermediate event in emission order.
package streaming

import (
	"encoding/json"

	"github.com/playlens/survey-orchestrator/internal/survey"
)

// EventType enumerates the wire event kinds. The literal strings are
// the cross-service contract.
type EventType string

const (
	EventStart          EventType = "start"
	EventValidityResult EventType = "validity_result"
	EventAnalyzeAnswer  EventType = "analyze_answer"
	EventReaction       EventType = "reaction"
	EventToken          EventType = "token"
	EventTailComplete   EventType = "generate_tail_complete"
	EventRetryRequest   EventType = "retry_request"
	EventDone           EventType = "done"
	EventError          EventType = "error"
)

// Event is one framed wire event: a self-contained {event, data}
// envelope.
type Event struct {
	Type EventType      `json:"event"`
	Data map[string]any `json:"data"`
	Seq  uint64         `json:"-"`
}

// Marshal returns the JSON envelope.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Terminal reports whether the event legally ends a stream.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

func Start() Event {
	return Event{Type: EventStart, Data: map[string]any{"status": "processing"}}
}

func ValidityResult(res survey.ValidityResult) Event {
	return Event{Type: EventValidityResult, Data: map[string]any{
		"result":     string(res.Validity),
		"confidence": res.Confidence,
		"reason":     res.Reason,
		"source":     res.Source,
	}}
}

func AnalyzeAnswer(action survey.Action, analysis string) Event {
	return Event{Type: EventAnalyzeAnswer, Data: map[string]any{
		"action":   string(action),
		"analysis": analysis,
	}}
}

func Reaction(text string) Event {
	return Event{Type: EventReaction, Data: map[string]any{"reaction_text": text}}
}

func Token(content string) Event {
	return Event{Type: EventToken, Data: map[string]any{"content": content}}
}

func TailComplete(message string, tailCount int) Event {
	return Event{Type: EventTailComplete, Data: map[string]any{
		"message":             message,
		"tail_question_count": tailCount,
	}}
}

func RetryRequest(message, followupType string) Event {
	return Event{Type: EventRetryRequest, Data: map[string]any{
		"message":       message,
		"followup_type": followupType,
	}}
}

// Done carries the run's terminal verdict. message is nil on the pass
// path, where no text was generated.
func Done(action survey.Action, message *string) Event {
	return Event{Type: EventDone, Data: map[string]any{
		"status":  "completed",
		"action":  string(action),
		"message": message,
	}}
}

func Error(message string, code string) Event {
	return Event{Type: EventError, Data: map[string]any{
		"message": message,
		"code":    code,
	}}
}
