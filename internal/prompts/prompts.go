package prompts

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Set holds every prompt template the engine renders. Templates use
// {placeholder} variables filled by Render.
type Set struct {
	Classify     string `yaml:"classify"`
	Analyze      string `yaml:"analyze"`
	TailQuestion string `yaml:"tail_question"`
	Redirect     string `yaml:"redirect"`
	Clarify      string `yaml:"clarify"`
	RefusalNudge string `yaml:"refusal_nudge"`
	Rephrase     string `yaml:"rephrase"`
	Reaction     string `yaml:"reaction"`
}

// Defaults returns the built-in prompt set used when no template file
// is configured.
func Defaults() Set {
	return Set{
		Classify: strings.TrimSpace(`
You are reviewing one answer from a playtest interview.

Question: {current_question}
Answer: {user_answer}

Classify the answer as exactly one of VALID, REFUSAL, OFF_TOPIC or
UNINTELLIGIBLE. VALID means the answer addresses the question, even
partially. REFUSAL means the tester declines to answer. OFF_TOPIC means
the answer is about something else entirely. UNINTELLIGIBLE means no
meaning can be extracted.

Respond with JSON only: {"validity": "...", "confidence": 0.0, "reason": "..."}`),
		Analyze: strings.TrimSpace(`
You are running a playtest interview about this game:
{game_context}

Conversation so far:
{history}

Question: {current_question}
Answer: {user_answer}
Follow-up questions already asked for this question: {probe_count}

Decide the next step. TAIL_QUESTION if a follow-up would surface
concrete detail the answer lacks. PASS_TO_NEXT if the answer is rich
enough or further probing would tire the tester. RETRY_QUESTION only if
the answer is usable but too ambiguous to analyze.

Respond with JSON only: {"action": "...", "analysis": "..."}`),
		TailQuestion: strings.TrimSpace(`
You are running a playtest interview about this game:
{game_context}

Conversation so far:
{history}

Question: {current_question}
Answer: {user_answer}

Write one short, friendly follow-up question that digs into the most
interesting concrete detail of the answer. Output the question text
only.`),
		Redirect: strings.TrimSpace(`
The tester was asked: {current_question}
They answered off topic: {user_answer}

Write one short, friendly sentence that acknowledges their comment and
steers them back to the original question. Output the sentence only.`),
		Clarify: strings.TrimSpace(`
The tester was asked: {current_question}
Their answer was hard to pin down: {user_answer}

Write one short, friendly question asking them to clarify what they
meant. Output the question only.`),
		RefusalNudge: "No pressure at all. Even a short, honest thought would really help. Could you share a little?",
		Rephrase:     "Sorry, I couldn't quite understand that. Could you say it again in different words?",
		Reaction: strings.TrimSpace(`
The tester was asked: {current_question}
They answered: {user_answer}

Write one short, warm acknowledgment of their answer (one sentence, no
question). Output the sentence only.`),
	}
}

// Render substitutes {name} placeholders in a template.
func Render(tpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}

// Registry serves the current prompt set and supports atomic reloads
// from a YAML file.
type Registry struct {
	mu     sync.RWMutex
	set    Set
	logger *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{set: Defaults(), logger: logger}
}

// Current returns the active prompt set.
func (r *Registry) Current() Set {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.set
}

// LoadFile replaces the active set with the file's contents. Fields
// missing from the file keep their defaults. Unknown fields are
// rejected so typos in template names fail loudly.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read prompts %s: %w", path, err)
	}
	set := Defaults()
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&set); err != nil {
		return fmt.Errorf("decode prompts %s: %w", path, err)
	}
	r.mu.Lock()
	r.set = set
	r.mu.Unlock()
	r.logger.Info("Prompt templates loaded", zap.String("path", path))
	return nil
}
