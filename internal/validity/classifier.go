// Package validity decides whether an answer is usable before any
// sufficiency analysis runs. Clear-cut cases are settled by rules with
// no backend call; only ambiguous answers reach the model.
package validity

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/playlens/survey-orchestrator/internal/llm"
	"github.com/playlens/survey-orchestrator/internal/metrics"
	"github.com/playlens/survey-orchestrator/internal/prompts"
	"github.com/playlens/survey-orchestrator/internal/survey"
)

var refusalKeywords = []string{
	"pass", "skip", "next question", "no comment",
	"i refuse", "don't want to answer", "rather not say",
}

var unintelligiblePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^[\s.,!?~]+$`), // punctuation only
	regexp.MustCompile(`^[a-zA-Z]{1,2}$`),
}

// Classifier evaluates one answer against the current question.
type Classifier struct {
	backend llm.Client
	prompts *prompts.Registry
	logger  *zap.Logger
}

func NewClassifier(backend llm.Client, reg *prompts.Registry, logger *zap.Logger) *Classifier {
	return &Classifier{backend: backend, prompts: reg, logger: logger}
}

// Classify returns the validity of answer for question. Rule-stage
// results never touch the backend. Backend transport failures
// propagate; unparseable backend output fails open to VALID so the
// session can progress.
func (c *Classifier) Classify(ctx context.Context, question, answer string) (survey.ValidityResult, error) {
	if res, ok := preclassify(answer); ok {
		metrics.ValidityResults.WithLabelValues(string(res.Validity), res.Source).Inc()
		return res, nil
	}

	set := c.prompts.Current()
	prompt := prompts.Render(set.Classify, map[string]string{
		"current_question": question,
		"user_answer":      answer,
	})
	comp, err := c.backend.Complete(ctx, llm.Request{Prompt: prompt})
	if err != nil {
		return survey.ValidityResult{}, fmt.Errorf("classify answer: %w", err)
	}

	res, err := parseResult(comp.Content)
	if err != nil {
		// fail open: a broken classifier must not stall the interview
		c.logger.Warn("Unparseable classifier output, treating answer as valid",
			zap.String("output", truncate(comp.Content, 200)),
			zap.Error(err))
		res = survey.ValidityResult{
			Validity:   survey.ValidityValid,
			Confidence: 0,
			Reason:     "classifier output unparseable, failed open",
			Source:     "llm",
		}
	}
	metrics.ValidityResults.WithLabelValues(string(res.Validity), res.Source).Inc()
	return res, nil
}

// preclassify settles answers no model is needed for.
func preclassify(answer string) (survey.ValidityResult, bool) {
	normalized := strings.ToLower(strings.TrimSpace(answer))

	if len(normalized) < 2 {
		if normalized == "" {
			return survey.ValidityResult{
				Validity:   survey.ValidityRefusal,
				Confidence: 1.0,
				Reason:     "empty answer",
				Source:     "rule",
			}, true
		}
		return survey.ValidityResult{
			Validity:   survey.ValidityUnintelligible,
			Confidence: 1.0,
			Reason:     "answer too short to carry meaning",
			Source:     "rule",
		}, true
	}

	if repeatedRune(normalized) {
		return survey.ValidityResult{
			Validity:   survey.ValidityUnintelligible,
			Confidence: 0.95,
			Reason:     "no extractable meaning",
			Source:     "rule",
		}, true
	}
	for _, p := range unintelligiblePatterns {
		if p.MatchString(normalized) {
			return survey.ValidityResult{
				Validity:   survey.ValidityUnintelligible,
				Confidence: 0.95,
				Reason:     "no extractable meaning",
				Source:     "rule",
			}, true
		}
	}

	// keyword check only on short answers: a long answer containing
	// "pass" is usually about the game, not a refusal
	if len(normalized) < 20 {
		for _, kw := range refusalKeywords {
			if strings.Contains(normalized, kw) {
				return survey.ValidityResult{
					Validity:   survey.ValidityRefusal,
					Confidence: 0.9,
					Reason:     fmt.Sprintf("refusal keyword %q", kw),
					Source:     "rule",
				}, true
			}
		}
	}
	return survey.ValidityResult{}, false
}

// repeatedRune reports whether s is one rune repeated five or more
// times ("aaaaaaa", keyboard mashing).
func repeatedRune(s string) bool {
	runes := []rune(s)
	if len(runes) < 5 {
		return false
	}
	for _, r := range runes[1:] {
		if r != runes[0] {
			return false
		}
	}
	return true
}

func parseResult(content string) (survey.ValidityResult, error) {
	var out struct {
		Validity   string  `json:"validity"`
		Confidence float64 `json:"confidence"`
		Reason     string  `json:"reason"`
	}
	if err := json.Unmarshal([]byte(stripFences(content)), &out); err != nil {
		return survey.ValidityResult{}, err
	}
	v := survey.Validity(strings.ToUpper(strings.TrimSpace(out.Validity)))
	switch v {
	case survey.ValidityValid, survey.ValidityRefusal,
		survey.ValidityOffTopic, survey.ValidityUnintelligible:
	default:
		return survey.ValidityResult{}, fmt.Errorf("unknown validity class %q", out.Validity)
	}
	return survey.ValidityResult{
		Validity:   v,
		Confidence: out.Confidence,
		Reason:     out.Reason,
		Source:     "llm",
	}, nil
}

// stripFences removes a markdown code fence if the model wrapped its
// JSON in one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
