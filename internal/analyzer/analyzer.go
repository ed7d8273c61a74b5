// Package analyzer judges a valid answer's sufficiency and picks the
// next conversational action. It runs only after the validity
// classifier has accepted the answer.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/playlens/survey-orchestrator/internal/apperrors"
	"github.com/playlens/survey-orchestrator/internal/llm"
	"github.com/playlens/survey-orchestrator/internal/prompts"
	"github.com/playlens/survey-orchestrator/internal/survey"
)

// Judgment is the analyzer's verdict for one answer.
type Judgment struct {
	Action   survey.Action
	Analysis string
}

// Analyzer produces exactly one Judgment per valid answer.
type Analyzer struct {
	backend llm.Client
	prompts *prompts.Registry
	logger  *zap.Logger

	maxTailQuestions int
}

func New(backend llm.Client, reg *prompts.Registry, maxTailQuestions int, logger *zap.Logger) *Analyzer {
	return &Analyzer{backend: backend, prompts: reg, maxTailQuestions: maxTailQuestions, logger: logger}
}

// Analyze decides the next action using the full history as context.
// Once the tail-question budget for the current question is spent the
// decision is a forced PASS_TO_NEXT with no backend call. A backend
// failure propagates: there is no safe default action to guess.
func (a *Analyzer) Analyze(ctx context.Context, req survey.InteractionRequest, hist *survey.History) (Judgment, error) {
	maxTails := a.maxTailQuestions
	if req.MaxTailQuestions > 0 {
		maxTails = req.MaxTailQuestions
	}
	if req.ProbeCount >= maxTails {
		a.logger.Info("Tail question budget spent, forcing pass",
			zap.String("session_id", req.SessionID),
			zap.Int("probe_count", req.ProbeCount))
		return Judgment{
			Action:   survey.ActionPassToNext,
			Analysis: fmt.Sprintf("tail question limit reached (%d)", maxTails),
		}, nil
	}

	set := a.prompts.Current()
	prompt := prompts.Render(set.Analyze, map[string]string{
		"game_context":     req.GameContext(),
		"history":          hist.Transcript(),
		"current_question": req.CurrentQuestion,
		"user_answer":      req.UserAnswer,
		"probe_count":      strconv.Itoa(req.ProbeCount),
	})
	comp, err := a.backend.Complete(ctx, llm.Request{Prompt: prompt})
	if err != nil {
		return Judgment{}, fmt.Errorf("analyze answer: %w", err)
	}

	j, err := parseJudgment(comp.Content)
	if err != nil {
		return Judgment{}, apperrors.GenerationFailed(fmt.Errorf("analyzer output: %w", err))
	}
	return j, nil
}

func parseJudgment(content string) (Judgment, error) {
	content = strings.TrimSpace(content)
	if i := strings.Index(content, "{"); i > 0 {
		content = content[i:]
	}
	if i := strings.LastIndex(content, "}"); i >= 0 {
		content = content[:i+1]
	}
	var out struct {
		Action   string `json:"action"`
		Analysis string `json:"analysis"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return Judgment{}, err
	}
	action := survey.Action(strings.ToUpper(strings.TrimSpace(out.Action)))
	switch action {
	case survey.ActionTailQuestion, survey.ActionPassToNext, survey.ActionRetryQuestion:
	default:
		return Judgment{}, fmt.Errorf("unknown action %q", out.Action)
	}
	return Judgment{Action: action, Analysis: out.Analysis}, nil
}
