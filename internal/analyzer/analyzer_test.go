package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/playlens/survey-orchestrator/internal/apperrors"
	"github.com/playlens/survey-orchestrator/internal/llm"
	"github.com/playlens/survey-orchestrator/internal/prompts"
	"github.com/playlens/survey-orchestrator/internal/survey"
)

type fakeBackend struct {
	calls   int
	content string
	err     error
	lastReq llm.Request
}

func (f *fakeBackend) Complete(_ context.Context, req llm.Request) (llm.Completion, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return llm.Completion{}, f.err
	}
	return llm.Completion{Content: f.content}, nil
}

func (f *fakeBackend) Stream(context.Context, llm.Request) (<-chan llm.Chunk, error) {
	panic("analyzer must never stream")
}

func newAnalyzer(backend llm.Client) *Analyzer {
	logger := zap.NewNop()
	return New(backend, prompts.NewRegistry(logger), 2, logger)
}

func req() survey.InteractionRequest {
	return survey.InteractionRequest{
		SessionID:       "s1",
		CurrentQuestion: "How was combat?",
		UserAnswer:      "It was too hard",
	}
}

func TestAnalyzeDecision(t *testing.T) {
	backend := &fakeBackend{content: `{"action":"TAIL_QUESTION","analysis":"no concrete example given"}`}
	a := newAnalyzer(backend)

	j, err := a.Analyze(context.Background(), req(), survey.NewHistory(nil))
	require.NoError(t, err)
	assert.Equal(t, survey.ActionTailQuestion, j.Action)
	assert.Equal(t, "no concrete example given", j.Analysis)
}

func TestHistoryFlowsIntoPrompt(t *testing.T) {
	backend := &fakeBackend{content: `{"action":"PASS_TO_NEXT","analysis":"ok"}`}
	a := newAnalyzer(backend)

	hist := survey.NewHistory(nil)
	hist.AppendQuestion("Q0", survey.NodeNormal)
	hist.AppendAnswer("the bosses were fine")

	_, err := a.Analyze(context.Background(), req(), hist)
	require.NoError(t, err)
	assert.Contains(t, backend.lastReq.Prompt, "the bosses were fine")
}

func TestTailBudgetForcesPass(t *testing.T) {
	backend := &fakeBackend{}
	a := newAnalyzer(backend)

	r := req()
	r.ProbeCount = 2
	j, err := a.Analyze(context.Background(), r, survey.NewHistory(nil))
	require.NoError(t, err)
	assert.Equal(t, survey.ActionPassToNext, j.Action)
	assert.Zero(t, backend.calls)
}

func TestRequestOverridesTailBudget(t *testing.T) {
	backend := &fakeBackend{content: `{"action":"TAIL_QUESTION","analysis":"probe"}`}
	a := newAnalyzer(backend)

	r := req()
	r.ProbeCount = 2
	r.MaxTailQuestions = 4
	j, err := a.Analyze(context.Background(), r, survey.NewHistory(nil))
	require.NoError(t, err)
	assert.Equal(t, survey.ActionTailQuestion, j.Action)
	assert.Equal(t, 1, backend.calls)
}

func TestMalformedOutputIsGenerationFailure(t *testing.T) {
	backend := &fakeBackend{content: "let me think about that"}
	a := newAnalyzer(backend)

	_, err := a.Analyze(context.Background(), req(), survey.NewHistory(nil))
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeGenerationFailed, apperrors.From(err).Code)
}

func TestUnknownActionIsGenerationFailure(t *testing.T) {
	backend := &fakeBackend{content: `{"action":"THINK_HARDER","analysis":"?"}`}
	a := newAnalyzer(backend)

	_, err := a.Analyze(context.Background(), req(), survey.NewHistory(nil))
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeGenerationFailed, apperrors.From(err).Code)
}

func TestBackendFailurePropagates(t *testing.T) {
	backend := &fakeBackend{err: apperrors.GenerationFailed(assert.AnError)}
	a := newAnalyzer(backend)

	_, err := a.Analyze(context.Background(), req(), survey.NewHistory(nil))
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeGenerationFailed, apperrors.From(err).Code)
}
