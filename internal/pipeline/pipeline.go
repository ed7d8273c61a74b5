// Package pipeline orchestrates one interaction run: classify the
// answer, decide the next action, generate any follow-up text, and
// emit the run's events in strict order. One pipeline instance serves
// all requests; all per-run state lives on the stack of Run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/playlens/survey-orchestrator/internal/analyzer"
	"github.com/playlens/survey-orchestrator/internal/apperrors"
	"github.com/playlens/survey-orchestrator/internal/llm"
	"github.com/playlens/survey-orchestrator/internal/metrics"
	"github.com/playlens/survey-orchestrator/internal/prompts"
	"github.com/playlens/survey-orchestrator/internal/streaming"
	"github.com/playlens/survey-orchestrator/internal/survey"
	"github.com/playlens/survey-orchestrator/internal/tracing"
	"github.com/playlens/survey-orchestrator/internal/validity"
)

// Options tune run behavior.
type Options struct {
	// MaxRetries bounds validity retries per question. Once spent, an
	// unusable answer passes to the next question instead of looping.
	MaxRetries int
	// ReactionEnabled adds a short acknowledgment event on the pass
	// path before done.
	ReactionEnabled bool
}

// Result is the logical outcome of one run, mirrored by the
// non-streaming endpoint.
type Result struct {
	Action   survey.Action
	Message  *string
	Analysis string
	Validity survey.ValidityResult
	History  []survey.ConversationNode
}

// Pipeline is the action-decision state machine.
type Pipeline struct {
	classifier *validity.Classifier
	analyzer   *analyzer.Analyzer
	backend    llm.Client
	prompts    *prompts.Registry
	opts       Options
	logger     *zap.Logger
}

func New(
	classifier *validity.Classifier,
	an *analyzer.Analyzer,
	backend llm.Client,
	reg *prompts.Registry,
	opts Options,
	logger *zap.Logger,
) *Pipeline {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	return &Pipeline{
		classifier: classifier,
		analyzer:   an,
		backend:    backend,
		prompts:    reg,
		opts:       opts,
		logger:     logger,
	}
}

// run carries the working state of one request.
type run struct {
	req   survey.InteractionRequest
	em    streaming.Emitter
	hist  *survey.History
	log   *zap.Logger
	start time.Time
}

// Run executes one interaction. Events go to em in emission order:
// exactly one start first and exactly one done or error last. The
// returned Result backs the non-streaming mirror; on failure the error
// is already coded and already emitted.
func (p *Pipeline) Run(ctx context.Context, req survey.InteractionRequest, em streaming.Emitter) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "survey.interaction")
	defer span.End()

	r := &run{
		req:   req,
		em:    em,
		hist:  survey.NewHistory(req.ConversationHistory),
		start: time.Now(),
		log: p.logger.With(
			zap.String("run_id", uuid.NewString()),
			zap.String("session_id", req.SessionID),
		),
	}
	metrics.RunsStarted.Inc()
	r.log.Info("Interaction run started", zap.Int("history_len", r.hist.Len()))

	if err := em.Emit(streaming.Start()); err != nil {
		return Result{}, err
	}

	state := nextState(StateStart, "", "")
	vres, err := p.classifier.Classify(ctx, req.CurrentQuestion, req.UserAnswer)
	if err != nil {
		return p.fail(r, err)
	}
	if err := em.Emit(streaming.ValidityResult(vres)); err != nil {
		return Result{}, err
	}
	r.log.Info("Validity classified",
		zap.String("validity", string(vres.Validity)),
		zap.String("source", vres.Source))

	state = nextState(state, vres.Validity, "")
	switch state {
	case StateRefusalEnd, StateOffTopicRetry:
		return p.finishRetry(ctx, r, state, vres, analyzer.Judgment{})
	}

	// ANALYZING
	judgment, err := p.analyzer.Analyze(ctx, req, r.hist)
	if err != nil {
		return p.fail(r, err)
	}
	if err := em.Emit(streaming.AnalyzeAnswer(judgment.Action, judgment.Analysis)); err != nil {
		return Result{}, err
	}
	r.log.Info("Answer analyzed", zap.String("action", string(judgment.Action)))

	state = nextState(state, vres.Validity, judgment.Action)
	switch state {
	case StateGeneratingTail:
		return p.finishTail(ctx, r, vres, judgment)
	case StateOffTopicRetry:
		return p.finishRetry(ctx, r, state, vres, judgment)
	default:
		return p.finishPass(ctx, r, vres, judgment)
	}
}

// finishRetry handles every retry-class terminal state. The rejected
// answer stays in history; the re-ask is appended after it as a
// RETRY-tagged question node.
func (p *Pipeline) finishRetry(ctx context.Context, r *run, state State, vres survey.ValidityResult, judgment analyzer.Judgment) (Result, error) {
	// retry budget spent: pass instead of asking again (the caller
	// tracks retry_count per question)
	if judgment.Action == "" && r.req.RetryCount >= p.opts.MaxRetries {
		r.log.Info("Retry budget spent, passing to next question",
			zap.Int("retry_count", r.req.RetryCount))
		forced := analyzer.Judgment{
			Action:   survey.ActionPassToNext,
			Analysis: fmt.Sprintf("retry limit reached (%s)", vres.Validity),
		}
		if err := r.em.Emit(streaming.AnalyzeAnswer(forced.Action, forced.Analysis)); err != nil {
			return Result{}, err
		}
		return p.finishPass(ctx, r, vres, forced)
	}

	message, followupType, err := p.retryMessage(ctx, r, state, vres, judgment)
	if err != nil {
		return p.fail(r, err)
	}

	r.appendExchange()
	r.hist.AppendQuestion(message, survey.NodeRetry)

	if err := r.em.Emit(streaming.RetryRequest(message, followupType)); err != nil {
		return Result{}, err
	}
	return p.done(r, Result{
		Action:   survey.ActionRetryQuestion,
		Message:  &message,
		Analysis: retryAnalysis(vres, judgment),
		Validity: vres,
	})
}

// retryMessage picks the re-ask text. Refusal and unintelligible
// answers get fixed nudges with no backend call; off-topic and
// analyzer-requested clarifications are generated.
func (p *Pipeline) retryMessage(ctx context.Context, r *run, state State, vres survey.ValidityResult, judgment analyzer.Judgment) (string, string, error) {
	set := p.prompts.Current()
	vars := map[string]string{
		"current_question": r.req.CurrentQuestion,
		"user_answer":      r.req.UserAnswer,
	}
	switch {
	case state == StateRefusalEnd:
		return set.RefusalNudge, "refusal_nudge", nil
	case judgment.Action == survey.ActionRetryQuestion:
		msg, err := p.generate(ctx, prompts.Render(set.Clarify, vars))
		return msg, "clarify", err
	case vres.Validity == survey.ValidityUnintelligible:
		return set.Rephrase, "rephrase", nil
	default: // OFF_TOPIC
		msg, err := p.generate(ctx, prompts.Render(set.Redirect, vars))
		return msg, "redirect", err
	}
}

// finishTail streams the follow-up question token by token. Tokens are
// forwarded as produced, never buffered whole; a mid-stream failure
// terminates with a single error event and already-sent tokens stand.
func (p *Pipeline) finishTail(ctx context.Context, r *run, vres survey.ValidityResult, judgment analyzer.Judgment) (Result, error) {
	set := p.prompts.Current()
	prompt := prompts.Render(set.TailQuestion, map[string]string{
		"game_context":     r.req.GameContext(),
		"history":          r.hist.Transcript(),
		"current_question": r.req.CurrentQuestion,
		"user_answer":      r.req.UserAnswer,
	})

	ch, err := p.backend.Stream(ctx, llm.Request{Prompt: prompt})
	if err != nil {
		return p.fail(r, err)
	}

	var b strings.Builder
	for chunk := range ch {
		if chunk.Err != nil {
			return p.fail(r, chunk.Err)
		}
		if err := r.em.Emit(streaming.Token(chunk.Content)); err != nil {
			return Result{}, err
		}
		metrics.TokensStreamed.Inc()
		b.WriteString(chunk.Content)
	}

	message := strings.TrimSpace(b.String())
	if message == "" {
		return p.fail(r, apperrors.GenerationFailed(errors.New("tail generation produced no text")))
	}

	if err := r.em.Emit(streaming.TailComplete(message, r.req.ProbeCount+1)); err != nil {
		return Result{}, err
	}

	r.appendExchange()
	r.hist.AppendQuestion(message, survey.NodeTail)

	return p.done(r, Result{
		Action:   survey.ActionTailQuestion,
		Message:  &message,
		Analysis: judgment.Analysis,
		Validity: vres,
	})
}

// finishPass closes the run with no generated question.
func (p *Pipeline) finishPass(ctx context.Context, r *run, vres survey.ValidityResult, judgment analyzer.Judgment) (Result, error) {
	if p.opts.ReactionEnabled {
		p.emitReaction(ctx, r)
	}
	r.appendExchange()
	return p.done(r, Result{
		Action:   survey.ActionPassToNext,
		Analysis: judgment.Analysis,
		Validity: vres,
	})
}

// emitReaction is cosmetic: a failed reaction is skipped, never fatal.
func (p *Pipeline) emitReaction(ctx context.Context, r *run) {
	set := p.prompts.Current()
	text, err := p.generate(ctx, prompts.Render(set.Reaction, map[string]string{
		"current_question": r.req.CurrentQuestion,
		"user_answer":      r.req.UserAnswer,
	}))
	if err != nil {
		r.log.Warn("Reaction generation failed, skipping", zap.Error(err))
		return
	}
	_ = r.em.Emit(streaming.Reaction(text))
}

func (p *Pipeline) generate(ctx context.Context, prompt string) (string, error) {
	comp, err := p.backend.Complete(ctx, llm.Request{Prompt: prompt})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(comp.Content), nil
}

// appendExchange records the current question/answer pair into the
// working history before any generated node is attached.
func (r *run) appendExchange() {
	r.hist.AppendQuestion(r.req.CurrentQuestion, survey.NodeNormal)
	r.hist.AppendAnswer(r.req.UserAnswer)
}

func (p *Pipeline) done(r *run, res Result) (Result, error) {
	res.History = r.hist.Snapshot()
	if err := r.em.Emit(streaming.Done(res.Action, res.Message)); err != nil {
		return Result{}, err
	}
	metrics.RunsCompleted.WithLabelValues(string(res.Action), "ok").Inc()
	metrics.RunDuration.WithLabelValues(string(res.Action)).Observe(time.Since(r.start).Seconds())
	r.log.Info("Interaction run completed",
		zap.String("action", string(res.Action)),
		zap.Duration("elapsed", time.Since(r.start)))
	return res, nil
}

// fail ends the stream with exactly one error event carrying the coded
// message. A cancelled context means the caller is gone: nothing can
// be delivered, so no event is written.
func (p *Pipeline) fail(r *run, err error) (Result, error) {
	metrics.RunsCompleted.WithLabelValues("none", "error").Inc()
	if errors.Is(err, context.Canceled) {
		r.log.Warn("Client disconnected, run aborted")
		return Result{}, err
	}
	ae := apperrors.From(err)
	r.log.Error("Interaction run failed",
		zap.String("code", string(ae.Code)),
		zap.Error(err))
	_ = r.em.Emit(streaming.Error(ae.Message, string(ae.Code)))
	return Result{}, ae
}

func retryAnalysis(vres survey.ValidityResult, judgment analyzer.Judgment) string {
	if judgment.Analysis != "" {
		return judgment.Analysis
	}
	return fmt.Sprintf("retry required (%s)", vres.Validity)
}
