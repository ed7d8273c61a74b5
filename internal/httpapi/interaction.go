// Package httpapi exposes the survey interaction endpoints: the SSE
// streaming endpoint, its non-streaming mirror, and a WebSocket
// observer for a session's event stream.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/playlens/survey-orchestrator/internal/apperrors"
	"github.com/playlens/survey-orchestrator/internal/pipeline"
	"github.com/playlens/survey-orchestrator/internal/streaming"
	"github.com/playlens/survey-orchestrator/internal/survey"
)

// Runner executes one interaction run. Satisfied by *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, req survey.InteractionRequest, em streaming.Emitter) (pipeline.Result, error)
}

// InteractionHandler serves the survey interaction endpoints.
type InteractionHandler struct {
	runner Runner
	hub    *streaming.Hub
	logger *zap.Logger
}

func NewInteractionHandler(runner Runner, hub *streaming.Hub, logger *zap.Logger) *InteractionHandler {
	return &InteractionHandler{runner: runner, hub: hub, logger: logger}
}

// RegisterRoutes registers the interaction routes on mux.
func (h *InteractionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/surveys/interaction", h.handleStream)
	mux.HandleFunc("/surveys/interaction/sync", h.handleSync)
	mux.HandleFunc("/surveys/interaction/watch", h.handleWatch)
}

// handleStream runs the pipeline and streams its events over SSE.
// POST /surveys/interaction
func (h *InteractionHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		apperrors.WriteJSON(w, apperrors.New(apperrors.CodeInternalError, "streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	em := streaming.NewFanout(streaming.NewSSEEmitter(w, flusher), h.hub, req.SessionID)
	if _, err := h.runner.Run(r.Context(), req, em); err != nil {
		// already emitted as the stream's terminal error event
		h.logger.Debug("Streaming run ended with error",
			zap.String("session_id", req.SessionID), zap.Error(err))
	}
}

// handleSync mirrors the pipeline without streaming.
// POST /surveys/interaction/sync
func (h *InteractionHandler) handleSync(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	em := streaming.NewFanout(streaming.NewCollector(), h.hub, req.SessionID)
	res, err := h.runner.Run(r.Context(), req, em)
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(survey.InteractionResponse{
		Action:   res.Action,
		Message:  res.Message,
		Analysis: res.Analysis,
	})
}

// decode parses and validates the request body. Input errors are
// rejected before the state machine starts.
func (h *InteractionHandler) decode(w http.ResponseWriter, r *http.Request) (survey.InteractionRequest, bool) {
	var req survey.InteractionRequest
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		apperrors.WriteJSON(w, apperrors.InvalidRequest(nil))
		return req, false
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteJSON(w, apperrors.InvalidRequest(err))
		return req, false
	}
	if err := req.Validate(); err != nil {
		apperrors.WriteJSON(w, err)
		return req, false
	}
	return req, true
}
