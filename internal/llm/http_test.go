package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/playlens/survey-orchestrator/internal/apperrors"
	"github.com/playlens/survey-orchestrator/internal/config"
)

func newClient(baseURL string) *HTTPClient {
	return NewHTTPClient(config.LLMConfig{
		BaseURL:       baseURL,
		Model:         "default",
		Temperature:   0.7,
		MaxTokens:     256,
		Timeout:       2 * time.Second,
		StreamTimeout: 2 * time.Second,
		Breaker: config.BreakerConfig{
			FailureThreshold: 50,
			SuccessThreshold: 2,
			MaxHalfOpen:      3,
			Interval:         time.Minute,
			OpenTimeout:      time.Second,
		},
	}, zap.NewNop())
}

func TestCompleteFillsDefaults(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/complete", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(Completion{Content: "a follow-up question", Model: "default"})
	}))
	defer srv.Close()

	c := newClient(srv.URL)
	out, err := c.Complete(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "a follow-up question", out.Content)
	assert.Equal(t, "default", got.Model)
	assert.Equal(t, 256, got.MaxTokens)
}

func TestCompleteStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   apperrors.Code
	}{
		{http.StatusInternalServerError, apperrors.CodeGenerationFailed},
		{http.StatusBadGateway, apperrors.CodeGenerationFailed},
		{http.StatusTooManyRequests, apperrors.CodeModelNotAvailable},
		{http.StatusBadRequest, apperrors.CodeInvalidAIRequest},
		{http.StatusUnprocessableEntity, apperrors.CodeInvalidAIRequest},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("status_%d", tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			_, err := newClient(srv.URL).Complete(context.Background(), Request{Prompt: "p"})
			require.Error(t, err)
			assert.Equal(t, tc.want, apperrors.From(err).Code)
		})
	}
}

func TestCompleteUnreachableBackend(t *testing.T) {
	c := newClient("http://127.0.0.1:1")
	_, err := c.Complete(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeModelNotAvailable, apperrors.From(err).Code)
}

func TestCompleteEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Completion{Content: "   "})
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).Complete(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeGenerationFailed, apperrors.From(err).Code)
}

func TestStreamDelivery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/complete/stream", r.URL.Path)
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, frag := range []string{"What ", "made it ", "hard?"} {
			fmt.Fprintf(w, "data: {\"content\":%q,\"done\":false}\n\n", frag)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	ch, err := newClient(srv.URL).Stream(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)

	var got string
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		got += chunk.Content
	}
	assert.Equal(t, "What made it hard?", got)
}

func TestStreamDoneFlagEndsStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"content\":\"all\",\"done\":true}\n\n")
	}))
	defer srv.Close()

	ch, err := newClient(srv.URL).Stream(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)

	var chunks []Chunk
	for chunk := range ch {
		chunks = append(chunks, chunk)
	}
	require.Len(t, chunks, 1)
	assert.Equal(t, "all", chunks[0].Content)
}

func TestStreamMidStreamCutIsInBandError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"content\":\"partial\",\"done\":false}\n\n")
		flusher.Flush()
		// connection ends with no done marker
	}))
	defer srv.Close()

	ch, err := newClient(srv.URL).Stream(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)

	var chunks []Chunk
	for chunk := range ch {
		chunks = append(chunks, chunk)
	}
	require.Len(t, chunks, 2)
	assert.Equal(t, "partial", chunks[0].Content)
	require.Error(t, chunks[1].Err)
	assert.Equal(t, apperrors.CodeGenerationFailed, apperrors.From(chunks[1].Err).Code)
}

func TestStreamRejectedStatusFailsUpFront(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).Stream(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeGenerationFailed, apperrors.From(err).Code)
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	c := NewHTTPClient(config.LLMConfig{
		BaseURL: "http://127.0.0.1:1",
		Timeout: time.Second,
		Breaker: config.BreakerConfig{
			FailureThreshold: 2,
			SuccessThreshold: 1,
			MaxHalfOpen:      1,
			Interval:         time.Minute,
			OpenTimeout:      time.Minute,
		},
	}, zap.NewNop())

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := c.Complete(ctx, Request{Prompt: "p"})
		require.Error(t, err)
	}
	_, err := c.Complete(ctx, Request{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeModelNotAvailable, apperrors.From(err).Code)
}
