package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/playlens/survey-orchestrator/internal/apperrors"
	"github.com/playlens/survey-orchestrator/internal/circuitbreaker"
	"github.com/playlens/survey-orchestrator/internal/config"
	"github.com/playlens/survey-orchestrator/internal/metrics"
	"github.com/playlens/survey-orchestrator/internal/tracing"
)

// HTTPClient talks JSON to the model gateway. A circuit breaker fails
// fast when the gateway is down and an optional limiter caps request
// rate across all pipeline runs.
type HTTPClient struct {
	base          string
	model         string
	temperature   float64
	maxTokens     int
	timeout       time.Duration
	streamTimeout time.Duration

	http    *http.Client
	breaker *circuitbreaker.Breaker
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewHTTPClient(cfg config.LLMConfig, logger *zap.Logger) *HTTPClient {
	var limiter *rate.Limiter
	if cfg.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RatePerMinute)/60.0), cfg.RatePerMinute)
	}
	return &HTTPClient{
		base:          strings.TrimRight(cfg.BaseURL, "/"),
		model:         cfg.Model,
		temperature:   cfg.Temperature,
		maxTokens:     cfg.MaxTokens,
		timeout:       cfg.Timeout,
		streamTimeout: cfg.StreamTimeout,
		http:          &http.Client{},
		breaker: circuitbreaker.New("llm", circuitbreaker.Config{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			SuccessThreshold: cfg.Breaker.SuccessThreshold,
			MaxHalfOpen:      cfg.Breaker.MaxHalfOpen,
			Interval:         cfg.Breaker.Interval,
			OpenTimeout:      cfg.Breaker.OpenTimeout,
		}, logger),
		limiter: limiter,
		logger:  logger,
	}
}

func (c *HTTPClient) fill(req Request) Request {
	if req.Model == "" {
		req.Model = c.model
	}
	if req.Temperature == 0 {
		req.Temperature = c.temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = c.maxTokens
	}
	return req
}

// Complete implements Client.
func (c *HTTPClient) Complete(ctx context.Context, req Request) (Completion, error) {
	ctx, span := tracing.StartSpan(ctx, "llm.complete")
	defer span.End()

	start := time.Now()
	if err := c.admit(ctx); err != nil {
		return Completion{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out Completion
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		resp, err := c.post(ctx, "/v1/complete", c.fill(req))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := statusError(resp); err != nil {
			return err
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return apperrors.GenerationFailed(fmt.Errorf("decode completion: %w", err))
		}
		if strings.TrimSpace(out.Content) == "" {
			return apperrors.GenerationFailed(errors.New("backend returned empty content"))
		}
		return nil
	})
	c.observe("complete", start, err)
	if err != nil {
		return Completion{}, mapError(err)
	}
	return out, nil
}

// Stream implements Client. The breaker guards connection
// establishment; a failure after first byte surfaces in-band on the
// chunk channel and is not retracted upstream.
func (c *HTTPClient) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	ctx, span := tracing.StartSpan(ctx, "llm.stream")

	start := time.Now()
	if err := c.admit(ctx); err != nil {
		span.End()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.streamTimeout)

	var resp *http.Response
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		r, err := c.post(ctx, "/v1/complete/stream", c.fill(req))
		if err != nil {
			return err
		}
		if err := statusError(r); err != nil {
			r.Body.Close()
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		cancel()
		span.End()
		c.observe("stream", start, err)
		return nil, mapError(err)
	}

	ch := make(chan Chunk, 16)
	go func() {
		defer span.End()
		defer cancel()
		defer close(ch)
		defer resp.Body.Close()

		var streamErr error
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scan:
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" || payload == "[DONE]" {
				if payload == "[DONE]" {
					c.observe("stream", start, nil)
					return
				}
				continue
			}
			var frag struct {
				Content string `json:"content"`
				Done    bool   `json:"done"`
			}
			if err := json.Unmarshal([]byte(payload), &frag); err != nil {
				streamErr = apperrors.GenerationFailed(fmt.Errorf("decode stream fragment: %w", err))
				break scan
			}
			if frag.Content != "" {
				select {
				case ch <- Chunk{Content: frag.Content}:
				case <-ctx.Done():
					streamErr = mapError(ctx.Err())
					break scan
				}
			}
			if frag.Done {
				c.observe("stream", start, nil)
				return
			}
		}
		if streamErr == nil {
			if err := scanner.Err(); err != nil {
				streamErr = mapError(err)
			} else {
				// stream ended without a done marker
				streamErr = apperrors.GenerationFailed(errors.New("stream ended unexpectedly"))
			}
		}
		c.observe("stream", start, streamErr)
		ch <- Chunk{Err: streamErr}
	}()
	return ch, nil
}

func (c *HTTPClient) admit(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalError, "marshal backend request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(buf))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalError, "build backend request")
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	err := fmt.Errorf("backend returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	switch {
	case resp.StatusCode >= 500:
		return apperrors.GenerationFailed(err)
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperrors.ModelNotAvailable(err)
	default:
		return apperrors.InvalidRequest(err)
	}
}

// mapError folds transport-level failures into the shared taxonomy:
// unreachable backend A002, timeout A001. Context cancellation passes
// through so a client disconnect is not misreported as a model fault.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var ae *apperrors.Error
	if errors.As(err, &ae) {
		return ae
	}
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.GenerationFailed(err)
	case errors.Is(err, circuitbreaker.ErrOpen),
		errors.Is(err, circuitbreaker.ErrTooManyRequests):
		return apperrors.ModelNotAvailable(err)
	default:
		return apperrors.ModelNotAvailable(err)
	}
}

func (c *HTTPClient) observe(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.BackendCalls.WithLabelValues(op, status).Inc()
	metrics.BackendCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
