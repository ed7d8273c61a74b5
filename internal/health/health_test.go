package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubChecker struct {
	name     string
	err      error
	critical bool
}

func (s *stubChecker) Name() string                { return s.name }
func (s *stubChecker) Critical() bool              { return s.critical }
func (s *stubChecker) Check(context.Context) error { return s.err }

func TestReadyGatedByCriticalCheckers(t *testing.T) {
	m := NewManager(time.Second, zap.NewNop())
	m.Register(&stubChecker{name: "gateway", critical: true})
	m.Register(&stubChecker{name: "prompts", err: errors.New("empty"), critical: false})

	assert.True(t, m.Ready(context.Background()), "non-critical failure must not gate readiness")

	m.Register(&stubChecker{name: "broken", err: errors.New("down"), critical: true})
	assert.False(t, m.Ready(context.Background()))
}

func TestProbeEndpoints(t *testing.T) {
	m := NewManager(time.Second, zap.NewNop())
	m.Register(&stubChecker{name: "gateway", err: errors.New("down"), critical: true})
	mux := http.NewServeMux()
	m.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "liveness is unconditional")

	resp, err = http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body struct {
		Status     string                 `json:"status"`
		Components map[string]CheckResult `json:"components"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "not ready", body.Status)
	assert.Equal(t, StatusUnhealthy, body.Components["gateway"].Status)
}

func TestGatewayChecker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewGatewayChecker(srv.URL+"/", nil)
	assert.NoError(t, c.Check(context.Background()))

	down := NewGatewayChecker("http://127.0.0.1:1", nil)
	assert.Error(t, down.Check(context.Background()))
}
