// Package health runs dependency probes behind the liveness and
// readiness endpoints. Liveness is unconditional; readiness requires
// every critical checker to pass.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status of one probe.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of one probe run.
type CheckResult struct {
	Component string        `json:"component"`
	Status    Status        `json:"status"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
	Critical  bool          `json:"critical"`
}

// Checker probes one dependency.
type Checker interface {
	Name() string
	// Check returns nil when the dependency is usable.
	Check(ctx context.Context) error
	// Critical checkers gate readiness; non-critical ones only report.
	Critical() bool
}

// Manager registers checkers and answers probe requests. Checks run on
// demand with a shared timeout; the last results are kept for
// reporting.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	last     map[string]CheckResult
	timeout  time.Duration
	logger   *zap.Logger
}

func NewManager(timeout time.Duration, logger *zap.Logger) *Manager {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Manager{
		last:    make(map[string]CheckResult),
		timeout: timeout,
		logger:  logger,
	}
}

func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
}

// Run executes every checker and returns the results keyed by name.
func (m *Manager) Run(ctx context.Context) map[string]CheckResult {
	m.mu.RLock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	m.mu.RUnlock()

	results := make(map[string]CheckResult, len(checkers))
	for _, c := range checkers {
		results[c.Name()] = m.runOne(ctx, c)
	}

	m.mu.Lock()
	for name, res := range results {
		m.last[name] = res
	}
	m.mu.Unlock()
	return results
}

func (m *Manager) runOne(ctx context.Context, c Checker) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	res := CheckResult{
		Component: c.Name(),
		Status:    StatusHealthy,
		Timestamp: start,
		Critical:  c.Critical(),
	}
	if err := c.Check(ctx); err != nil {
		res.Status = StatusUnhealthy
		res.Error = err.Error()
		m.logger.Warn("Health check failed",
			zap.String("component", c.Name()), zap.Error(err))
	}
	res.Duration = time.Since(start)
	return res
}

// Ready reports whether every critical dependency passed.
func (m *Manager) Ready(ctx context.Context) bool {
	for _, res := range m.Run(ctx) {
		if res.Critical && res.Status != StatusHealthy {
			return false
		}
	}
	return true
}

// RegisterRoutes mounts /healthz and /readyz on mux.
func (m *Manager) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", m.handleLiveness)
	mux.HandleFunc("/readyz", m.handleReadiness)
}

func (m *Manager) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeProbe(w, http.StatusOK, map[string]any{
		"status":    "alive",
		"timestamp": time.Now().Unix(),
	})
}

func (m *Manager) handleReadiness(w http.ResponseWriter, r *http.Request) {
	results := m.Run(r.Context())
	status := http.StatusOK
	overall := "ready"
	for _, res := range results {
		if res.Critical && res.Status != StatusHealthy {
			status = http.StatusServiceUnavailable
			overall = "not ready"
			break
		}
	}
	writeProbe(w, status, map[string]any{
		"status":     overall,
		"components": results,
		"timestamp":  time.Now().Unix(),
	})
}

func writeProbe(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
