package health

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// GatewayChecker probes the generation backend's health endpoint. It is
// critical: the service cannot run an interaction without it.
type GatewayChecker struct {
	url    string
	client *http.Client
}

func NewGatewayChecker(baseURL string, client *http.Client) *GatewayChecker {
	if client == nil {
		client = http.DefaultClient
	}
	return &GatewayChecker{
		url:    strings.TrimRight(baseURL, "/") + "/health",
		client: client,
	}
}

func (g *GatewayChecker) Name() string   { return "model_gateway" }
func (g *GatewayChecker) Critical() bool { return true }

func (g *GatewayChecker) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url, nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	return nil
}

// PromptsChecker verifies the prompt registry is populated. Non-critical
// because the built-in defaults always apply.
type PromptsChecker struct {
	loaded func() bool
}

func NewPromptsChecker(loaded func() bool) *PromptsChecker {
	return &PromptsChecker{loaded: loaded}
}

func (p *PromptsChecker) Name() string   { return "prompts" }
func (p *PromptsChecker) Critical() bool { return false }

func (p *PromptsChecker) Check(context.Context) error {
	if !p.loaded() {
		return fmt.Errorf("prompt registry is empty")
	}
	return nil
}
