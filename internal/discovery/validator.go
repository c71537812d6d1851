package discovery

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	mcpTypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"

	"github.com/lalalune/babylon-sub000/internal/metrics"
	"github.com/lalalune/babylon-sub000/pkg/agentnet"
)

const probeTimeout = 5 * time.Second

// EndpointValidator checks that a candidate platform is reachable on at
// least one advertised channel. Probes run concurrently and combine with
// OR: validation inherently expects some endpoints to be absent or down,
// so a single live channel is enough. Timeouts count as probe failure,
// never as an error.
type EndpointValidator struct {
	httpClient *http.Client
	logger     *logrus.Logger
	collector  *metrics.Collector
}

func NewEndpointValidator(logger *logrus.Logger, collector *metrics.Collector) *EndpointValidator {
	if logger == nil {
		logger = logrus.New()
	}
	return &EndpointValidator{
		httpClient: &http.Client{Timeout: probeTimeout},
		logger:     logger,
		collector:  collector,
	}
}

// Validate probes the declared MCP and API endpoints concurrently and
// passes when any probe succeeds. A game with no probeable endpoints fails.
func (v *EndpointValidator) Validate(ctx context.Context, game agentnet.DiscoverableGame) bool {
	type probe func(context.Context) bool
	probes := make([]probe, 0, 2)

	if mcpURL := game.Endpoints.MCP; mcpURL != "" {
		probes = append(probes, func(ctx context.Context) bool { return v.probeMCP(ctx, mcpURL) })
	}
	if apiURL := game.Endpoints.API; apiURL != "" {
		probes = append(probes, func(ctx context.Context) bool { return v.probeAPI(ctx, apiURL) })
	}

	if len(probes) == 0 {
		v.collector.IncGameValidation(false)
		return false
	}

	results := make(chan bool, len(probes))
	for _, p := range probes {
		go func(p probe) {
			results <- p(ctx)
		}(p)
	}

	passed := false
	for range probes {
		if <-results {
			passed = true
		}
	}

	v.collector.IncGameValidation(passed)
	return passed
}

// mcpDescriptor is the minimal server self-description an MCP endpoint is
// expected to return: a name and its tool list.
type mcpDescriptor struct {
	Name  string          `json:"name"`
	Tools json.RawMessage `json:"tools"`
}

// probeMCP succeeds when the endpoint answers OK with a decodable
// descriptor carrying both a name and a tools field.
func (v *EndpointValidator) probeMCP(ctx context.Context, url string) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		v.logger.Debugf("MCP probe failed for %s: %v", url, err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		v.logger.Debugf("MCP probe for %s returned HTTP %d", url, resp.StatusCode)
		return false
	}

	var descriptor mcpDescriptor
	if err := json.NewDecoder(resp.Body).Decode(&descriptor); err != nil {
		v.logger.Debugf("MCP probe for %s returned undecodable body: %v", url, err)
		return false
	}
	if descriptor.Name == "" || len(descriptor.Tools) == 0 {
		return false
	}
	var tools []mcpTypes.Tool
	if err := json.Unmarshal(descriptor.Tools, &tools); err != nil {
		v.logger.Debugf("MCP probe for %s returned malformed tools: %v", url, err)
		return false
	}

	v.logger.Debugf("MCP probe succeeded for %s (%d tools)", url, len(tools))
	return true
}

// probeAPI succeeds on OK or on an auth challenge: a 401/403 still proves
// the service exists and is reachable.
func (v *EndpointValidator) probeAPI(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	url := strings.TrimRight(baseURL, "/") + "/markets"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		v.logger.Debugf("API probe failed for %s: %v", url, err)
		return false
	}
	defer resp.Body.Close()

	if (resp.StatusCode >= 200 && resp.StatusCode < 300) ||
		resp.StatusCode == http.StatusUnauthorized ||
		resp.StatusCode == http.StatusForbidden {
		v.logger.Debugf("API probe succeeded for %s (HTTP %d)", url, resp.StatusCode)
		return true
	}

	v.logger.Debugf("API probe for %s returned HTTP %d", url, resp.StatusCode)
	return false
}
