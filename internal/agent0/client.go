// Package agent0 is the read/feedback client for the Agent0 network: a
// subgraph-style index of on-chain registered agents plus a feedback
// endpoint. The index is eventually consistent; callers own retry policy.
package agent0

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lalalune/babylon-sub000/pkg/agentnet"
)

// ExternalIDPrefix marks profiles sourced from the Agent0 index. A local
// agent and its Agent0 mirror share a chain address but not an id.
const ExternalIDPrefix = "agent0-"

const defaultTimeout = 10 * time.Second

// ExternalID builds the per-source identifier for an Agent0 token.
func ExternalID(tokenID uint64) string {
	return ExternalIDPrefix + strconv.FormatUint(tokenID, 10)
}

// ParseExternalID extracts the token id from an Agent0-sourced identifier.
func ParseExternalID(id string) (uint64, bool) {
	if !strings.HasPrefix(id, ExternalIDPrefix) {
		return 0, false
	}
	tokenID, err := strconv.ParseUint(strings.TrimPrefix(id, ExternalIDPrefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return tokenID, true
}

// QueryFilters narrow a subgraph query. MinTrustScore is on the internal
// 0-1 scale; the client converts to the network's 0-100 scale on the wire.
type QueryFilters struct {
	Type          string
	Strategies    []string
	Markets       []string
	MinTrustScore float64
	Limit         int
}

// Feedback is a one-way reputation report pushed to the network.
type Feedback struct {
	TargetID string `json:"targetId"`
	Rating   int    `json:"rating"`
	Comment  string `json:"comment"`
}

type Config struct {
	Enabled     bool
	SubgraphURL string
	FeedbackURL string
	Timeout     time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewClient(cfg Config, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Enabled reports whether the Agent0 feature flag is on.
func (c *Client) Enabled() bool {
	return c.cfg.Enabled && c.cfg.SubgraphURL != ""
}

// wire shapes: the subgraph speaks a GraphQL-flavored POST API and reports
// reputation on a 0-100 integer scale.
type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type wireAgent struct {
	TokenID         uint64   `json:"tokenId"`
	Address         string   `json:"address"`
	Name            string   `json:"name"`
	Type            string   `json:"type"`
	Endpoint        string   `json:"endpoint"`
	MetadataPointer string   `json:"metadataPointer"`
	Capabilities    any      `json:"capabilities"`
	TotalBets       uint64   `json:"totalBets"`
	WinningBets     uint64   `json:"winningBets"`
	AccuracyScore   float64  `json:"accuracyScore"`
	TrustScore      float64  `json:"trustScore"`
	TotalVolume     string   `json:"totalVolume"`
	ProfitLoss      float64  `json:"profitLoss"`
	IsBanned        bool     `json:"isBanned"`
	LastUpdated     *int64   `json:"lastUpdated"`
	Markets         []string `json:"markets"`
	Actions         []string `json:"actions"`
	Protocols       []string `json:"protocols"`
}

type graphQLResponse struct {
	Data struct {
		Agents []wireAgent `json:"agents"`
		Agent  *wireAgent  `json:"agent"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

const agentFields = `tokenId address name type endpoint metadataPointer capabilities totalBets winningBets accuracyScore trustScore totalVolume profitLoss isBanned lastUpdated markets actions protocols`

// Query searches the Agent0 index. Single-shot: a degraded index surfaces
// as an error and the caller decides whether to retry.
func (c *Client) Query(ctx context.Context, filters QueryFilters) ([]agentnet.ExternalAgentRecord, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}

	variables := map[string]any{
		"limit": limit,
	}
	if filters.Type != "" {
		variables["type"] = filters.Type
	}
	if len(filters.Strategies) > 0 {
		variables["strategies"] = filters.Strategies
	}
	if len(filters.Markets) > 0 {
		variables["markets"] = filters.Markets
	}
	if filters.MinTrustScore > 0 {
		variables["minTrustScore"] = filters.MinTrustScore * 100
	}

	query := fmt.Sprintf(`query Agents($type: String, $strategies: [String!], $markets: [String!], $minTrustScore: Float, $limit: Int) {
  agents(type: $type, strategies: $strategies, markets: $markets, minTrustScore: $minTrustScore, limit: $limit) { %s }
}`, agentFields)

	resp, err := c.post(ctx, c.cfg.SubgraphURL, graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, err
	}

	records := make([]agentnet.ExternalAgentRecord, 0, len(resp.Data.Agents))
	for _, agent := range resp.Data.Agents {
		records = append(records, normalizeRecord(agent))
	}
	c.logger.Debugf("Agent0 query returned %d records", len(records))
	return records, nil
}

// GetAgentByTokenID resolves one record directly, bypassing search filters.
// Absence is (nil, nil).
func (c *Client) GetAgentByTokenID(ctx context.Context, tokenID uint64) (*agentnet.ExternalAgentRecord, error) {
	query := fmt.Sprintf(`query Agent($tokenId: ID!) { agent(tokenId: $tokenId) { %s } }`, agentFields)
	resp, err := c.post(ctx, c.cfg.SubgraphURL, graphQLRequest{
		Query:     query,
		Variables: map[string]any{"tokenId": tokenID},
	})
	if err != nil {
		return nil, err
	}
	if resp.Data.Agent == nil {
		return nil, nil
	}
	record := normalizeRecord(*resp.Data.Agent)
	return &record, nil
}

// GetAgentByAddress resolves a record by its chain address. Absence is
// (nil, nil).
func (c *Client) GetAgentByAddress(ctx context.Context, address string) (*agentnet.ExternalAgentRecord, error) {
	query := fmt.Sprintf(`query Agent($address: String!) { agent(address: $address) { %s } }`, agentFields)
	resp, err := c.post(ctx, c.cfg.SubgraphURL, graphQLRequest{
		Query:     query,
		Variables: map[string]any{"address": strings.ToLower(address)},
	})
	if err != nil {
		return nil, err
	}
	if resp.Data.Agent == nil {
		return nil, nil
	}
	record := normalizeRecord(*resp.Data.Agent)
	return &record, nil
}

// SubmitFeedback pushes a reputation report to the network. Best effort and
// idempotent in intent: repeated calls resubmit current state.
func (c *Client) SubmitFeedback(ctx context.Context, fb Feedback) error {
	url := c.cfg.FeedbackURL
	if url == "" {
		url = strings.TrimRight(c.cfg.SubgraphURL, "/") + "/feedback"
	}

	body, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("failed to marshal feedback: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create feedback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("feedback submission failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("feedback submission rejected: HTTP %d", resp.StatusCode)
	}

	c.logger.Infof("Submitted feedback for %s (rating %d)", fb.TargetID, fb.Rating)
	return nil
}

func (c *Client) post(ctx context.Context, url string, payload graphQLRequest) (*graphQLResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("subgraph request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("subgraph returned HTTP %d", resp.StatusCode)
	}

	var decoded graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode subgraph response: %w", err)
	}
	if len(decoded.Errors) > 0 {
		return nil, fmt.Errorf("subgraph error: %s", decoded.Errors[0].Message)
	}
	return &decoded, nil
}

// normalizeRecord converts a wire row to the internal record shape,
// dividing the network's 0-100 reputation fields down to the 0-1 scale so
// the inconsistency never leaves this package.
func normalizeRecord(w wireAgent) agentnet.ExternalAgentRecord {
	record := agentnet.ExternalAgentRecord{
		TokenID:         w.TokenID,
		Address:         strings.ToLower(w.Address),
		Name:            w.Name,
		Type:            w.Type,
		Endpoint:        w.Endpoint,
		MetadataPointer: w.MetadataPointer,
		Capabilities:    w.Capabilities,
		TotalBets:       w.TotalBets,
		WinningBets:     w.WinningBets,
		AccuracyScore:   w.AccuracyScore / 100,
		TrustScore:      w.TrustScore / 100,
		TotalVolume:     w.TotalVolume,
		ProfitLoss:      w.ProfitLoss,
		IsBanned:        w.IsBanned,
		Markets:         w.Markets,
		Actions:         w.Actions,
		Protocols:       w.Protocols,
	}
	if record.TotalVolume == "" {
		record.TotalVolume = "0"
	}
	if w.LastUpdated != nil {
		t := time.Unix(*w.LastUpdated, 0)
		record.LastUpdated = &t
	}
	return record
}
