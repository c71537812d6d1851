// Package ipfs resolves content-addressed metadata blobs through an HTTP
// gateway. Resolution fails closed: unreachable or malformed data is an
// error, and callers do not retry here.
package ipfs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lalalune/babylon-sub000/pkg/agentnet"
)

const defaultTimeout = 10 * time.Second

type Resolver struct {
	gatewayURL string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewResolver(gatewayURL string, logger *logrus.Logger) *Resolver {
	if logger == nil {
		logger = logrus.New()
	}
	return &Resolver{
		gatewayURL: strings.TrimRight(gatewayURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
}

// Resolve fetches and decodes the metadata blob behind a content pointer.
// Accepts ipfs://CID, a bare CID, or a full http(s) URL.
func (r *Resolver) Resolve(ctx context.Context, pointer string) (*agentnet.GameMetadata, error) {
	url, err := r.gatewayFor(pointer)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metadata fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("metadata fetch returned HTTP %d for %s", resp.StatusCode, pointer)
	}

	var metadata agentnet.GameMetadata
	if err := json.NewDecoder(resp.Body).Decode(&metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata for %s: %w", pointer, err)
	}

	r.logger.Debugf("Resolved metadata pointer %s", pointer)
	return &metadata, nil
}

func (r *Resolver) gatewayFor(pointer string) (string, error) {
	p := strings.TrimSpace(pointer)
	if p == "" {
		return "", fmt.Errorf("empty metadata pointer")
	}
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p, nil
	}
	cid := strings.TrimPrefix(p, "ipfs://")
	if r.gatewayURL == "" {
		return "", fmt.Errorf("no IPFS gateway configured for pointer %s", pointer)
	}
	return r.gatewayURL + "/ipfs/" + cid, nil
}
