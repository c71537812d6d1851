// Package discovery composes the local registry and the Agent0 index into
// one deduplicated discovery surface, plus the platform-specialized game
// discovery flow.
package discovery

import (
	"context"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lalalune/babylon-sub000/internal/agent0"
	"github.com/lalalune/babylon-sub000/internal/metrics"
	"github.com/lalalune/babylon-sub000/internal/registry"
	"github.com/lalalune/babylon-sub000/pkg/agentnet"
)

// IndexClient is the slice of the Agent0 client the discovery services
// need. Satisfied by *agent0.Client.
type IndexClient interface {
	Enabled() bool
	Query(ctx context.Context, filters agent0.QueryFilters) ([]agentnet.ExternalAgentRecord, error)
	GetAgentByTokenID(ctx context.Context, tokenID uint64) (*agentnet.ExternalAgentRecord, error)
}

// ReputationBridge computes aggregated reputation for externally-discovered
// agents. Satisfied by *reputation.Aggregator.
type ReputationBridge interface {
	GetAggregatedReputation(ctx context.Context, agentID string) agentnet.AggregatedReputation
}

// DiscoveryFilters narrow a unified discovery request. MinReputation is on
// the internal 0-1 scale.
type DiscoveryFilters struct {
	Strategies      []string
	Markets         []string
	MinReputation   float64
	IncludeExternal bool
}

// UnifiedDiscoveryService merges local-registry and Agent0 results into one
// deduplicated, trust-sorted list. Stateless beyond its injected
// collaborators.
type UnifiedDiscoveryService struct {
	registry   *registry.LocalAgentRegistry
	client     IndexClient
	aggregator ReputationBridge
	logger     *logrus.Logger
	collector  *metrics.Collector
}

func NewUnifiedDiscoveryService(reg *registry.LocalAgentRegistry, client IndexClient, aggregator ReputationBridge, logger *logrus.Logger, collector *metrics.Collector) *UnifiedDiscoveryService {
	if logger == nil {
		logger = logrus.New()
	}
	return &UnifiedDiscoveryService{
		registry:   reg,
		client:     client,
		aggregator: aggregator,
		logger:     logger,
		collector:  collector,
	}
}

// DiscoverAgents always includes local-registry matches; external results
// join in when requested and the Agent0 feature flag is on. Shared
// addresses collapse to a single profile with the local one authoritative.
func (s *UnifiedDiscoveryService) DiscoverAgents(ctx context.Context, filters DiscoveryFilters) []agentnet.AgentProfile {
	profiles := make([]agentnet.AgentProfile, 0)

	for _, entry := range s.registry.Search(registry.SearchCriteria{
		Strategies:  filters.Strategies,
		MinAccuracy: filters.MinReputation,
	}) {
		profiles = append(profiles, entry.Profile)
	}
	s.collector.IncDiscoveryQuery("local")

	if filters.IncludeExternal && s.client != nil && s.client.Enabled() {
		records, err := s.client.Query(ctx, agent0.QueryFilters{
			Strategies:    filters.Strategies,
			Markets:       filters.Markets,
			MinTrustScore: filters.MinReputation,
		})
		if err != nil {
			s.logger.Warnf("Agent0 query failed, returning local results only: %v", err)
		} else {
			s.collector.IncDiscoveryQuery("external")
			for _, record := range records {
				profiles = append(profiles, s.externalProfile(ctx, record))
			}
		}
	}

	return deduplicateAndSort(profiles)
}

// GetAgent resolves one agent by identifier from either source. Absence is
// (nil, nil): callers must treat it as a valid, common outcome.
func (s *UnifiedDiscoveryService) GetAgent(ctx context.Context, agentID string) (*agentnet.AgentProfile, error) {
	if tokenID, ok := agent0.ParseExternalID(agentID); ok {
		if s.client == nil || !s.client.Enabled() {
			return nil, nil
		}
		record, err := s.client.GetAgentByTokenID(ctx, tokenID)
		if err != nil {
			return nil, err
		}
		if record == nil {
			return nil, nil
		}
		profile := s.externalProfile(ctx, *record)
		return &profile, nil
	}

	if entry, ok := s.registry.Get(agentID); ok {
		profile := entry.Profile
		return &profile, nil
	}
	return nil, nil
}

// externalProfile turns a raw index record into a profile. The capability
// blob goes through the schema boundary; reputation comes from the
// aggregator when bridged, otherwise straight from the (already
// boundary-normalized) record fields.
func (s *UnifiedDiscoveryService) externalProfile(ctx context.Context, record agentnet.ExternalAgentRecord) agentnet.AgentProfile {
	profile := agentnet.AgentProfile{
		AgentID:      agent0.ExternalID(record.TokenID),
		TokenID:      record.TokenID,
		Address:      record.Address,
		Name:         record.Name,
		Endpoint:     record.Endpoint,
		Capabilities: agentnet.ParseCapabilities(record.Capabilities),
		IsActive:     !record.IsBanned,
	}

	if s.aggregator != nil {
		agg := s.aggregator.GetAggregatedReputation(ctx, profile.AgentID)
		profile.Reputation = agentnet.AgentReputation{
			TotalBets:     agg.TotalBets,
			WinningBets:   agg.WinningBets,
			AccuracyScore: agg.AccuracyScore / 100,
			TrustScore:    agg.TrustScore / 100,
			TotalVolume:   agg.TotalVolume,
			ProfitLoss:    agg.ProfitLoss,
			IsBanned:      agg.IsBanned,
			LastUpdated:   record.LastUpdated,
		}
	} else {
		profile.Reputation = agent0.RecordReputation(record)
	}
	return profile
}

// deduplicateAndSort groups profiles by lowercased chain address and keeps
// one per group, preferring a local identity over an Agent0-sourced mirror
// (the local entry is authoritative for endpoint and name data). Output is
// sorted by trust score descending; ties keep insertion order.
func deduplicateAndSort(profiles []agentnet.AgentProfile) []agentnet.AgentProfile {
	kept := make([]agentnet.AgentProfile, 0, len(profiles))
	index := make(map[string]int)

	for _, profile := range profiles {
		key := strings.ToLower(profile.Address)
		if key == "" {
			// No address to collapse on; the per-source id is all we have.
			key = "id:" + profile.AgentID
		}

		at, seen := index[key]
		if !seen {
			index[key] = len(kept)
			kept = append(kept, profile)
			continue
		}
		if isExternalID(kept[at].AgentID) && !isExternalID(profile.AgentID) {
			kept[at] = profile
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Reputation.TrustScore > kept[j].Reputation.TrustScore
	})

	return kept
}

func isExternalID(id string) bool {
	return strings.HasPrefix(id, agent0.ExternalIDPrefix)
}
