package agentnet

import (
	"time"
)

// AgentCapabilities is the canonical, validated shape of an agent's declared
// capability blob. Instances are produced only through ParseCapabilities; raw
// blobs from the network must never travel further than that boundary.
type AgentCapabilities struct {
	Strategies []string `json:"strategies"`
	Markets    []string `json:"markets"`
	Actions    []string `json:"actions"`
	Version    string   `json:"version"`
}

// AgentReputation holds the reputation counters for a single source.
//
// AccuracyScore and TrustScore are on the 0-1 scale everywhere inside this
// process. Subgraph records carry 0-100 integers; the agent0 client divides
// by 100 at the boundary so nothing downstream has to guess the scale.
type AgentReputation struct {
	TotalBets     uint64     `json:"totalBets"`
	WinningBets   uint64     `json:"winningBets"`
	AccuracyScore float64    `json:"accuracyScore"`
	TrustScore    float64    `json:"trustScore"`
	TotalVolume   string     `json:"totalVolume"`
	ProfitLoss    float64    `json:"profitLoss"`
	IsBanned      bool       `json:"isBanned"`
	LastUpdated   *time.Time `json:"lastUpdated,omitempty"`
}

// ReputationSources records the two input trust scores (0-1) that fed an
// aggregation, for explainability.
type ReputationSources struct {
	Local    float64 `json:"local"`
	External float64 `json:"external"`
}

// AggregatedReputation is the blended view over the local and external
// sources. Unlike AgentReputation, AccuracyScore and TrustScore here are on
// the externally exposed 0-100 scale. Derived per request, never persisted.
type AggregatedReputation struct {
	TotalBets     uint64            `json:"totalBets"`
	WinningBets   uint64            `json:"winningBets"`
	AccuracyScore float64           `json:"accuracyScore"`
	TrustScore    float64           `json:"trustScore"`
	TotalVolume   string            `json:"totalVolume"`
	ProfitLoss    float64           `json:"profitLoss"`
	IsBanned      bool              `json:"isBanned"`
	Sources       ReputationSources `json:"sources"`
}

// AgentProfile is the unified discovery view of an agent from either source.
// Identity for deduplication is the lowercased chain address, not AgentID:
// the same address can show up locally and as an "agent0-<tokenId>" mirror.
type AgentProfile struct {
	AgentID      string            `json:"agentId"`
	TokenID      uint64            `json:"tokenId"`
	Address      string            `json:"address"`
	Name         string            `json:"name"`
	Endpoint     string            `json:"endpoint,omitempty"`
	Capabilities AgentCapabilities `json:"capabilities"`
	Reputation   AgentReputation   `json:"reputation"`
	IsActive     bool              `json:"isActive"`
}

// AgentPerformance tracks in-process prediction counters for a registered
// agent. AverageConfidence is a running mean, no sample history is kept.
type AgentPerformance struct {
	TotalPredictions   uint64  `json:"totalPredictions"`
	CorrectPredictions uint64  `json:"correctPredictions"`
	AverageConfidence  float64 `json:"averageConfidence"`
	CoalitionsJoined   uint64  `json:"coalitionsJoined"`
}

// RegisteredAgent is a local registry entry for an agent connected to this
// process.
type RegisteredAgent struct {
	SessionID    string           `json:"sessionId"`
	Profile      AgentProfile     `json:"profile"`
	RegisteredAt time.Time        `json:"registeredAt"`
	LastActive   time.Time        `json:"lastActive"`
	Performance  AgentPerformance `json:"performance"`
}

// GameEndpoints lists the advertised channels of a game platform record.
type GameEndpoints struct {
	A2A       string `json:"a2a,omitempty"`
	MCP       string `json:"mcp,omitempty"`
	API       string `json:"api,omitempty"`
	Docs      string `json:"docs,omitempty"`
	WebSocket string `json:"websocket,omitempty"`
}

// GameCapabilities describes what a game platform supports.
type GameCapabilities struct {
	Markets        []string `json:"markets"`
	Actions        []string `json:"actions"`
	Protocols      []string `json:"protocols"`
	SocialFeatures bool     `json:"socialFeatures,omitempty"`
	Realtime       bool     `json:"realtime,omitempty"`
}

// GameReputation is the trust summary attached to a discovered game.
type GameReputation struct {
	TrustScore float64 `json:"trustScore"`
}

// DiscoverableGame is a platform-typed agent record with its metadata blob
// resolved into endpoints and capability flags.
type DiscoverableGame struct {
	TokenID         uint64           `json:"tokenId"`
	Name            string           `json:"name"`
	Type            string           `json:"type"`
	MetadataPointer string           `json:"metadataPointer"`
	Endpoints       GameEndpoints    `json:"endpoints"`
	Capabilities    GameCapabilities `json:"capabilities"`
	Reputation      *GameReputation  `json:"reputation,omitempty"`
}

// GameMetadata is the decoded content-addressed metadata blob for a game
// platform record.
type GameMetadata struct {
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	Type         string            `json:"type,omitempty"`
	Endpoints    GameEndpoints     `json:"endpoints"`
	Capabilities *GameCapabilities `json:"capabilities,omitempty"`
}

// ExternalAgentRecord is a raw row from the agent0 subgraph. Reputation
// fields arrive on the network's 0-100 integer scale; Capabilities is an
// untyped blob that must go through ParseCapabilities.
type ExternalAgentRecord struct {
	TokenID         uint64     `json:"tokenId"`
	Address         string     `json:"address"`
	Name            string     `json:"name"`
	Type            string     `json:"type,omitempty"`
	Endpoint        string     `json:"endpoint,omitempty"`
	MetadataPointer string     `json:"metadataPointer,omitempty"`
	Capabilities    any        `json:"capabilities,omitempty"`
	TotalBets       uint64     `json:"totalBets"`
	WinningBets     uint64     `json:"winningBets"`
	AccuracyScore   float64    `json:"accuracyScore"`
	TrustScore      float64    `json:"trustScore"`
	TotalVolume     string     `json:"totalVolume"`
	ProfitLoss      float64    `json:"profitLoss"`
	IsBanned        bool       `json:"isBanned"`
	LastUpdated     *time.Time `json:"lastUpdated,omitempty"`
	Markets         []string   `json:"markets,omitempty"`
	Actions         []string   `json:"actions,omitempty"`
	Protocols       []string   `json:"protocols,omitempty"`
}

// DefaultReputation returns a fresh reputation record with the neutral 0.5
// trust prior. New agents must not start at zero trust or they would be
// filtered out by any minimum-trust threshold before their first bet.
func DefaultReputation() AgentReputation {
	return AgentReputation{
		TotalVolume: "0",
		TrustScore:  0.5,
	}
}

// ZeroReputation is the substitute for an unavailable reputation source.
func ZeroReputation() AgentReputation {
	return AgentReputation{TotalVolume: "0"}
}
