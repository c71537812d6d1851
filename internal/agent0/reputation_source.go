package agent0

import (
	"context"

	"github.com/lalalune/babylon-sub000/pkg/agentnet"
)

// RecordReputation extracts the reputation fields from an index record.
// Scores are already on the internal 0-1 scale at this point.
func RecordReputation(record agentnet.ExternalAgentRecord) agentnet.AgentReputation {
	return agentnet.AgentReputation{
		TotalBets:     record.TotalBets,
		WinningBets:   record.WinningBets,
		AccuracyScore: record.AccuracyScore,
		TrustScore:    record.TrustScore,
		TotalVolume:   record.TotalVolume,
		ProfitLoss:    record.ProfitLoss,
		IsBanned:      record.IsBanned,
		LastUpdated:   record.LastUpdated,
	}
}

// ReputationSource adapts the client to the aggregator's source interface.
// Agent0-prefixed ids resolve by token; anything else is treated as a chain
// address. An agent unknown to the index reports zero reputation rather
// than an error, per the degraded-source policy.
type ReputationSource struct {
	client *Client
}

func NewReputationSource(client *Client) *ReputationSource {
	return &ReputationSource{client: client}
}

func (s *ReputationSource) Fetch(ctx context.Context, agentID string) (agentnet.AgentReputation, error) {
	var (
		record *agentnet.ExternalAgentRecord
		err    error
	)
	if tokenID, ok := ParseExternalID(agentID); ok {
		record, err = s.client.GetAgentByTokenID(ctx, tokenID)
	} else {
		record, err = s.client.GetAgentByAddress(ctx, agentID)
	}
	if err != nil {
		return agentnet.ZeroReputation(), err
	}
	if record == nil {
		return agentnet.ZeroReputation(), nil
	}
	return RecordReputation(*record), nil
}
