package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/lalalune/babylon-sub000/pkg/agentnet"
)

// ToAgentReputation maps an on-chain record to the internal 0-1 scale.
// Accuracy is recomputed from the raw counters rather than trusting a
// stored field.
func ToAgentReputation(rep Reputation) agentnet.AgentReputation {
	out := agentnet.AgentReputation{
		TrustScore:  float64(rep.TrustScore) / 100,
		IsBanned:    rep.IsBanned,
		TotalVolume: "0",
	}
	if rep.TotalBets != nil {
		out.TotalBets = rep.TotalBets.Uint64()
	}
	if rep.WinningBets != nil {
		out.WinningBets = rep.WinningBets.Uint64()
	}
	if out.TotalBets > 0 {
		out.AccuracyScore = float64(out.WinningBets) / float64(out.TotalBets)
	}
	if rep.TotalVolume != nil {
		out.TotalVolume = rep.TotalVolume.String()
	}
	if rep.ProfitLoss != nil {
		pl, _ := new(big.Float).SetInt(rep.ProfitLoss).Float64()
		out.ProfitLoss = pl
	}
	if !rep.LastUpdated.IsZero() {
		t := rep.LastUpdated
		out.LastUpdated = &t
	}
	return out
}

// ReputationSource adapts the registry reader to the aggregator's source
// interface, keyed by chain address. An address the contract does not know
// reports zero reputation.
type ReputationSource struct {
	registry *ReputationRegistry
}

func NewReputationSource(registry *ReputationRegistry) *ReputationSource {
	return &ReputationSource{registry: registry}
}

func (s *ReputationSource) Fetch(ctx context.Context, agentID string) (agentnet.AgentReputation, error) {
	if !common.IsHexAddress(agentID) {
		return agentnet.ZeroReputation(), nil
	}
	call := &bind.CallOpts{Context: ctx}

	tokenID, err := s.registry.ResolveByAddress(ctx, call, common.HexToAddress(agentID))
	if err != nil {
		return agentnet.ZeroReputation(), fmt.Errorf("failed to resolve agent %s: %w", agentID, err)
	}
	if tokenID == nil || tokenID.Sign() == 0 {
		return agentnet.ZeroReputation(), nil
	}

	rep, err := s.registry.GetReputation(ctx, call, tokenID)
	if err != nil {
		return agentnet.ZeroReputation(), fmt.Errorf("failed to read reputation for agent %s: %w", agentID, err)
	}
	return ToAgentReputation(rep), nil
}
