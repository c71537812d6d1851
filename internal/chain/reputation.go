// Package chain reads the on-chain reputation registry backing the local
// reputation source. Only the read path lives here; registration and
// updates go through the registration SDK and are out of scope.
package chain

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// ABI for the reputation registry read surface.
const reputationABI = `[
  {"inputs":[{"internalType":"uint256","name":"agentId","type":"uint256"}],"name":"getReputation","outputs":[{"components":[{"internalType":"uint256","name":"totalBets","type":"uint256"},{"internalType":"uint256","name":"winningBets","type":"uint256"},{"internalType":"uint256","name":"totalVolume","type":"uint256"},{"internalType":"int256","name":"profitLoss","type":"int256"},{"internalType":"uint8","name":"trustScore","type":"uint8"},{"internalType":"bool","name":"isBanned","type":"bool"},{"internalType":"uint64","name":"lastUpdated","type":"uint64"}],"internalType":"struct IReputationRegistry.Reputation","name":"reputation","type":"tuple"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"address","name":"agentAddress","type":"address"}],"name":"resolveByAddress","outputs":[{"internalType":"uint256","name":"agentId","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"uint256","name":"agentId","type":"uint256"}],"name":"agentExists","outputs":[{"internalType":"bool","name":"exists","type":"bool"}],"stateMutability":"view","type":"function"}
]`

// Reputation is the raw on-chain record. TotalVolume and ProfitLoss are
// wei-scale and stay big.Int; TrustScore is the contract's 0-100 integer.
type Reputation struct {
	TotalBets   *big.Int
	WinningBets *big.Int
	TotalVolume *big.Int
	ProfitLoss  *big.Int
	TrustScore  uint8
	IsBanned    bool
	LastUpdated time.Time
}

type reputationTuple struct {
	TotalBets   *big.Int
	WinningBets *big.Int
	TotalVolume *big.Int
	ProfitLoss  *big.Int
	TrustScore  uint8
	IsBanned    bool
	LastUpdated uint64
}

type ReputationRegistry struct {
	addr     common.Address
	backend  bind.ContractBackend
	contract *bind.BoundContract
	abi      abi.ABI
}

func NewReputationRegistry(addr common.Address, backend bind.ContractBackend) (*ReputationRegistry, error) {
	parsed, err := abi.JSON(strings.NewReader(reputationABI))
	if err != nil {
		return nil, err
	}
	c := bind.NewBoundContract(addr, parsed, backend, backend, backend)
	return &ReputationRegistry{addr: addr, backend: backend, contract: c, abi: parsed}, nil
}

// ReputationRegistryABI returns the ABI JSON used by this package.
func ReputationRegistryABI() string { return reputationABI }

func (r *ReputationRegistry) GetReputation(ctx context.Context, call *bind.CallOpts, agentID *big.Int) (Reputation, error) {
	if call == nil {
		call = &bind.CallOpts{Context: ctx}
	}
	var res reputationTuple
	out := []interface{}{&res}
	if err := r.contract.Call(call, &out, "getReputation", agentID); err != nil {
		return Reputation{}, err
	}
	rep := Reputation{
		TotalBets:   res.TotalBets,
		WinningBets: res.WinningBets,
		TotalVolume: res.TotalVolume,
		ProfitLoss:  res.ProfitLoss,
		TrustScore:  res.TrustScore,
		IsBanned:    res.IsBanned,
	}
	if res.LastUpdated > 0 {
		rep.LastUpdated = time.Unix(int64(res.LastUpdated), 0)
	}
	return rep, nil
}

func (r *ReputationRegistry) ResolveByAddress(ctx context.Context, call *bind.CallOpts, addr common.Address) (*big.Int, error) {
	if call == nil {
		call = &bind.CallOpts{Context: ctx}
	}
	var agentID *big.Int
	out := []interface{}{&agentID}
	if err := r.contract.Call(call, &out, "resolveByAddress", addr); err != nil {
		return nil, err
	}
	return agentID, nil
}

func (r *ReputationRegistry) AgentExists(ctx context.Context, call *bind.CallOpts, agentID *big.Int) (bool, error) {
	if call == nil {
		call = &bind.CallOpts{Context: ctx}
	}
	var exists bool
	out := []interface{}{&exists}
	if err := r.contract.Call(call, &out, "agentExists", agentID); err != nil {
		return false, err
	}
	return exists, nil
}
