// Package reputation blends the two independently-sourced reputation
// records for a logical agent into one rankable score. Neither source may
// dominate purely by volume: small samples are Bayesian-smoothed and each
// source is weighted by sample size and recency.
package reputation

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lalalune/babylon-sub000/internal/agent0"
	"github.com/lalalune/babylon-sub000/internal/metrics"
	"github.com/lalalune/babylon-sub000/pkg/agentnet"
)

// Source fetches one reputation record for an agent. Implementations exist
// for the on-chain registry (internal/chain) and the Agent0 index
// (internal/agent0).
type Source interface {
	Fetch(ctx context.Context, agentID string) (agentnet.AgentReputation, error)
}

// FeedbackSink receives one-way reputation reports. Satisfied by
// *agent0.Client.
type FeedbackSink interface {
	SubmitFeedback(ctx context.Context, fb agent0.Feedback) error
}

const (
	sampleSaturation = 100 // bets at which a source's weight saturates
	recencyHorizon   = 30 * 24 * time.Hour
	decayHorizon     = 90 * 24 * time.Hour

	weightAccuracy    = 0.4
	weightVolume      = 0.3
	weightConsistency = 0.2
	weightTimeDecay   = 0.1

	volumeReference = 1_000_000
)

type Aggregator struct {
	local     Source
	external  Source
	logger    *logrus.Logger
	collector *metrics.Collector
	now       func() time.Time
}

func NewAggregator(local, external Source, logger *logrus.Logger, collector *metrics.Collector) *Aggregator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Aggregator{
		local:     local,
		external:  external,
		logger:    logger,
		collector: collector,
		now:       time.Now,
	}
}

// GetAggregatedReputation fetches both sources concurrently and blends
// them. A failed source degrades to the zero-reputation default instead of
// failing the whole call, so aggregation always succeeds.
func (a *Aggregator) GetAggregatedReputation(ctx context.Context, agentID string) agentnet.AggregatedReputation {
	var (
		wg       sync.WaitGroup
		local    agentnet.AgentReputation
		external agentnet.AgentReputation
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		local = a.fetchOrZero(ctx, a.local, agentID, "local")
	}()
	go func() {
		defer wg.Done()
		external = a.fetchOrZero(ctx, a.external, agentID, "external")
	}()
	wg.Wait()

	return a.Aggregate(local, external)
}

// Aggregate is the pure blending step, split out so it can be tested
// without sources.
func (a *Aggregator) Aggregate(local, external agentnet.AgentReputation) agentnet.AggregatedReputation {
	now := a.now()

	return agentnet.AggregatedReputation{
		TotalBets:     local.TotalBets + external.TotalBets,
		WinningBets:   local.WinningBets + external.WinningBets,
		AccuracyScore: blendAccuracy(local, external, now),
		TrustScore:    trustScore(local, external, now),
		TotalVolume:   sumVolumes(local.TotalVolume, external.TotalVolume),
		ProfitLoss:    local.ProfitLoss + external.ProfitLoss,
		IsBanned:      local.IsBanned || external.IsBanned,
		Sources: agentnet.ReputationSources{
			Local:    local.TrustScore,
			External: external.TrustScore,
		},
	}
}

func (a *Aggregator) fetchOrZero(ctx context.Context, src Source, agentID, name string) agentnet.AgentReputation {
	if src == nil {
		return agentnet.ZeroReputation()
	}
	rep, err := src.Fetch(ctx, agentID)
	if err != nil {
		a.logger.Warnf("Reputation source %s unavailable for %s, using zero default: %v", name, agentID, err)
		return agentnet.ZeroReputation()
	}
	return rep
}

// smoothedAccuracy is the Beta(1,1)-smoothed win ratio: one pseudo-win and
// one pseudo-loss pull tiny samples toward 0.5 instead of trusting a
// "1 win / 1 bet = 100%" raw ratio.
func smoothedAccuracy(rep agentnet.AgentReputation) float64 {
	return (float64(rep.WinningBets) + 1) / (float64(rep.TotalBets) + 2)
}

// sourceWeight saturates at sampleSaturation observations and applies a
// recency bonus that fades linearly over recencyHorizon.
func sourceWeight(rep agentnet.AgentReputation, now time.Time) float64 {
	weight := math.Min(float64(rep.TotalBets)/sampleSaturation, 1)

	recency := 0.7
	if rep.LastUpdated != nil {
		age := now.Sub(*rep.LastUpdated)
		recency = 0.7 + 0.3*math.Max(0, 1-float64(age)/float64(recencyHorizon))
	}
	return weight * recency
}

// blendAccuracy returns the blended accuracy on the externally exposed
// 0-100 scale.
func blendAccuracy(local, external agentnet.AgentReputation, now time.Time) float64 {
	localHas := local.TotalBets > 0
	externalHas := external.TotalBets > 0

	switch {
	case !localHas && !externalHas:
		return 0
	case localHas && !externalHas:
		return smoothedAccuracy(local) * 100
	case !localHas && externalHas:
		return smoothedAccuracy(external) * 100
	}

	lw := sourceWeight(local, now)
	ew := sourceWeight(external, now)
	if lw+ew == 0 {
		return (smoothedAccuracy(local) + smoothedAccuracy(external)) / 2 * 100
	}
	blended := (smoothedAccuracy(local)*lw + smoothedAccuracy(external)*ew) / (lw + ew)
	return blended * 100
}

// trustScore combines four independent 0-100 signals with fixed weights.
// The division by the applied weight sum keeps the formula well defined if
// a factor were ever conditionally skipped.
func trustScore(local, external agentnet.AgentReputation, now time.Time) float64 {
	var score, weightSum float64

	score += weightAccuracy * accuracyFactor(local, external)
	weightSum += weightAccuracy

	score += weightVolume * volumeFactor(sumVolumes(local.TotalVolume, external.TotalVolume))
	weightSum += weightVolume

	score += weightConsistency * consistencyFactor(local, external)
	weightSum += weightConsistency

	score += weightTimeDecay * timeDecayFactor(local, external, now)
	weightSum += weightTimeDecay

	return score / weightSum
}

// accuracyFactor favors the local source 60/40. This is deliberately not
// the same blend as blendAccuracy: that one estimates accuracy, this one is
// a trust-relevant accuracy signal, and the two may diverge.
func accuracyFactor(local, external agentnet.AgentReputation) float64 {
	combined := (local.AccuracyScore*100*0.6 + external.AccuracyScore*100*0.4) / 2
	return math.Min(math.Max(combined, 0), 100)
}

// volumeFactor caps at the 1,000,000-unit reference scale; beyond that,
// more volume adds no further trust.
func volumeFactor(totalVolume string) float64 {
	volume, ok := new(big.Float).SetString(totalVolume)
	if !ok {
		return 0
	}
	v, _ := volume.Float64()
	return math.Min(100, v/volumeReference*100)
}

// consistencyFactor lowers trust when the two sources disagree about the
// same agent. Under 10 bets on both sides there is not enough data to
// judge, so it returns a neutral 50.
func consistencyFactor(local, external agentnet.AgentReputation) float64 {
	if local.TotalBets < 10 && external.TotalBets < 10 {
		return 50
	}
	avg := (local.AccuracyScore + external.AccuracyScore) / 2
	if avg == 0 {
		return 50
	}
	diff := math.Abs(local.AccuracyScore - external.AccuracyScore)
	return math.Max(0, 100-(diff/avg)*50)
}

// timeDecayFactor decays linearly to 0 over decayHorizon per source, then
// combines 60/40 local/external. A source that never reported decays fully.
func timeDecayFactor(local, external agentnet.AgentReputation, now time.Time) float64 {
	decay := func(lastUpdated *time.Time) float64 {
		if lastUpdated == nil {
			return 0
		}
		age := now.Sub(*lastUpdated)
		return math.Max(0, 1-float64(age)/float64(decayHorizon)) * 100
	}
	return decay(local.LastUpdated)*0.6 + decay(external.LastUpdated)*0.4
}

// sumVolumes adds two decimal-string volumes as arbitrary-precision
// integers. The values are wei-scale; float arithmetic would lose
// precision. Unparseable inputs count as 0.
func sumVolumes(a, b string) string {
	sum := new(big.Int)
	if v, ok := new(big.Int).SetString(a, 10); ok {
		sum.Add(sum, v)
	}
	if v, ok := new(big.Int).SetString(b, 10); ok {
		sum.Add(sum, v)
	}
	return sum.String()
}

// SyncReputation pushes the local reputation into the network as a feedback
// submission. Best effort: skipped silently when the local source has no
// activity to report.
func (a *Aggregator) SyncReputation(ctx context.Context, agentID string, sink FeedbackSink) error {
	local := a.fetchOrZero(ctx, a.local, agentID, "local")
	if local.TotalBets == 0 {
		a.logger.Debugf("Skipping reputation sync for %s: no local activity", agentID)
		return nil
	}

	accuracy := float64(local.WinningBets) / float64(local.TotalBets)
	rating := int(math.Round((accuracy - 0.5) * 10))
	if rating > 5 {
		rating = 5
	}
	if rating < -5 {
		rating = -5
	}

	fb := agent0.Feedback{
		TargetID: agentID,
		Rating:   rating,
		Comment:  fmt.Sprintf("Local record: %d bets, %d wins, %.1f%% accuracy", local.TotalBets, local.WinningBets, accuracy*100),
	}
	if err := sink.SubmitFeedback(ctx, fb); err != nil {
		return fmt.Errorf("failed to sync reputation for %s: %w", agentID, err)
	}

	a.collector.IncReputationSync()
	return nil
}
