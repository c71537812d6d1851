package reputation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lalalune/babylon-sub000/internal/agent0"
	"github.com/lalalune/babylon-sub000/pkg/agentnet"
)

type stubSource struct {
	rep agentnet.AgentReputation
	err error
}

func (s *stubSource) Fetch(context.Context, string) (agentnet.AgentReputation, error) {
	return s.rep, s.err
}

type captureSink struct {
	feedback []agent0.Feedback
	err      error
}

func (c *captureSink) SubmitFeedback(_ context.Context, fb agent0.Feedback) error {
	c.feedback = append(c.feedback, fb)
	return c.err
}

func newTestAggregator(local, external Source) *Aggregator {
	return NewAggregator(local, external, logrus.New(), nil)
}

func timePtr(t time.Time) *time.Time { return &t }

func TestAggregate_SingleSourceUsesSmoothedAccuracy(t *testing.T) {
	a := newTestAggregator(nil, nil)

	local := agentnet.ZeroReputation()
	external := agentnet.AgentReputation{
		TotalBets:   20,
		WinningBets: 15,
		TotalVolume: "0",
		LastUpdated: timePtr(time.Now()),
	}

	result := a.Aggregate(local, external)

	// Beta(1,1)-smoothed: (15+1)/(20+2)*100, not an average with zero.
	assert.InDelta(t, 72.7, result.AccuracyScore, 0.1)
	assert.Equal(t, uint64(20), result.TotalBets)
	assert.Equal(t, uint64(15), result.WinningBets)
}

func TestAggregate_BothSourcesZeroBets(t *testing.T) {
	a := newTestAggregator(nil, nil)

	result := a.Aggregate(agentnet.ZeroReputation(), agentnet.ZeroReputation())

	assert.Zero(t, result.AccuracyScore)
	assert.Equal(t, "0", result.TotalVolume)
	assert.False(t, result.IsBanned)
}

func TestAggregate_WeightedBlendFavorsBiggerFresherSample(t *testing.T) {
	a := newTestAggregator(nil, nil)
	now := time.Now()

	// Large fresh sample at ~80% vs tiny stale sample at ~0%.
	local := agentnet.AgentReputation{
		TotalBets:   200,
		WinningBets: 160,
		TotalVolume: "0",
		LastUpdated: timePtr(now),
	}
	external := agentnet.AgentReputation{
		TotalBets:   2,
		WinningBets: 0,
		TotalVolume: "0",
		LastUpdated: timePtr(now.Add(-60 * 24 * time.Hour)),
	}

	result := a.Aggregate(local, external)

	localSmoothed := (160.0 + 1) / (200.0 + 2) * 100
	assert.Greater(t, result.AccuracyScore, 70.0)
	assert.Less(t, result.AccuracyScore, localSmoothed+0.001)
}

func TestAggregate_ScoresStayInRange(t *testing.T) {
	a := newTestAggregator(nil, nil)
	now := time.Now()

	cases := []struct {
		name            string
		local, external agentnet.AgentReputation
	}{
		{"zero", agentnet.ZeroReputation(), agentnet.ZeroReputation()},
		{"perfect", agentnet.AgentReputation{TotalBets: 1000, WinningBets: 1000, AccuracyScore: 1, TrustScore: 1, TotalVolume: "999999999999999999999999", LastUpdated: timePtr(now)},
			agentnet.AgentReputation{TotalBets: 1000, WinningBets: 1000, AccuracyScore: 1, TrustScore: 1, TotalVolume: "999999999999999999999999", LastUpdated: timePtr(now)}},
		{"lopsided", agentnet.AgentReputation{TotalBets: 50, WinningBets: 50, AccuracyScore: 1, TotalVolume: "0", LastUpdated: timePtr(now)},
			agentnet.AgentReputation{TotalBets: 50, WinningBets: 0, AccuracyScore: 0, TotalVolume: "0", LastUpdated: timePtr(now)}},
		{"stale", agentnet.AgentReputation{TotalBets: 5, WinningBets: 5, AccuracyScore: 1, TotalVolume: "10", LastUpdated: timePtr(now.Add(-365 * 24 * time.Hour))},
			agentnet.ZeroReputation()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := a.Aggregate(tc.local, tc.external)
			assert.GreaterOrEqual(t, result.AccuracyScore, 0.0)
			assert.LessOrEqual(t, result.AccuracyScore, 100.0)
			assert.GreaterOrEqual(t, result.TrustScore, 0.0)
			assert.LessOrEqual(t, result.TrustScore, 100.0)
		})
	}
}

func TestAggregate_VolumeSummedAsBigInt(t *testing.T) {
	a := newTestAggregator(nil, nil)

	local := agentnet.AgentReputation{TotalVolume: "123456789012345678901234567890"}
	external := agentnet.AgentReputation{TotalVolume: "876543210987654321098765432110"}

	result := a.Aggregate(local, external)
	assert.Equal(t, "1000000000000000000000000000000", result.TotalVolume)
}

func TestAggregate_InvalidVolumeTreatedAsZero(t *testing.T) {
	a := newTestAggregator(nil, nil)

	result := a.Aggregate(
		agentnet.AgentReputation{TotalVolume: "garbage"},
		agentnet.AgentReputation{TotalVolume: "100"},
	)
	assert.Equal(t, "100", result.TotalVolume)
}

func TestAggregate_BannedIsOR(t *testing.T) {
	a := newTestAggregator(nil, nil)

	result := a.Aggregate(
		agentnet.AgentReputation{TotalVolume: "0", IsBanned: true},
		agentnet.ZeroReputation(),
	)
	assert.True(t, result.IsBanned)
}

func TestAggregate_SourcesRecordInputTrust(t *testing.T) {
	a := newTestAggregator(nil, nil)

	result := a.Aggregate(
		agentnet.AgentReputation{TotalVolume: "0", TrustScore: 0.8},
		agentnet.AgentReputation{TotalVolume: "0", TrustScore: 0.3},
	)
	assert.Equal(t, 0.8, result.Sources.Local)
	assert.Equal(t, 0.3, result.Sources.External)
}

func TestGetAggregatedReputation_DegradedSource(t *testing.T) {
	local := &stubSource{err: errors.New("rpc down")}
	external := &stubSource{rep: agentnet.AgentReputation{
		TotalBets:   20,
		WinningBets: 15,
		TotalVolume: "0",
		LastUpdated: timePtr(time.Now()),
	}}
	a := newTestAggregator(local, external)

	result := a.GetAggregatedReputation(context.Background(), "0xabc")

	// Local failure degrades to the zero default instead of failing the
	// call.
	assert.InDelta(t, 72.7, result.AccuracyScore, 0.1)
	assert.Equal(t, uint64(20), result.TotalBets)
}

func TestConsistencyFactor(t *testing.T) {
	// Insufficient data on both sides is neutral.
	assert.Equal(t, 50.0, consistencyFactor(
		agentnet.AgentReputation{TotalBets: 5},
		agentnet.AgentReputation{TotalBets: 5},
	))

	// Perfect agreement.
	assert.Equal(t, 100.0, consistencyFactor(
		agentnet.AgentReputation{TotalBets: 50, AccuracyScore: 0.6},
		agentnet.AgentReputation{TotalBets: 50, AccuracyScore: 0.6},
	))

	// Maximal disagreement is floored at 0.
	assert.Equal(t, 0.0, consistencyFactor(
		agentnet.AgentReputation{TotalBets: 50, AccuracyScore: 0.9},
		agentnet.AgentReputation{TotalBets: 50, AccuracyScore: 0},
	))
}

func TestSyncReputation_SkipsWithoutActivity(t *testing.T) {
	local := &stubSource{rep: agentnet.ZeroReputation()}
	a := newTestAggregator(local, nil)
	sink := &captureSink{}

	require.NoError(t, a.SyncReputation(context.Background(), "0xabc", sink))
	assert.Empty(t, sink.feedback)
}

func TestSyncReputation_RatingClamped(t *testing.T) {
	cases := []struct {
		wins   uint64
		bets   uint64
		rating int
	}{
		{bets: 10, wins: 10, rating: 5},
		{bets: 10, wins: 0, rating: -5},
		{bets: 10, wins: 5, rating: 0},
		{bets: 10, wins: 7, rating: 2},
	}

	for _, tc := range cases {
		local := &stubSource{rep: agentnet.AgentReputation{
			TotalBets:   tc.bets,
			WinningBets: tc.wins,
			TotalVolume: "0",
		}}
		a := newTestAggregator(local, nil)
		sink := &captureSink{}

		require.NoError(t, a.SyncReputation(context.Background(), "0xabc", sink))
		require.Len(t, sink.feedback, 1)
		assert.Equal(t, tc.rating, sink.feedback[0].Rating)
		assert.Equal(t, "0xabc", sink.feedback[0].TargetID)
		assert.NotEmpty(t, sink.feedback[0].Comment)
	}
}

func TestSyncReputation_SinkErrorSurfaces(t *testing.T) {
	local := &stubSource{rep: agentnet.AgentReputation{TotalBets: 5, WinningBets: 3, TotalVolume: "0"}}
	a := newTestAggregator(local, nil)
	sink := &captureSink{err: errors.New("network down")}

	err := a.SyncReputation(context.Background(), "0xabc", sink)
	assert.Error(t, err)
}
