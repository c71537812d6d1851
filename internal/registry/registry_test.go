package registry

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lalalune/babylon-sub000/internal/bus"
	"github.com/lalalune/babylon-sub000/pkg/agentnet"
)

func newTestRegistry() *LocalAgentRegistry {
	return NewLocalAgentRegistry(nil, logrus.New(), nil)
}

func profileWithStrategies(name string, strategies ...string) agentnet.AgentProfile {
	return agentnet.AgentProfile{
		Name:    name,
		Address: "0x" + name,
		Capabilities: agentnet.AgentCapabilities{
			Strategies: strategies,
			Markets:    []string{"prediction"},
			Actions:    []string{"bet"},
			Version:    "1.0.0",
		},
	}
}

func TestRegister_RequiresResolvedIdentity(t *testing.T) {
	r := newTestRegistry()

	err := r.Register(NewAgentSession("", profileWithStrategies("ghost")))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestRegister_NeutralTrustPrior(t *testing.T) {
	r := newTestRegistry()

	require.NoError(t, r.Register(NewAgentSession("agent-1", profileWithStrategies("a1", "momentum"))))

	entry, ok := r.Get("agent-1")
	require.True(t, ok)
	assert.Equal(t, 0.5, entry.Profile.Reputation.TrustScore)
	assert.Zero(t, entry.Profile.Reputation.TotalBets)
	assert.True(t, entry.Profile.IsActive)
}

func TestFindByStrategy_Scenario(t *testing.T) {
	r := newTestRegistry()

	require.NoError(t, r.Register(NewAgentSession("agent-1", profileWithStrategies("a1", "momentum"))))
	require.NoError(t, r.Register(NewAgentSession("agent-2", profileWithStrategies("a2", "momentum", "meanrev"))))

	momentum := r.FindByStrategy("momentum")
	assert.Len(t, momentum, 2)

	meanrev := r.FindByStrategy("meanrev")
	require.Len(t, meanrev, 1)
	assert.Equal(t, "agent-2", meanrev[0].Profile.AgentID)

	assert.Empty(t, r.FindByStrategy("unknown"))
}

func TestRegister_ReconnectReplacesSession(t *testing.T) {
	r := newTestRegistry()

	first := NewAgentSession("agent-x", profileWithStrategies("x", "momentum"))
	require.NoError(t, r.Register(first))

	// Reconnect with a new session and a changed strategy set.
	second := NewAgentSession("agent-x", profileWithStrategies("x", "meanrev"))
	require.NoError(t, r.Register(second))

	// The stale session no longer resolves and the index only reflects the
	// new profile.
	r.recordAnalysis(bus.SessionEvent{
		Type:      bus.EventAnalysisComplete,
		SessionID: first.ID(),
		Payload:   map[string]any{"confidence": 0.9},
	})
	entry, ok := r.Get("agent-x")
	require.True(t, ok)
	assert.Zero(t, entry.Performance.TotalPredictions)
	assert.Empty(t, r.FindByStrategy("momentum"))
	require.Len(t, r.FindByStrategy("meanrev"), 1)

	// Unregister, then deliver events addressed to both old sessions: each
	// must be a no-op, not a crash.
	r.Unregister("agent-x")
	r.recordAnalysis(bus.SessionEvent{
		Type:      bus.EventAnalysisComplete,
		SessionID: first.ID(),
		Payload:   map[string]any{"confidence": 0.9},
	})
	r.bumpCoalitions(bus.SessionEvent{
		Type:      bus.EventCoalitionJoined,
		SessionID: second.ID(),
	})
	_, ok = r.Get("agent-x")
	assert.False(t, ok)
}

func TestUnregister_IdempotentAndPrunesIndex(t *testing.T) {
	r := newTestRegistry()

	require.NoError(t, r.Register(NewAgentSession("agent-1", profileWithStrategies("a1", "momentum"))))

	r.Unregister("agent-1")
	_, ok := r.Get("agent-1")
	assert.False(t, ok)
	assert.Empty(t, r.FindByStrategy("momentum"))
	assert.NotContains(t, r.Stats().Strategies, "momentum")

	// Second call is a no-op.
	r.Unregister("agent-1")
	r.Unregister("never-existed")
}

func TestSearch_CriteriaAreANDed(t *testing.T) {
	r := newTestRegistry()

	require.NoError(t, r.Register(NewAgentSession("sharp", profileWithStrategies("sharp", "momentum"))))
	require.NoError(t, r.Register(NewAgentSession("dull", profileWithStrategies("dull", "momentum"))))

	// Give sharp a track record.
	for i := 0; i < 10; i++ {
		r.recordAnalysis(sessionEventFor(r, "sharp", 0.9))
	}
	correct := true
	for i := 0; i < 8; i++ {
		r.UpdatePerformance("sharp", PerformanceUpdate{CorrectPrediction: &correct})
	}

	results := r.Search(SearchCriteria{
		Strategies:     []string{"momentum"},
		MinAccuracy:    0.5,
		MinPerformance: 0.5,
	})
	require.Len(t, results, 1)
	assert.Equal(t, "sharp", results[0].Profile.AgentID)

	// Exclude list removes the only match.
	results = r.Search(SearchCriteria{
		Strategies: []string{"momentum"},
		Exclude:    []string{"sharp", "dull"},
	})
	assert.Empty(t, results)
}

func TestSearch_SortsByAccuracyThenRecency(t *testing.T) {
	r := newTestRegistry()

	require.NoError(t, r.Register(NewAgentSession("low", profileWithStrategies("low", "momentum"))))
	require.NoError(t, r.Register(NewAgentSession("high", profileWithStrategies("high", "momentum"))))

	correct := true
	r.recordAnalysis(sessionEventFor(r, "low", 0.5))
	r.recordAnalysis(sessionEventFor(r, "low", 0.5))
	r.UpdatePerformance("low", PerformanceUpdate{CorrectPrediction: &correct})

	r.recordAnalysis(sessionEventFor(r, "high", 0.5))
	r.UpdatePerformance("high", PerformanceUpdate{CorrectPrediction: &correct})

	results := r.Search(SearchCriteria{Strategies: []string{"momentum"}})
	require.Len(t, results, 2)
	assert.Equal(t, "high", results[0].Profile.AgentID)
	assert.Equal(t, "low", results[1].Profile.AgentID)
}

func TestFindCoalitionPartners(t *testing.T) {
	r := newTestRegistry()

	require.NoError(t, r.Register(NewAgentSession("me", profileWithStrategies("me", "momentum"))))
	require.NoError(t, r.Register(NewAgentSession("p1", profileWithStrategies("p1", "momentum"))))
	require.NoError(t, r.Register(NewAgentSession("p2", profileWithStrategies("p2", "momentum"))))
	require.NoError(t, r.Register(NewAgentSession("p3", profileWithStrategies("p3", "momentum"))))

	correct := true
	r.recordAnalysis(sessionEventFor(r, "p2", 0.5))
	r.UpdatePerformance("p2", PerformanceUpdate{CorrectPrediction: &correct})

	partners := r.FindCoalitionPartners("me", "momentum", 2)
	require.Len(t, partners, 2)
	assert.Equal(t, "p2", partners[0].Profile.AgentID)
	for _, partner := range partners {
		assert.NotEqual(t, "me", partner.Profile.AgentID)
	}
}

func TestRecordAnalysis_RunningMean(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register(NewAgentSession("agent-1", profileWithStrategies("a1", "momentum"))))

	for _, confidence := range []float64{0.4, 0.6, 0.8} {
		r.recordAnalysis(sessionEventFor(r, "agent-1", confidence))
	}

	entry, _ := r.Get("agent-1")
	assert.Equal(t, uint64(3), entry.Performance.TotalPredictions)
	assert.InDelta(t, 0.6, entry.Performance.AverageConfidence, 1e-9)
}

func TestUpdatePerformance_CountersAreAuthoritative(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register(NewAgentSession("agent-1", profileWithStrategies("a1", "momentum"))))

	r.recordAnalysis(sessionEventFor(r, "agent-1", 0.5))
	r.recordAnalysis(sessionEventFor(r, "agent-1", 0.5))

	correct := true
	delta := 0.9
	r.UpdatePerformance("agent-1", PerformanceUpdate{CorrectPrediction: &correct, ReputationChange: &delta})

	entry, _ := r.Get("agent-1")
	// 1 correct out of 2; the explicit delta is discarded once counters
	// exist.
	assert.InDelta(t, 0.5, entry.Profile.Reputation.AccuracyScore, 1e-9)
	assert.GreaterOrEqual(t, entry.Performance.TotalPredictions, entry.Performance.CorrectPredictions)
}

func TestUpdatePerformance_DeltaClampedWithoutPredictions(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register(NewAgentSession("agent-1", profileWithStrategies("a1", "momentum"))))

	delta := 2.5
	r.UpdatePerformance("agent-1", PerformanceUpdate{ReputationChange: &delta})
	entry, _ := r.Get("agent-1")
	assert.Equal(t, 1.0, entry.Profile.Reputation.AccuracyScore)

	negative := -9.0
	r.UpdatePerformance("agent-1", PerformanceUpdate{ReputationChange: &negative})
	entry, _ = r.Get("agent-1")
	assert.Equal(t, 0.0, entry.Profile.Reputation.AccuracyScore)
}

func TestUpdatePerformance_UnknownAgentIsNoOp(t *testing.T) {
	r := newTestRegistry()
	correct := true
	r.UpdatePerformance("nobody", PerformanceUpdate{CorrectPrediction: &correct})
}

func TestStats(t *testing.T) {
	r := newTestRegistry()

	require.NoError(t, r.Register(NewAgentSession("agent-1", profileWithStrategies("a1", "momentum"))))
	require.NoError(t, r.Register(NewAgentSession("agent-2", profileWithStrategies("a2", "momentum", "meanrev"))))

	r.recordAnalysis(sessionEventFor(r, "agent-1", 0.7))

	stats := r.Stats()
	assert.Equal(t, 2, stats.TotalAgents)
	assert.Equal(t, 2, stats.ActiveAgents)
	assert.Equal(t, uint64(1), stats.TotalPredictions)
	assert.Equal(t, 2, stats.Strategies["momentum"])
	assert.Equal(t, 1, stats.Strategies["meanrev"])
}

func TestDisconnectEventUnregisters(t *testing.T) {
	eventBus := bus.NewSessionBus(logrus.New())
	r := NewLocalAgentRegistry(eventBus, logrus.New(), nil)

	session := NewAgentSession("agent-1", profileWithStrategies("a1", "momentum"))
	require.NoError(t, r.Register(session))

	eventBus.Publish(bus.SessionEvent{Type: bus.EventAgentDisconnected, SessionID: session.ID()})
	eventBus.Stop()

	_, ok := r.Get("agent-1")
	assert.False(t, ok)
}

func TestSweepInactive(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register(NewAgentSession("stale", profileWithStrategies("stale", "momentum"))))

	r.mu.Lock()
	r.agents["stale"].LastActive = time.Now().Add(-time.Hour)
	r.mu.Unlock()

	swept := r.SweepInactive(30 * time.Minute)
	assert.Equal(t, []string{"stale"}, swept)
	_, ok := r.Get("stale")
	assert.False(t, ok)
}

// sessionEventFor builds an analysisComplete event addressed to the
// agent's current session.
func sessionEventFor(r *LocalAgentRegistry, agentID string, confidence float64) bus.SessionEvent {
	entry, _ := r.Get(agentID)
	return bus.SessionEvent{
		Type:      bus.EventAnalysisComplete,
		SessionID: entry.SessionID,
		Payload:   map[string]any{"confidence": confidence},
	}
}
