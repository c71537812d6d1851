package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lalalune/babylon-sub000/internal/bus"
	"github.com/lalalune/babylon-sub000/internal/metrics"
	"github.com/lalalune/babylon-sub000/pkg/agentnet"
)

// ErrNotConnected is returned when a session is registered before its agent
// identity has been resolved by the messaging layer.
var ErrNotConnected = errors.New("session has no resolved agent identity")

// ActivityWindow is how recently an agent must have been seen to count as
// active in Stats.
const ActivityWindow = 5 * time.Minute

// Session is the opaque handle to an agent connection owned by the
// messaging layer. The registry only needs the resolved identity and the
// profile the agent announced on connect.
type Session interface {
	ID() string
	AgentID() string
	Profile() agentnet.AgentProfile
}

// SearchCriteria are ANDed together. Strategies is an any-of overlap match
// against the agent's declared strategies.
type SearchCriteria struct {
	Strategies     []string
	MinAccuracy    float64
	MinPerformance float64
	Exclude        []string
}

// PerformanceUpdate carries an explicit performance signal for an agent.
type PerformanceUpdate struct {
	CorrectPrediction *bool
	ReputationChange  *float64
}

// Stats is an aggregate snapshot of the registry.
type Stats struct {
	TotalAgents       int            `json:"totalAgents"`
	ActiveAgents      int            `json:"activeAgents"`
	AverageReputation float64        `json:"averageReputation"`
	TotalPredictions  uint64         `json:"totalPredictions"`
	Strategies        map[string]int `json:"strategies"`
}

// LocalAgentRegistry tracks agents live in this process so other components
// can query them without faulting to the network. Mutation normally happens
// on the session bus dispatch loop; a mutex still guards the maps because
// callers may invoke the mutators directly.
type LocalAgentRegistry struct {
	mu            sync.RWMutex
	agents        map[string]*agentnet.RegisteredAgent
	sessionAgents map[string]string
	strategyIndex map[string]map[string]struct{}
	logger        *logrus.Logger
	collector     *metrics.Collector
}

func NewLocalAgentRegistry(eventBus *bus.SessionBus, logger *logrus.Logger, collector *metrics.Collector) *LocalAgentRegistry {
	if logger == nil {
		logger = logrus.New()
	}

	r := &LocalAgentRegistry{
		agents:        make(map[string]*agentnet.RegisteredAgent),
		sessionAgents: make(map[string]string),
		strategyIndex: make(map[string]map[string]struct{}),
		logger:        logger,
		collector:     collector,
	}

	if eventBus != nil {
		eventBus.SubscribeAll(r.handleSessionEvent)
	}

	return r
}

// Register adds a connected session to the registry. The session must
// already carry a resolved agent identity. The agent starts with a fresh
// reputation at the neutral 0.5 trust prior and is indexed under each of
// its declared strategies.
func (r *LocalAgentRegistry) Register(session Session) error {
	agentID := session.AgentID()
	if agentID == "" {
		return ErrNotConnected
	}

	profile := session.Profile()
	profile.AgentID = agentID
	if profile.Capabilities.Version == "" {
		profile.Capabilities = agentnet.ParseCapabilities(nil)
	}
	profile.Reputation = agentnet.DefaultReputation()
	profile.IsActive = true

	now := time.Now()
	entry := &agentnet.RegisteredAgent{
		SessionID:    session.ID(),
		Profile:      profile,
		RegisteredAt: now,
		LastActive:   now,
	}

	r.mu.Lock()
	// A reconnect replaces the previous session wholesale: its session
	// mapping and index entries must not outlive it.
	if prev, ok := r.agents[agentID]; ok {
		delete(r.sessionAgents, prev.SessionID)
		r.dropFromIndexLocked(agentID, prev.Profile.Capabilities.Strategies)
	}
	r.agents[agentID] = entry
	r.sessionAgents[session.ID()] = agentID
	for _, strategy := range profile.Capabilities.Strategies {
		bucket, ok := r.strategyIndex[strategy]
		if !ok {
			bucket = make(map[string]struct{})
			r.strategyIndex[strategy] = bucket
		}
		bucket[agentID] = struct{}{}
	}
	total := len(r.agents)
	r.mu.Unlock()

	r.collector.SetRegisteredAgents(total)
	r.logger.Infof("Registered agent %s (session %s) with strategies %v", agentID, session.ID(), profile.Capabilities.Strategies)

	return nil
}

// Unregister removes an agent. Unknown ids are a no-op; empty strategy
// buckets are pruned immediately so index iteration stays cheap.
func (r *LocalAgentRegistry) Unregister(agentID string) {
	r.mu.Lock()
	entry, ok := r.agents[agentID]
	if !ok {
		r.mu.Unlock()
		return
	}
	r.dropFromIndexLocked(agentID, entry.Profile.Capabilities.Strategies)
	delete(r.sessionAgents, entry.SessionID)
	delete(r.agents, agentID)
	total := len(r.agents)
	r.mu.Unlock()

	r.collector.SetRegisteredAgents(total)
	r.logger.Infof("Unregistered agent %s", agentID)
}

// Get returns a copy of the registry entry for an agent, if present.
func (r *LocalAgentRegistry) Get(agentID string) (agentnet.RegisteredAgent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.agents[agentID]
	if !ok {
		return agentnet.RegisteredAgent{}, false
	}
	return *entry, true
}

// Search returns agents matching every given criterion, sorted by accuracy
// descending with recency breaking ties.
func (r *LocalAgentRegistry) Search(criteria SearchCriteria) []agentnet.RegisteredAgent {
	excluded := make(map[string]struct{}, len(criteria.Exclude))
	for _, id := range criteria.Exclude {
		excluded[id] = struct{}{}
	}

	r.mu.RLock()
	results := make([]agentnet.RegisteredAgent, 0)
	for agentID, entry := range r.agents {
		if _, skip := excluded[agentID]; skip {
			continue
		}
		if len(criteria.Strategies) > 0 && !overlaps(entry.Profile.Capabilities.Strategies, criteria.Strategies) {
			continue
		}
		if entry.Profile.Reputation.AccuracyScore < criteria.MinAccuracy {
			continue
		}
		if performanceRatio(entry.Performance) < criteria.MinPerformance {
			continue
		}
		results = append(results, *entry)
	}
	r.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		ai, aj := results[i].Profile.Reputation.AccuracyScore, results[j].Profile.Reputation.AccuracyScore
		if ai != aj {
			return ai > aj
		}
		return results[i].LastActive.After(results[j].LastActive)
	})

	return results
}

// FindByStrategy returns every agent indexed under the given strategy.
func (r *LocalAgentRegistry) FindByStrategy(strategy string) []agentnet.RegisteredAgent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket, ok := r.strategyIndex[strategy]
	if !ok {
		return nil
	}
	results := make([]agentnet.RegisteredAgent, 0, len(bucket))
	for agentID := range bucket {
		if entry, ok := r.agents[agentID]; ok {
			results = append(results, *entry)
		}
	}
	return results
}

// FindCoalitionPartners ranks candidates for a coalition around the target
// strategy: everyone indexed under it except the requester, best accuracy
// first, truncated to maxPartners.
func (r *LocalAgentRegistry) FindCoalitionPartners(agentID, targetStrategy string, maxPartners int) []agentnet.RegisteredAgent {
	candidates := r.FindByStrategy(targetStrategy)

	filtered := candidates[:0]
	for _, candidate := range candidates {
		if candidate.Profile.AgentID != agentID {
			filtered = append(filtered, candidate)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Profile.Reputation.AccuracyScore > filtered[j].Profile.Reputation.AccuracyScore
	})

	if maxPartners > 0 && len(filtered) > maxPartners {
		filtered = filtered[:maxPartners]
	}
	return filtered
}

// UpdatePerformance applies an explicit performance signal. The raw
// prediction counters are the authoritative accuracy path: once an agent
// has predictions, accuracy is always recomputed from them and an explicit
// ReputationChange delta is discarded with a debug log. The delta only
// moves accuracy (clamped to [0,1]) while no predictions exist yet.
func (r *LocalAgentRegistry) UpdatePerformance(agentID string, update PerformanceUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.agents[agentID]
	if !ok {
		return
	}

	if update.CorrectPrediction != nil && *update.CorrectPrediction {
		entry.Performance.CorrectPredictions++
		entry.Profile.Reputation.WinningBets++
	}

	if entry.Performance.TotalPredictions > 0 {
		if update.ReputationChange != nil {
			r.logger.Debugf("Discarding reputation delta %.3f for %s: prediction counters are authoritative", *update.ReputationChange, agentID)
		}
		entry.Profile.Reputation.AccuracyScore = float64(entry.Performance.CorrectPredictions) / float64(entry.Performance.TotalPredictions)
	} else if update.ReputationChange != nil {
		entry.Profile.Reputation.AccuracyScore = clamp01(entry.Profile.Reputation.AccuracyScore + *update.ReputationChange)
	}

	entry.LastActive = time.Now()
}

// Stats aggregates counts over the whole registry. Active means seen within
// the last five minutes.
func (r *LocalAgentRegistry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		TotalAgents: len(r.agents),
		Strategies:  make(map[string]int, len(r.strategyIndex)),
	}

	now := time.Now()
	var reputationSum float64
	for _, entry := range r.agents {
		if now.Sub(entry.LastActive) < ActivityWindow {
			stats.ActiveAgents++
		}
		reputationSum += entry.Profile.Reputation.AccuracyScore
		stats.TotalPredictions += entry.Performance.TotalPredictions
	}
	if len(r.agents) > 0 {
		stats.AverageReputation = reputationSum / float64(len(r.agents))
	}
	for strategy, bucket := range r.strategyIndex {
		stats.Strategies[strategy] = len(bucket)
	}

	r.collector.SetActiveAgents(stats.ActiveAgents)

	return stats
}

// SweepInactive unregisters agents idle longer than olderThan and returns
// their ids.
func (r *LocalAgentRegistry) SweepInactive(olderThan time.Duration) []string {
	cutoff := time.Now().Add(-olderThan)

	r.mu.RLock()
	stale := make([]string, 0)
	for agentID, entry := range r.agents {
		if entry.LastActive.Before(cutoff) {
			stale = append(stale, agentID)
		}
	}
	r.mu.RUnlock()

	for _, agentID := range stale {
		r.logger.Infof("Sweeping inactive agent: %s", agentID)
		r.Unregister(agentID)
	}
	return stale
}

func (r *LocalAgentRegistry) handleSessionEvent(event bus.SessionEvent) {
	switch event.Type {
	case bus.EventAgentDisconnected:
		if agentID := r.agentForSession(event.SessionID); agentID != "" {
			r.Unregister(agentID)
		}
	case bus.EventAnalysisComplete:
		r.recordAnalysis(event)
	case bus.EventCoalitionJoined:
		r.bumpCoalitions(event)
	}
}

// recordAnalysis bumps the prediction counter and folds the reported
// confidence into the running mean: newAvg = (oldAvg*(n-1)+x)/n.
func (r *LocalAgentRegistry) recordAnalysis(event bus.SessionEvent) {
	confidence, _ := event.Payload["confidence"].(float64)

	r.mu.Lock()
	defer r.mu.Unlock()

	agentID, ok := r.sessionAgents[event.SessionID]
	if !ok {
		return
	}
	entry, ok := r.agents[agentID]
	if !ok {
		return
	}

	entry.Performance.TotalPredictions++
	entry.Profile.Reputation.TotalBets++
	n := float64(entry.Performance.TotalPredictions)
	entry.Performance.AverageConfidence = (entry.Performance.AverageConfidence*(n-1) + confidence) / n
	entry.LastActive = time.Now()
}

func (r *LocalAgentRegistry) bumpCoalitions(event bus.SessionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agentID, ok := r.sessionAgents[event.SessionID]
	if !ok {
		return
	}
	entry, ok := r.agents[agentID]
	if !ok {
		return
	}
	entry.Performance.CoalitionsJoined++
	entry.LastActive = time.Now()
}

// dropFromIndexLocked removes an agent from the given strategy buckets,
// pruning any bucket left empty. Caller holds the write lock.
func (r *LocalAgentRegistry) dropFromIndexLocked(agentID string, strategies []string) {
	for _, strategy := range strategies {
		if bucket, ok := r.strategyIndex[strategy]; ok {
			delete(bucket, agentID)
			if len(bucket) == 0 {
				delete(r.strategyIndex, strategy)
			}
		}
	}
}

func (r *LocalAgentRegistry) agentForSession(sessionID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessionAgents[sessionID]
}

func overlaps(declared, wanted []string) bool {
	for _, d := range declared {
		for _, w := range wanted {
			if d == w {
				return true
			}
		}
	}
	return false
}

func performanceRatio(p agentnet.AgentPerformance) float64 {
	if p.TotalPredictions == 0 {
		return 0
	}
	return float64(p.CorrectPredictions) / float64(p.TotalPredictions)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
