package registry

import (
	"github.com/google/uuid"

	"github.com/lalalune/babylon-sub000/pkg/agentnet"
)

// AgentSession is a minimal Session implementation for callers that manage
// connections themselves (and for tests). Transport-backed sessions from
// the messaging layer satisfy the same interface.
type AgentSession struct {
	sessionID string
	agentID   string
	profile   agentnet.AgentProfile
}

// NewAgentSession mints a session with a fresh id for a resolved agent
// profile. AgentID may be empty when identity resolution has not completed;
// Register rejects such sessions.
func NewAgentSession(agentID string, profile agentnet.AgentProfile) *AgentSession {
	return &AgentSession{
		sessionID: uuid.NewString(),
		agentID:   agentID,
		profile:   profile,
	}
}

func (s *AgentSession) ID() string { return s.sessionID }

func (s *AgentSession) AgentID() string { return s.agentID }

func (s *AgentSession) Profile() agentnet.AgentProfile { return s.profile }
