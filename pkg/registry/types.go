// Package registry holds the members and agents of a DAO instance.
// Members carry token-weighted voting power; agents carry capability tags,
// reputation and the performance history that feeds mission matching.
package registry

import (
	"errors"
	"slices"
	"time"
)

var (
	// ErrUnknownMember is returned when a member id is not registered.
	ErrUnknownMember = errors.New("registry: unknown member")
	// ErrUnknownAgent is returned when an agent id is not registered.
	ErrUnknownAgent = errors.New("registry: unknown agent")
	// ErrInvalidMember is returned when a member registration is malformed.
	ErrInvalidMember = errors.New("registry: invalid member")
	// ErrInvalidAgent is returned when an agent registration is malformed.
	ErrInvalidAgent = errors.New("registry: invalid agent")
)

const (
	// DefaultReputation is the starting reputation of every member and agent.
	DefaultReputation = 100.0
	// MinReputation and MaxReputation bound agent reputation.
	MinReputation = 0.0
	MaxReputation = 200.0
	// ColdStartScore is the capability score of a capability never exercised.
	ColdStartScore = 0.5
)

// VoteRecord is one entry of a member's voting history.
type VoteRecord struct {
	ProposalID string    `json:"proposal_id"`
	Support    bool      `json:"support"`
	Power      float64   `json:"power"`
	Timestamp  time.Time `json:"timestamp"`
}

// Member is a token holder with voting rights.
type Member struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	TokenBalance float64      `json:"token_balance"`
	Reputation   float64      `json:"reputation"`
	Votes        []VoteRecord `json:"votes,omitempty"`

	seq int
}

// VotingPower is token balance weighted by reputation.
func (m Member) VotingPower() float64 {
	return m.TokenBalance * (m.Reputation / 100.0)
}

func (m Member) clone() Member {
	m.Votes = slices.Clone(m.Votes)
	return m
}

// PerformanceRecord is appended to an agent once per resolved mission.
type PerformanceRecord struct {
	MissionID        string    `json:"mission_id"`
	Score            float64   `json:"score"`
	CapabilitiesUsed []string  `json:"capabilities_used"`
	Outcome          string    `json:"outcome"`
	Timestamp        time.Time `json:"timestamp"`
}

// Agent is a capability-bearing worker that missions are matched to.
type Agent struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Capabilities   CapabilitySet       `json:"capabilities"`
	Reputation     float64             `json:"reputation"`
	Stake          float64             `json:"stake"`
	Performance    []PerformanceRecord `json:"performance,omitempty"`
	ActiveMissions map[string]struct{} `json:"-"`
	Earnings       float64             `json:"earnings"`

	seq int
}

// Seq is the agent's registration order, used as the ranking tie-break.
func (a Agent) Seq() int { return a.seq }

// CanPerform reports whether the agent holds every required capability.
func (a Agent) CanPerform(required CapabilitySet) bool {
	return a.Capabilities.IsSuperset(required)
}

// OverlapRatio is |required ∩ capabilities| / |required|.
func (a Agent) OverlapRatio(required CapabilitySet) float64 {
	if len(required) == 0 {
		return 0
	}
	return float64(a.Capabilities.IntersectCount(required)) / float64(len(required))
}

// CapabilityScore averages the agent's past scores on missions that used the capability.
// An agent that never exercised the capability gets ColdStartScore; one that lacks it gets 0.
func (a Agent) CapabilityScore(capability string) float64 {
	if !a.Capabilities.Has(capability) {
		return 0
	}
	var sum float64
	var n int
	for _, rec := range a.Performance {
		if slices.Contains(rec.CapabilitiesUsed, capability) {
			sum += rec.Score
			n++
		}
	}
	if n == 0 {
		return ColdStartScore
	}
	return sum / float64(n)
}

// ActiveCount is the number of missions the agent is currently assigned to.
func (a Agent) ActiveCount() int { return len(a.ActiveMissions) }

// IsActiveOn reports whether the mission is in the agent's active set.
func (a Agent) IsActiveOn(missionID string) bool {
	_, ok := a.ActiveMissions[missionID]
	return ok
}

// AverageScore is the mean of all recorded performance scores, 0 without history.
func (a Agent) AverageScore() float64 {
	if len(a.Performance) == 0 {
		return 0
	}
	var sum float64
	for _, rec := range a.Performance {
		sum += rec.Score
	}
	return sum / float64(len(a.Performance))
}

func (a Agent) clone() Agent {
	a.Capabilities = slices.Clone(a.Capabilities)
	a.Performance = slices.Clone(a.Performance)
	active := make(map[string]struct{}, len(a.ActiveMissions))
	for id := range a.ActiveMissions {
		active[id] = struct{}{}
	}
	a.ActiveMissions = active
	return a
}

// ClampReputation bounds a reputation value to [MinReputation, MaxReputation].
func ClampReputation(r float64) float64 {
	return max(MinReputation, min(MaxReputation, r))
}
