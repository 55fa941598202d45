// Package governance implements the proposal lifecycle and token-weighted
// voting of the DAO. An approved proposal is converted into a mission
// through a MissionCreator supplied by the caller.
package governance

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/semanticarchitectures/Framework/pkg/config"
	"github.com/semanticarchitectures/Framework/pkg/registry"
)

var (
	ErrUnknownProposal    = errors.New("governance: unknown proposal")
	ErrProposalNotActive  = errors.New("governance: proposal not active")
	ErrAlreadyVoted       = errors.New("governance: member already voted")
	ErrInvalidTransition  = errors.New("governance: invalid state transition")
	ErrInvalidMissionSpec = errors.New("governance: invalid mission spec")
	ErrAdmissionDenied    = errors.New("governance: admission denied")
	ErrMissionCreation    = errors.New("governance: mission creation failed")
)

// ProposalState is the lifecycle state of a proposal.
type ProposalState int

const (
	StatePending ProposalState = iota
	StateActive
	StateSucceeded
	StateDefeated
	StateExecuted
)

func (s ProposalState) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateActive:
		return "ACTIVE"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateDefeated:
		return "DEFEATED"
	case StateExecuted:
		return "EXECUTED"
	default:
		return fmt.Sprintf("ProposalState(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON and YAML output.
func (s ProposalState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CanTransition reports whether a proposal may move from one state to another.
// States only move forward; DEFEATED and EXECUTED are terminal.
func CanTransition(from, to ProposalState) bool {
	switch from {
	case StatePending:
		return to == StateActive
	case StateActive:
		return to == StateSucceeded || to == StateDefeated
	case StateSucceeded:
		return to == StateExecuted
	case StateDefeated, StateExecuted:
		return false
	default:
		return false
	}
}

// Terminal reports whether no further transition is possible.
func (s ProposalState) Terminal() bool {
	return s == StateDefeated || s == StateExecuted
}

// MissionSpec is the mission embedded in a proposal.
type MissionSpec struct {
	Title                string   `json:"title" yaml:"title"`
	Description          string   `json:"description" yaml:"description"`
	RequiredCapabilities []string `json:"required_capabilities" yaml:"required_capabilities"`
	Budget               float64  `json:"budget" yaml:"budget"`
	DeadlineDays         int      `json:"deadline_days" yaml:"deadline_days"`
	MaxAgents            int      `json:"max_agents" yaml:"max_agents"`
}

// WithDefaults fills zero-valued optional fields from the policy.
func (s MissionSpec) WithDefaults(p config.Policy) MissionSpec {
	if s.DeadlineDays == 0 {
		s.DeadlineDays = p.DefaultDeadlineDays
	}
	if s.MaxAgents == 0 {
		s.MaxAgents = p.DefaultMaxAgents
	}
	s.RequiredCapabilities = registry.NewCapabilitySet(s.RequiredCapabilities...).Strings()
	return s
}

// Validate checks that s describes a mission that can be created.
func (s MissionSpec) Validate() error {
	switch {
	case len(registry.NewCapabilitySet(s.RequiredCapabilities...)) == 0:
		return fmt.Errorf("%w: at least one required capability", ErrInvalidMissionSpec)
	case s.Budget <= 0 || math.IsNaN(s.Budget) || math.IsInf(s.Budget, 0):
		return fmt.Errorf("%w: budget must be positive and finite, got %v", ErrInvalidMissionSpec, s.Budget)
	case s.DeadlineDays < 1:
		return fmt.Errorf("%w: deadline_days must be at least 1, got %d", ErrInvalidMissionSpec, s.DeadlineDays)
	case s.MaxAgents < 1:
		return fmt.Errorf("%w: max_agents must be at least 1, got %d", ErrInvalidMissionSpec, s.MaxAgents)
	}
	return nil
}

// Vote is a single member's recorded ballot.
type Vote struct {
	Support   bool      `json:"support"`
	Power     float64   `json:"power"`
	Timestamp time.Time `json:"timestamp"`
}

// Proposal is a funding request voted on by members.
type Proposal struct {
	ID           string          `json:"id"`
	Proposer     string          `json:"proposer"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Mission      MissionSpec     `json:"mission"`
	VotingStart  time.Time       `json:"voting_start"`
	VotingEnd    time.Time       `json:"voting_end"`
	State        ProposalState   `json:"state"`
	ForVotes     float64         `json:"for_votes"`
	AgainstVotes float64         `json:"against_votes"`
	Votes        map[string]Vote `json:"votes"`
	MissionID    string          `json:"mission_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// TotalVotes is the voting power that participated.
func (p Proposal) TotalVotes() float64 {
	return p.ForVotes + p.AgainstVotes
}

// HasVoted reports whether the member has already cast a ballot.
func (p Proposal) HasVoted(memberID string) bool {
	_, ok := p.Votes[memberID]
	return ok
}

func (p *Proposal) transition(to ProposalState) error {
	if !CanTransition(p.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.State, to)
	}
	p.State = to
	return nil
}

func (p Proposal) clone() Proposal {
	p.Votes = maps.Clone(p.Votes)
	p.Mission.RequiredCapabilities = slices.Clone(p.Mission.RequiredCapabilities)
	return p
}

// Outcome names why a finalization ended the way it did.
type Outcome string

const (
	OutcomePassed       Outcome = "passed"
	OutcomeQuorumNotMet Outcome = "quorum_not_met"
	OutcomeRejected     Outcome = "rejected"
)

// Decision is the result of finalizing a proposal.
type Decision struct {
	ProposalID   string        `json:"proposal_id"`
	Passed       bool          `json:"passed"`
	Outcome      Outcome       `json:"outcome,omitempty"`
	State        ProposalState `json:"state"`
	ForVotes     float64       `json:"for_votes"`
	AgainstVotes float64       `json:"against_votes"`
	TotalPower   float64       `json:"total_power"`
	MissionID    string        `json:"mission_id,omitempty"`
}
