// Package mission creates missions from approved proposals and matches
// them to capability-bearing agents.
package mission

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"
)

var (
	ErrUnknownMission       = errors.New("mission: unknown mission")
	ErrInvalidMission       = errors.New("mission: invalid mission")
	ErrInvalidTransition    = errors.New("mission: invalid status transition")
	ErrMissionNotCreated    = errors.New("mission: mission not in CREATED status")
	ErrMissionNotInProgress = errors.New("mission: mission not in IN_PROGRESS status")
)

// Status is the lifecycle status of a mission.
type Status int

const (
	StatusCreated Status = iota
	StatusInProgress
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "CREATED"
	case StatusInProgress:
		return "IN_PROGRESS"
	case StatusCompleted:
		return "COMPLETED"
	case StatusFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CanTransition reports whether a mission may move between statuses.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusCreated:
		return to == StatusInProgress
	case StatusInProgress:
		return to == StatusCompleted || to == StatusFailed
	case StatusCompleted, StatusFailed:
		return false
	default:
		return false
	}
}

// Terminal reports whether the mission is finished.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// EventKind tags a coordination event.
type EventKind int

const (
	KindPlanning EventKind = iota
	KindProblemSolving
	KindResourceSharing
)

// EventKinds lists every kind in draw order.
var EventKinds = []EventKind{KindPlanning, KindProblemSolving, KindResourceSharing}

func (k EventKind) String() string {
	switch k {
	case KindPlanning:
		return "planning"
	case KindProblemSolving:
		return "problem_solving"
	case KindResourceSharing:
		return "resource_sharing"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// CoordinationEvent is a collaboration among assigned agents that adds
// bonus progress on the day it happens.
type CoordinationEvent struct {
	Day           int       `json:"day"`
	Kind          EventKind `json:"kind"`
	Participants  []string  `json:"participants"`
	Effectiveness float64   `json:"effectiveness"`
}

// Outcome classifies a finished simulation.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomePartialSuccess Outcome = "partial_success"
	OutcomeFailure        Outcome = "failure"
)

const (
	// CompletionThreshold is the progress at which a mission is complete.
	CompletionThreshold = 1.0
	// PartialThreshold is the lowest progress still counted as completed.
	PartialThreshold = 0.7
)

// Classify maps final progress to an outcome.
func Classify(progress float64) Outcome {
	switch {
	case progress >= CompletionThreshold:
		return OutcomeSuccess
	case progress >= PartialThreshold:
		return OutcomePartialSuccess
	default:
		return OutcomeFailure
	}
}

// Status is the terminal mission status for the outcome.
func (o Outcome) Status() Status {
	if o == OutcomeFailure {
		return StatusFailed
	}
	return StatusCompleted
}

// Results is the execution record attached to a resolved mission.
type Results struct {
	Outcome       Outcome              `json:"outcome"`
	Progress      float64              `json:"progress"`
	DaysElapsed   int                  `json:"days_elapsed"`
	DaysBudgeted  int                  `json:"days_budgeted"`
	Contributions map[string][]float64 `json:"contributions"`
	Events        []CoordinationEvent  `json:"events"`
	CompletedAt   time.Time            `json:"completed_at"`
}

// TotalContribution sums an agent's daily contributions.
func (r Results) TotalContribution(agentID string) float64 {
	var sum float64
	for _, c := range r.Contributions[agentID] {
		sum += c
	}
	return sum
}

// AverageContribution is the mean of an agent's daily contributions.
func (r Results) AverageContribution(agentID string) float64 {
	series := r.Contributions[agentID]
	if len(series) == 0 {
		return 0
	}
	return r.TotalContribution(agentID) / float64(len(series))
}

func (r Results) clone() Results {
	r.Contributions = maps.Clone(r.Contributions)
	for k, v := range r.Contributions {
		r.Contributions[k] = slices.Clone(v)
	}
	r.Events = cloneEvents(r.Events)
	return r
}

// Spec describes a mission to create.
type Spec struct {
	ProposalID           string
	Title                string
	Description          string
	RequiredCapabilities []string
	Budget               float64
	DeadlineDays         int
	MaxAgents            int
}

// Mission is a funded unit of work.
type Mission struct {
	ID                   string              `json:"id"`
	ProposalID           string              `json:"proposal_id,omitempty"`
	Title                string              `json:"title"`
	Description          string              `json:"description"`
	RequiredCapabilities []string            `json:"required_capabilities"`
	Budget               float64             `json:"budget"`
	Deadline             time.Time           `json:"deadline"`
	MaxAgents            int                 `json:"max_agents"`
	AssignedAgents       []string            `json:"assigned_agents"`
	Status               Status              `json:"status"`
	Progress             float64             `json:"progress"`
	Events               []CoordinationEvent `json:"events"`
	Results              *Results            `json:"results,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
}

func (m Mission) clone() Mission {
	m.RequiredCapabilities = slices.Clone(m.RequiredCapabilities)
	m.AssignedAgents = slices.Clone(m.AssignedAgents)
	m.Events = cloneEvents(m.Events)
	if m.Results != nil {
		r := m.Results.clone()
		m.Results = &r
	}
	return m
}

func cloneEvents(events []CoordinationEvent) []CoordinationEvent {
	if events == nil {
		return nil
	}
	out := make([]CoordinationEvent, len(events))
	for i, e := range events {
		e.Participants = slices.Clone(e.Participants)
		out[i] = e
	}
	return out
}
