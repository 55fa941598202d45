package mission

import (
	"slices"

	"github.com/semanticarchitectures/Framework/pkg/registry"
)

const (
	capabilityWeight = 0.6
	reputationWeight = 0.4
)

// Candidate is an eligible agent with its assignment score.
type Candidate struct {
	AgentID         string  `json:"agent_id"`
	CapabilityScore float64 `json:"capability_score"`
	Reputation      float64 `json:"reputation"`
	Availability    float64 `json:"availability"`
	Score           float64 `json:"score"`
}

// Rank scores every agent whose capabilities cover required and orders them
// best first. Agents must be given in registration order; equal scores keep
// that order. busyPenalty multiplies the score of agents that already have
// an active mission.
func Rank(required registry.CapabilitySet, agents []registry.Agent, busyPenalty float64) []Candidate {
	out := make([]Candidate, 0, len(agents))
	for _, a := range agents {
		if !a.CanPerform(required) {
			continue
		}
		var capSum float64
		for _, c := range required {
			capSum += a.CapabilityScore(c)
		}
		avgCap := capSum / float64(len(required))

		availability := 1.0
		if a.ActiveCount() > 0 {
			availability = busyPenalty
		}
		out = append(out, Candidate{
			AgentID:         a.ID,
			CapabilityScore: avgCap,
			Reputation:      a.Reputation,
			Availability:    availability,
			Score:           (avgCap*capabilityWeight + a.Reputation/100*reputationWeight) * availability,
		})
	}
	slices.SortStableFunc(out, func(x, y Candidate) int {
		switch {
		case x.Score > y.Score:
			return -1
		case x.Score < y.Score:
			return 1
		default:
			return 0
		}
	})
	return out
}
