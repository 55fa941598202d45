package dao

import (
	"github.com/semanticarchitectures/Framework/pkg/governance"
	"github.com/semanticarchitectures/Framework/pkg/mission"
)

// AgentStats summarises one agent's track record.
type AgentStats struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Reputation     float64 `json:"reputation"`
	Earnings       float64 `json:"earnings"`
	Completed      int     `json:"missions_completed"`
	AverageScore   float64 `json:"average_score"`
	ActiveMissions int     `json:"active_missions"`
}

// Stats is a point-in-time summary of the whole simulation.
type Stats struct {
	Treasury        float64                          `json:"treasury"`
	TreasuryPaid    float64                          `json:"treasury_paid"`
	Members         int                              `json:"members"`
	Agents          int                              `json:"agents"`
	Proposals       int                              `json:"proposals"`
	Missions        int                              `json:"missions"`
	ProposalStates  map[governance.ProposalState]int `json:"proposal_states"`
	MissionStatuses map[mission.Status]int           `json:"mission_statuses"`
	MissionOutcomes map[mission.Outcome]int          `json:"mission_outcomes"`
	AgentStats      []AgentStats                     `json:"agent_stats"`
	Events          int                              `json:"events"`
	EventHead       string                           `json:"event_head"`
}

// Stats collects counts and histograms across every engine.
func (d *DAO) Stats() Stats {
	missions := d.missions.Missions()
	outcomes := make(map[mission.Outcome]int)
	for _, m := range missions {
		if m.Results != nil {
			outcomes[m.Results.Outcome]++
		}
	}

	agents := d.registry.Agents()
	agentStats := make([]AgentStats, 0, len(agents))
	for _, a := range agents {
		agentStats = append(agentStats, AgentStats{
			ID:             a.ID,
			Name:           a.Name,
			Reputation:     a.Reputation,
			Earnings:       a.Earnings,
			Completed:      len(a.Performance),
			AverageScore:   a.AverageScore(),
			ActiveMissions: a.ActiveCount(),
		})
	}

	treasury := d.ledger.Treasury()
	return Stats{
		Treasury:        treasury.Balance(),
		TreasuryPaid:    treasury.Paid(),
		Members:         len(d.registry.Members()),
		Agents:          len(agents),
		Proposals:       len(d.governance.Proposals()),
		Missions:        len(missions),
		ProposalStates:  d.governance.StateCounts(),
		MissionStatuses: d.missions.StatusCounts(),
		MissionOutcomes: outcomes,
		AgentStats:      agentStats,
		Events:          d.events.Len(),
		EventHead:       d.events.Head(),
	}
}
