package main

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/semanticarchitectures/Framework/pkg/config"
	"github.com/semanticarchitectures/Framework/pkg/dao"
	"github.com/semanticarchitectures/Framework/pkg/execution"
	"github.com/semanticarchitectures/Framework/pkg/governance"
)

//go:embed scenarios/demo.yaml
var demoScenario []byte

// Scenario is a scripted simulation: who joins, what is proposed, how
// everyone votes and how long each funded mission runs.
type Scenario struct {
	Policy    *config.Policy     `yaml:"policy,omitempty"`
	Members   []ScenarioMember   `yaml:"members"`
	Agents    []ScenarioAgent    `yaml:"agents"`
	Proposals []ScenarioProposal `yaml:"proposals"`
}

type ScenarioMember struct {
	Name   string  `yaml:"name"`
	Tokens float64 `yaml:"tokens"`
}

type ScenarioAgent struct {
	Name         string   `yaml:"name"`
	Capabilities []string `yaml:"capabilities"`
	Stake        float64  `yaml:"stake"`
}

type ScenarioProposal struct {
	Proposer    string          `yaml:"proposer"`
	Title       string          `yaml:"title"`
	Description string          `yaml:"description"`
	Mission     ScenarioMission `yaml:"mission"`
	Votes       map[string]bool `yaml:"votes"`
	Days        int             `yaml:"days"`
}

type ScenarioMission struct {
	Title        string   `yaml:"title"`
	Capabilities []string `yaml:"capabilities"`
	Budget       float64  `yaml:"budget"`
	DeadlineDays int      `yaml:"deadline_days"`
	MaxAgents    int      `yaml:"max_agents"`
}

// loadScenario reads a scenario file, or the built-in demo when path is empty.
// A policy block overlays base.
func loadScenario(path string, base config.Policy) (*Scenario, error) {
	data := demoScenario
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil { //nolint:gosec // operator-supplied path
			return nil, fmt.Errorf("read scenario: %w", err)
		}
	}

	policy := base
	s := &Scenario{Policy: &policy}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if s.Policy == nil {
		s.Policy = &base
	}
	if err := s.Policy.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ProposalResult is what happened to one scripted proposal.
type ProposalResult struct {
	Title    string              `json:"title"`
	Decision governance.Decision `json:"decision"`
	Assigned []string            `json:"assigned,omitempty"`
	Report   *execution.Report   `json:"report,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// play drives d through the scenario. Unknown names are errors; engine
// rejections of a single proposal are recorded and the next one proceeds.
func (s *Scenario) play(ctx context.Context, d *dao.DAO, defaultDays int) ([]ProposalResult, error) {
	members := make(map[string]string, len(s.Members))
	for _, m := range s.Members {
		id, err := d.AddMember(ctx, m.Name, m.Tokens)
		if err != nil {
			return nil, fmt.Errorf("member %q: %w", m.Name, err)
		}
		members[m.Name] = id
	}
	for _, a := range s.Agents {
		if _, err := d.AddAgent(ctx, a.Name, a.Capabilities, a.Stake); err != nil {
			return nil, fmt.Errorf("agent %q: %w", a.Name, err)
		}
	}

	results := make([]ProposalResult, 0, len(s.Proposals))
	for _, p := range s.Proposals {
		proposer, ok := members[p.Proposer]
		if !ok {
			return nil, fmt.Errorf("proposal %q: unknown proposer %q", p.Title, p.Proposer)
		}
		res := ProposalResult{Title: p.Title}

		id, err := d.SubmitProposal(ctx, proposer, p.Title, p.Description, governance.MissionSpec{
			Title:                p.Mission.Title,
			Description:          p.Description,
			RequiredCapabilities: p.Mission.Capabilities,
			Budget:               p.Mission.Budget,
			DeadlineDays:         p.Mission.DeadlineDays,
			MaxAgents:            p.Mission.MaxAgents,
		})
		if err != nil {
			res.Error = err.Error()
			results = append(results, res)
			continue
		}

		// Ballots are cast in name order so a scenario replays identically.
		voters := make([]string, 0, len(p.Votes))
		for name := range p.Votes {
			voters = append(voters, name)
		}
		sort.Strings(voters)
		for _, name := range voters {
			voter, ok := members[name]
			if !ok {
				return nil, fmt.Errorf("proposal %q: unknown voter %q", p.Title, name)
			}
			if err := d.CastVote(ctx, id, voter, p.Votes[name]); err != nil {
				return nil, fmt.Errorf("proposal %q: vote by %q: %w", p.Title, name, err)
			}
		}

		res.Decision, err = d.FinalizeProposal(ctx, id)
		if err != nil {
			res.Error = err.Error()
			results = append(results, res)
			continue
		}
		if res.Decision.MissionID == "" {
			results = append(results, res)
			continue
		}

		res.Assigned, err = d.AssignAgents(ctx, res.Decision.MissionID)
		if err != nil {
			return nil, err
		}
		if len(res.Assigned) == 0 {
			res.Error = "no eligible agents"
			results = append(results, res)
			continue
		}

		days := p.Days
		if defaultDays > 0 {
			days = defaultDays
		}
		if days <= 0 {
			days = d.Policy().DefaultDeadlineDays
		}
		res.Report, err = d.RunMission(ctx, res.Decision.MissionID, days)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}
