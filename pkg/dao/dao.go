// Package dao wires the registry, governance, mission, execution and reward
// engines into one simulation context. Each DAO owns its state; several may
// run side by side in one process.
package dao

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/semanticarchitectures/Framework/pkg/config"
	"github.com/semanticarchitectures/Framework/pkg/eventlog"
	"github.com/semanticarchitectures/Framework/pkg/execution"
	"github.com/semanticarchitectures/Framework/pkg/governance"
	"github.com/semanticarchitectures/Framework/pkg/lock"
	"github.com/semanticarchitectures/Framework/pkg/mission"
	"github.com/semanticarchitectures/Framework/pkg/observability"
	"github.com/semanticarchitectures/Framework/pkg/oracle"
	"github.com/semanticarchitectures/Framework/pkg/registry"
	"github.com/semanticarchitectures/Framework/pkg/rewards"
)

// Options configures New. The zero value runs the default policy with an
// in-memory event log, in-process locking and telemetry disabled.
type Options struct {
	Policy *config.Policy

	// Rand overrides the simulation source seeded from Policy.RandomSeed.
	Rand execution.Source
	// Locker defaults to a LocalLocker.
	Locker lock.Locker
	// EventStore, when set, receives a copy of every event log entry.
	EventStore eventlog.Store
	// Telemetry defaults to a disabled provider.
	Telemetry *observability.Provider
	// Verification gates reward payouts on the oracle aggregator.
	Verification bool
	Clock        func() time.Time
}

// DAO is one simulation context.
type DAO struct {
	policy     config.Policy
	registry   *registry.Registry
	governance *governance.Engine
	missions   *mission.Engine
	ledger     *rewards.Ledger
	simulator  *execution.Simulator
	events     *eventlog.Log
	telemetry  *observability.Provider
	logger     *slog.Logger
}

// New validates the policy and wires every engine.
func New(ctx context.Context, opts Options) (*DAO, error) {
	policy := config.DefaultPolicy()
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	locker := opts.Locker
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	rng := opts.Rand
	if rng == nil {
		rng = execution.NewSource(policy.RandomSeed)
	}

	telemetry := opts.Telemetry
	if telemetry == nil {
		cfg := observability.DefaultConfig()
		cfg.Enabled = false
		var err error
		if telemetry, err = observability.New(ctx, cfg); err != nil {
			return nil, err
		}
	}

	events := eventlog.NewLog().WithClock(clock)
	if opts.EventStore != nil {
		events = events.WithStore(opts.EventStore)
	}

	reg := registry.New()
	missions := mission.NewEngine(reg, policy).
		WithLocker(locker).
		WithSink(events).
		WithClock(clock)

	ledger := rewards.NewLedger(rewards.NewTreasury(policy.InitialTreasury)).
		WithSink(events).
		WithClock(clock)
	if opts.Verification {
		automated, err := oracle.NewMissionVerifier("oracle-1", execution.NewSource(policy.RandomSeed^0x0a))
		if err != nil {
			return nil, fmt.Errorf("init verifier: %w", err)
		}
		ledger = ledger.WithVerifier(&oracle.Aggregator{
			Automated: automated,
			Human:     oracle.NewHumanPanel(execution.NewSource(policy.RandomSeed ^ 0x0b)),
		}, rewards.DefaultDeliverables)
	}

	creator := governance.MissionCreatorFunc(func(ctx context.Context, proposalID string, spec governance.MissionSpec) (string, error) {
		return missions.Create(ctx, mission.Spec{
			ProposalID:           proposalID,
			Title:                spec.Title,
			Description:          spec.Description,
			RequiredCapabilities: spec.RequiredCapabilities,
			Budget:               spec.Budget,
			DeadlineDays:         spec.DeadlineDays,
			MaxAgents:            spec.MaxAgents,
		})
	})
	gov := governance.NewEngine(reg, creator, policy).
		WithTreasury(ledger.Treasury().Balance).
		WithLocker(locker).
		WithSink(events).
		WithClock(clock)
	if len(policy.AdmissionRules) > 0 {
		admission, err := governance.NewAdmissionPolicy(policy.AdmissionRules)
		if err != nil {
			return nil, err
		}
		gov = gov.WithAdmission(admission)
	}

	sim := execution.NewSimulator(missions, reg, ledger, policy, rng).
		WithSink(events).
		WithClock(clock)

	return &DAO{
		policy:     policy,
		registry:   reg,
		governance: gov,
		missions:   missions,
		ledger:     ledger,
		simulator:  sim,
		events:     events,
		telemetry:  telemetry,
		logger:     slog.Default().With("component", "dao"),
	}, nil
}

// Policy returns the parameters this DAO runs with.
func (d *DAO) Policy() config.Policy { return d.policy }

// AddMember registers a token holder.
func (d *DAO) AddMember(ctx context.Context, name string, tokens float64) (string, error) {
	_, done := d.telemetry.TrackOperation(ctx, "dao.add_member")
	id, err := d.registry.RegisterMember(name, tokens)
	done(err)
	return id, err
}

// AddAgent registers a worker agent.
func (d *DAO) AddAgent(ctx context.Context, name string, capabilities []string, stake float64) (string, error) {
	_, done := d.telemetry.TrackOperation(ctx, "dao.add_agent")
	id, err := d.registry.RegisterAgent(name, capabilities, stake)
	done(err)
	return id, err
}

// SubmitProposal opens a mission proposal for voting.
func (d *DAO) SubmitProposal(ctx context.Context, proposer, title, description string, spec governance.MissionSpec) (string, error) {
	ctx, done := d.telemetry.TrackOperation(ctx, "dao.submit_proposal")
	id, err := d.governance.SubmitProposal(ctx, proposer, title, description, spec)
	if err == nil {
		observability.AddSpanEvent(ctx, "proposal.created", observability.ProposalAttrs(id)...)
	}
	done(err)
	return id, err
}

// CastVote records a member's vote.
func (d *DAO) CastVote(ctx context.Context, proposalID, voter string, support bool) error {
	ctx, done := d.telemetry.TrackOperation(ctx, "dao.cast_vote", observability.VoteAttrs(proposalID, voter)...)
	err := d.governance.CastVote(ctx, proposalID, voter, support)
	done(err)
	return err
}

// FinalizeProposal closes voting. A passed proposal creates its mission; if
// that fails the decision still stands and ExecuteProposal retries.
func (d *DAO) FinalizeProposal(ctx context.Context, proposalID string) (governance.Decision, error) {
	ctx, done := d.telemetry.TrackOperation(ctx, "dao.finalize_proposal", observability.ProposalAttrs(proposalID)...)
	decision, err := d.governance.Finalize(ctx, proposalID)
	if err == nil || errors.Is(err, governance.ErrMissionCreation) {
		d.telemetry.RecordProposalFinalized(ctx, string(decision.Outcome))
	}
	done(err)
	return decision, err
}

// ExecuteProposal creates the mission of a succeeded proposal.
func (d *DAO) ExecuteProposal(ctx context.Context, proposalID string) (string, error) {
	ctx, done := d.telemetry.TrackOperation(ctx, "dao.execute_proposal", observability.ProposalAttrs(proposalID)...)
	id, err := d.governance.Execute(ctx, proposalID)
	done(err)
	return id, err
}

// AssignAgents staffs a created mission. An empty result leaves it created.
func (d *DAO) AssignAgents(ctx context.Context, missionID string) ([]string, error) {
	ctx, done := d.telemetry.TrackOperation(ctx, "dao.assign_agents", observability.MissionAttrs(missionID, 0)...)
	ids, err := d.missions.AssignAgents(ctx, missionID)
	done(err)
	return ids, err
}

// RunMission simulates and resolves an in-progress mission.
func (d *DAO) RunMission(ctx context.Context, missionID string, days int) (*execution.Report, error) {
	ctx, done := d.telemetry.TrackOperation(ctx, "dao.run_mission", observability.MissionAttrs(missionID, days)...)
	report, err := d.simulator.Run(ctx, missionID, days)
	if err == nil {
		d.telemetry.RecordMissionResolved(ctx, string(report.Outcome()))
		d.telemetry.RecordRewardsPaid(ctx, report.Settlement.Distribution.Paid)
		d.logger.InfoContext(ctx, "mission resolved",
			"mission_id", missionID,
			"outcome", report.Outcome(),
			"paid", report.Settlement.Distribution.Paid,
		)
	}
	done(err)
	return report, err
}

// Treasury returns the current treasury balance.
func (d *DAO) Treasury() float64 { return d.ledger.Treasury().Balance() }

// Read-only views over the engines. Every value returned is a copy.
func (d *DAO) Member(id string) (registry.Member, error)       { return d.registry.Member(id) }
func (d *DAO) Agent(id string) (registry.Agent, error)         { return d.registry.Agent(id) }
func (d *DAO) Members() []registry.Member                      { return d.registry.Members() }
func (d *DAO) Agents() []registry.Agent                        { return d.registry.Agents() }
func (d *DAO) Proposal(id string) (governance.Proposal, error) { return d.governance.Proposal(id) }
func (d *DAO) Proposals() []governance.Proposal                { return d.governance.Proposals() }
func (d *DAO) Mission(id string) (mission.Mission, error)      { return d.missions.Mission(id) }
func (d *DAO) Missions() []mission.Mission                     { return d.missions.Missions() }
func (d *DAO) Events() []eventlog.Entry                        { return d.events.Entries() }
func (d *DAO) VerifyEvents() error                             { return d.events.Verify() }
