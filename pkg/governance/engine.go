package governance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/semanticarchitectures/Framework/pkg/config"
	"github.com/semanticarchitectures/Framework/pkg/eventlog"
	"github.com/semanticarchitectures/Framework/pkg/lock"
	"github.com/semanticarchitectures/Framework/pkg/registry"
)

// MissionCreator turns an approved proposal into a mission.
type MissionCreator interface {
	CreateFromProposal(ctx context.Context, proposalID string, spec MissionSpec) (missionID string, err error)
}

// MissionCreatorFunc adapts a function to MissionCreator.
type MissionCreatorFunc func(ctx context.Context, proposalID string, spec MissionSpec) (string, error)

func (f MissionCreatorFunc) CreateFromProposal(ctx context.Context, proposalID string, spec MissionSpec) (string, error) {
	return f(ctx, proposalID, spec)
}

// Engine runs the proposal lifecycle.
type Engine struct {
	mu        sync.RWMutex
	proposals map[string]*Proposal
	order     []string

	registry  *registry.Registry
	missions  MissionCreator
	policy    config.Policy
	admission *AdmissionPolicy
	treasury  func() float64
	locker    lock.Locker
	sink      eventlog.Sink
	clock     func() time.Time
	logger    *slog.Logger
}

// NewEngine creates a governance engine with an in-process locker and no event sink.
func NewEngine(reg *registry.Registry, missions MissionCreator, policy config.Policy) *Engine {
	return &Engine{
		proposals: make(map[string]*Proposal),
		registry:  reg,
		missions:  missions,
		policy:    policy,
		treasury:  func() float64 { return policy.InitialTreasury },
		locker:    lock.NewLocalLocker(),
		sink:      eventlog.Nop{},
		clock:     time.Now,
		logger:    slog.Default().With("component", "governance"),
	}
}

// WithAdmission installs CEL admission rules evaluated on submit.
func (e *Engine) WithAdmission(a *AdmissionPolicy) *Engine {
	e.admission = a
	return e
}

// WithTreasury supplies the balance exposed to admission rules.
func (e *Engine) WithTreasury(balance func() float64) *Engine {
	e.treasury = balance
	return e
}

// WithLocker overrides the locker.
func (e *Engine) WithLocker(l lock.Locker) *Engine {
	e.locker = l
	return e
}

// WithSink sets the event sink.
func (e *Engine) WithSink(s eventlog.Sink) *Engine {
	e.sink = s
	return e
}

// WithClock overrides clock for testing.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// SubmitProposal registers a new proposal and opens it for voting.
func (e *Engine) SubmitProposal(ctx context.Context, proposer, title, description string, spec MissionSpec) (string, error) {
	if _, err := e.registry.Member(proposer); err != nil {
		return "", err
	}
	spec = spec.WithDefaults(e.policy)
	if err := spec.Validate(); err != nil {
		return "", err
	}
	if err := e.admission.Admit(ctx, proposer, title, spec, e.treasury()); err != nil {
		e.logger.WarnContext(ctx, "proposal denied", "proposer", proposer, "title", title, "error", err)
		return "", err
	}

	now := e.clock()
	p := &Proposal{
		Proposer:    proposer,
		Title:       title,
		Description: description,
		Mission:     spec,
		VotingStart: now,
		VotingEnd:   now.AddDate(0, 0, e.policy.VotingPeriodDays),
		State:       StatePending,
		Votes:       make(map[string]Vote),
		CreatedAt:   now,
	}
	// Voting opens on submission; the window is advisory.
	if err := p.transition(StateActive); err != nil {
		return "", err
	}

	e.mu.Lock()
	for {
		p.ID = registry.NewID("prop")
		if _, exists := e.proposals[p.ID]; !exists {
			break
		}
	}
	e.proposals[p.ID] = p
	e.order = append(e.order, p.ID)
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "proposal submitted", "proposal_id", p.ID, "proposer", proposer, "budget", spec.Budget)
	e.sink.Emit(ctx, "proposal_created", map[string]any{
		"proposal_id":  p.ID,
		"proposer":     proposer,
		"title":        title,
		"budget":       spec.Budget,
		"capabilities": spec.RequiredCapabilities,
		"voting_end":   p.VotingEnd,
	})
	return p.ID, nil
}

// CastVote records a member's ballot with the voting power they hold now.
// A member may vote once per proposal.
func (e *Engine) CastVote(ctx context.Context, proposalID, voter string, support bool) error {
	release, err := e.locker.Acquire(ctx, lock.ProposalKey(proposalID), lock.MemberKey(voter))
	if err != nil {
		return err
	}
	defer release()

	staged, err := e.active(proposalID)
	if err != nil {
		return err
	}
	member, err := e.registry.Member(voter)
	if err != nil {
		return err
	}
	if staged.HasVoted(voter) {
		return fmt.Errorf("%w: %s on %s", ErrAlreadyVoted, voter, proposalID)
	}

	now := e.clock()
	power := member.VotingPower()
	staged.Votes[voter] = Vote{Support: support, Power: power, Timestamp: now}
	if support {
		staged.ForVotes += power
	} else {
		staged.AgainstVotes += power
	}

	err = e.registry.UpdateMember(voter, func(m *registry.Member) error {
		m.Votes = append(m.Votes, registry.VoteRecord{
			ProposalID: proposalID,
			Support:    support,
			Power:      power,
			Timestamp:  now,
		})
		return nil
	})
	if err != nil {
		return err
	}
	e.commit(staged)

	e.logger.DebugContext(ctx, "vote cast", "proposal_id", proposalID, "voter", voter, "support", support, "power", power)
	e.sink.Emit(ctx, "vote_cast", map[string]any{
		"proposal_id": proposalID,
		"voter":       voter,
		"support":     support,
		"power":       power,
	})
	return nil
}

// Finalize closes voting and applies the quorum and success thresholds.
// A passing proposal is executed immediately by creating its mission.
// Finalizing a proposal that is not ACTIVE fails without mutation. If the
// proposal passes but mission creation fails, the Decision still reports
// Passed and the error wraps ErrMissionCreation.
func (e *Engine) Finalize(ctx context.Context, proposalID string) (Decision, error) {
	release, err := e.locker.Acquire(ctx, lock.ProposalKey(proposalID))
	if err != nil {
		return Decision{ProposalID: proposalID}, err
	}
	defer release()

	staged, err := e.active(proposalID)
	if err != nil {
		return Decision{ProposalID: proposalID}, err
	}

	totalPower := e.registry.TotalVotingPower()
	totalVotes := staged.TotalVotes()
	d := Decision{
		ProposalID:   proposalID,
		ForVotes:     staged.ForVotes,
		AgainstVotes: staged.AgainstVotes,
		TotalPower:   totalPower,
	}

	switch {
	case totalVotes < totalPower*e.policy.QuorumFraction:
		d.Outcome = OutcomeQuorumNotMet
	case staged.ForVotes > staged.AgainstVotes && staged.ForVotes > totalVotes*e.policy.SuccessFraction:
		d.Outcome = OutcomePassed
	default:
		d.Outcome = OutcomeRejected
	}

	if d.Outcome != OutcomePassed {
		if err := staged.transition(StateDefeated); err != nil {
			return d, err
		}
		e.commit(staged)
		d.State = staged.State
		e.logger.InfoContext(ctx, "proposal defeated", "proposal_id", proposalID, "outcome", d.Outcome)
		e.sink.Emit(ctx, "proposal_finalized", map[string]any{
			"proposal_id": proposalID,
			"passed":      false,
			"outcome":     string(d.Outcome),
		})
		return d, nil
	}

	if err := staged.transition(StateSucceeded); err != nil {
		return d, err
	}
	e.commit(staged)
	d.Passed = true
	e.sink.Emit(ctx, "proposal_finalized", map[string]any{
		"proposal_id": proposalID,
		"passed":      true,
		"outcome":     string(d.Outcome),
	})

	missionID, err := e.execute(ctx, staged)
	if err != nil {
		d.State = StateSucceeded
		return d, err
	}
	d.State = StateExecuted
	d.MissionID = missionID
	return d, nil
}

// Execute retries mission creation for a SUCCEEDED proposal whose first
// execution attempt failed.
func (e *Engine) Execute(ctx context.Context, proposalID string) (string, error) {
	release, err := e.locker.Acquire(ctx, lock.ProposalKey(proposalID))
	if err != nil {
		return "", err
	}
	defer release()

	staged, err := e.Proposal(proposalID)
	if err != nil {
		return "", err
	}
	if !CanTransition(staged.State, StateExecuted) {
		return "", fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, staged.State, StateExecuted)
	}
	return e.execute(ctx, staged)
}

// execute must be called with the proposal lock held. On failure the proposal
// stays SUCCEEDED so execution can be retried.
func (e *Engine) execute(ctx context.Context, staged Proposal) (string, error) {
	missionID, err := e.missions.CreateFromProposal(ctx, staged.ID, staged.Mission)
	if err != nil {
		e.logger.ErrorContext(ctx, "mission creation failed", "proposal_id", staged.ID, "error", err)
		return "", errors.Join(ErrMissionCreation, err)
	}
	if err := staged.transition(StateExecuted); err != nil {
		return "", err
	}
	staged.MissionID = missionID
	e.commit(staged)

	e.logger.InfoContext(ctx, "proposal executed", "proposal_id", staged.ID, "mission_id", missionID)
	e.sink.Emit(ctx, "proposal_executed", map[string]any{
		"proposal_id": staged.ID,
		"mission_id":  missionID,
	})
	return missionID, nil
}

// Proposal returns a copy of the proposal.
func (e *Engine) Proposal(id string) (Proposal, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.proposals[id]
	if !ok {
		return Proposal{}, fmt.Errorf("%w: %s", ErrUnknownProposal, id)
	}
	return p.clone(), nil
}

// Proposals returns copies of every proposal in submission order.
func (e *Engine) Proposals() []Proposal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Proposal, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.proposals[id].clone())
	}
	return out
}

// StateCounts tallies proposals per lifecycle state.
func (e *Engine) StateCounts() map[ProposalState]int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	counts := make(map[ProposalState]int)
	for _, p := range e.proposals {
		counts[p.State]++
	}
	return counts
}

func (e *Engine) active(id string) (Proposal, error) {
	p, err := e.Proposal(id)
	if err != nil {
		return Proposal{}, err
	}
	if p.State != StateActive {
		return Proposal{}, fmt.Errorf("%w: %s is %s", ErrProposalNotActive, id, p.State)
	}
	return p, nil
}

func (e *Engine) commit(p Proposal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := p.clone()
	e.proposals[p.ID] = &c
}
