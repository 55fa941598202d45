// Package rewards scores agent performance after a mission and pays
// rewards out of the shared treasury.
//
// Settle stages every change on copies; Commit applies the treasury side.
// Callers hold the mission, agent and treasury locks across both.
package rewards

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/semanticarchitectures/Framework/pkg/eventlog"
	"github.com/semanticarchitectures/Framework/pkg/mission"
	"github.com/semanticarchitectures/Framework/pkg/oracle"
	"github.com/semanticarchitectures/Framework/pkg/registry"
)

const (
	successMultiplier = 1.2
	partialMultiplier = 1.1
	failureMultiplier = 1.0

	successPool = 1.0
	partialPool = 0.7

	reputationDecay = 0.9
	reputationGain  = 0.1
	reputationScale = 10.0
)

// Withheld reasons.
const (
	WithheldFailure        = "mission_failed"
	WithheldNoContribution = "no_contribution"
	WithheldUnverified     = "unverified"
	WithheldEmptyTreasury  = "treasury_empty"
)

// Distribution is the payout for one mission.
type Distribution struct {
	MissionID    string               `json:"mission_id"`
	Requested    float64              `json:"requested"`
	Pool         float64              `json:"pool"`
	Shares       map[string]float64   `json:"shares"`
	Paid         float64              `json:"paid"`
	Withheld     string               `json:"withheld,omitempty"`
	Verification *oracle.Verification `json:"verification,omitempty"`
}

// Settlement is the staged result of resolving a mission.
type Settlement struct {
	MissionID    string             `json:"mission_id"`
	Outcome      mission.Outcome    `json:"outcome"`
	Scores       map[string]float64 `json:"scores"`
	Agents       []registry.Agent   `json:"-"`
	Distribution Distribution       `json:"distribution"`
}

// DeliverablesFunc builds the verifier input for a resolved mission.
type DeliverablesFunc func(m mission.Mission, r mission.Results) (deliverables map[string]any, missionType string)

// Ledger applies performance updates and reward payouts.
type Ledger struct {
	treasury     *Treasury
	verifier     oracle.Verifier
	deliverables DeliverablesFunc
	sink         eventlog.Sink
	clock        func() time.Time
	logger       *slog.Logger
}

// NewLedger creates a ledger paying out of t. Without a verifier every
// successful mission is paid.
func NewLedger(t *Treasury) *Ledger {
	return &Ledger{
		treasury:     t,
		deliverables: DefaultDeliverables,
		sink:         eventlog.Nop{},
		clock:        time.Now,
		logger:       slog.Default().With("component", "rewards"),
	}
}

// WithVerifier gates payouts on a verifier verdict.
func (l *Ledger) WithVerifier(v oracle.Verifier, fn DeliverablesFunc) *Ledger {
	l.verifier = v
	if fn != nil {
		l.deliverables = fn
	}
	return l
}

// WithSink routes reward events to s.
func (l *Ledger) WithSink(s eventlog.Sink) *Ledger {
	l.sink = s
	return l
}

// WithClock overrides the clock that stamps performance records.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

// Treasury returns the treasury the ledger pays from.
func (l *Ledger) Treasury() *Treasury {
	return l.treasury
}

// PerformanceScore normalizes an agent's mean daily contribution by team
// size, caps it at 1 and applies the outcome multiplier.
func PerformanceScore(avgContribution float64, agentCount int, outcome mission.Outcome) float64 {
	score := min(1.0, avgContribution*float64(agentCount))
	switch outcome {
	case mission.OutcomeSuccess:
		return score * successMultiplier
	case mission.OutcomePartialSuccess:
		return score * partialMultiplier
	default:
		return score * failureMultiplier
	}
}

// NextReputation is a damped moving average bounded to [0, 200].
func NextReputation(current, score float64) float64 {
	raw := current*reputationDecay + (current+(score-0.5)*reputationScale)*reputationGain
	return registry.ClampReputation(raw)
}

// UpdatePerformance returns staged copies of agents with a new performance
// record, updated reputation and the mission removed from their active set.
func (l *Ledger) UpdatePerformance(agents []registry.Agent, m mission.Mission, r mission.Results) ([]registry.Agent, map[string]float64) {
	now := l.clock()
	staged := make([]registry.Agent, 0, len(agents))
	scores := make(map[string]float64, len(agents))
	for _, a := range agents {
		score := PerformanceScore(r.AverageContribution(a.ID), len(agents), r.Outcome)
		a.Performance = append(slices.Clip(a.Performance), registry.PerformanceRecord{
			MissionID:        m.ID,
			Score:            score,
			CapabilitiesUsed: slices.Clone(m.RequiredCapabilities),
			Outcome:          string(r.Outcome),
			Timestamp:        now,
		})
		a.Reputation = NextReputation(a.Reputation, score)
		a.ActiveMissions = maps.Clone(a.ActiveMissions)
		delete(a.ActiveMissions, m.ID)
		staged = append(staged, a)
		scores[a.ID] = score
	}
	return staged, scores
}

// DistributeRewards computes each agent's share of the reward pool in
// proportion to its summed contribution, and credits earnings on staged
// copies. The pool is capped at the remaining treasury balance.
func (l *Ledger) DistributeRewards(ctx context.Context, agents []registry.Agent, m mission.Mission, r mission.Results) (Distribution, []registry.Agent) {
	d := Distribution{MissionID: m.ID, Shares: map[string]float64{}}
	staged := slices.Clone(agents)

	switch r.Outcome {
	case mission.OutcomeSuccess:
		d.Requested = m.Budget * successPool
	case mission.OutcomePartialSuccess:
		d.Requested = m.Budget * partialPool
	default:
		d.Withheld = WithheldFailure
		return d, staged
	}

	var total float64
	for _, a := range agents {
		total += r.TotalContribution(a.ID)
	}
	if total <= 0 {
		d.Withheld = WithheldNoContribution
		return d, staged
	}

	if l.verifier != nil {
		deliverables, missionType := l.deliverables(m, r)
		v, err := l.verifier.Verify(ctx, m.ID, deliverables, missionType)
		switch {
		case errors.Is(err, oracle.ErrUnsupportedMissionType):
			l.logger.DebugContext(ctx, "mission type not verifiable", "mission_id", m.ID, "mission_type", missionType)
		case err != nil:
			l.logger.WarnContext(ctx, "verification failed", "mission_id", m.ID, "error", err)
			d.Withheld = WithheldUnverified
			return d, staged
		default:
			d.Verification = &v
			if !v.Verified {
				d.Withheld = WithheldUnverified
				return d, staged
			}
		}
	}

	d.Pool = d.Requested
	if balance := l.treasury.Balance(); d.Pool > balance {
		l.logger.WarnContext(ctx, "reward pool capped by treasury", "mission_id", m.ID, "requested", d.Requested, "balance", balance)
		d.Pool = balance
	}
	if d.Pool <= 0 {
		d.Withheld = WithheldEmptyTreasury
		return d, staged
	}

	for i := range staged {
		share := d.Pool * (r.TotalContribution(staged[i].ID) / total)
		staged[i].Earnings += share
		d.Shares[staged[i].ID] = share
		d.Paid += share
	}
	return d, staged
}

// Settle stages the performance update and the reward distribution.
func (l *Ledger) Settle(ctx context.Context, agents []registry.Agent, m mission.Mission, r mission.Results) (Settlement, error) {
	if err := ctx.Err(); err != nil {
		return Settlement{}, err
	}
	staged, scores := l.UpdatePerformance(agents, m, r)
	d, staged := l.DistributeRewards(ctx, staged, m, r)
	return Settlement{
		MissionID:    m.ID,
		Outcome:      r.Outcome,
		Scores:       scores,
		Agents:       staged,
		Distribution: d,
	}, nil
}

// Commit withdraws the settled payout from the treasury.
func (l *Ledger) Commit(ctx context.Context, s Settlement) error {
	d := s.Distribution
	if d.Paid > 0 {
		if err := l.treasury.Withdraw(d.Paid); err != nil {
			return err
		}
	}

	for _, a := range s.Agents {
		l.sink.Emit(ctx, "performance_recorded", map[string]any{
			"mission_id": s.MissionID,
			"agent_id":   a.ID,
			"score":      s.Scores[a.ID],
			"reputation": a.Reputation,
		})
	}
	if d.Withheld != "" {
		l.logger.InfoContext(ctx, "rewards withheld", "mission_id", s.MissionID, "reason", d.Withheld)
		l.sink.Emit(ctx, "rewards_withheld", map[string]any{
			"mission_id": s.MissionID,
			"reason":     d.Withheld,
		})
		return nil
	}
	l.logger.InfoContext(ctx, "rewards distributed", "mission_id", s.MissionID, "paid", d.Paid, "treasury", l.treasury.Balance())
	l.sink.Emit(ctx, "rewards_distributed", map[string]any{
		"mission_id": s.MissionID,
		"pool":       d.Pool,
		"paid":       d.Paid,
		"shares":     d.Shares,
	})
	return nil
}

// DefaultDeliverables derives a deliverable summary from the execution
// record. The mission type is the first required capability that a
// verifier profile exists for.
func DefaultDeliverables(m mission.Mission, r mission.Results) (map[string]any, string) {
	missionType := ""
	for _, c := range m.RequiredCapabilities {
		if slices.Contains(oracle.SupportedTypes(), c) {
			missionType = c
			break
		}
	}
	return map[string]any{
		"mission_id":   m.ID,
		"outcome":      string(r.Outcome),
		"progress":     r.Progress,
		"contributors": slices.Sorted(maps.Keys(r.Contributions)),
		"capabilities": m.RequiredCapabilities,
	}, missionType
}
