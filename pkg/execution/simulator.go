// Package execution advances in-progress missions through simulated days
// and hands the outcome to the reward ledger.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/semanticarchitectures/Framework/pkg/config"
	"github.com/semanticarchitectures/Framework/pkg/eventlog"
	"github.com/semanticarchitectures/Framework/pkg/lock"
	"github.com/semanticarchitectures/Framework/pkg/mission"
	"github.com/semanticarchitectures/Framework/pkg/registry"
	"github.com/semanticarchitectures/Framework/pkg/rewards"
)

// ErrInvalidDays is returned when a run is asked for fewer than one day.
var ErrInvalidDays = errors.New("execution: days must be at least 1")

const (
	noiseFloor         = 0.8
	noiseSpan          = 0.4
	effectivenessFloor = 0.5
	effectivenessSpan  = 0.5
	maxParticipants    = 2
)

// Report is what a run produced and what it paid.
type Report struct {
	MissionID  string             `json:"mission_id"`
	Mission    mission.Mission    `json:"mission"`
	Results    mission.Results    `json:"results"`
	Settlement rewards.Settlement `json:"settlement"`
	Agents     []registry.Agent   `json:"agents"`
}

// Outcome is shorthand for the classified result.
func (r *Report) Outcome() mission.Outcome {
	return r.Results.Outcome
}

// Simulator runs missions. Runs touching disjoint agents may proceed in
// parallel; random draws are serialized so a seed fixes every run.
type Simulator struct {
	missions *mission.Engine
	registry *registry.Registry
	ledger   *rewards.Ledger
	policy   config.Policy

	rngMu sync.Mutex
	rng   Source

	locker lock.Locker
	sink   eventlog.Sink
	clock  func() time.Time
	logger *slog.Logger
}

// NewSimulator wires a simulator. It shares the mission engine's locker, so
// the engine's WithLocker must already have been applied. rng drives every
// daily draw.
func NewSimulator(missions *mission.Engine, reg *registry.Registry, ledger *rewards.Ledger, policy config.Policy, rng Source) *Simulator {
	return &Simulator{
		missions: missions,
		registry: reg,
		ledger:   ledger,
		policy:   policy,
		rng:      rng,
		locker:   missions.Locker(),
		sink:     eventlog.Nop{},
		clock:    time.Now,
		logger:   slog.Default().With("component", "execution"),
	}
}

// WithSink routes coordination events to sink.
func (s *Simulator) WithSink(sink eventlog.Sink) *Simulator {
	s.sink = sink
	return s
}

// WithClock overrides the clock that stamps mission completion.
func (s *Simulator) WithClock(clock func() time.Time) *Simulator {
	s.clock = clock
	return s
}

// Run simulates up to days days of work on an in-progress mission, then
// resolves it: mission status, agent reputation, earnings and the treasury
// are committed together under one lock. A cancelled context is checked
// between days and leaves everything untouched.
func (s *Simulator) Run(ctx context.Context, missionID string, days int) (*Report, error) {
	if days < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDays, days)
	}
	m, release, err := s.lockMission(ctx, missionID)
	if err != nil {
		return nil, err
	}
	defer release()

	if m.Status != mission.StatusInProgress {
		return nil, fmt.Errorf("%w: %s is %s", mission.ErrMissionNotInProgress, missionID, m.Status)
	}

	agents := make([]registry.Agent, 0, len(m.AssignedAgents))
	for _, id := range m.AssignedAgents {
		a, err := s.registry.Agent(id)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}

	results, err := s.simulate(ctx, m, agents, days)
	if err != nil {
		s.logger.WarnContext(ctx, "simulation cancelled", "mission_id", missionID, "error", err)
		return nil, err
	}

	settlement, err := s.ledger.Settle(ctx, agents, m, results)
	if err != nil {
		return nil, err
	}

	resolved, err := s.missions.Resolve(ctx, missionID, results)
	if err != nil {
		return nil, err
	}
	if err := s.registry.ReplaceAgents(settlement.Agents); err != nil {
		return nil, err
	}
	if err := s.ledger.Commit(ctx, settlement); err != nil {
		return nil, err
	}
	for _, ev := range results.Events {
		s.sink.Emit(ctx, "coordination_event", map[string]any{
			"mission_id":    missionID,
			"day":           ev.Day,
			"kind":          ev.Kind.String(),
			"participants":  ev.Participants,
			"effectiveness": ev.Effectiveness,
		})
	}

	return &Report{
		MissionID:  missionID,
		Mission:    resolved,
		Results:    results,
		Settlement: settlement,
		Agents:     settlement.Agents,
	}, nil
}

// lockMission acquires the mission, the treasury and every assigned agent.
// The agent set is read before locking, so it is compared again under the
// lock and the acquisition retried if an assignment landed in between.
func (s *Simulator) lockMission(ctx context.Context, missionID string) (mission.Mission, func(), error) {
	for {
		snapshot, err := s.missions.Mission(missionID)
		if err != nil {
			return mission.Mission{}, nil, err
		}
		keys := []string{lock.MissionKey(missionID), lock.TreasuryKey}
		for _, id := range snapshot.AssignedAgents {
			keys = append(keys, lock.AgentKey(id))
		}
		release, err := s.locker.Acquire(ctx, keys...)
		if err != nil {
			return mission.Mission{}, nil, err
		}

		m, err := s.missions.Mission(missionID)
		if err != nil {
			release()
			return mission.Mission{}, nil, err
		}
		if slices.Equal(m.AssignedAgents, snapshot.AssignedAgents) {
			return m, release, nil
		}
		release()
		s.logger.DebugContext(ctx, "assignment changed while locking, retrying", "mission_id", missionID)
	}
}

func (s *Simulator) simulate(ctx context.Context, m mission.Mission, agents []registry.Agent, days int) (mission.Results, error) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()

	required := registry.NewCapabilitySet(m.RequiredCapabilities...)
	results := mission.Results{
		DaysBudgeted:  days,
		Contributions: make(map[string][]float64, len(agents)),
		Events:        []mission.CoordinationEvent{},
	}
	for _, a := range agents {
		results.Contributions[a.ID] = []float64{}
	}

	progress := m.Progress
	for day := 1; day <= days; day++ {
		if err := ctx.Err(); err != nil {
			return mission.Results{}, err
		}

		var daily float64
		for _, a := range agents {
			noise := noiseFloor + noiseSpan*s.rng.Float64()
			c := (1.0 / float64(days)) * a.OverlapRatio(required) * (a.Reputation / 100) * noise
			results.Contributions[a.ID] = append(results.Contributions[a.ID], c)
			daily += c
		}

		if len(agents) > 0 && s.rng.Float64() < s.policy.CoordinationProbability {
			kind := mission.EventKinds[s.rng.IntN(len(mission.EventKinds))]
			participants := sample(s.rng, m.AssignedAgents, maxParticipants)
			effectiveness := effectivenessFloor + effectivenessSpan*s.rng.Float64()
			results.Events = append(results.Events, mission.CoordinationEvent{
				Day:           day,
				Kind:          kind,
				Participants:  participants,
				Effectiveness: effectiveness,
			})
			daily += s.policy.CoordinationBonus * effectiveness
			s.logger.DebugContext(ctx, "coordination event", "mission_id", m.ID, "day", day, "kind", kind, "effectiveness", effectiveness)
		}

		progress += daily
		results.DaysElapsed = day
		if progress >= mission.CompletionThreshold {
			break
		}
	}

	results.Progress = progress
	results.Outcome = mission.Classify(progress)
	results.CompletedAt = s.clock()
	return results, nil
}
