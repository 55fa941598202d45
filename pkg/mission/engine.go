package mission

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/semanticarchitectures/Framework/pkg/config"
	"github.com/semanticarchitectures/Framework/pkg/eventlog"
	"github.com/semanticarchitectures/Framework/pkg/lock"
	"github.com/semanticarchitectures/Framework/pkg/registry"
)

// Engine owns missions and assigns agents to them.
type Engine struct {
	mu       sync.RWMutex
	missions map[string]*Mission
	order    []string

	registry *registry.Registry
	policy   config.Policy
	locker   lock.Locker
	sink     eventlog.Sink
	clock    func() time.Time
	logger   *slog.Logger
}

// NewEngine creates a mission engine over reg.
func NewEngine(reg *registry.Registry, policy config.Policy) *Engine {
	return &Engine{
		missions: make(map[string]*Mission),
		registry: reg,
		policy:   policy,
		locker:   lock.NewLocalLocker(),
		sink:     eventlog.Nop{},
		clock:    time.Now,
		logger:   slog.Default().With("component", "mission"),
	}
}

// WithLocker replaces the in-process locker, e.g. with a RedisLocker shared
// across processes. Set it before handing Locker to a simulator.
func (e *Engine) WithLocker(l lock.Locker) *Engine {
	e.locker = l
	return e
}

// WithSink routes mission events to s.
func (e *Engine) WithSink(s eventlog.Sink) *Engine {
	e.sink = s
	return e
}

// WithClock overrides the clock used for mission timestamps.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Locker exposes the locker so collaborators resolving a mission can lock
// the same keys.
func (e *Engine) Locker() lock.Locker {
	return e.locker
}

// Create registers a new mission in CREATED status.
func (e *Engine) Create(ctx context.Context, spec Spec) (string, error) {
	caps := registry.NewCapabilitySet(spec.RequiredCapabilities...)
	switch {
	case len(caps) == 0:
		return "", fmt.Errorf("%w: at least one required capability", ErrInvalidMission)
	case spec.Budget <= 0 || math.IsNaN(spec.Budget) || math.IsInf(spec.Budget, 0):
		return "", fmt.Errorf("%w: budget must be positive and finite", ErrInvalidMission)
	case spec.MaxAgents < 1:
		return "", fmt.Errorf("%w: max_agents must be at least 1", ErrInvalidMission)
	case spec.DeadlineDays < 0:
		return "", fmt.Errorf("%w: deadline_days must not be negative", ErrInvalidMission)
	}

	now := e.clock()
	m := &Mission{
		ProposalID:           spec.ProposalID,
		Title:                spec.Title,
		Description:          spec.Description,
		RequiredCapabilities: caps.Strings(),
		Budget:               spec.Budget,
		Deadline:             now.AddDate(0, 0, spec.DeadlineDays),
		MaxAgents:            spec.MaxAgents,
		AssignedAgents:       []string{},
		Status:               StatusCreated,
		CreatedAt:            now,
	}

	e.mu.Lock()
	for {
		m.ID = registry.NewID("mission")
		if _, exists := e.missions[m.ID]; !exists {
			break
		}
	}
	e.missions[m.ID] = m
	e.order = append(e.order, m.ID)
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "mission created", "mission_id", m.ID, "proposal_id", spec.ProposalID, "budget", spec.Budget)
	e.sink.Emit(ctx, "mission_created", map[string]any{
		"mission_id":   m.ID,
		"proposal_id":  spec.ProposalID,
		"title":        spec.Title,
		"budget":       spec.Budget,
		"capabilities": m.RequiredCapabilities,
		"max_agents":   spec.MaxAgents,
	})
	return m.ID, nil
}

// Rank scores the registered agents for a mission without assigning them.
func (e *Engine) Rank(m Mission) []Candidate {
	return Rank(registry.NewCapabilitySet(m.RequiredCapabilities...), e.registry.Agents(), e.policy.AvailabilityPenalty)
}

// AssignAgents selects up to MaxAgents of the best-ranked eligible agents.
// With no eligible agent it returns an empty slice and leaves the mission in
// CREATED status.
func (e *Engine) AssignAgents(ctx context.Context, id string) ([]string, error) {
	release, err := e.locker.Acquire(ctx, lock.MissionKey(id))
	if err != nil {
		return []string{}, err
	}
	defer release()

	m, err := e.Mission(id)
	if err != nil {
		return []string{}, err
	}
	if m.Status != StatusCreated {
		return []string{}, fmt.Errorf("%w: %s is %s", ErrMissionNotCreated, id, m.Status)
	}

	required := registry.NewCapabilitySet(m.RequiredCapabilities...)
	var eligible []string
	for _, a := range e.registry.Agents() {
		if a.CanPerform(required) {
			eligible = append(eligible, lock.AgentKey(a.ID))
		}
	}
	if len(eligible) == 0 {
		e.logger.WarnContext(ctx, "no eligible agents", "mission_id", id, "capabilities", m.RequiredCapabilities)
		return []string{}, nil
	}

	// Availability depends on agents' active missions, so rank under their locks.
	releaseAgents, err := e.locker.Acquire(ctx, eligible...)
	if err != nil {
		return []string{}, err
	}
	defer releaseAgents()

	ranked := e.Rank(m)
	if len(ranked) > m.MaxAgents {
		ranked = ranked[:m.MaxAgents]
	}
	selected := make([]string, len(ranked))
	for i, c := range ranked {
		selected[i] = c.AgentID
	}

	if err := m.transition(StatusInProgress); err != nil {
		return []string{}, err
	}
	m.AssignedAgents = selected

	err = e.registry.UpdateAgents(selected, func(a *registry.Agent) error {
		a.ActiveMissions[id] = struct{}{}
		return nil
	})
	if err != nil {
		return []string{}, err
	}
	e.commit(m)

	e.logger.InfoContext(ctx, "agents assigned", "mission_id", id, "agents", selected)
	e.sink.Emit(ctx, "agents_assigned", map[string]any{
		"mission_id": id,
		"agents":     selected,
		"scores":     ranked,
	})
	return selected, nil
}

// Resolve records a finished simulation and moves the mission to its
// terminal status. The caller must hold the mission lock.
func (e *Engine) Resolve(ctx context.Context, id string, results Results) (Mission, error) {
	m, err := e.Mission(id)
	if err != nil {
		return Mission{}, err
	}
	if m.Status != StatusInProgress {
		return Mission{}, fmt.Errorf("%w: %s is %s", ErrMissionNotInProgress, id, m.Status)
	}
	if err := m.transition(results.Outcome.Status()); err != nil {
		return Mission{}, err
	}
	r := results.clone()
	m.Progress = r.Progress
	m.Events = r.Events
	m.Results = &r
	e.commit(m)

	e.logger.InfoContext(ctx, "mission resolved", "mission_id", id, "outcome", results.Outcome, "progress", results.Progress)
	e.sink.Emit(ctx, "mission_completed", map[string]any{
		"mission_id":   id,
		"outcome":      string(results.Outcome),
		"progress":     results.Progress,
		"days_elapsed": results.DaysElapsed,
		"events":       len(results.Events),
	})
	return m.clone(), nil
}

// Mission returns a copy of the mission.
func (e *Engine) Mission(id string) (Mission, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.missions[id]
	if !ok {
		return Mission{}, fmt.Errorf("%w: %s", ErrUnknownMission, id)
	}
	return m.clone(), nil
}

// Missions returns copies of every mission in creation order.
func (e *Engine) Missions() []Mission {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Mission, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.missions[id].clone())
	}
	return out
}

// StatusCounts tallies missions per status.
func (e *Engine) StatusCounts() map[Status]int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	counts := make(map[Status]int)
	for _, m := range e.missions {
		counts[m.Status]++
	}
	return counts
}

func (m *Mission) transition(to Status) error {
	if !CanTransition(m.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.Status, to)
	}
	m.Status = to
	return nil
}

func (e *Engine) commit(m Mission) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := m.clone()
	e.missions[m.ID] = &c
}
