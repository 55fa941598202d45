package mission

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semanticarchitectures/Framework/pkg/config"
	"github.com/semanticarchitectures/Framework/pkg/eventlog"
	"github.com/semanticarchitectures/Framework/pkg/registry"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newEngine(reg *registry.Registry) (*Engine, *eventlog.Log) {
	log := eventlog.NewLog()
	e := NewEngine(reg, config.DefaultPolicy()).
		WithSink(log).
		WithClock(func() time.Time { return t0 })
	return e, log
}

func spec(caps ...string) Spec {
	return Spec{
		ProposalID:           "prop_1",
		Title:                "Analysis",
		RequiredCapabilities: caps,
		Budget:               5000,
		DeadlineDays:         30,
		MaxAgents:            3,
	}
}

func TestCanTransition(t *testing.T) {
	all := []Status{StatusCreated, StatusInProgress, StatusCompleted, StatusFailed}
	allowed := map[[2]Status]bool{
		{StatusCreated, StatusInProgress}:   true,
		{StatusInProgress, StatusCompleted}: true,
		{StatusInProgress, StatusFailed}:    true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, Classify(1.0))
	assert.Equal(t, OutcomeSuccess, Classify(1.35))
	assert.Equal(t, OutcomePartialSuccess, Classify(0.7))
	assert.Equal(t, OutcomePartialSuccess, Classify(0.999))
	assert.Equal(t, OutcomeFailure, Classify(0.6999))
	assert.Equal(t, StatusCompleted, OutcomePartialSuccess.Status())
	assert.Equal(t, StatusFailed, OutcomeFailure.Status())
}

func TestCreate(t *testing.T) {
	e, log := newEngine(registry.New())
	ctx := context.Background()

	id, err := e.Create(ctx, spec("Research", "data_analysis"))
	require.NoError(t, err)

	m, err := e.Mission(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, m.Status)
	assert.Equal(t, 0.0, m.Progress)
	assert.Equal(t, []string{"data_analysis", "research"}, m.RequiredCapabilities)
	assert.Equal(t, t0.AddDate(0, 0, 30), m.Deadline)
	assert.Equal(t, "prop_1", m.ProposalID)
	assert.Empty(t, m.AssignedAgents)
	assert.Equal(t, 1, log.CountByType()["mission_created"])
}

func TestCreate_Invalid(t *testing.T) {
	e, _ := newEngine(registry.New())
	ctx := context.Background()

	cases := map[string]Spec{
		"no capabilities": spec(),
		"zero budget":     func() Spec { s := spec("x"); s.Budget = 0; return s }(),
		"zero max agents": func() Spec { s := spec("x"); s.MaxAgents = 0; return s }(),
		"NaN budget":      func() Spec { s := spec("x"); s.Budget = math.NaN(); return s }(),
		"infinite budget": func() Spec { s := spec("x"); s.Budget = math.Inf(1); return s }(),
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := e.Create(ctx, s)
			assert.ErrorIs(t, err, ErrInvalidMission)
		})
	}
	assert.Empty(t, e.Missions())
}

func TestAssignAgents_CapabilitySuperset(t *testing.T) {
	reg := registry.New()
	agent, err := reg.RegisterAgent("Analyst", []string{"data_analysis", "research"}, 100)
	require.NoError(t, err)
	e, _ := newEngine(reg)
	ctx := context.Background()

	fits, err := e.Create(ctx, spec("data_analysis", "research"))
	require.NoError(t, err)
	tooWide, err := e.Create(ctx, spec("data_analysis", "research", "writing"))
	require.NoError(t, err)

	assigned, err := e.AssignAgents(ctx, fits)
	require.NoError(t, err)
	assert.Equal(t, []string{agent}, assigned)

	assigned, err = e.AssignAgents(ctx, tooWide)
	require.NoError(t, err)
	assert.Empty(t, assigned)
}

func TestAssignAgents_ZeroEligible(t *testing.T) {
	reg := registry.New()
	a, _ := reg.RegisterAgent("Writer", []string{"writing"}, 0)
	e, log := newEngine(reg)
	ctx := context.Background()

	id, err := e.Create(ctx, spec("smart_contracts"))
	require.NoError(t, err)

	assigned, err := e.AssignAgents(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, assigned)
	assert.Empty(t, assigned)

	m, _ := e.Mission(id)
	assert.Equal(t, StatusCreated, m.Status)
	agent, _ := reg.Agent(a)
	assert.Zero(t, agent.ActiveCount())
	assert.Zero(t, log.CountByType()["agents_assigned"])
}

func TestAssignAgents_StatusAndUnknown(t *testing.T) {
	reg := registry.New()
	_, _ = reg.RegisterAgent("A", []string{"x"}, 0)
	e, _ := newEngine(reg)
	ctx := context.Background()

	assigned, err := e.AssignAgents(ctx, "mission_missing")
	assert.ErrorIs(t, err, ErrUnknownMission)
	assert.Empty(t, assigned)

	id, _ := e.Create(ctx, spec("x"))
	_, err = e.AssignAgents(ctx, id)
	require.NoError(t, err)

	assigned, err = e.AssignAgents(ctx, id)
	assert.ErrorIs(t, err, ErrMissionNotCreated)
	assert.Empty(t, assigned)
}

func TestAssignAgents_TopMaxAgentsByScore(t *testing.T) {
	reg := registry.New()
	ctx := context.Background()
	names := []string{"a", "b", "c", "d", "e"}
	ids := make(map[string]string)
	for _, n := range names {
		id, err := reg.RegisterAgent(n, []string{"research"}, 0)
		require.NoError(t, err)
		ids[n] = id
	}
	// d and e get a higher reputation; c gets a strong research history.
	require.NoError(t, reg.UpdateAgents([]string{ids["d"], ids["e"]}, func(a *registry.Agent) error {
		a.Reputation = 150
		return nil
	}))
	require.NoError(t, reg.UpdateAgents([]string{ids["c"]}, func(a *registry.Agent) error {
		a.Performance = append(a.Performance, registry.PerformanceRecord{Score: 1.2, CapabilitiesUsed: []string{"research"}})
		return nil
	}))

	e, _ := newEngine(reg)
	id, _ := e.Create(ctx, spec("research"))
	assigned, err := e.AssignAgents(ctx, id)
	require.NoError(t, err)

	// d, e: 0.5*0.6 + 1.5*0.4 = 0.90; c: 1.2*0.6 + 0.4 = 1.12; a, b: 0.70.
	assert.Equal(t, []string{ids["c"], ids["d"], ids["e"]}, assigned)

	m, _ := e.Mission(id)
	assert.Equal(t, StatusInProgress, m.Status)
	assert.Equal(t, assigned, m.AssignedAgents)
	for _, n := range names {
		a, _ := reg.Agent(ids[n])
		assert.Equal(t, n == "c" || n == "d" || n == "e", a.IsActiveOn(id), n)
	}
}

func TestRank_BusyPenaltyAndTieBreak(t *testing.T) {
	reg := registry.New()
	first, _ := reg.RegisterAgent("first", []string{"x"}, 0)
	second, _ := reg.RegisterAgent("second", []string{"x"}, 0)
	third, _ := reg.RegisterAgent("third", []string{"x", "y"}, 0)
	require.NoError(t, reg.UpdateAgents([]string{first}, func(a *registry.Agent) error {
		a.ActiveMissions["mission_other"] = struct{}{}
		return nil
	}))

	ranked := Rank(registry.NewCapabilitySet("x"), reg.Agents(), 0.8)
	require.Len(t, ranked, 3)
	assert.Equal(t, []string{second, third, first}, []string{ranked[0].AgentID, ranked[1].AgentID, ranked[2].AgentID})
	assert.InDelta(t, 0.7, ranked[0].Score, 1e-12)
	assert.InDelta(t, 0.56, ranked[2].Score, 1e-12)
	assert.Equal(t, 0.8, ranked[2].Availability)
}

func TestAssignAgents_Deterministic(t *testing.T) {
	run := func() []string {
		reg := registry.New()
		ctx := context.Background()
		for _, n := range []string{"p", "q", "r", "s"} {
			_, err := reg.RegisterAgent(n, []string{"research", "writing"}, 0)
			require.NoError(t, err)
		}
		e, _ := newEngine(reg)
		id, _ := e.Create(ctx, spec("research"))
		assigned, err := e.AssignAgents(ctx, id)
		require.NoError(t, err)
		names := make([]string, len(assigned))
		for i, a := range assigned {
			agent, _ := reg.Agent(a)
			names[i] = agent.Name
		}
		return names
	}
	assert.Equal(t, []string{"p", "q", "r"}, run())
	assert.Equal(t, run(), run())
}

func TestResolve(t *testing.T) {
	reg := registry.New()
	_, _ = reg.RegisterAgent("A", []string{"x"}, 0)
	e, _ := newEngine(reg)
	ctx := context.Background()
	id, _ := e.Create(ctx, spec("x"))

	_, err := e.Resolve(ctx, id, Results{Outcome: OutcomeSuccess})
	assert.ErrorIs(t, err, ErrMissionNotInProgress)

	_, err = e.AssignAgents(ctx, id)
	require.NoError(t, err)

	res := Results{
		Outcome:  OutcomePartialSuccess,
		Progress: 0.82,
		Events:   []CoordinationEvent{{Day: 1, Kind: KindPlanning, Effectiveness: 0.6}},
	}
	m, err := e.Resolve(ctx, id, res)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, m.Status)
	assert.Equal(t, 0.82, m.Progress)
	assert.Len(t, m.Events, 1)
	require.NotNil(t, m.Results)

	_, err = e.Resolve(ctx, id, res)
	assert.ErrorIs(t, err, ErrMissionNotInProgress)
	assert.Equal(t, 1, e.StatusCounts()[StatusCompleted])
}
