package execution

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semanticarchitectures/Framework/pkg/config"
	"github.com/semanticarchitectures/Framework/pkg/eventlog"
	"github.com/semanticarchitectures/Framework/pkg/lock"
	"github.com/semanticarchitectures/Framework/pkg/mission"
	"github.com/semanticarchitectures/Framework/pkg/registry"
	"github.com/semanticarchitectures/Framework/pkg/rewards"
)

// scripted replays fixed draws. onFloat, if set, runs before each Float64.
type scripted struct {
	floats  []float64
	ints    []int
	onFloat func(n int)
	calls   int
}

func (s *scripted) Float64() float64 {
	s.calls++
	if s.onFloat != nil {
		s.onFloat(s.calls)
	}
	if len(s.floats) == 0 {
		return 0.5
	}
	f := s.floats[0]
	s.floats = s.floats[1:]
	return f
}

func (s *scripted) IntN(n int) int {
	if len(s.ints) == 0 {
		return 0
	}
	i := s.ints[0]
	s.ints = s.ints[1:]
	return i % n
}

type harness struct {
	reg      *registry.Registry
	missions *mission.Engine
	treasury *rewards.Treasury
	sim      *Simulator
	log      *eventlog.Log
}

func newHarness(rng Source) *harness {
	reg := registry.New()
	policy := config.DefaultPolicy()
	log := eventlog.NewLog()
	missions := mission.NewEngine(reg, policy).WithSink(log)
	treasury := rewards.NewTreasury(policy.InitialTreasury)
	ledger := rewards.NewLedger(treasury).WithSink(log)
	sim := NewSimulator(missions, reg, ledger, policy, rng).
		WithSink(log).
		WithClock(func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) })
	return &harness{reg: reg, missions: missions, treasury: treasury, sim: sim, log: log}
}

func (h *harness) staffed(t *testing.T, reputations ...float64) (string, []string) {
	t.Helper()
	ctx := context.Background()
	var ids []string
	for _, rep := range reputations {
		id, err := h.reg.RegisterAgent("agent", []string{"research"}, 0)
		require.NoError(t, err)
		r := rep
		require.NoError(t, h.reg.UpdateAgents([]string{id}, func(a *registry.Agent) error {
			a.Reputation = r
			return nil
		}))
		ids = append(ids, id)
	}
	mid, err := h.missions.Create(ctx, mission.Spec{
		Title:                "Research sprint",
		RequiredCapabilities: []string{"research"},
		Budget:               5000,
		DeadlineDays:         30,
		MaxAgents:            len(reputations),
	})
	require.NoError(t, err)
	assigned, err := h.missions.AssignAgents(ctx, mid)
	require.NoError(t, err)
	require.Len(t, assigned, len(reputations))
	return mid, assigned
}

func TestRun_SingleDayPinnedNoiseSucceeds(t *testing.T) {
	h := newHarness(&scripted{floats: []float64{0.5, 0.9}})
	mid, agents := h.staffed(t, 100)

	report, err := h.sim.Run(context.Background(), mid, 1)
	require.NoError(t, err)

	assert.Equal(t, mission.OutcomeSuccess, report.Outcome())
	assert.Equal(t, 1.0, report.Results.Progress)
	assert.Equal(t, []float64{1.0}, report.Results.Contributions[agents[0]])
	assert.Empty(t, report.Results.Events)
	assert.Equal(t, 1, report.Results.DaysElapsed)

	m, _ := h.missions.Mission(mid)
	assert.Equal(t, mission.StatusCompleted, m.Status)
	assert.Equal(t, 1.0, m.Progress)
	require.NotNil(t, m.Results)

	a, _ := h.reg.Agent(agents[0])
	assert.InDelta(t, 100.7, a.Reputation, 1e-9)
	assert.InDelta(t, 5000.0, a.Earnings, 1e-9)
	assert.False(t, a.IsActiveOn(mid))
	require.Len(t, a.Performance, 1)
	assert.InDelta(t, 1.2, a.Performance[0].Score, 1e-9)

	assert.InDelta(t, 995_000.0, h.treasury.Balance(), 1e-9)
	require.NoError(t, h.log.Verify())
}

func TestRun_CoordinationEventAndEarlyStop(t *testing.T) {
	rng := &scripted{
		floats: []float64{
			0.5, 0.5, 0.1, 0.5, // day 1: two noises, coordination hit, effectiveness
			0.5, 0.5, 0.9, // day 2: two noises, no coordination
		},
		ints: []int{2, 1, 0},
	}
	h := newHarness(rng)
	mid, agents := h.staffed(t, 100, 100)

	report, err := h.sim.Run(context.Background(), mid, 4)
	require.NoError(t, err)

	require.Len(t, report.Results.Events, 1)
	ev := report.Results.Events[0]
	assert.Equal(t, mission.KindResourceSharing, ev.Kind)
	assert.Equal(t, 1, ev.Day)
	assert.Equal(t, []string{agents[1], agents[0]}, ev.Participants)
	assert.InDelta(t, 0.75, ev.Effectiveness, 1e-12)

	// 0.25 + 0.25 + 0.1*0.75 on day 1, 0.5 on day 2.
	assert.InDelta(t, 1.075, report.Results.Progress, 1e-12)
	assert.Equal(t, 2, report.Results.DaysElapsed)
	assert.Len(t, report.Results.Contributions[agents[0]], 2)
	assert.Equal(t, mission.OutcomeSuccess, report.Outcome())
	assert.Equal(t, 1, h.log.CountByType()["coordination_event"])
}

func TestRun_PartialAndFailure(t *testing.T) {
	t.Run("partial", func(t *testing.T) {
		h := newHarness(&scripted{floats: []float64{0, 0.9}})
		mid, agents := h.staffed(t, 100)
		report, err := h.sim.Run(context.Background(), mid, 1)
		require.NoError(t, err)
		assert.Equal(t, mission.OutcomePartialSuccess, report.Outcome())
		assert.InDelta(t, 3500.0, report.Settlement.Distribution.Paid, 1e-9)

		m, _ := h.missions.Mission(mid)
		assert.Equal(t, mission.StatusCompleted, m.Status)
		a, _ := h.reg.Agent(agents[0])
		assert.InDelta(t, 3500.0, a.Earnings, 1e-9)
	})

	t.Run("failure", func(t *testing.T) {
		h := newHarness(&scripted{floats: []float64{0, 0.9}})
		mid, agents := h.staffed(t, 50)
		report, err := h.sim.Run(context.Background(), mid, 1)
		require.NoError(t, err)
		assert.Equal(t, mission.OutcomeFailure, report.Outcome())
		assert.InDelta(t, 0.4, report.Results.Progress, 1e-12)
		assert.Equal(t, rewards.WithheldFailure, report.Settlement.Distribution.Withheld)

		m, _ := h.missions.Mission(mid)
		assert.Equal(t, mission.StatusFailed, m.Status)
		a, _ := h.reg.Agent(agents[0])
		assert.Zero(t, a.Earnings)
		assert.Len(t, a.Performance, 1)
		assert.False(t, a.IsActiveOn(mid))
		assert.Equal(t, 1_000_000.0, h.treasury.Balance())
	})
}

func TestRun_Errors(t *testing.T) {
	h := newHarness(NewSource(1))
	ctx := context.Background()

	_, err := h.sim.Run(ctx, "mission_missing", 3)
	assert.ErrorIs(t, err, mission.ErrUnknownMission)

	mid, err := h.missions.Create(ctx, mission.Spec{RequiredCapabilities: []string{"x"}, Budget: 1, MaxAgents: 1})
	require.NoError(t, err)
	_, err = h.sim.Run(ctx, mid, 3)
	assert.ErrorIs(t, err, mission.ErrMissionNotInProgress)

	_, err = h.sim.Run(ctx, mid, 0)
	assert.ErrorIs(t, err, ErrInvalidDays)

	staffed, _ := h.staffed(t, 100)
	_, err = h.sim.Run(ctx, staffed, 30)
	require.NoError(t, err)
	_, err = h.sim.Run(ctx, staffed, 30)
	assert.ErrorIs(t, err, mission.ErrMissionNotInProgress)
}

// hookedLocker records every acquisition and runs before, if set, ahead of
// delegating to a local locker.
type hookedLocker struct {
	inner  *lock.LocalLocker
	mu     sync.Mutex
	calls  [][]string
	before func(keys []string)
}

func (h *hookedLocker) Acquire(ctx context.Context, keys ...string) (func(), error) {
	h.mu.Lock()
	h.calls = append(h.calls, slices.Clone(keys))
	before := h.before
	h.mu.Unlock()
	if before != nil {
		before(keys)
	}
	return h.inner.Acquire(ctx, keys...)
}

func (h *hookedLocker) last(key string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.calls) - 1; i >= 0; i-- {
		if slices.Contains(h.calls[i], key) {
			return h.calls[i]
		}
	}
	return nil
}

func TestRun_RelocksWhenAssignedAfterSnapshot(t *testing.T) {
	ctx := context.Background()
	reg := registry.New()
	policy := config.DefaultPolicy()
	hook := &hookedLocker{inner: lock.NewLocalLocker()}
	missions := mission.NewEngine(reg, policy).WithLocker(hook)
	ledger := rewards.NewLedger(rewards.NewTreasury(policy.InitialTreasury))

	agent, err := reg.RegisterAgent("agent", []string{"research"}, 0)
	require.NoError(t, err)
	spec := mission.Spec{RequiredCapabilities: []string{"research"}, Budget: 1000, DeadlineDays: 30, MaxAgents: 1}
	first, err := missions.Create(ctx, spec)
	require.NoError(t, err)
	second, err := missions.Create(ctx, spec)
	require.NoError(t, err)

	// The first mission is staffed after Run has read it but before its
	// treasury lock is taken.
	var once sync.Once
	waiting := make(chan struct{})
	var signal sync.Once
	var racing atomic.Bool
	hook.before = func(keys []string) {
		if slices.Contains(keys, lock.TreasuryKey) {
			once.Do(func() {
				_, err := missions.AssignAgents(ctx, first)
				assert.NoError(t, err)
			})
		}
		if racing.Load() && slices.Equal(keys, []string{lock.AgentKey(agent)}) {
			signal.Do(func() { close(waiting) })
		}
	}

	// Mid-simulation, the same agent is assigned to a second mission.
	assigned := make(chan error, 1)
	rng := &scripted{}
	rng.onFloat = func(n int) {
		if n != 1 {
			return
		}
		racing.Store(true)
		go func() {
			_, err := missions.AssignAgents(ctx, second)
			assigned <- err
		}()
		select {
		case <-waiting:
		case <-time.After(time.Second):
		}
		time.Sleep(10 * time.Millisecond)
	}
	sim := NewSimulator(missions, reg, ledger, policy, rng)

	_, err = sim.Run(ctx, first, 1)
	require.NoError(t, err)
	require.NoError(t, <-assigned)

	assert.Contains(t, hook.last(lock.TreasuryKey), lock.AgentKey(agent))
	m, err := missions.Mission(second)
	require.NoError(t, err)
	assert.Equal(t, mission.StatusInProgress, m.Status)
	assert.Equal(t, []string{agent}, m.AssignedAgents)
	a, err := reg.Agent(agent)
	require.NoError(t, err)
	assert.True(t, a.IsActiveOn(second))
	assert.False(t, a.IsActiveOn(first))
}

func TestRun_CancelBetweenDaysLeavesStateUntouched(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rng := &scripted{floats: []float64{0, 0.9, 0, 0.9}}
	// Cancel during day 1; the check before day 2 stops the run.
	rng.onFloat = func(n int) {
		if n == 1 {
			cancel()
		}
	}
	h := newHarness(rng)
	mid, agents := h.staffed(t, 100)
	before, _ := h.reg.Agent(agents[0])

	_, err := h.sim.Run(ctx, mid, 10)
	assert.ErrorIs(t, err, context.Canceled)

	m, _ := h.missions.Mission(mid)
	assert.Equal(t, mission.StatusInProgress, m.Status)
	assert.Zero(t, m.Progress)
	after, _ := h.reg.Agent(agents[0])
	assert.Equal(t, before, after)
	assert.Equal(t, 1_000_000.0, h.treasury.Balance())
}

func TestRun_SeededRunsAreReproducible(t *testing.T) {
	run := func() mission.Results {
		h := newHarness(NewSource(42))
		mid, _ := h.staffed(t, 100, 120, 80)
		report, err := h.sim.Run(context.Background(), mid, 10)
		require.NoError(t, err)
		return report.Results
	}
	a, b := run(), run()
	assert.Equal(t, a.Progress, b.Progress)
	assert.Equal(t, a.DaysElapsed, b.DaysElapsed)
	assert.Equal(t, len(a.Events), len(b.Events))
}

func TestSample(t *testing.T) {
	items := []string{"a", "b", "c"}
	got := sample(&scripted{ints: []int{2, 0}}, items, 2)
	assert.Equal(t, []string{"c", "b"}, got)
	assert.Equal(t, []string{"a", "b", "c"}, items)
	assert.Len(t, sample(NewSource(7), []string{"solo"}, 2), 1)
}
