package registry

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// validAmount reports whether x is a usable balance or stake.
func validAmount(x float64) bool {
	return x >= 0 && !math.IsInf(x, 1)
}

// NewID mints an opaque identifier of the form "<prefix>_<8 hex chars>".
func NewID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.New().String()[:8])
}

// Registry stores members and agents. Thread-safe via RWMutex.
// Reads return copies; writes go through the Update* helpers, which stage
// changes on copies and commit them only if the callback succeeds.
type Registry struct {
	mu      sync.RWMutex
	members map[string]*Member
	agents  map[string]*Agent
	nextSeq int
	logger  *slog.Logger
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		members: make(map[string]*Member),
		agents:  make(map[string]*Agent),
		logger:  slog.Default().With("component", "registry"),
	}
}

// RegisterMember adds a member with the given token balance.
func (r *Registry) RegisterMember(name string, tokens float64) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: name must not be empty", ErrInvalidMember)
	}
	if !validAmount(tokens) {
		return "", fmt.Errorf("%w: token balance must be finite and not negative", ErrInvalidMember)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.uniqueID("member")
	r.members[id] = &Member{
		ID:           id,
		Name:         name,
		TokenBalance: tokens,
		Reputation:   DefaultReputation,
		seq:          r.seq(),
	}
	r.logger.Info("member registered", "member_id", id, "name", name, "tokens", tokens)
	return id, nil
}

// RegisterAgent adds an agent with the given capabilities and stake.
func (r *Registry) RegisterAgent(name string, capabilities []string, stake float64) (string, error) {
	caps := NewCapabilitySet(capabilities...)
	switch {
	case name == "":
		return "", fmt.Errorf("%w: name must not be empty", ErrInvalidAgent)
	case len(caps) == 0:
		return "", fmt.Errorf("%w: at least one capability is required", ErrInvalidAgent)
	case !validAmount(stake):
		return "", fmt.Errorf("%w: stake must be finite and not negative", ErrInvalidAgent)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.uniqueID("agent")
	r.agents[id] = &Agent{
		ID:             id,
		Name:           name,
		Capabilities:   caps,
		Reputation:     DefaultReputation,
		Stake:          stake,
		ActiveMissions: make(map[string]struct{}),
		seq:            r.seq(),
	}
	r.logger.Info("agent registered", "agent_id", id, "name", name, "capabilities", caps.Strings())
	return id, nil
}

// Member returns a copy of the member.
func (r *Registry) Member(id string) (Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[id]
	if !ok {
		return Member{}, fmt.Errorf("%w: %s", ErrUnknownMember, id)
	}
	return m.clone(), nil
}

// Agent returns a copy of the agent.
func (r *Registry) Agent(id string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return Agent{}, fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	return a.clone(), nil
}

// HasMember reports whether the member is registered.
func (r *Registry) HasMember(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[id]
	return ok
}

// Members returns copies of all members in registration order.
func (r *Registry) Members() []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m.clone())
	}
	slices.SortFunc(out, func(a, b Member) int { return a.seq - b.seq })
	return out
}

// Agents returns copies of all agents in registration order.
func (r *Registry) Agents() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a.clone())
	}
	slices.SortFunc(out, func(a, b Agent) int { return a.seq - b.seq })
	return out
}

// TotalVotingPower sums the current voting power of every member.
func (r *Registry) TotalVotingPower() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total float64
	for _, m := range r.members {
		total += m.VotingPower()
	}
	return total
}

// SetTokenBalance changes a member's balance. Votes already cast keep the power
// recorded at the time they were cast.
func (r *Registry) SetTokenBalance(id string, balance float64) error {
	if !validAmount(balance) {
		return fmt.Errorf("%w: token balance must be finite and not negative", ErrInvalidMember)
	}
	return r.UpdateMember(id, func(m *Member) error {
		m.TokenBalance = balance
		return nil
	})
}

// UpdateMember applies fn to a copy of the member and commits it if fn returns nil.
func (r *Registry) UpdateMember(id string, fn func(*Member) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMember, id)
	}
	staged := m.clone()
	if err := fn(&staged); err != nil {
		return err
	}
	staged.ID, staged.seq = m.ID, m.seq
	r.members[id] = &staged
	return nil
}

// UpdateAgents applies fn to copies of every listed agent and commits all of
// them only if fn succeeds for each one.
func (r *Registry) UpdateAgents(ids []string, fn func(*Agent) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	staged := make([]Agent, 0, len(ids))
	for _, id := range ids {
		a, ok := r.agents[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownAgent, id)
		}
		c := a.clone()
		if err := fn(&c); err != nil {
			return err
		}
		c.ID, c.seq = a.ID, a.seq
		staged = append(staged, c)
	}
	for i := range staged {
		a := staged[i]
		r.agents[a.ID] = &a
	}
	return nil
}

// ReplaceAgents commits fully staged agent values. Every agent must already exist.
func (r *Registry) ReplaceAgents(agents []Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range agents {
		if _, ok := r.agents[a.ID]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownAgent, a.ID)
		}
	}
	for _, a := range agents {
		c := a.clone()
		c.seq = r.agents[a.ID].seq
		r.agents[a.ID] = &c
	}
	return nil
}

func (r *Registry) seq() int {
	r.nextSeq++
	return r.nextSeq
}

// uniqueID must be called with mu held.
func (r *Registry) uniqueID(prefix string) string {
	for {
		id := NewID(prefix)
		_, m := r.members[id]
		_, a := r.agents[id]
		if !m && !a {
			return id
		}
	}
}
