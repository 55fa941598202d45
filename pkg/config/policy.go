package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// SupportedPolicyVersions is the constraint a policy file's version must satisfy.
const SupportedPolicyVersions = "^1.0.0"

// ErrInvalidPolicy is returned when a policy value is out of range.
var ErrInvalidPolicy = errors.New("config: invalid policy")

// Policy holds the governance and simulation parameters of one DAO instance.
// Thresholds are per instantiation; nothing in the engines hard-codes them.
type Policy struct {
	Version                 string   `yaml:"version" json:"version"`
	QuorumFraction          float64  `yaml:"quorum_fraction" json:"quorum_fraction"`
	SuccessFraction         float64  `yaml:"success_fraction" json:"success_fraction"`
	VotingPeriodDays        int      `yaml:"voting_period_days" json:"voting_period_days"`
	AvailabilityPenalty     float64  `yaml:"availability_penalty" json:"availability_penalty"`
	CoordinationProbability float64  `yaml:"coordination_probability" json:"coordination_probability"`
	CoordinationBonus       float64  `yaml:"coordination_bonus" json:"coordination_bonus"`
	RandomSeed              uint64   `yaml:"random_seed" json:"random_seed"`
	InitialTreasury         float64  `yaml:"initial_treasury" json:"initial_treasury"`
	DefaultDeadlineDays     int      `yaml:"default_deadline_days" json:"default_deadline_days"`
	DefaultMaxAgents        int      `yaml:"default_max_agents" json:"default_max_agents"`
	AdmissionRules          []string `yaml:"admission_rules,omitempty" json:"admission_rules,omitempty"`
}

// DefaultPolicy returns the reference parameters.
func DefaultPolicy() Policy {
	return Policy{
		Version:                 "1.0.0",
		QuorumFraction:          0.10,
		SuccessFraction:         0.50,
		VotingPeriodDays:        7,
		AvailabilityPenalty:     0.8,
		CoordinationProbability: 0.3,
		CoordinationBonus:       0.1,
		RandomSeed:              42,
		InitialTreasury:         1_000_000,
		DefaultDeadlineDays:     30,
		DefaultMaxAgents:        3,
	}
}

// LoadPolicy reads a YAML policy file. Keys absent from the file keep their defaults.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()

	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("load policy %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("parse policy %q: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate checks every parameter range and the policy schema version.
func (p Policy) Validate() error {
	constraint, err := semver.NewConstraint(SupportedPolicyVersions)
	if err != nil {
		return fmt.Errorf("%w: bad version constraint: %v", ErrInvalidPolicy, err)
	}
	v, err := semver.NewVersion(p.Version)
	if err != nil {
		return fmt.Errorf("%w: version %q: %v", ErrInvalidPolicy, p.Version, err)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("%w: version %s does not satisfy %s", ErrInvalidPolicy, v, SupportedPolicyVersions)
	}

	fractions := []struct {
		name string
		val  float64
	}{
		{"quorum_fraction", p.QuorumFraction},
		{"success_fraction", p.SuccessFraction},
		{"availability_penalty", p.AvailabilityPenalty},
		{"coordination_probability", p.CoordinationProbability},
	}
	for _, f := range fractions {
		if !(f.val >= 0 && f.val <= 1) {
			return fmt.Errorf("%w: %s must be within [0,1], got %v", ErrInvalidPolicy, f.name, f.val)
		}
	}

	switch {
	case !(p.CoordinationBonus >= 0) || math.IsInf(p.CoordinationBonus, 1):
		return fmt.Errorf("%w: coordination_bonus must be finite and not negative", ErrInvalidPolicy)
	case p.VotingPeriodDays < 0:
		return fmt.Errorf("%w: voting_period_days must not be negative", ErrInvalidPolicy)
	case !(p.InitialTreasury >= 0) || math.IsInf(p.InitialTreasury, 1):
		return fmt.Errorf("%w: initial_treasury must be finite and not negative", ErrInvalidPolicy)
	case p.DefaultDeadlineDays <= 0:
		return fmt.Errorf("%w: default_deadline_days must be positive", ErrInvalidPolicy)
	case p.DefaultMaxAgents <= 0:
		return fmt.Errorf("%w: default_max_agents must be positive", ErrInvalidPolicy)
	}
	return nil
}
