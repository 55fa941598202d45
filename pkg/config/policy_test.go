package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	require.NoError(t, p.Validate())

	assert.Equal(t, 0.10, p.QuorumFraction)
	assert.Equal(t, 0.50, p.SuccessFraction)
	assert.Equal(t, 7, p.VotingPeriodDays)
	assert.Equal(t, 0.8, p.AvailabilityPenalty)
	assert.Equal(t, 0.3, p.CoordinationProbability)
	assert.Equal(t, 0.1, p.CoordinationBonus)
	assert.Equal(t, 1_000_000.0, p.InitialTreasury)
}

func TestLoadPolicy_OverlaysDefaults(t *testing.T) {
	path := writePolicy(t, `
version: 1.2.0
quorum_fraction: 0.25
random_seed: 7
admission_rules:
  - "mission.budget <= treasury"
`)

	p, err := LoadPolicy(path)
	require.NoError(t, err)

	assert.Equal(t, 0.25, p.QuorumFraction)
	assert.Equal(t, uint64(7), p.RandomSeed)
	assert.Equal(t, []string{"mission.budget <= treasury"}, p.AdmissionRules)
	// untouched keys keep their defaults
	assert.Equal(t, 0.50, p.SuccessFraction)
	assert.Equal(t, 3, p.DefaultMaxAgents)
}

func TestLoadPolicy_Errors(t *testing.T) {
	_, err := LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadPolicy(writePolicy(t, "quorum_fraction: [1, 2"))
	assert.Error(t, err)

	_, err = LoadPolicy(writePolicy(t, "version: 2.0.0"))
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestPolicy_ValidateRanges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Policy)
	}{
		{"quorum above one", func(p *Policy) { p.QuorumFraction = 1.5 }},
		{"negative success", func(p *Policy) { p.SuccessFraction = -0.1 }},
		{"penalty above one", func(p *Policy) { p.AvailabilityPenalty = 2 }},
		{"negative bonus", func(p *Policy) { p.CoordinationBonus = -1 }},
		{"negative treasury", func(p *Policy) { p.InitialTreasury = -5 }},
		{"zero max agents", func(p *Policy) { p.DefaultMaxAgents = 0 }},
		{"zero deadline", func(p *Policy) { p.DefaultDeadlineDays = 0 }},
		{"garbage version", func(p *Policy) { p.Version = "one" }},
		{"NaN quorum", func(p *Policy) { p.QuorumFraction = math.NaN() }},
		{"NaN bonus", func(p *Policy) { p.CoordinationBonus = math.NaN() }},
		{"infinite treasury", func(p *Policy) { p.InitialTreasury = math.Inf(1) }},
		{"NaN treasury", func(p *Policy) { p.InitialTreasury = math.NaN() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			tt.mutate(&p)
			assert.ErrorIs(t, p.Validate(), ErrInvalidPolicy)
		})
	}
}
