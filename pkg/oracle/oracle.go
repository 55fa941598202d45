// Package oracle provides stand-in verifiers that score mission
// deliverables. Scores are drawn from a seeded source; nothing here
// contacts an external system.
package oracle

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnsupportedMissionType is returned when no check profile exists for a mission type.
	ErrUnsupportedMissionType = errors.New("oracle: unsupported mission type")
	// ErrInvalidDeliverables is returned when deliverables fail schema validation.
	ErrInvalidDeliverables = errors.New("oracle: invalid deliverables")
)

// Verification is a verifier's verdict on one mission.
type Verification struct {
	MissionID   string             `json:"mission_id"`
	MissionType string             `json:"mission_type"`
	Source      string             `json:"source"`
	Confidence  float64            `json:"confidence"`
	Verified    bool               `json:"verified"`
	Score       float64            `json:"score"`
	Checks      map[string]float64 `json:"checks,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
}

// Verifier checks mission deliverables.
type Verifier interface {
	Verify(ctx context.Context, missionID string, deliverables map[string]any, missionType string) (Verification, error)
}

// Rand is the random source verifiers draw from.
type Rand interface {
	Float64() float64
}

func uniform(r Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*r.Float64()
}
