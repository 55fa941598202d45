package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

type check struct {
	name   string
	lo, hi float64
}

type profile struct {
	checks     []check
	confidence float64
	threshold  float64
}

var profiles = map[string]profile{
	"web_development": {
		checks: []check{
			{"website_accessible", 0.7, 1.0},
			{"responsive_design", 0.6, 1.0},
			{"performance_score", 0.5, 0.95},
			{"security_scan", 0.8, 1.0},
			{"code_quality", 0.6, 0.9},
		},
		confidence: 0.85,
		threshold:  0.7,
	},
	"data_analysis": {
		checks: []check{
			{"data_accuracy", 0.7, 1.0},
			{"analysis_methodology", 0.6, 0.95},
			{"visualization_quality", 0.5, 0.9},
			{"insights_relevance", 0.6, 1.0},
			{"reproducibility", 0.7, 1.0},
		},
		confidence: 0.90,
		threshold:  0.75,
	},
}

// SupportedTypes lists mission types MissionVerifier can score.
func SupportedTypes() []string {
	return []string{"data_analysis", "web_development"}
}

// MissionVerifier scores deliverables with a fixed set of checks per
// mission type. A mission is verified when the mean check score clears
// the type's threshold.
type MissionVerifier struct {
	id      string
	mu      sync.Mutex
	rng     Rand
	schemas map[string]*jsonschema.Schema
	clock   func() time.Time
	logger  *slog.Logger
}

// NewMissionVerifier compiles the deliverable schemas.
func NewMissionVerifier(id string, rng Rand) (*MissionVerifier, error) {
	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	return &MissionVerifier{
		id:      id,
		rng:     rng,
		schemas: schemas,
		clock:   time.Now,
		logger:  slog.Default().With("component", "oracle", "oracle_id", id),
	}, nil
}

func (v *MissionVerifier) Verify(ctx context.Context, missionID string, deliverables map[string]any, missionType string) (Verification, error) {
	p, ok := profiles[missionType]
	if !ok {
		return Verification{}, fmt.Errorf("%w: %q", ErrUnsupportedMissionType, missionType)
	}
	if err := validate(v.schemas[missionType], deliverables); err != nil {
		return Verification{}, err
	}

	v.mu.Lock()
	checks := make(map[string]float64, len(p.checks))
	var sum float64
	for _, c := range p.checks {
		s := uniform(v.rng, c.lo, c.hi)
		checks[c.name] = s
		sum += s
	}
	v.mu.Unlock()

	score := sum / float64(len(p.checks))
	out := Verification{
		MissionID:   missionID,
		MissionType: missionType,
		Source:      v.id,
		Confidence:  p.confidence,
		Verified:    score > p.threshold,
		Score:       score,
		Checks:      checks,
		Timestamp:   v.clock(),
	}
	v.logger.DebugContext(ctx, "mission verified", "mission_id", missionID, "score", score, "verified", out.Verified)
	return out, nil
}

const (
	panelSize          = 3
	panelAgreeScore    = 0.7
	panelQuorum        = 2
	panelHighConfident = 0.95
	panelLowConfident  = 0.70
)

// HumanPanel simulates a three-expert review. Consensus needs at least two
// experts scoring above 0.7; without it the verdict is disputed.
type HumanPanel struct {
	mu  sync.Mutex
	rng Rand
}

func NewHumanPanel(rng Rand) *HumanPanel {
	return &HumanPanel{rng: rng}
}

func (h *HumanPanel) Verify(_ context.Context, missionID string, _ map[string]any, missionType string) (Verification, error) {
	h.mu.Lock()
	checks := make(map[string]float64, panelSize)
	var sum float64
	agree := 0
	for i := 1; i <= panelSize; i++ {
		s := uniform(h.rng, 0.6, 1.0)
		checks[fmt.Sprintf("expert_%d", i)] = s
		sum += s
		if s > panelAgreeScore {
			agree++
		}
	}
	h.mu.Unlock()

	consensus := agree >= panelQuorum
	confidence := panelLowConfident
	if consensus {
		confidence = panelHighConfident
	}
	return Verification{
		MissionID:   missionID,
		MissionType: missionType,
		Source:      "human_expert_panel",
		Confidence:  confidence,
		Verified:    consensus,
		Score:       sum / panelSize,
		Checks:      checks,
		Timestamp:   time.Now(),
	}, nil
}

// ConsensusThreshold applies to both mean confidence and verified ratio.
const ConsensusThreshold = 0.7

// Aggregator combines an automated verifier with an optional human panel.
// The panel is consulted only after the automated verifier produced a verdict.
type Aggregator struct {
	Automated Verifier
	Human     Verifier
}

func (a *Aggregator) Verify(ctx context.Context, missionID string, deliverables map[string]any, missionType string) (Verification, error) {
	var verdicts []Verification
	if a.Automated != nil {
		v, err := a.Automated.Verify(ctx, missionID, deliverables, missionType)
		if err != nil {
			return Verification{}, err
		}
		verdicts = append(verdicts, v)
	}
	if len(verdicts) == 0 {
		return Verification{}, fmt.Errorf("%w: %q", ErrUnsupportedMissionType, missionType)
	}
	if a.Human != nil {
		v, err := a.Human.Verify(ctx, missionID, deliverables, missionType)
		if err != nil {
			return Verification{}, err
		}
		verdicts = append(verdicts, v)
	}

	var confidence float64
	verified := 0
	checks := make(map[string]float64, len(verdicts))
	for _, v := range verdicts {
		confidence += v.Confidence
		if v.Verified {
			verified++
		}
		checks[v.Source] = v.Score
	}
	confidence /= float64(len(verdicts))
	ratio := float64(verified) / float64(len(verdicts))

	return Verification{
		MissionID:   missionID,
		MissionType: missionType,
		Source:      "aggregator",
		Confidence:  confidence,
		Verified:    ratio >= ConsensusThreshold && confidence >= ConsensusThreshold,
		Score:       ratio,
		Checks:      checks,
		Timestamp:   time.Now(),
	}, nil
}
