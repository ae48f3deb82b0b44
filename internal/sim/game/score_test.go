package game

import (
	"errors"
	"math"
	"testing"

	"ohisim.ai/internal/sim/tuning"
)

func TestComposite_DefaultWeights(t *testing.T) {
	scorer, err := NewScorer(tuning.Defaults())
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}

	cases := []struct {
		name string
		p    PillarScores
		want float64
	}{
		{"all 50", PillarScores{50, 50, 50, 50}, 2.0},
		{"all 100", PillarScores{100, 100, 100, 100}, 4.0},
		{"hazard 60", PillarScores{Governance: 50, HazardControl: 60, HealthVigilance: 50, Restoration: 50}, 2.14},
	}
	for _, tc := range cases {
		got, err := scorer.Composite(tc.p)
		if err != nil {
			t.Fatalf("%s: Composite: %v", tc.name, err)
		}
		if math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("%s: composite=%.6f want %.6f", tc.name, got, tc.want)
		}
	}
}

func TestComposite_ClampsToRange(t *testing.T) {
	scorer, err := NewScorer(tuning.Defaults())
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	got, err := scorer.Composite(PillarScores{})
	if err != nil {
		t.Fatalf("Composite: %v", err)
	}
	if got != 1.0 {
		t.Fatalf("all-zero pillars should clamp to score_min: got %.3f", got)
	}
}

func TestNewScorer_RejectsBadWeights(t *testing.T) {
	tune := tuning.Defaults()
	tune.Weights.Governance = 0.5 // sum now 1.3
	if _, err := NewScorer(tune); !errors.Is(err, ErrWeights) {
		t.Fatalf("expected ErrWeights, got %v", err)
	}

	tune = tuning.Defaults()
	tune.ScoreScale = 0
	if _, err := NewScorer(tune); !errors.Is(err, ErrWeights) {
		t.Fatalf("expected ErrWeights for zero scale, got %v", err)
	}
}

func TestPillars_ApplyImpactsClamps(t *testing.T) {
	p := PillarScores{Governance: 98, HazardControl: 1, HealthVigilance: 50, Restoration: 50}
	out := p.ApplyImpacts(map[string]float64{
		PillarGovernance:    5,
		PillarHazardControl: -5,
		"not_a_pillar":      100,
	})
	if out.Governance != 100 {
		t.Fatalf("governance should clamp at 100: got %v", out.Governance)
	}
	if out.HazardControl != 0 {
		t.Fatalf("hazard_control should clamp at 0: got %v", out.HazardControl)
	}
	if out.HealthVigilance != 50 || out.Restoration != 50 {
		t.Fatalf("untouched pillars changed: %+v", out)
	}
}

func TestPillarsFromMap_RequiresAllKeys(t *testing.T) {
	m := map[string]float64{
		PillarGovernance:    50,
		PillarHazardControl: 50,
	}
	if _, ok := PillarsFromMap(m); ok {
		t.Fatalf("expected missing pillar keys to be rejected")
	}
}
