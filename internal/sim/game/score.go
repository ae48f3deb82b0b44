package game

import (
	"fmt"
	"math"

	"ohisim.ai/internal/sim/tuning"
)

const weightTolerance = 1e-6

// Weights combine the four pillar sub-scores into one composite OHI score.
// The four weights must sum to 1.0 within tolerance.
type Weights struct {
	Governance      float64
	HazardControl   float64
	HealthVigilance float64
	Restoration     float64
}

func WeightsFromTuning(w tuning.Weights) Weights {
	return Weights{
		Governance:      w.Governance,
		HazardControl:   w.HazardControl,
		HealthVigilance: w.HealthVigilance,
		Restoration:     w.Restoration,
	}
}

func (w Weights) sum() float64 {
	return w.Governance + w.HazardControl + w.HealthVigilance + w.Restoration
}

func (w Weights) Validate() error {
	if math.Abs(w.sum()-1.0) > weightTolerance {
		return fmt.Errorf("%w: pillar weights sum to %.9f", ErrWeights, w.sum())
	}
	return nil
}

// Scorer maps pillar scores onto the composite scale.
type Scorer struct {
	Weights Weights
	Scale   float64 // weighted pillar sum divided by this; 25 maps [0,100] onto [0,4]
	Min     float64
	Max     float64
}

func NewScorer(t tuning.Tuning) (Scorer, error) {
	s := Scorer{
		Weights: WeightsFromTuning(t.Weights),
		Scale:   t.ScoreScale,
		Min:     t.ScoreMin,
		Max:     t.ScoreMax,
	}
	if err := s.Weights.Validate(); err != nil {
		return Scorer{}, err
	}
	if s.Scale <= 0 {
		return Scorer{}, fmt.Errorf("%w: score_scale must be positive", ErrWeights)
	}
	if s.Min >= s.Max {
		return Scorer{}, fmt.Errorf("%w: score_min must be below score_max", ErrWeights)
	}
	return s, nil
}

// Composite computes the weighted sum of the pillars scaled onto
// [Min,Max]. All-100 pillars hit Max; the raw value is clamped so the
// composite never leaves the configured range.
func (s Scorer) Composite(p PillarScores) (float64, error) {
	if err := s.Weights.Validate(); err != nil {
		return 0, err
	}
	raw := p.Governance*s.Weights.Governance +
		p.HazardControl*s.Weights.HazardControl +
		p.HealthVigilance*s.Weights.HealthVigilance +
		p.Restoration*s.Weights.Restoration
	score := raw / s.Scale
	if score < s.Min {
		score = s.Min
	}
	if score > s.Max {
		score = s.Max
	}
	return score, nil
}
