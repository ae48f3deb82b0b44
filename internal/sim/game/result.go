package game

import "fmt"

// SimulationResult is the externally supplied outcome of a confirmed cycle.
// The advisor layer (or a remote AI backend) computes it; the state machine
// only consumes it. Pillars are absolute new values, all four keys required.
type SimulationResult struct {
	Pillars   map[string]float64 `json:"pillars"`
	Score     float64            `json:"score,omitempty"` // recomputed from pillars when 0
	Rank      int                `json:"rank,omitempty"`
	Narrative string             `json:"narrative,omitempty"`
}

func (r SimulationResult) Validate() error {
	if r.Pillars == nil {
		return fmt.Errorf("%w: missing pillars", ErrMalformedResult)
	}
	for _, name := range PillarNames {
		if _, ok := r.Pillars[name]; !ok {
			return fmt.Errorf("%w: missing pillar %q", ErrMalformedResult, name)
		}
	}
	if r.Rank < 0 {
		return fmt.Errorf("%w: negative rank", ErrMalformedResult)
	}
	return nil
}
