package game

import (
	"ohisim.ai/internal/sim/catalogs"
)

// ResolveStage scans stages in ascending order and returns the first band
// whose [min,max] contains the score. Out-of-range scores fall back to the
// lowest band rather than failing; existing displays depend on this clamp
// behavior, so callers wanting stricter handling must clamp the input first.
func ResolveStage(score float64, stages []catalogs.StageDef) catalogs.StageDef {
	for _, st := range stages {
		if score >= st.Min && score <= st.Max {
			return st
		}
	}
	if len(stages) == 0 {
		return catalogs.StageDef{}
	}
	lowest := stages[0]
	for _, st := range stages[1:] {
		if st.Min < lowest.Min {
			lowest = st
		}
	}
	return lowest
}
