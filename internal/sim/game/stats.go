package game

import "ohisim.ai/internal/sim/catalogs"

// Statistics are running aggregates updated on each cycle advance. They are
// derivable from the cycle history plus bookkeeping counters; achievements
// unlock by threshold checks against them.
type Statistics struct {
	PeakScore   float64 `json:"peak_score"`
	LowestScore float64 `json:"lowest_score"`
	BestRank    int     `json:"best_rank,omitempty"` // lower is better, 0 = unset

	CyclesCompleted    int `json:"cycles_completed"`
	DecisionsConfirmed int `json:"decisions_confirmed"`
	EventsHandled      int `json:"events_handled"`
	PoliciesMaxed      int `json:"policies_maxed"`
	TotalSpent         int `json:"total_spent"`

	Achievements []string `json:"achievements,omitempty"`
}

func (s Statistics) metric(name string) (float64, bool) {
	switch name {
	case "peak_score":
		return s.PeakScore, true
	case "best_rank":
		return float64(s.BestRank), s.BestRank > 0
	case "cycles_completed":
		return float64(s.CyclesCompleted), true
	case "decisions_confirmed":
		return float64(s.DecisionsConfirmed), true
	case "events_handled":
		return float64(s.EventsHandled), true
	case "policies_maxed":
		return float64(s.PoliciesMaxed), true
	case "total_spent":
		return float64(s.TotalSpent), true
	}
	return 0, false
}

func (s Statistics) hasAchievement(id string) bool {
	for _, a := range s.Achievements {
		if a == id {
			return true
		}
	}
	return false
}

// recordScore folds a new composite score and rank into the aggregates.
func (s Statistics) recordScore(score float64, rank int) Statistics {
	out := s
	if out.CyclesCompleted == 0 || score > out.PeakScore {
		out.PeakScore = score
	}
	if out.CyclesCompleted == 0 || score < out.LowestScore {
		out.LowestScore = score
	}
	if rank > 0 && (out.BestRank == 0 || rank < out.BestRank) {
		out.BestRank = rank
	}
	return out
}

// unlockAchievements appends every newly satisfied achievement, in catalog
// order, skipping already-unlocked IDs. Returns the updated statistics and
// the IDs unlocked by this call.
func (s Statistics) unlockAchievements(cat catalogs.AchievementCatalog) (Statistics, []string) {
	out := s
	out.Achievements = append([]string(nil), s.Achievements...)
	var unlocked []string
	for _, id := range cat.Order {
		def := cat.ByID[id]
		if out.hasAchievement(id) {
			continue
		}
		v, ok := out.metric(def.Metric)
		if !ok {
			continue
		}
		satisfied := v >= def.Threshold
		if def.Metric == "best_rank" {
			// Rank thresholds read "reach rank N or better".
			satisfied = v <= def.Threshold
		}
		if !satisfied {
			continue
		}
		out.Achievements = append(out.Achievements, id)
		unlocked = append(unlocked, id)
	}
	return out, unlocked
}
