package game

import (
	"fmt"

	"ohisim.ai/internal/sim/catalogs"
	"ohisim.ai/internal/sim/tuning"
)

// Phase is the game lifecycle state.
type Phase string

const (
	PhaseSetup   Phase = "setup"
	PhasePlaying Phase = "playing"
	PhasePaused  Phase = "paused"
	PhaseEvent   Phase = "event"
	PhaseResults Phase = "results"
	PhaseEnded   Phase = "ended"
)

// GameState is the single root owning all per-session simulation state by
// value. Every mutation flows through the transition functions in this
// package; each returns a new state and leaves its input untouched on error.
type GameState struct {
	SessionID  string `json:"session_id"`
	CountryISO string `json:"country_iso"`
	Phase      Phase  `json:"phase"`

	Cycle int `json:"cycle"` // 1-based current cycle number
	Year  int `json:"year"`

	Pillars PillarScores `json:"pillars"`
	Score   float64      `json:"score"`
	Rank    int          `json:"rank,omitempty"`

	Budget    BudgetState `json:"budget"`
	Offered   []string    `json:"offered_decisions"`
	Selection Selection   `json:"selection"`

	Policies map[string]PolicyState `json:"policies,omitempty"`

	CurrentEvent      *ActiveEvent   `json:"current_event,omitempty"`
	Effects           []ActiveEffect `json:"effects,omitempty"`
	LastEventID       string         `json:"last_event_id,omitempty"`
	LastEventChoiceID string         `json:"last_event_choice_id,omitempty"`

	History []CycleRecord `json:"history,omitempty"`
	Stats   Statistics    `json:"stats"`

	// Narrative attached to the most recent cycle advance, shown during the
	// results phase.
	LastNarrative  string   `json:"last_narrative,omitempty"`
	LastUnlocked   []string `json:"last_unlocked,omitempty"`
	LastScoreDelta float64  `json:"last_score_delta"`
}

// NewGameState seeds a fresh game in the setup phase from a country baseline.
func NewGameState(sessionID string, country catalogs.CountryDef, t tuning.Tuning, scorer Scorer) (GameState, error) {
	pillars, ok := PillarsFromMap(country.Baseline)
	if !ok {
		return GameState{}, fmt.Errorf("country %s: baseline missing pillar keys", country.ISO)
	}
	score, err := scorer.Composite(pillars)
	if err != nil {
		return GameState{}, err
	}
	return GameState{
		SessionID:  sessionID,
		CountryISO: country.ISO,
		Phase:      PhaseSetup,
		Cycle:      1,
		Year:       t.StartYear,
		Pillars:    pillars,
		Score:      score,
		Budget:     BudgetState{TotalPoints: t.BudgetPerCycle},
		Selection:  NewSelection(true),
		Policies:   map[string]PolicyState{},
	}, nil
}

// Start moves setup -> playing with the cycle's offered decision cards.
func Start(s GameState, offered []string) (GameState, error) {
	if s.Phase != PhaseSetup {
		return s, fmt.Errorf("%w: %s", ErrBadPhase, s.Phase)
	}
	out := s
	out.Phase = PhasePlaying
	out.Offered = append([]string(nil), offered...)
	return out, nil
}

func Pause(s GameState) (GameState, error) {
	if s.Phase != PhasePlaying {
		return s, fmt.Errorf("%w: %s", ErrBadPhase, s.Phase)
	}
	out := s
	out.Phase = PhasePaused
	return out, nil
}

func Resume(s GameState) (GameState, error) {
	if s.Phase != PhasePaused {
		return s, fmt.Errorf("%w: %s", ErrBadPhase, s.Phase)
	}
	out := s
	out.Phase = PhasePlaying
	return out, nil
}

// ToggleDecision flips a card's selection under the budget constraint.
func ToggleDecision(s GameState, cats *catalogs.Catalogs, id string) (GameState, error) {
	if s.Phase != PhasePlaying && s.Phase != PhasePaused {
		return s, fmt.Errorf("%w: %s", ErrBadPhase, s.Phase)
	}
	offered := s.OfferedDefs(cats)
	if _, ok := offered[id]; !ok {
		return s, fmt.Errorf("%w: %s", ErrUnknownDecision, id)
	}
	out := s
	out.Selection = s.Selection.Toggle(offered, id, s.Budget.Remaining())
	return out, nil
}

// OfferedDefs resolves the offered card IDs against the decision catalog.
func (s GameState) OfferedDefs(cats *catalogs.Catalogs) map[string]catalogs.DecisionDef {
	out := make(map[string]catalogs.DecisionDef, len(s.Offered))
	for _, id := range s.Offered {
		if d, ok := cats.Decisions.ByID[id]; ok {
			out[id] = d
		}
	}
	return out
}

// AdvanceCycle folds an externally computed simulation result into the game:
// new pillars/score/rank, an appended history record, updated statistics and
// achievements, decremented long-term effects, a rolled budget and the year
// moved forward one cycle. Only valid from playing or paused. A malformed
// result fails the whole transition; nothing is partially applied.
func AdvanceCycle(s GameState, cats *catalogs.Catalogs, scorer Scorer, t tuning.Tuning, result SimulationResult) (GameState, error) {
	if s.Phase != PhasePlaying && s.Phase != PhasePaused {
		return s, fmt.Errorf("%w: %s", ErrBadPhase, s.Phase)
	}
	if err := result.Validate(); err != nil {
		return s, err
	}

	newPillars, ok := PillarsFromMap(result.Pillars)
	if !ok {
		return s, fmt.Errorf("%w: missing pillar keys", ErrMalformedResult)
	}
	newScore := result.Score
	if newScore == 0 {
		var err error
		newScore, err = scorer.Composite(newPillars)
		if err != nil {
			return s, err
		}
	}

	out := s

	// Confirmed decisions are consumed; their cost is booked before the roll.
	offered := s.OfferedDefs(cats)
	confirmed := s.Selection.Sorted()
	spent := s.Budget
	for _, id := range confirmed {
		d, ok := offered[id]
		if !ok {
			continue // stale selection, ignore
		}
		nb, err := spent.Allocate(d.Pillar, d.Cost)
		if err != nil {
			return s, err
		}
		spent = nb
	}
	out.Budget = spent

	var active []string
	for id, ps := range s.Policies {
		if ps.Level > 0 {
			active = append(active, id)
		}
	}

	rec := CycleRecord{
		Cycle:          s.Cycle,
		Year:           s.Year,
		Pillars:        s.Pillars,
		Score:          s.Score,
		Rank:           s.Rank,
		SpentTotal:     out.Budget.Spent.Total(),
		Spent:          out.Budget.Spent,
		CarryOver:      out.Budget.CarryOver,
		Decisions:      confirmed,
		ActivePolicies: active,
		EventID:        s.LastEventID,
		EventChoiceID:  s.LastEventChoiceID,
		NewScore:       newScore,
		NewRank:        result.Rank,
	}
	out.History = append(append([]CycleRecord(nil), s.History...), rec)

	out.Pillars = newPillars
	out.Score = newScore
	out.Rank = result.Rank
	out.LastScoreDelta = newScore - s.Score
	out.LastNarrative = result.Narrative

	stats := s.Stats.recordScore(newScore, result.Rank)
	stats.CyclesCompleted++
	stats.DecisionsConfirmed += len(confirmed)
	stats.TotalSpent += out.Budget.Spent.Total()
	stats.PoliciesMaxed = countMaxed(s.Policies, cats.Policies.ByID)
	stats, unlocked := stats.unlockAchievements(cats.Achievements)
	out.Stats = stats
	out.LastUnlocked = unlocked

	out.Effects = tickEffects(s.Effects)
	out.Budget = out.Budget.RollCycle(t.BudgetPerCycle)
	out.Selection = NewSelection(s.Selection.MultiSelect)
	out.Offered = nil
	out.LastEventID = ""
	out.LastEventChoiceID = ""

	out.Cycle++
	out.Year = s.Year + t.CycleYears
	if out.Year >= t.EndYear {
		out.Phase = PhaseEnded
	} else {
		out.Phase = PhaseResults
	}
	return out, nil
}

// AckResults returns from the results screen to play with the next cycle's
// card offer.
func AckResults(s GameState, offered []string) (GameState, error) {
	if s.Phase != PhaseResults {
		return s, fmt.Errorf("%w: %s", ErrBadPhase, s.Phase)
	}
	out := s
	out.Phase = PhasePlaying
	out.Offered = append([]string(nil), offered...)
	out.LastNarrative = ""
	out.LastUnlocked = nil
	return out, nil
}

func countMaxed(policies map[string]PolicyState, defs map[string]catalogs.PolicyDef) int {
	n := 0
	for id, ps := range policies {
		if def, ok := defs[id]; ok && ps.Level >= def.MaxLevel {
			n++
		}
	}
	return n
}
