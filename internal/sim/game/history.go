package game

// CycleRecord is an immutable per-cycle snapshot appended after each cycle
// advance. The history slice is the append-only ledger the score-progress
// views and the end-of-game report read from; entries are never rewritten.
type CycleRecord struct {
	Cycle int `json:"cycle"`
	Year  int `json:"year"`

	// Pre-advance state.
	Pillars PillarScores `json:"pillars"`
	Score   float64      `json:"score"`
	Rank    int          `json:"rank,omitempty"`

	// What the player did during the cycle.
	SpentTotal     int          `json:"spent_total"`
	Spent          PillarPoints `json:"spent"`
	CarryOver      int          `json:"carry_over"`
	Decisions      []string     `json:"decisions,omitempty"`
	ActivePolicies []string     `json:"active_policies,omitempty"`
	EventID        string       `json:"event_id,omitempty"`
	EventChoiceID  string       `json:"event_choice_id,omitempty"`

	// Post-advance outcome.
	NewScore float64 `json:"new_score"`
	NewRank  int     `json:"new_rank,omitempty"`
}
