package protocol

// Instant types accepted in ACT messages.
const (
	InstSelectDecision   = "SELECT_DECISION"
	InstAllocate         = "ALLOCATE"
	InstConfirmDecisions = "CONFIRM_DECISIONS"
	InstInvestPolicy     = "INVEST_POLICY"
	InstResolveEvent     = "RESOLVE_EVENT"
	InstDismissEvent     = "DISMISS_EVENT"
	InstPause            = "PAUSE"
	InstResume           = "RESUME"
	InstAckResults       = "ACK_RESULTS"
	InstAskAdvisor       = "ASK_ADVISOR"
	InstSave             = "SAVE"
	InstLoad             = "LOAD"
)

// ACT (client -> server)
type ActMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	Cycle           int       `json:"cycle,omitempty"`
	PlayerID        string    `json:"player_id,omitempty"`
	Instants        []Instant `json:"instants,omitempty"`
}

type Instant struct {
	ID   string `json:"id"`
	Type string `json:"type"`

	DecisionID string `json:"decision_id,omitempty"`
	PolicyID   string `json:"policy_id,omitempty"`
	EventID    string `json:"event_id,omitempty"`
	ChoiceID   string `json:"choice_id,omitempty"`
	Pillar     string `json:"pillar,omitempty"`
	Points     int    `json:"points,omitempty"`
	Question   string `json:"question,omitempty"`
	Path       string `json:"path,omitempty"`
}

// STATE (server -> client): the client-facing view after each accepted action
// and at every cycle boundary.
type StateMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	Cycle           int    `json:"cycle"`
	Year            int    `json:"year"`
	Phase           string `json:"phase"`

	Pillars PillarsView `json:"pillars"`
	Score   float64     `json:"score"`
	Stage   string      `json:"stage"`
	Rank    int         `json:"rank,omitempty"`

	Budget    BudgetView   `json:"budget"`
	Decisions []string     `json:"offered_decisions"`
	Selected  []string     `json:"selected_decisions"`
	Policies  []PolicyView `json:"policies,omitempty"`

	ActiveEvent *EventView `json:"active_event,omitempty"`
}

type PillarsView struct {
	Governance      float64 `json:"governance"`
	HazardControl   float64 `json:"hazard_control"`
	HealthVigilance float64 `json:"health_vigilance"`
	Restoration     float64 `json:"restoration"`
}

type BudgetView struct {
	TotalPoints int            `json:"total_points"`
	Spent       map[string]int `json:"spent"`
	SpentTotal  int            `json:"spent_total"`
	CarryOver   int            `json:"carry_over"`
	Remaining   int            `json:"remaining"`
}

type PolicyView struct {
	PolicyID string `json:"policy_id"`
	Level    int    `json:"level"`
	Invested int    `json:"invested"`
	Status   string `json:"status"`
}

// EVENT (server -> client): a triggered crisis/opportunity.
type EventMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	SessionID       string    `json:"session_id"`
	Event           EventView `json:"event"`
}

type EventView struct {
	EventID     string       `json:"event_id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Severity    string       `json:"severity"`
	DeadlineSec int          `json:"deadline_sec,omitempty"`
	Choices     []ChoiceView `json:"choices"`
}

type ChoiceView struct {
	ChoiceID string             `json:"choice_id"`
	Label    string             `json:"label"`
	Cost     int                `json:"cost"`
	Impacts  map[string]float64 `json:"impacts,omitempty"`
}

// RESULTS (server -> client): the outcome of a confirmed cycle.
type ResultsMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	Cycle           int         `json:"cycle"`
	Year            int         `json:"year"`
	Pillars         PillarsView `json:"pillars"`
	Score           float64     `json:"score"`
	ScoreDelta      float64     `json:"score_delta"`
	Stage           string      `json:"stage"`
	Rank            int         `json:"rank,omitempty"`
	Narrative       string      `json:"narrative,omitempty"`
	Achievements    []string    `json:"new_achievements,omitempty"`
	Final           bool        `json:"final,omitempty"`
}
