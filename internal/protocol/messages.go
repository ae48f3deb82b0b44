package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	PlayerName      string     `json:"player_name"`
	CountryISO      string     `json:"country_iso,omitempty"`
	ScenarioID      string     `json:"scenario_id,omitempty"`
	ResumeToken     string     `json:"resume_token,omitempty"`
	Auth            *HelloAuth `json:"auth,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	PlayerID        string         `json:"player_id"`
	ResumeToken     string         `json:"resume_token"`
	GameParams      GameParams     `json:"game_params"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type GameParams struct {
	CountryISO       string  `json:"country_iso"`
	ScenarioID       string  `json:"scenario_id,omitempty"`
	StartYear        int     `json:"start_year"`
	EndYear          int     `json:"end_year"`
	CycleYears       int     `json:"cycle_years"`
	BudgetPerCycle   int     `json:"budget_per_cycle"`
	TickRateHz       int     `json:"tick_rate_hz"`
	ScoreMin         float64 `json:"score_min"`
	ScoreMax         float64 `json:"score_max"`
	EventDeadlineSec int     `json:"event_deadline_sec,omitempty"`
}

type CatalogDigests struct {
	DecisionsDigest    string `json:"decisions_digest"`
	PoliciesDigest     string `json:"policies_digest"`
	EventsDigest       string `json:"events_digest"`
	StagesDigest       string `json:"stages_digest"`
	AchievementsDigest string `json:"achievements_digest"`
	CountriesDigest    string `json:"countries_digest"`
	TuningDigest       string `json:"tuning_digest,omitempty"`
}

// CATALOG (server -> client): a chunk of catalog data.
// Each catalog is sent as a single part.
type CatalogMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Name            string      `json:"name"`   // e.g. "decisions"
	Digest          string      `json:"digest"` // sha256 hex
	Part            int         `json:"part"`
	TotalParts      int         `json:"total_parts"`
	Data            interface{} `json:"data"`
}

// ACK (server -> client): accept/reject for a single instant.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	Cycle           int    `json:"cycle,omitempty"`
	SessionID       string `json:"session_id,omitempty"`
}
