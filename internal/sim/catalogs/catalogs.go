package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

type Catalogs struct {
	Decisions    DecisionCatalog
	Policies     PolicyCatalog
	Events       EventCatalog
	Stages       StageCatalog
	Achievements AchievementCatalog
	Countries    CountryCatalog
}

type DecisionCatalog struct {
	ByID   map[string]DecisionDef
	Order  []string
	Digest string
}

// DecisionDef is a one-off action offered to the player for a single cycle.
type DecisionDef struct {
	ID              string             `json:"id"`
	Title           string             `json:"title"`
	Description     string             `json:"description,omitempty"`
	Cost            int                `json:"cost"`
	Pillar          string             `json:"pillar"`
	ExpectedImpacts map[string]float64 `json:"expected_impacts,omitempty"`
	RiskLevel       string             `json:"risk_level"` // "low","medium","high"
	TimeToEffect    string             `json:"time_to_effect,omitempty"`
}

type PolicyCatalog struct {
	ByID   map[string]PolicyDef
	Order  []string
	Digest string
}

// PolicyDef is a multi-level, prerequisite-gated long-running investment.
type PolicyDef struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	Description   string        `json:"description,omitempty"`
	Pillar        string        `json:"pillar"`
	MaxLevel      int           `json:"max_level"`
	LevelCosts    []int         `json:"level_costs"`   // cost to reach level i+1
	LevelImpacts  []LevelImpact `json:"level_impacts"` // applied once per cycle while active
	Prerequisites []Prereq      `json:"prerequisites,omitempty"`
}

type LevelImpact struct {
	Impacts map[string]float64 `json:"impacts"`
}

type Prereq struct {
	PolicyID string `json:"policy_id"`
	MinLevel int    `json:"min_level"`
}

type EventCatalog struct {
	ByID   map[string]EventDef
	Order  []string
	Digest string
}

type EventDef struct {
	ID              string      `json:"id"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Severity        string      `json:"severity"` // "minor","moderate","major"
	BaseWeight      float64     `json:"base_weight"`
	DeadlineSec     int         `json:"deadline_sec,omitempty"`
	DefaultChoiceID string      `json:"default_choice_id,omitempty"`
	Choices         []ChoiceDef `json:"choices"`
}

type ChoiceDef struct {
	ID              string             `json:"id"`
	Label           string             `json:"label"`
	Cost            int                `json:"cost"`
	Impacts         map[string]float64 `json:"impacts,omitempty"`
	LongTermEffects []LongTermEffect   `json:"long_term_effects,omitempty"`
}

type LongTermEffect struct {
	Impacts map[string]float64 `json:"impacts"`
	Cycles  int                `json:"cycles"`
}

type StageCatalog struct {
	Stages []StageDef
	Digest string
}

type StageDef struct {
	ID          string  `json:"id"`
	Label       string  `json:"label"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Color       string  `json:"color"`
	Description string  `json:"description,omitempty"`
}

type AchievementCatalog struct {
	ByID   map[string]AchievementDef
	Order  []string
	Digest string
}

// AchievementDef unlocks when its threshold predicate holds against the
// running statistics. Metric names are checked at load.
type AchievementDef struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Metric      string  `json:"metric"`
	Threshold   float64 `json:"threshold"`
}

type CountryCatalog struct {
	ByISO  map[string]CountryDef
	Order  []string
	Digest string
}

type CountryDef struct {
	ISO       string             `json:"iso"`
	Name      string             `json:"name"`
	Region    string             `json:"region,omitempty"`
	Baseline  map[string]float64 `json:"baseline_pillars"`
	BaseScore float64            `json:"baseline_score"`
}

// Achievement metrics recognised by the simulation core.
var knownMetrics = map[string]struct{}{
	"peak_score":          {},
	"best_rank":           {},
	"cycles_completed":    {},
	"decisions_confirmed": {},
	"events_handled":      {},
	"policies_maxed":      {},
	"total_spent":         {},
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadDecisions(filepath.Join(configDir, "decisions.json"), &c.Decisions); err != nil {
		return nil, err
	}
	if err := loadPolicies(filepath.Join(configDir, "policies.json"), &c.Policies); err != nil {
		return nil, err
	}
	if err := loadEvents(filepath.Join(configDir, "events.json"), &c.Events); err != nil {
		return nil, err
	}
	if err := loadStages(filepath.Join(configDir, "stages.json"), &c.Stages); err != nil {
		return nil, err
	}
	if err := loadAchievements(filepath.Join(configDir, "achievements.json"), &c.Achievements); err != nil {
		return nil, err
	}
	if err := loadCountries(filepath.Join(configDir, "countries.json"), &c.Countries); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadDecisions(path string, out *DecisionCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []DecisionDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("decisions.json: %w", err)
	}
	out.ByID = map[string]DecisionDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("decisions.json: empty id")
		}
		if d.Cost < 0 {
			return fmt.Errorf("decisions.json: %s: negative cost", d.ID)
		}
		out.ByID[d.ID] = d
		out.Order = append(out.Order, d.ID)
	}
	return nil
}

func loadPolicies(path string, out *PolicyCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		// Allow a scenario without long-running policies.
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			out.ByID = map[string]PolicyDef{}
			return nil
		}
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []PolicyDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("policies.json: %w", err)
	}
	out.ByID = map[string]PolicyDef{}
	for _, p := range defs {
		if p.ID == "" {
			return fmt.Errorf("policies.json: empty id")
		}
		if p.MaxLevel <= 0 {
			return fmt.Errorf("policies.json: %s: max_level must be positive", p.ID)
		}
		if len(p.LevelCosts) != p.MaxLevel {
			return fmt.Errorf("policies.json: %s: expected %d level_costs, got %d", p.ID, p.MaxLevel, len(p.LevelCosts))
		}
		if len(p.LevelImpacts) != p.MaxLevel {
			return fmt.Errorf("policies.json: %s: expected %d level_impacts, got %d", p.ID, p.MaxLevel, len(p.LevelImpacts))
		}
		out.ByID[p.ID] = p
		out.Order = append(out.Order, p.ID)
	}
	// Prerequisites must reference known policies.
	for _, p := range out.ByID {
		for _, pr := range p.Prerequisites {
			if _, ok := out.ByID[pr.PolicyID]; !ok {
				return fmt.Errorf("policies.json: %s: unknown prerequisite %s", p.ID, pr.PolicyID)
			}
		}
	}
	return nil
}

func loadEvents(path string, out *EventCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			out.ByID = map[string]EventDef{}
			return nil
		}
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []EventDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("events.json: %w", err)
	}
	out.ByID = map[string]EventDef{}
	for _, ev := range defs {
		if ev.ID == "" {
			return fmt.Errorf("events.json: empty id")
		}
		if len(ev.Choices) == 0 {
			return fmt.Errorf("events.json: %s: no choices", ev.ID)
		}
		if ev.DefaultChoiceID != "" {
			found := false
			for _, ch := range ev.Choices {
				if ch.ID == ev.DefaultChoiceID {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("events.json: %s: default_choice_id %s not among choices", ev.ID, ev.DefaultChoiceID)
			}
		}
		out.ByID[ev.ID] = ev
		out.Order = append(out.Order, ev.ID)
	}
	return nil
}

func loadStages(path string, out *StageCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	if err := json.Unmarshal(raw, &out.Stages); err != nil {
		return fmt.Errorf("stages.json: %w", err)
	}
	if len(out.Stages) == 0 {
		return fmt.Errorf("stages.json: no stages")
	}
	sort.Slice(out.Stages, func(i, j int) bool { return out.Stages[i].Min < out.Stages[j].Min })
	// Bands must tile the score range with no gaps or overlaps.
	for i := 1; i < len(out.Stages); i++ {
		prev, cur := out.Stages[i-1], out.Stages[i]
		if cur.Min <= prev.Max {
			return fmt.Errorf("stages.json: %s overlaps %s", cur.ID, prev.ID)
		}
		if cur.Min-prev.Max > 0.1+1e-9 {
			return fmt.Errorf("stages.json: gap between %s and %s", prev.ID, cur.ID)
		}
	}
	return nil
}

func loadAchievements(path string, out *AchievementCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			out.ByID = map[string]AchievementDef{}
			return nil
		}
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []AchievementDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("achievements.json: %w", err)
	}
	out.ByID = map[string]AchievementDef{}
	for _, a := range defs {
		if a.ID == "" {
			return fmt.Errorf("achievements.json: empty id")
		}
		if _, ok := knownMetrics[a.Metric]; !ok {
			return fmt.Errorf("achievements.json: %s: unknown metric %q", a.ID, a.Metric)
		}
		out.ByID[a.ID] = a
		out.Order = append(out.Order, a.ID)
	}
	return nil
}

func loadCountries(path string, out *CountryCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []CountryDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("countries.json: %w", err)
	}
	out.ByISO = map[string]CountryDef{}
	for _, c := range defs {
		if c.ISO == "" {
			return fmt.Errorf("countries.json: empty iso")
		}
		out.ByISO[c.ISO] = c
		out.Order = append(out.Order, c.ISO)
	}
	return nil
}
