package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz int `yaml:"tick_rate_hz"`

	StartYear  int `yaml:"start_year"`
	EndYear    int `yaml:"end_year"`
	CycleYears int `yaml:"cycle_years"`

	BudgetPerCycle    int `yaml:"budget_per_cycle"`
	DecisionsPerCycle int `yaml:"decisions_per_cycle"`

	Weights Weights `yaml:"pillar_weights"`

	ScoreMin   float64 `yaml:"score_min"`
	ScoreMax   float64 `yaml:"score_max"`
	ScoreScale float64 `yaml:"score_scale"` // composite = weighted pillar sum / score_scale

	EventEveryCycles    int `yaml:"event_every_cycles"`
	EventDeadlineSec    int `yaml:"event_deadline_sec"`
	SnapshotEveryCycles int `yaml:"snapshot_every_cycles"`

	RateLimits RateLimits `yaml:"rate_limits"`
}

type Weights struct {
	Governance      float64 `yaml:"governance"`
	HazardControl   float64 `yaml:"hazard_control"`
	HealthVigilance float64 `yaml:"health_vigilance"`
	Restoration     float64 `yaml:"restoration"`
}

type RateLimits struct {
	AskAdvisorWindowSec int `yaml:"ask_advisor_window_sec"`
	AskAdvisorMax       int `yaml:"ask_advisor_max"`
	ActWindowSec        int `yaml:"act_window_sec"`
	ActMax              int `yaml:"act_max"`
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:   "1.0",
		TickRateHz:        5,
		StartYear:         2025,
		EndYear:           2050,
		CycleYears:        5,
		BudgetPerCycle:    100,
		DecisionsPerCycle: 6,
		Weights: Weights{
			Governance:      0.20,
			HazardControl:   0.35,
			HealthVigilance: 0.25,
			Restoration:     0.20,
		},
		ScoreMin:            1.0,
		ScoreMax:            4.0,
		ScoreScale:          25.0,
		EventEveryCycles:    2,
		EventDeadlineSec:    60,
		SnapshotEveryCycles: 1,
		RateLimits: RateLimits{
			AskAdvisorWindowSec: 60,
			AskAdvisorMax:       5,
			ActWindowSec:        10,
			ActMax:              40,
		},
	}
}
