package sessions

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the scenarios.yaml file. A scenario picks the selection mode and
// seed spread for new sessions; countries come from the country catalog.
type Config struct {
	DefaultScenarioID string         `yaml:"default_scenario_id"`
	Scenarios         []ScenarioSpec `yaml:"scenarios"`
}

type ScenarioSpec struct {
	ID          string   `yaml:"id"`
	Label       string   `yaml:"label"`
	MultiSelect bool     `yaml:"multi_select"`
	SeedOffset  int64    `yaml:"seed_offset"`
	Countries   []string `yaml:"countries,omitempty"` // allowed ISO pool, empty = all
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("scenarios.yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("scenarios.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		DefaultScenarioID: "CLASSIC",
		Scenarios: []ScenarioSpec{
			{ID: "CLASSIC", Label: "Classic campaign", MultiSelect: false},
			{ID: "PORTFOLIO", Label: "Portfolio mode", MultiSelect: true, SeedOffset: 1000},
		},
	}
}

func (c Config) Validate() error {
	if len(c.Scenarios) == 0 {
		return fmt.Errorf("no scenarios defined")
	}
	seen := map[string]bool{}
	for _, s := range c.Scenarios {
		if s.ID == "" {
			return fmt.Errorf("scenario with empty id")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate scenario id %s", s.ID)
		}
		seen[s.ID] = true
	}
	if !seen[c.DefaultScenarioID] {
		return fmt.Errorf("default_scenario_id %s not defined", c.DefaultScenarioID)
	}
	return nil
}

func (c Config) scenario(id string) (ScenarioSpec, bool) {
	if id == "" {
		id = c.DefaultScenarioID
	}
	for _, s := range c.Scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return ScenarioSpec{}, false
}

func (s ScenarioSpec) allowsCountry(iso string) bool {
	if len(s.Countries) == 0 {
		return true
	}
	for _, c := range s.Countries {
		if strings.EqualFold(c, iso) {
			return true
		}
	}
	return false
}
