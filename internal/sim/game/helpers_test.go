package game

import (
	"testing"

	"ohisim.ai/internal/sim/catalogs"
	"ohisim.ai/internal/sim/tuning"
)

func testCatalogs() *catalogs.Catalogs {
	decisions := []catalogs.DecisionDef{
		{ID: "DEC_A", Title: "A", Cost: 30, Pillar: PillarGovernance,
			ExpectedImpacts: map[string]float64{PillarGovernance: 2.0}, RiskLevel: "low"},
		{ID: "DEC_B", Title: "B", Cost: 40, Pillar: PillarHazardControl,
			ExpectedImpacts: map[string]float64{PillarHazardControl: 3.0}, RiskLevel: "medium"},
		{ID: "DEC_C", Title: "C", Cost: 50, Pillar: PillarRestoration,
			ExpectedImpacts: map[string]float64{PillarRestoration: 2.5}, RiskLevel: "high"},
	}
	policies := []catalogs.PolicyDef{
		{ID: "POL_BASE", Title: "Base", Pillar: PillarGovernance, MaxLevel: 2,
			LevelCosts: []int{20, 30},
			LevelImpacts: []catalogs.LevelImpact{
				{Impacts: map[string]float64{PillarGovernance: 1.0}},
				{Impacts: map[string]float64{PillarGovernance: 2.0}},
			}},
		{ID: "POL_GATED", Title: "Gated", Pillar: PillarHazardControl, MaxLevel: 1,
			LevelCosts:    []int{25},
			LevelImpacts:  []catalogs.LevelImpact{{Impacts: map[string]float64{PillarHazardControl: 1.5}}},
			Prerequisites: []catalogs.Prereq{{PolicyID: "POL_BASE", MinLevel: 1}}},
	}
	events := []catalogs.EventDef{
		{ID: "EVT_X", Title: "X", Description: "x", Severity: "major", BaseWeight: 1, DeadlineSec: 30,
			DefaultChoiceID: "CH_CHEAP",
			Choices: []catalogs.ChoiceDef{
				{ID: "CH_FULL", Label: "full", Cost: 20,
					Impacts: map[string]float64{PillarGovernance: 2.0, PillarRestoration: 1.0},
					LongTermEffects: []catalogs.LongTermEffect{
						{Impacts: map[string]float64{PillarHazardControl: 1.0}, Cycles: 2},
					}},
				{ID: "CH_CHEAP", Label: "cheap", Cost: 0,
					Impacts: map[string]float64{PillarGovernance: -1.0}},
			}},
	}
	stages := []catalogs.StageDef{
		{ID: "critical", Label: "Critical", Min: 1.0, Max: 1.9},
		{ID: "developing", Label: "Developing", Min: 2.0, Max: 2.4},
		{ID: "advancing", Label: "Advancing", Min: 2.5, Max: 3.4},
		{ID: "leading", Label: "Leading", Min: 3.5, Max: 4.0},
	}
	achievements := []catalogs.AchievementDef{
		{ID: "ACH_FIRST", Title: "First", Metric: "cycles_completed", Threshold: 1},
		{ID: "ACH_SCORE", Title: "Score", Metric: "peak_score", Threshold: 2.5},
		{ID: "ACH_RANK", Title: "Rank", Metric: "best_rank", Threshold: 10},
	}

	c := &catalogs.Catalogs{}
	c.Decisions.ByID = map[string]catalogs.DecisionDef{}
	for _, d := range decisions {
		c.Decisions.ByID[d.ID] = d
		c.Decisions.Order = append(c.Decisions.Order, d.ID)
	}
	c.Policies.ByID = map[string]catalogs.PolicyDef{}
	for _, p := range policies {
		c.Policies.ByID[p.ID] = p
		c.Policies.Order = append(c.Policies.Order, p.ID)
	}
	c.Events.ByID = map[string]catalogs.EventDef{}
	for _, e := range events {
		c.Events.ByID[e.ID] = e
		c.Events.Order = append(c.Events.Order, e.ID)
	}
	c.Stages.Stages = stages
	c.Achievements.ByID = map[string]catalogs.AchievementDef{}
	for _, a := range achievements {
		c.Achievements.ByID[a.ID] = a
		c.Achievements.Order = append(c.Achievements.Order, a.ID)
	}
	return c
}

func testCountry() catalogs.CountryDef {
	return catalogs.CountryDef{
		ISO: "TST", Name: "Testland",
		Baseline: map[string]float64{
			PillarGovernance:      50,
			PillarHazardControl:   50,
			PillarHealthVigilance: 50,
			PillarRestoration:     50,
		},
	}
}

func newTestState(t *testing.T) (GameState, Scorer, tuning.Tuning) {
	t.Helper()
	tune := tuning.Defaults()
	scorer, err := NewScorer(tune)
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	st, err := NewGameState("S1", testCountry(), tune, scorer)
	if err != nil {
		t.Fatalf("NewGameState: %v", err)
	}
	return st, scorer, tune
}

func playingState(t *testing.T, offered ...string) (GameState, Scorer, tuning.Tuning) {
	t.Helper()
	st, scorer, tune := newTestState(t)
	if len(offered) == 0 {
		offered = []string{"DEC_A", "DEC_B", "DEC_C"}
	}
	st, err := Start(st, offered)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return st, scorer, tune
}

// resultFor rebuilds a valid SimulationResult from a pillar state plus deltas.
func resultFor(p PillarScores, deltas map[string]float64) SimulationResult {
	np := p.ApplyImpacts(deltas)
	return SimulationResult{Pillars: np.AsMap()}
}
