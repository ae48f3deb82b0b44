package advisor

import (
	"fmt"
	"sort"

	"ohisim.ai/internal/sim/game"
)

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		return string(s[0]-'a'+'A') + s[1:]
	}
	return s
}

// weakestPillar returns the lowest-scoring pillar, ties broken by name so the
// output is stable for tests.
func weakestPillar(pillars map[string]float64) (string, float64) {
	names := make([]string, 0, len(pillars))
	for n := range pillars {
		names = append(names, n)
	}
	sort.Strings(names)
	worst, val := "", 101.0
	for _, n := range names {
		if pillars[n] < val {
			worst, val = n, pillars[n]
		}
	}
	return worst, val
}

func pillarLabel(name string) string {
	switch name {
	case game.PillarGovernance:
		return "governance"
	case game.PillarHazardControl:
		return "hazard control"
	case game.PillarHealthVigilance:
		return "health vigilance"
	case game.PillarRestoration:
		return "restoration"
	}
	return name
}

func cycleNarrative(req game.ResultRequest, after map[string]float64) string {
	var gain, loss float64
	before := req.Pillars.AsMap()
	for name, v := range after {
		d := v - before[name]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	worst, _ := weakestPillar(after)
	switch {
	case gain > loss && gain-loss >= 2:
		return fmt.Sprintf("Your programs are taking hold. %s remains the weakest link; keep investing there.",
			capitalize(pillarLabel(worst)))
	case loss > gain && loss-gain >= 2:
		return fmt.Sprintf("The system lost ground this cycle. Shore up %s before conditions deteriorate further.",
			pillarLabel(worst))
	default:
		return fmt.Sprintf("A steady cycle with little net movement. The next budget should target %s.",
			pillarLabel(worst))
	}
}

func fallbackAdvice(req game.AdvisorRequest) string {
	worst, val := weakestPillar(req.Pillars.AsMap())
	var tone string
	switch {
	case req.Score >= 3.5:
		tone = "Your system is among the leaders. The main risk now is complacency."
	case req.Score >= 2.5:
		tone = "The fundamentals are advancing. Consistency over several cycles will compound."
	case req.Score >= 2.0:
		tone = "The system is developing but fragile. Avoid spreading the budget too thin."
	default:
		tone = "Conditions are critical. Triage: fix the basics before anything ambitious."
	}
	return fmt.Sprintf("%s %s is your weakest pillar at %.0f. With %d budget points remaining, prioritize measures that lift it directly.",
		tone, capitalize(pillarLabel(worst)), val, req.BudgetLeft)
}

func fallbackReport(state game.GameState) FinalReport {
	grade := "D"
	switch {
	case state.Score >= 3.5:
		grade = "A"
	case state.Score >= 3.0:
		grade = "B"
	case state.Score >= 2.5:
		grade = "C"
	}
	worst, _ := weakestPillar(state.Pillars.AsMap())
	highlights := []string{
		fmt.Sprintf("Final maturity score %.2f after %d cycles.", state.Score, state.Stats.CyclesCompleted),
		fmt.Sprintf("Peak score %.2f, %d decisions confirmed, %d events handled.",
			state.Stats.PeakScore, state.Stats.DecisionsConfirmed, state.Stats.EventsHandled),
	}
	if len(state.Stats.Achievements) > 0 {
		highlights = append(highlights, fmt.Sprintf("%d achievements unlocked.", len(state.Stats.Achievements)))
	}
	return FinalReport{
		Narrative: fmt.Sprintf("Over the full term your administration moved the national occupational health system to a maturity of %.2f. The record shows %d policy cycles, a peak of %.2f, and %s finishing as the least mature pillar.",
			state.Score, state.Stats.CyclesCompleted, state.Stats.PeakScore, pillarLabel(worst)),
		Highlights: highlights,
		Recommendations: []string{
			fmt.Sprintf("Future investment should concentrate on %s.", pillarLabel(worst)),
			"Maintain active policies; lapsed programs lose their compounding effect.",
		},
		Grade: grade,
	}
}
