package game

import (
	"fmt"

	"ohisim.ai/internal/sim/catalogs"
)

// Policy status tags derived from level and prerequisite satisfaction.
const (
	PolicyLocked    = "locked"
	PolicyAvailable = "available"
	PolicyActive    = "active"
	PolicyMaxed     = "maxed"
)

// PolicyState is the mutable half of a policy; the definition (cost curve,
// prerequisites, per-level impacts) lives in the catalog.
type PolicyState struct {
	PolicyID string `json:"policy_id"`
	Level    int    `json:"level"`
	Invested int    `json:"invested"`
}

func (ps PolicyState) Status(def catalogs.PolicyDef, all map[string]PolicyState) string {
	if ps.Level >= def.MaxLevel {
		return PolicyMaxed
	}
	if ps.Level > 0 {
		return PolicyActive
	}
	if prereqsMet(def, all) {
		return PolicyAvailable
	}
	return PolicyLocked
}

func prereqsMet(def catalogs.PolicyDef, all map[string]PolicyState) bool {
	for _, pr := range def.Prerequisites {
		if all[pr.PolicyID].Level < pr.MinLevel {
			return false
		}
	}
	return true
}

// NextLevelCost returns the budget cost of the next level, or 0 and false
// when the policy is already maxed.
func NextLevelCost(def catalogs.PolicyDef, ps PolicyState) (int, bool) {
	if ps.Level >= def.MaxLevel {
		return 0, false
	}
	return def.LevelCosts[ps.Level], true
}

// InvestPolicy raises a policy one level, deducting the level cost from the
// budget. Prerequisites gate the first level; further levels only need
// budget. The returned states are copies; inputs are never mutated.
func InvestPolicy(policies map[string]PolicyState, budget BudgetState, defs map[string]catalogs.PolicyDef, policyID string) (map[string]PolicyState, BudgetState, error) {
	def, ok := defs[policyID]
	if !ok {
		return policies, budget, fmt.Errorf("%w: %s", ErrUnknownPolicy, policyID)
	}
	cur := policies[policyID]
	if cur.PolicyID == "" {
		cur.PolicyID = policyID
	}
	if cur.Level >= def.MaxLevel {
		return policies, budget, fmt.Errorf("%w: %s", ErrPolicyMaxed, policyID)
	}
	if cur.Level == 0 && !prereqsMet(def, policies) {
		return policies, budget, fmt.Errorf("%w: %s", ErrPolicyLocked, policyID)
	}
	cost := def.LevelCosts[cur.Level]
	nb, err := budget.Allocate(def.Pillar, cost)
	if err != nil {
		return policies, budget, err
	}

	out := make(map[string]PolicyState, len(policies)+1)
	for k, v := range policies {
		out[k] = v
	}
	cur.Level++
	cur.Invested += cost
	out[policyID] = cur
	return out, nb, nil
}

// PolicyCycleImpacts sums each active policy's current-level impacts; the
// advisor folds these into the cycle's simulation result.
func PolicyCycleImpacts(policies map[string]PolicyState, defs map[string]catalogs.PolicyDef) map[string]float64 {
	out := map[string]float64{}
	for id, ps := range policies {
		def, ok := defs[id]
		if !ok || ps.Level <= 0 {
			continue
		}
		lvl := ps.Level
		if lvl > len(def.LevelImpacts) {
			lvl = len(def.LevelImpacts)
		}
		for pillar, delta := range def.LevelImpacts[lvl-1].Impacts {
			out[pillar] += delta
		}
	}
	return out
}
