package game

import (
	"errors"
	"testing"
)

func TestInvestPolicy_PrerequisiteGate(t *testing.T) {
	defs := testCatalogs().Policies.ByID
	budget := BudgetState{TotalPoints: 100}
	policies := map[string]PolicyState{}

	if _, _, err := InvestPolicy(policies, budget, defs, "POL_GATED"); !errors.Is(err, ErrPolicyLocked) {
		t.Fatalf("expected ErrPolicyLocked, got %v", err)
	}

	policies, budget, err := InvestPolicy(policies, budget, defs, "POL_BASE")
	if err != nil {
		t.Fatalf("invest POL_BASE: %v", err)
	}
	if policies["POL_BASE"].Level != 1 || policies["POL_BASE"].Invested != 20 {
		t.Fatalf("POL_BASE state: %+v", policies["POL_BASE"])
	}
	if budget.Remaining() != 80 {
		t.Fatalf("remaining=%d want 80", budget.Remaining())
	}

	// Prerequisite satisfied at level 1.
	policies, budget, err = InvestPolicy(policies, budget, defs, "POL_GATED")
	if err != nil {
		t.Fatalf("invest POL_GATED after prereq: %v", err)
	}
	if budget.Remaining() != 55 {
		t.Fatalf("remaining=%d want 55", budget.Remaining())
	}
}

func TestInvestPolicy_MaxLevel(t *testing.T) {
	defs := testCatalogs().Policies.ByID
	budget := BudgetState{TotalPoints: 100}
	policies := map[string]PolicyState{}

	var err error
	policies, budget, err = InvestPolicy(policies, budget, defs, "POL_BASE")
	if err != nil {
		t.Fatalf("level 1: %v", err)
	}
	policies, budget, err = InvestPolicy(policies, budget, defs, "POL_BASE")
	if err != nil {
		t.Fatalf("level 2: %v", err)
	}
	if _, _, err = InvestPolicy(policies, budget, defs, "POL_BASE"); !errors.Is(err, ErrPolicyMaxed) {
		t.Fatalf("expected ErrPolicyMaxed, got %v", err)
	}
	if policies["POL_BASE"].Invested != 50 {
		t.Fatalf("invested=%d want 50", policies["POL_BASE"].Invested)
	}
}

func TestInvestPolicy_UnknownAndBudget(t *testing.T) {
	defs := testCatalogs().Policies.ByID
	if _, _, err := InvestPolicy(nil, BudgetState{TotalPoints: 100}, defs, "POL_NOPE"); !errors.Is(err, ErrUnknownPolicy) {
		t.Fatalf("expected ErrUnknownPolicy, got %v", err)
	}
	if _, _, err := InvestPolicy(nil, BudgetState{TotalPoints: 10}, defs, "POL_BASE"); !errors.Is(err, ErrInsufficientBudget) {
		t.Fatalf("expected ErrInsufficientBudget, got %v", err)
	}
}

func TestPolicyStatus(t *testing.T) {
	defs := testCatalogs().Policies.ByID
	all := map[string]PolicyState{}

	if got := all["POL_GATED"].Status(defs["POL_GATED"], all); got != PolicyLocked {
		t.Fatalf("status=%q want locked", got)
	}
	if got := all["POL_BASE"].Status(defs["POL_BASE"], all); got != PolicyAvailable {
		t.Fatalf("status=%q want available", got)
	}
	all["POL_BASE"] = PolicyState{PolicyID: "POL_BASE", Level: 1}
	if got := all["POL_BASE"].Status(defs["POL_BASE"], all); got != PolicyActive {
		t.Fatalf("status=%q want active", got)
	}
	all["POL_BASE"] = PolicyState{PolicyID: "POL_BASE", Level: 2}
	if got := all["POL_BASE"].Status(defs["POL_BASE"], all); got != PolicyMaxed {
		t.Fatalf("status=%q want maxed", got)
	}
	// Prereq now satisfied.
	if got := all["POL_GATED"].Status(defs["POL_GATED"], all); got != PolicyAvailable {
		t.Fatalf("status=%q want available after prereq", got)
	}
}

func TestPolicyCycleImpacts(t *testing.T) {
	defs := testCatalogs().Policies.ByID
	policies := map[string]PolicyState{
		"POL_BASE":  {PolicyID: "POL_BASE", Level: 2},
		"POL_GATED": {PolicyID: "POL_GATED", Level: 0}, // inactive, contributes nothing
	}
	got := PolicyCycleImpacts(policies, defs)
	if got[PillarGovernance] != 2.0 {
		t.Fatalf("governance impact=%v want 2.0", got[PillarGovernance])
	}
	if got[PillarHazardControl] != 0 {
		t.Fatalf("inactive policy leaked impact: %v", got)
	}
}
