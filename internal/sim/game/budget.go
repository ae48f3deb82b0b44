package game

import "fmt"

// PillarPoints is a per-pillar budget-point amount (shaped like PillarScores
// but holding whole points, not scores).
type PillarPoints struct {
	Governance      int `json:"governance"`
	HazardControl   int `json:"hazard_control"`
	HealthVigilance int `json:"health_vigilance"`
	Restoration     int `json:"restoration"`
}

func (p PillarPoints) Get(name string) int {
	switch name {
	case PillarGovernance:
		return p.Governance
	case PillarHazardControl:
		return p.HazardControl
	case PillarHealthVigilance:
		return p.HealthVigilance
	case PillarRestoration:
		return p.Restoration
	}
	return 0
}

func (p *PillarPoints) add(name string, delta int) {
	switch name {
	case PillarGovernance:
		p.Governance += delta
	case PillarHazardControl:
		p.HazardControl += delta
	case PillarHealthVigilance:
		p.HealthVigilance += delta
	case PillarRestoration:
		p.Restoration += delta
	}
}

func (p PillarPoints) Total() int {
	return p.Governance + p.HazardControl + p.HealthVigilance + p.Restoration
}

func (p PillarPoints) AsMap() map[string]int {
	return map[string]int{
		PillarGovernance:      p.Governance,
		PillarHazardControl:   p.HazardControl,
		PillarHealthVigilance: p.HealthVigilance,
		PillarRestoration:     p.Restoration,
	}
}

// BudgetState tracks the current cycle's spending capacity.
// Invariant: Spent.Total() never exceeds Capacity().
type BudgetState struct {
	TotalPoints int          `json:"total_points"`
	Spent       PillarPoints `json:"spent"`
	CarryOver   int          `json:"carry_over"`
}

// Capacity is the spendable total for the cycle: the cycle's points plus
// whatever rolled over unspent from the previous one.
func (b BudgetState) Capacity() int {
	return b.TotalPoints + b.CarryOver
}

func (b BudgetState) Remaining() int {
	return b.Capacity() - b.Spent.Total()
}

// CanAfford reports whether additionalCost fits in the remaining capacity.
func (b BudgetState) CanAfford(additionalCost int) bool {
	return additionalCost >= 0 && b.Spent.Total()+additionalCost <= b.Capacity()
}

// Allocate returns a copy with delta points spent on the named pillar, or
// ErrInsufficientBudget (with the input unchanged) if the spend would exceed
// capacity.
func (b BudgetState) Allocate(pillar string, delta int) (BudgetState, error) {
	if !IsPillar(pillar) {
		return b, fmt.Errorf("allocate: unknown pillar %q", pillar)
	}
	if delta < 0 {
		return b, fmt.Errorf("allocate: negative delta %d", delta)
	}
	if !b.CanAfford(delta) {
		return b, fmt.Errorf("%w: %d requested, %d remaining", ErrInsufficientBudget, delta, b.Remaining())
	}
	out := b
	out.Spent.add(pillar, delta)
	return out, nil
}

// RollCycle closes out the cycle: unspent points become carry-over (never
// negative) and spending resets against the next cycle's capacity.
func (b BudgetState) RollCycle(nextCapacity int) BudgetState {
	carry := b.Capacity() - b.Spent.Total()
	if carry < 0 {
		carry = 0
	}
	return BudgetState{
		TotalPoints: nextCapacity,
		CarryOver:   carry,
	}
}
