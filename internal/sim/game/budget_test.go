package game

import (
	"errors"
	"testing"
)

func TestBudget_AllocateAndRemaining(t *testing.T) {
	b := BudgetState{TotalPoints: 100}
	nb, err := b.Allocate(PillarGovernance, 30)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if b.Spent.Total() != 0 {
		t.Fatalf("Allocate mutated its receiver")
	}
	if nb.Remaining() != 70 {
		t.Fatalf("remaining=%d want 70", nb.Remaining())
	}
	nb, err = nb.Allocate(PillarHazardControl, 70)
	if err != nil {
		t.Fatalf("Allocate to capacity: %v", err)
	}
	if nb.Remaining() != 0 {
		t.Fatalf("remaining=%d want 0", nb.Remaining())
	}
}

func TestBudget_Overdraft(t *testing.T) {
	b := BudgetState{TotalPoints: 50}
	if _, err := b.Allocate(PillarGovernance, 51); !errors.Is(err, ErrInsufficientBudget) {
		t.Fatalf("expected ErrInsufficientBudget, got %v", err)
	}
	if _, err := b.Allocate("unknown", 1); err == nil {
		t.Fatalf("expected unknown pillar error")
	}
	if _, err := b.Allocate(PillarGovernance, -1); err == nil {
		t.Fatalf("expected negative delta error")
	}
}

func TestBudget_CarryOverIncludedInCapacity(t *testing.T) {
	b := BudgetState{TotalPoints: 100, CarryOver: 20}
	if b.Capacity() != 120 {
		t.Fatalf("capacity=%d want 120", b.Capacity())
	}
	nb, err := b.Allocate(PillarRestoration, 110)
	if err != nil {
		t.Fatalf("carry-over should extend capacity: %v", err)
	}
	if nb.Remaining() != 10 {
		t.Fatalf("remaining=%d want 10", nb.Remaining())
	}
}

func TestBudget_RollCycle(t *testing.T) {
	b := BudgetState{TotalPoints: 100}
	b, err := b.Allocate(PillarGovernance, 60)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	next := b.RollCycle(100)
	if next.CarryOver != 40 {
		t.Fatalf("carry_over=%d want 40", next.CarryOver)
	}
	if next.Spent.Total() != 0 {
		t.Fatalf("spending should reset on roll")
	}
	if next.Capacity() != 140 {
		t.Fatalf("capacity=%d want 140", next.Capacity())
	}
}
