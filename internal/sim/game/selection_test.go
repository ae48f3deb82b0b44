package game

import (
	"reflect"
	"testing"
)

func TestSelection_MultiSelectBudgetCap(t *testing.T) {
	defs := testCatalogs().Decisions.ByID

	sel := NewSelection(true)
	sel = sel.Toggle(defs, "DEC_A", 100) // cost 30
	sel = sel.Toggle(defs, "DEC_B", 100) // +40 = 70
	if !sel.Has("DEC_A") || !sel.Has("DEC_B") {
		t.Fatalf("affordable selections should stick: %v", sel.Sorted())
	}

	// DEC_C costs 50; 70+50 exceeds capacity, so the toggle is a no-op.
	sel = sel.Toggle(defs, "DEC_C", 100)
	if sel.Has("DEC_C") {
		t.Fatalf("unaffordable selection should be rejected silently")
	}
	if got := sel.TotalCost(defs); got != 70 {
		t.Fatalf("total cost=%d want 70", got)
	}

	// Deselection always succeeds; DEC_C then fits.
	sel = sel.Toggle(defs, "DEC_B", 100)
	sel = sel.Toggle(defs, "DEC_C", 100)
	if !reflect.DeepEqual(sel.Sorted(), []string{"DEC_A", "DEC_C"}) {
		t.Fatalf("selection=%v want [DEC_A DEC_C]", sel.Sorted())
	}
}

func TestSelection_SingleSelectReplaces(t *testing.T) {
	defs := testCatalogs().Decisions.ByID
	sel := NewSelection(false)
	sel = sel.Toggle(defs, "DEC_A", 100)
	sel = sel.Toggle(defs, "DEC_C", 0) // no affordability check in single-select
	if got := sel.Sorted(); len(got) != 1 || got[0] != "DEC_C" {
		t.Fatalf("single-select should replace wholesale: %v", got)
	}
}

func TestSelection_StaleIDsCostNothing(t *testing.T) {
	defs := testCatalogs().Decisions.ByID
	sel := NewSelection(true)
	sel.IDs["DEC_GONE"] = struct{}{}
	if got := sel.TotalCost(defs); got != 0 {
		t.Fatalf("stale selection cost=%d want 0", got)
	}
}
