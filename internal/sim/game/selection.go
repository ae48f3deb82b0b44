package game

import (
	"sort"

	"ohisim.ai/internal/sim/catalogs"
)

// Selection is the set of decision IDs picked for the current cycle.
// In multi-select mode additions are capped by budget capacity; in
// single-select mode (advisor choice flows) any click replaces the set
// wholesale with no affordability check.
type Selection struct {
	IDs         map[string]struct{} `json:"ids"`
	MultiSelect bool                `json:"multi_select"`
}

func NewSelection(multiSelect bool) Selection {
	return Selection{IDs: map[string]struct{}{}, MultiSelect: multiSelect}
}

func (s Selection) Has(id string) bool {
	_, ok := s.IDs[id]
	return ok
}

func (s Selection) Sorted() []string {
	out := make([]string, 0, len(s.IDs))
	for id := range s.IDs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// TotalCost sums the cost of selected decisions still present in the offer.
// Stale IDs (selected but no longer offered) contribute nothing.
func (s Selection) TotalCost(offered map[string]catalogs.DecisionDef) int {
	total := 0
	for id := range s.IDs {
		if d, ok := offered[id]; ok {
			total += d.Cost
		}
	}
	return total
}

// Toggle flips id's membership. Deselection always succeeds. Selection is a
// silent no-op when the resulting total cost would exceed capacity: the UI
// disables unaffordable cards rather than surfacing an error.
func (s Selection) Toggle(offered map[string]catalogs.DecisionDef, id string, capacity int) Selection {
	out := Selection{IDs: make(map[string]struct{}, len(s.IDs)+1), MultiSelect: s.MultiSelect}

	if !s.MultiSelect {
		out.IDs[id] = struct{}{}
		return out
	}

	for k := range s.IDs {
		out.IDs[k] = struct{}{}
	}
	if _, ok := out.IDs[id]; ok {
		delete(out.IDs, id)
		return out
	}
	out.IDs[id] = struct{}{}
	if out.TotalCost(offered) > capacity {
		// Unaffordable: return the selection unchanged.
		delete(out.IDs, id)
	}
	return out
}
