package game

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestLifecycle_StartPauseResume(t *testing.T) {
	st, _, _ := newTestState(t)
	if st.Phase != PhaseSetup {
		t.Fatalf("fresh game phase=%s want setup", st.Phase)
	}

	st, err := Start(st, []string{"DEC_A"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if st.Phase != PhasePlaying || len(st.Offered) != 1 {
		t.Fatalf("after start: phase=%s offered=%v", st.Phase, st.Offered)
	}
	if _, err := Start(st, nil); !errors.Is(err, ErrBadPhase) {
		t.Fatalf("double start should fail: %v", err)
	}

	st, err = Pause(st)
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if _, err := Pause(st); !errors.Is(err, ErrBadPhase) {
		t.Fatalf("double pause should fail: %v", err)
	}
	st, err = Resume(st)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if st.Phase != PhasePlaying {
		t.Fatalf("after resume: phase=%s", st.Phase)
	}
}

func TestToggleDecision_UnknownCard(t *testing.T) {
	cats := testCatalogs()
	st, _, _ := playingState(t, "DEC_A")
	if _, err := ToggleDecision(st, cats, "DEC_B"); !errors.Is(err, ErrUnknownDecision) {
		t.Fatalf("card outside offer should be rejected: %v", err)
	}
	st, err := ToggleDecision(st, cats, "DEC_A")
	if err != nil {
		t.Fatalf("ToggleDecision: %v", err)
	}
	if !st.Selection.Has("DEC_A") {
		t.Fatalf("selection not recorded")
	}
}

func TestAdvanceCycle_HazardGain(t *testing.T) {
	cats := testCatalogs()
	st, scorer, tune := playingState(t)

	if math.Abs(st.Score-2.0) > 1e-9 {
		t.Fatalf("baseline score=%.4f want 2.0", st.Score)
	}

	result := SimulationResult{Pillars: map[string]float64{
		PillarGovernance:      50,
		PillarHazardControl:   60,
		PillarHealthVigilance: 50,
		PillarRestoration:     50,
	}}
	out, err := AdvanceCycle(st, cats, scorer, tune, result)
	if err != nil {
		t.Fatalf("AdvanceCycle: %v", err)
	}
	if math.Abs(out.Score-2.14) > 1e-9 {
		t.Fatalf("score=%.6f want 2.14", out.Score)
	}
	if math.Abs(out.LastScoreDelta-0.14) > 1e-9 {
		t.Fatalf("delta=%.6f want 0.14", out.LastScoreDelta)
	}
	if out.Cycle != 2 || out.Year != 2030 {
		t.Fatalf("cycle=%d year=%d want 2/2030", out.Cycle, out.Year)
	}
	if out.Phase != PhaseResults {
		t.Fatalf("phase=%s want results", out.Phase)
	}
	if len(out.History) != 1 || out.History[0].Cycle != 1 || out.History[0].Year != 2025 {
		t.Fatalf("history: %+v", out.History)
	}
}

func TestAdvanceCycle_BooksConfirmedCosts(t *testing.T) {
	cats := testCatalogs()
	st, scorer, tune := playingState(t)

	var err error
	st, err = ToggleDecision(st, cats, "DEC_A") // cost 30, governance
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	st, err = ToggleDecision(st, cats, "DEC_B") // cost 40, hazard_control
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}

	out, err := AdvanceCycle(st, cats, scorer, tune, resultFor(st.Pillars, nil))
	if err != nil {
		t.Fatalf("AdvanceCycle: %v", err)
	}
	rec := out.History[0]
	if rec.SpentTotal != 70 {
		t.Fatalf("spent_total=%d want 70", rec.SpentTotal)
	}
	if rec.Spent.Governance != 30 || rec.Spent.HazardControl != 40 {
		t.Fatalf("per-pillar spend: %+v", rec.Spent)
	}
	if !reflect.DeepEqual(rec.Decisions, []string{"DEC_A", "DEC_B"}) {
		t.Fatalf("decisions: %v", rec.Decisions)
	}
	// 30 unspent points roll into the next cycle.
	if out.Budget.CarryOver != 30 || out.Budget.TotalPoints != 100 {
		t.Fatalf("rolled budget: %+v", out.Budget)
	}
	if len(out.Selection.IDs) != 0 || out.Offered != nil {
		t.Fatalf("selection/offer should reset")
	}
	if out.Stats.DecisionsConfirmed != 2 || out.Stats.CyclesCompleted != 1 {
		t.Fatalf("stats: %+v", out.Stats)
	}
}

func TestAdvanceCycle_MalformedResultRejected(t *testing.T) {
	cats := testCatalogs()
	st, scorer, tune := playingState(t)
	before := st

	bad := SimulationResult{Pillars: map[string]float64{PillarGovernance: 50}}
	if _, err := AdvanceCycle(st, cats, scorer, tune, bad); !errors.Is(err, ErrMalformedResult) {
		t.Fatalf("expected ErrMalformedResult, got %v", err)
	}
	if _, err := AdvanceCycle(st, cats, scorer, tune, SimulationResult{}); !errors.Is(err, ErrMalformedResult) {
		t.Fatalf("expected ErrMalformedResult for nil pillars, got %v", err)
	}
	if st.Cycle != before.Cycle || len(st.History) != 0 {
		t.Fatalf("failed advance mutated state")
	}
}

func TestAdvanceCycle_EndsAtFinalYear(t *testing.T) {
	cats := testCatalogs()
	st, scorer, tune := playingState(t)

	for i := 0; i < 5; i++ {
		if st.Phase == PhaseResults {
			var err error
			st, err = AckResults(st, []string{"DEC_A"})
			if err != nil {
				t.Fatalf("AckResults cycle %d: %v", i, err)
			}
		}
		prior, err := json.Marshal(append([]CycleRecord{}, st.History...))
		if err != nil {
			t.Fatalf("marshal history: %v", err)
		}
		st, err = AdvanceCycle(st, cats, scorer, tune, resultFor(st.Pillars, map[string]float64{PillarGovernance: 1}))
		if err != nil {
			t.Fatalf("AdvanceCycle %d: %v", i, err)
		}
		// History is append-only: earlier records survive every advance intact.
		kept, err := json.Marshal(st.History[:len(st.History)-1])
		if err != nil {
			t.Fatalf("marshal history: %v", err)
		}
		if !bytes.Equal(prior, kept) {
			t.Fatalf("advance %d rewrote earlier history records", i)
		}
	}
	// 2025 + 5*5 = 2050 = end year; the fifth advance ends the game.
	if st.Phase != PhaseEnded {
		t.Fatalf("phase=%s want ended (year=%d)", st.Phase, st.Year)
	}
	if st.Year != 2050 || st.Cycle != 6 {
		t.Fatalf("year=%d cycle=%d want 2050/6", st.Year, st.Cycle)
	}
	if len(st.History) != 5 {
		t.Fatalf("history length=%d want 5", len(st.History))
	}
	if _, err := AdvanceCycle(st, cats, scorer, tune, resultFor(st.Pillars, nil)); !errors.Is(err, ErrBadPhase) {
		t.Fatalf("advance after end should fail: %v", err)
	}
}

func TestAckResults_OnlyFromResults(t *testing.T) {
	st, _, _ := playingState(t)
	if _, err := AckResults(st, nil); !errors.Is(err, ErrBadPhase) {
		t.Fatalf("expected ErrBadPhase, got %v", err)
	}
}
