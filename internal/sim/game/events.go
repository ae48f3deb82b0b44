package game

import (
	"fmt"

	"ohisim.ai/internal/sim/catalogs"
)

// ActiveEvent is the one in-flight crisis/opportunity; at most one exists.
type ActiveEvent struct {
	EventID      string `json:"event_id"`
	StartedCycle int    `json:"started_cycle"`
	DeadlineTick uint64 `json:"deadline_tick,omitempty"` // 0 = no deadline
}

// ActiveEffect is a long-term event consequence applied for a fixed number
// of subsequent cycles, decremented on each cycle advance.
type ActiveEffect struct {
	SourceEventID   string             `json:"source_event_id"`
	Impacts         map[string]float64 `json:"impacts"`
	RemainingCycles int                `json:"remaining_cycles"`
}

// TriggerEvent interrupts play with an event from the catalog.
func TriggerEvent(s GameState, cats *catalogs.Catalogs, eventID string, deadlineTick uint64) (GameState, error) {
	if s.Phase != PhasePlaying {
		return s, fmt.Errorf("%w: %s", ErrBadPhase, s.Phase)
	}
	if _, ok := cats.Events.ByID[eventID]; !ok {
		return s, fmt.Errorf("%w: %s", ErrUnknownChoice, eventID)
	}
	out := s
	out.Phase = PhaseEvent
	out.CurrentEvent = &ActiveEvent{
		EventID:      eventID,
		StartedCycle: s.Cycle,
		DeadlineTick: deadlineTick,
	}
	return out, nil
}

// ResolveEvent applies one of the active event's choices: immediate impacts
// clamped per pillar, cost deducted through the budget ledger, long-term
// effects queued. The UI pre-filters unaffordable choices but the core still
// validates. On any failure the input state is returned unchanged.
func ResolveEvent(s GameState, cats *catalogs.Catalogs, eventID, choiceID string) (GameState, error) {
	if s.Phase != PhaseEvent || s.CurrentEvent == nil {
		return s, fmt.Errorf("%w: %s", ErrBadPhase, s.Phase)
	}
	if s.CurrentEvent.EventID != eventID {
		return s, fmt.Errorf("%w: event %s is not active", ErrUnknownChoice, eventID)
	}
	def, ok := cats.Events.ByID[eventID]
	if !ok {
		return s, fmt.Errorf("%w: %s", ErrUnknownChoice, eventID)
	}
	var choice *catalogs.ChoiceDef
	for i := range def.Choices {
		if def.Choices[i].ID == choiceID {
			choice = &def.Choices[i]
			break
		}
	}
	if choice == nil {
		return s, fmt.Errorf("%w: %s/%s", ErrUnknownChoice, eventID, choiceID)
	}

	nb, err := s.Budget.Allocate(chargePillar(*choice), choice.Cost)
	if err != nil {
		return s, err
	}

	out := s
	out.Budget = nb
	out.Pillars = out.Pillars.ApplyImpacts(choice.Impacts)
	out.Effects = append([]ActiveEffect(nil), s.Effects...)
	for _, lt := range choice.LongTermEffects {
		if lt.Cycles <= 0 {
			continue
		}
		out.Effects = append(out.Effects, ActiveEffect{
			SourceEventID:   eventID,
			Impacts:         lt.Impacts,
			RemainingCycles: lt.Cycles,
		})
	}
	out.Stats.EventsHandled++
	out.LastEventID = eventID
	out.LastEventChoiceID = choiceID
	out.CurrentEvent = nil
	out.Phase = PhasePlaying
	return out, nil
}

// DismissEvent clears the active event with zero impact. Deadline timeouts
// route here when the event template names no default choice.
func DismissEvent(s GameState, eventID string) (GameState, error) {
	if s.Phase != PhaseEvent || s.CurrentEvent == nil {
		return s, fmt.Errorf("%w: %s", ErrBadPhase, s.Phase)
	}
	if eventID != "" && s.CurrentEvent.EventID != eventID {
		return s, fmt.Errorf("%w: event %s is not active", ErrUnknownChoice, eventID)
	}
	out := s
	out.LastEventID = s.CurrentEvent.EventID
	out.LastEventChoiceID = ""
	out.CurrentEvent = nil
	out.Phase = PhasePlaying
	return out, nil
}

// chargePillar books a choice's cost against the pillar it most strongly
// pushes upward, defaulting to governance for pure-mitigation choices.
func chargePillar(choice catalogs.ChoiceDef) string {
	best := PillarGovernance
	bestV := 0.0
	for pillar, v := range choice.Impacts {
		if IsPillar(pillar) && v > bestV {
			best, bestV = pillar, v
		}
	}
	return best
}

// tickEffects decrements remaining-cycle counters and drops expired effects.
func tickEffects(effects []ActiveEffect) []ActiveEffect {
	var out []ActiveEffect
	for _, e := range effects {
		e.RemainingCycles--
		if e.RemainingCycles > 0 {
			out = append(out, e)
		}
	}
	return out
}

// EffectImpacts sums the per-cycle impacts of all live long-term effects.
func EffectImpacts(effects []ActiveEffect) map[string]float64 {
	out := map[string]float64{}
	for _, e := range effects {
		for pillar, v := range e.Impacts {
			out[pillar] += v
		}
	}
	return out
}
