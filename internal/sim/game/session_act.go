package game

import (
	"encoding/json"
	"errors"
	"time"

	"ohisim.ai/internal/protocol"
	"ohisim.ai/internal/sim/catalogs"
)

func (s *Session) handleAct(env ActionEnvelope) {
	for _, inst := range env.Act.Instants {
		code, detail := s.applyInstant(env.PlayerID, inst)
		s.ack(env.PlayerID, inst, code, detail)
		s.audit(inst, code, detail)
	}
	s.publish()
}

// applyInstant returns an empty code on success, a protocol error code on
// rejection.
func (s *Session) applyInstant(playerID string, inst protocol.Instant) (string, string) {
	switch inst.Type {
	case protocol.InstSelectDecision:
		st, err := ToggleDecision(s.state, s.cats, inst.DecisionID)
		if err != nil {
			return codeFor(err), err.Error()
		}
		s.state = st
		return "", ""

	case protocol.InstAllocate:
		if s.state.Phase != PhasePlaying && s.state.Phase != PhasePaused {
			return protocol.ErrBadPhase, string(s.state.Phase)
		}
		nb, err := s.state.Budget.Allocate(inst.Pillar, inst.Points)
		if err != nil {
			return codeFor(err), err.Error()
		}
		s.state.Budget = nb
		return "", ""

	case protocol.InstInvestPolicy:
		if s.state.Phase != PhasePlaying && s.state.Phase != PhasePaused {
			return protocol.ErrBadPhase, string(s.state.Phase)
		}
		pol, nb, err := InvestPolicy(s.state.Policies, s.state.Budget, s.cats.Policies.ByID, inst.PolicyID)
		if err != nil {
			return codeFor(err), err.Error()
		}
		s.state.Policies = pol
		s.state.Budget = nb
		return "", ""

	case protocol.InstConfirmDecisions:
		return s.confirmDecisions()

	case protocol.InstResolveEvent:
		st, err := ResolveEvent(s.state, s.cats, inst.EventID, inst.ChoiceID)
		if err != nil {
			return codeFor(err), err.Error()
		}
		s.state = st
		return "", ""

	case protocol.InstDismissEvent:
		st, err := DismissEvent(s.state, inst.EventID)
		if err != nil {
			return codeFor(err), err.Error()
		}
		s.state = st
		return "", ""

	case protocol.InstPause:
		st, err := Pause(s.state)
		if err != nil {
			return codeFor(err), err.Error()
		}
		s.state = st
		return "", ""

	case protocol.InstResume:
		st, err := Resume(s.state)
		if err != nil {
			return codeFor(err), err.Error()
		}
		s.state = st
		return "", ""

	case protocol.InstAckResults:
		st, err := AckResults(s.state, s.drawOffer())
		if err != nil {
			return codeFor(err), err.Error()
		}
		s.state = st
		s.maybeTriggerEvent()
		return "", ""

	case protocol.InstAskAdvisor:
		return s.askAdvisor(playerID, inst)

	case protocol.InstSave:
		if s.snapshotSink == nil {
			return protocol.ErrBadRequest, "saving disabled"
		}
		select {
		case s.snapshotSink <- s.snapshotBlob():
			return "", ""
		default:
			return protocol.ErrSessionBusy, "snapshot queue full"
		}

	case protocol.InstLoad:
		// Loads go through the transport layer (snapshot file access).
		return protocol.ErrBadRequest, "LOAD is handled by the transport"

	default:
		return protocol.ErrProtoBadRequest, "unknown instant type " + inst.Type
	}
}

// confirmDecisions runs the cycle advance: the provider computes the
// simulation result from the confirmed decisions, active policies and live
// long-term effects, and the state machine folds it in.
func (s *Session) confirmDecisions() (string, string) {
	if s.state.Phase != PhasePlaying && s.state.Phase != PhasePaused {
		return protocol.ErrBadPhase, string(s.state.Phase)
	}
	offered := s.state.OfferedDefs(s.cats)
	impacts := map[string]float64{}
	for _, id := range s.state.Selection.Sorted() {
		if d, ok := offered[id]; ok {
			for pillar, v := range d.ExpectedImpacts {
				impacts[pillar] += v
			}
		}
	}
	req := ResultRequest{
		SessionID:          s.cfg.ID,
		CountryISO:         s.cfg.Country.ISO,
		Cycle:              s.state.Cycle,
		Year:               s.state.Year,
		Pillars:            s.state.Pillars,
		Score:              s.state.Score,
		Rank:               s.state.Rank,
		ConfirmedDecisions: s.state.Selection.Sorted(),
		DecisionImpacts:    impacts,
		PolicyImpacts:      PolicyCycleImpacts(s.state.Policies, s.cats.Policies.ByID),
		EffectImpacts:      EffectImpacts(s.state.Effects),
	}
	result, err := s.provider.CycleResult(req)
	if err != nil {
		return protocol.ErrInternal, err.Error()
	}

	prev := s.state
	st, err := AdvanceCycle(s.state, s.cats, s.scorer, s.tune, result)
	if err != nil {
		return codeFor(err), err.Error()
	}
	s.state = st

	rec := st.History[len(st.History)-1]
	if s.cycleLog != nil {
		_ = s.cycleLog.WriteCycle(rec)
	}
	if s.onCycle != nil {
		s.onCycle(rec, st)
	}
	if s.snapshotSink != nil && s.tune.SnapshotEveryCycles > 0 && prev.Cycle%s.tune.SnapshotEveryCycles == 0 {
		select {
		case s.snapshotSink <- s.snapshotBlob():
		default:
		}
	}
	s.broadcastResults()
	if st.Phase == PhaseEnded && s.onEnded != nil {
		s.onEnded(st)
	}
	return "", ""
}

func (s *Session) askAdvisor(playerID string, inst protocol.Instant) (string, string) {
	if s.advisor == nil {
		return protocol.ErrBadRequest, "advisor disabled"
	}
	now := s.tick.Load()
	hz := uint64(s.tune.TickRateHz)
	if hz == 0 {
		hz = 5
	}
	window := uint64(s.tune.RateLimits.AskAdvisorWindowSec) * hz
	if window > 0 && s.tune.RateLimits.AskAdvisorMax > 0 {
		keep := s.askWindow[:0]
		for _, t := range s.askWindow {
			if now-t < window {
				keep = append(keep, t)
			}
		}
		s.askWindow = keep
		if len(s.askWindow) >= s.tune.RateLimits.AskAdvisorMax {
			return protocol.ErrRateLimit, "advisor question limit reached"
		}
		s.askWindow = append(s.askWindow, now)
	}
	answer, err := s.advisor.Ask(AdvisorRequest{
		SessionID:  s.cfg.ID,
		CountryISO: s.cfg.Country.ISO,
		Cycle:      s.state.Cycle,
		Pillars:    s.state.Pillars,
		Score:      s.state.Score,
		BudgetLeft: s.state.Budget.Remaining(),
		Question:   inst.Question,
	})
	if err != nil {
		// The advisor client falls back internally; an error here is terminal.
		return protocol.ErrInternal, err.Error()
	}
	return "", answer
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, ErrBadPhase):
		return protocol.ErrBadPhase
	case errors.Is(err, ErrInsufficientBudget):
		return protocol.ErrNoBudget
	case errors.Is(err, ErrUnknownDecision):
		return protocol.ErrUnknownDecision
	case errors.Is(err, ErrUnknownChoice), errors.Is(err, ErrNoActiveEvent):
		return protocol.ErrUnknownChoice
	case errors.Is(err, ErrUnknownPolicy):
		return protocol.ErrUnknownPolicy
	case errors.Is(err, ErrPolicyLocked), errors.Is(err, ErrPolicyMaxed):
		return protocol.ErrPolicyLocked
	case errors.Is(err, ErrMalformedResult):
		return protocol.ErrMalformedResult
	case errors.Is(err, ErrWeights):
		return protocol.ErrInternal
	default:
		return protocol.ErrBadRequest
	}
}

func (s *Session) ack(playerID string, inst protocol.Instant, code, detail string) {
	out, ok := s.clients[playerID]
	if !ok {
		return
	}
	msg := protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          inst.ID,
		Accepted:        code == "",
		Code:            code,
		Message:         detail,
		Cycle:           s.state.Cycle,
		SessionID:       s.cfg.ID,
	}
	b, _ := json.Marshal(msg)
	trySend(out, b)
}

func (s *Session) audit(inst protocol.Instant, code, detail string) {
	if s.auditLog == nil {
		return
	}
	_ = s.auditLog.WriteAudit(AuditEntry{
		TS:        time.Now().UTC().Format(time.RFC3339),
		SessionID: s.cfg.ID,
		Cycle:     s.state.Cycle,
		InstantID: inst.ID,
		Type:      inst.Type,
		Accepted:  code == "",
		Code:      code,
		Detail:    truncate(detail, 200),
	})
}

func (s *Session) sendState(out chan []byte) {
	b, _ := json.Marshal(s.stateMsg())
	trySend(out, b)
}

func (s *Session) stateMsg() protocol.StateMsg {
	st := s.state
	stage := ResolveStage(st.Score, s.cats.Stages.Stages)
	msg := protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		SessionID:       s.cfg.ID,
		Cycle:           st.Cycle,
		Year:            st.Year,
		Phase:           string(st.Phase),
		Pillars:         pillarsView(st.Pillars),
		Score:           st.Score,
		Stage:           stage.ID,
		Rank:            st.Rank,
		Budget: protocol.BudgetView{
			TotalPoints: st.Budget.TotalPoints,
			Spent:       st.Budget.Spent.AsMap(),
			SpentTotal:  st.Budget.Spent.Total(),
			CarryOver:   st.Budget.CarryOver,
			Remaining:   st.Budget.Remaining(),
		},
		Decisions: append([]string(nil), st.Offered...),
		Selected:  st.Selection.Sorted(),
	}
	for _, id := range s.cats.Policies.Order {
		ps := st.Policies[id]
		def := s.cats.Policies.ByID[id]
		msg.Policies = append(msg.Policies, protocol.PolicyView{
			PolicyID: id,
			Level:    ps.Level,
			Invested: ps.Invested,
			Status:   ps.Status(def, st.Policies),
		})
	}
	if st.CurrentEvent != nil {
		if def, ok := s.cats.Events.ByID[st.CurrentEvent.EventID]; ok {
			ev := eventView(def, s.remainingDeadlineSec(st.CurrentEvent))
			msg.ActiveEvent = &ev
		}
	}
	return msg
}

func (s *Session) remainingDeadlineSec(ev *ActiveEvent) int {
	if ev.DeadlineTick == 0 {
		return 0
	}
	now := s.tick.Load()
	if now >= ev.DeadlineTick {
		return 0
	}
	hz := s.tune.TickRateHz
	if hz <= 0 {
		hz = 5
	}
	return int(ev.DeadlineTick-now) / hz
}

func (s *Session) broadcastEvent(def catalogs.EventDef, deadlineSec int) {
	msg := protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		SessionID:       s.cfg.ID,
		Event:           eventView(def, deadlineSec),
	}
	b, _ := json.Marshal(msg)
	for _, out := range s.clients {
		trySend(out, b)
	}
}

func (s *Session) broadcastResults() {
	st := s.state
	stage := ResolveStage(st.Score, s.cats.Stages.Stages)
	msg := protocol.ResultsMsg{
		Type:            protocol.TypeResults,
		ProtocolVersion: protocol.Version,
		SessionID:       s.cfg.ID,
		Cycle:           st.Cycle - 1,
		Year:            st.Year,
		Pillars:         pillarsView(st.Pillars),
		Score:           st.Score,
		ScoreDelta:      st.LastScoreDelta,
		Stage:           stage.ID,
		Rank:            st.Rank,
		Narrative:       st.LastNarrative,
		Achievements:    append([]string(nil), st.LastUnlocked...),
		Final:           st.Phase == PhaseEnded,
	}
	b, _ := json.Marshal(msg)
	for _, out := range s.clients {
		trySend(out, b)
	}
}

func eventView(def catalogs.EventDef, deadlineSec int) protocol.EventView {
	ev := protocol.EventView{
		EventID:     def.ID,
		Title:       def.Title,
		Description: def.Description,
		Severity:    def.Severity,
		DeadlineSec: deadlineSec,
	}
	for _, ch := range def.Choices {
		ev.Choices = append(ev.Choices, protocol.ChoiceView{
			ChoiceID: ch.ID,
			Label:    ch.Label,
			Cost:     ch.Cost,
			Impacts:  ch.Impacts,
		})
	}
	return ev
}

func pillarsView(p PillarScores) protocol.PillarsView {
	return protocol.PillarsView{
		Governance:      p.Governance,
		HazardControl:   p.HazardControl,
		HealthVigilance: p.HealthVigilance,
		Restoration:     p.Restoration,
	}
}

// trySend drops the message if the client channel is full; a slow client
// misses intermediate states and resyncs from the next one.
func trySend(out chan []byte, b []byte) {
	select {
	case out <- b:
	default:
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
