package game

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"ohisim.ai/internal/protocol"
	"ohisim.ai/internal/sim/catalogs"
	"ohisim.ai/internal/sim/tuning"
)

// ResultProvider computes the cycle outcome when the player confirms their
// decisions. The advisor layer implements it (remote AI backend or the local
// deterministic model).
type ResultProvider interface {
	CycleResult(req ResultRequest) (SimulationResult, error)
}

// AdvisorAsker answers free-text ASK_ADVISOR questions. Optional.
type AdvisorAsker interface {
	Ask(req AdvisorRequest) (string, error)
}

type ResultRequest struct {
	SessionID  string
	CountryISO string
	Cycle      int
	Year       int
	Pillars    PillarScores
	Score      float64
	Rank       int

	ConfirmedDecisions []string
	DecisionImpacts    map[string]float64
	PolicyImpacts      map[string]float64
	EffectImpacts      map[string]float64
}

type AdvisorRequest struct {
	SessionID  string
	CountryISO string
	Cycle      int
	Pillars    PillarScores
	Score      float64
	BudgetLeft int
	Question   string
}

// AuditLogger records every accepted or rejected instant. May be nil.
type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type AuditEntry struct {
	TS        string `json:"ts"`
	SessionID string `json:"session_id"`
	Cycle     int    `json:"cycle"`
	InstantID string `json:"instant_id"`
	Type      string `json:"type"`
	Accepted  bool   `json:"accepted"`
	Code      string `json:"code,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// CycleLogger records one entry per completed cycle. May be nil.
type CycleLogger interface {
	WriteCycle(rec CycleRecord) error
}

// SnapshotRequest asks the session loop to emit a snapshot of its state.
type SnapshotRequest struct {
	Resp chan SnapshotBlob
}

// SnapshotBlob is a marshalled GameState plus addressing metadata; the
// persistence layer wraps it into a versioned snapshot file off-thread.
type SnapshotBlob struct {
	SessionID string
	Cycle     int
	State     json.RawMessage
}

type ActionEnvelope struct {
	PlayerID string
	Act      protocol.ActMsg
}

type AttachRequest struct {
	PlayerID string
	Out      chan []byte
	Resp     chan error
}

type SessionConfig struct {
	ID          string
	Country     catalogs.CountryDef
	Seed        int64
	MultiSelect bool
}

// SessionMetrics is a point-in-time view for /metrics and the admin API.
type SessionMetrics struct {
	SessionID  string  `json:"session_id"`
	CountryISO string  `json:"country_iso"`
	Phase      string  `json:"phase"`
	Cycle      int     `json:"cycle"`
	Year       int     `json:"year"`
	Score      float64 `json:"score"`
	Clients    int     `json:"clients"`
	InboxDepth int     `json:"inbox_depth"`
}

// Session is a single-threaded authoritative game simulation. All state must
// be accessed only from the session loop goroutine.
type Session struct {
	cfg    SessionConfig
	tune   tuning.Tuning
	cats   *catalogs.Catalogs
	scorer Scorer

	state GameState
	rng   *rand.Rand

	clients map[string]chan []byte

	inbox  chan ActionEnvelope
	attach chan AttachRequest
	leave  chan string
	snapRq chan SnapshotRequest
	loadRq chan loadRequest

	tick atomic.Uint64

	provider ResultProvider
	advisor  AdvisorAsker

	auditLog AuditLogger
	cycleLog CycleLogger

	snapshotSink chan<- SnapshotBlob
	onCycle      func(CycleRecord, GameState)
	onEnded      func(GameState)

	askWindow []uint64

	phaseView   atomic.Value // string
	metricsView atomic.Value // SessionMetrics
}

type loadRequest struct {
	State json.RawMessage
	Resp  chan error
}

func NewSession(cfg SessionConfig, t tuning.Tuning, cats *catalogs.Catalogs, provider ResultProvider) (*Session, error) {
	scorer, err := NewScorer(t)
	if err != nil {
		return nil, err
	}
	st, err := NewGameState(cfg.ID, cfg.Country, t, scorer)
	if err != nil {
		return nil, err
	}
	st.Selection = NewSelection(cfg.MultiSelect)
	s := &Session{
		cfg:      cfg,
		tune:     t,
		cats:     cats,
		scorer:   scorer,
		state:    st,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		clients:  map[string]chan []byte{},
		inbox:    make(chan ActionEnvelope, 64),
		attach:   make(chan AttachRequest, 4),
		leave:    make(chan string, 4),
		snapRq:   make(chan SnapshotRequest, 2),
		loadRq:   make(chan loadRequest, 1),
		provider: provider,
	}
	s.phaseView.Store(string(st.Phase))
	s.metricsView.Store(s.buildMetrics())
	return s, nil
}

func (s *Session) SetAdvisor(a AdvisorAsker)              { s.advisor = a }
func (s *Session) SetAuditLogger(l AuditLogger)           { s.auditLog = l }
func (s *Session) SetCycleLogger(l CycleLogger)           { s.cycleLog = l }
func (s *Session) SetSnapshotSink(ch chan<- SnapshotBlob) { s.snapshotSink = ch }

// SetCycleHook registers a callback invoked on the loop goroutine after each
// cycle advance; used by the rankings/read-model layer.
func (s *Session) SetCycleHook(fn func(CycleRecord, GameState)) { s.onCycle = fn }
func (s *Session) SetEndedHook(fn func(GameState))              { s.onEnded = fn }

func (s *Session) ID() string                   { return s.cfg.ID }
func (s *Session) Inbox() chan<- ActionEnvelope { return s.inbox }
func (s *Session) Leave() chan<- string         { return s.leave }
func (s *Session) CurrentTick() uint64          { return s.tick.Load() }

func (s *Session) Phase() string {
	v, _ := s.phaseView.Load().(string)
	return v
}

func (s *Session) Metrics() SessionMetrics {
	v, _ := s.metricsView.Load().(SessionMetrics)
	return v
}

// Attach registers a client output channel and replays the current state.
func (s *Session) Attach(ctx context.Context, playerID string, out chan []byte) error {
	req := AttachRequest{PlayerID: playerID, Out: out, Resp: make(chan error, 1)}
	select {
	case s.attach <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.Resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestSnapshot asks the loop for a state blob, for SAVE and admin use.
func (s *Session) RequestSnapshot(ctx context.Context) (SnapshotBlob, error) {
	req := SnapshotRequest{Resp: make(chan SnapshotBlob, 1)}
	select {
	case s.snapRq <- req:
	case <-ctx.Done():
		return SnapshotBlob{}, ctx.Err()
	}
	select {
	case blob := <-req.Resp:
		return blob, nil
	case <-ctx.Done():
		return SnapshotBlob{}, ctx.Err()
	}
}

// LoadState replaces the session state with a previously saved one.
func (s *Session) LoadState(ctx context.Context, raw json.RawMessage) error {
	req := loadRequest{State: raw, Resp: make(chan error, 1)}
	select {
	case s.loadRq <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.Resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the session loop until ctx is cancelled. It is the only
// goroutine that touches s.state.
func (s *Session) Run(ctx context.Context) error {
	hz := s.tune.TickRateHz
	if hz <= 0 {
		hz = 5
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	// setup -> playing with the first card offer.
	if st, err := Start(s.state, s.drawOffer()); err == nil {
		s.state = st
	}
	s.publish()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			now := s.tick.Add(1)
			s.checkEventDeadline(now)
			s.metricsView.Store(s.buildMetrics())

		case env := <-s.inbox:
			s.handleAct(env)

		case req := <-s.attach:
			s.clients[req.PlayerID] = req.Out
			req.Resp <- nil
			s.sendState(req.Out)

		case id := <-s.leave:
			delete(s.clients, id)

		case req := <-s.snapRq:
			req.Resp <- s.snapshotBlob()

		case req := <-s.loadRq:
			req.Resp <- s.importState(req.State)
		}
	}
}

func (s *Session) snapshotBlob() SnapshotBlob {
	raw, _ := json.Marshal(s.state)
	return SnapshotBlob{SessionID: s.cfg.ID, Cycle: s.state.Cycle, State: raw}
}

func (s *Session) importState(raw json.RawMessage) error {
	var st GameState
	if err := json.Unmarshal(raw, &st); err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if st.SessionID != "" && st.SessionID != s.cfg.ID {
		// Adopt the saved game under this session's identity.
		st.SessionID = s.cfg.ID
	}
	if st.Policies == nil {
		st.Policies = map[string]PolicyState{}
	}
	if st.Selection.IDs == nil {
		st.Selection = NewSelection(s.cfg.MultiSelect)
	}
	s.state = st
	s.publish()
	return nil
}

// drawOffer picks the cycle's decision cards: a seeded shuffle of the
// catalog, stable for a given (seed, cycle).
func (s *Session) drawOffer() []string {
	ids := append([]string(nil), s.cats.Decisions.Order...)
	r := rand.New(rand.NewSource(s.cfg.Seed + int64(s.state.Cycle)*7919))
	r.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	n := s.tune.DecisionsPerCycle
	if n <= 0 || n > len(ids) {
		n = len(ids)
	}
	return ids[:n]
}

// maybeTriggerEvent rolls a weighted event when the cadence is due.
func (s *Session) maybeTriggerEvent() {
	if s.tune.EventEveryCycles <= 0 || len(s.cats.Events.Order) == 0 {
		return
	}
	if s.state.Cycle%s.tune.EventEveryCycles != 0 {
		return
	}
	id := s.pickWeightedEvent()
	if id == "" {
		return
	}
	def := s.cats.Events.ByID[id]
	deadline := uint64(0)
	dsec := def.DeadlineSec
	if dsec == 0 {
		dsec = s.tune.EventDeadlineSec
	}
	if dsec > 0 {
		hz := s.tune.TickRateHz
		if hz <= 0 {
			hz = 5
		}
		deadline = s.tick.Load() + uint64(dsec*hz)
	}
	if st, err := TriggerEvent(s.state, s.cats, id, deadline); err == nil {
		s.state = st
		s.broadcastEvent(def, dsec)
	}
}

func (s *Session) pickWeightedEvent() string {
	total := 0.0
	for _, id := range s.cats.Events.Order {
		w := s.cats.Events.ByID[id].BaseWeight
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return ""
	}
	roll := s.rng.Float64() * total
	for _, id := range s.cats.Events.Order {
		w := s.cats.Events.ByID[id].BaseWeight
		if w <= 0 {
			continue
		}
		roll -= w
		if roll <= 0 {
			return id
		}
	}
	return s.cats.Events.Order[len(s.cats.Events.Order)-1]
}

// checkEventDeadline auto-resolves a timed-out event: the template's default
// choice when one is named, otherwise dismissal with zero impact.
func (s *Session) checkEventDeadline(now uint64) {
	ev := s.state.CurrentEvent
	if ev == nil || ev.DeadlineTick == 0 || now < ev.DeadlineTick {
		return
	}
	def, ok := s.cats.Events.ByID[ev.EventID]
	if ok && def.DefaultChoiceID != "" {
		if st, err := ResolveEvent(s.state, s.cats, ev.EventID, def.DefaultChoiceID); err == nil {
			s.state = st
			s.publish()
			return
		}
		// Default choice unaffordable: fall through to dismissal.
	}
	if st, err := DismissEvent(s.state, ev.EventID); err == nil {
		s.state = st
		s.publish()
	}
}

// buildMetrics reads s.state and must only run on the loop goroutine, or in
// the constructor before the loop starts.
func (s *Session) buildMetrics() SessionMetrics {
	return SessionMetrics{
		SessionID:  s.cfg.ID,
		CountryISO: s.cfg.Country.ISO,
		Phase:      string(s.state.Phase),
		Cycle:      s.state.Cycle,
		Year:       s.state.Year,
		Score:      s.state.Score,
		Clients:    len(s.clients),
		InboxDepth: len(s.inbox),
	}
}

func (s *Session) publish() {
	s.phaseView.Store(string(s.state.Phase))
	s.metricsView.Store(s.buildMetrics())
	for _, out := range s.clients {
		s.sendState(out)
	}
}
