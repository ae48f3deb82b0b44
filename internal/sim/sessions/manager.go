// Package sessions owns the registry of running game sessions: create, resume,
// attach bookkeeping, the sqlite session read model, and end-of-game archival.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ohisim.ai/internal/persistence/archive"
	"ohisim.ai/internal/persistence/indexdb"
	persistlog "ohisim.ai/internal/persistence/log"
	"ohisim.ai/internal/persistence/snapshot"
	"ohisim.ai/internal/sim/catalogs"
	"ohisim.ai/internal/sim/game"
	"ohisim.ai/internal/sim/rankings"
	"ohisim.ai/internal/sim/tuning"
)

var (
	ErrUnknownCountry  = errors.New("sessions: unknown country")
	ErrUnknownScenario = errors.New("sessions: unknown scenario")
	ErrCountryBarred   = errors.New("sessions: country not in scenario pool")
	ErrFull            = errors.New("sessions: session limit reached")
	ErrNotFound        = errors.New("sessions: not found")
	ErrBadToken        = errors.New("sessions: unknown resume token")
)

// endedGrace keeps a finished session attachable long enough for the client
// to render the final report before eviction.
const endedGrace = 5 * time.Minute

// Deps are the collaborators every new session is wired with.
type Deps struct {
	Tuning   tuning.Tuning
	Catalogs *catalogs.Catalogs
	Provider game.ResultProvider
	Advisor  game.AdvisorAsker

	DataDir      string
	SnapshotSink chan<- game.SnapshotBlob
	DB           *indexdb.SQLiteIndex // may be nil in tests

	// FinalReport renders the end-of-game report stored in the archive.
	// May be nil; the archive then carries meta + snapshot only.
	FinalReport func(game.GameState) any

	MaxSessions int
	Logger      *log.Logger
}

type entry struct {
	sess        *game.Session
	cancel      context.CancelFunc
	playerID    string
	playerName  string
	resumeToken string
	scenarioID  string
	createdAt   time.Time

	mu    sync.Mutex
	ended bool
}

// Created is what the transport needs to send WELCOME.
type Created struct {
	Session     *game.Session
	SessionID   string
	PlayerID    string
	PlayerName  string
	ResumeToken string
	ScenarioID  string
	MultiSelect bool
}

type Manager struct {
	cfg  Config
	deps Deps

	mu      sync.RWMutex
	entries map[string]*entry
	resume  map[string]string // token -> session id

	baseCtx context.Context
	wg      sync.WaitGroup
}

func NewManager(cfg Config, deps Deps) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Catalogs == nil {
		return nil, fmt.Errorf("sessions: nil catalogs")
	}
	if deps.MaxSessions <= 0 {
		deps.MaxSessions = 256
	}
	return &Manager{
		cfg:     cfg,
		deps:    deps,
		entries: map[string]*entry{},
		resume:  map[string]string{},
		baseCtx: context.Background(),
	}, nil
}

// Start sets the parent context for session loops. Sessions created before
// Start run under context.Background.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	m.baseCtx = ctx
	m.mu.Unlock()
}

// Wait blocks until every session loop has exited.
func (m *Manager) Wait() { m.wg.Wait() }

type CreateParams struct {
	PlayerName string
	CountryISO string
	ScenarioID string
}

func (m *Manager) Create(params CreateParams) (Created, error) {
	spec, ok := m.cfg.scenario(params.ScenarioID)
	if !ok {
		return Created{}, ErrUnknownScenario
	}
	country, ok := m.deps.Catalogs.Countries.ByISO[params.CountryISO]
	if !ok {
		return Created{}, ErrUnknownCountry
	}
	if !spec.allowsCountry(country.ISO) {
		return Created{}, ErrCountryBarred
	}

	m.mu.Lock()
	if len(m.entries) >= m.deps.MaxSessions {
		m.mu.Unlock()
		return Created{}, ErrFull
	}
	m.mu.Unlock()

	sessionID := uuid.NewString()
	sess, err := game.NewSession(game.SessionConfig{
		ID:          sessionID,
		Country:     country,
		Seed:        seedFor(sessionID) + spec.SeedOffset,
		MultiSelect: spec.MultiSelect,
	}, m.deps.Tuning, m.deps.Catalogs, m.deps.Provider)
	if err != nil {
		return Created{}, err
	}
	sess.SetAdvisor(m.deps.Advisor)
	if m.deps.SnapshotSink != nil {
		sess.SetSnapshotSink(m.deps.SnapshotSink)
	}
	if m.deps.DataDir != "" {
		dir := m.SessionDir(sessionID)
		sess.SetCycleLogger(persistlog.NewCycleLogger(dir))
		sess.SetAuditLogger(persistlog.NewAuditLogger(dir))
	}

	e := &entry{
		sess:        sess,
		playerID:    uuid.NewString(),
		playerName:  params.PlayerName,
		resumeToken: uuid.NewString(),
		scenarioID:  spec.ID,
		createdAt:   time.Now(),
	}
	sess.SetCycleHook(func(rec game.CycleRecord, st game.GameState) {
		m.recordSessionRow(st)
	})
	sess.SetEndedHook(func(st game.GameState) {
		m.onEnded(e, st)
	})

	m.mu.Lock()
	m.entries[sessionID] = e
	m.resume[e.resumeToken] = sessionID
	base := m.baseCtx
	m.mu.Unlock()

	ctx, cancel := context.WithCancel(base)
	e.cancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && m.deps.Logger != nil {
			m.deps.Logger.Printf("session %s loop: %v", sessionID, err)
		}
	}()

	m.recordSessionRow(game.GameState{SessionID: sessionID, CountryISO: country.ISO, Phase: game.PhaseSetup})
	if m.deps.Logger != nil {
		m.deps.Logger.Printf("session %s created country=%s scenario=%s player=%q",
			sessionID, country.ISO, spec.ID, params.PlayerName)
	}
	return m.created(e, sessionID), nil
}

// Resume maps a resume token back to its running session.
func (m *Manager) Resume(token string) (Created, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.resume[token]
	if !ok {
		return Created{}, ErrBadToken
	}
	e, ok := m.entries[id]
	if !ok {
		return Created{}, ErrBadToken
	}
	return m.created(e, id), nil
}

func (m *Manager) Get(id string) (*game.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.sess, nil
}

// SessionDir is where a session's loggers and saves live.
func (m *Manager) SessionDir(id string) string {
	return filepath.Join(m.deps.DataDir, "sessions", id)
}

// Shutdown cancels every session loop. Call Wait afterwards.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.cancel != nil {
			e.cancel()
		}
	}
}

// List returns the live metrics view of every session, newest first.
func (m *Manager) List() []game.SessionMetrics {
	m.mu.RLock()
	out := make([]game.SessionMetrics, 0, len(m.entries))
	created := make(map[string]time.Time, len(m.entries))
	for id, e := range m.entries {
		out = append(out, e.sess.Metrics())
		created[id] = e.createdAt
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return created[out[i].SessionID].After(created[out[j].SessionID])
	})
	return out
}

// LiveScores implements the rankings live source.
func (m *Manager) LiveScores() []rankings.LiveEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]rankings.LiveEntry, 0, len(m.entries))
	for _, e := range m.entries {
		mv := e.sess.Metrics()
		if mv.Phase == string(game.PhaseEnded) || mv.Phase == string(game.PhaseSetup) {
			continue
		}
		out = append(out, rankings.LiveEntry{
			SessionID:  mv.SessionID,
			CountryISO: mv.CountryISO,
			PlayerName: e.playerName,
			Score:      mv.Score,
		})
	}
	return out
}

func (m *Manager) created(e *entry, id string) Created {
	return Created{
		Session:     e.sess,
		SessionID:   id,
		PlayerID:    e.playerID,
		PlayerName:  e.playerName,
		ResumeToken: e.resumeToken,
		ScenarioID:  e.scenarioID,
		MultiSelect: m.mustScenario(e.scenarioID).MultiSelect,
	}
}

func (m *Manager) mustScenario(id string) ScenarioSpec {
	spec, _ := m.cfg.scenario(id)
	return spec
}

func (m *Manager) recordSessionRow(st game.GameState) {
	if m.deps.DB == nil {
		return
	}
	m.deps.DB.UpsertSession(indexdb.SessionRow{
		ID:         st.SessionID,
		CountryISO: st.CountryISO,
		Phase:      string(st.Phase),
		Cycle:      st.Cycle,
		Year:       st.Year,
		Score:      st.Score,
		Rank:       st.Rank,
	})
	if rec := len(st.History); rec > 0 {
		m.deps.DB.RecordCycle(st.SessionID, st.History[rec-1])
	}
}

// onEnded runs on the session loop goroutine; the archive write happens off
// it so the loop can keep serving the final state to attached clients.
func (m *Manager) onEnded(e *entry, st game.GameState) {
	e.mu.Lock()
	if e.ended {
		e.mu.Unlock()
		return
	}
	e.ended = true
	e.mu.Unlock()

	m.recordSessionRow(st)
	stateJSON, err := json.Marshal(st)
	if err != nil {
		if m.deps.Logger != nil {
			m.deps.Logger.Printf("session %s final marshal: %v", st.SessionID, err)
		}
		return
	}

	go func() {
		if m.deps.DataDir != "" {
			finalPath := filepath.Join(m.SessionDir(st.SessionID), "final.snap.zst")
			if err := persistFinal(finalPath, st, stateJSON); err != nil {
				if m.deps.Logger != nil {
					m.deps.Logger.Printf("session %s final snapshot: %v", st.SessionID, err)
				}
			} else {
				var report any
				if m.deps.FinalReport != nil {
					report = m.deps.FinalReport(st)
				}
				meta := archive.Meta{
					SessionID:  st.SessionID,
					CountryISO: st.CountryISO,
					Cycles:     st.Stats.CyclesCompleted,
					FinalScore: st.Score,
					FinalRank:  st.Rank,
				}
				if _, err := archive.ArchiveFinishedGame(m.deps.DataDir, finalPath, meta, report); err != nil && m.deps.Logger != nil {
					m.deps.Logger.Printf("session %s archive: %v", st.SessionID, err)
				}
			}
		}
		time.Sleep(endedGrace)
		m.evict(st.SessionID)
	}()
}

func (m *Manager) evict(id string) {
	m.mu.Lock()
	e, ok := m.entries[id]
	if ok {
		delete(m.entries, id)
		delete(m.resume, e.resumeToken)
	}
	m.mu.Unlock()
	if ok && e.cancel != nil {
		e.cancel()
	}
}

func persistFinal(path string, st game.GameState, stateJSON json.RawMessage) error {
	return snapshot.WriteSnapshot(path, snapshot.New(st.SessionID, st.Cycle, stateJSON))
}

func seedFor(sessionID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(sessionID))
	return int64(h.Sum64() & 0x7fffffffffffffff)
}
