package indexdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"ohisim.ai/internal/sim/game"
)

// SQLiteIndex is the read-model and admin store. Append-style rows (cycles,
// AI traces, session status) go through a single writer goroutine so the
// simulation never blocks on disk; CRUD and queries run synchronously.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqCycle reqKind = iota + 1
	reqTrace
	reqSession
	reqFlush
)

type req struct {
	kind reqKind

	sessionID string
	cycle     game.CycleRecord
	trace     TraceRow
	session   SessionRow
	flushed   chan struct{}
}

// TraceRow is one recorded AI workflow call.
type TraceRow struct {
	ID         string `json:"id"`
	Provider   string `json:"provider"`
	Operation  string `json:"operation"`
	CountryISO string `json:"country_iso,omitempty"`
	Success    bool   `json:"success"`
	LatencyMS  int64  `json:"latency_ms"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// SessionRow mirrors a session's latest public state.
type SessionRow struct {
	ID         string  `json:"id"`
	CountryISO string  `json:"country_iso"`
	Phase      string  `json:"phase"`
	Cycle      int     `json:"cycle"`
	Year       int     `json:"year"`
	Score      float64 `json:"score"`
	Rank       int     `json:"rank,omitempty"`
	UpdatedAt  string  `json:"updated_at"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-heavy trace/cycle workload; NORMAL is a fair
	// durability tradeoff for a secondary store.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			country_iso TEXT NOT NULL,
			phase TEXT NOT NULL,
			cycle INTEGER NOT NULL,
			year INTEGER NOT NULL,
			score REAL NOT NULL,
			rank INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS cycles (
			session_id TEXT NOT NULL,
			cycle INTEGER NOT NULL,
			year INTEGER NOT NULL,
			score REAL NOT NULL,
			new_score REAL NOT NULL,
			rank INTEGER NOT NULL DEFAULT 0,
			spent_total INTEGER NOT NULL DEFAULT 0,
			record TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (session_id, cycle)
		);`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'viewer',
			active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ai_traces (
			id TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			operation TEXT NOT NULL,
			country_iso TEXT NOT NULL DEFAULT '',
			success INTEGER NOT NULL,
			latency_ms INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ai_traces_created ON ai_traces(created_at);`,
		`CREATE TABLE IF NOT EXISTS countries (
			iso TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			region TEXT NOT NULL DEFAULT '',
			score REAL NOT NULL DEFAULT 0,
			stage TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS indicators (
			country_iso TEXT NOT NULL,
			code TEXT NOT NULL,
			year INTEGER NOT NULL,
			value REAL NOT NULL,
			PRIMARY KEY (country_iso, code, year)
		);`,
		`CREATE TABLE IF NOT EXISTS insights (
			country_iso TEXT PRIMARY KEY,
			status TEXT NOT NULL DEFAULT 'pending',
			content TEXT NOT NULL DEFAULT '',
			attempts INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordCycle enqueues a cycle record; drops it if the queue is saturated.
func (s *SQLiteIndex) RecordCycle(sessionID string, rec game.CycleRecord) {
	if s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqCycle, sessionID: sessionID, cycle: rec}:
	default:
	}
}

// RecordTrace enqueues an AI call trace row.
func (s *SQLiteIndex) RecordTrace(row TraceRow) {
	if s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqTrace, trace: row}:
	default:
	}
}

// UpsertSession enqueues the session's latest public state.
func (s *SQLiteIndex) UpsertSession(row SessionRow) {
	if s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqSession, session: row}:
	default:
	}
}

func (s *SQLiteIndex) loop() {
	for r := range s.ch {
		switch r.kind {
		case reqCycle:
			s.writeCycle(r.sessionID, r.cycle)
		case reqTrace:
			s.writeTrace(r.trace)
		case reqSession:
			s.writeSession(r.session)
		case reqFlush:
			close(r.flushed)
		}
	}
}

func (s *SQLiteIndex) writeCycle(sessionID string, rec game.CycleRecord) {
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_, _ = s.db.Exec(`INSERT OR REPLACE INTO cycles
		(session_id, cycle, year, score, new_score, rank, spent_total, record, recorded_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		sessionID, rec.Cycle, rec.Year, rec.Score, rec.NewScore, rec.NewRank, rec.SpentTotal,
		string(b), time.Now().UTC().Format(time.RFC3339))
}

func (s *SQLiteIndex) writeTrace(row TraceRow) {
	if row.CreatedAt == "" {
		row.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, _ = s.db.Exec(`INSERT OR REPLACE INTO ai_traces
		(id, provider, operation, country_iso, success, latency_ms, error, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		row.ID, row.Provider, row.Operation, row.CountryISO, boolInt(row.Success),
		row.LatencyMS, row.Error, row.CreatedAt)
}

func (s *SQLiteIndex) writeSession(row SessionRow) {
	if row.UpdatedAt == "" {
		row.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, _ = s.db.Exec(`INSERT OR REPLACE INTO sessions
		(id, country_iso, phase, cycle, year, score, rank, updated_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		row.ID, row.CountryISO, row.Phase, row.Cycle, row.Year, row.Score, row.Rank, row.UpdatedAt)
}

// Flush blocks until every write enqueued before it has been applied;
// tests and shutdown paths use it.
func (s *SQLiteIndex) Flush() {
	if s.closed.Load() {
		return
	}
	done := make(chan struct{})
	s.ch <- req{kind: reqFlush, flushed: done}
	<-done
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
