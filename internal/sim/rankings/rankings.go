// Package rankings builds the country leaderboard from the sqlite read model
// plus whatever live sessions are currently playing. Deltas compare against
// the previous computation, so the first board shows no movement.
package rankings

import (
	"sort"
	"sync"
	"time"

	"ohisim.ai/internal/persistence/indexdb"
	"ohisim.ai/internal/sim/catalogs"
	"ohisim.ai/internal/sim/game"
)

// LiveEntry is one running session's standing.
type LiveEntry struct {
	SessionID  string
	CountryISO string
	PlayerName string
	Score      float64
}

// LiveSource reports the sessions currently in play. May be nil.
type LiveSource interface {
	LiveScores() []LiveEntry
}

type Row struct {
	Rank      int     `json:"rank"`
	ISO       string  `json:"iso"`
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	Stage     string  `json:"stage"`
	Delta     float64 `json:"delta"`
	Live      bool    `json:"live"`
	SessionID string  `json:"session_id,omitempty"`
}

type Bucket struct {
	StageID string   `json:"stage_id"`
	Label   string   `json:"label"`
	Color   string   `json:"color,omitempty"`
	Min     float64  `json:"min"`
	Max     float64  `json:"max"`
	Count   int      `json:"count"`
	ISOs    []string `json:"isos"`
}

type Snapshot struct {
	GeneratedAt string   `json:"generated_at"`
	Rows        []Row    `json:"rows"`
	Buckets     []Bucket `json:"buckets"`
}

type Board struct {
	db     *indexdb.SQLiteIndex
	live   LiveSource
	stages []catalogs.StageDef

	mu   sync.Mutex
	prev map[string]float64 // by ISO or live session id
	last Snapshot
}

func NewBoard(db *indexdb.SQLiteIndex, live LiveSource, stages []catalogs.StageDef) *Board {
	return &Board{db: db, live: live, stages: stages, prev: map[string]float64{}}
}

// Compute builds a fresh snapshot. A live session shadows its country's
// database row so a player sees their own standing move, not the baseline.
func (b *Board) Compute() (Snapshot, error) {
	countries, err := b.db.ListCountries()
	if err != nil {
		return Snapshot{}, err
	}

	var livePlays []LiveEntry
	if b.live != nil {
		livePlays = b.live.LiveScores()
	}
	liveByISO := make(map[string]LiveEntry, len(livePlays))
	for _, e := range livePlays {
		cur, ok := liveByISO[e.CountryISO]
		if !ok || e.Score > cur.Score {
			liveByISO[e.CountryISO] = e
		}
	}

	rows := make([]Row, 0, len(countries))
	seen := make(map[string]bool, len(countries))
	for _, c := range countries {
		row := Row{ISO: c.ISO, Name: c.Name, Score: c.Score}
		if e, ok := liveByISO[c.ISO]; ok {
			row.Score = e.Score
			row.Live = true
			row.SessionID = e.SessionID
		}
		rows = append(rows, row)
		seen[c.ISO] = true
	}
	// Sessions playing a country the database does not know yet still rank.
	for iso, e := range liveByISO {
		if !seen[iso] {
			rows = append(rows, Row{ISO: iso, Name: iso, Score: e.Score, Live: true, SessionID: e.SessionID})
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].ISO < rows[j].ISO
	})

	b.mu.Lock()
	defer b.mu.Unlock()
	next := make(map[string]float64, len(rows))
	for i := range rows {
		rows[i].Rank = i + 1
		st := game.ResolveStage(rows[i].Score, b.stages)
		rows[i].Stage = st.ID
		if prev, ok := b.prev[rows[i].ISO]; ok {
			rows[i].Delta = rows[i].Score - prev
		}
		next[rows[i].ISO] = rows[i].Score
	}
	b.prev = next

	snap := Snapshot{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Rows:        rows,
		Buckets:     b.bucketize(rows),
	}
	b.last = snap
	return snap, nil
}

// Last returns the most recent snapshot without recomputing.
func (b *Board) Last() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

func (b *Board) bucketize(rows []Row) []Bucket {
	buckets := make([]Bucket, len(b.stages))
	index := make(map[string]int, len(b.stages))
	for i, st := range b.stages {
		buckets[i] = Bucket{StageID: st.ID, Label: st.Label, Color: st.Color, Min: st.Min, Max: st.Max, ISOs: []string{}}
		index[st.ID] = i
	}
	for _, r := range rows {
		i, ok := index[r.Stage]
		if !ok {
			continue
		}
		buckets[i].Count++
		buckets[i].ISOs = append(buckets[i].ISOs, r.ISO)
	}
	return buckets
}
