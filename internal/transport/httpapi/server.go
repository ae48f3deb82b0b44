// Package httpapi is the bearer-token admin REST API behind the dashboard:
// user management, AI trace observability, the database-fill pipeline, and
// the country rankings.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"ohisim.ai/internal/persistence/indexdb"
	"ohisim.ai/internal/pipeline"
	"ohisim.ai/internal/sim/rankings"
)

type Server struct {
	db     *indexdb.SQLiteIndex
	runner *pipeline.Runner
	board  *rankings.Board
	token  string
	log    *log.Logger
}

func NewServer(db *indexdb.SQLiteIndex, runner *pipeline.Runner, board *rankings.Board, token string, logger *log.Logger) *Server {
	return &Server{db: db, runner: runner, board: board, token: token, log: logger}
}

// Register mounts every route, including the legacy insight-batch aliases,
// on the given mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/auth/users", s.protect(s.handleUsers))
	mux.HandleFunc("/api/v1/auth/users/", s.protect(s.handleUserByID))

	mux.HandleFunc("/api/v1/ai-config/traces", s.protect(s.handleTraces))
	mux.HandleFunc("/api/v1/ai-config/traces/stats", s.protect(s.handleTraceStats))

	mux.HandleFunc("/api/v1/etl/run", s.protect(s.handleETLRun))
	mux.HandleFunc("/api/v1/etl/status", s.protect(s.handleETLStatus))
	mux.HandleFunc("/api/v1/etl/fill-database", s.protect(s.handleFillRun))
	mux.HandleFunc("/api/v1/etl/fill-status", s.protect(s.handleFillStatus))

	// The legacy /api/v1/insights/batch-* paths serve the same handlers so
	// clients never have to probe response shapes to find the live route.
	for _, prefix := range []string{"/api/v1/insight-batch/", "/api/v1/insights/batch-"} {
		mux.HandleFunc(prefix+"generate-all", s.protect(s.handleBatchStart))
		mux.HandleFunc(prefix+"generate-status", s.protect(s.handleBatchStatus))
		mux.HandleFunc(prefix+"generate-stop", s.protect(s.handleBatchStop))
		mux.HandleFunc(prefix+"generate-reset", s.protect(s.handleBatchReset))
	}

	mux.HandleFunc("/api/v1/rankings", s.protect(s.handleRankings))
}

// protect enforces bearer auth: 401 when no credentials were presented,
// 403 when they were wrong.
func (s *Server) protect(next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next(rw, r)
			return
		}
		header := r.Header.Get("Authorization")
		if header == "" {
			writeErr(rw, http.StatusUnauthorized, "missing bearer token")
			return
		}
		got := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if got != s.token {
			writeErr(rw, http.StatusForbidden, "invalid token")
			return
		}
		next(rw, r)
	}
}

func (s *Server) handleRankings(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(rw, http.StatusMethodNotAllowed, "GET only")
		return
	}
	snap, err := s.board.Compute()
	if err != nil {
		writeErr(rw, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(rw, http.StatusOK, snap)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeErr(rw http.ResponseWriter, status int, msg string) {
	writeJSON(rw, status, map[string]string{"error": msg})
}
