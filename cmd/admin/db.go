package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// dbCmd runs read-only queries against the sqlite read model without going
// through the server. Useful when the server is down.
func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/index.db)")
	session := fs.String("session", "", "session id filter (cycles)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "sessions"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index.db")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "sessions":
		dumpRows(db, `SELECT id, country_iso, phase, cycle, year, score, updated_at
			FROM sessions ORDER BY updated_at DESC LIMIT ?`, *limit)
	case "cycles":
		if *session == "" {
			fmt.Fprintln(os.Stderr, "missing -session")
			os.Exit(2)
		}
		dumpRows(db, `SELECT cycle, record FROM cycles WHERE session_id = `+quote(*session)+`
			ORDER BY cycle LIMIT ?`, *limit)
	case "traces":
		dumpRows(db, `SELECT provider, operation, country_iso, success, latency_ms, error, created_at
			FROM ai_traces ORDER BY created_at DESC LIMIT ?`, *limit)
	case "countries":
		dumpRows(db, `SELECT iso, name, region, score, updated_at
			FROM countries ORDER BY score DESC LIMIT ?`, *limit)
	case "insights":
		dumpRows(db, `SELECT country_iso, status, attempts, error, updated_at
			FROM insights ORDER BY country_iso LIMIT ?`, *limit)
	case "users":
		dumpRows(db, `SELECT id, username, email, role, active, created_at
			FROM users ORDER BY created_at LIMIT ?`, *limit)
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "queries: sessions, cycles, traces, countries, insights, users")
		os.Exit(2)
	}
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func dumpRows(db *sql.DB, query string, args ...any) {
	rows, err := db.Query(query, args...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		fmt.Fprintln(os.Stderr, "columns:", err)
		os.Exit(1)
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	enc := json.NewEncoder(os.Stdout)
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			fmt.Fprintln(os.Stderr, "scan:", err)
			os.Exit(1)
		}
		rec := make(map[string]any, len(cols))
		for i, c := range cols {
			v := vals[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			rec[c] = v
		}
		_ = enc.Encode(rec)
	}
	if err := rows.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "rows:", err)
		os.Exit(1)
	}
}
