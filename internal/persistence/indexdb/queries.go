package indexdb

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

// User is an admin-dashboard account row.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func (s *SQLiteIndex) ListUsers() ([]User, error) {
	rows, err := s.db.Query(`SELECT id, username, email, role, active, created_at, updated_at FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		var u User
		var active int
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &active, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		u.Active = active != 0
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) GetUser(id string) (User, error) {
	var u User
	var active int
	err := s.db.QueryRow(`SELECT id, username, email, role, active, created_at, updated_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Username, &u.Email, &u.Role, &active, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return u, err
	}
	u.Active = active != 0
	return u, nil
}

func (s *SQLiteIndex) CreateUser(username, email, role string) (User, error) {
	if strings.TrimSpace(username) == "" {
		return User{}, fmt.Errorf("empty username")
	}
	if role == "" {
		role = "viewer"
	}
	now := time.Now().UTC().Format(time.RFC3339)
	u := User{
		ID:        uuid.NewString(),
		Username:  username,
		Email:     email,
		Role:      role,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.Exec(`INSERT INTO users (id, username, email, role, active, created_at, updated_at) VALUES (?,?,?,?,1,?,?)`,
		u.ID, u.Username, u.Email, u.Role, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *SQLiteIndex) UpdateUser(id string, email, role *string, active *bool) (User, error) {
	u, err := s.GetUser(id)
	if err != nil {
		return User{}, err
	}
	if email != nil {
		u.Email = *email
	}
	if role != nil {
		u.Role = *role
	}
	if active != nil {
		u.Active = *active
	}
	u.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.Exec(`UPDATE users SET email = ?, role = ?, active = ?, updated_at = ? WHERE id = ?`,
		u.Email, u.Role, boolInt(u.Active), u.UpdatedAt, id)
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *SQLiteIndex) DeleteUser(id string) error {
	res, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

// TraceFilter narrows a trace listing. Zero values mean "any".
type TraceFilter struct {
	Provider   string
	Operation  string
	CountryISO string
	Success    *bool
	Since      string // RFC3339, inclusive
	Until      string // RFC3339, exclusive
	Limit      int
	Offset     int
}

func (s *SQLiteIndex) QueryTraces(f TraceFilter) ([]TraceRow, int, error) {
	where := []string{"1=1"}
	var args []any
	if f.Provider != "" {
		where = append(where, "provider = ?")
		args = append(args, f.Provider)
	}
	if f.Operation != "" {
		where = append(where, "operation = ?")
		args = append(args, f.Operation)
	}
	if f.CountryISO != "" {
		where = append(where, "country_iso = ?")
		args = append(args, f.CountryISO)
	}
	if f.Success != nil {
		where = append(where, "success = ?")
		args = append(args, boolInt(*f.Success))
	}
	if f.Since != "" {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since)
	}
	if f.Until != "" {
		where = append(where, "created_at < ?")
		args = append(args, f.Until)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM ai_traces WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := `SELECT id, provider, operation, country_iso, success, latency_ms, error, created_at
		FROM ai_traces WHERE ` + cond + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := s.db.Query(q, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []TraceRow
	for rows.Next() {
		var r TraceRow
		var success int
		if err := rows.Scan(&r.ID, &r.Provider, &r.Operation, &r.CountryISO, &success, &r.LatencyMS, &r.Error, &r.CreatedAt); err != nil {
			return nil, 0, err
		}
		r.Success = success != 0
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// TraceStats aggregates over the trailing N days.
type TraceStats struct {
	Days         int     `json:"days"`
	Total        int     `json:"total"`
	Successes    int     `json:"successes"`
	Errors       int     `json:"errors"`
	SuccessRate  float64 `json:"success_rate"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
}

func (s *SQLiteIndex) TraceStatsSince(days int) (TraceStats, error) {
	if days <= 0 {
		days = 7
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)
	st := TraceStats{Days: days}
	err := s.db.QueryRow(`SELECT COUNT(*),
			COALESCE(SUM(success), 0),
			COALESCE(AVG(latency_ms), 0)
		FROM ai_traces WHERE created_at >= ?`, cutoff).
		Scan(&st.Total, &st.Successes, &st.AvgLatencyMS)
	if err != nil {
		return st, err
	}
	st.Errors = st.Total - st.Successes
	if st.Total > 0 {
		st.SuccessRate = float64(st.Successes) / float64(st.Total)
	}
	return st, nil
}

// CountryRow is a data-platform country entry maintained by the pipeline.
type CountryRow struct {
	ISO       string  `json:"iso"`
	Name      string  `json:"name"`
	Region    string  `json:"region,omitempty"`
	Score     float64 `json:"score"`
	Stage     string  `json:"stage,omitempty"`
	UpdatedAt string  `json:"updated_at"`
}

func (s *SQLiteIndex) UpsertCountry(row CountryRow) error {
	if row.UpdatedAt == "" {
		row.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO countries (iso, name, region, score, stage, updated_at)
		VALUES (?,?,?,?,?,?)`,
		row.ISO, row.Name, row.Region, row.Score, row.Stage, row.UpdatedAt)
	return err
}

func (s *SQLiteIndex) ListCountries() ([]CountryRow, error) {
	rows, err := s.db.Query(`SELECT iso, name, region, score, stage, updated_at FROM countries ORDER BY score DESC, iso`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CountryRow
	for rows.Next() {
		var r CountryRow
		if err := rows.Scan(&r.ISO, &r.Name, &r.Region, &r.Score, &r.Stage, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) UpsertIndicator(iso, code string, year int, value float64) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO indicators (country_iso, code, year, value) VALUES (?,?,?,?)`,
		iso, code, year, value)
	return err
}

func (s *SQLiteIndex) CountIndicators() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM indicators`).Scan(&n)
	return n, err
}

// InsightRow tracks per-country insight generation state.
type InsightRow struct {
	CountryISO string `json:"country_iso"`
	Status     string `json:"status"` // "pending","done","failed"
	Content    string `json:"content,omitempty"`
	Attempts   int    `json:"attempts"`
	Error      string `json:"error,omitempty"`
	UpdatedAt  string `json:"updated_at"`
}

func (s *SQLiteIndex) UpsertInsight(row InsightRow) error {
	if row.UpdatedAt == "" {
		row.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO insights (country_iso, status, content, attempts, error, updated_at)
		VALUES (?,?,?,?,?,?)`,
		row.CountryISO, row.Status, row.Content, row.Attempts, row.Error, row.UpdatedAt)
	return err
}

func (s *SQLiteIndex) ListInsights() ([]InsightRow, error) {
	rows, err := s.db.Query(`SELECT country_iso, status, content, attempts, error, updated_at FROM insights ORDER BY country_iso`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []InsightRow
	for rows.Next() {
		var r InsightRow
		if err := rows.Scan(&r.CountryISO, &r.Status, &r.Content, &r.Attempts, &r.Error, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) ResetInsights() error {
	_, err := s.db.Exec(`DELETE FROM insights`)
	return err
}

// SessionRows lists the latest mirrored session states.
func (s *SQLiteIndex) SessionRows(limit int) ([]SessionRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT id, country_iso, phase, cycle, year, score, rank, updated_at
		FROM sessions ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		if err := rows.Scan(&r.ID, &r.CountryISO, &r.Phase, &r.Cycle, &r.Year, &r.Score, &r.Rank, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
