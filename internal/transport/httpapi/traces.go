package httpapi

import (
	"net/http"
	"strconv"

	"ohisim.ai/internal/persistence/indexdb"
)

func (s *Server) handleTraces(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(rw, http.StatusMethodNotAllowed, "GET only")
		return
	}
	q := r.URL.Query()
	f := indexdb.TraceFilter{
		Provider:   q.Get("provider"),
		Operation:  q.Get("operation"),
		CountryISO: q.Get("country_iso"),
		Since:      q.Get("since"),
		Until:      q.Get("until"),
	}
	if v := q.Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeErr(rw, http.StatusBadRequest, "success must be a boolean")
			return
		}
		f.Success = &b
	}
	if v := q.Get("limit"); v != "" {
		f.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		f.Offset, _ = strconv.Atoi(v)
	}

	rows, total, err := s.db.QueryTraces(f)
	if err != nil {
		writeErr(rw, http.StatusInternalServerError, err.Error())
		return
	}
	if rows == nil {
		rows = []indexdb.TraceRow{}
	}
	writeJSON(rw, http.StatusOK, map[string]any{
		"traces": rows,
		"total":  total,
		"limit":  f.Limit,
		"offset": f.Offset,
	})
}

func (s *Server) handleTraceStats(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(rw, http.StatusMethodNotAllowed, "GET only")
		return
	}
	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		days, _ = strconv.Atoi(v)
	}
	stats, err := s.db.TraceStatsSince(days)
	if err != nil {
		writeErr(rw, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(rw, http.StatusOK, stats)
}
