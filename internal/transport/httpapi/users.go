package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"ohisim.ai/internal/persistence/indexdb"
)

func (s *Server) handleUsers(rw http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		users, err := s.db.ListUsers()
		if err != nil {
			writeErr(rw, http.StatusInternalServerError, err.Error())
			return
		}
		if users == nil {
			users = []indexdb.User{}
		}
		writeJSON(rw, http.StatusOK, map[string]any{"users": users, "total": len(users)})
	case http.MethodPost:
		var body struct {
			Username string `json:"username"`
			Email    string `json:"email"`
			Role     string `json:"role"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeErr(rw, http.StatusBadRequest, "invalid json body")
			return
		}
		u, err := s.db.CreateUser(body.Username, body.Email, body.Role)
		if err != nil {
			writeErr(rw, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(rw, http.StatusCreated, u)
	default:
		writeErr(rw, http.StatusMethodNotAllowed, "GET or POST")
	}
}

func (s *Server) handleUserByID(rw http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/auth/users/")
	if id == "" || strings.Contains(id, "/") {
		writeErr(rw, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		u, err := s.db.GetUser(id)
		if err != nil {
			userErr(rw, err)
			return
		}
		writeJSON(rw, http.StatusOK, u)
	case http.MethodPut:
		var body struct {
			Email  *string `json:"email"`
			Role   *string `json:"role"`
			Active *bool   `json:"active"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeErr(rw, http.StatusBadRequest, "invalid json body")
			return
		}
		u, err := s.db.UpdateUser(id, body.Email, body.Role, body.Active)
		if err != nil {
			userErr(rw, err)
			return
		}
		writeJSON(rw, http.StatusOK, u)
	case http.MethodDelete:
		if err := s.db.DeleteUser(id); err != nil {
			userErr(rw, err)
			return
		}
		writeJSON(rw, http.StatusOK, map[string]string{"deleted": id})
	default:
		writeErr(rw, http.StatusMethodNotAllowed, "GET, PUT or DELETE")
	}
}

func userErr(rw http.ResponseWriter, err error) {
	if errors.Is(err, indexdb.ErrNotFound) {
		writeErr(rw, http.StatusNotFound, err.Error())
		return
	}
	writeErr(rw, http.StatusInternalServerError, err.Error())
}
