package api

import (
	"net/http"
	"strings"
)

type createUserRequest struct {
	Username string `json:"username"`
}

func (s *Server) handleUserCreate(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Username) == "" {
		s.errorResponse(w, http.StatusBadRequest, "username is required")
		return
	}

	u, err := s.records.CreateUser(r.Context(), req.Username)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, u, s.logger)
}

func (s *Server) handleUserList(w http.ResponseWriter, r *http.Request) {
	users, err := s.records.ListUsers(r.Context(), parseIntParam(r, "skip", 0), parseIntParam(r, "limit", 100))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, users, s.logger)
}

func (s *Server) handleUserGet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "user_id")
	if !ok {
		return
	}
	u, err := s.records.GetUser(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, u, s.logger)
}

// handleUserMeetings lists a user's meetings with the preparation
// status of each (todo, in_progress, done).
func (s *Server) handleUserMeetings(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "user_id")
	if !ok {
		return
	}
	meetings, err := s.records.UserMeetings(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, meetings, s.logger)
}
