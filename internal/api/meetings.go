package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lukas-holzner/codefusion-hackathon/internal/store"
)

type meetingRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	MeetingType string `json:"meeting_type"`
}

// dateLayouts are accepted for meeting dates. Browser date pickers
// send local times without an offset; those are taken as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.DateTime,
	time.DateOnly,
}

func parseMeetingDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func (s *Server) decodeMeeting(w http.ResponseWriter, r *http.Request) (store.MeetingInput, bool) {
	var req meetingRequest
	if !s.decodeJSON(w, r, &req) {
		return store.MeetingInput{}, false
	}
	if strings.TrimSpace(req.Title) == "" {
		s.errorResponse(w, http.StatusBadRequest, "title is required")
		return store.MeetingInput{}, false
	}
	date, err := parseMeetingDate(req.Date)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return store.MeetingInput{}, false
	}
	return store.MeetingInput{
		Title:       req.Title,
		Description: req.Description,
		Date:        date,
		MeetingType: req.MeetingType,
	}, true
}

func (s *Server) handleMeetingCreate(w http.ResponseWriter, r *http.Request) {
	in, ok := s.decodeMeeting(w, r)
	if !ok {
		return
	}
	m, err := s.records.CreateMeeting(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, m, s.logger)
}

func (s *Server) handleMeetingList(w http.ResponseWriter, r *http.Request) {
	meetings, err := s.records.ListMeetings(r.Context(), parseIntParam(r, "skip", 0), parseIntParam(r, "limit", 100))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, meetings, s.logger)
}

func (s *Server) handleMeetingGet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "meeting_id")
	if !ok {
		return
	}
	m, err := s.records.GetMeeting(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, m, s.logger)
}

func (s *Server) handleMeetingUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "meeting_id")
	if !ok {
		return
	}
	in, ok := s.decodeMeeting(w, r)
	if !ok {
		return
	}
	m, err := s.records.UpdateMeeting(r.Context(), id, in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, m, s.logger)
}

func (s *Server) handleMeetingDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "meeting_id")
	if !ok {
		return
	}
	m, err := s.records.DeleteMeeting(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("meeting deleted", "meeting_id", id, "participants", len(m.Users))
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, m, s.logger)
}

// handleMeetingAddUser adds the user named by the user_id query
// parameter and returns the meeting with its participants.
func (s *Server) handleMeetingAddUser(w http.ResponseWriter, r *http.Request) {
	meetingID, ok := s.pathID(w, r, "meeting_id")
	if !ok {
		return
	}
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		s.errorResponse(w, http.StatusBadRequest, "invalid user_id")
		return
	}

	if err := s.records.AddParticipant(r.Context(), meetingID, userID); err != nil {
		s.fail(w, r, err)
		return
	}
	m, err := s.records.GetMeeting(r.Context(), meetingID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, m, s.logger)
}
