package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/lukas-holzner/codefusion-hackathon/internal/conversation"
	"github.com/lukas-holzner/codefusion-hackathon/internal/prep"
)

// view normalizes nil slices so clients always receive arrays.
func view(st conversation.State) conversation.State {
	if st.Messages == nil {
		st.Messages = []conversation.Message{}
	}
	if st.Agenda == nil {
		st.Agenda = []conversation.AgendaItem{}
	}
	return st
}

func (s *Server) writeConversation(w http.ResponseWriter, st conversation.State) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, view(st), s.logger)
}

// handleConversation returns the participant's conversation, creating
// it with the assistant's opening message on first access.
func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	meetingID, userID, ok := s.conversationKey(w, r)
	if !ok {
		return
	}
	st, err := s.prep.EnsureConversation(r.Context(), meetingID, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeConversation(w, st)
}

type messageRequest struct {
	Message string `json:"message"`
}

// handleConversationMessage takes the user's text from the message
// query parameter or a JSON body.
func (s *Server) handleConversationMessage(w http.ResponseWriter, r *http.Request) {
	meetingID, userID, ok := s.conversationKey(w, r)
	if !ok {
		return
	}

	text := r.URL.Query().Get("message")
	if text == "" {
		var req messageRequest
		if !s.decodeJSON(w, r, &req) {
			return
		}
		text = req.Message
	}

	st, err := s.prep.SendMessage(r.Context(), meetingID, userID, text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeConversation(w, st)
}

// handleConversationAudio transcribes the multipart "audio" field and
// runs it as a message.
func (s *Server) handleConversationAudio(w http.ResponseWriter, r *http.Request) {
	meetingID, userID, ok := s.conversationKey(w, r)
	if !ok {
		return
	}

	// Leave room for multipart framing; prep enforces the exact limit.
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+64<<10)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			s.fail(w, r, &prep.TooLargeError{Limit: s.opts.MaxUploadBytes})
			return
		}
		s.errorResponse(w, http.StatusBadRequest, "expected multipart form with an audio field")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "missing audio field")
		return
	}
	defer file.Close()

	st, err := s.prep.SendAudio(r.Context(), meetingID, userID, prep.Audio{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeConversation(w, st)
}

func (s *Server) handleAgendaGet(w http.ResponseWriter, r *http.Request) {
	meetingID, userID, ok := s.conversationKey(w, r)
	if !ok {
		return
	}
	st, err := s.prep.Conversation(r.Context(), meetingID, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, view(st).Agenda, s.logger)
}

// handleAgendaReplace stores the posted list as the participant's
// agenda. Clients reorder or edit by sending the whole list.
func (s *Server) handleAgendaReplace(w http.ResponseWriter, r *http.Request) {
	meetingID, userID, ok := s.conversationKey(w, r)
	if !ok {
		return
	}
	var items []conversation.AgendaItem
	if !s.decodeJSON(w, r, &items) {
		return
	}

	st, err := s.prep.ReplaceAgenda(r.Context(), meetingID, userID, items)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeConversation(w, st)
}

func (s *Server) handleAgendaToggle(w http.ResponseWriter, r *http.Request) {
	meetingID, userID, ok := s.conversationKey(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid index")
		return
	}

	st, err := s.prep.ToggleAgendaItem(r.Context(), meetingID, userID, index)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeConversation(w, st)
}

func (s *Server) handleMeetingAgenda(w http.ResponseWriter, r *http.Request) {
	meetingID, ok := s.pathID(w, r, "meeting_id")
	if !ok {
		return
	}
	agendas, err := s.prep.MeetingAgendas(r.Context(), meetingID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, agendas, s.logger)
}

type ttsRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	audio, err := s.prep.Speak(r.Context(), req.Text, req.Voice)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	if _, err := w.Write(audio); err != nil {
		s.logger.Debug("failed to write audio response", "error", err)
	}
}
