package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lukas-holzner/codefusion-hackathon/internal/conversation"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = livePongWait * 9 / 10
	liveReadLimit  = 64 << 10
)

// Frame kinds sent to live clients besides the event kinds.
const (
	frameSnapshot = "snapshot"
	frameError    = "error"
)

// liveFrame is one server-to-client WebSocket message.
type liveFrame struct {
	Kind         string              `json:"kind"`
	Conversation *conversation.State `json:"conversation,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// handleConversationLive upgrades to a WebSocket carrying one
// conversation. The client sends {"message": "..."} frames; every
// update to the conversation, from this socket or any other client, is
// pushed as a full snapshot.
func (s *Server) handleConversationLive(w http.ResponseWriter, r *http.Request) {
	meetingID, userID, ok := s.conversationKey(w, r)
	if !ok {
		return
	}
	if s.bus == nil {
		s.errorResponse(w, http.StatusNotImplemented, "live updates not configured")
		return
	}

	st, err := s.prep.EnsureConversation(r.Context(), meetingID, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	// Subscribe before taking the snapshot so no update falls between
	// them.
	sub := s.bus.Subscribe(16)
	defer s.bus.Unsubscribe(sub)
	if st, err = s.prep.Conversation(r.Context(), meetingID, userID); err != nil {
		s.fail(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	log := s.logger.With("meeting_id", meetingID, "user_id", userID)
	log.Debug("live client connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	snapshot := view(st)
	if err := writeFrame(conn, liveFrame{Kind: frameSnapshot, Conversation: &snapshot}); err != nil {
		return
	}

	errs := make(chan string, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.readLive(ctx, conn, meetingID, userID, errs)
	}()

	ticker := time.NewTicker(livePingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			log.Debug("live client disconnected")
			return
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if !ev.Matches(meetingID, userID) {
				continue
			}
			snapshot := view(ev.State)
			if err := writeFrame(conn, liveFrame{Kind: ev.Kind, Conversation: &snapshot}); err != nil {
				log.Debug("live write failed", "error", err)
				return
			}
		case msg := <-errs:
			if err := writeFrame(conn, liveFrame{Kind: frameError, Error: msg}); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLive runs client messages as turns until the connection closes.
// Results reach the client through the bus; failures go to errs.
func (s *Server) readLive(ctx context.Context, conn *websocket.Conn, meetingID, userID int64, errs chan<- string) {
	conn.SetReadLimit(liveReadLimit)
	conn.SetReadDeadline(time.Now().Add(livePongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(livePongWait))
	})

	for {
		var req messageRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("live read failed", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(livePongWait))

		if _, err := s.prep.SendMessage(ctx, meetingID, userID, req.Message); err != nil {
			select {
			case errs <- err.Error():
			case <-ctx.Done():
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, f liveFrame) error {
	conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
	return conn.WriteJSON(f)
}
