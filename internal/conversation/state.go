// Package conversation turns free-text assistant replies into durable
// preparation state: an append-only message log, the latest agenda
// snapshot, and a monotonic finished flag.
//
// State values are never mutated in place. [ApplyTurn] and the agenda
// edit helpers return a new State whose slices do not alias the input.
package conversation

import (
	"time"
)

// Author identifies who wrote a message.
type Author string

const (
	AuthorAssistant Author = "assistant"
	AuthorUser      Author = "user"
)

// Message is one entry of the conversation log. Position in
// [State.Messages] is chronological order.
type Message struct {
	Text      string    `json:"message"`
	Author    Author    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// AgendaItem is one point a participant wants to raise.
type AgendaItem struct {
	Text      string `json:"agenda_item"`
	Completed bool   `json:"completed"`
}

// Status is the lifecycle state derived from [State.Finished].
type Status string

const (
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// State is the preparation conversation of one participant for one
// meeting.
type State struct {
	MeetingID    int64        `json:"meeting_id"`
	UserID       int64        `json:"user_id"`
	SystemPrompt string       `json:"system_prompt"`
	Messages     []Message    `json:"chat_messages"`
	Agenda       []AgendaItem `json:"meeting_agenda"`
	Finished     bool         `json:"finished"`
}

// Status reports whether the conversation is still running.
func (s State) Status() Status {
	if s.Finished {
		return StatusFinished
	}
	return StatusActive
}

// Texts returns the message texts in order, the form the turn
// processor consumes.
func (s State) Texts() []string {
	texts := make([]string, len(s.Messages))
	for i, m := range s.Messages {
		texts[i] = m.Text
	}
	return texts
}

// TurnResult is the normalized outcome of one model call. A nil
// NewAgenda means the turn carried no usable agenda.
type TurnResult struct {
	CleanedReply      string
	NewAgenda         []string
	ConversationEnded bool

	// Degraded is set when the upstream call failed and CleanedReply
	// is [ApologyReply].
	Degraded bool
}

// now is replaced in tests.
var now = time.Now

// ApplyTurn folds a completed turn into s: the user message and the
// assistant reply are appended, a non-empty agenda replaces the current
// one wholesale, and the end marker finishes the conversation. Finished
// never reverts.
func ApplyTurn(s State, userText string, turn TurnResult) State {
	ts := now()
	s = s.clone()
	s.Messages = append(s.Messages,
		Message{Text: userText, Author: AuthorUser, Timestamp: ts},
		Message{Text: turn.CleanedReply, Author: AuthorAssistant, Timestamp: ts},
	)
	return fold(s, turn)
}

// fold applies the agenda and end-of-conversation parts of a turn to an
// already cloned state.
func fold(s State, turn TurnResult) State {
	if len(turn.NewAgenda) > 0 {
		s.Agenda = newAgenda(turn.NewAgenda)
	}
	if turn.ConversationEnded {
		s.Finished = true
	}
	return s
}

func newAgenda(texts []string) []AgendaItem {
	items := make([]AgendaItem, len(texts))
	for i, t := range texts {
		items[i] = AgendaItem{Text: t}
	}
	return items
}

// clone copies the slices so appends and replacements on the result
// never write through to the caller's backing arrays.
func (s State) clone() State {
	out := s
	out.Messages = append([]Message(nil), s.Messages...)
	out.Agenda = append([]AgendaItem(nil), s.Agenda...)
	return out
}
