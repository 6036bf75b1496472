package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/lukas-holzner/codefusion-hackathon/internal/conversation"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(DriverPure, filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustUser(t *testing.T, s *Store, name string) User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), name)
	if err != nil {
		t.Fatalf("CreateUser(%q): %v", name, err)
	}
	return u
}

func mustMeeting(t *testing.T, s *Store, title string) Meeting {
	t.Helper()
	m, err := s.CreateMeeting(context.Background(), MeetingInput{
		Title:       title,
		Description: "Daily sync",
		Date:        time.Date(2024, 11, 15, 9, 0, 0, 0, time.UTC),
		MeetingType: "scrum",
	})
	if err != nil {
		t.Fatalf("CreateMeeting(%q): %v", title, err)
	}
	return m
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open("postgres", filepath.Join(t.TempDir(), "x.db"), nil); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "re.db")
	s, err := Open(DriverPure, path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.CreateUser(context.Background(), "guido"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	s.Close()

	s, err = Open(DriverPure, path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if _, err := s.GetUserByName(context.Background(), "guido"); err != nil {
		t.Errorf("user lost across reopen: %v", err)
	}
}

func TestUsers(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a := mustUser(t, s, "ana")
	b := mustUser(t, s, "guido")

	if _, err := s.CreateUser(ctx, "ana"); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate username error = %v, want ErrConflict", err)
	}
	if _, err := s.CreateUser(ctx, "  "); err == nil {
		t.Error("empty username accepted")
	}

	got, err := s.GetUser(ctx, b.ID)
	if err != nil || got != b {
		t.Errorf("GetUser = %+v, %v; want %+v", got, err, b)
	}
	if _, err := s.GetUser(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetUser(999) error = %v, want ErrNotFound", err)
	}

	all, err := s.ListUsers(ctx, 0, 0)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if diff := cmp.Diff([]User{a, b}, all); diff != "" {
		t.Errorf("ListUsers mismatch (-want +got):\n%s", diff)
	}

	tail, _ := s.ListUsers(ctx, 1, 10)
	if len(tail) != 1 || tail[0] != b {
		t.Errorf("ListUsers(skip=1) = %+v", tail)
	}
}

func TestMeetings_CRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	m := mustMeeting(t, s, "Daily Scrum")

	got, err := s.GetMeeting(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMeeting: %v", err)
	}
	if got.Title != "Daily Scrum" || got.MeetingType != "scrum" || !got.Date.Equal(m.Date) {
		t.Errorf("GetMeeting = %+v", got)
	}
	if got.Users == nil || len(got.Users) != 0 {
		t.Errorf("Users = %v, want empty non-nil", got.Users)
	}

	upd, err := s.UpdateMeeting(ctx, m.ID, MeetingInput{Title: "Retro", Description: "Sprint 12"})
	if err != nil {
		t.Fatalf("UpdateMeeting: %v", err)
	}
	if upd.Title != "Retro" {
		t.Errorf("UpdateMeeting title = %q", upd.Title)
	}
	if _, err := s.UpdateMeeting(ctx, 999, MeetingInput{Title: "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateMeeting(999) error = %v, want ErrNotFound", err)
	}
	if _, err := s.CreateMeeting(ctx, MeetingInput{}); err == nil {
		t.Error("meeting without title accepted")
	}

	list, err := s.ListMeetings(ctx, 0, 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListMeetings = %v, %v", list, err)
	}

	if _, err := s.DeleteMeeting(ctx, m.ID); err != nil {
		t.Fatalf("DeleteMeeting: %v", err)
	}
	if _, err := s.GetMeeting(ctx, m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetMeeting after delete error = %v", err)
	}
	if _, err := s.DeleteMeeting(ctx, m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteMeeting error = %v", err)
	}
}

func TestAddParticipant(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	m := mustMeeting(t, s, "Planning")
	u := mustUser(t, s, "guido")

	if err := s.AddParticipant(ctx, m.ID, u.ID); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}
	if err := s.AddParticipant(ctx, m.ID, u.ID); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate participant error = %v, want ErrConflict", err)
	}
	if err := s.AddParticipant(ctx, 999, u.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown meeting error = %v, want ErrNotFound", err)
	}
	if err := s.AddParticipant(ctx, m.ID, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown user error = %v, want ErrNotFound", err)
	}

	got, _ := s.GetMeeting(ctx, m.ID)
	if diff := cmp.Diff([]User{u}, got.Users); diff != "" {
		t.Errorf("participants mismatch (-want +got):\n%s", diff)
	}
}

func TestConversation_SaveLoad(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	m := mustMeeting(t, s, "Daily Scrum")
	u := mustUser(t, s, "guido")

	if _, err := s.LoadConversation(ctx, m.ID, u.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LoadConversation before save error = %v, want ErrNotFound", err)
	}

	ts := time.Date(2024, 11, 14, 8, 0, 0, 0, time.UTC)
	st := conversation.State{
		MeetingID:    m.ID,
		UserID:       u.ID,
		SystemPrompt: "sys",
		Messages:     []conversation.Message{{Text: "Hi!", Author: conversation.AuthorAssistant, Timestamp: ts}},
		Agenda:       []conversation.AgendaItem{},
	}
	if err := s.SaveConversation(ctx, st); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}

	st = conversation.State{
		MeetingID:    st.MeetingID,
		UserID:       st.UserID,
		SystemPrompt: st.SystemPrompt,
		Messages: append(st.Messages,
			conversation.Message{Text: "Login bug", Author: conversation.AuthorUser, Timestamp: ts},
			conversation.Message{Text: "Noted.", Author: conversation.AuthorAssistant, Timestamp: ts},
		),
		Agenda: []conversation.AgendaItem{{Text: "Login bug"}, {Text: "Release", Completed: true}},
	}
	if err := s.SaveConversation(ctx, st); err != nil {
		t.Fatalf("SaveConversation (second): %v", err)
	}

	got, err := s.LoadConversation(ctx, m.ID, u.ID)
	if err != nil {
		t.Fatalf("LoadConversation: %v", err)
	}
	if diff := cmp.Diff(st, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestConversation_StaleSnapshotRejected(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	m := mustMeeting(t, s, "Retro")
	u := mustUser(t, s, "ana")

	full := conversation.State{
		MeetingID: m.ID, UserID: u.ID, SystemPrompt: "sys",
		Messages: []conversation.Message{{Text: "a"}, {Text: "b"}, {Text: "c"}},
	}
	if err := s.SaveConversation(ctx, full); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}

	stale := full
	stale.Messages = full.Messages[:1]
	if err := s.SaveConversation(ctx, stale); !errors.Is(err, ErrConflict) {
		t.Errorf("stale save error = %v, want ErrConflict", err)
	}
}

func TestConversation_FinishedNeverCleared(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	m := mustMeeting(t, s, "Retro")
	u := mustUser(t, s, "ana")

	st := conversation.State{MeetingID: m.ID, UserID: u.ID, SystemPrompt: "sys", Finished: true}
	if err := s.SaveConversation(ctx, st); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}
	st.Finished = false
	if err := s.SaveConversation(ctx, st); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}

	got, _ := s.LoadConversation(ctx, m.ID, u.ID)
	if !got.Finished {
		t.Error("Finished was cleared by a later save")
	}
}

func TestUserMeetings_Status(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "guido")
	todo := mustMeeting(t, s, "todo")
	busy := mustMeeting(t, s, "busy")
	done := mustMeeting(t, s, "done")
	mustMeeting(t, s, "unrelated")

	for _, m := range []Meeting{todo, busy} {
		if err := s.AddParticipant(ctx, m.ID, u.ID); err != nil {
			t.Fatalf("AddParticipant: %v", err)
		}
	}
	s.SaveConversation(ctx, conversation.State{MeetingID: busy.ID, UserID: u.ID, SystemPrompt: "p"})
	s.SaveConversation(ctx, conversation.State{MeetingID: done.ID, UserID: u.ID, SystemPrompt: "p", Finished: true})

	got, err := s.UserMeetings(ctx, u.ID)
	if err != nil {
		t.Fatalf("UserMeetings: %v", err)
	}

	status := map[string]ConversationStatus{}
	for _, ms := range got {
		status[ms.Meeting.Title] = ms.ConversationStatus
	}
	want := map[string]ConversationStatus{
		"todo": StatusTodo,
		"busy": StatusInProgress,
		"done": StatusDone,
	}
	if diff := cmp.Diff(want, status); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.UserMeetings(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("UserMeetings(999) error = %v, want ErrNotFound", err)
	}
}

func TestMeetingAgendas_AndCascade(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	m := mustMeeting(t, s, "Planning")
	a := mustUser(t, s, "ana")
	b := mustUser(t, s, "guido")
	s.AddParticipant(ctx, m.ID, a.ID)
	s.AddParticipant(ctx, m.ID, b.ID)

	s.SaveConversation(ctx, conversation.State{
		MeetingID: m.ID, UserID: a.ID, SystemPrompt: "p",
		Agenda: []conversation.AgendaItem{{Text: "Budget"}},
	})
	s.SaveConversation(ctx, conversation.State{
		MeetingID: m.ID, UserID: b.ID, SystemPrompt: "p", Finished: true,
		Agenda: []conversation.AgendaItem{{Text: "Hiring"}, {Text: "Roadmap", Completed: true}},
	})

	got, err := s.MeetingAgendas(ctx, m.ID)
	if err != nil {
		t.Fatalf("MeetingAgendas: %v", err)
	}
	want := []ParticipantAgenda{
		{User: a, Agenda: []conversation.AgendaItem{{Text: "Budget"}}},
		{User: b, Finished: true, Agenda: []conversation.AgendaItem{{Text: "Hiring"}, {Text: "Roadmap", Completed: true}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("MeetingAgendas mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.DeleteMeeting(ctx, m.ID); err != nil {
		t.Fatalf("DeleteMeeting: %v", err)
	}
	if _, err := s.LoadConversation(ctx, m.ID, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("conversation survived meeting delete: %v", err)
	}
	if _, err := s.MeetingAgendas(ctx, m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("MeetingAgendas after delete error = %v", err)
	}
}
