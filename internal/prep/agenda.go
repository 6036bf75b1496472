package prep

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lukas-holzner/codefusion-hackathon/internal/conversation"
	"github.com/lukas-holzner/codefusion-hackathon/internal/events"
	"github.com/lukas-holzner/codefusion-hackathon/internal/store"
)

// ReplaceAgenda stores items as the participant's agenda, used for
// reordering and editing. Messages and the finished flag are untouched.
func (s *Service) ReplaceAgenda(ctx context.Context, meetingID, userID int64, items []conversation.AgendaItem) (conversation.State, error) {
	cleaned := make([]conversation.AgendaItem, len(items))
	for i, it := range items {
		it.Text = strings.TrimSpace(it.Text)
		if it.Text == "" {
			return conversation.State{}, fmt.Errorf("%w: agenda item %d is empty", ErrInvalid, i)
		}
		cleaned[i] = it
	}

	return s.editAgenda(ctx, meetingID, userID, func(st conversation.State) (conversation.State, error) {
		return conversation.ReplaceAgenda(st, cleaned), nil
	})
}

// ToggleAgendaItem flips the completed flag of one agenda item.
func (s *Service) ToggleAgendaItem(ctx context.Context, meetingID, userID int64, index int) (conversation.State, error) {
	return s.editAgenda(ctx, meetingID, userID, func(st conversation.State) (conversation.State, error) {
		return conversation.ToggleAgendaItem(st, index)
	})
}

func (s *Service) editAgenda(ctx context.Context, meetingID, userID int64, edit func(conversation.State) (conversation.State, error)) (conversation.State, error) {
	k := key{meetingID, userID}
	unlock := s.locks.lock(k)
	defer unlock()

	st, err := s.store.LoadConversation(ctx, meetingID, userID)
	if err != nil {
		return conversation.State{}, err
	}
	st, err = edit(st)
	if err != nil {
		return conversation.State{}, err
	}
	if err := s.store.SaveConversation(ctx, st); err != nil {
		return conversation.State{}, fmt.Errorf("save agenda %s: %w", k, err)
	}

	s.publish(events.KindAgendaEdited, st)
	return st, nil
}

// MeetingAgendas returns every participant's agenda for a meeting.
func (s *Service) MeetingAgendas(ctx context.Context, meetingID int64) ([]store.ParticipantAgenda, error) {
	return s.store.MeetingAgendas(ctx, meetingID)
}

// AgendaMarkdown renders the combined agenda of a meeting as a markdown
// document with one task list per participant.
func (s *Service) AgendaMarkdown(ctx context.Context, meetingID int64) (string, error) {
	m, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return "", err
	}
	agendas, err := s.store.MeetingAgendas(ctx, meetingID)
	if err != nil {
		return "", err
	}
	return FormatAgendaMarkdown(m, agendas), nil
}

// FormatAgendaMarkdown builds the markdown agenda document.
func FormatAgendaMarkdown(m store.Meeting, agendas []store.ParticipantAgenda) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", escapeMarkdown(m.Title))
	var meta []string
	if !m.Date.IsZero() {
		meta = append(meta, m.Date.Format(time.DateTime))
	}
	if m.MeetingType != "" {
		meta = append(meta, escapeMarkdown(m.MeetingType))
	}
	if len(meta) > 0 {
		fmt.Fprintf(&b, "_%s_\n\n", strings.Join(meta, " · "))
	}
	if desc := PlainText(m.Description); desc != "" {
		fmt.Fprintf(&b, "%s\n\n", escapeMarkdown(desc))
	}

	if len(agendas) == 0 {
		b.WriteString("No agenda items yet.\n")
		return b.String()
	}

	for _, pa := range agendas {
		heading := escapeMarkdown(pa.User.Username)
		if !pa.Finished {
			heading += " (in preparation)"
		}
		fmt.Fprintf(&b, "## %s\n\n", heading)
		if len(pa.Agenda) == 0 {
			b.WriteString("No items.\n\n")
			continue
		}
		for _, it := range pa.Agenda {
			box := " "
			if it.Completed {
				box = "x"
			}
			fmt.Fprintf(&b, "- [%s] %s\n", box, escapeMarkdown(it.Text))
		}
		b.WriteString("\n")
	}
	return b.String()
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
	"[", `\[`,
	"]", `\]`,
	"<", `\<`,
	"#", `\#`,
)

// escapeMarkdown keeps model- and user-written text from being read as
// markup, including raw HTML.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(strings.Join(strings.Fields(s), " "))
}
