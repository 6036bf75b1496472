package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lukas-holzner/codefusion-hackathon/internal/conversation"
)

// ParticipantAgenda is one participant's agenda for a meeting.
type ParticipantAgenda struct {
	User     User                      `json:"user"`
	Finished bool                      `json:"finished"`
	Agenda   []conversation.AgendaItem `json:"meeting_agenda"`
}

// LoadConversation returns the stored conversation for (meetingID,
// userID), or ErrNotFound.
func (s *Store) LoadConversation(ctx context.Context, meetingID, userID int64) (conversation.State, error) {
	st := conversation.State{MeetingID: meetingID, UserID: userID}

	var convID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, system_prompt, finished FROM conversations WHERE meeting_id = ? AND user_id = ?
	`, meetingID, userID).Scan(&convID, &st.SystemPrompt, &st.Finished)
	if errors.Is(err, sql.ErrNoRows) {
		return conversation.State{}, fmt.Errorf("conversation %d/%d: %w", meetingID, userID, ErrNotFound)
	}
	if err != nil {
		return conversation.State{}, fmt.Errorf("load conversation %d/%d: %w", meetingID, userID, err)
	}

	if st.Messages, err = s.loadMessages(ctx, convID); err != nil {
		return conversation.State{}, err
	}
	if st.Agenda, err = s.loadAgenda(ctx, convID); err != nil {
		return conversation.State{}, err
	}
	return st, nil
}

func (s *Store) loadMessages(ctx context.Context, convID int64) ([]conversation.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT author, text, timestamp FROM messages WHERE conversation_id = ? ORDER BY seq
	`, convID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	msgs := []conversation.Message{}
	for rows.Next() {
		var (
			m      conversation.Message
			author string
		)
		if err := rows.Scan(&author, &m.Text, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Author = conversation.Author(author)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Store) loadAgenda(ctx context.Context, convID int64) ([]conversation.AgendaItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT text, completed FROM agenda_items WHERE conversation_id = ? ORDER BY position
	`, convID)
	if err != nil {
		return nil, fmt.Errorf("load agenda: %w", err)
	}
	defer rows.Close()

	items := []conversation.AgendaItem{}
	for rows.Next() {
		var it conversation.AgendaItem
		if err := rows.Scan(&it.Text, &it.Completed); err != nil {
			return nil, fmt.Errorf("scan agenda item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// SaveConversation writes st under its (meeting, user) key.
//
// Messages are append-only: rows already stored are kept and only the
// tail beyond them is inserted. A snapshot with fewer messages than the
// stored log is stale and rejected with ErrConflict. The agenda is
// replaced as a whole. Finished is never cleared once stored.
func (s *Store) SaveConversation(ctx context.Context, st conversation.State) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()

		_, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (meeting_id, user_id, system_prompt, finished, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (meeting_id, user_id) DO UPDATE SET
				finished = conversations.finished OR excluded.finished,
				updated_at = excluded.updated_at
		`, st.MeetingID, st.UserID, st.SystemPrompt, st.Finished, now, now)
		if err != nil {
			return fmt.Errorf("upsert conversation %d/%d: %w", st.MeetingID, st.UserID, err)
		}

		var convID int64
		if err := tx.QueryRowContext(ctx, `
			SELECT id FROM conversations WHERE meeting_id = ? AND user_id = ?
		`, st.MeetingID, st.UserID).Scan(&convID); err != nil {
			return fmt.Errorf("lookup conversation %d/%d: %w", st.MeetingID, st.UserID, err)
		}

		var stored int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM messages WHERE conversation_id = ?
		`, convID).Scan(&stored); err != nil {
			return fmt.Errorf("count messages: %w", err)
		}
		if len(st.Messages) < stored {
			return fmt.Errorf("conversation %d/%d has %d messages, snapshot has %d: %w",
				st.MeetingID, st.UserID, stored, len(st.Messages), ErrConflict)
		}

		for i := stored; i < len(st.Messages); i++ {
			m := st.Messages[i]
			ts := m.Timestamp
			if ts.IsZero() {
				ts = now
			}
			id, err := uuid.NewV7()
			if err != nil {
				return fmt.Errorf("message id: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO messages (id, conversation_id, seq, author, text, timestamp)
				VALUES (?, ?, ?, ?, ?, ?)
			`, id.String(), convID, i, string(m.Author), m.Text, ts.UTC()); err != nil {
				return fmt.Errorf("insert message %d: %w", i, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM agenda_items WHERE conversation_id = ?`, convID); err != nil {
			return fmt.Errorf("clear agenda: %w", err)
		}
		for i, it := range st.Agenda {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO agenda_items (conversation_id, position, text, completed) VALUES (?, ?, ?, ?)
			`, convID, i, it.Text, it.Completed); err != nil {
				return fmt.Errorf("insert agenda item %d: %w", i, err)
			}
		}
		return nil
	})
}

// MeetingAgendas returns the agenda of every participant of a meeting
// who has started preparing, in participant order.
func (s *Store) MeetingAgendas(ctx context.Context, meetingID int64) ([]ParticipantAgenda, error) {
	if err := s.meetingExists(ctx, meetingID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, u.id, u.username, c.finished
		FROM conversations c
		JOIN users u ON u.id = c.user_id
		LEFT JOIN meeting_participants p ON p.meeting_id = c.meeting_id AND p.user_id = c.user_id
		WHERE c.meeting_id = ?
		ORDER BY p.added_at IS NULL, p.added_at, c.created_at, u.id
	`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("list agendas of meeting %d: %w", meetingID, err)
	}

	type row struct {
		convID int64
		pa     ParticipantAgenda
	}
	var found []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.convID, &r.pa.User.ID, &r.pa.User.Username, &r.pa.Finished); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan agenda owner: %w", err)
		}
		found = append(found, r)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]ParticipantAgenda, 0, len(found))
	for _, r := range found {
		items, err := s.loadAgenda(ctx, r.convID)
		if err != nil {
			return nil, err
		}
		r.pa.Agenda = items
		out = append(out, r.pa)
	}
	return out, nil
}
