package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Meeting is a scheduled meeting participants prepare for.
type Meeting struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	MeetingType string    `json:"meeting_type"`

	// Users is filled by GetMeeting only.
	Users []User `json:"users,omitempty"`
}

// MeetingInput holds the writable fields of a meeting.
type MeetingInput struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	MeetingType string    `json:"meeting_type"`
}

// ConversationStatus summarizes a user's preparation for one meeting.
type ConversationStatus string

const (
	StatusTodo       ConversationStatus = "todo"
	StatusInProgress ConversationStatus = "in_progress"
	StatusDone       ConversationStatus = "done"
)

// MeetingStatus pairs a meeting with one user's preparation status.
type MeetingStatus struct {
	ConversationStatus ConversationStatus `json:"conversation_status"`
	Meeting            Meeting            `json:"meeting"`
}

func (in MeetingInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return errors.New("title is required")
	}
	return nil
}

// CreateMeeting inserts a meeting.
func (s *Store) CreateMeeting(ctx context.Context, in MeetingInput) (Meeting, error) {
	if err := in.validate(); err != nil {
		return Meeting{}, fmt.Errorf("create meeting: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO meetings (title, description, date, meeting_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, in.Title, in.Description, nullTime(in.Date), in.MeetingType, now, now)
	if err != nil {
		return Meeting{}, fmt.Errorf("create meeting: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Meeting{}, fmt.Errorf("create meeting: %w", err)
	}
	return in.meeting(id), nil
}

// GetMeeting returns a meeting with its participants.
func (s *Store) GetMeeting(ctx context.Context, id int64) (Meeting, error) {
	m, err := scanMeeting(s.db.QueryRowContext(ctx, `
		SELECT id, title, description, date, meeting_type FROM meetings WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Meeting{}, fmt.Errorf("meeting %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Meeting{}, fmt.Errorf("get meeting %d: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username
		FROM meeting_participants p JOIN users u ON u.id = p.user_id
		WHERE p.meeting_id = ?
		ORDER BY p.added_at, u.id
	`, id)
	if err != nil {
		return Meeting{}, fmt.Errorf("list participants of %d: %w", id, err)
	}
	defer rows.Close()

	m.Users = []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return Meeting{}, fmt.Errorf("scan participant: %w", err)
		}
		m.Users = append(m.Users, u)
	}
	return m, rows.Err()
}

// ListMeetings returns meetings ordered by date, undated last.
func (s *Store) ListMeetings(ctx context.Context, skip, limit int) ([]Meeting, error) {
	skip, limit = page(skip, limit)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, date, meeting_type
		FROM meetings
		ORDER BY date IS NULL, date, id
		LIMIT ? OFFSET ?
	`, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	defer rows.Close()

	meetings := []Meeting{}
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan meeting: %w", err)
		}
		meetings = append(meetings, m)
	}
	return meetings, rows.Err()
}

// UpdateMeeting overwrites the writable fields of a meeting.
func (s *Store) UpdateMeeting(ctx context.Context, id int64, in MeetingInput) (Meeting, error) {
	if err := in.validate(); err != nil {
		return Meeting{}, fmt.Errorf("update meeting %d: %w", id, err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE meetings SET title = ?, description = ?, date = ?, meeting_type = ?, updated_at = ?
		WHERE id = ?
	`, in.Title, in.Description, nullTime(in.Date), in.MeetingType, time.Now().UTC(), id)
	if err != nil {
		return Meeting{}, fmt.Errorf("update meeting %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Meeting{}, fmt.Errorf("meeting %d: %w", id, ErrNotFound)
	}
	return in.meeting(id), nil
}

// DeleteMeeting removes a meeting together with its participants,
// conversations, messages and agendas. It returns the deleted meeting.
func (s *Store) DeleteMeeting(ctx context.Context, id int64) (Meeting, error) {
	m, err := s.GetMeeting(ctx, id)
	if err != nil {
		return Meeting{}, err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		stmts := []string{
			`DELETE FROM messages WHERE conversation_id IN (SELECT id FROM conversations WHERE meeting_id = ?)`,
			`DELETE FROM agenda_items WHERE conversation_id IN (SELECT id FROM conversations WHERE meeting_id = ?)`,
			`DELETE FROM conversations WHERE meeting_id = ?`,
			`DELETE FROM meeting_participants WHERE meeting_id = ?`,
			`DELETE FROM meetings WHERE id = ?`,
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return fmt.Errorf("delete meeting %d: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return Meeting{}, err
	}
	return m, nil
}

// AddParticipant adds a user to a meeting. ErrNotFound is returned for
// an unknown meeting or user, ErrConflict if the user is already a
// participant.
func (s *Store) AddParticipant(ctx context.Context, meetingID, userID int64) error {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return err
	}
	if err := s.meetingExists(ctx, meetingID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meeting_participants (meeting_id, user_id, added_at) VALUES (?, ?, ?)
	`, meetingID, userID, time.Now().UTC())
	if isUniqueViolation(err) {
		return fmt.Errorf("user %d already in meeting %d: %w", userID, meetingID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("add participant: %w", err)
	}
	return nil
}

// UserMeetings lists the meetings userID participates in or has a
// conversation for, each with the user's preparation status.
func (s *Store) UserMeetings(ctx context.Context, userID int64) ([]MeetingStatus, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.title, m.description, m.date, m.meeting_type, c.finished
		FROM meetings m
		LEFT JOIN conversations c ON c.meeting_id = m.id AND c.user_id = ?
		WHERE c.id IS NOT NULL
		   OR EXISTS (SELECT 1 FROM meeting_participants p WHERE p.meeting_id = m.id AND p.user_id = ?)
		ORDER BY m.date IS NULL, m.date, m.id
	`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list meetings of user %d: %w", userID, err)
	}
	defer rows.Close()

	out := []MeetingStatus{}
	for rows.Next() {
		var (
			m        Meeting
			date     sql.NullTime
			finished sql.NullBool
		)
		if err := rows.Scan(&m.ID, &m.Title, &m.Description, &date, &m.MeetingType, &finished); err != nil {
			return nil, fmt.Errorf("scan meeting status: %w", err)
		}
		if date.Valid {
			m.Date = date.Time
		}
		out = append(out, MeetingStatus{ConversationStatus: statusOf(finished), Meeting: m})
	}
	return out, rows.Err()
}

func statusOf(finished sql.NullBool) ConversationStatus {
	switch {
	case !finished.Valid:
		return StatusTodo
	case finished.Bool:
		return StatusDone
	default:
		return StatusInProgress
	}
}

func (s *Store) meetingExists(ctx context.Context, id int64) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM meetings WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("meeting %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lookup meeting %d: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeeting(row rowScanner) (Meeting, error) {
	var (
		m    Meeting
		date sql.NullTime
	)
	if err := row.Scan(&m.ID, &m.Title, &m.Description, &date, &m.MeetingType); err != nil {
		return Meeting{}, err
	}
	if date.Valid {
		m.Date = date.Time
	}
	return m, nil
}

func (in MeetingInput) meeting(id int64) Meeting {
	return Meeting{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		Date:        in.Date,
		MeetingType: in.MeetingType,
	}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
