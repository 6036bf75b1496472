// Package prep runs preparation conversations on top of the record
// store: it creates conversations on first access, serializes turns per
// (meeting, user), handles voice input and output, and applies manual
// agenda edits.
package prep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/lukas-holzner/codefusion-hackathon/internal/conversation"
	"github.com/lukas-holzner/codefusion-hackathon/internal/events"
	"github.com/lukas-holzner/codefusion-hackathon/internal/llm"
	"github.com/lukas-holzner/codefusion-hackathon/internal/metrics"
	"github.com/lukas-holzner/codefusion-hackathon/internal/store"
)

// ErrInvalid marks a request the caller must fix: empty text, bad
// audio, malformed agenda edit.
var ErrInvalid = errors.New("invalid request")

// ErrUnavailable is returned when a voice capability is not configured
// for the active provider.
var ErrUnavailable = errors.New("capability not configured")

// Repository is the subset of the record store the service needs.
type Repository interface {
	GetMeeting(ctx context.Context, id int64) (store.Meeting, error)
	GetUser(ctx context.Context, id int64) (store.User, error)
	LoadConversation(ctx context.Context, meetingID, userID int64) (conversation.State, error)
	SaveConversation(ctx context.Context, st conversation.State) error
	MeetingAgendas(ctx context.Context, meetingID int64) ([]store.ParticipantAgenda, error)
}

// Deps are the collaborators of a Service. Transcriber, Synthesizer,
// Bus and Metrics may be nil.
type Deps struct {
	Store       Repository
	Processor   *conversation.Processor
	Transcriber llm.Transcriber
	Synthesizer llm.Synthesizer
	Bus         *events.Bus
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Service coordinates preparation conversations.
type Service struct {
	store   Repository
	proc    *conversation.Processor
	stt     llm.Transcriber
	tts     llm.Synthesizer
	bus     *events.Bus
	metrics *metrics.Metrics
	cfg     Config
	logger  *slog.Logger

	locks  keyedMutex
	create singleflight.Group
}

// New creates a Service.
func New(d Deps, cfg Config) *Service {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   d.Store,
		proc:    d.Processor,
		stt:     d.Transcriber,
		tts:     d.Synthesizer,
		bus:     d.Bus,
		metrics: d.Metrics,
		cfg:     cfg.withDefaults(),
		logger:  logger.With("component", "prep"),
	}
}

type key struct {
	meetingID int64
	userID    int64
}

func (k key) String() string {
	return strconv.FormatInt(k.meetingID, 10) + "/" + strconv.FormatInt(k.userID, 10)
}

// Conversation returns the stored conversation without creating it.
func (s *Service) Conversation(ctx context.Context, meetingID, userID int64) (conversation.State, error) {
	return s.store.LoadConversation(ctx, meetingID, userID)
}

// EnsureConversation returns the conversation of userID for meetingID,
// creating it (and generating the assistant's opening message) on first
// access. Concurrent first accesses share a single creation.
func (s *Service) EnsureConversation(ctx context.Context, meetingID, userID int64) (conversation.State, error) {
	st, err := s.store.LoadConversation(ctx, meetingID, userID)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return conversation.State{}, err
	}

	k := key{meetingID, userID}
	v, err, shared := s.create.Do(k.String(), func() (any, error) {
		// Waiters share this result, so one caller going away must not
		// abort the creation for the others.
		return s.start(context.WithoutCancel(ctx), k)
	})
	if err != nil {
		return conversation.State{}, err
	}
	if shared {
		s.logger.Debug("conversation creation shared", "key", k.String())
	}
	return v.(conversation.State), nil
}

func (s *Service) start(ctx context.Context, k key) (conversation.State, error) {
	unlock := s.locks.lock(k)
	defer unlock()

	// Another flight may have finished between the load and the lock.
	st, err := s.store.LoadConversation(ctx, k.meetingID, k.userID)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return conversation.State{}, fmt.Errorf("reload conversation %s: %w", k, err)
	}

	m, err := s.store.GetMeeting(ctx, k.meetingID)
	if err != nil {
		return conversation.State{}, err
	}
	u, err := s.store.GetUser(ctx, k.userID)
	if err != nil {
		return conversation.State{}, err
	}

	st = s.proc.Start(ctx,
		conversation.Meeting{ID: m.ID, Title: m.Title, Description: PlainText(m.Description)},
		conversation.Participant{ID: u.ID, Name: u.Username},
	)
	if err := s.store.SaveConversation(ctx, st); err != nil {
		return conversation.State{}, fmt.Errorf("save new conversation %s: %w", k, err)
	}

	s.publish(events.KindStarted, st)
	if st.Finished {
		s.metrics.Finished()
		s.publish(events.KindFinished, st)
	}
	return st, nil
}

// SendMessage runs one turn with text as the user's message. The
// conversation must already exist.
func (s *Service) SendMessage(ctx context.Context, meetingID, userID int64, text string) (conversation.State, error) {
	text = normalizeMessage(text)
	if text == "" {
		return conversation.State{}, fmt.Errorf("%w: empty message", ErrInvalid)
	}

	k := key{meetingID, userID}
	unlock := s.locks.lock(k)
	defer unlock()

	prev, err := s.store.LoadConversation(ctx, meetingID, userID)
	if err != nil {
		return conversation.State{}, err
	}

	st := s.proc.Reply(ctx, prev, text)
	if err := s.store.SaveConversation(ctx, st); err != nil {
		return conversation.State{}, fmt.Errorf("save conversation %s: %w", k, err)
	}

	s.publish(events.KindTurn, st)
	if st.Finished && !prev.Finished {
		s.metrics.Finished()
		s.publish(events.KindFinished, st)
		s.logger.Info("conversation finished",
			"meeting_id", meetingID,
			"user_id", userID,
			"agenda_items", len(st.Agenda),
		)
	}
	return st, nil
}

func (s *Service) publish(kind string, st conversation.State) {
	s.bus.Publish(events.Event{
		Kind:      kind,
		MeetingID: st.MeetingID,
		UserID:    st.UserID,
		State:     st,
	})
}
