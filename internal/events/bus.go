// Package events broadcasts conversation updates from the preparation
// service to live subscribers such as the WebSocket handler. The bus is
// nil-safe: calling Publish on a nil *Bus is a no-op, so components do
// not need guard checks.
package events

import (
	"sync"
	"time"

	"github.com/lukas-holzner/codefusion-hackathon/internal/conversation"
)

// Kind constants describe what happened to a conversation.
const (
	// KindStarted signals a new conversation with its opening message.
	KindStarted = "conversation_started"
	// KindTurn signals a completed user/assistant exchange.
	KindTurn = "turn_completed"
	// KindAgendaEdited signals a manual agenda reorder, edit or toggle.
	KindAgendaEdited = "agenda_edited"
	// KindFinished signals the transition to finished. It follows the
	// KindTurn event of the same exchange.
	KindFinished = "conversation_finished"
)

// Event is one conversation update. State is the full snapshot after
// the change.
type Event struct {
	Timestamp time.Time          `json:"ts"`
	Kind      string             `json:"kind"`
	MeetingID int64              `json:"meeting_id"`
	UserID    int64              `json:"user_id"`
	State     conversation.State `json:"conversation"`
}

// Matches reports whether e concerns the (meetingID, userID)
// conversation.
func (e Event) Matches(meetingID, userID int64) bool {
	return e.MeetingID == meetingID && e.UserID == userID
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the channel stored in subs so Unsubscribe can take the
	// caller's view.
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. If a subscriber's channel
// is full the event is dropped for that subscriber.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Unknown
// channels are ignored.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
