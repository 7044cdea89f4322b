package chathub

import (
	"iter"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"chatmatch/backend/internal/config"
	"chatmatch/backend/internal/models"
)

// Relay records chat turns and serves them back in order.
//
// Within a session, timestamps are strictly increasing: a turn recorded in the
// same clock tick as (or earlier than) its predecessor is stamped one
// nanosecond after it. Message ids come from one process-wide sequence, so
// (CreatedAt, ID) order and insertion order are the same.
type Relay struct {
	sessions *ManagerService

	mu   sync.Mutex
	logs map[string][]models.ChatMessage
	seq  uint64

	now  func() time.Time
	emit func(models.ChatEvent)
}

// NewRelay creates a relay for the sessions owned by m.
func NewRelay(m *ManagerService) *Relay {
	return &Relay{
		sessions: m,
		logs:     make(map[string][]models.ChatMessage),
		now:      time.Now,
		emit:     func(models.ChatEvent) {},
	}
}

// SeedSequence makes the next message id last+1. It only moves forward.
func (r *Relay) SeedSequence(last uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if last > r.seq {
		r.seq = last
	}
}

// PostMessage records a turn from senderID. The session's read lock is held
// while the turn is appended, so a concurrent EndSession either happens
// before (ErrSessionNotActive) or after the message is recorded.
func (r *Relay) PostMessage(sessionID, senderID, body string) (models.ChatMessage, error) {
	if strings.TrimSpace(body) == "" {
		return models.ChatMessage{}, ErrEmptyMessage
	}
	if utf8.RuneCountInString(body) > config.MaxMessageLength {
		return models.ChatMessage{}, ErrMessageTooLong
	}

	var msg models.ChatMessage
	err := r.sessions.withSession(sessionID, func(s models.ChatSession) error {
		if !s.HasParticipant(senderID) {
			return ErrNotAParticipant
		}
		if !s.IsActive() {
			return ErrSessionNotActive
		}
		msg = r.append(s, senderID, body)
		return nil
	})
	if err != nil {
		return models.ChatMessage{}, err
	}
	return msg, nil
}

func (r *Relay) append(s models.ChatSession, senderID, body string) models.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	turns := r.logs[s.SessionID]
	ts := r.now().UTC()
	if n := len(turns); n > 0 && !ts.After(turns[n-1].CreatedAt) {
		ts = turns[n-1].CreatedAt.Add(time.Nanosecond)
	}

	r.seq++
	msg := models.ChatMessage{
		ID:        r.seq,
		SessionID: s.SessionID,
		SenderID:  senderID,
		Body:      body,
		CreatedAt: ts,
	}
	r.logs[s.SessionID] = append(turns, msg)

	posted := msg
	r.emit(models.ChatEvent{Type: models.EventMessagePosted, UserID: senderID, Session: &s, Message: &posted, At: ts})
	return msg
}

// FetchMessages returns the session's turns recorded strictly after the
// cursor, oldest first. A zero cursor yields everything.
//
// The sequence is lazy and restartable: every range over it takes a fresh
// snapshot, so a poller can keep one sequence and range it again to see new
// turns. Closed sessions stay readable.
func (r *Relay) FetchMessages(sessionID string, after time.Time) (iter.Seq[models.ChatMessage], error) {
	if _, ok := r.sessions.GetSession(sessionID); !ok {
		return nil, ErrSessionNotFound
	}

	return func(yield func(models.ChatMessage) bool) {
		r.mu.Lock()
		// Entries below len are never rewritten, so the slice header is a stable snapshot.
		turns := r.logs[sessionID]
		r.mu.Unlock()

		start := sort.Search(len(turns), func(i int) bool {
			return turns[i].CreatedAt.After(after)
		})
		for _, m := range turns[start:] {
			if !yield(m) {
				return
			}
		}
	}, nil
}
