package models

import "time"

// Candidate is a derived view of an online user ranked for a specific seeker.
type Candidate struct {
	User        User      `json:"-"`
	Overlap     []string  `json:"overlap"`
	OnlineSince time.Time `json:"-"`
}

// Score is the ranking key of the candidate.
func (c Candidate) Score() int { return len(c.Overlap) }

// Match is the result of a successful match request: the reserved partner and
// the session that was opened for the pair.
type Match struct {
	Session   ChatSession `json:"session"`
	PartnerID string      `json:"-"`
	Partner   PartnerView `json:"partner"`
}

// EventType names a state change of the chat engine.
type EventType string

const (
	EventUserOnline    EventType = "user_online"
	EventUserOffline   EventType = "user_offline"
	EventMatchMiss     EventType = "match_miss"
	EventSessionOpened EventType = "session_opened"
	EventSessionClosed EventType = "session_closed"
	EventMessagePosted EventType = "message_posted"
)

// ChatEvent is emitted after every state change and fanned out to the sinks.
type ChatEvent struct {
	Type    EventType    `json:"type"`
	UserID  string       `json:"user_id,omitempty"`
	Session *ChatSession `json:"session,omitempty"`
	Message *ChatMessage `json:"message,omitempty"`
	At      time.Time    `json:"at"`

	// Views holds, for session_opened, what each participant sees about the other.
	Views map[string]PartnerView `json:"views,omitempty"`
}

// Frame types pushed to realtime clients.
const (
	FrameMatchFound   = "match_found"
	FrameMessage      = "message"
	FrameSessionEnded = "session_ended"
	FrameError        = "error"
)

// Frame is what the hub pushes to a connected client (WebSocket or Telegram).
type Frame struct {
	Type      string       `json:"type"`
	SessionID string       `json:"session_id,omitempty"`
	Message   *ChatMessage `json:"message,omitempty"`
	Partner   *PartnerView `json:"partner,omitempty"`
	// Self is true when the frame describes the receiving user's own action.
	Self  bool   `json:"self,omitempty"`
	Error string `json:"error,omitempty"`
}

// ClientCommand is an instruction received from a realtime client.
type ClientCommand struct {
	UserID    string `json:"-"`
	Type      string `json:"type"` // "search", "message", "end"
	SessionID string `json:"session_id,omitempty"`
	Body      string `json:"body,omitempty"`
}
