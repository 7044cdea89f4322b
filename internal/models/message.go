package models

import "time"

// ChatMessage is one immutable chat turn.
// ID is a process-wide monotonic sequence; within a session messages are
// ordered by CreatedAt and then by ID.
type ChatMessage struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement:false" json:"id"`
	SessionID string    `gorm:"type:uuid;not null;index:idx_session_msg" json:"session_id"`
	SenderID  string    `gorm:"not null" json:"sender_id"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time `gorm:"not null;index:idx_session_msg" json:"created_at"`
}
