package models

import "time"

// ChatSession is a one-on-one chat between two distinct users.
// It is active while EndedAt is nil; once closed it never reopens.
type ChatSession struct {
	// SessionID is the UUID of the session.
	SessionID string `gorm:"primaryKey" json:"session_id"`
	// User1ID is the seeker that requested the match.
	User1ID string `gorm:"index;not null" json:"user1_id"`
	// User2ID is the selected candidate.
	User2ID   string     `gorm:"index;not null" json:"user2_id"`
	StartedAt time.Time  `gorm:"not null" json:"started_at"`
	EndedAt   *time.Time `gorm:"index" json:"ended_at,omitempty"`
	// EndedBy is the participant whose action or disconnect closed the session.
	EndedBy string `json:"ended_by,omitempty"`
}

// IsActive reports whether the session has not been closed yet.
func (s ChatSession) IsActive() bool { return s.EndedAt == nil }

// HasParticipant reports whether userID is one of the two participants.
func (s ChatSession) HasParticipant(userID string) bool {
	return userID != "" && (s.User1ID == userID || s.User2ID == userID)
}

// PartnerOf returns the other participant, or "" when userID is not in the session.
func (s ChatSession) PartnerOf(userID string) string {
	switch userID {
	case s.User1ID:
		return s.User2ID
	case s.User2ID:
		return s.User1ID
	}
	return ""
}
