package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq" // Необхідний для pq.StringArray
	"gorm.io/gorm"
)

// User is a registered participant of the anonymous chat.
// Username is the private login handle and is never shown to a chat partner.
type User struct {
	ID           string         `gorm:"primaryKey" json:"id"`
	Username     string         `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string         `gorm:"not null" json:"-"`
	TelegramID   *int64         `gorm:"uniqueIndex" json:"-"`
	Gender       Gender         `gorm:"type:text;not null" json:"gender"`
	Preference   Preference     `gorm:"type:text;not null" json:"preference"`
	Interests    pq.StringArray `gorm:"type:text[]" json:"interests"`
	CreatedAt    time.Time      `json:"created_at"`

	// Online is owned by the in-memory directory and is never persisted.
	Online bool `gorm:"-" json:"online"`
}

// BeforeCreate is a GORM hook that assigns a UUID when the ID is empty.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// InterestSet returns the user's interests as a set.
func (u User) InterestSet() map[string]struct{} {
	set := make(map[string]struct{}, len(u.Interests))
	for _, i := range u.Interests {
		set[i] = struct{}{}
	}
	return set
}

// Anonymous returns what a chat partner is allowed to see about this user.
func (u User) Anonymous() PartnerView {
	return PartnerView{Gender: u.Gender, Preference: u.Preference}
}

// PartnerView is the anonymous description of a matched partner.
type PartnerView struct {
	Gender          Gender     `json:"gender"`
	Preference      Preference `json:"preference"`
	CommonInterests []string   `json:"common_interests"`
}
