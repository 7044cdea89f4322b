package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"chatmatch/backend/internal/auth"
	"chatmatch/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ auth.UserRepository = (*Service)(nil)

// ErrSessionNotFound is returned when the archive has no such session.
var ErrSessionNotFound = errors.New("session not found in archive")

// CreateUser inserts a new user. A taken username or Telegram id maps to
// auth.ErrDuplicateIdentity.
func (s *Service) CreateUser(ctx context.Context, u *models.User) error {
	err := s.DB.WithContext(ctx).Create(u).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return auth.ErrDuplicateIdentity
	}
	if err != nil {
		log.Printf("ERROR: Failed to create user %s: %v", u.Username, err)
		return err
	}
	return nil
}

// UpdateUser stores the profile fields of an existing user.
func (s *Service) UpdateUser(ctx context.Context, u *models.User) error {
	return s.DB.WithContext(ctx).Model(u).
		Select("gender", "preference", "interests").
		Updates(u).Error
}

func (s *Service) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, "id = ?", id)
}

func (s *Service) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findUser(ctx, "username = ?", username)
}

func (s *Service) GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	return s.findUser(ctx, "telegram_id = ?", telegramID)
}

func (s *Service) findUser(ctx context.Context, query string, arg any) (*models.User, error) {
	var u models.User
	err := s.DB.WithContext(ctx).Where(query, arg).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SaveSession stores a newly opened session.
func (s *Service) SaveSession(ctx context.Context, session *models.ChatSession) error {
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(session).Error
}

// CloseSession records the terminal state of a session. Only an open row is
// updated, so replays keep the first close.
func (s *Service) CloseSession(ctx context.Context, session *models.ChatSession) error {
	return s.DB.WithContext(ctx).Model(&models.ChatSession{}).
		Where("session_id = ? AND ended_at IS NULL", session.SessionID).
		Updates(map[string]interface{}{
			"ended_at": session.EndedAt,
			"ended_by": session.EndedBy,
		}).Error
}

// SaveMessage appends one turn to the archive.
func (s *Service) SaveMessage(ctx context.Context, msg *models.ChatMessage) error {
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(msg).Error
	if err != nil {
		log.Printf("ERROR: Failed to save message for session %s: %v", msg.SessionID, err)
	}
	return err
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := s.DB.WithContext(ctx).Where("session_id = ?", sessionID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSessionMessages returns the transcript of a session, oldest first.
func (s *Service) GetSessionMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	var msgs []models.ChatMessage
	err := s.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at asc").Order("id asc").
		Find(&msgs).Error
	if err != nil {
		log.Printf("ERROR: Failed to get transcript of session %s: %v", sessionID, err)
		return nil, err
	}
	return msgs, nil
}

// GetActiveSessionIDs returns the ids of sessions that are still open in the archive.
func (s *Service) GetActiveSessionIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.DB.WithContext(ctx).Model(&models.ChatSession{}).
		Where("ended_at IS NULL").
		Order("started_at asc").
		Pluck("session_id", &ids).Error; err != nil {
		log.Printf("ERROR: Failed to retrieve active session ids: %v", err)
		return nil, err
	}
	return ids, nil
}

// CloseStaleSessions closes every session a previous process left open.
// The engine keeps sessions in memory only, so none of them can continue.
func (s *Service) CloseStaleSessions(ctx context.Context, at time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&models.ChatSession{}).
		Where("ended_at IS NULL").
		Updates(map[string]interface{}{"ended_at": at.UTC(), "ended_by": ""})
	if res.Error != nil {
		return 0, fmt.Errorf("close stale sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// MaxMessageID returns the largest archived message id, 0 for an empty archive.
func (s *Service) MaxMessageID(ctx context.Context) (uint64, error) {
	var maxID uint64
	err := s.DB.WithContext(ctx).Model(&models.ChatMessage{}).
		Select("COALESCE(MAX(id), 0)").
		Scan(&maxID).Error
	return maxID, err
}
