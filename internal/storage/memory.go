package storage

import (
	"context"
	"sync"

	"chatmatch/backend/internal/auth"
	"chatmatch/backend/internal/models"

	"github.com/google/uuid"
)

// MemoryUsers is an in-memory user repository for development and testing.
type MemoryUsers struct {
	mu         sync.Mutex
	byID       map[string]*models.User
	byUsername map[string]string
	byTelegram map[int64]string
}

var _ auth.UserRepository = (*MemoryUsers)(nil)

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{
		byID:       make(map[string]*models.User),
		byUsername: make(map[string]string),
		byTelegram: make(map[int64]string),
	}
}

func (m *MemoryUsers) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byUsername[u.Username]; taken {
		return auth.ErrDuplicateIdentity
	}
	if u.TelegramID != nil {
		if _, taken := m.byTelegram[*u.TelegramID]; taken {
			return auth.ErrDuplicateIdentity
		}
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}

	stored := *u
	m.byID[u.ID] = &stored
	m.byUsername[u.Username] = u.ID
	if u.TelegramID != nil {
		m.byTelegram[*u.TelegramID] = u.ID
	}
	return nil
}

func (m *MemoryUsers) UpdateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.byID[u.ID]
	if !ok {
		return auth.ErrUserNotFound
	}
	stored.Gender = u.Gender
	stored.Preference = u.Preference
	stored.Interests = append(stored.Interests[:0:0], u.Interests...)
	return nil
}

func (m *MemoryUsers) GetUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(id)
}

func (m *MemoryUsers) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(m.byUsername[username])
}

func (m *MemoryUsers) GetUserByTelegramID(_ context.Context, telegramID int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(m.byTelegram[telegramID])
}

func (m *MemoryUsers) get(id string) (*models.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}
