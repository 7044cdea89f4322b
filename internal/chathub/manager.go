package chathub

import (
	"log"
	"sync"
	"time"

	"chatmatch/backend/internal/compat"
	"chatmatch/backend/internal/models"

	"github.com/google/uuid"
)

// ManagerService owns the lifecycle of chat sessions and the index of which
// user is in which active session. A user is in at most one active session.
type ManagerService struct {
	mu       sync.RWMutex
	sessions map[string]*models.ChatSession
	active   map[string]string // userID -> sessionID

	dir   *Directory
	now   func() time.Time
	newID func() string
	emit  func(models.ChatEvent)
}

// NewManagerService creates a session manager backed by the directory.
func NewManagerService(dir *Directory) *ManagerService {
	return &ManagerService{
		sessions: make(map[string]*models.ChatSession),
		active:   make(map[string]string),
		dir:      dir,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
		emit:     func(models.ChatEvent) {},
	}
}

// OpenSession pairs two online users. The "is anyone already in a session"
// check and the insert happen under one lock, so two racing opens for the same
// user cannot both succeed.
func (m *ManagerService) OpenSession(userA, userB string) (models.ChatSession, error) {
	if userA == userB {
		return models.ChatSession{}, ErrSameUser
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := m.participant(userA)
	if err != nil {
		return models.ChatSession{}, err
	}
	b, err := m.participant(userB)
	if err != nil {
		return models.ChatSession{}, err
	}
	if _, busy := m.active[userA]; busy {
		return models.ChatSession{}, ErrAlreadyInSession
	}
	if _, busy := m.active[userB]; busy {
		return models.ChatSession{}, ErrAlreadyInSession
	}

	s := &models.ChatSession{
		SessionID: m.newID(),
		User1ID:   userA,
		User2ID:   userB,
		StartedAt: m.now().UTC(),
	}
	m.sessions[s.SessionID] = s
	m.active[userA] = s.SessionID
	m.active[userB] = s.SessionID

	opened := *s
	m.emit(models.ChatEvent{
		Type:    models.EventSessionOpened,
		Session: &opened,
		Views:   partnerViews(a, b),
		At:      opened.StartedAt,
	})
	log.Printf("INFO: session %s opened between %s and %s", s.SessionID, userA, userB)
	return opened, nil
}

// EndSession closes the session. Ending an already closed session is a no-op
// that returns the terminal state. endedBy may be empty.
func (m *ManagerService) EndSession(sessionID, endedBy string) (models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return models.ChatSession{}, ErrSessionNotFound
	}
	if !s.IsActive() {
		return *s, nil
	}

	ended := m.now().UTC()
	if ended.Before(s.StartedAt) {
		ended = s.StartedAt
	}
	s.EndedAt = &ended
	s.EndedBy = endedBy
	delete(m.active, s.User1ID)
	delete(m.active, s.User2ID)

	closed := *s
	m.emit(models.ChatEvent{Type: models.EventSessionClosed, UserID: endedBy, Session: &closed, At: ended})
	log.Printf("INFO: session %s closed (by %q)", sessionID, endedBy)
	return closed, nil
}

// GetActiveSession returns the user's active session, if any.
func (m *ManagerService) GetActiveSession(userID string) (models.ChatSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.active[userID]
	if !ok {
		return models.ChatSession{}, false
	}
	return *m.sessions[id], true
}

// GetSession returns a session by id, active or closed.
func (m *ManagerService) GetSession(sessionID string) (models.ChatSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return models.ChatSession{}, false
	}
	return *s, true
}

// ActiveCount returns the number of open sessions.
func (m *ManagerService) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active) / 2
}

func (m *ManagerService) hasActive(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.active[userID]
	return ok
}

// withSession runs fn while holding the read lock, so the session cannot be
// closed until fn returns. fn must not call back into the manager's writers.
func (m *ManagerService) withSession(sessionID string, fn func(models.ChatSession) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	return fn(*s)
}

func (m *ManagerService) participant(userID string) (models.User, error) {
	u, ok := m.dir.Get(userID)
	if !ok {
		return models.User{}, ErrUnknownUser
	}
	if !u.Online {
		return models.User{}, ErrUserOffline
	}
	return u, nil
}

// partnerViews maps each participant to what they may see about the other.
func partnerViews(a, b models.User) map[string]models.PartnerView {
	common := compat.Overlap(a, b)

	viewOfB := b.Anonymous()
	viewOfB.CommonInterests = common
	viewOfA := a.Anonymous()
	viewOfA.CommonInterests = common

	return map[string]models.PartnerView{a.ID: viewOfB, b.ID: viewOfA}
}
