package chathub

import (
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"chatmatch/backend/internal/compat"
	"chatmatch/backend/internal/models"
)

// MatcherService selects a partner for a seeker and reserves the pair.
//
// It is a single-shot lookup: it never waits for someone to come online.
// Retrying with backoff is up to the caller.
type MatcherService struct {
	// mu serializes filter, rank and reserve across concurrent seekers.
	mu sync.Mutex

	dir      *Directory
	sessions *ManagerService
	now      func() time.Time
	emit     func(models.ChatEvent)
}

// NewMatcherService creates a matcher over the directory and session manager.
func NewMatcherService(dir *Directory, sessions *ManagerService) *MatcherService {
	return &MatcherService{
		dir:      dir,
		sessions: sessions,
		now:      time.Now,
		emit:     func(models.ChatEvent) {},
	}
}

// Candidates ranks every available, compatible online user for the seeker
// without reserving anyone.
//
// Ranking: larger interest overlap first, then whoever has been online
// longest, then the smaller user id.
func (m *MatcherService) Candidates(seekerID string) ([]models.Candidate, error) {
	seeker, ok := m.dir.Get(seekerID)
	if !ok {
		return nil, ErrUnknownUser
	}
	if !seeker.Online {
		return nil, ErrUserOffline
	}

	var out []models.Candidate
	for _, ou := range m.dir.ListOnline() {
		if ou.User.ID == seekerID || m.sessions.hasActive(ou.User.ID) {
			continue
		}
		if !compat.IsCompatible(seeker, ou.User) {
			continue
		}
		out = append(out, models.Candidate{
			User:        ou.User,
			Overlap:     compat.Overlap(seeker, ou.User),
			OnlineSince: ou.Since,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score() != out[j].Score() {
			return out[i].Score() > out[j].Score()
		}
		if !out[i].OnlineSince.Equal(out[j].OnlineSince) {
			return out[i].OnlineSince.Before(out[j].OnlineSince)
		}
		return out[i].User.ID < out[j].User.ID
	})
	return out, nil
}

// FindMatch picks the best candidate and opens a session for the pair in one
// step, so no reserved-but-sessionless state is ever visible. When the top
// candidate was taken by a direct OpenSession in the meantime, the next one is
// tried.
func (m *MatcherService) FindMatch(seekerID string) (models.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessions.hasActive(seekerID) {
		return models.Match{}, ErrAlreadyInSession
	}

	candidates, err := m.Candidates(seekerID)
	if err != nil {
		return models.Match{}, err
	}

	for _, c := range candidates {
		session, err := m.sessions.OpenSession(seekerID, c.User.ID)
		if err == nil {
			view := c.User.Anonymous()
			view.CommonInterests = c.Overlap
			return models.Match{Session: session, PartnerID: c.User.ID, Partner: view}, nil
		}
		if !errors.Is(err, ErrAlreadyInSession) && !errors.Is(err, ErrUserOffline) {
			return models.Match{}, err
		}
		// Figure out whose state changed: the seeker's ends the request,
		// the candidate's only skips them.
		if m.sessions.hasActive(seekerID) {
			return models.Match{}, ErrAlreadyInSession
		}
		if !m.dir.IsOnline(seekerID) {
			return models.Match{}, ErrUserOffline
		}
	}

	m.emit(models.ChatEvent{Type: models.EventMatchMiss, UserID: seekerID, At: m.now().UTC()})
	log.Printf("INFO: no match for %s (%d candidates)", seekerID, len(candidates))
	return models.Match{}, ErrNoMatch
}
