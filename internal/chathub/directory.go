package chathub

import (
	"log"
	"sort"
	"sync"
	"time"

	"chatmatch/backend/internal/models"
)

// OnlineUser is a directory snapshot entry.
type OnlineUser struct {
	User  models.User
	Since time.Time
}

type presence struct {
	user        models.User
	online      bool
	onlineSince time.Time
}

// Directory is the authoritative set of known users and their online flag.
// Changes are visible to the next lookup immediately; there is no cache.
type Directory struct {
	mu    sync.RWMutex
	users map[string]*presence

	now  func() time.Time
	emit func(models.ChatEvent)
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		users: make(map[string]*presence),
		now:   time.Now,
		emit:  func(models.ChatEvent) {},
	}
}

// Upsert stores or replaces the profile of a user. The online flag is kept.
func (d *Directory) Upsert(u models.User) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u.Online = false
	if p, ok := d.users[u.ID]; ok {
		p.user = u
		return
	}
	d.users[u.ID] = &presence{user: u}
}

// MarkOnline flips the user online. Calling it for an online user keeps the
// original online-since timestamp, so a reconnect does not jump the queue.
func (d *Directory) MarkOnline(userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.users[userID]
	if !ok {
		return ErrUnknownUser
	}
	if p.online {
		return nil
	}
	p.online = true
	p.onlineSince = d.now().UTC()
	d.emit(models.ChatEvent{Type: models.EventUserOnline, UserID: userID, At: p.onlineSince})
	log.Printf("INFO: user %s is online", userID)
	return nil
}

// MarkOffline flips the user offline. It is idempotent.
func (d *Directory) MarkOffline(userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.users[userID]
	if !ok {
		return ErrUnknownUser
	}
	if !p.online {
		return nil
	}
	p.online = false
	p.onlineSince = time.Time{}
	d.emit(models.ChatEvent{Type: models.EventUserOffline, UserID: userID, At: d.now().UTC()})
	log.Printf("INFO: user %s is offline", userID)
	return nil
}

// Get returns a copy of the user with the Online field filled in.
func (d *Directory) Get(userID string) (models.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.users[userID]
	if !ok {
		return models.User{}, false
	}
	u := p.user
	u.Online = p.online
	return u, true
}

// IsOnline reports whether the user is known and online.
func (d *Directory) IsOnline(userID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.users[userID]
	return ok && p.online
}

// ListOnline returns every online user, oldest online-since first, ties by id.
func (d *Directory) ListOnline() []OnlineUser {
	d.mu.RLock()
	out := make([]OnlineUser, 0, len(d.users))
	for _, p := range d.users {
		if !p.online {
			continue
		}
		u := p.user
		u.Online = true
		out = append(out, OnlineUser{User: u, Since: p.onlineSince})
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Since.Equal(out[j].Since) {
			return out[i].Since.Before(out[j].Since)
		}
		return out[i].User.ID < out[j].User.ID
	})
	return out
}
