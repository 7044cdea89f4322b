package chathub

import (
	"context"
	"errors"
	"log"
	"sync"

	"chatmatch/backend/internal/models"
)

// ClientRestorer builds a client for a user that has no live connection, for
// transports such as Telegram where the user is reachable without one. It
// returns ErrNoClient for users it cannot reach.
type ClientRestorer func(userID string) (Client, error)

// ErrNoClient tells the hub that a user has no push transport right now.
var ErrNoClient = errors.New("no client for user")

// Hub keeps one push client per user and turns engine events into frames.
// The client map is owned by the Run goroutine.
type Hub struct {
	Engine  *Engine
	Clients map[string]Client

	RegisterCh   chan Client
	UnregisterCh chan Client
	IncomingCh   chan models.ClientCommand

	ClientRestorer ClientRestorer

	// queues serializes the commands of each user. unreachable remembers
	// users the restorer has no transport for.
	queues      map[string]*commandQueue
	unreachable map[string]struct{}

	events  chan models.ChatEvent
	replies chan reply
	done    chan struct{}
}

// commandQueue runs one user's commands one at a time, in arrival order,
// without blocking the hub loop.
type commandQueue struct {
	mu      sync.Mutex
	pending []models.ClientCommand
	running bool
}

type reply struct {
	userID string
	frame  models.Frame
}

// NewHub creates a hub for the engine. It still has to be added as a sink.
func NewHub(e *Engine) *Hub {
	return &Hub{
		Engine:       e,
		Clients:      make(map[string]Client),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		IncomingCh:   make(chan models.ClientCommand, 64),
		queues:       make(map[string]*commandQueue),
		unreachable:  make(map[string]struct{}),
		events:       make(chan models.ChatEvent, 256),
		replies:      make(chan reply, 64),
		done:         make(chan struct{}),
	}
}

func (h *Hub) SetClientRestorer(restorer ClientRestorer) {
	h.ClientRestorer = restorer
}

// Publish implements EventSink.
func (h *Hub) Publish(ctx context.Context, ev models.ChatEvent) error {
	switch ev.Type {
	case models.EventSessionOpened, models.EventSessionClosed, models.EventMessagePosted:
	default:
		return nil
	}
	select {
	case h.events <- ev:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run serves registrations, client commands and events until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for id, c := range h.Clients {
			c.Close()
			delete(h.Clients, id)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.RegisterCh:
			id := c.GetUserID()
			if old, ok := h.Clients[id]; ok && old != c {
				old.Close()
			}
			h.Clients[id] = c
			delete(h.unreachable, id)
			log.Printf("INFO: client registered for %s", id)

		case c := <-h.UnregisterCh:
			id := c.GetUserID()
			if cur, ok := h.Clients[id]; !ok || cur != c {
				// A newer connection already replaced this one.
				continue
			}
			delete(h.Clients, id)
			c.Close()
			h.dropQueue(id)
			log.Printf("INFO: client for %s disconnected", id)
			go h.disconnect(id)

		case cmd := <-h.IncomingCh:
			h.enqueue(ctx, cmd)

		case r := <-h.replies:
			h.deliver(r.userID, r.frame)

		case ev := <-h.events:
			h.handleEvent(ev)
		}
	}
}

func (h *Hub) disconnect(userID string) {
	err := h.Engine.LogoutOrDisconnect(context.Background(), userID)
	if err != nil && !errors.Is(err, ErrUnknownUser) {
		log.Printf("ERROR: logout of %s after disconnect failed: %v", userID, err)
	}
}

// enqueue appends the command to its user's queue and starts a drainer when
// none is running.
func (h *Hub) enqueue(ctx context.Context, cmd models.ClientCommand) {
	q, ok := h.queues[cmd.UserID]
	if !ok {
		q = &commandQueue{}
		h.queues[cmd.UserID] = q
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, cmd)
	if !q.running {
		q.running = true
		go h.drain(ctx, q)
	}
}

func (h *Hub) drain(ctx context.Context, q *commandQueue) {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		cmd := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		h.handleCommand(ctx, cmd)
	}
}

// dropQueue forgets an idle queue. A busy one is kept so a reconnect cannot
// start a second drainer for the same user.
func (h *Hub) dropQueue(userID string) {
	q, ok := h.queues[userID]
	if !ok {
		return
	}
	q.mu.Lock()
	idle := !q.running
	q.mu.Unlock()
	if idle {
		delete(h.queues, userID)
	}
}

func (h *Hub) handleCommand(ctx context.Context, cmd models.ClientCommand) {
	var err error
	switch cmd.Type {
	case "search":
		// A successful match is announced by the session_opened event.
		_, err = h.Engine.RequestMatch(ctx, cmd.UserID)
	case "message":
		_, err = h.Engine.SendChatMessage(ctx, cmd.SessionID, cmd.UserID, cmd.Body)
	case "end":
		_, err = h.Engine.EndChat(ctx, cmd.SessionID, cmd.UserID)
	default:
		err = errUnknownCommand
	}
	if err == nil {
		return
	}

	r := reply{userID: cmd.UserID, frame: models.Frame{Type: models.FrameError, SessionID: cmd.SessionID, Error: ErrorCode(err)}}
	select {
	case h.replies <- r:
	case <-h.done:
	}
}

func (h *Hub) handleEvent(ev models.ChatEvent) {
	switch ev.Type {
	case models.EventSessionOpened:
		s := ev.Session
		for _, p := range []string{s.User1ID, s.User2ID} {
			view := ev.Views[p]
			h.deliver(p, models.Frame{Type: models.FrameMatchFound, SessionID: s.SessionID, Partner: &view})
		}

	case models.EventMessagePosted:
		msg, s := ev.Message, ev.Session
		for _, p := range []string{s.User1ID, s.User2ID} {
			h.deliver(p, models.Frame{Type: models.FrameMessage, SessionID: s.SessionID, Message: msg, Self: p == msg.SenderID})
		}

	case models.EventSessionClosed:
		s := ev.Session
		for _, p := range []string{s.User1ID, s.User2ID} {
			h.deliver(p, models.Frame{Type: models.FrameSessionEnded, SessionID: s.SessionID, Self: p == s.EndedBy})
		}
	}
}

// deliver never blocks the hub: a client whose buffer is full loses the frame.
func (h *Hub) deliver(userID string, f models.Frame) {
	c, ok := h.Clients[userID]
	if !ok {
		if h.ClientRestorer == nil {
			return
		}
		if _, skip := h.unreachable[userID]; skip {
			return
		}
		restored, err := h.ClientRestorer(userID)
		if errors.Is(err, ErrNoClient) {
			h.unreachable[userID] = struct{}{}
			return
		}
		if err != nil {
			log.Printf("WARNING: cannot restore client for %s: %v", userID, err)
			return
		}
		h.Clients[userID] = restored
		restored.Run()
		c = restored
	}

	select {
	case c.GetSendChannel() <- f:
	default:
		log.Printf("WARNING: send buffer of %s is full, dropping %s frame", userID, f.Type)
	}
}
