package chathub

import (
	"context"
	"errors"
	"time"

	"chatmatch/backend/internal/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("chatmatch/chathub")

// Engine is the entry point used by the HTTP, WebSocket and Telegram layers.
// All state lives in memory; durable copies are produced by event sinks.
type Engine struct {
	Directory *Directory
	Sessions  *ManagerService
	Matcher   *MatcherService
	Relay     *Relay

	dispatcher *Dispatcher
}

// Option configures an Engine.
type Option func(*Engine)

// WithSinks registers event sinks.
func WithSinks(sinks ...EventSink) Option {
	return func(e *Engine) { e.dispatcher.sinks = append(e.dispatcher.sinks, sinks...) }
}

// WithClock replaces time.Now in every component. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.Directory.now = now
		e.Sessions.now = now
		e.Matcher.now = now
		e.Relay.now = now
	}
}

// NewEngine wires the directory, session manager, matcher and relay together.
func NewEngine(opts ...Option) *Engine {
	dir := NewDirectory()
	sessions := NewManagerService(dir)
	e := &Engine{
		Directory:  dir,
		Sessions:   sessions,
		Matcher:    NewMatcherService(dir, sessions),
		Relay:      NewRelay(sessions),
		dispatcher: NewDispatcher(),
	}
	for _, opt := range opts {
		opt(e)
	}

	emit := e.dispatcher.Emit
	dir.emit = emit
	sessions.emit = emit
	e.Matcher.emit = emit
	e.Relay.emit = emit
	return e
}

// AddSink registers another sink. Call it before Run.
func (e *Engine) AddSink(s EventSink) {
	e.dispatcher.sinks = append(e.dispatcher.sinks, s)
}

// Run dispatches events to the sinks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.dispatcher.Run(ctx)
}

// GoOnline loads the user's profile into the directory and marks them online.
// It is the second half of a successful login.
func (e *Engine) GoOnline(ctx context.Context, u models.User) error {
	_, span := tracer.Start(ctx, "chathub.GoOnline", trace.WithAttributes(attribute.String("user.id", u.ID)))
	defer span.End()

	e.Directory.Upsert(u)
	return record(span, e.Directory.MarkOnline(u.ID))
}

// LogoutOrDisconnect marks the user offline and closes their active session.
// The offline flag is set first so the user cannot be matched again while the
// session is being torn down.
func (e *Engine) LogoutOrDisconnect(ctx context.Context, userID string) error {
	_, span := tracer.Start(ctx, "chathub.LogoutOrDisconnect", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if err := e.Directory.MarkOffline(userID); err != nil {
		return record(span, err)
	}
	if s, ok := e.Sessions.GetActiveSession(userID); ok {
		if _, err := e.Sessions.EndSession(s.SessionID, userID); err != nil {
			return record(span, err)
		}
	}
	return nil
}

// RequestMatch finds a partner for the user and opens a session with them.
// ErrNoMatch means nobody suitable is available right now.
func (e *Engine) RequestMatch(ctx context.Context, userID string) (models.Match, error) {
	_, span := tracer.Start(ctx, "chathub.RequestMatch", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	m, err := e.Matcher.FindMatch(userID)
	if err != nil {
		return models.Match{}, record(span, err)
	}
	span.SetAttributes(
		attribute.String("session.id", m.Session.SessionID),
		attribute.Int("match.overlap", len(m.Partner.CommonInterests)),
	)
	return m, nil
}

// SendChatMessage posts a turn into the session.
func (e *Engine) SendChatMessage(ctx context.Context, sessionID, senderID, body string) (models.ChatMessage, error) {
	_, span := tracer.Start(ctx, "chathub.SendChatMessage", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	msg, err := e.Relay.PostMessage(sessionID, senderID, body)
	return msg, record(span, err)
}

// PollMessages returns the turns after since for a participant of the session.
//
// When the session has been closed, the remaining turns are returned together
// with ErrSessionNotActive so the caller can drain them and stop polling.
func (e *Engine) PollMessages(ctx context.Context, sessionID, userID string, since time.Time) ([]models.ChatMessage, error) {
	ctx, span := tracer.Start(ctx, "chathub.PollMessages", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	s, ok := e.Sessions.GetSession(sessionID)
	if !ok {
		return nil, record(span, ErrSessionNotFound)
	}
	if !s.HasParticipant(userID) {
		return nil, record(span, ErrNotAParticipant)
	}

	seq, err := e.Relay.FetchMessages(sessionID, since)
	if err != nil {
		return nil, record(span, err)
	}

	var out []models.ChatMessage
	for m := range seq {
		if ctx.Err() != nil {
			return nil, record(span, ctx.Err())
		}
		out = append(out, m)
	}
	if out == nil {
		out = []models.ChatMessage{}
	}

	// Re-read: the session may have closed while the log was being read.
	if s, _ = e.Sessions.GetSession(sessionID); !s.IsActive() {
		return out, ErrSessionNotActive
	}
	return out, nil
}

// EndChat closes the session on behalf of one of its participants.
func (e *Engine) EndChat(ctx context.Context, sessionID, userID string) (models.ChatSession, error) {
	_, span := tracer.Start(ctx, "chathub.EndChat", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	s, ok := e.Sessions.GetSession(sessionID)
	if !ok {
		return models.ChatSession{}, record(span, ErrSessionNotFound)
	}
	if !s.HasParticipant(userID) {
		return models.ChatSession{}, record(span, ErrNotAParticipant)
	}
	closed, err := e.Sessions.EndSession(sessionID, userID)
	return closed, record(span, err)
}

// record marks the span failed for unexpected errors. Expected outcomes such
// as ErrNoMatch are only tagged.
func record(span trace.Span, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNoMatch) || errors.Is(err, ErrSessionNotActive) {
		span.SetAttributes(attribute.String("chat.outcome", err.Error()))
		return err
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
