package chathub

import "errors"

var (
	// ErrNoMatch means no compatible, available candidate is online right now.
	// Callers may retry later with backoff.
	ErrNoMatch = errors.New("no compatible partner online")
	// ErrAlreadyInSession is returned when a user already takes part in an active session.
	ErrAlreadyInSession = errors.New("user already in an active session")
	// ErrSessionNotActive is returned for writes against a closed session.
	ErrSessionNotActive = errors.New("session is not active")
	// ErrNotAParticipant is returned when a user acts on a session they are not part of.
	ErrNotAParticipant = errors.New("user is not a participant of the session")
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrUnknownUser is returned when the directory has never seen the user.
	ErrUnknownUser = errors.New("unknown user")
	// ErrUserOffline is returned when an offline user is asked to take part in a match.
	ErrUserOffline = errors.New("user is offline")
	// ErrSameUser is returned when a session is requested between a user and themselves.
	ErrSameUser = errors.New("a session needs two distinct users")
	// ErrEmptyMessage is returned for blank message bodies.
	ErrEmptyMessage = errors.New("message body is empty")
	// ErrMessageTooLong is returned when a body exceeds config.MaxMessageLength runes.
	ErrMessageTooLong = errors.New("message body is too long")
)

var errUnknownCommand = errors.New("unknown command")

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrNoMatch, "no_match"},
	{ErrAlreadyInSession, "already_in_session"},
	{ErrSessionNotActive, "session_not_active"},
	{ErrNotAParticipant, "not_a_participant"},
	{ErrSessionNotFound, "session_not_found"},
	{ErrUnknownUser, "unknown_user"},
	{ErrUserOffline, "user_offline"},
	{ErrSameUser, "same_user"},
	{ErrEmptyMessage, "empty_message"},
	{ErrMessageTooLong, "message_too_long"},
	{errUnknownCommand, "unknown_command"},
}

// ErrorCode returns the stable wire code for an engine error, "internal" for
// anything else.
func ErrorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}
