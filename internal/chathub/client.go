package chathub

import "chatmatch/backend/internal/models"

// Client is the interface for any type of push connection (e.g., WebSocket, Telegram).
// The hub manages different client types uniformly through it.
type Client interface {
	// GetUserID returns the id of the user behind the connection.
	GetUserID() string

	// GetSendChannel returns the channel the hub writes frames to. The hub
	// never blocks on it.
	GetSendChannel() chan<- models.Frame

	// Run starts the client's pumps.
	Run()
	// Close shuts the connection down. It may be called more than once.
	Close()
}
