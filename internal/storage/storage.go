package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"chatmatch/backend/internal/models"

	"github.com/golang/snappy"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	// OnlineUsersKey is the Redis set mirroring the directory's online users.
	OnlineUsersKey = "online_users"
	// EventsChannel is the Redis pub/sub channel carrying every chat event.
	EventsChannel = "chat:events"
)

// Storage is the durable archive of the chat engine.
type Storage interface {
	SaveSession(ctx context.Context, s *models.ChatSession) error
	CloseSession(ctx context.Context, s *models.ChatSession) error
	SaveMessage(ctx context.Context, msg *models.ChatMessage) error

	GetSession(ctx context.Context, sessionID string) (*models.ChatSession, error)
	GetSessionMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error)
	GetActiveSessionIDs(ctx context.Context) ([]string, error)
	CloseStaleSessions(ctx context.Context, at time.Time) (int64, error)
	MaxMessageID(ctx context.Context) (uint64, error)
}

// Service archives users, sessions and messages in PostgreSQL and mirrors
// presence and events to Redis. Redis is optional.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
}

var _ Storage = (*Service)(nil)

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
	}
}

// Migrate creates or updates the users, chat_sessions and chat_messages tables.
func (s *Service) Migrate() error {
	return s.DB.AutoMigrate(&models.User{}, &models.ChatSession{}, &models.ChatMessage{})
}

// Publish implements chathub.EventSink. Without a database only presence
// and the broadcast are kept.
func (s *Service) Publish(ctx context.Context, ev models.ChatEvent) error {
	var err error
	switch ev.Type {
	case models.EventSessionOpened, models.EventSessionClosed, models.EventMessagePosted:
		if s.DB == nil {
			break
		}
		err = s.archive(ctx, ev)
	case models.EventUserOnline:
		err = s.setPresence(ctx, ev.UserID, true)
	case models.EventUserOffline:
		err = s.setPresence(ctx, ev.UserID, false)
	}
	if err != nil {
		return err
	}
	return s.broadcast(ctx, ev)
}

func (s *Service) archive(ctx context.Context, ev models.ChatEvent) error {
	switch ev.Type {
	case models.EventSessionOpened:
		return s.SaveSession(ctx, ev.Session)
	case models.EventSessionClosed:
		return s.CloseSession(ctx, ev.Session)
	case models.EventMessagePosted:
		return s.SaveMessage(ctx, ev.Message)
	}
	return nil
}

func (s *Service) setPresence(ctx context.Context, userID string, online bool) error {
	if s.Redis == nil {
		return nil
	}
	if online {
		return s.Redis.SAdd(ctx, OnlineUsersKey, userID).Err()
	}
	return s.Redis.SRem(ctx, OnlineUsersKey, userID).Err()
}

// OnlineUsers returns the ids in the Redis presence set.
func (s *Service) OnlineUsers(ctx context.Context) ([]string, error) {
	if s.Redis == nil {
		return nil, nil
	}
	return s.Redis.SMembers(ctx, OnlineUsersKey).Result()
}

// ResetPresence clears the presence set. A fresh process starts with
// everybody offline.
func (s *Service) ResetPresence(ctx context.Context) error {
	if s.Redis == nil {
		return nil
	}
	return s.Redis.Del(ctx, OnlineUsersKey).Err()
}

// broadcast publishes the event on EventsChannel. Message bodies are part of
// the payload, so it is snappy-compressed.
func (s *Service) broadcast(ctx context.Context, ev models.ChatEvent) error {
	if s.Redis == nil {
		return nil
	}
	payload, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	return s.Redis.Publish(ctx, EventsChannel, payload).Err()
}

// SubscribeEvents streams decoded events from EventsChannel until ctx is done.
func (s *Service) SubscribeEvents(ctx context.Context) (<-chan models.ChatEvent, error) {
	if s.Redis == nil {
		return nil, fmt.Errorf("redis is not configured")
	}
	pubsub := s.Redis.Subscribe(ctx, EventsChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	out := make(chan models.ChatEvent)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ev, err := DecodeEvent([]byte(msg.Payload))
				if err != nil {
					log.Printf("WARNING: undecodable event on %s: %v", EventsChannel, err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// EncodeEvent serializes an event as snappy-compressed JSON.
func EncodeEvent(ev models.ChatEvent) ([]byte, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return snappy.Encode(nil, raw), nil
}

// DecodeEvent is the inverse of EncodeEvent.
func DecodeEvent(payload []byte) (models.ChatEvent, error) {
	var ev models.ChatEvent
	raw, err := snappy.Decode(nil, payload)
	if err != nil {
		return ev, fmt.Errorf("decompress event: %w", err)
	}
	if err := json.Unmarshal(raw, &ev); err != nil {
		return ev, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}
